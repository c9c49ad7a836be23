package anylm

import (
	"fmt"

	"github.com/unixpickle/anydiff"
	"github.com/unixpickle/anyvec"
)

// A Tensor is a differentiable, row-major value with a
// known shape.
type Tensor struct {
	Res   anydiff.Res
	Shape Shape
}

// NewTensor wraps a result with a shape.
// It panics if the shape does not match the length of
// the result.
func NewTensor(r anydiff.Res, shape Shape) *Tensor {
	if r.Output().Len() != shape.Size() {
		panic(fmt.Sprintf("shape %v needs %d components but got %d", shape,
			shape.Size(), r.Output().Len()))
	}
	return &Tensor{Res: r, Shape: shape.Copy()}
}

// Output returns the underlying vector.
func (t *Tensor) Output() anyvec.Vector {
	return t.Res.Output()
}

// Creator returns the creator of the underlying vector.
func (t *Tensor) Creator() anyvec.Creator {
	return t.Res.Output().Creator()
}

// Dim returns the size of an axis.
// Negative axes count from the end.
func (t *Tensor) Dim(axis int) int {
	return t.Shape.Dim(axis)
}

// Rank returns the number of axes.
func (t *Tensor) Rank() int {
	return len(t.Shape)
}

// Floats copies the components of the tensor into a
// float64 slice.
func (t *Tensor) Floats() []float64 {
	return VectorFloats(t.Output())
}

// VectorFloats copies the components of a vector into a
// float64 slice, regardless of the vector's numeric type.
func VectorFloats(v anyvec.Vector) []float64 {
	switch data := v.Data().(type) {
	case []float32:
		res := make([]float64, len(data))
		for i, x := range data {
			res[i] = float64(x)
		}
		return res
	case []float64:
		return append([]float64{}, data...)
	default:
		panic(fmt.Sprintf("unsupported numeric list: %T", data))
	}
}

// NumericFloat converts a numeric to a float64.
func NumericFloat(n anyvec.Numeric) float64 {
	switch n := n.(type) {
	case float32:
		return float64(n)
	case float64:
		return n
	default:
		panic(fmt.Sprintf("unsupported numeric: %T", n))
	}
}

// Constant creates a constant tensor with every
// component set to value.
func Constant(c anyvec.Creator, shape Shape, value float64) *Tensor {
	return NewTensor(anydiff.NewConst(filledVector(c, shape.Size(), value)), shape)
}

// Zeros creates a constant tensor of zeros.
func Zeros(c anyvec.Creator, shape Shape) *Tensor {
	return NewTensor(anydiff.NewConst(c.MakeVector(shape.Size())), shape)
}

// FromData creates a constant tensor from row-major data.
func FromData(c anyvec.Creator, shape Shape, data []float64) *Tensor {
	return NewTensor(anydiff.NewConst(c.MakeVectorData(c.MakeNumericList(data))), shape)
}

// FromVar views a variable as a tensor.
func FromVar(v *anydiff.Var, shape Shape) *Tensor {
	return NewTensor(v, shape)
}

// Reshape changes the shape of a tensor without changing
// its components.
func Reshape(t *Tensor, shape Shape) *Tensor {
	if shape.Size() != t.Shape.Size() {
		panic(fmt.Sprintf("cannot reshape %v to %v", t.Shape, shape))
	}
	return &Tensor{Res: t.Res, Shape: shape.Copy()}
}

// Gather creates a tensor whose i-th component is
// component table[i] of t.
// Gradients are scattered back and summed.
func Gather(t *Tensor, table []int, shape Shape) *Tensor {
	if len(table) != shape.Size() {
		panic(fmt.Sprintf("gather table has %d entries but shape %v needs %d",
			len(table), shape, shape.Size()))
	}
	inSize := t.Shape.Size()
	for _, idx := range table {
		if idx < 0 || idx >= inSize {
			panic(fmt.Sprintf("gather index %d out of range [0, %d)", idx, inSize))
		}
	}
	c := t.Creator()
	mapper := c.MakeMapper(inSize, table)
	out := c.MakeVector(len(table))
	mapper.Map(t.Output(), out)
	return NewTensor(&gatherRes{In: t.Res, Mapper: mapper, OutVec: out}, shape)
}

// SliceAxis extracts the range [start, end) of an axis.
func SliceAxis(t *Tensor, axis, start, end int) *Tensor {
	axis = t.Shape.Axis(axis)
	dim := t.Shape[axis]
	if start < 0 || end > dim || start >= end {
		panic(fmt.Sprintf("slice [%d, %d) out of range for axis %d of %v",
			start, end, axis, t.Shape))
	}
	outer, inner := t.Shape.Outer(axis), t.Shape.Inner(axis)
	shape := t.Shape.With(axis, end-start)
	if outer == 1 {
		return NewTensor(anydiff.Slice(t.Res, start*inner, end*inner), shape)
	}
	table := make([]int, 0, shape.Size())
	for o := 0; o < outer; o++ {
		base := o * dim * inner
		for i := start * inner; i < end*inner; i++ {
			table = append(table, base+i)
		}
	}
	return Gather(t, table, shape)
}

// Split splits a tensor into its slices along an axis,
// removing that axis from each piece.
//
// Every piece propagates into t independently, so t
// should be pooled when it is expensive to propagate
// through.
func Split(t *Tensor, axis int) []*Tensor {
	axis = t.Shape.Axis(axis)
	shape := append(t.Shape[:axis:axis], t.Shape[axis+1:]...)
	if len(shape) == 0 {
		shape = Shape{1}
	}
	res := make([]*Tensor, t.Shape[axis])
	for i := range res {
		res[i] = Reshape(SliceAxis(t, axis, i, i+1), shape)
	}
	return res
}

// Concat joins tensors along an existing axis.
// All other dimensions must match.
func Concat(axis int, ts ...*Tensor) *Tensor {
	if len(ts) == 0 {
		panic("nothing to concatenate")
	}
	first := ts[0].Shape
	axis = first.Axis(axis)
	total := 0
	ress := make([]anydiff.Res, len(ts))
	for i, t := range ts {
		if !t.Shape.With(axis, 1).Equal(first.With(axis, 1)) {
			panic(fmt.Sprintf("cannot concatenate %v with %v along axis %d",
				first, t.Shape, axis))
		}
		total += t.Shape[axis]
		ress[i] = t.Res
	}
	shape := first.With(axis, total)
	if len(ts) == 1 {
		return ts[0]
	}
	joined := NewTensor(anydiff.Concat(ress...), Shape{shape.Size()})
	outer, inner := first.Outer(axis), first.Inner(axis)
	if outer == 1 {
		return Reshape(joined, shape)
	}
	table := make([]int, 0, shape.Size())
	for o := 0; o < outer; o++ {
		offset := 0
		for _, t := range ts {
			chunk := t.Shape[axis] * inner
			for i := 0; i < chunk; i++ {
				table = append(table, offset+o*chunk+i)
			}
			offset += t.Shape.Size()
		}
	}
	return Gather(joined, table, shape)
}

// Stack joins equally-shaped tensors along a new axis.
func Stack(axis int, ts ...*Tensor) *Tensor {
	if len(ts) == 0 {
		panic("nothing to stack")
	}
	if axis < 0 {
		axis += ts[0].Rank() + 1
	}
	if axis < 0 || axis > ts[0].Rank() {
		panic(fmt.Sprintf("stack axis out of range for shape %v", ts[0].Shape))
	}
	expanded := make([]*Tensor, len(ts))
	for i, t := range ts {
		if !t.Shape.Equal(ts[0].Shape) {
			panic(fmt.Sprintf("cannot stack %v with %v", ts[0].Shape, t.Shape))
		}
		shape := append(append(t.Shape[:axis:axis], 1), t.Shape[axis:]...)
		expanded[i] = Reshape(t, shape)
	}
	return Concat(axis, expanded...)
}

// Add adds two equally-shaped tensors.
func Add(a, b *Tensor) *Tensor {
	checkSameShape("add", a, b)
	return NewTensor(anydiff.Add(a.Res, b.Res), a.Shape)
}

// Sub subtracts b from a.
func Sub(a, b *Tensor) *Tensor {
	checkSameShape("subtract", a, b)
	return NewTensor(anydiff.Sub(a.Res, b.Res), a.Shape)
}

// Mul multiplies two equally-shaped tensors
// component-wise.
func Mul(a, b *Tensor) *Tensor {
	checkSameShape("multiply", a, b)
	return NewTensor(anydiff.Mul(a.Res, b.Res), a.Shape)
}

// Complement computes 1-t.
func Complement(t *Tensor) *Tensor {
	return NewTensor(anydiff.Complement(t.Res), t.Shape)
}

// Scale multiplies every component by s.
func Scale(t *Tensor, s float64) *Tensor {
	return NewTensor(anydiff.Scale(t.Res, t.Creator().MakeNumeric(s)), t.Shape)
}

// ExpandRows repeats every component of t over a
// contiguous run of the result, producing a tensor of the
// given shape.
//
// For example, a (B, 1) tensor expands to (B, F) by
// copying each row value F times.
func ExpandRows(t *Tensor, shape Shape) *Tensor {
	n := t.Shape.Size()
	if shape.Size()%n != 0 {
		panic(fmt.Sprintf("cannot expand %v to %v", t.Shape, shape))
	}
	width := shape.Size() / n
	if width == 1 {
		return Reshape(t, shape)
	}
	ones := anydiff.NewConst(filledVector(t.Creator(), width, 1))
	product := anydiff.MatMul(false, false,
		&anydiff.Matrix{Data: t.Res, Rows: n, Cols: 1},
		&anydiff.Matrix{Data: ones, Rows: 1, Cols: width})
	return NewTensor(product.Data, shape)
}

// MulRows multiplies x by m, where every component of m
// scales a contiguous run of x.
// A (B, L, 1) mask scales a (B, L, E) tensor this way.
func MulRows(x, m *Tensor) *Tensor {
	return Mul(x, ExpandRows(m, x.Shape))
}

func checkSameShape(op string, a, b *Tensor) {
	if !a.Shape.Equal(b.Shape) {
		panic(fmt.Sprintf("cannot %s shapes %v and %v", op, a.Shape, b.Shape))
	}
}

func filledVector(c anyvec.Creator, size int, value float64) anyvec.Vector {
	data := make([]float64, size)
	for i := range data {
		data[i] = value
	}
	return c.MakeVectorData(c.MakeNumericList(data))
}

type gatherRes struct {
	In     anydiff.Res
	Mapper anyvec.Mapper
	OutVec anyvec.Vector
}

func (g *gatherRes) Output() anyvec.Vector {
	return g.OutVec
}

func (g *gatherRes) Vars() anydiff.VarSet {
	return g.In.Vars()
}

func (g *gatherRes) Propagate(u anyvec.Vector, grad anydiff.Grad) {
	if !grad.Intersects(g.In.Vars()) {
		return
	}
	downstream := u.Creator().MakeVector(g.Mapper.InSize())
	g.Mapper.MapTranspose(u, downstream)
	g.In.Propagate(downstream, grad)
}
