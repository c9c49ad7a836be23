package anyrnn

import (
	"fmt"

	"github.com/satopirka/anylm"
	"github.com/unixpickle/anydiff"
	"github.com/unixpickle/anyvec"
)

// A stepper computes the next packed state from one
// timestep of input and the previous packed state.
// Both states have shape (batch, numStates*units).
type stepper func(x, state *anylm.Tensor) *anylm.Tensor

// unroll runs step once per timestep of in, keeping the
// previous state wherever the mask is zero.
//
// The packed state holds numStates tensors of width units
// side by side in every row; outState selects the one
// that forms the layer output.
func unroll(in, mask, init *anylm.Tensor, numStates, outState, units int,
	step stepper) *Trajectory {
	batch, length := in.Dim(0), in.Dim(1)
	if !init.Shape.Equal(anylm.Shape{batch, numStates * units}) {
		panic(fmt.Sprintf("packed state should be (%d, %d) but got %v", batch,
			numStates*units, init.Shape))
	}
	inputs := timeMajor(in)
	conds := timeMajor(NormalizeMask(in, mask)).Output()
	features := in.Shape.Size() / (batch * length)

	res := &unrollRes{
		In:     inputs.Res,
		Init:   init.Res,
		Inputs: anydiff.NewVar(inputs.Output()),
		V:      anydiff.MergeVarSets(inputs.Res.Vars(), init.Res.Vars()),
	}
	outs := make([]anyvec.Vector, length)
	state := init
	for t := 0; t < length; t++ {
		prev := anydiff.NewVar(state.Output())
		prevState := anylm.NewTensor(prev, state.Shape)
		x := anylm.NewTensor(
			anydiff.Slice(res.Inputs, t*batch*features, (t+1)*batch*features),
			anylm.Shape{batch, features},
		)
		cond := anylm.NewTensor(anydiff.NewConst(conds.Slice(t*batch, (t+1)*batch)),
			anylm.Shape{batch, 1})
		next := anylm.Where(cond, step(x, prevState), prevState)

		res.Prevs = append(res.Prevs, prev)
		res.Steps = append(res.Steps, next.Res)
		for v := range next.Res.Vars() {
			if v != prev && v != res.Inputs {
				res.V.Add(v)
			}
		}
		outs[t] = next.Output()
		state = next
	}
	res.OutVec = in.Creator().Concat(outs...)

	return &Trajectory{
		res:       res,
		batch:     batch,
		length:    length,
		units:     units,
		numStates: numStates,
		outState:  outState,
	}
}

// timeMajor reorders a (B, L, ...) tensor to (L, B, ...).
func timeMajor(t *anylm.Tensor) *anylm.Tensor {
	batch, length := t.Dim(0), t.Dim(1)
	inner := t.Shape.Size() / (batch * length)
	table := make([]int, 0, t.Shape.Size())
	for step := 0; step < length; step++ {
		for b := 0; b < batch; b++ {
			offset := (b*length + step) * inner
			for k := 0; k < inner; k++ {
				table = append(table, offset+k)
			}
		}
	}
	return anylm.Gather(t, table, t.Shape.With(0, length).With(1, batch))
}

// unrollRes holds one small graph per timestep.
// Each step reads its input and previous state through
// placeholder variables, so back-propagation runs the
// steps in reverse order and carries the state gradient
// from one step to the one before it.
type unrollRes struct {
	In     anydiff.Res
	Init   anydiff.Res
	Inputs *anydiff.Var
	Prevs  []*anydiff.Var
	Steps  []anydiff.Res
	OutVec anyvec.Vector
	V      anydiff.VarSet
}

func (u *unrollRes) Output() anyvec.Vector {
	return u.OutVec
}

func (u *unrollRes) Vars() anydiff.VarSet {
	return u.V
}

func (u *unrollRes) Propagate(up anyvec.Vector, g anydiff.Grad) {
	c := up.Creator()
	propIn := g.Intersects(u.In.Vars())
	if propIn {
		g[u.Inputs] = c.MakeVector(u.Inputs.Vector.Len())
	}

	block := up.Len() / len(u.Steps)
	var carry anyvec.Vector
	for t := len(u.Steps) - 1; t >= 0; t-- {
		stepUp := up.Slice(t*block, (t+1)*block)
		if carry != nil {
			stepUp.Add(carry)
		}
		prev := u.Prevs[t]
		g[prev] = c.MakeVector(block)
		u.Steps[t].Propagate(stepUp, g)
		carry = g[prev]
		delete(g, prev)
	}

	if g.Intersects(u.Init.Vars()) {
		u.Init.Propagate(carry, g)
	}
	if propIn {
		down := g[u.Inputs]
		delete(g, u.Inputs)
		u.In.Propagate(down, g)
	}
}

// A Trajectory is the recorded output of an unrolled
// recurrent layer: the state of every sequence after
// every timestep.
//
// Every tensor extracted from a Trajectory back-propagates
// through the whole unrolled graph, so callers should
// extract only what they use.
type Trajectory struct {
	res       anydiff.Res
	batch     int
	length    int
	units     int
	numStates int
	outState  int
}

// Len returns the number of timesteps.
func (t *Trajectory) Len() int {
	return t.length
}

// Res returns the packed history, ordered by timestep,
// then batch, then state.
func (t *Trajectory) Res() anydiff.Res {
	return t.res
}

// Hidden returns the (batch, units) output state after a
// timestep.
func (t *Trajectory) Hidden(step int) *anylm.Tensor {
	return t.State(step, t.outState)
}

// State returns the idx-th packed state after a timestep.
// For an LSTM, index 0 is the cell and 1 is the hidden
// state.
func (t *Trajectory) State(step, idx int) *anylm.Tensor {
	if step < 0 || step >= t.length {
		panic(fmt.Sprintf("timestep %d out of range [0, %d)", step, t.length))
	}
	if idx < 0 || idx >= t.numStates {
		panic(fmt.Sprintf("state index %d out of range [0, %d)", idx, t.numStates))
	}
	width := t.numStates * t.units
	block := t.batch * width
	packed := anylm.NewTensor(anydiff.Slice(t.res, step*block, (step+1)*block),
		anylm.Shape{t.batch, width})
	if t.numStates == 1 {
		return packed
	}
	return anylm.SliceAxis(packed, 1, idx*t.units, (idx+1)*t.units)
}

// Last returns the output state after the final timestep.
// Sequences that ended early hold the state of their
// last valid timestep.
func (t *Trajectory) Last() *anylm.Tensor {
	return t.Hidden(t.length - 1)
}

// Sequence stacks the output states of every timestep
// into a (batch, time, units) tensor.
func (t *Trajectory) Sequence() *anylm.Tensor {
	width := t.numStates * t.units
	whole := anylm.NewTensor(t.res, anylm.Shape{t.length * t.batch * width})
	table := make([]int, 0, t.batch*t.length*t.units)
	for b := 0; b < t.batch; b++ {
		for step := 0; step < t.length; step++ {
			offset := (step*t.batch+b)*width + t.outState*t.units
			for k := 0; k < t.units; k++ {
				table = append(table, offset+k)
			}
		}
	}
	return anylm.Gather(whole, table, anylm.Shape{t.batch, t.length, t.units})
}
