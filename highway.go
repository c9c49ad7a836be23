package anylm

import (
	"github.com/satopirka/anylm/anyparam"
	"github.com/unixpickle/anydiff"
)

// Highway is a highway layer: a learned gate blends a
// ReLU transform of the input with the input itself.
//
//     plain = relu(affine(x))
//     gate  = sigmoid(affine(x))
//     out   = plain*gate + x*(1-gate)
//
// Both transforms keep the width of the last axis.
// Their parameters live in the "highway/plain" and
// "highway/transform" sub-scopes of Scope.
type Highway struct {
	Scope *anyparam.Scope

	FixParameters bool
}

// Apply applies the layer over the last axis of x.
func (h *Highway) Apply(x *Tensor) *Tensor {
	scope := h.Scope.Sub("highway")
	width := x.Dim(-1)
	res := anydiff.Pool(x.Res, func(in anydiff.Res) anydiff.Res {
		x := NewTensor(in, x.Shape)
		plain := ReLU.Apply(Affine(scope.Sub("plain"), x, width, h.FixParameters))
		gate := Sigmoid.Apply(Affine(scope.Sub("transform"), x, width, h.FixParameters))
		return anydiff.Pool(gate.Res, func(g anydiff.Res) anydiff.Res {
			gate := NewTensor(g, gate.Shape)
			return Add(Mul(plain, gate), Mul(x, Complement(gate))).Res
		})
	})
	return NewTensor(res, x.Shape)
}

// Parameters returns the trainable parameters of both
// transforms.
func (h *Highway) Parameters() []*anydiff.Var {
	return h.Scope.Sub("highway").Parameters()
}
