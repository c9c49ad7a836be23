package anylm

import (
	"github.com/satopirka/anylm/anyparam"
	"github.com/unixpickle/anydiff"
)

// FC is a fully-connected layer whose parameters live in
// a scope.
// It is applied over the last axis, so a (B, L, E) input
// is transformed timestep by timestep.
type FC struct {
	Scope    *anyparam.Scope
	OutCount int

	FixParameters bool
}

// Apply applies the fully-connected layer.
func (f *FC) Apply(in *Tensor) *Tensor {
	return Affine(f.Scope, in, f.OutCount, f.FixParameters)
}

// Parameters returns the trainable weights and biases.
// It is empty until the layer has been applied once.
func (f *FC) Parameters() []*anydiff.Var {
	return f.Scope.Sub("affine").Parameters()
}
