package anylm

import (
	"math/rand"

	"github.com/unixpickle/anydiff"
	"github.com/unixpickle/anyvec"
)

// A Dropout layer applies dropout regularization.
// When disabled, a dropout layer scales its input to
// compute the "expected output".
type Dropout struct {
	Enabled bool

	// The probability of keeping any given input.
	KeepProb float64

	// Rand is the source of the dropout mask.
	// If nil, the global source is used.
	Rand *rand.Rand
}

// Apply applies the layer.
func (d *Dropout) Apply(in *Tensor) *Tensor {
	c := in.Creator()
	if !d.Enabled {
		return Scale(in, d.KeepProb)
	}
	mask := c.MakeVector(in.Shape.Size())
	anyvec.Rand(mask, anyvec.Uniform, d.Rand)
	anyvec.LessThan(mask, c.MakeNumeric(d.KeepProb))
	return NewTensor(anydiff.Mul(in.Res, anydiff.NewConst(mask)), in.Shape)
}
