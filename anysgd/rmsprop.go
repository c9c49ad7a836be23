package anysgd

import (
	"github.com/unixpickle/anydiff"
	"github.com/unixpickle/anyvec"
	"github.com/unixpickle/essentials"
)

const (
	rmspropDefaultDecayRate = 0.9
	rmspropDefaultDamping   = 1e-8
)

// RMSProp implements the RMSProp regularizer; see:
// http://www.cs.toronto.edu/~tijmen/csc321/slides/lecture_slides_lec6.pdf.
type RMSProp struct {
	// The decay rate for the running average.
	// If it is 0, a default of 0.9 is used.
	DecayRate float64

	// Damping is used to prevent divisions by zero.
	// This should be very small.
	// If it is 0, a default is used.
	Damping float64

	// Params fixes the order of the variables for binary
	// marshalling.
	Params []*anydiff.Var

	moment anydiff.Grad
}

// Transform transforms the gradient using RMSProp.
//
// This is not thread-safe.
func (r *RMSProp) Transform(realGrad anydiff.Grad) anydiff.Grad {
	if r.moment == nil {
		r.moment = anydiff.Grad{}
		for v, grad := range realGrad {
			sq := grad.Copy()
			anyvec.Pow(sq, sq.Creator().MakeNumeric(2))
			r.moment[v] = sq
		}
	} else {
		decay := valueOrDefault(r.DecayRate, rmspropDefaultDecayRate)
		for v, grad := range realGrad {
			sq := grad.Copy()
			anyvec.Pow(sq, sq.Creator().MakeNumeric(2))
			sq.Sub(r.moment[v])
			sq.Scale(sq.Creator().MakeNumeric(1 - decay))
			r.moment[v].Add(sq)
		}
	}
	damping := valueOrDefault(r.Damping, rmspropDefaultDamping)
	for v, grad := range realGrad {
		div := r.moment[v].Copy()
		addScalar(div, damping)
		anyvec.Pow(div, div.Creator().MakeNumeric(-0.5))
		grad.Mul(div)
	}
	return realGrad
}

// MarshalBinary encodes the running average.
func (r *RMSProp) MarshalBinary() ([]byte, error) {
	data, err := marshalState(r.Params, nil, r.moment)
	if err != nil {
		return nil, essentials.AddCtx("marshal RMSProp", err)
	}
	return data, nil
}

// UnmarshalBinary restores the state written by
// MarshalBinary.
func (r *RMSProp) UnmarshalBinary(data []byte) error {
	_, grads, err := unmarshalState(r.Params, data, 0, 1)
	if err != nil {
		return essentials.AddCtx("unmarshal RMSProp", err)
	}
	r.moment = grads[0]
	return nil
}
