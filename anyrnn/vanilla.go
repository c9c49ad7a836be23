package anyrnn

import (
	"github.com/satopirka/anylm"
	"github.com/satopirka/anylm/anyparam"
)

// SimpleRNN is an Elman recurrent layer:
//
//     h[t] = tanh(W*concat(x[t], h[t-1]) + b)
//
// starting from h = 0.
// The parameters live in the "simple_rnn" sub-scope of
// the scope passed to Apply.
type SimpleRNN struct {
	Units int

	// ReturnSequences selects the full (B, L, Units)
	// history instead of the final (B, Units) state.
	ReturnSequences bool

	FixParameters bool
}

// Apply runs the layer over a (B, L, E) input.
// The mask, if non-nil, has shape (B, L) or (B, L, 1); a
// nil mask means every timestep is valid.
func (r *SimpleRNN) Apply(s *anyparam.Scope, in, mask *anylm.Tensor) *anylm.Tensor {
	traj := r.Unroll(s, in, mask)
	if r.ReturnSequences {
		return traj.Sequence()
	}
	return traj.Last()
}

// Unroll runs the layer and returns the hidden state
// after every timestep.
func (r *SimpleRNN) Unroll(s *anyparam.Scope, in, mask *anylm.Tensor) *Trajectory {
	checkInput(in, r.Units)
	scope := s.Sub("simple_rnn")
	init := anylm.Zeros(in.Creator(), anylm.Shape{in.Dim(0), r.Units})
	return unroll(in, mask, init, 1, 0, r.Units, func(x, h *anylm.Tensor) *anylm.Tensor {
		joined := anylm.Concat(1, x, h)
		return anylm.Tanh.Apply(anylm.Affine(scope, joined, r.Units, r.FixParameters))
	})
}
