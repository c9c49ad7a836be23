package anyrnn

import (
	"github.com/satopirka/anylm"
	"github.com/satopirka/anylm/anyparam"
	"github.com/unixpickle/anydiff"
)

// LSTMCell computes one step of a long short-term memory
// cell.
//
// A single affine map (in the "affine" sub-scope of s)
// takes concat(x, h) to 4*units pre-activations, split in
// the order [a, input gate, forget gate, output gate]:
//
//     cell   = sigmoid(i)*tanh(a) + sigmoid(f)*c
//     hidden = sigmoid(o)*tanh(cell)
//
// x has shape (B, E); c and h have shape (B, units).
func LSTMCell(s *anyparam.Scope, x, c, h *anylm.Tensor, fix bool) (cell, hidden *anylm.Tensor) {
	checkCellState(c, h, x.Dim(0))
	units := c.Dim(1)
	packed := anylm.Concat(1, c, h)
	res := anydiff.Pool(packed.Res, func(state anydiff.Res) anydiff.Res {
		return lstmStep(s, x, anylm.NewTensor(state, packed.Shape), units, fix).Res
	})
	next := anylm.NewTensor(res, packed.Shape)
	return anylm.SliceAxis(next, 1, 0, units), anylm.SliceAxis(next, 1, units, 2*units)
}

// lstmStep advances a packed (B, 2*units) [cell, hidden]
// state by one timestep.
func lstmStep(s *anyparam.Scope, x, state *anylm.Tensor, units int, fix bool) *anylm.Tensor {
	c := anylm.SliceAxis(state, 1, 0, units)
	h := anylm.SliceAxis(state, 1, units, 2*units)
	pre := anylm.Affine(s, anylm.Concat(1, x, h), 4*units, fix)
	res := anydiff.Pool(pre.Res, func(preRes anydiff.Res) anydiff.Res {
		pre := anylm.NewTensor(preRes, pre.Shape)
		gate := func(i int) *anylm.Tensor {
			return anylm.SliceAxis(pre, 1, i*units, (i+1)*units)
		}
		a := anylm.Tanh.Apply(gate(0))
		input := anylm.Sigmoid.Apply(gate(1))
		forget := anylm.Sigmoid.Apply(gate(2))
		output := anylm.Sigmoid.Apply(gate(3))
		cell := anylm.Add(anylm.Mul(input, a), anylm.Mul(forget, c))
		return anydiff.Pool(cell.Res, func(cellRes anydiff.Res) anydiff.Res {
			cell := anylm.NewTensor(cellRes, cell.Shape)
			hidden := anylm.Mul(output, anylm.Tanh.Apply(cell))
			return anylm.Concat(1, cell, hidden).Res
		})
	})
	return anylm.NewTensor(res, state.Shape)
}

// LSTM is a long short-term memory layer.
// The parameters live in the "lstm" sub-scope of the
// scope passed to Apply.
type LSTM struct {
	Units int

	// ReturnSequences selects the full (B, L, Units)
	// hidden history instead of the final (B, Units)
	// hidden state.
	ReturnSequences bool

	// ReturnState additionally reports the final cell and
	// hidden states.
	ReturnState bool

	FixParameters bool
}

// An LSTMResult is the output of an LSTM layer.
// Cell and Hidden are only set when the layer has
// ReturnState.
type LSTMResult struct {
	Output *anylm.Tensor
	Cell   *anylm.Tensor
	Hidden *anylm.Tensor
}

// Apply runs the layer over a (B, L, E) input.
//
// The mask, if non-nil, has shape (B, L) or (B, L, 1).
// If init is nil, the cell and hidden states start at
// zero; otherwise init must hold two (B, Units) tensors.
// An invalid init is reported before any computation.
func (l *LSTM) Apply(s *anyparam.Scope, in, mask *anylm.Tensor, init *State) (*LSTMResult, error) {
	traj, err := l.Unroll(s, in, mask, init)
	if err != nil {
		return nil, err
	}
	res := &LSTMResult{}
	if l.ReturnSequences {
		res.Output = traj.Sequence()
	} else {
		res.Output = traj.Last()
	}
	if l.ReturnState {
		res.Cell = traj.State(traj.Len()-1, 0)
		res.Hidden = traj.State(traj.Len()-1, 1)
	}
	return res, nil
}

// Unroll runs the layer and returns the cell and hidden
// states after every timestep.
func (l *LSTM) Unroll(s *anyparam.Scope, in, mask *anylm.Tensor, init *State) (*Trajectory, error) {
	checkInput(in, l.Units)
	batch := in.Dim(0)
	if err := init.validate(batch, l.Units); err != nil {
		return nil, err
	}
	var packed *anylm.Tensor
	if init == nil {
		packed = anylm.Zeros(in.Creator(), anylm.Shape{batch, 2 * l.Units})
	} else {
		packed = anylm.Concat(1, init.Cell, init.Hidden)
	}
	scope := s.Sub("lstm")
	traj := unroll(in, mask, packed, 2, 1, l.Units, func(x, state *anylm.Tensor) *anylm.Tensor {
		return lstmStep(scope, x, state, l.Units, l.FixParameters)
	})
	return traj, nil
}

func checkCellState(c, h *anylm.Tensor, batch int) {
	state := &State{Cell: c, Hidden: h}
	if c == nil || h == nil {
		panic(ErrInitialStateArity)
	}
	if err := state.validate(batch, c.Shape[len(c.Shape)-1]); err != nil {
		panic(err)
	}
}
