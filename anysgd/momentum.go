package anysgd

import (
	"github.com/unixpickle/anydiff"
	"github.com/unixpickle/essentials"
)

// Momentum implements SGD with momentum.
//
// The transformed gradient v is computed as
//
//     v := momentum * v + grad
type Momentum struct {
	Momentum float64

	// Params fixes the order of the variables for binary
	// marshalling.
	// It is only needed by MarshalBinary and
	// UnmarshalBinary.
	Params []*anydiff.Var

	rolling anydiff.Grad
}

// Transform transforms the gradient using momentum.
//
// This is not thread-safe.
func (m *Momentum) Transform(g anydiff.Grad) anydiff.Grad {
	if m.rolling == nil {
		m.rolling = copyGrad(g)
		return g
	}
	for v, x := range m.rolling {
		x.Scale(x.Creator().MakeNumeric(m.Momentum))
		x.Add(g[v])
		g[v].Set(x)
	}
	return g
}

// MarshalBinary encodes the rolling average.
func (m *Momentum) MarshalBinary() ([]byte, error) {
	data, err := marshalState(m.Params, []float64{m.Momentum}, m.rolling)
	if err != nil {
		return nil, essentials.AddCtx("marshal Momentum", err)
	}
	return data, nil
}

// UnmarshalBinary restores the state written by
// MarshalBinary.
func (m *Momentum) UnmarshalBinary(data []byte) error {
	scalars, grads, err := unmarshalState(m.Params, data, 1, 1)
	if err != nil {
		return essentials.AddCtx("unmarshal Momentum", err)
	}
	m.Momentum = scalars[0]
	m.rolling = grads[0]
	return nil
}
