package anysgd

import (
	"errors"
	"fmt"

	"github.com/unixpickle/anydiff"
	"github.com/unixpickle/anyvec"
	"github.com/unixpickle/anyvec/anyvecsave"
	"github.com/unixpickle/serializer"
)

var errVarsGradMismatch = errors.New("variable list does not match gradients")

// marshalState encodes scalar bookkeeping followed by a
// list of gradients over vars, any of which may be nil.
func marshalState(vars []*anydiff.Var, scalars []float64, grads ...anydiff.Grad) ([]byte, error) {
	var slice []serializer.Serializer
	for _, s := range scalars {
		slice = append(slice, serializer.Float64(s))
	}
	for _, grad := range grads {
		if grad == nil {
			slice = append(slice, serializer.Int(0))
			continue
		}
		if len(vars) != len(grad) {
			return nil, errVarsGradMismatch
		}
		slice = append(slice, serializer.Int(1))
		for _, v := range vars {
			vec, ok := grad[v]
			if !ok {
				return nil, errVarsGradMismatch
			}
			slice = append(slice, &anyvecsave.S{Vector: vec})
		}
	}
	return serializer.SerializeSlice(slice)
}

// unmarshalState decodes the output of marshalState.
func unmarshalState(vars []*anydiff.Var, data []byte, numScalars,
	numGrads int) ([]float64, []anydiff.Grad, error) {
	slice, err := serializer.DeserializeSlice(data)
	if err != nil {
		return nil, nil, err
	}
	next := func() (interface{}, error) {
		if len(slice) == 0 {
			return nil, errors.New("truncated optimizer state")
		}
		x := slice[0]
		slice = slice[1:]
		return x, nil
	}

	scalars := make([]float64, numScalars)
	for i := range scalars {
		x, err := next()
		if err != nil {
			return nil, nil, err
		}
		f, ok := x.(serializer.Float64)
		if !ok {
			return nil, nil, fmt.Errorf("expected scalar but got %T", x)
		}
		scalars[i] = float64(f)
	}

	grads := make([]anydiff.Grad, numGrads)
	for i := range grads {
		x, err := next()
		if err != nil {
			return nil, nil, err
		}
		if flag, ok := x.(serializer.Int); !ok {
			return nil, nil, fmt.Errorf("expected gradient flag but got %T", x)
		} else if flag == 0 {
			continue
		}
		grad := anydiff.Grad{}
		for _, v := range vars {
			x, err := next()
			if err != nil {
				return nil, nil, err
			}
			saved, ok := x.(*anyvecsave.S)
			if !ok {
				return nil, nil, fmt.Errorf("expected vector but got %T", x)
			}
			if saved.Vector.Len() != v.Vector.Len() {
				return nil, nil, errors.New("bad vector length")
			}
			grad[v] = convertVector(v.Vector.Creator(), saved.Vector)
		}
		grads[i] = grad
	}
	if len(slice) != 0 {
		return nil, nil, errors.New("trailing optimizer state")
	}
	return scalars, grads, nil
}

func marshalGradient(vars []*anydiff.Var, grad anydiff.Grad) ([]byte, error) {
	return marshalState(vars, nil, grad)
}

func unmarshalGradient(vars []*anydiff.Var, data []byte) (anydiff.Grad, error) {
	_, grads, err := unmarshalState(vars, data, 0, 1)
	if err != nil {
		return nil, err
	}
	return grads[0], nil
}

func convertVector(c anyvec.Creator, v anyvec.Vector) anyvec.Vector {
	var data []float64
	switch d := v.Data().(type) {
	case []float32:
		data = make([]float64, len(d))
		for i, x := range d {
			data[i] = float64(x)
		}
	case []float64:
		data = d
	default:
		panic(fmt.Sprintf("unsupported numeric list: %T", d))
	}
	return c.MakeVectorData(c.MakeNumericList(data))
}
