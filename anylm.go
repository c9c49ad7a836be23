// Package anylm provides shaped, differentiable tensors
// and the layers used to build recurrent language models.
//
// Tensors wrap anydiff results with a row-major shape.
// Learnable layers keep their parameters in an
// anyparam.Scope, so applying the same layer twice shares
// its weights.
// Sub-packages implement recurrent layers, training and
// corpus handling.
package anylm

import "github.com/unixpickle/anydiff"

// A Parameterizer is anything with learnable variables.
//
// The parameters of a Parameterizer must be in the same
// order every time Parameters() is called.
type Parameterizer interface {
	Parameters() []*anydiff.Var
}

// A Layer is a composable computation unit for use in a
// neural network.
// In a feed-forward network, each layer's output is fed
// into the next layers input.
//
// A Layer's Apply method is inherently batched: the
// leading axis of a tensor is the batch.
type Layer interface {
	Apply(in *Tensor) *Tensor
}

// A Net evaluates a list of layers, one after another.
type Net []Layer

// Apply applies the network to a batch.
// If the network contains no layers, the input is
// returned as output.
func (n Net) Apply(in *Tensor) *Tensor {
	for _, l := range n {
		in = l.Apply(in)
	}
	return in
}

// Parameters returns the parameters of the network.
//
// Every layer which implements Parameterizer will have
// its parameters added to the slice.
// Parameters are ordered from the first layer onwards.
func (n Net) Parameters() []*anydiff.Var {
	var res []*anydiff.Var
	for _, x := range n {
		if p, ok := x.(Parameterizer); ok {
			res = append(res, p.Parameters()...)
		}
	}
	return res
}
