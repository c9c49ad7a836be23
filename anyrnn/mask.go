package anyrnn

import (
	"fmt"

	"github.com/satopirka/anylm"
)

// NormalizeMask converts a mask for a (B, L, ...) input
// into a (B, L, 1) tensor.
//
// A nil mask becomes all ones.
// Masks of shape (B, L) or (B, L, 1) are accepted; any
// other shape panics.
func NormalizeMask(in, mask *anylm.Tensor) *anylm.Tensor {
	batch, length := in.Dim(0), in.Dim(1)
	shape := anylm.Shape{batch, length, 1}
	if mask == nil {
		return anylm.Constant(in.Creator(), shape, 1)
	}
	switch {
	case mask.Shape.Equal(anylm.Shape{batch, length}), mask.Shape.Equal(shape):
		return anylm.Reshape(mask, shape)
	default:
		panic(fmt.Sprintf("mask %v does not match input %v", mask.Shape, in.Shape))
	}
}

// LengthMask creates a (B, L, 1) mask from sequence
// lengths: sequence b is valid for its first lengths[b]
// timesteps.
func LengthMask(in *anylm.Tensor, lengths []int) *anylm.Tensor {
	batch, length := in.Dim(0), in.Dim(1)
	if len(lengths) != batch {
		panic(fmt.Sprintf("expected %d lengths but got %d", batch, len(lengths)))
	}
	data := make([]float64, batch*length)
	for b, n := range lengths {
		for t := 0; t < n && t < length; t++ {
			data[b*length+t] = 1
		}
	}
	return anylm.FromData(in.Creator(), anylm.Shape{batch, length, 1}, data)
}
