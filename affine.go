package anylm

import (
	"fmt"

	"github.com/satopirka/anylm/anyparam"
	"github.com/unixpickle/anydiff"
)

// Affine applies a learned affine transformation to the
// last axis of in, producing out features per row.
//
// The weight matrix W (out rows by in columns, Glorot
// initialized) and the bias vector b (zero initialized)
// live in the "affine" sub-scope of s.
// They are created on the first call and shared by every
// later call with the same scope.
//
// If fix is true, the parameters are marked as
// non-trainable.
func Affine(s *anyparam.Scope, in *Tensor, out int, fix bool) *Tensor {
	if out <= 0 {
		panic(fmt.Sprintf("invalid affine output size: %d", out))
	}
	inCount := in.Dim(-1)
	scope := s.Sub("affine")
	if fix {
		scope.Fix()
	}
	weights := scope.Param("W", inCount*out, anyparam.GlorotUniform{In: inCount, Out: out})
	biases := scope.Param("b", out, nil)
	return applyAffine(in, weights, biases, out)
}

func applyAffine(in *Tensor, weights, biases *anydiff.Var, out int) *Tensor {
	inCount := in.Dim(-1)
	rows := in.Shape.Size() / inCount
	weightMat := &anydiff.Matrix{
		Data: weights,
		Rows: out,
		Cols: inCount,
	}
	inMat := &anydiff.Matrix{
		Data: in.Res,
		Rows: rows,
		Cols: inCount,
	}
	weighted := anydiff.MatMul(false, true, inMat, weightMat)
	return NewTensor(anydiff.AddRepeated(weighted.Data, biases), in.Shape.With(-1, out))
}
