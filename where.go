package anylm

import (
	"fmt"

	"github.com/unixpickle/anydiff"
)

// Where blends x and y row by row: wherever cond is 1,
// the row of x is selected, and wherever it is 0, the row
// of y is selected.
//
// The leading dimension of x and y is the batch size B.
// cond must hold exactly B values, e.g. a (B, 1) mask; it
// is broadcast across every non-batch component of x.
// Fractional conditions interpolate linearly.
//
// If x is rank 1, each component is its own row.
func Where(cond, x, y *Tensor) *Tensor {
	if !x.Shape.Equal(y.Shape) {
		panic(fmt.Sprintf("where: mismatched shapes %v and %v", x.Shape, y.Shape))
	}
	batch := x.Dim(0)
	if cond.Shape.Size() != batch {
		panic(fmt.Sprintf("where: condition %v does not broadcast to batch %d",
			cond.Shape, batch))
	}
	if x.Rank() == 1 {
		cond = Reshape(cond, Shape{batch})
	} else {
		cond = ExpandRows(Reshape(cond, Shape{batch, 1}), x.Shape)
	}
	res := anydiff.Pool(cond.Res, func(mask anydiff.Res) anydiff.Res {
		return anydiff.Add(
			anydiff.Mul(mask, x.Res),
			anydiff.Mul(anydiff.Complement(mask), y.Res),
		)
	})
	return NewTensor(res, x.Shape)
}
