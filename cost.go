package anylm

import (
	"fmt"
	"math"

	"github.com/unixpickle/anydiff"
)

// MaskedCrossEntropy computes the language-modeling loss
// of a batch.
//
// logits has shape (B, L, V).
// targets holds B sequences of L token IDs.
// mask holds B*L values, e.g. a (B, L, 1) tensor, with 1
// for real tokens and 0 for padding.
//
// The cross-entropy of each position is weighted by the
// mask, summed over time, and divided by the number of
// unmasked positions in that sequence.
// The result is the mean over the batch, as a length-1
// result.
// Sequences that are entirely masked contribute zero.
// The mask is treated as a constant.
func MaskedCrossEntropy(logits *Tensor, targets [][]int, mask *Tensor) anydiff.Res {
	if logits.Rank() != 3 {
		panic(fmt.Sprintf("logits should be (batch, time, vocab) but got %v", logits.Shape))
	}
	batch, length, vocab := logits.Dim(0), logits.Dim(1), logits.Dim(2)
	if len(targets) != batch {
		panic(fmt.Sprintf("expected %d target sequences but got %d", batch, len(targets)))
	}
	if mask.Shape.Size() != batch*length {
		panic(fmt.Sprintf("mask %v does not match logits %v", mask.Shape, logits.Shape))
	}

	table := make([]int, 0, batch*length)
	for b, seq := range targets {
		if len(seq) != length {
			panic(fmt.Sprintf("target sequence %d has length %d but expected %d",
				b, len(seq), length))
		}
		for t, id := range seq {
			if id < 0 || id >= vocab {
				panic(fmt.Sprintf("target %d out of range for vocabulary of %d", id, vocab))
			}
			table = append(table, (b*length+t)*vocab+id)
		}
	}

	logProbs := LogSoftmax.Apply(logits)
	picked := Gather(logProbs, table, Shape{batch * length})

	maskVals := mask.Floats()
	weights := make([]float64, batch)
	for b := range weights {
		var count float64
		for _, m := range maskVals[b*length : (b+1)*length] {
			count += m
		}
		if count > 0 {
			weights[b] = -1 / (count * float64(batch))
		}
	}

	c := logits.Creator()
	masked := anydiff.Mul(picked.Res, anydiff.NewConst(mask.Output().Copy()))
	perSeq := anydiff.SumCols(&anydiff.Matrix{
		Data: masked,
		Rows: batch,
		Cols: length,
	})
	weighted := anydiff.Mul(perSeq, anydiff.NewConst(c.MakeVectorData(c.MakeNumericList(weights))))
	return anydiff.Sum(weighted)
}

// Perplexity converts a mean cross-entropy loss (in nats)
// into a perplexity.
func Perplexity(loss float64) float64 {
	return math.Exp(loss)
}

// L2Penalty computes coeff/2 times the sum of the squared
// components of params.
// The result is a length-1 vector.
func L2Penalty(params []*anydiff.Var, coeff float64) anydiff.Res {
	if len(params) == 0 {
		panic("no parameters to penalize")
	}
	c := params[0].Vector.Creator()
	var sum anydiff.Res
	sum = anydiff.NewConst(c.MakeVector(1))
	for _, p := range params {
		sum = anydiff.Add(sum, anydiff.Sum(anydiff.Square(p)))
	}
	return anydiff.Scale(sum, c.MakeNumeric(coeff/2))
}
