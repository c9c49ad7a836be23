// Package anys2s trains token sequence models on batches
// of padded sequences.
package anys2s

import (
	"context"
	"errors"
	"fmt"

	"github.com/satopirka/anylm"
	"github.com/satopirka/anylm/anysgd"
	"github.com/unixpickle/anydiff"
	"github.com/unixpickle/anyvec"
	"github.com/unixpickle/essentials"
)

// PadID is the token used to pad sequences in a Batch.
const PadID = 0

// A Batch stores input and output sequences padded to a
// common length.
type Batch struct {
	Inputs  [][]int
	Outputs [][]int

	// Lengths stores the unpadded length of each sequence.
	Lengths []int
}

// Size returns the number of sequences.
func (b *Batch) Size() int {
	return len(b.Inputs)
}

// SeqLen returns the padded sequence length.
func (b *Batch) SeqLen() int {
	return len(b.Inputs[0])
}

// Tokens returns the number of unpadded positions.
func (b *Batch) Tokens() int {
	var res int
	for _, n := range b.Lengths {
		res += n
	}
	return res
}

// Mask creates a (B, L, 1) mask with ones at unpadded
// positions.
func (b *Batch) Mask(c anyvec.Creator) *anylm.Tensor {
	length := b.SeqLen()
	data := make([]float64, b.Size()*length)
	for i, n := range b.Lengths {
		for t := 0; t < n; t++ {
			data[i*length+t] = 1
		}
	}
	return anylm.FromData(c, anylm.Shape{b.Size(), length, 1}, data)
}

// NewBatch pads samples into a Batch.
func NewBatch(samples []*Sample) (*Batch, error) {
	if len(samples) == 0 {
		return nil, errors.New("empty batch")
	}
	var maxLen int
	for i, s := range samples {
		if len(s.Input) != len(s.Output) {
			return nil, fmt.Errorf("sample %d: input length %d does not match output length %d",
				i, len(s.Input), len(s.Output))
		}
		if len(s.Input) > maxLen {
			maxLen = len(s.Input)
		}
	}
	if maxLen == 0 {
		return nil, errors.New("all sequences are empty")
	}
	res := &Batch{
		Inputs:  make([][]int, len(samples)),
		Outputs: make([][]int, len(samples)),
		Lengths: make([]int, len(samples)),
	}
	for i, s := range samples {
		res.Inputs[i] = pad(s.Input, maxLen)
		res.Outputs[i] = pad(s.Output, maxLen)
		res.Lengths[i] = len(s.Input)
	}
	return res, nil
}

// A Trainer creates batches, computes gradients, and adds
// up costs for a token sequence model.
type Trainer struct {
	// Func maps padded inputs of shape (B, L) and their
	// (B, L, 1) mask to logits of shape (B, L, V).
	// The train flag enables training-only behavior, such
	// as dropout.
	Func func(inputs [][]int, mask *anylm.Tensor, train bool) *anylm.Tensor

	// Creator is used to build masks.
	Creator anyvec.Creator

	Params []*anydiff.Var

	// WeightDecay, if non-zero, adds an L2 penalty on
	// Params to the training cost.
	WeightDecay float64

	// After every gradient computation, LastCost is set to
	// the masked cross-entropy of the batch, not including
	// weight decay.
	LastCost float64
}

// Fetch produces a *Batch for the subset of samples.
// The s argument must implement SampleList.
func (t *Trainer) Fetch(s anysgd.SampleList) (anysgd.Batch, error) {
	l := s.(SampleList)
	samples := make([]*Sample, l.Len())
	for i := range samples {
		sample, err := l.GetSample(i)
		if err != nil {
			return nil, essentials.AddCtx("fetch batch", err)
		}
		samples[i] = sample
	}
	return NewBatch(samples)
}

// TotalCost computes the mean masked cross-entropy of the
// batch.
func (t *Trainer) TotalCost(b *Batch) anydiff.Res {
	return t.cost(b, false)
}

func (t *Trainer) cost(b *Batch, train bool) anydiff.Res {
	mask := b.Mask(t.Creator)
	logits := t.Func(b.Inputs, mask, train)
	return anylm.MaskedCrossEntropy(logits, b.Outputs, mask)
}

// Gradient computes the gradient for the batch's cost.
// It also sets t.LastCost to the numerical value of the
// cost.
//
// The b argument must be a *Batch.
func (t *Trainer) Gradient(b anysgd.Batch) anydiff.Grad {
	res := anydiff.NewGrad(t.Params...)

	cost := t.cost(b.(*Batch), true)
	t.LastCost = anylm.NumericFloat(anyvec.Sum(cost.Output()))

	if t.WeightDecay != 0 && len(t.Params) > 0 {
		cost = anydiff.Add(cost, anylm.L2Penalty(t.Params, t.WeightDecay))
	}

	c := cost.Output().Creator()
	data := c.MakeNumericList([]float64{1})
	upstream := c.MakeVectorData(data)
	cost.Propagate(upstream, res)

	return res
}

// Evaluate computes the mean cost over a list of samples
// without training, weighting every batch by its number
// of sequences.
//
// Cancellation is checked between batches.
func (t *Trainer) Evaluate(ctx context.Context, s SampleList, batchSize int) (float64, error) {
	if s.Len() == 0 {
		return 0, errors.New("cannot evaluate empty sample list")
	}
	if batchSize <= 0 {
		batchSize = s.Len()
	}
	var total float64
	for i := 0; i < s.Len(); i += batchSize {
		if err := ctx.Err(); err != nil {
			return 0, err
		}
		end := i + batchSize
		if end > s.Len() {
			end = s.Len()
		}
		batch, err := t.Fetch(s.Slice(i, end))
		if err != nil {
			return 0, err
		}
		cost := t.TotalCost(batch.(*Batch))
		total += anylm.NumericFloat(anyvec.Sum(cost.Output())) * float64(end-i)
	}
	return total / float64(s.Len()), nil
}

func pad(seq []int, length int) []int {
	res := make([]int, length)
	copy(res, seq)
	for i := len(seq); i < length; i++ {
		res[i] = PadID
	}
	return res
}
