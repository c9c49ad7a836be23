// Package anysgd provides tools for Stochastic Gradient
// Descent.
// It is intended to be used for Machine Learning, but it
// can be applied to other areas as well.
package anysgd

import (
	"context"
	"errors"

	"github.com/unixpickle/anydiff"
	"github.com/unixpickle/essentials"
)

// SGD performs stochastic gradient descent.
type SGD struct {
	// Fetcher converts mini-batches of samples into
	// Batches for the Gradienter.
	Fetcher Fetcher

	// Gradienter is used to compute initial, untransformed
	// gradients for each mini-batch.
	Gradienter Gradienter

	// Transformer, if non-nil, is used to transform each
	// gradient before the step.
	Transformer Transformer

	// Samples is the list of training samples to use for
	// training.
	// It is shuffled at the start of every epoch.
	//
	// The list may not be empty.
	Samples SampleList

	// Rater determines the learning rate for each step.
	Rater Rater

	// StatusFunc, if non-nil, is called before every
	// iteration with the next mini-batch.
	StatusFunc func(b Batch)

	// EpochFunc, if non-nil, is called after every full
	// pass over Samples with the number of completed
	// epochs.
	// Returning an error stops training with that error.
	EpochFunc func(epoch int) error

	// BatchSize is the mini-batch size.
	// If it is 0, then the entire sample list is used at
	// every iteration.
	// The last mini-batch of an epoch may be smaller.
	BatchSize int

	// Epochs is the number of passes to run.
	// If it is 0, Run continues until its context is done.
	Epochs int

	// NumProcessed keeps track of the number of samples that
	// have been passed to Gradienter so far.
	// It is used to compute the epoch for Rater.
	// Most of the time, this should be initialized to 0.
	NumProcessed int
}

// Run runs SGD until the configured number of epochs is
// done or ctx is done.
//
// Cancellation is checked between mini-batches; when it
// stops training, the context's error is returned.
func (s *SGD) Run(ctx context.Context) error {
	if s.Samples.Len() == 0 {
		return errors.New("cannot run SGD with empty sample list")
	}
	for epoch := 0; s.Epochs == 0 || epoch < s.Epochs; epoch++ {
		Shuffle(s.Samples)
		for idx := 0; idx < s.Samples.Len(); {
			if err := ctx.Err(); err != nil {
				return err
			}
			batchSize := s.batchSize(s.Samples.Len() - idx)
			batch, err := s.Fetcher.Fetch(s.Samples.Slice(idx, idx+batchSize))
			if err != nil {
				return essentials.AddCtx("fetch batch", err)
			}
			idx += batchSize

			if s.StatusFunc != nil {
				s.StatusFunc(batch)
			}

			grad := s.Gradienter.Gradient(batch)
			if s.Transformer != nil {
				grad = s.Transformer.Transform(grad)
			}

			epochFrac := float64(s.NumProcessed) / float64(s.Samples.Len())
			scaleGrad(grad, -s.Rater.Rate(epochFrac))
			grad.AddToVars()

			s.NumProcessed += batchSize
		}
		if s.EpochFunc != nil {
			if err := s.EpochFunc(epoch + 1); err != nil {
				return err
			}
		}
	}
	return nil
}

func (s *SGD) batchSize(remaining int) int {
	if s.BatchSize == 0 || s.BatchSize > remaining {
		return remaining
	}
	return s.BatchSize
}

func scaleGrad(g anydiff.Grad, s float64) {
	for _, v := range g {
		g.Scale(v.Creator().MakeNumeric(s))
		return
	}
}
