package anylm

import (
	"github.com/satopirka/anylm/internal/logger"
	"github.com/unixpickle/anyvec"
)

// Debug is a layer which logs statistics about its
// inputs.
// Besides logging, the Debug layer does nothing to
// interfere with the flow of values in a network.
//
// Statistics are computed per feature, i.e. over every
// row of the last axis.
type Debug struct {
	// Log receives the statistics at debug level.
	// If nil, logger.Default() is used.
	Log logger.Logger

	ID            string
	PrintRaw      bool
	PrintMean     bool
	PrintVariance bool
}

// Apply logs information about its input.
// The input is returned, untouched.
func (d *Debug) Apply(in *Tensor) *Tensor {
	log := d.Log
	if log == nil {
		log = logger.Default()
	}
	log = log.With("layer", "debug", "id", d.ID, "shape", in.Shape.String())
	if d.PrintRaw {
		log.Debug("values", "data", in.Floats())
	}
	cols := in.Dim(-1)
	n := in.Shape.Size() / cols
	if d.PrintMean || d.PrintVariance {
		mean := anyvec.SumRows(in.Output(), cols)
		normalizer := mean.Creator().MakeNumeric(1 / float64(n))
		mean.Scale(normalizer)
		if d.PrintMean {
			log.Debug("mean", "data", VectorFloats(mean))
		}
		if d.PrintVariance {
			two := mean.Creator().MakeNumeric(2)
			squared := in.Output().Copy()
			anyvec.Pow(squared, two)
			variance := anyvec.SumRows(squared, cols)
			variance.Scale(normalizer)
			anyvec.Pow(mean, two)
			variance.Sub(mean)
			log.Debug("variance", "data", VectorFloats(variance))
		}
	}
	return in
}
