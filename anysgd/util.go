package anysgd

import (
	"math"
	"math/rand"

	"github.com/unixpickle/anydiff"
	"github.com/unixpickle/anyvec"
)

// Shuffle shuffles a list of samples.
// If the list implements PostShuffler, then PostShuffle
// is called after the shuffle completes.
func Shuffle(s SampleList) {
	for i := 0; i < s.Len(); i++ {
		j := i + rand.Intn(s.Len()-i)
		s.Swap(i, j)
	}
	if p, ok := s.(PostShuffler); ok {
		p.PostShuffle()
	}
}

// A ConstRater is a Rater which always returns the same
// constant learning rate.
type ConstRater float64

// Rate returns float64(c).
func (c ConstRater) Rate(epoch float64) float64 {
	return float64(c)
}

// An ExpRater decays the learning rate by Decay for every
// completed epoch.
type ExpRater struct {
	Initial float64
	Decay   float64
}

// Rate returns Initial * Decay^floor(epoch).
func (e ExpRater) Rate(epoch float64) float64 {
	return e.Initial * math.Pow(e.Decay, math.Floor(epoch))
}

func copyGrad(g anydiff.Grad) anydiff.Grad {
	res := anydiff.Grad{}
	for v, x := range g {
		res[v] = x.Copy()
	}
	return res
}

func valueOrDefault(value, def float64) float64 {
	if value == 0 {
		return def
	}
	return value
}

func addScalar(v anyvec.Vector, s float64) {
	data := make([]float64, v.Len())
	for i := range data {
		data[i] = s
	}
	c := v.Creator()
	v.Add(c.MakeVectorData(c.MakeNumericList(data)))
}
