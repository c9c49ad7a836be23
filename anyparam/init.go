package anyparam

import (
	"fmt"
	"math"
	"math/rand"

	"github.com/unixpickle/anyvec"
)

// An Initializer fills a freshly created parameter.
type Initializer interface {
	Init(v anyvec.Vector, r *rand.Rand)
}

// Const fills a parameter with a constant.
type Const float64

// Init sets every component to c.
func (c Const) Init(v anyvec.Vector, r *rand.Rand) {
	fill(v, float64(c))
}

// Uniform samples components uniformly from [Min, Max).
type Uniform struct {
	Min float64
	Max float64
}

// Init fills v with uniform samples.
func (u Uniform) Init(v anyvec.Vector, r *rand.Rand) {
	if u.Max < u.Min {
		panic(fmt.Sprintf("invalid uniform range [%f, %f)", u.Min, u.Max))
	}
	anyvec.Rand(v, anyvec.Uniform, r)
	v.Scale(v.Creator().MakeNumeric(u.Max - u.Min))
	shift(v, u.Min)
}

// Normal samples components from a Gaussian.
type Normal struct {
	Mean   float64
	Stddev float64
}

// Init fills v with Gaussian samples.
func (n Normal) Init(v anyvec.Vector, r *rand.Rand) {
	anyvec.Rand(v, anyvec.Normal, r)
	v.Scale(v.Creator().MakeNumeric(n.Stddev))
	shift(v, n.Mean)
}

// GlorotUniform samples from the uniform range
// ±sqrt(6/(In+Out)) suggested by Glorot and Bengio.
type GlorotUniform struct {
	In  int
	Out int
}

// Init fills v with uniform samples.
func (g GlorotUniform) Init(v anyvec.Vector, r *rand.Rand) {
	lim := math.Sqrt(6 / float64(g.In+g.Out))
	Uniform{Min: -lim, Max: lim}.Init(v, r)
}

func fill(v anyvec.Vector, value float64) {
	v.Scale(v.Creator().MakeNumeric(0))
	shift(v, value)
}

func shift(v anyvec.Vector, value float64) {
	if value == 0 {
		return
	}
	data := make([]float64, v.Len())
	for i := range data {
		data[i] = value
	}
	c := v.Creator()
	v.Add(c.MakeVectorData(c.MakeNumericList(data)))
}
