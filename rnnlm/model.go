// Package rnnlm implements a word-level recurrent
// language model.
//
// The network embeds every token, masks out padding, runs
// a recurrent layer over the sequence, optionally passes
// the result through highway layers, and projects every
// timestep onto the vocabulary.
package rnnlm

import (
	"errors"
	"fmt"
	"math/rand"
	"sort"

	"github.com/satopirka/anylm"
	"github.com/satopirka/anylm/anycorpus"
	"github.com/satopirka/anylm/anyparam"
	"github.com/satopirka/anylm/anyrnn"
	"github.com/satopirka/anylm/internal/logger"
	"github.com/unixpickle/anydiff"
)

// Model is a recurrent language model whose parameters
// live in a Store.
type Model struct {
	Store  *anyparam.Store
	Config Config

	// Rand is used for dropout masks.
	// If nil, the global source is used.
	Rand *rand.Rand

	// Log, if non-nil, receives debug statistics about the
	// recurrent output on every forward pass.
	Log logger.Logger
}

// A Prediction is a candidate next token.
type Prediction struct {
	ID      int
	LogProb float64
}

// New creates a Model and initializes all of its
// parameters in the store.
func New(store *anyparam.Store, config Config) (*Model, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}
	m := &Model{Store: store, Config: config}
	x := [][]int{{anycorpus.BOSID}}
	m.Logits(x, anycorpus.Mask(store.Creator(), x), false)
	return m, nil
}

// Parameters returns the trainable parameters.
func (m *Model) Parameters() []*anydiff.Var {
	return m.Store.Parameters()
}

// Logits computes (B, L, V) logits for a padded (B, L)
// batch and its (B, L, 1) mask.
//
// If mask is nil, it is computed from the padding tokens.
// The train flag enables dropout.
func (m *Model) Logits(x [][]int, mask *anylm.Tensor, train bool) *anylm.Tensor {
	if mask == nil {
		mask = anycorpus.Mask(m.Store.Creator(), x)
	}
	root := m.Store.Root()
	cfg := m.Config

	h := anylm.Embed(root.Sub("embedding"), x, cfg.VocabSize, cfg.EmbeddingSize, false)
	h = anylm.MulRows(h, mask)

	rnnScope := root.Sub("rnn")
	switch cfg.Cell {
	case CellLSTM:
		layer := &anyrnn.LSTM{Units: cfg.HiddenSize, ReturnSequences: true}
		res, err := layer.Apply(rnnScope, h, mask, nil)
		if err != nil {
			// Only an invalid initial state fails.
			panic(err)
		}
		h = res.Output
	default:
		layer := &anyrnn.SimpleRNN{Units: cfg.HiddenSize, ReturnSequences: true}
		h = layer.Apply(rnnScope, h, mask)
	}

	return m.head(train).Apply(h)
}

func (m *Model) head(train bool) anylm.Net {
	root := m.Store.Root()
	var net anylm.Net
	if m.Log != nil {
		net = append(net, &anylm.Debug{
			Log:           m.Log,
			ID:            "rnn",
			PrintMean:     true,
			PrintVariance: true,
		})
	}
	if m.Config.dropout() {
		net = append(net, &anylm.Dropout{
			Enabled:  train,
			KeepProb: m.Config.KeepProb,
			Rand:     m.Rand,
		})
	}
	for i := 0; i < m.Config.HighwayLayers; i++ {
		net = append(net, &anylm.Highway{Scope: root.Sub(fmt.Sprintf("highway%d", i))})
	}
	net = append(net, &anylm.FC{Scope: root.Sub("output"), OutCount: m.Config.VocabSize})
	return net
}

// Loss computes the masked cross-entropy of predicting t
// from x, where both are padded (B, L) batches.
func (m *Model) Loss(x, t [][]int, train bool) anydiff.Res {
	mask := anycorpus.Mask(m.Store.Creator(), x)
	return anylm.MaskedCrossEntropy(m.Logits(x, mask, train), t, mask)
}

// Score computes the mean cross-entropy of a token
// sequence, predicting every token from its predecessors.
// It returns the loss and the number of predicted tokens.
func (m *Model) Score(ids []int) (float64, int, error) {
	if len(ids) < 2 {
		return 0, 0, errors.New("need at least two tokens to score")
	}
	if err := m.checkIDs(ids); err != nil {
		return 0, 0, err
	}
	x := [][]int{ids[:len(ids)-1]}
	t := [][]int{ids[1:]}
	c := m.Store.Creator()
	mask := anylm.Constant(c, anylm.Shape{1, len(ids) - 1, 1}, 1)
	loss := anylm.MaskedCrossEntropy(m.Logits(x, mask, false), t, mask)
	return anylm.VectorFloats(loss.Output())[0], len(ids) - 1, nil
}

// NextWords returns the k most likely tokens to follow a
// sequence, most likely first.
func (m *Model) NextWords(ids []int, k int) ([]Prediction, error) {
	if len(ids) == 0 {
		return nil, errors.New("need at least one token")
	}
	if err := m.checkIDs(ids); err != nil {
		return nil, err
	}
	if k <= 0 || k > m.Config.VocabSize {
		k = m.Config.VocabSize
	}
	c := m.Store.Creator()
	mask := anylm.Constant(c, anylm.Shape{1, len(ids), 1}, 1)
	logits := m.Logits([][]int{ids}, mask, false)
	last := anylm.SliceAxis(logits, 1, len(ids)-1, len(ids))
	logProbs := anylm.LogSoftmax.Apply(last).Floats()

	res := make([]Prediction, len(logProbs))
	for i, x := range logProbs {
		res[i] = Prediction{ID: i, LogProb: x}
	}
	sort.SliceStable(res, func(i, j int) bool {
		return res[i].LogProb > res[j].LogProb
	})
	return res[:k], nil
}

func (m *Model) checkIDs(ids []int) error {
	for _, id := range ids {
		if id < 0 || id >= m.Config.VocabSize {
			return fmt.Errorf("token %d out of range for vocabulary of %d", id, m.Config.VocabSize)
		}
	}
	return nil
}
