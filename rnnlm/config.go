package rnnlm

import (
	"fmt"

	"github.com/satopirka/anylm/anycorpus"
)

// A Cell selects the recurrent layer of a Model.
type Cell string

const (
	CellRNN  Cell = "rnn"
	CellLSTM Cell = "lstm"
)

// Default hyperparameters.
const (
	DefaultEmbeddingSize = 128
	DefaultHiddenSize    = 128
)

// Config describes the architecture of a Model.
type Config struct {
	VocabSize     int  `json:"vocab_size"`
	EmbeddingSize int  `json:"embedding_size"`
	HiddenSize    int  `json:"hidden_size"`
	Cell          Cell `json:"cell"`

	// HighwayLayers is the number of highway layers
	// between the recurrent layer and the output.
	HighwayLayers int `json:"highway_layers"`

	// KeepProb is the dropout keep probability applied
	// to the recurrent output.
	// A value of 0 or 1 disables dropout.
	KeepProb float64 `json:"keep_prob"`

	// SentenceLength is the longest training sentence, in
	// predicted tokens.
	// It is 0 when unknown.
	SentenceLength int `json:"sentence_length,omitempty"`
}

// DefaultConfig returns the default architecture for a
// vocabulary size.
func DefaultConfig(vocabSize int) Config {
	return Config{
		VocabSize:     vocabSize,
		EmbeddingSize: DefaultEmbeddingSize,
		HiddenSize:    DefaultHiddenSize,
		Cell:          CellRNN,
	}
}

// Validate checks that the sizes are usable.
func (c Config) Validate() error {
	if c.VocabSize <= anycorpus.UnkID {
		return fmt.Errorf("vocabulary size must cover the %d reserved words but got %d",
			anycorpus.UnkID+1, c.VocabSize)
	}
	if c.EmbeddingSize <= 0 {
		return fmt.Errorf("invalid embedding size: %d", c.EmbeddingSize)
	}
	if c.HiddenSize <= 0 {
		return fmt.Errorf("invalid hidden size: %d", c.HiddenSize)
	}
	if c.HighwayLayers < 0 {
		return fmt.Errorf("invalid highway layer count: %d", c.HighwayLayers)
	}
	if c.SentenceLength < 0 {
		return fmt.Errorf("invalid sentence length: %d", c.SentenceLength)
	}
	if c.KeepProb < 0 || c.KeepProb > 1 {
		return fmt.Errorf("keep probability out of range: %g", c.KeepProb)
	}
	switch c.Cell {
	case CellRNN, CellLSTM:
	default:
		return fmt.Errorf("unknown cell: %q", c.Cell)
	}
	return nil
}

func (c Config) dropout() bool {
	return c.KeepProb > 0 && c.KeepProb < 1
}
