package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/satopirka/anylm/rnnlm"
	"github.com/urfave/cli/v3"
	"gopkg.in/yaml.v3"
)

// Config represents a training config file.
// All fields are pointers so we can distinguish "not set" from zero values.
type Config struct {
	Context *string `yaml:"context"`
	Device  *int    `yaml:"device"`

	// Data
	Train          *string  `yaml:"train"`
	Valid          *string  `yaml:"valid"`
	ValidRatio     *float64 `yaml:"valid_ratio"`
	SentenceLength *int     `yaml:"sentence_length"`
	BucketChunks   *int     `yaml:"bucket_chunks"`

	// Architecture
	EmbeddingSize *int     `yaml:"embedding_size"`
	HiddenSize    *int     `yaml:"hidden_size"`
	Cell          *string  `yaml:"cell"`
	HighwayLayers *int     `yaml:"highway_layers"`
	KeepProb      *float64 `yaml:"keep_prob"`

	// Optimization
	Epochs      *int     `yaml:"epochs"`
	BatchSize   *int     `yaml:"batch_size"`
	Solver      *string  `yaml:"solver"`
	LR          *float64 `yaml:"lr"`
	LRDecay     *float64 `yaml:"lr_decay"`
	Momentum    *float64 `yaml:"momentum"`
	WeightDecay *float64 `yaml:"weight_decay"`
	Seed        *int64   `yaml:"seed"`

	// Output
	Checkpoint *string `yaml:"checkpoint"`
	MonitorDir *string `yaml:"monitor_dir"`
}

// LoadConfig reads a config file.
func LoadConfig(path string) (Config, error) {
	var cfg Config
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("read config: %w", err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parse config %s: %w", path, err)
	}
	return cfg, nil
}

// trainOptions holds every setting of the train command.
type trainOptions struct {
	deviceOptions

	Config string

	Train          string
	Valid          string
	ValidRatio     float64
	SentenceLength int
	BucketChunks   int

	EmbeddingSize int
	HiddenSize    int
	Cell          string
	HighwayLayers int
	KeepProb      float64

	Epochs      int
	BatchSize   int
	Solver      string
	LR          float64
	LRDecay     float64
	Momentum    float64
	WeightDecay float64
	Seed        int64

	Checkpoint string
	Resume     bool
	MonitorDir string
}

// applyTrainConfig applies config file values to the
// options when the corresponding flag was not explicitly
// set.
func applyTrainConfig(c *cli.Command, cfg Config, o *trainOptions) {
	setString(c, "context", cfg.Context, &o.Context)
	setValue(c, "device", cfg.Device, &o.Device)
	setString(c, "train", cfg.Train, &o.Train)
	setString(c, "valid", cfg.Valid, &o.Valid)
	setValue(c, "valid-ratio", cfg.ValidRatio, &o.ValidRatio)
	setValue(c, "sentence-length", cfg.SentenceLength, &o.SentenceLength)
	setValue(c, "bucket-chunks", cfg.BucketChunks, &o.BucketChunks)
	setValue(c, "embedding-size", cfg.EmbeddingSize, &o.EmbeddingSize)
	setValue(c, "hidden-size", cfg.HiddenSize, &o.HiddenSize)
	setString(c, "cell", cfg.Cell, &o.Cell)
	setValue(c, "highway-layers", cfg.HighwayLayers, &o.HighwayLayers)
	setValue(c, "keep-prob", cfg.KeepProb, &o.KeepProb)
	setValue(c, "epochs", cfg.Epochs, &o.Epochs)
	setValue(c, "batch-size", cfg.BatchSize, &o.BatchSize)
	setString(c, "solver", cfg.Solver, &o.Solver)
	setValue(c, "lr", cfg.LR, &o.LR)
	setValue(c, "lr-decay", cfg.LRDecay, &o.LRDecay)
	setValue(c, "momentum", cfg.Momentum, &o.Momentum)
	setValue(c, "weight-decay", cfg.WeightDecay, &o.WeightDecay)
	setValue(c, "seed", cfg.Seed, &o.Seed)
	setString(c, "checkpoint", cfg.Checkpoint, &o.Checkpoint)
	setString(c, "monitor-dir", cfg.MonitorDir, &o.MonitorDir)
}

func setValue[T any](c *cli.Command, flag string, value *T, dst *T) {
	if value != nil && !c.IsSet(flag) {
		*dst = *value
	}
}

func setString(c *cli.Command, flag string, value *string, dst *string) {
	if value != nil && *value != "" && !c.IsSet(flag) {
		*dst = *value
	}
}

// Validate checks the options that the model config does
// not cover.
func (o *trainOptions) Validate() error {
	if o.Train == "" {
		return errors.New("missing training corpus")
	}
	if o.Valid == "" && (o.ValidRatio <= 0 || o.ValidRatio >= 1) {
		return fmt.Errorf("without a validation corpus, valid-ratio must be in (0, 1) but got %g",
			o.ValidRatio)
	}
	if o.SentenceLength <= 0 {
		return fmt.Errorf("invalid sentence length: %d", o.SentenceLength)
	}
	if o.BatchSize <= 0 {
		return fmt.Errorf("invalid batch size: %d", o.BatchSize)
	}
	if o.Epochs < 0 {
		return fmt.Errorf("invalid epoch count: %d", o.Epochs)
	}
	if o.BucketChunks < 0 {
		return fmt.Errorf("invalid bucket chunk count: %d", o.BucketChunks)
	}
	if o.LR <= 0 {
		return fmt.Errorf("learning rate must be positive: %g", o.LR)
	}
	if o.LRDecay <= 0 || o.LRDecay > 1 {
		return fmt.Errorf("learning rate decay must be in (0, 1]: %g", o.LRDecay)
	}
	switch o.Solver {
	case "sgd", "momentum", "adam", "rmsprop":
	default:
		return fmt.Errorf("unknown solver: %q", o.Solver)
	}
	if o.Resume && o.Checkpoint == "" {
		return errors.New("resume requires a checkpoint path")
	}
	return nil
}

// ModelConfig returns the architecture for a vocabulary.
func (o *trainOptions) ModelConfig(vocabSize int) rnnlm.Config {
	return rnnlm.Config{
		VocabSize:     vocabSize,
		EmbeddingSize: o.EmbeddingSize,
		HiddenSize:    o.HiddenSize,
		Cell:          rnnlm.Cell(o.Cell),
		HighwayLayers: o.HighwayLayers,
		KeepProb:      o.KeepProb,

		SentenceLength: o.SentenceLength,
	}
}
