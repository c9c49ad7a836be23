package main

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"os"

	"github.com/goccy/go-json"
	"github.com/satopirka/anylm"
	"github.com/satopirka/anylm/anycorpus"
	"github.com/satopirka/anylm/anyparam"
	"github.com/satopirka/anylm/anys2s"
	"github.com/satopirka/anylm/anysgd"
	"github.com/satopirka/anylm/internal/logger"
	"github.com/satopirka/anylm/internal/monitor"
	"github.com/satopirka/anylm/rnnlm"
	"github.com/unixpickle/anydiff"
	"github.com/urfave/cli/v3"
)

// Suffixes appended to a checkpoint path to get the paths
// of the saved optimizer state and training progress.
const (
	optimizerSuffix = ".opt"
	progressSuffix  = ".progress.json"
)

// progress records how far training has gone, so that a
// resumed run continues the epoch count and the learning
// rate schedule.
type progress struct {
	Epoch     int `json:"epoch"`
	Processed int `json:"processed"`
}

func trainFlags(o *trainOptions) []cli.Flag {
	flags := deviceFlags(&o.deviceOptions)
	return append(flags,
		&cli.StringFlag{
			Name:        "config",
			Usage:       "YAML config file; explicit flags take precedence",
			Destination: &o.Config,
		},
		&cli.StringFlag{
			Name:        "train",
			Usage:       "training corpus, one sentence per line",
			Value:       "./ptb/train.txt",
			Destination: &o.Train,
		},
		&cli.StringFlag{
			Name:        "valid",
			Usage:       "validation corpus (empty = hold out part of the training corpus)",
			Value:       "./ptb/valid.txt",
			Destination: &o.Valid,
		},
		&cli.Float64Flag{
			Name:        "valid-ratio",
			Usage:       "fraction of training sentences held out when --valid is empty",
			Value:       0.1,
			Destination: &o.ValidRatio,
		},
		&cli.IntFlag{
			Name:        "sentence-length",
			Usage:       "maximum number of predicted tokens per sentence",
			Value:       60,
			Destination: &o.SentenceLength,
		},
		&cli.IntFlag{
			Name:        "bucket-chunks",
			Usage:       "sort sentences by length within chunks of this many batches (0 = off)",
			Destination: &o.BucketChunks,
		},
		&cli.IntFlag{
			Name:        "embedding-size",
			Value:       rnnlm.DefaultEmbeddingSize,
			Destination: &o.EmbeddingSize,
		},
		&cli.IntFlag{
			Name:        "hidden-size",
			Value:       rnnlm.DefaultHiddenSize,
			Destination: &o.HiddenSize,
		},
		&cli.StringFlag{
			Name:        "cell",
			Usage:       "recurrent cell (rnn, lstm)",
			Value:       string(rnnlm.CellRNN),
			Destination: &o.Cell,
		},
		&cli.IntFlag{
			Name:        "highway-layers",
			Destination: &o.HighwayLayers,
		},
		&cli.Float64Flag{
			Name:        "keep-prob",
			Usage:       "dropout keep probability (1 = no dropout)",
			Value:       1,
			Destination: &o.KeepProb,
		},
		&cli.IntFlag{
			Name:        "epochs",
			Usage:       "number of epochs (0 = until interrupted)",
			Value:       100,
			Destination: &o.Epochs,
		},
		&cli.IntFlag{
			Name:        "batch-size",
			Value:       32,
			Destination: &o.BatchSize,
		},
		&cli.StringFlag{
			Name:        "solver",
			Usage:       "optimizer (sgd, momentum, adam, rmsprop)",
			Value:       "momentum",
			Destination: &o.Solver,
		},
		&cli.Float64Flag{
			Name:        "lr",
			Usage:       "learning rate",
			Value:       1e-2,
			Destination: &o.LR,
		},
		&cli.Float64Flag{
			Name:        "lr-decay",
			Usage:       "learning rate factor applied after every epoch",
			Value:       1,
			Destination: &o.LRDecay,
		},
		&cli.Float64Flag{
			Name:        "momentum",
			Value:       0.9,
			Destination: &o.Momentum,
		},
		&cli.Float64Flag{
			Name:        "weight-decay",
			Usage:       "L2 penalty coefficient",
			Destination: &o.WeightDecay,
		},
		&cli.Int64Flag{
			Name:        "seed",
			Value:       313,
			Destination: &o.Seed,
		},
		&cli.StringFlag{
			Name:        "checkpoint",
			Usage:       "path to save the model after every epoch",
			Destination: &o.Checkpoint,
		},
		&cli.BoolFlag{
			Name:        "resume",
			Usage:       "continue training from --checkpoint",
			Destination: &o.Resume,
		},
		&cli.StringFlag{
			Name:        "monitor-dir",
			Usage:       "directory for perplexity series",
			Destination: &o.MonitorDir,
		},
	)
}

func trainCmd() *cli.Command {
	var o trainOptions
	return &cli.Command{
		Name:  "train",
		Usage: "Train a language model",
		Flags: trainFlags(&o),
		Action: func(ctx context.Context, cmd *cli.Command) error {
			if o.Config != "" {
				cfg, err := LoadConfig(o.Config)
				if err != nil {
					return err
				}
				applyTrainConfig(cmd, cfg, &o)
			}
			if err := o.Validate(); err != nil {
				return err
			}
			return runTrain(ctx, &o)
		},
	}
}

func runTrain(ctx context.Context, o *trainOptions) error {
	log := logger.FromContext(ctx)
	c, err := creatorForContext(o.Context)
	if err != nil {
		return err
	}
	log.Info("using context", "context", o.Context, "device", o.Device)

	var model *rnnlm.Model
	vocab := anycorpus.NewVocab()
	if o.Resume {
		model, vocab, err = rnnlm.Load(c, o.Checkpoint)
		if err != nil {
			return err
		}
		log.Info("resumed model", "checkpoint", o.Checkpoint)
	}

	trainSeqs, err := anycorpus.LoadFile(o.Train, vocab)
	if err != nil {
		return err
	}
	vocab.Freeze()
	trainSamples := anycorpus.Samples(trainSeqs, o.SentenceLength)

	var trainList, validList anys2s.SampleList
	if o.Valid != "" {
		validSeqs, err := anycorpus.LoadFile(o.Valid, vocab)
		if err != nil {
			return err
		}
		trainList = trainSamples
		validList = anycorpus.Samples(validSeqs, o.SentenceLength)
	} else {
		left, right := anysgd.HashSplit(trainSamples, 1-o.ValidRatio)
		trainList, validList = left.(anys2s.SampleList), right.(anys2s.SampleList)
	}
	if trainList.Len() == 0 || validList.Len() == 0 {
		return fmt.Errorf("need training and validation sentences but got %d and %d",
			trainList.Len(), validList.Len())
	}

	if model == nil {
		model, err = rnnlm.New(anyparam.NewStore(c, o.Seed), o.ModelConfig(vocab.Len()))
		if err != nil {
			return err
		}
	}
	model.Rand = rand.New(rand.NewSource(o.Seed))
	params := model.Parameters()
	log.Info("loaded corpus",
		"vocab_size", vocab.Len(),
		"train_sentences", trainList.Len(),
		"valid_sentences", validList.Len(),
		"parameters", len(params),
		"cell", model.Config.Cell)

	transformer := newTransformer(o, params)
	var start progress
	if o.Resume {
		if transformer != nil {
			err := resumeOptimizer(o.Checkpoint+optimizerSuffix, transformer, o.Momentum)
			if err != nil {
				return err
			}
		}
		start, err = loadProgress(o.Checkpoint + progressSuffix)
		if err != nil {
			return err
		}
		log.Info("resuming", "epoch", start.Epoch, "processed", start.Processed)
	}

	tracker := &lossTracker{Trainer: &anys2s.Trainer{
		Func:        model.Logits,
		Creator:     c,
		Params:      params,
		WeightDecay: o.WeightDecay,
	}}

	var samples anysgd.SampleList = trainList
	if o.BucketChunks > 0 {
		if sortable, ok := trainList.(anys2s.SortableSampleList); ok {
			samples = &anys2s.SortSampleList{
				SortableSampleList: sortable,
				ChunkSize:          o.BucketChunks * o.BatchSize,
			}
		}
	}

	var series *epochSeries
	if o.MonitorDir != "" {
		series, err = newEpochSeries(o.MonitorDir)
		if err != nil {
			return err
		}
		log.Info("monitoring", "dir", o.MonitorDir, "run_id", series.RunID)
	}

	var rater anysgd.Rater = anysgd.ConstRater(o.LR)
	if o.LRDecay != 1 {
		rater = anysgd.ExpRater{Initial: o.LR, Decay: o.LRDecay}
	}

	var sgd *anysgd.SGD
	sgd = &anysgd.SGD{
		Fetcher:      tracker,
		Gradienter:   tracker,
		Samples:      samples,
		Rater:        rater,
		BatchSize:    o.BatchSize,
		Epochs:       o.Epochs,
		NumProcessed: start.Processed,
		StatusFunc: func(b anysgd.Batch) {
			batch := b.(*anys2s.Batch)
			log.Debug("batch", "sequences", batch.Size(), "tokens", batch.Tokens(),
				"last_loss", tracker.LastCost)
		},
		EpochFunc: func(epoch int) error {
			epoch += start.Epoch
			trainLoss := tracker.Reset()
			validLoss, err := tracker.Evaluate(ctx, validList, o.BatchSize)
			if err != nil {
				return err
			}
			log.Info("epoch done",
				"epoch", epoch,
				"train_perplexity", anylm.Perplexity(trainLoss),
				"valid_perplexity", anylm.Perplexity(validLoss))
			if series != nil {
				if err := series.Add(epoch, trainLoss, validLoss); err != nil {
					return err
				}
			}
			done := progress{Epoch: epoch, Processed: sgd.NumProcessed}
			return saveCheckpoint(o.Checkpoint, model, vocab, transformer, done)
		},
	}
	if transformer != nil {
		sgd.Transformer = transformer
	}

	err = sgd.Run(ctx)
	if errors.Is(err, context.Canceled) {
		log.Warn("training interrupted", "processed", sgd.NumProcessed)
		epochs := (sgd.NumProcessed - start.Processed) / samples.Len()
		done := progress{Epoch: start.Epoch + epochs, Processed: sgd.NumProcessed}
		return saveCheckpoint(o.Checkpoint, model, vocab, transformer, done)
	}
	return err
}

func newTransformer(o *trainOptions, params []*anydiff.Var) anysgd.TransformMarshaler {
	switch o.Solver {
	case "momentum":
		return &anysgd.Momentum{Momentum: o.Momentum, Params: params}
	case "adam":
		return &anysgd.Adam{Params: params}
	case "rmsprop":
		return &anysgd.RMSProp{Params: params}
	default:
		return nil
	}
}

func saveCheckpoint(path string, m *rnnlm.Model, v *anycorpus.Vocab,
	t anysgd.TransformMarshaler, p progress) error {
	if path == "" {
		return nil
	}
	if err := m.Save(path, v); err != nil {
		return err
	}
	data, err := json.Marshal(p)
	if err != nil {
		return err
	}
	if err := os.WriteFile(path+progressSuffix, data, 0644); err != nil {
		return fmt.Errorf("save progress: %w", err)
	}
	if t == nil {
		return nil
	}
	data, err = t.MarshalBinary()
	if err != nil {
		return err
	}
	if err := os.WriteFile(path+optimizerSuffix, data, 0644); err != nil {
		return fmt.Errorf("save optimizer: %w", err)
	}
	return nil
}

func loadOptimizer(path string, t anysgd.TransformMarshaler) error {
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	} else if err != nil {
		return fmt.Errorf("load optimizer: %w", err)
	}
	return t.UnmarshalBinary(data)
}

// resumeOptimizer restores saved optimizer state.
// The momentum coefficient from the command line wins
// over the saved one.
func resumeOptimizer(path string, t anysgd.TransformMarshaler, momentum float64) error {
	if err := loadOptimizer(path, t); err != nil {
		return err
	}
	if m, ok := t.(*anysgd.Momentum); ok {
		m.Momentum = momentum
	}
	return nil
}

// loadProgress reads saved progress.
// A missing file means training starts from scratch.
func loadProgress(path string) (progress, error) {
	var p progress
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return p, nil
	} else if err != nil {
		return p, fmt.Errorf("load progress: %w", err)
	}
	if err := json.Unmarshal(data, &p); err != nil {
		return p, fmt.Errorf("load progress: %w", err)
	}
	return p, nil
}

// lossTracker averages the training cost over an epoch.
type lossTracker struct {
	*anys2s.Trainer

	total float64
	count int
}

func (l *lossTracker) Gradient(b anysgd.Batch) anydiff.Grad {
	g := l.Trainer.Gradient(b)
	l.total += l.LastCost
	l.count++
	return g
}

// Reset returns the mean cost since the last reset.
func (l *lossTracker) Reset() float64 {
	if l.count == 0 {
		return 0
	}
	mean := l.total / float64(l.count)
	l.total, l.count = 0, 0
	return mean
}

type epochSeries struct {
	*monitor.Monitor

	train   *monitor.Series
	valid   *monitor.Series
	elapsed *monitor.TimeElapsed
}

func newEpochSeries(dir string) (*epochSeries, error) {
	mon, err := monitor.New(dir)
	if err != nil {
		return nil, err
	}
	return &epochSeries{
		Monitor: mon,
		train:   mon.Series("perplexity", 1),
		valid:   mon.Series("perplexity_valid", 1),
		elapsed: mon.TimeElapsed("time", 1),
	}, nil
}

func (e *epochSeries) Add(epoch int, trainLoss, validLoss float64) error {
	if err := e.train.Add(epoch, anylm.Perplexity(trainLoss)); err != nil {
		return err
	}
	if err := e.valid.Add(epoch, anylm.Perplexity(validLoss)); err != nil {
		return err
	}
	return e.elapsed.Add(epoch)
}
