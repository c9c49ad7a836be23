package main

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/satopirka/anylm"
	"github.com/satopirka/anylm/anycorpus"
	"github.com/satopirka/anylm/anys2s"
	"github.com/satopirka/anylm/internal/logger"
	"github.com/satopirka/anylm/rnnlm"
	"github.com/urfave/cli/v3"
)

func evalCmd() *cli.Command {
	var (
		dev            deviceOptions
		checkpoint     string
		data           string
		batchSize      int
		sentenceLength int
	)
	return &cli.Command{
		Name:  "eval",
		Usage: "Compute the perplexity of a corpus",
		Flags: append(deviceFlags(&dev),
			&cli.StringFlag{
				Name:        "checkpoint",
				Usage:       "trained model",
				Required:    true,
				Destination: &checkpoint,
			},
			&cli.StringFlag{
				Name:        "data",
				Usage:       "corpus, one sentence per line",
				Value:       "./ptb/test.txt",
				Destination: &data,
			},
			&cli.IntFlag{
				Name:        "batch-size",
				Value:       32,
				Destination: &batchSize,
			},
			&cli.IntFlag{
				Name:        "sentence-length",
				Value:       60,
				Destination: &sentenceLength,
			},
		),
		Action: func(ctx context.Context, cmd *cli.Command) error {
			log := logger.FromContext(ctx)
			if sentenceLength <= 0 {
				return fmt.Errorf("invalid sentence length: %d", sentenceLength)
			}
			c, err := creatorForContext(dev.Context)
			if err != nil {
				return err
			}
			model, vocab, err := rnnlm.Load(c, checkpoint)
			if err != nil {
				return err
			}
			seqs, err := anycorpus.LoadFile(data, vocab)
			if err != nil {
				return err
			}
			samples := anycorpus.Samples(seqs, sentenceLength)
			if samples.Len() == 0 {
				return errors.New("corpus has no sentences")
			}
			trainer := &anys2s.Trainer{Func: model.Logits, Creator: c}
			loss, err := trainer.Evaluate(ctx, samples, batchSize)
			if err != nil {
				return err
			}
			log.Info("evaluated", "data", data, "sentences", samples.Len(),
				"tokens", anycorpus.CountTokens(seqs), "loss", loss)
			_, err = fmt.Fprintf(os.Stdout, "loss %.4f perplexity %.4f\n", loss, anylm.Perplexity(loss))
			return err
		},
	}
}
