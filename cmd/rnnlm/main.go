package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/satopirka/anylm/internal/logger"
	"github.com/urfave/cli/v3"
)

func main() {
	app := &cli.Command{
		Name:   "rnnlm",
		Usage:  "Recurrent neural network language model",
		Flags:  loggingFlags(),
		Before: setupLogging,
		Action: func(ctx context.Context, cmd *cli.Command) error {
			return cli.ShowAppHelp(cmd)
		},
		Commands: []*cli.Command{
			trainCmd(),
			evalCmd(),
			serveCmd(),
		},
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := app.Run(ctx, os.Args)
	stop()
	if err != nil {
		_, _ = fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func setupLogging(ctx context.Context, cmd *cli.Command) (context.Context, error) {
	level, err := logger.ParseLevel(logLevel)
	if err != nil {
		return ctx, err
	}
	if debug {
		level = slog.LevelDebug
	}
	log, err := logger.ForFile(os.Stderr, logFormat, level)
	if err != nil {
		return ctx, err
	}
	return logger.WithContext(ctx, log), nil
}
