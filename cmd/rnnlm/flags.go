package main

import (
	"fmt"

	"github.com/satopirka/anylm/internal/logger"
	"github.com/unixpickle/anyvec"
	"github.com/unixpickle/anyvec/anyvec32"
	"github.com/unixpickle/anyvec/anyvec64"
	"github.com/urfave/cli/v3"
)

var (
	logLevel  string
	logFormat string
	debug     bool
)

func loggingFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:        "log-level",
			Usage:       "log level (debug, info, warn, error)",
			Value:       "info",
			Destination: &logLevel,
		},
		&cli.StringFlag{
			Name:        "log-format",
			Usage:       "log format (auto, pretty, json, text)",
			Value:       logger.FormatAuto,
			Destination: &logFormat,
		},
		&cli.BoolFlag{
			Name:        "debug",
			Usage:       "enable debug logging (shorthand for --log-level=debug)",
			Destination: &debug,
		},
	}
}

// deviceOptions selects the numeric backend.
type deviceOptions struct {
	Context string
	Device  int
}

func deviceFlags(o *deviceOptions) []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:        "context",
			Aliases:     []string{"c"},
			Usage:       "numeric context (cpu = float32, cpu64 = float64)",
			Value:       "cpu",
			Destination: &o.Context,
		},
		&cli.IntFlag{
			Name:        "device",
			Aliases:     []string{"d"},
			Usage:       "device id (only recorded; all contexts run on the CPU)",
			Destination: &o.Device,
		},
	}
}

func creatorForContext(name string) (anyvec.Creator, error) {
	switch name {
	case "cpu", "":
		return anyvec32.DefaultCreator{}, nil
	case "cpu64":
		return anyvec64.DefaultCreator{}, nil
	case "cudnn":
		return nil, fmt.Errorf("context %q is not supported by this build; use cpu or cpu64", name)
	default:
		return nil, fmt.Errorf("unknown context: %q", name)
	}
}
