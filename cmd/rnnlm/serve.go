package main

import (
	"context"
	"net/http"
	"time"

	"github.com/labstack/echo/v5"
	"github.com/labstack/echo/v5/middleware"
	"github.com/satopirka/anylm/internal/logger"
	"github.com/satopirka/anylm/internal/server"
	"github.com/satopirka/anylm/rnnlm"
	"github.com/urfave/cli/v3"
)

const defaultMaxBodyBytes = 1 << 20

type serveOptions struct {
	deviceOptions

	Checkpoint        string
	Addr              string
	ReadHeaderTimeout time.Duration
	ReadTimeout       time.Duration
	MaxTokens         int
	MaxBodyBytes      int64
}

func serveFlags(o *serveOptions) []cli.Flag {
	return append(deviceFlags(&o.deviceOptions),
		&cli.StringFlag{
			Name:        "checkpoint",
			Usage:       "trained model",
			Required:    true,
			Destination: &o.Checkpoint,
		},
		&cli.StringFlag{
			Name:        "addr",
			Usage:       "listen address",
			Value:       "127.0.0.1:8080",
			Destination: &o.Addr,
		},
		&cli.DurationFlag{
			Name:        "read-header-timeout",
			Usage:       "time allowed to read request headers",
			Value:       10 * time.Second,
			Destination: &o.ReadHeaderTimeout,
		},
		&cli.DurationFlag{
			Name:        "read-timeout",
			Usage:       "time allowed to read a whole request",
			Value:       30 * time.Second,
			Destination: &o.ReadTimeout,
		},
		&cli.IntFlag{
			Name:        "max-tokens",
			Usage:       "longest accepted text in words (0 = the training sentence length)",
			Destination: &o.MaxTokens,
		},
		&cli.Int64Flag{
			Name:        "max-body-bytes",
			Usage:       "largest accepted request body",
			Value:       defaultMaxBodyBytes,
			Destination: &o.MaxBodyBytes,
		},
	)
}

func serveCmd() *cli.Command {
	var o serveOptions
	return &cli.Command{
		Name:  "serve",
		Usage: "Serve the scoring API",
		Flags: serveFlags(&o),
		Action: func(ctx context.Context, cmd *cli.Command) error {
			log := logger.FromContext(ctx)
			c, err := creatorForContext(o.Context)
			if err != nil {
				return err
			}
			model, vocab, err := rnnlm.Load(c, o.Checkpoint)
			if err != nil {
				return err
			}

			srv := server.New(model, vocab, log)
			if o.MaxTokens > 0 {
				srv.MaxTokens = o.MaxTokens
			}
			e := newEcho(srv, o.MaxBodyBytes)
			log.Info("starting server", "address", o.Addr, "vocab_size", vocab.Len(),
				"cell", model.Config.Cell, "max_tokens", srv.MaxTokens)
			sc := echo.StartConfig{
				Address: o.Addr,
				BeforeServeFunc: func(s *http.Server) error {
					s.ReadHeaderTimeout = o.ReadHeaderTimeout
					s.ReadTimeout = o.ReadTimeout
					return nil
				},
			}
			return sc.Start(ctx, e)
		},
	}
}

func newEcho(srv *server.Server, maxBodyBytes int64) *echo.Echo {
	e := echo.New()
	e.Use(middleware.RequestLogger())
	e.Use(middleware.Recover())
	if maxBodyBytes > 0 {
		e.Use(middleware.BodyLimit(maxBodyBytes))
	}
	srv.Register(e)
	return e
}
