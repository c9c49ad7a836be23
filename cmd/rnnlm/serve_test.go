package main

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/labstack/echo/v5"
	"github.com/satopirka/anylm/anycorpus"
	"github.com/satopirka/anylm/anyparam"
	"github.com/satopirka/anylm/internal/server"
	"github.com/satopirka/anylm/rnnlm"
	"github.com/unixpickle/anyvec/anyvec64"
	"github.com/urfave/cli/v3"
)

func newTestServer(t *testing.T, maxBodyBytes int64) *echo.Echo {
	t.Helper()
	vocab := anycorpus.NewVocab()
	vocab.Add("cat")
	vocab.Freeze()
	model, err := rnnlm.New(anyparam.NewStore(anyvec64.DefaultCreator{}, 1), rnnlm.Config{
		VocabSize:      vocab.Len(),
		EmbeddingSize:  3,
		HiddenSize:     4,
		Cell:           rnnlm.CellRNN,
		SentenceLength: 8,
	})
	if err != nil {
		t.Fatal(err)
	}
	return newEcho(server.New(model, vocab, nil), maxBodyBytes)
}

func postScore(e *echo.Echo, body io.Reader) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/v1/score", body)
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	return rec
}

func TestServeLimits(t *testing.T) {
	t.Parallel()

	e := newTestServer(t, 256)
	text := func(words int) string {
		return `{"text":"` + strings.TrimSpace(strings.Repeat("cat ", words)) + `"}`
	}

	if rec := postScore(e, strings.NewReader(text(8))); rec.Code != http.StatusOK {
		t.Errorf("8 words: got %d body=%s", rec.Code, rec.Body.String())
	}
	rec := postScore(e, strings.NewReader(text(9)))
	if rec.Code != http.StatusBadRequest || !strings.Contains(rec.Body.String(), "at most 8") {
		t.Errorf("9 words: got %d body=%s", rec.Code, rec.Body.String())
	}

	big := text(1000)
	if rec := postScore(e, strings.NewReader(big)); rec.Code != http.StatusRequestEntityTooLarge {
		t.Errorf("sized body: got %d body=%s", rec.Code, rec.Body.String())
	}
	// Without a Content-Length, the limit applies while reading.
	if rec := postScore(e, io.MultiReader(strings.NewReader(big))); rec.Code != http.StatusRequestEntityTooLarge {
		t.Errorf("streamed body: got %d body=%s", rec.Code, rec.Body.String())
	}
}

func TestServeFlags(t *testing.T) {
	var o serveOptions
	cmd := &cli.Command{
		Name:   "serve",
		Flags:  serveFlags(&o),
		Action: func(context.Context, *cli.Command) error { return nil },
	}
	args := []string{"serve", "--checkpoint", "model", "--read-timeout", "5s", "--max-tokens", "12"}
	if err := cmd.Run(context.Background(), args); err != nil {
		t.Fatal(err)
	}
	if o.ReadTimeout != 5*time.Second || o.ReadHeaderTimeout != 10*time.Second {
		t.Errorf("unexpected timeouts: %v, %v", o.ReadTimeout, o.ReadHeaderTimeout)
	}
	if o.MaxTokens != 12 || o.MaxBodyBytes != defaultMaxBodyBytes {
		t.Errorf("unexpected limits: %d tokens, %d bytes", o.MaxTokens, o.MaxBodyBytes)
	}
}
