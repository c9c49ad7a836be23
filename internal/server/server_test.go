package server

import (
	"encoding/json"
	"math"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/labstack/echo/v5"
	"github.com/satopirka/anylm/anycorpus"
	"github.com/satopirka/anylm/anyparam"
	"github.com/satopirka/anylm/rnnlm"
	"github.com/unixpickle/anyvec/anyvec64"
)

func newTestEcho(t *testing.T) *echo.Echo {
	t.Helper()
	vocab := anycorpus.NewVocab()
	for _, w := range []string{"the", "cat", "sat"} {
		vocab.Add(w)
	}
	vocab.Freeze()
	store := anyparam.NewStore(anyvec64.DefaultCreator{}, 3)
	model, err := rnnlm.New(store, rnnlm.Config{
		VocabSize:     vocab.Len(),
		EmbeddingSize: 3,
		HiddenSize:    4,
		Cell:          rnnlm.CellLSTM,
	})
	if err != nil {
		t.Fatal(err)
	}
	e := echo.New()
	New(model, vocab, nil).Register(e)
	return e
}

func doJSON(t *testing.T, e *echo.Echo, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	return rec
}

func TestHealth(t *testing.T) {
	t.Parallel()

	e := newTestEcho(t)
	rec := doJSON(t, e, http.MethodGet, "/healthz", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status: got %d body=%s", rec.Code, rec.Body.String())
	}
	if !strings.Contains(rec.Body.String(), `"vocab_size":7`) {
		t.Fatalf("unexpected body: %s", rec.Body.String())
	}
}

func TestScore(t *testing.T) {
	t.Parallel()

	e := newTestEcho(t)
	rec := doJSON(t, e, http.MethodPost, "/v1/score", `{"text":"the cat sat on"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("status: got %d body=%s", rec.Code, rec.Body.String())
	}
	var resp ScoreResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if !strings.HasPrefix(resp.ID, "score-") {
		t.Fatalf("unexpected id: %q", resp.ID)
	}
	if resp.Tokens != 5 || resp.Unknown != 1 {
		t.Fatalf("expected 5 tokens with 1 unknown, got %+v", resp)
	}
	if resp.Loss <= 0 || math.Abs(resp.Perplexity-math.Exp(resp.Loss)) > 1e-9 {
		t.Fatalf("bad loss/perplexity: %+v", resp)
	}
}

func TestNext(t *testing.T) {
	t.Parallel()

	e := newTestEcho(t)
	rec := doJSON(t, e, http.MethodPost, "/v1/next", `{"text":"the","top_k":3}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("status: got %d body=%s", rec.Code, rec.Body.String())
	}
	var resp NextResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if len(resp.Predictions) != 3 {
		t.Fatalf("expected 3 predictions, got %d", len(resp.Predictions))
	}
	for i := 1; i < len(resp.Predictions); i++ {
		if resp.Predictions[i].LogProb > resp.Predictions[i-1].LogProb {
			t.Fatalf("predictions not sorted: %+v", resp.Predictions)
		}
	}

	rec = doJSON(t, e, http.MethodPost, "/v1/next", `{"text":""}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("empty context status: got %d body=%s", rec.Code, rec.Body.String())
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if len(resp.Predictions) != defaultTopK {
		t.Fatalf("expected %d predictions, got %d", defaultTopK, len(resp.Predictions))
	}
}

func TestBadRequests(t *testing.T) {
	t.Parallel()

	e := newTestEcho(t)
	for _, c := range []struct {
		Path string
		Body string
		Msg  string
	}{
		{"/v1/score", `{"text":"   "}`, "at least one word"},
		{"/v1/score", `not json`, ""},
		{"/v1/score", ``, "empty request body"},
		{"/v1/next", `{"text":"the","top_k":-1}`, "top_k"},
		{"/v1/score", `{"text":"` + longText(DefaultMaxTokens+1) + `"}`, "at most 60"},
		{"/v1/next", `{"text":"` + longText(DefaultMaxTokens+1) + `"}`, "at most 60"},
	} {
		rec := doJSON(t, e, http.MethodPost, c.Path, c.Body)
		if rec.Code != http.StatusBadRequest {
			t.Errorf("%s %q: expected 400, got %d body=%s", c.Path, c.Body, rec.Code, rec.Body.String())
			continue
		}
		if !strings.Contains(rec.Body.String(), "invalid_request_error") ||
			!strings.Contains(rec.Body.String(), c.Msg) {
			t.Errorf("%s %q: unexpected body: %s", c.Path, c.Body, rec.Body.String())
		}
	}
}

func TestMaxTokens(t *testing.T) {
	t.Parallel()

	e := newTestEcho(t)
	rec := doJSON(t, e, http.MethodPost, "/v1/score", `{"text":"`+longText(DefaultMaxTokens)+`"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("status: got %d body=%s", rec.Code, rec.Body.String())
	}
	var resp ScoreResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.Tokens != DefaultMaxTokens+1 {
		t.Fatalf("expected %d tokens, got %+v", DefaultMaxTokens+1, resp)
	}

	rec = doJSON(t, e, http.MethodPost, "/v1/score", `{"text":"`+longText(200000)+`"}`)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status: got %d body=%s", rec.Code, rec.Body.String())
	}
}

func longText(words int) string {
	return strings.TrimSpace(strings.Repeat("cat ", words))
}
