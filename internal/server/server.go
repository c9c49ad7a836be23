// Package server exposes a trained language model over
// HTTP.
package server

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"math"
	"net/http"
	"strings"
	"sync"

	"github.com/goccy/go-json"
	"github.com/google/uuid"
	"github.com/labstack/echo/v5"
	"github.com/satopirka/anylm/anycorpus"
	"github.com/satopirka/anylm/internal/logger"
	"github.com/satopirka/anylm/rnnlm"
)

const defaultTopK = 5

// DefaultMaxTokens limits request texts when the model
// does not record its training sentence length.
const DefaultMaxTokens = 60

// Server answers scoring requests with a single model.
//
// Requests are serialized, since a forward pass may
// create parameters in the model's store.
type Server struct {
	// MaxTokens is the largest number of words accepted
	// in a request text.
	MaxTokens int

	model *rnnlm.Model
	vocab *anycorpus.Vocab
	log   logger.Logger

	mu sync.Mutex
}

// New creates a Server.
// If log is nil, logger.Nop() is used.
//
// MaxTokens starts at the model's training sentence
// length, or DefaultMaxTokens if it is unknown.
func New(model *rnnlm.Model, vocab *anycorpus.Vocab, log logger.Logger) *Server {
	if log == nil {
		log = logger.Nop()
	}
	maxTokens := model.Config.SentenceLength
	if maxTokens <= 0 {
		maxTokens = DefaultMaxTokens
	}
	return &Server{MaxTokens: maxTokens, model: model, vocab: vocab, log: log}
}

// Register adds the routes to e.
func (s *Server) Register(e *echo.Echo) {
	e.GET("/healthz", s.handleHealth)
	e.POST("/v1/score", s.handleScore)
	e.POST("/v1/next", s.handleNext)
}

type ScoreRequest struct {
	Text string `json:"text"`
}

type ScoreResponse struct {
	ID         string  `json:"id"`
	Tokens     int     `json:"tokens"`
	Unknown    int     `json:"unknown"`
	Loss       float64 `json:"loss"`
	Perplexity float64 `json:"perplexity"`
}

type NextRequest struct {
	Text string `json:"text"`
	TopK int    `json:"top_k"`
}

type NextResponse struct {
	ID          string       `json:"id"`
	Predictions []Prediction `json:"predictions"`
}

type Prediction struct {
	Word    string  `json:"word"`
	LogProb float64 `json:"log_prob"`
}

type ResponseError struct {
	Message string `json:"message"`
	Type    string `json:"type"`
}

func (s *Server) handleHealth(c *echo.Context) error {
	return c.JSON(http.StatusOK, map[string]any{
		"status":     "ok",
		"vocab_size": s.vocab.Len(),
		"cell":       s.model.Config.Cell,
	})
}

func (s *Server) handleScore(c *echo.Context) error {
	req, err := decodeJSON[ScoreRequest](c.Request().Body)
	if err != nil {
		return writeDecodeError(c, err)
	}
	words := strings.Fields(req.Text)
	if len(words) == 0 {
		return writeBadRequest(c, "text must contain at least one word")
	}
	if err := s.checkLength(words); err != nil {
		return writeBadRequest(c, err.Error())
	}
	ids := append([]int{anycorpus.BOSID}, s.vocab.Encode(words)...)
	ids = append(ids, anycorpus.EOSID)

	s.mu.Lock()
	loss, tokens, err := s.model.Score(ids)
	s.mu.Unlock()
	if err != nil {
		return writeBadRequest(c, err.Error())
	}

	resp := ScoreResponse{
		ID:         "score-" + uuid.NewString(),
		Tokens:     tokens,
		Unknown:    countUnknown(ids),
		Loss:       loss,
		Perplexity: math.Exp(loss),
	}
	s.log.Debug("scored text", "id", resp.ID, "tokens", tokens, "loss", loss)
	return c.JSON(http.StatusOK, resp)
}

func (s *Server) handleNext(c *echo.Context) error {
	req, err := decodeJSON[NextRequest](c.Request().Body)
	if err != nil {
		return writeDecodeError(c, err)
	}
	if req.TopK < 0 {
		return writeBadRequest(c, "top_k must not be negative")
	}
	if req.TopK == 0 {
		req.TopK = defaultTopK
	}
	words := strings.Fields(req.Text)
	if err := s.checkLength(words); err != nil {
		return writeBadRequest(c, err.Error())
	}
	ids := append([]int{anycorpus.BOSID}, s.vocab.Encode(words)...)

	s.mu.Lock()
	preds, err := s.model.NextWords(ids, req.TopK)
	s.mu.Unlock()
	if err != nil {
		return writeBadRequest(c, err.Error())
	}

	resp := NextResponse{ID: "next-" + uuid.NewString()}
	for _, p := range preds {
		resp.Predictions = append(resp.Predictions, Prediction{
			Word:    s.vocab.Word(p.ID),
			LogProb: p.LogProb,
		})
	}
	return c.JSON(http.StatusOK, resp)
}

func (s *Server) checkLength(words []string) error {
	if len(words) > s.MaxTokens {
		return fmt.Errorf("text has %d words but at most %d are allowed", len(words),
			s.MaxTokens)
	}
	return nil
}

// writeDecodeError passes errors that carry a status,
// such as an exceeded body limit, to echo.
func writeDecodeError(c *echo.Context, err error) error {
	if echo.StatusCode(err) != 0 {
		return err
	}
	return writeBadRequest(c, err.Error())
}

func writeBadRequest(c *echo.Context, msg string) error {
	return c.JSON(http.StatusBadRequest, map[string]any{
		"error": ResponseError{
			Message: msg,
			Type:    "invalid_request_error",
		},
	})
}

func decodeJSON[T any](r io.Reader) (T, error) {
	var out T
	data, err := io.ReadAll(r)
	if err != nil {
		return out, err
	}
	if len(bytes.TrimSpace(data)) == 0 {
		return out, errors.New("empty request body")
	}
	if err := json.Unmarshal(data, &out); err != nil {
		return out, err
	}
	return out, nil
}

func countUnknown(ids []int) int {
	var res int
	for _, id := range ids {
		if id == anycorpus.UnkID {
			res++
		}
	}
	return res
}
