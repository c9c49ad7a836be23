package rnnlm

import (
	"errors"
	"fmt"
	"os"

	"github.com/goccy/go-json"
	"github.com/satopirka/anylm/anycorpus"
	"github.com/satopirka/anylm/anyparam"
	"github.com/unixpickle/anyvec"
	"github.com/unixpickle/essentials"
)

// MetaSuffix is appended to a checkpoint path to get the
// path of its metadata file.
const MetaSuffix = ".json"

type meta struct {
	Config Config           `json:"config"`
	Vocab  *anycorpus.Vocab `json:"vocab"`
}

// Save writes the model's parameters to path and its
// config and vocabulary to path+MetaSuffix.
func (m *Model) Save(path string, v *anycorpus.Vocab) error {
	data, err := json.MarshalIndent(&meta{Config: m.Config, Vocab: v}, "", "  ")
	if err != nil {
		return essentials.AddCtx("save model", err)
	}
	if err := os.WriteFile(path+MetaSuffix, data, 0644); err != nil {
		return essentials.AddCtx("save model", err)
	}
	if err := m.Store.Save(path); err != nil {
		return essentials.AddCtx("save model", err)
	}
	return nil
}

// Load reads a model saved with Save, converting its
// parameters to the creator c.
func Load(c anyvec.Creator, path string) (*Model, *anycorpus.Vocab, error) {
	data, err := os.ReadFile(path + MetaSuffix)
	if err != nil {
		return nil, nil, essentials.AddCtx("load model", err)
	}
	var md meta
	if err := json.Unmarshal(data, &md); err != nil {
		return nil, nil, essentials.AddCtx("load model", err)
	}
	if md.Vocab == nil {
		return nil, nil, essentials.AddCtx("load model", errors.New("missing vocabulary"))
	}
	store, err := anyparam.LoadStore(c, path)
	if err != nil {
		return nil, nil, essentials.AddCtx("load model", err)
	}
	saved := map[string]bool{}
	for _, name := range store.Names() {
		saved[name] = true
	}
	m, err := New(store, md.Config)
	if err != nil {
		return nil, nil, essentials.AddCtx("load model", err)
	}
	for _, name := range store.Names() {
		if !saved[name] {
			return nil, nil, essentials.AddCtx("load model",
				fmt.Errorf("parameter %q missing from checkpoint", name))
		}
	}
	return m, md.Vocab, nil
}
