// Package anyparam implements a hierarchical store of
// learnable parameters.
//
// Layers ask a Scope for parameters by name.
// The first request creates and initializes a variable;
// later requests for the same path return the same
// variable, which is how weights are shared across
// timesteps and across calls.
package anyparam

import (
	"fmt"
	"math/rand"
	"sort"
	"strings"

	"github.com/unixpickle/anydiff"
	"github.com/unixpickle/anyvec"
)

// Separator joins the components of a parameter path.
const Separator = "/"

// A Store owns a set of named parameters.
type Store struct {
	creator anyvec.Creator
	rand    *rand.Rand

	names  []string
	params map[string]*anydiff.Var
	fixed  map[string]bool
}

// NewStore creates an empty store.
// New parameters are created with c and initialized from a
// random source seeded with seed.
func NewStore(c anyvec.Creator, seed int64) *Store {
	return &Store{
		creator: c,
		rand:    rand.New(rand.NewSource(seed)),
		params:  map[string]*anydiff.Var{},
		fixed:   map[string]bool{},
	}
}

// Creator returns the creator used for new parameters.
func (s *Store) Creator() anyvec.Creator {
	return s.creator
}

// Root returns the top-level scope.
func (s *Store) Root() *Scope {
	return &Scope{store: s}
}

// Len returns the number of parameters.
func (s *Store) Len() int {
	return len(s.names)
}

// Names returns every parameter path in creation order.
func (s *Store) Names() []string {
	return append([]string{}, s.names...)
}

// Lookup finds a parameter by its full path.
func (s *Store) Lookup(path string) (*anydiff.Var, bool) {
	v, ok := s.params[path]
	return v, ok
}

// All returns every parameter in creation order,
// including fixed ones.
func (s *Store) All() []*anydiff.Var {
	res := make([]*anydiff.Var, len(s.names))
	for i, name := range s.names {
		res[i] = s.params[name]
	}
	return res
}

// Parameters returns the trainable parameters in creation
// order.
func (s *Store) Parameters() []*anydiff.Var {
	return s.parametersUnder("")
}

// Fix marks every parameter at or beneath prefix as
// non-trainable, including parameters created later.
// The empty prefix fixes the whole store.
func (s *Store) Fix(prefix string) {
	s.fixed[prefix] = true
}

// Unfix removes fixes at or beneath prefix.
// A fix on an ancestor of prefix still applies.
func (s *Store) Unfix(prefix string) {
	for p := range s.fixed {
		if underPrefix(p, prefix) {
			delete(s.fixed, p)
		}
	}
}

// IsFixed checks if the parameter at path is
// non-trainable.
func (s *Store) IsFixed(path string) bool {
	for p := range s.fixed {
		if underPrefix(path, p) {
			return true
		}
	}
	return false
}

// FixedPrefixes returns the fixed prefixes in sorted
// order.
func (s *Store) FixedPrefixes() []string {
	var res []string
	for p := range s.fixed {
		res = append(res, p)
	}
	sort.Strings(res)
	return res
}

func (s *Store) parametersUnder(prefix string) []*anydiff.Var {
	var res []*anydiff.Var
	for _, name := range s.names {
		if underPrefix(name, prefix) && !s.IsFixed(name) {
			res = append(res, s.params[name])
		}
	}
	return res
}

func (s *Store) param(path string, size int, init Initializer) *anydiff.Var {
	if v, ok := s.params[path]; ok {
		if v.Vector.Len() != size {
			panic(fmt.Sprintf("parameter %s has size %d but %d was requested",
				path, v.Vector.Len(), size))
		}
		return v
	}
	if size <= 0 {
		panic(fmt.Sprintf("parameter %s: invalid size %d", path, size))
	}
	vec := s.creator.MakeVector(size)
	if init != nil {
		init.Init(vec, s.rand)
	}
	v := anydiff.NewVar(vec)
	s.add(path, v)
	return v
}

func (s *Store) add(path string, v *anydiff.Var) {
	s.names = append(s.names, path)
	s.params[path] = v
}

func underPrefix(path, prefix string) bool {
	return prefix == "" || path == prefix || strings.HasPrefix(path, prefix+Separator)
}

func joinPath(parent, name string) string {
	if parent == "" {
		return name
	}
	return parent + Separator + name
}
