package anyparam

import (
	"fmt"
	"strings"

	"github.com/unixpickle/anydiff"
	"github.com/unixpickle/anyvec"
)

// A Scope is a named position in a Store.
// Scopes are cheap values; two scopes with the same path
// refer to the same parameters.
type Scope struct {
	store *Store
	path  string
}

// Sub creates a child scope.
// It panics if name is empty or contains a Separator.
func (s *Scope) Sub(name string) *Scope {
	if name == "" || strings.Contains(name, Separator) {
		panic(fmt.Sprintf("invalid scope name: %q", name))
	}
	return &Scope{store: s.store, path: joinPath(s.path, name)}
}

// Path returns the full path of the scope.
// The root scope has an empty path.
func (s *Scope) Path() string {
	return s.path
}

// Store returns the store the scope belongs to.
func (s *Scope) Store() *Store {
	return s.store
}

// Creator returns the creator of the underlying store.
func (s *Scope) Creator() anyvec.Creator {
	return s.store.creator
}

// Param returns the parameter with the given name in this
// scope, creating and initializing it on first use.
//
// Requesting an existing parameter with a different size
// panics.
func (s *Scope) Param(name string, size int, init Initializer) *anydiff.Var {
	if name == "" || strings.Contains(name, Separator) {
		panic(fmt.Sprintf("invalid parameter name: %q", name))
	}
	return s.store.param(joinPath(s.path, name), size, init)
}

// Fix marks every parameter in this scope as
// non-trainable.
func (s *Scope) Fix() {
	s.store.Fix(s.path)
}

// Parameters returns the trainable parameters in this
// scope, in creation order.
func (s *Scope) Parameters() []*anydiff.Var {
	return s.store.parametersUnder(s.path)
}
