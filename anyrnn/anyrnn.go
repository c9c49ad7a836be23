// Package anyrnn implements recurrent layers over padded,
// masked sequence batches.
//
// Inputs are (batch, time, features) tensors.
// An optional mask marks which timesteps of each sequence
// are real (1) and which are padding (0).
// At a padded timestep the recurrent state of that
// sequence is carried over unchanged, so the final state
// of every sequence is its state after its last real
// token.
//
// Layers unroll exactly one step per timestep; parameters
// are shared across steps through an anyparam.Scope.
package anyrnn

import (
	"errors"
	"fmt"

	"github.com/satopirka/anylm"
)

// Errors returned when an initial state is invalid.
var (
	ErrInitialStateArity = errors.New("initial state needs both a cell and a hidden tensor")
	ErrStateShape        = errors.New("cell and hidden state shapes differ")
	ErrStateBatch        = errors.New("initial state batch size does not match input")
	ErrStateUnits        = errors.New("initial state size does not match units")
)

// A State is the recurrent state of an LSTM.
// Both tensors have shape (batch, units).
type State struct {
	Cell   *anylm.Tensor
	Hidden *anylm.Tensor
}

// validate checks the state against the input batch size
// and the layer width.
// A nil state is valid and means zeros.
func (s *State) validate(batch, units int) error {
	if s == nil {
		return nil
	}
	if s.Cell == nil || s.Hidden == nil {
		return ErrInitialStateArity
	}
	if !s.Cell.Shape.Equal(s.Hidden.Shape) {
		return fmt.Errorf("%w: cell %v, hidden %v", ErrStateShape, s.Cell.Shape, s.Hidden.Shape)
	}
	if s.Cell.Rank() != 2 {
		return fmt.Errorf("%w: expected (batch, units) but got %v", ErrStateShape, s.Cell.Shape)
	}
	if s.Cell.Dim(0) != batch {
		return fmt.Errorf("%w: state has %d but input has %d", ErrStateBatch, s.Cell.Dim(0), batch)
	}
	if s.Cell.Dim(1) != units {
		return fmt.Errorf("%w: state has %d but layer has %d", ErrStateUnits, s.Cell.Dim(1), units)
	}
	return nil
}

func checkInput(in *anylm.Tensor, units int) {
	if in.Rank() != 3 {
		panic(fmt.Sprintf("recurrent input should be (batch, time, features) but got %v", in.Shape))
	}
	if units <= 0 {
		panic(fmt.Sprintf("invalid number of units: %d", units))
	}
}
