package anylm

import (
	"fmt"

	"github.com/unixpickle/anydiff"
)

// An Activation is a standard activation function.
type Activation int

// These are standard activation functions.
const (
	Tanh Activation = iota
	Sigmoid
	ReLU

	// LogSoftmax normalizes over the last axis.
	LogSoftmax
)

// Apply applies the activation function to a tensor.
func (a Activation) Apply(in *Tensor) *Tensor {
	switch a {
	case Tanh:
		return NewTensor(anydiff.Tanh(in.Res), in.Shape)
	case Sigmoid:
		return NewTensor(anydiff.Sigmoid(in.Res), in.Shape)
	case ReLU:
		return NewTensor(anydiff.ClipPos(in.Res), in.Shape)
	case LogSoftmax:
		return NewTensor(anydiff.LogSoftmax(in.Res, in.Dim(-1)), in.Shape)
	default:
		panic(fmt.Sprintf("unknown activation: %d", a))
	}
}

func (a Activation) String() string {
	switch a {
	case Tanh:
		return "tanh"
	case Sigmoid:
		return "sigmoid"
	case ReLU:
		return "relu"
	case LogSoftmax:
		return "log_softmax"
	default:
		return fmt.Sprintf("Activation(%d)", int(a))
	}
}
