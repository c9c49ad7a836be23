package anylm

import (
	"fmt"
	"strings"
)

// A Shape is the ordered list of dimension sizes of a
// row-major tensor.
type Shape []int

// NewShape creates a validated Shape.
// It panics if no dimensions are given or if any
// dimension is not positive.
func NewShape(dims ...int) Shape {
	if len(dims) == 0 {
		panic("shape must have at least one dimension")
	}
	for i, d := range dims {
		if d <= 0 {
			panic(fmt.Sprintf("dimension %d of shape %v is not positive", i, dims))
		}
	}
	return append(Shape{}, dims...)
}

// Rank returns the number of dimensions.
func (s Shape) Rank() int {
	return len(s)
}

// Size returns the total number of components.
func (s Shape) Size() int {
	res := 1
	for _, d := range s {
		res *= d
	}
	return res
}

// Dim returns the size of an axis.
// Negative axes count from the end.
func (s Shape) Dim(axis int) int {
	return s[s.Axis(axis)]
}

// Axis resolves a possibly negative axis index.
// It panics if the axis is out of range.
func (s Shape) Axis(axis int) int {
	if axis < 0 {
		axis += len(s)
	}
	if axis < 0 || axis >= len(s) {
		panic(fmt.Sprintf("axis out of range for shape %v", s))
	}
	return axis
}

// Equal checks if two shapes are identical.
func (s Shape) Equal(s1 Shape) bool {
	if len(s) != len(s1) {
		return false
	}
	for i, d := range s {
		if s1[i] != d {
			return false
		}
	}
	return true
}

// Copy creates a copy of the shape.
func (s Shape) Copy() Shape {
	return append(Shape{}, s...)
}

// With returns a copy of s with one axis resized.
func (s Shape) With(axis, size int) Shape {
	res := s.Copy()
	res[s.Axis(axis)] = size
	return res
}

// Outer returns the product of the dimensions before an
// axis.
func (s Shape) Outer(axis int) int {
	return Shape(s[:s.Axis(axis)]).Size()
}

// Inner returns the product of the dimensions after an
// axis.
func (s Shape) Inner(axis int) int {
	return Shape(s[s.Axis(axis)+1:]).Size()
}

func (s Shape) String() string {
	parts := make([]string, len(s))
	for i, d := range s {
		parts[i] = fmt.Sprint(d)
	}
	return "(" + strings.Join(parts, ", ") + ")"
}
