package tensor

import (
	"fmt"
	"math"
)

// Shape represents the dimensions of an array. Zero-length dimensions are valid.
type Shape []int

// NumElements returns the total number of elements in the array.
func (s Shape) NumElements() int {
	n := 1 // Scalar has 1 element
	for _, dim := range s {
		n *= dim
	}
	return n
}

// Validate checks that the shape has no negative dimensions and that its
// element count fits in an int.
func (s Shape) Validate() error {
	empty := false
	for i, dim := range s {
		if dim < 0 {
			return fmt.Errorf("invalid dimension at index %d: %d (must be >= 0)", i, dim)
		}
		if dim == 0 {
			empty = true
		}
	}
	if empty {
		return nil
	}
	n := 1
	for _, dim := range s {
		if n > math.MaxInt/dim {
			return fmt.Errorf("shape %v: element count overflows int", s)
		}
		n *= dim
	}
	return nil
}

// NumBytes returns NumElements() * itemSize, or an error if it overflows int.
// The shape must already be valid.
func (s Shape) NumBytes(itemSize int) (int, error) {
	n := s.NumElements()
	if itemSize > 0 && n > math.MaxInt/itemSize {
		return 0, fmt.Errorf("shape %v: %d-byte elements overflow int", s, itemSize)
	}
	return n * itemSize, nil
}

// Equal checks if two shapes are equal.
func (s Shape) Equal(other Shape) bool {
	if len(s) != len(other) {
		return false
	}
	for i := range s {
		if s[i] != other[i] {
			return false
		}
	}
	return true
}

// Clone returns a copy of the shape.
func (s Shape) Clone() Shape {
	clone := make(Shape, len(s))
	copy(clone, s)
	return clone
}

// ComputeStrides calculates row-major (C order) strides for the shape, in elements.
// stride[i] = product of all dimensions after i.
func (s Shape) ComputeStrides() []int {
	strides := make([]int, len(s))
	if len(s) == 0 {
		return strides
	}

	strides[len(s)-1] = 1
	for i := len(s) - 2; i >= 0; i-- {
		strides[i] = strides[i+1] * s[i+1]
	}
	return strides
}

// ComputeStridesF calculates column-major (F order) strides for the shape, in elements.
func (s Shape) ComputeStridesF() []int {
	strides := make([]int, len(s))
	if len(s) == 0 {
		return strides
	}

	strides[0] = 1
	for i := 1; i < len(s); i++ {
		strides[i] = strides[i-1] * s[i-1]
	}
	return strides
}

// String renders the shape as a tuple, e.g. "(3, 0, 4)".
func (s Shape) String() string {
	return formatTuple(s)
}

func formatTuple(dims []int) string {
	out := make([]byte, 0, 2+4*len(dims))
	out = append(out, '(')
	for i, d := range dims {
		if i > 0 {
			out = append(out, ", "...)
		}
		out = fmt.Appendf(out, "%d", d)
	}
	out = append(out, ')')
	return string(out)
}
