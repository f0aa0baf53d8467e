package tensor

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

// TestComputeOrder tests contiguity classification in element strides.
func TestComputeOrder(t *testing.T) {
	tests := []struct {
		name    string
		shape   Shape
		strides []int
		want    Order
	}{
		{"row-major 3D", Shape{3, 4, 5}, []int{20, 5, 1}, OrderC},
		{"column-major 3D", Shape{3, 4, 5}, []int{1, 3, 12}, OrderF},
		{"transposed view", Shape{4, 3}, []int{1, 4}, OrderF},
		{"sliced every other row", Shape{3, 4}, []int{8, 1}, OrderUnknown},
		{"permuted 3D", Shape{3, 4, 5}, []int{5, 15, 1}, OrderUnknown},
		{"1D compact", Shape{7}, []int{1}, OrderC},
		{"1D strided", Shape{7}, []int{2}, OrderUnknown},
		{"scalar", Shape{}, []int{}, OrderC},
		{"empty axis with junk stride", Shape{3, 0, 4}, []int{4, 999, 1}, OrderC},
		{"empty array, computed strides", Shape{3, 0, 4}, []int{0, 4, 1}, OrderC},
		{"all degenerate", Shape{1, 1, 1}, []int{7, 3, 11}, OrderC},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ComputeOrder(tt.shape, tt.strides))
		})
	}
}

// TestOrder_DegenerateAxesNeverBlock tests that unit axes and empty arrays pass both checks.
func TestOrder_DegenerateAxesNeverBlock(t *testing.T) {
	// (100, 1) column vector: the stride of the unit axis is arbitrary.
	shape := Shape{100, 1}
	strides := []int{1, 42}
	assert.True(t, OrderF.Satisfies(shape, strides))
	assert.True(t, OrderC.Satisfies(shape, strides))

	// A unit axis does not rescue a real axis with the wrong stride.
	assert.False(t, OrderC.Satisfies(Shape{100, 1}, []int{2, 1}))
	assert.False(t, OrderF.Satisfies(Shape{100, 1}, []int{2, 1}))

	// (1, 100) row vector: both checks hold regardless of the unit axis stride.
	shape = Shape{1, 100}
	strides = []int{5, 1}
	assert.True(t, OrderC.Satisfies(shape, strides))
	assert.True(t, OrderF.Satisfies(shape, strides))
	assert.Equal(t, OrderC, ComputeOrder(shape, strides), "C wins when both hold")

	// Multiple degenerate axes between real ones.
	shape = Shape{2, 1, 3, 1}
	assert.True(t, OrderC.Satisfies(shape, []int{3, 0, 1, 0}))
	assert.True(t, OrderF.Satisfies(shape, []int{1, 9, 2, 9}))

	assert.False(t, OrderUnknown.Satisfies(shape, []int{3, 0, 1, 0}))

	// No element is addressed, so any strides pass.
	assert.True(t, OrderF.Satisfies(Shape{3, 0, 4}, []int{0, 4, 1}))
}

func TestOrder_String(t *testing.T) {
	assert.Equal(t, "C", OrderC.String())
	assert.Equal(t, "F", OrderF.String())
	assert.Equal(t, "?", OrderUnknown.String())
}
