package tensor

import (
	"math"
	"sync"
	"sync/atomic"
	"testing"
	"unsafe"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/born-ml/ndbridge/internal/lifetime"
)

func TestHeapAllocator_Limit(t *testing.T) {
	alloc := &HeapAllocator{Limit: 64}

	a, err := NewBuffer(48, alloc)
	require.NoError(t, err)
	assert.Equal(t, int64(48), alloc.Live())

	_, err = NewBuffer(32, alloc)
	require.ErrorIs(t, err, ErrAllocation)
	var allocErr *AllocationError
	require.ErrorAs(t, err, &allocErr)
	assert.Equal(t, 32, allocErr.Bytes)
	assert.Equal(t, int64(48), alloc.Live(), "failed allocation must not leak accounting")

	a.Release()
	assert.Equal(t, int64(0), alloc.Live())

	b, err := NewBuffer(64, alloc)
	require.NoError(t, err)
	b.Release()
}

func TestBuffer_RefCount(t *testing.T) {
	alloc := &HeapAllocator{}
	buf, err := NewBuffer(16, alloc)
	require.NoError(t, err)
	assert.True(t, buf.IsUnique())

	require.NoError(t, buf.Retain())
	assert.False(t, buf.IsUnique())

	buf.Release()
	assert.NotNil(t, buf.Bytes())
	buf.Release()
	assert.Nil(t, buf.Bytes())
	assert.Equal(t, int64(0), alloc.Live())

	buf.Release() // no-op
	require.ErrorIs(t, buf.Retain(), ErrUse)
}

// TestDescriptor_Owned tests exclusive ownership: the buffer is freed exactly once.
func TestDescriptor_Owned(t *testing.T) {
	alloc := &HeapAllocator{}
	buf, err := NewBuffer(3*4*4, alloc)
	require.NoError(t, err)
	d, err := NewOwned(buf, Layout{Shape: Shape{3, 4}, DType: Float32, Device: HostDevice})
	require.NoError(t, err)

	assert.True(t, d.Owned())
	assert.Nil(t, d.Owner())
	assert.Equal(t, 2, d.NDim())
	assert.Equal(t, []int{4, 1}, d.Strides())
	assert.Equal(t, OrderC, d.Order())
	assert.Equal(t, 12, d.Size())
	assert.Equal(t, 48, d.NBytes())

	clone, err := d.Clone()
	require.NoError(t, err)
	d.Release()
	d.Release()
	assert.Nil(t, d.DataPtr())
	assert.NotNil(t, clone.DataPtr())
	assert.Equal(t, int64(48), alloc.Live())

	clone.Release()
	assert.Equal(t, int64(0), alloc.Live())

	_, err = d.Clone()
	require.ErrorIs(t, err, ErrUse)
}

func TestNewOwned_TooSmall(t *testing.T) {
	buf, err := NewBuffer(8, nil)
	require.NoError(t, err)
	defer buf.Release()
	_, err = NewOwned(buf, Layout{Shape: Shape{4}, DType: Float32})
	require.Error(t, err)

	// Two elements, but strided past the end of the buffer.
	_, err = NewOwned(buf, Layout{Shape: Shape{2}, Strides: []int{4}, DType: Float32})
	require.Error(t, err)
	// Negative strides would read before the buffer.
	_, err = NewOwned(buf, Layout{Shape: Shape{2}, Strides: []int{-1}, DType: Float32})
	require.Error(t, err)

	d, err := NewOwned(buf, Layout{Shape: Shape{2}, DType: Float32})
	require.NoError(t, err)
	assert.Equal(t, 8, d.NBytes())
}

func TestLayout_Validate(t *testing.T) {
	tests := []struct {
		name   string
		layout Layout
		ok     bool
	}{
		{"compact", Layout{Shape: Shape{2, 3}, DType: Float32}, true},
		{"empty with junk strides", Layout{Shape: Shape{3, 0, 4}, Strides: []int{math.MaxInt, 1, 1}, DType: Float32}, true},
		{"element count wraps", Layout{Shape: Shape{7, 0x6DB6DB6DB6DB6DB7}, DType: Float32}, false},
		{"byte count wraps", Layout{Shape: Shape{math.MaxInt / 2}, DType: Float64}, false},
		{"stride extent wraps", Layout{Shape: Shape{3}, Strides: []int{math.MaxInt / 2}, DType: Int8}, false},
		{"min stride", Layout{Shape: Shape{2}, Strides: []int{math.MinInt}, DType: Int8}, false},
		{"unit axis ignores stride", Layout{Shape: Shape{1, 4}, Strides: []int{math.MaxInt, 1}, DType: Int8}, true},
		{"strides length", Layout{Shape: Shape{2}, Strides: []int{1, 1}, DType: Int8}, false},
		{"no dtype", Layout{Shape: Shape{2}}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.layout.Validate()
			if tt.ok {
				require.NoError(t, err)
			} else {
				require.Error(t, err)
			}
		})
	}
}

// TestDescriptor_Borrowed tests that borrowing descriptors only decrement the cell.
func TestDescriptor_Borrowed(t *testing.T) {
	data := []int16{1, 2, 3, 4, 5, 6}
	var fired atomic.Int32
	cell := lifetime.New(func() { fired.Add(1) })

	d, err := NewBorrowed(unsafe.Pointer(unsafe.SliceData(data)), Layout{
		Shape:    Shape{3, 2},
		Strides:  []int{1, 3},
		DType:    Int16,
		ReadOnly: true,
	}, cell)
	require.NoError(t, err)
	assert.False(t, d.Owned())
	assert.Same(t, cell, d.Owner())
	assert.True(t, d.ReadOnly())
	assert.Equal(t, OrderF, d.Order())
	assert.True(t, d.HasOrder(OrderF))
	assert.False(t, d.HasOrder(OrderC))

	const n = 16
	clones := make([]*Descriptor, n)
	for i := range clones {
		clones[i], err = d.Clone()
		require.NoError(t, err)
	}
	assert.Equal(t, int64(n+1), cell.Refs())

	d.Release()
	var wg sync.WaitGroup
	for _, c := range clones {
		wg.Add(1)
		go func(c *Descriptor) {
			defer wg.Done()
			c.Release()
		}(c)
	}
	wg.Wait()
	assert.Equal(t, int32(1), fired.Load())
}

func TestNewBorrowed_Invalid(t *testing.T) {
	_, err := NewBorrowed(nil, Layout{Shape: Shape{1}, DType: Int8}, nil)
	require.Error(t, err)

	cell := lifetime.New(nil)
	_, err = NewBorrowed(nil, Layout{Shape: Shape{2}, Strides: []int{1, 1}, DType: Int8}, cell)
	require.Error(t, err)
	_, err = NewBorrowed(nil, Layout{Shape: Shape{-1}, DType: Int8}, cell)
	require.Error(t, err)
	_, err = NewBorrowed(nil, Layout{Shape: Shape{1}}, cell)
	require.Error(t, err)
}

func TestDescriptor_SpanAndBytes(t *testing.T) {
	data := make([]float64, 12)
	cell := lifetime.New(nil)
	base := unsafe.Pointer(unsafe.SliceData(data))

	// Every other column of a (3, 4) row-major array.
	d, err := NewBorrowed(base, Layout{Shape: Shape{3, 2}, Strides: []int{4, 2}, DType: Float64}, cell)
	require.NoError(t, err)
	lo, hi := d.Span()
	assert.Equal(t, 0, lo)
	assert.Equal(t, (2*4+1*2+1)*8, hi)
	_, err = d.Bytes()
	require.ErrorIs(t, err, ErrUse)

	// Reversed rows.
	rev, err := NewBorrowed(unsafe.Add(base, 8*8), Layout{Shape: Shape{3, 4}, Strides: []int{-4, 1}, DType: Float64}, cell)
	require.NoError(t, err)
	lo, hi = rev.Span()
	assert.Equal(t, -64, lo)
	assert.Equal(t, 32, hi)

	compact, err := NewBorrowed(base, Layout{Shape: Shape{3, 4}, DType: Float64}, cell)
	require.NoError(t, err)
	b, err := compact.Bytes()
	require.NoError(t, err)
	assert.Len(t, b, 96)
}

func TestDescriptor_String(t *testing.T) {
	buf, err := NewBuffer(0, nil)
	require.NoError(t, err)
	d, err := NewOwned(buf, Layout{Shape: Shape{3, 0, 4}, DType: Float32, Device: HostDevice})
	require.NoError(t, err)
	defer d.Release()
	assert.Equal(t, "ndarray[dtype=float32, shape=(3, 0, 4), order='C', device='cpu:0']", d.String())
}
