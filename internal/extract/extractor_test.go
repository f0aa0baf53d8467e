package extract

import (
	"errors"
	"math"
	"sync/atomic"
	"testing"
	"unsafe"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/born-ml/ndbridge/internal/dlpack"
	"github.com/born-ml/ndbridge/internal/tensor"
)

// bufferSource is a raw buffer protocol producer over a Go slice.
type bufferSource struct {
	data     []byte
	format   string
	itemSize int
	shape    []int
	strides  []int
	readOnly bool
	releases atomic.Int32
	fail     error
}

func (b *bufferSource) ExportBuffer() (*Buffer, error) {
	if b.fail != nil {
		return nil, b.fail
	}
	return &Buffer{
		Ptr:      unsafe.Pointer(unsafe.SliceData(b.data)),
		Format:   b.format,
		ItemSize: b.itemSize,
		NDim:     len(b.shape),
		Shape:    b.shape,
		Strides:  b.strides,
		ReadOnly: b.readOnly,
		Release:  func() { b.releases.Add(1) },
	}, nil
}

// exchangeSource is an exchange protocol producer; every call returns a new capsule.
type exchangeSource struct {
	data    []float32
	payload dlpack.Tensor
	deletes atomic.Int32
}

func newExchangeSource(data []float32, shape ...int64) *exchangeSource {
	return &exchangeSource{
		data: data,
		payload: dlpack.Tensor{
			Device: dlpack.Device{Type: dlpack.DeviceCPU},
			NDim:   int32(len(shape)),
			DType:  dlpack.DataType{Code: dlpack.CodeFloat, Bits: 32, Lanes: 1},
			Shape:  shape,
		},
	}
}

func (e *exchangeSource) ExportCapsule() (*dlpack.Capsule, error) {
	p := e.payload
	p.Data = unsafe.Pointer(unsafe.SliceData(e.data))
	return dlpack.NewCapsule(p, false, func() { e.deletes.Add(1) }), nil
}

func TestParseFormat(t *testing.T) {
	tests := []struct {
		format  string
		want    tensor.DataType
		wantErr bool
	}{
		{"f", tensor.Float32, false},
		{"<f", tensor.Float32, false},
		{"=d", tensor.Float64, false},
		{"@B", tensor.Uint8, false},
		{"?", tensor.Bool, false},
		{"e", tensor.Float16, false},
		{"l", tensor.Int64, false},
		{"Q", tensor.Uint64, false},
		{">f", tensor.DataType{}, true},
		{"!i", tensor.DataType{}, true},
		{"Zd", tensor.DataType{}, true},
		{"", tensor.DataType{}, true},
		{"ff", tensor.DataType{}, true},
		{"x", tensor.DataType{}, true},
	}
	for _, tt := range tests {
		t.Run(tt.format, func(t *testing.T) {
			got, err := ParseFormat(tt.format)
			if tt.wantErr {
				require.ErrorIs(t, err, tensor.ErrFormat)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestFormatCode_RoundTrip(t *testing.T) {
	for _, dt := range []tensor.DataType{
		tensor.Bool, tensor.Int8, tensor.Uint8, tensor.Int16, tensor.Uint16, tensor.Int32,
		tensor.Uint32, tensor.Int64, tensor.Uint64, tensor.Float16, tensor.Float32, tensor.Float64,
	} {
		code, ok := FormatCode(dt)
		require.True(t, ok, dt.String())
		got, err := ParseFormat(code)
		require.NoError(t, err)
		assert.Equal(t, dt, got)
	}
	_, ok := FormatCode(tensor.DataType{Code: tensor.Int, Bits: 8, Lanes: 4})
	assert.False(t, ok)
}

// TestExtract_BufferTwiceIdentical tests that buffer extraction is repeatable.
func TestExtract_BufferTwiceIdentical(t *testing.T) {
	src := &bufferSource{
		data:     make([]byte, 3*4*2),
		format:   "<h",
		itemSize: 2,
		shape:    []int{3, 4},
		strides:  []int{2, 6}, // column-major
	}
	e := New(Options{})

	a, err := e.Extract(src)
	require.NoError(t, err)
	b, err := e.Extract(src)
	require.NoError(t, err)

	assert.Equal(t, a.Shape(), b.Shape())
	assert.Equal(t, []int{1, 3}, a.Strides())
	assert.Equal(t, a.Strides(), b.Strides())
	assert.Equal(t, tensor.Int16, a.DType())
	assert.Equal(t, a.DType(), b.DType())
	assert.Equal(t, a.Device(), b.Device())
	assert.Equal(t, tensor.OrderF, a.Order())
	assert.Equal(t, a.Order(), b.Order())
	assert.Equal(t, a.DataPtr(), b.DataPtr())

	a.Release()
	b.Release()
	assert.Equal(t, int32(2), src.releases.Load(), "each export is released exactly once")
}

func TestExtract_BufferRejected(t *testing.T) {
	tests := []struct {
		name string
		src  *bufferSource
	}{
		{"stride not multiple of itemsize", &bufferSource{data: make([]byte, 16), format: "i", itemSize: 4, shape: []int{2}, strides: []int{6}}},
		{"itemsize mismatch", &bufferSource{data: make([]byte, 16), format: "i", itemSize: 8, shape: []int{2}}},
		{"unknown format", &bufferSource{data: make([]byte, 16), format: "Zf", itemSize: 8, shape: []int{2}}},
		{"big-endian", &bufferSource{data: make([]byte, 16), format: ">i", itemSize: 4, shape: []int{2}}},
		{"negative extent", &bufferSource{data: make([]byte, 16), format: "b", itemSize: 1, shape: []int{-2}}},
		{"strides length", &bufferSource{data: make([]byte, 16), format: "b", itemSize: 1, shape: []int{2, 2}, strides: []int{1}}},
		{"element count wraps", &bufferSource{data: make([]byte, 4), format: "f", itemSize: 4, shape: []int{7, 0x6DB6DB6DB6DB6DB7}}},
		{"byte count wraps", &bufferSource{data: make([]byte, 8), format: "d", itemSize: 8, shape: []int{math.MaxInt / 4}}},
		{"stride extent wraps", &bufferSource{data: make([]byte, 8), format: "d", itemSize: 8, shape: []int{4}, strides: []int{math.MaxInt / 8 * 8}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := New(Options{}).Extract(tt.src)
			require.ErrorIs(t, err, tensor.ErrFormat)
			assert.Equal(t, int32(1), tt.src.releases.Load(), "rejected buffer is handed back")
		})
	}
}

func TestExtract_BufferExportFails(t *testing.T) {
	cause := errors.New("not contiguous")
	_, err := New(Options{}).Extract(&bufferSource{fail: cause})
	require.ErrorIs(t, err, tensor.ErrFormat)
	require.ErrorIs(t, err, cause)
}

func TestExtract_BufferReadOnly(t *testing.T) {
	src := &bufferSource{data: make([]byte, 8), format: "d", itemSize: 8, shape: []int{}, readOnly: true}
	d, err := New(Options{}).Extract(src)
	require.NoError(t, err)
	defer d.Release()

	assert.True(t, d.ReadOnly())
	assert.Equal(t, 0, d.NDim())
	assert.Equal(t, 1, d.Size(), "zero-rank arrays hold one element")
}

// TestExtract_CapsuleConsumedOnce tests that a capsule can only feed one extraction.
func TestExtract_CapsuleConsumedOnce(t *testing.T) {
	src := newExchangeSource([]float32{1, 2, 3, 4, 5, 6, 7, 8}, 2, 4)
	c, err := src.ExportCapsule()
	require.NoError(t, err)
	e := New(Options{})

	d, err := e.Extract(c)
	require.NoError(t, err)
	assert.Equal(t, tensor.Shape{2, 4}, d.Shape())
	assert.Equal(t, []int{4, 1}, d.Strides(), "absent strides mean compact C order")
	assert.Equal(t, tensor.OrderC, d.Order())

	_, err = e.Extract(c)
	require.ErrorIs(t, err, tensor.ErrUse)

	d.Release()
	assert.Equal(t, int32(1), src.deletes.Load())
}

func TestExtract_CapsuleByteOffsetAndStrides(t *testing.T) {
	data := []float32{0, 1, 2, 3, 4, 5, 6, 7}
	src := newExchangeSource(data, 2, 2)
	src.payload.Strides = []int64{4, 2}
	src.payload.ByteOffset = 4

	d, err := New(Options{}).Extract(src)
	require.NoError(t, err)
	defer d.Release()

	assert.Equal(t, unsafe.Pointer(&data[1]), d.DataPtr())
	assert.Equal(t, []int{4, 2}, d.Strides())
	assert.Equal(t, tensor.OrderUnknown, d.Order())
}

// TestExtract_Atomic tests that a rejected capsule leaves nothing behind.
func TestExtract_Atomic(t *testing.T) {
	t.Run("rank limit", func(t *testing.T) {
		src := newExchangeSource(make([]float32, 8), 2, 2, 2)
		c, err := src.ExportCapsule()
		require.NoError(t, err)

		_, err = New(Options{MaxRank: 2}).Extract(c)
		require.ErrorIs(t, err, tensor.ErrRankLimit)
		var rankErr *tensor.RankLimitError
		require.ErrorAs(t, err, &rankErr)
		assert.Equal(t, 3, rankErr.NDim)
		assert.False(t, c.Consumed(), "a bare capsule stays with its owner on failure")

		d, err := New(Options{}).Extract(c)
		require.NoError(t, err)
		d.Release()
		assert.Equal(t, int32(1), src.deletes.Load())
	})

	t.Run("unsupported version", func(t *testing.T) {
		src := newExchangeSource(make([]float32, 2), 2)
		c, err := src.ExportCapsule()
		require.NoError(t, err)
		c.Version = dlpack.Version{Major: 2}
		_, err = New(Options{}).Extract(c)
		require.ErrorIs(t, err, tensor.ErrFormat)
		assert.False(t, c.Consumed())
	})

	t.Run("exchanger capsule discarded", func(t *testing.T) {
		src := newExchangeSource(make([]float32, 2), 2)
		src.payload.DType = dlpack.DataType{Code: dlpack.CodeBfloat, Bits: 16, Lanes: 1}
		_, err := New(Options{}).Extract(src)
		require.ErrorIs(t, err, tensor.ErrFormat)
		assert.Equal(t, int32(1), src.deletes.Load(), "per-call capsule goes back to its producer")
	})

	t.Run("shape length", func(t *testing.T) {
		src := newExchangeSource(make([]float32, 2), 2)
		src.payload.NDim = 2
		_, err := New(Options{}).Extract(src)
		require.ErrorIs(t, err, tensor.ErrFormat)
	})

	t.Run("element count wraps", func(t *testing.T) {
		// 7 * 0x6DB6DB6DB6DB6DB7 is 1 modulo 2^64.
		src := newExchangeSource([]float32{1}, 7, 0x6DB6DB6DB6DB6DB7)
		c, err := src.ExportCapsule()
		require.NoError(t, err)

		_, err = New(Options{}).Extract(c)
		require.ErrorIs(t, err, tensor.ErrFormat)
		assert.False(t, c.Consumed())

		_, err = New(Options{}).Extract(src)
		require.ErrorIs(t, err, tensor.ErrFormat)
		assert.Equal(t, int32(1), src.deletes.Load(), "only the per-call capsule was handed back")
		c.Discard()
		assert.Equal(t, int32(2), src.deletes.Load())
	})

	t.Run("stride extent wraps", func(t *testing.T) {
		src := newExchangeSource([]float32{1, 2}, 2)
		src.payload.Strides = []int64{math.MaxInt64 / 2}
		_, err := New(Options{}).Extract(src)
		require.ErrorIs(t, err, tensor.ErrFormat)
		assert.Equal(t, int32(1), src.deletes.Load())
	})

	t.Run("nil data", func(t *testing.T) {
		src := newExchangeSource(nil, 2)
		_, err := New(Options{}).Extract(src)
		require.ErrorIs(t, err, tensor.ErrFormat)

		empty := newExchangeSource(nil, 0)
		d, err := New(Options{}).Extract(empty)
		require.NoError(t, err)
		d.Release()
	})
}

func TestExtract_Descriptor(t *testing.T) {
	src := newExchangeSource(make([]float32, 4), 4)
	e := New(Options{})
	d, err := e.Extract(src)
	require.NoError(t, err)

	again, err := e.Extract(d)
	require.NoError(t, err)
	assert.Equal(t, int64(2), d.Owner().Refs())

	d.Release()
	again.Release()
	assert.Equal(t, int32(1), src.deletes.Load())

	_, err = e.Extract(d)
	require.ErrorIs(t, err, tensor.ErrUse)
}

func TestExtract_Unsupported(t *testing.T) {
	_, err := New(Options{}).Extract(nil)
	require.ErrorIs(t, err, tensor.ErrFormat)

	_, err = New(Options{}).Extract([]float32{1, 2})
	require.ErrorIs(t, err, tensor.ErrFormat)
}
