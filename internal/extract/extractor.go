// Package extract normalizes foreign array handles into Descriptors.
//
// A foreign handle is probed for, in order: an existing Descriptor, an exchange
// capsule, the exchange method, and the raw buffer protocol. Extraction is atomic:
// a failed extraction consumes nothing and leaves no lifetime-cell reference behind.
package extract

import (
	"runtime"
	"unsafe"

	"github.com/rs/zerolog"

	"github.com/born-ml/ndbridge/internal/dlpack"
	"github.com/born-ml/ndbridge/internal/lifetime"
	"github.com/born-ml/ndbridge/internal/tensor"
)

// Exchanger is implemented by foreign objects that expose the exchange protocol.
// Each call must return a fresh, unconsumed capsule.
type Exchanger interface {
	ExportCapsule() (*dlpack.Capsule, error)
}

// DescriptorSource is implemented by objects that already carry a Descriptor.
type DescriptorSource interface {
	Descriptor() *tensor.Descriptor
}

// Options configures an Extractor.
type Options struct {
	MaxRank int             // Maximum accepted ndim (tensor.MaxRank if zero)
	Logger  *zerolog.Logger // Debug logging (disabled if nil)
}

// Extractor converts foreign handles into Descriptors. It holds no mutable state
// and is safe for concurrent and reentrant use.
type Extractor struct {
	maxRank int
	log     zerolog.Logger
}

// New creates an Extractor.
func New(opts Options) *Extractor {
	e := &Extractor{
		maxRank: opts.MaxRank,
		log:     zerolog.Nop(),
	}
	if e.maxRank <= 0 {
		e.maxRank = tensor.MaxRank
	}
	if opts.Logger != nil {
		e.log = *opts.Logger
	}
	return e
}

// MaxRank returns the maximum accepted number of dimensions.
func (e *Extractor) MaxRank() int {
	return e.maxRank
}

// Extract returns a Descriptor holding one reference to the memory behind src.
// The caller must Release it.
func (e *Extractor) Extract(src any) (*tensor.Descriptor, error) {
	switch s := src.(type) {
	case nil:
		return nil, tensor.NewFormatError("", "nil array handle")
	case *tensor.Descriptor:
		return e.fromDescriptor(s)
	case DescriptorSource:
		return e.fromDescriptor(s.Descriptor())
	case *dlpack.Capsule:
		return e.FromCapsule(s)
	case Exchanger:
		c, err := s.ExportCapsule()
		if err != nil {
			return nil, &tensor.FormatError{Source: "exchange", Detail: "export failed", Err: err}
		}
		if c == nil {
			return nil, tensor.NewFormatError("exchange", "producer returned no capsule")
		}
		d, err := e.FromCapsule(c)
		if err != nil {
			// The capsule was produced for this call only; hand it back to its producer.
			c.Discard()
			return nil, err
		}
		return d, nil
	case BufferExporter:
		return e.fromBufferExporter(s)
	default:
		return nil, tensor.NewFormatError("", "%T exposes neither the exchange nor the buffer protocol", src)
	}
}

func (e *Extractor) fromDescriptor(d *tensor.Descriptor) (*tensor.Descriptor, error) {
	if d == nil {
		return nil, tensor.NewUseError("extract", "array handle already released")
	}
	if d.NDim() > e.maxRank {
		return nil, &tensor.RankLimitError{NDim: d.NDim(), Max: e.maxRank}
	}
	return d.Clone()
}

// FromCapsule validates and consumes an exchange capsule.
// A capsule that fails validation is left unconsumed.
func (e *Extractor) FromCapsule(c *dlpack.Capsule) (*tensor.Descriptor, error) {
	if c.Consumed() {
		return nil, tensor.NewUseError("consume", "exchange capsule already consumed")
	}
	ptr, layout, err := e.parseCapsule(c)
	if err != nil {
		return nil, err
	}
	cell, err := c.Consume()
	if err != nil {
		return nil, err
	}
	d, err := tensor.NewBorrowed(ptr, layout, cell)
	if err != nil {
		_, _ = cell.Release()
		return nil, err
	}
	e.log.Debug().
		Uint64("cell", cell.ID()).
		Stringer("array", d).
		Msg("consumed exchange capsule")
	return d, nil
}

func (e *Extractor) parseCapsule(c *dlpack.Capsule) (unsafe.Pointer, tensor.Layout, error) {
	var layout tensor.Layout
	if c.Version.Major > dlpack.MaxMajorVersion {
		return nil, layout, tensor.NewFormatError("exchange", "unsupported payload version %s", c.Version)
	}
	t := &c.Tensor
	if t.NDim < 0 {
		return nil, layout, tensor.NewFormatError("exchange", "negative ndim %d", t.NDim)
	}
	ndim := int(t.NDim)
	if ndim > e.maxRank {
		return nil, layout, &tensor.RankLimitError{NDim: ndim, Max: e.maxRank}
	}
	if len(t.Shape) != ndim {
		return nil, layout, tensor.NewFormatError("exchange", "shape has %d entries, ndim is %d", len(t.Shape), ndim)
	}
	if t.Strides != nil && len(t.Strides) != ndim {
		return nil, layout, tensor.NewFormatError("exchange", "strides have %d entries, ndim is %d", len(t.Strides), ndim)
	}
	dtype, err := t.DType.Normalize()
	if err != nil {
		return nil, layout, err
	}

	shape := make(tensor.Shape, ndim)
	for i, n := range t.Shape {
		if n < 0 {
			return nil, layout, tensor.NewFormatError("exchange", "negative extent %d on axis %d", n, i)
		}
		shape[i] = int(n)
	}
	var strides []int
	if t.Strides != nil {
		strides = make([]int, ndim)
		for i, s := range t.Strides {
			strides[i] = int(s)
		}
	}
	layout = tensor.Layout{
		Shape:    shape,
		Strides:  strides,
		DType:    dtype,
		Device:   t.Device.Normalize(),
		ReadOnly: c.ReadOnly,
	}
	if err := layout.Validate(); err != nil {
		return nil, tensor.Layout{}, &tensor.FormatError{Source: "exchange", Detail: "invalid layout", Err: err}
	}
	if t.Data == nil && shape.NumElements() > 0 {
		return nil, tensor.Layout{}, tensor.NewFormatError("exchange", "nil data pointer for non-empty array")
	}

	ptr := t.Data
	if ptr != nil && t.ByteOffset != 0 {
		ptr = unsafe.Add(ptr, t.ByteOffset)
	}
	return ptr, layout, nil
}

func (e *Extractor) fromBufferExporter(src BufferExporter) (*tensor.Descriptor, error) {
	buf, err := src.ExportBuffer()
	if err != nil {
		return nil, &tensor.FormatError{Source: "buffer", Detail: "export failed", Err: err}
	}
	if buf == nil {
		return nil, tensor.NewFormatError("buffer", "producer returned no buffer")
	}
	layout, err := e.parseBuffer(buf)
	if err != nil {
		if buf.Release != nil {
			buf.Release()
		}
		return nil, err
	}
	release := buf.Release
	cell := lifetime.New(func() {
		if release != nil {
			release()
		}
		// The exporting object owns the memory; keep it reachable until here.
		runtime.KeepAlive(src)
	})
	d, err := tensor.NewBorrowed(buf.Ptr, layout, cell)
	if err != nil {
		_, _ = cell.Release()
		return nil, err
	}
	e.log.Debug().
		Uint64("cell", cell.ID()).
		Str("format", buf.Format).
		Stringer("array", d).
		Msg("borrowed raw buffer")
	return d, nil
}

func (e *Extractor) parseBuffer(buf *Buffer) (tensor.Layout, error) {
	var layout tensor.Layout
	if buf.NDim != len(buf.Shape) {
		return layout, tensor.NewFormatError("buffer", "shape has %d entries, ndim is %d", len(buf.Shape), buf.NDim)
	}
	if buf.NDim > e.maxRank {
		return layout, &tensor.RankLimitError{NDim: buf.NDim, Max: e.maxRank}
	}
	dtype, err := ParseFormat(buf.Format)
	if err != nil {
		return layout, err
	}
	if buf.ItemSize != dtype.Size() {
		return layout, tensor.NewFormatError("buffer", "itemsize %d does not match format %q", buf.ItemSize, buf.Format)
	}
	shape := tensor.Shape(append([]int(nil), buf.Shape...))
	if err := shape.Validate(); err != nil {
		return layout, &tensor.FormatError{Source: "buffer", Detail: "invalid shape", Err: err}
	}
	var strides []int
	if buf.Strides != nil {
		if len(buf.Strides) != buf.NDim {
			return layout, tensor.NewFormatError("buffer", "strides have %d entries, ndim is %d", len(buf.Strides), buf.NDim)
		}
		strides = make([]int, buf.NDim)
		for i, s := range buf.Strides {
			if s%buf.ItemSize != 0 {
				return layout, tensor.NewFormatError("buffer", "byte stride %d on axis %d is not a multiple of itemsize %d", s, i, buf.ItemSize)
			}
			strides[i] = s / buf.ItemSize
		}
	}
	if buf.Ptr == nil && shape.NumElements() > 0 {
		return layout, tensor.NewFormatError("buffer", "nil data pointer for non-empty array")
	}
	layout = tensor.Layout{
		Shape:    shape,
		Strides:  strides,
		DType:    dtype,
		Device:   tensor.HostDevice,
		ReadOnly: buf.ReadOnly,
	}
	if err := layout.Validate(); err != nil {
		return tensor.Layout{}, &tensor.FormatError{Source: "buffer", Detail: "invalid layout", Err: err}
	}
	return layout, nil
}
