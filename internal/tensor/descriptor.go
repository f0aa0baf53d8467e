package tensor

import (
	"fmt"
	"math"
	"strings"
	"sync/atomic"
	"unsafe"

	"github.com/born-ml/ndbridge/internal/lifetime"
)

// MaxRank is the default maximum number of dimensions accepted from foreign producers.
const MaxRank = 32

// Layout is the metadata part of a Descriptor.
// Strides are in elements; nil Strides means compact C order.
type Layout struct {
	Shape    Shape
	Strides  []int
	DType    DataType
	Device   Device
	ReadOnly bool
}

// Descriptor is one normalized, read-only array view.
//
// A Descriptor either borrows (owner is a lifetime cell) or exclusively owns its
// memory (buffer is set). Release performs the single decrement or free.
type Descriptor struct {
	ptr      unsafe.Pointer // Address of element 0
	shape    Shape
	strides  []int
	dtype    DataType
	device   Device
	readOnly bool

	owner    *lifetime.Cell
	buffer   *Buffer
	released atomic.Bool
}

// NewBorrowed creates a Descriptor over foreign memory. It takes over one reference
// the caller already holds on owner.
func NewBorrowed(ptr unsafe.Pointer, layout Layout, owner *lifetime.Cell) (*Descriptor, error) {
	if owner == nil {
		return nil, fmt.Errorf("borrowed descriptor requires an owner")
	}
	d, err := newDescriptor(ptr, layout)
	if err != nil {
		return nil, err
	}
	d.owner = owner
	return d, nil
}

// NewOwned creates a Descriptor that exclusively owns buf, taking over one reference on it.
func NewOwned(buf *Buffer, layout Layout) (*Descriptor, error) {
	data := buf.Bytes()
	if data == nil {
		return nil, NewUseError("own", "buffer already freed")
	}
	d, err := newDescriptor(unsafe.Pointer(unsafe.SliceData(data)), layout)
	if err != nil {
		return nil, err
	}
	if lo, hi := d.Span(); lo < 0 || hi > len(data) {
		return nil, fmt.Errorf("buffer holds %d bytes, layout addresses [%d, %d)", len(data), lo, hi)
	}
	d.buffer = buf
	return d, nil
}

// Validate checks that the layout describes an addressable view: a valid
// shape, a concrete dtype, one stride per axis, and a byte size and extent
// that fit in an int.
func (l Layout) Validate() error {
	if err := l.Shape.Validate(); err != nil {
		return fmt.Errorf("invalid shape: %w", err)
	}
	if l.DType.IsZero() || l.DType.Bits == 0 {
		return fmt.Errorf("descriptor requires a concrete dtype")
	}
	item := l.DType.Size()
	if _, err := l.Shape.NumBytes(item); err != nil {
		return err
	}
	if l.Strides == nil {
		return nil
	}
	if len(l.Strides) != len(l.Shape) {
		return fmt.Errorf("strides length %d != ndim %d", len(l.Strides), len(l.Shape))
	}
	if l.Shape.NumElements() == 0 {
		return nil
	}
	// Span sums one extent per axis; bound each so the sum cannot wrap.
	limit := math.MaxInt / (len(l.Shape) + 1)
	for i, n := range l.Shape {
		stride := l.Strides[i]
		if stride == math.MinInt {
			return fmt.Errorf("stride %d on axis %d overflows", stride, i)
		}
		if stride < 0 {
			stride = -stride
		}
		if n > 1 && stride > 0 && (n-1) > limit/stride/item {
			return fmt.Errorf("axis %d: extent of %d x stride %d overflows", i, n, l.Strides[i])
		}
	}
	return nil
}

func newDescriptor(ptr unsafe.Pointer, layout Layout) (*Descriptor, error) {
	if err := layout.Validate(); err != nil {
		return nil, err
	}
	strides := layout.Strides
	if strides == nil {
		strides = layout.Shape.ComputeStrides()
	} else {
		strides = append([]int(nil), strides...)
	}
	return &Descriptor{
		ptr:      ptr,
		shape:    layout.Shape.Clone(),
		strides:  strides,
		dtype:    layout.DType,
		device:   layout.Device,
		readOnly: layout.ReadOnly,
	}, nil
}

// NDim returns the number of dimensions.
func (d *Descriptor) NDim() int {
	return len(d.shape)
}

// Shape returns a copy of the shape.
func (d *Descriptor) Shape() Shape {
	return d.shape.Clone()
}

// Dim returns the length of axis i.
func (d *Descriptor) Dim(i int) int {
	return d.shape[i]
}

// Strides returns a copy of the strides, in elements.
func (d *Descriptor) Strides() []int {
	return append([]int(nil), d.strides...)
}

// Stride returns the stride of axis i, in elements.
func (d *Descriptor) Stride(i int) int {
	return d.strides[i]
}

// DType returns the element type.
func (d *Descriptor) DType() DataType {
	return d.dtype
}

// Device returns where the data resides.
func (d *Descriptor) Device() Device {
	return d.device
}

// ItemSize returns the byte size of one element.
func (d *Descriptor) ItemSize() int {
	return d.dtype.Size()
}

// Size returns the number of elements (product of shape).
func (d *Descriptor) Size() int {
	return d.shape.NumElements()
}

// NBytes returns Size() * ItemSize().
func (d *Descriptor) NBytes() int {
	return d.Size() * d.ItemSize()
}

// ReadOnly reports whether the producer forbids writes.
func (d *Descriptor) ReadOnly() bool {
	return d.readOnly
}

// Order classifies the layout. It is computed on every call.
func (d *Descriptor) Order() Order {
	return ComputeOrder(d.shape, d.strides)
}

// HasOrder reports whether the layout passes the contiguity check for o.
func (d *Descriptor) HasOrder(o Order) bool {
	return o.Satisfies(d.shape, d.strides)
}

// DataPtr returns the address of element 0. Valid only while the owner is alive.
func (d *Descriptor) DataPtr() unsafe.Pointer {
	if d.released.Load() {
		return nil
	}
	return d.ptr
}

// Owned reports whether the Descriptor exclusively owns its buffer.
func (d *Descriptor) Owned() bool {
	return d.buffer != nil
}

// Owner returns the lifetime cell of a borrowing Descriptor, or nil.
func (d *Descriptor) Owner() *lifetime.Cell {
	return d.owner
}

// Buffer returns the owned buffer, or nil for a borrowing Descriptor.
func (d *Descriptor) Buffer() *Buffer {
	return d.buffer
}

// Released reports whether Release has been called.
func (d *Descriptor) Released() bool {
	return d.released.Load()
}

// Clone returns a new Descriptor over the same memory, adding one reference
// to the owner (or the owned buffer).
func (d *Descriptor) Clone() (*Descriptor, error) {
	if d.released.Load() {
		return nil, NewUseError("clone", "descriptor already released")
	}
	switch {
	case d.owner != nil:
		if err := d.owner.Retain(); err != nil {
			return nil, NewUseError("clone", "%v", err)
		}
	case d.buffer != nil:
		if err := d.buffer.Retain(); err != nil {
			return nil, err
		}
	}
	return &Descriptor{
		ptr:      d.ptr,
		shape:    d.shape.Clone(),
		strides:  append([]int(nil), d.strides...),
		dtype:    d.dtype,
		device:   d.device,
		readOnly: d.readOnly,
		owner:    d.owner,
		buffer:   d.buffer,
	}, nil
}

// Release drops this Descriptor's reference. An owning Descriptor frees its buffer
// (once the last clone is gone); a borrowing one only decrements its cell.
// Calling Release more than once is a no-op.
func (d *Descriptor) Release() {
	if !d.released.CompareAndSwap(false, true) {
		return
	}
	switch {
	case d.owner != nil:
		_, _ = d.owner.Release()
	case d.buffer != nil:
		d.buffer.Release()
	}
}

// Span returns the byte range [lo, hi) addressed by the view, relative to element 0.
// Negative strides make lo negative. An empty view returns (0, 0).
func (d *Descriptor) Span() (lo, hi int) {
	if d.Size() == 0 {
		return 0, 0
	}
	item := d.ItemSize()
	for i, n := range d.shape {
		ext := (n - 1) * d.strides[i] * item
		if ext < 0 {
			lo += ext
		} else {
			hi += ext
		}
	}
	return lo, hi + item
}

// Bytes returns the memory of a contiguous host view as a byte slice.
func (d *Descriptor) Bytes() ([]byte, error) {
	if d.released.Load() {
		return nil, NewUseError("bytes", "descriptor already released")
	}
	if d.device.Kind != CPU {
		return nil, NewUseError("bytes", "data on %s is not host addressable", d.device)
	}
	if !IsContiguous(d.shape, d.strides) {
		return nil, NewUseError("bytes", "view with strides %v is not contiguous", d.strides)
	}
	if d.Size() == 0 || d.ptr == nil {
		return []byte{}, nil
	}
	// Contiguous strides are non-negative, so the view starts at element 0.
	_, hi := d.Span()
	//nolint:gosec // unsafe.Slice for zero-copy access, bounded by the view's span
	return unsafe.Slice((*byte)(d.ptr), hi), nil
}

// String renders the canonical form used in diagnostics.
func (d *Descriptor) String() string {
	var b strings.Builder
	b.WriteString("ndarray[dtype=")
	b.WriteString(d.dtype.String())
	b.WriteString(", shape=")
	b.WriteString(d.shape.String())
	fmt.Fprintf(&b, ", order='%s', device='%s']", d.Order(), d.device)
	return b.String()
}
