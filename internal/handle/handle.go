// Package handle provides the array object native code receives and returns.
//
// A Handle wraps one Descriptor. A handle over natively-owned memory frees it
// exactly once; a handle over borrowed memory holds one reference on the
// lifetime cell and only ever decrements it. A handle that is never closed is
// released by a GC cleanup instead.
package handle

import (
	"fmt"
	"runtime"
	"sync/atomic"
	"unsafe"

	"github.com/born-ml/ndbridge/internal/tensor"
)

// Native is the ecosystem name of arrays created by this module.
const Native = "ndbridge"

// EcosystemTagger is implemented by foreign objects that name the array
// ecosystem they belong to (e.g. "numpy").
type EcosystemTagger interface {
	Ecosystem() string
}

// EcosystemOf returns the ecosystem name of src, or "" if it does not declare one.
func EcosystemOf(src any) string {
	if t, ok := src.(EcosystemTagger); ok {
		return t.Ecosystem()
	}
	return ""
}

// Handle is a safe wrapper around one Descriptor.
type Handle struct {
	desc         *tensor.Descriptor
	source       any    // Foreign object the array was accepted from, if any
	ecosystem    string // Ecosystem of source
	materialized bool   // Data is a conversion copy, not the source's memory

	closed  atomic.Bool
	cleanup runtime.Cleanup
}

func newHandle(d *tensor.Descriptor, source any, materialized bool) *Handle {
	h := &Handle{
		desc:         d,
		source:       source,
		ecosystem:    EcosystemOf(source),
		materialized: materialized,
	}
	h.cleanup = runtime.AddCleanup(h, (*tensor.Descriptor).Release, d)
	return h
}

// Borrow wraps a borrowed (or shared) Descriptor. The handle takes its own
// reference, so the caller keeps and must still release d.
func Borrow(d *tensor.Descriptor, source any) (*Handle, error) {
	clone, err := d.Clone()
	if err != nil {
		return nil, err
	}
	return newHandle(clone, source, false), nil
}

// Own wraps an exclusively owned Descriptor, taking over the caller's reference.
func Own(d *tensor.Descriptor) (*Handle, error) {
	if !d.Owned() {
		return nil, fmt.Errorf("own: descriptor borrows foreign memory, use Borrow")
	}
	if d.Released() {
		return nil, tensor.NewUseError("own", "descriptor already released")
	}
	return newHandle(d, nil, false), nil
}

// Adopt wraps an owned Descriptor produced by converting source. The handle
// takes over the caller's reference and never passes source through unchanged.
func Adopt(d *tensor.Descriptor, source any) (*Handle, error) {
	if !d.Owned() {
		return nil, fmt.Errorf("adopt: descriptor borrows foreign memory, use Borrow")
	}
	if d.Released() {
		return nil, tensor.NewUseError("adopt", "descriptor already released")
	}
	return newHandle(d, source, true), nil
}

// New allocates a zeroed, natively-owned array.
func New(shape tensor.Shape, dtype tensor.DataType, order tensor.Order, alloc tensor.Allocator) (*Handle, error) {
	if err := shape.Validate(); err != nil {
		return nil, fmt.Errorf("invalid shape: %w", err)
	}
	strides := shape.ComputeStrides()
	if order == tensor.OrderF {
		strides = shape.ComputeStridesF()
	}
	buf, err := tensor.NewBuffer(shape.NumElements()*dtype.Size(), alloc)
	if err != nil {
		return nil, err
	}
	d, err := tensor.NewOwned(buf, tensor.Layout{
		Shape:   shape,
		Strides: strides,
		DType:   dtype,
		Device:  tensor.HostDevice,
	})
	if err != nil {
		buf.Release()
		return nil, err
	}
	return newHandle(d, nil, false), nil
}

// FromSlice creates a natively-owned C-order array from a Go slice.
// The slice is copied into the array's memory.
func FromSlice[T tensor.DType](data []T, shape tensor.Shape) (*Handle, error) {
	if shape.NumElements() != len(data) {
		return nil, fmt.Errorf("shape %v requires %d elements, but got %d", shape, shape.NumElements(), len(data))
	}
	h, err := New(shape, tensor.DataTypeOf[T](), tensor.OrderC, nil)
	if err != nil {
		return nil, err
	}
	dst, err := Values[T](h)
	if err != nil {
		_ = h.Close()
		return nil, err
	}
	copy(dst, data)
	return h, nil
}

// Close releases the handle's reference. It is idempotent.
func (h *Handle) Close() error {
	if !h.closed.CompareAndSwap(false, true) {
		return nil
	}
	h.cleanup.Stop()
	h.desc.Release()
	return nil
}

// Closed reports whether Close has been called.
func (h *Handle) Closed() bool {
	return h.closed.Load()
}

// Descriptor returns the wrapped Descriptor, or nil once the handle is closed.
func (h *Handle) Descriptor() *tensor.Descriptor {
	if h.closed.Load() {
		return nil
	}
	return h.desc
}

// Ecosystem reports Native: a Handle handed back to this module passes through.
func (h *Handle) Ecosystem() string {
	return Native
}

// Source returns the foreign object the array was accepted from, if any.
func (h *Handle) Source() any {
	return h.source
}

// Materialized reports whether the data is a conversion copy.
func (h *Handle) Materialized() bool {
	return h.materialized
}

// NDim returns the number of dimensions.
func (h *Handle) NDim() int { return h.desc.NDim() }

// Shape returns the array shape.
func (h *Handle) Shape() tensor.Shape { return h.desc.Shape() }

// Strides returns the strides in elements.
func (h *Handle) Strides() []int { return h.desc.Strides() }

// DType returns the element type.
func (h *Handle) DType() tensor.DataType { return h.desc.DType() }

// Device returns where the data resides.
func (h *Handle) Device() tensor.Device { return h.desc.Device() }

// Order classifies the memory layout.
func (h *Handle) Order() tensor.Order { return h.desc.Order() }

// ItemSize returns the byte size of one element.
func (h *Handle) ItemSize() int { return h.desc.ItemSize() }

// Size returns the number of elements.
func (h *Handle) Size() int { return h.desc.Size() }

// NBytes returns Size() * ItemSize().
func (h *Handle) NBytes() int { return h.desc.NBytes() }

// ReadOnly reports whether writes are forbidden.
func (h *Handle) ReadOnly() bool { return h.desc.ReadOnly() }

// Owned reports whether the handle exclusively owns its memory.
func (h *Handle) Owned() bool { return h.desc.Owned() }

// DataPtr returns the address of element 0; nil once the handle is closed.
func (h *Handle) DataPtr() unsafe.Pointer {
	if h.closed.Load() {
		return nil
	}
	return h.desc.DataPtr()
}

// Bytes returns the memory of a contiguous host array.
func (h *Handle) Bytes() ([]byte, error) {
	if h.closed.Load() {
		return nil, tensor.NewUseError("bytes", "handle already closed")
	}
	return h.desc.Bytes()
}

// String renders the canonical array form.
func (h *Handle) String() string {
	if h.closed.Load() {
		return "ndarray[closed]"
	}
	return h.desc.String()
}
