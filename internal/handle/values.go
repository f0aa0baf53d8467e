package handle

import (
	"fmt"
	"unsafe"

	"github.com/born-ml/ndbridge/internal/tensor"
)

func checkElem[T tensor.DType](h *Handle) error {
	if h.closed.Load() {
		return tensor.NewUseError("values", "handle already closed")
	}
	if want := tensor.DataTypeOf[T](); h.DType() != want {
		return fmt.Errorf("array dtype is %s, not %s", h.DType(), want)
	}
	if h.Device().Kind != tensor.CPU {
		return tensor.NewUseError("values", "data on %s is not host addressable", h.Device())
	}
	return nil
}

// Values returns a typed, writable zero-copy view of a contiguous host array, in
// memory order. Writes are visible to the array's producer.
//
// WARNING: The slice is valid only while the handle is open.
func Values[T tensor.DType](h *Handle) ([]T, error) {
	if err := checkElem[T](h); err != nil {
		return nil, err
	}
	if h.ReadOnly() {
		return nil, tensor.NewUseError("values", "array is read-only")
	}
	if !tensor.IsContiguous(h.desc.Shape(), h.desc.Strides()) {
		return nil, tensor.NewUseError("values", "array with strides %v is not contiguous", h.Strides())
	}
	if h.Size() == 0 {
		return []T{}, nil
	}
	//nolint:gosec // unsafe.Slice for zero-copy access, bounded by Size()
	return unsafe.Slice((*T)(h.DataPtr()), h.Size()), nil
}

// CopyValues gathers the elements of any host array, in C order, into a new slice.
// It works on read-only and non-contiguous views.
func CopyValues[T tensor.DType](h *Handle) ([]T, error) {
	if err := checkElem[T](h); err != nil {
		return nil, err
	}
	shape := h.desc.Shape()
	strides := h.desc.Strides()
	n := shape.NumElements()
	out := make([]T, n)
	base := h.DataPtr()
	item := h.ItemSize()
	idx := make([]int, len(shape))
	for k := 0; k < n; k++ {
		off := 0
		for i := range idx {
			off += idx[i] * strides[i]
		}
		out[k] = *(*T)(unsafe.Add(base, off*item)) //nolint:gosec // G103: bounded by shape
		for i := len(idx) - 1; i >= 0; i-- {
			idx[i]++
			if idx[i] < shape[i] {
				break
			}
			idx[i] = 0
		}
	}
	return out, nil
}
