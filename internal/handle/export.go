package handle

import (
	"github.com/born-ml/ndbridge/internal/dlpack"
	"github.com/born-ml/ndbridge/internal/tensor"
)

// ExportCapsule packages the array as a new exchange capsule.
//
// The capsule holds its own reference to the memory; its deleter drops that
// reference and never invokes the original producer's deleter directly.
func (h *Handle) ExportCapsule() (*dlpack.Capsule, error) {
	if h.closed.Load() {
		return nil, tensor.NewUseError("export", "handle already closed")
	}
	ref, err := h.desc.Clone()
	if err != nil {
		return nil, err
	}
	shape := ref.Shape()
	strides := ref.Strides()
	payload := dlpack.Tensor{
		Data:    ref.DataPtr(),
		Device:  dlpack.WireDevice(ref.Device()),
		NDim:    int32(len(shape)), //nolint:gosec // G115: rank is bounded by the extractor
		DType:   dlpack.WireDataType(ref.DType()),
		Shape:   make([]int64, len(shape)),
		Strides: make([]int64, len(strides)),
	}
	for i := range shape {
		payload.Shape[i] = int64(shape[i])
		payload.Strides[i] = int64(strides[i])
	}
	return dlpack.NewCapsule(payload, ref.ReadOnly(), ref.Release), nil
}

// Return hands the array to a consumer in the named ecosystem.
//
// An unmodified array accepted from that same ecosystem is returned as the
// original object, preserving identity. Anything else (a conversion copy, a
// native array, or a different ecosystem) is re-exported as a new capsule.
func (h *Handle) Return(consumer string) (any, error) {
	if h.closed.Load() {
		return nil, tensor.NewUseError("return", "handle already closed")
	}
	if h.source == nil && consumer == Native {
		return h, nil
	}
	if !h.materialized && h.source != nil && h.ecosystem != "" && h.ecosystem == consumer {
		return h.source, nil
	}
	return h.ExportCapsule()
}
