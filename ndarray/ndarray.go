// Copyright 2025 Born ML Framework. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

package ndarray

import (
	"github.com/born-ml/ndbridge/internal/dlpack"
	"github.com/born-ml/ndbridge/internal/extract"
	"github.com/born-ml/ndbridge/internal/handle"
	"github.com/born-ml/ndbridge/internal/tensor"
)

// Type aliases for public API

// DType is a constraint for Go element types.
// Supported types: int8..int64, uint8..uint64, float32, float64, bool.
type DType = tensor.DType

// DataType is the element type of an array: category, bit width and lane count.
type DataType = tensor.DataType

// Data types. The zero DataType means "any" in a Signature.
var (
	Bool    = tensor.Bool
	Int8    = tensor.Int8
	Int16   = tensor.Int16
	Int32   = tensor.Int32
	Int64   = tensor.Int64
	Uint8   = tensor.Uint8
	Uint16  = tensor.Uint16
	Uint32  = tensor.Uint32
	Uint64  = tensor.Uint64
	Float16 = tensor.Float16 // Accepted from producers and converted from; never a conversion target
	Float32 = tensor.Float32
	Float64 = tensor.Float64
)

// Shape represents the dimensions of an array.
// Example: Shape{3, 0, 4} is a valid, empty 3D array.
type Shape = tensor.Shape

// Device identifies where array data resides.
type Device = tensor.Device

// DeviceKind is the class of memory an array lives in.
type DeviceKind = tensor.DeviceKind

// Device kinds.
const (
	CPU   DeviceKind = tensor.CPU
	CUDA  DeviceKind = tensor.CUDA
	Other DeviceKind = tensor.Other
)

// Order is the contiguity classification of an array.
type Order = tensor.Order

// Orders.
const (
	OrderUnknown Order = tensor.OrderUnknown
	OrderC       Order = tensor.OrderC
	OrderF       Order = tensor.OrderF
)

// Descriptor is the normalized metadata of one array view.
type Descriptor = tensor.Descriptor

// Allocator provides the memory behind natively-owned arrays.
type Allocator = tensor.Allocator

// HeapAllocator allocates from the Go heap with an optional live-bytes limit.
type HeapAllocator = tensor.HeapAllocator

// Handle is the array object native code receives and returns.
type Handle = handle.Handle

// Native is the ecosystem name of arrays created by this package.
const Native = handle.Native

// Exchange and buffer protocol types

// Capsule is a single-consumption exchange object.
type Capsule = dlpack.Capsule

// CapsulePayload is the array payload of a Capsule.
// Strides are in elements; nil Strides means compact C order.
type CapsulePayload = dlpack.Tensor

// WireDataType is the element type as encoded in a CapsulePayload.
type WireDataType = dlpack.DataType

// WireDevice is the device as encoded in a CapsulePayload.
type WireDevice = dlpack.Device

// Wire device codes understood by consumers. Any other code is an opaque foreign device.
const (
	DeviceCPU      = dlpack.DeviceCPU
	DeviceCUDA     = dlpack.DeviceCUDA
	DeviceCUDAHost = dlpack.DeviceCUDAHost
)

// WireDataTypeOf encodes dt for a CapsulePayload.
func WireDataTypeOf(dt DataType) WireDataType {
	return dlpack.WireDataType(dt)
}

// Buffer is the raw buffer protocol description of a host array.
type Buffer = extract.Buffer

// Exchanger is implemented by foreign arrays that expose the exchange protocol.
type Exchanger = extract.Exchanger

// BufferExporter is implemented by foreign arrays that expose the raw buffer protocol.
type BufferExporter = extract.BufferExporter

// EcosystemTagger is implemented by foreign arrays that name their ecosystem.
// Returning such an array unchanged to the same ecosystem preserves its identity.
type EcosystemTagger = handle.EcosystemTagger

// NewCapsule wraps a payload and its deleter. The deleter runs exactly once:
// after the last consumer reference is released, or when the capsule is
// discarded or collected without being consumed.
func NewCapsule(payload CapsulePayload, readOnly bool, deleter func()) *Capsule {
	return dlpack.NewCapsule(payload, readOnly, deleter)
}

// Creation functions

// New allocates a zeroed array in the given order (OrderC unless OrderF).
//
// Example:
//
//	h, err := ndarray.New(ndarray.Shape{2, 3}, ndarray.Float32, ndarray.OrderF)
func New(shape Shape, dtype DataType, order Order) (*Handle, error) {
	return handle.New(shape, dtype, order, nil)
}

// FromSlice creates a C-order array from a Go slice. The data is copied.
//
// Example:
//
//	h, err := ndarray.FromSlice([]float32{1, 2, 3, 4, 5, 6}, ndarray.Shape{2, 3})
func FromSlice[T DType](data []T, shape Shape) (*Handle, error) {
	return handle.FromSlice(data, shape)
}

// Values returns a writable zero-copy view of a contiguous host array in memory order.
// Read-only arrays return a UseError.
func Values[T DType](h *Handle) ([]T, error) {
	return handle.Values[T](h)
}

// CopyValues gathers the elements of any host array, in C order, into a new slice.
func CopyValues[T DType](h *Handle) ([]T, error) {
	return handle.CopyValues[T](h)
}

// ParseDataType parses a dtype name such as "float32". "any" returns the zero DataType.
func ParseDataType(s string) (DataType, error) {
	return tensor.ParseDataType(s)
}
