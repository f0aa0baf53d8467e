// Package dlpack models the array exchange protocol: a single-consumption capsule
// carrying an array payload and the producer's deleter.
package dlpack

import (
	"fmt"
	"unsafe"
)

// TypeCode is the wire code of an element category.
type TypeCode uint8

// Wire type codes.
const (
	CodeInt     TypeCode = 0
	CodeUInt    TypeCode = 1
	CodeFloat   TypeCode = 2
	CodeBfloat  TypeCode = 4
	CodeComplex TypeCode = 5
	CodeBool    TypeCode = 6
)

// DeviceType is the wire code of a device.
type DeviceType int32

// Wire device codes. Only CPU, CUDA and CUDAHost are distinguished by consumers;
// every other code is treated as an opaque foreign device.
const (
	DeviceCPU      DeviceType = 1
	DeviceCUDA     DeviceType = 2
	DeviceCUDAHost DeviceType = 3
	DeviceOpenCL   DeviceType = 4
	DeviceVulkan   DeviceType = 7
	DeviceMetal    DeviceType = 8
	DeviceROCM     DeviceType = 10
	DeviceExtDev   DeviceType = 12
	DeviceWebGPU   DeviceType = 15
)

// Device is the wire device descriptor.
type Device struct {
	Type DeviceType
	ID   int32
}

// DataType is the wire element type descriptor.
type DataType struct {
	Code  TypeCode
	Bits  uint8
	Lanes uint16
}

// Version is the payload version. Major 0 denotes the legacy, unversioned layout.
type Version struct {
	Major uint32
	Minor uint32
}

// Supported payload versions.
const (
	MaxMajorVersion = 1
	CurrentMinor    = 1
)

// CurrentVersion is the version stamped on capsules produced by this package.
var CurrentVersion = Version{Major: 1, Minor: CurrentMinor}

// String renders the version as "major.minor".
func (v Version) String() string {
	return fmt.Sprintf("%d.%d", v.Major, v.Minor)
}

// Tensor is the array payload of a capsule.
// Strides are in elements; nil Strides means compact C order.
type Tensor struct {
	Data       unsafe.Pointer
	Device     Device
	NDim       int32
	DType      DataType
	Shape      []int64
	Strides    []int64
	ByteOffset uint64
}
