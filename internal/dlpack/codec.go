package dlpack

import (
	"github.com/born-ml/ndbridge/internal/tensor"
)

// Normalize maps a wire dtype onto a tensor.DataType.
func (dt DataType) Normalize() (tensor.DataType, error) {
	lanes := dt.Lanes
	if lanes == 0 {
		return tensor.DataType{}, tensor.NewFormatError("exchange", "dtype with zero lanes")
	}
	var code tensor.TypeCode
	switch dt.Code {
	case CodeInt:
		code = tensor.Int
	case CodeUInt:
		code = tensor.UInt
	case CodeFloat:
		code = tensor.Float
	case CodeBool:
		code = tensor.BoolCode
	default:
		return tensor.DataType{}, tensor.NewFormatError("exchange", "unsupported dtype code %d", dt.Code)
	}
	switch dt.Bits {
	case 8, 16, 32, 64:
	default:
		return tensor.DataType{}, tensor.NewFormatError("exchange", "unsupported bit width %d", dt.Bits)
	}
	if code == tensor.BoolCode && dt.Bits != 8 {
		return tensor.DataType{}, tensor.NewFormatError("exchange", "bool must be 8 bits, got %d", dt.Bits)
	}
	return tensor.DataType{Code: code, Bits: dt.Bits, Lanes: lanes}, nil
}

// WireDataType maps a tensor.DataType onto its wire form.
func WireDataType(dt tensor.DataType) DataType {
	var code TypeCode
	switch dt.Code {
	case tensor.Int:
		code = CodeInt
	case tensor.UInt:
		code = CodeUInt
	case tensor.Float:
		code = CodeFloat
	case tensor.BoolCode:
		code = CodeBool
	}
	return DataType{Code: code, Bits: dt.Bits, Lanes: dt.Lanes}
}

// Normalize maps a wire device onto a tensor.Device.
// CUDA host-pinned memory is host addressable and reports as CPU.
func (d Device) Normalize() tensor.Device {
	switch d.Type {
	case DeviceCPU, DeviceCUDAHost:
		return tensor.Device{Kind: tensor.CPU, ID: int(d.ID)}
	case DeviceCUDA:
		return tensor.Device{Kind: tensor.CUDA, ID: int(d.ID)}
	default:
		return tensor.Device{Kind: tensor.Other, ID: int(d.ID)}
	}
}

// WireDevice maps a tensor.Device onto its wire form. Other devices are exported
// under the reserved extension code.
func WireDevice(d tensor.Device) Device {
	switch d.Kind {
	case tensor.CPU:
		return Device{Type: DeviceCPU, ID: int32(d.ID)} //nolint:gosec // G115: device ids are small
	case tensor.CUDA:
		return Device{Type: DeviceCUDA, ID: int32(d.ID)} //nolint:gosec // G115: device ids are small
	default:
		return Device{Type: DeviceExtDev, ID: int32(d.ID)} //nolint:gosec // G115: device ids are small
	}
}
