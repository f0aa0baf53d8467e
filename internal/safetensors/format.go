// Package safetensors exposes the tensors of a memory-mapped safetensors file as
// foreign arrays, through both the exchange and the raw buffer protocol.
//
// The mapping is shared: it stays alive while the File or any array exported from
// it is referenced, and is unmapped exactly once, after the last release.
//
// SafeTensors format:
// [8 bytes: header_size (uint64 LE)]
// [header_size bytes: JSON header]
// [tensor data: raw bytes]
package safetensors

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"

	"github.com/born-ml/ndbridge/internal/dlpack"
	"github.com/born-ml/ndbridge/internal/tensor"
)

// Common errors.
var (
	ErrHeaderTooLarge = errors.New("header exceeds maximum size")
	ErrOutOfBounds    = errors.New("tensor extends beyond data section")
	ErrNotFound       = errors.New("tensor not found")
	ErrClosed         = errors.New("file is closed")
)

// MaxHeaderSize bounds the JSON header (100MB).
const MaxHeaderSize = 100 * 1024 * 1024

// Ecosystem is the ecosystem name reported by arrays exported from a File.
const Ecosystem = "safetensors"

// DType is a safetensors dtype string.
type DType string

// Supported dtypes.
const (
	BOOL DType = "BOOL"
	U8   DType = "U8"
	I8   DType = "I8"
	U16  DType = "U16"
	I16  DType = "I16"
	F16  DType = "F16"
	BF16 DType = "BF16"
	U32  DType = "U32"
	I32  DType = "I32"
	F32  DType = "F32"
	U64  DType = "U64"
	I64  DType = "I64"
	F64  DType = "F64"
)

// wireTypes maps dtypes onto the exchange protocol. BF16 has no tensor.DataType
// equivalent and is rejected by consumers.
var wireTypes = map[DType]dlpack.DataType{
	BOOL: {Code: dlpack.CodeBool, Bits: 8, Lanes: 1},
	U8:   {Code: dlpack.CodeUInt, Bits: 8, Lanes: 1},
	I8:   {Code: dlpack.CodeInt, Bits: 8, Lanes: 1},
	U16:  {Code: dlpack.CodeUInt, Bits: 16, Lanes: 1},
	I16:  {Code: dlpack.CodeInt, Bits: 16, Lanes: 1},
	F16:  {Code: dlpack.CodeFloat, Bits: 16, Lanes: 1},
	BF16: {Code: dlpack.CodeBfloat, Bits: 16, Lanes: 1},
	U32:  {Code: dlpack.CodeUInt, Bits: 32, Lanes: 1},
	I32:  {Code: dlpack.CodeInt, Bits: 32, Lanes: 1},
	F32:  {Code: dlpack.CodeFloat, Bits: 32, Lanes: 1},
	U64:  {Code: dlpack.CodeUInt, Bits: 64, Lanes: 1},
	I64:  {Code: dlpack.CodeInt, Bits: 64, Lanes: 1},
	F64:  {Code: dlpack.CodeFloat, Bits: 64, Lanes: 1},
}

// ItemSize returns the byte size of one element, or 0 for an unknown dtype.
func (d DType) ItemSize() int {
	w, ok := wireTypes[d]
	if !ok {
		return 0
	}
	return int(w.Bits) / 8
}

// dtypeFor converts a tensor.DataType to its safetensors dtype.
func dtypeFor(dt tensor.DataType) (DType, error) {
	for name, w := range wireTypes {
		if w.Code == dlpack.CodeBfloat {
			continue
		}
		if norm, err := w.Normalize(); err == nil && norm == dt {
			return name, nil
		}
	}
	return "", fmt.Errorf("dtype %s has no safetensors equivalent", dt)
}

// TensorInfo describes a tensor in the header.
type TensorInfo struct {
	DType       DType    `json:"dtype"`
	Shape       []int64  `json:"shape"`
	DataOffsets [2]int64 `json:"data_offsets"` // [start, end) relative to the data section
}

// Header is the JSON header of a safetensors file.
type Header struct {
	Metadata map[string]string
	Tensors  map[string]TensorInfo
}

// UnmarshalJSON implements custom JSON unmarshaling: every key except
// __metadata__ is a tensor entry.
func (h *Header) UnmarshalJSON(data []byte) error {
	var rawMap map[string]json.RawMessage
	if err := json.Unmarshal(data, &rawMap); err != nil {
		return err
	}

	if metadataRaw, ok := rawMap["__metadata__"]; ok {
		if err := json.Unmarshal(metadataRaw, &h.Metadata); err != nil {
			return fmt.Errorf("failed to unmarshal metadata: %w", err)
		}
	}

	h.Tensors = make(map[string]TensorInfo, len(rawMap))
	for key, value := range rawMap {
		if key == "__metadata__" {
			continue
		}
		var info TensorInfo
		if err := json.Unmarshal(value, &info); err != nil {
			return fmt.Errorf("failed to unmarshal tensor %s: %w", key, err)
		}
		h.Tensors[key] = info
	}

	return nil
}

// MarshalJSON writes metadata under __metadata__ next to the tensor entries.
func (h Header) MarshalJSON() ([]byte, error) {
	out := make(map[string]any, len(h.Tensors)+1)
	if len(h.Metadata) > 0 {
		out["__metadata__"] = h.Metadata
	}
	for name, info := range h.Tensors {
		out[name] = info
	}
	return json.Marshal(out)
}

// validate checks one entry against the data section size.
func (info *TensorInfo) validate(name string, dataSize int64) error {
	item := info.DType.ItemSize()
	if item == 0 {
		return fmt.Errorf("tensor %q: unknown dtype %q", name, info.DType)
	}
	n := int64(1)
	for _, d := range info.Shape {
		if d < 0 {
			return fmt.Errorf("tensor %q: negative dimension %d", name, d)
		}
		if d == 0 {
			n = 0
		}
	}
	if n != 0 {
		for _, d := range info.Shape {
			if n > math.MaxInt64/d {
				return fmt.Errorf("tensor %q: shape %v overflows", name, info.Shape)
			}
			n *= d
		}
		if n > math.MaxInt64/int64(item) {
			return fmt.Errorf("tensor %q: shape %v overflows", name, info.Shape)
		}
	}
	start, end := info.DataOffsets[0], info.DataOffsets[1]
	if start < 0 || end < start {
		return fmt.Errorf("tensor %q: invalid data offsets [%d, %d]", name, start, end)
	}
	if end-start != n*int64(item) {
		return fmt.Errorf("tensor %q: %d bytes for %d elements of %s", name, end-start, n, info.DType)
	}
	if end > dataSize {
		return fmt.Errorf("%w: tensor %q: end %d > data size %d", ErrOutOfBounds, name, end, dataSize)
	}
	return nil
}
