// Package tensor provides the normalized array metadata shared by every ndbridge component.
package tensor

import (
	"fmt"
	"strconv"
	"strings"
)

// TypeCode is the category of an element type.
type TypeCode uint8

// Supported element categories. The zero TypeCode is reserved so that the zero
// DataType can stand for "any dtype" in constraints.
const (
	Int TypeCode = iota + 1
	UInt
	Float
	BoolCode
)

// String returns a human-readable name for the type code.
func (c TypeCode) String() string {
	switch c {
	case Int:
		return "int"
	case UInt:
		return "uint"
	case Float:
		return "float"
	case BoolCode:
		return "bool"
	default:
		return "unknown"
	}
}

// DType is a constraint for Go element types that map onto a DataType.
type DType interface {
	~int8 | ~int16 | ~int32 | ~int64 |
		~uint8 | ~uint16 | ~uint32 | ~uint64 |
		~float32 | ~float64 | ~bool
}

// DataType represents runtime type information for array elements:
// category, bit width and vector lane count.
type DataType struct {
	Code  TypeCode
	Bits  uint8
	Lanes uint16
}

// Predeclared data types.
var (
	Bool    = DataType{Code: BoolCode, Bits: 8, Lanes: 1}
	Int8    = DataType{Code: Int, Bits: 8, Lanes: 1}
	Int16   = DataType{Code: Int, Bits: 16, Lanes: 1}
	Int32   = DataType{Code: Int, Bits: 32, Lanes: 1}
	Int64   = DataType{Code: Int, Bits: 64, Lanes: 1}
	Uint8   = DataType{Code: UInt, Bits: 8, Lanes: 1}
	Uint16  = DataType{Code: UInt, Bits: 16, Lanes: 1}
	Uint32  = DataType{Code: UInt, Bits: 32, Lanes: 1}
	Uint64  = DataType{Code: UInt, Bits: 64, Lanes: 1}
	Float16 = DataType{Code: Float, Bits: 16, Lanes: 1}
	Float32 = DataType{Code: Float, Bits: 32, Lanes: 1}
	Float64 = DataType{Code: Float, Bits: 64, Lanes: 1}
)

// IsZero reports whether dt is the zero DataType ("any" in a constraint).
func (dt DataType) IsZero() bool {
	return dt == DataType{}
}

// SameKind reports whether dt and other share category and bit width.
// Lane count is compared separately by callers that care.
func (dt DataType) SameKind(other DataType) bool {
	return dt.Code == other.Code && dt.Bits == other.Bits
}

// Size returns the byte size of one element (all lanes).
func (dt DataType) Size() int {
	lanes := int(dt.Lanes)
	if lanes == 0 {
		lanes = 1
	}
	return (int(dt.Bits)*lanes + 7) / 8
}

// String returns the canonical name of the data type, e.g. "float32" or "int16x4".
func (dt DataType) String() string {
	if dt.IsZero() {
		return "any"
	}
	var name string
	if dt.Code == BoolCode {
		name = "bool"
	} else {
		name = dt.Code.String() + strconv.Itoa(int(dt.Bits))
	}
	if dt.Lanes > 1 {
		name += "x" + strconv.Itoa(int(dt.Lanes))
	}
	return name
}

var dtypeNames = map[string]DataType{
	"bool":    Bool,
	"int8":    Int8,
	"int16":   Int16,
	"int32":   Int32,
	"int64":   Int64,
	"uint8":   Uint8,
	"uint16":  Uint16,
	"uint32":  Uint32,
	"uint64":  Uint64,
	"float16": Float16,
	"float32": Float32,
	"float64": Float64,
}

// ParseDataType parses a canonical dtype name. "any" and "" return the zero DataType.
func ParseDataType(s string) (DataType, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	if s == "" || s == "any" {
		return DataType{}, nil
	}
	if dt, ok := dtypeNames[s]; ok {
		return dt, nil
	}
	return DataType{}, fmt.Errorf("unknown dtype %q", s)
}

// inferDataType infers DataType from a generic type T.
func inferDataType[T DType](dummy T) DataType {
	switch any(dummy).(type) {
	case int8:
		return Int8
	case int16:
		return Int16
	case int32:
		return Int32
	case int64:
		return Int64
	case uint8:
		return Uint8
	case uint16:
		return Uint16
	case uint32:
		return Uint32
	case uint64:
		return Uint64
	case float32:
		return Float32
	case float64:
		return Float64
	case bool:
		return Bool
	default:
		panic("unsupported type")
	}
}

// DataTypeOf returns the DataType matching the Go element type T.
func DataTypeOf[T DType]() DataType {
	var dummy T
	return inferDataType(dummy)
}
