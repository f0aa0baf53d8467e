// Package convert arbitrates and performs implicit dtype and layout conversions.
//
// Conversions only ever widen: a value representable in the source type is
// representable (integers exactly, or as the nearest float) in the target type.
package convert

import (
	"github.com/born-ml/ndbridge/internal/tensor"
)

// promotions lists, for every source type, the targets it may be implicitly widened to.
// Float16 is accepted as a source only.
var promotions = map[tensor.DataType][]tensor.DataType{
	tensor.Bool: {
		tensor.Int8, tensor.Int16, tensor.Int32, tensor.Int64,
		tensor.Uint8, tensor.Uint16, tensor.Uint32, tensor.Uint64,
		tensor.Float32, tensor.Float64,
	},
	tensor.Int8:    {tensor.Int16, tensor.Int32, tensor.Int64, tensor.Float32, tensor.Float64},
	tensor.Int16:   {tensor.Int32, tensor.Int64, tensor.Float32, tensor.Float64},
	tensor.Int32:   {tensor.Int64, tensor.Float32, tensor.Float64},
	tensor.Int64:   {tensor.Float32, tensor.Float64},
	tensor.Uint8:   {tensor.Uint16, tensor.Uint32, tensor.Uint64, tensor.Int16, tensor.Int32, tensor.Int64, tensor.Float32, tensor.Float64},
	tensor.Uint16:  {tensor.Uint32, tensor.Uint64, tensor.Int32, tensor.Int64, tensor.Float32, tensor.Float64},
	tensor.Uint32:  {tensor.Uint64, tensor.Int64, tensor.Float32, tensor.Float64},
	tensor.Uint64:  {tensor.Float32, tensor.Float64},
	tensor.Float16: {tensor.Float32, tensor.Float64},
	tensor.Float32: {tensor.Float64},
}

// CanPromote reports whether from may be implicitly converted to to.
// Identity is always allowed; narrowing never is.
func CanPromote(from, to tensor.DataType) bool {
	if from == to {
		return true
	}
	for _, t := range promotions[from] {
		if t == to {
			return true
		}
	}
	return false
}

// Castable reports whether the cast kernels can read from and write to the given types.
// Identical types are copied bytewise, whatever their width or lane count.
func Castable(from, to tensor.DataType) bool {
	if from == to {
		return true
	}
	return scalarTypes[from] && scalarTypes[to] && to != tensor.Float16
}

var scalarTypes = map[tensor.DataType]bool{
	tensor.Bool:    true,
	tensor.Int8:    true,
	tensor.Int16:   true,
	tensor.Int32:   true,
	tensor.Int64:   true,
	tensor.Uint8:   true,
	tensor.Uint16:  true,
	tensor.Uint32:  true,
	tensor.Uint64:  true,
	tensor.Float16: true,
	tensor.Float32: true,
	tensor.Float64: true,
}
