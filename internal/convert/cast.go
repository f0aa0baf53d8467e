package convert

import (
	"unsafe"

	"github.com/born-ml/ndbridge/internal/parallel"
	"github.com/born-ml/ndbridge/internal/tensor"
)

// value holds one loaded element; which field is meaningful depends on the source code.
type value struct {
	i int64
	u uint64
	f float64
}

func (v value) asInt(from tensor.TypeCode) int64 {
	switch from {
	case tensor.Int:
		return v.i
	case tensor.Float:
		return int64(v.f)
	default:
		return int64(v.u) //nolint:gosec // G115: widening table keeps values in range
	}
}

func (v value) asUint(from tensor.TypeCode) uint64 {
	switch from {
	case tensor.Int:
		return uint64(v.i) //nolint:gosec // G115: widening table keeps values in range
	case tensor.Float:
		return uint64(v.f)
	default:
		return v.u
	}
}

func (v value) asFloat(from tensor.TypeCode) float64 {
	switch from {
	case tensor.Int:
		return float64(v.i)
	case tensor.Float:
		return v.f
	default:
		return float64(v.u)
	}
}

//nolint:gosec // G103: element access through the descriptor's data pointer
func load(p unsafe.Pointer, dt tensor.DataType) value {
	switch dt {
	case tensor.Bool:
		if *(*uint8)(p) != 0 {
			return value{u: 1}
		}
		return value{}
	case tensor.Int8:
		return value{i: int64(*(*int8)(p))}
	case tensor.Int16:
		return value{i: int64(*(*int16)(p))}
	case tensor.Int32:
		return value{i: int64(*(*int32)(p))}
	case tensor.Int64:
		return value{i: *(*int64)(p)}
	case tensor.Uint8:
		return value{u: uint64(*(*uint8)(p))}
	case tensor.Uint16:
		return value{u: uint64(*(*uint16)(p))}
	case tensor.Uint32:
		return value{u: uint64(*(*uint32)(p))}
	case tensor.Uint64:
		return value{u: *(*uint64)(p)}
	case tensor.Float16:
		return value{f: float64(tensor.Float16ToFloat32(*(*uint16)(p)))}
	case tensor.Float32:
		return value{f: float64(*(*float32)(p))}
	case tensor.Float64:
		return value{f: *(*float64)(p)}
	default:
		panic("cast: unsupported source dtype " + dt.String())
	}
}

//nolint:gosec // G103,G115: element access through the descriptor's data pointer
func store(p unsafe.Pointer, to tensor.DataType, from tensor.TypeCode, v value) {
	switch to {
	case tensor.Bool:
		var b uint8
		if v.asUint(from) != 0 {
			b = 1
		}
		*(*uint8)(p) = b
	case tensor.Int8:
		*(*int8)(p) = int8(v.asInt(from))
	case tensor.Int16:
		*(*int16)(p) = int16(v.asInt(from))
	case tensor.Int32:
		*(*int32)(p) = int32(v.asInt(from))
	case tensor.Int64:
		*(*int64)(p) = v.asInt(from)
	case tensor.Uint8:
		*(*uint8)(p) = uint8(v.asUint(from))
	case tensor.Uint16:
		*(*uint16)(p) = uint16(v.asUint(from))
	case tensor.Uint32:
		*(*uint32)(p) = uint32(v.asUint(from))
	case tensor.Uint64:
		*(*uint64)(p) = v.asUint(from)
	case tensor.Float32:
		switch from {
		case tensor.Int:
			*(*float32)(p) = float32(v.i)
		case tensor.UInt:
			*(*float32)(p) = float32(v.u)
		default:
			*(*float32)(p) = float32(v.asFloat(from))
		}
	case tensor.Float64:
		*(*float64)(p) = v.asFloat(from)
	default:
		panic("cast: unsupported target dtype " + to.String())
	}
}

// stridedCopy copies every element of the source view into the destination view,
// converting from srcType to dstType. Strides are in elements. Iteration follows
// C order over shape; each chunk walks its range with an odometer index.
func stridedCopy(
	dst unsafe.Pointer, dstStrides []int, dstType tensor.DataType,
	src unsafe.Pointer, srcStrides []int, srcType tensor.DataType,
	shape tensor.Shape, cfg parallel.Config,
) {
	n := shape.NumElements()
	if n == 0 {
		return
	}
	ndim := len(shape)
	srcItem, dstItem := srcType.Size(), dstType.Size()
	same := srcType == dstType

	parallel.ForRange(n, func(start, end int) {
		idx := make([]int, ndim)
		rem := start
		for i := ndim - 1; i >= 0; i-- {
			idx[i] = rem % shape[i]
			rem /= shape[i]
		}
		srcOff, dstOff := 0, 0
		for i := 0; i < ndim; i++ {
			srcOff += idx[i] * srcStrides[i]
			dstOff += idx[i] * dstStrides[i]
		}

		for k := start; k < end; k++ {
			sp := unsafe.Add(src, srcOff*srcItem)
			dp := unsafe.Add(dst, dstOff*dstItem)
			if same {
				copy(unsafe.Slice((*byte)(dp), dstItem), unsafe.Slice((*byte)(sp), srcItem))
			} else {
				store(dp, dstType, srcType.Code, load(sp, srcType))
			}

			// Advance the odometer.
			for i := ndim - 1; i >= 0; i-- {
				idx[i]++
				srcOff += srcStrides[i]
				dstOff += dstStrides[i]
				if idx[i] < shape[i] {
					break
				}
				srcOff -= idx[i] * srcStrides[i]
				dstOff -= idx[i] * dstStrides[i]
				idx[i] = 0
			}
		}
	}, cfg)
}
