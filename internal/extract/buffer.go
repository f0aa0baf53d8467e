package extract

import (
	"unsafe"

	"github.com/born-ml/ndbridge/internal/tensor"
)

// Buffer is the raw buffer protocol description of a host array.
// Strides are in bytes; nil Strides means compact C order.
type Buffer struct {
	Ptr      unsafe.Pointer
	Format   string
	ItemSize int
	NDim     int
	Shape    []int
	Strides  []int
	ReadOnly bool

	// Release is called exactly once, after the last Descriptor borrowing the
	// buffer is released. It may be nil.
	Release func()
}

// BufferExporter is implemented by foreign objects that expose the raw buffer protocol.
type BufferExporter interface {
	ExportBuffer() (*Buffer, error)
}

var hostLittleEndian = func() bool {
	x := uint16(1)
	return *(*byte)(unsafe.Pointer(&x)) == 1
}()

// formatTable maps single-character format codes to data types.
var formatTable = map[byte]tensor.DataType{
	'?': tensor.Bool,
	'b': tensor.Int8,
	'B': tensor.Uint8,
	'h': tensor.Int16,
	'H': tensor.Uint16,
	'i': tensor.Int32,
	'I': tensor.Uint32,
	'l': tensor.Int64,
	'L': tensor.Uint64,
	'q': tensor.Int64,
	'Q': tensor.Uint64,
	'e': tensor.Float16,
	'f': tensor.Float32,
	'd': tensor.Float64,
}

// ParseFormat translates a buffer format string into a data type.
// An optional byte-order prefix is accepted when it matches the host.
func ParseFormat(format string) (tensor.DataType, error) {
	code := format
	if len(code) == 2 {
		switch code[0] {
		case '@', '=':
		case '<':
			if !hostLittleEndian {
				return tensor.DataType{}, tensor.NewFormatError("buffer", "little-endian data on a big-endian host")
			}
		case '>', '!':
			if hostLittleEndian {
				return tensor.DataType{}, tensor.NewFormatError("buffer", "big-endian data on a little-endian host")
			}
		default:
			return tensor.DataType{}, tensor.NewFormatError("buffer", "unsupported format %q", format)
		}
		code = code[1:]
	}
	if len(code) != 1 {
		return tensor.DataType{}, tensor.NewFormatError("buffer", "unsupported format %q", format)
	}
	dt, ok := formatTable[code[0]]
	if !ok {
		return tensor.DataType{}, tensor.NewFormatError("buffer", "unsupported format %q", format)
	}
	return dt, nil
}

// FormatCode returns the canonical buffer format code for a data type.
func FormatCode(dt tensor.DataType) (string, bool) {
	switch dt {
	case tensor.Bool:
		return "?", true
	case tensor.Int8:
		return "b", true
	case tensor.Uint8:
		return "B", true
	case tensor.Int16:
		return "h", true
	case tensor.Uint16:
		return "H", true
	case tensor.Int32:
		return "i", true
	case tensor.Uint32:
		return "I", true
	case tensor.Int64:
		return "q", true
	case tensor.Uint64:
		return "Q", true
	case tensor.Float16:
		return "e", true
	case tensor.Float32:
		return "f", true
	case tensor.Float64:
		return "d", true
	default:
		return "", false
	}
}
