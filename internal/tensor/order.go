package tensor

// Order is the contiguity classification of an array view.
type Order uint8

// Contiguity classes.
const (
	OrderUnknown Order = iota
	OrderC
	OrderF
)

// String returns "C", "F" or "?".
func (o Order) String() string {
	switch o {
	case OrderC:
		return "C"
	case OrderF:
		return "F"
	default:
		return "?"
	}
}

// ComputeOrder classifies a layout given in element strides.
//
// Axes of length 1 never block either check: their stride is never used to
// address an element. An array with a zero-length axis addresses no element
// at all and passes both checks. When both checks hold (e.g. 1-D or all-degenerate
// layouts) the classification reports C; use Satisfies to test a specific order.
func ComputeOrder(shape Shape, strides []int) Order {
	if IsCContiguous(shape, strides) {
		return OrderC
	}
	if IsFContiguous(shape, strides) {
		return OrderF
	}
	return OrderUnknown
}

// Satisfies reports whether the layout passes the contiguity check for o.
// OrderUnknown is never satisfied.
func (o Order) Satisfies(shape Shape, strides []int) bool {
	switch o {
	case OrderC:
		return IsCContiguous(shape, strides)
	case OrderF:
		return IsFContiguous(shape, strides)
	default:
		return false
	}
}

// IsContiguous reports whether the layout is C or F contiguous.
func IsContiguous(shape Shape, strides []int) bool {
	return IsCContiguous(shape, strides) || IsFContiguous(shape, strides)
}

// IsCContiguous reports whether the layout is row-major compact.
func IsCContiguous(shape Shape, strides []int) bool {
	if shape.NumElements() == 0 {
		return true
	}
	accum := 1
	for i := len(shape) - 1; i >= 0; i-- {
		if shape[i] <= 1 {
			continue
		}
		if strides[i] != accum {
			return false
		}
		accum *= shape[i]
	}
	return true
}

// IsFContiguous reports whether the layout is column-major compact.
func IsFContiguous(shape Shape, strides []int) bool {
	if shape.NumElements() == 0 {
		return true
	}
	accum := 1
	for i := 0; i < len(shape); i++ {
		if shape[i] <= 1 {
			continue
		}
		if strides[i] != accum {
			return false
		}
		accum *= shape[i]
	}
	return true
}
