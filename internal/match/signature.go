// Package match selects the overload whose declared constraints an array satisfies.
package match

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/born-ml/ndbridge/internal/tensor"
)

// AxisKind tags an axis constraint.
type AxisKind uint8

// Axis constraint kinds.
const (
	AxisFixed AxisKind = iota // Exact length
	AxisAny                   // Any length
	AxisRest                  // Any number of further axes; trailing only
)

// Axis is one entry of a shape constraint.
type Axis struct {
	Kind AxisKind
	Size int
}

// Fixed returns an axis constraint requiring length n.
func Fixed(n int) Axis { return Axis{Kind: AxisFixed, Size: n} }

// Predeclared wildcard axes.
var (
	AnyAxis = Axis{Kind: AxisAny}
	Rest    = Axis{Kind: AxisRest}
)

// String renders the axis token: the length, "*" or "...".
func (a Axis) String() string {
	switch a.Kind {
	case AxisAny:
		return "*"
	case AxisRest:
		return "..."
	default:
		return strconv.Itoa(a.Size)
	}
}

// ParseAxis parses an axis token: an integer, "*"/"any", or "...".
func ParseAxis(tok string) (Axis, error) {
	tok = strings.TrimSpace(tok)
	switch tok {
	case "*", "any":
		return AnyAxis, nil
	case "...":
		return Rest, nil
	}
	n, err := strconv.Atoi(tok)
	if err != nil || n < 0 {
		return Axis{}, fmt.Errorf("invalid axis token %q", tok)
	}
	return Fixed(n), nil
}

// OrderConstraint restricts the memory layout.
type OrderConstraint uint8

// Order constraints.
const (
	AnyOrder OrderConstraint = iota
	RequireC
	RequireF
)

// Order returns the tensor order the constraint requires, or OrderUnknown for AnyOrder.
func (o OrderConstraint) Order() tensor.Order {
	switch o {
	case RequireC:
		return tensor.OrderC
	case RequireF:
		return tensor.OrderF
	default:
		return tensor.OrderUnknown
	}
}

// ParseOrder parses "any", "C" or "F".
func ParseOrder(s string) (OrderConstraint, error) {
	switch strings.TrimSpace(s) {
	case "", "any", "A":
		return AnyOrder, nil
	case "C", "c":
		return RequireC, nil
	case "F", "f":
		return RequireF, nil
	default:
		return AnyOrder, fmt.Errorf("invalid order %q", s)
	}
}

// DeviceConstraint restricts the device kind. The device id is never constrained.
type DeviceConstraint uint8

// Device constraints.
const (
	AnyDevice DeviceConstraint = iota
	OnCPU
	OnCUDA
	OnOther
)

// Kind returns the required device kind; ok is false for AnyDevice.
func (c DeviceConstraint) Kind() (kind tensor.DeviceKind, ok bool) {
	switch c {
	case OnCPU:
		return tensor.CPU, true
	case OnCUDA:
		return tensor.CUDA, true
	case OnOther:
		return tensor.Other, true
	default:
		return 0, false
	}
}

// ParseDevice parses "any" or a device kind.
func ParseDevice(s string) (DeviceConstraint, error) {
	s = strings.TrimSpace(s)
	if s == "" || s == "any" {
		return AnyDevice, nil
	}
	kind, err := tensor.ParseDeviceKind(s)
	if err != nil {
		return AnyDevice, err
	}
	switch kind {
	case tensor.CPU:
		return OnCPU, nil
	case tensor.CUDA:
		return OnCUDA, nil
	default:
		return OnOther, nil
	}
}

// Signature is the constraint set of one overload candidate.
//
// The zero value accepts any array: zero DType is "any" and nil Shape accepts any rank.
type Signature struct {
	Name   string
	DType  tensor.DataType // Zero value accepts any dtype
	Shape  []Axis          // Nil accepts any rank
	Order  OrderConstraint
	Device DeviceConstraint

	Convert bool // Implicit dtype/order conversion allowed
	NoCopy  bool // Never materialize a copy, even when Convert is set
}

// Validate checks that at most one open-rank marker appears, and only last.
func (s *Signature) Validate() error {
	for i, a := range s.Shape {
		if a.Kind == AxisRest && i != len(s.Shape)-1 {
			return fmt.Errorf("signature %q: open-rank marker must be the last axis", s.Name)
		}
		if a.Kind == AxisFixed && a.Size < 0 {
			return fmt.Errorf("signature %q: negative axis length %d", s.Name, a.Size)
		}
	}
	return nil
}

// openRank reports whether the shape ends in the open-rank marker.
func (s *Signature) openRank() bool {
	return len(s.Shape) > 0 && s.Shape[len(s.Shape)-1].Kind == AxisRest
}

// String renders the canonical form, e.g.
// ndarray[dtype=float32, shape=(3, *, 4), order='C', device='cpu'].
func (s *Signature) String() string {
	parts := make([]string, 0, 4)
	if !s.DType.IsZero() {
		parts = append(parts, "dtype="+s.DType.String())
	}
	if s.Shape != nil {
		axes := make([]string, len(s.Shape))
		for i, a := range s.Shape {
			axes[i] = a.String()
		}
		parts = append(parts, "shape=("+strings.Join(axes, ", ")+")")
	}
	if s.Order != AnyOrder {
		parts = append(parts, fmt.Sprintf("order='%s'", s.Order.Order()))
	}
	if kind, ok := s.Device.Kind(); ok {
		parts = append(parts, fmt.Sprintf("device='%s'", kind))
	}
	return "ndarray[" + strings.Join(parts, ", ") + "]"
}
