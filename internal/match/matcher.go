package match

import (
	"strconv"
	"strings"

	"github.com/born-ml/ndbridge/internal/tensor"
)

// Mismatch is a bit set of the constraint groups an array fails.
type Mismatch uint8

// Constraint groups.
const (
	MismatchDType Mismatch = 1 << iota
	MismatchRank
	MismatchShape
	MismatchOrder
	MismatchDevice
)

// String lists the failed groups, e.g. "dtype|order".
func (m Mismatch) String() string {
	if m == 0 {
		return "none"
	}
	names := []string{"dtype", "rank", "shape", "order", "device"}
	var parts []string
	for i, name := range names {
		if m&(1<<i) != 0 {
			parts = append(parts, name)
		}
	}
	return strings.Join(parts, "|")
}

// Mismatches evaluates every constraint of s against d.
// It reads only immutable Descriptor metadata and is safe to call concurrently.
func Mismatches(d *tensor.Descriptor, s *Signature) Mismatch {
	var m Mismatch

	if !s.DType.IsZero() {
		dt := d.DType()
		if !dt.SameKind(s.DType) || dt.Lanes != s.DType.Lanes {
			m |= MismatchDType
		}
	}

	if s.Shape != nil {
		axes := s.Shape
		rankOK := d.NDim() == len(axes)
		if s.openRank() {
			axes = axes[:len(axes)-1]
			rankOK = d.NDim() >= len(axes)
		}
		if !rankOK {
			m |= MismatchRank
		} else {
			for i, a := range axes {
				if a.Kind == AxisFixed && d.Dim(i) != a.Size {
					m |= MismatchShape
					break
				}
			}
		}
	}

	if want := s.Order.Order(); want != tensor.OrderUnknown && !d.HasOrder(want) {
		m |= MismatchOrder
	}

	if kind, ok := s.Device.Kind(); ok && d.Device().Kind != kind {
		m |= MismatchDevice
	}

	return m
}

// Satisfies reports whether d meets every constraint of s.
func Satisfies(d *tensor.Descriptor, s *Signature) bool {
	return Mismatches(d, s) == 0
}

// Select returns the index of the first signature d satisfies, in declaration order.
// There is no specificity ranking. A total miss returns a *NoOverloadError.
func Select(d *tensor.Descriptor, sigs []Signature) (int, error) {
	for i := range sigs {
		if Satisfies(d, &sigs[i]) {
			return i, nil
		}
	}
	return -1, NewNoOverloadError(d, sigs)
}

// NoOverloadError reports that no signature accepted an array, with or without conversion.
type NoOverloadError struct {
	Attempted []Signature
	Received  string // Canonical form of the received array
}

// NewNoOverloadError captures the attempted signatures and the received array.
func NewNoOverloadError(d *tensor.Descriptor, sigs []Signature) *NoOverloadError {
	return &NoOverloadError{
		Attempted: append([]Signature(nil), sigs...),
		Received:  d.String(),
	}
}

// Diagnostic renders one line per attempted signature, in declaration order,
// followed by one line with the received array.
func (e *NoOverloadError) Diagnostic() string {
	var b strings.Builder
	for i := range e.Attempted {
		b.WriteString("    ")
		b.WriteString(strconv.Itoa(i + 1))
		b.WriteString(". ")
		if name := e.Attempted[i].Name; name != "" {
			b.WriteString(name)
			b.WriteString(": ")
		}
		b.WriteString(e.Attempted[i].String())
		b.WriteByte('\n')
	}
	b.WriteString("received: ")
	b.WriteString(e.Received)
	return b.String()
}

// Error implements the error interface.
func (e *NoOverloadError) Error() string {
	return tensor.ErrNoOverload.Error() + "; attempted signatures:\n" + e.Diagnostic()
}

// Is reports whether target is tensor.ErrNoOverload.
func (e *NoOverloadError) Is(target error) bool { return target == tensor.ErrNoOverload }
