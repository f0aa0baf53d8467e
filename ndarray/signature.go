// Copyright 2025 Born ML Framework. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

package ndarray

import (
	"github.com/born-ml/ndbridge/internal/match"
)

// Signature is the constraint set of one overload candidate.
// The zero value accepts any array.
type Signature = match.Signature

// Axis is one entry of a shape constraint.
type Axis = match.Axis

// Wildcard axes. Rest may only appear last.
var (
	AnyAxis = match.AnyAxis
	Rest    = match.Rest
)

// Fixed returns an axis constraint requiring length n.
func Fixed(n int) Axis { return match.Fixed(n) }

// OrderConstraint restricts the memory layout.
type OrderConstraint = match.OrderConstraint

// Order constraints.
const (
	AnyOrder = match.AnyOrder
	RequireC = match.RequireC
	RequireF = match.RequireF
)

// DeviceConstraint restricts the device kind.
type DeviceConstraint = match.DeviceConstraint

// Device constraints.
const (
	AnyDevice = match.AnyDevice
	OnCPU     = match.OnCPU
	OnCUDA    = match.OnCUDA
	OnOther   = match.OnOther
)

// Mismatch is a bit set of failed constraint classes.
type Mismatch = match.Mismatch

// Mismatches reports which constraints of s the array d fails.
func Mismatches(d *Descriptor, s *Signature) Mismatch {
	return match.Mismatches(d, s)
}

// Select returns the index of the first signature d satisfies, in declaration
// order, or a *NoOverloadError.
func Select(d *Descriptor, sigs []Signature) (int, error) {
	return match.Select(d, sigs)
}
