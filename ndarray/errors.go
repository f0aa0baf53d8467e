// Copyright 2025 Born ML Framework. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

package ndarray

import (
	"github.com/born-ml/ndbridge/internal/match"
	"github.com/born-ml/ndbridge/internal/tensor"
)

// Error classes, for use with errors.Is.
var (
	ErrFormat     = tensor.ErrFormat
	ErrUse        = tensor.ErrUse
	ErrNoOverload = tensor.ErrNoOverload
	ErrAllocation = tensor.ErrAllocation
	ErrRankLimit  = tensor.ErrRankLimit
)

// Detailed error types, for use with errors.As.
type (
	// FormatError reports an unsupported foreign representation.
	FormatError = tensor.FormatError
	// UseError reports a lifecycle violation, such as consuming a capsule twice.
	UseError = tensor.UseError
	// AllocationError reports a conversion copy that could not be allocated.
	AllocationError = tensor.AllocationError
	// RankLimitError reports an array with too many dimensions.
	RankLimitError = tensor.RankLimitError
	// NoOverloadError lists every attempted signature and the received array.
	NoOverloadError = match.NoOverloadError
)
