// Copyright 2025 Born ML Framework. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

package ndarray

import (
	"github.com/born-ml/ndbridge/internal/bind"
)

// BinderOptions configures a Binder.
type BinderOptions = bind.Options

// Binder resolves foreign arrays against overload signatures.
type Binder = bind.Binder

// Binding is the selected overload and the array the call operates on.
type Binding = bind.Binding

// NewBinder creates a Binder.
//
// Example:
//
//	logger := zerolog.New(os.Stderr)
//	binder := ndarray.NewBinder(ndarray.BinderOptions{MaxRank: 8, Logger: &logger})
func NewBinder(opts BinderOptions) *Binder {
	return bind.New(opts)
}
