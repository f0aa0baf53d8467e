// Copyright 2025 Born ML Framework. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

// Package ndarray normalizes arrays produced by foreign ecosystems and binds them
// to overloaded native entry points.
//
// # Overview
//
// A foreign array reaches native code through one of two narrow protocols:
//   - the exchange protocol: a single-consumption Capsule carrying the array
//     metadata and the producer's deleter
//   - the raw buffer protocol: a pointer plus a format code, shape and byte strides
//
// Either way it is normalized into a Descriptor, matched against an ordered list
// of Signatures, optionally converted (widening dtype changes and C/F re-layout
// only), and handed to the callee as a Handle.
//
// # Basic Usage
//
//	binder := ndarray.NewBinder(ndarray.BinderOptions{})
//
//	sigs := []ndarray.Signature{
//	    {Name: "f32", DType: ndarray.Float32, Shape: []ndarray.Axis{ndarray.Fixed(3), ndarray.AnyAxis, ndarray.Fixed(4)}},
//	    {Name: "f64", DType: ndarray.Float64, Convert: true},
//	}
//
//	b, err := binder.Bind(foreign, sigs)
//	if err != nil {
//	    var miss *ndarray.NoOverloadError
//	    if errors.As(err, &miss) {
//	        fmt.Println(miss.Diagnostic())
//	    }
//	    return err
//	}
//	defer b.Close()
//
//	vals, err := ndarray.CopyValues[float32](b.Handle)
//
// # Memory Management
//
// Foreign memory is never freed by this package. Every Descriptor or Handle that
// borrows it holds one reference on a shared lifetime cell; the producer's deleter
// runs exactly once, when the last reference is released, on whichever goroutine
// releases it. Handles that are never closed are released by a GC cleanup.
//
// Conversion copies and arrays created with New or FromSlice are owned natively
// and freed exactly once.
package ndarray
