// Copyright 2025 Born ML Framework. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

// Package loader exposes the tensors of SafeTensors files as foreign arrays.
//
// Files are memory-mapped read-only. Each tensor implements both the exchange
// and the raw buffer protocol, so it can be passed to an ndarray.Binder directly
// without copying.
//
// Example usage:
//
//	import (
//	    "github.com/born-ml/ndbridge/loader"
//	    "github.com/born-ml/ndbridge/ndarray"
//	)
//
//	f, err := loader.Open("path/to/model.safetensors")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer f.Close()
//
//	w, err := f.Tensor("model.embed_tokens.weight")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	b, err := ndarray.NewBinder(ndarray.BinderOptions{}).Bind(w, sigs)
package loader

import (
	"github.com/rs/zerolog"

	"github.com/born-ml/ndbridge/internal/safetensors"
	"github.com/born-ml/ndbridge/ndarray"
)

// File is a memory-mapped SafeTensors file.
//
// Close drops the file's own reference; the mapping stays valid until every
// array exported from it has been released as well.
type File = safetensors.File

// Array is one tensor of a File.
type Array = safetensors.Array

// TensorInfo is the header entry of a tensor.
type TensorInfo = safetensors.TensorInfo

// DType is a SafeTensors dtype string such as "F32".
type DType = safetensors.DType

// Ecosystem is the ecosystem name of arrays exported by this package.
const Ecosystem = safetensors.Ecosystem

// Open maps a SafeTensors file.
func Open(path string) (*File, error) {
	return safetensors.Open(path)
}

// OpenWithLogger maps a SafeTensors file and logs mapping events to logger.
func OpenWithLogger(path string, logger *zerolog.Logger) (*File, error) {
	return safetensors.OpenWithOptions(path, safetensors.Options{Logger: logger})
}

// WriteFile writes arrays to path in alphabetical order by name.
// Column-major and strided arrays are written in C order.
func WriteFile(path string, arrays map[string]*ndarray.Handle, metadata map[string]string) error {
	return safetensors.WriteFile(path, arrays, metadata)
}
