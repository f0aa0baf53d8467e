// Package bind runs one call's array pipeline: extraction, direct matching,
// optional implicit conversion, and wrapping into a Handle.
//
// Everything runs synchronously on the calling goroutine; there is no
// cancellation at this layer.
package bind

import (
	"errors"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/born-ml/ndbridge/internal/convert"
	"github.com/born-ml/ndbridge/internal/extract"
	"github.com/born-ml/ndbridge/internal/handle"
	"github.com/born-ml/ndbridge/internal/match"
	"github.com/born-ml/ndbridge/internal/parallel"
	"github.com/born-ml/ndbridge/internal/tensor"
)

// Options configures a Binder.
type Options struct {
	MaxRank   int              // Maximum accepted ndim (tensor.MaxRank if zero)
	Allocator tensor.Allocator // Memory for conversion copies (tensor.DefaultAllocator if nil)
	Parallel  *parallel.Config // Conversion copy fan-out (parallel.DefaultConfig() if nil)
	Logger    *zerolog.Logger  // Debug logging (disabled if nil)
}

// Binder resolves foreign arrays against overload signatures.
// It is safe for concurrent and reentrant use.
type Binder struct {
	extractor *extract.Extractor
	arbiter   *convert.Arbiter
	log       zerolog.Logger
}

// New creates a Binder.
func New(opts Options) *Binder {
	b := &Binder{
		extractor: extract.New(extract.Options{MaxRank: opts.MaxRank, Logger: opts.Logger}),
		arbiter: convert.NewArbiter(convert.Options{
			Allocator: opts.Allocator,
			Parallel:  opts.Parallel,
			Logger:    opts.Logger,
		}),
		log: zerolog.Nop(),
	}
	if opts.Logger != nil {
		b.log = *opts.Logger
	}
	return b
}

// Extractor returns the Binder's extractor.
func (b *Binder) Extractor() *extract.Extractor {
	return b.extractor
}

// Binding is the result of a successful Bind: the selected overload and the
// array the call should operate on. Close ends the call scope.
type Binding struct {
	Index     int
	Signature match.Signature
	Handle    *handle.Handle
	Converted bool // Handle holds a conversion copy, not the caller's memory
}

// Close releases the call's reference to the array.
func (bd *Binding) Close() error {
	return bd.Handle.Close()
}

// Bind selects the first signature src satisfies, in declaration order.
//
// On a direct miss every signature eligible for implicit conversion is tried once,
// in declaration order, against a freshly materialized copy; the first one the copy
// satisfies wins. Extraction, use and allocation failures abort immediately. A
// total miss returns a *match.NoOverloadError listing every attempted signature.
func (b *Binder) Bind(src any, sigs []match.Signature) (*Binding, error) {
	for i := range sigs {
		if err := sigs[i].Validate(); err != nil {
			return nil, err
		}
	}

	d, err := b.extractor.Extract(src)
	if err != nil {
		return nil, err
	}
	// The handle takes its own reference; this one always ends with the call setup.
	defer d.Release()

	if idx, err := match.Select(d, sigs); err == nil {
		h, err := handle.Borrow(d, src)
		if err != nil {
			return nil, err
		}
		b.log.Debug().Int("index", idx).Str("signature", sigs[idx].Name).Stringer("array", d).Msg("direct match")
		return &Binding{Index: idx, Signature: sigs[idx], Handle: h}, nil
	}

	for i := range sigs {
		sig := &sigs[i]
		plan, err := b.arbiter.Plan(d, sig)
		if err != nil {
			if errors.Is(err, convert.ErrNotEligible) {
				b.log.Debug().Int("index", i).Str("signature", sig.Name).Err(err).Msg("skipping candidate")
				continue
			}
			return nil, err
		}
		converted, err := b.arbiter.Materialize(d, plan)
		if err != nil {
			return nil, err
		}
		if !match.Satisfies(converted, sig) {
			converted.Release()
			continue
		}
		h, err := handle.Adopt(converted, src)
		if err != nil {
			converted.Release()
			return nil, fmt.Errorf("binding converted array: %w", err)
		}
		b.log.Debug().Int("index", i).Str("signature", sig.Name).Stringer("array", converted).Msg("matched after conversion")
		return &Binding{Index: i, Signature: *sig, Handle: h, Converted: true}, nil
	}

	b.log.Debug().Stringer("array", d).Int("candidates", len(sigs)).Msg("no overload")
	return nil, match.NewNoOverloadError(d, sigs)
}
