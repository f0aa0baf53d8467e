package convert

import (
	"errors"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/born-ml/ndbridge/internal/match"
	"github.com/born-ml/ndbridge/internal/parallel"
	"github.com/born-ml/ndbridge/internal/tensor"
)

// ErrNotEligible is returned by Plan when a candidate cannot be reached by conversion.
var ErrNotEligible = errors.New("candidate not eligible for implicit conversion")

// Plan describes one materialization: the target element type and layout.
type Plan struct {
	DType tensor.DataType
	Order tensor.Order // OrderC or OrderF
}

// Options configures an Arbiter.
type Options struct {
	Allocator tensor.Allocator // tensor.DefaultAllocator if nil
	Parallel  *parallel.Config // parallel.DefaultConfig() if nil
	Logger    *zerolog.Logger  // Debug logging (disabled if nil)
}

// Arbiter decides and performs implicit conversions after a direct match miss.
// It holds no mutable state and is safe for concurrent use.
type Arbiter struct {
	alloc tensor.Allocator
	par   parallel.Config
	log   zerolog.Logger
}

// NewArbiter creates an Arbiter.
func NewArbiter(opts Options) *Arbiter {
	a := &Arbiter{
		alloc: opts.Allocator,
		par:   parallel.DefaultConfig(),
		log:   zerolog.Nop(),
	}
	if a.alloc == nil {
		a.alloc = tensor.DefaultAllocator
	}
	if opts.Parallel != nil {
		a.par = *opts.Parallel
	}
	if opts.Logger != nil {
		a.log = *opts.Logger
	}
	return a
}

func notEligible(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrNotEligible, fmt.Sprintf(format, args...))
}

// Plan decides whether d can be converted to satisfy s.
//
// A candidate is eligible only if its convert flag is set, it does not forbid
// copies, its only failed constraints are dtype and/or order, the data is host
// addressable, and any dtype change is a widening.
func (a *Arbiter) Plan(d *tensor.Descriptor, s *match.Signature) (Plan, error) {
	if !s.Convert {
		return Plan{}, notEligible("implicit conversion disabled")
	}
	if s.NoCopy {
		return Plan{}, notEligible("copies forbidden")
	}
	m := match.Mismatches(d, s)
	if m == 0 {
		return Plan{}, notEligible("already satisfied")
	}
	if rest := m &^ (match.MismatchDType | match.MismatchOrder); rest != 0 {
		return Plan{}, notEligible("%s mismatch cannot be converted", rest)
	}
	if d.Device().Kind != tensor.CPU {
		return Plan{}, notEligible("data on %s is not host addressable", d.Device())
	}

	plan := Plan{DType: d.DType(), Order: tensor.OrderC}
	if !s.DType.IsZero() {
		plan.DType = s.DType
	}
	if s.Order == match.RequireF {
		plan.Order = tensor.OrderF
	}
	if !CanPromote(d.DType(), plan.DType) {
		return Plan{}, notEligible("%s -> %s would narrow", d.DType(), plan.DType)
	}
	if !Castable(d.DType(), plan.DType) {
		return Plan{}, notEligible("no kernel for %s -> %s", d.DType(), plan.DType)
	}
	return plan, nil
}

// Materialize copies d into a new, exclusively owned, contiguous buffer following p.
// Allocation failure is returned as *tensor.AllocationError and leaves d untouched.
func (a *Arbiter) Materialize(d *tensor.Descriptor, p Plan) (*tensor.Descriptor, error) {
	src := d.DataPtr()
	if src == nil && d.Size() > 0 {
		return nil, tensor.NewUseError("convert", "source array already released")
	}
	shape := d.Shape()
	strides := shape.ComputeStrides()
	if p.Order == tensor.OrderF {
		strides = shape.ComputeStridesF()
	}

	buf, err := tensor.NewBuffer(shape.NumElements()*p.DType.Size(), a.alloc)
	if err != nil {
		return nil, err
	}
	out, err := tensor.NewOwned(buf, tensor.Layout{
		Shape:   shape,
		Strides: strides,
		DType:   p.DType,
		Device:  d.Device(),
	})
	if err != nil {
		buf.Release()
		return nil, err
	}

	stridedCopy(out.DataPtr(), strides, p.DType, src, d.Strides(), d.DType(), shape, a.par)

	a.log.Debug().
		Stringer("from", d).
		Stringer("to", out).
		Msg("materialized implicit conversion")
	return out, nil
}

// Convert plans and materializes in one step.
func (a *Arbiter) Convert(d *tensor.Descriptor, s *match.Signature) (*tensor.Descriptor, error) {
	p, err := a.Plan(d, s)
	if err != nil {
		return nil, err
	}
	return a.Materialize(d, p)
}
