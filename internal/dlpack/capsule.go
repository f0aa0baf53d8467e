package dlpack

import (
	"runtime"
	"sync/atomic"

	"github.com/born-ml/ndbridge/internal/lifetime"
	"github.com/born-ml/ndbridge/internal/tensor"
)

// capsuleState is kept apart from Capsule so a GC cleanup can reach it
// without keeping the Capsule itself alive.
type capsuleState struct {
	consumed atomic.Bool
	deleter  func()
}

func (s *capsuleState) discard() {
	if s.consumed.CompareAndSwap(false, true) && s.deleter != nil {
		s.deleter()
	}
}

// Capsule is a single-consumption exchange object.
//
// Ownership of the payload moves to the consumer on Consume. A capsule that is
// never consumed runs its deleter when discarded or garbage collected.
type Capsule struct {
	Version  Version
	Tensor   Tensor
	ReadOnly bool

	state *capsuleState
}

// NewCapsule wraps a payload and the deleter that releases it.
func NewCapsule(t Tensor, readOnly bool, deleter func()) *Capsule {
	c := &Capsule{
		Version:  CurrentVersion,
		Tensor:   t,
		ReadOnly: readOnly,
		state:    &capsuleState{deleter: deleter},
	}
	runtime.AddCleanup(c, (*capsuleState).discard, c.state)
	return c
}

// Consumed reports whether the capsule has been consumed or discarded.
func (c *Capsule) Consumed() bool {
	return c.state.consumed.Load()
}

// Consume marks the capsule used and returns a lifetime cell that owns the deleter.
// The cell starts with one reference, held by the caller.
func (c *Capsule) Consume() (*lifetime.Cell, error) {
	if !c.state.consumed.CompareAndSwap(false, true) {
		return nil, tensor.NewUseError("consume", "exchange capsule already consumed")
	}
	return lifetime.New(c.state.deleter), nil
}

// Discard runs the deleter of a capsule that was never consumed. It is a no-op
// on consumed capsules.
func (c *Capsule) Discard() {
	c.state.discard()
}
