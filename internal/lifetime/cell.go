// Package lifetime guards foreign-owned memory with an atomically reference-counted cell.
//
// A Cell wraps the deleter of one foreign resource. It starts with one reference held
// by its creator; every additional borrower calls Retain and every borrower, the
// creator included, calls Release exactly once. The deleter runs exactly once, on the
// Release that takes the count to zero, whichever goroutine that happens on.
package lifetime

import (
	"errors"
	"sync/atomic"
)

// ErrReleased is returned when a cell is retained or released after its count hit zero.
var ErrReleased = errors.New("lifetime cell already released")

var nextID atomic.Uint64

// Cell is a shared reference count around one deleter.
type Cell struct {
	id      uint64
	refs    atomic.Int64
	fired   atomic.Bool
	deleter func()
}

// New creates a cell holding one reference. A nil deleter is allowed.
func New(deleter func()) *Cell {
	c := &Cell{
		id:      nextID.Add(1),
		deleter: deleter,
	}
	c.refs.Store(1)
	return c
}

// ID returns a process-unique identifier, for diagnostics.
func (c *Cell) ID() uint64 {
	return c.id
}

// Retain adds a reference. It never resurrects a cell whose deleter has run.
func (c *Cell) Retain() error {
	for {
		n := c.refs.Load()
		if n <= 0 {
			return ErrReleased
		}
		if c.refs.CompareAndSwap(n, n+1) {
			return nil
		}
	}
}

// Release drops a reference and reports whether this call ran the deleter.
func (c *Cell) Release() (bool, error) {
	for {
		n := c.refs.Load()
		if n <= 0 {
			return false, ErrReleased
		}
		if !c.refs.CompareAndSwap(n, n-1) {
			continue
		}
		if n != 1 {
			return false, nil
		}
		if !c.fired.CompareAndSwap(false, true) {
			return false, nil
		}
		if c.deleter != nil {
			c.deleter()
		}
		return true, nil
	}
}

// Refs returns the current reference count.
func (c *Cell) Refs() int64 {
	return c.refs.Load()
}

// Released reports whether the deleter has run.
func (c *Cell) Released() bool {
	return c.fired.Load()
}
