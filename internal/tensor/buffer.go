package tensor

import (
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
)

// Allocator provides the memory behind natively-owned buffers.
type Allocator interface {
	// Alloc returns a zeroed slice of exactly size bytes or an *AllocationError.
	Alloc(size int) ([]byte, error)
	// Free returns memory obtained from Alloc. It is called exactly once per slice.
	Free(data []byte)
}

// HeapAllocator allocates from the Go heap. A positive Limit caps the number of
// bytes that may be live at once.
type HeapAllocator struct {
	Limit int64

	live atomic.Int64
}

// DefaultAllocator is the unlimited heap allocator used when none is configured.
var DefaultAllocator Allocator = &HeapAllocator{}

var errAllocLimit = errors.New("allocator limit exceeded")

// Alloc implements Allocator.
func (a *HeapAllocator) Alloc(size int) (data []byte, err error) {
	if size < 0 {
		return nil, &AllocationError{Bytes: size, Err: fmt.Errorf("negative size")}
	}
	n := a.live.Add(int64(size))
	if a.Limit > 0 && n > a.Limit {
		a.live.Add(-int64(size))
		return nil, &AllocationError{Bytes: size, Err: errAllocLimit}
	}
	defer func() {
		// make panics on sizes the runtime cannot satisfy (len out of range).
		if r := recover(); r != nil {
			a.live.Add(-int64(size))
			data = nil
			err = &AllocationError{Bytes: size, Err: fmt.Errorf("%v", r)}
		}
	}()
	return make([]byte, size), nil
}

// Free implements Allocator.
func (a *HeapAllocator) Free(data []byte) {
	a.live.Add(-int64(len(data)))
}

// Live returns the number of bytes currently allocated and not yet freed.
func (a *HeapAllocator) Live() int64 {
	return a.live.Load()
}

// Buffer is a reference-counted, natively-owned allocation.
// The memory is returned to its Allocator exactly once, when the count reaches zero.
type Buffer struct {
	data     []byte
	alloc    Allocator
	refCount atomic.Int32
	mu       sync.Mutex // For safe deallocation
}

// NewBuffer allocates size bytes from alloc (DefaultAllocator if nil) with refCount = 1.
func NewBuffer(size int, alloc Allocator) (*Buffer, error) {
	if alloc == nil {
		alloc = DefaultAllocator
	}
	data, err := alloc.Alloc(size)
	if err != nil {
		var allocErr *AllocationError
		if !errors.As(err, &allocErr) {
			err = &AllocationError{Bytes: size, Err: err}
		}
		return nil, err
	}
	buf := &Buffer{
		data:  data,
		alloc: alloc,
	}
	buf.refCount.Store(1)
	return buf, nil
}

// Bytes returns the backing memory, or nil once the buffer has been freed.
func (b *Buffer) Bytes() []byte {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.data
}

// Retain increments the reference count. It fails once the buffer has been freed.
func (b *Buffer) Retain() error {
	for {
		n := b.refCount.Load()
		if n <= 0 {
			return NewUseError("retain", "buffer already freed")
		}
		if b.refCount.CompareAndSwap(n, n+1) {
			return nil
		}
	}
}

// Release decrements the reference count and frees the memory if it reaches 0.
// Releasing an already-freed buffer is a no-op.
func (b *Buffer) Release() {
	for {
		n := b.refCount.Load()
		if n <= 0 {
			return
		}
		if b.refCount.CompareAndSwap(n, n-1) {
			if n == 1 {
				b.free()
			}
			return
		}
	}
}

// IsUnique returns true if this buffer has only one reference.
func (b *Buffer) IsUnique() bool {
	return b.refCount.Load() == 1
}

func (b *Buffer) free() {
	b.mu.Lock()
	defer b.mu.Unlock()
	data := b.data
	b.data = nil
	b.alloc.Free(data)
}
