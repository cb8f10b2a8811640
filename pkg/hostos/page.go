// Package hostos models the host operating system primitives the network
// stack treats as external collaborators: physical page allocation,
// virtual/physical address translation, and interrupt line enable. None of
// these exist in a real form inside a single Go process, so each is a small
// interface plus a reference implementation usable by tests and demos.
package hostos

import (
	"fmt"
	"sync"
)

// PageSize is the fixed allocation unit the driver and connection table
// both deal in: one 4 KiB page per receive connection and per transmitted
// frame.
const PageSize = 4096

// Page is one physical page of memory, addressable both by its synthetic
// physical address and its byte contents.
type Page struct {
	Phys uintptr
	Data [PageSize]byte
}

// PageAllocator allocates and frees fixed-size pages. The driver's RX/TX
// rings and the connection table's per-slot receive buffers are the only
// consumers.
type PageAllocator interface {
	Alloc() (*Page, error)
	Free(p *Page)
}

// ErrOutOfMemory is returned by Alloc when the backing pool is exhausted.
var ErrOutOfMemory = fmt.Errorf("hostos: out of memory")

// FreeListAllocator is a reference PageAllocator backed by a fixed-size
// pool carved out at construction time, tracked with a simple free list.
// It is not meant to model a real allocator's fragmentation behaviour,
// only to give the stack something concrete to exhaust in tests.
type FreeListAllocator struct {
	mu    sync.Mutex
	pool  []*Page
	free  []*Page
}

// NewFreeListAllocator builds an allocator with capacity pages available.
func NewFreeListAllocator(capacity int) *FreeListAllocator {
	a := &FreeListAllocator{
		pool: make([]*Page, capacity),
		free: make([]*Page, 0, capacity),
	}
	for i := range a.pool {
		p := &Page{Phys: uintptr((i + 1) * PageSize)}
		a.pool[i] = p
		a.free = append(a.free, p)
	}
	return a
}

// Alloc removes and returns one page from the free list.
func (a *FreeListAllocator) Alloc() (*Page, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if len(a.free) == 0 {
		return nil, ErrOutOfMemory
	}
	n := len(a.free) - 1
	p := a.free[n]
	a.free = a.free[:n]
	return p, nil
}

// Free returns a page to the free list. Freeing a page not obtained from
// this allocator, or freeing it twice, is a caller error and not checked
// for, matching the original's unchecked free_page.
func (a *FreeListAllocator) Free(p *Page) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.free = append(a.free, p)
}

// Available reports the number of pages currently free, used by netctl
// stats to report allocator pressure.
func (a *FreeListAllocator) Available() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.free)
}
