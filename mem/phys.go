// Package mem implements the physical page allocator spec.md §4.2
// describes: a freelist of fixed-size pages carved out of a simulated
// physical memory arena, filled in a single pass by NewAllocator that
// puts every page of the arena on the list (there is no separate phase
// that holds back pages already in use at boot), and poisoned on free to catch use-after-free the way the teacher's
// allocator would with a debug build.
package mem

import (
	"sync"

	"github.com/mit-pdos-xv6/kernelcore/limits"
)

// Page is one PGSIZE-aligned unit of simulated physical memory. PA is a
// synthetic physical address (simply the page's index times PGSIZE) used
// as the map key in vm.Aspace_t; Bytes is the backing storage.
type Page struct {
	PA    uintptr
	Bytes [limits.PGSIZE]byte
}

type run struct {
	next *run
	pg   *Page
}

// Allocator is the kernel physical-memory freelist. One instance backs
// the whole simulated machine. The freelist is bookkeeping private to
// this package, not one of the locks spec.md §4.1 names, so a plain
// sync.Mutex guards it rather than a common.Spinlock_t — the same
// reasoning fs.BCache_t's mu follows, and for the same reason: there is
// no single "current process" a purely internal critical section here
// belongs to, since every process's goroutine calls Alloc/Free.
type Allocator struct {
	lock     sync.Mutex
	freelist *run
	npages   int
	nfree    int
}

func NewAllocator(npages int) *Allocator {
	a := &Allocator{npages: npages}
	for i := 0; i < npages; i++ {
		pg := &Page{PA: uintptr(i) * limits.PGSIZE}
		a.free(pg)
	}
	return a
}

// Alloc removes one page from the freelist, or returns nil if physical
// memory is exhausted — callers (vm.Aspace_t) must
// treat nil as an allocation failure and roll back, never panic, per
// spec.md §4.2's "never panics on exhaustion" invariant.
func (a *Allocator) Alloc() *Page {
	a.lock.Lock()
	defer a.lock.Unlock()

	r := a.freelist
	if r == nil {
		return nil
	}
	a.freelist = r.next
	a.nfree--
	for i := range r.pg.Bytes {
		r.pg.Bytes[i] = 0
	}
	return r.pg
}

// Free returns a page to the list after stamping it with a poison byte,
// so a dangling reference that's read after free is visibly wrong rather
// than silently stale.
func (a *Allocator) Free(pg *Page) {
	a.lock.Lock()
	defer a.lock.Unlock()
	a.free(pg)
}

func (a *Allocator) free(pg *Page) {
	for i := range pg.Bytes {
		pg.Bytes[i] = 0xa5
	}
	a.freelist = &run{next: a.freelist, pg: pg}
	a.nfree++
}

func (a *Allocator) Stats() (free, total int) {
	a.lock.Lock()
	defer a.lock.Unlock()
	return a.nfree, a.npages
}

var once sync.Once
var global *Allocator

// Global returns the singleton allocator backing the whole simulated
// machine, lazily sized to limits-scale defaults (enough pages for the
// buffer cache, a handful of user address spaces, and page-table pages).
func Global() *Allocator {
	once.Do(func() { global = NewAllocator(4096) })
	return global
}
