// Package vm implements the two-level virtual memory abstraction spec.md
// §4.3 describes, grounded structurally on the teacher's address-space
// lifecycle (biscuit drops literal page-table management in favor of the
// Go runtime's own, so this is instead grounded on the original's
// allocuvm/deallocuvm/copyuvm family called from fork/growproc in
// original_source/kernel/proc.c, plus loaduvm/copyout called from exec
// in original_source/kernel/exec.c — reimplemented here as a map from
// page-aligned virtual address to backing mem.Page rather than a literal
// two-level x86 page directory, since Go code cannot walk real hardware
// page tables). All operations roll back cleanly on allocation failure,
// per spec.md §4.3's "no operation leaves a partially mapped range"
// invariant.
package vm

import (
	"github.com/mit-pdos-xv6/kernelcore/limits"
	"github.com/mit-pdos-xv6/kernelcore/mem"
)

// PTE_t is one page-table entry: the physical page it maps plus the
// permission bits spec.md §4.3 names (present is implicit in map
// membership).
type PTE_t struct {
	Page     *mem.Page
	Writable bool
	User     bool
}

// Aspace_t is one process's user address space: page-aligned virtual
// address to PTE_t, plus Sz, the current break (end of the heap/data
// region, grown and shrunk by sbrk).
type Aspace_t struct {
	pages map[uintptr]*PTE_t
	Sz    uintptr
}

func pgroundup(a uintptr) uintptr {
	return (a + limits.PGSIZE - 1) &^ (limits.PGSIZE - 1)
}

func pgrounddown(a uintptr) uintptr {
	return a &^ (limits.PGSIZE - 1)
}

// SetupKVM returns a fresh address space. A real kernel would map the
// kernel text/data/devices here so syscalls can run with the user
// pagetable installed; since our "kernel" is ordinary Go code never
// addressed through this table, there is nothing to map — the returned
// Aspace_t holds only the user region.
func SetupKVM() *Aspace_t {
	return &Aspace_t{pages: make(map[uintptr]*PTE_t)}
}

// AllocUVM grows the address space from oldsz to newsz, allocating and
// mapping one page at a time. If physical memory runs out partway
// through, every page allocated during this call is freed and unmapped
// before returning an error, leaving the address space exactly as it
// was at oldsz.
func AllocUVM(as *Aspace_t, oldsz, newsz uintptr) (uintptr, bool) {
	if newsz < oldsz {
		return oldsz, true
	}
	var allocated []uintptr
	for a := pgroundup(oldsz); a < newsz; a += limits.PGSIZE {
		pg := mem.Global().Alloc()
		if pg == nil {
			for _, va := range allocated {
				freePage(as, va)
			}
			return oldsz, false
		}
		as.pages[a] = &PTE_t{Page: pg, Writable: true, User: true}
		allocated = append(allocated, a)
	}
	as.Sz = newsz
	return newsz, true
}

// DeallocUVM shrinks the address space from oldsz to newsz, freeing
// every page now beyond newsz.
func DeallocUVM(as *Aspace_t, oldsz, newsz uintptr) uintptr {
	if newsz >= oldsz {
		return oldsz
	}
	for a := pgroundup(newsz); a < oldsz; a += limits.PGSIZE {
		freePage(as, a)
	}
	as.Sz = newsz
	return newsz
}

func freePage(as *Aspace_t, va uintptr) {
	pte, ok := as.pages[va]
	if !ok {
		return
	}
	mem.Global().Free(pte.Page)
	delete(as.pages, va)
}

// CopyUVM deep-copies an entire address space, page contents included —
// this kernel has no copy-on-write, so fork duplicates every page up
// front (spec.md §3, fork Non-goals: "no copy-on-write"). Rolls back and
// returns ok=false, freeing everything copied so far, if memory runs
// out mid-copy.
func CopyUVM(old *Aspace_t) (*Aspace_t, bool) {
	nw := SetupKVM()
	nw.Sz = old.Sz
	for va, pte := range old.pages {
		pg := mem.Global().Alloc()
		if pg == nil {
			for va2 := range nw.pages {
				freePage(nw, va2)
			}
			return nil, false
		}
		pg.Bytes = pte.Page.Bytes
		nw.pages[va] = &PTE_t{Page: pg, Writable: pte.Writable, User: pte.User}
	}
	return nw, true
}

// LoadUVM copies data into the page(s) backing [va, va+len(data)), used
// by the ELF loader to place a segment's file contents. Every byte
// touched must already be mapped, typically by a prior AllocUVM.
func LoadUVM(as *Aspace_t, va uintptr, data []byte) bool {
	return CopyoutUVM(as, va, data)
}

// CopyoutUVM copies buf into the user address space starting at va,
// crossing page boundaries as needed, grounded on the copyout() call
// in original_source/kernel/exec.c's argument-string setup.
func CopyoutUVM(as *Aspace_t, va uintptr, buf []byte) bool {
	off := 0
	for off < len(buf) {
		base := pgrounddown(va)
		pte, ok := as.pages[base]
		if !ok {
			return false
		}
		pageoff := va - base
		n := uintptr(limits.PGSIZE) - pageoff
		if n > uintptr(len(buf)-off) {
			n = uintptr(len(buf) - off)
		}
		copy(pte.Page.Bytes[pageoff:pageoff+n], buf[off:off+int(n)])
		off += int(n)
		va += n
	}
	return true
}

// CopyinUVM is the read-direction counterpart of CopyoutUVM, used by
// syscall argument fetch to pull user buffers into kernel space.
func CopyinUVM(as *Aspace_t, va uintptr, buf []byte) bool {
	off := 0
	for off < len(buf) {
		base := pgrounddown(va)
		pte, ok := as.pages[base]
		if !ok {
			return false
		}
		pageoff := va - base
		n := uintptr(limits.PGSIZE) - pageoff
		if n > uintptr(len(buf)-off) {
			n = uintptr(len(buf) - off)
		}
		copy(buf[off:off+int(n)], pte.Page.Bytes[pageoff:pageoff+n])
		off += int(n)
		va += n
	}
	return true
}

// ClearPTEU removes the user-accessible bit from the page at va,
// used by exec to plant an inaccessible guard page just below the
// initial stack so a stack overflow faults instead of corrupting
// the next region down.
func ClearPTEU(as *Aspace_t, va uintptr) {
	if pte, ok := as.pages[pgrounddown(va)]; ok {
		pte.User = false
	}
}

// Free releases every page in the address space — called when a
// process exits.
func (as *Aspace_t) Free() {
	for va := range as.pages {
		freePage(as, va)
	}
}

// SwitchUVM marks as the address space the current CPU should use to
// translate user addresses. A real kernel would load CR3 here; since
// nothing in this simulation walks hardware page tables, installing an
// address space is just recording which one a process carries on its
// Proc_t, so this is a no-op; nothing in this repository calls it.
func SwitchUVM(as *Aspace_t) {
	_ = as
}

// Translate resolves a user virtual address to its backing page and
// page-relative offset. Only the tests call it; the trap handler and
// the syscall layer do not.
func (as *Aspace_t) Translate(va uintptr) (*PTE_t, uintptr, bool) {
	base := pgrounddown(va)
	pte, ok := as.pages[base]
	return pte, va - base, ok
}
