package vm

import (
	"bytes"
	"testing"

	"github.com/mit-pdos-xv6/kernelcore/limits"
)

func TestAllocGrowsAndMapsZeroedPages(t *testing.T) {
	as := SetupKVM()
	newsz, ok := AllocUVM(as, 0, 2*limits.PGSIZE)
	if !ok {
		t.Fatalf("AllocUVM failed")
	}
	if newsz != 2*limits.PGSIZE {
		t.Fatalf("newsz = %d, want %d", newsz, 2*limits.PGSIZE)
	}

	buf := make([]byte, limits.PGSIZE)
	if !CopyinUVM(as, 0, buf) {
		t.Fatalf("CopyinUVM of freshly allocated page failed")
	}
	if !bytes.Equal(buf, make([]byte, limits.PGSIZE)) {
		t.Fatalf("freshly allocated page is not zeroed")
	}
}

func TestDeallocFreesPagesAboveNewsz(t *testing.T) {
	as := SetupKVM()
	sz, ok := AllocUVM(as, 0, 3*limits.PGSIZE)
	if !ok {
		t.Fatalf("AllocUVM failed")
	}
	sz = DeallocUVM(as, sz, limits.PGSIZE)
	if sz != limits.PGSIZE {
		t.Fatalf("DeallocUVM returned %d, want %d", sz, limits.PGSIZE)
	}

	if _, _, ok := as.Translate(2 * limits.PGSIZE); ok {
		t.Fatalf("page beyond newsz still mapped after DeallocUVM")
	}
	if _, _, ok := as.Translate(0); !ok {
		t.Fatalf("page below newsz got unmapped by DeallocUVM")
	}
}

func TestCopyoutCopyinRoundTrip(t *testing.T) {
	as := SetupKVM()
	if _, ok := AllocUVM(as, 0, limits.PGSIZE); !ok {
		t.Fatalf("AllocUVM failed")
	}

	want := []byte("hello kernel")
	if !CopyoutUVM(as, 10, want) {
		t.Fatalf("CopyoutUVM failed")
	}
	got := make([]byte, len(want))
	if !CopyinUVM(as, 10, got) {
		t.Fatalf("CopyinUVM failed")
	}
	if !bytes.Equal(got, want) {
		t.Fatalf("CopyinUVM = %q, want %q", got, want)
	}
}

func TestCopyoutCrossingPageBoundary(t *testing.T) {
	as := SetupKVM()
	if _, ok := AllocUVM(as, 0, 2*limits.PGSIZE); !ok {
		t.Fatalf("AllocUVM failed")
	}
	want := bytes.Repeat([]byte{0x42}, 16)
	va := uintptr(limits.PGSIZE) - 8
	if !CopyoutUVM(as, va, want) {
		t.Fatalf("CopyoutUVM across page boundary failed")
	}
	got := make([]byte, len(want))
	if !CopyinUVM(as, va, got) {
		t.Fatalf("CopyinUVM across page boundary failed")
	}
	if !bytes.Equal(got, want) {
		t.Fatalf("data did not survive a page-boundary crossing copy")
	}
}

func TestCopyoutUnmappedAddressFails(t *testing.T) {
	as := SetupKVM()
	if CopyoutUVM(as, 0, []byte("x")) {
		t.Fatalf("CopyoutUVM succeeded against an unmapped address space")
	}
}

func TestCopyUVMIsADeepCopy(t *testing.T) {
	as := SetupKVM()
	if _, ok := AllocUVM(as, 0, limits.PGSIZE); !ok {
		t.Fatalf("AllocUVM failed")
	}
	CopyoutUVM(as, 0, []byte("original"))

	cp, ok := CopyUVM(as)
	if !ok {
		t.Fatalf("CopyUVM failed")
	}
	if cp.Sz != as.Sz {
		t.Fatalf("copy Sz = %d, want %d", cp.Sz, as.Sz)
	}

	CopyoutUVM(as, 0, []byte("mutated!"))
	got := make([]byte, 8)
	CopyinUVM(cp, 0, got)
	if !bytes.Equal(got, []byte("original")) {
		t.Fatalf("copy observed a write made to the original after CopyUVM: got %q", got)
	}
}

func TestClearPTEURemovesUserBit(t *testing.T) {
	as := SetupKVM()
	AllocUVM(as, 0, limits.PGSIZE)
	pte, _, ok := as.Translate(0)
	if !ok || !pte.User {
		t.Fatalf("page not user-accessible right after AllocUVM")
	}
	ClearPTEU(as, 0)
	pte, _, ok = as.Translate(0)
	if !ok || pte.User {
		t.Fatalf("ClearPTEU did not clear the user bit")
	}
}

func TestFreeReleasesAllPages(t *testing.T) {
	as := SetupKVM()
	AllocUVM(as, 0, 3*limits.PGSIZE)
	as.Free()
	for va := uintptr(0); va < 3*limits.PGSIZE; va += limits.PGSIZE {
		if _, _, ok := as.Translate(va); ok {
			t.Fatalf("page at %#x still mapped after Free", va)
		}
	}
}
