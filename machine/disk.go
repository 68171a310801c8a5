// Package machine provides the simulated hardware kernel/main.go boots
// against: a memory-backed disk and a line-editing console. Grounded
// on original_source/kernel/main.c's boot sequence and memide.c's
// in-memory disk, replacing the teacher's real hardware bring-up
// (ahci/pci/apic device probing in kernel/main.go) with simulated
// equivalents since this kernel never runs on real hardware.
package machine

import (
	"sync"

	"github.com/mit-pdos-xv6/kernelcore/common"
	"github.com/mit-pdos-xv6/kernelcore/limits"
)

// MemDisk_t is a RAM-backed block device, grounded on memide.c's
// "fake IDE disk" — blocks live in a plain byte slice instead of a
// real disk controller, and Start serves each BlockReq synchronously
// since there is no interrupt to wait for.
type MemDisk_t struct {
	mu     sync.Mutex
	blocks [][limits.BSIZE]byte
}

func NewMemDisk(nblocks int) *MemDisk_t {
	return &MemDisk_t{blocks: make([][limits.BSIZE]byte, nblocks)}
}

func (d *MemDisk_t) Start(req *common.BlockReq) {
	d.mu.Lock()
	switch req.Cmd {
	case common.BDEV_READ:
		req.Data = append(req.Data[:0], d.blocks[req.Block][:]...)
	case common.BDEV_WRITE:
		copy(d.blocks[req.Block][:], req.Data)
	}
	d.mu.Unlock()
	if req.AckCh != nil {
		req.AckCh <- true
	}
}

func (d *MemDisk_t) Nblocks() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.blocks)
}
