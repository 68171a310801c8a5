package fs

import (
	"github.com/mit-pdos-xv6/kernelcore/common"
	"github.com/mit-pdos-xv6/kernelcore/defs"
	"github.com/mit-pdos-xv6/kernelcore/limits"
)

// Fs_t ties the buffer cache to one mounted ext2-flavored volume: a
// superblock, the (here, single) group descriptor covering the whole
// device, and the in-memory inode cache layered over both. Grounded on
// the teacher's fs_t aggregate in fs/fs.go, reworked to ext2's
// group-descriptor indirection instead of biscuit's log-structured
// layout.
type Fs_t struct {
	bc   *BCache_t
	disk common.Disk_i
	sb   *Superblock_t
	gd   *GroupDesc_t

	firstDataBlock uint32
	icache         *icache_t
}

// bootCpu is used only while MkFS formats a volume or OpenFS mounts
// one, both of which happen before any process exists and hence before any other goroutine could
// race it. Every other Fs_t method below takes the caller's own
// *common.Cpu_t instead, since those run concurrently across
// processes and a shared Cpu_t's Ncli/IntEna bookkeeping is not safe
// for concurrent mutation.
var bootCpu = &common.Cpu_t{ID: -1}

// MkFS formats a fresh volume of nblocks blocks over disk and returns
// the mounted Fs_t, for use by tests and by the boot-time "no disk
// image supplied" fallback. Layout: block 0 boot, block 1 superblock,
// block 2 the (single) group descriptor, then the block bitmap, inode
// bitmap, inode table, and finally data blocks — grounded on
// ext2fs_readsb's field interpretation, generated rather than parsed.
func MkFS(disk common.Disk_i, nblocks uint32) *Fs_t {
	ninodes := uint32(limits.NINODE * 4)
	sb := MkSuperblock(nblocks, ninodes, nblocks, ninodes)

	inodeBlocks := (ninodes*128 + limits.BSIZE - 1) / limits.BSIZE
	gd := &GroupDesc_t{
		BlockBitmap: 3,
		InodeBitmap: 4,
		InodeTable:  5,
		FreeBlocksCount: 0,
		FreeInodesCount: uint16(ninodes - 1),
	}
	firstData := gd.InodeTable + inodeBlocks
	gd.FreeBlocksCount = uint16(nblocks - firstData)
	sb.SetFreeBlocksCount(uint32(gd.FreeBlocksCount))
	sb.SetFreeInodesCount(uint32(gd.FreeInodesCount))

	fs := &Fs_t{
		bc:     NewBCache(disk),
		disk:   disk,
		sb:     sb,
		gd:     gd,
		icache: newIcache(),
	}
	fs.firstDataBlock = firstData

	zero := fs.bc.Get(int(gd.BlockBitmap))
	zero.Lock(bootCpu, 0)
	zero.Valid = true
	zero.Dirty = true
	fs.bc.Write(zero)
	fs.bc.Release(bootCpu, zero)

	izero := fs.bc.Get(int(gd.InodeBitmap))
	izero.Lock(bootCpu, 0)
	izero.Valid = true
	izero.Dirty = true
	fs.bc.Write(izero)
	fs.bc.Release(bootCpu, izero)

	root := fs.Ialloc(bootCpu, defs.T_DIR)
	root.Nlink = 1
	fs.Iupdate(bootCpu, root)
	fs.dirlink(bootCpu, root, ".", root.Inum)
	fs.dirlink(bootCpu, root, "..", root.Inum)
	fs.Iunlockput(bootCpu, root)

	return fs
}

// OpenFS mounts a volume a prior MkFS already formatted, reading the
// superblock and group descriptor back off blocks 1 and 2 instead of
// generating them — the counterpart ext2fs_readsb plays to mkfs in the
// original, used whenever the kernel boots against a disk that already
// holds a filesystem rather than formatting a fresh one.
func OpenFS(disk common.Disk_i) *Fs_t {
	bc := NewBCache(disk)

	sbBuf := bc.Read(bootCpu, 0, 1)
	sb := &Superblock_t{}
	sb.FromBytes(sbBuf.Data[:])
	bc.Release(bootCpu, sbBuf)

	gdBuf := bc.Read(bootCpu, 0, 2)
	gd := &GroupDesc_t{}
	gd.Unmarshal(gdBuf.Data[:groupDescSize])
	bc.Release(bootCpu, gdBuf)

	inodeBlocks := (sb.InodesCount()*128 + limits.BSIZE - 1) / limits.BSIZE

	fs := &Fs_t{
		bc:     bc,
		disk:   disk,
		sb:     sb,
		gd:     gd,
		icache: newIcache(),
	}
	fs.firstDataBlock = gd.InodeTable + inodeBlocks
	return fs
}

// writeSuperblock and writeGroupDesc persist the in-memory superblock
// and group descriptor to their fixed blocks (1 and 2) so OpenFS can
// recover them later. There is no delayed-writeback log in this
// filesystem, so every free-count mutation in alloc.go calls these
// immediately rather than batching them.
func (fs *Fs_t) writeSuperblock(cpu *common.Cpu_t) {
	b := fs.bc.Get(1)
	b.Lock(cpu, 0)
	copy(b.Data[:], fs.sb.Bytes())
	b.Valid = true
	b.Dirty = true
	fs.bc.Write(b)
	fs.bc.Release(cpu, b)
}

func (fs *Fs_t) writeGroupDesc(cpu *common.Cpu_t) {
	b := fs.bc.Get(2)
	b.Lock(cpu, 0)
	fs.gd.Marshal(b.Data[:groupDescSize])
	b.Valid = true
	b.Dirty = true
	fs.bc.Write(b)
	fs.bc.Release(cpu, b)
}
