package fs

import "github.com/mit-pdos-xv6/kernelcore/common"

// Balloc/Bfree walk the group's block bitmap bit by bit, grounded on
// get_free_bit()/balloc()/bfree() in original_source/kernel/ext2.c: a
// zero bit means free, balloc finds the first zero bit, sets it, and
// zeroes the block it names before handing it back so stale data from a
// previous file never leaks into a new one.
func (fs *Fs_t) Balloc(cpu *common.Cpu_t) (uint32, bool) {
	bmb := fs.bc.Read(cpu, 0, int(fs.gd.BlockBitmap))
	defer fs.bc.Release(cpu, bmb)

	nblocks := fs.sb.BlocksCount()
	for bi := fs.firstDataBlock; bi < nblocks; bi++ {
		byteIdx := bi / 8
		bitIdx := bi % 8
		if bmb.Data[byteIdx]&(1<<bitIdx) == 0 {
			bmb.Data[byteIdx] |= 1 << bitIdx
			bmb.Dirty = true
			fs.bc.Write(bmb)

			zero := fs.bc.Get(int(bi))
			zero.Lock(cpu, 0)
			zero.Data = [1024]byte{}
			zero.Valid = true
			zero.Dirty = true
			fs.bc.Write(zero)
			fs.bc.Release(cpu, zero)

			fs.gd.FreeBlocksCount--
			fs.sb.SetFreeBlocksCount(fs.sb.FreeBlocksCount() - 1)
			fs.writeSuperblock(cpu)
			fs.writeGroupDesc(cpu)
			return bi, true
		}
	}
	return 0, false
}

func (fs *Fs_t) Bfree(cpu *common.Cpu_t, bi uint32) {
	bmb := fs.bc.Read(cpu, 0, int(fs.gd.BlockBitmap))
	defer fs.bc.Release(cpu, bmb)

	byteIdx := bi / 8
	bitIdx := bi % 8
	if bmb.Data[byteIdx]&(1<<bitIdx) == 0 {
		panic("bfree: freeing free block")
	}
	bmb.Data[byteIdx] &^= 1 << bitIdx
	bmb.Dirty = true
	fs.bc.Write(bmb)

	fs.gd.FreeBlocksCount++
	fs.sb.SetFreeBlocksCount(fs.sb.FreeBlocksCount() + 1)
	fs.writeSuperblock(cpu)
	fs.writeGroupDesc(cpu)
}

// allocInodeNum finds and marks the first free bit in the inode bitmap,
// mirroring ialloc()'s bitmap half (the inode-table half lives in
// inode.go's Ialloc, which wraps this).
func (fs *Fs_t) allocInodeNum(cpu *common.Cpu_t) (uint32, bool) {
	bmb := fs.bc.Read(cpu, 0, int(fs.gd.InodeBitmap))
	defer fs.bc.Release(cpu, bmb)

	ninodes := fs.sb.InodesCount()
	for ii := uint32(2); ii < ninodes; ii++ { // inode 0 unused, 1 reserved for bad blocks
		byteIdx := ii / 8
		bitIdx := ii % 8
		if bmb.Data[byteIdx]&(1<<bitIdx) == 0 {
			bmb.Data[byteIdx] |= 1 << bitIdx
			bmb.Dirty = true
			fs.bc.Write(bmb)
			fs.gd.FreeInodesCount--
			fs.sb.SetFreeInodesCount(fs.sb.FreeInodesCount() - 1)
			fs.writeSuperblock(cpu)
			fs.writeGroupDesc(cpu)
			return ii, true
		}
	}
	return 0, false
}

func (fs *Fs_t) freeInodeNum(cpu *common.Cpu_t, ii uint32) {
	bmb := fs.bc.Read(cpu, 0, int(fs.gd.InodeBitmap))
	defer fs.bc.Release(cpu, bmb)

	byteIdx := ii / 8
	bitIdx := ii % 8
	bmb.Data[byteIdx] &^= 1 << bitIdx
	bmb.Dirty = true
	fs.bc.Write(bmb)

	fs.gd.FreeInodesCount++
	fs.sb.SetFreeInodesCount(fs.sb.FreeInodesCount() + 1)
	fs.writeSuperblock(cpu)
	fs.writeGroupDesc(cpu)
}
