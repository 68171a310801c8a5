package fs

import (
	"encoding/binary"

	"github.com/mit-pdos-xv6/kernelcore/common"
	"github.com/mit-pdos-xv6/kernelcore/limits"
)

// bmap returns the disk block number holding the bn'th block of ip's
// contents, allocating it (and any indirect blocks along the way) if it
// doesn't exist yet — bmap() in original_source/kernel/ext2.c,
// generalized from xv6's single level of indirection to ext2's
// direct/single/double/triple chain (limits.NDIRECT, then three
// indirect levels addressed via Addrs[12..14]).
func (fs *Fs_t) bmap(cpu *common.Cpu_t, ip *Inode_t, bn uint32) (uint32, bool) {
	if bn < limits.NDIRECT {
		if ip.Addrs[bn] == 0 {
			nb, ok := fs.Balloc(cpu)
			if !ok {
				return 0, false
			}
			ip.Addrs[bn] = nb
		}
		return ip.Addrs[bn], true
	}
	bn -= limits.NDIRECT

	levels := []struct {
		slot     int
		capacity uint32
	}{
		{limits.NDIRECT, limits.NINDIRECT},
		{limits.NDIRECT + 1, limits.NDINDIRECT},
		{limits.NDIRECT + 2, limits.NTINDIRECT},
	}
	for _, lv := range levels {
		if bn < lv.capacity {
			return fs.bmapIndirect(cpu, ip, lv.slot, bn, depthFor(lv.capacity))
		}
		bn -= lv.capacity
	}
	return 0, false
}

func depthFor(capacity uint32) int {
	switch capacity {
	case limits.NINDIRECT:
		return 1
	case limits.NDINDIRECT:
		return 2
	default:
		return 3
	}
}

// bmapIndirect walks depth levels of indirection rooted at ip.Addrs[slot],
// allocating any block (indirect or leaf) that doesn't exist, and returns
// the leaf data block number for the bn'th entry under this root.
func (fs *Fs_t) bmapIndirect(cpu *common.Cpu_t, ip *Inode_t, slot int, bn uint32, depth int) (uint32, bool) {
	root := &ip.Addrs[slot]
	return fs.walk(cpu, root, bn, depth)
}

func (fs *Fs_t) walk(cpu *common.Cpu_t, blkptr *uint32, bn uint32, depth int) (uint32, bool) {
	if *blkptr == 0 {
		nb, ok := fs.Balloc(cpu)
		if !ok {
			return 0, false
		}
		*blkptr = nb
	}
	if depth == 0 {
		return *blkptr, true
	}
	b := fs.bc.Read(cpu, 0, int(*blkptr))
	perLevel := uint32(1)
	for i := 1; i < depth; i++ {
		perLevel *= limits.NINDIRECT
	}
	idx := bn / perLevel
	rest := bn % perLevel
	off := idx * 4
	entry := binary.LittleEndian.Uint32(b.Data[off:])
	leaf, ok := fs.walk(cpu, &entry, rest, depth-1)
	if ok && binary.LittleEndian.Uint32(b.Data[off:]) != entry {
		binary.LittleEndian.PutUint32(b.Data[off:], entry)
		b.Dirty = true
		fs.bc.Write(b)
	}
	fs.bc.Release(cpu, b)
	return leaf, ok
}

// Itrunc frees every block ip addresses, direct and indirect, and
// resets Size to zero — itrunc() in the original.
func (fs *Fs_t) Itrunc(cpu *common.Cpu_t, ip *Inode_t) {
	for i := uint32(0); i < limits.NDIRECT; i++ {
		if ip.Addrs[i] != 0 {
			fs.Bfree(cpu, ip.Addrs[i])
			ip.Addrs[i] = 0
		}
	}
	for depth, slot := 1, limits.NDIRECT; slot <= limits.NDIRECT+2; depth, slot = depth+1, slot+1 {
		if ip.Addrs[slot] != 0 {
			fs.truncIndirect(cpu, ip.Addrs[slot], depth)
			fs.Bfree(cpu, ip.Addrs[slot])
			ip.Addrs[slot] = 0
		}
	}
	ip.Size = 0
	fs.Iupdate(cpu, ip)
}

func (fs *Fs_t) truncIndirect(cpu *common.Cpu_t, blockno uint32, depth int) {
	if depth == 0 {
		return
	}
	b := fs.bc.Read(cpu, 0, int(blockno))
	entries := make([]uint32, limits.NINDIRECT)
	for i := range entries {
		entries[i] = binary.LittleEndian.Uint32(b.Data[i*4:])
	}
	fs.bc.Release(cpu, b)
	for _, e := range entries {
		if e == 0 {
			continue
		}
		if depth > 1 {
			fs.truncIndirect(cpu, e, depth-1)
		}
		fs.Bfree(cpu, e)
	}
}
