package fs

import (
	"github.com/mit-pdos-xv6/kernelcore/common"
	"github.com/mit-pdos-xv6/kernelcore/limits"
)

// Readi copies up to len(dst) bytes starting at off from ip's contents,
// returning the number of bytes actually read (short of len(dst) only
// at end-of-file) — readi() in original_source/kernel/ext2.c. Caller
// must hold ip's lock.
func (fs *Fs_t) Readi(cpu *common.Cpu_t, ip *Inode_t, dst []byte, off uint32) int {
	if off > ip.Size {
		return 0
	}
	n := uint32(len(dst))
	if off+n > ip.Size {
		n = ip.Size - off
	}
	var total uint32
	for total < n {
		bn, ok := fs.bmap(cpu, ip, off/limits.BSIZE)
		if !ok {
			break
		}
		b := fs.bc.Read(cpu, 0, int(bn))
		boff := off % limits.BSIZE
		m := uint32(limits.BSIZE) - boff
		if m > n-total {
			m = n - total
		}
		copy(dst[total:total+m], b.Data[boff:boff+m])
		fs.bc.Release(cpu, b)
		total += m
		off += m
	}
	return int(total)
}

// Writei copies src into ip's contents starting at off, growing the
// file (and allocating blocks via bmap) as needed, and updates Size —
// writei() in the original. Caller must hold ip's lock and the catch
// against MAXFILEBLOCK overflow (spec.md §4.5's "write past the last
// indirect block fails with ENOSPC, not silent truncation").
func (fs *Fs_t) Writei(cpu *common.Cpu_t, ip *Inode_t, src []byte, off uint32) (int, bool) {
	if uint64(off)+uint64(len(src)) > uint64(limits.MAXFILEBLOCK)*limits.BSIZE {
		return 0, false
	}
	n := uint32(len(src))
	var total uint32
	for total < n {
		bn, ok := fs.bmap(cpu, ip, off/limits.BSIZE)
		if !ok {
			break
		}
		b := fs.bc.Read(cpu, 0, int(bn))
		boff := off % limits.BSIZE
		m := uint32(limits.BSIZE) - boff
		if m > n-total {
			m = n - total
		}
		copy(b.Data[boff:boff+m], src[total:total+m])
		b.Dirty = true
		fs.bc.Write(b)
		fs.bc.Release(cpu, b)
		total += m
		off += m
	}
	if total > 0 && off > ip.Size {
		ip.Size = off
	}
	if total > 0 {
		fs.Iupdate(cpu, ip)
	}
	return int(total), total == n
}
