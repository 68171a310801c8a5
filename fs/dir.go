package fs

import (
	"encoding/binary"

	"github.com/mit-pdos-xv6/kernelcore/common"
	"github.com/mit-pdos-xv6/kernelcore/limits"
)

// direntHdrSize is the size of the fixed 8-byte head of an ext2 directory entry: the
// inode number (0 marks a free/deleted slot), the total record length
// (so entries of different name lengths still pack a block tightly),
// and the name length and type tag. Grounded on the on-disk directory
// format original_source/kernel/dir.c and fs/dir.go both parse.
const direntHdrSize = 8

func direntRead(b []byte) (inum uint32, recLen uint16, nameLen uint8, ftype uint8, name string) {
	inum = binary.LittleEndian.Uint32(b[0:])
	recLen = binary.LittleEndian.Uint16(b[4:])
	nameLen = b[6]
	ftype = b[7]
	if int(nameLen) <= len(b)-direntHdrSize {
		name = string(b[direntHdrSize : direntHdrSize+int(nameLen)])
	}
	return
}

func direntWrite(b []byte, inum uint32, recLen uint16, ftype uint8, name string) {
	binary.LittleEndian.PutUint32(b[0:], inum)
	binary.LittleEndian.PutUint16(b[4:], recLen)
	b[6] = uint8(len(name))
	b[7] = ftype
	copy(b[direntHdrSize:], name)
}

func direntNeeded(name string) uint16 {
	n := direntHdrSize + len(name)
	return uint16((n + 3) &^ 3) // 4-byte aligned, like ext2
}

// Dirlookup scans dp's directory contents for name, returning the
// inode it names and the byte offset of its directory entry —
// dirlookup() in the original. dp must be locked and be a T_DIR.
func (fs *Fs_t) Dirlookup(cpu *common.Cpu_t, dp *Inode_t, name string) (*Inode_t, uint32) {
	if dp.Size == 0 {
		return nil, 0
	}
	buf := make([]byte, limits.BSIZE)
	for off := uint32(0); off < dp.Size; off += limits.BSIZE {
		n := fs.Readi(cpu, dp, buf, off)
		for p := 0; p+direntHdrSize <= n; {
			inum, recLen, _, _, nm := direntRead(buf[p:])
			if recLen == 0 {
				break
			}
			if inum != 0 && nm == name {
				return fs.Iget(inum), off + uint32(p)
			}
			p += int(recLen)
		}
	}
	return nil, 0
}

// Dirlink adds a name->inum mapping to dp, reusing a free slot of
// adequate size if one exists or appending a new entry otherwise —
// dirlink() in the original. An appended entry never straddles a block
// boundary; Dirlink pads the previous entry's rec_len out to the block
// end first if it has to. Returns false if name already exists.
func (fs *Fs_t) Dirlink(cpu *common.Cpu_t, dp *Inode_t, name string, inum uint32, ftype uint8) bool {
	if ip, _ := fs.Dirlookup(cpu, dp, name); ip != nil {
		fs.Iput(cpu, ip, 0)
		return false
	}

	need := direntNeeded(name)
	buf := make([]byte, limits.BSIZE)
	var lastOff uint32
	var lastEntry []byte
	haveLast := false
	for off := uint32(0); off < dp.Size; off += limits.BSIZE {
		n := fs.Readi(cpu, dp, buf, off)
		for p := 0; p+direntHdrSize <= n; {
			einum, recLen, _, _, _ := direntRead(buf[p:])
			if recLen == 0 {
				break
			}
			if einum == 0 && recLen >= need {
				direntWrite(buf[p:p+int(recLen)], inum, recLen, ftype, name)
				fs.Writei(cpu, dp, buf[p:p+int(recLen)], off+uint32(p))
				return true
			}
			lastOff = off + uint32(p)
			lastEntry = append([]byte(nil), buf[p:p+int(recLen)]...)
			haveLast = true
			p += int(recLen)
		}
	}

	// No free slot of adequate size: append a new entry. If it would
	// straddle the block boundary, first grow the directory's current
	// last entry's rec_len out to the end of its block — ext2's own
	// invariant that a rec_len always runs to its block's end, which is
	// also what lets Dirlookup/Dirempty safely scan one block at a time
	// — then start the new entry fresh at the next block.
	appendOff := dp.Size
	if blockOff := appendOff % limits.BSIZE; blockOff != 0 && blockOff+uint32(need) > limits.BSIZE {
		if haveLast {
			linum, _, _, lftype, lname := direntRead(lastEntry)
			pad := uint16(limits.BSIZE - (lastOff % limits.BSIZE))
			grown := make([]byte, pad)
			direntWrite(grown, linum, pad, lftype, lname)
			fs.Writei(cpu, dp, grown, lastOff)
		}
		appendOff = appendOff - blockOff + limits.BSIZE
	}

	rec := make([]byte, need)
	direntWrite(rec, inum, need, ftype, name)
	fs.Writei(cpu, dp, rec, appendOff)
	return true
}

// dirlink is the package-internal convenience used by mkfs/Ialloc
// callers that don't care about the file-type byte (directories only).
func (fs *Fs_t) dirlink(cpu *common.Cpu_t, dp *Inode_t, name string, inum uint32) bool {
	return fs.Dirlink(cpu, dp, name, inum, 2)
}

// Dirempty reports whether dp (already locked) contains only "." and
// "..", the precondition rmdir/unlink enforce before removing a
// directory — grounded on the analogous check in sysfile.c's
// sys_unlink.
func (fs *Fs_t) Dirempty(cpu *common.Cpu_t, dp *Inode_t) bool {
	buf := make([]byte, limits.BSIZE)
	for off := uint32(0); off < dp.Size; off += limits.BSIZE {
		n := fs.Readi(cpu, dp, buf, off)
		for p := 0; p+direntHdrSize <= n; {
			inum, recLen, _, _, name := direntRead(buf[p:])
			if recLen == 0 {
				break
			}
			if inum != 0 && name != "." && name != ".." {
				return false
			}
			p += int(recLen)
		}
	}
	return true
}
