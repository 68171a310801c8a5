package fs

import (
	"encoding/binary"
	"sync"

	"github.com/mit-pdos-xv6/kernelcore/common"
	"github.com/mit-pdos-xv6/kernelcore/defs"
	"github.com/mit-pdos-xv6/kernelcore/limits"
	"github.com/mit-pdos-xv6/kernelcore/stat"
)

const inodeDiskSize = 128
const numAddrs = limits.NDIRECT + 3 // 12 direct, then single/double/triple indirect

// Inode_t is the in-memory copy of one on-disk inode, grounded on
// iinit()/ilock()/iupdate() in original_source/kernel/ext2.c: a
// sleeplock guards the fields below once Ilock has pulled them off
// disk, and a separate cache-wide mutex (icache_t.mu) guards refcnt
// before that point, mirroring the original's split between "has a
// reference" and "contents are loaded."
type Inode_t struct {
	Inum  uint32
	Type  int
	Nlink uint16
	Size  uint32
	Addrs [numAddrs]uint32

	fs    *Fs_t
	lock  *common.Sleeplock_t
	valid bool

	refcnt int
}

type icache_t struct {
	mu    sync.Mutex
	byNum map[uint32]*Inode_t
}

func newIcache() *icache_t {
	return &icache_t{byNum: make(map[uint32]*Inode_t)}
}

// Iget returns an in-memory handle for inum, bumping its refcount if
// already cached or allocating a fresh, as-yet-unloaded entry —
// iget() in the original, split from ilock() so callers can hold a
// reference across operations that don't need the contents loaded.
func (fs *Fs_t) Iget(inum uint32) *Inode_t {
	fs.icache.mu.Lock()
	defer fs.icache.mu.Unlock()

	if ip, ok := fs.icache.byNum[inum]; ok {
		ip.refcnt++
		return ip
	}
	ip := &Inode_t{
		Inum: inum,
		fs:   fs,
		lock: common.NewSleeplock("inode"),
		refcnt: 1,
	}
	fs.icache.byNum[inum] = ip
	return ip
}

func inodeTableBlockAndOff(fs *Fs_t, inum uint32) (int, int) {
	perBlock := limits.BSIZE / inodeDiskSize
	blk := int(fs.gd.InodeTable) + int((inum-1))/perBlock
	off := int((inum-1)%uint32(perBlock)) * inodeDiskSize
	return blk, off
}

// Ilock locks ip and loads its contents from disk on first use —
// ilock() in the original.
func (fs *Fs_t) Ilock(cpu *common.Cpu_t, ip *Inode_t, pid int) {
	ip.lock.Acquire(cpu, pid)
	if !ip.valid {
		blk, off := inodeTableBlockAndOff(fs, ip.Inum)
		b := fs.bc.Read(cpu, pid, blk)
		ip.unmarshal(b.Data[off : off+inodeDiskSize])
		fs.bc.Release(cpu, b)
		ip.valid = true
		if ip.Type == 0 {
			panic("ilock: inode with no type")
		}
	}
}

func (fs *Fs_t) Iunlock(cpu *common.Cpu_t, ip *Inode_t) {
	ip.lock.Release(cpu)
}

func (ip *Inode_t) unmarshal(b []byte) {
	mode := binary.LittleEndian.Uint16(b[0:])
	ip.Nlink = binary.LittleEndian.Uint16(b[2:])
	ip.Size = binary.LittleEndian.Uint32(b[4:])
	for i := 0; i < numAddrs; i++ {
		ip.Addrs[i] = binary.LittleEndian.Uint32(b[8+4*i:])
	}
	switch {
	case mode&uint16(stat.IFDIR) != 0:
		ip.Type = defs.T_DIR
	case mode&uint16(stat.IFCHR) != 0:
		ip.Type = defs.T_DEV
	default:
		ip.Type = defs.T_FILE
	}
}

func (ip *Inode_t) marshal(b []byte) {
	var mode uint16
	switch ip.Type {
	case defs.T_DIR:
		mode = uint16(stat.IFDIR)
	case defs.T_DEV:
		mode = uint16(stat.IFCHR)
	default:
		mode = uint16(stat.IFREG)
	}
	binary.LittleEndian.PutUint16(b[0:], mode)
	binary.LittleEndian.PutUint16(b[2:], ip.Nlink)
	binary.LittleEndian.PutUint32(b[4:], ip.Size)
	for i := 0; i < numAddrs; i++ {
		binary.LittleEndian.PutUint32(b[8+4*i:], ip.Addrs[i])
	}
}

// Iupdate writes ip's in-memory fields back to its inode-table slot —
// iupdate() in the original, called after every field mutation since
// there is no delayed-writeback log in this simplified filesystem.
func (fs *Fs_t) Iupdate(cpu *common.Cpu_t, ip *Inode_t) {
	blk, off := inodeTableBlockAndOff(fs, ip.Inum)
	b := fs.bc.Read(cpu, 0, blk)
	ip.marshal(b.Data[off : off+inodeDiskSize])
	b.Dirty = true
	fs.bc.Write(b)
	fs.bc.Release(cpu, b)
}

// Ialloc finds a free inode number, marks it used in the inode bitmap,
// and returns it locked-for-first-write with the given type set and
// zeroed fields — ialloc() in the original.
func (fs *Fs_t) Ialloc(cpu *common.Cpu_t, typ int) *Inode_t {
	inum, ok := fs.allocInodeNum(cpu)
	if !ok {
		return nil
	}
	ip := fs.Iget(inum)
	fs.Ilock(cpu, ip, 0)
	ip.Type = typ
	ip.Nlink = 0
	ip.Size = 0
	ip.Addrs = [numAddrs]uint32{}
	ip.valid = true
	fs.Iupdate(cpu, ip)
	return ip
}

// Ifree releases an inode's number back to the bitmap. Callers must
// have already truncated its contents and hold no more references.
func (fs *Fs_t) Ifree(cpu *common.Cpu_t, ip *Inode_t) {
	fs.freeInodeNum(cpu, ip.Inum)
}

// Iput drops a reference; once the refcount and link count both reach
// zero the inode's blocks are truncated and its number freed —
// iput()/iunlockput() in the original.
func (fs *Fs_t) Iput(cpu *common.Cpu_t, ip *Inode_t, pid int) {
	fs.Ilock(cpu, ip, pid)
	if ip.valid && ip.Nlink == 0 {
		fs.icache.mu.Lock()
		r := ip.refcnt
		fs.icache.mu.Unlock()
		if r == 1 {
			fs.Itrunc(cpu, ip)
			ip.Type = 0
			fs.Iupdate(cpu, ip)
			fs.Ifree(cpu, ip)
			ip.valid = false
		}
	}
	fs.Iunlock(cpu, ip)

	fs.icache.mu.Lock()
	ip.refcnt--
	if ip.refcnt == 0 {
		delete(fs.icache.byNum, ip.Inum)
	}
	fs.icache.mu.Unlock()
}

func (fs *Fs_t) Iunlockput(cpu *common.Cpu_t, ip *Inode_t) {
	fs.Iunlock(cpu, ip)
	fs.Iput(cpu, ip, 0)
}

// Stati fills in a stat.Stat_t from a locked inode — stati() in the
// original.
func (fs *Fs_t) Stati(ip *Inode_t, st *stat.Stat_t) {
	st.Dev = 0
	st.Ino = ip.Inum
	st.Nlink = ip.Nlink
	st.Size = uint64(ip.Size)
	switch ip.Type {
	case defs.T_DIR:
		st.Mode = stat.IFDIR
	case defs.T_DEV:
		st.Mode = stat.IFCHR
	default:
		st.Mode = stat.IFREG
	}
}
