// Package file implements the open-file table spec.md §4.6 describes:
// a tagged union over a pipe end, an inode, or a device, referenced by
// per-process file descriptors and reclaimed only when every referencing
// fd (across every process that inherited it) has been closed. Grounded
// on the teacher's Fd_t/Fdops_i split in common/fd.go, reworked from
// biscuit's interface-dispatch-per-fd model into a single tagged struct
// per spec.md's simpler union (pipe/inode/device, no sockets).
package file

import (
	"sync"

	"github.com/mit-pdos-xv6/kernelcore/common"
	"github.com/mit-pdos-xv6/kernelcore/defs"
	"github.com/mit-pdos-xv6/kernelcore/fs"
	"github.com/mit-pdos-xv6/kernelcore/limits"
	"github.com/mit-pdos-xv6/kernelcore/stat"
)

// maxWriteChunk bounds how many bytes a single FD_INODE Writei call
// inside Write touches, the same "write a few blocks at a time" split
// filewrite() does in original_source/kernel/file.c — there to keep one
// log transaction under MAXOPBLOCKS (inode block, indirect block,
// allocation blocks, plus slop for a non-aligned write); there's no log
// here, but Writei can still dirty an inode block, an indirect block,
// and several allocation blocks in one call, so the same chunking keeps
// any single Write's working set bounded instead of proportional to the
// caller's buffer size.
const maxWriteChunk = ((limits.MAXOPBLOCKS - 1 - 1 - 2) / 2) * limits.BSIZE

type FType int

const (
	FD_NONE FType = iota
	FD_PIPE
	FD_INODE
	FD_DEVICE
)

// Device_t is the per-major-number table entry devtab install at boot,
// grounded on devsw[] in original_source/kernel/file.c: a read and a
// write function, both given the raw byte buffer a syscall handler
// already validated and copied out of user memory.
type Device_t struct {
	Read  func(dst []byte) (int, defs.Err_t)
	Write func(src []byte) (int, defs.Err_t)
}

// File_t is one entry in the system-wide open-file table — struct file
// in the original, generalized to hold exactly one of the three
// payloads named by Type.
type File_t struct {
	Type     FType
	Readable bool
	Writable bool

	Pipe   *Pipe_t
	Ip     *fs.Inode_t
	Off    uint32
	Major  int

	mu     sync.Mutex
	refcnt int
}

// Table_t is the system-wide file table plus the device major-number
// table /etc/devtab populates. NewTable's nfile sets only the initial
// capacity of the list: Alloc appends a new entry every time and never
// fails, so the table has no fixed upper bound and no slot is reused.
type Table_t struct {
	mu      sync.Mutex
	files   []*File_t
	devices map[int]*Device_t
}

func NewTable(nfile int) *Table_t {
	return &Table_t{
		files:   make([]*File_t, 0, nfile),
		devices: make(map[int]*Device_t),
	}
}

func (t *Table_t) InstallDevice(major int, d *Device_t) {
	t.mu.Lock()
	t.devices[major] = d
	t.mu.Unlock()
}

// Alloc reserves a fresh File_t with refcnt 1 — filealloc() in the
// original.
func (t *Table_t) Alloc() *File_t {
	t.mu.Lock()
	defer t.mu.Unlock()
	f := &File_t{refcnt: 1}
	t.files = append(t.files, f)
	return f
}

// Dup bumps a file's refcount — filedup() in the original, called
// whenever an fd is copied into another slot or inherited across fork.
func (f *File_t) Dup() *File_t {
	f.mu.Lock()
	f.refcnt++
	f.mu.Unlock()
	return f
}

// Close drops a reference, tearing down the underlying resource once
// the last one goes away — fileclose() in the original.
func (f *File_t) Close(cpu *common.Cpu_t, fsys *fs.Fs_t, pid int) {
	f.mu.Lock()
	f.refcnt--
	last := f.refcnt == 0
	f.mu.Unlock()
	if !last {
		return
	}
	switch f.Type {
	case FD_PIPE:
		f.Pipe.CloseEnd(cpu, f.Writable)
	case FD_INODE, FD_DEVICE:
		if f.Ip != nil {
			fsys.Iput(cpu, f.Ip, pid)
		}
	}
}

// Read dispatches to the pipe, inode, or device this File_t names,
// advancing Off for inode reads — fileread() in the original.
func (t *Table_t) Read(cpu *common.Cpu_t, fsys *fs.Fs_t, pid int, f *File_t, dst []byte) (int, defs.Err_t) {
	if !f.Readable {
		return 0, defs.EINVAL
	}
	switch f.Type {
	case FD_PIPE:
		return f.Pipe.Read(cpu, dst)
	case FD_DEVICE:
		dev, ok := t.devices[f.Major]
		if !ok {
			return 0, defs.ENODEV
		}
		return dev.Read(dst)
	case FD_INODE:
		fsys.Ilock(cpu, f.Ip, pid)
		n := fsys.Readi(cpu, f.Ip, dst, f.Off)
		fsys.Iunlock(cpu, f.Ip)
		f.Off += uint32(n)
		return n, 0
	}
	return 0, defs.EBADF
}

// Write dispatches a write the same way Read dispatches a read —
// filewrite() in the original.
func (t *Table_t) Write(cpu *common.Cpu_t, fsys *fs.Fs_t, pid int, f *File_t, src []byte) (int, defs.Err_t) {
	if !f.Writable {
		return 0, defs.EINVAL
	}
	switch f.Type {
	case FD_PIPE:
		return f.Pipe.Write(cpu, src)
	case FD_DEVICE:
		dev, ok := t.devices[f.Major]
		if !ok {
			return 0, defs.ENODEV
		}
		return dev.Write(src)
	case FD_INODE:
		i := 0
		for i < len(src) {
			chunk := len(src) - i
			if chunk > maxWriteChunk {
				chunk = maxWriteChunk
			}
			fsys.Ilock(cpu, f.Ip, pid)
			n, ok := fsys.Writei(cpu, f.Ip, src[i:i+chunk], f.Off)
			fsys.Iunlock(cpu, f.Ip)
			if !ok {
				return i, defs.ENOSPC
			}
			f.Off += uint32(n)
			i += n
		}
		return i, 0
	}
	return 0, defs.EBADF
}

// Stat fills st from the underlying inode — only FD_INODE files can be
// fstat'd, matching spec.md §6.
func (t *Table_t) Stat(cpu *common.Cpu_t, fsys *fs.Fs_t, pid int, f *File_t, st *stat.Stat_t) defs.Err_t {
	if f.Type != FD_INODE {
		return defs.EINVAL
	}
	fsys.Ilock(cpu, f.Ip, pid)
	fsys.Stati(f.Ip, st)
	fsys.Iunlock(cpu, f.Ip)
	return 0
}
