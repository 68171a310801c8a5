package file

import (
	"github.com/mit-pdos-xv6/kernelcore/common"
	"github.com/mit-pdos-xv6/kernelcore/defs"
	"github.com/mit-pdos-xv6/kernelcore/limits"
)

// Pipe_t is the bounded single-producer/single-consumer ring buffer
// spec.md §4.7 describes, grounded on the pipealloc/piperead/pipewrite
// calls in original_source/kernel/file.c's fileread/filewrite (the pipe
// implementation itself didn't survive distillation as its own file):
// one spinlock guards the whole struct,
// and readers/writers block via common.Sleep on &nread and &nwrite
// respectively rather than spinning, waking each other with common.Wakeup whenever
// they make room or add data.
type Pipe_t struct {
	lock       *common.Spinlock_t
	data       [limits.PIPESIZE]byte
	nread      uint64
	nwrite     uint64
	readOpen   bool
	writeOpen  bool
}

func NewPipe() *Pipe_t {
	return &Pipe_t{
		lock:      common.NewSpinlock("pipe"),
		readOpen:  true,
		writeOpen: true,
	}
}

// Write blocks while the ring buffer is full and the read end is still
// open, copying as much of src as fits and waking any blocked reader
// after each chunk — pipewrite() in the original. Returns EPIPE if the
// read end has already been closed.
func (p *Pipe_t) Write(cpu *common.Cpu_t, src []byte) (int, defs.Err_t) {
	p.lock.Acquire(cpu)
	defer p.lock.Release(cpu)

	var i int
	for i < len(src) {
		if !p.readOpen {
			return i, defs.EPIPE
		}
		if p.nwrite-p.nread == limits.PIPESIZE {
			common.Wakeup(&p.nread)
			common.Sleep(&p.nwrite, p.lock, cpu)
			continue
		}
		p.data[p.nwrite%limits.PIPESIZE] = src[i]
		p.nwrite++
		i++
	}
	common.Wakeup(&p.nread)
	return i, 0
}

// Read blocks while the ring buffer is empty and the write end is still
// open, returning 0 (EOF) once the writer has closed with nothing left
// buffered — piperead() in the original.
func (p *Pipe_t) Read(cpu *common.Cpu_t, dst []byte) (int, defs.Err_t) {
	p.lock.Acquire(cpu)
	defer p.lock.Release(cpu)

	for p.nread == p.nwrite && p.writeOpen {
		common.Sleep(&p.nread, p.lock, cpu)
	}
	var i int
	for i < len(dst) && p.nread < p.nwrite {
		dst[i] = p.data[p.nread%limits.PIPESIZE]
		p.nread++
		i++
	}
	common.Wakeup(&p.nwrite)
	return i, 0
}

// CloseEnd marks either the write end (writable=true) or read end
// closed and wakes whoever is blocked on the other end so it can
// observe EOF/EPIPE instead of hanging forever.
func (p *Pipe_t) CloseEnd(cpu *common.Cpu_t, writable bool) {
	p.lock.Acquire(cpu)
	if writable {
		p.writeOpen = false
		common.Wakeup(&p.nread)
	} else {
		p.readOpen = false
		common.Wakeup(&p.nwrite)
	}
	p.lock.Release(cpu)
}
