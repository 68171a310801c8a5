// Package proc implements the process table, scheduler, and syscall
// dispatch spec.md §3, §4.8, §4.9, and §4.10 describe, grounded on the
// lifecycle in original_source/kernel/proc.c (allocproc/fork/exit/wait)
// and on the teacher's technique of running each schedulable thread of
// control on its own goroutine (common/proc.go's Sched_add -> go
// p.run(...)) rather than hand-rolling a context switch in assembly,
// which Go cannot express portably. See DESIGN.md for the resulting
// simplification: one Cpu_t per process for its whole life rather than
// a small fixed pool shared across many processes, since no two
// goroutines ever execute the same process concurrently.
package proc

import (
	"sync"

	"github.com/mit-pdos-xv6/kernelcore/common"
	"github.com/mit-pdos-xv6/kernelcore/defs"
	"github.com/mit-pdos-xv6/kernelcore/file"
	"github.com/mit-pdos-xv6/kernelcore/fs"
	"github.com/mit-pdos-xv6/kernelcore/limits"
	"github.com/mit-pdos-xv6/kernelcore/vm"
)

type ProcState int

const (
	UNUSED ProcState = iota
	EMBRYO
	SLEEPING
	RUNNABLE
	RUNNING
	ZOMBIE
)

func (s ProcState) String() string {
	switch s {
	case UNUSED:
		return "UNUSED"
	case EMBRYO:
		return "EMBRYO"
	case SLEEPING:
		return "SLEEPING"
	case RUNNABLE:
		return "RUNNABLE"
	case RUNNING:
		return "RUNNING"
	case ZOMBIE:
		return "ZOMBIE"
	}
	return "?"
}

// Proc_t is one process table entry, grounded on struct proc in
// original_source/kernel/proc.h.
type Proc_t struct {
	Pid    int
	State  ProcState
	Cpu    *common.Cpu_t
	Parent *Proc_t
	Killed bool
	Name   string

	Cwd    *fs.Inode_t
	Ofile  [limits.NOFILE]*file.File_t
	Aspace *vm.Aspace_t
	Tf     defs.TrapFrame_t

	Chan common.WaitChan

	exitStatus int
	body       func(*Proc_t)
	done       chan struct{}
}

// Kernel_t is the whole simulated machine: the process table, the
// mounted filesystem, and the system-wide file table — the aggregate a
// real kernel's global variables would otherwise scatter across files.
type Kernel_t struct {
	Fs    *fs.Fs_t
	Files *file.Table_t

	mu      sync.Mutex
	procs   map[int]*Proc_t
	nextPid int

	ticksLock *common.Spinlock_t
	ticks     int
}

func NewKernel(fsys *fs.Fs_t) *Kernel_t {
	return &Kernel_t{
		Fs:        fsys,
		Files:     file.NewTable(limits.NFILE),
		procs:     make(map[int]*Proc_t),
		nextPid:   1,
		ticksLock: common.NewSpinlock("tickslock"),
	}
}

var ptableLock = common.NewSpinlock("ptable")

// allocproc creates a new EMBRYO process with its own Cpu_t and pid,
// grounded on allocproc() in the original. Returns nil once the table
// already holds limits.NPROC live entries, matching allocproc()'s own
// "scanned every slot, found none UNUSED" failure — the caller (Fork)
// turns this into fork()'s documented "-1, parent unaffected" result.
func (k *Kernel_t) allocproc(name string, body func(*Proc_t)) *Proc_t {
	k.mu.Lock()
	if len(k.procs) >= limits.NPROC {
		k.mu.Unlock()
		return nil
	}
	pid := k.nextPid
	k.nextPid++
	p := &Proc_t{
		Pid:   pid,
		State: EMBRYO,
		Cpu:   &common.Cpu_t{ID: pid},
		Name:  name,
		body:  body,
		done:  make(chan struct{}),
	}
	k.procs[pid] = p
	k.mu.Unlock()
	return p
}

// Start brings up the first process (the analog of init/userinit),
// running body on its own goroutine once scheduled.
func (k *Kernel_t) Start(name string, body func(*Proc_t)) *Proc_t {
	p := k.allocproc(name, body)
	p.Aspace = vm.SetupKVM()
	root := k.Fs.Namei(p.Cpu, "/", nil)
	p.Cwd = root

	ptableLock.Acquire(p.Cpu)
	p.State = RUNNABLE
	ptableLock.Release(p.Cpu)

	go k.run(p)
	return p
}

// run is the body of a process's dedicated goroutine: it transitions
// straight to RUNNING (there being no separate scheduler loop to hand
// off to in this simulation — see the package doc) and runs body until
// it returns, at which point the process has already called Exit.
func (k *Kernel_t) run(p *Proc_t) {
	ptableLock.Acquire(p.Cpu)
	p.State = RUNNING
	ptableLock.Release(p.Cpu)

	p.body(p)

	close(p.done)
}

func (k *Kernel_t) Proc(pid int) *Proc_t {
	k.mu.Lock()
	defer k.mu.Unlock()
	return k.procs[pid]
}

// Procs returns a snapshot of every live process, for the ^P dump and
// for tests asserting on process-table shape.
func (k *Kernel_t) Procs() []*Proc_t {
	k.mu.Lock()
	defer k.mu.Unlock()
	out := make([]*Proc_t, 0, len(k.procs))
	for _, p := range k.procs {
		out = append(out, p)
	}
	return out
}

func (k *Kernel_t) removeProc(pid int) {
	k.mu.Lock()
	delete(k.procs, pid)
	k.mu.Unlock()
}
