package proc

import (
	"github.com/mit-pdos-xv6/kernelcore/common"
	"github.com/mit-pdos-xv6/kernelcore/vm"
)

// Sleep puts p to sleep on ch, transferring protection of whatever
// condition ch represents from lk (already held by the caller) to
// ptableLock for the duration of the block — sleep() in
// original_source/kernel/proc.c, layering State/Chan bookkeeping on
// top of the bare common.Sleep primitive so ^P and Kill can see who is
// blocked on what.
func Sleep(p *Proc_t, ch common.WaitChan, lk *common.Spinlock_t) {
	if lk != ptableLock {
		ptableLock.Acquire(p.Cpu)
		lk.Release(p.Cpu)
	}

	p.Chan = ch
	p.State = SLEEPING
	common.Sleep(ch, ptableLock, p.Cpu)
	p.Chan = nil
	p.State = RUNNING

	if lk != ptableLock {
		ptableLock.Release(p.Cpu)
		lk.Acquire(p.Cpu)
	}
}

// Wakeup marks every process sleeping on ch RUNNABLE and unblocks the
// underlying goroutines — wakeup()/wakeup1() in the original, called
// with by's Cpu_t since the caller is always some other running
// process's goroutine, never a bare interrupt context.
func Wakeup(k *Kernel_t, by *Proc_t, ch common.WaitChan) {
	ptableLock.Acquire(by.Cpu)
	for _, p := range k.Procs() {
		if p.State == SLEEPING && p.Chan == ch {
			p.State = RUNNABLE
		}
	}
	ptableLock.Release(by.Cpu)
	common.Wakeup(ch)
}

// Fork creates child as a copy of parent: a deep copy of its address
// space, duplicated file descriptors, and a shared cwd reference —
// fork() in the original. Unlike the original, Go cannot duplicate an
// arbitrary call stack, so the caller supplies body, the function the
// child's own goroutine runs in place of "returning from fork() a
// second time." Fork fails and returns ok=false, leaving parent
// untouched, if the process table is already full (limits.NPROC live
// entries) or physical memory is exhausted mid-copy, per spec.md §3's
// "fork failure leaves the parent unaffected" invariant.
func Fork(k *Kernel_t, parent *Proc_t, name string, body func(*Proc_t)) (child *Proc_t, ok bool) {
	child = k.allocproc(name, body)
	if child == nil {
		return nil, false
	}

	as, allocated := vm.CopyUVM(parent.Aspace)
	if !allocated {
		k.removeProc(child.Pid)
		return nil, false
	}
	child.Aspace = as
	child.Cwd = k.Fs.Iget(parent.Cwd.Inum)
	child.Parent = parent
	for i, f := range parent.Ofile {
		if f != nil {
			child.Ofile[i] = f.Dup()
		}
	}

	ptableLock.Acquire(parent.Cpu)
	child.State = RUNNABLE
	ptableLock.Release(parent.Cpu)

	go k.run(child)
	return child, true
}

// Exit closes every open file, releases cwd, reparents every surviving
// child to the init process (pid 1), and turns p into a ZOMBIE so a
// Wait by its parent can collect its exit status — exit() in the
// original. p's address space is left for its reaper (Wait) to free,
// exactly as the original defers kfree(pgdir) to the parent's wait().
// The caller's goroutine returns normally after Exit; it must not
// touch p again.
func Exit(k *Kernel_t, p *Proc_t, status int) {
	for i, f := range p.Ofile {
		if f != nil {
			f.Close(p.Cpu, k.Fs, p.Pid)
			p.Ofile[i] = nil
		}
	}
	if p.Cwd != nil {
		k.Fs.Iput(p.Cpu, p.Cwd, p.Pid)
		p.Cwd = nil
	}

	init := k.Proc(1)
	ptableLock.Acquire(p.Cpu)
	orphanedZombie := false
	if init != nil && p != init {
		for _, c := range k.Procs() {
			if c.Parent == p {
				c.Parent = init
				if c.State == ZOMBIE {
					orphanedZombie = true
				}
			}
		}
	}
	p.exitStatus = status
	p.State = ZOMBIE
	ptableLock.Release(p.Cpu)

	if p.Parent != nil {
		Wakeup(k, p, p.Parent)
	}
	if orphanedZombie {
		Wakeup(k, p, init)
	}
}

// Wait blocks p until one of its children becomes a ZOMBIE, then
// reaps it (frees its address space, removes it from the table) and
// returns its pid and exit status — wait() in the original. ok is
// false if p has no children left to wait for, or if p itself was
// killed while waiting.
func Wait(k *Kernel_t, p *Proc_t) (pid int, status int, ok bool) {
	ptableLock.Acquire(p.Cpu)
	for {
		haveKids := false
		for _, c := range k.Procs() {
			if c.Parent != p {
				continue
			}
			haveKids = true
			if c.State == ZOMBIE {
				cpid, cstatus := c.Pid, c.exitStatus
				ptableLock.Release(p.Cpu)
				<-c.done
				if c.Aspace != nil {
					c.Aspace.Free()
				}
				k.removeProc(cpid)
				return cpid, cstatus, true
			}
		}
		if !haveKids || p.Killed {
			ptableLock.Release(p.Cpu)
			return 0, 0, false
		}
		Sleep(p, p, ptableLock)
	}
}

// Kill marks pid killed and, if it is currently sleeping, wakes its
// goroutine out of whatever it was blocked on so it can observe
// p.Killed and unwind — kill() in the original. Only a wait made
// through proc.Sleep (Wait, sysSleep) records a Chan for Kill to wake,
// and those loops re-check Killed after waking, since a wake from here
// carries no guarantee the condition they were waiting on is true.
// Pipe and sleeplock waits block through common.Sleep directly and are
// not woken by Kill.
func Kill(k *Kernel_t, by *Proc_t, pid int) bool {
	target := k.Proc(pid)
	if target == nil {
		return false
	}

	ptableLock.Acquire(by.Cpu)
	target.Killed = true
	var ch common.WaitChan
	if target.State == SLEEPING {
		ch = target.Chan
		target.State = RUNNABLE
	}
	ptableLock.Release(by.Cpu)

	if ch != nil {
		common.Wakeup(ch)
	}
	return true
}
