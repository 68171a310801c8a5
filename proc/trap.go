package proc

import (
	"github.com/mit-pdos-xv6/kernelcore/defs"
)

// Trap is the single entry point every interrupt or exception vector
// goes through, the role xv6's trap() fills — the file defining that
// switch didn't survive this pack's distillation, so the T_SYSCALL case
// is grounded on syscall()'s dispatch in original_source/kernel/syscall.c
// and the trap-frame fields it reads/sets are grounded on the frame
// original_source/kernel/proc.c's allocproc/fork build and mutate. A
// real kernel reaches this from an assembly stub that has already
// pushed a
// TrapFrame_t; here the caller (a test driving a process directly)
// builds and hands in the frame.
// Returning true means p survived the trap and should keep running;
// false means it was torn down (a fatal fault, a kill, or an exit
// system call, with Exit having run in every case) and its goroutine
// should return without resuming user code.
func Trap(k *Kernel_t, p *Proc_t) bool {
	switch p.Tf.Trapno {
	case defs.T_SYSCALL:
		if p.Killed {
			Exit(k, p, -1)
			return false
		}
		p.Tf.Eax = uintptr(uint32(Syscall(k, p)))
		if p.State == ZOMBIE {
			return false
		}
		if p.Killed {
			Exit(k, p, -1)
			return false
		}
		return true

	case defs.T_PGFAULT, defs.T_GPFAULT, defs.T_DIVIDE:
		p.Killed = true
		Exit(k, p, -1)
		return false

	case defs.T_IRQ_TIMER:
		Tick(k, p.Cpu)
		if p.Killed {
			Exit(k, p, -1)
			return false
		}
		return true

	default:
		p.Killed = true
		Exit(k, p, -1)
		return false
	}
}
