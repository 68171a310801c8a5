package proc

import (
	"github.com/mit-pdos-xv6/kernelcore/common"
)

// Tick is the timer-IRQ bookkeeping xv6's trap() does as
// "if(cpu->id == 0){ acquire(&tickslock); ticks++; wakeup(&ticks);
// release(&tickslock); }" — the file that defines that dispatch didn't
// survive this pack's distillation, but sys_sleep/sys_uptime's own use
// of ticks/tickslock in original_source/kernel/sysproc.c pins down the
// counter and lock this advances. Every CPU fields its own local APIC's
// timer IRQ, but only CPU 0 advances the shared counter so ticks counts
// real time once rather than once per CPU. cpu is whichever Cpu_t the
// timer interrupt landed on; an ordinary process's Cpu_t is never ID 0
// (see allocproc), so in practice the dedicated boot Cpu_t
// kernel/main.go's main() hands to its simulated Lapic_t is the only
// caller this fires for.
func Tick(k *Kernel_t, cpu *common.Cpu_t) {
	if cpu.ID != 0 {
		return
	}
	k.ticksLock.Acquire(cpu)
	k.ticks++
	k.ticksLock.Release(cpu)
	common.Wakeup(&k.ticks)
}

// Uptime reads the tick count under ticksLock — sys_uptime()'s own bare
// read of the global ticks variable in sysproc.c, here taken under lock
// since Tick can be advancing it concurrently.
func (k *Kernel_t) Uptime(cpu *common.Cpu_t) int {
	k.ticksLock.Acquire(cpu)
	n := k.ticks
	k.ticksLock.Release(cpu)
	return n
}

// sysSleep blocks p until n ticks have elapsed or it is killed,
// rechecking Killed on every wake exactly as sys_sleep() does in
// sysproc.c: a kill must unblock a sleeping process within one tick,
// never leave it waiting for the full duration.
func sysSleep(k *Kernel_t, p *Proc_t) int32 {
	n, ok := argInt(p, 0)
	if !ok {
		return -1
	}
	k.ticksLock.Acquire(p.Cpu)
	start := k.ticks
	for k.ticks-start < int(n) {
		if p.Killed {
			k.ticksLock.Release(p.Cpu)
			return -1
		}
		Sleep(p, &k.ticks, k.ticksLock)
	}
	k.ticksLock.Release(p.Cpu)
	return 0
}

func sysUptime(k *Kernel_t, p *Proc_t) int32 {
	return int32(k.Uptime(p.Cpu))
}
