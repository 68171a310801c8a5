// Package common holds the primitives every other kernel-core package
// depends on: the per-CPU record, the spinlock/sleeplock pair, and the
// generic sleep/wakeup wait-queue. It intentionally knows nothing about
// processes, files, or inodes so that fs, file, and proc can all build on
// it without import cycles — grounded in the teacher's own layering,
// where common/ sits below fs/ and proc/ (common/wait.go, common/fd.go).
package common

import "fmt"

// Cpu_t is the per-CPU record spec.md §3 describes: a nested-cli counter
// and the captured "interrupts were on before the first cli" bit. In this
// simulated kernel, one Cpu_t is assigned to each process for as long as
// that process is the one executing kernel code — since each process runs
// on its own goroutine and no two goroutines ever execute the same
// process concurrently, a Cpu_t's lifetime tracking "the current CPU"
// coincides 1:1 with "the process presently running." The lapic id and
// scheduler-saved context the real per-CPU record would also carry have
// no counterpart here; see DESIGN.md for why a literal shared-across-many-
// processes CPU pool was not needed.
type Cpu_t struct {
	ID     int
	Ncli   int
	IntEna bool
}

func (c *Cpu_t) PushCli() {
	if c.Ncli == 0 {
		c.IntEna = true
	}
	c.Ncli++
}

func (c *Cpu_t) PopCli() {
	if c.Ncli <= 0 {
		panic("popcli: not held")
	}
	c.Ncli--
}

func (c *Cpu_t) String() string {
	return fmt.Sprintf("cpu%d(ncli=%d)", c.ID, c.Ncli)
}
