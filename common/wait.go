package common

import "sync"

// WaitChan is the "sleep address" xv6 callers pass to sleep()/wakeup(): any
// value whose identity (not contents) picks out a condition. Buffers,
// inodes, pipes, and the process table all use the address of one of their
// own fields as the channel, exactly as in the original.
type WaitChan = interface{}

type waitQueue struct {
	mu      sync.Mutex
	waiters map[WaitChan][]chan struct{}
}

var globalWQ = &waitQueue{waiters: make(map[WaitChan][]chan struct{})}

// Sleep atomically releases lk and blocks the caller until a Wakeup names
// the same chan, then reacquires lk before returning — the sleep(chan_t*,
// spinlock_t*) contract from original_source/kernel/proc.c's sleep(),
// generalized here to work without a process table so fs/ and file/ can
// use it directly for buffer, sleeplock, and pipe waits, and proc/
// layers process-state bookkeeping on top of the same primitive for
// wait() and sys_sleep.
//
// Precondition: lk is held by c. Postcondition: lk is held by c again.
func Sleep(ch WaitChan, lk *Spinlock_t, c *Cpu_t) {
	done := make(chan struct{})
	globalWQ.mu.Lock()
	globalWQ.waiters[ch] = append(globalWQ.waiters[ch], done)
	globalWQ.mu.Unlock()

	lk.Release(c)
	<-done
	lk.Acquire(c)
}

// Wakeup unblocks every sleeper currently waiting on ch. Like the
// original's wakeup(), it is safe to call when nobody is sleeping.
func Wakeup(ch WaitChan) {
	globalWQ.mu.Lock()
	waiters := globalWQ.waiters[ch]
	delete(globalWQ.waiters, ch)
	globalWQ.mu.Unlock()

	for _, done := range waiters {
		close(done)
	}
}
