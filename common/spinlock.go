package common

import (
	"runtime"
	"sync"
	"sync/atomic"
)

// Spinlock_t is a busy-wait mutual-exclusion lock that also disables the
// calling Cpu_t's notion of "interruptible" for as long as it is held,
// exactly the acquire()/release()/pushcli()/popcli() discipline of
// original_source/kernel/spinlock.c. Holding one across a call that
// blocks (Sleep, disk wait, a channel receive) is a bug the original
// guards against with a panic; this implementation does not detect it.
type Spinlock_t struct {
	name  string
	state int32 // 0 = free, 1 = held; CAS'd, never touched by the mutex below

	mu    sync.Mutex
	owner *Cpu_t
}

func NewSpinlock(name string) *Spinlock_t {
	return &Spinlock_t{name: name}
}

// Holding reports whether c is the current owner. Grounded on holding()
// in spinlock.c, which callers use to detect and panic on recursive
// acquire.
func (lk *Spinlock_t) Holding(c *Cpu_t) bool {
	lk.mu.Lock()
	h := atomic.LoadInt32(&lk.state) == 1 && lk.owner == c
	lk.mu.Unlock()
	return h
}

func (lk *Spinlock_t) Acquire(c *Cpu_t) {
	c.PushCli()
	if lk.Holding(c) {
		panic("spinlock: recursive acquire: " + lk.name)
	}
	for !atomic.CompareAndSwapInt32(&lk.state, 0, 1) {
		runtime.Gosched()
	}
	lk.mu.Lock()
	lk.owner = c
	lk.mu.Unlock()
}

func (lk *Spinlock_t) Release(c *Cpu_t) {
	if !lk.Holding(c) {
		panic("spinlock: release of unheld lock: " + lk.name)
	}
	lk.mu.Lock()
	lk.owner = nil
	lk.mu.Unlock()
	atomic.StoreInt32(&lk.state, 0)
	c.PopCli()
}

func (lk *Spinlock_t) Name() string { return lk.name }
