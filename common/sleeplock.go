package common

// Sleeplock_t is a long-term lock that parks the caller instead of
// spinning, grounded on initsleeplock()/acquiresleep()/releasesleep() in
// original_source/kernel/sleeplock.c: an inner spinlock guards a "locked"
// flag and an owning pid, and acquire blocks via sleep() on the
// sleeplock's own address rather than busy-waiting, so it may be held
// across operations that themselves sleep (disk I/O, console reads).
type Sleeplock_t struct {
	Name     string
	lk       *Spinlock_t
	locked   bool
	ownerPid int
}

func NewSleeplock(name string) *Sleeplock_t {
	return &Sleeplock_t{Name: name, lk: NewSpinlock(name + ".guard")}
}

func (s *Sleeplock_t) Acquire(c *Cpu_t, pid int) {
	s.lk.Acquire(c)
	for s.locked {
		Sleep(s, s.lk, c)
	}
	s.locked = true
	s.ownerPid = pid
	s.lk.Release(c)
}

func (s *Sleeplock_t) Release(c *Cpu_t) {
	s.lk.Acquire(c)
	s.locked = false
	s.ownerPid = 0
	Wakeup(s)
	s.lk.Release(c)
}

// Holding reports whether pid currently owns the lock, mirroring
// holdingsleep() — used by assertions that a caller must hold a given
// inode or buffer lock before touching its fields.
func (s *Sleeplock_t) Holding(c *Cpu_t, pid int) bool {
	s.lk.Acquire(c)
	h := s.locked && s.ownerPid == pid
	s.lk.Release(c)
	return h
}
