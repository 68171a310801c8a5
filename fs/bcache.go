// Package fs implements the buffer cache and the ext2-flavored on-disk
// filesystem spec.md §4.4 and §4.5 describe. The buffer cache is
// grounded structurally on the teacher's fs/bdev.go (Bdev_block_t
// lifecycle, block-number-keyed lookup, refcounting) but its eviction
// policy is reworked from the teacher's unbounded hashmap (fs/cache.go)
// into the fixed NBUF-slot LRU list spec.md §4.4 calls for.
package fs

import (
	"container/list"
	"sync"

	"github.com/mit-pdos-xv6/kernelcore/common"
	"github.com/mit-pdos-xv6/kernelcore/limits"
)

// Buf_t is one cached disk block: spec.md §4.4's sleeplock-guarded
// buffer, grounded on Bdev_block_t in common/disk.go.
type Buf_t struct {
	Blockno int
	Valid   bool
	Dirty   bool
	Data    [limits.BSIZE]byte

	lock   *common.Sleeplock_t
	refcnt int
}

func (b *Buf_t) Lock(c *common.Cpu_t, pid int)   { b.lock.Acquire(c, pid) }
func (b *Buf_t) Unlock(c *common.Cpu_t)          { b.lock.Release(c) }

// BCache_t is the fixed-size LRU buffer cache sitting in front of a
// Disk_i. elems.Front() is most-recently-used; Back() is the next
// eviction candidate. The list/map bookkeeping below is an
// implementation detail invisible to the rest of the kernel (unlike a
// buffer's own Sleeplock_t, which is part of the locking discipline
// spec.md §4.1 names), so it's guarded by a plain sync.Mutex rather
// than a common.Spinlock_t — there is no "current CPU" for a purely
// internal cache-bookkeeping critical section to belong to.
type BCache_t struct {
	mu    sync.Mutex
	disk  common.Disk_i
	elems *list.List // of *cacheEntry
	byBlk map[int]*list.Element
}

type cacheEntry struct {
	buf *Buf_t
}

func NewBCache(disk common.Disk_i) *BCache_t {
	return &BCache_t{
		disk:  disk,
		elems: list.New(),
		byBlk: make(map[int]*list.Element),
	}
}

// Get returns the cached buffer for blockno, evicting the least-recently
// used buffer with refcnt 0 if the cache is at capacity and the block
// isn't already present. The returned buffer is NOT locked; callers call
// Read or Buf_t.Lock explicitly, mirroring bget()'s separation from
// bread() in the original buffer cache.
func (bc *BCache_t) Get(blockno int) *Buf_t {
	bc.mu.Lock()
	defer bc.mu.Unlock()

	if el, ok := bc.byBlk[blockno]; ok {
		bc.elems.MoveToFront(el)
		ce := el.Value.(*cacheEntry)
		ce.buf.refcnt++
		return ce.buf
	}

	if bc.elems.Len() >= limits.NBUF {
		evicted := false
		for el := bc.elems.Back(); el != nil; el = el.Prev() {
			ce := el.Value.(*cacheEntry)
			if ce.buf.refcnt == 0 {
				bc.elems.Remove(el)
				delete(bc.byBlk, ce.buf.Blockno)
				evicted = true
				break
			}
		}
		if !evicted {
			panic("bget: no buffers")
		}
	}

	buf := &Buf_t{
		Blockno: blockno,
		lock:    common.NewSleeplock("buf"),
		refcnt:  1,
	}
	el := bc.elems.PushFront(&cacheEntry{buf: buf})
	bc.byBlk[blockno] = el
	return buf
}

// Read returns a locked, valid buffer for blockno, pulling it from disk
// on first use — bread() in the original.
func (bc *BCache_t) Read(cpu *common.Cpu_t, pid int, blockno int) *Buf_t {
	b := bc.Get(blockno)
	b.Lock(cpu, pid)
	if !b.Valid {
		req := common.NewBlockReq(blockno, common.BDEV_READ)
		bc.disk.Start(req)
		<-req.AckCh
		b.Data = [limits.BSIZE]byte{}
		copy(b.Data[:], req.Data)
		b.Valid = true
	}
	return b
}

// Write flushes a dirty buffer to disk — bwrite() in the original. The
// caller must hold b's lock.
func (bc *BCache_t) Write(b *Buf_t) {
	req := common.NewBlockReq(b.Blockno, common.BDEV_WRITE)
	req.Data = append([]byte(nil), b.Data[:]...)
	bc.disk.Start(req)
	<-req.AckCh
	b.Dirty = false
}

// Release drops the caller's reference and unlocks the buffer —
// brelse() in the original.
func (bc *BCache_t) Release(cpu *common.Cpu_t, b *Buf_t) {
	b.Unlock(cpu)
	bc.mu.Lock()
	b.refcnt--
	bc.mu.Unlock()
}
