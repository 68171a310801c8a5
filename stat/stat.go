// Package stat defines the on-the-wire layout returned by the fstat
// syscall, grounded in the teacher's stat.Stat_t field-accessor pattern
// (stat/stat.go) but carrying the ext2-flavored fields spec.md §6 names.
package stat

type Stat_t struct {
	Dev     uint32
	Ino     uint32
	Mode    uint32
	Nlink   uint16
	Size    uint64
	Rdev    uint32
	Blocks  uint32
	Mtime   uint32
}

const (
	IFREG uint32 = 0x8000
	IFDIR uint32 = 0x4000
	IFCHR uint32 = 0x2000
)
