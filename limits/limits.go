// Package limits groups the kernel's compile-time tunables, mirroring the
// teacher's limits.Syslimit (a single struct of sizing constants shared by
// every subsystem) rather than scattering magic numbers per package.
package limits

const (
	// BSIZE is both the buffer-cache block size and the ext2 block size
	// (spec.md §4.5: "block size equals the buffer block size").
	BSIZE = 1024

	// PGSIZE is the physical/virtual page size (spec.md §4.2).
	PGSIZE = 4096

	// NBUF is the number of slots in the buffer cache (spec.md §4.4).
	NBUF = 64

	// NPROC is the size of the process table (spec.md §9, "process table
	// at capacity" boundary test).
	NPROC = 64

	// NOFILE is the default number of open-file slots per process
	// (spec.md §3: "up to N (default 16)").
	NOFILE = 16

	// NFILE is the size of the system-wide file table.
	NFILE = 100

	// NINODE is the size of the in-memory inode cache.
	NINODE = 50

	// MAXOPBLOCKS bounds how many blocks writei touches before
	// re-checking limits; writes are chunked (spec.md §4.6).
	MAXOPBLOCKS = 10

	// NDIRECT, NINDIRECT etc describe the ext2 address vector (spec.md
	// §4.5 bmap): 12 direct, then single/double/triple indirect.
	NDIRECT      = 12
	NINDIRECT    = BSIZE / 4 // 256 uint32 pointers per indirect block
	NDINDIRECT   = NINDIRECT * NINDIRECT
	NTINDIRECT   = NINDIRECT * NINDIRECT * NINDIRECT
	MAXFILEBLOCK = NDIRECT + NINDIRECT + NDINDIRECT + NTINDIRECT

	// PIPESIZE is the default pipe ring-buffer capacity (spec.md §4.7).
	PIPESIZE = 512

	// EXT2_NAME_LEN is the maximum length of a single path component.
	EXT2_NAME_LEN = 255

	// MAXARG bounds the number of argv entries exec() will push onto the
	// new stack, matching param.h's MAXARG in the original.
	MAXARG = 32
)
