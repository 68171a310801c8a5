package defs

// Syscall numbers and wire-level flags, as invoked via the SYSCALL trap
// vector (see proc.Trap). The numbering follows spec.md §6's table so a
// disassembled user binary and this table agree.
const (
	SYS_FORK   = 1
	SYS_EXIT   = 2
	SYS_WAIT   = 3
	SYS_PIPE   = 4
	SYS_READ   = 5
	SYS_KILL   = 6
	SYS_EXEC   = 7
	SYS_FSTAT  = 8
	SYS_CHDIR  = 9
	SYS_DUP    = 10
	SYS_GETPID = 11
	SYS_SBRK   = 12
	SYS_SLEEP  = 13
	SYS_UPTIME = 14
	SYS_OPEN   = 15
	SYS_WRITE  = 16
	SYS_MKNOD  = 17
	SYS_UNLINK = 18
	SYS_LINK   = 19
	SYS_MKDIR  = 20
	SYS_CLOSE  = 21
)

// open() mode flags.
const (
	O_RDONLY = 0x000
	O_WRONLY = 0x001
	O_RDWR   = 0x002
	O_CREATE = 0x200
)

// mknod() device classes / inode type tags, shared with the on-disk ext2
// mode field (spec.md §6: "Inode modes use the standard S_IFREG/S_IFDIR
// /S_IFCHR values").
const (
	T_DIR  = 1
	T_FILE = 2
	T_DEV  = 3
)

const (
	S_IFREG = 0x8000
	S_IFDIR = 0x4000
	S_IFCHR = 0x2000
)

// Device major numbers. The console must appear in /etc/devtab as
// "9 char 1 1" per spec.md §6.
const (
	CONSOLE = 1
)
