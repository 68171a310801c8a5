package proc

import (
	"encoding/binary"

	"github.com/mit-pdos-xv6/kernelcore/defs"
	"github.com/mit-pdos-xv6/kernelcore/file"
	"github.com/mit-pdos-xv6/kernelcore/fs"
	"github.com/mit-pdos-xv6/kernelcore/limits"
	"github.com/mit-pdos-xv6/kernelcore/stat"
	"github.com/mit-pdos-xv6/kernelcore/vm"
)

// Argument fetch reads off the user stack at the cdecl offsets a
// SYSCALL trap leaves them at — argint()/argptr()/argstr() in
// original_source/kernel/syscall.c, generalized here to pull through
// vm.CopyinUVM instead of walking a hardware page table directly.

func fetchWord(p *Proc_t, n int) (uint32, bool) {
	var buf [4]byte
	addr := p.Tf.Esp + 4 + uintptr(4*n)
	if !vm.CopyinUVM(p.Aspace, addr, buf[:]) {
		return 0, false
	}
	return binary.LittleEndian.Uint32(buf[:]), true
}

func argInt(p *Proc_t, n int) (int32, bool) {
	w, ok := fetchWord(p, n)
	return int32(w), ok
}

func argPtr(p *Proc_t, n int) (uintptr, bool) {
	w, ok := fetchWord(p, n)
	return uintptr(w), ok
}

func argStr(p *Proc_t, n int) (string, bool) {
	addr, ok := argPtr(p, n)
	if !ok {
		return "", false
	}
	var out []byte
	var b [1]byte
	for len(out) < limits.EXT2_NAME_LEN*2 {
		if !vm.CopyinUVM(p.Aspace, addr+uintptr(len(out)), b[:]) {
			return "", false
		}
		if b[0] == 0 {
			return string(out), true
		}
		out = append(out, b[0])
	}
	return "", false
}

// argBuf fetches a (pointer, length) pair — the convention read(), write(),
// and the like all share — and returns the user address and length;
// each handler allocates its own kernel buffer to fill or drain via
// vm.CopyoutUVM/CopyinUVM.
func argBuf(p *Proc_t, ptrSlot, lenSlot int) (addr uintptr, n int32, ok bool) {
	addr, ok = argPtr(p, ptrSlot)
	if !ok {
		return 0, 0, false
	}
	n, ok = argInt(p, lenSlot)
	if !ok || n < 0 {
		return 0, 0, false
	}
	return addr, n, true
}

func argFd(p *Proc_t, n int) (int32, *file.File_t, bool) {
	fd, ok := argInt(p, n)
	if !ok || fd < 0 || int(fd) >= limits.NOFILE || p.Ofile[fd] == nil {
		return 0, nil, false
	}
	return fd, p.Ofile[fd], true
}

// allocFd installs f in p's lowest free descriptor slot, or returns
// false if the table is full — fdalloc() in the original.
func allocFd(p *Proc_t, f *file.File_t) (int32, bool) {
	for i, slot := range p.Ofile {
		if slot == nil {
			p.Ofile[i] = f
			return int32(i), true
		}
	}
	return 0, false
}

// Syscall dispatches the syscall number latched in p.Tf.Eax to its
// handler and returns the value the trap return path should store
// back into Eax — syscall() in original_source/kernel/syscall.c. There
// is no errno: like the original, every failure is reported as a bare
// -1.
func Syscall(k *Kernel_t, p *Proc_t) int32 {
	switch uint32(p.Tf.Eax) {
	case defs.SYS_FORK:
		return sysFork(k, p)
	case defs.SYS_EXIT:
		return sysExit(k, p)
	case defs.SYS_WAIT:
		return sysWait(k, p)
	case defs.SYS_PIPE:
		return sysPipe(k, p)
	case defs.SYS_READ:
		return sysRead(k, p)
	case defs.SYS_KILL:
		return sysKill(k, p)
	case defs.SYS_EXEC:
		return sysExec(k, p)
	case defs.SYS_FSTAT:
		return sysFstat(k, p)
	case defs.SYS_CHDIR:
		return sysChdir(k, p)
	case defs.SYS_DUP:
		return sysDup(k, p)
	case defs.SYS_GETPID:
		return int32(p.Pid)
	case defs.SYS_SBRK:
		return sysSbrk(k, p)
	case defs.SYS_SLEEP:
		return sysSleep(k, p)
	case defs.SYS_UPTIME:
		return sysUptime(k, p)
	case defs.SYS_OPEN:
		return sysOpen(k, p)
	case defs.SYS_WRITE:
		return sysWrite(k, p)
	case defs.SYS_MKNOD:
		return sysMknod(k, p)
	case defs.SYS_UNLINK:
		return sysUnlink(k, p)
	case defs.SYS_LINK:
		return sysLink(k, p)
	case defs.SYS_MKDIR:
		return sysMkdir(k, p)
	case defs.SYS_CLOSE:
		return sysClose(k, p)
	}
	p.Killed = true
	return -1
}

func sysFork(k *Kernel_t, p *Proc_t) int32 {
	child, ok := Fork(k, p, p.Name, p.body)
	if !ok {
		return -1
	}
	child.Tf = p.Tf
	child.Tf.Eax = 0
	return int32(child.Pid)
}

func sysExit(k *Kernel_t, p *Proc_t) int32 {
	status, _ := argInt(p, 0)
	Exit(k, p, int(status))
	return 0
}

func sysWait(k *Kernel_t, p *Proc_t) int32 {
	pid, _, ok := Wait(k, p)
	if !ok {
		return -1
	}
	return int32(pid)
}

func sysKill(k *Kernel_t, p *Proc_t) int32 {
	pid, ok := argInt(p, 0)
	if !ok || !Kill(k, p, int(pid)) {
		return -1
	}
	return 0
}

func sysPipe(k *Kernel_t, p *Proc_t) int32 {
	addr, ok := argPtr(p, 0)
	if !ok {
		return -1
	}
	rf, wf := k.Files.Alloc(), k.Files.Alloc()
	pp := file.NewPipe()
	rf.Type, rf.Pipe, rf.Readable = file.FD_PIPE, pp, true
	wf.Type, wf.Pipe, wf.Writable = file.FD_PIPE, pp, true

	rfd, ok1 := allocFd(p, rf)
	wfd, ok2 := allocFd(p, wf)
	if !ok1 || !ok2 {
		if ok1 {
			p.Ofile[rfd] = nil
		}
		return -1
	}
	var buf [8]byte
	binary.LittleEndian.PutUint32(buf[0:], uint32(rfd))
	binary.LittleEndian.PutUint32(buf[4:], uint32(wfd))
	if !vm.CopyoutUVM(p.Aspace, addr, buf[:]) {
		return -1
	}
	return 0
}

func sysRead(k *Kernel_t, p *Proc_t) int32 {
	_, f, ok := argFd(p, 0)
	addr, n, ok2 := argBuf(p, 1, 2)
	if !ok || !ok2 {
		return -1
	}
	buf := make([]byte, n)
	got, errno := k.Files.Read(p.Cpu, k.Fs, p.Pid, f, buf)
	if errno != 0 {
		return -1
	}
	if !vm.CopyoutUVM(p.Aspace, addr, buf[:got]) {
		return -1
	}
	return int32(got)
}

func sysWrite(k *Kernel_t, p *Proc_t) int32 {
	_, f, ok := argFd(p, 0)
	addr, n, ok2 := argBuf(p, 1, 2)
	if !ok || !ok2 {
		return -1
	}
	buf := make([]byte, n)
	if !vm.CopyinUVM(p.Aspace, addr, buf) {
		return -1
	}
	put, errno := k.Files.Write(p.Cpu, k.Fs, p.Pid, f, buf)
	if errno != 0 {
		return -1
	}
	return int32(put)
}

func sysClose(k *Kernel_t, p *Proc_t) int32 {
	fd, f, ok := argFd(p, 0)
	if !ok {
		return -1
	}
	p.Ofile[fd] = nil
	f.Close(p.Cpu, k.Fs, p.Pid)
	return 0
}

func sysDup(k *Kernel_t, p *Proc_t) int32 {
	_, f, ok := argFd(p, 0)
	if !ok {
		return -1
	}
	fd, ok := allocFd(p, f.Dup())
	if !ok {
		return -1
	}
	return fd
}

func sysFstat(k *Kernel_t, p *Proc_t) int32 {
	_, f, ok := argFd(p, 0)
	addr, ok2 := argPtr(p, 1)
	if !ok || !ok2 {
		return -1
	}
	var st stat.Stat_t
	if errno := k.Files.Stat(p.Cpu, k.Fs, p.Pid, f, &st); errno != 0 {
		return -1
	}
	buf := make([]byte, 28)
	binary.LittleEndian.PutUint32(buf[0:], st.Dev)
	binary.LittleEndian.PutUint32(buf[4:], st.Ino)
	binary.LittleEndian.PutUint32(buf[8:], st.Mode)
	binary.LittleEndian.PutUint16(buf[12:], st.Nlink)
	binary.LittleEndian.PutUint64(buf[16:], st.Size)
	if !vm.CopyoutUVM(p.Aspace, addr, buf) {
		return -1
	}
	return 0
}

func sysChdir(k *Kernel_t, p *Proc_t) int32 {
	path, ok := argStr(p, 0)
	if !ok {
		return -1
	}
	ip := k.Fs.Namei(p.Cpu, path, p.Cwd)
	if ip == nil {
		return -1
	}
	k.Fs.Ilock(p.Cpu, ip, p.Pid)
	if ip.Type != defs.T_DIR {
		k.Fs.Iunlockput(p.Cpu, ip)
		return -1
	}
	k.Fs.Iunlock(p.Cpu, ip)
	k.Fs.Iput(p.Cpu, p.Cwd, p.Pid)
	p.Cwd = ip
	return 0
}

func sysOpen(k *Kernel_t, p *Proc_t) int32 {
	path, ok := argStr(p, 0)
	flags, ok2 := argInt(p, 1)
	if !ok || !ok2 {
		return -1
	}

	var ip *fs.Inode_t
	if flags&defs.O_CREATE != 0 {
		var created bool
		ip, created = createFile(k, p, path, defs.T_FILE, 0)
		if !created {
			return -1
		}
	} else {
		ip = k.Fs.Namei(p.Cpu, path, p.Cwd)
		if ip == nil {
			return -1
		}
		k.Fs.Ilock(p.Cpu, ip, p.Pid)
	}
	if ip.Type == defs.T_DIR && flags != defs.O_RDONLY {
		k.Fs.Iunlockput(p.Cpu, ip)
		return -1
	}

	f := k.Files.Alloc()
	f.Type = file.FD_INODE
	f.Ip = ip
	f.Readable = flags&defs.O_WRONLY == 0
	f.Writable = flags&defs.O_WRONLY != 0 || flags&defs.O_RDWR != 0
	if ip.Type == defs.T_DEV {
		f.Type = file.FD_DEVICE
		f.Major = int(ip.Addrs[0])
	}
	k.Fs.Iunlock(p.Cpu, ip)

	fd, ok3 := allocFd(p, f)
	if !ok3 {
		f.Close(p.Cpu, k.Fs, p.Pid)
		return -1
	}
	return fd
}

// createFile implements the nameiparent+ialloc+dirlink sequence
// create() shares across open(O_CREATE), mkdir, and mknod in the
// original's sysfile.c. Returns the new inode locked, or nil if the
// name already exists as anything but a plain file being reopened.
func createFile(k *Kernel_t, p *Proc_t, path string, typ int, major uint32) (*fs.Inode_t, bool) {
	dp, name := k.Fs.Nameiparent(p.Cpu, path, p.Cwd)
	if dp == nil {
		return nil, false
	}
	k.Fs.Ilock(p.Cpu, dp, p.Pid)

	if ip, _ := k.Fs.Dirlookup(p.Cpu, dp, name); ip != nil {
		k.Fs.Iunlockput(p.Cpu, dp)
		k.Fs.Ilock(p.Cpu, ip, p.Pid)
		if typ == defs.T_FILE && ip.Type == defs.T_FILE {
			return ip, true
		}
		k.Fs.Iunlockput(p.Cpu, ip)
		return nil, false
	}

	ip := k.Fs.Ialloc(p.Cpu, typ)
	if ip == nil {
		k.Fs.Iunlockput(p.Cpu, dp)
		return nil, false
	}
	ip.Nlink = 1
	if typ == defs.T_DEV {
		ip.Addrs[0] = major
	}
	k.Fs.Iupdate(p.Cpu, ip)

	if typ == defs.T_DIR {
		dp.Nlink++
		k.Fs.Iupdate(p.Cpu, dp)
		k.Fs.Dirlink(p.Cpu, ip, ".", ip.Inum, uint8(typ))
		k.Fs.Dirlink(p.Cpu, ip, "..", dp.Inum, uint8(defs.T_DIR))
	}
	k.Fs.Dirlink(p.Cpu, dp, name, ip.Inum, uint8(typ))
	k.Fs.Iunlockput(p.Cpu, dp)
	return ip, true
}

func sysMkdir(k *Kernel_t, p *Proc_t) int32 {
	path, ok := argStr(p, 0)
	if !ok {
		return -1
	}
	ip, ok2 := createFile(k, p, path, defs.T_DIR, 0)
	if !ok2 {
		return -1
	}
	k.Fs.Iunlockput(p.Cpu, ip)
	return 0
}

func sysMknod(k *Kernel_t, p *Proc_t) int32 {
	path, ok := argStr(p, 0)
	major, ok2 := argInt(p, 1)
	if !ok || !ok2 {
		return -1
	}
	ip, ok3 := createFile(k, p, path, defs.T_DEV, uint32(major))
	if !ok3 {
		return -1
	}
	k.Fs.Iunlockput(p.Cpu, ip)
	return 0
}

func sysUnlink(k *Kernel_t, p *Proc_t) int32 {
	path, ok := argStr(p, 0)
	if !ok {
		return -1
	}
	dp, name := k.Fs.Nameiparent(p.Cpu, path, p.Cwd)
	if dp == nil || name == "." || name == ".." {
		return -1
	}
	k.Fs.Ilock(p.Cpu, dp, p.Pid)

	ip, off := k.Fs.Dirlookup(p.Cpu, dp, name)
	if ip == nil {
		k.Fs.Iunlockput(p.Cpu, dp)
		return -1
	}
	k.Fs.Ilock(p.Cpu, ip, p.Pid)
	if ip.Type == defs.T_DIR && !k.Fs.Dirempty(p.Cpu, ip) {
		k.Fs.Iunlockput(p.Cpu, ip)
		k.Fs.Iunlockput(p.Cpu, dp)
		return -1
	}

	zero := make([]byte, 8)
	k.Fs.Writei(p.Cpu, dp, zero, off)
	if ip.Type == defs.T_DIR {
		dp.Nlink--
		k.Fs.Iupdate(p.Cpu, dp)
	}
	k.Fs.Iunlockput(p.Cpu, dp)

	ip.Nlink--
	k.Fs.Iupdate(p.Cpu, ip)
	k.Fs.Iunlockput(p.Cpu, ip)
	return 0
}

func sysLink(k *Kernel_t, p *Proc_t) int32 {
	oldPath, ok := argStr(p, 0)
	newPath, ok2 := argStr(p, 1)
	if !ok || !ok2 {
		return -1
	}
	ip := k.Fs.Namei(p.Cpu, oldPath, p.Cwd)
	if ip == nil {
		return -1
	}
	k.Fs.Ilock(p.Cpu, ip, p.Pid)
	if ip.Type == defs.T_DIR {
		k.Fs.Iunlockput(p.Cpu, ip)
		return -1
	}
	ip.Nlink++
	k.Fs.Iupdate(p.Cpu, ip)
	k.Fs.Iunlock(p.Cpu, ip)

	dp, name := k.Fs.Nameiparent(p.Cpu, newPath, p.Cwd)
	if dp == nil {
		k.Fs.Iput(p.Cpu, ip, p.Pid)
		return -1
	}
	k.Fs.Ilock(p.Cpu, dp, p.Pid)
	linked := k.Fs.Dirlink(p.Cpu, dp, name, ip.Inum, uint8(defs.T_FILE))
	k.Fs.Iunlockput(p.Cpu, dp)
	if !linked {
		k.Fs.Ilock(p.Cpu, ip, p.Pid)
		ip.Nlink--
		k.Fs.Iupdate(p.Cpu, ip)
		k.Fs.Iunlockput(p.Cpu, ip)
		return -1
	}
	k.Fs.Iput(p.Cpu, ip, p.Pid)
	return 0
}

func sysExec(k *Kernel_t, p *Proc_t) int32 {
	path, ok := argStr(p, 0)
	argvAddr, ok2 := argPtr(p, 1)
	if !ok || !ok2 {
		return -1
	}
	var argv []string
	for i := 0; i < limits.MAXARG; i++ {
		var wbuf [4]byte
		if !vm.CopyinUVM(p.Aspace, argvAddr+uintptr(4*i), wbuf[:]) {
			return -1
		}
		ptr := binary.LittleEndian.Uint32(wbuf[:])
		if ptr == 0 {
			break
		}
		var out []byte
		var b [1]byte
		for {
			if !vm.CopyinUVM(p.Aspace, uintptr(ptr)+uintptr(len(out)), b[:]) {
				return -1
			}
			if b[0] == 0 {
				break
			}
			out = append(out, b[0])
		}
		argv = append(argv, string(out))
	}
	if errno := Exec(k, p, path, argv); errno != 0 {
		return -1
	}
	return 0
}

// sysSbrk grows or shrinks p's heap by n bytes and returns the address
// the break was at before the change, matching brk()'s Unix-standard
// "old break" return convention rather than the new one.
func sysSbrk(k *Kernel_t, p *Proc_t) int32 {
	n, ok := argInt(p, 0)
	if !ok {
		return -1
	}
	old := p.Aspace.Sz
	if n >= 0 {
		if _, allocated := vm.AllocUVM(p.Aspace, old, old+uintptr(n)); !allocated {
			return -1
		}
	} else {
		vm.DeallocUVM(p.Aspace, old, old-uintptr(-n))
	}
	return int32(old)
}
