package proc

import (
	"encoding/binary"

	"github.com/mit-pdos-xv6/kernelcore/defs"
	"github.com/mit-pdos-xv6/kernelcore/limits"
	"github.com/mit-pdos-xv6/kernelcore/vm"
)

const (
	elfMagic   = 0x464c457f // "\x7fELF" as a little-endian uint32
	elfHdrSize = 52
	progHdrSize = 32
	ptLoad      = 1
)

type elfHeader struct {
	entry uint32
	phoff uint32
	phnum uint16
}

func parseElfHeader(b []byte) (elfHeader, bool) {
	if len(b) < elfHdrSize {
		return elfHeader{}, false
	}
	if binary.LittleEndian.Uint32(b[0:4]) != elfMagic {
		return elfHeader{}, false
	}
	return elfHeader{
		entry: binary.LittleEndian.Uint32(b[24:28]),
		phoff: binary.LittleEndian.Uint32(b[28:32]),
		phnum: binary.LittleEndian.Uint16(b[44:46]),
	}, true
}

type progHeader struct {
	ptype  uint32
	offset uint32
	vaddr  uint32
	filesz uint32
	memsz  uint32
}

func parseProgHeader(b []byte) progHeader {
	return progHeader{
		ptype:  binary.LittleEndian.Uint32(b[0:4]),
		offset: binary.LittleEndian.Uint32(b[4:8]),
		vaddr:  binary.LittleEndian.Uint32(b[8:12]),
		filesz: binary.LittleEndian.Uint32(b[16:20]),
		memsz:  binary.LittleEndian.Uint32(b[20:24]),
	}
}

// Exec replaces p's address space with the program at path, loading
// each PT_LOAD segment and building the argv stack — exec() in
// original_source/kernel/exec.c. On any failure the new, partially
// built address space is torn down and p is left running its old
// image unchanged, exactly as the original's "goto bad" path does.
func Exec(k *Kernel_t, p *Proc_t, path string, argv []string) defs.Err_t {
	ip := k.Fs.Namei(p.Cpu, path, p.Cwd)
	if ip == nil {
		return defs.ENOENT
	}
	k.Fs.Ilock(p.Cpu, ip, p.Pid)

	hdrBuf := make([]byte, elfHdrSize)
	if n := k.Fs.Readi(p.Cpu, ip, hdrBuf, 0); n != elfHdrSize {
		k.Fs.Iunlockput(p.Cpu, ip)
		return defs.ENOEXEC
	}
	hdr, ok := parseElfHeader(hdrBuf)
	if !ok {
		k.Fs.Iunlockput(p.Cpu, ip)
		return defs.ENOEXEC
	}

	as := vm.SetupKVM()
	var sz uintptr
	phBuf := make([]byte, progHdrSize)
	for i := 0; i < int(hdr.phnum); i++ {
		off := hdr.phoff + uint32(i)*progHdrSize
		if n := k.Fs.Readi(p.Cpu, ip, phBuf, off); n != progHdrSize {
			k.Fs.Iunlockput(p.Cpu, ip)
			as.Free()
			return defs.ENOEXEC
		}
		ph := parseProgHeader(phBuf)
		if ph.ptype != ptLoad {
			continue
		}
		if ph.memsz < ph.filesz || ph.vaddr%limits.PGSIZE != 0 {
			k.Fs.Iunlockput(p.Cpu, ip)
			as.Free()
			return defs.ENOEXEC
		}
		newsz, allocated := vm.AllocUVM(as, sz, uintptr(ph.vaddr+ph.memsz))
		if !allocated {
			k.Fs.Iunlockput(p.Cpu, ip)
			as.Free()
			return defs.ENOMEM
		}
		sz = newsz

		segBuf := make([]byte, ph.filesz)
		if n := k.Fs.Readi(p.Cpu, ip, segBuf, ph.offset); uint32(n) != ph.filesz {
			k.Fs.Iunlockput(p.Cpu, ip)
			as.Free()
			return defs.ENOEXEC
		}
		if !vm.LoadUVM(as, uintptr(ph.vaddr), segBuf) {
			k.Fs.Iunlockput(p.Cpu, ip)
			as.Free()
			return defs.ENOEXEC
		}
	}
	k.Fs.Iunlockput(p.Cpu, ip)

	// Two more pages at the next boundary: a guard page, then the
	// stack, exactly as the original allocates sz..sz+2*PGSIZE and
	// clears the user bit on the first of the two.
	sz = (sz + limits.PGSIZE - 1) &^ (limits.PGSIZE - 1)
	newsz, allocated := vm.AllocUVM(as, sz, sz+2*limits.PGSIZE)
	if !allocated {
		as.Free()
		return defs.ENOMEM
	}
	sz = newsz
	vm.ClearPTEU(as, sz-2*limits.PGSIZE)
	sp := sz

	if len(argv) > limits.MAXARG {
		as.Free()
		return defs.E2BIG
	}
	argvPtrs := make([]uint32, len(argv))
	for i, arg := range argv {
		n := uint32(len(arg) + 1)
		sp = (sp - uintptr(n)) &^ 3
		if !vm.CopyoutUVM(as, sp, append([]byte(arg), 0)) {
			as.Free()
			return defs.EFAULT
		}
		argvPtrs[i] = uint32(sp)
	}

	// ustack[0] is a fake return PC, [1] argc, [2] the address argv will
	// land at once this whole array is copied down to its final sp —
	// computed from the current sp since the array hasn't moved there
	// yet — then [3:] the argv pointers themselves, null-terminated.
	ustack := make([]uint32, 3+len(argv)+1)
	ustack[0] = 0xffffffff
	ustack[1] = uint32(len(argv))
	ustack[2] = uint32(sp) - uint32(len(argv)+1)*4
	copy(ustack[3:], argvPtrs)
	ustack[3+len(argv)] = 0

	buf := make([]byte, 4*len(ustack))
	for i, w := range ustack {
		binary.LittleEndian.PutUint32(buf[4*i:], w)
	}
	sp -= uintptr(len(buf))
	if !vm.CopyoutUVM(as, sp, buf) {
		as.Free()
		return defs.EFAULT
	}

	old := p.Aspace
	p.Aspace = as
	p.Tf.Eip = uintptr(hdr.entry)
	p.Tf.Esp = sp
	p.Name = baseName(path)
	if old != nil {
		old.Free()
	}
	return 0
}

func baseName(path string) string {
	last := 0
	for i, c := range path {
		if c == '/' {
			last = i + 1
		}
	}
	return path[last:]
}
