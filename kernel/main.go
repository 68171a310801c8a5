package main

import (
	"fmt"
	"os"

	"github.com/mit-pdos-xv6/kernelcore/common"
	"github.com/mit-pdos-xv6/kernelcore/defs"
	"github.com/mit-pdos-xv6/kernelcore/file"
	"github.com/mit-pdos-xv6/kernelcore/fs"
	"github.com/mit-pdos-xv6/kernelcore/limits"
	"github.com/mit-pdos-xv6/kernelcore/machine"
	"github.com/mit-pdos-xv6/kernelcore/proc"
)

// timerHz is the simulated LAPIC's periodic rate: every tick advances
// the global tick count sys_sleep()/sys_uptime() read, standing in for
// the real local APIC a hardware boot would arm via lapic_timerinit().
const timerHz = 100

const diskBlocks = 8192

// mkConsoleDevice formats the boot-time device table entry a real
// kernel's /etc/devtab would otherwise list statically — major 1,
// char device, matching spec.md §6's "the console must appear in
// /etc/devtab as '9 char 1 1'" (the major number itself is
// defs.CONSOLE, kept distinct from that line's device-file number).
func mkConsoleDevice(cons *machine.Console_t) *file.Device_t {
	return &file.Device_t{
		Read: func(dst []byte) (int, defs.Err_t) {
			n, err := cons.Cons_read(dst)
			if err != nil {
				return n, defs.EIO
			}
			return n, 0
		},
		Write: func(src []byte) (int, defs.Err_t) {
			n, err := cons.Cons_write(src)
			if err != nil {
				return n, defs.EIO
			}
			return n, 0
		},
	}
}

// mkConsoleInode creates the "/console" special file every process's
// fd 0/1/2 ultimately opens, grounded on the "console" mknod call
// userinit() makes (via initcode.S + sh's own open calls) before the
// first real process runs. There being no initcode here, main does it
// directly with its own boot-only Cpu_t — safe because nothing else is
// running yet, the same justification fs.MkFS's bootCpu relies on.
func mkConsoleInode(fsys *fs.Fs_t, bootCpu *common.Cpu_t) {
	root := fsys.Namei(bootCpu, "/", nil)
	fsys.Ilock(bootCpu, root, 0)

	dev := fsys.Ialloc(bootCpu, defs.T_DEV)
	dev.Nlink = 1
	dev.Addrs[0] = defs.CONSOLE
	fsys.Iupdate(bootCpu, dev)
	fsys.Dirlink(bootCpu, root, "console", dev.Inum, uint8(defs.T_DEV))
	fsys.Iunlockput(bootCpu, dev)

	fsys.Iunlockput(bootCpu, root)
}

// openConsoleFd opens /console for p and installs it in the first free
// fd among 0, 1, and 2, the way
// every one of init's descendants inherits stdin/stdout/stderr —
// grounded on sh.c's own open("console", ...) dance, done here once
// on init's behalf since fork/exec inherit the resulting fd table.
func openConsoleFd(k *proc.Kernel_t, p *proc.Proc_t, readable, writable bool) {
	ip := k.Fs.Namei(p.Cpu, "/console", p.Cwd)
	k.Fs.Ilock(p.Cpu, ip, p.Pid)
	f := k.Files.Alloc()
	f.Type = file.FD_DEVICE
	f.Ip = ip
	f.Major = int(ip.Addrs[0])
	f.Readable = readable
	f.Writable = writable
	k.Fs.Iunlock(p.Cpu, ip)

	for i := 0; i < 3; i++ {
		if p.Ofile[i] == nil {
			p.Ofile[i] = f
			return
		}
	}
}

func main() {
	disk := machine.NewMemDisk(diskBlocks)
	fsys := fs.MkFS(disk, diskBlocks)

	bootCpu := &common.Cpu_t{ID: 0}
	mkConsoleInode(fsys, bootCpu)

	k := proc.NewKernel(fsys)

	cons := machine.NewConsole(nil, nil)
	k.Files.InstallDevice(defs.CONSOLE, mkConsoleDevice(cons))

	var lapic *machine.Lapic_t
	lapic = machine.NewLapic(func() {
		proc.Tick(k, bootCpu)
		lapic.EOI()
	})
	lapic.StartTimer(timerHz)
	defer lapic.Stop()

	fmt.Println("kernelcore booting")
	fmt.Printf("%d disk blocks, %d process table slots\n", diskBlocks, limits.NPROC)

	init := k.Start("init", func(p *proc.Proc_t) {
		openConsoleFd(k, p, true, false)
		openConsoleFd(k, p, false, true)
		openConsoleFd(k, p, false, true)

		for {
			_, _, ok := proc.Wait(k, p)
			if !ok {
				return
			}
		}
	})

	cons.SetHooks(func() {
		for _, p := range k.Procs() {
			fmt.Fprintf(os.Stdout, "%d %v %s\n", p.Pid, p.State, p.Name)
		}
	}, func() {
		proc.Kill(k, init, init.Pid)
	})

	buf := make([]byte, 1)
	for {
		n, err := os.Stdin.Read(buf)
		if n == 0 || err != nil {
			cons.Feed(ctrlDByte)
			break
		}
		cons.Feed(buf[0])
	}
}

const ctrlDByte = 'D' - '@'
