package fs

import (
	"strings"

	"github.com/mit-pdos-xv6/kernelcore/common"
	"github.com/mit-pdos-xv6/kernelcore/defs"
)

func skipelem(path string) (elem, rest string) {
	path = strings.TrimLeft(path, "/")
	if path == "" {
		return "", ""
	}
	i := strings.IndexByte(path, '/')
	if i < 0 {
		return path, ""
	}
	return path[:i], strings.TrimLeft(path[i:], "/")
}

// namex walks path one component at a time starting from cwd (or the
// root, if path is absolute), grounded on namex() in
// original_source/kernel/fs.c. If wantParent is true, it stops one
// component short and returns that final name instead of resolving it.
func (fs *Fs_t) namex(cpu *common.Cpu_t, path string, cwd *Inode_t, wantParent bool) (*Inode_t, string) {
	var ip *Inode_t
	if strings.HasPrefix(path, "/") {
		ip = fs.Iget(fs.rootInum())
	} else {
		if cwd == nil {
			ip = fs.Iget(fs.rootInum())
		} else {
			ip = cwd
			fs.icacheBump(ip)
		}
	}

	elem, rest := skipelem(path)
	for elem != "" {
		fs.Ilock(cpu, ip, 0)
		if ip.Type != defs.T_DIR {
			fs.Iunlockput(cpu, ip)
			return nil, ""
		}
		if wantParent && rest == "" {
			fs.Iunlock(cpu, ip)
			return ip, elem
		}
		next, _ := fs.Dirlookup(cpu, ip, elem)
		if next == nil {
			fs.Iunlockput(cpu, ip)
			return nil, ""
		}
		fs.Iunlockput(cpu, ip)
		ip = next
		elem, rest = skipelem(rest)
	}
	if wantParent {
		fs.Iput(cpu, ip, 0)
		return nil, ""
	}
	return ip, ""
}

func (fs *Fs_t) icacheBump(ip *Inode_t) {
	fs.icache.mu.Lock()
	ip.refcnt++
	fs.icache.mu.Unlock()
}

// rootInum is always inode 2 in ext2 (inode 1 is reserved for bad
// blocks), matching EXT2_ROOT_INO.
func (fs *Fs_t) rootInum() uint32 { return 2 }

// Namei resolves path to its inode, relative to cwd if path is not
// absolute — namei() in the original.
func (fs *Fs_t) Namei(cpu *common.Cpu_t, path string, cwd *Inode_t) *Inode_t {
	ip, _ := fs.namex(cpu, path, cwd, false)
	return ip
}

// Nameiparent resolves path's parent directory and returns the final
// component's name unresolved — nameiparent() in the original, used by
// create/unlink/link so they can hold the parent locked while
// manipulating the child's directory entry.
func (fs *Fs_t) Nameiparent(cpu *common.Cpu_t, path string, cwd *Inode_t) (*Inode_t, string) {
	return fs.namex(cpu, path, cwd, true)
}
