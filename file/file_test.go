package file

import (
	"bytes"
	"testing"
	"time"

	"github.com/mit-pdos-xv6/kernelcore/common"
	"github.com/mit-pdos-xv6/kernelcore/defs"
	"github.com/mit-pdos-xv6/kernelcore/limits"
)

func TestPipeWriteThenRead(t *testing.T) {
	p := NewPipe()
	c := &common.Cpu_t{ID: 0}

	n, err := p.Write(c, []byte("ping"))
	if err != 0 || n != 4 {
		t.Fatalf("Write = (%d, %v), want (4, 0)", n, err)
	}
	got := make([]byte, 4)
	n, err = p.Read(c, got)
	if err != 0 || n != 4 || !bytes.Equal(got, []byte("ping")) {
		t.Fatalf("Read = (%q, %d, %v), want (\"ping\", 4, 0)", got, n, err)
	}
}

// TestPipePingPong drives a writer and a reader concurrently, each with
// their own Cpu_t, through more bytes than the ring buffer holds at
// once, exercising the block-when-full/block-when-empty paths spec.md
// §4.7 names.
func TestPipePingPong(t *testing.T) {
	p := NewPipe()
	total := limits.PIPESIZE * 4
	want := bytes.Repeat([]byte{0, 1, 2, 3}, total/4)

	got := make([]byte, 0, total)
	done := make(chan struct{})
	go func() {
		wc := &common.Cpu_t{ID: 1}
		off := 0
		for off < len(want) {
			n, err := p.Write(wc, want[off:])
			if err != 0 {
				t.Errorf("Write failed: %v", err)
				return
			}
			off += n
		}
		p.CloseEnd(wc, true)
	}()
	go func() {
		rc := &common.Cpu_t{ID: 2}
		buf := make([]byte, 37) // odd chunk size to force many round trips
		for {
			n, _ := p.Read(rc, buf)
			if n == 0 {
				break
			}
			got = append(got, buf[:n]...)
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatalf("pipe ping-pong never completed")
	}
	if !bytes.Equal(got, want) {
		t.Fatalf("got %d bytes, want %d bytes, content mismatch", len(got), len(want))
	}
}

func TestPipeReadReturnsZeroAtEOF(t *testing.T) {
	p := NewPipe()
	c := &common.Cpu_t{ID: 0}
	p.CloseEnd(c, true) // close write end with nothing buffered

	buf := make([]byte, 8)
	n, err := p.Read(c, buf)
	if err != 0 || n != 0 {
		t.Fatalf("Read after write-close = (%d, %v), want (0, 0)", n, err)
	}
}

func TestPipeWriteAfterReadCloseReturnsEPIPE(t *testing.T) {
	p := NewPipe()
	c := &common.Cpu_t{ID: 0}
	p.CloseEnd(c, false) // close read end

	_, err := p.Write(c, []byte("x"))
	if err != defs.EPIPE {
		t.Fatalf("Write after read-close returned %v, want EPIPE", err)
	}
}

func TestTableAllocDupCloseRefcounting(t *testing.T) {
	tbl := NewTable(limits.NFILE)
	f := tbl.Alloc()
	f.Type = FD_PIPE
	f.Pipe = NewPipe()
	f.Readable, f.Writable = true, true

	f2 := f.Dup()
	if f2 != f {
		t.Fatalf("Dup returned a different File_t")
	}

	c := &common.Cpu_t{ID: 0}
	f.Close(c, nil, 0) // one of the two references
	if !f.Pipe.writeOpen {
		t.Fatalf("pipe torn down after only one of two references closed")
	}
	f.Close(c, nil, 0) // the last reference
	if f.Pipe.writeOpen {
		t.Fatalf("pipe's write end still open after the last reference closed")
	}
}

func TestTableReadWriteDispatchesToDevice(t *testing.T) {
	tbl := NewTable(limits.NFILE)
	var written []byte
	tbl.InstallDevice(7, &Device_t{
		Read: func(dst []byte) (int, defs.Err_t) {
			n := copy(dst, "from-device")
			return n, 0
		},
		Write: func(src []byte) (int, defs.Err_t) {
			written = append(written, src...)
			return len(src), 0
		},
	})

	f := tbl.Alloc()
	f.Type = FD_DEVICE
	f.Major = 7
	f.Readable, f.Writable = true, true

	c := &common.Cpu_t{ID: 0}
	buf := make([]byte, len("from-device"))
	n, err := tbl.Read(c, nil, 0, f, buf)
	if err != 0 || string(buf[:n]) != "from-device" {
		t.Fatalf("Read = (%q, %v), want (\"from-device\", 0)", buf[:n], err)
	}

	n, err = tbl.Write(c, nil, 0, f, []byte("hi"))
	if err != 0 || n != 2 || string(written) != "hi" {
		t.Fatalf("Write = (%d, %v), device saw %q, want (2, 0, \"hi\")", n, err, written)
	}
}

func TestTableReadWriteRejectsWrongDirection(t *testing.T) {
	tbl := NewTable(limits.NFILE)
	f := tbl.Alloc()
	f.Type = FD_PIPE
	f.Pipe = NewPipe()
	f.Readable = true
	f.Writable = false

	c := &common.Cpu_t{ID: 0}
	if _, err := tbl.Write(c, nil, 0, f, []byte("x")); err != defs.EINVAL {
		t.Fatalf("Write on a read-only fd returned %v, want EINVAL", err)
	}
}

func TestTableReadUnknownDeviceReturnsENODEV(t *testing.T) {
	tbl := NewTable(limits.NFILE)
	f := tbl.Alloc()
	f.Type = FD_DEVICE
	f.Major = 99
	f.Readable = true

	c := &common.Cpu_t{ID: 0}
	if _, err := tbl.Read(c, nil, 0, f, make([]byte, 1)); err != defs.ENODEV {
		t.Fatalf("Read on an uninstalled device major returned %v, want ENODEV", err)
	}
}
