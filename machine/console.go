package machine

import (
	"fmt"
	"sync"
)

const (
	ctrlP = 'P' - '@'
	ctrlU = 'U' - '@'
	ctrlH = 'H' - '@'
	ctrlC = 'C' - '@'
	ctrlD = 'D' - '@'
)

// Console_t is the line-editing terminal device behind /dev/console,
// grounded on the line discipline spec.md §6 names (backspace erases
// the last character, ^U kills the whole line, ^P dumps the process
// table, ^C kills the running foreground process): a single input
// line accumulates keystrokes fed in by Feed until Enter completes it,
// at which point a Cons_read caller blocked on the line wakes up and
// takes the whole line in one call (whatever does not fit its buffer
// is dropped), matching the original's consoleintr() buffering one
// line ahead of the reading process.
type Console_t struct {
	mu      sync.Mutex
	line    []byte
	ready   chan []byte
	dumpPS  func()
	killFG  func()
}

func NewConsole(dumpPS func(), killFG func()) *Console_t {
	return &Console_t{
		ready:  make(chan []byte, 16),
		dumpPS: dumpPS,
		killFG: killFG,
	}
}

// SetHooks wires the ^P process dump and ^C kill callbacks once the
// process table they report on exists — main() needs a running
// Kernel_t before it can build these closures, which is created after
// the console device itself.
func (c *Console_t) SetHooks(dumpPS func(), killFG func()) {
	c.mu.Lock()
	c.dumpPS = dumpPS
	c.killFG = killFG
	c.mu.Unlock()
}

// Feed delivers one keystroke from whatever is driving the console
// (a test, a pty, a real keyboard IRQ handler) into the line buffer,
// applying the special-key handling above (it does not echo) —
// consoleintr() in the original.
func (c *Console_t) Feed(ch byte) {
	c.mu.Lock()
	switch ch {
	case ctrlP:
		c.mu.Unlock()
		if c.dumpPS != nil {
			c.dumpPS()
		}
		return
	case ctrlC:
		c.mu.Unlock()
		if c.killFG != nil {
			c.killFG()
		}
		return
	case ctrlU:
		c.line = c.line[:0]
		c.mu.Unlock()
		return
	case ctrlH, 127:
		if len(c.line) > 0 {
			c.line = c.line[:len(c.line)-1]
		}
		c.mu.Unlock()
		return
	case '\r':
		ch = '\n'
	}

	c.line = append(c.line, ch)
	if ch == '\n' || ch == ctrlD {
		line := c.line
		c.line = nil
		c.mu.Unlock()
		c.ready <- line
		return
	}
	c.mu.Unlock()
}

// Cons_read blocks until a full line is available, then copies as much
// of it as fits into p — consoleread() in the original.
func (c *Console_t) Cons_read(p []byte) (int, error) {
	line, ok := <-c.ready
	if !ok {
		return 0, nil
	}
	n := copy(p, line)
	return n, nil
}

// Cons_write prints straight to the host terminal — consolewrite() in
// the original, minus the direct-to-VGA path this simulation has no
// use for.
func (c *Console_t) Cons_write(p []byte) (int, error) {
	return fmt.Print(string(p))
}
