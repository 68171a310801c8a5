package machine

import "time"

// Lapic_t simulates the local APIC's periodic timer: StartTimer arms a
// time.Ticker that calls fire on every tick, standing in for the
// hardware LAPIC a real boot would arm via the lapicinit()/
// lapicstartap() calls in original_source/kernel/main.c (the file
// defining those functions' lapicw(TICR,...)/lapicw(TDCR, X1)
// programming didn't survive this pack's distillation). EOI is a no-op
// here since there is
// no interrupt controller to acknowledge — the next tick firing is
// itself the only signal this simulation needs. Satisfies
// common.Lapic_i.
type Lapic_t struct {
	fire   func()
	ticker *time.Ticker
	stop   chan struct{}
}

// NewLapic builds a Lapic_t that calls fire once per tick once
// StartTimer is called, the way Console_t takes its ^P/^C hooks at
// construction rather than threading them through every call.
func NewLapic(fire func()) *Lapic_t {
	return &Lapic_t{fire: fire, stop: make(chan struct{})}
}

func (l *Lapic_t) StartTimer(hz int) {
	l.ticker = time.NewTicker(time.Second / time.Duration(hz))
	go func() {
		for {
			select {
			case <-l.ticker.C:
				l.fire()
			case <-l.stop:
				return
			}
		}
	}()
}

func (l *Lapic_t) EOI() {}

func (l *Lapic_t) Stop() {
	close(l.stop)
	if l.ticker != nil {
		l.ticker.Stop()
	}
}
