package hotkey

import (
	"sync/atomic"
	"time"
)

type Mode string

const (
	ModeHold   Mode = "hold"
	ModeHybrid Mode = "hybrid"

	DefaultLongPress = 350 * time.Millisecond
)

// Hybrid layers tap-to-toggle over a hold key. Every first press starts
// a recording. A release after longPress ends it as push-to-talk; an
// earlier release latches it until the next press is released.
type Hybrid struct {
	start   chan struct{}
	stop    chan struct{}
	done    chan struct{}
	latched atomic.Bool
}

func NewHybrid(hk Hotkey, longPress time.Duration) *Hybrid {
	h := &Hybrid{
		start: make(chan struct{}, 1),
		stop:  make(chan struct{}, 1),
		done:  make(chan struct{}),
	}
	go h.run(hk.Keydown(), hk.Keyup(), longPress)
	return h
}

func (h *Hybrid) Start() <-chan struct{}    { return h.start }
func (h *Hybrid) StopChan() <-chan struct{} { return h.stop }

// IsToggle reports whether the current recording was latched by a tap.
func (h *Hybrid) IsToggle() bool { return h.latched.Load() }

func (h *Hybrid) Close() { close(h.done) }

// await blocks for one signal on ch; false means Close was called.
func (h *Hybrid) await(ch <-chan struct{}) bool {
	select {
	case <-ch:
		return true
	case <-h.done:
		return false
	}
}

// cycle handles one recording from first press to stop and reports
// whether the Hybrid is still open.
func (h *Hybrid) cycle(down, up <-chan struct{}, longPress time.Duration) bool {
	if !h.await(down) {
		return false
	}
	h.latched.Store(false)
	notify(h.start)

	held := time.NewTimer(longPress)
	defer held.Stop()
	select {
	case <-h.done:
		return false
	case <-held.C:
		if !h.await(up) {
			return false
		}
	case <-up:
		h.latched.Store(true)
		if !h.await(down) || !h.await(up) {
			return false
		}
	}
	notify(h.stop)
	return true
}

func (h *Hybrid) run(down, up <-chan struct{}, longPress time.Duration) {
	for h.cycle(down, up, longPress) {
	}
}
