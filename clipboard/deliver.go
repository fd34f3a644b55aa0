package clipboard

import (
	"sync/atomic"
	"time"
)

const restoreDelay = 600 * time.Millisecond

// Board is the clipboard seen by a Deliverer.
type Board interface {
	Read() (string, error)
	Write(text string) error
}

// Deliverer puts finished transcriptions on the clipboard and optionally
// pastes them into the focused window.
type Deliverer struct {
	board     Board
	paste     func() error
	sleep     func(time.Duration)
	after     func(time.Duration, func())
	autoPaste atomic.Bool
	delay     time.Duration
}

func NewDeliverer(autoPaste bool, delay time.Duration) *Deliverer {
	return NewDelivererTo(System, Paste, autoPaste, delay)
}

// NewDelivererTo writes to board and pastes with paste instead of the
// system clipboard and keyboard.
func NewDelivererTo(board Board, paste func() error, autoPaste bool, delay time.Duration) *Deliverer {
	d := &Deliverer{
		board: board,
		paste: paste,
		sleep: time.Sleep,
		after: func(d time.Duration, f func()) { time.AfterFunc(d, f) },
		delay: delay,
	}
	d.autoPaste.Store(autoPaste)
	return d
}

func (d *Deliverer) SetAutoPaste(on bool) { d.autoPaste.Store(on) }
func (d *Deliverer) AutoPaste() bool      { return d.autoPaste.Load() }

// Deliver copies text. With auto paste on it waits for the configured
// delay, sends the paste shortcut, then puts the previous clipboard back.
// Without auto paste the text stays on the clipboard.
func (d *Deliverer) Deliver(text string) (pasted bool, err error) {
	if text == "" {
		return false, nil
	}
	autoPaste := d.autoPaste.Load()
	var prev string
	if autoPaste {
		prev, _ = d.board.Read()
	}
	if err := d.board.Write(text); err != nil {
		return false, err
	}
	if !autoPaste {
		return false, nil
	}
	if d.delay > 0 {
		d.sleep(d.delay)
	}
	if err := d.paste(); err != nil {
		return false, err
	}
	if prev != "" && prev != text {
		d.after(restoreDelay, func() { d.board.Write(prev) })
	}
	return true, nil
}
