//go:build !linux

package hotkey

import (
	"fmt"
	"sync"

	"golang.design/x/hotkey"
)

// binding is what the OS hotkey API is actually asked to grab.
type binding struct {
	mods  []hotkey.Modifier
	key   hotkey.Key
	label string
}

var fallback = binding{
	mods:  []hotkey.Modifier{hotkey.ModCtrl, hotkey.ModShift},
	key:   hotkey.KeySpace,
	label: "Ctrl+Shift+Space",
}

// bindingFor maps key onto the OS API. Modifier-only keys cannot be
// grabbed there and get the fallback combo.
func bindingFor(key Key) binding {
	var b binding
	switch key.Code {
	case codeF8:
		b.key = hotkey.KeyF8
	case codeF9:
		b.key = hotkey.KeyF9
	case codeSpace:
		b.key = hotkey.KeySpace
	default:
		return fallback
	}
	if key.Ctrl {
		b.mods = append(b.mods, hotkey.ModCtrl)
	}
	if key.Shift {
		b.mods = append(b.mods, hotkey.ModShift)
	}
	b.label = key.Label
	return b
}

type osHotkey struct {
	hk   *hotkey.Hotkey
	down chan struct{}
	up   chan struct{}
	quit chan struct{}
	once sync.Once
}

func New(key Key) Hotkey {
	b := bindingFor(key)
	return &osHotkey{
		hk:   hotkey.New(b.mods, b.key),
		down: make(chan struct{}, 1),
		up:   make(chan struct{}, 1),
		quit: make(chan struct{}),
	}
}

func (h *osHotkey) Register() error {
	if err := h.hk.Register(); err != nil {
		return fmt.Errorf("register hotkey: %w", err)
	}
	go h.relay()
	return nil
}

func (h *osHotkey) relay() {
	down, up := h.hk.Keydown(), h.hk.Keyup()
	for {
		select {
		case <-h.quit:
			return
		case <-down:
			notify(h.down)
		case <-up:
			notify(h.up)
		}
	}
}

func (h *osHotkey) Unregister() {
	h.once.Do(func() {
		close(h.quit)
		h.hk.Unregister()
	})
}

func (h *osHotkey) Keydown() <-chan struct{} { return h.down }
func (h *osHotkey) Keyup() <-chan struct{}   { return h.up }

func Diagnose(key Key) (string, error) {
	b := bindingFor(key)
	if b.label != key.Label {
		return fmt.Sprintf("%s cannot be grabbed here, using %s", key.Label, b.label), nil
	}
	return "global hotkey " + b.label, nil
}
