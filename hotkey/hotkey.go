package hotkey

import (
	"fmt"
	"sort"
)

type Hotkey interface {
	Register() error
	Unregister()
	Keydown() <-chan struct{}
	Keyup() <-chan struct{}
}

// Key is a hold-to-talk binding. Code is the evdev key code; Ctrl and
// Shift are required modifiers.
type Key struct {
	Name  string
	Label string
	Code  uint16
	Ctrl  bool
	Shift bool
}

// evdev codes from linux/input-event-codes.h
const (
	codeLCtrl  = 29
	codeLShift = 42
	codeRShift = 54
	codeLAlt   = 56
	codeSpace  = 57
	codeF8     = 66
	codeF9     = 67
	codeRCtrl  = 97
	codeRAlt   = 100
)

var keys = map[string]Key{
	"alt_l":            {Name: "alt_l", Label: "Left Alt", Code: codeLAlt},
	"alt_r":            {Name: "alt_r", Label: "Right Alt", Code: codeRAlt},
	"ctrl_l":           {Name: "ctrl_l", Label: "Left Ctrl", Code: codeLCtrl},
	"ctrl_r":           {Name: "ctrl_r", Label: "Right Ctrl", Code: codeRCtrl},
	"shift_r":          {Name: "shift_r", Label: "Right Shift", Code: codeRShift},
	"f8":               {Name: "f8", Label: "F8", Code: codeF8},
	"f9":               {Name: "f9", Label: "F9", Code: codeF9},
	"ctrl_shift_space": {Name: "ctrl_shift_space", Label: "Ctrl+Shift+Space", Code: codeSpace, Ctrl: true, Shift: true},
}

const DefaultKey = "alt_l"

func ParseKey(name string) (Key, error) {
	if name == "" {
		name = DefaultKey
	}
	k, ok := keys[name]
	if !ok {
		return Key{}, fmt.Errorf("unknown hold key %q (valid: %v)", name, KeyNames())
	}
	return k, nil
}

func KeyNames() []string {
	names := make([]string, 0, len(keys))
	for n := range keys {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// notify is a non-blocking send; a pending signal is enough.
func notify(ch chan struct{}) {
	select {
	case ch <- struct{}{}:
	default:
	}
}

// matcher tracks modifier state across evdev events and reports hold
// transitions for k.
type matcher struct {
	key       Key
	ctrlHeld  bool
	shiftHeld bool
	held      bool
}

type transition int

const (
	none transition = iota
	pressed
	released
)

// feed takes an evdev key event (value 1 press, 0 release, 2 repeat).
func (m *matcher) feed(code uint16, value int32) transition {
	if value == 2 {
		return none
	}
	down := value == 1
	if m.key.Code != codeLCtrl && m.key.Code != codeRCtrl && (code == codeLCtrl || code == codeRCtrl) {
		m.ctrlHeld = down
	}
	if m.key.Code != codeRShift && (code == codeLShift || code == codeRShift) {
		m.shiftHeld = down
	}
	if code != m.key.Code {
		return none
	}
	switch {
	case down && !m.held:
		if (m.key.Ctrl && !m.ctrlHeld) || (m.key.Shift && !m.shiftHeld) {
			return none
		}
		m.held = true
		return pressed
	case !down && m.held:
		m.held = false
		return released
	}
	return none
}
