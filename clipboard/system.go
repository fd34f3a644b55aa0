package clipboard

import (
	"runtime"
	"sync"
	"time"

	cb "github.com/atotto/clipboard"
	"github.com/micmonay/keybd_event"
)

// System is the desktop clipboard.
var System Board = systemBoard{}

type systemBoard struct{}

func (systemBoard) Read() (string, error)   { return cb.ReadAll() }
func (systemBoard) Write(text string) error { return cb.WriteAll(text) }

// uinput devices take a moment to show up in the compositor.
const uinputSettle = 200 * time.Millisecond

var keyboard struct {
	once sync.Once
	kb   keybd_event.KeyBonding
	err  error
}

// Init creates the virtual keyboard used for pasting. On linux that
// needs write access to /dev/uinput.
func Init() error {
	keyboard.once.Do(func() {
		keyboard.kb, keyboard.err = keybd_event.NewKeyBonding()
		if keyboard.err == nil && runtime.GOOS == "linux" {
			time.Sleep(uinputSettle)
		}
	})
	return keyboard.err
}

// pasteUsesCmd reports whether goos pastes with Cmd+V instead of Ctrl+V.
func pasteUsesCmd(goos string) bool { return goos == "darwin" }

func pasteLabel(goos string) string {
	if pasteUsesCmd(goos) {
		return "Cmd+V"
	}
	return "Ctrl+V"
}

// Paste presses the paste shortcut in the focused window.
func Paste() error {
	if err := Init(); err != nil {
		return err
	}
	kb := &keyboard.kb
	kb.Clear()
	kb.SetKeys(keybd_event.VK_V)
	if pasteUsesCmd(runtime.GOOS) {
		kb.HasSuper(true)
	} else {
		kb.HasCTRL(true)
	}
	return kb.Launching()
}

// Verify reports whether the virtual keyboard could be created.
func Verify() (string, error) {
	if err := Init(); err != nil {
		return "", err
	}
	return "virtual keyboard ready, pasting with " + pasteLabel(runtime.GOOS), nil
}
