//go:build linux

package hotkey

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math/bits"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
)

// struct input_event on 64-bit: 16 bytes of timeval, then type, code, value.
const (
	evKey     = 1
	eventSize = 24
)

var (
	inputDir = "/dev/input"
	sysDir   = "/sys/class/input"
)

var errNoKeyboard = errors.New("no input device can send the hold key (is the user in the 'input' group?)")

type inputEvent struct {
	Type  uint16
	Code  uint16
	Value int32
}

func decodeEvent(b []byte) inputEvent {
	return inputEvent{
		Type:  binary.LittleEndian.Uint16(b[16:]),
		Code:  binary.LittleEndian.Uint16(b[18:]),
		Value: int32(binary.LittleEndian.Uint32(b[20:])),
	}
}

// evdevHotkey reads every keyboard that can produce the bound key. Each
// device gets its own matcher so modifier state never leaks between them.
type evdevHotkey struct {
	key    Key
	down   chan struct{}
	up     chan struct{}
	mu     sync.Mutex
	open   []*os.File
	closer sync.Once
}

func New(key Key) Hotkey {
	return &evdevHotkey{
		key:  key,
		down: make(chan struct{}, 1),
		up:   make(chan struct{}, 1),
	}
}

func (h *evdevHotkey) Register() error {
	paths, err := candidates(h.key.Code)
	if err != nil {
		return err
	}
	var lastErr error
	for _, p := range paths {
		f, err := os.Open(p)
		if err != nil {
			lastErr = err
			continue
		}
		h.mu.Lock()
		h.open = append(h.open, f)
		h.mu.Unlock()
		go h.watch(f)
	}
	if len(h.open) == 0 {
		return fmt.Errorf("open %d keyboard(s): %w (run: sudo usermod -aG input $USER, then re-login)", len(paths), lastErr)
	}
	return nil
}

// watch returns once the device is closed by Unregister or unplugged.
func (h *evdevHotkey) watch(f *os.File) {
	m := matcher{key: h.key}
	buf := make([]byte, eventSize*32)
	for {
		n, err := f.Read(buf)
		if err != nil {
			return
		}
		for off := 0; off+eventSize <= n; off += eventSize {
			ev := decodeEvent(buf[off : off+eventSize])
			if ev.Type != evKey {
				continue
			}
			switch m.feed(ev.Code, ev.Value) {
			case pressed:
				notify(h.down)
			case released:
				notify(h.up)
			}
		}
	}
}

func (h *evdevHotkey) Unregister() {
	h.closer.Do(func() {
		h.mu.Lock()
		defer h.mu.Unlock()
		for _, f := range h.open {
			f.Close()
		}
		h.open = nil
	})
}

func (h *evdevHotkey) Keydown() <-chan struct{} { return h.down }
func (h *evdevHotkey) Keyup() <-chan struct{}   { return h.up }

// candidates lists the event nodes whose key capability bitmap includes code.
func candidates(code uint16) ([]string, error) {
	entries, err := os.ReadDir(inputDir)
	if err != nil {
		return nil, fmt.Errorf("scan %s: %w", inputDir, err)
	}
	var out []string
	for _, e := range entries {
		if !strings.HasPrefix(e.Name(), "event") {
			continue
		}
		caps, err := os.ReadFile(filepath.Join(sysDir, e.Name(), "device", "capabilities", "key"))
		if err != nil || !hasKey(string(caps), code) {
			continue
		}
		out = append(out, filepath.Join(inputDir, e.Name()))
	}
	if len(out) == 0 {
		return nil, errNoKeyboard
	}
	return out, nil
}

// hasKey tests bit code in a sysfs capability bitmap. The kernel prints
// it as hex longs, most significant first, with leading zero words
// dropped.
func hasKey(caps string, code uint16) bool {
	words := strings.Fields(caps)
	idx := int(code) / bits.UintSize
	if idx >= len(words) {
		return false
	}
	w, err := strconv.ParseUint(words[len(words)-1-idx], 16, bits.UintSize)
	if err != nil {
		return false
	}
	return w&(1<<(uint(code)%bits.UintSize)) != 0
}

func Diagnose(key Key) (string, error) {
	paths, err := candidates(key.Code)
	if err != nil {
		return "", err
	}
	readable := 0
	for _, p := range paths {
		if f, err := os.Open(p); err == nil {
			f.Close()
			readable++
		}
	}
	if readable == 0 {
		return "", fmt.Errorf("%d keyboard(s) can send %s but none is readable (run: sudo usermod -aG input $USER)", len(paths), key.Label)
	}
	return fmt.Sprintf("%d of %d keyboard(s) readable, hold %s", readable, len(paths), key.Label), nil
}
