package audio

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"golang.org/x/term"
)

var ErrSelectionCancelled = errors.New("device selection cancelled")

const defaultEntry = "System default"

type pickResult int

const (
	pickMoved pickResult = iota
	pickChosen
	pickCancelled
)

// picker is the cursor state behind SelectDevice, kept apart from the
// terminal so key handling can be exercised without a tty.
type picker struct {
	items  []DeviceInfo
	cursor int
}

// newPicker puts the system default first and the cursor on current.
func newPicker(listed []DeviceInfo, current string) *picker {
	p := &picker{items: append([]DeviceInfo{{Name: defaultEntry}}, listed...)}
	for i, d := range p.items[1:] {
		if d.Name == current {
			p.cursor = i + 1
		}
	}
	return p
}

func (p *picker) move(delta int) {
	p.cursor = max(0, min(len(p.items)-1, p.cursor+delta))
}

// key handles one read from the terminal in raw mode.
func (p *picker) key(b []byte) pickResult {
	switch {
	case len(b) == 1 && (b[0] == '\r' || b[0] == '\n'):
		return pickChosen
	case len(b) == 1 && (b[0] == 3 || b[0] == 'q'):
		return pickCancelled
	case len(b) == 1 && b[0] == 'j', string(b) == "\x1b[B":
		p.move(1)
	case len(b) == 1 && b[0] == 'k', string(b) == "\x1b[A":
		p.move(-1)
	}
	return pickMoved
}

// choice is nil for the system default.
func (p *picker) choice() *DeviceInfo {
	if p.cursor == 0 {
		return nil
	}
	d := p.items[p.cursor]
	return &d
}

func (p *picker) render(w io.Writer) {
	var b strings.Builder
	b.WriteString("\r\x1b[JSelect input device (↑/↓ or j/k, Enter to confirm, q to cancel):\r\n\r\n")
	for i, d := range p.items {
		tag := ""
		if d.NativeRate > 0 {
			tag = fmt.Sprintf(" \x1b[2m(%d Hz)\x1b[0m", d.NativeRate)
		}
		if IsBluetooth(d.Name) {
			tag += " \x1b[33m[bluetooth, lower quality]\x1b[0m"
		}
		if i == p.cursor {
			fmt.Fprintf(&b, "  \x1b[1;36m▶ %s%s\x1b[0m\r\n", d.Name, tag)
		} else {
			fmt.Fprintf(&b, "    %s%s\r\n", d.Name, tag)
		}
	}
	io.WriteString(w, b.String())
}

// height is the number of lines render prints.
func (p *picker) height() int { return len(p.items) + 2 }

// SelectDevice shows an interactive picker on the terminal with the
// cursor on current. Picking the system default returns nil, as does an
// empty catalog, which skips the prompt.
func SelectDevice(ctx Context, current string) (*DeviceInfo, error) {
	listed := ListInputDevices(ctx)
	if len(listed) == 0 {
		return nil, nil
	}
	fd := int(os.Stdin.Fd())
	saved, err := term.MakeRaw(fd)
	if err != nil {
		return nil, fmt.Errorf("raw terminal: %w", err)
	}
	defer term.Restore(fd, saved)
	return runPicker(newPicker(listed, current), os.Stdin, os.Stdout)
}

func runPicker(p *picker, in io.Reader, out io.Writer) (*DeviceInfo, error) {
	p.render(out)
	buf := make([]byte, 8)
	for {
		n, err := in.Read(buf)
		if err != nil {
			return nil, fmt.Errorf("reading input: %w", err)
		}
		switch p.key(buf[:n]) {
		case pickChosen:
			io.WriteString(out, "\r\n")
			return p.choice(), nil
		case pickCancelled:
			io.WriteString(out, "\r\n")
			return nil, ErrSelectionCancelled
		}
		fmt.Fprintf(out, "\x1b[%dA", p.height())
		p.render(out)
	}
}
