package clipboard

import (
	"errors"
	"testing"
	"time"
)

type memBoard struct {
	text   string
	writes []string
}

func (m *memBoard) Read() (string, error) { return m.text, nil }
func (m *memBoard) Write(text string) error {
	m.text = text
	m.writes = append(m.writes, text)
	return nil
}

func newTestDeliverer(autoPaste bool, pasteErr error) (*Deliverer, *memBoard, *[]string) {
	board := &memBoard{text: "previous"}
	var events []string
	d := &Deliverer{
		board: board,
		paste: func() error {
			events = append(events, "paste:"+board.text)
			return pasteErr
		},
		sleep: func(d time.Duration) { events = append(events, "sleep:"+d.String()) },
		after: func(d time.Duration, f func()) {
			events = append(events, "after:"+d.String())
			f()
		},
		delay: 60 * time.Millisecond,
	}
	d.autoPaste.Store(autoPaste)
	return d, board, &events
}

func TestDeliverCopyOnly(t *testing.T) {
	d, board, events := newTestDeliverer(false, nil)
	pasted, err := d.Deliver("hello")
	if err != nil || pasted {
		t.Fatalf("Deliver = %v, %v", pasted, err)
	}
	if board.text != "hello" {
		t.Errorf("clipboard = %q", board.text)
	}
	if len(*events) != 0 {
		t.Errorf("unexpected events %v", *events)
	}
}

func TestDeliverPastesAndRestores(t *testing.T) {
	d, board, events := newTestDeliverer(true, nil)
	pasted, err := d.Deliver("hello")
	if err != nil || !pasted {
		t.Fatalf("Deliver = %v, %v", pasted, err)
	}
	want := []string{"sleep:60ms", "paste:hello", "after:600ms"}
	if len(*events) != len(want) {
		t.Fatalf("events = %v, want %v", *events, want)
	}
	for i := range want {
		if (*events)[i] != want[i] {
			t.Errorf("events[%d] = %q, want %q", i, (*events)[i], want[i])
		}
	}
	if board.text != "previous" {
		t.Errorf("clipboard not restored: %q", board.text)
	}
}

func TestDeliverPasteError(t *testing.T) {
	boom := errors.New("no uinput")
	d, board, _ := newTestDeliverer(true, boom)
	pasted, err := d.Deliver("hello")
	if !errors.Is(err, boom) || pasted {
		t.Fatalf("Deliver = %v, %v", pasted, err)
	}
	if board.text != "hello" {
		t.Errorf("text should stay on the clipboard after a failed paste, got %q", board.text)
	}
}

func TestDeliverEmptyIsNoop(t *testing.T) {
	d, board, _ := newTestDeliverer(true, nil)
	if pasted, err := d.Deliver(""); pasted || err != nil {
		t.Fatalf("Deliver = %v, %v", pasted, err)
	}
	if len(board.writes) != 0 {
		t.Errorf("writes = %v", board.writes)
	}
}

func TestPasteShortcut(t *testing.T) {
	for goos, want := range map[string]string{"darwin": "Cmd+V", "linux": "Ctrl+V", "windows": "Ctrl+V"} {
		if got := pasteLabel(goos); got != want {
			t.Errorf("pasteLabel(%q) = %q, want %q", goos, got, want)
		}
	}
}
