package audio

import (
	"bytes"
	"errors"
	"io"
	"strings"
	"testing"
)

var pickerDevices = []DeviceInfo{
	{ID: "a", Name: "Built-in Microphone", NativeRate: 48000},
	{ID: "b", Name: "USB Mic"},
	{ID: "c", Name: "AirPods Pro", NativeRate: 16000},
}

// keyReader returns one key sequence per Read, like a raw tty.
type keyReader struct{ keys []string }

func (k *keyReader) Read(p []byte) (int, error) {
	if len(k.keys) == 0 {
		return 0, io.EOF
	}
	n := copy(p, k.keys[0])
	k.keys = k.keys[1:]
	return n, nil
}

func TestPickerStartsOnCurrent(t *testing.T) {
	if c := newPicker(pickerDevices, "USB Mic").cursor; c != 2 {
		t.Errorf("cursor = %d, want 2", c)
	}
	if c := newPicker(pickerDevices, "gone").cursor; c != 0 {
		t.Errorf("unknown device: cursor = %d, want 0", c)
	}
}

func TestRunPicker(t *testing.T) {
	tests := []struct {
		name    string
		current string
		keys    []string
		want    string
		wantErr error
	}{
		{"enter keeps default", "", []string{"\r"}, "", nil},
		{"arrow down", "", []string{"\x1b[B", "\x1b[B", "\r"}, "USB Mic", nil},
		{"vim keys clamp at ends", "", []string{"k", "j", "j", "j", "j", "j", "\r"}, "AirPods Pro", nil},
		{"up from current", "AirPods Pro", []string{"\x1b[A", "\n"}, "USB Mic", nil},
		{"back to default", "USB Mic", []string{"k", "k", "\r"}, "", nil},
		{"ctrl-c", "", []string{"j", "\x03"}, "", ErrSelectionCancelled},
		{"q", "", []string{"q"}, "", ErrSelectionCancelled},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var out bytes.Buffer
			dev, err := runPicker(newPicker(pickerDevices, tt.current), &keyReader{keys: tt.keys}, &out)
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("err = %v, want %v", err, tt.wantErr)
			}
			got := ""
			if dev != nil {
				got = dev.Name
			}
			if got != tt.want {
				t.Errorf("picked %q, want %q", got, tt.want)
			}
		})
	}
}

func TestRunPickerInputClosed(t *testing.T) {
	_, err := runPicker(newPicker(pickerDevices, ""), &keyReader{}, io.Discard)
	if err == nil || errors.Is(err, ErrSelectionCancelled) {
		t.Errorf("err = %v, want a read error", err)
	}
}

func TestPickerRender(t *testing.T) {
	var out bytes.Buffer
	p := newPicker(pickerDevices, "Built-in Microphone")
	p.render(&out)
	s := out.String()
	if got := strings.Count(s, "\r\n"); got != p.height() {
		t.Errorf("render printed %d lines, height() = %d", got, p.height())
	}
	for _, want := range []string{defaultEntry, "▶ Built-in Microphone", "(48000 Hz)", "bluetooth"} {
		if !strings.Contains(s, want) {
			t.Errorf("render missing %q:\n%q", want, s)
		}
	}
}
