//go:build linux

package hotkey

import (
	"encoding/binary"
	"errors"
	"os"
	"path/filepath"
	"testing"
)

func TestDecodeEvent(t *testing.T) {
	b := make([]byte, eventSize)
	binary.LittleEndian.PutUint16(b[16:], evKey)
	binary.LittleEndian.PutUint16(b[18:], codeLAlt)
	binary.LittleEndian.PutUint32(b[20:], 1)
	ev := decodeEvent(b)
	if ev != (inputEvent{Type: evKey, Code: codeLAlt, Value: 1}) {
		t.Errorf("decodeEvent = %+v", ev)
	}
}

func TestHasKey(t *testing.T) {
	// A typical full keyboard: low word has codes 1..63 set.
	full := "120013 803078f800d001 feffffdfffefffff fffffffffffffffe"
	if !hasKey(full, codeLAlt) || !hasKey(full, codeF9) {
		t.Error("full keyboard should report alt and F9")
	}
	if !hasKey(full, codeRCtrl) {
		t.Error("full keyboard should report right ctrl")
	}
	// Power button: only KEY_POWER (116).
	power := "10000000000000 0"
	if hasKey(power, codeLAlt) {
		t.Error("power button should not report alt")
	}
	if hasKey("", codeLAlt) || hasKey("zz", codeLAlt) {
		t.Error("empty or malformed bitmap should report nothing")
	}
}

func TestCandidatesFiltersByCapability(t *testing.T) {
	dev := t.TempDir()
	sys := t.TempDir()
	oldIn, oldSys := inputDir, sysDir
	inputDir, sysDir = dev, sys
	t.Cleanup(func() { inputDir, sysDir = oldIn, oldSys })

	add := func(name, caps string) {
		if err := os.WriteFile(filepath.Join(dev, name), nil, 0o600); err != nil {
			t.Fatal(err)
		}
		d := filepath.Join(sys, name, "device", "capabilities")
		if err := os.MkdirAll(d, 0o755); err != nil {
			t.Fatal(err)
		}
		if err := os.WriteFile(filepath.Join(d, "key"), []byte(caps+"\n"), 0o644); err != nil {
			t.Fatal(err)
		}
	}
	add("event0", "fffffffffffffffe")
	add("event1", "10000000000000 0")
	add("mouse0", "fffffffffffffffe")

	got, err := candidates(codeLAlt)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 1 || got[0] != filepath.Join(dev, "event0") {
		t.Errorf("candidates = %v", got)
	}

	if _, err := candidates(codeRCtrl); !errors.Is(err, errNoKeyboard) {
		t.Errorf("right ctrl on a one-word bitmap: err = %v", err)
	}
}

func TestRegisterReadsEvents(t *testing.T) {
	dev := t.TempDir()
	sys := t.TempDir()
	oldIn, oldSys := inputDir, sysDir
	inputDir, sysDir = dev, sys
	t.Cleanup(func() { inputDir, sysDir = oldIn, oldSys })

	var stream []byte
	for _, v := range []int32{1, 0} {
		b := make([]byte, eventSize)
		binary.LittleEndian.PutUint16(b[16:], evKey)
		binary.LittleEndian.PutUint16(b[18:], codeF8)
		binary.LittleEndian.PutUint32(b[20:], uint32(v))
		stream = append(stream, b...)
	}
	if err := os.WriteFile(filepath.Join(dev, "event3"), stream, 0o600); err != nil {
		t.Fatal(err)
	}
	d := filepath.Join(sys, "event3", "device", "capabilities")
	os.MkdirAll(d, 0o755)
	os.WriteFile(filepath.Join(d, "key"), []byte("fffffffffffffffe"), 0o644)

	k, _ := ParseKey("f8")
	h := New(k)
	if err := h.Register(); err != nil {
		t.Fatal(err)
	}
	defer h.Unregister()
	<-h.Keydown()
	<-h.Keyup()
}
