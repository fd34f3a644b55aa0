package hotkey

import (
	"strings"
	"testing"
	"time"
)

const testLongPress = 60 * time.Millisecond

// runScript drives a Hybrid with a space separated list of steps:
//
//	down / up      press or release the key
//	hold           sleep past the long-press threshold
//	start / stop   expect that signal within a second
//	idle           expect no stop for a short while
//	ptt / toggle   check IsToggle
func runScript(t *testing.T, script string) {
	t.Helper()
	hk := NewScripted()
	hy := NewHybrid(hk, testLongPress)
	defer hy.Close()

	expect := func(ch <-chan struct{}, what string) {
		t.Helper()
		select {
		case <-ch:
		case <-time.After(time.Second):
			t.Fatalf("%q: timed out waiting for %s", script, what)
		}
	}
	for i, step := range strings.Fields(script) {
		switch step {
		case "down":
			hk.Press()
		case "up":
			hk.Release()
		case "hold":
			time.Sleep(testLongPress + 20*time.Millisecond)
		case "start":
			expect(hy.Start(), "start")
		case "stop":
			expect(hy.StopChan(), "stop")
		case "idle":
			select {
			case <-hy.StopChan():
				t.Fatalf("%q step %d: stopped while it should keep recording", script, i)
			case <-time.After(40 * time.Millisecond):
			}
		case "ptt", "toggle":
			if got := hy.IsToggle(); got != (step == "toggle") {
				t.Fatalf("%q step %d: IsToggle = %v", script, i, got)
			}
		default:
			t.Fatalf("bad step %q", step)
		}
	}
}

func TestHybrid(t *testing.T) {
	tests := []struct {
		name   string
		script string
	}{
		{"hold to talk", "down start hold ptt up stop"},
		{"tap toggles", "down start up idle toggle down up stop"},
		{"toggle ignores hold on the second press", "down start up idle down hold up stop"},
		{"mixed cycles", "down start hold up stop down start up idle down up stop down start hold ptt up stop"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) { runScript(t, tt.script) })
	}
}

func TestHybridCloseStopsWaiting(t *testing.T) {
	hk := NewScripted()
	hy := NewHybrid(hk, testLongPress)
	hk.Press()
	<-hy.Start()
	hy.Close()

	select {
	case <-hy.StopChan():
		t.Fatal("closed hybrid should not emit stop")
	case <-time.After(testLongPress * 2):
	}
}
