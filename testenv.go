package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"voicein/audio"
	"voicein/beep"
	"voicein/config"
	"voicein/history"
	"voicein/hotkey"
	"voicein/log"
	"voicein/transcriber"
)

// runTestMode replays wavPath as the microphone and drives the hold key
// from stdin commands: KEYDOWN, KEYUP, WAIT, WAIT_AUDIO_DONE, SLEEP <ms>
// and QUIT.
func runTestMode(cfg config.Config, registry *transcriber.Registry, store *history.Store, wavPath string, in io.Reader, out io.Writer) int {
	beep.Disable()

	fakeCtx, err := audio.NewFakeContext(wavPath, true)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading WAV: %v\n", err)
		return 1
	}

	a := newApp(cfg, fakeCtx, registry, store, newLineSink(out))
	hk := hotkey.NewScripted()

	ctx, cancel := context.WithCancel(context.Background())
	loopDone := make(chan struct{})
	go func() {
		defer close(loopDone)
		a.loop(ctx, hk.Keydown(), hk.Keyup())
	}()
	quit := func() int {
		cancel()
		<-loopDone
		return 0
	}

	scanner := bufio.NewScanner(in)
	for scanner.Scan() {
		cmd := strings.TrimSpace(scanner.Text())
		switch cmd {
		case "KEYDOWN":
			hk.Press()
		case "KEYUP":
			hk.Release()
		case "WAIT":
			<-a.finished
			// delivery runs after the outcome; wait for its output line too
			a.deliverW.Wait()
		case "WAIT_AUDIO_DONE":
			if c := waitCapture(fakeCtx, 2*time.Second); c != nil {
				<-c.AudioDone()
			}
		case "QUIT":
			return quit()
		default:
			if ms, ok := strings.CutPrefix(cmd, "SLEEP "); ok {
				if n, err := strconv.Atoi(ms); err == nil {
					time.Sleep(time.Duration(n) * time.Millisecond)
				}
			} else if cmd != "" {
				log.Warnf("test mode: unknown command %q", cmd)
			}
		}
	}
	return quit()
}

// waitCapture returns the capture opened by the last KEYDOWN, which the
// loop goroutine may not have reached yet.
func waitCapture(fc *audio.FakeContext, timeout time.Duration) *audio.FakeCapture {
	deadline := time.Now().Add(timeout)
	for {
		if c := fc.Last(); c != nil && c.Started() {
			return c
		}
		if time.Now().After(deadline) {
			return nil
		}
		time.Sleep(10 * time.Millisecond)
	}
}
