package doctor

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"voicein/audio"
	"voicein/clipboard"
	"voicein/config"
	"voicein/hotkey"
	"voicein/recorder"
	"voicein/transcriber"
	"voicein/vad"
)

const recordFor = 3 * time.Second

type Options struct {
	Config config.Config
	// WAVFile replays a recording instead of opening the microphone and
	// makes the run non-interactive.
	WAVFile string
	In      io.Reader
	Out     io.Writer

	newContext func() (audio.Context, error)
	registry   *transcriber.Registry
}

type doctor struct {
	opts        Options
	in          *bufio.Reader
	out         io.Writer
	interactive bool
}

// Run executes the diagnostic checks and returns an exit code (0=all pass, 1=any fail).
func Run(opts Options) int {
	if opts.In == nil {
		opts.In = os.Stdin
	}
	if opts.Out == nil {
		opts.Out = os.Stdout
	}
	if opts.newContext == nil {
		if opts.WAVFile != "" {
			opts.newContext = func() (audio.Context, error) { return audio.NewFakeContext(opts.WAVFile, false) }
		} else {
			opts.newContext = audio.NewContext
		}
	}
	if opts.registry == nil {
		opts.registry = opts.Config.Registry()
	}
	d := &doctor{opts: opts, in: bufio.NewReader(opts.In), out: opts.Out, interactive: opts.WAVFile == ""}
	if d.interactive {
		resetTerminal()
		setupInterruptHandler()
	}

	d.printf("voicein doctor - system diagnostics\n")
	d.printf("===================================\n")

	allPass := true
	if d.interactive && !d.checkHotkey() {
		allPass = false
	}
	path, ok := d.checkMicrophone()
	if !ok {
		allPass = false
	}
	if path != "" {
		if !d.checkTranscription(path) {
			allPass = false
		}
		os.Remove(path)
	}
	if d.interactive && allPass && !d.checkClipboard() {
		allPass = false
	}

	d.printf("\n")
	if allPass {
		d.printf("All checks passed!\n")
		return 0
	}
	d.printf("Some checks failed. See details above.\n")
	return 1
}

func (d *doctor) printf(format string, args ...any) {
	fmt.Fprintf(d.out, format, args...)
}

func (d *doctor) step(title string) {
	d.printf("\n== %s\n", title)
}

func (d *doctor) ask(prompt string) string {
	d.printf("%s", prompt)
	line, _ := d.in.ReadString('\n')
	return strings.TrimSpace(strings.ToLower(line))
}

func (d *doctor) checkHotkey() bool {
	d.step("Hold key")
	key, err := hotkey.ParseKey(d.opts.Config.Audio.HoldKey)
	if err != nil {
		d.printf("  FAIL: %v\n", err)
		return false
	}
	msg, err := hotkey.Diagnose(key)
	if err != nil {
		d.printf("  FAIL: %v\n", err)
		return false
	}
	d.printf("  %s\n", msg)
	d.printf("Press and release %s...\n", key.Label)

	hk := hotkey.New(key)
	if err := hk.Register(); err != nil {
		d.printf("  FAIL: could not register hotkey: %v\n", err)
		return false
	}
	defer hk.Unregister()

	select {
	case <-hk.Keydown():
		d.printf("  PASS: hold key detected\n")
		select {
		case <-hk.Keyup():
		case <-time.After(5 * time.Second):
		}
		// grabbing keys can leave the terminal in raw mode
		resetTerminal()
		return true
	case <-time.After(10 * time.Second):
		d.printf("  FAIL: timeout waiting for hold key\n")
		return false
	}
}

// checkMicrophone lists devices, negotiates a stream and records through a
// real session. It returns the kept WAV path when audio was captured.
func (d *doctor) checkMicrophone() (string, bool) {
	d.step("Microphone")
	ctx, err := d.opts.newContext()
	if err != nil {
		d.printf("  FAIL: cannot connect to audio: %v\n", err)
		return "", false
	}
	defer ctx.Close()

	devices := audio.ListInputDevices(ctx)
	if len(devices) == 0 {
		d.printf("  no capture devices listed, trying the system default\n")
	}
	for _, dev := range devices {
		bt := ""
		if audio.IsBluetooth(dev.Name) {
			bt = " (bluetooth, expect low quality)"
		}
		d.printf("  - %s [%d Hz]%s\n", dev.Name, dev.NativeRate, bt)
	}

	cfg := d.opts.Config
	var dev *audio.DeviceInfo
	if cfg.Audio.InputDevice != "" {
		dev = audio.FindByName(ctx, cfg.Audio.InputDevice)
		if dev == nil {
			d.printf("  WARN: configured device %q not found, using default\n", cfg.Audio.InputDevice)
		}
	}
	native := audio.NativeRate(ctx, dev)
	preferred := uint32(cfg.Audio.PreferredRate)
	d.printf("  candidate rates: %v\n", audio.CandidateRates(native, preferred))

	capture, rate, err := audio.OpenStream(ctx, dev, 1, preferred)
	if err != nil {
		d.printf("  FAIL: %v\n", err)
		return "", false
	}
	defer capture.Close()
	d.printf("  PASS: stream opened at %d Hz\n", rate)

	gain := recorder.GainFromDB(cfg.Audio.InputGainDB)
	sess, err := recorder.NewSession(recorder.SessionConfig{
		Device:     deviceLabel(dev),
		SampleRate: rate,
		MaxFrames:  uint64(recordFor.Seconds() * float64(rate)),
		Gain:       func() float64 { return gain },
	})
	if err != nil {
		d.printf("  FAIL: %v\n", err)
		return "", false
	}

	if d.interactive {
		d.ask("Press Enter and speak for 3 seconds...")
	}
	capture.SetCallback(sess.Write)
	if err := capture.Start(); err != nil {
		sess.Remove()
		d.printf("  FAIL: start capture: %v\n", err)
		return "", false
	}
	d.wait(capture)
	capture.Stop()
	capture.ClearCallback()
	if err := sess.Close(); err != nil {
		sess.Remove()
		d.printf("  FAIL: finalize recording: %v\n", err)
		return "", false
	}

	stats := sess.Stats()
	verdict := vad.Classify(stats.VAD(), cfg.Thresholds())
	d.printf("  recorded %.2fs, peak %.3f, avg rms %.4f: %s\n", stats.DurationS, stats.Peak, stats.AvgRMS, verdict.Reason)
	if stats.Frames == 0 {
		sess.Remove()
		d.printf("  FAIL: no audio captured\n")
		return "", false
	}
	if verdict.Silent {
		d.printf("  WARN: recording classified as silence, check the input level\n")
	} else {
		d.printf("  PASS: speech detected\n")
	}
	return sess.Path(), true
}

// wait blocks for the recording window, or until a replayed file runs out.
func (d *doctor) wait(capture audio.CaptureDevice) {
	if fc, ok := capture.(*audio.FakeCapture); ok {
		<-fc.AudioDone()
		return
	}
	done := time.After(recordFor)
	ticker := time.NewTicker(500 * time.Millisecond)
	defer ticker.Stop()
	d.printf("  Recording")
	for {
		select {
		case <-done:
			d.printf(" done\n")
			return
		case <-ticker.C:
			d.printf(".")
		}
	}
}

func (d *doctor) checkTranscription(path string) bool {
	cfg := d.opts.Config
	provider := cfg.TranscriberProvider()
	d.step("Transcription (" + string(provider) + ")")

	backend, err := d.opts.registry.Get(provider)
	if err != nil {
		d.printf("  FAIL: %v\n", err)
		return false
	}

	ctx := context.Background()
	if t := cfg.TranscribeTimeout(); t > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, t)
		defer cancel()
	}
	start := time.Now()
	text, err := backend.Transcribe(ctx, path, cfg.RecorderSettings().Prompts)
	if errors.Is(err, transcriber.ErrMissingAPIKey) {
		d.printf("  SKIP: %v\n", err)
		return true
	}
	if err != nil {
		d.printf("  FAIL: %v\n", err)
		return false
	}
	text = cfg.ApplyDictionary(text)
	if text == "" {
		text = "(no speech detected)"
	}
	d.printf("  %s in %dms: %s\n", backend.Name(), time.Since(start).Milliseconds(), text)
	if !d.interactive {
		d.printf("  PASS: transcription returned\n")
		return true
	}
	if a := d.ask("Is this correct? [y/n]: "); a == "y" || a == "yes" {
		d.printf("  PASS: transcription verified by user\n")
		return true
	}
	d.printf("  FAIL: transcription not confirmed\n")
	return false
}

func (d *doctor) checkClipboard() bool {
	d.step("Clipboard and paste")
	msg, err := clipboard.Verify()
	if err != nil {
		d.printf("  FAIL: %v\n", err)
		d.printf("  Fix with: sudo chmod 660 /dev/uinput && sudo chgrp input /dev/uinput\n")
		return false
	}
	d.printf("  %s\n", msg)

	d.printf("Focus on a text editor window...\n")
	for i := 5; i > 0; i-- {
		d.printf("  %d...\n", i)
		time.Sleep(time.Second)
	}

	sentinel := "voicein-preserve-check"
	if err := clipboard.System.Write(sentinel); err != nil {
		d.printf("  FAIL: clipboard write: %v\n", err)
		return false
	}
	delivery := clipboard.NewDeliverer(true, time.Duration(d.opts.Config.Audio.PasteDelayMS)*time.Millisecond)
	if _, err := delivery.Deliver("voicein-doctor-test"); err != nil {
		d.printf("  FAIL: paste failed: %v\n", err)
		return false
	}

	resetTerminal()
	if a := d.ask("\nDid the text \"voicein-doctor-test\" appear? [y/n]: "); a != "y" && a != "yes" {
		d.printf("  FAIL: clipboard/paste not confirmed\n")
		return false
	}
	d.printf("  PASS: clipboard and paste verified by user\n")

	restored, err := clipboard.System.Read()
	if err != nil {
		d.printf("  FAIL: could not read clipboard after restore: %v\n", err)
		return false
	}
	if restored != sentinel {
		d.printf("  FAIL: clipboard not preserved (got %q, want %q)\n", restored, sentinel)
		return false
	}
	d.printf("  PASS: clipboard preservation verified\n")
	return true
}

func deviceLabel(dev *audio.DeviceInfo) string {
	if dev == nil {
		return "system default"
	}
	return dev.Name
}
