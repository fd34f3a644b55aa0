package main

import (
	"context"
	"errors"
	"fmt"
	"math"
	"path/filepath"
	"slices"
	"strings"
	"sync"
	"testing"
	"time"

	"voicein/audio"
	"voicein/beep"
	"voicein/clipboard"
	"voicein/config"
	"voicein/history"
	"voicein/recorder"
	"voicein/transcriber"
)

type recordingSink struct {
	mu     sync.Mutex
	events []string
}

func (s *recordingSink) add(format string, args ...any) {
	s.mu.Lock()
	s.events = append(s.events, fmt.Sprintf(format, args...))
	s.mu.Unlock()
}

func (s *recordingSink) has(event string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Contains(s.events, event)
}

func (s *recordingSink) RecordingStart()        { s.add("start") }
func (s *recordingSink) RecordingStop()         { s.add("stop") }
func (s *recordingSink) RecordingTick(float64)  {}
func (s *recordingSink) AudioLevel(float64)     {}
func (s *recordingSink) NoVoiceWarning()        { s.add("no_voice") }
func (s *recordingSink) VoiceCleared()          { s.add("voice") }
func (s *recordingSink) Processing(p string)    { s.add("processing %s", p) }
func (s *recordingSink) Error(msg string)       { s.add("error %s", msg) }
func (s *recordingSink) ModeLine(text string)   { s.add("mode %s", text) }
func (s *recordingSink) DeviceLine(text string) { s.add("device %s", text) }

func (s *recordingSink) Transcription(ev TranscriptionEvent) {
	if ev.NoSpeech {
		s.add("no_speech")
		return
	}
	s.add("text %s pasted=%v", ev.Text, ev.Pasted)
}

type memBoard struct {
	mu   sync.Mutex
	text string
}

func (m *memBoard) Read() (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.text, nil
}

func (m *memBoard) Write(text string) error {
	m.mu.Lock()
	m.text = text
	m.mu.Unlock()
	return nil
}

type testApp struct {
	*app
	audio   *audio.FakeContext
	backend *transcriber.Fake
	sink    *recordingSink
	board   *memBoard
	store   *history.Store
}

func newTestApp(t *testing.T, backend *transcriber.Fake, mutate func(*config.Config)) *testApp {
	t.Helper()
	beep.Disable()

	cfg := config.Default()
	cfg.Provider = string(transcriber.FakeProvider)
	cfg.Audio.AutoPaste = false
	cfg.Audio.PasteDelayMS = 0
	if mutate != nil {
		mutate(&cfg)
	}

	store, err := history.Open(context.Background(), filepath.Join(t.TempDir(), "history.db"), 10)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { store.Close() })

	reg := transcriber.NewRegistry()
	reg.Register(transcriber.FakeProvider, backend)

	ta := &testApp{
		audio:   audio.NewSilentFakeContext(),
		backend: backend,
		sink:    &recordingSink{},
		board:   &memBoard{},
		store:   store,
	}
	ta.app = newApp(cfg, ta.audio, reg, store, ta.sink)
	ta.delivery = clipboard.NewDelivererTo(ta.board, func() error { return nil }, cfg.Audio.AutoPaste, 0)
	t.Cleanup(ta.close)
	return ta
}

func (ta *testApp) feed(samples []float32) {
	ta.audio.Last().Feed(samples)
}

// finish waits for the job notification and the delivery goroutine.
func (ta *testApp) finish(t *testing.T) recorder.Outcome {
	t.Helper()
	deadline := time.After(2 * time.Second)
	for {
		select {
		case out := <-ta.finished:
			ta.deliverW.Wait()
			return out
		case n := <-ta.ctrl.Notifications():
			ta.notification(n)
		case <-deadline:
			t.Fatal("timed out waiting for dictation to finish")
			return recorder.Outcome{}
		}
	}
}

func (ta *testApp) items(t *testing.T) []history.Item {
	t.Helper()
	items, err := ta.store.List(context.Background(), 0)
	if err != nil {
		t.Fatal(err)
	}
	return items
}

func tone(n int, amp float64) []float32 {
	out := make([]float32, n)
	for i := range out {
		out[i] = float32(amp * math.Sin(2*math.Pi*440*float64(i)/16000))
	}
	return out
}

func TestDictationIsDeliveredAndRecorded(t *testing.T) {
	ta := newTestApp(t, transcriber.NewFake("the quick brown fox", nil), func(c *config.Config) {
		c.Dictionary = map[string]string{"fox": "dog"}
	})

	ta.startRecording()
	if !ta.ctrl.IsRecording() {
		t.Fatal("not recording after start")
	}
	ta.feed(tone(8000, 0.5))
	ta.stopRecording()

	out := ta.finish(t)
	if out.Kind != recorder.OutcomeTranscribed {
		t.Fatalf("outcome = %s, want transcribed (err %v)", out.Kind, out.Err)
	}
	if !ta.sink.has("processing fake") {
		t.Errorf("no processing event: %v", ta.sink.events)
	}
	if !ta.sink.has("text the quick brown dog pasted=false") {
		t.Errorf("events = %v", ta.sink.events)
	}
	if got, _ := ta.board.Read(); got != "the quick brown dog" {
		t.Errorf("clipboard = %q", got)
	}
	if ta.count != 1 {
		t.Errorf("count = %d, want 1", ta.count)
	}

	items := ta.items(t)
	if len(items) != 1 {
		t.Fatalf("history has %d items, want 1", len(items))
	}
	if items[0].Text != "the quick brown dog" || items[0].Provider != "fake" || items[0].AudioSeconds != 0.5 {
		t.Errorf("history item = %+v", items[0])
	}
}

func TestSilentDictationIsDiscarded(t *testing.T) {
	backend := transcriber.NewFake("ghost text", nil)
	ta := newTestApp(t, backend, nil)

	ta.startRecording()
	ta.feed(make([]float32, 16000))
	ta.stopRecording()

	out := ta.finish(t)
	if out.Kind != recorder.OutcomeSilent {
		t.Fatalf("outcome = %s, want silent", out.Kind)
	}
	if !ta.sink.has("no_speech") {
		t.Errorf("events = %v", ta.sink.events)
	}
	if calls := backend.Calls(); len(calls) != 0 {
		t.Errorf("backend called %d times for silence", len(calls))
	}
	if items := ta.items(t); len(items) != 0 {
		t.Errorf("history = %+v, want empty", items)
	}
}

func TestJobFailureIsReported(t *testing.T) {
	ta := newTestApp(t, transcriber.NewFake("", errors.New("quota exceeded")), nil)

	ta.startRecording()
	ta.feed(tone(8000, 0.5))
	ta.stopRecording()

	out := ta.finish(t)
	if out.Kind != recorder.OutcomeJobFailed {
		t.Fatalf("outcome = %s, want job failed", out.Kind)
	}
	found := false
	for _, ev := range ta.sink.events {
		if strings.HasPrefix(ev, "error ") && strings.Contains(ev, "quota exceeded") {
			found = true
		}
	}
	if !found {
		t.Errorf("no error event: %v", ta.sink.events)
	}

	items := ta.items(t)
	if len(items) != 1 || !strings.Contains(items[0].Error, "quota exceeded") || items[0].Text != "" {
		t.Errorf("history = %+v", items)
	}
	if ta.ctrl.State() != recorder.StateIdle {
		t.Errorf("state = %s, want idle", ta.ctrl.State())
	}
}

func TestStartWhileProcessingIsIgnored(t *testing.T) {
	backend := transcriber.NewFake("hello", nil)
	backend.Hold()
	ta := newTestApp(t, backend, nil)

	ta.startRecording()
	ta.feed(tone(8000, 0.5))
	ta.stopRecording()
	if !ta.ctrl.IsProcessing() {
		t.Fatalf("state = %s, want processing", ta.ctrl.State())
	}

	ta.startRecording()
	if ta.ctrl.IsRecording() {
		t.Fatal("second start began a recording while processing")
	}
	select {
	case out := <-ta.finished:
		t.Fatalf("ignored start completed a dictation: %s", out.Kind)
	default:
	}

	backend.Release()
	if out := ta.finish(t); out.Kind != recorder.OutcomeTranscribed {
		t.Errorf("outcome = %s, want transcribed", out.Kind)
	}
}

func TestStopWithoutRecordingIsNoop(t *testing.T) {
	ta := newTestApp(t, transcriber.NewFake("hello", nil), nil)
	ta.stopRecording()
	if ta.sink.has("stop") {
		t.Error("stop event without a recording")
	}
}

func TestGainActionIsClamped(t *testing.T) {
	ta := newTestApp(t, transcriber.NewFake("hello", nil), func(c *config.Config) {
		c.Audio.InputGainDB = 27
	})

	ta.apply(actionGainUp)
	ta.apply(actionGainUp)
	if got := ta.config().Audio.InputGainDB; got != 30 {
		t.Errorf("gain = %v, want 30", got)
	}
	ta.apply(actionGainDown)
	if got := ta.config().Audio.InputGainDB; got != 27 {
		t.Errorf("gain = %v, want 27", got)
	}
	if !ta.sink.has("mode [fake (ja) | gain +27 dB | copy]") {
		t.Errorf("events = %v", ta.sink.events)
	}
}

func TestToggleAutoPaste(t *testing.T) {
	ta := newTestApp(t, transcriber.NewFake("hello", nil), nil)

	ta.apply(actionToggleAutoPaste)
	if !ta.delivery.AutoPaste() || !ta.config().Audio.AutoPaste {
		t.Fatal("auto paste not enabled")
	}
	ta.apply(actionToggleAutoPaste)
	if ta.delivery.AutoPaste() || ta.config().Audio.AutoPaste {
		t.Fatal("auto paste not disabled")
	}
}

func TestCycleProviderSkipsFake(t *testing.T) {
	ta := newTestApp(t, transcriber.NewFake("hello", nil), nil)
	ta.registry.Register(transcriber.Provider("gemini"), transcriber.NewFake("g", nil))
	ta.registry.Register(transcriber.Provider("groq"), transcriber.NewFake("q", nil))

	var got []string
	for range 3 {
		ta.apply(actionCycleProvider)
		got = append(got, ta.config().Provider)
	}
	want := []string{"gemini", "groq", "gemini"}
	if !slices.Equal(got, want) {
		t.Errorf("providers = %v, want %v", got, want)
	}
}

func TestSendDropsWhenFull(t *testing.T) {
	ta := newTestApp(t, transcriber.NewFake("hello", nil), nil)
	for range cap(ta.actions) + 4 {
		ta.send(actionGainUp)
	}
	if len(ta.actions) != cap(ta.actions) {
		t.Errorf("queued %d actions, want %d", len(ta.actions), cap(ta.actions))
	}
}

func TestDeviceLineText(t *testing.T) {
	tests := []struct {
		name string
		want string
	}{
		{"", "mic: system default"},
		{"USB Mic", "mic: USB Mic"},
		{"AirPods Pro", "mic: AirPods Pro (BT!)"},
	}
	for _, tt := range tests {
		if got := deviceLineText(tt.name); got != tt.want {
			t.Errorf("deviceLineText(%q) = %q, want %q", tt.name, got, tt.want)
		}
	}
}

func TestLoopStopsOnCancel(t *testing.T) {
	ta := newTestApp(t, transcriber.NewFake("hello", nil), nil)
	start := make(chan struct{}, 1)
	stop := make(chan struct{}, 1)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		ta.loop(ctx, start, stop)
	}()

	start <- struct{}{}
	deadline := time.Now().Add(2 * time.Second)
	for ta.audio.Last() == nil || !ta.audio.Last().Started() {
		if time.Now().After(deadline) {
			t.Fatal("recording never started")
		}
		time.Sleep(10 * time.Millisecond)
	}
	cancel()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("loop did not return after cancel")
	}
	if !ta.audio.Last().Closed() {
		t.Error("capture left open after shutdown")
	}
}
