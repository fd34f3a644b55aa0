package main

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"voicein/audio"
	"voicein/beep"
	"voicein/clipboard"
	"voicein/config"
	"voicein/history"
	"voicein/log"
	"voicein/recorder"
	"voicein/transcriber"
)

type action int

const (
	actionGainUp action = iota
	actionGainDown
	actionToggleAutoPaste
	actionCycleProvider
)

const gainStepDB = 3

// app is the owner of the recording controller. Everything except the
// config accessors runs on the goroutine that calls loop.
type app struct {
	cfgMu sync.RWMutex
	cfg   config.Config

	audio    audio.Context
	registry *transcriber.Registry
	ctrl     *recorder.Controller
	delivery *clipboard.Deliverer
	history  *history.Store
	sink     EventSink
	isToggle func() bool

	actions  chan action
	finished chan recorder.Outcome // one value per completed dictation, dropped if nobody listens

	monitor  *silenceMonitor
	count    int
	deliverW sync.WaitGroup
}

func newApp(cfg config.Config, ctx audio.Context, registry *transcriber.Registry, store *history.Store, sink EventSink) *app {
	a := &app{
		cfg:      cfg,
		audio:    ctx,
		registry: registry,
		history:  store,
		sink:     sink,
		isToggle: func() bool { return false },
		delivery: clipboard.NewDeliverer(cfg.Audio.AutoPaste, time.Duration(cfg.Audio.PasteDelayMS)*time.Millisecond),
		actions:  make(chan action, 8),
		finished: make(chan recorder.Outcome, 1),
	}
	dispatcher := transcriber.NewDispatcher(cfg.TranscribeTimeout())
	a.ctrl = recorder.NewController(ctx, registry, dispatcher, a.settings)
	return a
}

func (a *app) config() config.Config {
	a.cfgMu.RLock()
	defer a.cfgMu.RUnlock()
	return a.cfg
}

func (a *app) updateConfig(fn func(*config.Config)) config.Config {
	a.cfgMu.Lock()
	defer a.cfgMu.Unlock()
	fn(&a.cfg)
	return a.cfg
}

func (a *app) settings() recorder.Settings {
	return a.config().RecorderSettings()
}

// send queues a user action from the UI goroutine.
func (a *app) send(act action) {
	select {
	case a.actions <- act:
	default:
	}
}

func (a *app) modeLine() string {
	cfg := a.config()
	paste := "copy"
	if a.delivery.AutoPaste() {
		paste = "paste"
	}
	return fmt.Sprintf("[%s (%s) | gain %+.0f dB | %s]", cfg.Provider, cfg.Language, cfg.Audio.InputGainDB, paste)
}

func deviceLineText(name string) string {
	if name == "" {
		return "mic: system default"
	}
	if audio.IsBluetooth(name) {
		return "mic: " + name + " (BT!)"
	}
	return "mic: " + name
}

// loop runs until ctx is cancelled. start and stop come from the hold key.
func (a *app) loop(ctx context.Context, start, stop <-chan struct{}) {
	a.sink.ModeLine(a.modeLine())
	a.sink.DeviceLine(deviceLineText(a.config().Audio.InputDevice))

	ticker := time.NewTicker(tickInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			a.close()
			return
		case <-start:
			a.startRecording()
		case <-stop:
			a.stopRecording()
		case n := <-a.ctrl.Notifications():
			a.notification(n)
		case act := <-a.actions:
			a.apply(act)
		case <-ticker.C:
			a.tick()
		}
	}
}

func (a *app) close() {
	a.ctrl.Close()
	a.deliverW.Wait()
	log.SessionEnd(a.count)
}

func (a *app) startRecording() {
	err := a.ctrl.Start()
	if errors.Is(err, recorder.ErrBusy) {
		log.Info("hotkey ignored: " + a.ctrl.State().String())
		return
	}
	if err != nil {
		log.Errorf("recording error: %v", err)
		a.sink.Error(err.Error())
		beep.PlayError()
		a.complete(recorder.Outcome{Kind: recorder.OutcomeFailed, Err: err})
		return
	}
	log.Info("recording_start")
	a.monitor = newSilenceMonitor(a.config().Thresholds(), a.isToggle)
	a.sink.RecordingStart()
	beep.PlayStart()
}

func (a *app) stopRecording() {
	if !a.ctrl.IsRecording() {
		return
	}
	log.Info("recording_stop")
	beep.PlayEnd()
	a.handle(a.ctrl.Stop())
}

func (a *app) notification(n recorder.Notification) {
	out := a.ctrl.Handle(n)
	if n.Kind == recorder.AutoStop && out.Kind != recorder.OutcomeNone {
		beep.PlayEnd()
	}
	a.handle(out)
}

func (a *app) tick() {
	if !a.ctrl.IsRecording() {
		return
	}
	peak, rms := a.ctrl.Level()
	a.sink.AudioLevel(rms)
	a.sink.RecordingTick(a.ctrl.Stats().DurationS)

	switch a.monitor.Observe(peak, rms) {
	case SilenceWarn:
		log.Info("no_voice_warning")
		a.sink.NoVoiceWarning()
		beep.PlayError()
	case SilenceWarnClear:
		a.sink.VoiceCleared()
	case SilenceRepeat:
		log.Info("silence_during_warning")
		a.sink.NoVoiceWarning()
		beep.PlayError()
	case SilenceAutoClose:
		log.Info("silence_auto_close")
		a.stopRecording()
	}
}

func (a *app) apply(act action) {
	switch act {
	case actionGainUp, actionGainDown:
		step := float64(gainStepDB)
		if act == actionGainDown {
			step = -step
		}
		cfg := a.updateConfig(func(c *config.Config) {
			c.Audio.InputGainDB = min(max(c.Audio.InputGainDB+step, -30), 30)
		})
		// applies to the next buffer, also mid-recording
		a.ctrl.SetGainDB(cfg.Audio.InputGainDB)
	case actionToggleAutoPaste:
		on := !a.delivery.AutoPaste()
		a.delivery.SetAutoPaste(on)
		a.updateConfig(func(c *config.Config) { c.Audio.AutoPaste = on })
	case actionCycleProvider:
		var providers []transcriber.Provider
		for _, p := range a.registry.Providers() {
			if p != transcriber.FakeProvider {
				providers = append(providers, p)
			}
		}
		if len(providers) == 0 {
			return
		}
		cfg := a.config()
		next := providers[0]
		for i, p := range providers {
			if string(p) == cfg.Provider {
				next = providers[(i+1)%len(providers)]
			}
		}
		// the running job keeps its provider; the snapshot is per recording
		a.updateConfig(func(c *config.Config) { c.Provider = string(next) })
		log.Info("provider_switch: " + string(next))
	}
	a.sink.ModeLine(a.modeLine())
}

// handle reacts to a controller outcome. Every dictation ends in exactly
// one of silent, failed, transcribed or job failed.
func (a *app) handle(out recorder.Outcome) {
	switch out.Kind {
	case recorder.OutcomeNone:
		return

	case recorder.OutcomeSilent:
		a.sink.RecordingStop()
		log.Info("no_speech")
		a.sink.Transcription(TranscriptionEvent{NoSpeech: true, Metrics: recordingMetrics(out.Stats)})
		a.complete(out)

	case recorder.OutcomeFailed:
		a.sink.RecordingStop()
		a.sink.Error(out.Err.Error())
		beep.PlayError()
		a.complete(out)

	case recorder.OutcomeSubmitted:
		a.sink.RecordingStop()
		a.sink.Processing(string(out.Job.Provider))

	case recorder.OutcomeTranscribed:
		a.transcribed(out)
		a.complete(out)

	case recorder.OutcomeJobFailed:
		log.Errorf("transcription error: %v", out.Err)
		a.sink.Error(out.Err.Error())
		beep.PlayError()
		if out.Job != nil {
			a.record(history.Item{
				ID:           out.Job.ID,
				Error:        out.Err.Error(),
				Provider:     string(out.Job.Provider),
				AudioSeconds: out.Job.AudioSeconds,
				Latency:      out.Result.Elapsed,
			})
		}
		a.complete(out)
	}
}

func (a *app) transcribed(out recorder.Outcome) {
	r := out.Result
	text := a.config().ApplyDictionary(r.Text)
	metrics := []string{
		fmt.Sprintf("provider  %s", r.Provider),
		fmt.Sprintf("audio     %.1fs", out.Job.AudioSeconds),
		fmt.Sprintf("latency   %dms", r.Elapsed.Milliseconds()),
	}
	if text == "" {
		log.Info("no_speech")
		a.sink.Transcription(TranscriptionEvent{NoSpeech: true, Metrics: metrics})
		return
	}

	a.count++
	log.TranscriptionText(text)
	a.record(history.Item{
		ID:           r.ID,
		Text:         text,
		Provider:     string(r.Provider),
		AudioSeconds: out.Job.AudioSeconds,
		Latency:      r.Elapsed,
	})

	// pasting sleeps for the configured delay; keep the loop responsive
	a.deliverW.Add(1)
	go func() {
		defer a.deliverW.Done()
		pasted, err := a.delivery.Deliver(text)
		if err != nil {
			log.Warnf("paste failed: %v", err)
		}
		a.sink.Transcription(TranscriptionEvent{Text: text, Metrics: metrics, Pasted: pasted})
	}()
}

func (a *app) record(item history.Item) {
	if a.history == nil {
		return
	}
	if _, err := a.history.Append(context.Background(), item); err != nil {
		log.Warnf("history append failed: %v", err)
	}
}

func (a *app) complete(out recorder.Outcome) {
	select {
	case a.finished <- out:
	default:
	}
}

func recordingMetrics(s recorder.Stats) []string {
	return []string{
		fmt.Sprintf("audio     %.1fs @ %d Hz", s.DurationS, s.SampleRate),
		fmt.Sprintf("peak      %.3f", s.Peak),
		fmt.Sprintf("avg rms   %.4f", s.AvgRMS),
	}
}
