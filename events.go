package main

import (
	"fmt"
	"io"
	"sync"
)

// TranscriptionEvent is one finished dictation as shown to the user.
type TranscriptionEvent struct {
	Text     string
	Metrics  []string
	Pasted   bool
	NoSpeech bool
}

// EventSink abstracts the display layer so the TUI and the headless modes
// receive the same recording and transcription events. Methods may be
// called from any goroutine.
type EventSink interface {
	RecordingStart()
	RecordingStop()
	RecordingTick(duration float64)
	AudioLevel(level float64)
	NoVoiceWarning()
	VoiceCleared()
	Processing(provider string)
	Transcription(ev TranscriptionEvent)
	Error(msg string)
	ModeLine(text string)
	DeviceLine(text string)
}

// lineSink prints state changes as plain lines. It backs -tui=false and
// -test mode, where stdout may be a pipe.
type lineSink struct {
	mu  sync.Mutex
	out io.Writer
}

func newLineSink(out io.Writer) *lineSink {
	return &lineSink{out: out}
}

func (s *lineSink) printf(format string, args ...any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	fmt.Fprintf(s.out, format+"\n", args...)
}

func (s *lineSink) RecordingStart()        { s.printf("recording") }
func (s *lineSink) RecordingStop()         { s.printf("stopped") }
func (s *lineSink) RecordingTick(float64)  {}
func (s *lineSink) AudioLevel(float64)     {}
func (s *lineSink) NoVoiceWarning()        { s.printf("warning: no voice detected") }
func (s *lineSink) VoiceCleared()          { s.printf("voice detected") }
func (s *lineSink) Processing(p string)    { s.printf("transcribing (%s)", p) }
func (s *lineSink) Error(msg string)       { s.printf("error: %s", msg) }
func (s *lineSink) ModeLine(text string)   { s.printf("%s", text) }
func (s *lineSink) DeviceLine(text string) { s.printf("%s", text) }

func (s *lineSink) Transcription(ev TranscriptionEvent) {
	if ev.NoSpeech {
		s.printf("(no speech detected)")
		return
	}
	suffix := ""
	if ev.Pasted {
		suffix = " [pasted]"
	}
	s.printf("text: %s%s", ev.Text, suffix)
}
