package recorder

import (
	"errors"
	"fmt"
	"math"
	"os"
	"sync"

	"github.com/go-audio/audio"
	"github.com/go-audio/wav"

	"voicein/log"
	"voicein/vad"
)

const (
	bitDepth  = 16
	maxSample = 32767
)

// Stats is a consistent snapshot of a session's energy accounting.
type Stats struct {
	SampleRate uint32
	Frames     uint64
	MaxFrames  uint64
	Peak       float64
	AvgRMS     float64
	DurationS  float64
}

func (s Stats) VAD() vad.Stats {
	return vad.Stats{Peak: s.Peak, AvgRMS: s.AvgRMS, Duration: s.DurationS}
}

type SessionConfig struct {
	ID         string
	Dir        string // temp directory, "" for the OS default
	Device     string
	SampleRate uint32
	MaxFrames  uint64 // 0 disables the ceiling
	Gain       func() float64
	// Notify is called with the session lock held and must not block. It
	// reports whether the notification was queued; a refused one is
	// offered again on the next callback.
	Notify func(Notification) bool
}

// Session is one recording: a WAV file on disk fed from the audio callback,
// plus the statistics accumulated while writing it. Sessions are never reused.
type Session struct {
	id     string
	path   string
	device string
	rate   uint32
	max    uint64
	gain   func() float64
	notify func(Notification) bool

	mu         sync.Mutex
	file       *os.File
	sink       *wav.Encoder // nil once closed
	frames     uint64
	peak       float64
	powerSum   float64
	powerCount uint64
	latched    bool
	failErr    error // first write or finalise failure, sticky
	tickPeak   float64
	tickSum    float64
	tickCount  uint64
	removed    bool
}

func NewSession(cfg SessionConfig) (*Session, error) {
	if cfg.SampleRate == 0 {
		return nil, errors.New("session: sample rate is zero")
	}
	f, err := os.CreateTemp(cfg.Dir, "voicein-*.wav")
	if err != nil {
		return nil, fmt.Errorf("create temp wav: %w", err)
	}
	gain := cfg.Gain
	if gain == nil {
		gain = func() float64 { return 1 }
	}
	notify := cfg.Notify
	if notify == nil {
		notify = func(Notification) bool { return true }
	}
	return &Session{
		id:     cfg.ID,
		path:   f.Name(),
		device: cfg.Device,
		rate:   cfg.SampleRate,
		max:    cfg.MaxFrames,
		gain:   gain,
		notify: notify,
		file:   f,
		sink:   wav.NewEncoder(f, int(cfg.SampleRate), bitDepth, 1, 1),
	}, nil
}

func (s *Session) ID() string         { return s.id }
func (s *Session) Path() string       { return s.path }
func (s *Session) SampleRate() uint32 { return s.rate }
func (s *Session) Device() string     { return s.device }

// Write is the audio callback. It applies gain, clamps and quantises the
// samples, appends them to the WAV sink and updates the statistics, all
// under one lock. Frames beyond the ceiling are dropped and the auto-stop
// notification is sent at most once.
func (s *Session) Write(samples []float32) {
	g := s.gain()

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.failErr != nil {
		s.fireLocked(Notification{Kind: RecordingFailed, SessionID: s.id, Err: s.failErr})
		return
	}
	if s.sink == nil {
		return
	}
	if s.max > 0 {
		if s.frames >= s.max {
			s.fireLocked(Notification{Kind: AutoStop, SessionID: s.id})
			return
		}
		if remaining := s.max - s.frames; uint64(len(samples)) > remaining {
			samples = samples[:remaining]
		}
	}
	if len(samples) == 0 {
		return
	}

	data := make([]int, len(samples))
	var peak, sum float64
	for i, v := range samples {
		x := float64(v) * g
		if x > 1 {
			x = 1
		} else if x < -1 {
			x = -1
		}
		if a := math.Abs(x); a > peak {
			peak = a
		}
		sum += x * x
		data[i] = int(x * maxSample)
	}

	buf := &audio.IntBuffer{
		Format:         &audio.Format{NumChannels: 1, SampleRate: int(s.rate)},
		Data:           data,
		SourceBitDepth: bitDepth,
	}
	if err := s.sink.Write(buf); err != nil {
		s.failErr = fmt.Errorf("write %s: %w", s.path, err)
		s.closeLocked()
		s.fireLocked(Notification{Kind: RecordingFailed, SessionID: s.id, Err: s.failErr})
		return
	}

	n := uint64(len(samples))
	s.frames += n
	s.powerSum += sum
	s.powerCount += n
	s.peak = max(s.peak, peak)
	s.tickPeak = max(s.tickPeak, peak)
	s.tickSum += sum
	s.tickCount += n

	if s.max > 0 && s.frames >= s.max {
		s.fireLocked(Notification{Kind: AutoStop, SessionID: s.id})
	}
}

// fireLocked sends n once per session. The latch only closes when the
// owner's queue accepted it.
func (s *Session) fireLocked(n Notification) {
	if s.latched {
		return
	}
	s.latched = s.notify(n)
}

// Close finalises the WAV header and releases the file. Callbacks arriving
// afterwards are ignored. Safe to call more than once; once a write or the
// finalise step has failed, every call returns that error.
func (s *Session) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closeLocked()
	return s.failErr
}

// Err is the write or finalise failure that ruined the recording, if any.
func (s *Session) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.failErr
}

func (s *Session) closeLocked() {
	if s.sink == nil {
		return
	}
	err := s.sink.Close()
	s.sink = nil
	if cerr := s.file.Close(); err == nil {
		err = cerr
	}
	if err != nil && s.failErr == nil {
		s.failErr = fmt.Errorf("finalise %s: %w", s.path, err)
	}
}

// Remove closes the session if needed and deletes its file.
func (s *Session) Remove() {
	err := s.Close()
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.removed {
		return
	}
	s.removed = true
	if err != nil {
		log.Warnf("discarding %s: %v", s.path, err)
	}
	removeFile(s.path)
}

func (s *Session) Stats() Stats {
	s.mu.Lock()
	defer s.mu.Unlock()
	st := Stats{
		SampleRate: s.rate,
		Frames:     s.frames,
		MaxFrames:  s.max,
		Peak:       s.peak,
		DurationS:  float64(s.frames) / float64(s.rate),
	}
	if s.powerCount > 0 {
		st.AvgRMS = math.Sqrt(s.powerSum / float64(s.powerCount))
	}
	return st
}

// Level returns the peak and RMS of the audio written since the previous
// call, for live meters.
func (s *Session) Level() (peak, rms float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	peak = s.tickPeak
	if s.tickCount > 0 {
		rms = math.Sqrt(s.tickSum / float64(s.tickCount))
	}
	s.tickPeak, s.tickSum, s.tickCount = 0, 0, 0
	return peak, rms
}

func removeFile(path string) {
	if path == "" {
		return
	}
	if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		log.Warnf("remove %s: %v", path, err)
	}
}
