// Package recorder owns the microphone for the duration of one dictation:
// it opens a negotiated input stream, writes a WAV file while tracking
// energy statistics, and hands non-silent recordings to a transcription
// backend.
package recorder

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"

	"voicein/audio"
	"voicein/log"
	"voicein/metrics"
	"voicein/transcriber"
	"voicein/vad"
)

// ErrBusy is returned by Start while a recording or transcription is active.
var ErrBusy = errors.New("recorder busy")

const notifyBuffer = 16

type State int32

const (
	StateIdle State = iota
	StateRecording
	StateProcessing
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateRecording:
		return "recording"
	case StateProcessing:
		return "processing"
	}
	return fmt.Sprintf("state(%d)", int32(s))
}

// Settings is the configuration snapshot taken at the start of a recording.
type Settings struct {
	Device        string // name or ID; "" for the system default
	GainDB        float64
	MaxSeconds    float64
	PreferredRate uint32
	Thresholds    vad.Thresholds
	Provider      transcriber.Provider
	Prompts       transcriber.Prompts
	TempDir       string
}

type NotificationKind int

const (
	AutoStop NotificationKind = iota
	RecordingFailed
	JobDone
)

func (k NotificationKind) String() string {
	switch k {
	case AutoStop:
		return "auto_stop"
	case RecordingFailed:
		return "recording_failed"
	case JobDone:
		return "job_done"
	}
	return fmt.Sprintf("notification(%d)", int(k))
}

// Notification is queued from the audio or worker goroutines and processed
// by the owner through Controller.Handle.
type Notification struct {
	Kind      NotificationKind
	SessionID string
	Job       *transcriber.Job
	Err       error
}

type OutcomeKind int

const (
	OutcomeNone OutcomeKind = iota
	OutcomeSilent
	OutcomeSubmitted
	OutcomeFailed
	OutcomeTranscribed
	OutcomeJobFailed
)

func (k OutcomeKind) String() string {
	switch k {
	case OutcomeNone:
		return "none"
	case OutcomeSilent:
		return "silent"
	case OutcomeSubmitted:
		return "submitted"
	case OutcomeFailed:
		return "failed"
	case OutcomeTranscribed:
		return "transcribed"
	case OutcomeJobFailed:
		return "job_failed"
	}
	return fmt.Sprintf("outcome(%d)", int(k))
}

type Outcome struct {
	Kind    OutcomeKind
	Stats   Stats
	Verdict vad.Verdict
	Job     *transcriber.Job
	Result  transcriber.JobResult
	Err     error
}

// Controller is the Idle -> Recording -> Processing -> Idle state machine.
// Start, Stop, Handle and Close must be called from a single owner
// goroutine. State queries are safe from anywhere.
type Controller struct {
	audio      audio.Context
	registry   *transcriber.Registry
	dispatcher *transcriber.Dispatcher
	settings   func() Settings

	state    atomic.Int32
	gainBits atomic.Uint64
	notify   chan Notification
	done     chan struct{}
	once     sync.Once

	mu      sync.Mutex // guards session for readers outside the owner
	session *Session
	capture audio.CaptureDevice
	active  Settings
	job     *transcriber.Job
	jobPath string
}

func NewController(ctx audio.Context, registry *transcriber.Registry, dispatcher *transcriber.Dispatcher, settings func() Settings) *Controller {
	c := &Controller{
		audio:      ctx,
		registry:   registry,
		dispatcher: dispatcher,
		settings:   settings,
		notify:     make(chan Notification, notifyBuffer),
		done:       make(chan struct{}),
	}
	c.SetGainDB(0)
	return c
}

func (c *Controller) State() State       { return State(c.state.Load()) }
func (c *Controller) IsRecording() bool  { return c.State() == StateRecording }
func (c *Controller) IsProcessing() bool { return c.State() == StateProcessing }

func (c *Controller) Notifications() <-chan Notification { return c.notify }

// SetGainDB changes the input gain. It takes effect on the next audio buffer,
// including during an active recording.
func (c *Controller) SetGainDB(db float64) {
	c.gainBits.Store(math.Float64bits(GainFromDB(db)))
}

// GainFromDB converts decibels to a linear amplitude factor.
func GainFromDB(db float64) float64 {
	return math.Pow(10, db/20)
}

func (c *Controller) gain() float64 {
	return math.Float64frombits(c.gainBits.Load())
}

// Stats returns live statistics of the active recording, or zero.
func (c *Controller) Stats() Stats {
	c.mu.Lock()
	s := c.session
	c.mu.Unlock()
	if s == nil {
		return Stats{}
	}
	return s.Stats()
}

// Level returns peak and RMS since the previous call, or zero when idle.
func (c *Controller) Level() (peak, rms float64) {
	c.mu.Lock()
	s := c.session
	c.mu.Unlock()
	if s == nil {
		return 0, 0
	}
	return s.Level()
}

// post queues a notification without blocking. It runs on the audio
// callback; a full queue refuses the event and the session retries it on
// the next buffer.
func (c *Controller) post(n Notification) bool {
	select {
	case c.notify <- n:
		return true
	default:
		log.Errorf("notification queue full, deferred %s for session %s", n.Kind, n.SessionID)
		return false
	}
}

// Start begins a recording. It returns ErrBusy and changes nothing unless
// the controller is idle. On any other error the controller stays idle and
// nothing is left open or on disk.
func (c *Controller) Start() error {
	if c.State() != StateIdle {
		return ErrBusy
	}

	st := c.settings()
	c.SetGainDB(st.GainDB)

	dev := audio.FindByName(c.audio, st.Device)
	capture, rate, err := audio.OpenStream(c.audio, dev, 1, st.PreferredRate)
	if err != nil {
		return fmt.Errorf("start recording: %w", err)
	}
	metrics.StreamOpened(context.Background(), rate)

	deviceName := "system default"
	if dev != nil {
		deviceName = dev.Name
	}
	var maxFrames uint64
	if st.MaxSeconds > 0 {
		maxFrames = uint64(float64(rate) * st.MaxSeconds)
	}
	sess, err := NewSession(SessionConfig{
		ID:         uuid.NewString(),
		Dir:        st.TempDir,
		Device:     deviceName,
		SampleRate: rate,
		MaxFrames:  maxFrames,
		Gain:       c.gain,
		Notify:     c.post,
	})
	if err != nil {
		capture.Close()
		return fmt.Errorf("start recording: %w", err)
	}

	c.mu.Lock()
	c.session, c.capture, c.active = sess, capture, st
	c.mu.Unlock()
	c.state.Store(int32(StateRecording))

	capture.SetCallback(sess.Write)
	if err := capture.Start(); err != nil {
		c.discardRecording()
		return fmt.Errorf("start recording: %w", err)
	}
	return nil
}

func (c *Controller) releaseCapture() {
	if c.capture == nil {
		return
	}
	c.capture.Stop()
	c.capture.ClearCallback()
	c.capture.Close()
	c.capture = nil
}

// discardRecording tears down the active session without classifying it.
func (c *Controller) discardRecording() {
	c.mu.Lock()
	sess := c.session
	c.releaseCapture()
	c.session = nil
	c.mu.Unlock()
	if sess != nil {
		sess.Remove()
	}
	c.state.Store(int32(StateIdle))
}

// Stop ends the active recording, classifies it and either discards it as
// silence or submits it for transcription. It is a no-op unless recording.
func (c *Controller) Stop() Outcome {
	if c.State() != StateRecording {
		return Outcome{}
	}

	c.mu.Lock()
	sess, st := c.session, c.active
	c.releaseCapture()
	c.session = nil
	c.mu.Unlock()

	closeErr := sess.Close()
	stats := sess.Stats()
	out := Outcome{Stats: stats}
	defer func() {
		metrics.RecordingFinished(context.Background(), out.Kind.String(), stats.DurationS)
	}()

	// a write failure may still be queued; report it here and let the
	// notification go stale
	if closeErr != nil {
		log.Errorf("recording failed: %v", closeErr)
		sess.Remove()
		c.state.Store(int32(StateIdle))
		out.Kind, out.Err = OutcomeFailed, closeErr
		return out
	}

	out.Verdict = vad.Classify(stats.VAD(), st.Thresholds)
	log.Recording(log.RecordingStats{
		SessionID:  sess.ID(),
		Device:     sess.Device(),
		SampleRate: stats.SampleRate,
		Frames:     stats.Frames,
		DurationS:  stats.DurationS,
		Peak:       stats.Peak,
		AvgRMS:     stats.AvgRMS,
		Verdict:    string(out.Verdict.Reason),
	})
	if out.Verdict.Silent {
		sess.Remove()
		c.state.Store(int32(StateIdle))
		out.Kind = OutcomeSilent
		return out
	}

	backend, err := c.registry.Get(st.Provider)
	if err != nil {
		sess.Remove()
		c.state.Store(int32(StateIdle))
		out.Kind, out.Err = OutcomeJobFailed, err
		return out
	}

	job := transcriber.NewJob(st.Provider, sess.Path(), st.Prompts)
	job.AudioSeconds = stats.DurationS
	c.job, c.jobPath = job, sess.Path()
	c.state.Store(int32(StateProcessing))

	c.dispatcher.Submit(context.Background(), job, backend, func(j *transcriber.Job) {
		select {
		case c.notify <- Notification{Kind: JobDone, Job: j}:
		case <-c.done:
		}
	})

	out.Kind, out.Job = OutcomeSubmitted, job
	return out
}

// Handle processes a queued notification on the owner goroutine.
// Notifications for sessions or jobs that are no longer current are ignored.
func (c *Controller) Handle(n Notification) Outcome {
	switch n.Kind {
	case AutoStop:
		if c.State() != StateRecording || c.currentSessionID() != n.SessionID {
			return Outcome{}
		}
		log.Info("recording limit reached")
		return c.Stop()

	case RecordingFailed:
		if c.State() != StateRecording || c.currentSessionID() != n.SessionID {
			return Outcome{}
		}
		stats := c.Stats()
		log.Errorf("recording failed: %v", n.Err)
		c.discardRecording()
		metrics.RecordingFinished(context.Background(), OutcomeFailed.String(), stats.DurationS)
		return Outcome{Kind: OutcomeFailed, Stats: stats, Err: n.Err}

	case JobDone:
		if n.Job == nil || c.job == nil || n.Job.ID != c.job.ID {
			return Outcome{}
		}
		c.finishJob()
		r := n.Job.Snapshot()
		out := Outcome{Job: n.Job, Result: r}
		if r.Status == transcriber.StatusDone {
			out.Kind = OutcomeTranscribed
		} else {
			out.Kind, out.Err = OutcomeJobFailed, r.Err
		}
		return out
	}
	return Outcome{}
}

func (c *Controller) currentSessionID() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.session == nil {
		return ""
	}
	return c.session.ID()
}

func (c *Controller) finishJob() {
	removeFile(c.jobPath)
	c.job, c.jobPath = nil, ""
	c.state.Store(int32(StateIdle))
}

// Close abandons any recording, waits for an in-flight transcription and
// deletes its audio. Safe to call more than once.
func (c *Controller) Close() {
	c.once.Do(func() {
		if c.IsRecording() {
			c.discardRecording()
		}
		close(c.done)
		c.dispatcher.Wait()
		if c.job != nil {
			c.finishJob()
		}
	})
}
