package transcriber

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"
)

var (
	ErrNoBackend     = errors.New("no backend registered for provider")
	ErrMissingAPIKey = errors.New("API key not set")
)

// Provider names a transcription backend family.
type Provider string

const (
	CloudSpeech     Provider = "groq"
	CloudMultimodal Provider = "gemini"
	LocalModel      Provider = "local"
	FakeProvider    Provider = "fake"
)

// Prompt template keys understood by the bundled backends.
const (
	PromptWhisper = "groq_whisper_prompt"
	PromptRefine  = "groq_refine_system_prompt"
	PromptGemini  = "gemini_transcribe_prompt"
)

// Prompts maps template names to text. Backends ignore keys they do not use.
type Prompts map[string]string

func (p Prompts) Get(key string) string {
	if p == nil {
		return ""
	}
	return p[key]
}

// Backend turns a finished WAV file into text. Implementations must be safe
// for use from a worker goroutine and must not modify the file.
type Backend interface {
	Name() string
	Transcribe(ctx context.Context, audioPath string, prompts Prompts) (string, error)
}

type Status int

const (
	StatusPending Status = iota
	StatusRunning
	StatusDone
	StatusFailed
)

func (s Status) String() string {
	switch s {
	case StatusPending:
		return "pending"
	case StatusRunning:
		return "running"
	case StatusDone:
		return "done"
	case StatusFailed:
		return "failed"
	}
	return fmt.Sprintf("status(%d)", int(s))
}

// Job is one transcription request. The dispatcher owns it while running;
// readers should use Snapshot.
type Job struct {
	ID           string
	Provider     Provider
	AudioPath    string
	AudioSeconds float64
	Prompts      Prompts

	mu       sync.Mutex
	status   Status
	text     string
	err      error
	started  time.Time
	finished time.Time
}

func NewJob(provider Provider, audioPath string, prompts Prompts) *Job {
	return &Job{
		ID:        uuid.NewString(),
		Provider:  provider,
		AudioPath: audioPath,
		Prompts:   prompts,
	}
}

// JobResult is an immutable view of a job.
type JobResult struct {
	ID       string
	Provider Provider
	Status   Status
	Text     string
	Err      error
	Elapsed  time.Duration
}

func (j *Job) Snapshot() JobResult {
	j.mu.Lock()
	defer j.mu.Unlock()
	r := JobResult{ID: j.ID, Provider: j.Provider, Status: j.status, Text: j.text, Err: j.err}
	if !j.started.IsZero() && !j.finished.IsZero() {
		r.Elapsed = j.finished.Sub(j.started)
	}
	return r
}

func (j *Job) Status() Status {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.status
}

func (j *Job) setRunning() {
	j.mu.Lock()
	j.status = StatusRunning
	j.started = time.Now()
	j.mu.Unlock()
}

func (j *Job) finish(text string, err error) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.finished = time.Now()
	if err != nil {
		j.status = StatusFailed
		j.err = err
		return
	}
	j.status = StatusDone
	j.text = text
}

// Registry maps providers to backends.
type Registry struct {
	mu       sync.RWMutex
	backends map[Provider]Backend
}

func NewRegistry() *Registry {
	return &Registry{backends: make(map[Provider]Backend)}
}

func (r *Registry) Register(p Provider, b Backend) {
	r.mu.Lock()
	r.backends[p] = b
	r.mu.Unlock()
}

func (r *Registry) Get(p Provider) (Backend, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	b, ok := r.backends[p]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrNoBackend, p)
	}
	return b, nil
}

func (r *Registry) Providers() []Provider {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Provider, 0, len(r.backends))
	for p := range r.backends {
		out = append(out, p)
	}
	slices.Sort(out)
	return out
}

type NetworkMetrics struct {
	DNS         time.Duration
	ConnWait    time.Duration
	TCP         time.Duration
	TLS         time.Duration
	ReqHeaders  time.Duration
	ReqBody     time.Duration
	TTFB        time.Duration
	Download    time.Duration
	Total       time.Duration
	ConnReused  bool
	TLSProtocol string
}

func firstNonEmpty(h http.Header, keys ...string) string {
	for _, k := range keys {
		if v := h.Get(k); v != "" {
			return v
		}
	}
	return "?"
}
