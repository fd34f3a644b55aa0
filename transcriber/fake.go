package transcriber

import (
	"context"
	"fmt"
	"os"
	"sync"
)

// Fake is an in-process backend for tests and the -test mode.
type Fake struct {
	text string
	err  error

	mu      sync.Mutex
	calls   []string
	release chan struct{}
	panics  bool
}

func NewFake(text string, err error) *Fake {
	return &Fake{text: text, err: err}
}

// Hold makes Transcribe block until Release is called or its context ends.
func (f *Fake) Hold() {
	f.mu.Lock()
	f.release = make(chan struct{})
	f.mu.Unlock()
}

func (f *Fake) Release() {
	f.mu.Lock()
	if f.release != nil {
		close(f.release)
		f.release = nil
	}
	f.mu.Unlock()
}

// PanicOnCall makes the next Transcribe panic.
func (f *Fake) PanicOnCall() {
	f.mu.Lock()
	f.panics = true
	f.mu.Unlock()
}

func (f *Fake) Calls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.calls...)
}

func (f *Fake) Name() string { return "fake" }

func (f *Fake) Transcribe(ctx context.Context, audioPath string, _ Prompts) (string, error) {
	f.mu.Lock()
	f.calls = append(f.calls, audioPath)
	release, panics := f.release, f.panics
	f.panics = false
	f.mu.Unlock()

	if panics {
		panic("fake backend exploded")
	}
	if _, err := os.Stat(audioPath); err != nil {
		return "", fmt.Errorf("fake backend: %w", err)
	}
	if release != nil {
		select {
		case <-release:
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}
	if f.err != nil {
		return "", fmt.Errorf("fake transcriber error: %w", f.err)
	}
	return f.text, nil
}
