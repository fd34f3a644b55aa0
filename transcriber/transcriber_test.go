package transcriber

import (
	"context"
	"errors"
	"math"
	"os"
	"path/filepath"
	"slices"
	"sync/atomic"
	"testing"
	"time"

	"github.com/go-audio/audio"
	"github.com/go-audio/wav"
)

func writeWAV(t *testing.T, rate, frames int) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "rec.wav")
	f, err := os.Create(path)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()
	data := make([]int, frames)
	for i := range data {
		data[i] = int(10000 * math.Sin(float64(i)/5))
	}
	enc := wav.NewEncoder(f, rate, 16, 1, 1)
	if err := enc.Write(&audio.IntBuffer{
		Format:         &audio.Format{NumChannels: 1, SampleRate: rate},
		Data:           data,
		SourceBitDepth: 16,
	}); err != nil {
		t.Fatal(err)
	}
	if err := enc.Close(); err != nil {
		t.Fatal(err)
	}
	return path
}

func submitAndWait(t *testing.T, d *Dispatcher, job *Job, b Backend) *Job {
	t.Helper()
	var calls atomic.Int32
	got := make(chan *Job, 2)
	d.Submit(context.Background(), job, b, func(j *Job) {
		calls.Add(1)
		got <- j
	})
	select {
	case j := <-got:
		d.Wait()
		if n := calls.Load(); n != 1 {
			t.Fatalf("done called %d times", n)
		}
		return j
	case <-time.After(2 * time.Second):
		t.Fatal("job did not finish")
	}
	return nil
}

func TestDispatcherSuccess(t *testing.T) {
	path := writeWAV(t, 16000, 1600)
	job := NewJob(FakeProvider, path, Prompts{PromptWhisper: "p"})
	if job.Status() != StatusPending {
		t.Fatalf("new job status = %s", job.Status())
	}

	done := submitAndWait(t, NewDispatcher(0), job, NewFake("hello", nil))
	r := done.Snapshot()
	if r.Status != StatusDone || r.Text != "hello" || r.Err != nil {
		t.Errorf("result = %+v", r)
	}
	if r.ID == "" || r.Provider != FakeProvider {
		t.Errorf("identity lost: %+v", r)
	}
}

func TestDispatcherFailure(t *testing.T) {
	path := writeWAV(t, 16000, 1600)
	boom := errors.New("quota exceeded")
	done := submitAndWait(t, NewDispatcher(0), NewJob(FakeProvider, path, nil), NewFake("", boom))

	r := done.Snapshot()
	if r.Status != StatusFailed || !errors.Is(r.Err, boom) {
		t.Errorf("result = %+v", r)
	}
	if r.Text != "" {
		t.Errorf("failed job has text %q", r.Text)
	}
}

func TestDispatcherRecoversPanic(t *testing.T) {
	path := writeWAV(t, 16000, 1600)
	f := NewFake("x", nil)
	f.PanicOnCall()
	done := submitAndWait(t, NewDispatcher(0), NewJob(FakeProvider, path, nil), f)
	if r := done.Snapshot(); r.Status != StatusFailed || r.Err == nil {
		t.Errorf("result = %+v", r)
	}
}

func TestDispatcherTimeout(t *testing.T) {
	path := writeWAV(t, 16000, 1600)
	f := NewFake("late", nil)
	f.Hold()
	t.Cleanup(f.Release)

	done := submitAndWait(t, NewDispatcher(50*time.Millisecond), NewJob(FakeProvider, path, nil), f)
	if r := done.Snapshot(); !errors.Is(r.Err, context.DeadlineExceeded) {
		t.Errorf("err = %v, want deadline exceeded", r.Err)
	}
}

func TestDispatcherRunsJobsConcurrently(t *testing.T) {
	path := writeWAV(t, 16000, 1600)
	held := NewFake("slow", nil)
	held.Hold()
	d := NewDispatcher(0)

	slow := make(chan *Job, 1)
	d.Submit(context.Background(), NewJob(FakeProvider, path, nil), held, func(j *Job) { slow <- j })

	fast := make(chan *Job, 1)
	d.Submit(context.Background(), NewJob(FakeProvider, path, nil), NewFake("fast", nil), func(j *Job) { fast <- j })
	select {
	case j := <-fast:
		if j.Snapshot().Text != "fast" {
			t.Fatalf("fast job = %+v", j.Snapshot())
		}
	case <-time.After(2 * time.Second):
		t.Fatal("second job blocked behind first")
	}
	select {
	case <-slow:
		t.Fatal("held job finished early")
	default:
	}
	held.Release()
	<-slow
	d.Wait()
}

func TestRegistry(t *testing.T) {
	r := NewRegistry()
	if _, err := r.Get(CloudSpeech); !errors.Is(err, ErrNoBackend) {
		t.Fatalf("Get on empty registry = %v", err)
	}
	r.Register(LocalModel, NewFake("", nil))
	r.Register(CloudSpeech, NewFake("", nil))
	if b, err := r.Get(CloudSpeech); err != nil || b.Name() != "fake" {
		t.Errorf("Get = %v, %v", b, err)
	}
	if got := r.Providers(); !slices.Equal(got, []Provider{CloudSpeech, LocalModel}) {
		t.Errorf("Providers = %v", got)
	}
}

func TestStatusString(t *testing.T) {
	for s, want := range map[Status]string{
		StatusPending: "pending",
		StatusRunning: "running",
		StatusDone:    "done",
		StatusFailed:  "failed",
	} {
		if s.String() != want {
			t.Errorf("%d.String() = %q, want %q", int(s), s.String(), want)
		}
	}
}
