package audio

import (
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/go-audio/wav"
)

const fakeFrameSize = 1024

// FakeContext is an in-memory backend. It replays a WAV file (or nothing)
// into every capture it opens and can be told to reject specific rates.
type FakeContext struct {
	samples  []float32
	realtime bool

	mu         sync.Mutex
	devices    []DeviceInfo
	devicesErr error
	native     uint32
	rejected   map[uint32]error
	attempts   []uint32
	last       *FakeCapture
}

// NewFakeContext loads a 16-bit PCM WAV for replay. Its sample rate becomes
// the native rate of the fake default device.
func NewFakeContext(wavPath string, realtime bool) (*FakeContext, error) {
	f, err := os.Open(wavPath)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	d := wav.NewDecoder(f)
	if !d.IsValidFile() {
		return nil, fmt.Errorf("%s: not a valid WAV file", wavPath)
	}
	buf, err := d.FullPCMBuffer()
	if err != nil {
		return nil, fmt.Errorf("decode %s: %w", wavPath, err)
	}

	scale := float32(int(1) << (d.BitDepth - 1))
	channels := max(buf.Format.NumChannels, 1)
	samples := make([]float32, 0, len(buf.Data)/channels)
	for i := 0; i < len(buf.Data); i += channels {
		samples = append(samples, float32(buf.Data[i])/scale)
	}

	fc := NewSilentFakeContext()
	fc.samples = samples
	fc.realtime = realtime
	fc.native = uint32(buf.Format.SampleRate)
	return fc, nil
}

// NewSilentFakeContext returns a fake with nothing to replay. Tests push
// audio with FakeCapture.Feed.
func NewSilentFakeContext() *FakeContext {
	return &FakeContext{rejected: make(map[uint32]error)}
}

func (f *FakeContext) SetDevices(devices []DeviceInfo, err error) {
	f.mu.Lock()
	f.devices = devices
	f.devicesErr = err
	f.mu.Unlock()
}

func (f *FakeContext) SetNativeRate(rate uint32) {
	f.mu.Lock()
	f.native = rate
	f.mu.Unlock()
}

// Reject makes NewCapture fail with err for the given rate.
func (f *FakeContext) Reject(rate uint32, err error) {
	f.mu.Lock()
	f.rejected[rate] = err
	f.mu.Unlock()
}

// Attempts returns every rate NewCapture was asked for, in order.
func (f *FakeContext) Attempts() []uint32 {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]uint32(nil), f.attempts...)
}

// Last returns the most recently opened capture, or nil.
func (f *FakeContext) Last() *FakeCapture {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.last
}

func (f *FakeContext) Devices() ([]DeviceInfo, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]DeviceInfo(nil), f.devices...), f.devicesErr
}

func (f *FakeContext) DefaultRate() uint32 {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.native
}

func (f *FakeContext) Close() {}

func (f *FakeContext) NewCapture(_ *DeviceInfo, config CaptureConfig) (CaptureDevice, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.attempts = append(f.attempts, config.SampleRate)
	if err, ok := f.rejected[config.SampleRate]; ok {
		return nil, err
	}
	c := &FakeCapture{
		samples:   f.samples,
		realtime:  f.realtime,
		rate:      config.SampleRate,
		audioDone: make(chan struct{}),
	}
	f.last = c
	return c, nil
}

type FakeCapture struct {
	callbackSlot
	samples   []float32
	realtime  bool
	rate      uint32
	audioDone chan struct{}

	mu       sync.Mutex
	started  bool
	closed   bool
	stopCh   chan struct{}
	feedDone chan struct{}
}

func (f *FakeCapture) Rate() uint32 { return f.rate }

// AudioDone is closed once the replayed file has been fully delivered.
func (f *FakeCapture) AudioDone() <-chan struct{} { return f.audioDone }

func (f *FakeCapture) Started() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.started
}

func (f *FakeCapture) Closed() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closed
}

// Feed delivers samples to the installed callback synchronously, as a
// backend audio thread would.
func (f *FakeCapture) Feed(samples []float32) { f.deliver(samples) }

func (f *FakeCapture) feedChunk(pos int) int {
	end := min(pos+fakeFrameSize, len(f.samples))
	chunk := make([]float32, end-pos)
	copy(chunk, f.samples[pos:end])
	f.Feed(chunk)
	return end
}

func (f *FakeCapture) Start() error {
	f.mu.Lock()
	f.started = true
	f.stopCh = make(chan struct{})
	f.feedDone = make(chan struct{})
	f.mu.Unlock()

	if len(f.samples) == 0 {
		close(f.feedDone)
		return nil
	}

	if !f.realtime {
		for pos := 0; pos < len(f.samples); {
			pos = f.feedChunk(pos)
		}
		close(f.audioDone)
		close(f.feedDone)
		return nil
	}

	rate := f.rate
	if rate == 0 {
		rate = 16000
	}
	interval := time.Duration(fakeFrameSize) * time.Second / time.Duration(rate)
	go func() {
		defer close(f.feedDone)
		silence := make([]float32, fakeFrameSize)
		pos := 0
		finished := false
		for {
			if pos < len(f.samples) {
				pos = f.feedChunk(pos)
			} else {
				if !finished {
					finished = true
					close(f.audioDone)
				}
				f.Feed(silence)
			}
			select {
			case <-f.stopCh:
				return
			case <-time.After(interval):
			}
		}
	}()
	return nil
}

func (f *FakeCapture) Stop() {
	f.mu.Lock()
	stopCh, feedDone := f.stopCh, f.feedDone
	f.mu.Unlock()
	if stopCh == nil {
		return
	}
	select {
	case <-stopCh:
	default:
		close(stopCh)
	}
	<-feedDone
}

func (f *FakeCapture) Close() {
	f.Stop()
	f.mu.Lock()
	f.closed = true
	f.mu.Unlock()
}
