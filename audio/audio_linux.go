//go:build linux

package audio

import (
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/jfreymuth/pulse"
)

// PulseAudio (or pipewire-pulse) backend.
type pulseContext struct {
	client *pulse.Client
}

func NewContext() (Context, error) {
	c, err := pulse.NewClient(pulse.ClientApplicationName("voicein"))
	if err != nil {
		return nil, fmt.Errorf("pulse: %w", err)
	}
	return &pulseContext{client: c}, nil
}

// isMonitor reports sources that loop back a playback sink.
func isMonitor(id string) bool { return strings.HasSuffix(id, ".monitor") }

func (p *pulseContext) Devices() ([]DeviceInfo, error) {
	sources, err := p.client.ListSources()
	if err != nil {
		return nil, fmt.Errorf("pulse list sources: %w", err)
	}
	out := make([]DeviceInfo, 0, len(sources))
	for _, s := range sources {
		if isMonitor(s.ID()) {
			continue
		}
		out = append(out, DeviceInfo{ID: s.ID(), Name: s.Name(), NativeRate: uint32(s.SampleRate())})
	}
	return out, nil
}

func (p *pulseContext) DefaultRate() uint32 {
	if s, err := p.client.DefaultSource(); err == nil && s != nil {
		return uint32(s.SampleRate())
	}
	return 0
}

func (p *pulseContext) NewCapture(device *DeviceInfo, config CaptureConfig) (CaptureDevice, error) {
	opts := []pulse.RecordOption{
		pulse.RecordSampleRate(int(config.SampleRate)),
		pulse.RecordLatency(0.05),
		pulse.RecordMediaName("voicein dictation"),
		pulse.RecordMono,
	}
	if config.Channels > 1 {
		opts[len(opts)-1] = pulse.RecordStereo
	}
	if device != nil {
		src, err := p.client.SourceByID(device.ID)
		if err != nil {
			return nil, fmt.Errorf("pulse source %q: %w", device.Name, err)
		}
		opts = append(opts, pulse.RecordSource(src))
	}

	c := &pulseCapture{}
	sink := pulse.Float32Writer(func(buf []float32) (int, error) {
		if len(buf) > 0 {
			c.deliver(buf)
		}
		return len(buf), nil
	})
	stream, err := p.client.NewRecord(sink, opts...)
	if err != nil {
		return nil, fmt.Errorf("pulse record at %d Hz: %w", config.SampleRate, err)
	}
	c.stream = stream
	return c, nil
}

func (p *pulseContext) Close() { p.client.Close() }

type streamState int

const (
	streamIdle streamState = iota
	streamRunning
	streamClosed
)

var errStreamClosed = errors.New("pulse capture closed")

type pulseCapture struct {
	callbackSlot

	mu     sync.Mutex
	stream *pulse.RecordStream
	state  streamState
}

func (c *pulseCapture) Start() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	switch c.state {
	case streamClosed:
		return errStreamClosed
	case streamRunning:
		return nil
	}
	c.stream.Start()
	if err := c.stream.Error(); err != nil {
		return fmt.Errorf("pulse start: %w", err)
	}
	c.state = streamRunning
	return nil
}

func (c *pulseCapture) Stop() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state == streamRunning {
		c.stream.Stop()
		c.state = streamIdle
	}
}

func (c *pulseCapture) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state == streamRunning {
		c.stream.Stop()
	}
	if c.state != streamClosed {
		c.stream.Close()
		c.state = streamClosed
	}
}
