//go:build !linux

package beep

import (
	"encoding/binary"
	"sync"
	"time"

	"github.com/gen2brain/malgo"
)

const toneLength = 40 * time.Millisecond

// speaker keeps one playback device open. A new cue replaces the one
// still playing.
type speaker struct {
	mu     sync.Mutex
	ctx    *malgo.AllocatedContext
	dev    *malgo.Device
	buf    []byte
	pos    int
	failed bool
}

var spk speaker

func (s *speaker) open() error {
	if s.ctx == nil {
		ctx, err := malgo.InitContext(nil, malgo.ContextConfig{}, nil)
		if err != nil {
			return err
		}
		s.ctx = ctx
	}
	cfg := malgo.DefaultDeviceConfig(malgo.Playback)
	cfg.Playback.Format = malgo.FormatS16
	cfg.Playback.Channels = 1
	cfg.SampleRate = sampleRate
	dev, err := malgo.InitDevice(s.ctx.Context, cfg, malgo.DeviceCallbacks{Data: s.fill})
	if err != nil {
		return err
	}
	s.dev = dev
	return nil
}

// fill runs on the audio thread.
func (s *speaker) fill(out, _ []byte, _ uint32) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := copy(out, s.buf[s.pos:])
	clear(out[n:])
	s.pos += n
}

func output(pcm []int16) {
	buf := make([]byte, 2*len(pcm))
	for i, v := range pcm {
		binary.LittleEndian.PutUint16(buf[2*i:], uint16(v))
	}

	s := &spk
	s.mu.Lock()
	if s.failed {
		s.mu.Unlock()
		return
	}
	if s.dev == nil {
		if err := s.open(); err != nil {
			s.failed = true
			s.mu.Unlock()
			return
		}
	}
	s.buf, s.pos = buf, 0
	dev := s.dev
	s.mu.Unlock()

	if dev.IsStarted() {
		return
	}
	if err := dev.Start(); err != nil {
		// devices go stale across sleep/wake; reopen once
		s.mu.Lock()
		dev.Uninit()
		s.dev = nil
		err = s.open()
		dev = s.dev
		s.mu.Unlock()
		if err == nil {
			dev.Start()
		}
	}
}
