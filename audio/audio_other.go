//go:build !linux

package audio

import (
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"math"
	"sync"

	"github.com/gen2brain/malgo"
)

// miniaudio backend for macOS and Windows. Device IDs are the raw
// malgo.DeviceID bytes in hex.
type malgoContext struct {
	ctx *malgo.AllocatedContext
}

func NewContext() (Context, error) {
	ctx, err := malgo.InitContext(nil, malgo.ContextConfig{}, nil)
	if err != nil {
		return nil, fmt.Errorf("miniaudio: %w", err)
	}
	return &malgoContext{ctx: ctx}, nil
}

func (m *malgoContext) capture() ([]malgo.DeviceInfo, error) {
	devs, err := m.ctx.Devices(malgo.Capture)
	if err != nil {
		return nil, fmt.Errorf("miniaudio capture devices: %w", err)
	}
	return devs, nil
}

func (m *malgoContext) Devices() ([]DeviceInfo, error) {
	devs, err := m.capture()
	if err != nil {
		return nil, err
	}
	out := make([]DeviceInfo, len(devs))
	for i, d := range devs {
		out[i] = DeviceInfo{
			ID:         hex.EncodeToString(d.ID[:]),
			Name:       d.Name(),
			NativeRate: m.rateOf(d.ID),
		}
	}
	return out, nil
}

// rateOf is the first format the device advertises in shared mode.
func (m *malgoContext) rateOf(id malgo.DeviceID) uint32 {
	info, err := m.ctx.DeviceInfo(malgo.Capture, id, malgo.Shared)
	if err != nil || len(info.Formats) == 0 {
		return 0
	}
	return info.Formats[0].SampleRate
}

func (m *malgoContext) DefaultRate() uint32 {
	devs, err := m.capture()
	if err != nil {
		return 0
	}
	for _, d := range devs {
		if d.IsDefault != 0 {
			return m.rateOf(d.ID)
		}
	}
	return 0
}

func parseDeviceID(s string) (malgo.DeviceID, error) {
	var id malgo.DeviceID
	raw, err := hex.DecodeString(s)
	if err != nil {
		return id, fmt.Errorf("device id %q: %w", s, err)
	}
	copy(id[:], raw)
	return id, nil
}

func (m *malgoContext) NewCapture(device *DeviceInfo, config CaptureConfig) (CaptureDevice, error) {
	dc := malgo.DefaultDeviceConfig(malgo.Capture)
	dc.Capture.Format = malgo.FormatF32
	dc.Capture.Channels = config.Channels
	dc.SampleRate = config.SampleRate
	if device != nil {
		id, err := parseDeviceID(device.ID)
		if err != nil {
			return nil, err
		}
		dc.Capture.DeviceID = id.Pointer()
	}

	c := &malgoCapture{}
	dev, err := malgo.InitDevice(m.ctx.Context, dc, malgo.DeviceCallbacks{
		Data: func(_, in []byte, _ uint32) { c.deliver(float32s(in)) },
	})
	if err != nil {
		return nil, fmt.Errorf("miniaudio open at %d Hz: %w", config.SampleRate, err)
	}
	// miniaudio resamples silently; refuse so negotiation moves on
	if got := dev.SampleRate(); got != 0 && got != config.SampleRate {
		dev.Uninit()
		return nil, fmt.Errorf("device opened at %d Hz, wanted %d", got, config.SampleRate)
	}
	c.dev = dev
	return c, nil
}

func (m *malgoContext) Close() {
	_ = m.ctx.Uninit()
	m.ctx.Free()
}

type malgoCapture struct {
	callbackSlot
	dev    *malgo.Device
	closer sync.Once
}

func (c *malgoCapture) Start() error { return c.dev.Start() }
func (c *malgoCapture) Stop()        { _ = c.dev.Stop() }
func (c *malgoCapture) Close()       { c.closer.Do(c.dev.Uninit) }

// float32s decodes little-endian f32 frames.
func float32s(b []byte) []float32 {
	out := make([]float32, len(b)/4)
	for i := range out {
		out[i] = math.Float32frombits(binary.LittleEndian.Uint32(b[4*i:]))
	}
	return out
}
