package audio

import (
	"regexp"
	"sync/atomic"

	"voicein/log"
)

// Headset brands and markers whose microphones run over the narrowband
// bluetooth profile.
var bluetoothName = regexp.MustCompile(`(?i)bluetooth|\bbt\b|airpods|powerbeats|\bbeats\b|\bbose\b|\bjabra\b|\bjbl\b|` +
	`w[hf]-1000|(galaxy|pixel) buds|sennheiser momentum|plantronics|\btozo\b|soundcore|skullcandy|bluez`)

// IsBluetooth guesses from the device name alone.
func IsBluetooth(name string) bool {
	return bluetoothName.MatchString(name)
}

// DataCallback receives interleaved float32 samples in [-1, 1].
// It runs on the backend's audio goroutine and must not block.
type DataCallback func(samples []float32)

type CaptureConfig struct {
	SampleRate uint32
	Channels   uint32
}

type DeviceInfo struct {
	ID         string // opaque platform-specific identifier
	Name       string
	NativeRate uint32 // 0 when the backend cannot report it
}

// Context owns the platform audio connection. A nil *DeviceInfo always
// means the system default input.
type Context interface {
	Devices() ([]DeviceInfo, error)
	// NewCapture opens a stream at exactly config.SampleRate. It fails
	// when the device rejects the format, so callers can negotiate.
	NewCapture(device *DeviceInfo, config CaptureConfig) (CaptureDevice, error)
	Close()
}

type CaptureDevice interface {
	Start() error
	Stop()
	Close()
	SetCallback(cb DataCallback)
	ClearCallback()
}

// callbackSlot hands samples from a backend's audio thread to whoever is
// currently attached.
type callbackSlot struct {
	cb atomic.Pointer[DataCallback]
}

func (s *callbackSlot) SetCallback(cb DataCallback) { s.cb.Store(&cb) }
func (s *callbackSlot) ClearCallback()              { s.cb.Store(nil) }

func (s *callbackSlot) deliver(samples []float32) {
	if cb := s.cb.Load(); cb != nil {
		(*cb)(samples)
	}
}

// ListInputDevices never fails. Backend errors are logged and reported as
// an empty catalog, which callers treat as "system default only".
func ListInputDevices(ctx Context) []DeviceInfo {
	devices, err := ctx.Devices()
	if err != nil {
		log.Warnf("device catalog: %v", err)
		return nil
	}
	return devices
}

// NativeRate returns the device's default sample rate, or 0 if unknown.
// For the system default it reports the first device's rate when the
// backend lists the default first.
func NativeRate(ctx Context, dev *DeviceInfo) uint32 {
	if dev != nil {
		if dev.NativeRate != 0 {
			return dev.NativeRate
		}
		for _, d := range ListInputDevices(ctx) {
			if d.ID == dev.ID {
				return d.NativeRate
			}
		}
		return 0
	}
	if r, ok := ctx.(interface{ DefaultRate() uint32 }); ok {
		return r.DefaultRate()
	}
	return 0
}

// FindByName resolves a configured device name. An empty name, or a name
// that is no longer present, resolves to nil (system default).
func FindByName(ctx Context, name string) *DeviceInfo {
	if name == "" {
		return nil
	}
	for _, d := range ListInputDevices(ctx) {
		if d.Name == name || d.ID == name {
			return &d
		}
	}
	log.Warnf("input device %q not found, using system default", name)
	return nil
}
