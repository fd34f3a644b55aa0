package audio

import (
	"fmt"

	"voicein/log"
)

// FallbackRates is tried, in order, after the device's native rate and the
// caller's preferred rate.
var FallbackRates = []uint32{48000, 44100, 32000, 24000, 22050, 16000}

// CandidateRates returns the ordered, de-duplicated list of sample rates to
// try when opening a capture stream. Zero entries are skipped.
func CandidateRates(native, preferred uint32) []uint32 {
	out := make([]uint32, 0, len(FallbackRates)+2)
	seen := make(map[uint32]bool, len(FallbackRates)+2)
	add := func(r uint32) {
		if r == 0 || seen[r] {
			return
		}
		seen[r] = true
		out = append(out, r)
	}
	add(native)
	add(preferred)
	for _, r := range FallbackRates {
		add(r)
	}
	return out
}

// OpenStream opens a capture stream on dev at the first candidate rate the
// device accepts and returns the stream together with that rate. If every
// candidate fails, the error from the last attempt is returned.
func OpenStream(ctx Context, dev *DeviceInfo, channels, preferred uint32) (CaptureDevice, uint32, error) {
	native := NativeRate(ctx, dev)
	candidates := CandidateRates(native, preferred)

	var lastErr error
	for i, rate := range candidates {
		capture, err := ctx.NewCapture(dev, CaptureConfig{SampleRate: rate, Channels: channels})
		if err == nil {
			log.Negotiated(deviceName(dev), rate, i+1)
			return capture, rate, nil
		}
		log.Warnf("open %s at %d Hz: %v", deviceName(dev), rate, err)
		lastErr = err
	}
	if lastErr == nil {
		lastErr = fmt.Errorf("no candidate sample rates")
	}
	return nil, 0, fmt.Errorf("open input stream on %s: %w", deviceName(dev), lastErr)
}

func deviceName(dev *DeviceInfo) string {
	if dev == nil {
		return "system default"
	}
	return dev.Name
}
