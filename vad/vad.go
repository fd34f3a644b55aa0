// Package vad decides whether a finished recording contains speech, using
// only the energy statistics accumulated during capture.
package vad

const (
	DefaultEnergyThreshold = 0.005
	DefaultPeakThreshold   = 0.02
	DefaultMinDuration     = 0.2
)

type Thresholds struct {
	EnergyThreshold float64 // average RMS floor
	PeakThreshold   float64 // absolute peak floor, normalised to [0,1]
	MinDuration     float64 // seconds
}

func DefaultThresholds() Thresholds {
	return Thresholds{
		EnergyThreshold: DefaultEnergyThreshold,
		PeakThreshold:   DefaultPeakThreshold,
		MinDuration:     DefaultMinDuration,
	}
}

// Stats is the subset of capture statistics the classifier needs.
type Stats struct {
	Peak     float64
	AvgRMS   float64
	Duration float64 // seconds
}

type Reason string

const (
	TooShort Reason = "too_short"
	Quiet    Reason = "quiet"
	Speech   Reason = "speech"
)

type Verdict struct {
	Silent bool
	Reason Reason
}

// Classify reports a recording as silent when it is empty or shorter than
// MinDuration, or when both its peak and its average RMS fall below their
// thresholds. Loud-but-brief and quiet-but-long recordings are speech.
func Classify(s Stats, t Thresholds) Verdict {
	if s.Duration <= 0 || s.Duration < t.MinDuration {
		return Verdict{Silent: true, Reason: TooShort}
	}
	if s.Peak < t.PeakThreshold && s.AvgRMS < t.EnergyThreshold {
		return Verdict{Silent: true, Reason: Quiet}
	}
	return Verdict{Reason: Speech}
}

func IsSilence(s Stats, t Thresholds) bool {
	return Classify(s, t).Silent
}

// TickHasSpeech is the live counterpart used while recording: a short
// window counts as voiced when either measure clears its threshold.
func TickHasSpeech(peak, rms float64, t Thresholds) bool {
	return peak >= t.PeakThreshold || rms >= t.EnergyThreshold
}
