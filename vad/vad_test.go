package vad

import "testing"

func TestClassify(t *testing.T) {
	th := DefaultThresholds()
	tests := []struct {
		name   string
		stats  Stats
		reason Reason
	}{
		{"empty", Stats{}, TooShort},
		{"short loud", Stats{Peak: 0.9, AvgRMS: 0.3, Duration: 0.1}, TooShort},
		{"just long enough", Stats{Peak: 0.5, AvgRMS: 0.1, Duration: 0.2}, Speech},
		{"quiet room", Stats{Peak: 0.01, AvgRMS: 0.002, Duration: 3}, Quiet},
		{"loud peak only", Stats{Peak: 0.05, AvgRMS: 0.001, Duration: 2}, Speech},
		{"soft but sustained", Stats{Peak: 0.015, AvgRMS: 0.006, Duration: 2}, Speech},
		{"pure silence", Stats{Peak: 0, AvgRMS: 0, Duration: 1}, Quiet},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v := Classify(tt.stats, th)
			if v.Reason != tt.reason {
				t.Errorf("Classify(%+v) = %s, want %s", tt.stats, v.Reason, tt.reason)
			}
			if v.Silent != (tt.reason != Speech) {
				t.Errorf("Silent = %v for reason %s", v.Silent, v.Reason)
			}
			if IsSilence(tt.stats, th) != v.Silent {
				t.Error("IsSilence disagrees with Classify")
			}
		})
	}
}

// Raising any statistic never turns speech into silence.
func TestMonotonic(t *testing.T) {
	th := DefaultThresholds()
	base := []Stats{
		{Peak: 0.01, AvgRMS: 0.001, Duration: 0.1},
		{Peak: 0.03, AvgRMS: 0.001, Duration: 0.5},
		{Peak: 0.001, AvgRMS: 0.01, Duration: 1},
		{Peak: 0.5, AvgRMS: 0.2, Duration: 5},
	}
	bump := []func(Stats) Stats{
		func(s Stats) Stats { s.Peak *= 2; return s },
		func(s Stats) Stats { s.AvgRMS *= 2; return s },
		func(s Stats) Stats { s.Duration += 1; return s },
	}
	for _, s := range base {
		if IsSilence(s, th) {
			continue
		}
		for i, f := range bump {
			if IsSilence(f(s), th) {
				t.Errorf("bump %d turned %+v into silence", i, s)
			}
		}
	}
}

func TestEmptyIsSilentWithoutMinimum(t *testing.T) {
	th := Thresholds{EnergyThreshold: 0, PeakThreshold: 0.02, MinDuration: 0}
	if v := Classify(Stats{}, th); !v.Silent || v.Reason != TooShort {
		t.Errorf("empty recording with no minimum = %+v, want silent/too_short", v)
	}
	if v := Classify(Stats{Duration: 0.05}, th); v.Silent {
		t.Errorf("non-empty recording with zero energy threshold = %+v, want speech", v)
	}
}

func TestTickHasSpeech(t *testing.T) {
	th := DefaultThresholds()
	if TickHasSpeech(0.001, 0.001, th) {
		t.Error("near-zero tick counted as speech")
	}
	if !TickHasSpeech(0.5, 0.001, th) {
		t.Error("loud peak not counted as speech")
	}
	if !TickHasSpeech(0.001, 0.01, th) {
		t.Error("high rms not counted as speech")
	}
}
