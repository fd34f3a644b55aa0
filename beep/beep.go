// Package beep plays the short start, end and error cues around a
// dictation.
package beep

import (
	"math"
	"sync"
	"sync/atomic"
	"time"
)

const sampleRate = 44100

var disabled atomic.Bool

func Disable()      { disabled.Store(true) }
func Enable()       { disabled.Store(false) }
func Enabled() bool { return !disabled.Load() }

// cue is a decaying sine played count times with gap in between.
type cue struct {
	freq   float64
	volume float64
	decay  float64
	length time.Duration
	count  int
	gap    time.Duration
}

var (
	// high and short
	startCue = cue{freq: 1200, volume: 0.5, decay: 60, length: toneLength, count: 1}
	endCue   = cue{freq: 900, volume: 0.5, decay: 40, length: toneLength, count: 1}
	// low double beep
	errorCue = cue{freq: 350, volume: 0.6, decay: 30, length: 80 * time.Millisecond, count: 2, gap: 50 * time.Millisecond}
)

func frames(d time.Duration) int {
	return int(float64(sampleRate) * d.Seconds())
}

// pcm renders c as mono 16-bit samples at sampleRate.
func (c cue) pcm() []int16 {
	tone := make([]int16, frames(c.length))
	for i := range tone {
		t := float64(i) / sampleRate
		tone[i] = int16(math.Sin(2*math.Pi*c.freq*t) * math.MaxInt16 * c.volume * math.Exp(-t*c.decay))
	}
	out := make([]int16, 0, c.count*len(tone)+(c.count-1)*frames(c.gap))
	for i := 0; i < c.count; i++ {
		if i > 0 {
			out = append(out, make([]int16, frames(c.gap))...)
		}
		out = append(out, tone...)
	}
	return out
}

type cueSet struct{ start, end, fail []int16 }

var (
	renderOnce sync.Once
	cache      cueSet
)

func rendered() *cueSet {
	renderOnce.Do(func() {
		cache = cueSet{start: startCue.pcm(), end: endCue.pcm(), fail: errorCue.pcm()}
	})
	return &cache
}

func PlayStart() { play(rendered().start) }
func PlayEnd()   { play(rendered().end) }
func PlayError() { play(rendered().fail) }

func play(pcm []int16) {
	if disabled.Load() || len(pcm) == 0 {
		return
	}
	go output(pcm)
}
