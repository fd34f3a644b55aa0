package main

import (
	"time"

	"voicein/vad"
)

const (
	tickInterval = 100 * time.Millisecond
	// warnWindow is both how much recent audio decides the warning and how
	// often the cue repeats in toggle mode.
	warnWindow  = 8 * time.Second
	closeWindow = 30 * time.Second

	speechMinRatio   = 0.10
	speechClearRatio = 0.25 // above speechMinRatio so the warning does not flap
)

type SilenceEvent int

const (
	SilenceNone      SilenceEvent = iota
	SilenceWarn                   // no voice detected
	SilenceWarnClear              // speech resumed after warning
	SilenceRepeat                 // repeat cue while still silent (toggle mode)
	SilenceAutoClose              // nobody is talking, stop the toggle recording
)

// voiceWindow counts voiced ticks among the most recent len(slots) ticks.
type voiceWindow struct {
	slots  []bool
	next   int
	filled int
	voiced int
}

func newVoiceWindow(span time.Duration) *voiceWindow {
	return &voiceWindow{slots: make([]bool, int(span/tickInterval))}
}

func (w *voiceWindow) push(v bool) {
	if w.full() {
		if w.slots[w.next] {
			w.voiced--
		}
	} else {
		w.filled++
	}
	w.slots[w.next] = v
	if v {
		w.voiced++
	}
	w.next = (w.next + 1) % len(w.slots)
}

func (w *voiceWindow) full() bool { return w.filled == len(w.slots) }
func (w *voiceWindow) size() int  { return len(w.slots) }

// share is the voiced fraction of the ticks held so far; an empty window
// counts as all speech.
func (w *voiceWindow) share() float64 {
	if w.filled == 0 {
		return 1
	}
	return float64(w.voiced) / float64(w.filled)
}

// silenceMonitor turns per-tick voice activity into user cues. A warning
// needs a full warn window under speechMinRatio and clears at
// speechClearRatio. In toggle mode the cue repeats while the warning stands
// and a full close window of near-silence asks to stop the recording.
type silenceMonitor struct {
	thresholds vad.Thresholds
	isToggle   func() bool

	recent   *voiceWindow
	session  *voiceWindow
	warned   bool
	sinceCue int // ticks since the last warn or repeat cue
}

// newSilenceMonitor builds a monitor for one recording. A nil isToggle
// means hold mode.
func newSilenceMonitor(t vad.Thresholds, isToggle func() bool) *silenceMonitor {
	if isToggle == nil {
		isToggle = func() bool { return false }
	}
	return &silenceMonitor{
		thresholds: t,
		isToggle:   isToggle,
		recent:     newVoiceWindow(warnWindow),
		session:    newVoiceWindow(closeWindow),
	}
}

// Observe classifies one tick worth of level readings.
func (m *silenceMonitor) Observe(peak, rms float64) SilenceEvent {
	return m.Tick(vad.TickHasSpeech(peak, rms, m.thresholds))
}

func (m *silenceMonitor) Tick(hasSpeech bool) SilenceEvent {
	m.recent.push(hasSpeech)
	m.session.push(hasSpeech)
	m.sinceCue++

	switch {
	case !m.warned && m.recent.full() && m.recent.share() < speechMinRatio:
		m.warned, m.sinceCue = true, 0
		return SilenceWarn
	case m.warned && m.recent.share() >= speechClearRatio:
		m.warned = false
		return SilenceWarnClear
	}

	if !m.isToggle() {
		return SilenceNone
	}
	if m.session.full() && m.session.share() < speechMinRatio {
		return SilenceAutoClose
	}
	if m.warned && m.sinceCue >= m.recent.size() {
		m.sinceCue = 0
		return SilenceRepeat
	}
	return SilenceNone
}
