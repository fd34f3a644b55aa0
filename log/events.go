package log

import (
	"time"

	"github.com/rs/zerolog"
)

// NetworkMetrics describes one HTTP round trip to a transcription API.
type NetworkMetrics struct {
	AudioLengthS     float64
	RawSizeKB        float64
	CompressedSizeKB float64
	EncodeTimeMs     float64
	DNSTimeMs        float64
	TLSTimeMs        float64
	TTFBMs           float64
	TotalTimeMs      float64
	ConnReused       bool
	TLSProto         string
}

func (m NetworkMetrics) MarshalZerologObject(e *zerolog.Event) {
	conn := "new"
	if m.ConnReused {
		conn = "reused"
	}
	e.Str("conn", conn)
	if m.TLSProto != "" {
		e.Str("tls_proto", m.TLSProto)
	}
	e.Float64("audio_s", m.AudioLengthS).
		Float64("raw_kb", m.RawSizeKB).
		Float64("compressed_kb", m.CompressedSizeKB).
		Float64("encode_ms", m.EncodeTimeMs).
		Float64("dns_ms", m.DNSTimeMs).
		Float64("tls_ms", m.TLSTimeMs).
		Float64("ttfb_ms", m.TTFBMs).
		Float64("total_ms", m.TotalTimeMs)
}

// RecordingStats is the summary of one finished capture session.
type RecordingStats struct {
	SessionID  string
	Device     string
	SampleRate uint32
	Frames     uint64
	DurationS  float64
	Peak       float64
	AvgRMS     float64
	Verdict    string
}

func (s RecordingStats) MarshalZerologObject(e *zerolog.Event) {
	e.Str("session", s.SessionID).
		Str("device", s.Device).
		Uint32("rate", s.SampleRate).
		Uint64("frames", s.Frames).
		Float64("duration_s", s.DurationS).
		Float64("peak", s.Peak).
		Float64("avg_rms", s.AvgRMS).
		Str("verdict", s.Verdict)
}

func Network(m NetworkMetrics, provider, format string) {
	event(zerolog.InfoLevel).
		Str("provider", provider).
		Str("format", format).
		EmbedObject(m).
		Msg("upload")
}

// Negotiated records the rate a capture stream opened at and how many
// candidates were tried to get there.
func Negotiated(device string, rate uint32, attempts int) {
	event(zerolog.InfoLevel).
		Str("device", device).
		Uint32("rate", rate).
		Int("attempts", attempts).
		Msg("stream_open")
}

func Recording(s RecordingStats) {
	event(zerolog.InfoLevel).EmbedObject(s).Msg("recording")
}

func JobResult(jobID, provider, status string, elapsed time.Duration, chars int, err error) {
	level := zerolog.InfoLevel
	if err != nil {
		level = zerolog.ErrorLevel
	}
	event(level).
		Err(err).
		Str("job", jobID).
		Str("provider", provider).
		Str("status", status).
		Dur("elapsed", elapsed).
		Int("chars", chars).
		Msg("transcription")
}

func SessionStart(provider, device string) {
	event(zerolog.InfoLevel).Str("provider", provider).Str("device", device).Msg("session_start")
}

func SessionEnd(count int) {
	event(zerolog.InfoLevel).Int("count", count).Msg("session_end")
}
