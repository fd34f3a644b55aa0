// Package encoder compresses finished recordings before they are uploaded.
package encoder

import "time"

const (
	Channels      = 1
	BitsPerSample = 16
	// BlockSize is the FLAC frame length in samples.
	BlockSize = 4096
)

// Clip is a compressed recording ready for upload.
type Clip struct {
	Data       []byte
	SampleRate uint32
	Frames     uint64
	EncodeTime time.Duration
}

// Seconds is the audio length of the clip.
func (c *Clip) Seconds() float64 {
	if c.SampleRate == 0 {
		return 0
	}
	return float64(c.Frames) / float64(c.SampleRate)
}
