package encoder

import (
	"bytes"
	"fmt"
	"time"

	"github.com/mewkiz/flac"
	"github.com/mewkiz/flac/frame"
	"github.com/mewkiz/flac/meta"
)

// Flac turns a stream of mono 16-bit samples into FLAC frames of
// BlockSize samples. Write may be called with any slice length; the tail
// is held back until Finish. Not safe for concurrent use.
type Flac struct {
	rate    uint32
	out     bytes.Buffer
	enc     *flac.Encoder
	pending []int32
	frames  uint64
	spent   time.Duration
	done    bool
}

// NewFlac starts a stream at sampleRate. nSamples goes into the stream
// header and may be zero when the length is not known yet.
func NewFlac(sampleRate uint32, nSamples uint64) (*Flac, error) {
	if sampleRate == 0 {
		return nil, fmt.Errorf("flac: sample rate is zero")
	}
	f := &Flac{rate: sampleRate, pending: make([]int32, 0, BlockSize)}
	enc, err := flac.NewEncoder(&f.out, &meta.StreamInfo{
		BlockSizeMin:  BlockSize,
		BlockSizeMax:  BlockSize,
		SampleRate:    sampleRate,
		NChannels:     Channels,
		BitsPerSample: BitsPerSample,
		NSamples:      nSamples,
	})
	if err != nil {
		return nil, fmt.Errorf("flac: %w", err)
	}
	enc.EnablePredictionAnalysis(true)
	f.enc = enc
	return f, nil
}

// Write queues samples, emitting a frame each time BlockSize accumulate.
func (f *Flac) Write(samples []int) error {
	if f.done {
		return fmt.Errorf("flac: write after finish")
	}
	start := time.Now()
	defer func() { f.spent += time.Since(start) }()

	for _, s := range samples {
		f.pending = append(f.pending, int32(s))
		if len(f.pending) == BlockSize {
			if err := f.flush(); err != nil {
				return err
			}
		}
	}
	return nil
}

func (f *Flac) flush() error {
	if len(f.pending) == 0 {
		return nil
	}
	n := len(f.pending)
	fr := &frame.Frame{
		Header: frame.Header{
			BlockSize:     uint16(n),
			SampleRate:    f.rate,
			Channels:      frame.ChannelsMono,
			BitsPerSample: BitsPerSample,
		},
		Subframes: []*frame.Subframe{{
			SubHeader: frame.SubHeader{Pred: frame.PredVerbatim},
			Samples:   append([]int32(nil), f.pending...),
			NSamples:  n,
		}},
	}
	if err := f.enc.WriteFrame(fr); err != nil {
		return fmt.Errorf("flac: frame at sample %d: %w", f.frames, err)
	}
	f.frames += uint64(n)
	f.pending = f.pending[:0]
	return nil
}

// Finish writes the short final frame, closes the stream and hands back
// the encoded clip.
func (f *Flac) Finish() (*Clip, error) {
	if f.done {
		return nil, fmt.Errorf("flac: already finished")
	}
	start := time.Now()
	if err := f.flush(); err != nil {
		return nil, err
	}
	if err := f.enc.Close(); err != nil {
		return nil, fmt.Errorf("flac: close: %w", err)
	}
	f.done = true
	f.spent += time.Since(start)
	return &Clip{
		Data:       f.out.Bytes(),
		SampleRate: f.rate,
		Frames:     f.frames,
		EncodeTime: f.spent,
	}, nil
}
