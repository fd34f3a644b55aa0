package encoder

import (
	"fmt"
	"os"

	"github.com/go-audio/audio"
	"github.com/go-audio/wav"
)

// FlacFromWAV compresses a mono 16-bit WAV recording at its own rate.
func FlacFromWAV(path string) (*Clip, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	d := wav.NewDecoder(f)
	if !d.IsValidFile() {
		return nil, fmt.Errorf("%s: not a valid WAV file", path)
	}
	if d.BitDepth != BitsPerSample || d.NumChans != Channels {
		return nil, fmt.Errorf("%s: %d-bit %d-channel audio, want 16-bit mono", path, d.BitDepth, d.NumChans)
	}
	if err := d.FwdToPCM(); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}

	enc, err := NewFlac(d.SampleRate, uint64(d.PCMSize/(BitsPerSample/8)))
	if err != nil {
		return nil, err
	}
	buf := &audio.IntBuffer{Data: make([]int, BlockSize)}
	for {
		n, err := d.PCMBuffer(buf)
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", path, err)
		}
		if n == 0 {
			break
		}
		if err := enc.Write(buf.Data[:n]); err != nil {
			return nil, err
		}
	}
	return enc.Finish()
}
