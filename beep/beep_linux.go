//go:build linux

package beep

import (
	"time"

	"github.com/jfreymuth/pulse"
	"github.com/jfreymuth/pulse/proto"
)

// PulseAudio wants its buffer filled before draining, so cues run long
// and decay to silence.
const toneLength = 200 * time.Millisecond

// output opens a short-lived pulse client per cue.
func output(pcm []int16) {
	c, err := pulse.NewClient(pulse.ClientApplicationName("voicein"))
	if err != nil {
		return
	}
	defer c.Close()

	rest := pcm
	src := pulse.Int16Reader(func(buf []int16) (int, error) {
		if len(rest) == 0 {
			return 0, pulse.EndOfData
		}
		n := copy(buf, rest)
		rest = rest[n:]
		return n, nil
	})
	stream, err := c.NewPlayback(src,
		pulse.PlaybackMono,
		pulse.PlaybackSampleRate(sampleRate),
		pulse.PlaybackLatency(0.1),
		pulse.PlaybackRawOption(func(p *proto.CreatePlaybackStream) {
			p.ChannelVolumes = proto.ChannelVolumes{uint32(proto.VolumeNorm)}
		}),
	)
	if err != nil {
		return
	}
	defer stream.Close()
	stream.Start()
	stream.Drain()
	stream.Stop()
}
