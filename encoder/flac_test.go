package encoder

import (
	"bytes"
	"io"
	"math"
	"os"
	"path/filepath"
	"testing"

	"github.com/go-audio/audio"
	"github.com/go-audio/wav"
	"github.com/mewkiz/flac"
)

func writeTone(t *testing.T, rate, frames int) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "tone.wav")
	f, err := os.Create(path)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()

	data := make([]int, frames)
	for i := range data {
		data[i] = int(8000 * math.Sin(2*math.Pi*440*float64(i)/float64(rate)))
	}
	enc := wav.NewEncoder(f, rate, 16, 1, 1)
	if err := enc.Write(&audio.IntBuffer{
		Format:         &audio.Format{NumChannels: 1, SampleRate: rate},
		Data:           data,
		SourceBitDepth: 16,
	}); err != nil {
		t.Fatal(err)
	}
	if err := enc.Close(); err != nil {
		t.Fatal(err)
	}
	return path
}

func decodeFlac(t *testing.T, data []byte) (rate uint32, samples []int32) {
	t.Helper()
	stream, err := flac.New(bytes.NewReader(data))
	if err != nil {
		t.Fatalf("flac.New: %v", err)
	}
	defer stream.Close()
	for {
		f, err := stream.ParseNext()
		if err == io.EOF {
			break
		}
		if err != nil {
			t.Fatalf("ParseNext: %v", err)
		}
		samples = append(samples, f.Subframes[0].Samples...)
	}
	return stream.Info.SampleRate, samples
}

func TestFlacWriteOddChunks(t *testing.T) {
	in := make([]int, 3*BlockSize+100)
	for i := range in {
		in[i] = int(8000 * math.Sin(float64(i)/8))
	}

	enc, err := NewFlac(16000, uint64(len(in)))
	if err != nil {
		t.Fatalf("NewFlac: %v", err)
	}
	for i := 0; i < len(in); i += 1000 {
		if err := enc.Write(in[i:min(i+1000, len(in))]); err != nil {
			t.Fatalf("Write at %d: %v", i, err)
		}
	}
	clip, err := enc.Finish()
	if err != nil {
		t.Fatalf("Finish: %v", err)
	}
	if clip.Frames != uint64(len(in)) {
		t.Errorf("Frames = %d, want %d", clip.Frames, len(in))
	}

	rate, out := decodeFlac(t, clip.Data)
	if rate != 16000 {
		t.Errorf("decoded rate = %d", rate)
	}
	if len(out) != len(in) {
		t.Fatalf("decoded %d samples, want %d", len(out), len(in))
	}
	for i := range in {
		if int(out[i]) != in[i] {
			t.Fatalf("sample %d = %d, want %d", i, out[i], in[i])
		}
	}
}

func TestFlacEmpty(t *testing.T) {
	enc, err := NewFlac(16000, 0)
	if err != nil {
		t.Fatalf("NewFlac: %v", err)
	}
	clip, err := enc.Finish()
	if err != nil {
		t.Fatalf("Finish on empty stream: %v", err)
	}
	if clip.Frames != 0 || clip.Seconds() != 0 {
		t.Errorf("Frames = %d, Seconds = %v", clip.Frames, clip.Seconds())
	}
	if string(clip.Data[:4]) != "fLaC" {
		t.Error("missing FLAC magic")
	}
}

func TestFlacUseAfterFinish(t *testing.T) {
	enc, _ := NewFlac(16000, 0)
	if _, err := enc.Finish(); err != nil {
		t.Fatal(err)
	}
	if err := enc.Write([]int{1, 2, 3}); err == nil {
		t.Error("Write after Finish should fail")
	}
	if _, err := enc.Finish(); err == nil {
		t.Error("second Finish should fail")
	}
}

func TestFlacZeroRate(t *testing.T) {
	if _, err := NewFlac(0, 0); err == nil {
		t.Fatal("expected error for zero sample rate")
	}
}

func TestFlacFromWAVKeepsRate(t *testing.T) {
	for _, rate := range []int{16000, 44100, 48000} {
		path := writeTone(t, rate, rate/2)

		clip, err := FlacFromWAV(path)
		if err != nil {
			t.Fatalf("rate %d: %v", rate, err)
		}
		if clip.SampleRate != uint32(rate) {
			t.Errorf("SampleRate = %d, want %d", clip.SampleRate, rate)
		}
		if clip.Frames != uint64(rate/2) {
			t.Errorf("Frames = %d, want %d", clip.Frames, rate/2)
		}
		if clip.Seconds() != 0.5 {
			t.Errorf("Seconds = %v, want 0.5", clip.Seconds())
		}
		got, _ := decodeFlac(t, clip.Data)
		if got != uint32(rate) {
			t.Errorf("stream header rate = %d", got)
		}
	}
}

func TestFlacFromWAVRejectsGarbage(t *testing.T) {
	path := filepath.Join(t.TempDir(), "junk.wav")
	if err := os.WriteFile(path, []byte("not a wav"), 0644); err != nil {
		t.Fatal(err)
	}
	if _, err := FlacFromWAV(path); err == nil {
		t.Fatal("expected error")
	}
}
