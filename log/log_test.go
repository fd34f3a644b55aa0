package log

import (
	"errors"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"testing"
	"time"
)

func openLogs(t *testing.T) string {
	t.Helper()
	tmp := t.TempDir()
	if err := UseDir(tmp); err != nil {
		t.Fatal(err)
	}
	if err := Init(); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(Close)
	return tmp
}

func readLog(t *testing.T, dir, name string) string {
	t.Helper()
	data, err := os.ReadFile(filepath.Join(dir, name))
	if err != nil {
		t.Fatal(err)
	}
	return string(data)
}

func TestResolveDir(t *testing.T) {
	wd, _ := os.Getwd()
	tests := []struct {
		flag, env, want string
	}{
		{"/tmp/mylog", "/tmp/other", "/tmp/mylog"},
		{"logs", "", filepath.Join(wd, "logs")},
		{"", "/tmp/voicein-env-log", "/tmp/voicein-env-log"},
	}
	for _, tt := range tests {
		t.Setenv(EnvLogPath, tt.env)
		got, err := ResolveDir(tt.flag)
		if err != nil {
			t.Fatal(err)
		}
		if got != tt.want {
			t.Errorf("ResolveDir(%q) with env %q = %q, want %q", tt.flag, tt.env, got, tt.want)
		}
	}
}

func TestResolveDirDefault(t *testing.T) {
	t.Setenv(EnvLogPath, "")
	t.Setenv("XDG_STATE_HOME", "/tmp/xdg-state")
	got, err := ResolveDir("")
	if err != nil {
		t.Fatal(err)
	}
	if !strings.HasSuffix(got, filepath.Join("voicein", "logs")) && !strings.HasSuffix(got, "voicein") {
		t.Errorf("default dir %q", got)
	}
}

func TestUseDirCreatesNested(t *testing.T) {
	d := filepath.Join(t.TempDir(), "a", "b")
	if err := UseDir(d); err != nil {
		t.Fatal(err)
	}
	if Dir() != d {
		t.Errorf("Dir() = %q", Dir())
	}
	if fi, err := os.Stat(d); err != nil || !fi.IsDir() {
		t.Errorf("not created: %v", err)
	}
}

func TestTranscriptLine(t *testing.T) {
	dir := openLogs(t)
	TranscriptionText("hello world")
	TranscriptionText("second")

	lines := strings.Split(strings.TrimSpace(readLog(t, dir, transcriptName)), "\n")
	if len(lines) != 2 {
		t.Fatalf("got %d lines: %q", len(lines), lines)
	}
	f := strings.Split(lines[0], "\t")
	if len(f) != 3 || f[2] != "hello world" {
		t.Fatalf("fields = %q", f)
	}
	if _, err := time.Parse(stampLayout, f[0]); err != nil {
		t.Errorf("bad timestamp %q: %v", f[0], err)
	}
	if f[1] != "["+strconv.Itoa(os.Getpid())+"]" {
		t.Errorf("pid field %q", f[1])
	}
}

func TestSilentWhenClosed(t *testing.T) {
	dir := openLogs(t)
	Close()
	Close()
	Info("dropped")
	Warnf("dropped %d", 1)
	TranscriptionText("dropped")
	Recording(RecordingStats{SessionID: "x"})
	JobResult("j", "fake", "failed", time.Second, 0, errors.New("boom"))

	if s := readLog(t, dir, diagName); s != "" {
		t.Errorf("diagnostics written after Close:\n%s", s)
	}
	if s := readLog(t, dir, transcriptName); s != "" {
		t.Errorf("transcript written after Close: %q", s)
	}
}

func TestStructuredEvents(t *testing.T) {
	dir := openLogs(t)

	Negotiated("USB Mic", 48000, 2)
	Recording(RecordingStats{SessionID: "abc", SampleRate: 48000, Frames: 4800, Verdict: "speech"})
	Network(NetworkMetrics{ConnReused: true, TTFBMs: 120}, "groq", ".flac")
	JobResult("job1", "groq", "failed", 1500*time.Millisecond, 0, errors.New("HTTP 503"))
	Close()

	out := readLog(t, dir, diagName)
	for _, want := range []string{
		"stream_open", "rate=48000", "attempts=2",
		"recording", "session=abc", "verdict=speech",
		"upload", "conn=reused", "provider=groq",
		"transcription", "status=failed", "HTTP 503", "ERR",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("diagnostics missing %q:\n%s", want, out)
		}
	}
}

func TestInitReplacesOpenLogs(t *testing.T) {
	first := openLogs(t)
	Info("one")
	second := t.TempDir()
	if err := UseDir(second); err != nil {
		t.Fatal(err)
	}
	if err := Init(); err != nil {
		t.Fatal(err)
	}
	Info("two")
	Close()

	if s := readLog(t, first, diagName); !strings.Contains(s, "one") || strings.Contains(s, "two") {
		t.Errorf("first log: %q", s)
	}
	if s := readLog(t, second, diagName); !strings.Contains(s, "two") {
		t.Errorf("second log: %q", s)
	}
}
