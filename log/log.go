// Package log writes the diagnostics log and the plain transcript log.
// Every call is a no-op until Init succeeds and after Close.
package log

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
)

const EnvLogPath = "VOICEIN_LOG_PATH"

const (
	diagName       = "diagnostics_log.txt"
	transcriptName = "transcribe_log.txt"
	stampLayout    = "2006-01-02 15:04:05"
)

type sink struct {
	diag       zerolog.Logger
	diagF      *os.File
	mu         sync.Mutex
	transcript *os.File
	pid        int
}

var (
	cur atomic.Pointer[sink]
	dir atomic.Value // string
)

// ResolveDir picks the log directory: the -logpath flag, then
// VOICEIN_LOG_PATH, then the platform default.
func ResolveDir(flagPath string) (string, error) {
	for _, p := range []string{flagPath, os.Getenv(EnvLogPath)} {
		if p != "" {
			return filepath.Abs(p)
		}
	}
	return defaultDir()
}

func defaultDir() (string, error) {
	switch runtime.GOOS {
	case "windows":
		// %LocalAppData%
		base, err := os.UserCacheDir()
		if err != nil {
			return "", err
		}
		return filepath.Join(base, "voicein", "logs"), nil
	case "darwin":
		home, err := os.UserHomeDir()
		if err != nil {
			return "", err
		}
		return filepath.Join(home, "Library", "Logs", "voicein"), nil
	}
	state := os.Getenv("XDG_STATE_HOME")
	if state == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", err
		}
		state = filepath.Join(home, ".local", "state")
	}
	return filepath.Join(state, "voicein", "logs"), nil
}

// UseDir makes d the log directory, creating it if needed.
func UseDir(d string) error {
	if err := os.MkdirAll(d, 0o755); err != nil {
		return fmt.Errorf("create log directory: %w", err)
	}
	dir.Store(d)
	return nil
}

func Dir() string {
	d, _ := dir.Load().(string)
	return d
}

func appendFile(name string) (*os.File, error) {
	return os.OpenFile(filepath.Join(Dir(), name), os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
}

// Init opens both logs in Dir, replacing any logs already open.
func Init() error {
	if Dir() == "" {
		return fmt.Errorf("log directory not set")
	}
	diagF, err := appendFile(diagName)
	if err != nil {
		return err
	}
	transcript, err := appendFile(transcriptName)
	if err != nil {
		diagF.Close()
		return err
	}
	s := &sink{diagF: diagF, transcript: transcript, pid: os.Getpid()}
	s.diag = zerolog.New(zerolog.ConsoleWriter{
		Out:        diagF,
		TimeFormat: stampLayout,
		NoColor:    true,
	}).With().Timestamp().Int("pid", s.pid).Logger()

	if old := cur.Swap(s); old != nil {
		old.close()
	}
	return nil
}

func Close() {
	if s := cur.Swap(nil); s != nil {
		s.close()
	}
}

func (s *sink) close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.diagF.Close()
	s.transcript.Close()
}

// event returns nil when logging is off; zerolog ignores calls on a nil
// event.
func event(level zerolog.Level) *zerolog.Event {
	s := cur.Load()
	if s == nil {
		return nil
	}
	return s.diag.WithLevel(level)
}

func Info(msg string)                   { event(zerolog.InfoLevel).Msg(msg) }
func Infof(format string, args ...any)  { event(zerolog.InfoLevel).Msgf(format, args...) }
func Warnf(format string, args ...any)  { event(zerolog.WarnLevel).Msgf(format, args...) }
func Errorf(format string, args ...any) { event(zerolog.ErrorLevel).Msgf(format, args...) }

// TranscriptionText appends one delivered text to the transcript log.
func TranscriptionText(text string) {
	s := cur.Load()
	if s == nil {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	fmt.Fprintf(s.transcript, "%s\t[%d]\t%s\n", time.Now().Format(stampLayout), s.pid, text)
}
