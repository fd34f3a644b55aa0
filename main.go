package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	_ "net/http/pprof"
	"os"
	"path/filepath"
	"runtime/debug"
	"strings"
	"time"

	"voicein/audio"
	"voicein/beep"
	"voicein/clipboard"
	"voicein/config"
	"voicein/doctor"
	"voicein/history"
	"voicein/hotkey"
	"voicein/log"
	"voicein/metrics"
	"voicein/shutdown"
	"voicein/transcriber"
)

var version = "dev"

type options struct {
	configPath string
	provider   string
	lang       string
	device     string
	key        string
	autoPaste  bool
	setup      bool
	doctor     bool
	history    int
	test       bool
	tui        bool
	mode       string
	longPress  time.Duration
	logPath    string
	profile    string
	metrics    string
	version    bool
	crash      bool
}

func parseFlags(fs *flag.FlagSet, args []string) (options, map[string]bool, error) {
	var o options
	fs.StringVar(&o.configPath, "config", "", "Path to config.yaml (default: user config dir)")
	fs.StringVar(&o.provider, "provider", "", "Transcription provider: groq, gemini, local or fake")
	fs.StringVar(&o.lang, "lang", "", "Language code passed to the provider (e.g. ja, en)")
	fs.StringVar(&o.device, "device", "", "Use named microphone device")
	fs.StringVar(&o.key, "key", "", "Hold key: "+strings.Join(hotkey.KeyNames(), ", "))
	fs.BoolVar(&o.autoPaste, "autopaste", true, "Auto-paste to focused window after transcription")
	fs.BoolVar(&o.setup, "setup", false, "Select microphone device and save it to the config file")
	fs.BoolVar(&o.doctor, "doctor", false, "Run system diagnostics and exit (optional WAV argument replays a file)")
	fs.IntVar(&o.history, "history", 0, "Print the last N transcriptions and exit")
	fs.BoolVar(&o.test, "test", false, "Test mode (headless, stdin-driven)")
	fs.BoolVar(&o.tui, "tui", true, "Run with terminal UI")
	fs.StringVar(&o.mode, "mode", string(hotkey.ModeHold), "Key mode: hold, or hybrid (tap to toggle, hold to talk)")
	fs.DurationVar(&o.longPress, "longpress", hotkey.DefaultLongPress, "Long-press threshold for hybrid mode (e.g. 350ms)")
	fs.StringVar(&o.logPath, "logpath", "", "log directory path (default: OS-specific location, use ./ for current dir)")
	fs.StringVar(&o.profile, "profile", "", "Enable pprof profiling server (e.g., :6060 or localhost:6060)")
	fs.StringVar(&o.metrics, "metrics", "", "Serve Prometheus metrics on this address (e.g. localhost:9464)")
	fs.BoolVar(&o.version, "version", false, "Print version and exit")
	fs.BoolVar(&o.crash, "crash", false, "Trigger synthetic panic for testing crash logging")
	if err := fs.Parse(args); err != nil {
		return o, nil, err
	}
	set := make(map[string]bool)
	fs.Visit(func(f *flag.Flag) { set[f.Name] = true })
	return o, set, nil
}

// applyFlags overrides cfg with the flags given on the command line.
func applyFlags(cfg *config.Config, o options, set map[string]bool) {
	if set["provider"] {
		cfg.Provider = o.provider
	}
	if set["lang"] {
		cfg.Language = o.lang
	}
	if set["device"] {
		cfg.Audio.InputDevice = o.device
	}
	if set["key"] {
		cfg.Audio.HoldKey = o.key
	}
	if set["autopaste"] {
		cfg.Audio.AutoPaste = o.autoPaste
	}
}

func configPath(explicit string) (string, error) {
	if explicit != "" {
		return explicit, nil
	}
	dir, err := config.Dir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, config.FileName), nil
}

func historyPath(cfg config.Config) (string, error) {
	if cfg.History.Path != "" {
		return cfg.History.Path, nil
	}
	dir, err := config.StateDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "history.db"), nil
}

func run() int {
	opts, set, err := parseFlags(flag.CommandLine, os.Args[1:])
	if err != nil {
		return 2
	}

	if opts.version {
		fmt.Printf("voicein %s\n", version)
		return 0
	}

	// Resolve log directory early
	logPath, err := log.ResolveDir(opts.logPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: failed to resolve log directory: %v\n", err)
		return 1
	}
	if err := log.UseDir(logPath); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: %v\n", err)
	}

	crashPath := filepath.Join(logPath, "crash_log.txt")
	crashFile, err := os.OpenFile(crashPath, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err == nil {
		fmt.Fprintf(crashFile, "\n=== Session %s [pid=%d] ===\n", time.Now().Format("2006-01-02 15:04:05"), os.Getpid())
		debug.SetCrashOutput(crashFile, debug.CrashOptions{})
	}

	if opts.profile != "" {
		go func() {
			fmt.Fprintf(os.Stderr, "pprof server listening on http://%s/debug/pprof/\n", opts.profile)
			if err := http.ListenAndServe(opts.profile, nil); err != nil {
				fmt.Fprintf(os.Stderr, "pprof server error: %v\n", err)
			}
		}()
	}

	if opts.crash {
		panic("TEST CRASH: synthetic panic to verify crash logging")
	}

	cfg, err := config.Load(opts.configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}
	applyFlags(&cfg, opts, set)
	if err := config.Validate(cfg); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}

	if opts.history > 0 {
		return printHistory(cfg, opts.history)
	}

	if opts.doctor {
		return doctor.Run(doctor.Options{Config: cfg, WAVFile: flag.Arg(0)})
	}

	if opts.setup {
		if err := setupDevice(&cfg, opts.configPath); err != nil {
			if errors.Is(err, audio.ErrSelectionCancelled) {
				return 1
			}
			fmt.Fprintf(os.Stderr, "Warning: device selection failed: %v\n", err)
			fmt.Fprintln(os.Stderr, "Falling back to default device")
		}
	}

	if err := log.Init(); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: could not init logging: %v\n", err)
	}
	defer log.Close()
	log.SessionStart(cfg.Provider, cfg.Audio.InputDevice)

	if opts.metrics != "" {
		stop, err := serveMetrics(opts.metrics)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Warning: metrics disabled: %v\n", err)
		} else {
			defer stop()
		}
	}

	if !cfg.Audio.Beeps {
		beep.Disable()
	}

	var store *history.Store
	if cfg.History.Enabled {
		store, err = openHistory(cfg)
		if err != nil {
			log.Warnf("history disabled: %v", err)
			fmt.Fprintf(os.Stderr, "Warning: history disabled: %v\n", err)
		} else {
			defer store.Close()
		}
	}

	registry := cfg.Registry()

	if opts.test {
		if flag.NArg() == 0 {
			fmt.Fprintln(os.Stderr, "Usage: voicein -test <wav-file>")
			return 1
		}
		return runTestMode(cfg, registry, store, flag.Arg(0), os.Stdin, os.Stdout)
	}
	return runLive(cfg, registry, store, opts)
}

func runLive(cfg config.Config, registry *transcriber.Registry, store *history.Store, opts options) int {
	key, err := hotkey.ParseKey(cfg.Audio.HoldKey)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}

	if cfg.Audio.AutoPaste {
		if err := clipboard.Init(); err != nil {
			fmt.Printf("Warning: paste init failed: %v\n", err)
			fmt.Println("Fix with: sudo chmod 660 /dev/uinput && sudo chgrp input /dev/uinput")
		}
	}

	actx, err := audio.NewContext()
	if err != nil {
		log.Errorf("audio context init error: %v", err)
		fmt.Printf("Error initializing audio context: %v\n", err)
		return 1
	}
	defer actx.Close()

	hk := hotkey.New(key)
	if err := hk.Register(); err != nil {
		log.Errorf("hotkey register error: %v", err)
		fmt.Printf("Error registering hotkey %s: %v\n", key.Label, err)
		return 1
	}
	defer hk.Unregister()

	ctx, cancel := shutdown.Context(context.Background())
	defer cancel()

	// open the API connection while the user is still reaching for the key
	if b, err := registry.Get(cfg.TranscriberProvider()); err == nil {
		if w, ok := b.(transcriber.Warmer); ok {
			go w.Warm(ctx)
		}
	}

	var sink EventSink = newLineSink(os.Stdout)
	ts := &tuiSink{}
	if opts.tui {
		sink = ts
	}
	a := newApp(cfg, actx, registry, store, sink)

	if opts.tui {
		p := NewTUIProgram(key.Label, a.send)
		ts.p = p
		uiDone := make(chan struct{})
		go func() {
			defer close(uiDone)
			if _, err := p.Run(); err != nil {
				log.Errorf("TUI error: %v", err)
			}
			cancel()
		}()
		defer func() {
			p.Quit()
			<-uiDone
		}()
	} else {
		fmt.Printf("voicein %s ready. Hold %s to dictate, Ctrl+C to quit.\n", version, key.Label)
	}

	start, stop := hk.Keydown(), hk.Keyup()
	switch hotkey.Mode(opts.mode) {
	case hotkey.ModeHybrid:
		hy := hotkey.NewHybrid(hk, opts.longPress)
		defer hy.Close()
		start, stop = hy.Start(), hy.StopChan()
		a.isToggle = hy.IsToggle
	case hotkey.ModeHold:
	default:
		log.Warnf("unknown mode %q, using hold", opts.mode)
	}

	a.loop(ctx, start, stop)
	return 0
}

func setupDevice(cfg *config.Config, explicit string) error {
	ctx, err := audio.NewContext()
	if err != nil {
		return err
	}
	defer ctx.Close()

	dev, err := audio.SelectDevice(ctx, cfg.Audio.InputDevice)
	if err != nil {
		return err
	}
	cfg.Audio.InputDevice = ""
	if dev != nil {
		cfg.Audio.InputDevice = dev.Name
	}

	path, err := configPath(explicit)
	if err != nil {
		return err
	}
	if err := config.Save(path, *cfg); err != nil {
		return fmt.Errorf("save config: %w", err)
	}
	fmt.Printf("Saved input device to %s\n", path)
	return nil
}

func openHistory(cfg config.Config) (*history.Store, error) {
	path, err := historyPath(cfg)
	if err != nil {
		return nil, err
	}
	return history.Open(context.Background(), path, cfg.History.MaxItems)
}

func printHistory(cfg config.Config, n int) int {
	store, err := openHistory(cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}
	defer store.Close()

	items, err := store.List(context.Background(), n)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}
	if len(items) == 0 {
		fmt.Println("No transcriptions yet")
		return 0
	}
	for _, it := range items {
		text := it.Text
		if it.Error != "" {
			text = "error: " + it.Error
		}
		fmt.Printf("%s  %-6s %5.1fs  %s\n", it.CreatedAt.Local().Format("2006-01-02 15:04:05"), it.Provider, it.AudioSeconds, text)
	}
	return 0
}

func serveMetrics(addr string) (func(), error) {
	handler, shutdownProvider, err := metrics.Setup("voicein")
	if err != nil {
		return nil, err
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", handler)
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Warnf("metrics server error: %v", err)
		}
	}()
	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		srv.Shutdown(ctx)
		shutdownProvider(ctx)
	}, nil
}
