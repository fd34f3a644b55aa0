package transcriber

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os/exec"
	"strings"

	"github.com/mattn/go-shellwords"
)

type LocalConfig struct {
	Command     string // e.g. "faster-whisper-cli" or "python3 transcribe.py"
	ModelSize   string
	Device      string
	ComputeType string
	Language    string
}

// Local runs an on-device speech model as a subprocess. The command gets
// the audio path and model options as flags and prints either a JSON object
// with a "text" field or the plain transcript on stdout.
type Local struct {
	cmd []string
	cfg LocalConfig
}

type localResult struct {
	Text string `json:"text"`
}

func NewLocal(cfg LocalConfig) (*Local, error) {
	parser := shellwords.NewParser()
	parser.ParseEnv = true
	args, err := parser.Parse(cfg.Command)
	if err != nil {
		return nil, fmt.Errorf("parse local model command: %w", err)
	}
	if len(args) == 0 {
		return nil, fmt.Errorf("local model command is empty")
	}
	return &Local{cmd: args, cfg: cfg}, nil
}

func (l *Local) Name() string { return "local" }

func (l *Local) Args(audioPath string, prompts Prompts) []string {
	args := append([]string{}, l.cmd[1:]...)
	args = append(args, "--audio", audioPath)
	if l.cfg.ModelSize != "" {
		args = append(args, "--model", l.cfg.ModelSize)
	}
	if l.cfg.Device != "" {
		args = append(args, "--device", l.cfg.Device)
	}
	if l.cfg.ComputeType != "" {
		args = append(args, "--compute-type", l.cfg.ComputeType)
	}
	if l.cfg.Language != "" {
		args = append(args, "--language", l.cfg.Language)
	}
	if p := prompts.Get(PromptWhisper); p != "" {
		args = append(args, "--initial-prompt", p)
	}
	return args
}

func (l *Local) Transcribe(ctx context.Context, audioPath string, prompts Prompts) (string, error) {
	command := exec.CommandContext(ctx, l.cmd[0], l.Args(audioPath, prompts)...)
	var stdout, stderr bytes.Buffer
	command.Stdout = &stdout
	command.Stderr = &stderr

	if err := command.Run(); err != nil {
		return "", fmt.Errorf("local model failed: %w: %s", err, strings.TrimSpace(stderr.String()))
	}

	out := bytes.TrimSpace(stdout.Bytes())
	if len(out) > 0 && out[0] == '{' {
		var res localResult
		if err := json.Unmarshal(out, &res); err != nil {
			return "", fmt.Errorf("decode local model output: %w", err)
		}
		return strings.TrimSpace(res.Text), nil
	}
	return string(out), nil
}
