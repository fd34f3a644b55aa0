package transcriber

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"voicein/encoder"
	"voicein/log"
)

const (
	DefaultGroqBaseURL     = "https://api.groq.com/openai/v1"
	DefaultWhisperModel    = "whisper-large-v3"
	DefaultRefineModel     = "llama-3.3-70b-versatile"
	uploadFormatFLAC       = "flac"
	uploadFormatWAV        = "wav"
	transcriptionsEndpoint = "/audio/transcriptions"
	chatEndpoint           = "/chat/completions"
)

type GroqConfig struct {
	APIKey       string
	BaseURL      string
	Model        string
	RefineModel  string // empty disables the refine pass
	Language     string
	UploadFormat string // "flac" or "wav"
}

// Groq transcribes with a Whisper model behind an OpenAI-compatible API,
// then optionally rewrites the raw transcript with a chat model.
type Groq struct {
	cfg    GroqConfig
	client *TracedClient
}

func NewGroq(cfg GroqConfig) *Groq {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultGroqBaseURL
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	if cfg.Model == "" {
		cfg.Model = DefaultWhisperModel
	}
	if cfg.UploadFormat == "" {
		cfg.UploadFormat = uploadFormatFLAC
	}
	return &Groq{cfg: cfg, client: NewTracedClient()}
}

func (g *Groq) Name() string { return "groq" }

// Warm pre-connects to the API host.
func (g *Groq) Warm(ctx context.Context) {
	if m := g.client.Warm(ctx, g.cfg.BaseURL+transcriptionsEndpoint); m != nil {
		log.Infof("groq warm: tls=%dms reused=%v", m.TLS.Milliseconds(), m.ConnReused)
	}
}

func (g *Groq) Transcribe(ctx context.Context, audioPath string, prompts Prompts) (string, error) {
	if g.cfg.APIKey == "" {
		return "", fmt.Errorf("groq: %w (GROQ_API_KEY)", ErrMissingAPIKey)
	}

	whisperPrompt := prompts.Get(PromptWhisper)
	raw, err := g.transcribe(ctx, audioPath, whisperPrompt)
	if err != nil {
		return "", err
	}
	raw = strings.TrimSpace(raw)
	if raw == "" || raw == strings.TrimSpace(whisperPrompt) {
		return "", nil
	}
	if g.cfg.RefineModel == "" {
		return raw, nil
	}
	return g.refine(ctx, raw, prompts.Get(PromptRefine))
}

func (g *Groq) payload(audioPath string) (data []byte, filename string, m log.NetworkMetrics, err error) {
	info, err := os.Stat(audioPath)
	if err != nil {
		return nil, "", m, err
	}
	m.RawSizeKB = float64(info.Size()) / 1024

	if g.cfg.UploadFormat == uploadFormatWAV {
		data, err = os.ReadFile(audioPath)
		m.CompressedSizeKB = m.RawSizeKB
		return data, filepath.Base(audioPath), m, err
	}

	clip, err := encoder.FlacFromWAV(audioPath)
	if err != nil {
		return nil, "", m, fmt.Errorf("groq: encode upload: %w", err)
	}
	m.CompressedSizeKB = float64(len(clip.Data)) / 1024
	m.EncodeTimeMs = float64(clip.EncodeTime.Microseconds()) / 1000
	m.AudioLengthS = clip.Seconds()
	return clip.Data, "audio.flac", m, nil
}

func (g *Groq) transcribe(ctx context.Context, audioPath, prompt string) (string, error) {
	audioData, filename, m, err := g.payload(audioPath)
	if err != nil {
		return "", err
	}

	var body bytes.Buffer
	writer := multipart.NewWriter(&body)

	part, err := writer.CreateFormFile("file", filename)
	if err != nil {
		return "", err
	}
	if _, err := part.Write(audioData); err != nil {
		return "", err
	}

	writer.WriteField("model", g.cfg.Model)
	writer.WriteField("response_format", "text")
	writer.WriteField("temperature", "0")
	if g.cfg.Language != "" {
		writer.WriteField("language", g.cfg.Language)
	}
	if prompt != "" {
		writer.WriteField("prompt", prompt)
	}
	writer.Close()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, g.cfg.BaseURL+transcriptionsEndpoint, &body)
	if err != nil {
		return "", err
	}
	req.Header.Set("Authorization", "Bearer "+g.cfg.APIKey)
	req.Header.Set("Content-Type", writer.FormDataContentType())

	resp, err := g.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("groq: %w", err)
	}
	if err := resp.check(g.Name(), "transcribe"); err != nil {
		return "", err
	}

	nm := resp.Metrics
	m.DNSTimeMs = ms(nm.DNS)
	m.TLSTimeMs = ms(nm.TLS)
	m.TTFBMs = ms(nm.TTFB)
	m.TotalTimeMs = ms(nm.Total)
	m.ConnReused = nm.ConnReused
	m.TLSProto = nm.TLSProtocol
	log.Network(m, g.Name(), filepath.Ext(filename))
	log.Infof("groq rate limit remaining %s/%s",
		firstNonEmpty(resp.Header, "x-ratelimit-remaining-requests"),
		firstNonEmpty(resp.Header, "x-ratelimit-limit-requests"))

	return string(resp.Body), nil
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	Temperature float64       `json:"temperature"`
}

type chatResponse struct {
	Choices []struct {
		Message chatMessage `json:"message"`
	} `json:"choices"`
}

func (g *Groq) refine(ctx context.Context, raw, system string) (string, error) {
	payload, err := json.Marshal(chatRequest{
		Model: g.cfg.RefineModel,
		Messages: []chatMessage{
			{Role: "system", Content: system},
			{Role: "user", Content: raw},
		},
	})
	if err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, g.cfg.BaseURL+chatEndpoint, bytes.NewReader(payload))
	if err != nil {
		return "", err
	}
	req.Header.Set("Authorization", "Bearer "+g.cfg.APIKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := g.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("groq refine: %w", err)
	}
	if err := resp.check(g.Name(), "refine"); err != nil {
		return "", err
	}

	var cr chatResponse
	if err := json.Unmarshal(resp.Body, &cr); err != nil {
		return "", fmt.Errorf("groq refine response parse error: %w", err)
	}
	if len(cr.Choices) == 0 {
		return "", fmt.Errorf("groq refine: empty response")
	}
	return strings.TrimSpace(cr.Choices[0].Message.Content), nil
}

func ms(d time.Duration) float64 {
	return float64(d.Microseconds()) / 1000
}
