package transcriber

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"voicein/log"
)

const (
	DefaultGeminiBaseURL = "https://generativelanguage.googleapis.com"
	DefaultGeminiModel   = "gemini-2.5-flash"
)

type GeminiConfig struct {
	APIKey  string
	BaseURL string
	Model   string
}

// Gemini uploads the recording to the Files API, asks a multimodal model to
// transcribe it and deletes the upload afterwards.
type Gemini struct {
	cfg    GeminiConfig
	client *TracedClient
}

func NewGemini(cfg GeminiConfig) *Gemini {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultGeminiBaseURL
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	if cfg.Model == "" {
		cfg.Model = DefaultGeminiModel
	}
	return &Gemini{cfg: cfg, client: NewTracedClient()}
}

func (g *Gemini) Name() string { return "gemini" }

func (g *Gemini) Warm(ctx context.Context) {
	g.client.Warm(ctx, g.cfg.BaseURL+"/v1beta/models")
}

type geminiFile struct {
	Name     string `json:"name"`
	URI      string `json:"uri"`
	MimeType string `json:"mimeType"`
}

type geminiPart struct {
	Text     string          `json:"text,omitempty"`
	FileData *geminiFileData `json:"file_data,omitempty"`
}

type geminiFileData struct {
	MimeType string `json:"mime_type"`
	FileURI  string `json:"file_uri"`
}

type geminiContent struct {
	Parts []geminiPart `json:"parts"`
}

type geminiRequest struct {
	Contents         []geminiContent `json:"contents"`
	GenerationConfig struct {
		Temperature float64 `json:"temperature"`
	} `json:"generationConfig"`
}

type geminiResponse struct {
	Candidates []struct {
		Content geminiContent `json:"content"`
	} `json:"candidates"`
}

func (g *Gemini) Transcribe(ctx context.Context, audioPath string, prompts Prompts) (string, error) {
	if g.cfg.APIKey == "" {
		return "", fmt.Errorf("gemini: %w (GEMINI_API_KEY)", ErrMissingAPIKey)
	}

	file, err := g.upload(ctx, audioPath)
	if err != nil {
		return "", err
	}
	defer g.delete(file.Name)

	var body geminiRequest
	body.Contents = []geminiContent{{Parts: []geminiPart{
		{FileData: &geminiFileData{MimeType: file.MimeType, FileURI: file.URI}},
		{Text: prompts.Get(PromptGemini)},
	}}}
	payload, err := json.Marshal(body)
	if err != nil {
		return "", err
	}

	url := fmt.Sprintf("%s/v1beta/models/%s:generateContent", g.cfg.BaseURL, g.cfg.Model)
	resp, err := g.do(ctx, http.MethodPost, url, bytes.NewReader(payload), map[string]string{
		"Content-Type": "application/json",
	})
	if err != nil {
		return "", fmt.Errorf("gemini generate: %w", err)
	}
	if err := resp.check(g.Name(), "generate"); err != nil {
		return "", err
	}

	var gr geminiResponse
	if err := json.Unmarshal(resp.Body, &gr); err != nil {
		return "", fmt.Errorf("gemini response parse error: %w", err)
	}
	if len(gr.Candidates) == 0 {
		return "", fmt.Errorf("gemini: no candidates in response")
	}
	var sb strings.Builder
	for _, p := range gr.Candidates[0].Content.Parts {
		sb.WriteString(p.Text)
	}
	log.Network(log.NetworkMetrics{
		TTFBMs:      ms(resp.Metrics.TTFB),
		TotalTimeMs: ms(resp.Metrics.Total),
		ConnReused:  resp.Metrics.ConnReused,
		TLSProto:    resp.Metrics.TLSProtocol,
	}, g.Name(), "wav")
	return strings.TrimSpace(sb.String()), nil
}

func (g *Gemini) do(ctx context.Context, method, url string, body *bytes.Reader, headers map[string]string) (*TracedResponse, error) {
	var req *http.Request
	var err error
	if body == nil {
		req, err = http.NewRequestWithContext(ctx, method, url, nil)
	} else {
		req, err = http.NewRequestWithContext(ctx, method, url, body)
	}
	if err != nil {
		return nil, err
	}
	req.Header.Set("x-goog-api-key", g.cfg.APIKey)
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	return g.client.Do(req)
}

// upload runs the two-step resumable upload protocol of the Files API.
func (g *Gemini) upload(ctx context.Context, audioPath string) (*geminiFile, error) {
	data, err := os.ReadFile(audioPath)
	if err != nil {
		return nil, err
	}
	const mime = "audio/wav"

	meta, _ := json.Marshal(map[string]any{"file": map[string]string{"display_name": filepath.Base(audioPath)}})
	start, err := g.do(ctx, http.MethodPost, g.cfg.BaseURL+"/upload/v1beta/files", bytes.NewReader(meta), map[string]string{
		"Content-Type":                        "application/json",
		"X-Goog-Upload-Protocol":              "resumable",
		"X-Goog-Upload-Command":               "start",
		"X-Goog-Upload-Header-Content-Length": strconv.Itoa(len(data)),
		"X-Goog-Upload-Header-Content-Type":   mime,
	})
	if err != nil {
		return nil, fmt.Errorf("gemini upload start: %w", err)
	}
	if err := start.check(g.Name(), "upload start"); err != nil {
		return nil, err
	}
	uploadURL := start.Header.Get("X-Goog-Upload-URL")
	if uploadURL == "" {
		return nil, fmt.Errorf("gemini upload start: no upload URL returned")
	}

	fin, err := g.do(ctx, http.MethodPost, uploadURL, bytes.NewReader(data), map[string]string{
		"X-Goog-Upload-Offset":  "0",
		"X-Goog-Upload-Command": "upload, finalize",
	})
	if err != nil {
		return nil, fmt.Errorf("gemini upload: %w", err)
	}
	if err := fin.check(g.Name(), "upload"); err != nil {
		return nil, err
	}

	var out struct {
		File geminiFile `json:"file"`
	}
	if err := json.Unmarshal(fin.Body, &out); err != nil {
		return nil, fmt.Errorf("gemini upload response parse error: %w", err)
	}
	if out.File.URI == "" {
		return nil, fmt.Errorf("gemini upload: response has no file URI")
	}
	if out.File.MimeType == "" {
		out.File.MimeType = mime
	}
	return &out.File, nil
}

func (g *Gemini) delete(name string) {
	if name == "" {
		return
	}
	resp, err := g.do(context.Background(), http.MethodDelete, g.cfg.BaseURL+"/v1beta/"+name, nil, nil)
	if err != nil {
		log.Warnf("gemini delete %s: %v", name, err)
		return
	}
	if err := resp.check(g.Name(), "delete"); err != nil {
		log.Warnf("%v", err)
	}
}
