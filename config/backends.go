package config

import (
	"voicein/log"
	"voicein/transcriber"
)

// FakeText is what the fake provider returns for every recording.
const FakeText = "the quick brown fox"

// Registry builds one backend per provider. Backends check their API keys
// when a job runs, so a missing key fails that job and not startup. A
// local command that does not parse leaves the local provider unregistered.
func (c Config) Registry() *transcriber.Registry {
	r := transcriber.NewRegistry()
	r.Register(transcriber.CloudSpeech, transcriber.NewGroq(transcriber.GroqConfig{
		APIKey:       c.Groq.APIKey,
		BaseURL:      c.Groq.BaseURL,
		Model:        c.Groq.Model,
		RefineModel:  c.Groq.RefineModel,
		Language:     c.Language,
		UploadFormat: c.Groq.UploadFormat,
	}))
	r.Register(transcriber.CloudMultimodal, transcriber.NewGemini(transcriber.GeminiConfig{
		APIKey:  c.Gemini.APIKey,
		BaseURL: c.Gemini.BaseURL,
		Model:   c.Gemini.Model,
	}))
	local, err := transcriber.NewLocal(transcriber.LocalConfig{
		Command:     c.Local.Command,
		ModelSize:   c.Local.ModelSize,
		Device:      c.Local.Device,
		ComputeType: c.Local.ComputeType,
		Language:    c.Language,
	})
	if err != nil {
		log.Warnf("local provider disabled: %v", err)
	} else {
		r.Register(transcriber.LocalModel, local)
	}
	r.Register(transcriber.FakeProvider, transcriber.NewFake(FakeText, nil))
	return r
}
