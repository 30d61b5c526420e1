package openaicompat

import (
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"
)

const (
	GroqBaseURL      = "https://api.groq.com/openai"
	GroqDefaultModel = "deepseek-r1-distill-llama-70b"

	GeminiBaseURL      = "https://generativelanguage.googleapis.com/v1beta/openai"
	GeminiDefaultModel = "gemini-1.5-flash"
)

// NewGroq returns a provider for Groq's OpenAI-compatible endpoint.
func NewGroq(apiKey, model string, timeout time.Duration, logger *zap.Logger) *Provider {
	return New(Config{
		ProviderName:  "groq",
		APIKey:        apiKey,
		BaseURL:       GroqBaseURL,
		DefaultModel:  model,
		FallbackModel: GroqDefaultModel,
		Timeout:       timeout,
	}, logger)
}

// NewGemini returns a provider for Gemini's OpenAI-compatible endpoint.
// Gemini mounts the API without the /v1 prefix.
func NewGemini(apiKey, model string, timeout time.Duration, logger *zap.Logger) *Provider {
	return New(Config{
		ProviderName:   "gemini",
		APIKey:         apiKey,
		BaseURL:        GeminiBaseURL,
		DefaultModel:   model,
		FallbackModel:  GeminiDefaultModel,
		Timeout:        timeout,
		EndpointPath:   "/chat/completions",
		ModelsEndpoint: "/models",
	}, logger)
}

// Options selects and configures a preset by name.
type Options struct {
	Provider string
	APIKey   string
	BaseURL  string
	Model    string
	Timeout  time.Duration
}

// FromOptions builds a provider from a preset name. A non-empty BaseURL
// overrides the preset endpoint, which is how tests and proxies plug in.
func FromOptions(opts Options, logger *zap.Logger) (*Provider, error) {
	var p *Provider
	switch strings.ToLower(opts.Provider) {
	case "groq", "":
		p = NewGroq(opts.APIKey, opts.Model, opts.Timeout, logger)
	case "gemini":
		p = NewGemini(opts.APIKey, opts.Model, opts.Timeout, logger)
	default:
		return nil, fmt.Errorf("unknown llm provider %q", opts.Provider)
	}
	if opts.BaseURL != "" {
		p.Cfg.BaseURL = opts.BaseURL
	}
	return p, nil
}
