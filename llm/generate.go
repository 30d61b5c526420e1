package llm

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
)

// GeneratorConfig 文本生成配置
type GeneratorConfig struct {
	Model        string        `yaml:"model" json:"model"`
	Temperature  float32       `yaml:"temperature" json:"temperature"`
	MaxTokens    int           `yaml:"max_tokens" json:"max_tokens"`
	SystemPrompt string        `yaml:"system_prompt" json:"system_prompt"`
	Timeout      time.Duration `yaml:"timeout" json:"timeout"`
}

// Generator 基于 Provider 的自由文本生成，输出已去除推理块
type Generator struct {
	provider Provider
	cfg      GeneratorConfig
	logger   *zap.Logger
}

// NewGenerator 创建文本生成器
func NewGenerator(provider Provider, cfg GeneratorConfig, logger *zap.Logger) *Generator {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Generator{
		provider: provider,
		cfg:      cfg,
		logger:   logger.With(zap.String("component", "generator")),
	}
}

// Generate 以单条用户消息生成文本
func (g *Generator) Generate(ctx context.Context, prompt string) (string, error) {
	return g.Complete(ctx, []Message{{Role: RoleUser, Content: prompt}})
}

// Complete 以完整消息列表生成文本；配置了 SystemPrompt 时自动前置
func (g *Generator) Complete(ctx context.Context, messages []Message) (string, error) {
	msgs := make([]Message, 0, len(messages)+1)
	if g.cfg.SystemPrompt != "" {
		msgs = append(msgs, Message{Role: RoleSystem, Content: g.cfg.SystemPrompt})
	}
	msgs = append(msgs, messages...)

	resp, err := g.provider.Completion(ctx, &ChatRequest{
		Model:       g.cfg.Model,
		Messages:    msgs,
		MaxTokens:   g.cfg.MaxTokens,
		Temperature: g.cfg.Temperature,
		Timeout:     g.cfg.Timeout,
	})
	if err != nil {
		return "", fmt.Errorf("completion failed: %w", err)
	}

	raw, ok := resp.FirstContent()
	text := StripReasoning(raw)
	if !ok || text == "" {
		g.logger.Warn("empty completion", zap.String("model", resp.Model), zap.Int("raw_len", len(raw)))
		return "", &Error{
			Code:     ErrEmptyResponse,
			Message:  "model returned no usable content",
			Provider: g.provider.Name(),
		}
	}
	return text, nil
}
