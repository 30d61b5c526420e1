package structured

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"reflect"
	"strings"
	"time"

	"github.com/BaSui01/stategraph/llm"
	"github.com/go-playground/validator/v10"
	"github.com/xeipuuv/gojsonschema"
	"go.uber.org/zap"
)

// Schema 描述期望的输出结构
type Schema struct {
	// Name 结构名称，写入提示词
	Name string
	// Definition JSON Schema（draft-07）
	Definition map[string]any
}

// Config 抽取配置
type Config struct {
	Model       string
	Temperature float32
	MaxTokens   int
	Timeout     time.Duration
	// MaxAttempts 输出不合法时的最大尝试次数（含首次）
	MaxAttempts int
}

// Extractor 调用 LLM 将自由文本抽取为符合 Schema 的 JSON，并解码到目标结构
type Extractor struct {
	provider llm.Provider
	cfg      Config
	validate *validator.Validate
	logger   *zap.Logger
}

// NewExtractor 创建抽取器
func NewExtractor(provider llm.Provider, cfg Config, logger *zap.Logger) *Extractor {
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 2
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Extractor{
		provider: provider,
		cfg:      cfg,
		validate: validator.New(validator.WithRequiredStructEnabled()),
		logger:   logger.With(zap.String("component", "structured_extractor")),
	}
}

// Extract 从 rawText 抽取结构化数据写入 out（必须为指针）。
// 输出先经过 schema 校验，out 为结构体指针时再执行 validate 标签校验。
// 每次尝试解码到新值，只有通过校验的结果才写入 out；失败时 out 保持不变。
func (e *Extractor) Extract(ctx context.Context, rawText string, schema Schema, out any) error {
	if rv := reflect.ValueOf(out); rv.Kind() != reflect.Pointer || rv.IsNil() {
		return fmt.Errorf("extract target must be a non-nil pointer, got %T", out)
	}
	schemaJSON, err := json.Marshal(schema.Definition)
	if err != nil {
		return fmt.Errorf("marshal schema %q: %w", schema.Name, err)
	}
	loader := gojsonschema.NewBytesLoader(schemaJSON)

	messages := []llm.Message{
		{Role: llm.RoleSystem, Content: systemPrompt(schema.Name, string(schemaJSON))},
		{Role: llm.RoleUser, Content: rawText},
	}

	var lastErr error
	for attempt := 1; attempt <= e.cfg.MaxAttempts; attempt++ {
		resp, err := e.provider.Completion(ctx, &llm.ChatRequest{
			Model:       e.cfg.Model,
			Messages:    messages,
			MaxTokens:   e.cfg.MaxTokens,
			Temperature: e.cfg.Temperature,
			Timeout:     e.cfg.Timeout,
			JSONMode:    true,
		})
		if err != nil {
			return fmt.Errorf("structured extraction: %w", err)
		}
		reply, _ := resp.FirstContent()

		lastErr = e.decode(reply, loader, out)
		if lastErr == nil {
			return nil
		}
		e.logger.Debug("invalid structured output",
			zap.String("schema", schema.Name),
			zap.Int("attempt", attempt),
			zap.Error(lastErr),
		)
		messages = append(messages,
			llm.Message{Role: llm.RoleAssistant, Content: reply},
			llm.Message{Role: llm.RoleUser, Content: "That reply was invalid: " + lastErr.Error() + ". Reply with the corrected JSON object only."},
		)
	}

	return &llm.Error{
		Code:     llm.ErrInvalidOutput,
		Message:  fmt.Sprintf("%s: %v", schema.Name, lastErr),
		Provider: e.provider.Name(),
	}
}

func (e *Extractor) decode(reply string, schema gojsonschema.JSONLoader, out any) error {
	target := reflect.ValueOf(out).Elem()
	obj, err := JSONObject(llm.StripReasoning(reply))
	if err != nil {
		return err
	}

	result, err := gojsonschema.Validate(schema, gojsonschema.NewStringLoader(obj))
	if err != nil {
		return fmt.Errorf("schema validation: %w", err)
	}
	if !result.Valid() {
		msgs := make([]string, 0, len(result.Errors()))
		for _, re := range result.Errors() {
			msgs = append(msgs, re.String())
		}
		return fmt.Errorf("schema validation failed: %s", strings.Join(msgs, "; "))
	}

	fresh := reflect.New(target.Type())
	if err := json.Unmarshal([]byte(obj), fresh.Interface()); err != nil {
		return fmt.Errorf("decode output: %w", err)
	}

	if target.Kind() == reflect.Struct {
		if err := e.validate.Struct(fresh.Interface()); err != nil {
			return fmt.Errorf("field validation failed: %w", err)
		}
	}
	target.Set(fresh.Elem())
	return nil
}

// ErrNoJSONObject 回复中找不到 JSON 对象
var ErrNoJSONObject = errors.New("no JSON object in reply")

// JSONObject 从模型回复中截取第一个 '{' 到最后一个 '}' 之间的内容，容忍代码围栏与前后说明文字
func JSONObject(reply string) (string, error) {
	start := strings.Index(reply, "{")
	end := strings.LastIndex(reply, "}")
	if start < 0 || end < start {
		return "", ErrNoJSONObject
	}
	return reply[start : end+1], nil
}

func systemPrompt(name, schemaJSON string) string {
	return "Extract the " + name + " described by the user's text. " +
		"Reply with a single JSON object that conforms to this JSON schema, and nothing else. " +
		"Use null for any value the text does not state.\n\n" + schemaJSON
}
