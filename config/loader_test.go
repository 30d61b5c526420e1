// 配置加载器与默认配置测试。
package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// mapEnv 返回基于 map 的环境变量查找函数，避免污染进程环境
func mapEnv(vars map[string]string) func(string) (string, bool) {
	return func(k string) (string, bool) {
		v, ok := vars[k]
		return v, ok
	}
}

func newTestLoader(vars map[string]string) *Loader {
	l := NewLoader()
	l.lookupEnv = mapEnv(vars)
	return l
}

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "stategraph.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

// --- 默认配置测试 ---

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	// 旅行规划默认值
	assert.Equal(t, 100.0, cfg.Travel.NightlyRate)
	assert.Equal(t, 5, cfg.Travel.DefaultNights)
	assert.Equal(t, "USD", cfg.Travel.BaseCurrency)
	assert.Equal(t, "INR", cfg.Travel.TargetCurrency)

	// 模型服务商
	assert.Equal(t, "groq", cfg.LLM.Provider)
	assert.Equal(t, "gemini", cfg.Research.LLM.Provider)

	// 数据源
	assert.Equal(t, 5, cfg.Sources.ForecastSlots)
	assert.Equal(t, 5, cfg.Sources.MaxAttractions)
	assert.Contains(t, cfg.Sources.Exchange.BaseURL, "exchangerate-api.com")

	// 执行器与存储
	assert.Equal(t, 25, cfg.Workflow.MaxSteps)
	assert.Equal(t, "sql", cfg.History.Backend)
	assert.Equal(t, "sqlite", cfg.History.Driver)
	assert.False(t, cfg.Cache.Enabled)
	assert.False(t, cfg.Telemetry.Enabled)

	require.NoError(t, cfg.Validate())
}

// --- Loader 测试 ---

func TestLoader_LoadDefaults(t *testing.T) {
	cfg, err := newTestLoader(nil).Load()
	require.NoError(t, err)
	assert.Equal(t, DefaultConfig(), cfg)
}

func TestLoader_LoadFromYAML(t *testing.T) {
	path := writeConfig(t, `
log:
  level: debug
  format: json
llm:
  provider: groq
  model: llama-3.3-70b-versatile
  timeout: 45s
travel:
  nightly_rate: 150
  target_currency: EUR
sources:
  weather:
    base_url: http://localhost:9000/weather
    api_key: yaml-weather-key
history:
  backend: memory
workflow:
  max_steps: 40
`)

	cfg, err := newTestLoader(nil).WithConfigPath(path).Load()
	require.NoError(t, err)

	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, "json", cfg.Log.Format)
	assert.Equal(t, "llama-3.3-70b-versatile", cfg.LLM.Model)
	assert.Equal(t, 45*time.Second, cfg.LLM.Timeout)
	assert.Equal(t, 150.0, cfg.Travel.NightlyRate)
	assert.Equal(t, "EUR", cfg.Travel.TargetCurrency)
	assert.Equal(t, "yaml-weather-key", cfg.Sources.Weather.APIKey)
	assert.Equal(t, "memory", cfg.History.Backend)
	assert.Equal(t, 40, cfg.Workflow.MaxSteps)

	// 未出现在文件中的字段保持默认
	assert.Equal(t, 5, cfg.Travel.DefaultNights)
	assert.Equal(t, "gemini", cfg.Research.LLM.Provider)
}

func TestLoader_LoadFromEnv(t *testing.T) {
	cfg, err := newTestLoader(map[string]string{
		"STATEGRAPH_LOG_LEVEL":                "warn",
		"STATEGRAPH_LOG_OUTPUT_PATHS":         "stdout, /tmp/sg.log",
		"STATEGRAPH_LLM_TEMPERATURE":          "0.5",
		"STATEGRAPH_RESEARCH_LLM_API_KEY":     "gem-key",
		"STATEGRAPH_SOURCES_EXCHANGE_API_KEY": "fx-key",
		"STATEGRAPH_SOURCES_TIMEOUT":          "3s",
		"STATEGRAPH_TRAVEL_DEFAULT_NIGHTS":    "3",
		"STATEGRAPH_CACHE_ENABLED":            "true",
		"STATEGRAPH_CACHE_ADDR":               "redis:6379",

		"STATEGRAPH_HISTORY_HEALTH_CHECK_INTERVAL": "15s",
	}).Load()
	require.NoError(t, err)

	assert.Equal(t, "warn", cfg.Log.Level)
	assert.Equal(t, []string{"stdout", "/tmp/sg.log"}, cfg.Log.OutputPaths)
	assert.Equal(t, float32(0.5), cfg.LLM.Temperature)
	assert.Equal(t, "gem-key", cfg.Research.LLM.APIKey)
	assert.Equal(t, "fx-key", cfg.Sources.Exchange.APIKey)
	assert.Equal(t, 3*time.Second, cfg.Sources.Timeout)
	assert.Equal(t, 3, cfg.Travel.DefaultNights)
	assert.True(t, cfg.Cache.Enabled)
	assert.Equal(t, "redis:6379", cfg.Cache.Addr)
	assert.Equal(t, 15*time.Second, cfg.History.HealthCheckInterval)
	assert.Equal(t, 30*time.Second, cfg.Cache.HealthCheckInterval)
}

func TestLoader_EnvOverridesYAML(t *testing.T) {
	path := writeConfig(t, `
llm:
  model: yaml-model
  max_tokens: 512
`)

	cfg, err := newTestLoader(map[string]string{
		"STATEGRAPH_LLM_MODEL": "env-model",
	}).WithConfigPath(path).Load()
	require.NoError(t, err)

	assert.Equal(t, "env-model", cfg.LLM.Model)
	assert.Equal(t, 512, cfg.LLM.MaxTokens)
}

func TestLoader_VendorKeys(t *testing.T) {
	vars := map[string]string{
		"GROQ_API_KEY":          "groq-key",
		"GOOGLE_API_KEY":        "google-key",
		"OPENWEATHER_API_KEY":   "ow-key",
		"GOOGLE_PLACES_API_KEY": "places-key",
		"EXCHANGE_RATE_API_KEY": "fx-key",
	}

	cfg, err := newTestLoader(vars).Load()
	require.NoError(t, err)
	assert.Equal(t, "groq-key", cfg.LLM.APIKey)
	assert.Equal(t, "google-key", cfg.Research.LLM.APIKey)
	assert.Equal(t, "ow-key", cfg.Sources.Weather.APIKey)
	assert.Equal(t, "places-key", cfg.Sources.Places.APIKey)
	assert.Equal(t, "fx-key", cfg.Sources.Exchange.APIKey)

	// 显式配置优先于通用变量
	vars["STATEGRAPH_LLM_API_KEY"] = "explicit"
	vars["GEMINI_API_KEY"] = "gemini-key"
	cfg, err = newTestLoader(vars).Load()
	require.NoError(t, err)
	assert.Equal(t, "explicit", cfg.LLM.APIKey)
	assert.Equal(t, "gemini-key", cfg.Research.LLM.APIKey)
}

func TestLoader_CustomEnvPrefix(t *testing.T) {
	cfg, err := newTestLoader(map[string]string{
		"MYAPP_WORKFLOW_MAX_STEPS":      "7",
		"STATEGRAPH_WORKFLOW_MAX_STEPS": "9",
	}).WithEnvPrefix("MYAPP").Load()
	require.NoError(t, err)
	assert.Equal(t, 7, cfg.Workflow.MaxSteps)
}

func TestLoader_WithValidator(t *testing.T) {
	requireKey := func(cfg *Config) error {
		if cfg.LLM.APIKey == "" {
			return assert.AnError
		}
		return nil
	}

	_, err := newTestLoader(nil).WithValidator(requireKey).Load()
	assert.ErrorIs(t, err, assert.AnError)

	_, err = newTestLoader(map[string]string{"GROQ_API_KEY": "k"}).WithValidator(requireKey).Load()
	assert.NoError(t, err)
}

func TestLoader_NonExistentFile(t *testing.T) {
	cfg, err := newTestLoader(nil).WithConfigPath("/non/existent/stategraph.yaml").Load()
	require.NoError(t, err)
	assert.Equal(t, 25, cfg.Workflow.MaxSteps)
}

func TestLoader_InvalidYAML(t *testing.T) {
	path := writeConfig(t, "travel:\n  nightly_rate: [invalid\n")
	_, err := newTestLoader(nil).WithConfigPath(path).Load()
	assert.Error(t, err)
}

func TestLoader_InvalidEnvValue(t *testing.T) {
	_, err := newTestLoader(map[string]string{"STATEGRAPH_SOURCES_TIMEOUT": "soon"}).Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "STATEGRAPH_SOURCES_TIMEOUT")
}

func TestLoader_ValidationFailure(t *testing.T) {
	_, err := newTestLoader(map[string]string{"STATEGRAPH_LLM_PROVIDER": "openai"}).Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "llm.provider")
}

// --- Config 方法测试 ---

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		modify  func(*Config)
		wantErr string
	}{
		{"valid default config", func(c *Config) {}, ""},
		{"unknown log level", func(c *Config) { c.Log.Level = "trace" }, "log.level"},
		{"temperature too high", func(c *Config) { c.LLM.Temperature = 3 }, "llm.temperature"},
		{"bad research base url", func(c *Config) { c.Research.LLM.BaseURL = "not a url" }, "research.llm.base_url"},
		{"missing weather url", func(c *Config) { c.Sources.Weather.BaseURL = "" }, "sources.weather.base_url"},
		{"zero nightly rate", func(c *Config) { c.Travel.NightlyRate = 0 }, "travel.nightly_rate"},
		{"bad currency", func(c *Config) { c.Travel.TargetCurrency = "RUPEE" }, "travel.target_currency"},
		{"zero max steps", func(c *Config) { c.Workflow.MaxSteps = 0 }, "workflow.max_steps"},
		{"sql without dsn", func(c *Config) { c.History.DSN = "" }, "history.dsn"},
		{"memory without dsn", func(c *Config) { c.History.Backend = "memory"; c.History.DSN = "" }, ""},
		{"redis history without cache", func(c *Config) { c.History.Backend = "redis" }, "requires cache.enabled"},
		{"sample rate above one", func(c *Config) { c.Telemetry.SampleRate = 1.5 }, "telemetry.sample_rate"},
		{"metrics addr without port", func(c *Config) { c.Metrics.Addr = "localhost" }, "metrics.addr"},
		{"metrics addr port only", func(c *Config) { c.Metrics.Addr = ":9091" }, ""},
		{"idle above open", func(c *Config) { c.History.MaxIdleConns = 5 }, "max_idle_conns"},
		{"negative health interval", func(c *Config) { c.History.HealthCheckInterval = -time.Second }, "history.health_check_interval"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.modify(cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestYAMLPath(t *testing.T) {
	assert.Equal(t, "sources.weather.base_url", yamlPath("Config.Sources.Weather.BaseURL"))
	assert.Equal(t, "telemetry.otlp_endpoint", yamlPath("Config.Telemetry.OTLPEndpoint"))
	assert.Equal(t, "history.max_idle_conns", yamlPath("Config.History.MaxIdleConns"))
	assert.Equal(t, "llm.api_key", yamlPath("Config.LLM.APIKey"))
}
