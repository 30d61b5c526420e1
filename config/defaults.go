// =============================================================================
// 📦 StateGraph 默认配置
// =============================================================================
// 提供所有配置项的合理默认值
// =============================================================================
package config

import "time"

// DefaultConfig 返回默认配置
func DefaultConfig() *Config {
	return &Config{
		Log:       DefaultLogConfig(),
		LLM:       DefaultLLMConfig(),
		Sources:   DefaultSourcesConfig(),
		Travel:    DefaultTravelConfig(),
		Research:  DefaultResearchConfig(),
		Cache:     DefaultCacheConfig(),
		History:   DefaultHistoryConfig(),
		Telemetry: DefaultTelemetryConfig(),
		Metrics:   DefaultMetricsConfig(),
		Workflow:  DefaultWorkflowConfig(),
	}
}

// DefaultLogConfig 返回默认日志配置
func DefaultLogConfig() LogConfig {
	return LogConfig{
		Level:            "info",
		Format:           "console",
		OutputPaths:      []string{"stderr"},
		EnableCaller:     false,
		EnableStacktrace: false,
	}
}

// DefaultLLMConfig 返回旅行规划默认使用的 Groq 配置
func DefaultLLMConfig() LLMConfig {
	return LLMConfig{
		Provider:       "groq",
		Temperature:    0.2,
		MaxTokens:      1024,
		Timeout:        60 * time.Second,
		MaxRetries:     2,
		CircuitBreaker: true,
		CacheResponses: false,
		CacheTTL:       time.Hour,
	}
}

// DefaultSourcesConfig 返回默认数据源配置
func DefaultSourcesConfig() SourcesConfig {
	return SourcesConfig{
		Weather:        EndpointConfig{BaseURL: "https://api.openweathermap.org/data/2.5/forecast"},
		Places:         EndpointConfig{BaseURL: "https://maps.googleapis.com/maps/api/place/textsearch/json"},
		Exchange:       EndpointConfig{BaseURL: "https://v6.exchangerate-api.com/v6"},
		Timeout:        10 * time.Second,
		RatePerSecond:  5,
		Burst:          5,
		MaxRetries:     2,
		CacheTTL:       10 * time.Minute,
		ForecastSlots:  5,
		MaxAttractions: 5,
	}
}

// DefaultTravelConfig 返回默认旅行规划参数
func DefaultTravelConfig() TravelConfig {
	return TravelConfig{
		NightlyRate:    100,
		DefaultNights:  5,
		BaseCurrency:   "USD",
		TargetCurrency: "INR",
	}
}

// DefaultResearchConfig 返回默认研究流程配置（Gemini）
func DefaultResearchConfig() ResearchConfig {
	llmCfg := DefaultLLMConfig()
	llmCfg.Provider = "gemini"
	llmCfg.Temperature = 0.7
	llmCfg.MaxTokens = 2048
	return ResearchConfig{
		LLM:       llmCfg,
		OutputDir: "reports",
	}
}

// DefaultCacheConfig 返回默认缓存配置（默认关闭）
func DefaultCacheConfig() CacheConfig {
	return CacheConfig{
		Enabled:             false,
		Addr:                "localhost:6379",
		KeyPrefix:           "stategraph:",
		PoolSize:            10,
		HealthCheckInterval: 30 * time.Second,
	}
}

// DefaultHistoryConfig 返回默认运行记录配置
func DefaultHistoryConfig() HistoryConfig {
	return HistoryConfig{
		Backend:         "sql",
		Driver:          "sqlite",
		DSN:             "stategraph.db",
		MaxOpenConns:    1,
		MaxIdleConns:    1,
		ConnMaxLifetime: time.Hour,
		Retention:       7 * 24 * time.Hour,
	}
}

// DefaultTelemetryConfig 返回默认遥测配置
func DefaultTelemetryConfig() TelemetryConfig {
	return TelemetryConfig{
		Enabled:      false,
		OTLPEndpoint: "localhost:4317",
		Insecure:     true,
		ServiceName:  "stategraph",
		SampleRate:   1.0,
	}
}

// DefaultMetricsConfig 返回默认指标配置
func DefaultMetricsConfig() MetricsConfig {
	return MetricsConfig{
		Namespace: "stategraph",
	}
}

// DefaultWorkflowConfig 返回默认执行器参数
func DefaultWorkflowConfig() WorkflowConfig {
	return WorkflowConfig{
		MaxSteps: 25,
	}
}
