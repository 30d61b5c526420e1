// =============================================================================
// 📦 StateGraph 配置加载器
// =============================================================================
// 统一配置加载，支持 YAML 文件 + 环境变量覆盖
//
// 使用方法:
//
//	cfg, err := config.NewLoader().
//	    WithConfigPath("stategraph.yaml").
//	    WithEnvPrefix("STATEGRAPH").
//	    Load()
//
// 配置优先级: 默认值 → YAML 文件 → 环境变量 → 服务商通用密钥变量
// =============================================================================
package config

import (
	"fmt"
	"os"
	"reflect"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// =============================================================================
// 🎯 核心配置结构
// =============================================================================

// Config 是 StateGraph 的完整配置结构
type Config struct {
	// Log 日志配置
	Log LogConfig `yaml:"log" env:"LOG"`

	// LLM 旅行规划与商品抽取使用的模型
	LLM LLMConfig `yaml:"llm" env:"LLM"`

	// Sources 外部 REST 数据源
	Sources SourcesConfig `yaml:"sources" env:"SOURCES"`

	// Travel 旅行规划参数
	Travel TravelConfig `yaml:"travel" env:"TRAVEL"`

	// Research 研究流程配置
	Research ResearchConfig `yaml:"research" env:"RESEARCH"`

	// Cache Redis 响应缓存
	Cache CacheConfig `yaml:"cache" env:"CACHE"`

	// History 运行记录存储
	History HistoryConfig `yaml:"history" env:"HISTORY"`

	// Telemetry 遥测配置
	Telemetry TelemetryConfig `yaml:"telemetry" env:"TELEMETRY"`

	// Metrics Prometheus 指标
	Metrics MetricsConfig `yaml:"metrics" env:"METRICS"`

	// Workflow 执行器参数
	Workflow WorkflowConfig `yaml:"workflow" env:"WORKFLOW"`
}

// LogConfig 日志配置
type LogConfig struct {
	// 日志级别: debug, info, warn, error
	Level string `yaml:"level" env:"LEVEL" validate:"oneof=debug info warn error"`
	// 输出格式: json, console
	Format string `yaml:"format" env:"FORMAT" validate:"oneof=json console"`
	// 输出路径
	OutputPaths []string `yaml:"output_paths" env:"OUTPUT_PATHS" validate:"min=1"`
	// 是否启用调用者信息
	EnableCaller bool `yaml:"enable_caller" env:"ENABLE_CALLER"`
	// 是否启用堆栈跟踪
	EnableStacktrace bool `yaml:"enable_stacktrace" env:"ENABLE_STACKTRACE"`
}

// LLMConfig 单个模型服务商配置
type LLMConfig struct {
	// 服务商: groq, gemini
	Provider string `yaml:"provider" env:"PROVIDER" validate:"oneof=groq gemini"`
	// API Key，留空时读取 GROQ_API_KEY / GEMINI_API_KEY
	APIKey string `yaml:"api_key" env:"API_KEY"`
	// 基础 URL（可选，覆盖预设）
	BaseURL string `yaml:"base_url" env:"BASE_URL" validate:"omitempty,url"`
	// 模型名称（可选，覆盖预设）
	Model string `yaml:"model" env:"MODEL"`
	// 温度参数
	Temperature float32 `yaml:"temperature" env:"TEMPERATURE" validate:"gte=0,lte=2"`
	// 最大 Token 数
	MaxTokens int `yaml:"max_tokens" env:"MAX_TOKENS" validate:"gte=0"`
	// 请求超时
	Timeout time.Duration `yaml:"timeout" env:"TIMEOUT" validate:"gt=0"`
	// 最大重试次数
	MaxRetries int `yaml:"max_retries" env:"MAX_RETRIES" validate:"gte=0,lte=10"`
	// 是否启用熔断
	CircuitBreaker bool `yaml:"circuit_breaker" env:"CIRCUIT_BREAKER"`
	// 是否缓存响应（需要 cache.enabled）
	CacheResponses bool `yaml:"cache_responses" env:"CACHE_RESPONSES"`
	// 响应缓存时长
	CacheTTL time.Duration `yaml:"cache_ttl" env:"CACHE_TTL" validate:"gte=0"`
}

// EndpointConfig 单个 REST 数据源
type EndpointConfig struct {
	// 基础 URL
	BaseURL string `yaml:"base_url" env:"BASE_URL" validate:"required,url"`
	// API Key
	APIKey string `yaml:"api_key" env:"API_KEY"`
}

// SourcesConfig 外部数据源配置
type SourcesConfig struct {
	// 天气（OpenWeatherMap）
	Weather EndpointConfig `yaml:"weather" env:"WEATHER"`
	// 景点（Google Places）
	Places EndpointConfig `yaml:"places" env:"PLACES"`
	// 汇率（exchangerate-api）
	Exchange EndpointConfig `yaml:"exchange" env:"EXCHANGE"`
	// 单次请求超时
	Timeout time.Duration `yaml:"timeout" env:"TIMEOUT" validate:"gt=0"`
	// 每秒请求数上限
	RatePerSecond float64 `yaml:"rate_per_second" env:"RATE_PER_SECOND" validate:"gt=0"`
	// 令牌桶容量
	Burst int `yaml:"burst" env:"BURST" validate:"gte=1"`
	// 最大重试次数
	MaxRetries int `yaml:"max_retries" env:"MAX_RETRIES" validate:"gte=0,lte=10"`
	// 响应缓存时长（需要 cache.enabled）
	CacheTTL time.Duration `yaml:"cache_ttl" env:"CACHE_TTL" validate:"gte=0"`
	// 天气预报条数
	ForecastSlots int `yaml:"forecast_slots" env:"FORECAST_SLOTS" validate:"gte=1"`
	// 景点数量
	MaxAttractions int `yaml:"max_attractions" env:"MAX_ATTRACTIONS" validate:"gte=1"`
}

// TravelConfig 旅行规划参数
type TravelConfig struct {
	// 每晚酒店价格（基准货币）
	NightlyRate float64 `yaml:"nightly_rate" env:"NIGHTLY_RATE" validate:"gt=0"`
	// 日期缺失或无效时的默认晚数
	DefaultNights int `yaml:"default_nights" env:"DEFAULT_NIGHTS" validate:"gte=1"`
	// 用户未指定货币时的基准货币
	BaseCurrency string `yaml:"base_currency" env:"BASE_CURRENCY" validate:"len=3,alpha"`
	// 目标货币
	TargetCurrency string `yaml:"target_currency" env:"TARGET_CURRENCY" validate:"len=3,alpha"`
}

// ResearchConfig 研究流程配置
type ResearchConfig struct {
	// LLM 研究节点使用的模型
	LLM LLMConfig `yaml:"llm" env:"LLM"`
	// 报告输出目录
	OutputDir string `yaml:"output_dir" env:"OUTPUT_DIR" validate:"required"`
}

// CacheConfig Redis 缓存配置
type CacheConfig struct {
	// 是否启用
	Enabled bool `yaml:"enabled" env:"ENABLED"`
	// 地址
	Addr string `yaml:"addr" env:"ADDR" validate:"required_if=Enabled true"`
	// 密码
	Password string `yaml:"password" env:"PASSWORD"`
	// 数据库编号
	DB int `yaml:"db" env:"DB" validate:"gte=0"`
	// 键前缀
	KeyPrefix string `yaml:"key_prefix" env:"KEY_PREFIX"`
	// 是否启用 TLS
	TLS bool `yaml:"tls" env:"TLS"`
	// 连接池大小
	PoolSize int `yaml:"pool_size" env:"POOL_SIZE" validate:"gte=0"`
	// 后台 Ping 间隔，0 表示关闭
	HealthCheckInterval time.Duration `yaml:"health_check_interval" env:"HEALTH_CHECK_INTERVAL" validate:"gte=0"`
}

// HistoryConfig 运行记录存储配置
type HistoryConfig struct {
	// 后端: memory, sql, redis
	Backend string `yaml:"backend" env:"BACKEND" validate:"oneof=memory sql redis"`
	// SQL 驱动: sqlite, postgres, mysql
	Driver string `yaml:"driver" env:"DRIVER" validate:"oneof=sqlite postgres mysql"`
	// SQL 连接串；sqlite 时为文件路径
	DSN string `yaml:"dsn" env:"DSN" validate:"required_if=Backend sql"`
	// 最大打开连接数
	MaxOpenConns int `yaml:"max_open_conns" env:"MAX_OPEN_CONNS" validate:"gte=1"`
	// 最大空闲连接
	MaxIdleConns int `yaml:"max_idle_conns" env:"MAX_IDLE_CONNS" validate:"gte=0"`
	// 连接最大生命周期
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime" env:"CONN_MAX_LIFETIME"`
	// SQL 后端后台 Ping 间隔，0 表示关闭
	HealthCheckInterval time.Duration `yaml:"health_check_interval" env:"HEALTH_CHECK_INTERVAL" validate:"gte=0"`
	// Redis 后端的记录保留时长，0 表示永久
	Retention time.Duration `yaml:"retention" env:"RETENTION" validate:"gte=0"`
}

// TelemetryConfig 遥测配置
type TelemetryConfig struct {
	// 是否启用
	Enabled bool `yaml:"enabled" env:"ENABLED"`
	// OTLP 端点
	OTLPEndpoint string `yaml:"otlp_endpoint" env:"OTLP_ENDPOINT" validate:"required_if=Enabled true"`
	// 是否使用明文 gRPC
	Insecure bool `yaml:"insecure" env:"INSECURE"`
	// 服务名称
	ServiceName string `yaml:"service_name" env:"SERVICE_NAME" validate:"required"`
	// 采样率
	SampleRate float64 `yaml:"sample_rate" env:"SAMPLE_RATE" validate:"gte=0,lte=1"`
}

// MetricsConfig Prometheus 指标配置
type MetricsConfig struct {
	// 指标命名空间
	Namespace string `yaml:"namespace" env:"NAMESPACE" validate:"required"`
	// 暴露地址，留空则不启动 /metrics
	Addr string `yaml:"addr" env:"ADDR" validate:"omitempty,hostname_port"`
}

// WorkflowConfig 执行器参数
type WorkflowConfig struct {
	// 单次运行最大步数
	MaxSteps int `yaml:"max_steps" env:"MAX_STEPS" validate:"gte=1,lte=10000"`
}

// =============================================================================
// 🔧 配置加载器
// =============================================================================

// Loader 配置加载器（Builder 模式）
type Loader struct {
	configPath string
	envPrefix  string
	lookupEnv  func(string) (string, bool)
	validators []func(*Config) error
}

// NewLoader 创建新的配置加载器
func NewLoader() *Loader {
	return &Loader{
		envPrefix:  "STATEGRAPH",
		lookupEnv:  os.LookupEnv,
		validators: make([]func(*Config) error, 0),
	}
}

// WithConfigPath 设置配置文件路径
func (l *Loader) WithConfigPath(path string) *Loader {
	l.configPath = path
	return l
}

// WithEnvPrefix 设置环境变量前缀
func (l *Loader) WithEnvPrefix(prefix string) *Loader {
	l.envPrefix = prefix
	return l
}

// WithValidator 添加配置验证器，在内置校验之后执行
func (l *Loader) WithValidator(v func(*Config) error) *Loader {
	l.validators = append(l.validators, v)
	return l
}

// Load 加载并校验配置
// 优先级: 默认值 → YAML 文件 → 环境变量 → 服务商通用密钥变量
func (l *Loader) Load() (*Config, error) {
	// 1. 从默认值开始
	cfg := DefaultConfig()

	// 2. 如果指定了配置文件，从文件加载
	if l.configPath != "" {
		if err := l.loadFromFile(cfg); err != nil {
			return nil, fmt.Errorf("failed to load config from file: %w", err)
		}
	}

	// 3. 从环境变量覆盖
	if err := l.setFieldsFromEnv(reflect.ValueOf(cfg).Elem(), l.envPrefix); err != nil {
		return nil, fmt.Errorf("failed to load config from env: %w", err)
	}

	// 4. 补齐未显式配置的 API Key
	l.applyVendorKeys(cfg)

	// 5. 校验
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	for _, v := range l.validators {
		if err := v(cfg); err != nil {
			return nil, fmt.Errorf("config validation failed: %w", err)
		}
	}

	return cfg, nil
}

// loadFromFile 从 YAML 文件加载配置；文件不存在时保留默认值
func (l *Loader) loadFromFile(cfg *Config) error {
	data, err := os.ReadFile(l.configPath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("failed to read config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("failed to parse config file: %w", err)
	}

	return nil
}

// setFieldsFromEnv 递归设置结构体字段
func (l *Loader) setFieldsFromEnv(v reflect.Value, prefix string) error {
	t := v.Type()

	for i := 0; i < v.NumField(); i++ {
		field := v.Field(i)
		fieldType := t.Field(i)

		envTag := fieldType.Tag.Get("env")
		if envTag == "" || envTag == "-" {
			continue
		}

		envKey := prefix + "_" + envTag

		// time.Duration 之外的结构体递归处理
		if field.Kind() == reflect.Struct {
			if err := l.setFieldsFromEnv(field, envKey); err != nil {
				return err
			}
			continue
		}

		envValue, ok := l.lookupEnv(envKey)
		if !ok || envValue == "" {
			continue
		}

		if err := setFieldValue(field, envValue); err != nil {
			return fmt.Errorf("failed to set %s: %w", envKey, err)
		}
	}

	return nil
}

// vendorKeyEnv 服务商默认的密钥环境变量
var vendorKeyEnv = map[string][]string{
	"groq":   {"GROQ_API_KEY"},
	"gemini": {"GEMINI_API_KEY", "GOOGLE_API_KEY"},
}

// applyVendorKeys 在未显式配置时读取服务商通用的密钥环境变量
func (l *Loader) applyVendorKeys(cfg *Config) {
	fill := func(dst *string, names ...string) {
		if *dst != "" {
			return
		}
		for _, name := range names {
			if v, ok := l.lookupEnv(name); ok && v != "" {
				*dst = v
				return
			}
		}
	}

	fill(&cfg.LLM.APIKey, vendorKeyEnv[strings.ToLower(cfg.LLM.Provider)]...)
	fill(&cfg.Research.LLM.APIKey, vendorKeyEnv[strings.ToLower(cfg.Research.LLM.Provider)]...)
	fill(&cfg.Sources.Weather.APIKey, "OPENWEATHER_API_KEY")
	fill(&cfg.Sources.Places.APIKey, "GOOGLE_PLACES_API_KEY")
	fill(&cfg.Sources.Exchange.APIKey, "EXCHANGE_RATE_API_KEY")
}

// setFieldValue 设置字段值
func setFieldValue(field reflect.Value, value string) error {
	if !field.CanSet() {
		return nil
	}

	switch field.Kind() {
	case reflect.String:
		field.SetString(value)

	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		// 特殊处理 time.Duration
		if field.Type() == reflect.TypeOf(time.Duration(0)) {
			d, err := time.ParseDuration(value)
			if err != nil {
				return err
			}
			field.SetInt(int64(d))
		} else {
			i, err := strconv.ParseInt(value, 10, 64)
			if err != nil {
				return err
			}
			field.SetInt(i)
		}

	case reflect.Float32, reflect.Float64:
		f, err := strconv.ParseFloat(value, field.Type().Bits())
		if err != nil {
			return err
		}
		field.SetFloat(f)

	case reflect.Bool:
		b, err := strconv.ParseBool(value)
		if err != nil {
			return err
		}
		field.SetBool(b)

	case reflect.Slice:
		// 支持逗号分隔的字符串切片
		if field.Type().Elem().Kind() == reflect.String {
			parts := strings.Split(value, ",")
			for i := range parts {
				parts[i] = strings.TrimSpace(parts[i])
			}
			field.Set(reflect.ValueOf(parts))
		}
	}

	return nil
}
