package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
)

var validate = validator.New(validator.WithRequiredStructEnabled())

// Validate 按结构体标签校验配置，并汇总所有失败字段
func (c *Config) Validate() error {
	var errs []string

	if err := validate.Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if !errors.As(err, &verrs) {
			return fmt.Errorf("config validation errors: %w", err)
		}
		for _, fe := range verrs {
			errs = append(errs, describe(fe))
		}
	}

	// 标签无法表达的跨字段约束
	if c.History.Backend == "redis" && !c.Cache.Enabled {
		errs = append(errs, "history.backend redis requires cache.enabled")
	}
	if c.History.MaxIdleConns > c.History.MaxOpenConns {
		errs = append(errs, "history.max_idle_conns must not exceed max_open_conns")
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation errors: %s", strings.Join(errs, "; "))
	}
	return nil
}

// describe 将校验错误转成以 yaml 路径表示的一行说明
func describe(fe validator.FieldError) string {
	path := yamlPath(fe.StructNamespace())
	if fe.Param() != "" {
		return fmt.Sprintf("%s failed %s=%s (got %v)", path, fe.Tag(), fe.Param(), fe.Value())
	}
	return fmt.Sprintf("%s failed %s", path, fe.Tag())
}

// yamlPath 把 Config.Sources.Weather.BaseURL 转成 sources.weather.base_url
func yamlPath(ns string) string {
	parts := strings.Split(ns, ".")
	if len(parts) > 0 && parts[0] == "Config" {
		parts = parts[1:]
	}
	for i, p := range parts {
		parts[i] = snake(p)
	}
	return strings.Join(parts, ".")
}

func snake(s string) string {
	var b strings.Builder
	runes := []rune(s)
	for i, r := range runes {
		upper := r >= 'A' && r <= 'Z'
		if upper && i > 0 {
			prevLower := runes[i-1] >= 'a' && runes[i-1] <= 'z'
			nextLower := i+1 < len(runes) && runes[i+1] >= 'a' && runes[i+1] <= 'z'
			if prevLower || nextLower {
				b.WriteByte('_')
			}
		}
		if upper {
			r += 'a' - 'A'
		}
		b.WriteRune(r)
	}
	return b.String()
}
