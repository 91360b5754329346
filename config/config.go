// Package config 提供统一的配置加载与管理能力.
// 支持 TOML 文件、APP_ 前缀环境变量覆盖、结构体校验与热更新回调。
package config

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"reflect"
	"strings"
	"sync"
	"time"

	"github.com/wyfcoding/cqrskit/logging"

	"github.com/fsnotify/fsnotify"
	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"
)

// Config 全局顶级配置结构.
type Config struct {
	Service   ServiceConfig   `mapstructure:"service"   toml:"service"`
	Log       LogConfig       `mapstructure:"log"       toml:"log"`
	Metrics   MetricsConfig   `mapstructure:"metrics"   toml:"metrics"`
	Tracing   TracingConfig   `mapstructure:"tracing"   toml:"tracing"`
	Snowflake SnowflakeConfig `mapstructure:"snowflake" toml:"snowflake"`
	JWT       JWTConfig       `mapstructure:"jwt"       toml:"jwt"`
	Bus       BusConfig       `mapstructure:"bus"       toml:"bus"`
}

// ServiceConfig 服务标识.
type ServiceConfig struct {
	Name        string `mapstructure:"name"        toml:"name"        validate:"required"`
	Environment string `mapstructure:"environment" toml:"environment" validate:"omitempty,oneof=dev test prod"`
}

// LogConfig 定义日志输出、级别与切割策略.
type LogConfig struct {
	Level      string `mapstructure:"level"       toml:"level"       validate:"omitempty,oneof=debug info warn error"` // 日志级别。
	File       string `mapstructure:"file"        toml:"file"`                                                         // 日志文件路径，为空只输出到 stdout。
	Console    bool   `mapstructure:"console"     toml:"console"`                                                      // 配置文件时是否同时输出到 stdout。
	MaxSize    int    `mapstructure:"max_size"    toml:"max_size"`                                                     // 单个文件最大大小 (MB)。
	MaxBackups int    `mapstructure:"max_backups" toml:"max_backups"`                                                  // 最大备份数。
	MaxAge     int    `mapstructure:"max_age"     toml:"max_age"`                                                      // 最大保留天数。
	Compress   bool   `mapstructure:"compress"    toml:"compress"`                                                     // 是否压缩。
}

// MetricsConfig 普罗米修斯监控指标暴露配置.
type MetricsConfig struct {
	Port    string `mapstructure:"port"    toml:"port"`
	Path    string `mapstructure:"path"    toml:"path"`
	Enabled bool   `mapstructure:"enabled" toml:"enabled"`
}

// TracingConfig 链路追踪（OpenTelemetry）配置.
type TracingConfig struct {
	ServiceName  string  `mapstructure:"service_name"  toml:"service_name"`
	OTLPEndpoint string  `mapstructure:"otlp_endpoint" toml:"otlp_endpoint" validate:"required_if=Enabled true"`
	SamplerRatio float64 `mapstructure:"sampler_ratio" toml:"sampler_ratio" validate:"min=0,max=1"`
	Enabled      bool    `mapstructure:"enabled"       toml:"enabled"`
}

// SnowflakeConfig 请求 ID 生成器参数.
type SnowflakeConfig struct {
	StartTime string `mapstructure:"start_time" toml:"start_time"`
	Type      string `mapstructure:"type"       toml:"type"       validate:"omitempty,oneof=snowflake sonyflake"`
	MachineID int64  `mapstructure:"machine_id" toml:"machine_id" validate:"min=0,max=65535"`
}

// JWTConfig 身份认证令牌相关配置.
type JWTConfig struct {
	Secret         string        `mapstructure:"secret"          toml:"secret"`
	Issuer         string        `mapstructure:"issuer"          toml:"issuer"`
	ExpireDuration time.Duration `mapstructure:"expire_duration" toml:"expire_duration"`
}

// BusConfig 命令 / 查询 / 事件总线的观测参数.
type BusConfig struct {
	SlowThreshold time.Duration `mapstructure:"slow_threshold" toml:"slow_threshold"`
	Tracing       bool          `mapstructure:"tracing"        toml:"tracing"`
	Metrics       bool          `mapstructure:"metrics"        toml:"metrics"`
}

var (
	mu       sync.Mutex
	onReload []func(*Config)
)

// RegisterReloadHook 注册配置热更新回调。
func RegisterReloadHook(hook func(*Config)) {
	if hook == nil {
		return
	}
	mu.Lock()
	defer mu.Unlock()
	onReload = append(onReload, hook)
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("log.level", "info")
	v.SetDefault("metrics.path", "/metrics")
	v.SetDefault("tracing.sampler_ratio", 1.0)
	v.SetDefault("bus.slow_threshold", 500*time.Millisecond)
}

func newViper(path string) *viper.Viper {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("toml")

	v.SetEnvPrefix("APP")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	setDefaults(v)
	return v
}

// Load 读取、校验配置并开启文件监听.
func Load(path string, conf any) error {
	v := newViper(path)
	if err := v.ReadInConfig(); err != nil {
		return fmt.Errorf("read config error: %w", err)
	}

	if err := v.Unmarshal(conf); err != nil {
		return fmt.Errorf("unmarshal config error: %w", err)
	}

	validate := validator.New()
	if err := validate.Struct(conf); err != nil {
		return fmt.Errorf("config validation failed: %w", err)
	}

	v.OnConfigChange(func(event fsnotify.Event) {
		slog.Info("detecting config change", "file", event.Name)
		reload(v, validate, conf)
	})
	v.WatchConfig()

	return nil
}

// reload 先解码并校验到新值，通过后才覆盖 conf，校验失败时保留旧配置.
func reload(v *viper.Viper, validate *validator.Validate, conf any) {
	live := reflect.ValueOf(conf)
	if live.Kind() != reflect.Pointer || live.IsNil() {
		slog.Error("reload config target must be a non-nil pointer")
		return
	}

	fresh := reflect.New(live.Elem().Type())
	if err := v.Unmarshal(fresh.Interface()); err != nil {
		slog.Error("reload config unmarshal failed", "error", err)
		return
	}

	if err := validate.Struct(fresh.Interface()); err != nil {
		slog.Error("reload config validation failed", "error", err)
		return
	}

	mu.Lock()
	live.Elem().Set(fresh.Elem())
	hooks := append([]func(*Config){}, onReload...)
	mu.Unlock()

	cfg, ok := conf.(*Config)
	if !ok {
		slog.Info("config hot-reloaded")
		return
	}

	logging.SetLevel(cfg.Log.Level)
	for _, hook := range hooks {
		hook(cfg)
	}
	slog.Info("config hot-reloaded and validated successfully")
}

// PrintWithMask 脱敏打印当前配置.
func PrintWithMask(conf any) {
	masked, err := MaskedJSON(conf)
	if err != nil {
		slog.Error("failed to mask config for printing", "error", err)
		return
	}
	slog.Info("Current effective configuration", "config", masked)
}

// MaskedJSON 返回敏感字段被替换后的 JSON.
func MaskedJSON(conf any) (string, error) {
	data, err := json.Marshal(conf)
	if err != nil {
		return "", err
	}

	var configMap map[string]any
	if err := json.Unmarshal(data, &configMap); err != nil {
		return "", err
	}

	mask(configMap)

	out, err := json.MarshalIndent(configMap, "", "  ")
	if err != nil {
		return "", err
	}
	return string(out), nil
}

func mask(configMap map[string]any) {
	sensitiveKeys := []string{"password", "secret", "dsn", "key", "token"}

	for key, val := range configMap {
		if subMap, ok := val.(map[string]any); ok {
			mask(subMap)
			continue
		}

		for _, sensitiveKey := range sensitiveKeys {
			if strings.Contains(strings.ToLower(key), sensitiveKey) {
				configMap[key] = "******"
				break
			}
		}
	}
}
