package config

import (
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"ariac-fulfillment/internal/actuator"
	"ariac-fulfillment/internal/admission"
)

// Config 定义应用程序的配置结构
// 使用 mapstructure 标签来映射配置文件中的字段
type Config struct {
	ListenAddr     string            `mapstructure:"listen_addr" validate:"required"`         // HTTP 监听地址
	TickIntervalMs int               `mapstructure:"tick_interval_ms" validate:"min=1"`       // 调度周期
	WALPath        string            `mapstructure:"wal_path"`                                // 订单日志路径，为空时不持久化
	LogLevel       string            `mapstructure:"log_level" validate:"oneof=debug info warn error"`
	Competition    CompetitionConfig `mapstructure:"competition"`
	Admission      AdmissionConfig   `mapstructure:"admission"`
	Simulation     SimulationConfig  `mapstructure:"simulation"`
}

// CompetitionConfig 竞赛桥接服务；RemoteAddr 为空时使用本地模拟执行器
type CompetitionConfig struct {
	RemoteAddr       string        `mapstructure:"remote_addr" validate:"omitempty,url"`
	RequestTimeoutMs int           `mapstructure:"request_timeout_ms" validate:"min=1"`
	RetryBackoffMs   int           `mapstructure:"retry_backoff_ms" validate:"min=1"`
	Breaker          BreakerConfig `mapstructure:"breaker"`
}

type BreakerConfig struct {
	FailureThreshold uint32 `mapstructure:"failure_threshold" validate:"min=1"`
	OpenTimeoutMs    int    `mapstructure:"open_timeout_ms" validate:"min=1"`
}

// AdmissionConfig 订单准入规则
type AdmissionConfig struct {
	Rules []admission.Rule `mapstructure:"rules" validate:"dive"`
}

// SimulationConfig 本地模拟执行器的命令延时和随机故障率
type SimulationConfig struct {
	CommandDelayMs int     `mapstructure:"command_delay_ms" validate:"min=0"`
	FailureRate    float64 `mapstructure:"failure_rate" validate:"min=0,max=1"`
}

// LoadConfig 加载配置，优先级：环境变量 (ARIAC_ 前缀) > 配置文件 > 默认值
// path 为空时在当前目录查找 config.yaml，找不到也不报错
func LoadConfig(path string) (*Config, error) {
	// 存在 .env 时加载，不存在忽略
	_ = godotenv.Load()

	v := viper.New()
	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
	}

	v.SetEnvPrefix("ARIAC")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// 设置默认值
	v.SetDefault("listen_addr", ":8080")
	v.SetDefault("tick_interval_ms", 100)
	v.SetDefault("wal_path", "")
	v.SetDefault("log_level", "info")
	v.SetDefault("competition.remote_addr", "")
	v.SetDefault("competition.request_timeout_ms", 5000)
	v.SetDefault("competition.retry_backoff_ms", 500)
	v.SetDefault("competition.breaker.failure_threshold", 5)
	v.SetDefault("competition.breaker.open_timeout_ms", 2000)
	v.SetDefault("simulation.command_delay_ms", 200)
	v.SetDefault("simulation.failure_rate", 0.0)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok || path != "" {
			return nil, fmt.Errorf("读取配置文件失败: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("解析配置文件失败: %w", err)
	}
	if err := Validate(&cfg); err != nil {
		return nil, fmt.Errorf("配置无效: %w", err)
	}
	return &cfg, nil
}

// Validate 按结构体标签校验配置
func Validate(cfg *Config) error {
	if err := validator.New().Struct(cfg); err != nil {
		if verrs, ok := err.(validator.ValidationErrors); ok {
			messages := make([]string, 0, len(verrs))
			for _, e := range verrs {
				messages = append(messages, fmt.Sprintf("field '%s' failed validation: %s (value: '%v')", e.Namespace(), e.Tag(), e.Value()))
			}
			return fmt.Errorf("%s", strings.Join(messages, "; "))
		}
		return err
	}
	return nil
}

func (c *Config) TickInterval() time.Duration {
	return time.Duration(c.TickIntervalMs) * time.Millisecond
}

func (c *Config) CommandDelay() time.Duration {
	return time.Duration(c.Simulation.CommandDelayMs) * time.Millisecond
}

// RemoteOptions 转换为远程客户端参数
func (c *Config) RemoteOptions() actuator.RemoteOptions {
	return actuator.RemoteOptions{
		Timeout:          time.Duration(c.Competition.RequestTimeoutMs) * time.Millisecond,
		RetryBackoff:     time.Duration(c.Competition.RetryBackoffMs) * time.Millisecond,
		FailureThreshold: c.Competition.Breaker.FailureThreshold,
		OpenTimeout:      time.Duration(c.Competition.Breaker.OpenTimeoutMs) * time.Millisecond,
	}
}

// SlogLevel 日志级别
func (c *Config) SlogLevel() slog.Level {
	switch c.LogLevel {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	}
	return slog.LevelInfo
}
