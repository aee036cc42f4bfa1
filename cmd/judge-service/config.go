package main

import (
	"fmt"
	"time"

	"lessonjudge/internal/common/cache"
	"lessonjudge/internal/common/http/middleware"
	"lessonjudge/internal/common/mq"
	"lessonjudge/internal/judge/sandbox/spec"
	"lessonjudge/internal/judge/service"
	"lessonjudge/pkg/utils/logger"

	"github.com/zeromicro/go-zero/core/conf"
)

const (
	defaultHTTPAddr        = "0.0.0.0:8085"
	defaultReadTimeout     = 5 * time.Second
	defaultWriteTimeout    = 30 * time.Second
	defaultIdleTimeout     = 60 * time.Second
	defaultShutdownTimeout = 10 * time.Second
	defaultVerdictTopic    = "lesson.verdicts"
)

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Addr         string        `json:",optional"`
	ReadTimeout  time.Duration `json:",optional"`
	WriteTimeout time.Duration `json:",optional"`
	IdleTimeout  time.Duration `json:",optional"`
}

// RateLimitConfig holds Redis fixed-window limits for the run endpoints.
type RateLimitConfig struct {
	Enabled      bool                       `json:",optional"`
	RedisTimeout time.Duration              `json:",default=200ms"`
	Run          middleware.RateLimitPolicy `json:",optional"`
	Validate     middleware.RateLimitPolicy `json:",optional"`
}

// WorkerConfig bounds concurrent submissions.
type WorkerConfig struct {
	PoolSize  int           `json:",default=4"`
	QueueWait time.Duration `json:",default=2s"`
	Timeout   time.Duration `json:",default=30s"`
}

// LimitsConfig overrides the per-dialect resource limits.
type LimitsConfig struct {
	WallTimeMs int64 `json:",optional"`
	CPUTimeMs  int64 `json:",optional"`
	MemoryMB   int64 `json:",optional"`
}

// StatusConfig holds run status persistence settings.
type StatusConfig struct {
	Enabled bool          `json:",optional"`
	TTL     time.Duration `json:",default=30m"`
	Timeout time.Duration `json:",default=1s"`
}

// VerdictConfig holds verdict event publishing settings.
type VerdictConfig struct {
	Enabled bool           `json:",optional"`
	Topic   string         `json:",optional"`
	Kafka   mq.KafkaConfig `json:",optional"`
}

// AppConfig holds judge-service config.
type AppConfig struct {
	Server    ServerConfig           `json:",optional"`
	Logger    logger.Config          `json:",optional"`
	Redis     cache.RedisConfig      `json:",optional"`
	RateLimit RateLimitConfig        `json:",optional"`
	CORS      middleware.CORSConfig  `json:",optional"`
	Pipeline  service.PipelineConfig `json:",optional"`
	Limits    LimitsConfig           `json:",optional"`
	Worker    WorkerConfig           `json:",optional"`
	Status    StatusConfig           `json:",optional"`
	Verdict   VerdictConfig          `json:",optional"`
}

func loadAppConfig(path string) (*AppConfig, error) {
	var cfg AppConfig
	if path != "" {
		if err := conf.Load(path, &cfg, conf.UseEnv()); err != nil {
			return nil, fmt.Errorf("load config file failed: %w", err)
		}
	}
	applyDefaults(&cfg)
	if err := validateConfig(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func applyDefaults(cfg *AppConfig) {
	if cfg.Server.Addr == "" {
		cfg.Server.Addr = defaultHTTPAddr
	}
	if cfg.Server.ReadTimeout == 0 {
		cfg.Server.ReadTimeout = defaultReadTimeout
	}
	if cfg.Server.WriteTimeout == 0 {
		cfg.Server.WriteTimeout = defaultWriteTimeout
	}
	if cfg.Server.IdleTimeout == 0 {
		cfg.Server.IdleTimeout = defaultIdleTimeout
	}
	if cfg.Worker.PoolSize <= 0 {
		cfg.Worker.PoolSize = 4
	}
	if cfg.Verdict.Topic == "" {
		cfg.Verdict.Topic = defaultVerdictTopic
	}
	if cfg.Pipeline.Sandbox.Mode == "" {
		cfg.Pipeline.Sandbox.Mode = "interp"
	}
}

func validateConfig(cfg *AppConfig) error {
	needsRedis := cfg.RateLimit.Enabled || cfg.Status.Enabled
	if needsRedis && cfg.Redis.Addr == "" {
		return fmt.Errorf("redis addr is required when rate limiting or status is enabled")
	}
	if cfg.Verdict.Enabled && len(cfg.Verdict.Kafka.Brokers) == 0 {
		return fmt.Errorf("kafka brokers are required when verdict publishing is enabled")
	}
	return nil
}

func (l LimitsConfig) toResourceLimit() spec.ResourceLimit {
	return spec.ResourceLimit{
		WallTimeMs: l.WallTimeMs,
		CPUTimeMs:  l.CPUTimeMs,
		MemoryMB:   l.MemoryMB,
	}
}
