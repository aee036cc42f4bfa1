package main

import (
	"os"
	"strings"
	"time"

	"lessonjudge/internal/batch"
	"lessonjudge/internal/common/storage"
	"lessonjudge/internal/judge/sandbox/engine"
	"lessonjudge/internal/judge/service"
	appErr "lessonjudge/pkg/errors"
	"lessonjudge/pkg/utils/logger"

	"gopkg.in/yaml.v3"
)

const (
	defaultParallel = 1
	defaultTimeout  = 30 * time.Second
)

// UploadConfig enables storing a compressed report copy in MinIO.
type UploadConfig struct {
	Enabled            bool                `yaml:"enabled"`
	MinIO              storage.MinIOConfig `yaml:"minio"`
	batch.UploadConfig `yaml:",inline"`
}

// Config is the optional YAML file. Flags override it.
type Config struct {
	Corpus   string                 `yaml:"corpus"`
	Server   string                 `yaml:"server"`
	Report   string                 `yaml:"report"`
	Parallel int                    `yaml:"parallel"`
	Timeout  time.Duration          `yaml:"timeout"`
	Engine   string                 `yaml:"engine"`
	Lessons  []string               `yaml:"lessons"`
	Color    string                 `yaml:"color"`
	Logger   logger.Config          `yaml:"logger"`
	Pipeline service.PipelineConfig `yaml:"pipeline"`
	Upload   UploadConfig           `yaml:"upload"`
}

func defaultConfig() Config {
	return Config{
		Report:   batch.DefaultReportPath,
		Parallel: defaultParallel,
		Timeout:  defaultTimeout,
		Engine:   string(engine.ModeInterp),
		Color:    "auto",
		Logger:   logger.Config{Level: "warn", Format: "console", OutputPath: "stderr"},
	}
}

func loadConfig(path string) (Config, error) {
	cfg := defaultConfig()
	if path == "" {
		return cfg, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, appErr.Wrapf(err, appErr.InvalidParams, "read config %s", path)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, appErr.Wrapf(err, appErr.InvalidParams, "parse config %s", path)
	}
	return cfg, nil
}

func (c *Config) validate() error {
	if c.Parallel < 1 {
		return appErr.ValidationError("parallel", "must be at least 1")
	}
	if c.Timeout <= 0 {
		return appErr.ValidationError("timeout", "must be positive")
	}
	switch engine.Mode(strings.ToLower(c.Engine)) {
	case engine.ModeInterp, engine.ModeProcess:
		c.Engine = strings.ToLower(c.Engine)
	default:
		return appErr.ValidationError("engine", "must be interp or process")
	}
	switch c.Color {
	case "", "auto", "always", "never":
	default:
		return appErr.ValidationError("color", "must be auto, always or never")
	}
	if c.Upload.Enabled && c.Upload.Bucket == "" {
		c.Upload.Bucket = c.Upload.MinIO.Bucket
	}
	if c.Upload.Enabled && c.Upload.Bucket == "" {
		return appErr.ValidationError("upload.bucket", "required when upload is enabled")
	}
	return nil
}

func (c Config) pipelineConfig() service.PipelineConfig {
	p := c.Pipeline
	p.Sandbox.Mode = engine.Mode(c.Engine)
	if p.Parallelism <= 0 {
		p.Parallelism = c.Parallel
	}
	return p
}
