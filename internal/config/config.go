// Package config assembles the typed service configuration from the layered
// yaml loader, then applies environment overrides on top.
package config

import (
	"fmt"
	"time"

	"gopkg.in/yaml.v3"

	pkgconfig "stageflow/pkg/config"
)

// AppConfig holds workflow-specific settings.
type AppConfig struct {
	// TerminalStage is the stage name whose completion marks the whole
	// project as complete.
	TerminalStage string `yaml:"terminal_stage"`
	// Approvers receive verification and extension request notifications.
	Approvers              []string `yaml:"approvers"`
	SummaryCacheTTLSeconds int      `yaml:"summary_cache_ttl_seconds"`
}

// SummaryCacheTTL returns the completion summary cache lifetime.
func (a AppConfig) SummaryCacheTTL() time.Duration {
	if a.SummaryCacheTTLSeconds <= 0 {
		return 5 * time.Minute
	}
	return time.Duration(a.SummaryCacheTTLSeconds) * time.Second
}

type Config struct {
	Server pkgconfig.ServerConfig `yaml:"server"`
	DB     pkgconfig.DBConfig     `yaml:"db"`
	Redis  pkgconfig.RedisConfig  `yaml:"redis"`
	MQ     pkgconfig.MQConfig     `yaml:"mq"`
	JWT    pkgconfig.JWTConfig    `yaml:"jwt"`
	Mail   pkgconfig.MailConfig   `yaml:"mail"`
	App    AppConfig              `yaml:"app"`
}

// Load reads base.yaml plus the CONFIG_ENV overlay and secrets, decodes the
// merged tree, and applies per-section environment overrides.
func Load() (*Config, error) {
	raw, err := pkgconfig.LoadConfig(pkgconfig.GetConfigEnv(), pkgconfig.GetEnv("CONFIG_DIR", "config"))
	if err != nil {
		return nil, err
	}

	data, err := yaml.Marshal(raw)
	if err != nil {
		return nil, fmt.Errorf("failed to re-encode merged config: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}

	pkgconfig.OverrideServerFromEnv(&cfg.Server)
	pkgconfig.OverrideDBFromEnv(&cfg.DB)
	pkgconfig.OverrideRedisFromEnv(&cfg.Redis)
	pkgconfig.OverrideMQFromEnv(&cfg.MQ)
	pkgconfig.OverrideJWTFromEnv(&cfg.JWT)
	pkgconfig.OverrideMailFromEnv(&cfg.Mail)

	if cfg.Server.Port == "" {
		cfg.Server.Port = ":8080"
	}
	if cfg.App.TerminalStage == "" {
		cfg.App.TerminalStage = "Payment"
	}

	return &cfg, nil
}
