// Copyright 2026 Teradata
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//	http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.
package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/teradata-labs/lorebook/pkg/engine"
)

// Config holds all configuration for lorebookd.
// Priority: CLI flags > config file > env vars (LOREBOOK_*) > defaults.
type Config struct {
	Templates TemplatesConfig `mapstructure:"templates"`
	Engine    EngineConfig    `mapstructure:"engine"`
	Logging   LoggingConfig   `mapstructure:"logging"`
}

// TemplatesConfig locates the lorefile and controls hot reload.
type TemplatesConfig struct {
	// Path to the templates lorefile (.json, .yaml, .yml).
	Path string `mapstructure:"path"`

	// HotReload reloads the file when it changes on disk.
	HotReload bool `mapstructure:"hot_reload"`

	// DebounceMs is the reload debounce delay in milliseconds.
	DebounceMs int `mapstructure:"debounce_ms"`
}

// EngineConfig tunes activation and composition behavior.
type EngineConfig struct {
	// Separator between the base system prompt and the injected suffix.
	Separator string `mapstructure:"separator"`

	// MatchTimeoutMs bounds each regex evaluation, in milliseconds.
	MatchTimeoutMs int `mapstructure:"match_timeout_ms"`

	// MaxInject caps injections per request; 0 = unlimited.
	MaxInject int `mapstructure:"max_inject"`

	// AllowSamePriority keeps every activation of a priority tier. When
	// false, only the earliest per tier is injected.
	AllowSamePriority bool `mapstructure:"allow_same_priority"`

	// SweepIntervalSeconds is the background expiry sweep period; 0
	// disables the background sweep (reads still clean up lazily).
	SweepIntervalSeconds int `mapstructure:"sweep_interval_seconds"`
}

// LoggingConfig controls log output.
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

func loadConfig(cfgFile string) (*Config, error) {
	viper.SetDefault("templates.path", "")
	viper.SetDefault("templates.hot_reload", true)
	viper.SetDefault("templates.debounce_ms", 500)
	viper.SetDefault("engine.separator", "\n\n")
	viper.SetDefault("engine.match_timeout_ms", 250)
	viper.SetDefault("engine.max_inject", 0)
	viper.SetDefault("engine.allow_same_priority", true)
	viper.SetDefault("engine.sweep_interval_seconds", 300)
	viper.SetDefault("logging.level", "info")
	viper.SetDefault("logging.format", "console")

	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		viper.SetConfigName("lorebook")
		viper.SetConfigType("yaml")
		viper.AddConfigPath(".")
	}
	viper.SetEnvPrefix("LOREBOOK")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err != nil {
		// A missing default config file is fine; an explicit one is not.
		if _, notFound := err.(viper.ConfigFileNotFoundError); !notFound || cfgFile != "" {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	return &cfg, nil
}

// engineConfig converts the file/flag config into the engine's Config.
func (c *Config) engineConfig(logger *zap.Logger) engine.Config {
	return engine.Config{
		TemplatesPath:     c.Templates.Path,
		Separator:         c.Engine.Separator,
		MatchTimeout:      time.Duration(c.Engine.MatchTimeoutMs) * time.Millisecond,
		MaxInject:         c.Engine.MaxInject,
		SinglePerPriority: !c.Engine.AllowSamePriority,
		Logger:            logger,
	}
}

func buildLogger(cfg LoggingConfig) (*zap.Logger, error) {
	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return nil, fmt.Errorf("invalid log level %q: %w", cfg.Level, err)
	}

	var zc zap.Config
	if cfg.Format == "json" {
		zc = zap.NewProductionConfig()
	} else {
		zc = zap.NewDevelopmentConfig()
	}
	zc.Level = zap.NewAtomicLevelAt(level)
	// stdout carries the event protocol in serve mode; logs go to stderr.
	zc.OutputPaths = []string{"stderr"}
	return zc.Build()
}
