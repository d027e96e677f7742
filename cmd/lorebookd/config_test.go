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
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestLoadConfig_Defaults(t *testing.T) {
	viper.Reset()
	t.Cleanup(viper.Reset)

	cfg, err := loadConfig("")
	require.NoError(t, err)

	assert.True(t, cfg.Templates.HotReload)
	assert.Equal(t, 500, cfg.Templates.DebounceMs)
	assert.Equal(t, "\n\n", cfg.Engine.Separator)
	assert.Equal(t, 250, cfg.Engine.MatchTimeoutMs)
	assert.Equal(t, 0, cfg.Engine.MaxInject)
	assert.True(t, cfg.Engine.AllowSamePriority)
	assert.Equal(t, 300, cfg.Engine.SweepIntervalSeconds)
	assert.Equal(t, "info", cfg.Logging.Level)
	assert.Equal(t, "console", cfg.Logging.Format)
}

func TestLoadConfig_FromFile(t *testing.T) {
	viper.Reset()
	t.Cleanup(viper.Reset)

	path := filepath.Join(t.TempDir(), "lorebook.yaml")
	doc := `templates:
  path: /var/lib/lorebook/templates.yaml
  hot_reload: false
engine:
  match_timeout_ms: 100
  max_inject: 5
  allow_same_priority: false
logging:
  level: debug
  format: json
`
	require.NoError(t, os.WriteFile(path, []byte(doc), 0o644))

	cfg, err := loadConfig(path)
	require.NoError(t, err)

	assert.Equal(t, "/var/lib/lorebook/templates.yaml", cfg.Templates.Path)
	assert.False(t, cfg.Templates.HotReload)
	assert.Equal(t, 100, cfg.Engine.MatchTimeoutMs)
	assert.Equal(t, 5, cfg.Engine.MaxInject)
	assert.False(t, cfg.Engine.AllowSamePriority)
	assert.Equal(t, "debug", cfg.Logging.Level)
	assert.Equal(t, "json", cfg.Logging.Format)
	assert.Equal(t, 500, cfg.Templates.DebounceMs, "unset keys keep defaults")
}

func TestLoadConfig_ExplicitFileMustExist(t *testing.T) {
	viper.Reset()
	t.Cleanup(viper.Reset)

	_, err := loadConfig(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}

func TestEngineConfigConversion(t *testing.T) {
	cfg := &Config{
		Templates: TemplatesConfig{Path: "templates.yaml"},
		Engine: EngineConfig{
			Separator:         "\n---\n",
			MatchTimeoutMs:    100,
			MaxInject:         3,
			AllowSamePriority: false,
		},
	}

	ec := cfg.engineConfig(zap.NewNop())
	assert.Equal(t, "templates.yaml", ec.TemplatesPath)
	assert.Equal(t, "\n---\n", ec.Separator)
	assert.Equal(t, 100*time.Millisecond, ec.MatchTimeout)
	assert.Equal(t, 3, ec.MaxInject)
	assert.True(t, ec.SinglePerPriority)
}

func TestBuildLogger(t *testing.T) {
	logger, err := buildLogger(LoggingConfig{Level: "debug", Format: "json"})
	require.NoError(t, err)
	require.NotNil(t, logger)

	_, err = buildLogger(LoggingConfig{Level: "not-a-level"})
	assert.Error(t, err)
}
