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

// Package scheduler activates cron-armed templates into their target
// sessions without a message trigger, and runs the periodic expiry sweep.
package scheduler

import (
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/teradata-labs/lorebook/pkg/activation"
	"github.com/teradata-labs/lorebook/pkg/lore"
	"github.com/teradata-labs/lorebook/pkg/registry"
)

// Config contains scheduler configuration.
type Config struct {
	Registry *registry.Registry
	Store    *activation.Store

	// SweepInterval is how often the store-wide expiry sweep runs. 0
	// disables the sweep job; reads still clean up lazily.
	SweepInterval time.Duration

	Logger *zap.Logger
}

// Scheduler owns the cron engine. Job registration is keyed by template
// name, so re-registration on a registry reload is idempotent.
type Scheduler struct {
	mu          sync.Mutex
	cronEngine  *cron.Cron
	cronEntries map[string]cron.EntryID
	registry    *registry.Registry
	store       *activation.Store
	logger      *zap.Logger
	started     bool
}

// New creates a scheduler and subscribes it to registry reloads.
func New(cfg Config) (*Scheduler, error) {
	if cfg.Registry == nil {
		return nil, fmt.Errorf("registry is required")
	}
	if cfg.Store == nil {
		return nil, fmt.Errorf("store is required")
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}

	s := &Scheduler{
		cronEngine:  cron.New(),
		cronEntries: make(map[string]cron.EntryID),
		registry:    cfg.Registry,
		store:       cfg.Store,
		logger:      cfg.Logger,
	}

	if cfg.SweepInterval > 0 {
		s.cronEngine.Schedule(cron.Every(cfg.SweepInterval), cron.FuncJob(func() {
			s.store.Sweep(time.Now())
		}))
	}

	cfg.Registry.OnChange(s.Reload)
	return s, nil
}

// Start registers jobs for the current template set and starts the cron
// engine. Starting twice is a no-op.
func (s *Scheduler) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.started {
		return
	}
	s.registerAllLocked()
	s.cronEngine.Start()
	s.started = true
	s.logger.Debug("Cron scheduler started")
}

// Stop halts the cron engine without waiting for running jobs.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.started {
		return
	}
	s.cronEngine.Stop()
	s.started = false
	s.logger.Debug("Cron scheduler stopped")
}

// Reload re-registers every template job. Called after each registry load.
func (s *Scheduler) Reload() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.started {
		return
	}
	for name, id := range s.cronEntries {
		s.cronEngine.Remove(id)
		delete(s.cronEntries, name)
	}
	s.registerAllLocked()
	s.logger.Debug("Cron scheduler reloaded", zap.Int("jobs", len(s.cronEntries)))
}

func (s *Scheduler) registerAllLocked() {
	for _, t := range s.registry.All() {
		if t.Cron == "" {
			continue
		}
		name := t.Name
		id, err := s.cronEngine.AddFunc(t.Cron, func() { s.fire(name) })
		if err != nil {
			// An invalid expression never takes the rest of the set down.
			s.logger.Warn("Ignoring template with invalid cron expression",
				zap.String("template", name),
				zap.String("cron", t.Cron),
				zap.Error(err))
			continue
		}
		s.cronEntries[name] = id
		s.logger.Info("Registered cron activation",
			zap.String("template", name),
			zap.String("cron", t.Cron))
	}
}

// fire activates the template into each of its target sessions. The
// template is re-resolved at fire time so a reload between registration and
// firing is honored.
func (s *Scheduler) fire(name string) {
	t, ok := s.registry.Lookup(name)
	if !ok || !t.Enabled || len(t.Sessions) == 0 {
		return
	}
	now := time.Now()
	for _, sessionID := range t.Sessions {
		s.store.Activate(sessionID, []*lore.Template{t}, now)
	}
	s.logger.Debug("Cron activation fired",
		zap.String("template", name),
		zap.Int("sessions", len(t.Sessions)))
}
