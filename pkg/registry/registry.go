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

// Package registry holds the loaded template set behind an atomically
// swapped snapshot, so matcher calls never observe a partially updated
// registry during reload.
package registry

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/teradata-labs/lorebook/pkg/lore"
)

// ErrDuplicateName rejects a load whose template set repeats a name. It is
// the only condition fatal to a reload; the previous snapshot stays active.
var ErrDuplicateName = errors.New("duplicate template name")

// Config contains registry configuration.
type Config struct {
	// MatchTimeout bounds each regex evaluation. Zero uses the engine's
	// library default.
	MatchTimeout time.Duration

	// Logger records dropped patterns and reload events.
	Logger *zap.Logger
}

// snapshot is an immutable view of one loaded template set.
type snapshot struct {
	order  []*lore.Template
	byName map[string]*lore.Template
}

var emptySnapshot = &snapshot{byName: map[string]*lore.Template{}}

// Registry is the template registry. Readers share a snapshot; Load builds a
// replacement off to the side and swaps it in under a brief write lock.
type Registry struct {
	mu           sync.RWMutex
	snap         *snapshot
	matchTimeout time.Duration
	logger       *zap.Logger

	changeMu sync.Mutex
	onChange []func()
}

// New creates an empty registry.
func New(cfg Config) *Registry {
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	return &Registry{
		snap:         emptySnapshot,
		matchTimeout: cfg.MatchTimeout,
		logger:       cfg.Logger,
	}
}

// Load validates and installs a new template set. Names must be unique
// across the set; a duplicate rejects the whole load and keeps the previous
// snapshot. Each pattern compiles independently: a bad pattern is logged and
// dropped, never failing the load.
func (r *Registry) Load(templates []*lore.Template) error {
	next := &snapshot{
		order:  make([]*lore.Template, 0, len(templates)),
		byName: make(map[string]*lore.Template, len(templates)),
	}
	for _, t := range templates {
		if t.Name == "" {
			return fmt.Errorf("template with empty name: %w", ErrDuplicateName)
		}
		if _, ok := next.byName[t.Name]; ok {
			return fmt.Errorf("%w: %q", ErrDuplicateName, t.Name)
		}
		c := t.Clone()
		for _, perr := range c.Compile(r.matchTimeout) {
			r.logger.Warn("Dropping pattern that failed to compile",
				zap.String("template", perr.Template),
				zap.String("pattern", perr.Pattern),
				zap.Error(perr.Err))
		}
		next.order = append(next.order, c)
		next.byName[c.Name] = c
	}

	r.mu.Lock()
	r.snap = next
	r.mu.Unlock()

	r.logger.Info("Template registry loaded", zap.Int("templates", len(next.order)))
	r.notifyChanged()
	return nil
}

// Lookup returns the template with the given name, if present.
func (r *Registry) Lookup(name string) (*lore.Template, bool) {
	t, ok := r.current().byName[name]
	return t, ok
}

// EnabledTemplates returns the enabled templates in load order. The returned
// templates are shared with the snapshot and must not be mutated.
func (r *Registry) EnabledTemplates() []*lore.Template {
	snap := r.current()
	enabled := make([]*lore.Template, 0, len(snap.order))
	for _, t := range snap.order {
		if t.Enabled {
			enabled = append(enabled, t)
		}
	}
	return enabled
}

// All returns every template in load order, enabled or not.
func (r *Registry) All() []*lore.Template {
	snap := r.current()
	out := make([]*lore.Template, len(snap.order))
	copy(out, snap.order)
	return out
}

// Len returns the number of loaded templates.
func (r *Registry) Len() int {
	return len(r.current().order)
}

// OnChange registers a callback invoked after every successful load. Used by
// the cron scheduler to re-register jobs.
func (r *Registry) OnChange(fn func()) {
	r.changeMu.Lock()
	r.onChange = append(r.onChange, fn)
	r.changeMu.Unlock()
}

func (r *Registry) notifyChanged() {
	r.changeMu.Lock()
	callbacks := append([]func(){}, r.onChange...)
	r.changeMu.Unlock()
	for _, fn := range callbacks {
		fn()
	}
}

func (r *Registry) current() *snapshot {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.snap
}
