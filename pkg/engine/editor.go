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
package engine

import (
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/teradata-labs/lorebook/pkg/lore"
)

// ImportSummary reports the outcome of one lorefile import.
type ImportSummary struct {
	Total   int
	Loaded  int
	Skipped []string
	Failed  []string
}

// AddTemplate registers a new template with defaults: enabled, permanent,
// unlimited uses, probability 1, and the next free priority after the
// current maximum. A duplicate name is disambiguated name_2 / name_3 style.
// The change is persisted when a templates path is configured.
func (e *Engine) AddTemplate(name, content string) (*lore.Template, error) {
	name = strings.TrimSpace(name)
	content = strings.TrimSpace(content)
	if name == "" {
		return nil, fmt.Errorf("template name is required")
	}
	if content == "" {
		return nil, fmt.Errorf("template content is required")
	}

	e.editMu.Lock()
	defer e.editMu.Unlock()

	current := e.registry.All()
	t := &lore.Template{
		Name:        e.resolveUniqueName(current, name),
		Enabled:     true,
		Content:     content,
		Priority:    nextPriority(current),
		Probability: 1,
	}
	if err := e.registry.Load(append(current, t)); err != nil {
		return nil, err
	}
	e.persistLocked()
	e.logger.Info("Added template",
		zap.String("template", t.Name),
		zap.Int("priority", t.Priority))
	return t, nil
}

// RemoveTemplates deletes templates by name, returning the names removed and
// the names not found. Live activations referencing a removed template are
// evicted lazily on their next read.
func (e *Engine) RemoveTemplates(names []string) (removed, missing []string) {
	e.editMu.Lock()
	defer e.editMu.Unlock()

	requested := make(map[string]bool, len(names))
	for _, n := range names {
		requested[n] = true
	}

	var remaining []*lore.Template
	for _, t := range e.registry.All() {
		if requested[t.Name] {
			removed = append(removed, t.Name)
			continue
		}
		remaining = append(remaining, t)
	}
	for _, n := range names {
		if !contains(removed, n) {
			missing = append(missing, n)
		}
	}
	if len(removed) == 0 {
		return nil, missing
	}
	if err := e.registry.Load(remaining); err != nil {
		// Removal cannot introduce duplicates; surface it loudly anyway.
		e.logger.Error("Reload after removal failed", zap.Error(err))
		return nil, names
	}
	e.persistLocked()
	return removed, missing
}

// EnableTemplates marks templates enabled by name.
func (e *Engine) EnableTemplates(names []string) (ok, missing []string) {
	return e.setEnabled(names, true)
}

// DisableTemplates marks templates disabled by name. Disabling also hides
// the template from composition; its activations are evicted on next read.
func (e *Engine) DisableTemplates(names []string) (ok, missing []string) {
	return e.setEnabled(names, false)
}

// SetPatterns replaces a template's trigger patterns. An empty set falls
// back to matching the template name.
func (e *Engine) SetPatterns(name string, patterns []string) error {
	return e.updateTemplate(name, func(t *lore.Template) {
		t.Patterns = patterns
	})
}

// SetPriority changes a template's priority. Already-active records keep
// their snapshot ordering until re-triggered.
func (e *Engine) SetPriority(name string, priority int) error {
	return e.updateTemplate(name, func(t *lore.Template) {
		t.Priority = priority
	})
}

// ImportFile merges a lorefile into the registry. Same-name entries are
// skipped; a failing entry never stops the rest of the import.
func (e *Engine) ImportFile(path string) (ImportSummary, error) {
	templates, skipped, err := lore.LoadFile(path)
	if err != nil {
		return ImportSummary{}, err
	}

	e.editMu.Lock()
	defer e.editMu.Unlock()

	summary := ImportSummary{Total: len(templates) + len(skipped)}
	for _, sk := range skipped {
		summary.Failed = append(summary.Failed, sk.Name)
	}

	current := e.registry.All()
	byName := make(map[string]bool, len(current))
	for _, t := range current {
		byName[t.Name] = true
	}

	merged := current
	for _, t := range templates {
		if byName[t.Name] {
			summary.Skipped = append(summary.Skipped, t.Name)
			continue
		}
		byName[t.Name] = true
		merged = append(merged, t)
		summary.Loaded++
	}

	if summary.Loaded > 0 {
		if err := e.registry.Load(merged); err != nil {
			return ImportSummary{}, err
		}
		e.persistLocked()
	}
	e.logger.Info("Imported lorefile",
		zap.String("path", path),
		zap.Int("total", summary.Total),
		zap.Int("loaded", summary.Loaded),
		zap.Int("skipped", len(summary.Skipped)),
		zap.Int("failed", len(summary.Failed)))
	return summary, nil
}

// ExportFile writes the current template set to a lorefile, format chosen by
// extension.
func (e *Engine) ExportFile(path string) error {
	return lore.SaveFile(path, e.registry.All())
}

func (e *Engine) setEnabled(names []string, enabled bool) (ok, missing []string) {
	e.editMu.Lock()
	defer e.editMu.Unlock()

	requested := make(map[string]bool, len(names))
	for _, n := range names {
		requested[n] = true
	}

	templates := e.registry.All()
	for i, t := range templates {
		if requested[t.Name] {
			c := t.Clone()
			c.Enabled = enabled
			templates[i] = c
			ok = append(ok, t.Name)
		}
	}
	for _, n := range names {
		if !contains(ok, n) {
			missing = append(missing, n)
		}
	}
	if len(ok) == 0 {
		return nil, missing
	}
	if err := e.registry.Load(templates); err != nil {
		e.logger.Error("Reload after enable/disable failed", zap.Error(err))
		return nil, names
	}
	e.persistLocked()
	return ok, missing
}

func (e *Engine) updateTemplate(name string, mutate func(*lore.Template)) error {
	e.editMu.Lock()
	defer e.editMu.Unlock()

	templates := e.registry.All()
	found := false
	for i, t := range templates {
		if t.Name == name {
			c := t.Clone()
			mutate(c)
			templates[i] = c
			found = true
			break
		}
	}
	if !found {
		return fmt.Errorf("template not found: %s", name)
	}
	if err := e.registry.Load(templates); err != nil {
		return err
	}
	e.persistLocked()
	return nil
}

// persistLocked saves the current template set to the configured lorefile.
// Caller holds editMu.
func (e *Engine) persistLocked() {
	if e.cfg.TemplatesPath == "" {
		return
	}
	if err := e.ExportFile(e.cfg.TemplatesPath); err != nil {
		e.logger.Error("Failed to persist templates",
			zap.String("path", e.cfg.TemplatesPath),
			zap.Error(err))
	}
}

func (e *Engine) resolveUniqueName(current []*lore.Template, name string) string {
	taken := make(map[string]bool, len(current))
	for _, t := range current {
		taken[t.Name] = true
	}
	if !taken[name] {
		return name
	}
	for i := 2; ; i++ {
		candidate := fmt.Sprintf("%s_%d", name, i)
		if !taken[candidate] {
			return candidate
		}
	}
}

func nextPriority(current []*lore.Template) int {
	next := 0
	for _, t := range current {
		if t.Priority >= next {
			next = t.Priority + 1
		}
	}
	return next
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
