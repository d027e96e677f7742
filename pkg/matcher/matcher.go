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

// Package matcher evaluates inbound message text against the enabled
// template set. It is a pure predicate layer: no session state, no side
// effects beyond logging, so it is testable independently of activations.
package matcher

import (
	"go.uber.org/zap"

	"github.com/teradata-labs/lorebook/pkg/lore"
	"github.com/teradata-labs/lorebook/pkg/registry"
)

// Hit is one template that matched a message, with the pattern that fired.
type Hit struct {
	Template *lore.Template
	Pattern  string
}

// Matcher matches message text against the registry's enabled templates.
type Matcher struct {
	registry *registry.Registry
	logger   *zap.Logger
}

// New creates a matcher over the given registry.
func New(reg *registry.Registry, logger *zap.Logger) *Matcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Matcher{registry: reg, logger: logger}
}

// Match returns the templates whose patterns match text, in registry order.
// Priority-based reordering happens downstream in the activation store.
//
// Each template contributes at most one hit: its patterns are tried in order
// and evaluation stops at the first match. Templates the sender is not
// permitted to trigger are skipped. A pattern that exceeds its time budget
// is treated as a non-match and logged; it never aborts the batch.
func (m *Matcher) Match(text string, sender lore.Sender) []Hit {
	var hits []Hit
	for _, t := range m.registry.EnabledTemplates() {
		if !t.AllowSender(sender) {
			continue
		}
		for _, re := range t.CompiledPatterns() {
			matched, err := re.MatchString(text)
			if err != nil {
				m.logger.Warn("Pattern evaluation exceeded time budget, treating as non-match",
					zap.String("template", t.Name),
					zap.String("pattern", re.String()),
					zap.Error(err))
				continue
			}
			if matched {
				hits = append(hits, Hit{Template: t, Pattern: re.String()})
				break
			}
		}
	}
	return hits
}
