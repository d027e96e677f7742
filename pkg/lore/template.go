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

// Package lore defines the prompt template model shared by the registry,
// matcher, and activation layers.
//
// A Template is immutable once loaded; configuration changes replace the
// whole template via a registry reload rather than mutating it in place.
package lore

import (
	"strings"
	"time"

	"github.com/dlclark/regexp2"
)

// ScopeAdmin is the scope atom that grants access to session administrators.
const ScopeAdmin = "admin"

// Template is a single prompt template definition.
type Template struct {
	// Name is the unique key across the registry.
	Name string

	// Enabled controls visibility to the matcher. Disabled templates never
	// match and are skipped during composition.
	Enabled bool

	// Content is appended verbatim (after wildcard rendering) to the
	// outbound system prompt.
	Content string

	// Priority orders composed injections; lower value = higher precedence.
	Priority int

	// Patterns is the ordered regex set; the template matches a message if
	// any pattern matches. An empty set falls back to matching Name.
	Patterns []string

	// Duration is the activation lifetime in seconds. 0 means the
	// activation never expires and must be cleared explicitly.
	Duration int

	// Times caps how many injections one activation may perform.
	// 0 means unlimited.
	Times int

	// Probability is the activation chance in [0,1]. Values >= 1 always
	// activate, values <= 0 never do.
	Probability float64

	// AdminOnly discards hits from non-administrator senders.
	AdminOnly bool

	// Scope lists who may trigger and consume this template: the atom
	// "admin", user ids, group ids, or session ids. Empty = everyone.
	Scope []string

	// Cron is an optional 5-field cron expression. When it fires, the
	// template is activated into each session listed in Sessions without a
	// message trigger.
	Cron string

	// Sessions are the target session ids for cron activation.
	Sessions []string

	compiled []*regexp2.Regexp
}

// Sender identifies the author of an inbound message for permission checks.
type Sender struct {
	UserID    string
	UserName  string
	GroupID   string
	SessionID string
	IsAdmin   bool
}

// PatternError records one regex that failed to compile during Compile.
type PatternError struct {
	Template string
	Pattern  string
	Err      error
}

// Compile compiles the template's patterns with the given per-match time
// budget. Patterns that fail to compile are dropped and reported; they never
// prevent the rest of the template from working. An empty (or fully dropped)
// pattern set falls back to the template name itself, mirroring the
// keyword-defaults-to-name behavior of the configuration format.
func (t *Template) Compile(matchTimeout time.Duration) []PatternError {
	patterns := make([]string, 0, len(t.Patterns))
	for _, p := range t.Patterns {
		if strings.TrimSpace(p) != "" {
			patterns = append(patterns, p)
		}
	}
	if len(patterns) == 0 {
		patterns = []string{t.Name}
	}
	t.Patterns = patterns

	var errs []PatternError
	t.compiled = t.compiled[:0]
	for _, p := range patterns {
		re, err := regexp2.Compile(p, regexp2.None)
		if err != nil {
			errs = append(errs, PatternError{Template: t.Name, Pattern: p, Err: err})
			continue
		}
		if matchTimeout > 0 {
			re.MatchTimeout = matchTimeout
		}
		t.compiled = append(t.compiled, re)
	}
	return errs
}

// CompiledPatterns returns the successfully compiled regex set in pattern
// order. Empty until Compile has run.
func (t *Template) CompiledPatterns() []*regexp2.Regexp {
	return t.compiled
}

// Permanent reports whether an activation of this template never expires by
// time.
func (t *Template) Permanent() bool {
	return t.Duration <= 0
}

// AllowSender reports whether the sender may trigger or consume this
// template. AdminOnly requires an administrator regardless of scope; an
// empty scope admits everyone, otherwise any matching atom admits.
func (t *Template) AllowSender(s Sender) bool {
	if t.AdminOnly && !s.IsAdmin {
		return false
	}
	if len(t.Scope) == 0 {
		return true
	}
	for _, atom := range t.Scope {
		switch {
		case atom == ScopeAdmin && s.IsAdmin:
			return true
		case s.UserID != "" && atom == s.UserID:
			return true
		case s.GroupID != "" && atom == s.GroupID:
			return true
		case s.SessionID != "" && atom == s.SessionID:
			return true
		}
	}
	return false
}

// Clone returns a copy of the template without its compiled state. Editor
// operations clone, modify, and reload rather than mutating live templates.
func (t *Template) Clone() *Template {
	c := *t
	c.Patterns = append([]string(nil), t.Patterns...)
	c.Scope = append([]string(nil), t.Scope...)
	c.Sessions = append([]string(nil), t.Sessions...)
	c.compiled = nil
	return &c
}
