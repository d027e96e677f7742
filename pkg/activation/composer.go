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
package activation

import (
	"sort"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/teradata-labs/lorebook/pkg/lore"
	"github.com/teradata-labs/lorebook/pkg/wildcard"
)

// ComposerConfig contains composer configuration.
type ComposerConfig struct {
	// Store supplies the live records per session.
	Store *Store

	// Source resolves record names to current template content.
	Source TemplateSource

	// Resolver renders wildcard placeholders in template content. Nil
	// disables rendering.
	Resolver *wildcard.Resolver

	// SectionSeparator joins the rendered blocks. Defaults to a blank line.
	SectionSeparator string

	// AllowSamePriority keeps every record of a priority tier, concatenated
	// in activation order. When false, only the earliest-activated record
	// of each tier is injected and the rest are dropped for that request.
	AllowSamePriority bool

	// MaxInject caps how many records one request injects; overflow is
	// skipped for that request only. 0 = unlimited.
	MaxInject int

	Logger *zap.Logger
}

// Composer builds the injected prompt suffix from a session's live
// activations. Each composed record is charged one use, which is what expires
// count-limited activations; the whole read-render-charge runs under the
// session lock, so concurrent composes on one session serialize and a
// single-use record composes exactly once.
type Composer struct {
	cfg ComposerConfig
}

// NewComposer creates a composer.
func NewComposer(cfg ComposerConfig) *Composer {
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	if cfg.SectionSeparator == "" {
		cfg.SectionSeparator = "\n\n"
	}
	return &Composer{cfg: cfg}
}

// BuildInjectionSuffix renders the session's active templates into the text
// appended to the outbound system prompt for the given consumer. Returns ""
// when nothing is active. Scope and admin restrictions gate consumption as
// well as activation: a record the sender may not consume is skipped for
// this request, never evicted.
//
// Ordering is deterministic: ascending priority snapshot, ties broken by
// activation order.
func (c *Composer) BuildInjectionSuffix(sessionID string, sender lore.Sender, ctx wildcard.Context, now time.Time) string {
	sess := c.cfg.Store.lookupSession(sessionID)
	if sess == nil {
		return ""
	}
	sess.mu.Lock()
	defer sess.mu.Unlock()

	records := c.cfg.Store.liveLocked(sessionID, sess, now)
	if len(records) == 0 {
		return ""
	}

	// liveLocked returns activation order; a stable sort by priority
	// preserves it within each tier.
	sort.SliceStable(records, func(i, j int) bool { return records[i].Priority < records[j].Priority })

	if !c.cfg.AllowSamePriority {
		records = c.dedupTiers(sessionID, records)
	}

	if max := c.cfg.MaxInject; max > 0 && len(records) > max {
		dropped := make([]string, 0, len(records)-max)
		for _, rec := range records[max:] {
			dropped = append(dropped, rec.TemplateName)
		}
		c.cfg.Logger.Debug("Injection cap exceeded, skipping overflow for this request",
			zap.String("session", sessionID),
			zap.Int("max", max),
			zap.Strings("skipped", dropped))
		records = records[:max]
	}

	sections := make([]string, 0, len(records))
	used := make([]string, 0, len(records))
	for _, rec := range records {
		t, ok := c.cfg.Source.Lookup(rec.TemplateName)
		if !ok || !t.Enabled {
			// A reload removed it since the liveness check; the store
			// evicts it on its next access.
			continue
		}
		if !t.AllowSender(sender) {
			c.cfg.Logger.Debug("Activation not consumable by this sender, skipping",
				zap.String("session", sessionID),
				zap.String("template", t.Name),
				zap.String("sender", sender.UserID))
			continue
		}
		content := t.Content
		if c.cfg.Resolver != nil {
			wctx := ctx
			wctx.SessionID = sessionID
			wctx.TemplateName = t.Name
			if wctx.Now.IsZero() {
				wctx.Now = now
			}
			content = c.cfg.Resolver.Render(content, wctx)
		}
		sections = append(sections, "## ["+t.Name+"]\n"+content)
		used = append(used, t.Name)
	}
	if len(sections) == 0 {
		return ""
	}

	sess.charge(used)
	return strings.Join(sections, c.cfg.SectionSeparator)
}

// dedupTiers keeps the earliest-activated record of each priority tier.
// Records arrive priority-sorted with activation order preserved inside each
// tier, so the first record of a tier is the winner.
func (c *Composer) dedupTiers(sessionID string, records []Record) []Record {
	out := records[:0]
	lastPriority := 0
	for i, rec := range records {
		if i > 0 && rec.Priority == lastPriority {
			c.cfg.Logger.Warn("Same-priority activation dropped from composition",
				zap.String("session", sessionID),
				zap.Int("priority", rec.Priority),
				zap.String("template", rec.TemplateName))
			continue
		}
		out = append(out, rec)
		lastPriority = rec.Priority
	}
	return out
}
