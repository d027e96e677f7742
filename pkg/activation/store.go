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

// Package activation owns per-session template activations: expiry, refresh
// on re-trigger, and composition of the injected prompt suffix.
//
// State is sharded by session key. Operations on one session are serialized
// by that session's lock; unrelated sessions never block each other. All
// state is process-lifetime only; a restart clears every activation.
package activation

import (
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/teradata-labs/lorebook/pkg/lore"
)

// TemplateSource resolves a template name to its current definition.
// Satisfied by *registry.Registry.
type TemplateSource interface {
	Lookup(name string) (*lore.Template, bool)
}

// Record is one live activation of a template within a session. Priority and
// the count limit are snapshots taken at activation time so later
// configuration changes do not retroactively reorder or re-limit it; content
// is looked up live at compose time.
type Record struct {
	// ID correlates log lines for one activation.
	ID string

	// TemplateName references the template by name, not ownership. If the
	// template vanishes or is disabled by a reload, the record is evicted
	// on next access.
	TemplateName string

	ActivatedAt time.Time

	// ExpiresAt is the activation deadline; the zero value means the
	// record never expires by time.
	ExpiresAt time.Time

	// Priority is the template's priority snapshot.
	Priority int

	// Times is the injection count limit snapshot; 0 = unlimited.
	Times int

	// UseCount is the number of injections performed so far.
	UseCount int

	// seq orders records exactly as they were activated. ActivatedAt alone
	// cannot break ties between records of one Activate batch.
	seq uint64
}

// Expired reports whether the record is past its deadline or has exhausted
// its injection count at the given instant.
func (r *Record) Expired(now time.Time) bool {
	if !r.ExpiresAt.IsZero() && !now.Before(r.ExpiresAt) {
		return true
	}
	if r.Times > 0 && r.UseCount >= r.Times {
		return true
	}
	return false
}

// Permanent reports whether the record never expires by time.
func (r *Record) Permanent() bool {
	return r.ExpiresAt.IsZero()
}

// StatusEntry is one row of the session status query.
type StatusEntry struct {
	Name             string
	Priority         int
	Permanent        bool
	RemainingSeconds int
	UseCount         int
}

// Config contains activation store configuration.
type Config struct {
	// Source resolves record template names; records whose template is
	// gone or disabled are evicted on read.
	Source TemplateSource

	// Logger records evictions and refreshes at debug level.
	Logger *zap.Logger
}

// Store holds the activation records of every session.
type Store struct {
	mu       sync.RWMutex
	sessions map[string]*session
	source   TemplateSource
	logger   *zap.Logger
	seq      atomic.Uint64
}

type session struct {
	mu      sync.Mutex
	records map[string]*Record // template name -> record
}

// NewStore creates an empty activation store.
func NewStore(cfg Config) *Store {
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	return &Store{
		sessions: make(map[string]*session),
		source:   cfg.Source,
		logger:   cfg.Logger,
	}
}

// Activate inserts or refreshes one record per template and returns the
// activated names in input order. A re-trigger replaces the existing record,
// restarting its timer and count; timers are never stacked, so a session
// holds at most one record per template name.
func (s *Store) Activate(sessionID string, templates []*lore.Template, now time.Time) []string {
	if len(templates) == 0 {
		return nil
	}

	sess := s.session(sessionID)
	sess.mu.Lock()
	defer sess.mu.Unlock()

	names := make([]string, 0, len(templates))
	for _, t := range templates {
		rec := &Record{
			ID:           uuid.NewString(),
			TemplateName: t.Name,
			ActivatedAt:  now,
			Priority:     t.Priority,
			Times:        t.Times,
			seq:          s.seq.Add(1),
		}
		if !t.Permanent() {
			rec.ExpiresAt = now.Add(time.Duration(t.Duration) * time.Second)
		}
		if _, refreshed := sess.records[t.Name]; refreshed {
			s.logger.Debug("Refreshed activation",
				zap.String("session", sessionID),
				zap.String("template", t.Name))
		}
		sess.records[t.Name] = rec
		names = append(names, t.Name)
	}
	return names
}

// Active returns the session's live records at the given instant, in
// activation order. Expired records and records whose template has vanished
// or been disabled are deleted as a side effect, so repeated calls with the
// same now are idempotent.
func (s *Store) Active(sessionID string, now time.Time) []Record {
	sess := s.lookupSession(sessionID)
	if sess == nil {
		return nil
	}

	sess.mu.Lock()
	out := s.liveLocked(sessionID, sess, now)
	sess.mu.Unlock()

	if len(out) == 0 {
		s.dropIfEmpty(sessionID)
		return nil
	}
	return out
}

// Status reports the session's live activations for the status command.
func (s *Store) Status(sessionID string, now time.Time) []StatusEntry {
	records := s.Active(sessionID, now)
	entries := make([]StatusEntry, 0, len(records))
	for _, rec := range records {
		e := StatusEntry{
			Name:      rec.TemplateName,
			Priority:  rec.Priority,
			Permanent: rec.Permanent(),
			UseCount:  rec.UseCount,
		}
		if !e.Permanent {
			remaining := rec.ExpiresAt.Sub(now)
			if remaining < 0 {
				remaining = 0
			}
			e.RemainingSeconds = int(remaining / time.Second)
		}
		entries = append(entries, e)
	}
	return entries
}

// Clear removes every record of the session and returns the count removed.
// Clearing a session with no activations returns zero, not an error.
func (s *Store) Clear(sessionID string) int {
	sess := s.lookupSession(sessionID)
	if sess == nil {
		return 0
	}
	sess.mu.Lock()
	removed := len(sess.records)
	sess.records = make(map[string]*Record)
	sess.mu.Unlock()

	s.dropIfEmpty(sessionID)
	if removed > 0 {
		s.logger.Debug("Cleared session activations",
			zap.String("session", sessionID),
			zap.Int("removed", removed))
	}
	return removed
}

// Remove deletes the named records from the session and returns the names
// actually removed.
func (s *Store) Remove(sessionID string, names []string) []string {
	sess := s.lookupSession(sessionID)
	if sess == nil {
		return nil
	}
	sess.mu.Lock()
	var removed []string
	for _, name := range names {
		if _, ok := sess.records[name]; ok {
			delete(sess.records, name)
			removed = append(removed, name)
		}
	}
	sess.mu.Unlock()

	s.dropIfEmpty(sessionID)
	return removed
}

// Sweep removes dead records across all sessions and returns the number
// deleted. Reads already clean up lazily; Sweep exists for memory hygiene on
// long-idle sessions and runs from the scheduler.
func (s *Store) Sweep(now time.Time) int {
	s.mu.RLock()
	ids := make([]string, 0, len(s.sessions))
	for id := range s.sessions {
		ids = append(ids, id)
	}
	s.mu.RUnlock()

	deleted := 0
	for _, id := range ids {
		sess := s.lookupSession(id)
		if sess == nil {
			continue
		}
		sess.mu.Lock()
		before := len(sess.records)
		s.filterLocked(id, sess, now)
		deleted += before - len(sess.records)
		sess.mu.Unlock()
		s.dropIfEmpty(id)
	}
	if deleted > 0 {
		s.logger.Debug("Swept expired activations", zap.Int("deleted", deleted))
	}
	return deleted
}

// liveLocked returns value copies of the session's live records in activation
// order. Caller holds the session lock.
func (s *Store) liveLocked(sessionID string, sess *session, now time.Time) []Record {
	live := s.filterLocked(sessionID, sess, now)
	out := make([]Record, 0, len(live))
	for _, rec := range live {
		out = append(out, *rec)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].seq < out[j].seq })
	return out
}

// charge counts one injection against each named record. Caller holds the
// session lock.
func (sess *session) charge(names []string) {
	for _, name := range names {
		if rec, ok := sess.records[name]; ok {
			rec.UseCount++
		}
	}
}

// filterLocked deletes dead records from the session and returns the
// survivors. Caller holds the session lock.
func (s *Store) filterLocked(sessionID string, sess *session, now time.Time) map[string]*Record {
	for name, rec := range sess.records {
		if rec.Expired(now) {
			delete(sess.records, name)
			s.logger.Debug("Evicted expired activation",
				zap.String("session", sessionID),
				zap.String("template", name))
			continue
		}
		if s.source != nil {
			if t, ok := s.source.Lookup(name); !ok || !t.Enabled {
				delete(sess.records, name)
				s.logger.Debug("Evicted activation for vanished or disabled template",
					zap.String("session", sessionID),
					zap.String("template", name))
			}
		}
	}
	return sess.records
}

func (s *Store) session(id string) *session {
	s.mu.RLock()
	sess, ok := s.sessions[id]
	s.mu.RUnlock()
	if ok {
		return sess
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if sess, ok := s.sessions[id]; ok {
		return sess
	}
	sess = &session{records: make(map[string]*Record)}
	s.sessions[id] = sess
	return sess
}

func (s *Store) lookupSession(id string) *session {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.sessions[id]
}

// dropIfEmpty removes the session shard once it holds no records.
func (s *Store) dropIfEmpty(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if sess, ok := s.sessions[id]; ok {
		sess.mu.Lock()
		empty := len(sess.records) == 0
		sess.mu.Unlock()
		if empty {
			delete(s.sessions, id)
		}
	}
}
