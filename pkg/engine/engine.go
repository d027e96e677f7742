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

// Package engine assembles the registry, matcher, activation store, and
// composer into the two host-pipeline hooks: inbound message handling and
// outbound prompt composition. Nothing here ever aborts the host pipeline;
// every failure degrades to "no injection" with a log line.
package engine

import (
	"math/rand"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/teradata-labs/lorebook/pkg/activation"
	"github.com/teradata-labs/lorebook/pkg/lore"
	"github.com/teradata-labs/lorebook/pkg/matcher"
	"github.com/teradata-labs/lorebook/pkg/registry"
	"github.com/teradata-labs/lorebook/pkg/wildcard"
)

// DefaultMatchTimeout bounds a single regex evaluation unless configured
// otherwise. A pathological pattern costs at most this much per message.
const DefaultMatchTimeout = 250 * time.Millisecond

// Config contains engine configuration.
type Config struct {
	// TemplatesPath is the lorefile the engine loads from and persists
	// editor changes to. Empty means in-memory only.
	TemplatesPath string

	// Separator goes between the base system prompt and the injected
	// suffix. Defaults to a blank line.
	Separator string

	// SectionSeparator joins the injected blocks. Defaults to a blank line.
	SectionSeparator string

	// MatchTimeout bounds each regex evaluation. Defaults to
	// DefaultMatchTimeout.
	MatchTimeout time.Duration

	// MaxInject caps injections per request; 0 = unlimited.
	MaxInject int

	// SinglePerPriority drops all but the earliest activation of each
	// priority tier at compose time. Default keeps the whole tier in
	// activation order.
	SinglePerPriority bool

	// RandFloat supplies the probability gate's randomness; tests inject a
	// deterministic source. Defaults to math/rand.
	RandFloat func() float64

	Logger *zap.Logger
}

// InboundMessage is one decoded message from the host chat pipeline.
type InboundMessage struct {
	SessionID  string
	SenderID   string
	SenderName string
	GroupID    string
	IsAdmin    bool
	Text       string
}

// LLMRequest is the outbound request hook's input. The sender fields identify
// who the request is on behalf of; scope-restricted activations are withheld
// from consumers they do not admit.
type LLMRequest struct {
	SessionID        string
	BaseSystemPrompt string
	SenderID         string
	SenderName       string
	GroupID          string
	IsAdmin          bool
}

// Engine is the session-scoped prompt template activation engine.
type Engine struct {
	cfg       Config
	registry  *registry.Registry
	matcher   *matcher.Matcher
	store     *activation.Store
	composer  *activation.Composer
	resolver  *wildcard.Resolver
	randFloat func() float64
	logger    *zap.Logger

	// editMu serializes editor mutations and their persistence; runtime
	// matching and composition never take it.
	editMu sync.Mutex
}

// New creates an engine with an empty registry. Load templates with
// LoadTemplates, Reload, or ImportFile.
func New(cfg Config) *Engine {
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	if cfg.MatchTimeout <= 0 {
		cfg.MatchTimeout = DefaultMatchTimeout
	}
	if cfg.Separator == "" {
		cfg.Separator = "\n\n"
	}
	if cfg.RandFloat == nil {
		cfg.RandFloat = rand.Float64
	}

	reg := registry.New(registry.Config{
		MatchTimeout: cfg.MatchTimeout,
		Logger:       cfg.Logger,
	})
	store := activation.NewStore(activation.Config{
		Source: reg,
		Logger: cfg.Logger,
	})
	resolver := wildcard.NewResolver()
	composer := activation.NewComposer(activation.ComposerConfig{
		Store:             store,
		Source:            reg,
		Resolver:          resolver,
		SectionSeparator:  cfg.SectionSeparator,
		AllowSamePriority: !cfg.SinglePerPriority,
		MaxInject:         cfg.MaxInject,
		Logger:            cfg.Logger,
	})

	return &Engine{
		cfg:       cfg,
		registry:  reg,
		matcher:   matcher.New(reg, cfg.Logger),
		store:     store,
		composer:  composer,
		resolver:  resolver,
		randFloat: cfg.RandFloat,
		logger:    cfg.Logger,
	}
}

// Registry exposes the template registry, e.g. for scheduler wiring.
func (e *Engine) Registry() *registry.Registry { return e.registry }

// Store exposes the activation store, e.g. for scheduler wiring.
func (e *Engine) Store() *activation.Store { return e.store }

// Resolver exposes the wildcard resolver so hosts can register their own
// placeholders.
func (e *Engine) Resolver() *wildcard.Resolver { return e.resolver }

// LoadTemplates validates and installs a template set.
func (e *Engine) LoadTemplates(templates []*lore.Template) error {
	return e.registry.Load(templates)
}

// Reload loads the configured templates file. On failure the previous
// template set stays active.
func (e *Engine) Reload() error {
	return e.LoadFromFile(e.cfg.TemplatesPath)
}

// LoadFromFile loads a lorefile into the registry.
func (e *Engine) LoadFromFile(path string) error {
	templates, skipped, err := lore.LoadFile(path)
	if err != nil {
		return err
	}
	for _, sk := range skipped {
		e.logger.Warn("Skipped lorefile entry",
			zap.String("entry", sk.Name),
			zap.String("reason", sk.Reason))
	}
	return e.registry.Load(templates)
}

// HandleMessage matches the message against the template set and activates
// the hits in the message's session. Returns the activated template names.
func (e *Engine) HandleMessage(msg InboundMessage) []string {
	if msg.Text == "" {
		return nil
	}
	sender := lore.Sender{
		UserID:    msg.SenderID,
		UserName:  msg.SenderName,
		GroupID:   msg.GroupID,
		SessionID: msg.SessionID,
		IsAdmin:   msg.IsAdmin,
	}

	hits := e.matcher.Match(msg.Text, sender)
	if len(hits) == 0 {
		return nil
	}

	admitted := make([]*lore.Template, 0, len(hits))
	for _, hit := range hits {
		if !e.allowProbability(hit.Template.Probability) {
			e.logger.Debug("Activation lost the probability roll",
				zap.String("template", hit.Template.Name),
				zap.Float64("probability", hit.Template.Probability))
			continue
		}
		admitted = append(admitted, hit.Template)
	}
	if len(admitted) == 0 {
		return nil
	}

	names := e.store.Activate(msg.SessionID, admitted, time.Now())
	e.logger.Debug("Activated templates",
		zap.String("session", msg.SessionID),
		zap.Strings("templates", names))
	return names
}

// BuildPrompt returns the outbound system prompt: the base prompt plus the
// separator and the composed injection suffix, or the base unchanged when
// nothing is active.
func (e *Engine) BuildPrompt(req LLMRequest) string {
	sender := lore.Sender{
		UserID:    req.SenderID,
		UserName:  req.SenderName,
		GroupID:   req.GroupID,
		SessionID: req.SessionID,
		IsAdmin:   req.IsAdmin,
	}
	suffix := e.composer.BuildInjectionSuffix(req.SessionID, sender, wildcard.Context{
		UserID:   req.SenderID,
		UserName: req.SenderName,
	}, time.Now())
	if suffix == "" {
		return req.BaseSystemPrompt
	}
	return req.BaseSystemPrompt + e.cfg.Separator + suffix
}

// Status reports the session's live activations.
func (e *Engine) Status(sessionID string) []activation.StatusEntry {
	return e.store.Status(sessionID, time.Now())
}

// Clear removes every activation of the session; idempotent.
func (e *Engine) Clear(sessionID string) int {
	return e.store.Clear(sessionID)
}

// Remove deletes the named activations from the session.
func (e *Engine) Remove(sessionID string, names []string) []string {
	return e.store.Remove(sessionID, names)
}

// Sweep runs one store-wide expiry pass.
func (e *Engine) Sweep() int {
	return e.store.Sweep(time.Now())
}

func (e *Engine) allowProbability(p float64) bool {
	if p >= 1 {
		return true
	}
	if p <= 0 {
		return false
	}
	return e.randFloat() < p
}
