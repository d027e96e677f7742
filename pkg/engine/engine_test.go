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
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/teradata-labs/lorebook/pkg/lore"
)

func specTemplates() []*lore.Template {
	return []*lore.Template{
		{
			Name:        "calm",
			Enabled:     true,
			Content:     "calm content",
			Priority:    10,
			Patterns:    []string{"冷静"},
			Duration:    60,
			Probability: 1,
		},
		{
			Name:        "strict",
			Enabled:     true,
			Content:     "strict content",
			Priority:    1,
			Patterns:    []string{"严格"},
			Duration:    0,
			Probability: 1,
			AdminOnly:   true,
		},
	}
}

func newTestEngine(t *testing.T, mutate func(*Config)) *Engine {
	t.Helper()
	cfg := Config{Logger: zap.NewNop()}
	if mutate != nil {
		mutate(&cfg)
	}
	e := New(cfg)
	require.NoError(t, e.LoadTemplates(specTemplates()))
	return e
}

func TestEngine_MessageActivatesAndComposes(t *testing.T) {
	e := newTestEngine(t, nil)

	activated := e.HandleMessage(InboundMessage{SessionID: "s1", SenderID: "u1", Text: "请冷静"})
	assert.Equal(t, []string{"calm"}, activated)

	prompt := e.BuildPrompt(LLMRequest{SessionID: "s1", BaseSystemPrompt: "base", SenderID: "u1"})
	assert.Equal(t, "base\n\n## [calm]\ncalm content", prompt)
}

func TestEngine_AdminOnlyBlocksNonAdmin(t *testing.T) {
	e := newTestEngine(t, nil)

	assert.Empty(t, e.HandleMessage(InboundMessage{SessionID: "s1", SenderID: "u1", Text: "请严格"}))
	assert.Equal(t, []string{"strict"},
		e.HandleMessage(InboundMessage{SessionID: "s1", SenderID: "admin1", IsAdmin: true, Text: "请严格"}))
}

func TestEngine_AdminOnlyContentWithheldFromNonAdminConsumer(t *testing.T) {
	e := newTestEngine(t, nil)
	require.Equal(t, []string{"strict"},
		e.HandleMessage(InboundMessage{SessionID: "s1", SenderID: "admin1", IsAdmin: true, Text: "请严格"}))

	// The activation is session-wide, but its content only reaches
	// consumers the template admits.
	nonAdmin := e.BuildPrompt(LLMRequest{SessionID: "s1", BaseSystemPrompt: "base", SenderID: "u1"})
	assert.Equal(t, "base", nonAdmin)

	admin := e.BuildPrompt(LLMRequest{SessionID: "s1", BaseSystemPrompt: "base", SenderID: "admin1", IsAdmin: true})
	assert.Equal(t, "base\n\n## [strict]\nstrict content", admin)

	require.Len(t, e.Status("s1"), 1, "withholding must not evict the record")
}

func TestEngine_ComposedOrderFollowsPriority(t *testing.T) {
	e := newTestEngine(t, nil)

	e.HandleMessage(InboundMessage{SessionID: "s1", SenderID: "u1", Text: "请冷静"})
	e.HandleMessage(InboundMessage{SessionID: "s1", SenderID: "a", IsAdmin: true, Text: "请严格"})

	prompt := e.BuildPrompt(LLMRequest{SessionID: "s1", BaseSystemPrompt: "base", SenderID: "a", IsAdmin: true})
	assert.Equal(t, "base\n\n## [strict]\nstrict content\n\n## [calm]\ncalm content", prompt,
		"priority 1 composes before priority 10")
}

func TestEngine_EmptyTextIsIgnored(t *testing.T) {
	e := newTestEngine(t, nil)
	assert.Empty(t, e.HandleMessage(InboundMessage{SessionID: "s1", Text: ""}))
}

func TestEngine_NoActivationLeavesPromptUnchanged(t *testing.T) {
	e := newTestEngine(t, nil)
	prompt := e.BuildPrompt(LLMRequest{SessionID: "quiet", BaseSystemPrompt: "base"})
	assert.Equal(t, "base", prompt)
}

func TestEngine_ClearAndStatus(t *testing.T) {
	e := newTestEngine(t, nil)
	e.HandleMessage(InboundMessage{SessionID: "s1", SenderID: "u1", Text: "请冷静"})

	status := e.Status("s1")
	require.Len(t, status, 1)
	assert.Equal(t, "calm", status[0].Name)
	assert.False(t, status[0].Permanent)

	assert.Equal(t, 1, e.Clear("s1"))
	assert.Equal(t, 0, e.Clear("s1"), "clear is idempotent")
	assert.Empty(t, e.Status("s1"))
}

func TestEngine_ProbabilityGate(t *testing.T) {
	roll := 0.9
	e := New(Config{
		Logger:    zap.NewNop(),
		RandFloat: func() float64 { return roll },
	})
	require.NoError(t, e.LoadTemplates([]*lore.Template{
		{Name: "maybe", Enabled: true, Content: "x", Patterns: []string{"hi"}, Probability: 0.5},
	}))

	assert.Empty(t, e.HandleMessage(InboundMessage{SessionID: "s1", Text: "hi"}),
		"roll 0.9 loses against probability 0.5")

	roll = 0.1
	assert.Equal(t, []string{"maybe"}, e.HandleMessage(InboundMessage{SessionID: "s1", Text: "hi"}))
}

func TestEngine_ProbabilityZeroNeverActivates(t *testing.T) {
	e := New(Config{Logger: zap.NewNop()})
	require.NoError(t, e.LoadTemplates([]*lore.Template{
		{Name: "never", Enabled: true, Content: "x", Patterns: []string{"hi"}, Probability: 0},
	}))
	assert.Empty(t, e.HandleMessage(InboundMessage{SessionID: "s1", Text: "hi"}))
}

func TestEngine_MaxInjectCap(t *testing.T) {
	e := New(Config{Logger: zap.NewNop(), MaxInject: 1})
	require.NoError(t, e.LoadTemplates([]*lore.Template{
		{Name: "a", Enabled: true, Content: "A", Priority: 1, Patterns: []string{"x"}, Probability: 1},
		{Name: "b", Enabled: true, Content: "B", Priority: 2, Patterns: []string{"x"}, Probability: 1},
	}))

	e.HandleMessage(InboundMessage{SessionID: "s1", Text: "x"})
	prompt := e.BuildPrompt(LLMRequest{SessionID: "s1", BaseSystemPrompt: "base"})
	assert.Equal(t, "base\n\n## [a]\nA", prompt)
}

func TestEngine_ReloadChangesTakeEffect(t *testing.T) {
	e := newTestEngine(t, nil)
	e.HandleMessage(InboundMessage{SessionID: "s1", SenderID: "u1", Text: "请冷静"})

	// Reload without "calm": the live activation is evicted on next read.
	require.NoError(t, e.LoadTemplates([]*lore.Template{
		{Name: "other", Enabled: true, Content: "x", Patterns: []string{"y"}, Probability: 1},
	}))
	assert.Empty(t, e.Status("s1"))
	assert.Equal(t, "base", e.BuildPrompt(LLMRequest{SessionID: "s1", BaseSystemPrompt: "base"}))
}
