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
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/teradata-labs/lorebook/pkg/lore"
)

func TestEditor_AddTemplateDefaults(t *testing.T) {
	e := newTestEngine(t, nil)

	added, err := e.AddTemplate("serious", "serious content")
	require.NoError(t, err)
	assert.Equal(t, "serious", added.Name)
	assert.True(t, added.Enabled)
	assert.Equal(t, 11, added.Priority, "one past the current maximum")
	assert.Equal(t, 1.0, added.Probability)

	got, ok := e.Registry().Lookup("serious")
	require.True(t, ok)
	assert.Equal(t, "serious content", got.Content)
}

func TestEditor_AddTemplateDisambiguatesName(t *testing.T) {
	e := newTestEngine(t, nil)

	first, err := e.AddTemplate("calm", "again")
	require.NoError(t, err)
	assert.Equal(t, "calm_2", first.Name)

	second, err := e.AddTemplate("calm", "and again")
	require.NoError(t, err)
	assert.Equal(t, "calm_3", second.Name)
}

func TestEditor_AddTemplateRejectsBlank(t *testing.T) {
	e := newTestEngine(t, nil)

	_, err := e.AddTemplate("  ", "content")
	assert.Error(t, err)
	_, err = e.AddTemplate("name", "  ")
	assert.Error(t, err)
}

func TestEditor_RemoveTemplates(t *testing.T) {
	e := newTestEngine(t, nil)

	removed, missing := e.RemoveTemplates([]string{"calm", "ghost"})
	assert.Equal(t, []string{"calm"}, removed)
	assert.Equal(t, []string{"ghost"}, missing)

	_, ok := e.Registry().Lookup("calm")
	assert.False(t, ok)
}

func TestEditor_RemovalEvictsLiveActivations(t *testing.T) {
	e := newTestEngine(t, nil)
	e.HandleMessage(InboundMessage{SessionID: "s1", SenderID: "u1", Text: "请冷静"})
	require.Len(t, e.Status("s1"), 1)

	removed, _ := e.RemoveTemplates([]string{"calm"})
	require.Equal(t, []string{"calm"}, removed)
	assert.Empty(t, e.Status("s1"))
}

func TestEditor_EnableDisable(t *testing.T) {
	e := newTestEngine(t, nil)

	ok, missing := e.DisableTemplates([]string{"calm", "ghost"})
	assert.Equal(t, []string{"calm"}, ok)
	assert.Equal(t, []string{"ghost"}, missing)
	assert.Empty(t, e.HandleMessage(InboundMessage{SessionID: "s1", Text: "请冷静"}))

	ok, missing = e.EnableTemplates([]string{"calm"})
	assert.Equal(t, []string{"calm"}, ok)
	assert.Empty(t, missing)
	assert.Equal(t, []string{"calm"}, e.HandleMessage(InboundMessage{SessionID: "s1", Text: "请冷静"}))
}

func TestEditor_SetPatterns(t *testing.T) {
	e := newTestEngine(t, nil)

	require.NoError(t, e.SetPatterns("calm", []string{"relax"}))
	assert.Empty(t, e.HandleMessage(InboundMessage{SessionID: "s1", Text: "请冷静"}))
	assert.Equal(t, []string{"calm"}, e.HandleMessage(InboundMessage{SessionID: "s1", Text: "please relax"}))

	assert.Error(t, e.SetPatterns("ghost", []string{"x"}))
}

func TestEditor_SetPatternsEmptyFallsBackToName(t *testing.T) {
	e := newTestEngine(t, nil)

	require.NoError(t, e.SetPatterns("calm", nil))
	assert.Equal(t, []string{"calm"}, e.HandleMessage(InboundMessage{SessionID: "s1", Text: "stay calm"}))
}

func TestEditor_SetPriority(t *testing.T) {
	e := newTestEngine(t, nil)

	require.NoError(t, e.SetPriority("calm", 0))
	e.HandleMessage(InboundMessage{SessionID: "s1", SenderID: "u1", Text: "请冷静"})
	e.HandleMessage(InboundMessage{SessionID: "s1", SenderID: "a", IsAdmin: true, Text: "请严格"})

	prompt := e.BuildPrompt(LLMRequest{SessionID: "s1", BaseSystemPrompt: "base", SenderID: "a", IsAdmin: true})
	assert.Equal(t, "base\n\n## [calm]\ncalm content\n\n## [strict]\nstrict content", prompt)
}

func TestEditor_PersistsToTemplatesPath(t *testing.T) {
	path := filepath.Join(t.TempDir(), "lorebook.yaml")
	e := newTestEngine(t, func(cfg *Config) { cfg.TemplatesPath = path })

	_, err := e.AddTemplate("persisted", "survives restarts")
	require.NoError(t, err)

	templates, skipped, err := lore.LoadFile(path)
	require.NoError(t, err)
	assert.Empty(t, skipped)

	names := make([]string, 0, len(templates))
	for _, tmpl := range templates {
		names = append(names, tmpl.Name)
	}
	assert.Contains(t, names, "persisted")
	assert.Contains(t, names, "calm")
	assert.Contains(t, names, "strict")
}

func TestEditor_ImportFileSkipsDuplicates(t *testing.T) {
	e := newTestEngine(t, nil)

	path := filepath.Join(t.TempDir(), "import.yaml")
	doc := `entries:
  - name: calm
    content: clashes with the loaded set
  - name: fresh
    content: fresh content
    regexs: ["fresh"]
  - name: ""
    content: unnamed
`
	require.NoError(t, os.WriteFile(path, []byte(doc), 0o644))

	summary, err := e.ImportFile(path)
	require.NoError(t, err)
	assert.Equal(t, 3, summary.Total)
	assert.Equal(t, 1, summary.Loaded)
	assert.Equal(t, []string{"calm"}, summary.Skipped)
	assert.Len(t, summary.Failed, 1)

	got, ok := e.Registry().Lookup("calm")
	require.True(t, ok)
	assert.Equal(t, "calm content", got.Content, "existing entry wins over the import")

	_, ok = e.Registry().Lookup("fresh")
	assert.True(t, ok)
}

func TestEditor_ExportRoundTrip(t *testing.T) {
	e := newTestEngine(t, nil)

	path := filepath.Join(t.TempDir(), "export.json")
	require.NoError(t, e.ExportFile(path))

	templates, skipped, err := lore.LoadFile(path)
	require.NoError(t, err)
	assert.Empty(t, skipped)
	assert.Len(t, templates, 2)
}
