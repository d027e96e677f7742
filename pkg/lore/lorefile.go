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
package lore

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// fileEntry is the on-disk shape of one template. Field names follow the
// configuration contract: enable/regexs/only_admin rather than the in-memory
// names. Enable and probability are pointers so that omitted keys get their
// documented defaults (enabled, probability 1.0).
type fileEntry struct {
	Name        string   `json:"name" yaml:"name"`
	Enable      *bool    `json:"enable,omitempty" yaml:"enable,omitempty"`
	Content     string   `json:"content" yaml:"content"`
	Priority    int      `json:"priority" yaml:"priority"`
	Regexs      []string `json:"regexs,omitempty" yaml:"regexs,omitempty"`
	Duration    int      `json:"duration" yaml:"duration"`
	Times       int      `json:"times,omitempty" yaml:"times,omitempty"`
	Probability *float64 `json:"probability,omitempty" yaml:"probability,omitempty"`
	OnlyAdmin   bool     `json:"only_admin,omitempty" yaml:"only_admin,omitempty"`
	Scope       []string `json:"scope,omitempty" yaml:"scope,omitempty"`
	Cron        string   `json:"cron,omitempty" yaml:"cron,omitempty"`
	Sessions    []string `json:"sessions,omitempty" yaml:"sessions,omitempty"`
}

// fileDoc is the canonical document shape: {entries: [...]}. A bare list is
// also accepted on read for compatibility with hand-written files.
type fileDoc struct {
	Entries []fileEntry `json:"entries" yaml:"entries"`
}

// SkippedEntry records a file entry that was ignored during load.
type SkippedEntry struct {
	Name   string
	Reason string
}

// LoadFile reads templates from a JSON or YAML lorefile. Entries missing a
// name or content are skipped and reported rather than failing the load.
func LoadFile(path string) ([]*Template, []SkippedEntry, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, nil, fmt.Errorf("read lorefile: %w", err)
	}

	var entries []fileEntry
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".yaml", ".yml":
		entries, err = decodeYAML(raw)
	case ".json":
		entries, err = decodeJSON(raw)
	default:
		return nil, nil, fmt.Errorf("unsupported lorefile type: %s", ext)
	}
	if err != nil {
		return nil, nil, fmt.Errorf("parse lorefile %s: %w", path, err)
	}

	templates := make([]*Template, 0, len(entries))
	var skipped []SkippedEntry
	for _, e := range entries {
		if e.Name == "" {
			skipped = append(skipped, SkippedEntry{Name: "(unnamed)", Reason: "missing name"})
			continue
		}
		if e.Content == "" {
			skipped = append(skipped, SkippedEntry{Name: e.Name, Reason: "missing content"})
			continue
		}
		templates = append(templates, e.toTemplate())
	}
	return templates, skipped, nil
}

// SaveFile writes templates to a JSON or YAML lorefile, format chosen by
// extension. Runtime state is never serialized.
func SaveFile(path string, templates []*Template) error {
	doc := fileDoc{Entries: make([]fileEntry, 0, len(templates))}
	for _, t := range templates {
		doc.Entries = append(doc.Entries, toFileEntry(t))
	}

	var (
		raw []byte
		err error
	)
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".yaml", ".yml":
		raw, err = yaml.Marshal(doc)
	case ".json":
		raw, err = json.MarshalIndent(doc, "", "  ")
	default:
		return fmt.Errorf("unsupported lorefile type: %s", ext)
	}
	if err != nil {
		return fmt.Errorf("encode lorefile: %w", err)
	}

	if err := os.WriteFile(path, raw, 0o644); err != nil {
		return fmt.Errorf("write lorefile: %w", err)
	}
	return nil
}

func decodeYAML(raw []byte) ([]fileEntry, error) {
	var doc fileDoc
	if err := yaml.Unmarshal(raw, &doc); err == nil && doc.Entries != nil {
		return doc.Entries, nil
	}
	var list []fileEntry
	if err := yaml.Unmarshal(raw, &list); err != nil {
		return nil, err
	}
	return list, nil
}

func decodeJSON(raw []byte) ([]fileEntry, error) {
	var doc fileDoc
	if err := json.Unmarshal(raw, &doc); err == nil && doc.Entries != nil {
		return doc.Entries, nil
	}
	var list []fileEntry
	if err := json.Unmarshal(raw, &list); err != nil {
		return nil, err
	}
	return list, nil
}

func (e fileEntry) toTemplate() *Template {
	enabled := true
	if e.Enable != nil {
		enabled = *e.Enable
	}
	probability := 1.0
	if e.Probability != nil {
		probability = *e.Probability
	}
	return &Template{
		Name:        e.Name,
		Enabled:     enabled,
		Content:     e.Content,
		Priority:    e.Priority,
		Patterns:    e.Regexs,
		Duration:    e.Duration,
		Times:       e.Times,
		Probability: probability,
		AdminOnly:   e.OnlyAdmin,
		Scope:       e.Scope,
		Cron:        e.Cron,
		Sessions:    e.Sessions,
	}
}

func toFileEntry(t *Template) fileEntry {
	enabled := t.Enabled
	probability := t.Probability
	return fileEntry{
		Name:        t.Name,
		Enable:      &enabled,
		Content:     t.Content,
		Priority:    t.Priority,
		Regexs:      t.Patterns,
		Duration:    t.Duration,
		Times:       t.Times,
		Probability: &probability,
		OnlyAdmin:   t.AdminOnly,
		Scope:       t.Scope,
		Cron:        t.Cron,
		Sessions:    t.Sessions,
	}
}
