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

// Package wildcard substitutes {name} placeholders in template content with
// values from the current request context at compose time.
package wildcard

import (
	"regexp"
	"time"
)

// placeholderRe scans {word} placeholders. The pattern is an internal
// constant, so the stdlib engine is fine here; only operator-supplied
// trigger patterns need a bounded engine.
var placeholderRe = regexp.MustCompile(`\{(\w+)\}`)

const timeFormat = "15:04:05"

// Context carries the per-request values placeholders resolve against.
type Context struct {
	UserID       string
	UserName     string
	SessionID    string
	TemplateName string
	Now          time.Time
}

// Provider computes the value of one placeholder. Returning ok=false leaves
// the placeholder verbatim in the output.
type Provider func(ctx Context) (value string, ok bool)

// Resolver renders template content against a request context.
type Resolver struct {
	providers map[string]Provider
}

// NewResolver creates a resolver with the builtin placeholders registered:
// {user_id}, {user_name}, {user}, {time}, {session_id}, {template_name}.
func NewResolver() *Resolver {
	r := &Resolver{providers: make(map[string]Provider)}
	r.Register("user_id", func(ctx Context) (string, bool) {
		return ctx.UserID, ctx.UserID != ""
	})
	r.Register("user_name", func(ctx Context) (string, bool) {
		return ctx.UserName, ctx.UserName != ""
	})
	r.Register("user", func(ctx Context) (string, bool) {
		switch {
		case ctx.UserName != "" && ctx.UserID != "":
			return ctx.UserName + "(" + ctx.UserID + ")", true
		case ctx.UserName != "":
			return ctx.UserName, true
		case ctx.UserID != "":
			return ctx.UserID, true
		}
		return "", false
	})
	r.Register("time", func(ctx Context) (string, bool) {
		now := ctx.Now
		if now.IsZero() {
			now = time.Now()
		}
		return now.Format(timeFormat), true
	})
	r.Register("session_id", func(ctx Context) (string, bool) {
		return ctx.SessionID, ctx.SessionID != ""
	})
	r.Register("template_name", func(ctx Context) (string, bool) {
		return ctx.TemplateName, ctx.TemplateName != ""
	})
	return r
}

// Register adds or replaces a placeholder provider.
func (r *Resolver) Register(name string, p Provider) {
	r.providers[name] = p
}

// Render substitutes every known placeholder in content. Unknown
// placeholders and placeholders whose provider declined are left verbatim.
func (r *Resolver) Render(content string, ctx Context) string {
	return placeholderRe.ReplaceAllStringFunc(content, func(match string) string {
		name := match[1 : len(match)-1]
		p, ok := r.providers[name]
		if !ok {
			return match
		}
		value, ok := p(ctx)
		if !ok {
			return match
		}
		return value
	})
}
