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
package main

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/teradata-labs/lorebook/pkg/activation"
	"github.com/teradata-labs/lorebook/pkg/engine"
	"github.com/teradata-labs/lorebook/pkg/scheduler"
)

// hostEvent is one decoded line from the host pipeline on stdin.
type hostEvent struct {
	Type         string   `json:"type"` // message, llm_request, status, clear, remove
	SessionID    string   `json:"session_id"`
	SenderID     string   `json:"sender_id,omitempty"`
	SenderName   string   `json:"sender_name,omitempty"`
	GroupID      string   `json:"group_id,omitempty"`
	IsAdmin      bool     `json:"is_admin,omitempty"`
	Text         string   `json:"text,omitempty"`
	SystemPrompt string   `json:"system_prompt,omitempty"`
	Names        []string `json:"names,omitempty"`
}

// hostReply is one line written to stdout in response.
type hostReply struct {
	Type         string                   `json:"type"`
	SessionID    string                   `json:"session_id,omitempty"`
	Activated    []string                 `json:"activated,omitempty"`
	SystemPrompt string                   `json:"system_prompt,omitempty"`
	Status       []activation.StatusEntry `json:"status,omitempty"`
	Removed      []string                 `json:"removed,omitempty"`
	Cleared      int                      `json:"cleared,omitempty"`
	Error        string                   `json:"error,omitempty"`
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the activation engine as a line-delimited JSON event loop",
	Long: `Reads host pipeline events from stdin, one JSON object per line, and writes
one JSON reply per line to stdout. Event types: message, llm_request, status,
clear, remove. Logs go to stderr. Exits on EOF, SIGINT, or SIGTERM.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runServe()
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func runServe() error {
	logger, err := buildLogger(config.Logging)
	if err != nil {
		return err
	}
	defer logger.Sync() //nolint:errcheck

	eng := engine.New(config.engineConfig(logger))
	if config.Templates.Path != "" {
		if err := eng.Reload(); err != nil {
			return fmt.Errorf("load templates: %w", err)
		}
	} else {
		logger.Warn("No templates path configured, starting with an empty registry")
	}

	sched, err := scheduler.New(scheduler.Config{
		Registry:      eng.Registry(),
		Store:         eng.Store(),
		SweepInterval: time.Duration(config.Engine.SweepIntervalSeconds) * time.Second,
		Logger:        logger,
	})
	if err != nil {
		return err
	}
	sched.Start()
	defer sched.Stop()

	if config.Templates.Path != "" && config.Templates.HotReload {
		watcher, err := engine.NewWatcher(eng, engine.WatcherConfig{
			Debounce: time.Duration(config.Templates.DebounceMs) * time.Millisecond,
		})
		if err != nil {
			return err
		}
		if err := watcher.Start(); err != nil {
			return err
		}
		defer watcher.Stop()
	}

	sigch := make(chan os.Signal, 1)
	signal.Notify(sigch, os.Interrupt, syscall.SIGTERM)

	done := make(chan error, 1)
	go func() { done <- eventLoop(eng, os.Stdin, os.Stdout, logger) }()

	select {
	case sig := <-sigch:
		logger.Info("Shutting down", zap.String("signal", sig.String()))
		return nil
	case err := <-done:
		return err
	}
}

// eventLoop processes host events until EOF. Malformed lines are reported on
// stdout and skipped; nothing here is fatal to the host pipeline.
func eventLoop(eng *engine.Engine, in io.Reader, out io.Writer, logger *zap.Logger) error {
	scanner := bufio.NewScanner(in)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	enc := json.NewEncoder(out)

	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}

		var ev hostEvent
		if err := json.Unmarshal(line, &ev); err != nil {
			logger.Warn("Skipping malformed event", zap.Error(err))
			writeReply(enc, logger, hostReply{Type: "error", Error: "malformed event: " + err.Error()})
			continue
		}
		writeReply(enc, logger, handleEvent(eng, ev))
	}
	return scanner.Err()
}

func handleEvent(eng *engine.Engine, ev hostEvent) hostReply {
	switch ev.Type {
	case "message":
		activated := eng.HandleMessage(engine.InboundMessage{
			SessionID:  ev.SessionID,
			SenderID:   ev.SenderID,
			SenderName: ev.SenderName,
			GroupID:    ev.GroupID,
			IsAdmin:    ev.IsAdmin,
			Text:       ev.Text,
		})
		return hostReply{Type: "activated", SessionID: ev.SessionID, Activated: activated}

	case "llm_request":
		prompt := eng.BuildPrompt(engine.LLMRequest{
			SessionID:        ev.SessionID,
			BaseSystemPrompt: ev.SystemPrompt,
			SenderID:         ev.SenderID,
			SenderName:       ev.SenderName,
			GroupID:          ev.GroupID,
			IsAdmin:          ev.IsAdmin,
		})
		return hostReply{Type: "prompt", SessionID: ev.SessionID, SystemPrompt: prompt}

	case "status":
		return hostReply{Type: "status", SessionID: ev.SessionID, Status: eng.Status(ev.SessionID)}

	case "clear":
		return hostReply{Type: "cleared", SessionID: ev.SessionID, Cleared: eng.Clear(ev.SessionID)}

	case "remove":
		return hostReply{Type: "removed", SessionID: ev.SessionID, Removed: eng.Remove(ev.SessionID, ev.Names)}

	default:
		return hostReply{Type: "error", SessionID: ev.SessionID, Error: "unknown event type: " + ev.Type}
	}
}

func writeReply(enc *json.Encoder, logger *zap.Logger, reply hostReply) {
	if err := enc.Encode(reply); err != nil {
		logger.Error("Failed to write reply", zap.Error(err))
	}
}
