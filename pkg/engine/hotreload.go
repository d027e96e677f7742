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
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

// WatcherConfig configures templates-file hot reload.
type WatcherConfig struct {
	// Debounce delays the reload after a change so editors that write in
	// several events trigger one reload. Default 500ms.
	Debounce time.Duration
}

// Watcher reloads the engine's templates file when it changes on disk. A
// reload that fails keeps the previous template set active; matching is
// never interrupted.
type Watcher struct {
	engine   *Engine
	path     string
	debounce time.Duration
	watcher  *fsnotify.Watcher
	logger   *zap.Logger

	timerMu sync.Mutex
	timer   *time.Timer

	stopOnce sync.Once
	stopCh   chan struct{}
	doneCh   chan struct{}
}

// NewWatcher creates a watcher for the engine's configured templates file.
func NewWatcher(e *Engine, cfg WatcherConfig) (*Watcher, error) {
	if e.cfg.TemplatesPath == "" {
		return nil, fmt.Errorf("hot reload requires a templates path")
	}
	if cfg.Debounce <= 0 {
		cfg.Debounce = 500 * time.Millisecond
	}

	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("create file watcher: %w", err)
	}

	return &Watcher{
		engine:   e,
		path:     e.cfg.TemplatesPath,
		debounce: cfg.Debounce,
		watcher:  fw,
		logger:   e.logger,
		stopCh:   make(chan struct{}),
		doneCh:   make(chan struct{}),
	}, nil
}

// Start begins watching. The parent directory is watched rather than the
// file itself so atomic rename-into-place saves are observed.
func (w *Watcher) Start() error {
	dir := filepath.Dir(w.path)
	if err := w.watcher.Add(dir); err != nil {
		return fmt.Errorf("watch %s: %w", dir, err)
	}
	go w.loop()
	w.logger.Info("Watching templates file for changes", zap.String("path", w.path))
	return nil
}

// Stop halts the watcher and waits for the event loop to exit.
func (w *Watcher) Stop() {
	w.stopOnce.Do(func() {
		close(w.stopCh)
		w.watcher.Close()
		<-w.doneCh

		w.timerMu.Lock()
		if w.timer != nil {
			w.timer.Stop()
		}
		w.timerMu.Unlock()
	})
}

func (w *Watcher) loop() {
	defer close(w.doneCh)
	for {
		select {
		case <-w.stopCh:
			return
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(event.Name) != filepath.Clean(w.path) {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}
			w.scheduleReload()
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.logger.Warn("Templates file watcher error", zap.Error(err))
		}
	}
}

// scheduleReload resets the debounce timer; only the last change in a burst
// triggers a reload.
func (w *Watcher) scheduleReload() {
	w.timerMu.Lock()
	defer w.timerMu.Unlock()
	if w.timer != nil {
		w.timer.Stop()
	}
	w.timer = time.AfterFunc(w.debounce, func() {
		if err := w.engine.Reload(); err != nil {
			w.logger.Warn("Templates reload failed, keeping previous set",
				zap.String("path", w.path),
				zap.Error(err))
			return
		}
		w.logger.Info("Templates reloaded", zap.String("path", w.path))
	})
}
