/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

// Package log sets up slog for the editor.
//
// Records flow through one enriching handler that knows the editor's
// vocabulary: the component and command that logged, the coordinate space
// being edited and the control points involved. The console renders those as
// a bracketed prefix, the rotated JSON file keeps them as plain attributes,
// and a process-wide hook receives them as an Entry so telemetry can report
// warnings without parsing text.
package log

import (
	"io"
	"log/slog"
	"os"
	"strings"
	"sync"
	"time"

	"gopyre/internal/version"

	lj "gopkg.in/natefinch/lumberjack.v2"
)

// Options controls Init. The config package builds them from the logging
// section of config.yaml after applying the GOPYRE_LOG_* overrides.
type Options struct {
	Level     string // debug|info|warn|error
	Format    string // console|json
	AddSource bool
	// File enables a rotated JSON log next to the console output.
	File string
	// Console receives console output; nil means stderr.
	Console io.Writer
}

// Rotation of the file log, in lumberjack units.
const (
	fileMaxSizeMB  = 10
	fileMaxBackups = 3
	fileMaxAgeDays = 28
)

var (
	mu      sync.RWMutex
	current *slog.Logger
	closer  io.Closer
)

// L returns the application logger. Before Init it logs at info level to
// stderr so that packages used from tests need no setup.
func L() *slog.Logger {
	mu.RLock()
	l := current
	mu.RUnlock()
	if l != nil {
		return l
	}
	mu.Lock()
	defer mu.Unlock()
	if current == nil {
		current, closer = build(Options{})
	}
	return current
}

// Init replaces the application logger and slog's default. A previously
// opened log file is closed.
func Init(opts Options) {
	l, c := build(opts)
	mu.Lock()
	prev := closer
	current, closer = l, c
	mu.Unlock()
	if prev != nil {
		_ = prev.Close()
	}
	slog.SetDefault(l)
}

func build(opts Options) (*slog.Logger, io.Closer) {
	lvl := ParseLevel(opts.Level)
	out := opts.Console
	if out == nil {
		out = os.Stderr
	}

	var sinks []slog.Handler
	if strings.EqualFold(strings.TrimSpace(opts.Format), "json") {
		sinks = append(sinks, slog.NewJSONHandler(out, &slog.HandlerOptions{Level: lvl, AddSource: opts.AddSource}))
	} else {
		sinks = append(sinks, newConsole(out, lvl, opts.AddSource))
	}

	var c io.Closer
	if f := strings.TrimSpace(opts.File); f != "" {
		w := &lj.Logger{Filename: f, MaxSize: fileMaxSizeMB, MaxBackups: fileMaxBackups, MaxAge: fileMaxAgeDays, Compress: true}
		sinks = append(sinks, slog.NewJSONHandler(w, &slog.HandlerOptions{Level: lvl, AddSource: opts.AddSource}))
		c = w
	}

	var h slog.Handler = sinks[0]
	if len(sinks) > 1 {
		h = fanout(sinks)
	}
	l := slog.New(newEnricher(h)).With(
		slog.String("app", "gopyre"),
		slog.String("ver", version.Version),
		slog.Time("ts_init", time.Now()),
	)
	return l, c
}

// ParseLevel maps a level name to a slog level, defaulting to info.
func ParseLevel(s string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// WithComponent returns a logger tagged with the subsystem name.
func WithComponent(name string) *slog.Logger { return L().With(slog.String(KeyComponent, name)) }

// WithOperation tags l with a long-running operation such as "undo".
func WithOperation(l *slog.Logger, op string) *slog.Logger { return l.With(slog.String(KeyOperation, op)) }

// WithCommand tags l with an editing command and the space it edits in.
func WithCommand(l *slog.Logger, name, space string) *slog.Logger {
	if space == "" {
		return l.With(slog.String(KeyCommand, name))
	}
	return l.With(slog.String(KeyCommand, name), Space(space))
}
