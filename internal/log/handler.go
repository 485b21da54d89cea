/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package log

import (
	"context"
	"io"
	"log/slog"
	"runtime"
	"strconv"
	"strings"
	"sync"
	"time"
)

// Entry is the editor's view of one log record, handed to the hook.
type Entry struct {
	Time      time.Time
	Level     slog.Level
	Message   string
	Component string
	Operation string
	Command   string
	Space     string
	// Points holds compact ranges; a single Point attribute lands here too.
	Points  string
	Project string
}

var (
	hookMu  sync.RWMutex
	hookMin slog.Level
	hookFn  func(Entry)
)

// SetHook installs fn to receive every record at or above floor, replacing the
// previous hook. fn runs on the logging goroutine and must not block or log
// at floor or above. The returned func restores the previous hook.
func SetHook(floor slog.Level, fn func(Entry)) (restore func()) {
	hookMu.Lock()
	prevMin, prevFn := hookMin, hookFn
	hookMin, hookFn = floor, fn
	hookMu.Unlock()
	return func() {
		hookMu.Lock()
		hookMin, hookFn = prevMin, prevFn
		hookMu.Unlock()
	}
}

func hookFor(level slog.Level) func(Entry) {
	hookMu.RLock()
	defer hookMu.RUnlock()
	if hookFn == nil || level < hookMin {
		return nil
	}
	return hookFn
}

// fields are the editor attributes collected from With calls.
type fields struct {
	component, op, command, space, points string
}

// take records a top level attribute when it is one of the editor's keys.
func (f *fields) take(a slog.Attr) {
	switch a.Key {
	case KeyComponent:
		f.component = a.Value.String()
	case KeyOperation:
		f.op = a.Value.String()
	case KeyCommand:
		f.command = a.Value.String()
	case KeySpace:
		f.space = a.Value.String()
	case KeyPoints:
		f.points = a.Value.String()
	case KeyPoint:
		f.points = a.Value.String()
	}
}

// enricher adds the project root from the context and feeds the hook. It
// sits above the fan-out so the hook fires once per record.
type enricher struct {
	next    slog.Handler
	f       fields
	grouped bool
}

func newEnricher(next slog.Handler) *enricher { return &enricher{next: next} }

func (e *enricher) Enabled(ctx context.Context, level slog.Level) bool {
	return e.next.Enabled(ctx, level) || hookFor(level) != nil
}

func (e *enricher) Handle(ctx context.Context, r slog.Record) error {
	project := projectFrom(ctx)
	if project != "" {
		r = r.Clone()
		r.AddAttrs(slog.String(KeyProject, project))
	}
	if fn := hookFor(r.Level); fn != nil {
		fn(e.entry(r, project))
	}
	if !e.next.Enabled(ctx, r.Level) {
		return nil
	}
	return e.next.Handle(ctx, r)
}

func (e *enricher) entry(r slog.Record, project string) Entry {
	f := e.f
	if !e.grouped {
		r.Attrs(func(a slog.Attr) bool {
			f.take(a)
			return true
		})
	}
	return Entry{
		Time: r.Time, Level: r.Level, Message: r.Message,
		Component: f.component, Operation: f.op, Command: f.command,
		Space: f.space, Points: f.points, Project: project,
	}
}

func (e *enricher) WithAttrs(attrs []slog.Attr) slog.Handler {
	n := &enricher{next: e.next.WithAttrs(attrs), f: e.f, grouped: e.grouped}
	if !n.grouped {
		for _, a := range attrs {
			n.f.take(a)
		}
	}
	return n
}

func (e *enricher) WithGroup(name string) slog.Handler {
	if name == "" {
		return e
	}
	return &enricher{next: e.next.WithGroup(name), f: e.f, grouped: true}
}

// console writes one line per record:
//
//	15:04:05.000 WRN [command/register] point did not align point=3 space=target
//
// Component and command move into the bracket. The static attributes Init
// attaches are kept for the file log only.
type console struct {
	mu     *sync.Mutex
	w      io.Writer
	level  slog.Leveler
	source bool
	tag    fields
	pre    string
	group  string
}

var fileOnly = map[string]bool{"app": true, "ver": true, "ts_init": true}

func newConsole(w io.Writer, level slog.Leveler, source bool) *console {
	return &console{mu: &sync.Mutex{}, w: w, level: level, source: source}
}

func (c *console) Enabled(_ context.Context, level slog.Level) bool {
	floor := slog.LevelInfo
	if c.level != nil {
		floor = c.level.Level()
	}
	return level >= floor
}

func (c *console) Handle(_ context.Context, r slog.Record) error {
	tag := c.tag
	var attrs strings.Builder
	attrs.WriteString(c.pre)
	r.Attrs(func(a slog.Attr) bool {
		c.render(&attrs, &tag, c.group, a)
		return true
	})

	ts := r.Time
	if ts.IsZero() {
		ts = time.Now()
	}
	var b strings.Builder
	b.Grow(128)
	b.WriteString(ts.Format("15:04:05.000"))
	b.WriteByte(' ')
	b.WriteString(levelTag(r.Level))
	if t := bracket(tag); t != "" {
		b.WriteString(" [")
		b.WriteString(t)
		b.WriteByte(']')
	}
	if r.Message != "" {
		b.WriteByte(' ')
		b.WriteString(r.Message)
	}
	b.WriteString(attrs.String())
	if c.source {
		if fr, _ := runtime.CallersFrames([]uintptr{r.PC}).Next(); r.PC != 0 && fr.File != "" {
			b.WriteString(" src=")
			b.WriteString(fr.File)
			b.WriteByte(':')
			b.WriteString(strconv.Itoa(fr.Line))
		}
	}
	b.WriteByte('\n')

	c.mu.Lock()
	defer c.mu.Unlock()
	_, err := io.WriteString(c.w, b.String())
	return err
}

// render appends a to b, or moves it into tag when it names the component
// or command outside any group.
func (c *console) render(b *strings.Builder, tag *fields, prefix string, a slog.Attr) {
	a.Value = a.Value.Resolve()
	if a.Equal(slog.Attr{}) {
		return
	}
	if prefix == "" {
		switch a.Key {
		case KeyComponent:
			tag.component = a.Value.String()
			return
		case KeyCommand:
			tag.command = a.Value.String()
			return
		}
		if fileOnly[a.Key] {
			return
		}
	}
	if a.Value.Kind() == slog.KindGroup {
		p := prefix
		if a.Key != "" {
			p += a.Key + "."
		}
		for _, g := range a.Value.Group() {
			c.render(b, tag, p, g)
		}
		return
	}
	b.WriteByte(' ')
	b.WriteString(prefix)
	b.WriteString(a.Key)
	b.WriteByte('=')
	b.WriteString(valueString(a.Value))
}

func (c *console) WithAttrs(attrs []slog.Attr) slog.Handler {
	n := *c
	var b strings.Builder
	b.WriteString(c.pre)
	for _, a := range attrs {
		n.render(&b, &n.tag, c.group, a)
	}
	n.pre = b.String()
	return &n
}

func (c *console) WithGroup(name string) slog.Handler {
	if name == "" {
		return c
	}
	n := *c
	n.group = c.group + name + "."
	return &n
}

func bracket(f fields) string {
	switch {
	case f.component != "" && f.command != "":
		return f.component + "/" + f.command
	case f.command != "":
		return f.command
	default:
		return f.component
	}
}

func levelTag(l slog.Level) string {
	switch {
	case l < slog.LevelInfo:
		return "DBG"
	case l < slog.LevelWarn:
		return "INF"
	case l < slog.LevelError:
		return "WRN"
	default:
		return "ERR"
	}
}

func valueString(v slog.Value) string {
	switch v.Kind() {
	case slog.KindString:
		s := v.String()
		if s == "" || strings.ContainsAny(s, " \t\n\"=") {
			return strconv.Quote(s)
		}
		return s
	case slog.KindFloat64:
		return strconv.FormatFloat(v.Float64(), 'g', 6, 64)
	case slog.KindDuration:
		return v.Duration().Round(time.Microsecond).String()
	case slog.KindTime:
		return v.Time().Format(time.RFC3339)
	default:
		return v.String()
	}
}

// fanout sends each record to every sink that accepts its level.
type fanout []slog.Handler

func (f fanout) Enabled(ctx context.Context, level slog.Level) bool {
	for _, h := range f {
		if h.Enabled(ctx, level) {
			return true
		}
	}
	return false
}

func (f fanout) Handle(ctx context.Context, r slog.Record) error {
	var first error
	for _, h := range f {
		if !h.Enabled(ctx, r.Level) {
			continue
		}
		if err := h.Handle(ctx, r.Clone()); err != nil && first == nil {
			first = err
		}
	}
	return first
}

func (f fanout) WithAttrs(attrs []slog.Attr) slog.Handler {
	out := make(fanout, len(f))
	for i, h := range f {
		out[i] = h.WithAttrs(attrs)
	}
	return out
}

func (f fanout) WithGroup(name string) slog.Handler {
	out := make(fanout, len(f))
	for i, h := range f {
		out[i] = h.WithGroup(name)
	}
	return out
}
