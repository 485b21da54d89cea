/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except
 * in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the
 *  specific language governing permissions and limitations under the License.
 */

package editor

import (
	"context"
	"fmt"
	"image"
	"log/slog"
	"time"

	"fyne.io/fyne/v2"
	"fyne.io/fyne/v2/driver/desktop"

	"gopyre/internal/action"
	"gopyre/internal/command"
	"gopyre/internal/config"
	"gopyre/internal/input"
	applog "gopyre/internal/log"
	"gopyre/internal/registration"
	"gopyre/internal/selection"
	"gopyre/internal/spatial"
	"gopyre/internal/telemetry"
	"gopyre/internal/transform"
	"gopyre/internal/undo"
)

// Checkpointer persists the point array after every undoable edit.
type Checkpointer interface {
	SaveCheckpoint(ctx context.Context, label string, points []transform.ControlPoint) error
}

// Options configure a Surface. Zero values fall back to defaults.
type Options struct {
	// Space is the side of the transform the surface displays.
	Space     transform.Space
	Settings  command.Settings
	Bounds    image.Rectangle
	Registrar command.Registrar
	Results   registration.Sink
	SourceKey string
	TargetKey string

	Undo    *undo.Manager
	UndoKey string

	Checkpoints Checkpointer
	Telemetry   telemetry.Recorder
	Log         *slog.Logger
}

// OptionsFromConfig maps the user configuration onto surface options.
func OptionsFromConfig(cfg config.AppConfig) Options {
	return Options{
		Settings: command.Settings{
			SearchRadiusPx:  cfg.Editor.SearchRadiusPx,
			NudgePx:         cfg.Editor.NudgePx,
			RegisterTimeout: cfg.Registration.RegisterTimeout(),
		},
		Undo: undo.NewManager(undo.Config{
			MaxBytes:    cfg.Undo.MaxBytes,
			MaxPerKey:   cfg.Undo.MaxDepth,
			MinInterval: cfg.Undo.MinInterval(),
		}),
	}
}

// Surface is one editing view over a transform. It owns the selection, the
// command queue and the spatial index, and keeps exactly one command active:
// queued commands run in FIFO order and a fresh Default command takes over
// whenever the queue is empty.
//
// Every method except Submit must be called on the loop's goroutine.
type Surface struct {
	loop    *Loop
	tc      transform.Controller
	sel     *selection.Indices
	queue   *command.Queue
	index   *spatial.Index
	mouse   input.MouseHistory
	held    input.State
	cam     input.Camera
	history *undo.History
	env     *command.Env
	opts    Options
	log     *slog.Logger

	current  command.Command
	finished []func(command.Completion)
	listener transform.ListenerID
	pumping  bool
	again    bool
	closed   bool
	cancel   context.CancelFunc
}

// New builds a surface over tc. Call Start to activate the first command.
func New(tc transform.Controller, loop *Loop, opts Options) *Surface {
	l := opts.Log
	if l == nil {
		l = applog.WithComponent("editor")
	}
	if opts.Undo == nil {
		opts.Undo = undo.NewManager(undo.Config{})
	}
	if opts.UndoKey == "" {
		opts.UndoKey = "points"
	}
	ctx, cancel := context.WithCancel(context.Background())
	s := &Surface{
		loop:   loop,
		tc:     tc,
		sel:    selection.NewIndices(),
		queue:  command.NewQueue(),
		index:  spatial.New(tc, opts.Space),
		cam:    input.Camera{Scale: 1},
		opts:   opts,
		log:    l,
		cancel: cancel,
	}
	s.history = undo.NewHistory(opts.Undo, opts.UndoKey, tc, applog.WithOperation(l, "undo"))
	s.env = &command.Env{
		Ctx:       ctx,
		Transform: tc,
		Selection: s.sel,
		Queue:     s.queue,
		Index:     s.index,
		Mouse:     &s.mouse,
		Pointer:   s,
		Space:     opts.Space,
		Bounds:    opts.Bounds,
		History:   recorder{s},
		Registrar: opts.Registrar,
		Results:   opts.Results,
		SourceKey: opts.SourceKey,
		TargetKey: opts.TargetKey,
		Post:      loop.Post,
		Settings:  opts.Settings,
	}
	s.listener = tc.AddOnChangeEventListener(s.onTransformChange)
	s.queue.SetNotify(func() { loop.Post(s.onQueued) })
	return s
}

// Start activates the first command.
func (s *Surface) Start() { s.pump() }

// Close cancels the active command and detaches from the transform.
// Pending registration results become no-ops.
func (s *Surface) Close() {
	if s.closed {
		return
	}
	s.closed = true
	s.cancel()
	for _, c := range s.queue.Clear() {
		if c.CanExecute() {
			_ = c.Cancel()
		}
	}
	if s.current != nil && s.current.CanExecute() {
		_ = s.current.Cancel()
	}
	s.tc.RemoveOnChangeEventListener(s.listener)
	s.index.Close()
}

func (s *Surface) Transform() transform.Controller { return s.tc }
func (s *Surface) Selection() *selection.Indices   { return s.sel }
func (s *Surface) Queue() *command.Queue           { return s.queue }
func (s *Surface) Current() command.Command        { return s.current }
func (s *Surface) History() *undo.History          { return s.history }
func (s *Surface) Camera() input.Camera            { return s.cam }
func (s *Surface) SetCamera(c input.Camera)        { s.cam = c }
func (s *Surface) Space() transform.Space          { return s.opts.Space }

// State implements command.Pointer from the last input seen.
func (s *Surface) State() input.State { return s.held }

// Mouse returns the last pointer position in space sp.
func (s *Surface) Mouse(sp transform.Space) transform.Point { return s.mouse.Get(sp) }

// Submit builds the command for a and queues it. It is how menus and the
// CLI start commands without pointer input.
func (s *Surface) Submit(a action.Action) error {
	f, ok := command.Lookup(s.tc.Type(), a)
	if !ok {
		return fmt.Errorf("%s: %w", a, transform.ErrNotSupported)
	}
	c, err := f(s.env, command.Request{Action: a, Origin: s.mouse.Get(s.opts.Space)})
	if err != nil {
		return err
	}
	s.queue.Put(c)
	return nil
}

// HandleRaw turns toolkit input into an Event and hands it to the active
// command. Undo and redo shortcuts are served here while the surface is idle.
func (s *Surface) HandleRaw(raw input.Raw) {
	if s.closed {
		return
	}
	s.held = raw.State
	world := s.cam.ScreenToWorld(raw.Screen)
	if raw.Source != input.Keyboard {
		s.track(world)
	} else if s.mouse.Known(s.opts.Space) {
		world = s.mouse.Get(s.opts.Space)
	}
	if raw.Source == input.Keyboard && raw.Phase == input.Press && raw.Modifiers.Has(input.Ctrl) && s.idle() {
		switch raw.Key {
		case fyne.KeyZ:
			s.Undo()
			return
		case fyne.KeyY:
			s.Redo()
			return
		}
	}
	if s.current == nil || s.current.Status() != command.Active {
		return
	}
	s.current.HandleInput(input.NewEvent(raw, s.cam, world, s.sel.Values()))
}

// track records the pointer in both spaces.
func (s *Surface) track(world transform.Point) {
	sp := s.opts.Space
	s.mouse.Set(sp, world)
	s.mouse.Set(sp.Other(), s.tc.MapPoint(world, sp, sp.Other()))
}

func (s *Surface) idle() bool {
	_, ok := s.current.(*command.Default)
	return ok && s.current.Status() == command.Active
}

// CanUndo reports the label Undo would revert. Like Undo it is false while
// a command other than the idle Default is running.
func (s *Surface) CanUndo() (string, bool) {
	if !s.idle() {
		return "", false
	}
	return s.history.CanUndo()
}

func (s *Surface) CanRedo() (string, bool) {
	if !s.idle() {
		return "", false
	}
	return s.history.CanRedo()
}

// Undo reverts the newest edit. It is refused while a command other than
// the idle Default is running.
func (s *Surface) Undo() bool {
	if !s.idle() {
		return false
	}
	label, ok := s.history.Undo()
	if ok {
		s.event(telemetry.EventUndo, map[string]any{"command": label, "redo": false})
	}
	return ok
}

func (s *Surface) Redo() bool {
	if !s.idle() {
		return false
	}
	label, ok := s.history.Redo()
	if ok {
		s.event(telemetry.EventUndo, map[string]any{"command": label, "redo": true})
	}
	return ok
}

// CursorHint returns the cursor for the current interaction state.
func (s *Surface) CursorHint() desktop.Cursor {
	switch c := s.current.(type) {
	case *command.Default:
		return c.Cursor()
	case *command.Translate:
		return desktop.PointerCursor
	case *command.Create:
		return desktop.CrosshairCursor
	default:
		return desktop.DefaultCursor
	}
}

// OnCommandCompleted registers fn for every command other than Default
// that reaches Completed.
func (s *Surface) OnCommandCompleted(fn func(command.Completion)) {
	s.finished = append(s.finished, fn)
}

// onQueued runs on the loop after a Put. An idle Default yields to the new
// command; otherwise the queue is pumped in case a parent is waiting.
func (s *Surface) onQueued() {
	if s.closed {
		return
	}
	if s.idle() && s.queue.Len() > 0 {
		_ = s.current.Cancel()
		return
	}
	s.pump()
}

// pump activates the next command unless one is active. Completion events
// fired from inside an activation re-enter here; they are folded into the
// running pump.
func (s *Surface) pump() {
	if s.pumping {
		s.again = true
		return
	}
	s.pumping = true
	defer func() { s.pumping = false }()
	for {
		s.again = false
		s.advance()
		if !s.again {
			return
		}
	}
}

func (s *Surface) advance() {
	if s.closed {
		return
	}
	if s.current != nil && s.current.Status() == command.Active {
		return
	}
	next, ok := s.queue.TryGet()
	if !ok {
		if s.current != nil && s.current.Status() == command.Inactive {
			// The parent queues its child after going Inactive.
			return
		}
		if s.env.Settling() {
			// The last delivery pumps again.
			return
		}
		next = command.NewDefault(s.env)
	}
	s.bind(next)
	if err := next.Activate(); err != nil {
		s.log.Error("command activation failed", slog.String("command", next.Name()), slog.Any("err", err))
	}
	if next.Status() != command.Active {
		s.again = true
	}
}

// bind makes c current. The subscription outlives it so that a parent
// finishing after its child is still reported and can release the pump.
func (s *Surface) bind(c command.Command) {
	s.current = c
	c.OnCompleted(func(ev command.Completion) { s.onCompleted(c, ev) })
}

func (s *Surface) onCompleted(c command.Command, ev command.Completion) {
	if ev.Status == command.Completed {
		if _, isDefault := c.(*command.Default); !isDefault {
			s.log.Debug("command finished", slog.String("command", c.Name()), slog.String("result", ev.Result.String()))
			s.event(telemetry.EventCommandCompleted, map[string]any{
				"command": c.Name(),
				"result":  ev.Result.String(),
				"points":  s.tc.NumPoints(),
			})
			for _, fn := range s.finished {
				fn(ev)
			}
		}
	}
	s.pump()
}

// onTransformChange keeps the selection within the point count.
func (s *Surface) onTransformChange(ch transform.Change) {
	n := s.tc.NumPoints()
	vals := s.sel.Values()
	if len(vals) == 0 || vals[len(vals)-1] < n {
		return
	}
	keep := make([]int, 0, len(vals))
	for _, v := range vals {
		if v < n {
			keep = append(keep, v)
		}
	}
	s.sel.IntersectionUpdate(keep)
	s.log.Debug("selection pruned", slog.Int("total", n), slog.Int("kept", len(keep)))
}

func (s *Surface) event(name string, props map[string]any) {
	if s.opts.Telemetry != nil {
		s.opts.Telemetry.Event(name, props)
	}
}

// recorder forwards undo steps to the history and checkpoints the result.
type recorder struct{ s *Surface }

func (r recorder) SaveState(label string, previous []transform.ControlPoint) {
	r.s.history.SaveState(label, previous)
	cp := r.s.opts.Checkpoints
	if cp == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := cp.SaveCheckpoint(ctx, label, r.s.tc.Points()); err != nil {
		r.s.log.Warn("checkpoint not saved", slog.String("command", label), slog.Any("err", err))
	}
}
