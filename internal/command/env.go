/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except
 * in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the
 *  specific language governing permissions and limitations under the License.
 */

package command

import (
	"context"
	"image"
	"log/slog"
	"time"

	"gopyre/internal/action"
	"gopyre/internal/input"
	applog "gopyre/internal/log"
	"gopyre/internal/registration"
	"gopyre/internal/selection"
	"gopyre/internal/spatial"
	"gopyre/internal/transform"
)

// History records undoable point edits.
type History interface {
	// SaveState records that points looked like previous before the edit
	// just committed.
	SaveState(label string, previous []transform.ControlPoint)
}

// Registrar runs point registration searches.
type Registrar interface {
	Dispatch(ctx context.Context, req registration.Request) *registration.Future[*registration.Record]
	Search(ctx context.Context, req registration.Request) (*registration.Record, error)
}

// Pointer reports which buttons and modifiers are held right now.
type Pointer interface {
	State() input.State
}

// Settings tune command behaviour.
type Settings struct {
	SearchRadiusPx float64
	NudgePx        float64

	// RegisterTimeout bounds the join on registration results.
	RegisterTimeout time.Duration
}

func DefaultSettings() Settings {
	return Settings{SearchRadiusPx: action.DefaultSearchRadiusPx, NudgePx: 1, RegisterTimeout: time.Minute}
}

// Env is what commands of one editing surface share. Everything in it is
// owned by the surface and only touched on the UI goroutine, except Queue.
type Env struct {
	Ctx       context.Context
	Transform transform.Controller
	Selection *selection.Indices
	Queue     *Queue
	Index     *spatial.Index
	Mouse     *input.MouseHistory
	Pointer   Pointer
	Space     transform.Space

	// Bounds, when not empty, limits where points may be created in Space.
	Bounds image.Rectangle

	History   History
	Registrar Registrar
	Results   registration.Sink
	SourceKey string
	TargetKey string

	// Post runs fn on the UI goroutine at the next idle point.
	Post     func(fn func())
	Settings Settings
	Log      *slog.Logger

	delivering bool
	deliveries []func()
}

func (e *Env) logger() *slog.Logger {
	if e.Log != nil {
		return e.Log
	}
	return applog.WithComponent("command")
}

func (e *Env) ctx() context.Context {
	if e.Ctx != nil {
		return e.Ctx
	}
	return context.Background()
}

func (e *Env) post(fn func()) {
	if e.Post == nil {
		fn()
		return
	}
	e.Post(fn)
}

// deliver runs fn now, or after the delivery in progress when called from
// inside one. A child's completion thus reaches all of its subscribers before
// the parent that reacted to it reports its own.
func (e *Env) deliver(fn func()) {
	e.deliveries = append(e.deliveries, fn)
	if e.delivering {
		return
	}
	e.delivering = true
	defer func() { e.delivering = false }()
	for len(e.deliveries) > 0 {
		next := e.deliveries[0]
		e.deliveries = e.deliveries[1:]
		next()
	}
}

// Settling reports whether completions are still queued for delivery. A
// parent may yet react to one of them.
func (e *Env) Settling() bool { return len(e.deliveries) > 0 }

func (e *Env) leftHeld() bool {
	return e.Pointer != nil && e.Pointer.State().Buttons.Has(input.Left)
}

func (e *Env) saveState(label string, previous []transform.ControlPoint) {
	if e.History != nil {
		e.History.SaveState(label, previous)
	}
}

func (e *Env) settings() Settings {
	s := e.Settings
	d := DefaultSettings()
	if s.SearchRadiusPx <= 0 {
		s.SearchRadiusPx = d.SearchRadiusPx
	}
	if s.NudgePx <= 0 {
		s.NudgePx = d.NudgePx
	}
	if s.RegisterTimeout <= 0 {
		s.RegisterTimeout = d.RegisterTimeout
	}
	return s
}

// commandPoints returns the sorted union of the selection and extra.
func (e *Env) commandPoints(extra []int) []int {
	var sel []int
	if e.Selection != nil {
		sel = e.Selection.Values()
	}
	return action.Union(sel, extra)
}

// pointsFor resolves the points a request acts on. Nested requests act on
// exactly their own points.
func (e *Env) pointsFor(req Request) []int {
	if req.Nested {
		return action.Union(nil, req.Points)
	}
	return e.commandPoints(req.Points)
}

func (e *Env) allPoints() []int {
	n := e.Transform.NumPoints()
	out := make([]int, n)
	for i := range out {
		out[i] = i
	}
	return out
}

// Request carries what a factory needs to build a command.
type Request struct {
	Action action.Action
	Points []int
	Event  input.Event

	// Origin is where the gesture started, in the surface's space.
	Origin transform.Point

	// Nested commands run on behalf of a parent that records the undo step.
	Nested bool
}
