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
	"fmt"
	"log/slog"
	"slices"

	"fyne.io/fyne/v2"

	"gopyre/internal/input"
	applog "gopyre/internal/log"
	"gopyre/internal/transform"
)

// Translate drags points with the left button or nudges them with the
// arrow keys. Cancel restores the points captured at construction.
type Translate struct {
	base
	points   []int
	snapshot []transform.ControlPoint
	last     transform.Point
	moved    bool
	nested   bool
}

// NewTranslate moves the selection plus req.Points, or every point when all
// is set.
func NewTranslate(env *Env, req Request, all bool) (*Translate, error) {
	pts := env.pointsFor(req)
	name := "translate"
	if all {
		pts = env.allPoints()
		name = "translate_all"
	}
	if len(pts) == 0 {
		return nil, fmt.Errorf("%s: %w", name, ErrSelectionRequired)
	}
	t := &Translate{points: pts, snapshot: env.Transform.Points(), last: req.Origin, nested: req.Nested}
	t.init(t, t, name, env)
	return t, nil
}

// Points returns the indices being moved.
func (t *Translate) Points() []int { return slices.Clone(t.points) }

func (t *Translate) start() error {
	if t.env.Mouse != nil && t.env.Mouse.Known(t.env.Space) && t.env.leftHeld() {
		if cur := t.env.Mouse.Get(t.env.Space); cur != t.last {
			t.move(cur.Sub(t.last))
			t.last = cur
		}
	}
	if t.env.Pointer != nil && !t.env.leftHeld() {
		return t.Execute()
	}
	return nil
}

func (t *Translate) commit() error {
	if t.moved && !t.nested {
		t.env.saveState(t.name, t.snapshot)
	}
	return nil
}

func (t *Translate) rollback() {
	t.env.Transform.SetPoints(t.snapshot)
}

func (t *Translate) HandleInput(ev input.Event) {
	if t.status != Active {
		return
	}
	switch {
	case ev.Source == input.Keyboard && ev.Phase == input.Press:
		t.key(ev)
	case ev.Phase == input.Press:
		if ev.Changed.Has(input.Middle) || ev.Changed.Has(input.Right) {
			_ = t.Cancel()
		}
	case ev.Phase == input.Drag || ev.Phase == input.Move:
		if ev.RightDown() {
			_ = t.Cancel()
			return
		}
		if !ev.LeftDown() {
			return
		}
		t.move(ev.Position.Sub(t.last))
		t.last = ev.Position
	case ev.Phase == input.Release:
		if ev.Changed.Has(input.Left) && !ev.LeftDown() {
			_ = t.Execute()
		}
	}
}

func (t *Translate) key(ev input.Event) {
	step := t.env.settings().NudgePx * ev.Camera.WorldPerPixel()
	if ev.Shift() {
		step *= 5
	}
	if ev.Ctrl() {
		step *= 25
	}
	var d transform.Point
	switch ev.Key {
	case fyne.KeyUp:
		d.Y = -step
	case fyne.KeyDown:
		d.Y = step
	case fyne.KeyLeft:
		d.X = -step
	case fyne.KeyRight:
		d.X = step
	case fyne.KeyEscape:
		_ = t.Cancel()
		return
	case fyne.KeyReturn, fyne.KeyEnter:
		_ = t.Execute()
		return
	default:
		return
	}
	t.move(d)
}

func (t *Translate) move(delta transform.Point) {
	if delta == (transform.Point{}) {
		return
	}
	got, err := t.env.Transform.MovePoints(t.points, delta, t.env.Space)
	if err != nil {
		t.log.Warn("move failed", slog.Any("err", err))
		return
	}
	t.moved = true
	if got != nil && !slices.Equal(got, t.points) {
		t.log.Debug("points renumbered", applog.Points(t.points), slog.String("renumbered", applog.FormatIndices(got)))
		t.points = slices.Clone(got)
		t.env.Selection.Replace(got)
	}
}
