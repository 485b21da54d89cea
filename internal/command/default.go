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
	"errors"
	"log/slog"

	"fyne.io/fyne/v2/driver/desktop"

	"gopyre/internal/action"
	"gopyre/internal/input"
	"gopyre/internal/transform"
)

// Default is the idle command of an editing surface. It maintains the
// selection and turns actionable input into specialised commands.
type Default struct {
	base
	mapping  action.Map
	listener transform.ListenerID
	listened bool
	pressAt  transform.Point
	pressed  bool
	possible action.Action
	cursor   desktop.Cursor
}

func NewDefault(env *Env) *Default {
	d := &Default{cursor: desktop.DefaultCursor}
	d.init(d, d, "default", env)
	d.mapping = action.ForType(env.Transform, env.Index, env.settings().SearchRadiusPx)
	return d
}

func (d *Default) start() error {
	d.listener = d.env.Transform.AddOnChangeEventListener(func(c transform.Change) {
		if c.Kind == transform.TypeChanged {
			d.mapping = action.ForType(d.env.Transform, d.env.Index, d.env.settings().SearchRadiusPx)
			d.log.Info("action map rebound", slog.String("type", d.mapping.Type().String()))
		}
	})
	d.listened = true
	return nil
}

func (d *Default) commit() error {
	d.detach()
	return nil
}

func (d *Default) rollback() { d.detach() }

func (d *Default) detach() {
	if d.listened {
		d.env.Transform.RemoveOnChangeEventListener(d.listener)
		d.listened = false
	}
}

// Map returns the action map currently in use.
func (d *Default) Map() action.Map { return d.mapping }

// Cursor returns the cursor hinting at the next clickable action.
func (d *Default) Cursor() desktop.Cursor { return d.cursor }

func (d *Default) HandleInput(ev input.Event) {
	if d.status != Active {
		return
	}
	actionable := ev.Phase == input.Press ||
		(ev.Source == input.Mouse && ev.Phase == input.Drag && ev.LeftDown()) ||
		(ev.Source == input.Mouse && ev.Phase == input.Release)
	if !actionable {
		d.hint(ev)
		return
	}
	if ev.Source == input.Mouse && ev.Phase == input.Press && ev.Changed.Has(input.Left) && ev.LeftDown() {
		d.updateSelection(ev)
		ev = ev.WithSelected(d.env.Selection.Values())
		d.pressAt, d.pressed = ev.Position, true
	}
	if ev.Source == input.Mouse && ev.Phase == input.Release && ev.Changed.Has(input.Left) {
		d.pressed = false
	}
	// A drag is classified by where the button went down.
	if ev.Source == input.Mouse && ev.Phase == input.Drag && d.pressed {
		ev = ev.At(d.pressAt)
	}
	a, hits := d.mapping.Action(ev)
	if a == action.None {
		d.hint(ev)
		return
	}
	factory, ok := Lookup(d.mapping.Type(), a)
	if !ok {
		d.log.Debug("no command for action", slog.String("action", a.String()))
		return
	}
	cmd, err := factory(d.env, Request{Action: a, Points: hits, Event: ev, Origin: ev.Position})
	switch {
	case errors.Is(err, transform.ErrNotSupported):
		d.log.Warn("Current transform does not support " + a.String())
		return
	case err != nil:
		d.log.Warn("command not started", slog.String("action", a.String()), slog.Any("err", err))
		return
	}
	d.pressed = false
	d.env.Queue.Put(cmd)
	if err := d.Execute(); err != nil {
		d.log.Error("default command", slog.Any("err", err))
	}
}

// updateSelection toggles the points under the cursor when Shift is held
// and replaces the selection with them otherwise.
func (d *Default) updateSelection(ev input.Event) {
	hits := d.mapping.FindInteractions(ev.Position, action.PickRadius(ev.Camera, d.env.settings().SearchRadiusPx))
	if ev.Shift() {
		d.env.Selection.SymmetricDifference(hits)
		return
	}
	d.env.Selection.Replace(hits)
}

func (d *Default) hint(ev input.Event) {
	if !d.mapping.HasPotentialInteractions(ev.Position, ev.Camera) {
		d.possible, d.cursor = action.None, desktop.DefaultCursor
		return
	}
	d.possible, _ = d.mapping.PossibleActions(ev)
	d.cursor = action.CursorFor(d.possible)
}
