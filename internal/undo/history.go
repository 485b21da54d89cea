/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except
 * in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the
 *  specific language governing permissions and limitations under the License.
 */

package undo

import (
	"log/slog"
	"time"

	"gopyre/internal/transform"
)

// History binds a Manager to one transform. Commands record the state they
// replaced through SaveState; Undo and Redo restore whole point arrays.
type History struct {
	m   *Manager
	key string
	tc  transform.Controller
	log *slog.Logger
	now func() time.Time
}

func NewHistory(m *Manager, key string, tc transform.Controller, log *slog.Logger) *History {
	if log == nil {
		log = slog.Default()
	}
	return &History{m: m, key: key, tc: tc, log: log, now: time.Now}
}

// SaveState records previous as the state before the command label.
func (h *History) SaveState(label string, previous []transform.ControlPoint) {
	h.m.PushSnapshot(Snapshot{Key: h.key, Label: label, Points: previous, TS: h.now()})
	h.log.Debug("undo step saved", slog.String("label", label), slog.Int("points", len(previous)))
}

// Undo restores the state before the newest step. It returns the step's
// label and false when there is nothing to undo.
func (h *History) Undo() (string, bool) {
	s, ok := h.m.Undo(h.key, h.tc.Points())
	if !ok {
		return "", false
	}
	h.tc.SetPoints(s.Points)
	h.log.Info("undo", slog.String("label", s.Label))
	return s.Label, true
}

func (h *History) Redo() (string, bool) {
	s, ok := h.m.Redo(h.key, h.tc.Points())
	if !ok {
		return "", false
	}
	h.tc.SetPoints(s.Points)
	h.log.Info("redo", slog.String("label", s.Label))
	return s.Label, true
}

func (h *History) Manager() *Manager { return h.m }

// CanUndo reports whether Undo would revert a step and that step's label.
func (h *History) CanUndo() (string, bool) { return h.m.CanUndo(h.key) }

// CanRedo reports whether Redo would reapply a step and that step's label.
func (h *History) CanRedo() (string, bool) { return h.m.CanRedo(h.key) }
