//go:build fyne

/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except
 * in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the
 *  specific language governing permissions and limitations under the License.
 */

package ui

import "fyne.io/fyne/v2"

// undoer is what the Edit menu reads from the editing surface.
type undoer interface {
	CanUndo() (string, bool)
	CanRedo() (string, bool)
}

// editMenu keeps the Undo and Redo items in step with the open project.
type editMenu struct {
	undo, redo *fyne.MenuItem
	// refresh redraws the main menu; it only runs when an item changed.
	refresh func()
}

func newEditMenu(undo, redo func()) *editMenu {
	m := &editMenu{undo: fyne.NewMenuItem("Undo", undo), redo: fyne.NewMenuItem("Redo", redo)}
	m.undo.Disabled, m.redo.Disabled = true, true
	return m
}

func (m *editMenu) menu() *fyne.Menu { return fyne.NewMenu("Edit", m.undo, m.redo) }

// update relabels both items from u. A nil u disables them.
func (m *editMenu) update(u undoer) {
	var ul, rl string
	var uok, rok bool
	if u != nil {
		ul, uok = u.CanUndo()
		rl, rok = u.CanRedo()
	}
	a := setItem(m.undo, "Undo", ul, uok)
	b := setItem(m.redo, "Redo", rl, rok)
	if (a || b) && m.refresh != nil {
		m.refresh()
	}
}

func setItem(it *fyne.MenuItem, verb, label string, ok bool) bool {
	text := verb
	if ok && label != "" {
		text = verb + " " + label
	}
	if it.Label == text && it.Disabled == !ok {
		return false
	}
	it.Label, it.Disabled = text, !ok
	return true
}
