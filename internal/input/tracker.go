/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except
 * in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the
 *  specific language governing permissions and limitations under the License.
 */

package input

import (
	"sync"

	"fyne.io/fyne/v2"
	"fyne.io/fyne/v2/driver/desktop"
)

// Tracker keeps the held buttons and modifiers across fyne callbacks.
// Fyne reports modifiers with mouse events but not with key events, so
// modifier key presses are folded in here.
type Tracker struct {
	mu    sync.Mutex
	state State
	last  fyne.Position
}

// State returns the current held state.
func (t *Tracker) State() State {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.state
}

// LastPosition returns the last pointer position seen.
func (t *Tracker) LastPosition() fyne.Position {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.last
}

func (t *Tracker) MouseDown(ev *desktop.MouseEvent) Raw {
	t.mu.Lock()
	defer t.mu.Unlock()
	b := buttonFor(ev.Button)
	t.state.Buttons |= b
	t.state.Modifiers = modifiersFor(ev.Modifier)
	t.last = ev.Position
	return Raw{Source: Mouse, Phase: Press, Changed: b, Screen: ev.Position, State: t.state}
}

func (t *Tracker) MouseUp(ev *desktop.MouseEvent) Raw {
	t.mu.Lock()
	defer t.mu.Unlock()
	b := buttonFor(ev.Button)
	t.state.Buttons &^= b
	t.state.Modifiers = modifiersFor(ev.Modifier)
	t.last = ev.Position
	return Raw{Source: Mouse, Phase: Release, Changed: b, Screen: ev.Position, State: t.state}
}

func (t *Tracker) MouseMoved(ev *desktop.MouseEvent) Raw {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.state.Modifiers = modifiersFor(ev.Modifier)
	t.last = ev.Position
	phase := Move
	if t.state.Buttons != NoButtons {
		phase = Drag
	}
	return Raw{Source: Mouse, Phase: phase, Screen: ev.Position, State: t.state}
}

// Dragged handles fyne's Draggable callback, which only fires with the
// primary button held.
func (t *Tracker) Dragged(ev *fyne.DragEvent) Raw {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.state.Buttons |= Left
	t.last = ev.Position
	return Raw{Source: Mouse, Phase: Drag, Screen: ev.Position, State: t.state}
}

func (t *Tracker) KeyDown(ev *fyne.KeyEvent) Raw {
	t.mu.Lock()
	defer t.mu.Unlock()
	if m, ok := modifierKey(ev.Name); ok {
		t.state.Modifiers |= m
	}
	return Raw{Source: Keyboard, Phase: Press, Key: ev.Name, Screen: t.last, State: t.state}
}

func (t *Tracker) KeyUp(ev *fyne.KeyEvent) Raw {
	t.mu.Lock()
	defer t.mu.Unlock()
	if m, ok := modifierKey(ev.Name); ok {
		t.state.Modifiers &^= m
	}
	return Raw{Source: Keyboard, Phase: Release, Key: ev.Name, Screen: t.last, State: t.state}
}

// Reset drops all held state, e.g. when the window loses focus.
func (t *Tracker) Reset() {
	t.mu.Lock()
	t.state = State{}
	t.mu.Unlock()
}

func buttonFor(b desktop.MouseButton) Buttons {
	var out Buttons
	if b&desktop.MouseButtonPrimary != 0 {
		out |= Left
	}
	if b&desktop.MouseButtonSecondary != 0 {
		out |= Right
	}
	if b&desktop.MouseButtonTertiary != 0 {
		out |= Middle
	}
	return out
}

func modifiersFor(m fyne.KeyModifier) Modifiers {
	var out Modifiers
	if m&fyne.KeyModifierShift != 0 {
		out |= Shift
	}
	if m&fyne.KeyModifierControl != 0 {
		out |= Ctrl
	}
	if m&fyne.KeyModifierAlt != 0 {
		out |= Alt
	}
	return out
}

func modifierKey(k fyne.KeyName) (Modifiers, bool) {
	switch k {
	case desktop.KeyShiftLeft, desktop.KeyShiftRight:
		return Shift, true
	case desktop.KeyControlLeft, desktop.KeyControlRight:
		return Ctrl, true
	case desktop.KeyAltLeft, desktop.KeyAltRight:
		return Alt, true
	}
	return NoModifiers, false
}
