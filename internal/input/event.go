/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except
 * in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the
 *  specific language governing permissions and limitations under the License.
 */

// Package input models pointer and keyboard input independently of the
// windowing toolkit. Tracker turns fyne callbacks into Raw input; the editing
// surface turns Raw input into immutable Events in world coordinates.
package input

import (
	"strings"

	"fyne.io/fyne/v2"

	"gopyre/internal/transform"
)

// Source is the device an input came from.
type Source int

const (
	Mouse Source = iota
	Keyboard
	Pen
)

// Phase is the stage of an input gesture.
type Phase int

const (
	Press Phase = iota
	Release
	Drag
	// Move is pointer motion with no button held.
	Move
)

func (p Phase) String() string {
	switch p {
	case Press:
		return "press"
	case Release:
		return "release"
	case Drag:
		return "drag"
	default:
		return "move"
	}
}

// Buttons is a bitmask of pointer buttons.
type Buttons uint8

const (
	Left Buttons = 1 << iota
	Middle
	Right

	NoButtons Buttons = 0
)

func (b Buttons) Has(x Buttons) bool { return b&x == x && x != 0 }

// Modifiers is a bitmask of held modifier keys.
type Modifiers uint8

const (
	Shift Modifiers = 1 << iota
	Ctrl
	Alt

	NoModifiers Modifiers = 0
)

func (m Modifiers) Has(x Modifiers) bool { return m&x == x && x != 0 }

func (m Modifiers) String() string {
	var parts []string
	if m.Has(Shift) {
		parts = append(parts, "shift")
	}
	if m.Has(Ctrl) {
		parts = append(parts, "ctrl")
	}
	if m.Has(Alt) {
		parts = append(parts, "alt")
	}
	if len(parts) == 0 {
		return "none"
	}
	return strings.Join(parts, "+")
}

// State is the held buttons and modifiers at a point in time.
type State struct {
	Buttons   Buttons
	Modifiers Modifiers
}

// Raw is one toolkit input occurrence in screen coordinates.
type Raw struct {
	Source  Source
	Phase   Phase
	Changed Buttons // buttons whose state flipped with this input
	Key     fyne.KeyName
	Screen  fyne.Position
	State
}

// Camera maps screen pixels to world coordinates for one view.
// Scale is world units per screen pixel, so zooming in makes it smaller.
type Camera struct {
	Origin transform.Point // world position of the screen's top-left pixel
	Scale  float64
}

// WorldPerPixel returns the camera scale, treating an unset scale as 1.
func (c Camera) WorldPerPixel() float64 {
	if c.Scale <= 0 {
		return 1
	}
	return c.Scale
}

// ScreenToWorld converts a screen position to world coordinates.
func (c Camera) ScreenToWorld(p fyne.Position) transform.Point {
	s := c.WorldPerPixel()
	return transform.Point{Y: c.Origin.Y + float64(p.Y)*s, X: c.Origin.X + float64(p.X)*s}
}

// WorldToScreen is the inverse of ScreenToWorld.
func (c Camera) WorldToScreen(p transform.Point) fyne.Position {
	s := c.WorldPerPixel()
	return fyne.NewPos(float32((p.X-c.Origin.X)/s), float32((p.Y-c.Origin.Y)/s))
}

// Event is an immutable snapshot of one input occurrence as seen by the
// editor: world position, held state and the selection at the time.
type Event struct {
	Camera    Camera
	Source    Source
	Phase     Phase
	Buttons   Buttons
	Changed   Buttons
	Modifiers Modifiers
	Position  transform.Point
	Key       fyne.KeyName
	selected  []int
}

// NewEvent builds an Event from raw input. The selection slice is copied.
func NewEvent(raw Raw, cam Camera, world transform.Point, selected []int) Event {
	return Event{
		Camera:    cam,
		Source:    raw.Source,
		Phase:     raw.Phase,
		Buttons:   raw.Buttons,
		Changed:   raw.Changed,
		Modifiers: raw.Modifiers,
		Position:  world,
		Key:       raw.Key,
		selected:  append([]int(nil), selected...),
	}
}

// Selected returns a copy of the selection present when the event happened.
func (e Event) Selected() []int { return append([]int(nil), e.selected...) }

// WithSelected returns a copy of e carrying a different selection snapshot.
func (e Event) WithSelected(selected []int) Event {
	e.selected = append([]int(nil), selected...)
	return e
}

// At returns a copy of e located at p.
func (e Event) At(p transform.Point) Event {
	e.Position = p
	return e
}

func (e Event) LeftDown() bool   { return e.Buttons.Has(Left) }
func (e Event) RightDown() bool  { return e.Buttons.Has(Right) }
func (e Event) MiddleDown() bool { return e.Buttons.Has(Middle) }
func (e Event) Shift() bool      { return e.Modifiers.Has(Shift) }
func (e Event) Ctrl() bool       { return e.Modifiers.Has(Ctrl) }
func (e Event) Alt() bool        { return e.Modifiers.Has(Alt) }

// MouseHistory remembers the last pointer position separately per space,
// since one screen position maps to different world positions on each side.
type MouseHistory struct {
	pos [2]transform.Point
	set [2]bool
}

func (h *MouseHistory) Get(s transform.Space) transform.Point { return h.pos[s] }

// Known reports whether a position has been recorded for s.
func (h *MouseHistory) Known(s transform.Space) bool { return h.set[s] }

func (h *MouseHistory) Set(s transform.Space, p transform.Point) {
	h.pos[s] = p
	h.set[s] = true
}
