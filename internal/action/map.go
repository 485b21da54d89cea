/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except
 * in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the
 *  specific language governing permissions and limitations under the License.
 */

package action

import (
	"sort"

	"fyne.io/fyne/v2"
	"fyne.io/fyne/v2/driver/desktop"

	"gopyre/internal/input"
	"gopyre/internal/spatial"
	"gopyre/internal/transform"
)

// DefaultSearchRadiusPx is the pick radius in screen pixels.
const DefaultSearchRadiusPx = 10

// Map decides which actions an input event can trigger.
type Map interface {
	// PossibleActions returns every action reachable from the event's
	// position with the currently held modifiers, for cursor hints.
	PossibleActions(ev input.Event) (Action, []int)
	// Action resolves the single action to perform for ev.
	Action(ev input.Event) (Action, []int)
	FindInteractions(p transform.Point, radius float64) []int
	HasPotentialInteractions(p transform.Point, cam input.Camera) bool
	Type() transform.Type
}

// PickRadius converts a screen-pixel radius to world units for cam, so
// picking precision stays constant on screen at every zoom level.
func PickRadius(cam input.Camera, px float64) float64 {
	return px * cam.WorldPerPixel()
}

type finder func(p transform.Point, radius float64) []int

type tableMap struct {
	tc       transform.Controller
	typ      transform.Type
	caps     transform.Capabilities
	find     finder
	radiusPx float64
}

// ForType returns the action map for the controller's current transform
// type. Types without pickable points never report interactions.
func ForType(tc transform.Controller, ix *spatial.Index, radiusPx float64) Map {
	if radiusPx <= 0 {
		radiusPx = DefaultSearchRadiusPx
	}
	t := tc.Type()
	m := &tableMap{tc: tc, typ: t, caps: transform.CapabilitiesOf(t), radiusPx: radiusPx}
	if m.caps.Pickable && ix != nil {
		m.find = ix.FindNearestWithin
	} else {
		m.find = func(transform.Point, float64) []int { return nil }
	}
	return m
}

func (m *tableMap) Type() transform.Type { return m.typ }

func (m *tableMap) FindInteractions(p transform.Point, radius float64) []int {
	return m.find(p, radius)
}

func (m *tableMap) HasPotentialInteractions(p transform.Point, cam input.Camera) bool {
	if len(m.find(p, PickRadius(cam, m.radiusPx))) > 0 {
		return true
	}
	return m.caps.AddRemove
}

func (m *tableMap) matches(ev input.Event) []int {
	return m.find(ev.Position, PickRadius(ev.Camera, m.radiusPx))
}

func (m *tableMap) Action(ev input.Event) (Action, []int) {
	hits := m.matches(ev)
	if ev.Source == input.Keyboard {
		return m.keyAction(ev), hits
	}
	if len(hits) == 0 {
		if ev.Phase == input.Press && ev.Changed.Has(input.Left) && ev.LeftDown() && ev.Shift() && m.caps.AddRemove {
			if ev.Alt() {
				return CreateRegister, nil
			}
			return Create, nil
		}
		return None, nil
	}
	switch ev.Phase {
	case input.Press:
		if ev.Changed.Has(input.Right) && ev.RightDown() && ev.Shift() {
			if m.canDelete(ev, hits) {
				return Delete, hits
			}
			return None, hits
		}
		if ev.Changed.Has(input.Left) && ev.LeftDown() {
			switch {
			case ev.Shift() && ev.Alt():
				return Register, hits
			case ev.Shift():
				return ToggleSelection, hits
			default:
				return Select, hits
			}
		}
	case input.Drag:
		if ev.LeftDown() {
			if ev.Ctrl() {
				return TranslateAll, hits
			}
			return Translate, hits
		}
	case input.Release:
		if ev.Changed.Has(input.Left) && !ev.LeftDown() {
			return ReplaceSelection, hits
		}
	}
	return None, hits
}

func (m *tableMap) keyAction(ev input.Event) Action {
	if ev.Phase != input.Press || ev.Key != fyne.KeySpace {
		return None
	}
	if ev.Shift() {
		if m.caps.RegisterAll {
			return RegisterAll
		}
		return None
	}
	return Register
}

func (m *tableMap) PossibleActions(ev input.Event) (Action, []int) {
	hits := m.matches(ev)
	var out Action
	if len(hits) == 0 {
		if m.caps.AddRemove && ev.Shift() {
			if ev.Alt() {
				out |= CreateRegister
			} else {
				out |= Create
			}
		}
	} else {
		out |= Select | ReplaceSelection | Translate | Register
		if ev.Ctrl() {
			out |= TranslateAll
		}
		if ev.Shift() {
			out |= ToggleSelection
			if m.canDelete(ev, hits) {
				out |= Delete
			}
		}
	}
	if m.caps.RegisterAll && m.tc.NumPoints() > 0 {
		out |= RegisterAll
	}
	return out, hits
}

// canDelete reports whether removing the selection plus the hits leaves at
// least the transform's minimum number of points.
func (m *tableMap) canDelete(ev input.Event, hits []int) bool {
	if !m.caps.AddRemove {
		return false
	}
	doomed := Union(ev.Selected(), hits)
	return m.tc.NumPoints()-len(doomed) >= m.caps.MinPoints
}

// Union returns the sorted, de-duplicated union of a and b.
func Union(a, b []int) []int {
	seen := make(map[int]struct{}, len(a)+len(b))
	out := make([]int, 0, len(a)+len(b))
	for _, s := range [][]int{a, b} {
		for _, v := range s {
			if _, ok := seen[v]; !ok {
				seen[v] = struct{}{}
				out = append(out, v)
			}
		}
	}
	sort.Ints(out)
	return out
}

// CursorFor picks the cursor that hints the next clickable action.
func CursorFor(a Action) desktop.Cursor {
	switch {
	case a&(Create|CreateRegister) != 0:
		return desktop.CrosshairCursor
	case a&(Translate|TranslateAll|Select) != 0:
		return desktop.PointerCursor
	default:
		return desktop.DefaultCursor
	}
}
