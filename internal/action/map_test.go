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
	"testing"

	"fyne.io/fyne/v2"
	"fyne.io/fyne/v2/driver/desktop"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gopyre/internal/input"
	"gopyre/internal/spatial"
	"gopyre/internal/transform"
)

func square(n int) []transform.ControlPoint {
	var out []transform.ControlPoint
	for i := 0; i < n; i++ {
		p := transform.Point{Y: float64(i / 3 * 100), X: float64(i % 3 * 100)}
		out = append(out, transform.NewControlPoint(p, p))
	}
	return out
}

func newMap(t *testing.T, typ transform.Type, n int) (Map, *transform.PointSet) {
	t.Helper()
	ps := transform.NewPointSet(typ, square(n))
	ix := spatial.New(ps, transform.Target)
	t.Cleanup(ix.Close)
	return ForType(ps, ix, DefaultSearchRadiusPx), ps
}

func mouseEvent(phase input.Phase, held, changed input.Buttons, mods input.Modifiers, at transform.Point, sel ...int) input.Event {
	raw := input.Raw{Source: input.Mouse, Phase: phase, Changed: changed, State: input.State{Buttons: held, Modifiers: mods}}
	return input.NewEvent(raw, input.Camera{Scale: 1}, at, sel)
}

func keyEvent(key fyne.KeyName, mods input.Modifiers, sel ...int) input.Event {
	raw := input.Raw{Source: input.Keyboard, Phase: input.Press, Key: key, State: input.State{Modifiers: mods}}
	return input.NewEvent(raw, input.Camera{Scale: 1}, transform.Point{Y: -500, X: -500}, sel)
}

var empty = transform.Point{Y: 50, X: 50}

func TestCreateOnEmptySpace(t *testing.T) {
	m, _ := newMap(t, transform.Mesh, 4)
	a, hits := m.Action(mouseEvent(input.Press, input.Left, input.Left, input.Shift, empty))
	assert.Equal(t, Create, a)
	assert.Empty(t, hits)

	a, _ = m.Action(mouseEvent(input.Press, input.Left, input.Left, input.Shift|input.Alt, empty))
	assert.Equal(t, CreateRegister, a)

	a, _ = m.Action(mouseEvent(input.Press, input.Left, input.Left, input.NoModifiers, empty))
	assert.Equal(t, None, a)
}

func TestGridNeverCreatesOrDeletes(t *testing.T) {
	m, _ := newMap(t, transform.Grid, 9)
	phases := []input.Phase{input.Press, input.Release, input.Drag, input.Move}
	buttons := []input.Buttons{input.NoButtons, input.Left, input.Right, input.Middle, input.Left | input.Right}
	mods := []input.Modifiers{0, input.Shift, input.Ctrl, input.Alt, input.Shift | input.Alt, input.Shift | input.Ctrl | input.Alt}
	positions := []transform.Point{{Y: 0, X: 0}, {Y: 100, X: 200}, empty}
	for _, ph := range phases {
		for _, b := range buttons {
			for _, c := range buttons {
				for _, md := range mods {
					for _, p := range positions {
						a, _ := m.Action(mouseEvent(ph, b, c, md, p, 0, 1))
						assert.False(t, a&(Create|CreateRegister|Delete) != 0, "phase=%v held=%v changed=%v mods=%v got %v", ph, b, c, md, a)
					}
				}
			}
		}
	}
	a, _ := m.Action(keyEvent(fyne.KeySpace, input.Shift))
	assert.Equal(t, None, a)
	a, _ = m.Action(keyEvent(fyne.KeySpace, 0))
	assert.Equal(t, Register, a)
}

func TestRigidFindsNothing(t *testing.T) {
	m, _ := newMap(t, transform.Rigid, 6)
	for _, p := range []transform.Point{{}, {Y: 100, X: 100}, empty} {
		for _, r := range []float64{0, 1, 10, 1e6} {
			assert.Empty(t, m.FindInteractions(p, r))
		}
	}
	a, _ := m.Action(mouseEvent(input.Press, input.Left, input.Left, input.Shift, transform.Point{}))
	assert.Equal(t, None, a)
	assert.False(t, m.HasPotentialInteractions(transform.Point{}, input.Camera{Scale: 1}))
}

func TestSelectToggleTranslateRelease(t *testing.T) {
	m, _ := newMap(t, transform.Mesh, 6)
	on := transform.Point{Y: 2, X: 3}

	a, hits := m.Action(mouseEvent(input.Press, input.Left, input.Left, 0, on))
	assert.Equal(t, Select, a)
	assert.Equal(t, []int{0}, hits)

	a, _ = m.Action(mouseEvent(input.Press, input.Left, input.Left, input.Shift, on))
	assert.Equal(t, ToggleSelection, a)

	a, _ = m.Action(mouseEvent(input.Press, input.Left, input.Left, input.Shift|input.Alt, on))
	assert.Equal(t, Register, a)

	a, _ = m.Action(mouseEvent(input.Drag, input.Left, 0, 0, on))
	assert.Equal(t, Translate, a)

	a, _ = m.Action(mouseEvent(input.Drag, input.Left, 0, input.Ctrl, on))
	assert.Equal(t, TranslateAll, a)

	a, _ = m.Action(mouseEvent(input.Release, 0, input.Left, 0, on))
	assert.Equal(t, ReplaceSelection, a)
}

func TestDeleteRespectsMinimumPoints(t *testing.T) {
	on := transform.Point{Y: 0, X: 100}

	m, _ := newMap(t, transform.Mesh, 4)
	a, _ := m.Action(mouseEvent(input.Press, input.Right, input.Right, input.Shift, on, 0, 1))
	assert.Equal(t, None, a, "4 - 2 leaves fewer than 3")

	m, _ = newMap(t, transform.Mesh, 5)
	a, hits := m.Action(mouseEvent(input.Press, input.Right, input.Right, input.Shift, on, 0, 1))
	assert.Equal(t, Delete, a)
	assert.Equal(t, []int{1}, hits)

	a, _ = m.Action(mouseEvent(input.Press, input.Right, input.Right, 0, on, 0, 1))
	assert.Equal(t, None, a, "delete needs shift")
}

func TestRadiusScalesWithCamera(t *testing.T) {
	ps := transform.NewPointSet(transform.Mesh, square(9))
	ix := spatial.New(ps, transform.Target)
	defer ix.Close()
	m := ForType(ps, ix, DefaultSearchRadiusPx)

	queries := []transform.Point{{Y: 3, X: 4}, {Y: 95, X: 190}, {Y: 150, X: 150}, {Y: 201, X: 99}}
	for _, s := range []float64{0.25, 0.5, 2, 4, 7.5} {
		for _, p := range queries {
			for _, r := range []float64{1, 5, 12, 40} {
				scaled := m.FindInteractions(p, PickRadius(input.Camera{Scale: s}, r))
				unit := m.FindInteractions(p, PickRadius(input.Camera{Scale: 1}, r*s))
				assert.Equal(t, unit, scaled, "scale=%v p=%v r=%v", s, p, r)
			}
		}
	}
}

func TestKeyboardRegister(t *testing.T) {
	m, ps := newMap(t, transform.Mesh, 4)
	a, _ := m.Action(keyEvent(fyne.KeySpace, input.Shift))
	assert.Equal(t, RegisterAll, a)
	a, _ = m.Action(keyEvent(fyne.KeySpace, 0, 1))
	assert.Equal(t, Register, a)
	a, _ = m.Action(keyEvent(fyne.KeyReturn, 0))
	assert.Equal(t, None, a)

	ps.SetType(transform.Rigid)
	m = ForType(ps, nil, 0)
	a, _ = m.Action(keyEvent(fyne.KeySpace, input.Shift))
	assert.Equal(t, None, a)
}

func TestPossibleActionsAndCursor(t *testing.T) {
	m, _ := newMap(t, transform.Mesh, 6)
	flags, _ := m.PossibleActions(mouseEvent(input.Move, 0, 0, input.Shift, empty))
	assert.True(t, flags.Has(Create))
	assert.Equal(t, desktop.CrosshairCursor, CursorFor(flags))

	flags, hits := m.PossibleActions(mouseEvent(input.Move, 0, 0, input.Shift, transform.Point{}))
	require.Equal(t, []int{0}, hits)
	assert.True(t, flags.Has(Translate|Delete|ToggleSelection))
	assert.Equal(t, desktop.PointerCursor, CursorFor(flags))

	flags, _ = m.PossibleActions(mouseEvent(input.Move, 0, 0, 0, empty))
	assert.Equal(t, RegisterAll, flags)
	assert.Equal(t, desktop.DefaultCursor, CursorFor(flags))
}

func TestActionString(t *testing.T) {
	assert.Equal(t, "none", None.String())
	assert.Equal(t, "create|delete", (Create | Delete).String())
	assert.Equal(t, []int{1, 2, 5}, Union([]int{5, 1}, []int{2, 5}))
}
