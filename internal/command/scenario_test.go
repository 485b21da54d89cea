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
	"image"
	"testing"

	"fyne.io/fyne/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gopyre/internal/input"
	"gopyre/internal/transform"
)

func TestShiftClickOnEmptySpaceCreatesPoint(t *testing.T) {
	r := newRig(t, transform.Mesh, 4)
	d := NewDefault(r.env)
	require.NoError(t, d.Activate())

	r.ptr.hold(input.Left)
	d.HandleInput(r.event(input.Press, input.Left, input.Shift, unit, fyne.NewPos(50, 50)))
	assert.Equal(t, Completed, d.Status())
	require.Equal(t, 1, r.env.Queue.Len())

	r.ptr.release(input.Left)
	c := r.next(t)
	assert.Equal(t, "create", c.Name())
	assert.Equal(t, Executed, c.Result())
	require.Equal(t, 5, r.ps.NumPoints())
	assert.Equal(t, transform.ControlPoint{TargetY: 50, TargetX: 50, SourceY: 55, SourceX: 50}, r.ps.Points()[4])
	assert.Equal(t, 4, c.(*Create).Index())
	require.Len(t, r.hist.saved, 1)
	assert.Len(t, r.hist.saved[0].previous, 4)
}

func TestCreateIsDeferredThroughPost(t *testing.T) {
	r := newRig(t, transform.Mesh, 4)
	var pending []func()
	r.env.Post = func(fn func()) { pending = append(pending, fn) }
	r.mouseAt(transform.Point{Y: 40, X: 40})
	c, err := NewCreate(r.env, Request{}, false)
	require.NoError(t, err)
	require.NoError(t, c.Activate())
	assert.Equal(t, 4, r.ps.NumPoints(), "nothing happens before the idle tick")
	require.Len(t, pending, 1)
	pending[0]()
	assert.Equal(t, 5, r.ps.NumPoints())
	assert.Equal(t, Executed, c.Result())
}

func TestCreateWhileHeldDragsAndCommitsOnce(t *testing.T) {
	r := newRig(t, transform.Mesh, 4)
	r.ptr.hold(input.Left)
	r.mouseAt(transform.Point{Y: 40, X: 40})
	c, err := NewCreate(r.env, Request{}, false)
	require.NoError(t, err)
	require.NoError(t, c.Activate())
	assert.Equal(t, Inactive, c.Status())
	assert.Equal(t, []int{4}, r.env.Selection.Values())

	tr := r.next(t)
	assert.Equal(t, "translate", tr.Name())
	tr.HandleInput(r.event(input.Drag, 0, 0, unit, fyne.NewPos(45, 42)))
	r.ptr.release(input.Left)
	tr.HandleInput(r.event(input.Release, input.Left, 0, unit, fyne.NewPos(45, 42)))

	assert.Equal(t, Executed, tr.Result())
	assert.Equal(t, Executed, c.Result())
	assert.Equal(t, transform.Point{Y: 42, X: 45}, r.ps.Points()[4].In(transform.Target))
	require.Len(t, r.hist.saved, 1, "one undo step for create and drag")
	assert.Equal(t, "create", r.hist.saved[0].label)
}

func TestCreateCanceledByChildRestoresPoints(t *testing.T) {
	r := newRig(t, transform.Mesh, 4)
	before := r.ps.Points()
	r.ptr.hold(input.Left)
	r.mouseAt(transform.Point{Y: 40, X: 40})
	c, err := NewCreate(r.env, Request{}, false)
	require.NoError(t, err)
	require.NoError(t, c.Activate())

	tr := r.next(t)
	tr.HandleInput(r.event(input.Drag, 0, 0, unit, fyne.NewPos(70, 60)))
	r.ptr.hold(input.Right)
	tr.HandleInput(r.event(input.Press, input.Right, 0, unit, fyne.NewPos(70, 60)))

	assert.Equal(t, Canceled, tr.Result())
	assert.Equal(t, Canceled, c.Result())
	assert.Equal(t, before, r.ps.Points())
	assert.Empty(t, r.env.Selection.Values())
	assert.Empty(t, r.hist.saved)
}

func TestCreateOnGridIsRejected(t *testing.T) {
	r := newRig(t, transform.Grid, 4)
	before := r.ps.Points()
	r.mouseAt(transform.Point{Y: 40, X: 40})
	c, err := NewCreate(r.env, Request{}, false)
	require.NoError(t, err)
	require.NoError(t, c.Activate())
	assert.Equal(t, Canceled, c.Result())
	assert.Equal(t, before, r.ps.Points())
}

func TestCreateOutsideBoundsIsRejected(t *testing.T) {
	r := newRig(t, transform.Mesh, 4)
	r.env.Bounds = image.Rect(0, 0, 100, 100)
	r.mouseAt(transform.Point{Y: 400, X: 40})
	c, err := NewCreate(r.env, Request{}, false)
	require.NoError(t, err)
	require.NoError(t, c.Activate())
	assert.Equal(t, Canceled, c.Result())
	assert.Equal(t, 4, r.ps.NumPoints())
}

func TestCreateBoundsUseThePixelUnderTheCursor(t *testing.T) {
	for _, c := range []struct {
		at   transform.Point
		want Result
	}{
		{transform.Point{Y: 40, X: -0.5}, Canceled},
		{transform.Point{Y: -0.25, X: 40}, Canceled},
		{transform.Point{Y: 40, X: 0}, Executed},
		{transform.Point{Y: 99.5, X: 99.9}, Executed},
		{transform.Point{Y: 40, X: 100}, Canceled},
	} {
		r := newRig(t, transform.Mesh, 4)
		r.env.Bounds = image.Rect(0, 0, 100, 100)
		r.mouseAt(c.at)
		cr, err := NewCreate(r.env, Request{}, false)
		require.NoError(t, err)
		require.NoError(t, cr.Activate())
		assert.Equal(t, c.want, cr.Result(), "create at %v", c.at)
	}
}

func TestCreateRegisterChainsRegistration(t *testing.T) {
	r := newRig(t, transform.Mesh, 4)
	r.reg.offset(4, 1.5, -2)
	r.mouseAt(transform.Point{Y: 40, X: 40})
	r.env.Selection.Replace([]int{0, 1})
	c, err := NewCreate(r.env, Request{}, true)
	require.NoError(t, err)
	require.NoError(t, c.Activate())
	assert.Equal(t, Inactive, c.Status())

	reg := r.next(t)
	assert.Equal(t, "register", reg.Name())
	assert.Equal(t, []int{4}, reg.(*Register).Points(), "nested register ignores the selection")
	assert.Equal(t, Executed, reg.Result())
	assert.Equal(t, Executed, c.Result())
	assert.Equal(t, 1, r.reg.searches, "a single point is searched synchronously")
	assert.Equal(t, 0, r.reg.dispatches)
	assert.Equal(t, transform.Point{Y: 41.5, X: 38}, r.ps.Points()[4].In(transform.Target))
	require.Len(t, r.hist.saved, 1)
	assert.Equal(t, "create_register", r.hist.saved[0].label)
}

func TestDeleteKeepsMinimumPoints(t *testing.T) {
	over := fyne.NewPos(100, 0)

	r := newRig(t, transform.Mesh, 4)
	r.env.Selection.Replace([]int{0, 1})
	d := NewDefault(r.env)
	require.NoError(t, d.Activate())
	r.ptr.hold(input.Right)
	d.HandleInput(r.event(input.Press, input.Right, input.Shift, unit, over))
	assert.Equal(t, 0, r.env.Queue.Len(), "4 - 2 would leave fewer than 3 points")
	assert.Equal(t, Active, d.Status())

	r = newRig(t, transform.Mesh, 5)
	r.env.Selection.Replace([]int{0, 1})
	d = NewDefault(r.env)
	require.NoError(t, d.Activate())
	r.ptr.hold(input.Right)
	d.HandleInput(r.event(input.Press, input.Right, input.Shift, unit, over))
	require.Equal(t, 1, r.env.Queue.Len())

	del := r.next(t)
	assert.Equal(t, Executed, del.Result())
	assert.Equal(t, 3, r.ps.NumPoints())
	assert.Empty(t, r.env.Selection.Values())
	assert.Equal(t, []int{0, 1}, del.(*Delete).Points())
	assert.Equal(t, []transform.ControlPoint{line(5)[2], line(5)[3], line(5)[4]}, r.ps.Points())
	require.Len(t, r.hist.saved, 1)
	assert.Equal(t, line(5), r.hist.saved[0].previous)
}

func TestDeleteOnGridCancels(t *testing.T) {
	r := newRig(t, transform.Grid, 5)
	r.env.Selection.Replace([]int{1})
	del, err := NewDelete(r.env, Request{})
	require.NoError(t, err)
	require.NoError(t, del.Activate())
	assert.Equal(t, Canceled, del.Result())
	assert.Equal(t, 5, r.ps.NumPoints())
	assert.Empty(t, r.hist.saved)
}

// dragPoint presses on point 1 and drags it by screen delta (10, -4) at
// camera scale 2.
func dragPoint(t *testing.T, r *rig) Command {
	t.Helper()
	cam := input.Camera{Scale: 2}
	d := NewDefault(r.env)
	require.NoError(t, d.Activate())

	r.ptr.hold(input.Left)
	d.HandleInput(r.event(input.Press, input.Left, 0, cam, fyne.NewPos(50, 0)))
	assert.Equal(t, []int{1}, r.env.Selection.Values())
	assert.Equal(t, Active, d.Status())

	d.HandleInput(r.event(input.Drag, 0, 0, cam, fyne.NewPos(60, -4)))
	require.Equal(t, Completed, d.Status())
	tr := r.next(t)
	require.Equal(t, "translate", tr.Name())
	return tr
}

func TestDragMovesByWorldDelta(t *testing.T) {
	r := newRig(t, transform.Mesh, 4)
	tr := dragPoint(t, r)
	got := r.ps.Points()
	assert.Equal(t, transform.Point{Y: -8, X: 120}, got[1].In(transform.Target))
	assert.Equal(t, transform.Point{Y: 5, X: 100}, got[1].In(transform.Source), "source side untouched")
	assert.Equal(t, line(4)[0], got[0])

	r.ptr.release(input.Left)
	tr.HandleInput(r.event(input.Release, input.Left, 0, input.Camera{Scale: 2}, fyne.NewPos(60, -4)))
	assert.Equal(t, Executed, tr.Result())
	require.Len(t, r.hist.saved, 1)
	assert.Equal(t, line(4), r.hist.saved[0].previous)
}

func TestRightClickMidDragRestoresExactly(t *testing.T) {
	r := newRig(t, transform.Mesh, 4)
	tr := dragPoint(t, r)
	tr.HandleInput(r.event(input.Drag, 0, 0, input.Camera{Scale: 2}, fyne.NewPos(71.3, 9.7)))
	r.ptr.hold(input.Right)
	tr.HandleInput(r.event(input.Press, input.Right, 0, input.Camera{Scale: 2}, fyne.NewPos(71.3, 9.7)))
	assert.Equal(t, Canceled, tr.Result())
	assert.Equal(t, line(4), r.ps.Points())
	assert.Empty(t, r.hist.saved)
}

func TestMotionWithRightButtonCancels(t *testing.T) {
	r := newRig(t, transform.Mesh, 4)
	tr := dragPoint(t, r)
	r.ptr.hold(input.Right)
	tr.HandleInput(r.event(input.Drag, 0, 0, input.Camera{Scale: 2}, fyne.NewPos(80, 0)))
	assert.Equal(t, Canceled, tr.Result())
	assert.Equal(t, line(4), r.ps.Points())
}

func TestTranslateAllMovesEveryPoint(t *testing.T) {
	r := newRig(t, transform.RBF, 3)
	r.ptr.hold(input.Left)
	r.mouseAt(transform.Point{})
	tr, err := NewTranslate(r.env, Request{}, true)
	require.NoError(t, err)
	assert.Equal(t, "translate_all", tr.Name())
	require.NoError(t, tr.Activate())
	tr.HandleInput(r.event(input.Drag, 0, input.Ctrl, unit, fyne.NewPos(3, 4)))
	for i, cp := range r.ps.Points() {
		assert.Equal(t, line(3)[i].In(transform.Target).Add(transform.Point{Y: 4, X: 3}), cp.In(transform.Target))
	}
}

func TestArrowKeysNudge(t *testing.T) {
	r := newRig(t, transform.Mesh, 4)
	r.env.Selection.Replace([]int{2})
	r.ptr.hold(input.Left)
	r.mouseAt(transform.Point{Y: 0, X: 200})
	tr, err := NewTranslate(r.env, Request{Origin: transform.Point{Y: 0, X: 200}}, false)
	require.NoError(t, err)
	require.NoError(t, tr.Activate())

	cam := input.Camera{Scale: 0.5}
	steps := []struct {
		key  fyne.KeyName
		mods input.Modifiers
		want transform.Point
	}{
		{fyne.KeyRight, 0, transform.Point{Y: 0, X: 200.5}},
		{fyne.KeyDown, input.Shift, transform.Point{Y: 2.5, X: 200.5}},
		{fyne.KeyLeft, input.Ctrl, transform.Point{Y: 2.5, X: 188}},
		{fyne.KeyUp, input.Shift | input.Ctrl, transform.Point{Y: -60, X: 188}},
	}
	for _, s := range steps {
		tr.HandleInput(r.key(s.key, s.mods, cam))
		assert.Equal(t, s.want, r.ps.Points()[2].In(transform.Target), "key %s mods %s", s.key, s.mods)
	}
	tr.HandleInput(r.key(fyne.KeyEscape, 0, cam))
	assert.Equal(t, Canceled, tr.Result())
	assert.Equal(t, line(4), r.ps.Points())
}

func TestRenumberedMoveReplacesSelection(t *testing.T) {
	ps := transform.NewPointSet(transform.Mesh, line(4))
	r := newRigFor(t, ps, renumbering{ps})
	r.env.Selection.Replace([]int{0, 1})
	r.ptr.hold(input.Left)
	r.mouseAt(transform.Point{})
	tr, err := NewTranslate(r.env, Request{}, false)
	require.NoError(t, err)
	require.NoError(t, tr.Activate())
	tr.HandleInput(r.event(input.Drag, 0, 0, unit, fyne.NewPos(1, 1)))
	assert.Equal(t, []int{2, 3}, r.env.Selection.Values())
	assert.ElementsMatch(t, []int{3, 2}, tr.Points())
	for _, v := range r.env.Selection.Values() {
		assert.Less(t, v, ps.NumPoints())
	}
}

func TestReleaseBeforeActivationCommitsImmediately(t *testing.T) {
	r := newRig(t, transform.Mesh, 4)
	r.env.Selection.Replace([]int{0})
	tr, err := NewTranslate(r.env, Request{}, false)
	require.NoError(t, err)
	require.NoError(t, tr.Activate())
	assert.Equal(t, Executed, tr.Result())
	assert.Empty(t, r.hist.saved, "nothing moved, nothing recorded")
}
