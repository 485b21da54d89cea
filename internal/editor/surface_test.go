/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except
 * in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the
 *  specific language governing permissions and limitations under the License.
 */

package editor

import (
	"context"
	"errors"
	"sync"
	"testing"

	"fyne.io/fyne/v2"
	"fyne.io/fyne/v2/driver/desktop"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gopyre/internal/action"
	"gopyre/internal/command"
	"gopyre/internal/input"
	"gopyre/internal/registration"
	"gopyre/internal/telemetry"
	"gopyre/internal/transform"
)

type fakeRegistrar struct {
	mu     sync.Mutex
	offset map[int]transform.Point
}

func (f *fakeRegistrar) record(req registration.Request) *registration.Record {
	f.mu.Lock()
	defer f.mu.Unlock()
	off, ok := f.offset[req.Index]
	if !ok {
		return nil
	}
	return &registration.Record{Index: req.Index, Offset: off, Weight: 1}
}

func (f *fakeRegistrar) Dispatch(_ context.Context, req registration.Request) *registration.Future[*registration.Record] {
	return registration.Resolved(f.record(req), nil)
}

func (f *fakeRegistrar) Search(_ context.Context, req registration.Request) (*registration.Record, error) {
	return f.record(req), nil
}

type fakeTelemetry struct{ events []map[string]any }

func (f *fakeTelemetry) Event(name string, props map[string]any) {
	ev := map[string]any{"name": name}
	for k, v := range props {
		ev[k] = v
	}
	f.events = append(f.events, ev)
}

func (f *fakeTelemetry) completed() []string {
	var out []string
	for _, ev := range f.events {
		if ev["name"] == telemetry.EventCommandCompleted {
			out = append(out, ev["command"].(string)+":"+ev["result"].(string))
		}
	}
	return out
}

type fakeCheckpoints struct {
	labels []string
	counts []int
	err    error
}

func (f *fakeCheckpoints) SaveCheckpoint(_ context.Context, label string, points []transform.ControlPoint) error {
	f.labels = append(f.labels, label)
	f.counts = append(f.counts, len(points))
	return f.err
}

type harness struct {
	t    *testing.T
	ps   *transform.PointSet
	loop *Loop
	s    *Surface
	reg  *fakeRegistrar
	tel  *fakeTelemetry
	cps  *fakeCheckpoints
	held input.Buttons
}

// line returns n points 100 units apart along x; source sits 5 below target.
func line(n int) []transform.ControlPoint {
	out := make([]transform.ControlPoint, n)
	for i := range out {
		x := float64(i * 100)
		out[i] = transform.ControlPoint{TargetY: 0, TargetX: x, SourceY: 5, SourceX: x}
	}
	return out
}

func newHarness(t *testing.T, typ transform.Type, n int) *harness {
	t.Helper()
	h := &harness{
		t:    t,
		ps:   transform.NewPointSet(typ, line(n)),
		loop: NewLoop(),
		reg:  &fakeRegistrar{offset: map[int]transform.Point{}},
		tel:  &fakeTelemetry{},
		cps:  &fakeCheckpoints{},
	}
	h.s = New(h.ps, h.loop, Options{
		Space:       transform.Target,
		Registrar:   h.reg,
		Checkpoints: h.cps,
		Telemetry:   h.tel,
	})
	t.Cleanup(h.s.Close)
	h.s.Start()
	return h
}

func (h *harness) mouse(phase input.Phase, changed input.Buttons, mods input.Modifiers, x, y float32) {
	switch phase {
	case input.Press:
		h.held |= changed
	case input.Release:
		h.held &^= changed
	}
	h.s.HandleRaw(input.Raw{Source: input.Mouse, Phase: phase, Changed: changed, Screen: fyne.NewPos(x, y),
		State: input.State{Buttons: h.held, Modifiers: mods}})
	h.loop.RunPending()
}

func (h *harness) key(k fyne.KeyName, mods input.Modifiers) {
	h.s.HandleRaw(input.Raw{Source: input.Keyboard, Phase: input.Press, Key: k,
		State: input.State{Buttons: h.held, Modifiers: mods}})
	h.loop.RunPending()
}

func (h *harness) requireIdle() {
	h.t.Helper()
	_, ok := h.s.Current().(*command.Default)
	require.True(h.t, ok, "expected idle default, got %T", h.s.Current())
	require.Equal(h.t, command.Active, h.s.Current().Status())
}

// assertSelectionValid checks that no selected index is stale.
func (h *harness) assertSelectionValid() {
	h.t.Helper()
	n := h.ps.NumPoints()
	for _, v := range h.s.Selection().Values() {
		assert.Less(h.t, v, n, "stale selection index")
	}
}

func TestStartActivatesDefault(t *testing.T) {
	h := newHarness(t, transform.Mesh, 4)
	h.requireIdle()
	assert.Equal(t, 0, h.s.Queue().Len())
}

func TestClickSelectsAndDragTranslates(t *testing.T) {
	h := newHarness(t, transform.Mesh, 4)
	h.mouse(input.Press, input.Left, 0, 100, 0)
	assert.Equal(t, []int{1}, h.s.Selection().Values())
	h.requireIdle()

	h.mouse(input.Drag, 0, 0, 110, 3)
	tr, ok := h.s.Current().(*command.Translate)
	require.True(t, ok, "drag on a selected point starts a translate")
	assert.Equal(t, command.Active, tr.Status())
	assert.Equal(t, transform.Point{Y: 3, X: 110}, h.ps.Points()[1].In(transform.Target))
	assert.Equal(t, desktop.PointerCursor, h.s.CursorHint())

	h.mouse(input.Drag, 0, 0, 120, 6)
	h.mouse(input.Release, input.Left, 0, 120, 6)
	assert.Equal(t, command.Executed, tr.Result())
	h.requireIdle()
	assert.Equal(t, transform.Point{Y: 6, X: 120}, h.ps.Points()[1].In(transform.Target))
	assert.Equal(t, []string{"translate:executed"}, h.tel.completed())
	assert.Equal(t, []string{"translate"}, h.cps.labels)

	assert.True(t, h.s.Undo())
	assert.Equal(t, line(4), h.ps.Points())
	assert.True(t, h.s.Redo())
	assert.Equal(t, transform.Point{Y: 6, X: 120}, h.ps.Points()[1].In(transform.Target))
}

func TestMouseHistoryTracksBothSpaces(t *testing.T) {
	h := newHarness(t, transform.Mesh, 4)
	h.s.SetCamera(input.Camera{Origin: transform.Point{Y: 10, X: 20}, Scale: 2})
	h.mouse(input.Move, 0, 0, 5, 5)
	assert.Equal(t, transform.Point{Y: 20, X: 30}, h.s.Mouse(transform.Target))
	assert.Equal(t, transform.Point{Y: 25, X: 30}, h.s.Mouse(transform.Source), "mapped by the mean displacement")
}

func TestShiftClickCreatesOnNextIdleTick(t *testing.T) {
	h := newHarness(t, transform.Mesh, 4)
	h.s.HandleRaw(input.Raw{Source: input.Mouse, Phase: input.Press, Changed: input.Left, Screen: fyne.NewPos(50, 50),
		State: input.State{Buttons: input.Left, Modifiers: input.Shift}})
	h.s.HandleRaw(input.Raw{Source: input.Mouse, Phase: input.Release, Changed: input.Left, Screen: fyne.NewPos(50, 50),
		State: input.State{Modifiers: input.Shift}})
	c, ok := h.s.Current().(*command.Create)
	require.True(t, ok)
	assert.Equal(t, 4, h.ps.NumPoints(), "creation waits for the loop")

	h.loop.RunPending()
	assert.Equal(t, command.Executed, c.Result())
	require.Equal(t, 5, h.ps.NumPoints())
	assert.Equal(t, transform.ControlPoint{TargetY: 50, TargetX: 50, SourceY: 55, SourceX: 50}, h.ps.Points()[4])
	h.requireIdle()
}

func TestCreateWhileHeldChainsTranslate(t *testing.T) {
	h := newHarness(t, transform.Mesh, 4)
	h.mouse(input.Press, input.Left, input.Shift, 50, 50)
	tr, ok := h.s.Current().(*command.Translate)
	require.True(t, ok, "held button hands the new point to a translate, got %T", h.s.Current())
	assert.Equal(t, []int{4}, h.s.Selection().Values())

	h.mouse(input.Drag, 0, 0, 60, 55)
	h.mouse(input.Release, input.Left, 0, 60, 55)
	assert.Equal(t, command.Executed, tr.Result())
	h.requireIdle()
	assert.Equal(t, transform.Point{Y: 55, X: 60}, h.ps.Points()[4].In(transform.Target))
	assert.Equal(t, []string{"translate:executed", "create:executed"}, h.tel.completed(), "the child is reported first")
	assert.Equal(t, []string{"create"}, h.cps.labels, "one undo step for create and drag")

	h.key(fyne.KeyZ, input.Ctrl)
	assert.Equal(t, 4, h.ps.NumPoints())
	assert.Empty(t, h.s.Selection().Values(), "undo prunes the selection")
	h.key(fyne.KeyY, input.Ctrl)
	assert.Equal(t, 5, h.ps.NumPoints())
}

func TestCreateRegisterReportsChildrenBeforeParent(t *testing.T) {
	h := newHarness(t, transform.Mesh, 4)
	h.reg.offset[4] = transform.Point{Y: 0.5, X: 1}
	var order []string
	h.s.OnCommandCompleted(func(c command.Completion) { order = append(order, c.Command.Name()) })

	h.mouse(input.Press, input.Left, input.Shift|input.Alt, 50, 50)
	require.IsType(t, &command.Translate{}, h.s.Current())
	h.mouse(input.Drag, 0, 0, 60, 55)
	h.mouse(input.Release, input.Left, 0, 60, 55)
	h.requireIdle()

	assert.Equal(t, transform.Point{Y: 55.5, X: 61}, h.ps.Points()[4].In(transform.Target))
	assert.Equal(t, []string{"translate", "register", "create_register"}, order)
	assert.Equal(t, []string{"translate:executed", "register:executed", "create_register:executed"}, h.tel.completed())
	assert.Equal(t, []string{"create_register"}, h.cps.labels)
}

func TestShiftRightClickDeletesAndKeepsSelectionValid(t *testing.T) {
	h := newHarness(t, transform.Mesh, 5)
	h.mouse(input.Press, input.Left, 0, 400, 0)
	h.mouse(input.Release, input.Left, 0, 400, 0)
	require.Equal(t, []int{4}, h.s.Selection().Values())

	h.mouse(input.Press, input.Right, input.Shift, 100, 0)
	h.mouse(input.Release, input.Right, 0, 100, 0)
	h.requireIdle()
	assert.Equal(t, 3, h.ps.NumPoints())
	h.assertSelectionValid()
	assert.Empty(t, h.s.Selection().Values())

	h.mouse(input.Press, input.Right, input.Shift, 0, 0)
	h.mouse(input.Release, input.Right, 0, 0, 0)
	assert.Equal(t, 3, h.ps.NumPoints(), "delete below the minimum is refused")
}

func TestSpaceRegistersSelection(t *testing.T) {
	h := newHarness(t, transform.Mesh, 4)
	h.reg.offset[2] = transform.Point{Y: 1.5, X: -2}
	h.mouse(input.Press, input.Left, 0, 200, 0)
	h.mouse(input.Release, input.Left, 0, 200, 0)
	h.key(fyne.KeySpace, 0)
	h.requireIdle()
	assert.Equal(t, transform.Point{Y: 1.5, X: 198}, h.ps.Points()[2].In(transform.Target))
	assert.Equal(t, []string{"register:executed"}, h.tel.completed())
}

func TestSubmitMakesIdleDefaultYield(t *testing.T) {
	h := newHarness(t, transform.Mesh, 4)
	h.reg.offset[0] = transform.Point{X: 1}
	h.reg.offset[1] = transform.Point{X: 1}
	h.reg.offset[3] = transform.Point{X: 1}
	idle := h.s.Current()
	var done []command.Completion
	h.s.OnCommandCompleted(func(c command.Completion) { done = append(done, c) })

	require.NoError(t, h.s.Submit(action.RegisterAll))
	assert.Equal(t, command.Active, idle.Status(), "nothing runs until the loop turns")
	h.loop.RunPending()
	assert.Equal(t, command.Canceled, idle.Result())
	h.requireIdle()
	assert.NotSame(t, idle, h.s.Current())
	assert.Equal(t, 3, h.ps.NumPoints(), "the unaligned point is removed")
	assert.Equal(t, []string{"register_all:executed"}, h.tel.completed())
	require.Len(t, done, 1, "the cancelled default is not reported")
	assert.Equal(t, "register_all", done[0].Command.Name())
	assert.Equal(t, command.Executed, done[0].Result)
}

func TestSubmitUnsupported(t *testing.T) {
	h := newHarness(t, transform.Grid, 4)
	err := h.s.Submit(action.RegisterAll)
	assert.True(t, errors.Is(err, transform.ErrNotSupported))
	err = h.s.Submit(action.Delete)
	assert.True(t, errors.Is(err, transform.ErrNotSupported))
	assert.Equal(t, 0, h.s.Queue().Len())
}

func TestUndoRefusedWhileCommandRuns(t *testing.T) {
	h := newHarness(t, transform.Mesh, 4)
	h.mouse(input.Press, input.Left, 0, 100, 0)
	h.mouse(input.Drag, 0, 0, 130, 0)
	h.mouse(input.Release, input.Left, 0, 130, 0)

	h.mouse(input.Press, input.Left, 0, 130, 0)
	h.mouse(input.Drag, 0, 0, 150, 0)
	require.IsType(t, &command.Translate{}, h.s.Current())
	_, ok := h.s.CanUndo()
	assert.False(t, ok, "no undo offered while translating")
	assert.False(t, h.s.Undo())
	h.key(fyne.KeyZ, input.Ctrl)
	assert.Equal(t, 150.0, h.ps.Points()[1].TargetX)

	h.key(fyne.KeyEscape, 0)
	h.requireIdle()
	assert.Equal(t, 130.0, h.ps.Points()[1].TargetX, "cancel restores the snapshot")
	label, ok := h.s.CanUndo()
	assert.True(t, ok)
	assert.Equal(t, "translate", label)
	assert.True(t, h.s.Undo())
	assert.Equal(t, 100.0, h.ps.Points()[1].TargetX)
	_, ok = h.s.CanUndo()
	assert.False(t, ok, "the canceled drag left no step")
	label, ok = h.s.CanRedo()
	assert.True(t, ok)
	assert.Equal(t, "translate", label)
}

func TestCheckpointErrorIsNotFatal(t *testing.T) {
	h := newHarness(t, transform.Mesh, 4)
	h.cps.err = errors.New("disk full")
	h.mouse(input.Press, input.Left, 0, 0, 0)
	h.mouse(input.Drag, 0, 0, 0, 10)
	h.mouse(input.Release, input.Left, 0, 0, 10)
	h.requireIdle()
	assert.Equal(t, []int{4}, h.cps.counts)
	assert.True(t, h.s.Undo())
}

func TestCloseCancelsActiveCommand(t *testing.T) {
	h := newHarness(t, transform.Mesh, 4)
	h.mouse(input.Press, input.Left, 0, 100, 0)
	h.mouse(input.Drag, 0, 0, 140, 0)
	tr := h.s.Current()
	h.s.Close()
	assert.Equal(t, command.Canceled, tr.Result())
	assert.Equal(t, line(4), h.ps.Points())
	h.mouse(input.Press, input.Left, 0, 0, 0)
	assert.Same(t, tr, h.s.Current(), "closed surface ignores input")
}

func TestExternalTransformChangePrunesSelection(t *testing.T) {
	h := newHarness(t, transform.Mesh, 6)
	h.s.Selection().Replace([]int{1, 4, 5})
	h.ps.SetPoints(line(4))
	assert.Equal(t, []int{1}, h.s.Selection().Values())
}
