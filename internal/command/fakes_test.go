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
	"context"
	"sync"
	"testing"

	"fyne.io/fyne/v2"
	"github.com/stretchr/testify/require"

	"gopyre/internal/input"
	"gopyre/internal/registration"
	"gopyre/internal/selection"
	"gopyre/internal/spatial"
	"gopyre/internal/transform"
)

type savedState struct {
	label    string
	previous []transform.ControlPoint
}

type fakeHistory struct{ saved []savedState }

func (h *fakeHistory) SaveState(label string, previous []transform.ControlPoint) {
	h.saved = append(h.saved, savedState{label: label, previous: previous})
}

type fakePointer struct{ state input.State }

func (p *fakePointer) State() input.State { return p.state }

func (p *fakePointer) hold(b input.Buttons)    { p.state.Buttons |= b }
func (p *fakePointer) release(b input.Buttons) { p.state.Buttons &^= b }

// fakeRegistrar answers per point index. Points listed in hang never
// resolve when dispatched.
type fakeRegistrar struct {
	pool *registration.Pool

	mu         sync.Mutex
	recs       map[int]*registration.Record
	errs       map[int]error
	hang       map[int]bool
	searches   int
	dispatches int
}

func newFakeRegistrar() *fakeRegistrar {
	return &fakeRegistrar{
		pool: registration.NewPool(2),
		recs: map[int]*registration.Record{},
		errs: map[int]error{},
		hang: map[int]bool{},
	}
}

func (f *fakeRegistrar) offset(i int, dy, dx float64) {
	f.recs[i] = &registration.Record{Index: i, Offset: transform.Point{Y: dy, X: dx}, Weight: 0.8}
}

func (f *fakeRegistrar) answer(req registration.Request) (*registration.Record, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.errs[req.Index]; err != nil {
		return nil, err
	}
	return f.recs[req.Index], nil
}

func (f *fakeRegistrar) Dispatch(ctx context.Context, req registration.Request) *registration.Future[*registration.Record] {
	f.mu.Lock()
	f.dispatches++
	hang := f.hang[req.Index]
	f.mu.Unlock()
	if hang {
		fut, _ := registration.NewFuture[*registration.Record]()
		return fut
	}
	return registration.Submit(ctx, f.pool, func(context.Context) (*registration.Record, error) {
		return f.answer(req)
	})
}

func (f *fakeRegistrar) Search(_ context.Context, req registration.Request) (*registration.Record, error) {
	f.mu.Lock()
	f.searches++
	f.mu.Unlock()
	return f.answer(req)
}

type fakeSink struct{ batches [][]registration.Outcome }

func (s *fakeSink) SaveOutcomes(_ context.Context, batch []registration.Outcome) error {
	s.batches = append(s.batches, batch)
	return nil
}

// renumbering reverses the order of the indices MovePoints reports, the way
// a re-triangulating transform may hand back different indices.
type renumbering struct {
	*transform.PointSet
}

func (r renumbering) MovePoints(indices []int, delta transform.Point, s transform.Space) ([]int, error) {
	if _, err := r.PointSet.MovePoints(indices, delta, s); err != nil {
		return nil, err
	}
	n := r.NumPoints()
	out := make([]int, len(indices))
	for i, v := range indices {
		out[i] = n - 1 - v
	}
	return out, nil
}

type rig struct {
	ps   *transform.PointSet
	env  *Env
	hist *fakeHistory
	ptr  *fakePointer
	reg  *fakeRegistrar
	sink *fakeSink
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

func newRig(t *testing.T, typ transform.Type, n int) *rig {
	t.Helper()
	ps := transform.NewPointSet(typ, line(n))
	return newRigFor(t, ps, ps)
}

func newRigFor(t *testing.T, ps *transform.PointSet, tc transform.Controller) *rig {
	t.Helper()
	ix := spatial.New(tc, transform.Target)
	t.Cleanup(ix.Close)
	r := &rig{ps: ps, hist: &fakeHistory{}, ptr: &fakePointer{}, reg: newFakeRegistrar(), sink: &fakeSink{}}
	r.env = &Env{
		Ctx:       context.Background(),
		Transform: tc,
		Selection: selection.NewIndices(),
		Queue:     NewQueue(),
		Index:     ix,
		Mouse:     &input.MouseHistory{},
		Pointer:   r.ptr,
		Space:     transform.Target,
		History:   r.hist,
		Registrar: r.reg,
		Results:   r.sink,
		SourceKey: "source",
		TargetKey: "target",
		Settings:  DefaultSettings(),
	}
	return r
}

// mouseAt records the pointer in both spaces, as the editing surface does.
func (r *rig) mouseAt(target transform.Point) {
	r.env.Mouse.Set(transform.Target, target)
	r.env.Mouse.Set(transform.Source, target.Add(transform.Point{Y: 5}))
}

func (r *rig) event(phase input.Phase, changed input.Buttons, mods input.Modifiers, cam input.Camera, screen fyne.Position) input.Event {
	world := cam.ScreenToWorld(screen)
	r.mouseAt(world)
	raw := input.Raw{Source: input.Mouse, Phase: phase, Changed: changed, Screen: screen,
		State: input.State{Buttons: r.ptr.state.Buttons, Modifiers: mods}}
	return input.NewEvent(raw, cam, world, r.env.Selection.Values())
}

func (r *rig) key(k fyne.KeyName, mods input.Modifiers, cam input.Camera) input.Event {
	raw := input.Raw{Source: input.Keyboard, Phase: input.Press, Key: k, State: input.State{Buttons: r.ptr.state.Buttons, Modifiers: mods}}
	return input.NewEvent(raw, cam, r.env.Mouse.Get(transform.Target), r.env.Selection.Values())
}

// next pops and activates the next queued command.
func (r *rig) next(t *testing.T) Command {
	t.Helper()
	c, ok := r.env.Queue.TryGet()
	require.True(t, ok, "queue is empty")
	require.NoError(t, c.Activate())
	return c
}

var unit = input.Camera{Scale: 1}
