/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except
 * in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the
 *  specific language governing permissions and limitations under the License.
 */

package transform

import (
	"fmt"
	"sort"
	"sync"
)

// ChangeKind describes what happened to a transform.
type ChangeKind int

const (
	PointsAdded ChangeKind = iota
	PointsRemoved
	PointsMoved
	PointsReset
	TypeChanged
)

// Change is delivered to listeners after a transform mutation.
// Indices lists the affected points where that is meaningful.
type Change struct {
	Kind    ChangeKind
	Indices []int
	Count   int // point count after the change
}

// ListenerID identifies a registered change listener.
type ListenerID int

// Controller is the editing surface's view of the transform.
// All mutations happen on the UI thread; Points returns a copy that worker
// goroutines may read freely.
type Controller interface {
	Points() []ControlPoint
	NumPoints() int
	Type() Type
	AddPoint(cp ControlPoint) (int, error)
	RemovePoints(indices []int) error
	// MovePoints shifts every listed point by delta in space s. It returns the
	// indices the points have after the move, which may differ from the input
	// when the transform renumbers its points.
	MovePoints(indices []int, delta Point, s Space) ([]int, error)
	// TranslatePoints applies a distinct offset per point as one mutation.
	TranslatePoints(offsets map[int]Point, s Space) error
	SetPoints(points []ControlPoint)
	// MapPoint converts a position from one space to the other.
	MapPoint(p Point, from, to Space) Point
	AddOnChangeEventListener(fn func(Change)) ListenerID
	RemoveOnChangeEventListener(id ListenerID)
}

// PointSet is an in-memory Controller. It keeps point order stable and
// reports capability errors for the transform families that lack them.
type PointSet struct {
	mu        sync.RWMutex
	typ       Type
	points    []ControlPoint
	listeners map[ListenerID]func(Change)
	nextID    ListenerID
}

// NewPointSet returns a controller of type t holding a copy of points.
func NewPointSet(t Type, points []ControlPoint) *PointSet {
	return &PointSet{
		typ:       t,
		points:    append([]ControlPoint(nil), points...),
		listeners: make(map[ListenerID]func(Change)),
	}
}

func (ps *PointSet) Points() []ControlPoint {
	ps.mu.RLock()
	defer ps.mu.RUnlock()
	return append([]ControlPoint(nil), ps.points...)
}

func (ps *PointSet) NumPoints() int {
	ps.mu.RLock()
	defer ps.mu.RUnlock()
	return len(ps.points)
}

func (ps *PointSet) Type() Type {
	ps.mu.RLock()
	defer ps.mu.RUnlock()
	return ps.typ
}

// SetType converts the transform to another family, keeping its points.
func (ps *PointSet) SetType(t Type) {
	ps.mu.Lock()
	ps.typ = t
	n := len(ps.points)
	ps.mu.Unlock()
	ps.notify(Change{Kind: TypeChanged, Count: n})
}

func (ps *PointSet) AddPoint(cp ControlPoint) (int, error) {
	ps.mu.Lock()
	if !CapabilitiesOf(ps.typ).AddRemove {
		t := ps.typ
		ps.mu.Unlock()
		return -1, fmt.Errorf("add point to %s transform: %w", t, ErrNotSupported)
	}
	ps.points = append(ps.points, cp)
	idx := len(ps.points) - 1
	n := len(ps.points)
	ps.mu.Unlock()
	ps.notify(Change{Kind: PointsAdded, Indices: []int{idx}, Count: n})
	return idx, nil
}

func (ps *PointSet) RemovePoints(indices []int) error {
	if len(indices) == 0 {
		return nil
	}
	ps.mu.Lock()
	if !CapabilitiesOf(ps.typ).AddRemove {
		t := ps.typ
		ps.mu.Unlock()
		return fmt.Errorf("remove points from %s transform: %w", t, ErrNotSupported)
	}
	sorted := append([]int(nil), indices...)
	sort.Ints(sorted)
	for _, i := range sorted {
		if i < 0 || i >= len(ps.points) {
			ps.mu.Unlock()
			return fmt.Errorf("remove points: index %d out of range [0,%d)", i, len(ps.points))
		}
	}
	drop := make(map[int]bool, len(sorted))
	for _, i := range sorted {
		drop[i] = true
	}
	kept := ps.points[:0:0]
	for i, p := range ps.points {
		if !drop[i] {
			kept = append(kept, p)
		}
	}
	ps.points = kept
	n := len(kept)
	ps.mu.Unlock()
	ps.notify(Change{Kind: PointsRemoved, Indices: sorted, Count: n})
	return nil
}

func (ps *PointSet) MovePoints(indices []int, delta Point, s Space) ([]int, error) {
	ps.mu.Lock()
	for _, i := range indices {
		if i < 0 || i >= len(ps.points) {
			ps.mu.Unlock()
			return nil, fmt.Errorf("move points: index %d out of range [0,%d)", i, len(ps.points))
		}
	}
	for _, i := range indices {
		ps.points[i] = ps.points[i].Moved(delta, s)
	}
	n := len(ps.points)
	ps.mu.Unlock()
	out := append([]int(nil), indices...)
	ps.notify(Change{Kind: PointsMoved, Indices: out, Count: n})
	return out, nil
}

func (ps *PointSet) TranslatePoints(offsets map[int]Point, s Space) error {
	if len(offsets) == 0 {
		return nil
	}
	ps.mu.Lock()
	keys := make([]int, 0, len(offsets))
	for i := range offsets {
		if i < 0 || i >= len(ps.points) {
			ps.mu.Unlock()
			return fmt.Errorf("translate points: index %d out of range [0,%d)", i, len(ps.points))
		}
		keys = append(keys, i)
	}
	sort.Ints(keys)
	for _, i := range keys {
		ps.points[i] = ps.points[i].Moved(offsets[i], s)
	}
	n := len(ps.points)
	ps.mu.Unlock()
	ps.notify(Change{Kind: PointsMoved, Indices: keys, Count: n})
	return nil
}

func (ps *PointSet) SetPoints(points []ControlPoint) {
	ps.mu.Lock()
	ps.points = append([]ControlPoint(nil), points...)
	n := len(ps.points)
	ps.mu.Unlock()
	ps.notify(Change{Kind: PointsReset, Count: n})
}

// MapPoint shifts p by the mean displacement between the two spaces. This is
// a stand-in for the real transform's forward/inverse mapping.
func (ps *PointSet) MapPoint(p Point, from, to Space) Point {
	if from == to {
		return p
	}
	ps.mu.RLock()
	defer ps.mu.RUnlock()
	if len(ps.points) == 0 {
		return p
	}
	var sum Point
	for _, cp := range ps.points {
		sum = sum.Add(cp.In(to).Sub(cp.In(from)))
	}
	return p.Add(sum.Scale(1 / float64(len(ps.points))))
}

func (ps *PointSet) AddOnChangeEventListener(fn func(Change)) ListenerID {
	ps.mu.Lock()
	defer ps.mu.Unlock()
	ps.nextID++
	ps.listeners[ps.nextID] = fn
	return ps.nextID
}

func (ps *PointSet) RemoveOnChangeEventListener(id ListenerID) {
	ps.mu.Lock()
	defer ps.mu.Unlock()
	delete(ps.listeners, id)
}

func (ps *PointSet) notify(c Change) {
	ps.mu.RLock()
	ids := make([]int, 0, len(ps.listeners))
	for id := range ps.listeners {
		ids = append(ids, int(id))
	}
	sort.Ints(ids)
	fns := make([]func(Change), 0, len(ids))
	for _, id := range ids {
		fns = append(fns, ps.listeners[ListenerID(id)])
	}
	ps.mu.RUnlock()
	for _, fn := range fns {
		fn(c)
	}
}
