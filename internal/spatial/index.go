/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except
 * in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the
 *  specific language governing permissions and limitations under the License.
 */

// Package spatial answers "which control points are near this position"
// for one space of a transform. The quadtree is rebuilt lazily on the first
// query after the transform reports a change.
package spatial

import (
	"log/slog"
	"sort"
	"sync"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/planar"
	"github.com/paulmach/orb/quadtree"

	applog "gopyre/internal/log"
	"gopyre/internal/transform"
)

type indexedPoint struct {
	index int
	at    orb.Point
}

func (p indexedPoint) Point() orb.Point { return p.at }

// Index is a nearest-within-radius lookup over one space of a transform.
type Index struct {
	tc    transform.Controller
	space transform.Space
	log   *slog.Logger

	mu       sync.Mutex
	dirty    bool
	tree     *quadtree.Quadtree
	count    int
	listener transform.ListenerID
}

// New builds an index over tc in space s and keeps it current by listening
// to the transform's change notifications. Call Close to detach.
func New(tc transform.Controller, s transform.Space) *Index {
	ix := &Index{tc: tc, space: s, dirty: true, log: applog.WithComponent("spatial")}
	ix.listener = tc.AddOnChangeEventListener(func(transform.Change) { ix.Invalidate() })
	return ix
}

// Space reports which side of the transform the index covers.
func (ix *Index) Space() transform.Space { return ix.space }

// Invalidate forces a rebuild on the next query.
func (ix *Index) Invalidate() {
	ix.mu.Lock()
	ix.dirty = true
	ix.mu.Unlock()
}

// Close detaches the index from its transform.
func (ix *Index) Close() { ix.tc.RemoveOnChangeEventListener(ix.listener) }

// FindNearestWithin returns, in ascending order, every point index whose
// Euclidean distance to p is at most radius.
func (ix *Index) FindNearestWithin(p transform.Point, radius float64) []int {
	if radius < 0 {
		return nil
	}
	ix.mu.Lock()
	defer ix.mu.Unlock()
	if ix.dirty {
		ix.rebuildLocked()
	}
	if ix.tree == nil {
		return nil
	}
	center := orb.Point{p.X, p.Y}
	b := orb.Bound{Min: orb.Point{p.X - radius, p.Y - radius}, Max: orb.Point{p.X + radius, p.Y + radius}}
	hits := ix.tree.InBoundMatching(nil, b, func(op orb.Pointer) bool {
		return planar.Distance(center, op.Point()) <= radius
	})
	out := make([]int, 0, len(hits))
	for _, h := range hits {
		out = append(out, h.(indexedPoint).index)
	}
	sort.Ints(out)
	return out
}

func (ix *Index) rebuildLocked() {
	pts := ix.tc.Points()
	ix.dirty = false
	ix.count = len(pts)
	if len(pts) == 0 {
		ix.tree = nil
		return
	}
	mp := make(orb.MultiPoint, len(pts))
	for i, cp := range pts {
		at := cp.In(ix.space)
		mp[i] = orb.Point{at.X, at.Y}
	}
	ix.tree = quadtree.New(mp.Bound().Pad(1))
	for i, at := range mp {
		if err := ix.tree.Add(indexedPoint{index: i, at: at}); err != nil {
			ix.log.Warn("control point skipped by index", slog.Int("index", i), slog.Any("err", err))
		}
	}
	ix.log.Debug("index rebuilt", slog.String("space", ix.space.String()), slog.Int("points", len(pts)))
}
