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
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"time"

	applog "gopyre/internal/log"
	"gopyre/internal/registration"
	"gopyre/internal/selection"
	"gopyre/internal/transform"
)

// ErrNoRegistrar is returned when registration is requested on a surface
// without images.
var ErrNoRegistrar = errors.New("no registrar configured")

// Register searches each point's best local alignment and applies every
// valid offset in one batch. With all set, points that fail to align are
// removed as long as the transform keeps its minimum point count.
//
// A task error or a timeout while joining aborts the batch: nothing is
// applied and the command cancels.
type Register struct {
	base
	all      bool
	nested   bool
	points   []int
	snapshot []transform.ControlPoint
	changed  bool
	outcomes []registration.Outcome
}

func NewRegister(env *Env, req Request, all bool) (*Register, error) {
	name := "register"
	if all {
		name = "register_all"
	}
	if env.Registrar == nil {
		return nil, fmt.Errorf("%s: %w", name, ErrNoRegistrar)
	}
	pts := env.pointsFor(req)
	if all {
		if !transform.CapabilitiesOf(env.Transform.Type()).RegisterAll {
			return nil, fmt.Errorf("%s: %w", name, transform.ErrNotSupported)
		}
		pts = env.allPoints()
	}
	if len(pts) == 0 {
		return nil, fmt.Errorf("%s: %w", name, ErrSelectionRequired)
	}
	r := &Register{all: all, nested: req.Nested, points: pts}
	r.init(r, r, name, env)
	return r, nil
}

func (r *Register) Points() []int { return slices.Clone(r.points) }

// Outcomes reports what happened to each point, in index order.
func (r *Register) Outcomes() []registration.Outcome { return slices.Clone(r.outcomes) }

func (r *Register) start() error {
	recs, err := r.collect()
	if err != nil {
		return r.Cancel()
	}
	if !r.live() {
		return nil
	}
	r.apply(recs)
	return r.Execute()
}

// collect dispatches one search per point and joins them. A single point
// is searched on the calling goroutine.
func (r *Register) collect() ([]*registration.Record, error) {
	ctx, cancel := context.WithTimeout(r.env.ctx(), r.env.settings().RegisterTimeout)
	defer cancel()
	pts := r.env.Transform.Points()
	futures := make([]*registration.Future[*registration.Record], len(r.points))
	for i, idx := range r.points {
		if idx < 0 || idx >= len(pts) {
			return nil, fmt.Errorf("register: point %d out of range", idx)
		}
		req := registration.Request{Index: idx, Point: pts[idx], SourceKey: r.env.SourceKey, TargetKey: r.env.TargetKey}
		if len(r.points) == 1 {
			futures[i] = registration.Inline(ctx, func(ctx context.Context) (*registration.Record, error) {
				return r.env.Registrar.Search(ctx, req)
			})
			continue
		}
		futures[i] = r.env.Registrar.Dispatch(ctx, req)
	}
	start := time.Now()
	recs, at, err := registration.WaitAll(ctx, futures)
	if err != nil {
		r.log.Error("registration task failed, nothing applied", applog.Point(r.points[at]), slog.Any("err", err))
		return nil, err
	}
	r.log.Debug("registration joined", applog.Points(r.points), slog.Duration("took", time.Since(start)))
	return recs, nil
}

func (r *Register) apply(recs []*registration.Record) {
	r.snapshot = r.env.Transform.Points()
	now := time.Now()
	offsets := make(map[int]transform.Point, len(recs))
	var failed []int
	r.outcomes = make([]registration.Outcome, len(r.points))
	for i, idx := range r.points {
		rec := recs[i]
		r.outcomes[i] = registration.Outcome{Index: idx, Record: rec, At: now}
		if !rec.Valid() {
			cause := registration.ErrNoRecord
			if rec != nil {
				cause = fmt.Errorf("weight %.3f offset %s", rec.Weight, rec.Offset)
			}
			r.log.Warn("point did not align", applog.Point(idx), slog.Any("err", cause))
			failed = append(failed, idx)
			continue
		}
		offsets[idx] = rec.Offset
	}
	if len(offsets) > 0 {
		if err := r.env.Transform.TranslatePoints(offsets, transform.Target); err != nil {
			r.log.Warn("offsets not applied", slog.Any("err", err))
		} else {
			r.changed = true
			for i := range r.outcomes {
				_, r.outcomes[i].Applied = offsets[r.outcomes[i].Index]
			}
		}
	}
	if r.all && len(failed) > 0 {
		r.removeFailed(failed)
	}
	r.log.Info("registration applied", slog.Int("aligned", len(offsets)), slog.Int("failed", len(failed)))
	if r.env.Results != nil {
		if err := r.env.Results.SaveOutcomes(r.env.ctx(), r.outcomes); err != nil {
			r.log.Warn("registration results not saved", slog.Any("err", err))
		}
	}
}

func (r *Register) removeFailed(failed []int) {
	caps := transform.CapabilitiesOf(r.env.Transform.Type())
	n := r.env.Transform.NumPoints()
	if !caps.AddRemove {
		r.log.Info("unaligned points kept", slog.String("type", r.env.Transform.Type().String()))
		return
	}
	if n-len(failed) < caps.MinPoints {
		r.log.Warn("unaligned points kept, too few would remain", slog.Int("failed", len(failed)), slog.Int("total", n))
		return
	}
	sel := r.env.Selection.Values()
	r.env.Selection.RemoveFunc(func(i int) bool { return slices.Contains(failed, i) })
	if err := r.env.Transform.RemovePoints(failed); err != nil {
		r.log.Warn("unaligned points not removed", slog.Any("err", err))
		return
	}
	r.env.Selection.Replace(selection.Renumber(sel, failed))
	r.changed = true
	for i := range r.outcomes {
		if slices.Contains(failed, r.outcomes[i].Index) {
			r.outcomes[i].Removed = true
		}
	}
}

func (r *Register) commit() error {
	if r.changed && !r.nested {
		r.env.saveState(r.name, r.snapshot)
	}
	return nil
}

func (r *Register) rollback() {
	if r.changed {
		r.env.Transform.SetPoints(r.snapshot)
	}
}
