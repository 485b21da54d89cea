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
	"errors"
	"fmt"
	"log/slog"
	"slices"

	applog "gopyre/internal/log"
	"gopyre/internal/transform"
)

// Delete removes the selection plus the points under the cursor.
type Delete struct {
	base
	points   []int
	snapshot []transform.ControlPoint
	removed  bool
}

func NewDelete(env *Env, req Request) (*Delete, error) {
	pts := env.pointsFor(req)
	if len(pts) == 0 {
		return nil, fmt.Errorf("delete: %w", ErrSelectionRequired)
	}
	d := &Delete{points: pts}
	d.init(d, d, "delete", env)
	return d, nil
}

func (d *Delete) Points() []int { return slices.Clone(d.points) }

// Snapshot returns the points as they were before deletion.
func (d *Delete) Snapshot() []transform.ControlPoint { return d.snapshot }

func (d *Delete) start() error {
	d.snapshot = d.env.Transform.Points()
	d.env.Selection.Clear()
	if err := d.env.Transform.RemovePoints(d.points); err != nil {
		if errors.Is(err, transform.ErrNotSupported) {
			d.log.Warn("Current transform does not support delete", slog.String("type", d.env.Transform.Type().String()))
		} else {
			d.log.Warn("delete failed", slog.Any("err", err))
		}
		return d.Cancel()
	}
	d.removed = true
	d.log.Info("points deleted", applog.Points(d.points), slog.Int("remaining", d.env.Transform.NumPoints()))
	return d.Execute()
}

func (d *Delete) commit() error {
	if d.removed {
		d.env.saveState(d.name, d.snapshot)
	}
	return nil
}

func (d *Delete) rollback() {
	if d.removed {
		d.env.Transform.SetPoints(d.snapshot)
	}
}
