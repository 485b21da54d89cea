/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"time"

	"gopyre/internal/registration"
	"gopyre/internal/transform"
)

// language=SQL
// dialect=SQLite
const insertRegistrationSQL = `INSERT INTO registrations(point_index, angle, dy, dx, weight, applied, removed, ts) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`

// language=SQL
// dialect=SQLite
const listRegistrationsSQL = `SELECT point_index, angle, dy, dx, weight, applied, removed, ts FROM registrations ORDER BY ts DESC, id DESC LIMIT ?`

// language=SQL
// dialect=SQLite
const insertCheckpointSQL = `INSERT INTO checkpoints(label, ts, points_json) VALUES (?, ?, ?)`

// language=SQL
// dialect=SQLite
const selectLatestCheckpointSQL = `SELECT label, ts, points_json FROM checkpoints ORDER BY ts DESC, id DESC LIMIT 1`

// language=SQL
// dialect=SQLite
const pruneCheckpointsSQL = `DELETE FROM checkpoints WHERE id NOT IN (
	SELECT id FROM checkpoints ORDER BY ts DESC, id DESC LIMIT ?
)`

// ResultIndex is the project's embedded result store. It implements
// registration.Sink.
type ResultIndex struct {
	db *sql.DB
}

var _ registration.Sink = (*ResultIndex)(nil)

// OpenResults opens (or creates) the index of the project at root.
func OpenResults(root string) (*ResultIndex, error) {
	db, err := InitOrOpenIndex(root)
	if err != nil {
		return nil, err
	}
	return &ResultIndex{db: db}, nil
}

func (ri *ResultIndex) Close() error { return ri.db.Close() }

// SaveOutcomes writes one row per outcome in a single transaction.
func (ri *ResultIndex) SaveOutcomes(ctx context.Context, batch []registration.Outcome) error {
	if len(batch) == 0 {
		return nil
	}
	tx, err := ri.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	ins, err := tx.PrepareContext(ctx, insertRegistrationSQL)
	if err != nil {
		_ = tx.Rollback()
		return fmt.Errorf("prepare insert: %w", err)
	}
	defer ins.Close()
	for _, o := range batch {
		var angle, dy, dx, weight sql.NullFloat64
		if o.Record != nil {
			angle = nullable(o.Record.Angle)
			dy = nullable(o.Record.Offset.Y)
			dx = nullable(o.Record.Offset.X)
			weight = nullable(o.Record.Weight)
		}
		ts := o.At
		if ts.IsZero() {
			ts = time.Now()
		}
		if _, err := ins.ExecContext(ctx, o.Index, angle, dy, dx, weight, o.Applied, o.Removed, ts.UTC().Format(time.RFC3339Nano)); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("insert registration: %w", err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

func nullable(v float64) sql.NullFloat64 {
	return sql.NullFloat64{Float64: v, Valid: !math.IsNaN(v) && !math.IsInf(v, 0)}
}

// Recent returns up to limit outcomes, newest first.
func (ri *ResultIndex) Recent(ctx context.Context, limit int) ([]registration.Outcome, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := ri.db.QueryContext(ctx, listRegistrationsSQL, limit)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()
	var out []registration.Outcome
	for rows.Next() {
		var (
			o                     registration.Outcome
			angle, dy, dx, weight sql.NullFloat64
			tsStr                 string
		)
		if err := rows.Scan(&o.Index, &angle, &dy, &dx, &weight, &o.Applied, &o.Removed, &tsStr); err != nil {
			return nil, err
		}
		if weight.Valid {
			o.Record = &registration.Record{
				Index:  o.Index,
				Angle:  angle.Float64,
				Offset: transform.Point{Y: dy.Float64, X: dx.Float64},
				Weight: weight.Float64,
			}
		}
		o.At, _ = time.Parse(time.RFC3339Nano, tsStr)
		out = append(out, o)
	}
	return out, rows.Err()
}

// Checkpoint is a saved control point array.
type Checkpoint struct {
	Label  string
	TS     time.Time
	Points []transform.ControlPoint
}

// SaveCheckpoint stores the current control points under label.
func (ri *ResultIndex) SaveCheckpoint(ctx context.Context, label string, points []transform.ControlPoint) error {
	blob, err := json.Marshal(points)
	if err != nil {
		return fmt.Errorf("marshal checkpoint: %w", err)
	}
	_, err = ri.db.ExecContext(ctx, insertCheckpointSQL, label, time.Now().UTC().Format(time.RFC3339Nano), blob)
	return err
}

// LatestCheckpoint returns the newest checkpoint or nil if none.
func (ri *ResultIndex) LatestCheckpoint(ctx context.Context) (*Checkpoint, error) {
	var (
		cp    Checkpoint
		tsStr string
		blob  []byte
	)
	err := ri.db.QueryRowContext(ctx, selectLatestCheckpointSQL).Scan(&cp.Label, &tsStr, &blob)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal(blob, &cp.Points); err != nil {
		return nil, fmt.Errorf("parse checkpoint: %w", err)
	}
	cp.TS, _ = time.Parse(time.RFC3339Nano, tsStr)
	return &cp, nil
}

// PruneCheckpoints keeps at most keepLast checkpoints and deletes older ones.
func (ri *ResultIndex) PruneCheckpoints(ctx context.Context, keepLast int) (int64, error) {
	if keepLast <= 0 {
		return 0, nil
	}
	res, err := ri.db.ExecContext(ctx, pruneCheckpointsSQL, keepLast)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
