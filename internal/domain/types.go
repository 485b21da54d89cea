/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except
 * in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the
 *  specific language governing permissions and limitations under the License.
 */

package domain

import (
	"fmt"

	"gopyre/internal/transform"
)

// Project is one source/target alignment and its control points. It
// serializes to the human-readable stos.json manifest.
type Project struct {
	Name      string    `json:"name"`
	Metadata  Metadata  `json:"metadata,omitempty"`
	Source    ImageRef  `json:"source"`
	Target    ImageRef  `json:"target"`
	Transform Transform `json:"transform"`
}

// Metadata contains optional descriptive metadata for a project.
type Metadata struct {
	Specimen string `json:"specimen,omitempty"`
	Section  string `json:"section,omitempty"`
	Operator string `json:"operator,omitempty"`
	Notes    string `json:"notes,omitempty"`
}

// ImageRef points at an image relative to the project root. Mask is an
// optional image of the same size whose zero pixels are excluded.
type ImageRef struct {
	Path string `json:"path"`
	Mask string `json:"mask,omitempty"`
}

type Transform struct {
	Type   string         `json:"type"` // grid, mesh, rbf, rigid
	Points []ControlPoint `json:"points"`
}

type ControlPoint struct {
	TargetY float64 `json:"targetY"`
	TargetX float64 `json:"targetX"`
	SourceY float64 `json:"sourceY"`
	SourceX float64 `json:"sourceX"`
}

// Controller builds the in-memory transform the editor works on.
func (t Transform) Controller() (*transform.PointSet, error) {
	typ, err := transform.ParseType(t.Type)
	if err != nil {
		return nil, fmt.Errorf("transform: %w", err)
	}
	return transform.NewPointSet(typ, ToPoints(t.Points)), nil
}

// Capture records the current state of tc.
func Capture(tc transform.Controller) Transform {
	return Transform{Type: tc.Type().String(), Points: FromPoints(tc.Points())}
}

func ToPoints(in []ControlPoint) []transform.ControlPoint {
	out := make([]transform.ControlPoint, len(in))
	for i, p := range in {
		out[i] = transform.ControlPoint{TargetY: p.TargetY, TargetX: p.TargetX, SourceY: p.SourceY, SourceX: p.SourceX}
	}
	return out
}

func FromPoints(in []transform.ControlPoint) []ControlPoint {
	out := make([]ControlPoint, len(in))
	for i, p := range in {
		out[i] = ControlPoint{TargetY: p.TargetY, TargetX: p.TargetX, SourceY: p.SourceY, SourceX: p.SourceX}
	}
	return out
}
