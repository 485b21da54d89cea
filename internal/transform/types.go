/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except
 * in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the
 *  specific language governing permissions and limitations under the License.
 */

// Package transform defines the control point model and the controller
// contract used by the editing commands. The geometric math of the actual
// transforms (triangulation, RBF solving, inverse mapping) lives behind the
// Controller interface; PointSet is a lightweight in-memory implementation.
package transform

import (
	"errors"
	"fmt"
	"math"
	"strings"
)

// ErrNotSupported is returned when a mutation is requested that the active
// transform type cannot perform (e.g. adding points to a grid).
var ErrNotSupported = errors.New("operation not supported by transform")

// Point is a world-space position. Coordinates follow the image convention
// of (row, column), so Y comes first.
type Point struct {
	Y float64 `json:"y"`
	X float64 `json:"x"`
}

func (p Point) Add(o Point) Point          { return Point{Y: p.Y + o.Y, X: p.X + o.X} }
func (p Point) Sub(o Point) Point          { return Point{Y: p.Y - o.Y, X: p.X - o.X} }
func (p Point) Scale(f float64) Point      { return Point{Y: p.Y * f, X: p.X * f} }
func (p Point) IsNaN() bool                { return math.IsNaN(p.Y) || math.IsNaN(p.X) }
func (p Point) String() string             { return fmt.Sprintf("(%.3f, %.3f)", p.Y, p.X) }
func (p Point) DistanceTo(o Point) float64 { return math.Sqrt((p.Y-o.Y)*(p.Y-o.Y) + (p.X-o.X)*(p.X-o.X)) }

// Space selects one side of the transform.
type Space int

const (
	// Source is the pre-warp (moving) image space.
	Source Space = iota
	// Target is the post-warp (fixed) image space.
	Target
)

// Other returns the opposite space.
func (s Space) Other() Space {
	if s == Source {
		return Target
	}
	return Source
}

func (s Space) String() string {
	if s == Source {
		return "source"
	}
	return "target"
}

// ControlPoint pairs a target location with its source location.
// Identity is the index within the owning point array.
type ControlPoint struct {
	TargetY float64 `json:"target_y"`
	TargetX float64 `json:"target_x"`
	SourceY float64 `json:"source_y"`
	SourceX float64 `json:"source_x"`
}

// NewControlPoint builds a control point from a target and a source position.
func NewControlPoint(target, source Point) ControlPoint {
	return ControlPoint{TargetY: target.Y, TargetX: target.X, SourceY: source.Y, SourceX: source.X}
}

// In returns the control point's position in the given space.
func (c ControlPoint) In(s Space) Point {
	if s == Source {
		return Point{Y: c.SourceY, X: c.SourceX}
	}
	return Point{Y: c.TargetY, X: c.TargetX}
}

// Moved returns a copy of c shifted by delta in space s.
func (c ControlPoint) Moved(delta Point, s Space) ControlPoint {
	if s == Source {
		c.SourceY += delta.Y
		c.SourceX += delta.X
	} else {
		c.TargetY += delta.Y
		c.TargetX += delta.X
	}
	return c
}

// Type tags the transform family. It drives which editing actions are legal.
type Type int

const (
	Grid Type = iota
	Mesh
	RBF
	Rigid
)

var typeNames = map[Type]string{Grid: "grid", Mesh: "mesh", RBF: "rbf", Rigid: "rigid"}

func (t Type) String() string {
	if n, ok := typeNames[t]; ok {
		return n
	}
	return fmt.Sprintf("type(%d)", int(t))
}

// ParseType converts a persisted type name back to a Type.
func ParseType(s string) (Type, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	for t, n := range typeNames {
		if n == s {
			return t, nil
		}
	}
	return Mesh, fmt.Errorf("unknown transform type %q", s)
}

// Capabilities describes what a transform family allows the editor to do.
type Capabilities struct {
	// Pickable is true when individual control points can be hit-tested.
	Pickable bool
	// AddRemove allows point creation and deletion.
	AddRemove bool
	// RegisterAll allows a full registration sweep over every point.
	RegisterAll bool
	// MinPoints is the smallest point count the transform stays valid with.
	MinPoints int
}

var capabilityTable = map[Type]Capabilities{
	Grid:  {Pickable: true},
	Mesh:  {Pickable: true, AddRemove: true, RegisterAll: true, MinPoints: 3},
	RBF:   {Pickable: true, AddRemove: true, RegisterAll: true, MinPoints: 3},
	Rigid: {},
}

// CapabilitiesOf returns the capability row for t. Unknown types get none.
func CapabilitiesOf(t Type) Capabilities { return capabilityTable[t] }
