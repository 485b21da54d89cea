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
	"encoding/json"
	"testing"

	"gopyre/internal/transform"
)

func TestProjectJSONRoundTrip(t *testing.T) {
	p := Project{
		Name:   "RoundTrip",
		Source: ImageRef{Path: "images/0001.tif", Mask: "images/0001_mask.png"},
		Target: ImageRef{Path: "images/0002.tif"},
		Transform: Transform{
			Type:   "mesh",
			Points: []ControlPoint{{TargetY: 1, TargetX: 2, SourceY: 3, SourceX: 4}},
		},
	}

	b, err := json.Marshal(p)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var got Project
	if err := json.Unmarshal(b, &got); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if got.Name != p.Name || got.Source.Mask != p.Source.Mask {
		t.Fatalf("mismatch: got %+v want %+v", got, p)
	}
	if len(got.Transform.Points) != 1 || got.Transform.Points[0].SourceX != 4 {
		t.Fatalf("unexpected points: %+v", got.Transform)
	}
}

func TestControllerAndCapture(t *testing.T) {
	tr := Transform{Type: "rbf", Points: []ControlPoint{{TargetX: 1}, {TargetX: 2}, {TargetX: 3}}}
	ps, err := tr.Controller()
	if err != nil {
		t.Fatalf("controller: %v", err)
	}
	if ps.Type() != transform.RBF || ps.NumPoints() != 3 {
		t.Fatalf("unexpected controller: %s %d", ps.Type(), ps.NumPoints())
	}
	if _, err := ps.AddPoint(transform.ControlPoint{TargetX: 4}); err != nil {
		t.Fatalf("add: %v", err)
	}
	back := Capture(ps)
	if back.Type != "rbf" || len(back.Points) != 4 || back.Points[3].TargetX != 4 {
		t.Fatalf("capture mismatch: %+v", back)
	}

	if _, err := (Transform{Type: "spline"}).Controller(); err == nil {
		t.Fatal("expected unknown type error")
	}
}
