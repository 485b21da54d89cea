//go:build fyne

/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except
 * in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the
 *  specific language governing permissions and limitations under the License.
 */

// These tests exercise the point view without a window. They are gated
// behind the "fyne" build tag:
//
//	go test -tags fyne ./internal/ui
package ui

import (
	"image"
	"math"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"

	"fyne.io/fyne/v2"
	"fyne.io/fyne/v2/driver/desktop"
	"fyne.io/fyne/v2/test"

	"gopyre/internal/command"
	"gopyre/internal/editor"
	"gopyre/internal/storage"
	"gopyre/internal/transform"
)

func newView(t *testing.T, img image.Image) (*PointView, *transform.PointSet, *editor.Surface) {
	t.Helper()
	test.NewTempApp(t)
	ps := transform.NewPointSet(transform.Mesh, []transform.ControlPoint{
		{TargetY: 50, TargetX: 0, SourceY: 55, SourceX: 0},
		{TargetY: 50, TargetX: 100, SourceY: 55, SourceX: 100},
		{TargetY: 50, TargetX: 200, SourceY: 55, SourceX: 200},
	})
	loop := editor.NewLoop()
	s := editor.New(ps, loop, editor.Options{Space: transform.Target})
	t.Cleanup(s.Close)
	s.Start()
	return NewPointView(s, loop, img), ps, s
}

func primary(x, y float32) *desktop.MouseEvent {
	return &desktop.MouseEvent{PointEvent: fyne.PointEvent{Position: fyne.NewPos(x, y)}, Button: desktop.MouseButtonPrimary}
}

func TestPointView_LayoutPlacesDots(t *testing.T) {
	v, _, _ := newView(t, nil)
	r := test.WidgetRenderer(v).(*pointViewRenderer)
	r.Layout(fyne.NewSize(400, 300))
	if len(r.dots) != 3 {
		t.Fatalf("expected 3 dots, got %d", len(r.dots))
	}
	if got := r.dots[1].Position(); got != fyne.NewPos(95, 45) {
		t.Fatalf("dot 1 at %v", got)
	}
	if got := r.dots[1].Size(); got != fyne.NewSize(10, 10) {
		t.Fatalf("dot size %v", got)
	}
	if len(r.Objects()) != 4 {
		t.Fatalf("expected background plus 3 dots, got %d objects", len(r.Objects()))
	}
}

func TestPointView_ClickSelectsAndDragMoves(t *testing.T) {
	v, ps, s := newView(t, nil)
	r := test.WidgetRenderer(v).(*pointViewRenderer)

	v.MouseDown(primary(100, 50))
	if got := s.Selection().Values(); !reflect.DeepEqual(got, []int{1}) {
		t.Fatalf("selection after click: %v", got)
	}
	r.Layout(fyne.NewSize(400, 300))
	if r.dots[1].FillColor != selectedColor || r.dots[0].FillColor != dotColor {
		t.Fatalf("selected dot not highlighted")
	}

	v.Dragged(&fyne.DragEvent{PointEvent: fyne.PointEvent{Position: fyne.NewPos(110, 53)}})
	if _, ok := s.Current().(*command.Translate); !ok {
		t.Fatalf("expected translate while dragging, got %T", s.Current())
	}
	if v.Cursor() != desktop.PointerCursor {
		t.Fatalf("unexpected cursor while translating")
	}
	v.DragEnd()
	if _, ok := s.Current().(*command.Default); !ok {
		t.Fatalf("expected idle default after drag, got %T", s.Current())
	}
	want := transform.Point{Y: 53, X: 110}
	if got := ps.Points()[1].In(transform.Target); got != want {
		t.Fatalf("point 1 at %v, want %v", got, want)
	}

	// fyne may still deliver the release; it must not click again.
	v.MouseUp(primary(110, 53))
	if got := s.Selection().Values(); !reflect.DeepEqual(got, []int{1}) {
		t.Fatalf("selection changed by late release: %v", got)
	}
	if !strings.HasPrefix(v.Summary(), "3 points, 1 selected, mesh, default") {
		t.Fatalf("unexpected summary %q", v.Summary())
	}
}

func TestPointView_ScrollZoomsAroundPointer(t *testing.T) {
	v, _, s := newView(t, nil)
	before := s.Camera().ScreenToWorld(fyne.NewPos(100, 50))
	v.Scrolled(&fyne.ScrollEvent{PointEvent: fyne.PointEvent{Position: fyne.NewPos(100, 50)}, Scrolled: fyne.Delta{DY: 1}})
	cam := s.Camera()
	if math.Abs(cam.Scale-0.8) > 1e-9 {
		t.Fatalf("expected zoom in to scale 0.8, got %v", cam.Scale)
	}
	after := cam.ScreenToWorld(fyne.NewPos(100, 50))
	if math.Abs(after.X-before.X) > 1e-6 || math.Abs(after.Y-before.Y) > 1e-6 {
		t.Fatalf("anchor moved from %v to %v", before, after)
	}
	for i := 0; i < 100; i++ {
		v.Scrolled(&fyne.ScrollEvent{Scrolled: fyne.Delta{DY: -1}})
	}
	if s.Camera().Scale != maxScale {
		t.Fatalf("zoom out not clamped: %v", s.Camera().Scale)
	}
}

func TestPointView_FollowsPointChanges(t *testing.T) {
	v, ps, _ := newView(t, nil)
	r := test.WidgetRenderer(v).(*pointViewRenderer)
	calls := 0
	v.OnChanged = func() { calls++ }
	ps.SetPoints(ps.Points()[:2])
	if calls == 0 {
		t.Fatalf("OnChanged not called")
	}
	r.Layout(fyne.NewSize(400, 300))
	if len(r.dots) != 2 || len(r.Objects()) != 3 {
		t.Fatalf("expected 2 dots, got %d (%d objects)", len(r.dots), len(r.Objects()))
	}
}

func TestPointView_FitImage(t *testing.T) {
	img := image.NewGray(image.Rect(0, 0, 800, 600))
	v, _, s := newView(t, img)
	v.FitImage(fyne.NewSize(400, 200))
	if s.Camera().Scale != 3 {
		t.Fatalf("expected scale 3 to fit the height, got %v", s.Camera().Scale)
	}
	r := test.WidgetRenderer(v).(*pointViewRenderer)
	r.Layout(fyne.NewSize(400, 200))
	if r.img == nil || r.img.Size() != fyne.NewSize(800.0/3, 200) {
		t.Fatalf("image not scaled to the camera")
	}
}

func TestPointView_ModifierReleaseUpdatesCursor(t *testing.T) {
	v, _, _ := newView(t, nil)
	v.MouseMoved(&desktop.MouseEvent{PointEvent: fyne.PointEvent{Position: fyne.NewPos(300, 250)}})
	if v.Cursor() != desktop.DefaultCursor {
		t.Fatalf("empty area should show the default cursor, got %v", v.Cursor())
	}
	v.KeyDown(&fyne.KeyEvent{Name: desktop.KeyShiftLeft})
	if v.Cursor() != desktop.CrosshairCursor {
		t.Fatalf("shift over empty area should hint create, got %v", v.Cursor())
	}
	v.KeyUp(&fyne.KeyEvent{Name: desktop.KeyShiftLeft})
	if v.Cursor() != desktop.DefaultCursor {
		t.Fatalf("releasing shift should drop the create hint, got %v", v.Cursor())
	}
	if v.tracker.State().Modifiers != 0 {
		t.Fatalf("modifier still held after release")
	}
}

func TestPointView_FocusLostDropsHeldButtons(t *testing.T) {
	v, _, _ := newView(t, nil)
	v.MouseDown(primary(300, 250))
	v.FocusLost()
	if v.tracker.State().Buttons != 0 {
		t.Fatalf("buttons still held after focus loss")
	}
}

func TestRecentProjects(t *testing.T) {
	prefs := test.NewTempApp(t).Preferences()
	mk := func() string {
		dir := t.TempDir()
		if err := os.WriteFile(filepath.Join(dir, storage.ManifestFileName), []byte("{}"), 0o644); err != nil {
			t.Fatal(err)
		}
		return dir
	}
	a, b := mk(), mk()
	addRecentProject(prefs, a)
	addRecentProject(prefs, b)
	addRecentProject(prefs, a)
	got := loadRecentProjects(prefs)
	if !reflect.DeepEqual(got, []string{a, b}) {
		t.Fatalf("recent = %v", got)
	}
	if err := os.Remove(filepath.Join(b, storage.ManifestFileName)); err != nil {
		t.Fatal(err)
	}
	if got := loadRecentProjects(prefs); !reflect.DeepEqual(got, []string{a}) {
		t.Fatalf("recent after removal = %v", got)
	}
}
