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

package ui

import (
	"fmt"
	"image"
	"image/color"

	"fyne.io/fyne/v2"
	"fyne.io/fyne/v2/canvas"
	"fyne.io/fyne/v2/driver/desktop"
	"fyne.io/fyne/v2/widget"

	"gopyre/internal/editor"
	"gopyre/internal/input"
	"gopyre/internal/selection"
	"gopyre/internal/transform"
)

const (
	dotRadius = 5
	minScale  = 1.0 / 16
	maxScale  = 64.0
)

var (
	dotColor      = color.RGBA{R: 0, G: 200, B: 255, A: 255}
	selectedColor = color.RGBA{R: 255, G: 170, B: 0, A: 255}
)

// PointView draws the control points of one editing surface over the
// image of its space and feeds pointer and keyboard input to the surface.
// The wheel zooms around the pointer.
type PointView struct {
	widget.BaseWidget
	surface *editor.Surface
	loop    *editor.Loop
	tracker input.Tracker
	img     image.Image

	// OnChanged runs after input has been handled and after every point or
	// selection change.
	OnChanged func()
}

var (
	_ desktop.Mouseable  = (*PointView)(nil)
	_ desktop.Hoverable  = (*PointView)(nil)
	_ desktop.Keyable    = (*PointView)(nil)
	_ desktop.Cursorable = (*PointView)(nil)
	_ fyne.Draggable     = (*PointView)(nil)
	_ fyne.Scrollable    = (*PointView)(nil)
)

// NewPointView builds the view. img may be nil.
func NewPointView(s *editor.Surface, loop *editor.Loop, img image.Image) *PointView {
	p := &PointView{surface: s, loop: loop, img: img}
	s.Transform().AddOnChangeEventListener(func(transform.Change) { p.changed() })
	s.Selection().Subscribe(func(selection.Change[int]) { p.changed() })
	p.ExtendBaseWidget(p)
	return p
}

// Summary describes the view state for a status line.
func (p *PointView) Summary() string {
	name := "-"
	if c := p.surface.Current(); c != nil {
		name = c.Name()
	}
	return fmt.Sprintf("%d points, %d selected, %s, %s", p.surface.Transform().NumPoints(),
		p.surface.Selection().Len(), p.surface.Transform().Type(), name)
}

func (p *PointView) changed() {
	p.Refresh()
	if p.OnChanged != nil {
		p.OnChanged()
	}
}

// handle passes raw input to the surface and runs whatever it posted.
func (p *PointView) handle(raw input.Raw) {
	p.surface.HandleRaw(raw)
	p.loop.RunPending()
	p.changed()
}

func (p *PointView) MouseDown(ev *desktop.MouseEvent) {
	p.requestFocus()
	p.handle(p.tracker.MouseDown(ev))
}

// MouseUp ignores releases the tracker already saw through DragEnd.
func (p *PointView) MouseUp(ev *desktop.MouseEvent) {
	b := input.Left
	switch ev.Button {
	case desktop.MouseButtonSecondary:
		b = input.Right
	case desktop.MouseButtonTertiary:
		b = input.Middle
	}
	if !p.tracker.State().Buttons.Has(b) {
		return
	}
	p.handle(p.tracker.MouseUp(ev))
}

func (p *PointView) MouseIn(ev *desktop.MouseEvent) { p.handle(p.tracker.MouseMoved(ev)) }

func (p *PointView) MouseMoved(ev *desktop.MouseEvent) { p.handle(p.tracker.MouseMoved(ev)) }

func (p *PointView) MouseOut() {}

func (p *PointView) Dragged(ev *fyne.DragEvent) { p.handle(p.tracker.Dragged(ev)) }

// DragEnd releases the primary button when fyne ends a drag without a
// matching MouseUp.
func (p *PointView) DragEnd() {
	if !p.tracker.State().Buttons.Has(input.Left) {
		return
	}
	p.handle(p.tracker.MouseUp(&desktop.MouseEvent{
		PointEvent: fyne.PointEvent{Position: p.tracker.LastPosition()},
		Button:     desktop.MouseButtonPrimary,
	}))
}

func (p *PointView) KeyDown(ev *fyne.KeyEvent) { p.handle(p.tracker.KeyDown(ev)) }
func (p *PointView) KeyUp(ev *fyne.KeyEvent)   { p.handle(p.tracker.KeyUp(ev)) }

func (p *PointView) FocusGained() {}

// FocusLost drops held keys and buttons; their release goes elsewhere.
func (p *PointView) FocusLost() { p.tracker.Reset() }

func (p *PointView) TypedRune(rune)          {}
func (p *PointView) TypedKey(*fyne.KeyEvent) {}

// Cursor follows the surface's interaction state.
func (p *PointView) Cursor() desktop.Cursor { return p.surface.CursorHint() }

// Scrolled zooms so the world point under the pointer stays put.
func (p *PointView) Scrolled(ev *fyne.ScrollEvent) {
	cam := p.surface.Camera()
	anchor := cam.ScreenToWorld(ev.Position)
	scale := cam.WorldPerPixel()
	switch {
	case ev.Scrolled.DY > 0:
		scale /= 1.25
	case ev.Scrolled.DY < 0:
		scale *= 1.25
	default:
		return
	}
	scale = min(max(scale, minScale), maxScale)
	cam.Scale = scale
	cam.Origin = transform.Point{Y: anchor.Y - float64(ev.Position.Y)*scale, X: anchor.X - float64(ev.Position.X)*scale}
	p.surface.SetCamera(cam)
	p.Refresh()
}

// FitImage sets the camera so the whole image fits size.
func (p *PointView) FitImage(size fyne.Size) {
	if p.img == nil || size.Width <= 0 || size.Height <= 0 {
		return
	}
	b := p.img.Bounds()
	scale := max(float64(b.Dx())/float64(size.Width), float64(b.Dy())/float64(size.Height))
	scale = min(max(scale, minScale), maxScale)
	p.surface.SetCamera(input.Camera{Origin: transform.Point{Y: float64(b.Min.Y), X: float64(b.Min.X)}, Scale: scale})
	p.Refresh()
}

func (p *PointView) requestFocus() {
	app := fyne.CurrentApp()
	if app == nil || app.Driver() == nil {
		return
	}
	if c := app.Driver().CanvasForObject(p); c != nil {
		c.Focus(p)
	}
}

func (p *PointView) MinSize() fyne.Size { return fyne.NewSize(400, 300) }

func (p *PointView) CreateRenderer() fyne.WidgetRenderer {
	r := &pointViewRenderer{pv: p, bg: canvas.NewRectangle(color.RGBA{R: 30, G: 30, B: 34, A: 255})}
	if p.img != nil {
		r.img = canvas.NewImageFromImage(p.img)
		r.img.FillMode = canvas.ImageFillStretch
		r.img.ScaleMode = canvas.ImageScalePixels
	}
	r.rebuild(p.surface.Transform().NumPoints())
	return r
}

type pointViewRenderer struct {
	pv      *PointView
	bg      *canvas.Rectangle
	img     *canvas.Image
	dots    []*canvas.Circle
	objects []fyne.CanvasObject
}

func (r *pointViewRenderer) Destroy()                     {}
func (r *pointViewRenderer) Objects() []fyne.CanvasObject { return r.objects }
func (r *pointViewRenderer) MinSize() fyne.Size           { return r.pv.MinSize() }
func (r *pointViewRenderer) Refresh()                     { r.Layout(r.pv.Size()); canvas.Refresh(r.pv) }

// rebuild keeps one circle per control point.
func (r *pointViewRenderer) rebuild(n int) {
	for len(r.dots) < n {
		c := canvas.NewCircle(dotColor)
		c.StrokeColor = color.Black
		c.StrokeWidth = 1
		r.dots = append(r.dots, c)
	}
	r.dots = r.dots[:n]
	r.objects = r.objects[:0]
	r.objects = append(r.objects, r.bg)
	if r.img != nil {
		r.objects = append(r.objects, r.img)
	}
	for _, d := range r.dots {
		r.objects = append(r.objects, d)
	}
}

func (r *pointViewRenderer) Layout(size fyne.Size) {
	r.bg.Resize(size)
	r.bg.Move(fyne.NewPos(0, 0))

	s := r.pv.surface
	cam := s.Camera()
	if r.img != nil {
		b := r.pv.img.Bounds()
		tl := cam.WorldToScreen(transform.Point{Y: float64(b.Min.Y), X: float64(b.Min.X)})
		br := cam.WorldToScreen(transform.Point{Y: float64(b.Max.Y), X: float64(b.Max.X)})
		r.img.Move(tl)
		r.img.Resize(fyne.NewSize(br.X-tl.X, br.Y-tl.Y))
	}

	pts := s.Transform().Points()
	if len(pts) != len(r.dots) {
		r.rebuild(len(pts))
	}
	sel := s.Selection()
	for i, cp := range pts {
		pos := cam.WorldToScreen(cp.In(s.Space()))
		d := r.dots[i]
		d.Move(fyne.NewPos(pos.X-dotRadius, pos.Y-dotRadius))
		d.Resize(fyne.NewSize(2*dotRadius, 2*dotRadius))
		d.FillColor = dotColor
		if sel.Contains(i) {
			d.FillColor = selectedColor
		}
	}
}
