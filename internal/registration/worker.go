/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except
 * in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the
 *  specific language governing permissions and limitations under the License.
 */

// Package registration finds, for one control point, the offset that best
// aligns a patch of the source image with the target image. Searches run
// on a bounded pool and report through futures.
package registration

import (
	"context"
	"errors"
	"fmt"
	"image"
	"log/slog"
	"math"
	"time"

	"golang.org/x/image/draw"
	"golang.org/x/image/math/f64"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"

	"gopyre/internal/imagery"
	applog "gopyre/internal/log"
	"gopyre/internal/transform"
)

// ErrNoRecord is returned by Record-consuming code when a task produced nothing.
var ErrNoRecord = errors.New("no registration record")

// Request describes one point to register.
type Request struct {
	Index     int
	Point     transform.ControlPoint
	SourceKey string
	TargetKey string
}

// Record is the best alignment found for one point. Offset is in target
// space: moving the target coordinate by Offset aligns the images there.
type Record struct {
	Index  int
	Angle  float64
	Offset transform.Point
	Weight float64
}

// Valid reports whether r can be applied.
func (r *Record) Valid() bool {
	return r != nil && r.Weight > 0 && !r.Offset.IsNaN()
}

// Settings bound the search.
type Settings struct {
	AngleMinDeg  float64
	AngleMaxDeg  float64
	AngleStepDeg float64
	PatchSize    int
	SearchRadius int
	MinWeight    float64
}

func DefaultSettings() Settings {
	return Settings{AngleMinDeg: -6, AngleMaxDeg: 6, AngleStepDeg: 2, PatchSize: 64, SearchRadius: 16}
}

// Angles lists the rotations to try, always including AngleMinDeg.
func (s Settings) Angles() []float64 {
	if s.AngleStepDeg <= 0 || s.AngleMaxDeg <= s.AngleMinDeg {
		return []float64{s.AngleMinDeg}
	}
	var out []float64
	for a := s.AngleMinDeg; a <= s.AngleMaxDeg+1e-9; a += s.AngleStepDeg {
		out = append(out, a)
	}
	return out
}

// Images resolves an image key to its helper.
type Images interface {
	Get(key string) (*imagery.Helper, error)
}

// Worker runs point searches on a pool.
type Worker struct {
	images   Images
	pool     *Pool
	settings Settings
	log      *slog.Logger
}

func NewWorker(images Images, pool *Pool, s Settings) *Worker {
	if s.PatchSize <= 0 {
		s.PatchSize = DefaultSettings().PatchSize
	}
	if s.SearchRadius < 0 {
		s.SearchRadius = 0
	}
	return &Worker{images: images, pool: pool, settings: s, log: applog.WithComponent("registration")}
}

func (w *Worker) Settings() Settings { return w.settings }

// Dispatch queues a search for req and returns immediately.
func (w *Worker) Dispatch(ctx context.Context, req Request) *Future[*Record] {
	return Submit(ctx, w.pool, func(ctx context.Context) (*Record, error) {
		return w.Search(ctx, req)
	})
}

// Search runs the rotation-range correlation search for one point on the
// calling goroutine. A point whose patch has no usable pixels yields a nil
// record and no error.
func (w *Worker) Search(ctx context.Context, req Request) (*Record, error) {
	start := time.Now()
	src, err := w.images.Get(req.SourceKey)
	if err != nil {
		return nil, err
	}
	tgt, err := w.images.Get(req.TargetKey)
	if err != nil {
		return nil, err
	}
	P, R := w.settings.PatchSize, w.settings.SearchRadius
	W := P + 2*R
	srcAt := transform.Point{Y: req.Point.SourceY, X: req.Point.SourceX}
	tgtAt := transform.Point{Y: req.Point.TargetY, X: req.Point.TargetX}
	if !inside(src.Bounds(), srcAt) || !inside(tgt.Bounds(), tgtAt) {
		w.log.Debug("point outside image", applog.Point(req.Index))
		return nil, nil
	}

	window := sample(tgt.ImageWithMaskAsNoise(), tgtAt, 0, W)
	windowW := sample(tgt.BlendedMask(), tgtAt, 0, W)

	best := &Record{Index: req.Index, Weight: math.Inf(-1)}
	var bestScores []float64
	for _, angle := range w.settings.Angles() {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		patch := sample(src.ImageWithMaskAsNoise(), srcAt, angle, P)
		patchW := sample(src.BlendedMask(), srcAt, angle, P)
		scores := correlate(patch, patchW, window, windowW, P, R)
		i := floats.MaxIdx(scores)
		if scores[i] > best.Weight {
			dy, dx := refine(scores, i, 2*R+1)
			best.Angle = angle
			best.Weight = scores[i]
			best.Offset = transform.Point{Y: float64(i/(2*R+1)-R) + dy, X: float64(i%(2*R+1)-R) + dx}
			bestScores = scores
		}
	}
	if bestScores == nil || math.IsNaN(best.Weight) || best.Weight <= w.settings.MinWeight || best.Weight <= 0 {
		best.Weight = 0
	}
	w.log.Debug("point searched", applog.Point(req.Index), slog.Float64("angle", best.Angle),
		slog.String("offset", best.Offset.String()), slog.Float64("weight", best.Weight),
		slog.Duration("took", time.Since(start)))
	return best, nil
}

func inside(b image.Rectangle, p transform.Point) bool {
	return p.X >= float64(b.Min.X) && p.Y >= float64(b.Min.Y) && p.X < float64(b.Max.X) && p.Y < float64(b.Max.Y)
}

// sample returns a size x size patch of src centred on at, rotated by
// angleDeg around at. Pixels falling outside src are zero.
func sample(src *image.Gray, at transform.Point, angleDeg float64, size int) *image.Gray {
	dst := image.NewGray(image.Rect(0, 0, size, size))
	th := angleDeg * math.Pi / 180
	c, s := math.Cos(th), math.Sin(th)
	h := float64(size) / 2
	m := f64.Aff3{
		c, -s, h - (c*at.X - s*at.Y),
		s, c, h - (s*at.X + c*at.Y),
	}
	draw.BiLinear.Transform(dst, m, src, src.Bounds(), draw.Src, nil)
	return dst
}

// correlate scores every shift of the patch across the window with weighted
// Pearson correlation. Scores are laid out row-major over shifts -R..R.
func correlate(patch, patchW, window, windowW *image.Gray, P, R int) []float64 {
	n := 2*R + 1
	W := P + 2*R
	scores := make([]float64, n*n)
	xs := make([]float64, 0, P*P)
	ys := make([]float64, 0, P*P)
	ws := make([]float64, 0, P*P)
	for sy := 0; sy < n; sy++ {
		for sx := 0; sx < n; sx++ {
			xs, ys, ws = xs[:0], ys[:0], ws[:0]
			for py := 0; py < P; py++ {
				prow := py * P
				wrow := (sy+py)*W + sx
				for px := 0; px < P; px++ {
					wt := float64(patchW.Pix[prow+px]) * float64(windowW.Pix[wrow+px])
					if wt == 0 {
						continue
					}
					xs = append(xs, float64(patch.Pix[prow+px]))
					ys = append(ys, float64(window.Pix[wrow+px]))
					ws = append(ws, wt/(255*255))
				}
			}
			score := math.Inf(-1)
			if len(xs) > 2 {
				if r := stat.Correlation(xs, ys, ws); !math.IsNaN(r) {
					score = r
				}
			}
			scores[sy*n+sx] = score
		}
	}
	return scores
}

// refine fits a parabola through the peak and its neighbours on each axis.
func refine(scores []float64, i, n int) (dy, dx float64) {
	y, x := i/n, i%n
	at := func(yy, xx int) (float64, bool) {
		if yy < 0 || xx < 0 || yy >= n || xx >= n {
			return 0, false
		}
		v := scores[yy*n+xx]
		return v, !math.IsInf(v, 0)
	}
	fit := func(a, b, c float64) float64 {
		den := a - 2*b + c
		if den >= 0 {
			return 0
		}
		return math.Max(-0.5, math.Min(0.5, (a-c)/(2*den)))
	}
	c0 := scores[i]
	if a, ok := at(y-1, x); ok {
		if b, ok := at(y+1, x); ok {
			dy = fit(a, c0, b)
		}
	}
	if a, ok := at(y, x-1); ok {
		if b, ok := at(y, x+1); ok {
			dx = fit(a, c0, b)
		}
	}
	return dy, dx
}

// String formats a record for logs and reports.
func (r *Record) String() string {
	if r == nil {
		return "<none>"
	}
	return fmt.Sprintf("#%d angle=%.1f offset=%s weight=%.3f", r.Index, r.Angle, r.Offset, r.Weight)
}
