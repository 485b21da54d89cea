/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except
 * in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the
 *  specific language governing permissions and limitations under the License.
 */

// Package imagery holds the grayscale images a project aligns, together with
// their masks and the derived variants point registration searches over.
package imagery

import (
	"hash/fnv"
	"image"
	"math"
	"math/rand/v2"
	"sync"

	"golang.org/x/image/draw"
	"gonum.org/v1/gonum/stat"
)

// Stats summarises the unmasked pixels of an image.
type Stats struct {
	Mean  float64
	Std   float64
	Count int
}

// Helper derives registration inputs from one image and its optional mask.
// Derived images are computed once and shared; callers must not modify them.
type Helper struct {
	name  string
	image *image.Gray
	mask  *image.Gray

	once    sync.Once
	noise   *image.Gray
	blended *image.Gray
	stats   Stats
}

// NewHelper wraps img. A nil mask marks every pixel valid; a mask pixel of
// zero marks the image pixel invalid.
func NewHelper(name string, img image.Image, mask image.Image) *Helper {
	h := &Helper{name: name, image: ToGray(img)}
	if mask != nil {
		h.mask = ToGray(mask)
	}
	return h
}

func (h *Helper) Name() string { return h.name }

func (h *Helper) Bounds() image.Rectangle { return h.image.Bounds() }

// Image returns the unmodified grayscale image.
func (h *Helper) Image() *image.Gray { return h.image }

// ImageWithMaskAsNoise returns the image with masked pixels replaced by
// gaussian noise matching the unmasked statistics, so masked regions carry
// no correlation signal.
func (h *Helper) ImageWithMaskAsNoise() *image.Gray {
	h.derive()
	return h.noise
}

// BlendedMask returns the mask softened by a 3x3 box filter. Pixel values are
// weights in 0..255.
func (h *Helper) BlendedMask() *image.Gray {
	h.derive()
	return h.blended
}

func (h *Helper) Stats() Stats {
	h.derive()
	return h.stats
}

func (h *Helper) valid(x, y int) bool {
	return h.mask == nil || h.mask.GrayAt(x, y).Y != 0
}

func (h *Helper) derive() {
	h.once.Do(func() {
		b := h.image.Bounds()
		vals := make([]float64, 0, b.Dx()*b.Dy())
		for y := b.Min.Y; y < b.Max.Y; y++ {
			for x := b.Min.X; x < b.Max.X; x++ {
				if h.valid(x, y) {
					vals = append(vals, float64(h.image.GrayAt(x, y).Y))
				}
			}
		}
		if len(vals) > 0 {
			mean, std := stat.MeanStdDev(vals, nil)
			if math.IsNaN(std) {
				std = 0
			}
			h.stats = Stats{Mean: mean, Std: std, Count: len(vals)}
		}

		h.noise = image.NewGray(b)
		draw.Draw(h.noise, b, h.image, b.Min, draw.Src)
		if h.mask != nil {
			rng := rand.New(rand.NewPCG(seedFor(h.name), uint64(b.Dx())<<32|uint64(b.Dy())))
			for y := b.Min.Y; y < b.Max.Y; y++ {
				for x := b.Min.X; x < b.Max.X; x++ {
					if !h.valid(x, y) {
						v := h.stats.Mean + rng.NormFloat64()*h.stats.Std
						h.noise.Pix[h.noise.PixOffset(x, y)] = clamp8(v)
					}
				}
			}
		}

		h.blended = image.NewGray(b)
		for y := b.Min.Y; y < b.Max.Y; y++ {
			for x := b.Min.X; x < b.Max.X; x++ {
				sum, n := 0, 0
				for dy := -1; dy <= 1; dy++ {
					for dx := -1; dx <= 1; dx++ {
						p := image.Pt(x+dx, y+dy)
						if !p.In(b) {
							continue
						}
						n++
						if h.valid(p.X, p.Y) {
							sum += 255
						}
					}
				}
				h.blended.Pix[h.blended.PixOffset(x, y)] = uint8(sum / n)
			}
		}
	})
}

func seedFor(name string) uint64 {
	f := fnv.New64a()
	_, _ = f.Write([]byte(name))
	return f.Sum64()
}

func clamp8(v float64) uint8 {
	switch {
	case v <= 0 || math.IsNaN(v):
		return 0
	case v >= 255:
		return 255
	default:
		return uint8(v + 0.5)
	}
}

// ToGray converts img to an 8-bit grayscale image with its own pixels.
func ToGray(img image.Image) *image.Gray {
	if g, ok := img.(*image.Gray); ok {
		return g
	}
	b := img.Bounds()
	g := image.NewGray(b)
	draw.Draw(g, b, img, b.Min, draw.Src)
	return g
}
