/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except
 * in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the
 *  specific language governing permissions and limitations under the License.
 */

package spatial

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"

	"gopyre/internal/transform"
)

func grid(n int, step float64) []transform.ControlPoint {
	var out []transform.ControlPoint
	for y := 0; y < n; y++ {
		for x := 0; x < n; x++ {
			ty, tx := float64(y)*step, float64(x)*step
			out = append(out, transform.ControlPoint{TargetY: ty, TargetX: tx, SourceY: ty + 100, SourceX: tx})
		}
	}
	return out
}

func bruteForce(pts []transform.ControlPoint, s transform.Space, p transform.Point, r float64) []int {
	out := []int{}
	for i, cp := range pts {
		if cp.In(s).DistanceTo(p) <= r {
			out = append(out, i)
		}
	}
	return out
}

func TestFindNearestWithinMatchesBruteForce(t *testing.T) {
	pts := grid(6, 10)
	ps := transform.NewPointSet(transform.Mesh, pts)
	for _, s := range []transform.Space{transform.Source, transform.Target} {
		ix := New(ps, s)
		queries := []transform.Point{{Y: 0, X: 0}, {Y: 15, X: 15}, {Y: 104, X: 21}, {Y: 49, X: 51}, {Y: -30, X: -30}}
		for _, p := range queries {
			for _, r := range []float64{0, 1, 5, 10, 14.2, 25} {
				got := ix.FindNearestWithin(p, r)
				assert.Equal(t, bruteForce(pts, s, p, r), got, "space=%s p=%v r=%v", s, p, r)
			}
		}
		ix.Close()
	}
}

func TestIndexFollowsTransformChanges(t *testing.T) {
	ps := transform.NewPointSet(transform.Mesh, grid(2, 10))
	ix := New(ps, transform.Target)
	defer ix.Close()

	assert.Equal(t, []int{3}, ix.FindNearestWithin(transform.Point{Y: 10, X: 10}, 1))

	_, err := ps.MovePoints([]int{3}, transform.Point{Y: 20, X: 20}, transform.Target)
	assert.NoError(t, err)
	assert.Empty(t, ix.FindNearestWithin(transform.Point{Y: 10, X: 10}, 1))
	assert.Equal(t, []int{3}, ix.FindNearestWithin(transform.Point{Y: 30, X: 30}, 1))

	assert.NoError(t, ps.RemovePoints([]int{0, 1}))
	assert.Equal(t, []int{1}, ix.FindNearestWithin(transform.Point{Y: 30, X: 30}, 1))

	ps.SetPoints(nil)
	assert.Empty(t, ix.FindNearestWithin(transform.Point{}, math.MaxFloat64/4))
}
