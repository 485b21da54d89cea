/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except
 * in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the
 *  specific language governing permissions and limitations under the License.
 */

package selection

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recorder struct{ changes []Change[int] }

func (r *recorder) observe(c Change[int]) { r.changes = append(r.changes, c) }

func TestUnionReportsOnlyNewMembers(t *testing.T) {
	s := NewIndices()
	s.Union([]int{1, 2})
	rec := &recorder{}
	s.Subscribe(rec.observe)

	s.Union([]int{2, 3, 4})
	require.Len(t, rec.changes, 1)
	assert.Equal(t, Change[int]{Kind: Added, Values: []int{3, 4}}, rec.changes[0])
	assert.Equal(t, []int{1, 2, 3, 4}, s.Values())

	s.Union([]int{1})
	assert.Len(t, rec.changes, 1, "no-op union must not notify")
}

func TestSymmetricDifferenceRemovesThenAdds(t *testing.T) {
	s := NewIndices()
	s.Union([]int{1, 2, 3})
	rec := &recorder{}
	s.Subscribe(rec.observe)

	s.SymmetricDifference([]int{2, 3, 5})
	require.Len(t, rec.changes, 2)
	assert.Equal(t, Change[int]{Kind: Removed, Values: []int{2, 3}}, rec.changes[0])
	assert.Equal(t, Change[int]{Kind: Added, Values: []int{5}}, rec.changes[1])
	assert.Equal(t, []int{1, 5}, s.Values())
}

func TestIntersectionUpdate(t *testing.T) {
	s := NewIndices()
	s.Union([]int{0, 1, 2, 3})
	rec := &recorder{}
	s.Subscribe(rec.observe)

	s.IntersectionUpdate([]int{1, 3, 9})
	require.Len(t, rec.changes, 1)
	assert.Equal(t, Change[int]{Kind: Removed, Values: []int{0, 2}}, rec.changes[0])
	assert.Equal(t, []int{1, 3}, s.Values())
}

func TestReplaceLetsObserversResync(t *testing.T) {
	s := NewIndices()
	s.Union([]int{4, 7})
	highlighted := map[int]bool{4: true, 7: true}
	s.Subscribe(func(c Change[int]) {
		for _, v := range c.Values {
			highlighted[v] = c.Kind == Added
		}
	})

	s.Replace([]int{7, 8})
	assert.False(t, highlighted[4])
	assert.True(t, highlighted[7])
	assert.True(t, highlighted[8])
	assert.Equal(t, []int{7, 8}, s.Values())
}

func TestObserverCanQueryDuringCallback(t *testing.T) {
	s := NewIndices()
	var seenLen int
	var seenContains bool
	s.Subscribe(func(c Change[int]) {
		seenLen = s.Len()
		seenContains = s.Contains(5)
	})
	s.Add(5)
	assert.Equal(t, 1, seenLen)
	assert.True(t, seenContains)
}

func TestUnsubscribeAndDiscard(t *testing.T) {
	s := NewIndices()
	rec := &recorder{}
	unsub := s.Subscribe(rec.observe)
	s.Add(1)
	s.Discard(1)
	s.Discard(1)
	require.Len(t, rec.changes, 2)
	assert.Equal(t, Removed, rec.changes[1].Kind)

	unsub()
	s.Add(2)
	s.Clear()
	assert.Len(t, rec.changes, 2)
	assert.Equal(t, 0, s.Len())
}

func TestRenumber(t *testing.T) {
	assert.Equal(t, []int{0, 2, 3}, Renumber([]int{0, 2, 4, 6}, []int{1, 2, 5}))
	assert.Equal(t, []int{}, Renumber([]int{3}, []int{3}))
	assert.Equal(t, []int{1, 2}, Renumber([]int{2, 1}, nil))
}
