/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except
 * in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the
 *  specific language governing permissions and limitations under the License.
 */

// Package selection provides an observable set of selected control point
// indices. Every mutation reports exactly which values were added or removed
// so observers (highlight buffers, status bars) can update incrementally.
package selection

import (
	"sort"
	"sync"

	"golang.org/x/exp/constraints"
)

// Kind tells observers what a Change did.
type Kind int

const (
	Added Kind = iota
	Removed
	// Cleared is a removal of every member; Values holds the former members.
	Cleared
)

func (k Kind) String() string {
	switch k {
	case Added:
		return "added"
	case Removed:
		return "removed"
	default:
		return "cleared"
	}
}

// Change describes one mutation. Values are sorted ascending.
type Change[T constraints.Ordered] struct {
	Kind   Kind
	Values []T
}

// Set is an observable set. Membership is updated before observers run and
// no lock is held while they run, so an observer may query the set.
type Set[T constraints.Ordered] struct {
	mu        sync.RWMutex
	members   map[T]struct{}
	observers map[int]func(Change[T])
	nextID    int
}

// Indices is the selection set of control point indices.
type Indices = Set[int]

// New returns an empty set.
func New[T constraints.Ordered]() *Set[T] {
	return &Set[T]{members: make(map[T]struct{}), observers: make(map[int]func(Change[T]))}
}

// NewIndices returns an empty index selection.
func NewIndices() *Indices { return New[int]() }

// Subscribe registers fn and returns a function that removes it again.
func (s *Set[T]) Subscribe(fn func(Change[T])) (unsubscribe func()) {
	s.mu.Lock()
	s.nextID++
	id := s.nextID
	s.observers[id] = fn
	s.mu.Unlock()
	return func() {
		s.mu.Lock()
		delete(s.observers, id)
		s.mu.Unlock()
	}
}

func (s *Set[T]) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.members)
}

func (s *Set[T]) Contains(v T) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.members[v]
	return ok
}

// Values returns the members in ascending order.
func (s *Set[T]) Values() []T {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return sortedKeys(s.members)
}

// Add inserts v.
func (s *Set[T]) Add(v T) { s.Union([]T{v}) }

// Discard removes v if present.
func (s *Set[T]) Discard(v T) {
	s.mu.Lock()
	if _, ok := s.members[v]; !ok {
		s.mu.Unlock()
		return
	}
	delete(s.members, v)
	s.mu.Unlock()
	s.emit(Change[T]{Kind: Removed, Values: []T{v}})
}

// Clear removes every member.
func (s *Set[T]) Clear() {
	s.mu.Lock()
	if len(s.members) == 0 {
		s.mu.Unlock()
		return
	}
	old := sortedKeys(s.members)
	s.members = make(map[T]struct{})
	s.mu.Unlock()
	s.emit(Change[T]{Kind: Cleared, Values: old})
}

// Replace makes values the whole membership. It emits Cleared for the former
// members followed by Added for every new member.
func (s *Set[T]) Replace(values []T) {
	s.mu.Lock()
	old := sortedKeys(s.members)
	s.members = make(map[T]struct{}, len(values))
	for _, v := range values {
		s.members[v] = struct{}{}
	}
	added := sortedKeys(s.members)
	s.mu.Unlock()
	if len(old) > 0 {
		s.emit(Change[T]{Kind: Cleared, Values: old})
	}
	if len(added) > 0 {
		s.emit(Change[T]{Kind: Added, Values: added})
	}
}

// Union adds values and reports only the ones that were not members yet.
func (s *Set[T]) Union(values []T) {
	s.mu.Lock()
	added := make(map[T]struct{})
	for _, v := range values {
		if _, ok := s.members[v]; !ok {
			s.members[v] = struct{}{}
			added[v] = struct{}{}
		}
	}
	s.mu.Unlock()
	if len(added) > 0 {
		s.emit(Change[T]{Kind: Added, Values: sortedKeys(added)})
	}
}

// SymmetricDifference toggles the membership of every value.
func (s *Set[T]) SymmetricDifference(values []T) {
	s.mu.Lock()
	removed := make(map[T]struct{})
	added := make(map[T]struct{})
	for _, v := range values {
		if _, seen := removed[v]; seen {
			continue
		}
		if _, seen := added[v]; seen {
			continue
		}
		if _, ok := s.members[v]; ok {
			delete(s.members, v)
			removed[v] = struct{}{}
		} else {
			s.members[v] = struct{}{}
			added[v] = struct{}{}
		}
	}
	s.mu.Unlock()
	if len(removed) > 0 {
		s.emit(Change[T]{Kind: Removed, Values: sortedKeys(removed)})
	}
	if len(added) > 0 {
		s.emit(Change[T]{Kind: Added, Values: sortedKeys(added)})
	}
}

// IntersectionUpdate keeps only the members that also appear in values.
func (s *Set[T]) IntersectionUpdate(values []T) {
	keep := make(map[T]struct{}, len(values))
	for _, v := range values {
		keep[v] = struct{}{}
	}
	s.RemoveFunc(func(v T) bool {
		_, ok := keep[v]
		return !ok
	})
}

// RemoveFunc drops every member for which drop returns true.
func (s *Set[T]) RemoveFunc(drop func(T) bool) {
	s.mu.Lock()
	removed := make(map[T]struct{})
	for v := range s.members {
		if drop(v) {
			removed[v] = struct{}{}
		}
	}
	for v := range removed {
		delete(s.members, v)
	}
	s.mu.Unlock()
	if len(removed) > 0 {
		s.emit(Change[T]{Kind: Removed, Values: sortedKeys(removed)})
	}
}

func (s *Set[T]) emit(c Change[T]) {
	s.mu.RLock()
	ids := make([]int, 0, len(s.observers))
	for id := range s.observers {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	fns := make([]func(Change[T]), 0, len(ids))
	for _, id := range ids {
		fns = append(fns, s.observers[id])
	}
	s.mu.RUnlock()
	for _, fn := range fns {
		fn(c)
	}
}

func sortedKeys[T constraints.Ordered](m map[T]struct{}) []T {
	out := make([]T, 0, len(m))
	for v := range m {
		out = append(out, v)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// Renumber maps indices across a removal: removed indices are dropped and
// every survivor shifts down by the number of removed indices below it.
func Renumber(values, removed []int) []int {
	gone := make(map[int]struct{}, len(removed))
	for _, r := range removed {
		gone[r] = struct{}{}
	}
	sortedRemoved := sortedKeys(gone)
	out := make([]int, 0, len(values))
	for _, v := range values {
		if _, ok := gone[v]; ok {
			continue
		}
		out = append(out, v-sort.SearchInts(sortedRemoved, v))
	}
	sort.Ints(out)
	return out
}
