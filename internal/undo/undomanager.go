/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except
 * in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the
 *  specific language governing permissions and limitations under the License.
 */

package undo

import (
	"sync"
	"time"

	"gopyre/internal/transform"
)

// pointBytes estimates the memory held by one control point.
const pointBytes = 32

// Snapshot is the point array of one transform before an edit.
// Key names the transform, Label the command that changed it.
type Snapshot struct {
	Key    string
	Label  string
	Points []transform.ControlPoint
	TS     time.Time
}

func (s Snapshot) size() int { return len(s.Points) * pointBytes }

// Config controls memory and depth caps and coalescing behavior.
type Config struct {
	// MaxBytes is a soft cap; older entries are pruned when exceeded.
	MaxBytes int
	// MaxPerKey limits the undo depth per transform (0 means unlimited).
	MaxPerKey int
	// MinInterval merges snapshots of the same transform taken within the
	// interval into one undo step. Zero keeps every step.
	MinInterval time.Duration
}

// Manager keeps undo and redo stacks per transform. It is safe for
// concurrent use.
type Manager struct {
	cfg Config
	mu  sync.Mutex
	// per-transform stacks
	undo map[string][]Snapshot
	redo map[string][]Snapshot
	// accounting
	totalBytes int
}

func NewManager(cfg Config) *Manager {
	if cfg.MaxBytes <= 0 {
		cfg.MaxBytes = 16 * 1024 * 1024 // 16 MiB
	}
	return &Manager{cfg: cfg, undo: make(map[string][]Snapshot), redo: make(map[string][]Snapshot)}
}

// PushSnapshot records the state before an edit and clears the redo stack
// of that transform. A snapshot within MinInterval of the previous one is
// merged into it, keeping the older points.
func (m *Manager) PushSnapshot(s Snapshot) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s.Points = append([]transform.ControlPoint(nil), s.Points...)
	m.dropRedoLocked(s.Key)
	stack := m.undo[s.Key]
	if n := len(stack); n > 0 && m.cfg.MinInterval > 0 && s.TS.Sub(stack[n-1].TS) < m.cfg.MinInterval {
		stack[n-1].Label = s.Label
		stack[n-1].TS = s.TS
		return
	}
	m.undo[s.Key] = append(stack, s)
	m.totalBytes += s.size()
	m.enforceCapsLocked(s.Key)
}

// Undo pops the newest snapshot of key. current is the state being left;
// it goes on the redo stack under the popped label.
func (m *Manager) Undo(key string, current []transform.ControlPoint) (Snapshot, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	stack := m.undo[key]
	if len(stack) == 0 {
		return Snapshot{}, false
	}
	s := stack[len(stack)-1]
	m.undo[key] = stack[:len(stack)-1]
	m.totalBytes -= s.size()
	r := Snapshot{Key: key, Label: s.Label, Points: append([]transform.ControlPoint(nil), current...), TS: time.Now()}
	m.redo[key] = append(m.redo[key], r)
	m.totalBytes += r.size()
	return s, true
}

// Redo pops the newest undone state of key and pushes current back onto
// the undo stack.
func (m *Manager) Redo(key string, current []transform.ControlPoint) (Snapshot, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r := m.redo[key]
	if len(r) == 0 {
		return Snapshot{}, false
	}
	s := r[len(r)-1]
	m.redo[key] = r[:len(r)-1]
	m.totalBytes -= s.size()
	u := Snapshot{Key: key, Label: s.Label, Points: append([]transform.ControlPoint(nil), current...), TS: time.Now()}
	m.undo[key] = append(m.undo[key], u)
	m.totalBytes += u.size()
	m.enforceCapsLocked(key)
	return s, true
}

// CanUndo reports whether key has an undo step and the label it would undo.
func (m *Manager) CanUndo(key string) (string, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	stack := m.undo[key]
	if len(stack) == 0 {
		return "", false
	}
	return stack[len(stack)-1].Label, true
}

// CanRedo reports whether key has a redo step and its label.
func (m *Manager) CanRedo(key string) (string, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r := m.redo[key]
	if len(r) == 0 {
		return "", false
	}
	return r[len(r)-1].Label, true
}

// Clear drops both stacks of a transform to free memory.
func (m *Manager) Clear(key string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, s := range m.undo[key] {
		m.totalBytes -= s.size()
	}
	m.dropRedoLocked(key)
	delete(m.undo, key)
	if m.totalBytes < 0 {
		m.totalBytes = 0
	}
}

// Stats returns current sizes for diagnostics.
func (m *Manager) Stats() (totalBytes int, keys int, totalSnapshots int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	keys = len(m.undo)
	for _, v := range m.undo {
		totalSnapshots += len(v)
	}
	return m.totalBytes, keys, totalSnapshots
}

func (m *Manager) dropRedoLocked(key string) {
	for _, s := range m.redo[key] {
		m.totalBytes -= s.size()
	}
	delete(m.redo, key)
}

func (m *Manager) enforceCapsLocked(key string) {
	if m.cfg.MaxPerKey > 0 {
		stack := m.undo[key]
		if len(stack) > m.cfg.MaxPerKey {
			// drop the oldest extras
			toDrop := len(stack) - m.cfg.MaxPerKey
			for i := 0; i < toDrop; i++ {
				m.totalBytes -= stack[i].size()
			}
			m.undo[key] = append([]Snapshot{}, stack[toDrop:]...)
		}
	}
	// Global memory cap: prune oldest across all transforms
	for m.cfg.MaxBytes > 0 && m.totalBytes > m.cfg.MaxBytes {
		oldestKey := ""
		found := false
		var oldestTS time.Time
		for key, stack := range m.undo {
			if len(stack) == 0 {
				continue
			}
			if !found || stack[0].TS.Before(oldestTS) {
				oldestKey, oldestTS, found = key, stack[0].TS, true
			}
		}
		if !found {
			break
		}
		stack := m.undo[oldestKey]
		m.totalBytes -= stack[0].size()
		m.undo[oldestKey] = stack[1:]
		if len(m.undo[oldestKey]) == 0 {
			delete(m.undo, oldestKey)
		}
	}
}
