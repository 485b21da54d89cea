/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except
 * in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the
 *  specific language governing permissions and limitations under the License.
 */

// Package editor hosts the editing surface: the single logical UI thread
// that owns the selection, drains the command queue and routes input to the
// one active command.
package editor

import (
	"context"
	"sync"
)

// Loop serialises work onto one logical UI goroutine. Post may be called
// from any goroutine; the functions run in order on whichever goroutine
// calls RunPending or Run.
type Loop struct {
	mu      sync.Mutex
	pending []func()
	signal  chan struct{}
	wake    func()
}

func NewLoop() *Loop {
	return &Loop{signal: make(chan struct{}, 1)}
}

// SetWake installs fn to be called after every Post. A toolkit shell uses it
// to schedule RunPending on its own main thread.
func (l *Loop) SetWake(fn func()) {
	l.mu.Lock()
	l.wake = fn
	l.mu.Unlock()
}

// Post queues fn for the UI goroutine.
func (l *Loop) Post(fn func()) {
	if fn == nil {
		return
	}
	l.mu.Lock()
	l.pending = append(l.pending, fn)
	wake := l.wake
	l.mu.Unlock()
	select {
	case l.signal <- struct{}{}:
	default:
	}
	if wake != nil {
		wake()
	}
}

// RunPending runs queued functions until none are left, including those
// posted while it runs. It returns how many ran.
func (l *Loop) RunPending() int {
	n := 0
	for {
		l.mu.Lock()
		batch := l.pending
		l.pending = nil
		l.mu.Unlock()
		if len(batch) == 0 {
			return n
		}
		for _, fn := range batch {
			fn()
			n++
		}
	}
}

// Run drains the loop until ctx is done.
func (l *Loop) Run(ctx context.Context) error {
	for {
		l.RunPending()
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-l.signal:
		}
	}
}
