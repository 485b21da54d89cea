/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except
 * in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the
 *  specific language governing permissions and limitations under the License.
 */

package command

import (
	"context"
	"sync"
)

// Queue is a FIFO of pending commands. Put may be called from any
// goroutine; the editor drains it on the UI goroutine.
type Queue struct {
	mu     sync.Mutex
	items  []Command
	signal chan struct{}
	notify func()
}

func NewQueue() *Queue {
	return &Queue{signal: make(chan struct{}, 1)}
}

// SetNotify installs fn to be called after every Put, outside the lock.
func (q *Queue) SetNotify(fn func()) {
	q.mu.Lock()
	q.notify = fn
	q.mu.Unlock()
}

func (q *Queue) Put(c Command) {
	q.mu.Lock()
	q.items = append(q.items, c)
	notify := q.notify
	q.mu.Unlock()
	select {
	case q.signal <- struct{}{}:
	default:
	}
	if notify != nil {
		notify()
	}
}

// TryGet pops the oldest command without blocking.
func (q *Queue) TryGet() (Command, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.items) == 0 {
		return nil, false
	}
	c := q.items[0]
	q.items[0] = nil
	q.items = q.items[1:]
	return c, true
}

// Get pops the oldest command, waiting for one if the queue is empty.
func (q *Queue) Get(ctx context.Context) (Command, error) {
	for {
		if c, ok := q.TryGet(); ok {
			return c, nil
		}
		select {
		case <-q.signal:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
}

func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

// Clear drops every pending command and returns them.
func (q *Queue) Clear() []Command {
	q.mu.Lock()
	defer q.mu.Unlock()
	out := q.items
	q.items = nil
	return out
}
