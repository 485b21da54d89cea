/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except
 * in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the
 *  specific language governing permissions and limitations under the License.
 */

package registration

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime"
	"runtime/debug"
	"sync"

	"golang.org/x/sync/semaphore"

	applog "gopyre/internal/log"
)

// ErrTaskPanic wraps a panic raised inside a pool task.
var ErrTaskPanic = errors.New("registration task panicked")

// Pool runs tasks on at most a fixed number of goroutines at once.
type Pool struct {
	sem  *semaphore.Weighted
	size int
	wg   sync.WaitGroup
	log  *slog.Logger
}

// NewPool returns a pool of the given width; zero or less means GOMAXPROCS.
func NewPool(workers int) *Pool {
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}
	return &Pool{sem: semaphore.NewWeighted(int64(workers)), size: workers, log: applog.WithComponent("registration")}
}

func (p *Pool) Size() int { return p.size }

// Wait blocks until every submitted task has finished.
func (p *Pool) Wait() { p.wg.Wait() }

// Submit schedules fn on p and returns its future. A panic in fn resolves
// the future with an error wrapping ErrTaskPanic.
func Submit[T any](ctx context.Context, p *Pool, fn func(context.Context) (T, error)) *Future[T] {
	f, resolve := NewFuture[T]()
	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		var zero T
		if err := p.sem.Acquire(ctx, 1); err != nil {
			resolve(zero, err)
			return
		}
		defer p.sem.Release(1)
		defer func() {
			if r := recover(); r != nil {
				p.log.Error("task panic", slog.Any("panic", r), slog.String("stack", string(debug.Stack())))
				resolve(zero, fmt.Errorf("%w: %v", ErrTaskPanic, r))
			}
		}()
		resolve(fn(ctx))
	}()
	return f
}

// Inline runs fn on the calling goroutine with the same panic handling as
// Submit and returns the already resolved future.
func Inline[T any](ctx context.Context, fn func(context.Context) (T, error)) (f *Future[T]) {
	f, resolve := NewFuture[T]()
	defer func() {
		if r := recover(); r != nil {
			var zero T
			resolve(zero, fmt.Errorf("%w: %v", ErrTaskPanic, r))
		}
	}()
	resolve(fn(ctx))
	return f
}
