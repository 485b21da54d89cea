/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except
 * in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the
 *  specific language governing permissions and limitations under the License.
 */

// Package command implements the editing commands and their lifecycle.
//
// A command starts NotStarted, becomes Active when the editing surface hands
// it the input, and ends Completed with a result of Executed or Canceled. A
// command waiting on a child command goes Inactive first. Every transition
// except entering Active publishes a Completion event to subscribers.
//
// All methods must be called on the editor's UI goroutine.
package command

import (
	"errors"
	"fmt"
	"log/slog"

	"gopyre/internal/input"
	applog "gopyre/internal/log"
)

var (
	// ErrInvalidState is returned for a lifecycle transition the state
	// machine does not allow. It indicates a programming error.
	ErrInvalidState = errors.New("invalid command state")
	// ErrSelectionRequired is returned when a command that edits points
	// is built without any points to edit.
	ErrSelectionRequired = errors.New("selection required")
)

type Status int

const (
	NotStarted Status = iota
	Active
	Inactive
	Completed
)

func (s Status) String() string {
	switch s {
	case NotStarted:
		return "not_started"
	case Active:
		return "active"
	case Inactive:
		return "inactive"
	default:
		return "completed"
	}
}

type Result int

const (
	NoResult Result = iota
	Executed
	Canceled
)

func (r Result) String() string {
	switch r {
	case Executed:
		return "executed"
	case Canceled:
		return "canceled"
	default:
		return "none"
	}
}

// Completion is published when a command goes Inactive or Completed.
type Completion struct {
	Command Command
	Status  Status
	Result  Result
}

// Command is one unit of user interaction.
type Command interface {
	Name() string
	Status() Status
	Result() Result
	Activate() error
	Deactivate() error
	Execute() error
	Cancel() error
	CanExecute() bool
	// OnCompleted subscribes fn to completion events.
	OnCompleted(fn func(Completion)) (unsubscribe func())
	// HandleInput receives input while the command is Active.
	HandleInput(ev input.Event)
}

// hooks are the behaviour a concrete command plugs into base.
type hooks interface {
	start() error
	commit() error
	rollback()
}

var transitions = map[Status][]Status{
	NotStarted: {Active, Inactive},
	Active:     {Inactive, Completed},
	Inactive:   {Completed},
}

type observer struct {
	id int
	fn func(Completion)
}

// base carries the lifecycle shared by every command.
type base struct {
	self   Command
	h      hooks
	name   string
	env    *Env
	status Status
	result Result
	obs    []observer
	nextID int
	log    *slog.Logger
}

func (b *base) init(self Command, h hooks, name string, env *Env) {
	b.self, b.h, b.name, b.env = self, h, name, env
	b.log = applog.WithCommand(env.logger(), name, env.Space.String())
}

func (b *base) Name() string   { return b.name }
func (b *base) Status() Status { return b.status }
func (b *base) Result() Result { return b.result }

// CanExecute reports whether Execute would be accepted now.
func (b *base) CanExecute() bool { return b.allowed(Completed) }

// live reports whether the command still owns its input or child.
func (b *base) live() bool { return b.status == Active || b.status == Inactive }

func (b *base) allowed(to Status) bool {
	for _, s := range transitions[b.status] {
		if s == to {
			return true
		}
	}
	return false
}

func (b *base) check(to Status) error {
	if !b.allowed(to) {
		return fmt.Errorf("%w: %s %s -> %s", ErrInvalidState, b.name, b.status, to)
	}
	return nil
}

func (b *base) OnCompleted(fn func(Completion)) func() {
	b.nextID++
	id := b.nextID
	b.obs = append(b.obs, observer{id: id, fn: fn})
	return func() {
		for i, o := range b.obs {
			if o.id == id {
				b.obs = append(b.obs[:i:i], b.obs[i+1:]...)
				return
			}
		}
	}
}

func (b *base) publish() {
	ev := Completion{Command: b.self, Status: b.status, Result: b.result}
	snapshot := append([]observer(nil), b.obs...)
	b.env.deliver(func() {
		for _, o := range snapshot {
			o.fn(ev)
		}
	})
}

func (b *base) Activate() error {
	if err := b.check(Active); err != nil {
		return err
	}
	b.status = Active
	b.log.Debug("activated")
	if err := b.h.start(); err != nil {
		if b.live() {
			_ = b.Cancel()
		}
		return err
	}
	return nil
}

func (b *base) Deactivate() error {
	if err := b.check(Inactive); err != nil {
		return err
	}
	b.status = Inactive
	b.log.Debug("deactivated")
	b.publish()
	return nil
}

func (b *base) Execute() error {
	if err := b.check(Completed); err != nil {
		return err
	}
	if err := b.h.commit(); err != nil {
		return err
	}
	return b.finish(Executed)
}

func (b *base) Cancel() error {
	if err := b.check(Completed); err != nil {
		return err
	}
	b.h.rollback()
	return b.finish(Canceled)
}

func (b *base) finish(r Result) error {
	b.status, b.result = Completed, r
	b.log.Debug("completed", slog.String("result", r.String()))
	b.publish()
	return nil
}

func (b *base) HandleInput(input.Event) {}
