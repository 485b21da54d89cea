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
	"errors"
	"fmt"
	"image"
	"log/slog"
	"math"

	applog "gopyre/internal/log"
	"gopyre/internal/transform"
)

// ErrOutOfBounds is returned when a point would be created outside the view.
var ErrOutOfBounds = errors.New("position outside image bounds")

// createStage is where a Create command is in its chain of children.
type createStage int

const (
	stageAdd createStage = iota
	stageTranslate
	stageRegister
	stageDone
)

// Create adds a point at the cursor. If the button is still held it hands
// the new point to a nested Translate; with register set it then registers
// the point. Any canceled child rolls the whole creation back.
type Create struct {
	base
	register bool
	stage    createStage
	index    int
	snapshot []transform.ControlPoint
	added    bool
}

func NewCreate(env *Env, req Request, register bool) (*Create, error) {
	name := "create"
	if register {
		name = "create_register"
	}
	c := &Create{register: register, index: -1}
	c.init(c, c, name, env)
	return c, nil
}

// Index returns the index of the created point, or -1.
func (c *Create) Index() int { return c.index }

// start defers creation until the UI goroutine is idle so the view that
// delivered the click has settled.
func (c *Create) start() error {
	c.env.post(c.add)
	return nil
}

func (c *Create) add() {
	if c.status != Active || c.stage != stageAdd {
		return
	}
	target := c.env.Mouse.Get(transform.Target)
	source := c.env.Mouse.Get(transform.Source)
	if at := (transform.ControlPoint{TargetY: target.Y, TargetX: target.X, SourceY: source.Y, SourceX: source.X}).In(c.env.Space); !c.within(at) {
		c.log.Warn("point not created", slog.Any("err", fmt.Errorf("%w: %s", ErrOutOfBounds, at)))
		_ = c.Cancel()
		return
	}
	c.snapshot = c.env.Transform.Points()
	idx, err := c.env.Transform.AddPoint(transform.NewControlPoint(target, source))
	if err != nil {
		if errors.Is(err, transform.ErrNotSupported) {
			c.log.Warn("Current transform does not support create", slog.String("type", c.env.Transform.Type().String()))
		} else {
			c.log.Warn("create failed", slog.Any("err", err))
		}
		_ = c.Cancel()
		return
	}
	c.index, c.added = idx, true
	c.log.Info("point created", applog.Point(idx), slog.String("target", target.String()), slog.String("source", source.String()))
	c.advance(NoResult)
}

func (c *Create) within(p transform.Point) bool {
	b := c.env.Bounds
	if b.Empty() {
		return true
	}
	return image.Pt(int(math.Floor(p.X)), int(math.Floor(p.Y))).In(b)
}

// next is the stage transition table: the stage that follows the current
// one given how the previous child finished.
func (c *Create) next(childResult Result) (createStage, Result) {
	if childResult == Canceled {
		return stageDone, Canceled
	}
	switch c.stage {
	case stageAdd:
		if c.env.leftHeld() {
			return stageTranslate, NoResult
		}
		if c.register {
			return stageRegister, NoResult
		}
	case stageTranslate:
		if c.register {
			return stageRegister, NoResult
		}
	}
	return stageDone, Executed
}

func (c *Create) advance(childResult Result) {
	stage, result := c.next(childResult)
	c.stage = stage
	switch stage {
	case stageTranslate:
		c.env.Selection.Replace([]int{c.index})
		child, err := NewTranslate(c.env, Request{Points: []int{c.index}, Origin: c.env.Mouse.Get(c.env.Space), Nested: true}, false)
		c.spawn(child, err)
	case stageRegister:
		child, err := NewRegister(c.env, Request{Points: []int{c.index}, Nested: true}, false)
		c.spawn(child, err)
	case stageDone:
		if result == Canceled {
			_ = c.Cancel()
			return
		}
		_ = c.Execute()
	}
}

func (c *Create) spawn(child Command, err error) {
	if err != nil {
		c.log.Warn("child command not started", slog.Any("err", err))
		_ = c.Cancel()
		return
	}
	child.OnCompleted(c.onChild)
	c.env.Queue.Put(child)
	if c.status == Active {
		_ = c.Deactivate()
	}
}

func (c *Create) onChild(ev Completion) {
	if ev.Status != Completed || !c.live() {
		return
	}
	c.advance(ev.Result)
}

func (c *Create) commit() error {
	if c.added {
		c.env.saveState(c.name, c.snapshot)
	}
	return nil
}

func (c *Create) rollback() {
	if c.added {
		c.env.Transform.SetPoints(c.snapshot)
		c.env.Selection.Discard(c.index)
	}
}
