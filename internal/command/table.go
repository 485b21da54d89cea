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
	"gopyre/internal/action"
	"gopyre/internal/transform"
)

// Factory builds the command for one action.
type Factory func(env *Env, req Request) (Command, error)

func wrap[C Command](build func(*Env, Request) (C, error)) Factory {
	return func(env *Env, req Request) (Command, error) {
		c, err := build(env, req)
		if err != nil {
			return nil, err
		}
		return c, nil
	}
}

var (
	createCmd         = wrap(func(e *Env, r Request) (*Create, error) { return NewCreate(e, r, false) })
	createRegisterCmd = wrap(func(e *Env, r Request) (*Create, error) { return NewCreate(e, r, true) })
	deleteCmd         = wrap(NewDelete)
	translateCmd      = wrap(func(e *Env, r Request) (*Translate, error) { return NewTranslate(e, r, false) })
	translateAllCmd   = wrap(func(e *Env, r Request) (*Translate, error) { return NewTranslate(e, r, true) })
	registerCmd       = wrap(func(e *Env, r Request) (*Register, error) { return NewRegister(e, r, false) })
	registerAllCmd    = wrap(func(e *Env, r Request) (*Register, error) { return NewRegister(e, r, true) })
)

var pointEditing = map[action.Action]Factory{
	action.Create:         createCmd,
	action.CreateRegister: createRegisterCmd,
	action.Delete:         deleteCmd,
	action.Translate:      translateCmd,
	action.TranslateAll:   translateAllCmd,
	action.Register:       registerCmd,
	action.RegisterAll:    registerAllCmd,
}

// table maps a transform type and action to the command that performs it.
var table = map[transform.Type]map[action.Action]Factory{
	transform.Mesh: pointEditing,
	transform.RBF:  pointEditing,
	transform.Grid: {
		action.Translate:    translateCmd,
		action.TranslateAll: translateAllCmd,
		action.Register:     registerCmd,
	},
	transform.Rigid: {},
}

// Lookup returns the factory for a on transforms of type t.
func Lookup(t transform.Type, a action.Action) (Factory, bool) {
	f, ok := table[t][a]
	return f, ok
}
