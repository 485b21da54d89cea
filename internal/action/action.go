/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except
 * in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the
 *  specific language governing permissions and limitations under the License.
 */

// Package action classifies input events into editing actions. Rules are
// shared across transform types; what varies per type comes from the
// transform capability table.
package action

import (
	"strings"
)

// Action is a bit flag. Several may be set when describing what could
// happen next; a resolved action has exactly one bit set.
type Action uint32

const (
	None   Action = 0
	Create Action = 1 << iota
	CreateRegister
	Delete
	Translate
	TranslateAll
	Register
	RegisterAll
	Select
	Rotate
	Recall
	ReplaceSelection
	AppendSelection
	ToggleSelection
	CallToMouse
)

var actionNames = []struct {
	a    Action
	name string
}{
	{Create, "create"},
	{CreateRegister, "create_register"},
	{Delete, "delete"},
	{Translate, "translate"},
	{TranslateAll, "translate_all"},
	{Register, "register"},
	{RegisterAll, "register_all"},
	{Select, "select"},
	{Rotate, "rotate"},
	{Recall, "recall"},
	{ReplaceSelection, "replace_selection"},
	{AppendSelection, "append_selection"},
	{ToggleSelection, "toggle_selection"},
	{CallToMouse, "call_to_mouse"},
}

// Has reports whether every bit of x is set in a.
func (a Action) Has(x Action) bool { return x != None && a&x == x }

func (a Action) String() string {
	if a == None {
		return "none"
	}
	var parts []string
	for _, n := range actionNames {
		if a&n.a != 0 {
			parts = append(parts, n.name)
		}
	}
	return strings.Join(parts, "|")
}
