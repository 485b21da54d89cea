/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package log

import (
	"context"
	"log/slog"
	"slices"
	"strconv"
	"strings"
)

// Attribute keys the handlers understand.
const (
	KeyComponent = "component"
	KeyOperation = "op"
	KeyCommand   = "command"
	KeySpace     = "space"
	KeyPoint     = "point"
	KeyPoints    = "points"
	KeyProject   = "project"
)

// Point tags a record with a single control point index.
func Point(i int) slog.Attr { return slog.Int(KeyPoint, i) }

// Points tags a record with a set of control point indices, written as
// compact ranges such as "0-3,7".
func Points(indices []int) slog.Attr { return slog.String(KeyPoints, FormatIndices(indices)) }

// Space tags a record with the coordinate space ("source" or "target").
func Space(name string) slog.Attr { return slog.String(KeySpace, name) }

// FormatIndices renders indices sorted and deduplicated, collapsing runs.
func FormatIndices(indices []int) string {
	if len(indices) == 0 {
		return ""
	}
	s := slices.Clone(indices)
	slices.Sort(s)
	s = slices.Compact(s)
	var b strings.Builder
	for i := 0; i < len(s); {
		j := i
		for j+1 < len(s) && s[j+1] == s[j]+1 {
			j++
		}
		if b.Len() > 0 {
			b.WriteByte(',')
		}
		b.WriteString(strconv.Itoa(s[i]))
		if j > i {
			b.WriteByte('-')
			b.WriteString(strconv.Itoa(s[j]))
		}
		i = j + 1
	}
	return b.String()
}

type projectKey struct{}

// ContextWithProject tags ctx so records logged with it carry the project root.
func ContextWithProject(ctx context.Context, root string) context.Context {
	return context.WithValue(ctx, projectKey{}, root)
}

func projectFrom(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	p, _ := ctx.Value(projectKey{}).(string)
	return p
}
