//go:build fyne

/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except
 * in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the
 *  specific language governing permissions and limitations under the License.
 */

package ui

import (
	"image/color"
	"strings"

	"fyne.io/fyne/v2"
	"fyne.io/fyne/v2/theme"
)

// editorTheme applies general.theme from config.yaml. "light" and "dark"
// pin the variant; anything else follows the system.
type editorTheme struct {
	variant fyne.ThemeVariant
	pinned  bool
}

var _ fyne.Theme = (*editorTheme)(nil)

func newTheme(name string) *editorTheme {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "light":
		return &editorTheme{variant: theme.VariantLight, pinned: true}
	case "dark":
		return &editorTheme{variant: theme.VariantDark, pinned: true}
	default:
		return &editorTheme{}
	}
}

func (t *editorTheme) Color(name fyne.ThemeColorName, variant fyne.ThemeVariant) color.Color {
	if t.pinned {
		variant = t.variant
	}
	return theme.DefaultTheme().Color(name, variant)
}

func (t *editorTheme) Font(style fyne.TextStyle) fyne.Resource {
	return theme.DefaultTheme().Font(style)
}

func (t *editorTheme) Icon(name fyne.ThemeIconName) fyne.Resource {
	return theme.DefaultTheme().Icon(name)
}

func (t *editorTheme) Size(name fyne.ThemeSizeName) float32 {
	return theme.DefaultTheme().Size(name)
}
