//go:build fyne && cgo

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
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"

	"fyne.io/fyne/v2"
	"fyne.io/fyne/v2/app"
	"fyne.io/fyne/v2/container"
	"fyne.io/fyne/v2/dialog"
	"fyne.io/fyne/v2/driver/desktop"
	"fyne.io/fyne/v2/widget"

	"gopyre/internal/action"
	"gopyre/internal/config"
	"gopyre/internal/crash"
	"gopyre/internal/export"
	applog "gopyre/internal/log"
	"gopyre/internal/session"
	"gopyre/internal/storage"
	"gopyre/internal/telemetry"
	"gopyre/internal/transform"
	"gopyre/internal/version"
)

// reportOutcomes caps the registration history printed into a report.
const reportOutcomes = 200

// Run starts the Fyne desktop shell. Pass a project directory to open it
// immediately; otherwise the recent projects are listed.
func Run(projectDir string) error {
	l := applog.WithComponent("ui")
	l.Info("starting UI", slog.String("version", version.String()))

	st := &crash.State{}
	defer crash.Recover(st)

	cfg, password, err := config.Load()
	if err != nil {
		l.Warn("config not loaded, using defaults", slog.Any("err", err))
	}
	tcfg := telemetry.FromEnv().WithOptIn(cfg.General.TelemetryOptIn)
	tel := telemetry.NewDefault(tcfg)
	restoreHook := applog.SetHook(slog.LevelWarn, tel.LogEntry)
	defer func() {
		restoreHook()
		ctx, cancel := context.WithTimeout(context.Background(), tcfg.Timeout)
		defer cancel()
		tel.Flush(ctx)
		tel.Close()
	}()
	tel.Event(telemetry.EventStarted, map[string]any{"surface": "ui"})

	fyneApp := app.NewWithID("gopyre")
	fyneApp.Settings().SetTheme(newTheme(cfg.General.Theme))
	w := fyneApp.NewWindow("gopyre")
	prefs := fyneApp.Preferences()
	winW := prefs.IntWithFallback("window.width", 1200)
	winH := prefs.IntWithFallback("window.height", 800)
	if winW < 800 {
		winW = 800
	}
	if winH < 600 {
		winH = 600
	}
	w.Resize(fyne.NewSize(float32(winW), float32(winH)))

	status := widget.NewLabel("Ready")
	var sess *session.Session
	var view *PointView
	var edit *editMenu

	closeSession := func() {
		if sess == nil {
			return
		}
		if err := sess.Close(); err != nil {
			l.Warn("close session", slog.Any("err", err))
		}
		sess, view = nil, nil
		st.Project, st.Capture = nil, nil
		edit.update(nil)
	}

	openSession := func(dir string) {
		s, err := session.Open(context.Background(), dir, session.Options{
			Config:    cfg,
			Password:  password,
			Space:     transform.Target,
			Telemetry: tel,
			Log:       l,
		})
		if err != nil {
			l.Error("open project failed", slog.String("root", dir), slog.Any("err", err))
			dialog.ShowError(err, w)
			return
		}
		closeSession()
		sess = s
		st.Project, st.Capture = s.Project, s.Capture
		s.Loop.SetWake(func() { fyne.Do(func() { s.Loop.RunPending() }) })

		tgt, _ := s.Images.Get(session.TargetKey)
		view = NewPointView(s.Surface, s.Loop, tgt.Image())
		view.OnChanged = func() {
			status.SetText(view.Summary())
			edit.update(s.Surface)
		}
		w.SetTitle(fmt.Sprintf("gopyre - %s", s.Project.Project.Name))
		w.SetContent(container.NewBorder(nil, status, nil, nil, view))
		view.FitImage(w.Canvas().Size())
		status.SetText(view.Summary())
		edit.update(s.Surface)
		addRecentProject(prefs, s.Project.Root)
		if c := w.Canvas(); c != nil {
			c.Focus(view)
		}
	}

	save := func() {
		if sess == nil {
			return
		}
		if err := sess.Save(context.Background()); err != nil {
			dialog.ShowError(err, w)
			return
		}
		status.SetText(fmt.Sprintf("Saved %s", sess.Project.ManifestPath))
	}

	submit := func(a action.Action) {
		if sess == nil {
			return
		}
		if err := sess.Surface.Submit(a); err != nil {
			status.SetText(fmt.Sprintf("%s: %v", a, err))
		}
	}

	exportReport := func() {
		if sess == nil {
			return
		}
		outcomes, err := sess.Recent(context.Background(), reportOutcomes)
		if err != nil {
			dialog.ShowError(err, w)
			return
		}
		sess.Project.Project.Transform = sess.Capture()
		if err := export.ExportAlignmentPDF(sess.Project, outcomes, "alignment.pdf", export.ReportOptions{}); err != nil {
			dialog.ShowError(err, w)
			return
		}
		status.SetText("Report written to " + filepath.Join(sess.Project.Root, storage.ReportsDirName, "alignment.pdf"))
	}

	chooseFolder := func() {
		dialog.ShowFolderOpen(func(lu fyne.ListableURI, err error) {
			if err != nil {
				dialog.ShowError(err, w)
				return
			}
			if lu == nil {
				return
			}
			openSession(lu.Path())
		}, w)
	}

	undo := func() {
		if sess != nil && !sess.Surface.Undo() {
			status.SetText("Nothing to undo")
		}
	}
	redo := func() {
		if sess != nil && !sess.Surface.Redo() {
			status.SetText("Nothing to redo")
		}
	}

	edit = newEditMenu(undo, redo)
	mainMenu := fyne.NewMainMenu(
		fyne.NewMenu("File",
			fyne.NewMenuItem("Open…", chooseFolder),
			fyne.NewMenuItem("Save", save),
			fyne.NewMenuItemSeparator(),
			fyne.NewMenuItem("Export report", exportReport),
		),
		edit.menu(),
		fyne.NewMenu("Points",
			fyne.NewMenuItem("Register selected", func() { submit(action.Register) }),
			fyne.NewMenuItem("Register all", func() { submit(action.RegisterAll) }),
			fyne.NewMenuItem("Delete selected", func() { submit(action.Delete) }),
		),
	)
	edit.refresh = mainMenu.Refresh
	w.SetMainMenu(mainMenu)
	w.Canvas().AddShortcut(&desktop.CustomShortcut{KeyName: fyne.KeyS, Modifier: fyne.KeyModifierShortcutDefault},
		func(fyne.Shortcut) { save() })

	showDashboard := func() {
		recent := loadRecentProjects(prefs)
		list := widget.NewList(
			func() int { return len(recent) },
			func() fyne.CanvasObject { return widget.NewLabel("") },
			func(i widget.ListItemID, o fyne.CanvasObject) {
				if i >= 0 && int(i) < len(recent) {
					o.(*widget.Label).SetText(recent[i])
				}
			},
		)
		list.OnSelected = func(i widget.ListItemID) {
			if i >= 0 && int(i) < len(recent) {
				openSession(recent[i])
			}
		}
		header := widget.NewLabelWithStyle("Recent projects", fyne.TextAlignLeading, fyne.TextStyle{Bold: true})
		open := widget.NewButton("Open project folder…", chooseFolder)
		w.SetContent(container.NewBorder(header, container.NewVBox(open, status), nil, nil, list))
	}

	w.SetOnClosed(func() {
		sz := w.Canvas().Size()
		prefs.SetInt("window.width", int(sz.Width))
		prefs.SetInt("window.height", int(sz.Height))
		closeSession()
	})

	if strings.TrimSpace(projectDir) != "" {
		openSession(projectDir)
	}
	if sess == nil {
		showDashboard()
	}

	w.ShowAndRun()
	return nil
}
