/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

// Package crash turns a panic in the editor into a report file and an
// autosave of the live control points.
package crash

import (
	"bytes"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"runtime/debug"
	"time"

	"gopyre/internal/domain"
	applog "gopyre/internal/log"
	"gopyre/internal/storage"
	"gopyre/internal/telemetry"
	"gopyre/internal/version"
)

// exitFn is replaced in tests.
var exitFn = os.Exit

// State is what the crash handler knows about the open alignment. Callers
// defer Recover with a pointer and fill the fields in once a project is open.
type State struct {
	Project *storage.ProjectHandle
	// Capture returns the editor's live transform. It may be nil.
	Capture func() domain.Transform
}

// Recover must be deferred directly:
//
//	st := &crash.State{}
//	defer crash.Recover(st)
//
// On panic it logs the stack, writes a report, autosaves the live points
// next to the manifest backups and exits with code 2.
func Recover(st *State) {
	r := recover()
	if r == nil {
		return
	}
	if st == nil {
		st = &State{}
	}
	l := applog.WithComponent("crash")
	stack := debug.Stack()
	l.Error("panic recovered", slog.Any("panic", r), slog.String("stack", string(stack)))

	if st.Project != nil && st.Capture != nil {
		if tr, ok := capture(st.Capture); ok {
			st.Project.Project.Transform = tr
		} else {
			l.Warn("live points unavailable, autosaving last loaded points")
		}
	}
	reportPath, err := writeReport(st.Project, r, stack)
	if err != nil {
		l.Error("write crash report failed", slog.Any("err", err))
	}
	if st.Project != nil {
		if path, err := storage.AutosaveCrashSnapshot(st.Project); err != nil {
			l.Error("autosave crash snapshot failed", slog.Any("err", err))
		} else {
			l.Info("autosave crash snapshot written", slog.String("path", path))
		}
	}

	_, _ = fmt.Fprintf(os.Stderr, "A fatal error occurred. A crash report was saved to: %s\n", reportPath)
	_, _ = fmt.Fprintf(os.Stderr, "Version: %s\nOS/Arch: %s/%s\n", version.String(), runtime.GOOS, runtime.GOARCH)
	exitFn(2)
}

// capture calls fn and survives a second panic from the broken editor.
func capture(fn func() domain.Transform) (tr domain.Transform, ok bool) {
	defer func() {
		if recover() != nil {
			ok = false
		}
	}()
	return fn(), true
}

func writeReport(ph *storage.ProjectHandle, panicVal any, stack []byte) (string, error) {
	dir := os.TempDir()
	if ph != nil && ph.Root != "" {
		dir = filepath.Join(ph.Root, storage.BackupsDirName)
		_ = os.MkdirAll(dir, 0o755)
	}
	path := filepath.Join(dir, fmt.Sprintf("crash-%s.log", time.Now().Format("20060102-150405")))

	var buf bytes.Buffer
	_, _ = fmt.Fprintf(&buf, "gopyre Crash Report\n")
	_, _ = fmt.Fprintf(&buf, "Timestamp: %s\n", time.Now().Format(time.RFC3339))
	_, _ = fmt.Fprintf(&buf, "Version: %s\n", version.String())
	_, _ = fmt.Fprintf(&buf, "OS/Arch: %s/%s\n", runtime.GOOS, runtime.GOARCH)
	if ph != nil {
		_, _ = fmt.Fprintf(&buf, "ProjectRoot: %s\n", ph.Root)
		_, _ = fmt.Fprintf(&buf, "Transform: %s (%d points)\n", ph.Project.Transform.Type, len(ph.Project.Transform.Points))
	}
	_, _ = fmt.Fprintf(&buf, "\nPanic: %v\n\n", panicVal)
	_, _ = fmt.Fprintf(&buf, "Stack:\n%s\n", stack)

	f, err := os.OpenFile(path, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o644)
	if err != nil {
		return path, err
	}
	defer func() {
		if err := f.Close(); err != nil {
			applog.WithComponent("crash").Error("failed to close crash report file", slog.Any("err", err), slog.String("path", path))
		}
	}()
	if _, err := f.Write(buf.Bytes()); err != nil {
		return path, err
	}
	_ = f.Sync()

	// The report never contains point coordinates, only counts.
	telemetry.UploadCrash(buf.Bytes())
	return path, nil
}
