/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except
 * in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the
 *  specific language governing permissions and limitations under the License.
 */

package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopyre/internal/action"
	"gopyre/internal/config"
	"gopyre/internal/crash"
	"gopyre/internal/domain"
	"gopyre/internal/export"
	applog "gopyre/internal/log"
	"gopyre/internal/session"
	"gopyre/internal/storage"
	"gopyre/internal/telemetry"
	"gopyre/internal/transform"
	"gopyre/internal/ui"
	"gopyre/internal/version"
)

// recentLimit caps how many registration outcomes inspect and report read.
const recentLimit = 200

func usage(w io.Writer) {
	_, _ = fmt.Fprintln(w, "gopyre - control point editor for section alignment")
	_, _ = fmt.Fprintf(w, "Version: %s\n", version.String())
	_, _ = fmt.Fprintln(w)
	_, _ = fmt.Fprintln(w, "Usage:")
	_, _ = fmt.Fprintln(w, "  gopyre version|-v|--version                     Show version")
	_, _ = fmt.Fprintln(w, "  gopyre init <dir> <name> <source> <target>      Create a project aligning <source> onto <target>")
	_, _ = fmt.Fprintln(w, "       [--type mesh|rbf|grid|rigid]")
	_, _ = fmt.Fprintln(w, "  gopyre inspect <dir>                            Print a project summary")
	_, _ = fmt.Fprintln(w, "  gopyre register <dir> [--all] [--points 0,2,5]  Register points and save")
	_, _ = fmt.Fprintln(w, "  gopyre report <dir> <out.pdf>                   Write an alignment report")
	_, _ = fmt.Fprintln(w, "  gopyre ui [<dir>]                               Launch desktop UI (build with -tags fyne)")
}

func main() {
	initLogging()
	st := &crash.State{}
	defer crash.Recover(st)
	if code := run(os.Args[1:], os.Stdout, st); code != 0 {
		os.Exit(code)
	}
}

// initLogging applies the logging section of config.yaml, with the
// GOPYRE_LOG_* variables taking precedence.
func initLogging() {
	cfg, _, err := config.Load()
	applog.Init(cfg.Logging.Options())
	if err != nil {
		applog.WithComponent("cli").Warn("config not loaded, logging with defaults", slog.Any("err", err))
	}
}

// run executes one subcommand and returns the process exit code.
func run(args []string, out io.Writer, st *crash.State) int {
	l := applog.WithComponent("cli")
	l.Debug("start", slog.Int("args", len(args)))
	if len(args) == 0 {
		usage(out)
		return 0
	}
	var err error
	switch args[0] {
	case "version", "--version", "-v":
		_, _ = fmt.Fprintln(out, "gopyre", version.String())
		return 0
	case "init":
		err = cmdInit(args[1:], out, st)
	case "inspect":
		err = cmdInspect(args[1:], out)
	case "register":
		err = cmdRegister(args[1:], out, st)
	case "report":
		err = cmdReport(args[1:], out)
	case "ui":
		var dir string
		if len(args) >= 2 {
			dir = args[1]
		}
		err = ui.Run(dir)
	default:
		usage(out)
		return 2
	}
	var ue usageError
	switch {
	case errors.As(err, &ue):
		_, _ = fmt.Fprintln(out, ue.msg)
		usage(out)
		return 2
	case err != nil:
		l.Error(args[0]+" failed", slog.Any("err", err))
		_, _ = fmt.Fprintln(out, "Error:", err)
		return 1
	}
	return 0
}

type usageError struct{ msg string }

func (e usageError) Error() string { return e.msg }

func cmdInit(args []string, out io.Writer, st *crash.State) error {
	fs := flag.NewFlagSet("init", flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	typ := fs.String("type", "mesh", "transform type")
	if err := fs.Parse(reorder(args, "type")); err != nil {
		return usageError{msg: err.Error()}
	}
	if fs.NArg() < 4 {
		return usageError{msg: "init requires <dir> <name> <source> <target>"}
	}
	if _, err := transform.ParseType(*typ); err != nil {
		return usageError{msg: err.Error()}
	}
	root, err := filepath.Abs(fs.Arg(0))
	if err != nil {
		return err
	}
	p := domain.Project{
		Name:      fs.Arg(1),
		Source:    domain.ImageRef{Path: imagePath(root, fs.Arg(2))},
		Target:    domain.ImageRef{Path: imagePath(root, fs.Arg(3))},
		Transform: domain.Transform{Type: *typ},
	}
	applog.WithComponent("cli").Info("init project", slog.String("root", root), slog.String("name", p.Name))
	ph, err := storage.InitProject(root, p)
	if err != nil {
		return err
	}
	st.Project = ph
	_, _ = fmt.Fprintln(out, "Created project at", root)
	return nil
}

// imagePath stores images inside the project relative to it and anything
// else as an absolute path.
func imagePath(root, p string) string {
	abs, err := filepath.Abs(p)
	if err != nil {
		return p
	}
	if rel, err := filepath.Rel(root, abs); err == nil && !strings.HasPrefix(rel, "..") {
		return filepath.ToSlash(rel)
	}
	return abs
}

func cmdInspect(args []string, out io.Writer) error {
	if len(args) < 1 {
		return usageError{msg: "inspect requires <dir>"}
	}
	root, err := filepath.Abs(args[0])
	if err != nil {
		return err
	}
	ph, err := storage.Open(root)
	if err != nil {
		return err
	}
	p := ph.Project
	_, _ = fmt.Fprintf(out, "Project: %s\n", p.Name)
	_, _ = fmt.Fprintf(out, "Root: %s\n", ph.Root)
	_, _ = fmt.Fprintf(out, "Source: %s\n", p.Source.Path)
	_, _ = fmt.Fprintf(out, "Target: %s\n", p.Target.Path)
	_, _ = fmt.Fprintf(out, "Transform: %s\n", p.Transform.Type)
	_, _ = fmt.Fprintf(out, "Points: %d\n", len(p.Transform.Points))

	ri, err := storage.OpenResults(ph.Root)
	if err != nil {
		return err
	}
	defer func() { _ = ri.Close() }()
	ctx := applog.ContextWithProject(context.Background(), ph.Root)
	outcomes, err := ri.Recent(ctx, recentLimit)
	if err != nil {
		return err
	}
	applied := 0
	for _, o := range outcomes {
		if o.Applied {
			applied++
		}
	}
	_, _ = fmt.Fprintf(out, "Registrations: %d recent, %d applied\n", len(outcomes), applied)
	if cp, err := ri.LatestCheckpoint(ctx); err == nil && cp != nil {
		_, _ = fmt.Fprintf(out, "Last checkpoint: %s at %s\n", cp.Label, cp.TS.Format(time.RFC3339))
	}
	return nil
}

func cmdRegister(args []string, out io.Writer, st *crash.State) error {
	fs := flag.NewFlagSet("register", flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	all := fs.Bool("all", false, "register every point and drop those that do not align")
	points := fs.String("points", "", "comma separated point indices")
	if err := fs.Parse(reorder(args, "points")); err != nil {
		return usageError{msg: err.Error()}
	}
	if fs.NArg() < 1 {
		return usageError{msg: "register requires <dir>"}
	}
	indices, err := parseIndices(*points)
	if err != nil {
		return usageError{msg: err.Error()}
	}

	cfg, password, err := config.Load()
	if err != nil {
		applog.WithComponent("cli").Warn("config not loaded, using defaults", slog.Any("err", err))
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

	ctx := context.Background()
	s, err := session.Open(ctx, fs.Arg(0), session.Options{Config: cfg, Password: password, Telemetry: tel})
	if err != nil {
		return err
	}
	defer func() { _ = s.Close() }()
	st.Project, st.Capture = s.Project, s.Capture

	a := action.Register
	switch {
	case *all:
		a = action.RegisterAll
	case len(indices) > 0:
		n := s.Points.NumPoints()
		for _, i := range indices {
			if i >= n {
				return usageError{msg: fmt.Sprintf("point %d out of range (%d points)", i, n)}
			}
		}
		s.Surface.Selection().Replace(indices)
	default:
		s.Surface.Selection().Replace(allIndices(s.Points.NumPoints()))
	}

	before := s.Points.NumPoints()
	done, err := s.Run(a)
	if err != nil {
		return err
	}
	if err := s.Save(ctx); err != nil {
		return err
	}
	_, _ = fmt.Fprintf(out, "%s %s: %d points, %d removed\n", done.Command.Name(), done.Result, s.Points.NumPoints(),
		before-s.Points.NumPoints())
	return nil
}

func cmdReport(args []string, out io.Writer) error {
	if len(args) < 2 {
		return usageError{msg: "report requires <dir> and <out.pdf>"}
	}
	root, err := filepath.Abs(args[0])
	if err != nil {
		return err
	}
	ph, err := storage.Open(root)
	if err != nil {
		return err
	}
	ri, err := storage.OpenResults(ph.Root)
	if err != nil {
		return err
	}
	defer func() { _ = ri.Close() }()
	outcomes, err := ri.Recent(context.Background(), recentLimit)
	if err != nil {
		return err
	}
	outPath := args[1]
	if !filepath.IsAbs(outPath) {
		if outPath, err = filepath.Abs(outPath); err != nil {
			return err
		}
	}
	if err := export.ExportAlignmentPDF(ph, outcomes, outPath, export.ReportOptions{}); err != nil {
		return err
	}
	_, _ = fmt.Fprintln(out, "Wrote report to", outPath)
	return nil
}

// reorder moves flags after positional arguments to the front, so
// "register dir --all" parses like "register --all dir". valued names the
// flags that take a value.
func reorder(args []string, valued ...string) []string {
	var flags, rest []string
	for i := 0; i < len(args); i++ {
		a := args[i]
		if !strings.HasPrefix(a, "-") {
			rest = append(rest, a)
			continue
		}
		flags = append(flags, a)
		name := strings.TrimLeft(a, "-")
		if strings.Contains(name, "=") {
			continue
		}
		for _, v := range valued {
			if name == v && i+1 < len(args) {
				i++
				flags = append(flags, args[i])
			}
		}
	}
	return append(flags, rest...)
}

func parseIndices(s string) ([]int, error) {
	if strings.TrimSpace(s) == "" {
		return nil, nil
	}
	var out []int
	for _, f := range strings.Split(s, ",") {
		v, err := strconv.Atoi(strings.TrimSpace(f))
		if err != nil || v < 0 {
			return nil, fmt.Errorf("invalid point index %q", f)
		}
		out = append(out, v)
	}
	return out, nil
}

func allIndices(n int) []int {
	out := make([]int, n)
	for i := range out {
		out[i] = i
	}
	return out
}
