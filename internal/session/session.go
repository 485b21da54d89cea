/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except
 * in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the
 *  specific language governing permissions and limitations under the License.
 */

// Package session opens an alignment project for editing. It loads the
// images, starts the registration worker pool, opens the result stores and
// builds the editing surface over the project's control points. The CLI
// and the desktop shell both work through a Session.
package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"

	"gopyre/internal/action"
	"gopyre/internal/command"
	"gopyre/internal/config"
	"gopyre/internal/domain"
	"gopyre/internal/editor"
	"gopyre/internal/imagery"
	applog "gopyre/internal/log"
	"gopyre/internal/registration"
	"gopyre/internal/storage"
	"gopyre/internal/telemetry"
	"gopyre/internal/transform"
)

// Image keys the surface and the worker agree on.
const (
	SourceKey = "source"
	TargetKey = "target"
)

// keepCheckpoints bounds the checkpoint table on every save.
const keepCheckpoints = 50

// ErrCanceled is returned when a submitted command ends Canceled.
var ErrCanceled = errors.New("command canceled")

// Options configure Open.
type Options struct {
	Config config.AppConfig
	// Password overrides the password of Config.Storage.SharedDSN.
	Password  string
	Space     transform.Space
	Telemetry telemetry.Recorder
	Log       *slog.Logger
}

// Session is one open project.
type Session struct {
	Project *storage.ProjectHandle
	Points  *transform.PointSet
	Images  *imagery.Manager
	Loop    *editor.Loop
	Surface *editor.Surface
	Results *storage.ResultIndex

	shared *storage.SharedLog
	pool   *registration.Pool
	last   *command.Completion
	log    *slog.Logger
}

// Open loads the project at dir. A damaged result index is rebuilt; an
// unreachable shared log is skipped with a warning.
func Open(ctx context.Context, dir string, opts Options) (*Session, error) {
	l := opts.Log
	if l == nil {
		l = applog.WithComponent("session")
	}
	abs, err := filepath.Abs(dir)
	if err != nil {
		return nil, err
	}
	ph, err := storage.Open(abs)
	if err != nil {
		return nil, err
	}
	l = l.With(slog.String("project", ph.Project.Name))
	ps, err := ph.Project.Transform.Controller()
	if err != nil {
		return nil, err
	}

	images := imagery.NewManager()
	src, err := images.Load(SourceKey, ph.Resolve(ph.Project.Source.Path), ph.Resolve(ph.Project.Source.Mask))
	if err != nil {
		return nil, fmt.Errorf("load source image: %w", err)
	}
	tgt, err := images.Load(TargetKey, ph.Resolve(ph.Project.Target.Path), ph.Resolve(ph.Project.Target.Mask))
	if err != nil {
		return nil, fmt.Errorf("load target image: %w", err)
	}

	if rebuilt, err := storage.DetectAndRebuildIndex(ctx, ph.Root); err != nil {
		return nil, fmt.Errorf("check result index: %w", err)
	} else if rebuilt {
		l.Warn("result index was damaged and has been rebuilt")
	}
	results, err := storage.OpenResults(ph.Root)
	if err != nil {
		return nil, fmt.Errorf("open result index: %w", err)
	}

	s := &Session{Project: ph, Points: ps, Images: images, Results: results, log: l}
	sinks := registration.Sinks{results}
	if dsn := opts.Config.Storage.SharedDSN; dsn != "" {
		shared, err := storage.OpenShared(ctx, dsn, opts.Password, ph.Project.Name)
		if err != nil {
			l.Warn("shared registration log unavailable", slog.Any("err", err))
		} else {
			s.shared = shared
			sinks = append(sinks, shared)
		}
	}

	rc := opts.Config.Registration
	s.pool = registration.NewPool(rc.Workers)
	worker := registration.NewWorker(images, s.pool, registration.Settings{
		AngleMinDeg:  rc.AngleMinDeg,
		AngleMaxDeg:  rc.AngleMaxDeg,
		AngleStepDeg: rc.AngleStepDeg,
		PatchSize:    rc.PatchSize,
		SearchRadius: rc.SearchRadius,
		MinWeight:    rc.MinWeight,
	})

	eo := editor.OptionsFromConfig(opts.Config)
	eo.Space = opts.Space
	eo.Bounds = tgt.Bounds()
	if opts.Space == transform.Source {
		eo.Bounds = src.Bounds()
	}
	eo.Registrar = worker
	eo.Results = sinks
	eo.SourceKey = SourceKey
	eo.TargetKey = TargetKey
	eo.Checkpoints = results
	eo.Telemetry = opts.Telemetry
	eo.Log = applog.WithComponent("editor").With(slog.String("project", ph.Project.Name))

	s.Loop = editor.NewLoop()
	s.Surface = editor.New(ps, s.Loop, eo)
	s.Surface.OnCommandCompleted(func(c command.Completion) { s.last = &c })
	s.Surface.Start()
	l.Info("session opened", slog.String("root", ph.Root), slog.String("type", ps.Type().String()),
		slog.Int("points", ps.NumPoints()), slog.Int("workers", s.pool.Size()))
	return s, nil
}

// Capture returns the live transform in manifest form.
func (s *Session) Capture() domain.Transform { return domain.Capture(s.Points) }

// Run submits a and turns the loop until it has finished. It is the
// headless way to drive a command; the desktop shell submits instead.
func (s *Session) Run(a action.Action) (command.Completion, error) {
	s.last = nil
	if err := s.Surface.Submit(a); err != nil {
		return command.Completion{}, err
	}
	s.Loop.RunPending()
	if s.last == nil {
		return command.Completion{}, fmt.Errorf("%s did not finish", a)
	}
	done := *s.last
	if done.Result == command.Canceled {
		return done, fmt.Errorf("%s: %w", done.Command.Name(), ErrCanceled)
	}
	return done, nil
}

// Save writes the live points to the manifest and trims old checkpoints.
func (s *Session) Save(ctx context.Context) error {
	s.Project.Project.Transform = s.Capture()
	if err := storage.Save(s.Project); err != nil {
		return err
	}
	if n, err := s.Results.PruneCheckpoints(ctx, keepCheckpoints); err != nil {
		s.log.Warn("prune checkpoints failed", slog.Any("err", err))
	} else if n > 0 {
		s.log.Debug("checkpoints pruned", slog.Int64("removed", n))
	}
	s.log.Info("project saved", slog.Int("total", s.Points.NumPoints()))
	return nil
}

// Recent returns the newest registration outcomes, newest first.
func (s *Session) Recent(ctx context.Context, limit int) ([]registration.Outcome, error) {
	return s.Results.Recent(ctx, limit)
}

// Close cancels the active command, waits for outstanding searches and
// closes the stores. It does not save.
func (s *Session) Close() error {
	s.Surface.Close()
	s.pool.Wait()
	var errs []error
	if s.shared != nil {
		errs = append(errs, s.shared.Close())
	}
	errs = append(errs, s.Results.Close())
	return errors.Join(errs...)
}
