/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except
 * in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the
 *  specific language governing permissions and limitations under the License.
 */

package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

type memStore map[string]string

func (m memStore) Get(service, key string) (string, error) { return m[service+"/"+key], nil }
func (m memStore) Set(service, key, value string) error {
	m[service+"/"+key] = value
	return nil
}
func (m memStore) Delete(service, key string) error {
	delete(m, service+"/"+key)
	return nil
}

func isolate(t *testing.T) memStore {
	t.Helper()
	t.Setenv(EnvConfigDir, t.TempDir())
	old := tokenStore
	store := memStore{}
	tokenStore = store
	t.Cleanup(func() { tokenStore = old })
	return store
}

func TestEnvOverridesSearchRadius(t *testing.T) {
	isolate(t)
	t.Setenv(EnvSearchRadiusPx, "14.5")
	cfg, _, err := Load()
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if got, want := cfg.Editor.SearchRadiusPx, 14.5; got != want {
		t.Fatalf("Editor.SearchRadiusPx = %v, want %v", got, want)
	}
	if name, ok := EnvOverrideFor("editor.search_radius_px"); !ok || name != EnvSearchRadiusPx {
		t.Fatalf("EnvOverrideFor = %q %v", name, ok)
	}
}

func TestEnvOverridesTelemetryAndWorkers(t *testing.T) {
	isolate(t)
	t.Setenv(EnvTelemetryOptIn, "true")
	t.Setenv(EnvRegistrationWorkers, "3")
	t.Setenv(EnvSharedDSN, "postgres://lab@db/gopyre")
	cfg, _, err := Load()
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if !cfg.General.TelemetryOptIn {
		t.Fatalf("General.TelemetryOptIn expected true from env override")
	}
	if cfg.Registration.Workers != 3 || cfg.Storage.SharedDSN != "postgres://lab@db/gopyre" {
		t.Fatalf("overrides not applied: %#v %#v", cfg.Registration, cfg.Storage)
	}
}

func TestSaveLoadRoundTripKeepsPasswordOutOfFile(t *testing.T) {
	store := isolate(t)
	cfg := Defaults()
	cfg.Registration.PatchSize = 48
	cfg.Undo.MinIntervalMs = 300
	if err := Save(cfg, "s3cret"); err != nil {
		t.Fatalf("Save() error: %v", err)
	}
	path, _ := ConfigPath()
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read config: %v", err)
	}
	if filepath.Base(path) != "config.yaml" || len(data) == 0 {
		t.Fatalf("unexpected config file %s", path)
	}
	if store[keyringService+"/"+keyringPassword] != "s3cret" {
		t.Fatalf("password not stored in keyring")
	}
	for i := 0; i+6 <= len(data); i++ {
		if string(data[i:i+6]) == "s3cret" {
			t.Fatalf("password leaked into YAML")
		}
	}
	got, pw, err := Load()
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if pw != "s3cret" || got.Registration.PatchSize != 48 || got.Undo.MinInterval() != 300*time.Millisecond {
		t.Fatalf("round trip mismatch: pw=%q cfg=%#v", pw, got)
	}
}

func TestMergeKeepsDefaultsForZeroValues(t *testing.T) {
	dst := Defaults()
	var src AppConfig
	src.Registration.PatchSize = 32
	mergeInto(&dst, &src)
	if dst.Registration.PatchSize != 32 || dst.Registration.SearchRadius != 16 || dst.Editor.SearchRadiusPx != 10 {
		t.Fatalf("merge lost defaults: %#v", dst)
	}
	if dst.Registration.AngleMinDeg != -6 || dst.Registration.AngleStepDeg != 2 {
		t.Fatalf("angle range should stay default without a step: %#v", dst.Registration)
	}
}

func TestMergeIncludesLogging(t *testing.T) {
	dst := Defaults()
	src := Defaults()
	src.Logging.Level = "debug"
	src.Logging.Format = "json"
	src.Logging.Source = true
	src.Logging.File = "/tmp/gopyre.log"
	mergeInto(&dst, &src)
	if dst.Logging.Level != "debug" || dst.Logging.Format != "json" || !dst.Logging.Source || dst.Logging.File != "/tmp/gopyre.log" {
		t.Fatalf("logging fields not merged correctly: %#v", dst.Logging)
	}
}

func TestEnvOverridesLogging(t *testing.T) {
	isolate(t)
	t.Setenv(EnvLogLevel, "error")
	t.Setenv(EnvLogFormat, "json")
	t.Setenv(EnvLogSource, "1")
	t.Setenv(EnvLogFile, "/var/log/gopyre.log")
	cfg, _, err := Load()
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if cfg.Logging.Level != "error" || cfg.Logging.Format != "json" || !cfg.Logging.Source || cfg.Logging.File != "/var/log/gopyre.log" {
		t.Fatalf("env overrides not applied to logging: %#v", cfg.Logging)
	}
}

func TestRegisterTimeoutDefault(t *testing.T) {
	if got := (RegistrationConfig{}).RegisterTimeout(); got != time.Minute {
		t.Fatalf("RegisterTimeout() = %v, want 1m", got)
	}
}

func TestLoggingOptionsFromFileWithEnvOverride(t *testing.T) {
	isolate(t)
	path, err := ConfigPath()
	if err != nil {
		t.Fatalf("ConfigPath() error: %v", err)
	}
	yml := "logging:\n  level: debug\n  format: json\n  file: /tmp/gopyre-session.log\n"
	if err := os.WriteFile(path, []byte(yml), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	t.Setenv(EnvLogLevel, "warn")

	cfg, _, err := Load()
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	opts := cfg.Logging.Options()
	if opts.Level != "warn" {
		t.Fatalf("Level = %q, want env override warn", opts.Level)
	}
	if opts.Format != "json" || opts.File != "/tmp/gopyre-session.log" || opts.AddSource {
		t.Fatalf("file logging section not carried into options: %#v", opts)
	}
}
