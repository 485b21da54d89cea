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
	"errors"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	applog "gopyre/internal/log"
)

// AppConfig is the user-editable configuration persisted to a YAML file in the user scope.
// Environment variables are treated as read-only overrides at runtime.
//
// config_version: bump when the structure changes in a backward-incompatible way.
// Unknown fields are ignored on unmarshal.

type GeneralConfig struct {
	TelemetryOptIn bool   `yaml:"telemetry_opt_in"`
	Theme          string `yaml:"theme"` // "system" | "light" | "dark"
}

type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Source bool   `yaml:"source"`
	File   string `yaml:"file"`
}

// Options turns the logging section into logger options.
func (l LoggingConfig) Options() applog.Options {
	return applog.Options{Level: l.Level, Format: l.Format, AddSource: l.Source, File: l.File}
}

// EditorConfig tunes pointer interaction. Distances are screen pixels.
type EditorConfig struct {
	SearchRadiusPx float64 `yaml:"search_radius_px"`
	NudgePx        float64 `yaml:"nudge_px"`
}

type RegistrationConfig struct {
	AngleMinDeg  float64 `yaml:"angle_min_deg"`
	AngleMaxDeg  float64 `yaml:"angle_max_deg"`
	AngleStepDeg float64 `yaml:"angle_step_deg"`
	PatchSize    int     `yaml:"patch_size"`
	SearchRadius int     `yaml:"search_radius"`
	Workers      int     `yaml:"workers"` // 0 means one per CPU
	TimeoutMs    int     `yaml:"timeout_ms"`
	MinWeight    float64 `yaml:"min_weight"`
}

type UndoConfig struct {
	MaxBytes      int `yaml:"max_bytes"`
	MaxDepth      int `yaml:"max_depth"`
	MinIntervalMs int `yaml:"min_interval_ms"`
}

type StorageConfig struct {
	// SharedDSN points at an optional postgres registration log. The
	// password is not stored on disk; it lives in the OS keychain.
	SharedDSN string `yaml:"shared_dsn"`
}

type AppConfig struct {
	ConfigVersion int                `yaml:"config_version"`
	General       GeneralConfig      `yaml:"general"`
	Logging       LoggingConfig      `yaml:"logging"`
	Editor        EditorConfig       `yaml:"editor"`
	Registration  RegistrationConfig `yaml:"registration"`
	Undo          UndoConfig         `yaml:"undo"`
	Storage       StorageConfig      `yaml:"storage"`
}

// Defaults returns the application defaults.
func Defaults() AppConfig {
	return AppConfig{
		ConfigVersion: 1,
		General:       GeneralConfig{TelemetryOptIn: false, Theme: "system"},
		Logging:       LoggingConfig{Level: "info", Format: "console", Source: false, File: ""},
		Editor:        EditorConfig{SearchRadiusPx: 10, NudgePx: 1},
		Registration: RegistrationConfig{
			AngleMinDeg: -6, AngleMaxDeg: 6, AngleStepDeg: 2,
			PatchSize: 64, SearchRadius: 16, Workers: 0, TimeoutMs: 60000, MinWeight: 0,
		},
		Undo: UndoConfig{MaxBytes: 16 * 1024 * 1024, MaxDepth: 200},
	}
}

// Env var names used as overrides.
const (
	EnvTelemetryOptIn      = "GOPYRE_TELEMETRY_OPT_IN"
	EnvSearchRadiusPx      = "GOPYRE_SEARCH_RADIUS_PX"
	EnvRegistrationWorkers = "GOPYRE_REGISTRATION_WORKERS"
	EnvSharedDSN           = "GOPYRE_SHARED_DSN"
	// EnvLogLevel Logging envs
	EnvLogLevel  = "GOPYRE_LOG_LEVEL"
	EnvLogFormat = "GOPYRE_LOG_FORMAT"
	EnvLogSource = "GOPYRE_LOG_SOURCE"
	EnvLogFile   = "GOPYRE_LOG_FILE"
	// EnvConfigDir relocates the config file, mostly for tests and portable installs.
	EnvConfigDir = "GOPYRE_CONFIG_DIR"
)

// Service/keys for OS keyring.
const (
	keyringService  = "gopyre"
	keyringPassword = "shared_db_password"
)

// tokenStore abstracts keyring, so we can stub in tests.
var tokenStore TokenStore = &osKeyring{}

type TokenStore interface {
	Get(service, key string) (string, error)
	Set(service, key, value string) error
	Delete(service, key string) error
}

// osKeyring implements TokenStore using the OS keyring via github.com/zalando/go-keyring.
type osKeyring struct{}

func (k *osKeyring) Get(service, key string) (string, error) { return keyringGet(service, key) }
func (k *osKeyring) Set(service, key, value string) error {
	return keyringSet(service, key, value)
}
func (k *osKeyring) Delete(service, key string) error { return keyringDelete(service, key) }

// ConfigPath returns the per-user config file path.
func ConfigPath() (string, error) {
	var base string
	if dir := strings.TrimSpace(os.Getenv(EnvConfigDir)); dir != "" {
		return filepath.Join(dir, "config.yaml"), nil
	}
	switch runtime.GOOS {
	case "windows":
		base = os.Getenv("AppData")
		if base == "" { // fallback
			base = filepath.Join(os.Getenv("USERPROFILE"), "AppData", "Roaming")
		}
		base = filepath.Join(base, "gopyre")
	case "darwin":
		base = filepath.Join(os.Getenv("HOME"), "Library", "Application Support", "gopyre")
	default: // linux and others
		base = filepath.Join(os.Getenv("HOME"), ".config", "gopyre")
	}
	if base == "" {
		return "", errors.New("cannot resolve config directory")
	}
	return filepath.Join(base, "config.yaml"), nil
}

// Load reads user config file (if present), applies defaults, and merges environment overrides.
// It also loads the shared database password from the keyring (returned separately).
func Load() (AppConfig, string, error) {
	cfg := Defaults()
	path, err := ConfigPath()
	if err != nil {
		applyEnvOverrides(&cfg)
		return cfg, "", err
	}
	if data, err := os.ReadFile(path); err == nil {
		var fileCfg AppConfig
		if err := yaml.Unmarshal(data, &fileCfg); err == nil {
			mergeInto(&cfg, &fileCfg)
		}
	}
	applyEnvOverrides(&cfg)
	pw, _ := tokenStore.Get(keyringService, keyringPassword)
	return cfg, pw, nil
}

// Save writes the user config YAML and persists the password into OS keyring (if non-empty).
func Save(cfg AppConfig, password string) error {
	path, err := ConfigPath()
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return err
	}
	if password != "" {
		if err := tokenStore.Set(keyringService, keyringPassword, password); err != nil {
			return err
		}
	}
	return nil
}

func mergeInto(dst *AppConfig, src *AppConfig) {
	if src.ConfigVersion != 0 {
		dst.ConfigVersion = src.ConfigVersion
	}
	if src.General.Theme != "" {
		dst.General.Theme = src.General.Theme
	}
	// booleans: copy directly from src (file) so user preferences persist
	dst.General.TelemetryOptIn = src.General.TelemetryOptIn
	// logging
	if strings.TrimSpace(src.Logging.Level) != "" {
		dst.Logging.Level = strings.ToLower(strings.TrimSpace(src.Logging.Level))
	}
	if strings.TrimSpace(src.Logging.Format) != "" {
		dst.Logging.Format = strings.ToLower(strings.TrimSpace(src.Logging.Format))
	}
	dst.Logging.Source = src.Logging.Source
	if strings.TrimSpace(src.Logging.File) != "" {
		dst.Logging.File = strings.TrimSpace(src.Logging.File)
	}
	// editor
	if src.Editor.SearchRadiusPx > 0 {
		dst.Editor.SearchRadiusPx = src.Editor.SearchRadiusPx
	}
	if src.Editor.NudgePx > 0 {
		dst.Editor.NudgePx = src.Editor.NudgePx
	}
	// registration: a zero angle range is legal, so the range is taken
	// whenever a step is given
	r := src.Registration
	if r.AngleStepDeg > 0 {
		dst.Registration.AngleMinDeg = r.AngleMinDeg
		dst.Registration.AngleMaxDeg = r.AngleMaxDeg
		dst.Registration.AngleStepDeg = r.AngleStepDeg
	}
	if r.PatchSize > 0 {
		dst.Registration.PatchSize = r.PatchSize
	}
	if r.SearchRadius > 0 {
		dst.Registration.SearchRadius = r.SearchRadius
	}
	if r.Workers > 0 {
		dst.Registration.Workers = r.Workers
	}
	if r.TimeoutMs > 0 {
		dst.Registration.TimeoutMs = r.TimeoutMs
	}
	if r.MinWeight > 0 {
		dst.Registration.MinWeight = r.MinWeight
	}
	// undo
	if src.Undo.MaxBytes > 0 {
		dst.Undo.MaxBytes = src.Undo.MaxBytes
	}
	if src.Undo.MaxDepth > 0 {
		dst.Undo.MaxDepth = src.Undo.MaxDepth
	}
	if src.Undo.MinIntervalMs > 0 {
		dst.Undo.MinIntervalMs = src.Undo.MinIntervalMs
	}
	if strings.TrimSpace(src.Storage.SharedDSN) != "" {
		dst.Storage.SharedDSN = strings.TrimSpace(src.Storage.SharedDSN)
	}
}

func truthy(v string) bool {
	lv := strings.ToLower(v)
	return lv == "1" || lv == "true" || lv == "on" || lv == "yes"
}

func applyEnvOverrides(cfg *AppConfig) {
	if v := strings.TrimSpace(os.Getenv(EnvTelemetryOptIn)); v != "" {
		cfg.General.TelemetryOptIn = truthy(v)
	}
	if v := strings.TrimSpace(os.Getenv(EnvSearchRadiusPx)); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil && f > 0 {
			cfg.Editor.SearchRadiusPx = f
		}
	}
	if v := strings.TrimSpace(os.Getenv(EnvRegistrationWorkers)); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n >= 0 {
			cfg.Registration.Workers = n
		}
	}
	if v := strings.TrimSpace(os.Getenv(EnvSharedDSN)); v != "" {
		cfg.Storage.SharedDSN = v
	}
	// logging overrides
	if v := strings.TrimSpace(os.Getenv(EnvLogLevel)); v != "" {
		cfg.Logging.Level = strings.ToLower(v)
	}
	if v := strings.TrimSpace(os.Getenv(EnvLogFormat)); v != "" {
		cfg.Logging.Format = strings.ToLower(v)
	}
	if v := strings.TrimSpace(os.Getenv(EnvLogSource)); v != "" {
		cfg.Logging.Source = truthy(v)
	}
	if v := strings.TrimSpace(os.Getenv(EnvLogFile)); v != "" {
		cfg.Logging.File = v
	}
}

// EnvOverrideFor returns the env var name if the field is overridden by environment variables.
func EnvOverrideFor(key string) (string, bool) {
	env := map[string]string{
		"general.telemetry_opt_in": EnvTelemetryOptIn,
		"editor.search_radius_px":  EnvSearchRadiusPx,
		"registration.workers":     EnvRegistrationWorkers,
		"storage.shared_dsn":       EnvSharedDSN,
		"logging.level":            EnvLogLevel,
		"logging.format":           EnvLogFormat,
		"logging.source":           EnvLogSource,
		"logging.file":             EnvLogFile,
	}[key]
	if env != "" && os.Getenv(env) != "" {
		return env, true
	}
	return "", false
}

// RegisterTimeout bounds the join of one registration batch.
func (r RegistrationConfig) RegisterTimeout() time.Duration {
	if r.TimeoutMs <= 0 {
		return time.Duration(Defaults().Registration.TimeoutMs) * time.Millisecond
	}
	return time.Duration(r.TimeoutMs) * time.Millisecond
}

func (u UndoConfig) MinInterval() time.Duration {
	return time.Duration(u.MinIntervalMs) * time.Millisecond
}
