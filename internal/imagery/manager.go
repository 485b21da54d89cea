/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except
 * in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the
 *  specific language governing permissions and limitations under the License.
 */

package imagery

import (
	"errors"
	"fmt"
	"image"
	_ "image/jpeg"
	_ "image/png"
	"log/slog"
	"os"
	"sync"

	_ "golang.org/x/image/tiff"

	applog "gopyre/internal/log"
)

// ErrUnknownImage is returned when a key has no registered image.
var ErrUnknownImage = errors.New("unknown image")

// Manager maps image keys to helpers. It is safe for concurrent use; worker
// goroutines read helpers while the UI registers new ones.
type Manager struct {
	mu      sync.RWMutex
	helpers map[string]*Helper
	log     *slog.Logger
}

func NewManager() *Manager {
	return &Manager{helpers: map[string]*Helper{}, log: applog.WithComponent("imagery")}
}

// Get returns the helper for key.
func (m *Manager) Get(key string) (*Helper, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	h, ok := m.helpers[key]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownImage, key)
	}
	return h, nil
}

func (m *Manager) Put(key string, h *Helper) {
	m.mu.Lock()
	m.helpers[key] = h
	m.mu.Unlock()
}

// Load decodes the image at path, and the mask at maskPath when given, and
// registers them under key.
func (m *Manager) Load(key, path, maskPath string) (*Helper, error) {
	img, err := Decode(path)
	if err != nil {
		return nil, err
	}
	var mask image.Image
	if maskPath != "" {
		if mask, err = Decode(maskPath); err != nil {
			return nil, err
		}
		if !mask.Bounds().Eq(img.Bounds()) {
			return nil, fmt.Errorf("mask %s is %v, image is %v", maskPath, mask.Bounds(), img.Bounds())
		}
	}
	h := NewHelper(key, img, mask)
	m.Put(key, h)
	m.log.Info("image loaded", slog.String("key", key), slog.String("path", path),
		slog.Int("width", img.Bounds().Dx()), slog.Int("height", img.Bounds().Dy()), slog.Bool("masked", mask != nil))
	return h, nil
}

// Decode reads a TIFF, PNG or JPEG file.
func Decode(path string) (image.Image, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	img, format, err := image.Decode(f)
	if err != nil {
		return nil, fmt.Errorf("decode %s: %w", path, err)
	}
	applog.WithComponent("imagery").Debug("decoded", slog.String("path", path), slog.String("format", format))
	return img, nil
}
