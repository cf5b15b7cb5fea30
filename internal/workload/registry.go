// SPDX-FileCopyrightText: 2025 Jon Thor Kristinsson
// SPDX-License-Identifier: Apache-2.0

package workload

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/fsnotify/fsnotify"
	"gopkg.in/yaml.v3"

	"github.com/jontk/loadgen/pkg/errors"
	"github.com/jontk/loadgen/pkg/logging"
)

// Override is an operator-editable descriptor that can disable a
// registered workload class or rename its category/description without
// a coordinator restart. One YAML file per workload class, named
// "<className>.yaml", in the directory passed to WatchDir.
type Override struct {
	Disabled     bool   `yaml:"disabled"`
	CategoryName string `yaml:"category_name,omitempty"`
	Description  string `yaml:"description,omitempty"`
}

// Registry maps workload class names to factories, discovered at
// startup, with optional live overrides loaded from a directory.
type Registry struct {
	mu        sync.RWMutex
	factories map[string]Factory
	overrides map[string]Override
	logger    logging.Logger
	watcher   *fsnotify.Watcher
}

// NewRegistry returns an empty registry.
func NewRegistry(logger logging.Logger) *Registry {
	if logger == nil {
		logger = logging.NoOpLogger{}
	}
	return &Registry{
		factories: make(map[string]Factory),
		overrides: make(map[string]Override),
		logger:    logger,
	}
}

// Register adds a workload class factory under name. Registering the
// same name twice replaces the previous factory.
func (r *Registry) Register(name string, factory Factory) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.factories[name] = factory
}

// Get returns a fresh Capability instance for name, failing if the
// class is unknown or has been disabled via an override.
func (r *Registry) Get(name string) (Capability, error) {
	r.mu.RLock()
	factory, ok := r.factories[name]
	override := r.overrides[name]
	r.mu.RUnlock()

	if !ok {
		return nil, errors.NewLoadgenError(errors.ErrorCodeClassNotFound,
			"workload class \""+name+"\" is not registered")
	}
	if override.Disabled {
		return nil, errors.NewLoadgenError(errors.ErrorCodeClassNotValid,
			"workload class \""+name+"\" is disabled")
	}
	return factory(), nil
}

// Names returns every registered workload class name.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.factories))
	for name := range r.factories {
		names = append(names, name)
	}
	return names
}

// LoadOverridesDir reads every "*.yaml" file in dir once, synchronously,
// without starting a watch.
func (r *Registry) LoadOverridesDir(dir string) error {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return err
	}
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".yaml") {
			continue
		}
		r.loadOverrideFile(filepath.Join(dir, entry.Name()))
	}
	return nil
}

// WatchDir starts an fsnotify watch on dir, hot-reloading an override
// whenever its file is written, created, or removed. The watch runs
// until ctx is cancelled.
func (r *Registry) WatchDir(ctx context.Context, dir string) error {
	if err := r.LoadOverridesDir(dir); err != nil {
		return err
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	if err := watcher.Add(dir); err != nil {
		watcher.Close()
		return err
	}
	r.watcher = watcher

	go r.watchLoop(ctx, dir)
	return nil
}

func (r *Registry) watchLoop(ctx context.Context, dir string) {
	defer r.watcher.Close()
	for {
		select {
		case <-ctx.Done():
			return
		case event, ok := <-r.watcher.Events:
			if !ok {
				return
			}
			if !strings.HasSuffix(event.Name, ".yaml") {
				continue
			}
			switch {
			case event.Op&(fsnotify.Write|fsnotify.Create) != 0:
				r.loadOverrideFile(event.Name)
			case event.Op&fsnotify.Remove != 0:
				r.clearOverride(event.Name)
			}
		case err, ok := <-r.watcher.Errors:
			if !ok {
				return
			}
			r.logger.Warn("workload registry watch error", "dir", dir, "error", err.Error())
		}
	}
}

func (r *Registry) loadOverrideFile(path string) {
	data, err := os.ReadFile(path)
	if err != nil {
		r.logger.Warn("failed to read workload override", "path", path, "error", err.Error())
		return
	}
	var override Override
	if err := yaml.Unmarshal(data, &override); err != nil {
		r.logger.Warn("failed to parse workload override", "path", path, "error", err.Error())
		return
	}

	name := className(path)
	r.mu.Lock()
	r.overrides[name] = override
	r.mu.Unlock()
	r.logger.Info("reloaded workload override", "class", name, "disabled", override.Disabled)
}

func (r *Registry) clearOverride(path string) {
	name := className(path)
	r.mu.Lock()
	delete(r.overrides, name)
	r.mu.Unlock()
	r.logger.Info("cleared workload override", "class", name)
}

func className(path string) string {
	base := filepath.Base(path)
	return strings.TrimSuffix(base, filepath.Ext(base))
}
