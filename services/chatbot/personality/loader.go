// Copyright (C) 2025 PersonaCast Authors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package personality

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/fsnotify/fsnotify"
	"gopkg.in/yaml.v3"
)

// profileFile is the on-disk shape of a personality override file. One file
// may carry several profiles.
type profileFile struct {
	Profiles []Profile `yaml:"profiles"`
}

// LoadDir reads every .yaml/.yml file in dir and replaces the catalog's
// profile set with the union of built-ins and the loaded profiles.
//
// # Limitations
//
// A file that fails to parse is skipped with a warning; it does not abort
// the load. Profiles without an ID are dropped.
func (c *Catalog) LoadDir(dir string) error {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return fmt.Errorf("reading personality dir: %w", err)
	}

	var loaded []Profile
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		ext := strings.ToLower(filepath.Ext(entry.Name()))
		if ext != ".yaml" && ext != ".yml" {
			continue
		}

		path := filepath.Join(dir, entry.Name())
		data, err := os.ReadFile(path)
		if err != nil {
			slog.Warn("Skipping unreadable personality file", "path", path, "error", err)
			continue
		}

		var file profileFile
		if err := yaml.Unmarshal(data, &file); err != nil {
			slog.Warn("Skipping malformed personality file", "path", path, "error", err)
			continue
		}
		for _, p := range file.Profiles {
			if p.ID == "" {
				slog.Warn("Skipping personality without id", "path", path)
				continue
			}
			loaded = append(loaded, p)
		}
	}

	// Built-ins stay available underneath the overrides.
	merged := make([]Profile, 0, len(builtins)+len(loaded))
	merged = append(merged, builtins...)
	merged = append(merged, loaded...)
	c.replace(merged)

	slog.Info("Personality profiles loaded", "dir", dir, "override_count", len(loaded))
	return nil
}

// Watch reloads the catalog whenever a YAML file in dir changes. It blocks
// until the done channel closes, so run it on its own goroutine.
func (c *Catalog) Watch(dir string, done <-chan struct{}) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("creating personality watcher: %w", err)
	}
	defer watcher.Close()

	if err := watcher.Add(dir); err != nil {
		return fmt.Errorf("watching personality dir: %w", err)
	}
	slog.Info("Watching personality dir for changes", "dir", dir)

	for {
		select {
		case <-done:
			return nil
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Remove|fsnotify.Rename) == 0 {
				continue
			}
			ext := strings.ToLower(filepath.Ext(event.Name))
			if ext != ".yaml" && ext != ".yml" {
				continue
			}
			slog.Info("Personality file changed, reloading", "path", event.Name)
			if err := c.LoadDir(dir); err != nil {
				slog.Error("Personality reload failed", "error", err)
			}
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			slog.Warn("Personality watcher error", "error", err)
		}
	}
}
