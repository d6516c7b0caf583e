// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package installer

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"
)

// ErrInvalidWorkspace is returned by [Workspace.Validate].
var ErrInvalidWorkspace = errors.New("installer: invalid workspace")

// Workspace names the two directories a compile owns. Compile removes
// and recreates both, so neither may hold anything else of value.
type Workspace struct {
	// WorkingDir receives a copy of the sources and is the build
	// script's working directory.
	WorkingDir string

	// InstallDir is exported to the build script as the install
	// target and holds the compiled artifact plus the cache records.
	InstallDir string
}

// Validate checks that both directories are absolute, distinct and not
// nested inside one another.
func (w Workspace) Validate() error {
	var errs []error
	if w.WorkingDir == "" {
		errs = append(errs, errors.New("working directory is required"))
	} else if !filepath.IsAbs(w.WorkingDir) {
		errs = append(errs, fmt.Errorf("working directory %q must be absolute", w.WorkingDir))
	}
	if w.InstallDir == "" {
		errs = append(errs, errors.New("install directory is required"))
	} else if !filepath.IsAbs(w.InstallDir) {
		errs = append(errs, fmt.Errorf("install directory %q must be absolute", w.InstallDir))
	}
	if len(errs) == 0 {
		working := filepath.Clean(w.WorkingDir)
		install := filepath.Clean(w.InstallDir)
		switch {
		case working == install:
			errs = append(errs, fmt.Errorf("working and install directories are both %q", working))
		case isWithin(working, install), isWithin(install, working):
			errs = append(errs, fmt.Errorf("working directory %q and install directory %q are nested", working, install))
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("%w: %w", ErrInvalidWorkspace, errors.Join(errs...))
	}
	return nil
}

// CheckSourceDir rejects a source directory nested with either
// workspace directory in either direction. Compile copies sourceDir
// into WorkingDir, fingerprints it, and wipes both workspace
// directories first.
func (w Workspace) CheckSourceDir(sourceDir string) error {
	if !filepath.IsAbs(sourceDir) {
		return fmt.Errorf("%w: source directory %q must be absolute", ErrInvalidWorkspace, sourceDir)
	}
	source := filepath.Clean(sourceDir)
	var errs []error
	for _, dir := range []struct{ name, path string }{
		{"working directory", w.WorkingDir},
		{"install directory", w.InstallDir},
	} {
		path := filepath.Clean(dir.path)
		switch {
		case isWithin(path, source):
			errs = append(errs, fmt.Errorf("%s %q is inside source directory %q", dir.name, path, source))
		case isWithin(source, path):
			errs = append(errs, fmt.Errorf("source directory %q is inside %s %q", source, dir.name, path))
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("%w: %w", ErrInvalidWorkspace, errors.Join(errs...))
	}
	return nil
}

// lockPath is the flock file guarding compiles in this workspace. It
// sits beside WorkingDir so wiping WorkingDir does not remove it.
func (w Workspace) lockPath() string {
	return filepath.Clean(w.WorkingDir) + ".lock"
}

func isWithin(path, root string) bool {
	rel, err := filepath.Rel(root, path)
	if err != nil {
		return false
	}
	return rel == "." || (rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator)))
}
