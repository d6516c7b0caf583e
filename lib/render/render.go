// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package render

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"text/template"

	"github.com/bureau-foundation/proxysandbox/lib/atomicfile"
)

var (
	// ErrTemplateNotFound is returned when the template file is
	// missing, unreadable, or does not parse.
	ErrTemplateNotFound = errors.New("render: template not found")

	// ErrRenderTargetUnwritable is returned when the rendered output
	// cannot be placed at the output path.
	ErrRenderTargetUnwritable = errors.New("render: target unwritable")

	// ErrRenderFailed is returned when template execution fails, for
	// example on a reference to an undefined slot.
	ErrRenderFailed = errors.New("render: template execution failed")
)

// Renderer writes one configuration file from one template.
type Renderer struct {
	templatePath string
	outputPath   string

	mu      sync.Mutex
	current Attributes
}

// New creates a Renderer. defaults becomes the initial current set and
// must cover every slot. Nothing is written until [Renderer.Write].
func New(templatePath, outputPath string, defaults Attributes) (*Renderer, error) {
	if templatePath == "" {
		return nil, fmt.Errorf("render: template path is required")
	}
	if outputPath == "" {
		return nil, fmt.Errorf("render: output path is required")
	}
	if err := defaults.Validate(); err != nil {
		return nil, fmt.Errorf("render: invalid default attributes: %w", err)
	}
	return &Renderer{
		templatePath: templatePath,
		outputPath:   outputPath,
		current:      defaults.Clone(),
	}, nil
}

// Write merges overrides into the current set, renders the template
// and atomically replaces the output file. Pass nil to re-render the
// current set unchanged.
func (r *Renderer) Write(overrides Attributes) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	merged, err := Merge(r.current, overrides)
	if err != nil {
		return err
	}

	source, err := os.ReadFile(r.templatePath)
	if err != nil {
		return fmt.Errorf("%w: %s: %v", ErrTemplateNotFound, r.templatePath, err)
	}
	parsed, err := template.New(filepath.Base(r.templatePath)).
		Option("missingkey=error").
		Parse(string(source))
	if err != nil {
		return fmt.Errorf("%w: parsing %s: %v", ErrTemplateNotFound, r.templatePath, err)
	}

	var output bytes.Buffer
	if err := parsed.Execute(&output, merged.templateData()); err != nil {
		return fmt.Errorf("%w: %s: %v", ErrRenderFailed, r.templatePath, err)
	}

	if err := atomicfile.Write(r.outputPath, output.Bytes(), 0o644); err != nil {
		return fmt.Errorf("%w: %v", ErrRenderTargetUnwritable, err)
	}

	r.current = merged
	return nil
}

// Current returns a copy of the last successfully written set, or the
// defaults before the first write.
func (r *Renderer) Current() Attributes {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.current.Clone()
}

// OutputPath returns the rendered file's location.
func (r *Renderer) OutputPath() string {
	return r.outputPath
}

// TemplatePath returns the template file's location.
func (r *Renderer) TemplatePath() string {
	return r.templatePath
}
