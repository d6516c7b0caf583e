// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package sandbox

import (
	"fmt"
	"io"
	"net"
	"os"
	"path/filepath"
	"strconv"

	"github.com/muesli/termenv"
)

// ValidationResult holds the result of a validation check.
type ValidationResult struct {
	Name    string
	Passed  bool
	Message string
	Warning bool // True if this is a warning, not an error.
}

// Validator performs pre-flight validation before the proxy starts.
type Validator struct {
	results []ValidationResult
	errors  int
}

// NewValidator creates a new validator.
func NewValidator() *Validator {
	return &Validator{
		results: make([]ValidationResult, 0),
	}
}

// Results returns all validation results.
func (v *Validator) Results() []ValidationResult {
	return v.results
}

// HasErrors returns true if any validation failed.
func (v *Validator) HasErrors() bool {
	return v.errors > 0
}

func (v *Validator) pass(name, message string) {
	v.results = append(v.results, ValidationResult{Name: name, Passed: true, Message: message})
}

func (v *Validator) warn(name, message string) {
	v.results = append(v.results, ValidationResult{Name: name, Passed: true, Message: message, Warning: true})
}

func (v *Validator) fail(name, message string) {
	v.results = append(v.results, ValidationResult{Name: name, Passed: false, Message: message})
	v.errors++
}

// ValidateAll runs every check against config.
func (v *Validator) ValidateAll(config Config) {
	if err := config.Validate(); err != nil {
		v.fail("config", err.Error())
	} else {
		v.pass("config", "all required fields set")
	}
	v.ValidateExecutable(config.Executable)
	v.ValidateTemplate(config.TemplatePath)
	v.ValidateCredentials(config.CertsDir)
	v.ValidateSandboxRoot(config.SandboxRoot)
	v.ValidatePortFree("service port", config.ServicePort)
}

// ValidateExecutable checks that the proxy binary exists and is
// executable. A missing binary is only a warning: install compiles it.
func (v *Validator) ValidateExecutable(path string) {
	if path == "" {
		v.fail("executable", "no executable configured")
		return
	}
	info, err := os.Stat(path)
	if os.IsNotExist(err) {
		v.warn("executable", fmt.Sprintf("%s not built yet (run install)", path))
		return
	}
	if err != nil {
		v.fail("executable", fmt.Sprintf("cannot stat %s: %v", path, err))
		return
	}
	if info.IsDir() || info.Mode()&0o111 == 0 {
		v.fail("executable", fmt.Sprintf("%s is not executable", path))
		return
	}
	v.pass("executable", path)
}

// ValidateTemplate checks the configuration template. An empty path
// selects the embedded template.
func (v *Validator) ValidateTemplate(path string) {
	if path == "" {
		v.pass("template", "using embedded default template")
		return
	}
	if _, err := os.Stat(path); err != nil {
		v.fail("template", fmt.Sprintf("cannot read %s: %v", path, err))
		return
	}
	v.pass("template", path)
}

// ValidateCredentials checks that both credential pairs are present.
func (v *Validator) ValidateCredentials(certsDir string) {
	for _, mode := range []TLSMode{TLSNormal, TLSWrongCA} {
		name := "credentials (" + string(mode) + ")"
		cert, key := Credentials(certsDir, mode)
		missing := false
		for _, path := range []string{cert, key} {
			if _, err := os.Stat(path); err != nil {
				v.fail(name, fmt.Sprintf("missing %s", path))
				missing = true
			}
		}
		if !missing {
			v.pass(name, filepath.Base(cert)+", "+filepath.Base(key))
		}
	}
}

// ValidateSandboxRoot checks that the root is usable as a directory,
// or can be created.
func (v *Validator) ValidateSandboxRoot(root string) {
	if root == "" {
		v.fail("sandbox root", "no sandbox root configured")
		return
	}
	info, err := os.Stat(root)
	if os.IsNotExist(err) {
		v.pass("sandbox root", fmt.Sprintf("%s will be created", root))
		return
	}
	if err != nil {
		v.fail("sandbox root", fmt.Sprintf("cannot stat %s: %v", root, err))
		return
	}
	if !info.IsDir() {
		v.fail("sandbox root", fmt.Sprintf("%s is not a directory", root))
		return
	}
	v.pass("sandbox root", root)
}

// ValidatePortFree checks that nothing already listens on port, which
// would make a readiness probe succeed against the wrong process.
func (v *Validator) ValidatePortFree(name string, port int) {
	listener, err := net.Listen("tcp", net.JoinHostPort("127.0.0.1", strconv.Itoa(port)))
	if err != nil {
		v.fail(name, fmt.Sprintf("port %d is unavailable: %v", port, err))
		return
	}
	listener.Close()
	v.pass(name, fmt.Sprintf("port %d is free", port))
}

// PrintResults writes one line per check followed by a summary. The
// markers are colored when w is a terminal.
func (v *Validator) PrintResults(w io.Writer) {
	output := termenv.NewOutput(w)
	for _, r := range v.results {
		var prefix termenv.Style
		if r.Passed {
			if r.Warning {
				prefix = output.String("⚠").Foreground(output.Color("3"))
			} else {
				prefix = output.String("✓").Foreground(output.Color("2"))
			}
		} else {
			prefix = output.String("✗").Foreground(output.Color("1"))
		}
		fmt.Fprintf(w, "%s %s: %s\n", prefix, r.Name, r.Message)
	}

	fmt.Fprintln(w)
	if v.HasErrors() {
		fmt.Fprintf(w, "Validation failed with %d error(s)\n", v.errors)
	} else {
		fmt.Fprintln(w, "Ready to start proxy")
	}
}
