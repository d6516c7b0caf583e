// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/tidwall/jsonc"
	"gopkg.in/yaml.v3"

	"github.com/bureau-foundation/proxysandbox/lib/fingerprint"
	"github.com/bureau-foundation/proxysandbox/lib/installer"
)

// EnvVar names the environment variable [Load] reads.
const EnvVar = "PROXYSANDBOX_CONFIG"

// Environment selects which override section applies.
type Environment string

const (
	Development Environment = "development"
	CI          Environment = "ci"
)

// Config is the complete proxysandbox configuration.
type Config struct {
	Environment Environment `yaml:"environment" json:"environment" toml:"environment"`

	Paths PathsConfig `yaml:"paths" json:"paths" toml:"paths"`
	Proxy ProxyConfig `yaml:"proxy" json:"proxy" toml:"proxy"`
	Build BuildConfig `yaml:"build" json:"build" toml:"build"`

	// Environment-specific overrides.
	Development *Overrides `yaml:"development,omitempty" json:"development,omitempty" toml:"development,omitempty"`
	CI          *Overrides `yaml:"ci,omitempty" json:"ci,omitempty" toml:"ci,omitempty"`
}

// PathsConfig holds every directory the sandbox uses.
type PathsConfig struct {
	// Root is the base for the other defaults.
	Root string `yaml:"root" json:"root" toml:"root"`

	// SandboxRoot is the proxy's prefix directory.
	SandboxRoot string `yaml:"sandbox_root" json:"sandbox_root" toml:"sandbox_root"`

	// Logs receives "<Logs>/proxy.service.out".
	Logs string `yaml:"logs" json:"logs" toml:"logs"`

	// Certs holds the two credential pairs.
	Certs string `yaml:"certs" json:"certs" toml:"certs"`

	// Sources is the prepared proxy source tree.
	Sources string `yaml:"sources" json:"sources" toml:"sources"`

	// WorkingDir and InstallDir form the build workspace.
	WorkingDir string `yaml:"working_dir" json:"working_dir" toml:"working_dir"`
	InstallDir string `yaml:"install_dir" json:"install_dir" toml:"install_dir"`
}

// ProxyConfig configures the supervised proxy.
type ProxyConfig struct {
	ServicePort   int    `yaml:"service_port" json:"service_port" toml:"service_port"`
	UpstreamPorts []int  `yaml:"upstream_ports" json:"upstream_ports" toml:"upstream_ports"`
	Template      string `yaml:"template" json:"template" toml:"template"`
	ConfigName    string `yaml:"config_name" json:"config_name" toml:"config_name"`
	TLSMode       string `yaml:"tls_mode" json:"tls_mode" toml:"tls_mode"`

	// Durations are strings in time.ParseDuration syntax.
	ReadyTimeout  string `yaml:"ready_timeout" json:"ready_timeout" toml:"ready_timeout"`
	ProbeInterval string `yaml:"probe_interval" json:"probe_interval" toml:"probe_interval"`
	StopTimeout   string `yaml:"stop_timeout" json:"stop_timeout" toml:"stop_timeout"`
}

// BuildConfig configures the build cache.
type BuildConfig struct {
	SourceArchive   string   `yaml:"source_archive" json:"source_archive" toml:"source_archive"`
	PrepareCommands []string `yaml:"prepare_commands" json:"prepare_commands" toml:"prepare_commands"`
	PrepareDir      string   `yaml:"prepare_dir" json:"prepare_dir" toml:"prepare_dir"`
	BuildScript     string   `yaml:"build_script" json:"build_script" toml:"build_script"`
	Executable      string   `yaml:"executable" json:"executable" toml:"executable"`
	InstallEnvVar   string   `yaml:"install_env_var" json:"install_env_var" toml:"install_env_var"`
	Algorithm       string   `yaml:"algorithm" json:"algorithm" toml:"algorithm"`
}

// Overrides replace proxy timing values for one environment. Empty
// fields leave the base value.
type Overrides struct {
	ReadyTimeout  string `yaml:"ready_timeout,omitempty" json:"ready_timeout,omitempty" toml:"ready_timeout,omitempty"`
	ProbeInterval string `yaml:"probe_interval,omitempty" json:"probe_interval,omitempty" toml:"probe_interval,omitempty"`
	StopTimeout   string `yaml:"stop_timeout,omitempty" json:"stop_timeout,omitempty" toml:"stop_timeout,omitempty"`
	TLSMode       string `yaml:"tls_mode,omitempty" json:"tls_mode,omitempty" toml:"tls_mode,omitempty"`
}

// Durations are the parsed proxy timing values.
type Durations struct {
	ReadyTimeout  time.Duration
	ProbeInterval time.Duration
	StopTimeout   time.Duration
}

// Default returns a Config rooted at ~/.cache/proxysandbox.
func Default() *Config {
	homeDir, _ := os.UserHomeDir()
	defaultRoot := filepath.Join(homeDir, ".cache", "proxysandbox")

	return &Config{
		Environment: Development,
		Paths: PathsConfig{
			Root:        defaultRoot,
			SandboxRoot: filepath.Join(defaultRoot, "sandbox"),
			Logs:        filepath.Join(defaultRoot, "logs"),
			Certs:       filepath.Join(defaultRoot, "certs"),
			Sources:     filepath.Join(defaultRoot, "packages", "nginx"),
			WorkingDir:  filepath.Join(defaultRoot, "tmp", "integration-nginx-work"),
			InstallDir:  filepath.Join(defaultRoot, "tmp", "integration-nginx"),
		},
		Proxy: ProxyConfig{
			ServicePort:   61443,
			UpstreamPorts: []int{61001, 61002},
			ConfigName:    "nginx.conf",
			TLSMode:       "normal",
			ReadyTimeout:  "30s",
			ProbeInterval: "100ms",
			StopTimeout:   "5s",
		},
		Build: BuildConfig{
			BuildScript:   "packaging",
			Executable:    "sbin/nginx",
			InstallEnvVar: "BOSH_INSTALL_TARGET",
			Algorithm:     string(fingerprint.SHA256),
		},
	}
}

// Load reads the file named by PROXYSANDBOX_CONFIG.
func Load() (*Config, error) {
	configPath := os.Getenv(EnvVar)
	if configPath == "" {
		return nil, fmt.Errorf("%s environment variable not set; "+
			"set it to the path of your config file, or use --config flag", EnvVar)
	}
	return LoadFile(configPath)
}

// LoadFile reads path over the defaults, applies environment overrides
// and expands variables. It does not validate.
func LoadFile(path string) (*Config, error) {
	cfg := Default()
	if err := cfg.loadFile(path); err != nil {
		return nil, err
	}
	cfg.applyEnvironmentOverrides()
	cfg.expandVariables()
	return cfg, nil
}

func (c *Config) loadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}

	switch extension := strings.ToLower(filepath.Ext(path)); extension {
	case ".yaml", ".yml":
		err = yaml.Unmarshal(data, c)
	case ".json", ".jsonc":
		err = json.Unmarshal(jsonc.ToJSON(data), c)
	case ".toml":
		_, err = toml.Decode(string(data), c)
	default:
		return fmt.Errorf("config: unsupported file extension %q (want .yaml, .yml, .json, .jsonc or .toml)", extension)
	}
	if err != nil {
		return fmt.Errorf("config: parsing %s: %w", path, err)
	}
	return nil
}

func (c *Config) applyEnvironmentOverrides() {
	var overrides *Overrides
	switch c.Environment {
	case Development:
		overrides = c.Development
	case CI:
		overrides = c.CI
		if overrides == nil {
			overrides = &Overrides{ReadyTimeout: "120s", StopTimeout: "15s"}
		}
	}
	if overrides == nil {
		return
	}

	if overrides.ReadyTimeout != "" {
		c.Proxy.ReadyTimeout = overrides.ReadyTimeout
	}
	if overrides.ProbeInterval != "" {
		c.Proxy.ProbeInterval = overrides.ProbeInterval
	}
	if overrides.StopTimeout != "" {
		c.Proxy.StopTimeout = overrides.StopTimeout
	}
	if overrides.TLSMode != "" {
		c.Proxy.TLSMode = overrides.TLSMode
	}
}

// expandVariables expands ${VAR} and ${VAR:-default} patterns in paths.
func (c *Config) expandVariables() {
	vars := map[string]string{
		"PROXYSANDBOX_ROOT": c.Paths.Root,
		"HOME":              os.Getenv("HOME"),
	}

	c.Paths.Root = expandVars(c.Paths.Root, vars)
	vars["PROXYSANDBOX_ROOT"] = c.Paths.Root

	c.Paths.SandboxRoot = expandVars(c.Paths.SandboxRoot, vars)
	vars["SANDBOX_ROOT"] = c.Paths.SandboxRoot

	for _, field := range []*string{
		&c.Paths.Logs,
		&c.Paths.Certs,
		&c.Paths.Sources,
		&c.Paths.WorkingDir,
		&c.Paths.InstallDir,
		&c.Proxy.Template,
		&c.Build.SourceArchive,
		&c.Build.PrepareDir,
	} {
		*field = expandVars(*field, vars)
	}
}

var varPattern = regexp.MustCompile(`\$\{([^}:]+)(?::-([^}]*))?\}`)

// expandVars expands ${VAR} and ${VAR:-default}. Provided vars win
// over the process environment.
func expandVars(s string, vars map[string]string) string {
	return varPattern.ReplaceAllStringFunc(s, func(match string) string {
		parts := varPattern.FindStringSubmatch(match)
		if len(parts) < 2 {
			return match
		}
		name := parts[1]
		defaultValue := ""
		if len(parts) >= 3 {
			defaultValue = parts[2]
		}
		if value, ok := vars[name]; ok && value != "" {
			return value
		}
		if value := os.Getenv(name); value != "" {
			return value
		}
		return defaultValue
	})
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	var errs []error

	if c.Environment != Development && c.Environment != CI {
		errs = append(errs, fmt.Errorf("invalid environment: %s", c.Environment))
	}

	for _, path := range []struct{ name, value string }{
		{"paths.root", c.Paths.Root},
		{"paths.sandbox_root", c.Paths.SandboxRoot},
		{"paths.logs", c.Paths.Logs},
		{"paths.certs", c.Paths.Certs},
		{"paths.sources", c.Paths.Sources},
		{"paths.working_dir", c.Paths.WorkingDir},
		{"paths.install_dir", c.Paths.InstallDir},
	} {
		if path.value == "" {
			errs = append(errs, fmt.Errorf("%s is required", path.name))
		} else if !filepath.IsAbs(path.value) {
			errs = append(errs, fmt.Errorf("%s must be absolute, got %q", path.name, path.value))
		}
	}
	if c.Paths.WorkingDir != "" && c.Paths.InstallDir != "" {
		if err := c.Workspace().Validate(); err != nil {
			errs = append(errs, err)
		} else if c.Paths.Sources != "" {
			if err := c.Workspace().CheckSourceDir(c.Paths.Sources); err != nil {
				errs = append(errs, err)
			}
		}
	}

	if c.Proxy.ServicePort <= 0 || c.Proxy.ServicePort > 65535 {
		errs = append(errs, fmt.Errorf("proxy.service_port %d is out of range", c.Proxy.ServicePort))
	}
	if len(c.Proxy.UpstreamPorts) != 2 {
		errs = append(errs, fmt.Errorf("proxy.upstream_ports must list exactly 2 ports, got %d", len(c.Proxy.UpstreamPorts)))
	} else {
		for i, port := range c.Proxy.UpstreamPorts {
			if port <= 0 || port > 65535 {
				errs = append(errs, fmt.Errorf("proxy.upstream_ports[%d] %d is out of range", i, port))
			}
		}
	}
	if c.Proxy.TLSMode != "normal" && c.Proxy.TLSMode != "wrong-ca" {
		errs = append(errs, fmt.Errorf("proxy.tls_mode must be one of: [normal wrong-ca], got %q", c.Proxy.TLSMode))
	}
	if _, err := c.Durations(); err != nil {
		errs = append(errs, err)
	}

	if _, err := fingerprint.ParseAlgorithm(c.Build.Algorithm); err != nil {
		errs = append(errs, fmt.Errorf("build.algorithm: %w", err))
	}
	if c.Build.Executable == "" {
		errs = append(errs, errors.New("build.executable is required"))
	}

	if len(errs) > 0 {
		return errors.Join(errs...)
	}
	return nil
}

// Durations parses the proxy timing values.
func (c *Config) Durations() (Durations, error) {
	var durations Durations
	var errs []error
	for _, field := range []struct {
		name   string
		value  string
		target *time.Duration
	}{
		{"proxy.ready_timeout", c.Proxy.ReadyTimeout, &durations.ReadyTimeout},
		{"proxy.probe_interval", c.Proxy.ProbeInterval, &durations.ProbeInterval},
		{"proxy.stop_timeout", c.Proxy.StopTimeout, &durations.StopTimeout},
	} {
		if field.value == "" {
			continue
		}
		parsed, err := time.ParseDuration(field.value)
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", field.name, err))
			continue
		}
		if parsed < 0 {
			errs = append(errs, fmt.Errorf("%s: %s is negative", field.name, field.value))
			continue
		}
		*field.target = parsed
	}
	return durations, errors.Join(errs...)
}

// Workspace returns the build workspace.
func (c *Config) Workspace() installer.Workspace {
	return installer.Workspace{WorkingDir: c.Paths.WorkingDir, InstallDir: c.Paths.InstallDir}
}

// ExecutablePath is the compiled proxy inside the install directory.
func (c *Config) ExecutablePath() string {
	return filepath.Join(c.Paths.InstallDir, c.Build.Executable)
}

// BaseLogPath is the prefix the proxy's log file name is built from.
func (c *Config) BaseLogPath() string {
	return filepath.Join(c.Paths.Logs, "proxy")
}

// EnsurePaths creates the directories the sandbox writes into. The
// build workspace is left to the installer, which recreates it on
// every compile.
func (c *Config) EnsurePaths() error {
	for _, path := range []string{c.Paths.Root, c.Paths.SandboxRoot, c.Paths.Logs} {
		if path == "" {
			continue
		}
		if err := os.MkdirAll(path, 0o755); err != nil {
			return fmt.Errorf("creating %s: %w", path, err)
		}
	}
	return nil
}
