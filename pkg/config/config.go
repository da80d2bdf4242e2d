// Package config loads the tool configuration from configs/stepwise.yaml
// with sensible fallbacks when the file is absent.
package config

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"runtime"

	"gopkg.in/yaml.v3"
)

// DefaultPath is where the configuration file is looked up relative to
// the working directory.
const DefaultPath = "configs/stepwise.yaml"

// Config is the full tool configuration.
type Config struct {
	Paths PathsConfig `yaml:"paths"`
	Tmp   TmpConfig   `yaml:"tmp"`
	Serve ServeConfig `yaml:"serve"`
}

// PathsConfig locates the plan, report, and log directories.
type PathsConfig struct {
	PlanDir       string `yaml:"plan_dir"`
	ReportDir     string `yaml:"report_dir"`
	LogDir        string `yaml:"log_dir"`
	VariablesFile string `yaml:"variables_file"`
}

// TmpConfig holds the per-platform scratch roots for <tmp> resolution.
type TmpConfig struct {
	LinuxTmpPath   string `yaml:"linux_tmp_path"`
	WindowsTmpPath string `yaml:"windows_tmp_path"`
}

// ServeConfig configures the web admin server.
type ServeConfig struct {
	Addr           string   `yaml:"addr"`
	AllowedOrigins []string `yaml:"allowed_origins"`
}

// Default returns the configuration used when no file exists.
func Default() *Config {
	return &Config{
		Paths: PathsConfig{
			PlanDir:       "test_plans",
			ReportDir:     "reports",
			LogDir:        "logs",
			VariablesFile: "configs/variables.json",
		},
		Tmp: TmpConfig{
			LinuxTmpPath:   "/tmp/stepwise",
			WindowsTmpPath: "C:/stepwise_tmp",
		},
		Serve: ServeConfig{
			Addr:           "127.0.0.1:8077",
			AllowedOrigins: []string{"http://localhost:5173"},
		},
	}
}

// TmpBase returns the scratch root for the current platform.
func (c *Config) TmpBase() string {
	if runtime.GOOS == "windows" {
		return c.Tmp.WindowsTmpPath
	}
	return c.Tmp.LinuxTmpPath
}

// LoadFile reads the configuration with strict unknown-field rejection.
// A missing file yields the defaults.
func LoadFile(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return Default(), nil
		}
		return nil, fmt.Errorf("open config: %w", err)
	}
	defer f.Close()
	return Load(f)
}

// Load parses a configuration from an io.Reader. Fields left unset keep
// their default values.
func Load(r io.Reader) (*Config, error) {
	cfg := Default()

	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil {
		if err == io.EOF {
			return cfg, nil
		}
		return nil, fmt.Errorf("decode config: %w", err)
	}
	return cfg, nil
}

// PlanPath resolves a plan reference. A bare name without a directory
// separator is looked up under the plan directory, gaining a .json
// extension if it has none; everything else is used as written.
func (c *Config) PlanPath(ref string) string {
	if filepath.Dir(ref) != "." {
		return ref
	}
	if _, err := os.Stat(ref); err == nil {
		return ref
	}
	if filepath.Ext(ref) == "" {
		ref += ".json"
	}
	return filepath.Join(c.Paths.PlanDir, ref)
}
