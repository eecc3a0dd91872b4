// Package config loads armature's YAML configuration.
//
// Configuration comes from a single file named by the --config flag or
// the ARMATURE_CONFIG environment variable. Without either, Default
// applies. Command-line flags override individual values after loading.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/chazu/armature/pkg/spec"
)

// EnvVar names the environment variable holding the config path.
const EnvVar = "ARMATURE_CONFIG"

// Config is the complete configuration.
type Config struct {
	Log   LogConfig   `yaml:"log"`
	Scene SceneConfig `yaml:"scene"`
	Build BuildConfig `yaml:"build"`
}

// LogConfig configures the structured logger.
type LogConfig struct {
	// Level is debug, info, warn or error.
	Level string `yaml:"level"`
	// Format is text, json or auto. Auto picks text on a terminal.
	Format string `yaml:"format"`
}

// SceneConfig selects the live scene.
type SceneConfig struct {
	// Socket is the path of a remote scene session. Empty uses an
	// in-process scene.
	Socket string `yaml:"socket"`
	// Document is where an in-process scene saves itself.
	Document string `yaml:"document"`
	// Namespace scopes lookups to a referenced sub-document.
	Namespace string `yaml:"namespace"`
	// RootParent hangs the rig under an existing live object.
	RootParent string `yaml:"root_parent"`
	// CallTimeout bounds each remote call.
	CallTimeout time.Duration `yaml:"call_timeout"`
}

// BuildConfig tunes state transitions.
type BuildConfig struct {
	SaveOnFinalize bool   `yaml:"save_on_finalize"`
	FlushSave      bool   `yaml:"flush_save"`
	DisplayMeshes  bool   `yaml:"display_meshes"`
	MeshCells      int    `yaml:"mesh_cells"`
	RotateOrder    string `yaml:"rotate_order"`

	// EvalTimeout bounds one evaluation of a rig script.
	EvalTimeout time.Duration `yaml:"eval_timeout"`
}

// Default returns the configuration used when no file is given.
func Default() *Config {
	return &Config{
		Log: LogConfig{Level: "info", Format: "auto"},
		Scene: SceneConfig{
			CallTimeout: 10 * time.Second,
		},
		Build: BuildConfig{
			SaveOnFinalize: true,
			DisplayMeshes:  true,
			MeshCells:      16,
			RotateOrder:    "xyz",
			EvalTimeout:    5 * time.Second,
		},
	}
}

// Load reads the file named by ARMATURE_CONFIG, or returns Default when
// the variable is unset.
func Load() (*Config, error) {
	path := os.Getenv(EnvVar)
	if path == "" {
		return Default(), nil
	}
	return LoadFile(path)
}

// LoadFile reads path over the defaults and validates the result.
func LoadFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	return Parse(data)
}

// Parse decodes YAML over the defaults and validates the result.
// Unknown keys are rejected.
func Parse(data []byte) (*Config, error) {
	cfg := Default()
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks that every value is usable.
func (c *Config) Validate() error {
	var errs []error
	switch c.Log.Level {
	case "debug", "info", "warn", "error":
	default:
		errs = append(errs, fmt.Errorf("log.level: unknown level %q", c.Log.Level))
	}
	switch c.Log.Format {
	case "text", "json", "auto":
	default:
		errs = append(errs, fmt.Errorf("log.format: unknown format %q", c.Log.Format))
	}
	if c.Scene.CallTimeout <= 0 {
		errs = append(errs, fmt.Errorf("scene.call_timeout: must be positive, got %s", c.Scene.CallTimeout))
	}
	if c.Build.EvalTimeout <= 0 {
		errs = append(errs, fmt.Errorf("build.eval_timeout: must be positive, got %s", c.Build.EvalTimeout))
	}
	if c.Build.MeshCells < 2 {
		errs = append(errs, fmt.Errorf("build.mesh_cells: must be at least 2, got %d", c.Build.MeshCells))
	}
	if _, err := spec.ParseRotateOrder(c.Build.RotateOrder); err != nil {
		errs = append(errs, fmt.Errorf("build.rotate_order: %w", err))
	}
	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("config: %w", err)
	}
	return nil
}

// RotateOrder returns the parsed default rotation order.
func (c *Config) RotateOrder() spec.RotateOrder {
	o, _ := spec.ParseRotateOrder(c.Build.RotateOrder)
	return o
}
