// Package config loads shardnode configuration from an
// optional YAML file layered under CLI flags, the way cuemby-warren's
// "apply" command unmarshals a resource manifest with gopkg.in/yaml.v3.
package config

import (
	"os"

	"gopkg.in/yaml.v3"

	"github.com/shardset/shardset/pkg/errs"
)

// Config holds cmd/shardnode's flags; cmd/shardrouter reads its own
// flags directly and does not use this package.
// Fields left zero by the YAML file fall back to whatever the cobra
// flag default supplied.
type Config struct {
	Set          string `yaml:"set"`
	Seeds        string `yaml:"seeds"`
	DataDir      string `yaml:"dataDir"`
	Bind         string `yaml:"bind"`
	ConfigServer string `yaml:"configServer"`
	LogLevel     string `yaml:"logLevel"`
	LogJSON      bool   `yaml:"logJson"`
}

// Load reads a YAML config file at path, if non-empty, and overlays it
// onto base (any zero-value field in the loaded file is left as base's
// value). A missing path is not an error — it just returns base
// unchanged, so shardnode.yaml is optional.
func Load(path string, base Config) (Config, error) {
	if path == "" {
		return base, nil
	}
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return base, nil
	}
	if err != nil {
		return Config{}, errs.New(errs.BadInput, "config.Load: read "+path, err, nil)
	}
	var file Config
	if err := yaml.Unmarshal(data, &file); err != nil {
		return Config{}, errs.New(errs.BadInput, "config.Load: parse "+path, err, nil)
	}
	return mergeOverZero(base, file), nil
}

// mergeOverZero returns base with every non-zero field of file applied
// on top, so a YAML file only needs to set the fields it wants to
// override; flags remain authoritative for anything yaml leaves blank.
func mergeOverZero(base, file Config) Config {
	out := base
	if file.Set != "" {
		out.Set = file.Set
	}
	if file.Seeds != "" {
		out.Seeds = file.Seeds
	}
	if file.DataDir != "" {
		out.DataDir = file.DataDir
	}
	if file.Bind != "" {
		out.Bind = file.Bind
	}
	if file.ConfigServer != "" {
		out.ConfigServer = file.ConfigServer
	}
	if file.LogLevel != "" {
		out.LogLevel = file.LogLevel
	}
	if file.LogJSON {
		out.LogJSON = file.LogJSON
	}
	return out
}

// Validate checks that the fields required to start a node are present.
func (c Config) Validate() error {
	if c.Set == "" {
		return errs.New(errs.BadInput, "config.Validate: --set is required", nil, nil)
	}
	if c.Seeds == "" {
		return errs.New(errs.BadInput, "config.Validate: --seeds is required", nil, nil)
	}
	if c.DataDir == "" {
		return errs.New(errs.BadInput, "config.Validate: --data-dir is required", nil, nil)
	}
	if c.Bind == "" {
		return errs.New(errs.BadInput, "config.Validate: --bind is required", nil, nil)
	}
	return nil
}
