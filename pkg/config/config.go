// Package config loads deploy configuration.
//
// Configuration is layered: a shift-config.yml file supplies defaults,
// selected environment variables override the file, and CLI flags
// override both. A flag or variable that is absent means "not set", not
// "false" — tri-state fields stay pointers until Finalize folds the
// layers.
package config

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// EnvOutOfOrder is the environment variable overriding the out-of-order
// policy, parsed as a boolean.
const EnvOutOfOrder = "SCHEMACHANGE_OUT_OF_ORDER"

// DeployConfig is the resolved configuration consumed by the deploy
// engine.
type DeployConfig struct {
	RootFolder                             string
	ModulesFolder                          string
	ConfigVars                             map[string]any
	DryRun                                 bool
	OutOfOrder                             bool
	CreateChangeHistoryTable               bool
	RaiseExceptionOnIgnoredVersionedScript bool
	ContinueVersionedOnError               bool
	ContinueRepeatableOnError              bool
	ContinueAlwaysOnError                  bool
	VersionNumberValidationRegex           string
}

// File is the on-disk YAML shape. Booleans that participate in layering
// are pointers so an absent key is distinguishable from an explicit
// false.
type File struct {
	RootFolder                             string         `yaml:"root-folder"`
	ModulesFolder                          string         `yaml:"modules-folder"`
	Vars                                   map[string]any `yaml:"vars"`
	DryRun                                 bool           `yaml:"dry-run"`
	OutOfOrder                             *bool          `yaml:"out-of-order"`
	CreateChangeHistoryTable               bool           `yaml:"create-change-history-table"`
	RaiseExceptionOnIgnoredVersionedScript bool           `yaml:"raise-exception-on-ignored-versioned-script"`
	ContinueVersionedOnError               bool           `yaml:"continue-versioned-on-error"`
	ContinueRepeatableOnError              bool           `yaml:"continue-repeatable-on-error"`
	ContinueAlwaysOnError                  bool           `yaml:"continue-always-on-error"`
	VersionNumberValidationRegex           string         `yaml:"version-number-validation-regex"`
}

// Load reads and strictly decodes a config file. Unknown keys are
// rejected.
func Load(path string) (*File, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open config: %w", err)
	}
	defer f.Close()

	var cfg File
	dec := yaml.NewDecoder(f)
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	return &cfg, nil
}

// Finalize folds the file, the environment, and an optional flag value
// into a DeployConfig. Precedence for out-of-order: flag, then
// SCHEMACHANGE_OUT_OF_ORDER, then the file, then false.
func (f *File) Finalize(flagOutOfOrder *bool) (*DeployConfig, error) {
	outOfOrder := false
	switch {
	case flagOutOfOrder != nil:
		outOfOrder = *flagOutOfOrder
	case os.Getenv(EnvOutOfOrder) != "":
		v, err := ParseBool(os.Getenv(EnvOutOfOrder))
		if err != nil {
			return nil, fmt.Errorf("%s: %w", EnvOutOfOrder, err)
		}
		outOfOrder = v
	case f.OutOfOrder != nil:
		outOfOrder = *f.OutOfOrder
	}

	return &DeployConfig{
		RootFolder:                             f.RootFolder,
		ModulesFolder:                          f.ModulesFolder,
		ConfigVars:                             f.Vars,
		DryRun:                                 f.DryRun,
		OutOfOrder:                             outOfOrder,
		CreateChangeHistoryTable:               f.CreateChangeHistoryTable,
		RaiseExceptionOnIgnoredVersionedScript: f.RaiseExceptionOnIgnoredVersionedScript,
		ContinueVersionedOnError:               f.ContinueVersionedOnError,
		ContinueRepeatableOnError:              f.ContinueRepeatableOnError,
		ContinueAlwaysOnError:                  f.ContinueAlwaysOnError,
		VersionNumberValidationRegex:           f.VersionNumberValidationRegex,
	}, nil
}

// ParseBool parses the boolean forms accepted in environment variables.
func ParseBool(s string) (bool, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "1", "t", "true", "y", "yes", "on":
		return true, nil
	case "0", "f", "false", "n", "no", "off":
		return false, nil
	}
	return false, fmt.Errorf("invalid boolean value %q", s)
}
