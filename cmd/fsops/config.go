package main

import (
	"os"
	"path/filepath"
	"time"

	"github.com/adrg/xdg"
	"gitlab.com/tozd/go/errors"
	"gopkg.in/yaml.v3"

	"github.com/vdavid/fsops/pkg/fsops"
)

// fileConfig is the on-disk configuration at
// $XDG_CONFIG_HOME/fsops/config.yaml. Every field is optional; command line
// flags override file values.
type fileConfig struct {
	ConflictPolicy     string `yaml:"conflict_policy"`
	ProgressIntervalMS int    `yaml:"progress_interval_ms"`
	MaxConflicts       int    `yaml:"max_conflicts"`
	SortColumn         string `yaml:"sort_column"`
	SortOrder          string `yaml:"sort_order"`
}

func configPath() string {
	return filepath.Join(xdg.ConfigHome, "fsops", "config.yaml")
}

// loadFileConfig reads the config file if present. A missing file is not an
// error; a malformed one is.
func loadFileConfig() (fileConfig, error) {
	var fc fileConfig
	data, err := os.ReadFile(configPath())
	if os.IsNotExist(err) {
		return fc, nil
	}
	if err != nil {
		return fc, errors.Errorf("reading config file: %w", err)
	}
	if err := yaml.Unmarshal(data, &fc); err != nil {
		return fc, errors.Errorf("parsing config file %s: %w", configPath(), err)
	}
	return fc, nil
}

// buildConfig merges file values with the policy flag into an operation
// config. An empty policyFlag means the file value (or the engine default)
// wins.
func buildConfig(fc fileConfig, policyFlag string) (fsops.Config, error) {
	cfg := fsops.Config{
		ProgressInterval: time.Duration(fc.ProgressIntervalMS) * time.Millisecond,
		MaxConflicts:     fc.MaxConflicts,
		SortColumn:       fsops.SortColumn(fc.SortColumn),
		SortOrder:        fsops.SortOrder(fc.SortOrder),
	}

	policy := policyFlag
	if policy == "" {
		policy = fc.ConflictPolicy
	}
	switch fsops.ConflictPolicy(policy) {
	case "", fsops.PolicyStop, fsops.PolicySkip, fsops.PolicyOverwrite, fsops.PolicyRename:
		cfg.Policy = fsops.ConflictPolicy(policy)
	default:
		return cfg, errors.Errorf("unknown conflict policy %q", policy)
	}

	switch cfg.SortColumn {
	case "", fsops.SortByName, fsops.SortBySize, fsops.SortByModified:
	default:
		return cfg, errors.Errorf("unknown sort column %q", fc.SortColumn)
	}
	switch cfg.SortOrder {
	case "", fsops.SortAsc, fsops.SortDesc:
	default:
		return cfg, errors.Errorf("unknown sort order %q", fc.SortOrder)
	}
	return cfg, nil
}
