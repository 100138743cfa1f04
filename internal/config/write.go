package config

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"
)

// configFilePermissions is the standard permission mode for config files.
const configFilePermissions = 0o644

// configDirPermissions is the standard permission mode for config
// directories.
const configDirPermissions = 0o755

// Write serializes cfg as TOML and writes it to path, creating the parent
// directory if necessary. Unlike the teacher's line-based text editing of
// an existing template (preserving operator comments around drive
// sections), notecove's config is small enough that a full rewrite on
// every mutation (new profile id, new SD registration) is simplest and
// still never discards operator-set values, since cfg itself is the
// authoritative in-memory copy being flushed.
func Write(cfg *Config, path string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, configDirPermissions); err != nil {
		return fmt.Errorf("config: mkdir %s: %w", dir, err)
	}

	var buf bytes.Buffer
	enc := toml.NewEncoder(&buf)
	if err := enc.Encode(cfg); err != nil {
		return fmt.Errorf("config: encode: %w", err)
	}

	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, buf.Bytes(), configFilePermissions); err != nil {
		return fmt.Errorf("config: write %s: %w", tmp, err)
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("config: rename %s to %s: %w", tmp, path, err)
	}
	return nil
}

// RegisterSD adds or updates an SD entry under alias and persists the
// config. Called by `notecove open` once a Storage Directory's own UUID is
// known (storedir.Open stamps or recovers it).
func RegisterSD(cfg *Config, path, alias string, sd SDConfig) error {
	if cfg.SDs == nil {
		cfg.SDs = make(map[string]SDConfig)
	}
	cfg.SDs[alias] = sd
	return Write(cfg, path)
}
