package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/BurntSushi/toml"
)

// Load reads and parses a TOML config file, validates it, and returns the
// resulting Config. Unlike the teacher's two-pass drive-section decode,
// notecove's SD table needs no special-cased key syntax — BurntSushi/toml
// decodes `[sd.work]`-style tables into Config.SDs directly.
func Load(path string, logger *slog.Logger) (*Config, error) {
	logger.Debug("loading config file", slog.String("path", path))

	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: reading %s: %w", path, err)
	}

	md, err := toml.Decode(string(data), cfg)
	if err != nil {
		return nil, fmt.Errorf("config: parsing %s: %w", path, err)
	}

	if err := checkUnknownKeys(&md); err != nil {
		return nil, err
	}

	if err := Validate(cfg); err != nil {
		return nil, fmt.Errorf("config: validation failed: %w", err)
	}

	logger.Debug("config file parsed successfully",
		slog.String("path", path),
		slog.Int("sd_count", len(cfg.SDs)),
	)

	return cfg, nil
}

// LoadOrDefault reads a TOML config file if it exists, otherwise returns a
// Config populated with defaults. Supports the zero-config first run: an
// operator can run `notecove open <path>` without ever writing a config
// file.
func LoadOrDefault(path string, logger *slog.Logger) (*Config, error) {
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		logger.Debug("config file not found, using defaults", slog.String("path", path))
		return DefaultConfig(), nil
	}
	return Load(path, logger)
}

// ResolveConfigPath determines the config file path using CLI flag > env
// var > platform default, in that priority order.
func ResolveConfigPath(env EnvOverrides, cliConfigPath string, logger *slog.Logger) string {
	path := DefaultConfigPath()
	source := "default"

	if env.ConfigPath != "" {
		path = env.ConfigPath
		source = "env"
	}
	if cliConfigPath != "" {
		path = cliConfigPath
		source = "cli"
	}

	logger.Debug("config path resolved", slog.String("path", path), slog.String("source", source))
	return path
}

// CLIOverrides carries the config-relevant flags a cobra command parsed,
// mirroring the teacher's CLIOverrides shape.
type CLIOverrides struct {
	ConfigPath string
	SD         string
}

// Resolved bundles the fully layered configuration a command needs: the
// parsed Config, the logger-ready settings, and (when an SD selector could
// be matched) the chosen SDConfig.
type Resolved struct {
	Config     *Config
	ConfigPath string
	Profile    ProfileConfig
	SD         *SDConfig
	SDAlias    string
}

// Resolve loads the config file (or defaults), layers env and CLI
// overrides, and — when a selector is given or only one SD is configured —
// resolves the active SD. It does not require an SD to be resolvable:
// commands like `notecove open` run before any SD entry exists yet.
func Resolve(env EnvOverrides, cli CLIOverrides, logger *slog.Logger) (*Resolved, error) {
	path := ResolveConfigPath(env, cli.ConfigPath, logger)

	cfg, err := LoadOrDefault(path, logger)
	if err != nil {
		return nil, fmt.Errorf("config: resolving: %w", err)
	}

	if err := EnsureProfile(cfg, path, logger); err != nil {
		return nil, err
	}
	if err := EnsureInstance(cfg, path, logger); err != nil {
		return nil, err
	}

	selector := env.SD
	if cli.SD != "" {
		selector = cli.SD
	}

	res := &Resolved{Config: cfg, ConfigPath: path, Profile: cfg.Profile}

	alias, sd, ok := matchSD(cfg, selector)
	if ok {
		res.SD = &sd
		res.SDAlias = alias
	}

	return res, nil
}

// matchSD picks the SD entry to use: the explicit selector if given (by
// alias or exact path), else the sole entry if there is exactly one, else
// no match.
func matchSD(cfg *Config, selector string) (string, SDConfig, bool) {
	if selector != "" {
		if sd, ok := cfg.SDs[selector]; ok {
			return selector, sd, true
		}
		for alias, sd := range cfg.SDs {
			if sd.Path == selector {
				return alias, sd, true
			}
		}
		return "", SDConfig{}, false
	}
	if len(cfg.SDs) == 1 {
		for alias, sd := range cfg.SDs {
			return alias, sd, true
		}
	}
	return "", SDConfig{}, false
}

// checkUnknownKeys returns an error naming every TOML key present in the
// file that Config does not declare, so a typo'd option fails loudly
// instead of silently doing nothing.
func checkUnknownKeys(md *toml.MetaData) error {
	undecoded := md.Undecoded()
	if len(undecoded) == 0 {
		return nil
	}
	keys := make([]string, 0, len(undecoded))
	for _, k := range undecoded {
		keys = append(keys, k.String())
	}
	return fmt.Errorf("config: unknown key(s): %v", keys)
}
