package config

import (
	"fmt"
	"time"
)

// Validate checks a Config for internally consistent, parseable values.
// It never validates filesystem state (an SD path not existing yet is
// normal — `notecove open` creates it); that belongs to storedir.Open.
func Validate(cfg *Config) error {
	if err := validateDuration("sync.poll_interval", cfg.Sync.PollInterval); err != nil {
		return err
	}
	if err := validateDuration("sync.poll_jitter", cfg.Sync.PollJitter); err != nil {
		return err
	}
	if err := validateDuration("sync.file_read_timeout", cfg.Sync.FileReadTimeout); err != nil {
		return err
	}
	if err := validateDuration("sync.shutdown_timeout", cfg.Sync.ShutdownTimeout); err != nil {
		return err
	}
	if err := validateLogLevel(cfg.Logging.LogLevel); err != nil {
		return err
	}
	for alias, sd := range cfg.SDs {
		if sd.Path == "" {
			return fmt.Errorf("config: sd.%s: path is required", alias)
		}
		if sd.PackThreshold <= 0 {
			return fmt.Errorf("config: sd.%s: pack_threshold must be positive, got %d", alias, sd.PackThreshold)
		}
		if sd.SnapshotThreshold <= 0 {
			return fmt.Errorf("config: sd.%s: snapshot_threshold must be positive, got %d", alias, sd.SnapshotThreshold)
		}
	}
	return nil
}

func validateDuration(field, value string) error {
	if value == "" {
		return nil
	}
	if _, err := time.ParseDuration(value); err != nil {
		return fmt.Errorf("config: %s: invalid duration %q: %w", field, value, err)
	}
	return nil
}

func validateLogLevel(level string) error {
	switch level {
	case "", "debug", "info", "warn", "error":
		return nil
	default:
		return fmt.Errorf("config: logging.log_level: invalid level %q (want debug, info, warn, or error)", level)
	}
}

// MustParseDuration parses a validated duration string, falling back to def
// if value is empty. Callers only reach this after Validate has already
// confirmed value parses, so the error path here only matters for
// programmatically constructed Configs that skipped Validate.
func MustParseDuration(value string, def time.Duration) time.Duration {
	if value == "" {
		return def
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return def
	}
	return d
}
