package config

import (
	"log/slog"

	"github.com/google/uuid"
)

// defaultProfileName is used when an operator never set [profile].name.
const defaultProfileName = "default"

// EnsureProfile makes sure cfg.Profile has a stable ID, generating and
// persisting one on first run. Re-modeling spec.md §9's "current user
// singleton": the profileId this stamps is what every write (activity log
// entry, new-SD registration) threads through explicitly from here on,
// rather than any process-wide current-user global.
func EnsureProfile(cfg *Config, path string, logger *slog.Logger) error {
	if cfg.Profile.ID != "" {
		return nil
	}

	cfg.Profile.ID = uuid.New().String()
	if cfg.Profile.Name == "" {
		cfg.Profile.Name = defaultProfileName
	}

	logger.Info("generated new profile id", slog.String("profile_id", cfg.Profile.ID))
	return Write(cfg, path)
}
