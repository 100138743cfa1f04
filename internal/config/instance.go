package config

import (
	"log/slog"

	"github.com/google/uuid"
)

// EnsureInstance makes sure cfg.Instance has a stable ID, generating and
// persisting one on first run. This is the instanceId spec.md §3 requires
// be "unique per install" — unlike profileId (the human operator), a
// fresh random value on every CLI invocation would fracture one install's
// own-update stream across many phantom instance directories, so it must
// be minted once and reused.
func EnsureInstance(cfg *Config, path string, logger *slog.Logger) error {
	if cfg.Instance.ID != "" {
		return nil
	}

	cfg.Instance.ID = uuid.New().String()
	logger.Info("generated new instance id", slog.String("instance_id", cfg.Instance.ID))
	return Write(cfg, path)
}
