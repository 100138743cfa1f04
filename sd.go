package main

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/google/uuid"

	"github.com/drewcsillag/notecove/internal/clock"
	"github.com/drewcsillag/notecove/internal/config"
	"github.com/drewcsillag/notecove/internal/syncloop"
)

// cliIdentity parses this install's profileId/instanceId out of the
// resolved config, both of which config.Resolve's EnsureProfile/
// EnsureInstance calls guarantee are already populated and persisted.
func cliIdentity(cc *CLIContext) (instanceID, profileID uuid.UUID, err error) {
	instanceID, err = uuid.Parse(cc.Cfg.Config.Instance.ID)
	if err != nil {
		return uuid.Nil, uuid.Nil, fmt.Errorf("parsing instance id: %w", err)
	}
	profileID, err = uuid.Parse(cc.Cfg.Config.Profile.ID)
	if err != nil {
		return uuid.Nil, uuid.Nil, fmt.Errorf("parsing profile id: %w", err)
	}
	return instanceID, profileID, nil
}

// deriveAlias turns an SD filesystem path into a config table key: the
// base name, lowercased, with anything but letters/digits/hyphen/
// underscore collapsed to a hyphen, so operator-chosen paths like
// "~/Notes (work)" still produce a legal TOML table name.
func deriveAlias(path string) string {
	base := strings.ToLower(filepath.Base(filepath.Clean(path)))
	var b strings.Builder
	for _, r := range base {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9', r == '-', r == '_':
			b.WriteRune(r)
		default:
			b.WriteRune('-')
		}
	}
	alias := strings.Trim(b.String(), "-")
	if alias == "" {
		alias = "sd"
	}
	return alias
}

// resolveSDConfig resolves the SDConfig and its config-table alias for
// path, minting a fresh id and registering a new table entry the first
// time this path is opened. registered reports whether a new entry was
// just written.
func resolveSDConfig(cc *CLIContext, path string) (sdCfg config.SDConfig, alias string, registered bool, err error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return config.SDConfig{}, "", false, fmt.Errorf("resolving path %s: %w", path, err)
	}

	for a, existing := range cc.Cfg.Config.SDs {
		if existing.Path == abs || existing.Path == path {
			return existing, a, false, nil
		}
	}

	sdCfg = config.DefaultSDConfig(abs)
	sdCfg.ID = uuid.New().String()
	alias = deriveAlias(abs)
	for suffix := 2; cc.Cfg.Config.SDs[alias].Path != ""; suffix++ {
		alias = fmt.Sprintf("%s-%d", deriveAlias(abs), suffix)
	}

	if err := config.RegisterSD(cc.Cfg.Config, cc.Cfg.ConfigPath, alias, sdCfg); err != nil {
		return config.SDConfig{}, "", false, fmt.Errorf("registering sd %q: %w", alias, err)
	}
	return sdCfg, alias, true, nil
}

// openHandle opens path as a managed Storage Directory: resolves/
// registers its config entry, starts a Manager with this install's
// identity, and returns the running Handle. Callers must call
// mgr.CloseAll() (or handle.Close()) when done.
func openHandle(ctx context.Context, cc *CLIContext, path string) (*syncloop.Manager, *syncloop.Handle, error) {
	instanceID, profileID, err := cliIdentity(cc)
	if err != nil {
		return nil, nil, err
	}

	sdCfg, _, _, err := resolveSDConfig(cc, path)
	if err != nil {
		return nil, nil, err
	}

	bkPath := config.BookkeepingDBPath(sdCfg.ID)
	mgr := syncloop.NewManager(instanceID, profileID, cc.Logger, clock.System{})

	h, err := mgr.Open(ctx, path, sdCfg, cc.Cfg.Config.Sync, bkPath)
	if err != nil {
		return nil, nil, fmt.Errorf("opening sd %s: %w", path, err)
	}
	return mgr, h, nil
}
