// Package config implements TOML configuration loading, validation, and
// platform-specific path resolution for notecove: one human operator
// (Profile) running one or more instances, each of which opens one or more
// Storage Directories (SDs). Layering mirrors the teacher's four-layer
// override chain: built-in defaults, config file, environment variables,
// then CLI flags, each later layer winning over the former.
package config

// Config is the top-level configuration structure decoded from TOML.
type Config struct {
	Profile  ProfileConfig       `toml:"profile"`
	Instance InstanceConfig      `toml:"instance"`
	Sync     SyncConfig          `toml:"sync"`
	Logging  LoggingConfig       `toml:"logging"`
	Bridge   BridgeConfig        `toml:"bridge"`
	SDs      map[string]SDConfig `toml:"sd"`
}

// InstanceConfig identifies this running install (spec.md §3's
// "instance"). Generated once on first run and persisted alongside the
// profile id; every SD this install opens reuses the same instanceId so
// its own-instance sequence numbering stays continuous across restarts.
type InstanceConfig struct {
	ID string `toml:"id"`
}

// ProfileConfig identifies the human operator. ID is generated once on
// first run and persisted; it is passed into every write as spec.md §9's
// "current user singleton" re-modeling requires.
type ProfileConfig struct {
	ID   string `toml:"id"`
	Name string `toml:"name"`
}

// SDConfig describes one Storage Directory this profile's instances open.
// The map key in Config.SDs is a short human alias (e.g. "work", "home");
// ID is the SD's own UUID, recovered from or stamped into the SD's root
// metadata the first time this instance opens it.
type SDConfig struct {
	Path             string `toml:"path"`
	ID               string `toml:"id"`
	PackThreshold    int    `toml:"pack_threshold"`
	SnapshotThreshold int   `toml:"snapshot_threshold"`
}

// SyncConfig controls the sync loop's scheduling.
type SyncConfig struct {
	PollInterval    string `toml:"poll_interval"`
	PollJitter      string `toml:"poll_jitter"`
	FileReadTimeout string `toml:"file_read_timeout"`
	ShutdownTimeout string `toml:"shutdown_timeout"`
	UseFsnotify     bool   `toml:"use_fsnotify"`
}

// LoggingConfig controls log output behavior.
type LoggingConfig struct {
	LogLevel  string `toml:"log_level"`
	LogFormat string `toml:"log_format"`
}

// BridgeConfig controls the read-only web bridge (spec.md §1's "simple
// bearer-token admission check for a read-only web bridge").
type BridgeConfig struct {
	Enabled     bool   `toml:"enabled"`
	ListenAddr  string `toml:"listen_addr"`
	BearerToken string `toml:"bearer_token"`
}
