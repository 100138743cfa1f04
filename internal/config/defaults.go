package config

// Default values for configuration options — "layer 0" of the four-layer
// override chain, chosen to match spec.md's defaults exactly so an
// operator who never writes a config file still gets a spec-conformant
// instance.
const (
	defaultPollInterval      = "1500ms"
	defaultPollJitter        = "500ms"
	defaultFileReadTimeout   = "5s"
	defaultShutdownTimeout   = "30s"
	defaultLogLevel          = "info"
	defaultLogFormat         = "auto"
	defaultPackThreshold     = 64
	defaultSnapshotThreshold = 256
	defaultBridgeListenAddr  = "127.0.0.1:8787"
)

// DefaultConfig returns a Config populated with every default value. It is
// used both as the starting point for TOML decoding (so fields the file
// omits retain their defaults) and as the fallback when no config file
// exists at all.
func DefaultConfig() *Config {
	return &Config{
		Sync:    defaultSyncConfig(),
		Logging: defaultLoggingConfig(),
		Bridge:  defaultBridgeConfig(),
		SDs:     make(map[string]SDConfig),
	}
}

func defaultSyncConfig() SyncConfig {
	return SyncConfig{
		PollInterval:    defaultPollInterval,
		PollJitter:      defaultPollJitter,
		FileReadTimeout: defaultFileReadTimeout,
		ShutdownTimeout: defaultShutdownTimeout,
		UseFsnotify:     true,
	}
}

func defaultLoggingConfig() LoggingConfig {
	return LoggingConfig{
		LogLevel:  defaultLogLevel,
		LogFormat: defaultLogFormat,
	}
}

func defaultBridgeConfig() BridgeConfig {
	return BridgeConfig{
		Enabled:    false,
		ListenAddr: defaultBridgeListenAddr,
	}
}

// DefaultSDConfig returns the GC thresholds a newly registered SD entry
// starts with, matching spec.md §4.4's P=64 / S=256.
func DefaultSDConfig(path string) SDConfig {
	return SDConfig{
		Path:              path,
		PackThreshold:     defaultPackThreshold,
		SnapshotThreshold: defaultSnapshotThreshold,
	}
}
