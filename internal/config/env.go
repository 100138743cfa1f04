package config

import "os"

// Environment variable names for overrides.
const (
	EnvConfig  = "NOTECOVE_CONFIG"
	EnvProfile = "NOTECOVE_PROFILE"
	EnvSD      = "NOTECOVE_SD"
)

// EnvOverrides holds values derived from environment variables. Resolving
// these does not modify a Config; callers layer the relevant fields in
// during Resolve.
type EnvOverrides struct {
	ConfigPath string // NOTECOVE_CONFIG: override config file path
	Profile    string // NOTECOVE_PROFILE: active profile name
	SD         string // NOTECOVE_SD: SD alias or path override
}

// ReadEnvOverrides reads the environment variables this package recognizes.
func ReadEnvOverrides() EnvOverrides {
	return EnvOverrides{
		ConfigPath: os.Getenv(EnvConfig),
		Profile:    os.Getenv(EnvProfile),
		SD:         os.Getenv(EnvSD),
	}
}
