package config

import (
	"fmt"
	"io"
)

// errWriter wraps an io.Writer and captures the first write error, so
// callers can chain printf calls without checking each one individually.
type errWriter struct {
	w   io.Writer
	err error
}

func (ew *errWriter) printf(format string, args ...any) {
	if ew.err != nil {
		return
	}
	_, ew.err = fmt.Fprintf(ew.w, format, args...)
}

// RenderEffective writes the resolved configuration as a human-readable
// annotated summary to w, powering `notecove status`'s config section:
// visibility into the effective values after defaults -> file -> env ->
// CLI layering.
func RenderEffective(res *Resolved, w io.Writer) error {
	ew := &errWriter{w: w}

	ew.printf("# Effective configuration for profile %q\n\n", res.Profile.Name)
	ew.printf("[profile]\n  id   = %q\n  name = %q\n\n", res.Profile.ID, res.Profile.Name)
	ew.printf("[instance]\n  id = %q\n\n", res.Config.Instance.ID)

	ew.printf("[sync]\n")
	ew.printf("  poll_interval     = %q\n", res.Config.Sync.PollInterval)
	ew.printf("  poll_jitter       = %q\n", res.Config.Sync.PollJitter)
	ew.printf("  file_read_timeout = %q\n", res.Config.Sync.FileReadTimeout)
	ew.printf("  shutdown_timeout  = %q\n", res.Config.Sync.ShutdownTimeout)
	ew.printf("  use_fsnotify      = %v\n\n", res.Config.Sync.UseFsnotify)

	ew.printf("[logging]\n  log_level = %q\n  log_format = %q\n\n",
		res.Config.Logging.LogLevel, res.Config.Logging.LogFormat)

	ew.printf("[bridge]\n  enabled = %v\n  listen_addr = %q\n\n",
		res.Config.Bridge.Enabled, res.Config.Bridge.ListenAddr)

	if res.SD != nil {
		ew.printf("[sd.%s] (active)\n  path               = %q\n  id                 = %q\n"+
			"  pack_threshold     = %d\n  snapshot_threshold = %d\n",
			res.SDAlias, res.SD.Path, res.SD.ID, res.SD.PackThreshold, res.SD.SnapshotThreshold)
	}

	return ew.err
}
