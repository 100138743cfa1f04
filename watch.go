package main

import (
	"context"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/drewcsillag/notecove/internal/webbridge"
)

// newWatchCmd implements `notecove watch <sd-path>`: runs the sync loop in
// the foreground until a signal arrives, mirroring the teacher's
// signal.go/shutdownContext pattern for graceful shutdown. When
// [bridge] is enabled in config, it also serves the read-only web bridge
// for the duration of the run.
func newWatchCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "watch [sd-path]",
		Short: "Run the sync loop in the foreground",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cc := mustCLIContext(cmd.Context())

			path, err := resolveSDPath(cc, args)
			if err != nil {
				return err
			}

			ctx := shutdownContext(cmd.Context(), cc.Logger)

			mgr, h, err := openHandle(ctx, cc, path)
			if err != nil {
				return err
			}
			defer mgr.CloseAll()

			cc.Statusf("watching %s (sd %s); press ctrl-c to stop\n", path, h.SD().ID)

			var bridge *webbridge.Bridge
			if cc.Cfg.Config.Bridge.Enabled {
				bridge = webbridge.New(h, cc.Cfg.Config.Bridge.BearerToken, cc.Logger)
				go func() {
					if err := bridge.ListenAndServe(cc.Cfg.Config.Bridge.ListenAddr); err != nil {
						cc.Logger.Error("webbridge: server stopped", slog.String("error", err.Error()))
					}
				}()
				cc.Statusf("web bridge listening on %s\n", cc.Cfg.Config.Bridge.ListenAddr)
			}

			<-ctx.Done()

			if bridge != nil {
				shutdownCtx, cancel := context.WithTimeout(context.Background(), defaultShutdownTimeout)
				defer cancel()
				if err := bridge.Shutdown(shutdownCtx); err != nil {
					cc.Logger.Warn("webbridge: shutdown error", slog.String("error", err.Error()))
				}
			}

			cc.Statusf("shut down cleanly\n")
			return nil
		},
	}
}
