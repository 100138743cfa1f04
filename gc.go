package main

import (
	"fmt"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
)

// newGCCmd implements `notecove gc <sd-path> [--note <id>]`: forces an
// unconditional pack-then-snapshot pass (spec.md §4.4's "on explicit
// request"), either for one note or for every note the SD knows about.
func newGCCmd() *cobra.Command {
	var noteFlag string

	cmd := &cobra.Command{
		Use:   "gc [sd-path]",
		Short: "Force a pack/snapshot garbage-collection pass",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cc := mustCLIContext(cmd.Context())

			path, err := resolveSDPath(cc, args)
			if err != nil {
				return err
			}

			mgr, h, err := openHandle(cmd.Context(), cc, path)
			if err != nil {
				return err
			}
			defer mgr.CloseAll()

			var targets []uuid.UUID
			if noteFlag != "" {
				id, err := uuid.Parse(noteFlag)
				if err != nil {
					return fmt.Errorf("invalid --note id %q: %w", noteFlag, err)
				}
				targets = []uuid.UUID{id}
			} else {
				notes, err := h.ListNotes()
				if err != nil {
					return fmt.Errorf("listing notes: %w", err)
				}
				for _, n := range notes {
					targets = append(targets, n.ID)
				}
			}

			for _, id := range targets {
				if err := h.ForceGC(id); err != nil {
					return fmt.Errorf("gc note %s: %w", id, err)
				}
				cc.Statusf("gc: packed and snapshotted note %s\n", id)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&noteFlag, "note", "", "limit gc to a single note id")
	return cmd
}
