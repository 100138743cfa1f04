package main

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/drewcsillag/notecove/internal/syncloop"
)

// newStatusCmd implements `notecove status <sd-path>`: lists every note
// with its vector clock and pack/snapshot counts, backed by getInfo
// (spec.md §6).
func newStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status [sd-path]",
		Short: "List notes, vector clocks, and GC counters for a Storage Directory",
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

			notes, err := h.ListNotes()
			if err != nil {
				return fmt.Errorf("listing notes: %w", err)
			}

			renderNoteTable(cmd.OutOrStdout(), notes)
			return nil
		},
	}
}

func renderNoteTable(w io.Writer, notes []syncloop.NoteInfo) {
	headers := []string{"ID", "TITLE", "MODIFIED", "UPDATES", "PACKS", "SNAPS", "SIZE", "DELETED", "VCLOCK"}
	rows := make([][]string, 0, len(notes))
	for _, n := range notes {
		rows = append(rows, []string{
			n.ID.String(),
			n.Title,
			formatTime(n.Modified),
			fmt.Sprintf("%d", n.CRDTUpdateCount),
			fmt.Sprintf("%d", n.PackCount),
			fmt.Sprintf("%d", n.SnapshotCount),
			formatSize(n.TotalFileSize),
			fmt.Sprintf("%v", n.Deleted),
			fmt.Sprintf("%v", n.VectorClock),
		})
	}
	printTable(w, headers, rows)
}
