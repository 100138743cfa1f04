package main

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/drewcsillag/notecove/internal/frame"
)

// newQuarantineCmd implements `notecove quarantine <sd-path> [--clear]`:
// lists, or deletes, every file under the Storage Directory that the
// merge engine has already quarantined for a decode failure (frame.
// QuarantineSuffix, ".corrupt" — spec.md §4.5's "corruption of one file
// must not prevent progress on others").
func newQuarantineCmd() *cobra.Command {
	var clear bool

	cmd := &cobra.Command{
		Use:   "quarantine [sd-path]",
		Short: "List or clear quarantined (.corrupt) files",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cc := mustCLIContext(cmd.Context())

			path, err := resolveSDPath(cc, args)
			if err != nil {
				return err
			}

			found, err := findQuarantined(path)
			if err != nil {
				return fmt.Errorf("scanning %s for quarantined files: %w", path, err)
			}

			if len(found) == 0 {
				cc.Statusf("no quarantined files under %s\n", path)
				return nil
			}

			for _, p := range found {
				if clear {
					if err := os.Remove(p); err != nil {
						return fmt.Errorf("removing %s: %w", p, err)
					}
					fmt.Fprintf(cmd.OutOrStdout(), "removed %s\n", p)
					continue
				}
				fmt.Fprintln(cmd.OutOrStdout(), p)
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&clear, "clear", false, "delete quarantined files instead of listing them")
	return cmd
}

// findQuarantined walks root looking for files carrying
// frame.QuarantineSuffix, returning their paths sorted by walk order
// (lexicographic, since filepath.WalkDir visits directories in that
// order).
func findQuarantined(root string) ([]string, error) {
	var found []string
	err := filepath.WalkDir(root, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		if frame.IsQuarantined(d.Name()) {
			found = append(found, p)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return found, nil
}
