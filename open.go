package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

// newOpenCmd implements `notecove open <sd-path>`: opens (creating if
// necessary) the Storage Directory at path, registering it under a fresh
// alias in the config file if this is the first time this install has
// seen it, and prints its UUID.
func newOpenCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "open <sd-path>",
		Short: "Open or initialize a Storage Directory",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cc := mustCLIContext(cmd.Context())

			mgr, h, err := openHandle(cmd.Context(), cc, args[0])
			if err != nil {
				return err
			}
			defer mgr.CloseAll()

			cc.Statusf("opened storage directory at %s\n", args[0])
			fmt.Fprintln(cmd.OutOrStdout(), h.SD().ID)
			return nil
		},
	}
}
