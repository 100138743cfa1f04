package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/drewcsillag/notecove/internal/fuzzharness"
)

// newFuzzCmd implements `notecove fuzz --scenario <name> --duration
// <seconds>`: runs one of the fixed adversarial stress scenarios in-process
// and exits non-zero if the instances it drives fail to converge.
func newFuzzCmd() *cobra.Command {
	var scenarioFlag string
	var durationSeconds int

	cmd := &cobra.Command{
		Use:   "fuzz",
		Short: "Run a convergence stress scenario",
		RunE: func(cmd *cobra.Command, args []string) error {
			cc := mustCLIContext(cmd.Context())

			scenario, err := fuzzharness.ParseScenario(scenarioFlag)
			if err != nil {
				names := make([]string, len(fuzzharness.Scenarios))
				for i, s := range fuzzharness.Scenarios {
					names[i] = string(s)
				}
				return fmt.Errorf("%w (choices: %s)", err, strings.Join(names, ", "))
			}

			cc.Statusf("running scenario %s for %ds\n", scenario, durationSeconds)

			result, err := fuzzharness.Run(cmd.Context(), fuzzharness.Config{
				Scenario: scenario,
				Duration: time.Duration(durationSeconds) * time.Second,
				Logger:   cc.Logger,
			})
			if err != nil {
				return fmt.Errorf("running scenario %s: %w", scenario, err)
			}

			cc.Statusf("scenario %s: %d instances, %d notes, converged=%v (elapsed %s)\n",
				result.Scenario, result.Instances, result.Notes, result.Converged, result.Elapsed)

			if !result.Converged {
				for _, m := range result.Mismatches {
					fmt.Fprintln(cmd.OutOrStdout(), m)
				}
				return fmt.Errorf("scenario %s: instances failed to converge (%d mismatches)", scenario, len(result.Mismatches))
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&scenarioFlag, "scenario", string(fuzzharness.QuickSmoke), "stress scenario to run")
	cmd.Flags().IntVar(&durationSeconds, "duration", 5, "how long to run the scenario, in seconds")
	return cmd
}
