package cmd

import (
	"fmt"

	"pomcp/searcher"

	"github.com/spf13/cobra"
)

var (
	horizonDiscount float64
	horizonEpsilon  float64

	horizonCmd = &cobra.Command{
		Use:   "horizon",
		Short: "Print the search depth implied by a discount and a tolerance",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			d, err := searcher.Horizon(horizonDiscount, horizonEpsilon)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), d)
			return nil
		},
	}
)

func init() {
	horizonCmd.Flags().Float64Var(&horizonDiscount, "discount", searcher.DefaultDiscount, "discount factor in (0, 1)")
	horizonCmd.Flags().Float64Var(&horizonEpsilon, "epsilon", searcher.DefaultEpsilon, "tolerance in (0, 1)")
	rootCmd.AddCommand(horizonCmd)
}
