package cmd

import (
	"os"
	"os/signal"
	"time"

	"pomcp/engine"
	"pomcp/experiments"
	"pomcp/experiments/metrics"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

var (
	experimentEpisodes int
	experimentOutput   string

	experimentCmd = &cobra.Command{
		Use:   "experiment",
		Short: "Compare planner configurations on the configured grid",
	}

	throughputGoroutines int
	throughputDuration   time.Duration

	throughputCmd = &cobra.Command{
		Use:   "throughput",
		Short: "Sweep search goroutines under a fixed time budget",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runExperiment(cmd, "throughput", experiments.ThroughputConfigs(throughputGoroutines, throughputDuration))
		},
	}

	explorationSimulations  int
	explorationCoefficients []float64

	explorationCmd = &cobra.Command{
		Use:   "exploration",
		Short: "Sweep the UCB1 coefficient under a fixed simulation budget",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runExperiment(cmd, "exploration", experiments.ExplorationConfigs(explorationSimulations, explorationCoefficients...))
		},
	}
)

func init() {
	experimentCmd.PersistentFlags().IntVar(&experimentEpisodes, "episodes", 10, "episodes per configuration")
	experimentCmd.PersistentFlags().StringVar(&experimentOutput, "output", "experiments", "directory for CSV records")

	throughputCmd.Flags().IntVar(&throughputGoroutines, "max-goroutines", 64, "largest goroutine count")
	throughputCmd.Flags().DurationVar(&throughputDuration, "duration", 10*time.Millisecond, "time budget per search")
	explorationCmd.Flags().IntVar(&explorationSimulations, "simulations", 500, "simulations per search")
	explorationCmd.Flags().Float64SliceVar(&explorationCoefficients, "coefficients", []float64{0.5, 1, 2, 4, 8}, "UCB1 coefficients")

	experimentCmd.AddCommand(throughputCmd, explorationCmd)
	rootCmd.AddCommand(experimentCmd)
}

func runExperiment(cmd *cobra.Command, name string, configs []metrics.PlannerConfig) error {
	recovery, err := engine.ParseRecovery(cfg.Run.Recovery)
	if err != nil {
		return err
	}
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
	defer stop()

	x := experiments.Experiment{
		Name:     name,
		Configs:  configs,
		Episodes: experimentEpisodes,
		MaxSteps: cfg.Run.MaxSteps,
		Grid:     cfg.Grid,
		Recovery: recovery,
	}
	results, err := x.Run(ctx)
	if err != nil {
		return err
	}

	writer, err := metrics.NewWriter(experimentOutput)
	if err != nil {
		return err
	}
	if err := experiments.Store(writer, results); err != nil {
		return err
	}
	log.Info().Msgf("records written to %s", writer.BaseDir())
	return nil
}
