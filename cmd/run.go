package cmd

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"time"

	"pomcp/communication/client"
	"pomcp/engine"
	"pomcp/experiments"
	"pomcp/experiments/metrics"
	"pomcp/grid"
	"pomcp/pomdp"
	"pomcp/searcher"

	"github.com/mattn/go-isatty"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

var (
	runFlags struct {
		episodes    int
		simulations int
		duration    time.Duration
		goroutines  int
		maxSteps    int
		recovery    string
		output      string
		render      bool
		metricsAddr string
		remote      string
	}

	runCmd = &cobra.Command{
		Use:   "run",
		Short: "Play grid episodes with the POMCP agent",
		Args:  cobra.NoArgs,
		RunE:  runEpisodes,
	}
)

func init() {
	flags := runCmd.Flags()
	flags.IntVar(&runFlags.episodes, "episodes", 0, "episodes to play")
	flags.IntVar(&runFlags.simulations, "simulations", 0, "simulations per search instead of a time budget")
	flags.DurationVar(&runFlags.duration, "duration", 0, "time budget per search")
	flags.IntVar(&runFlags.goroutines, "goroutines", 0, "search goroutines")
	flags.IntVar(&runFlags.maxSteps, "max-steps", 0, "step limit per episode")
	flags.StringVar(&runFlags.recovery, "recovery", "", "reset or abort after an impossible observation")
	flags.StringVar(&runFlags.output, "output", "", "directory for CSV records")
	flags.BoolVar(&runFlags.render, "render", false, "print the belief after every step")
	flags.StringVar(&runFlags.metricsAddr, "metrics-addr", "", "serve Prometheus metrics on this address")
	flags.StringVar(&runFlags.remote, "remote", "", "URL of a server hosting the grid")
	rootCmd.AddCommand(runCmd)
}

// applyRunFlags lets explicitly set flags win over the loaded config.
func applyRunFlags(cmd *cobra.Command) error {
	changed := cmd.Flags().Changed
	if changed("episodes") {
		cfg.Run.Episodes = runFlags.episodes
	}
	if changed("simulations") {
		cfg.Planner.Episodes = runFlags.simulations
	}
	if changed("duration") {
		cfg.Planner.Duration = runFlags.duration
	}
	if changed("goroutines") {
		cfg.Planner.Goroutines = runFlags.goroutines
	}
	if changed("max-steps") {
		cfg.Run.MaxSteps = runFlags.maxSteps
	}
	if changed("recovery") {
		cfg.Run.Recovery = runFlags.recovery
	}
	if changed("output") {
		cfg.Run.Output = runFlags.output
	}
	if changed("render") {
		cfg.Run.Render = runFlags.render
	}
	if changed("metrics-addr") {
		cfg.Run.MetricsAddr = runFlags.metricsAddr
	}
	if changed("remote") {
		cfg.Run.Remote = runFlags.remote
	}
	return cfg.Validate()
}

func runEpisodes(cmd *cobra.Command, _ []string) error {
	if err := applyRunFlags(cmd); err != nil {
		return err
	}
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
	defer stop()

	recovery, err := engine.ParseRecovery(cfg.Run.Recovery)
	if err != nil {
		return err
	}
	env, err := grid.New(cfg.Grid)
	if err != nil {
		return err
	}
	model, err := env.Model()
	if err != nil {
		return err
	}

	collector := metrics.NewCollector()
	if cfg.Run.MetricsAddr != "" {
		reg := prometheus.NewRegistry()
		collector = metrics.NewPrometheusCollector(reg)
		shutdown := serveMetrics(cfg.Run.MetricsAddr, reg)
		defer shutdown()
	}

	var remote *client.Client
	if cfg.Run.Remote != "" {
		remote = client.New(cfg.Run.Remote)
	}

	results := experiments.Results{Configs: []metrics.PlannerConfig{{
		ID:          1,
		Goroutines:  cfg.Planner.Goroutines,
		Duration:    cfg.Planner.Duration,
		Episodes:    cfg.Planner.Episodes,
		Discount:    cfg.Planner.Discount,
		Exploration: cfg.Planner.Exploration,
	}}}
	for i := 0; i < cfg.Run.Episodes; i++ {
		var world searcher.Environment = env
		if remote != nil {
			if err := remote.Reset(ctx); err != nil {
				return err
			}
			world = remote
		} else {
			env.Reset()
		}

		options := append(cfg.Planner.Options(),
			searcher.WithSeed(cfg.Planner.Seed+uint64(i)),
			searcher.WithMetrics(collector))
		planner, err := searcher.NewPOMCP(pomdp.NewGenerator(model), world, options...)
		if err != nil {
			return err
		}
		results.Configs[0].Horizon = planner.Horizon()

		e := engine.NewLocalEngine(planner, cfg.Run.MaxSteps, recovery)
		if cfg.Run.Render && remote == nil {
			out := cmd.OutOrStdout()
			colors := isatty.IsTerminal(os.Stdout.Fd())
			e.OnStep(func(m metrics.StepMetric) {
				fmt.Fprintf(out, "step %d: %s, saw colour %d\n", m.Step, grid.ActionName(pomdp.Action(m.Action)), m.Observation)
				if err := env.Render(out, planner.Belief(), colors); err != nil {
					log.Warn().Err(err).Msg("render")
				}
			})
		}

		episode, steps, err := e.Run(ctx)
		results.Episodes = append(results.Episodes, metrics.EpisodeRecord{ID: i + 1, Config: 1, EpisodeMetric: episode})
		for _, step := range steps {
			results.Steps = append(results.Steps, metrics.StepRecord{Episode: i + 1, StepMetric: step})
		}
		if err != nil && !errors.Is(err, engine.ErrAborted) {
			return err
		}
		log.Info().
			Int("episode", i+1).
			Int("steps", episode.Steps).
			Bool("reached", episode.Reached).
			Float64("return", episode.Return).
			Int("resets", episode.Resets).
			Dur("duration", episode.Duration).
			Msg("episode complete")
	}

	if cfg.Run.Output == "" {
		return nil
	}
	writer, err := metrics.NewWriter(cfg.Run.Output)
	if err != nil {
		return err
	}
	if err := experiments.Store(writer, results); err != nil {
		return err
	}
	log.Info().Msgf("records written to %s", writer.BaseDir())
	return nil
}

func serveMetrics(addr string, reg *prometheus.Registry) func() {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error().Err(err).Msg("metrics server")
		}
	}()
	log.Info().Msgf("serving metrics on %s/metrics", addr)
	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		_ = srv.Shutdown(ctx)
	}
}
