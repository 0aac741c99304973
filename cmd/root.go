// Package cmd wires the planner, the grid and the engine into the pomcp CLI.
package cmd

import (
	"fmt"
	"os"
	"time"

	"pomcp/config"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

var (
	configPath string
	logLevel   string

	// Loaded before any subcommand runs
	cfg config.Config

	rootCmd = &cobra.Command{
		Use:   "pomcp",
		Short: "Online POMDP planning with Monte-Carlo tree search",
		Long: `pomcp plans in partially observable worlds with POMCP: it tracks a belief
over hidden states and searches a tree of action-observation histories.`,
		SilenceUsage:      true,
		PersistentPreRunE: loadConfig,
	}
)

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "YAML config file")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "debug, info, warn or error (overrides the config)")
}

func Execute() error {
	return rootCmd.Execute()
}

func loadConfig(cmd *cobra.Command, _ []string) error {
	c, err := config.Load(configPath)
	if err != nil {
		return err
	}
	if logLevel != "" {
		c.Log.Level = logLevel
	}
	cfg = c
	return setupLogging(cfg.Log)
}

func setupLogging(l config.Log) error {
	level, err := zerolog.ParseLevel(l.Level)
	if err != nil {
		return fmt.Errorf("log level: %w", err)
	}
	zerolog.SetGlobalLevel(level)
	if l.Console {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.TimeOnly})
	}
	return nil
}
