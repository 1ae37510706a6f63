package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"gobandits/internal"
	"gobandits/internal/config"
)

// cli carries what every subcommand needs once flags and env are resolved
type cli struct {
	cfg    *config.Config
	logger *internal.Logger

	store       string
	databaseURL string
	logLevel    string
	seed        int64
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	c := &cli{}

	rootCmd := &cobra.Command{
		Use:   "bandits",
		Short: "Biased Thompson sampling for multi-armed bandits",
		Long: `Prioritize scripts by how likely they are to find interesting cases,
weighted by how fast they run and by a per-script bias.

A script exiting 0 is uninteresting, exiting 1 is interesting, and any other
exit status only contributes to its average runtime.`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return c.init(cmd)
		},
	}

	rootCmd.PersistentFlags().StringVar(&c.store, "store", "", "roster store: file or postgres (default from BANDITS_STORE)")
	rootCmd.PersistentFlags().StringVar(&c.databaseURL, "database-url", "", "postgres connection string (default from DATABASE_URL)")
	rootCmd.PersistentFlags().StringVar(&c.logLevel, "log-level", "", "ERROR, WARN, INFO, DEBUG or TRACE (default from LOG_LEVEL)")
	rootCmd.PersistentFlags().Int64Var(&c.seed, "seed", 0, "random seed, 0 for time based (default from BANDITS_SEED)")

	rootCmd.AddCommand(
		newNewCmd(c),
		newRunCmd(c),
		newRankCmd(c),
		newResetCmd(c),
		newSummarizeCmd(c),
		newLintCmd(c),
		newQuantileCmd(c),
		newServeCmd(c),
		newMigrateCmd(c),
	)
	return rootCmd
}

// init loads configuration and applies flag overrides
func (c *cli) init(cmd *cobra.Command) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	if c.store != "" {
		cfg.Store.Backend = c.store
	}
	if c.databaseURL != "" {
		cfg.Database.URL = c.databaseURL
	}
	if c.seed != 0 {
		cfg.Schedule.Seed = c.seed
	}
	if c.logLevel != "" {
		level, ok := internal.ParseLogLevel(c.logLevel)
		if !ok {
			return fmt.Errorf("unknown log level %q", c.logLevel)
		}
		cfg.Log.Level = level
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	c.cfg = cfg
	c.logger = internal.NewLogger(cfg.Log.Level, cmd.ErrOrStderr())
	return nil
}
