package main

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"gobandits/adapters/api"
	"gobandits/adapters/db/postgres/migrations"
	"gobandits/adapters/rng"
	"gobandits/adapters/runner"
	"gobandits/app"
	"gobandits/domain/arms"
	"gobandits/domain/core"
	"gobandits/internal"
	"gobandits/internal/betainc"
	"gobandits/internal/config"
	"gobandits/internal/render"
	"gobandits/internal/thompson"
	"gobandits/ports"
)

const (
	defaultOutput = "./new-config.json"
	stripWidth    = 60
	topArms       = 3
)

func newNewCmd(c *cli) *cobra.Command {
	var tests []string

	cmd := &cobra.Command{
		Use:     "new <roster>",
		Short:   "Create a new roster for the given name=command scripts",
		Example: `  bandits new scripts.json -t parser="./fuzz.sh parser" -t lexer="./fuzz.sh lexer"`,
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			mappings := make([]arms.Mapping, 0, len(tests))
			for _, t := range tests {
				m, err := parseMapping(t)
				if err != nil {
					return err
				}
				mappings = append(mappings, m)
			}

			store, err := c.openStore(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			defer store.close()

			roster, err := c.scheduler(nil, nil).Create(cmd.Context(), store.repo, mappings)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "created %s with %d scripts\n", args[0], len(roster.Scripts))
			return nil
		},
	}

	cmd.Flags().StringArrayVarP(&tests, "test", "t", nil, "name=command mapping, repeatable")
	return cmd
}

func newRunCmd(c *cli) *cobra.Command {
	var output string
	var steps int
	var ignoreRuntime bool

	cmd := &cobra.Command{
		Use:   "run <roster>",
		Short: "Repeatedly pick and run scripts by their likelihood to find interesting cases",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			output = c.outputFor(cmd, args[0], output)
			source, err := c.openStore(ctx, args[0])
			if err != nil {
				return err
			}
			defer source.close()
			target := source
			if output != args[0] {
				if target, err = c.openStore(ctx, output); err != nil {
					return err
				}
				defer target.close()
			}

			var childOut io.Writer = io.Discard
			if c.logger.GetLevel() >= internal.LogLevelTrace {
				childOut = cmd.ErrOrStderr()
			}
			exec := runner.NewExecRunner(runner.WithOutput(childOut, childOut))

			mode := thompson.ModeFor(ignoreRuntime)
			result, err := c.scheduler(exec, source.journal).Run(ctx, app.RunRequest{
				Source: source.repo,
				Output: target.repo,
				Steps:  steps,
				Mode:   mode,
				Seed:   c.cfg.Schedule.EffectiveSeed(),
			})
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "ran %d steps, saved to %s\n", len(result.Steps), output)
			if result.Exhausted {
				fmt.Fprintln(out, "every script reached its limit")
			}

			roster, err := target.repo.Load(ctx)
			if err != nil {
				return err
			}
			rep, err := c.report(ctx, roster, mode)
			if err != nil {
				return err
			}
			fmt.Fprint(out, render.TopDensities(rep, topArms, stripWidth))
			if !ignoreRuntime {
				fmt.Fprint(out, render.TopSkewedDensities(rep, topArms, stripWidth))
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&output, "output", "o", defaultOutput, "where to save the updated roster")
	cmd.Flags().IntVar(&steps, "steps", 10, "number of script invocations to perform")
	cmd.Flags().BoolVarP(&ignoreRuntime, "ignore-runtime", "i", false, "ignore runtime when ranking scripts")
	return cmd
}

func newRankCmd(c *cli) *cobra.Command {
	var ignoreRuntime bool
	var verbose bool

	cmd := &cobra.Command{
		Use:   "rank <roster>",
		Short: "Draw one Thompson-sampled ranking of the roster",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			roster, err := c.load(ctx, args[0])
			if err != nil {
				return err
			}

			mode := thompson.ModeFor(ignoreRuntime)
			src, err := rng.NewSeededAdapter().SeededStream(ctx, "rank", c.cfg.Schedule.EffectiveSeed())
			if err != nil {
				return err
			}
			cands, _ := roster.Candidates(nil)
			order, err := thompson.NewSelector(mode, thompson.WithSampler(c.sampler())).Rank(cands, src)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprint(out, render.Ranking(roster, order))
			if !verbose {
				return nil
			}

			rep, err := c.report(ctx, roster, mode)
			if err != nil {
				return err
			}
			if !ignoreRuntime {
				fmt.Fprint(out, render.TopSkewedDensities(rep, topArms, stripWidth))
			}
			fmt.Fprint(out, render.RankingTable(rep))
			return nil
		},
	}

	cmd.Flags().BoolVarP(&ignoreRuntime, "ignore-runtime", "i", false, "ignore runtime when ranking scripts")
	cmd.Flags().BoolVarP(&verbose, "verbose", "v", false, "also print the Monte Carlo ranking summary")
	return cmd
}

func newResetCmd(c *cli) *cobra.Command {
	var script string
	var output string

	cmd := &cobra.Command{
		Use:   "reset <roster>",
		Short: "Clear what has been learned about one script or all of them",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			roster, err := c.load(ctx, args[0])
			if err != nil {
				return err
			}
			if len(roster.Scripts) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "No scripts to reset. Exiting...")
				return nil
			}

			var name core.ArmName
			if cmd.Flags().Changed("script") {
				if name, err = core.ParseArmName(script); err != nil {
					return err
				}
			}
			if err := c.scheduler(nil, nil).Reset(roster, name); err != nil {
				return err
			}

			output = c.outputFor(cmd, args[0], output)
			target, err := c.openStore(ctx, output)
			if err != nil {
				return err
			}
			defer target.close()
			if err := target.repo.Save(ctx, roster); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "reset saved to %s\n", output)
			return nil
		},
	}

	cmd.Flags().StringVar(&script, "script", "", "only reset this script")
	cmd.Flags().StringVarP(&output, "output", "o", defaultOutput, "where to save the reset roster")
	return cmd
}

func newSummarizeCmd(c *cli) *cobra.Command {
	var ignoreRuntime bool

	cmd := &cobra.Command{
		Use:   "summarize <roster>",
		Short: "Show posteriors, credible intervals and the ranking summary",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			roster, err := c.load(ctx, args[0])
			if err != nil {
				return err
			}
			rep, err := c.report(ctx, roster, thompson.ModeFor(ignoreRuntime))
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprint(out, render.TopDensities(rep, topArms, stripWidth))
			if !ignoreRuntime {
				fmt.Fprint(out, render.TopSkewedDensities(rep, topArms, stripWidth))
			}
			fmt.Fprint(out, render.RankingTable(rep))
			return nil
		},
	}

	cmd.Flags().BoolVarP(&ignoreRuntime, "ignore-runtime", "i", false, "ignore runtime when ranking scripts")
	return cmd
}

func newLintCmd(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:   "lint <roster>",
		Short: "Check a roster for settings that are probably mistakes",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := c.openStore(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			defer store.close()

			// lint reports what Validate would reject, so read without it
			roster, err := loadUnvalidated(cmd.Context(), store.repo)
			if err != nil {
				return err
			}

			findings := app.Lint(roster)
			fmt.Fprint(cmd.OutOrStdout(), render.Findings(findings))
			if app.HasErrors(findings) {
				return fmt.Errorf("%s has lint errors", args[0])
			}
			return nil
		},
	}
}

func newQuantileCmd(c *cli) *cobra.Command {
	var ps []float64

	cmd := &cobra.Command{
		Use:   "quantile <roster> <script>",
		Short: "Print quantiles of a script's posterior",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			roster, err := c.load(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			name, err := core.ParseArmName(args[1])
			if err != nil {
				return err
			}
			idx, err := roster.Find(name)
			if err != nil {
				return err
			}

			stats := roster.Scripts[idx].Results
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "%s: Beta(%g, %g), mean %.4f\n", name, stats.Alpha(), stats.Beta(), stats.PosteriorMean())
			for _, p := range ps {
				q, err := c.sampler().Quantile(stats, p)
				note := ""
				if err != nil {
					if !core.IsNonconvergence(err) {
						return err
					}
					note = " (approximate)"
				}
				fmt.Fprintf(out, "  p=%-6g %.6f%s\n", p, q, note)
			}
			return nil
		},
	}

	cmd.Flags().Float64SliceVarP(&ps, "p", "p", []float64{app.LowerQuantile, 0.5, app.UpperQuantile}, "probabilities to invert")
	return cmd
}

func newServeCmd(c *cli) *cobra.Command {
	var port string

	cmd := &cobra.Command{
		Use:   "serve [roster]",
		Short: "Serve a read-only JSON API over a roster",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			location := ""
			if len(args) == 1 {
				location = args[0]
			}
			store, err := c.openStore(ctx, location)
			if err != nil {
				return err
			}
			defer store.close()

			if port == "" {
				port = c.cfg.Server.Port
			}
			handler := api.NewServer(store.repo, c.scheduler(nil, nil), c.cfg.Schedule.EffectiveSeed(), c.logger)
			srv := &http.Server{
				Addr:              ":" + port,
				Handler:           handler,
				ReadHeaderTimeout: 5 * time.Second,
			}

			errCh := make(chan error, 1)
			go func() {
				c.logger.Info("serving on :%s", port)
				errCh <- srv.ListenAndServe()
			}()

			select {
			case err := <-errCh:
				return err
			case <-ctx.Done():
				shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				return srv.Shutdown(shutdownCtx)
			}
		},
	}

	cmd.Flags().StringVar(&port, "port", "", "listen port (default from PORT)")
	return cmd
}

func newMigrateCmd(c *cli) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Manage the postgres roster schema",
	}

	run := func(action func(context.Context, *migrations.Migrator, io.Writer) error) func(*cobra.Command, []string) error {
		return func(cmd *cobra.Command, args []string) error {
			db, err := c.openDB(cmd.Context())
			if err != nil {
				return err
			}
			defer db.Close()
			return action(cmd.Context(), migrations.NewMigrator(db.DB, cmd.OutOrStdout()), cmd.OutOrStdout())
		}
	}

	cmd.AddCommand(
		&cobra.Command{
			Use:   "up",
			Short: "Apply pending migrations",
			Args:  cobra.NoArgs,
			RunE: run(func(ctx context.Context, m *migrations.Migrator, _ io.Writer) error {
				return m.Up(ctx)
			}),
		},
		&cobra.Command{
			Use:   "down",
			Short: "Roll back the last migration",
			Args:  cobra.NoArgs,
			RunE: run(func(ctx context.Context, m *migrations.Migrator, _ io.Writer) error {
				return m.Down(ctx)
			}),
		},
		&cobra.Command{
			Use:   "status",
			Short: "Show which migrations are applied",
			Args:  cobra.NoArgs,
			RunE: run(func(ctx context.Context, m *migrations.Migrator, out io.Writer) error {
				statuses, err := m.Status(ctx)
				if err != nil {
					return err
				}
				applied := 0
				for _, s := range statuses {
					state := "pending"
					if s.Applied {
						state = "applied"
						applied++
					}
					if s.Modified {
						state += " (modified since applied)"
					}
					fmt.Fprintf(out, "  %s_%s: %s\n", s.Version, s.Name, state)
				}
				fmt.Fprintf(out, "%d/%d migrations applied\n", applied, len(statuses))
				return nil
			}),
		},
	)
	return cmd
}

// scheduler builds a scheduler service wired to the CLI's logger
func (c *cli) scheduler(r ports.ScriptRunner, journal ports.RunJournal) *app.SchedulerService {
	opts := []app.SchedulerOption{app.WithLogger(c.logger), app.WithSampler(c.sampler())}
	if journal != nil {
		opts = append(opts, app.WithJournal(journal))
	}
	return app.NewSchedulerService(r, rng.NewSeededAdapter(), opts...)
}

// report summarizes a roster with the configured Monte Carlo settings
func (c *cli) report(ctx context.Context, roster *arms.Roster, mode thompson.Mode) (*app.Report, error) {
	return app.NewReportService(rng.NewSeededAdapter(), c.logger).Summarize(ctx, app.ReportRequest{
		Roster:  roster,
		Mode:    mode,
		Trials:  c.cfg.Report.Trials,
		Workers: c.cfg.Report.Workers,
		Seed:    c.cfg.Schedule.EffectiveSeed(),
		Sampler: c.sampler(),
	})
}

// sampler inverts posteriors within the configured iteration budget
func (c *cli) sampler() thompson.Sampler {
	return thompson.Sampler{Inverter: betainc.Inverter{MaxIterations: c.cfg.Schedule.InverseIterations}}
}

// load opens a store, reads the roster and closes the store
func (c *cli) load(ctx context.Context, location string) (*arms.Roster, error) {
	store, err := c.openStore(ctx, location)
	if err != nil {
		return nil, err
	}
	defer store.close()
	return store.repo.Load(ctx)
}

// outputFor defaults a postgres output to the source roster, since a roster
// name like ./new-config.json makes no sense there.
func (c *cli) outputFor(cmd *cobra.Command, source, output string) string {
	if c.cfg.Store.Backend == config.StorePostgres && !cmd.Flags().Changed("output") {
		return source
	}
	return output
}
