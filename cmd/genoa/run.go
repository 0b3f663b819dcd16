package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/dustin/go-humanize"
	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"golang.org/x/time/rate"

	"github.com/talgya/gossip-market/internal/api"
	"github.com/talgya/gossip-market/internal/config"
	"github.com/talgya/gossip-market/internal/engine"
	"github.com/talgya/gossip-market/internal/entropy"
	"github.com/talgya/gossip-market/internal/persistence"
	"github.com/talgya/gossip-market/internal/report"
	"github.com/talgya/gossip-market/internal/view"
)

// publishInterval bounds how often snapshots are copied for readers.
const publishInterval = 100 * time.Millisecond

type runOptions struct {
	configPath  string
	runLength   int
	repetitions int
	seed        int64
	csvPath     string
	parquetPath string
	dbPath      string
	window      bool
	listen      string
	reportEvery int
	pace        float64
	apiRate     float64
}

func newRunCmd() *cobra.Command {
	var opts runOptions

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run one or more simulations",
		RunE: func(cmd *cobra.Command, args []string) error {
			if opts.apiRate < 0 {
				return fmt.Errorf("--api-rate-limit must be >= 0, got %v", opts.apiRate)
			}
			cfg, err := loadConfig(cmd, opts)
			if err != nil {
				return err
			}
			return runAll(cmd.Context(), cfg, opts, cmd.OutOrStdout())
		},
	}

	opts.bind(cmd)
	return cmd
}

func (o *runOptions) bind(cmd *cobra.Command) {
	f := cmd.Flags()
	f.StringVar(&o.configPath, "config", "", "Configuration file (.yaml, .yml or .toml)")
	f.IntVarP(&o.runLength, "run-length", "n", 10000, "Steps per simulation")
	f.IntVarP(&o.repetitions, "repetitions", "r", 1, "Independent simulations to run")
	f.Int64Var(&o.seed, "seed", 0, "Random seed (0 draws one)")
	f.StringVar(&o.csvPath, "csv", "", "Write series to this CSV file")
	f.StringVar(&o.parquetPath, "parquet", "", "Write series to this Parquet file")
	f.StringVar(&o.dbPath, "db", "", "Store runs and series in this SQLite database")
	f.BoolVar(&o.window, "window", false, "Show the live terminal view")
	f.StringVar(&o.listen, "listen", "", "Serve the read-only HTTP API on this address (e.g. :8080)")
	f.IntVar(&o.reportEvery, "report-every", 1000, "Log a step report every N steps (0 disables)")
	f.Float64Var(&o.pace, "pace", 0, "Limit the simulation to N steps per second (0 is unlimited)")
	f.Float64Var(&o.apiRate, "api-rate-limit", 0, "Requests per second allowed per API client (0 is unlimited)")
}

// loadConfig layers defaults, the config file, the environment and finally
// explicitly set flags.
func loadConfig(cmd *cobra.Command, opts runOptions) (config.Config, error) {
	cfg := config.Default()
	cfg.Simulation.RunLength = opts.runLength
	cfg.Simulation.Repetitions = opts.repetitions
	if opts.configPath != "" {
		loaded, err := config.Load(opts.configPath)
		if err != nil {
			return cfg, err
		}
		cfg = loaded
	}
	if err := cfg.ApplyEnv(); err != nil {
		return cfg, err
	}

	f := cmd.Flags()
	if f.Changed("run-length") {
		cfg.Simulation.RunLength = opts.runLength
	}
	if f.Changed("repetitions") {
		cfg.Simulation.Repetitions = opts.repetitions
	}
	if f.Changed("seed") {
		cfg.Simulation.Seed = opts.seed
	}
	return cfg, cfg.Validate()
}

func runAll(ctx context.Context, cfg config.Config, opts runOptions, out io.Writer) error {
	seed := entropy.ResolveSeed(cfg.Simulation.Seed)
	slog.Info("starting simulations",
		"repetitions", cfg.Simulation.Repetitions,
		"run_length", humanize.Comma(int64(cfg.Simulation.RunLength)),
		"agents", cfg.Agent.AgentCount,
		"fundamentalists", cfg.Agent.FundamentalistCount,
		"markets", cfg.Market.MarketCount,
		"seed", seed,
	)

	var db *persistence.DB
	if opts.dbPath != "" {
		var err error
		if db, err = persistence.Open(opts.dbPath); err != nil {
			return err
		}
		defer db.Close()
		slog.Info("database opened", "path", opts.dbPath)
	}

	var server *api.Server
	if opts.listen != "" {
		server = newAPIServer(opts, db)
		server.Start()
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			server.Shutdown(shutdownCtx)
		}()
	}

	for rep := 0; rep < cfg.Simulation.Repetitions; rep++ {
		r := &runner{
			cfg:    cfg,
			opts:   opts,
			rep:    rep,
			seed:   seed + int64(rep),
			db:     db,
			server: server,
			out:    out,
		}
		if err := r.run(ctx); err != nil {
			return err
		}
	}
	return nil
}

func newAPIServer(opts runOptions, db *persistence.DB) *api.Server {
	return &api.Server{Addr: opts.listen, DB: db, RateLimit: opts.apiRate}
}

// runner executes one repetition and writes its results.
type runner struct {
	cfg    config.Config
	opts   runOptions
	rep    int
	seed   int64
	db     *persistence.DB
	server *api.Server
	out    io.Writer

	id      string
	series  *report.Series
	sim     *engine.Simulation
	feed    chan *engine.Snapshot
	publish rate.Sometimes
}

func (r *runner) run(ctx context.Context) error {
	r.id = uuid.NewString()
	r.series = report.NewSeries()
	r.publish = rate.Sometimes{Interval: publishInterval}
	log := slog.With("run_id", r.id, "repetition", r.rep, "seed", r.seed)

	sim, err := engine.NewSimulation(r.cfg, r.seed, r.series)
	if err != nil {
		return err
	}
	r.sim = sim

	started := time.Now()
	if r.db != nil {
		cfgJSON, err := json.Marshal(r.cfg)
		if err != nil {
			return fmt.Errorf("encode config: %w", err)
		}
		run := persistence.Run{ID: r.id, Seed: r.seed, Repetition: r.rep, Config: string(cfgJSON), StartedAt: started}
		if err := r.db.SaveRun(run); err != nil {
			return err
		}
	}
	if r.server != nil {
		r.server.SetSeries(r.series)
	}

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	eng := engine.NewEngine(r.cfg.Simulation.RunLength, func(int) error {
		if err := r.sim.Step(); err != nil {
			return err
		}
		r.maybePublish()
		return nil
	}).Paced(r.opts.pace)
	eng.ReportEvery = r.opts.reportEvery
	eng.OnReport = func(int) { r.sim.LogReport() }

	var runErr error
	if r.opts.window {
		runErr = r.runWithView(runCtx, cancel, eng)
		if errors.Is(runErr, context.Canceled) && ctx.Err() == nil {
			log.Info("simulation stopped from the terminal view", "steps", eng.Step)
			runErr = nil
		}
	} else {
		runErr = eng.Run(runCtx)
	}

	final := r.sim.Snapshot(r.id, r.cfg.Simulation.RunLength)
	if r.server != nil {
		r.server.Publish(final)
	}
	if err := r.save(started, runErr); err != nil {
		return err
	}
	fmt.Fprintln(r.out, view.Summary(final))

	switch {
	case runErr == nil:
		log.Info("simulation complete", "steps", eng.Step, "elapsed", time.Since(started).Round(time.Millisecond))
	case errors.Is(runErr, context.Canceled):
		log.Warn("simulation interrupted", "steps", eng.Step)
	default:
		log.Error("simulation failed", "steps", eng.Step, "error", runErr)
	}
	return runErr
}

// runWithView steps the simulation in the background while the terminal
// view runs in the foreground. Quitting the view cancels the run.
func (r *runner) runWithView(ctx context.Context, cancel context.CancelFunc, eng *engine.Engine) error {
	r.feed = make(chan *engine.Snapshot, 1)
	done := make(chan error, 1)
	go func() {
		err := eng.Run(ctx)
		r.send(r.sim.Snapshot(r.id, r.cfg.Simulation.RunLength))
		close(r.feed)
		done <- err
	}()

	prog := tea.NewProgram(view.NewModel(r.feed, cancel), tea.WithAltScreen(), tea.WithContext(ctx))
	if _, err := prog.Run(); err != nil && !errors.Is(err, tea.ErrProgramKilled) {
		cancel()
		<-done
		return fmt.Errorf("terminal view: %w", err)
	}
	cancel()
	return <-done
}

// maybePublish hands a snapshot to the API and the view at most once per
// publishInterval.
func (r *runner) maybePublish() {
	if r.server == nil && r.feed == nil {
		return
	}
	r.publish.Do(func() {
		snap := r.sim.Snapshot(r.id, r.cfg.Simulation.RunLength)
		if r.server != nil {
			r.server.Publish(snap)
		}
		r.send(snap)
	})
}

// send replaces any unread snapshot in the feed with snap.
func (r *runner) send(snap *engine.Snapshot) {
	if r.feed == nil {
		return
	}
	select {
	case <-r.feed:
	default:
	}
	select {
	case r.feed <- snap:
	default:
	}
}

func (r *runner) save(started time.Time, runErr error) error {
	halted := ""
	if runErr != nil {
		halted = runErr.Error()
	}
	if r.db != nil {
		if err := r.db.FinishRun(r.id, r.sim.CurrentStep(), halted, time.Now()); err != nil {
			return err
		}
		if err := r.db.SaveSeries(r.id, r.series); err != nil {
			return fmt.Errorf("save series: %w", err)
		}
	}
	if r.opts.csvPath != "" {
		if err := writeFile(outputPath(r.opts.csvPath, r.rep, r.cfg.Simulation.Repetitions), func(w io.Writer) error {
			return report.WriteCSV(w, r.series)
		}); err != nil {
			return err
		}
	}
	if r.opts.parquetPath != "" {
		if err := writeFile(outputPath(r.opts.parquetPath, r.rep, r.cfg.Simulation.Repetitions), func(w io.Writer) error {
			return report.WriteParquet(w, r.id, r.series)
		}); err != nil {
			return err
		}
	}
	slog.Debug("run saved", "run_id", r.id, "series", r.series.Len(), "elapsed", time.Since(started))
	return nil
}

// outputPath suffixes path with the repetition index when several
// repetitions share one output flag: out.csv becomes out_2.csv.
func outputPath(path string, rep, reps int) string {
	if reps <= 1 {
		return path
	}
	ext := filepath.Ext(path)
	return fmt.Sprintf("%s_%d%s", strings.TrimSuffix(path, ext), rep, ext)
}

func writeFile(path string, write func(io.Writer) error) error {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create %s: %w", dir, err)
		}
	}
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create %s: %w", path, err)
	}
	if err := write(f); err != nil {
		f.Close()
		return fmt.Errorf("write %s: %w", path, err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("close %s: %w", path, err)
	}
	slog.Info("results written", "path", path)
	return nil
}
