package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/gyeh/hospital-prices/internal/config"
	"github.com/gyeh/hospital-prices/internal/logging"
	"github.com/gyeh/hospital-prices/internal/metrics"
	"github.com/gyeh/hospital-prices/internal/progress"
	"github.com/gyeh/hospital-prices/internal/storage"
	"github.com/gyeh/hospital-prices/internal/warehouse"
	"github.com/gyeh/hospital-prices/internal/worker"
)

func main() {
	rootCmd := newRootCmd()
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// options holds flags shared by every command. Flags left at their zero
// value fall back to the environment.
type options struct {
	envFile     string
	workers     int
	keysFile    string
	noProgress  bool
	logProgress bool
	metricsAddr string
}

func newRootCmd() *cobra.Command {
	opts := &options{}
	rootCmd := &cobra.Command{
		Use:          "hospital-prices",
		Short:        "Normalize hospital price transparency files and load them into Postgres",
		SilenceUsage: true,
	}

	pf := rootCmd.PersistentFlags()
	pf.StringVar(&opts.envFile, "env-file", ".env", "Optional .env file to read before the environment")
	pf.IntVar(&opts.workers, "workers", 0, "Number of concurrent file workers (default: WORKERS)")
	pf.StringVar(&opts.keysFile, "keys-file", "", "File listing storage keys, one per line")
	pf.BoolVar(&opts.noProgress, "no-progress", false, "Disable progress output")
	pf.BoolVar(&opts.logProgress, "log-progress", false, "Use log-line progress instead of progress bars (for non-TTY environments)")
	pf.StringVar(&opts.metricsAddr, "metrics-addr", "", "Serve Prometheus metrics on this address, e.g. :9102")

	rootCmd.AddCommand(
		newStageCmd(opts, stageTransform),
		newStageCmd(opts, stageLoad),
		newStageCmd(opts, stageRun),
		newInitSchemaCmd(opts),
	)
	return rootCmd
}

type stage string

const (
	stageTransform stage = "transform"
	stageLoad      stage = "load"
	stageRun       stage = "run"
)

var stageShort = map[stage]string{
	stageTransform: "Transform raw hospital files (bronze) into canonical files (silver)",
	stageLoad:      "Load canonical files (silver) into the warehouse",
	stageRun:       "Transform raw hospital files and load them into the warehouse",
}

func newStageCmd(opts *options, st stage) *cobra.Command {
	return &cobra.Command{
		Use:   string(st) + " [key...]",
		Short: stageShort[st],
		Long: stageShort[st] + ".\n\nKeys without a directory are resolved under the " +
			"bronze prefix (silver prefix for load). With no keys, every object under that prefix is processed.",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := signalContext()
			defer cancel()

			a, err := newApp(ctx, opts)
			if err != nil {
				return err
			}
			defer a.close()
			return a.runStage(ctx, st, args)
		},
	}
}

func newInitSchemaCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "init-schema",
		Short: "Create the warehouse tables if they do not exist",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := signalContext()
			defer cancel()

			cfg, log, err := setup(opts)
			if err != nil {
				return err
			}
			pool, err := warehouse.Open(ctx, cfg.DatabaseURL, cfg.DBMaxConns)
			if err != nil {
				return err
			}
			defer pool.Close()

			if err := warehouse.ApplySchema(ctx, pool); err != nil {
				return err
			}
			log.Info("schema applied")
			return nil
		},
	}
}

// signalContext is canceled on SIGINT or SIGTERM.
func signalContext() (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		select {
		case <-sigCh:
			fmt.Fprintln(os.Stderr, "\nInterrupted, cleaning up...")
			cancel()
		case <-ctx.Done():
		}
		signal.Stop(sigCh)
	}()
	return ctx, cancel
}

func setup(opts *options) (*config.Config, *logrus.Logger, error) {
	cfg, err := config.Load(opts.envFile)
	if err != nil {
		return nil, nil, err
	}
	if opts.workers > 0 {
		cfg.Workers = opts.workers
	}
	log, err := logging.New(cfg.LogLevel, cfg.LogFormat)
	if err != nil {
		return nil, nil, err
	}
	return cfg, log, nil
}

// app holds the collaborators one command invocation shares.
type app struct {
	opts    *options
	cfg     *config.Config
	log     *logrus.Logger
	store   storage.Store
	metrics *metrics.Metrics
	db      *pgxpool.Pool
	server  *http.Server
}

func newApp(ctx context.Context, opts *options) (*app, error) {
	cfg, log, err := setup(opts)
	if err != nil {
		return nil, err
	}
	store, err := storage.New(ctx, cfg.StorageOptions())
	if err != nil {
		return nil, err
	}

	a := &app{opts: opts, cfg: cfg, log: log, store: store, metrics: metrics.New()}
	if opts.metricsAddr != "" {
		a.serveMetrics(opts.metricsAddr)
	}
	return a, nil
}

func (a *app) serveMetrics(addr string) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", a.metrics.Handler())
	a.server = &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		if err := a.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			a.log.WithError(err).Error("metrics server stopped")
		}
	}()
	a.log.WithField("addr", addr).Info("serving metrics")
}

func (a *app) close() {
	if a.db != nil {
		a.db.Close()
	}
	if a.server != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = a.server.Shutdown(ctx)
	}
}

func (a *app) progressManager() progress.Manager {
	switch {
	case a.opts.noProgress:
		return &progress.NoopManager{}
	case a.opts.logProgress:
		return progress.NewLogManager(a.log)
	default:
		return progress.NewMPBManager()
	}
}

func (a *app) runStage(ctx context.Context, st stage, args []string) error {
	p := &worker.Pipeline{
		Store:        a.store,
		Dispatcher:   a.cfg.Dispatcher(),
		Metrics:      a.metrics,
		Log:          a.log,
		SilverPrefix: a.cfg.SilverPrefix,
		SilverFormat: a.cfg.SilverEncoding(),
		UseStdGzip:   a.cfg.UseStdGzip,
	}

	if st != stageTransform {
		db, err := warehouse.Open(ctx, a.cfg.DatabaseURL, a.cfg.DBMaxConns)
		if err != nil {
			return err
		}
		a.db = db
		p.Loader = warehouse.NewLoader(db, a.log)
	}

	prefix, fn := a.cfg.BronzePrefix, worker.StageFunc(p.Transform)
	switch st {
	case stageLoad:
		prefix, fn = a.cfg.SilverPrefix, p.Load
	case stageRun:
		fn = p.Run
	}

	keys, err := collectKeys(ctx, a.store, prefix, args, a.opts.keysFile)
	if err != nil {
		return err
	}
	if len(keys) == 0 {
		return errors.Errorf("no files found under %q", prefix)
	}

	startTime := time.Now()
	mgr := a.progressManager()
	pool := &worker.Pool{Workers: a.cfg.Workers, Progress: mgr}
	results := pool.Run(ctx, keys, fn)
	mgr.Wait()

	return summarize(a.log, st, results, time.Since(startTime))
}

// summarize logs per-file failures and a batch summary, and returns an
// error when any file failed.
func summarize(log logrus.FieldLogger, st stage, results []worker.PipelineResult, elapsed time.Duration) error {
	var failed, skipped, alreadyLoaded, records int
	var facts int64
	for _, r := range results {
		switch {
		case r.Err != nil:
			failed++
			log.WithField("file", r.Key).WithError(r.Err).Error("file failed")
			continue
		case r.Skipped:
			skipped++
			continue
		}
		records += r.Records
		if r.Load != nil {
			if r.Load.AlreadyLoaded {
				alreadyLoaded++
			}
			facts += r.Load.Facts
		}
	}

	log.WithFields(logrus.Fields{
		"stage":          st,
		"files":          len(results),
		"failed":         failed,
		"unsupported":    skipped,
		"already_loaded": alreadyLoaded,
		"records":        records,
		"facts":          facts,
		"elapsed":        elapsed.Truncate(time.Millisecond),
	}).Info("batch complete")

	if failed > 0 {
		return errors.Errorf("%d of %d files failed", failed, len(results))
	}
	return nil
}
