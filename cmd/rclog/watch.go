package main

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/therealutkarshpriyadarshi/rclog/internal/checkpoint"
	"github.com/therealutkarshpriyadarshi/rclog/internal/config"
	"github.com/therealutkarshpriyadarshi/rclog/internal/health"
	"github.com/therealutkarshpriyadarshi/rclog/internal/pipeline"
	"github.com/therealutkarshpriyadarshi/rclog/internal/server"
	"github.com/therealutkarshpriyadarshi/rclog/internal/shutdown"
	"github.com/therealutkarshpriyadarshi/rclog/internal/watch"
)

type watchFlags struct {
	runFlags
	inbox  string
	ledger string
	listen string
}

func newWatchCmd(g *globalFlags) *cobra.Command {
	f := &watchFlags{}

	cmd := &cobra.Command{
		Use:   "watch [inbox]",
		Short: "Analyze every archive dropped into an inbox directory",
		Long: `Watch an inbox directory and analyze each RCLogs archive once, as soon as it
has finished being written. Processed archives are recorded in a ledger so a
restart does not analyze them again.

Examples:
  rclog watch /srv/rclogs --org acme --chassis 42 -p secret
  rclog watch -c rclog.yaml`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runWatch(cmd, g, f, args)
		},
	}

	f.register(cmd)
	cmd.Flags().StringVar(&f.inbox, "inbox", "", "directory to watch")
	cmd.Flags().StringVar(&f.ledger, "ledger", "", "processed archive ledger (default: <inbox>/"+config.DefaultLedgerName+")")
	cmd.Flags().StringVar(&f.listen, "listen", "", "status server address serving /metrics, /health and /archives")

	return cmd
}

func runWatch(cmd *cobra.Command, g *globalFlags, f *watchFlags, args []string) error {
	cfg, err := loadConfig(cmd, g, &f.runFlags)
	if err != nil {
		return err
	}

	if cfg.Watch == nil {
		cfg.Watch = &config.WatchConfig{}
	}
	if len(args) == 1 {
		cfg.Watch.Inbox = args[0]
	}
	if f.inbox != "" {
		cfg.Watch.Inbox = f.inbox
	}
	if f.ledger != "" {
		cfg.Watch.Ledger = f.ledger
	}
	if f.listen != "" {
		cfg.Watch.Listen = f.listen
	}
	cfg.ApplyDefaults()
	// Purging would remove the reports of earlier archives
	cfg.Report.Purge = false
	if err := cfg.ValidateWatch(); err != nil {
		return err
	}

	ctx, cancel := shutdown.SignalContext(context.Background())
	defer cancel()

	rt, err := newRuntime(ctx, cfg)
	if err != nil {
		return err
	}
	defer rt.close()

	ledger, err := checkpoint.Open(cfg.Watch.Ledger)
	if err != nil {
		return fmt.Errorf("failed to open ledger: %w", err)
	}

	w, err := watch.New(watch.Config{
		Inbox:    cfg.Watch.Inbox,
		Pattern:  cfg.Watch.Pattern,
		Debounce: cfg.Watch.Debounce,
	}, ledger, archiveHandler(cfg, rt.pipeline), rt.logger)
	if err != nil {
		return err
	}

	if cfg.Watch.Listen != "" {
		status := newStatusServer(cfg, rt, ledger, w)
		if err := status.Start(); err != nil {
			return err
		}
		rt.shutdown.Register("status server", status.Stop)
	}

	rt.logger.Info().Str("version", version).Str("inbox", cfg.Watch.Inbox).Msg("Starting rclog watcher")
	if err := w.Run(ctx); err != nil {
		return err
	}

	rt.logger.Info().Msg("Shutdown signal received")
	return nil
}

// newStatusServer exposes metrics, health and the ledger of the watcher
func newStatusServer(cfg *config.Config, rt *runtime, ledger *checkpoint.Ledger, w *watch.Watcher) *server.Server {
	checker := health.NewChecker(5 * time.Second)
	checker.Register("inbox", health.DirCheck(cfg.Watch.Inbox))
	checker.Register("runs", health.RunCheck(func() health.RunState {
		s := w.Stats()
		return health.RunState{
			Processed: s.Processed,
			Failed:    s.Failed,
			Pending:   s.Pending,
			LastRun:   s.LastRun,
			LastError: s.LastError,
		}
	}))

	return server.New(server.Config{
		Address:       cfg.Watch.Listen,
		Metrics:       rt.metrics.Handler(),
		HealthChecker: checker,
		Archives:      ledger.Positions,
		Watcher:       func() any { return w.Stats() },
		PProf:         cfg.Profiling != nil && cfg.Profiling.PProf,
		Logger:        rt.logger,
	})
}

// archiveHandler runs the pipeline on one archive, extracting it into its own
// subdirectory of the work directory so runs never see each other's files
func archiveHandler(cfg *config.Config, p *pipeline.Pipeline) watch.Handler {
	return func(ctx context.Context, path string) (watch.Result, error) {
		base := filepath.Base(path)
		inputs := config.InputsConfig{
			Archive:  path,
			Password: cfg.Inputs.Password,
			WorkDir:  filepath.Join(cfg.Inputs.WorkDir, strings.TrimSuffix(base, filepath.Ext(base))),
		}

		result, err := p.RunWith(ctx, inputs)
		if err != nil {
			return watch.Result{}, err
		}
		return watch.Result{Archive: result.Archive, Report: result.Report}, nil
	}
}
