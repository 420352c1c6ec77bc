package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/courseops/mimeo/app"
	"github.com/courseops/mimeo/config"
	"github.com/courseops/mimeo/web"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Publish and preview the output over HTTP",
	Long: `Serve publishes the tree once, then serves the output directory over
HTTP alongside a small JSON API.

The server will:
  - Publish at startup and serve the output directory at /
  - Rebuild when definition or artifact files change (--watch)
  - Reload the config file when it changes or on SIGHUP
  - Report pipeline state at /api/status and run history at /api/runs

A failed rebuild keeps the last good publish in place; the error shows
up in /api/status until a later rebuild succeeds.

Examples:
  mimeo serve
  mimeo serve --addr :9000
  mimeo serve --watch=false`,
	RunE: runServe,
}

var (
	serveAddr  string
	serveWatch bool
)

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().StringVar(&serveAddr, "addr", "", "listen address (default from config)")
	serveCmd.Flags().BoolVar(&serveWatch, "watch", true, "rebuild when input files change")
}

func runServe(cmd *cobra.Command, args []string) error {
	a, err := loadApp()
	if err != nil {
		return err
	}
	defer a.Shutdown()

	cfg := a.Config
	if serveAddr != "" {
		cfg.Serve.Addr = serveAddr
	}
	if cmd.Flags().Changed("watch") {
		cfg.Serve.Watch = serveWatch
	}

	// The publish root is pinned for the server's lifetime. Changing
	// output in the config takes a restart.
	output := cfg.Output

	state := app.NewHolder()

	// Hot reload only works with a config file.
	getCfg := func() *config.Config { return cfg }
	var cfgHolder *config.Holder
	if _, err := os.Stat(cfgFile); err == nil {
		cfgHolder, err = config.NewHolder(cfgFile, a.Logger)
		if err != nil {
			return fmt.Errorf("watch config: %w", err)
		}
		defer cfgHolder.Stop()
		getCfg = cfgHolder.Get
	}

	rebuild := func() {
		live := getCfg()
		now := time.Now()

		vars, err := varsFrom(live, "")
		if err != nil {
			a.Logger.Error().Err(err).Msg("rebuild failed")
			state.SetError(err, now)
			return
		}

		result, err := a.Publisher.Publish(context.Background(), app.PublishRequest{
			InputDir:        live.Input,
			OutputDir:       output,
			SkipDirectories: live.SkipDirectories,
			Vars:            vars,
			Cache:           a.Cache,
		})
		if err != nil {
			a.Logger.Error().Err(err).Msg("rebuild failed")
			state.SetError(err, now)
			return
		}

		report, err := a.Status.Report(app.StatusRequest{
			InputDir:        live.Input,
			SkipDirectories: live.SkipDirectories,
			Vars:            vars,
			Cache:           a.Cache,
		})
		if err != nil {
			a.Logger.Error().Err(err).Msg("rebuild failed")
			state.SetError(err, now)
			return
		}

		state.SetGood(report, result, now)
	}

	// First publish before the listener comes up. A failure lands in
	// /api/status rather than aborting the server.
	rebuild()

	var (
		watchMu sync.Mutex
		watcher *app.Watcher
	)
	startWatch := func(live *config.Config) {
		watchMu.Lock()
		defer watchMu.Unlock()
		if watcher != nil {
			watcher.Stop()
			watcher = nil
		}
		w := app.NewWatcher(live.Input, live.SkipDirectories, cfg.Serve.Debounce, rebuild, a.Logger)
		if err := w.Start(); err != nil {
			a.Logger.Error().Err(err).Msg("failed to watch input tree")
			return
		}
		watcher = w
	}
	stopWatch := func() {
		watchMu.Lock()
		defer watchMu.Unlock()
		if watcher != nil {
			watcher.Stop()
			watcher = nil
		}
	}

	if cfg.Serve.Watch {
		startWatch(getCfg())
		defer stopWatch()
	}

	if cfgHolder != nil {
		cfgHolder.OnChange(func(next *config.Config) {
			if cfg.Serve.Watch {
				// Re-arm in case input or the skip list changed.
				startWatch(next)
			}
			rebuild()
		})
		if err := cfgHolder.WatchFile(); err != nil {
			return fmt.Errorf("watch config: %w", err)
		}
		cfgHolder.WatchSignals()
	}

	deps := web.Deps{
		Holder: state,
		Runs:   a.Status,
		Root:   output,
		Logger: a.Logger,
	}
	if cfg.Metrics.Enabled {
		deps.Metrics = promhttp.Handler()
		deps.MetricsPath = cfg.Metrics.Path
	}

	srv := &http.Server{
		Addr:         cfg.Serve.Addr,
		Handler:      web.NewHandler(deps).Router(),
		ReadTimeout:  cfg.Serve.ReadTimeout,
		WriteTimeout: cfg.Serve.WriteTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		a.Logger.Info().Str("addr", srv.Addr).Str("root", output).Msg("preview server listening")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errCh:
		return fmt.Errorf("server error: %w", err)
	case sig := <-quit:
		a.Logger.Info().Str("signal", sig.String()).Msg("shutting down")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return nil
}
