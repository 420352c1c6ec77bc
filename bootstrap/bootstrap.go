// Package bootstrap wires adapters to application services and owns
// process-wide resources: the logger, the ledger, and the metrics
// collector.
package bootstrap

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/courseops/mimeo/adapters/clock"
	"github.com/courseops/mimeo/adapters/idgen"
	"github.com/courseops/mimeo/adapters/ledger"
	"github.com/courseops/mimeo/adapters/metrics"
	"github.com/courseops/mimeo/adapters/runner"
	"github.com/courseops/mimeo/adapters/sync"
	"github.com/courseops/mimeo/app"
	"github.com/courseops/mimeo/config"
	"github.com/courseops/mimeo/core/discover"
	"github.com/courseops/mimeo/ports"
	"github.com/rs/zerolog"
)

// App represents the wired application.
type App struct {
	Config  *config.Config
	Logger  zerolog.Logger
	Ledger  *ledger.Store
	Metrics ports.Metrics
	Cache   *discover.Cache

	Publisher *app.PublisherService
	Status    *app.StatusService
	Resolver  *app.ResolverService
}

// New creates and wires the application from a loaded config.
func New(cfg *config.Config) (*App, error) {
	logger := SetupLogger(cfg.Logging)

	a := &App{Config: cfg, Logger: logger}

	if err := a.initLedger(); err != nil {
		return nil, fmt.Errorf("init ledger: %w", err)
	}

	a.Metrics = metrics.Noop{}
	if cfg.Metrics.Enabled {
		a.Metrics = metrics.New()
		logger.Debug().Msg("prometheus metrics enabled")
	}

	cache, err := discover.NewCache(cfg.Cache.Size)
	if err != nil {
		return nil, fmt.Errorf("init cache: %w", err)
	}
	a.Cache = cache

	clk := clock.Real{}
	a.Publisher = app.NewPublisherService(clk, idgen.UUID{}, runner.Shell{}, a.Ledger, a.Metrics, logger)
	a.Status = app.NewStatusService(clk, a.Ledger, a.Metrics, logger)
	a.Resolver = app.NewResolverService(logger)

	logger.Debug().
		Str("input", cfg.Input).
		Str("output", cfg.Output).
		Msg("mimeo initialized")
	return a, nil
}

func (a *App) initLedger() error {
	path := a.Config.Ledger
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create ledger directory: %w", err)
		}
	}

	store, err := ledger.Open(path)
	if err != nil {
		return err
	}
	if err := store.Migrate(); err != nil {
		store.Close()
		return fmt.Errorf("migrate: %w", err)
	}

	a.Ledger = store
	a.Logger.Debug().Str("path", path).Msg("ledger initialized")
	return nil
}

// Vars loads the external variables file named by the config, or nil
// when none is configured.
func (a *App) Vars() (map[string]any, error) {
	if a.Config.VarsFile == "" {
		return nil, nil
	}
	return config.LoadVars(a.Config.VarsFile)
}

// SyncTarget builds the named sync target from the config.
func (a *App) SyncTarget(name string) (ports.SyncTarget, error) {
	switch name {
	case "git":
		if !a.Config.GitSyncConfigured() {
			return nil, fmt.Errorf("sync.git.url is not configured")
		}
		git := a.Config.Sync.Git
		return sync.NewGit(sync.GitOptions{
			URL:     git.URL,
			Branch:  git.Branch,
			Message: git.Message,
			Name:    git.AuthorName,
			Email:   git.AuthorEmail,
		})
	case "s3":
		if !a.Config.S3SyncConfigured() {
			return nil, fmt.Errorf("sync.s3.endpoint is not configured")
		}
		s3 := a.Config.Sync.S3
		return sync.NewS3(sync.S3Options{
			Endpoint:  s3.Endpoint,
			Region:    s3.Region,
			AccessKey: s3.AccessKey,
			SecretKey: s3.SecretKey,
			Bucket:    s3.Bucket,
			Prefix:    s3.Prefix,
			UseSSL:    s3.UseSSL,
		})
	default:
		return nil, fmt.Errorf("unknown sync target %q", name)
	}
}

// SyncTargets builds every configured sync target, git before s3.
func (a *App) SyncTargets() ([]ports.SyncTarget, error) {
	var targets []ports.SyncTarget
	if a.Config.GitSyncConfigured() {
		t, err := a.SyncTarget("git")
		if err != nil {
			return nil, err
		}
		targets = append(targets, t)
	}
	if a.Config.S3SyncConfigured() {
		t, err := a.SyncTarget("s3")
		if err != nil {
			return nil, err
		}
		targets = append(targets, t)
	}
	return targets, nil
}

// Shutdown releases held resources.
func (a *App) Shutdown() error {
	if a.Ledger != nil {
		if err := a.Ledger.Close(); err != nil {
			a.Logger.Error().Err(err).Msg("ledger close error")
			return err
		}
	}
	return nil
}

// SetupLogger builds the process logger. Logs go to stderr so stdout
// stays free for command output.
func SetupLogger(cfg config.LoggingConfig) zerolog.Logger {
	level, err := zerolog.ParseLevel(cfg.Level)
	if err != nil {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)

	if cfg.Format == "json" {
		return zerolog.New(os.Stderr).With().Timestamp().Logger()
	}

	output := zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339}
	return zerolog.New(output).With().Timestamp().Logger()
}
