// Package bootstrap wires all dependencies and starts the application.
package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"

	"github.com/artpar/traits/adapters/clock"
	apihttp "github.com/artpar/traits/adapters/http"
	"github.com/artpar/traits/adapters/idgen"
	"github.com/artpar/traits/adapters/memory"
	"github.com/artpar/traits/adapters/metrics"
	"github.com/artpar/traits/adapters/sqlite"
	"github.com/artpar/traits/app"
	"github.com/artpar/traits/config"
	"github.com/artpar/traits/core/events"
	"github.com/artpar/traits/ports"
)

// App represents the running application.
type App struct {
	Logger     zerolog.Logger
	Config     *config.Config
	Runtime    *Runtime
	Bus        *events.Bus
	Metrics    *metrics.Collector
	Store      ports.ApplicationStore
	HTTPServer *http.Server

	ctx    context.Context
	cancel context.CancelFunc
	db     *sqlite.DB
}

// New creates the application from cfg and loads the manifest.
// Manifest build problems are logged; the application still starts so the
// problems can be inspected over HTTP.
func New(cfg *config.Config, logger zerolog.Logger) (*App, error) {
	ctx, cancel := context.WithCancel(context.Background())

	a := &App{
		Logger: logger,
		Config: cfg,
		Bus:    events.NewBus(logger),
		ctx:    ctx,
		cancel: cancel,
	}

	if cfg.Metrics.Enabled {
		a.Metrics = metrics.NewWithRegistry(prometheus.NewRegistry())
		logger.Info().Msg("prometheus metrics enabled")
	}

	if err := a.initStore(); err != nil {
		cancel()
		return nil, fmt.Errorf("init audit store: %w", err)
	}

	a.Runtime = NewRuntime(ctx, a.Bus, a.Metrics, logger)
	if _, err := a.Runtime.Load(cfg.Manifest.Path); err != nil && a.Runtime.World() == nil {
		a.close()
		return nil, fmt.Errorf("load manifest: %w", err)
	}

	a.initHTTPServer()
	return a, nil
}

func (a *App) initStore() error {
	switch a.Config.Audit.Driver {
	case "none":
		return nil
	case "sqlite":
		db, err := sqlite.Open(a.Config.Audit.DSN)
		if err != nil {
			return err
		}
		if err := db.Migrate(); err != nil {
			db.Close()
			return fmt.Errorf("migrate: %w", err)
		}
		a.db = db
		a.Store = sqlite.NewApplicationStore(db)
	default:
		a.Store = memory.NewApplicationStore()
	}

	recorder := app.NewAuditRecorder(a.Store, idgen.UUID{}, clock.Real{}, a.Logger)
	recorder.Subscribe(a.Bus)

	a.Logger.Info().Str("driver", a.Config.Audit.Driver).Msg("application audit enabled")
	return nil
}

func (a *App) initHTTPServer() {
	routerCfg := apihttp.RouterConfig{
		Store:       a.Store,
		MetricsPath: a.Config.Metrics.Path,
	}
	if a.Metrics != nil {
		routerCfg.MetricsHandler = a.Metrics.Handler()
	}

	a.HTTPServer = &http.Server{
		Addr:         a.Config.Server.Addr(),
		Handler:      apihttp.NewRouter(a.Runtime, a.Logger, routerCfg),
		ReadTimeout:  a.Config.Server.ReadTimeout,
		WriteTimeout: a.Config.Server.WriteTimeout,
	}
}

// Reload applies a reloaded configuration: the log level changes and the
// manifest is rebuilt. Other fields need a restart.
func (a *App) Reload(cfg *config.Config) error {
	SetLogLevel(cfg.Logging.Level)
	a.Config = cfg

	if _, err := a.Runtime.Load(cfg.Manifest.Path); err != nil {
		return fmt.Errorf("reload manifest: %w", err)
	}
	return nil
}

// Run starts the HTTP server and blocks until SIGINT/SIGTERM.
func (a *App) Run() error {
	errCh := make(chan error, 1)
	go func() {
		a.Logger.Info().Str("addr", a.HTTPServer.Addr).Msg("starting server")
		if err := a.HTTPServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	select {
	case err := <-errCh:
		return fmt.Errorf("server error: %w", err)
	case sig := <-sigCh:
		a.Logger.Info().Str("signal", sig.String()).Msg("shutting down")
	}

	return a.Shutdown()
}

// Shutdown gracefully stops the server and releases resources.
func (a *App) Shutdown() error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	var err error
	if a.HTTPServer != nil {
		if serr := a.HTTPServer.Shutdown(ctx); serr != nil {
			err = fmt.Errorf("shutdown server: %w", serr)
		}
	}

	if cerr := a.close(); cerr != nil && err == nil {
		err = cerr
	}

	a.Logger.Info().Msg("shutdown complete")
	return err
}

func (a *App) close() error {
	a.cancel()
	if a.db != nil {
		if err := a.db.Close(); err != nil {
			return fmt.Errorf("close database: %w", err)
		}
		a.db = nil
	}
	return nil
}
