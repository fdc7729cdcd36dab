// Command arena serves the pairwise rating API.
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"runtime"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"golang.org/x/sync/errgroup"

	"github.com/okian/arena/internal/adapters/http/api"
	"github.com/okian/arena/internal/adapters/http/swagger"
	"github.com/okian/arena/internal/adapters/repository"
	app "github.com/okian/arena/internal/app"
	"github.com/okian/arena/internal/config"
	"github.com/okian/arena/internal/domain/model"
	"github.com/okian/arena/internal/domain/rating"
	"github.com/okian/arena/pkg/logger"
	"github.com/okian/arena/pkg/metrics"
)

// HTTP server timeout constants.
const (
	readTimeout       = 10 * time.Second
	writeTimeout      = 10 * time.Second
	idleTimeout       = 60 * time.Second
	readHeaderTimeout = 5 * time.Second
	shutdownTimeout   = 30 * time.Second
)

func main() {
	os.Exit(realMain())
}

func realMain() int {
	// Disable default Go metrics collection to avoid duplicate metrics
	prometheus.Unregister(collectors.NewGoCollector())
	prometheus.Unregister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	if err := logger.Init(); err != nil {
		os.Stderr.WriteString("failed to initialize logging: " + err.Error() + "\n")
		return 1
	}
	defer func() { _ = logger.Sync() }()

	// Root context with cancel on SIGINT/SIGTERM.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load(ctx)
	if err != nil {
		os.Stderr.WriteString("failed to load config: " + err.Error() + "\n")
		return 1
	}

	if err := run(ctx, cfg); err != nil {
		logger.Get().Error(ctx, "arena exited with error", logger.Error(err))
		return 1
	}
	return 0
}

// run wires the store, service and HTTP server and blocks until ctx is done.
func run(ctx context.Context, cfg *config.Config) error {
	if err := configureLogging(cfg); err != nil {
		return err
	}
	log := logger.Get()

	store, closeStore, err := openStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer func() {
		if err := closeStore(); err != nil {
			log.Warn(ctx, "store close failed", logger.Error(err))
		}
	}()

	svc := newService(cfg, store, log)
	if err := svc.Start(ctx); err != nil {
		return fmt.Errorf("start service: %w", err)
	}
	defer svc.Stop()

	if n, err := svc.Seed(ctx, cfg.SeedItems); err != nil {
		return fmt.Errorf("seed store: %w", err)
	} else if n > 0 {
		log.Info(ctx, "seeded empty store", logger.Int("items", n))
	}

	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           newMux(ctx, svc),
		ReadTimeout:       readTimeout,
		WriteTimeout:      writeTimeout,
		IdleTimeout:       idleTimeout,
		ReadHeaderTimeout: readHeaderTimeout,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info(gctx, "starting HTTP server", logger.String("addr", cfg.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		log.Info(gctx, "shutting down server...")
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(gctx), shutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})
	g.Go(func() error {
		startSystemMetricsUpdater(gctx)
		return nil
	})
	g.Go(func() error {
		startServiceMetricsUpdater(gctx, svc)
		return nil
	})

	err = g.Wait()
	log.Info(ctx, "server stopped")
	return err
}

// configureLogging applies the configured format and level. An invalid level
// falls back to info.
func configureLogging(cfg *config.Config) error {
	if err := logger.InitWith(os.Stdout, cfg.LogFormat); err != nil {
		return fmt.Errorf("init logging: %w", err)
	}
	if err := logger.SetLevelString(cfg.LogLevel); err != nil {
		logger.Get().Warn(context.Background(), "invalid log_level; falling back to info",
			logger.String("log_level", cfg.LogLevel), logger.Error(err))
		_ = logger.SetLevelString("info")
	}
	return nil
}

// openStore builds the configured store and the function that releases it.
func openStore(ctx context.Context, cfg *config.Config) (repository.Store, func() error, error) {
	switch cfg.StoreDriver {
	case config.DriverMemory:
		s := repository.NewMemoryStore(ctx)
		return s, s.Close, nil
	case config.DriverSQLite, config.DriverPostgres:
		s, err := repository.Open(ctx, cfg.StoreDriver, cfg.StoreDSN)
		if err != nil {
			return nil, nil, fmt.Errorf("open %s store: %w", cfg.StoreDriver, err)
		}
		return s, s.Close, nil
	default:
		return nil, nil, fmt.Errorf("%w: %q", repository.ErrUnknownDriver, cfg.StoreDriver)
	}
}

func newService(cfg *config.Config, store repository.Store, log logger.Logger) *app.Service {
	opts := []app.Option{
		app.WithLogger(log),
		app.WithStore(store),
		app.WithRatingParams(rating.Params{
			KMin:      cfg.KMin,
			KMax:      cfg.KMax,
			Decay:     cfg.KDecay,
			DrawMax:   cfg.DrawMax,
			DrawScale: cfg.DrawScale,
		}),
		app.WithMatchmaking(cfg.SmartMatchRate, cfg.MatchScoreRange),
		app.WithBaseline(cfg.RatingBaseline),
		app.WithNormalizeThreshold(cfg.NormalizeThreshold),
		app.WithDimensionWeights(cfg.DimensionWeights),
		app.WithWorkerCount(cfg.NormalizeWorkers),
		app.WithQueueSize(cfg.NormalizeQueueSize),
		app.WithBallotCacheSize(cfg.BallotCacheSize),
	}
	// Validate has already rejected unknown names.
	if d, err := model.ParseDimension(cfg.MatchProxy); err == nil {
		opts = append(opts, app.WithProxyDimension(d))
	}
	return app.New(opts...)
}

func newMux(ctx context.Context, svc *app.Service) *http.ServeMux {
	mux := http.NewServeMux()
	swagger.Register(ctx, mux)
	api.NewServer(svc).Register(ctx, mux)
	return mux
}

// startSystemMetricsUpdater refreshes process gauges until ctx is done.
func startSystemMetricsUpdater(ctx context.Context) {
	ticker := time.NewTicker(metrics.RefreshInterval())
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			updateSystemMetrics()
		}
	}
}

// startServiceMetricsUpdater refreshes service gauges until ctx is done.
func startServiceMetricsUpdater(ctx context.Context, svc *app.Service) {
	ticker := time.NewTicker(metrics.RefreshInterval())
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			updateServiceMetrics(ctx, svc)
		}
	}
}

func updateSystemMetrics() {
	var m runtime.MemStats
	runtime.ReadMemStats(&m)
	metrics.UpdateSystemMemoryUsage(m.Alloc)
	metrics.UpdateSystemGoroutineCount(runtime.NumGoroutine())
}

func updateServiceMetrics(ctx context.Context, svc *app.Service) {
	stats, err := svc.GetStats(ctx)
	if err != nil {
		return
	}
	metrics.UpdateQueueSize(stats.QueueLength)
	metrics.UpdateQueueCapacity(stats.QueueCapacity)
	metrics.UpdateWorkerActiveCount(stats.Workers)
}
