package main

import (
	"context"
	"net/http"
	"time"

	"github.com/Glen-Yegon/niapay-carwash1/internal/auth"
	"github.com/Glen-Yegon/niapay-carwash1/internal/cache"
	"github.com/Glen-Yegon/niapay-carwash1/internal/catalog"
	"github.com/Glen-Yegon/niapay-carwash1/internal/config"
	"github.com/Glen-Yegon/niapay-carwash1/internal/httpapi"
	"github.com/Glen-Yegon/niapay-carwash1/internal/hub"
	"github.com/Glen-Yegon/niapay-carwash1/internal/jobs"
	"github.com/Glen-Yegon/niapay-carwash1/internal/logger"
	"github.com/Glen-Yegon/niapay-carwash1/internal/migrations"
	"github.com/Glen-Yegon/niapay-carwash1/internal/report"
	"github.com/Glen-Yegon/niapay-carwash1/internal/store"
	"github.com/Glen-Yegon/niapay-carwash1/internal/store/memory"
	"github.com/Glen-Yegon/niapay-carwash1/internal/store/mysql"
	"github.com/Glen-Yegon/niapay-carwash1/internal/store/postgres"
	"github.com/Glen-Yegon/niapay-carwash1/internal/telemetry"

	"github.com/pkg/errors"
	goredis "github.com/redis/go-redis/v9"
	"github.com/urfave/cli/v2"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"golang.org/x/sync/errgroup"
)

type backend struct {
	store store.Store
	close func()
}

func openBackend(ctx context.Context, cfg config.Config, log *logger.Logger) (backend, error) {
	switch cfg.StoreDriver {
	case config.DriverMemory:
		log.Warn("using in-memory store, data is lost on restart")
		return backend{store: memory.NewStore(), close: func() {}}, nil
	case config.DriverPostgres:
		pool, err := postgres.Open(ctx, cfg.DatabaseURL)
		if err != nil {
			return backend{}, err
		}
		return backend{store: postgres.NewStore(pool), close: pool.Close}, nil
	case config.DriverMySQL:
		db, err := mysql.Open(ctx, cfg.DatabaseURL)
		if err != nil {
			return backend{}, err
		}
		return backend{store: mysql.NewStore(db), close: func() { _ = db.Close() }}, nil
	default:
		return backend{}, errors.Errorf("unknown store driver %q", cfg.StoreDriver)
	}
}

// components is everything serve wires together, split out so the wiring
// can be exercised without binding a port.
type components struct {
	handler http.Handler
	hub     *hub.Hub
}

func buildComponents(cfg config.Config, st store.Store, rdb goredis.UniversalClient, log *logger.Logger) (components, error) {
	menu, err := catalog.Load(cfg.CatalogPath)
	if err != nil {
		return components{}, err
	}

	var jobCache jobs.Cache = cache.NewMemory(cfg.CacheTTL)
	hubOpts := []hub.Option{hub.WithLogger(log)}
	if rdb != nil {
		jobCache = cache.NewRedis(rdb, cfg.CacheTTL, log)
		hubOpts = append(hubOpts, hub.WithRelay(hub.NewRedisRelay(rdb, cfg.RelayChannel, log)))
	}
	notifications := hub.New(hubOpts...)

	accounts := auth.NewService(st, cfg.JWTSecret, cfg.SessionTTL, auth.WithLogger(log))
	handler := httpapi.NewHandler(httpapi.Deps{
		Jobs:     jobs.NewService(st, notifications, jobs.WithCache(jobCache), jobs.WithLogger(log)),
		Reports:  report.NewService(st, st, nil),
		Accounts: accounts,
		Catalog:  menu,
		Realtime: notifications.Handler("/realtime", accounts.CurrentUser),
		Logger:   log,
	})
	limiter := httpapi.NewRateLimiter(httpapi.RateLimitConfig{
		PerMinute: cfg.RateLimitPerMinute,
		Burst:     cfg.RateLimitBurst,
	})

	root := httpapi.LoggingMiddleware(log, limiter.Middleware(handler.Routes()))
	return components{
		handler: otelhttp.NewHandler(root, cfg.ServiceName),
		hub:     notifications,
	}, nil
}

func serveCommand(c *cli.Context) error {
	cfg, err := loadConfig(c)
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	log, err := logger.New(cfg.LogMode)
	if err != nil {
		return errors.Wrap(err, "build logger")
	}
	defer log.Sync()
	log = log.With("service", cfg.ServiceName)

	ctx := c.Context
	shutdownTelemetry := telemetry.Setup(ctx, cfg.ServiceName, log)
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = shutdownTelemetry(shutdownCtx)
	}()

	if c.Bool("migrate") && cfg.StoreDriver != config.DriverMemory {
		if err := migrations.Up(cfg.StoreDriver, cfg.DatabaseURL); err != nil {
			return err
		}
		log.Info("migrations applied", "driver", cfg.StoreDriver)
	}

	be, err := openBackend(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer be.close()

	var rdb *goredis.Client
	if cfg.RedisAddr != "" {
		rdb, err = cache.Dial(ctx, cfg.RedisAddr)
		if err != nil {
			return err
		}
		defer rdb.Close()
	}

	var universal goredis.UniversalClient
	if rdb != nil {
		universal = rdb
	}
	parts, err := buildComponents(cfg, be.store, universal, log)
	if err != nil {
		return err
	}

	g, gctx := errgroup.WithContext(ctx)
	if err := parts.hub.StartRelay(gctx); err != nil {
		return err
	}

	server := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      parts.handler,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
	g.Go(func() error {
		log.Info("listening", "addr", server.Addr, "store", cfg.StoreDriver, "redis", cfg.RedisAddr != "")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return errors.Wrap(err, "http server")
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer cancel()
		log.Info("shutting down")
		return server.Shutdown(shutdownCtx)
	})
	return g.Wait()
}
