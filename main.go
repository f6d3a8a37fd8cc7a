package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	_ "github.com/lib/pq"
	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	_ "modernc.org/sqlite"

	"github.com/ddevcap/rollfeed/api"
	"github.com/ddevcap/rollfeed/api/middleware"
	"github.com/ddevcap/rollfeed/cache"
	"github.com/ddevcap/rollfeed/config"
	"github.com/ddevcap/rollfeed/engagement"
	"github.com/ddevcap/rollfeed/events"
	"github.com/ddevcap/rollfeed/feed"
	"github.com/ddevcap/rollfeed/health"
	"github.com/ddevcap/rollfeed/store"
	"github.com/ddevcap/rollfeed/store/memstore"
	"github.com/ddevcap/rollfeed/store/sqlstore"
	"github.com/ddevcap/rollfeed/telemetry"
)

func main() {
	logger := slog.New(slog.NewTextHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}

	shutdownTracing, err := telemetry.Setup(context.Background(), cfg.OTLPEndpoint)
	if err != nil {
		slog.Error("failed to set up tracing", "error", err)
		os.Exit(1)
	}

	st, closeStore := openStore(cfg)
	defer closeStore()

	api.SeedDemo(context.Background(), st, cfg)

	rollsCache := cache.New("rolls", cfg.FeedCacheTTL)
	listingsCache := cache.New("listings", cfg.ListingCacheTTL)
	rollsCache.Start()
	listingsCache.Start()

	writer := feed.NewWriteBacker(st, cfg.WritebackQueue, cfg.StoreTimeout)
	writer.Start(context.Background())

	asm := feed.NewAssembler(st, rollsCache, listingsCache,
		feed.NewReconciler(st, writer, cfg.StoreTimeout),
		feed.Settings{
			DefaultLimit: cfg.DefaultLimit,
			MaxLimit:     cfg.MaxLimit,
			AdLimit:      cfg.AdLimit,
			FeedTTL:      cfg.FeedCacheTTL,
			ListingTTL:   cfg.ListingCacheTTL,
			StoreTimeout: cfg.StoreTimeout,
		})

	publisher := newPublisher(cfg)
	svc := engagement.New(st,
		engagement.WithPublisher(publisher),
		engagement.WithTimeout(cfg.StoreTimeout),
		engagement.WithInvalidation(store.ActionLike, rollsCache),
		engagement.WithInvalidation(store.ActionSave, rollsCache),
		engagement.WithInvalidation(store.ActionShare, rollsCache),
		engagement.WithInvalidation(store.ActionComment, rollsCache),
		engagement.WithInvalidation(store.ActionFavorite, listingsCache),
	)

	monitor := health.NewMonitor(cfg.HealthCheckInterval)
	monitor.Register("store", st.Ping)
	limiter, stopLimiter := newLimiter(cfg, monitor)
	monitor.Start(context.Background())

	reporter := api.NewCacheReporter(cfg.CacheReportInterval, rollsCache, listingsCache)
	reporter.Start(context.Background())

	h := api.NewRouter(api.Deps{
		Store:        st,
		Assembler:    asm,
		Engagement:   svc,
		FeedCache:    rollsCache,
		ListingCache: listingsCache,
		Health:       monitor,
		Limiter:      limiter,
	}, cfg)

	srv := &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           otelhttp.NewHandler(h, "http.server"),
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       120 * time.Second,
		MaxHeaderBytes:    1 << 20, // 1 MiB
	}

	// Start server in a goroutine so we can listen for shutdown signals.
	go func() {
		slog.Info("rollfeed listening", "addr", cfg.ListenAddr, "store", cfg.DatabaseDriver)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	// Wait for interrupt or SIGTERM (e.g. from container orchestration).
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	<-quit
	slog.Info("shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		slog.Error("server forced to shutdown", "error", err)
	}

	// Flush queued counter repairs before the store goes away.
	writer.Stop()
	reporter.Stop()
	monitor.Stop()
	stopLimiter()
	rollsCache.Stop()
	listingsCache.Stop()
	if err := publisher.Close(); err != nil {
		slog.Warn("event publisher close failed", "error", err)
	}
	if err := shutdownTracing(ctx); err != nil {
		slog.Warn("tracer shutdown failed", "error", err)
	}
	slog.Info("server stopped")
}

// openStore connects the configured backend and migrates SQL schemas.
func openStore(cfg config.Config) (store.Store, func()) {
	if cfg.DatabaseDriver == "memory" {
		slog.Warn("using in-memory store; data is lost on restart")
		return memstore.New(), func() {}
	}

	st, err := sqlstore.Open(cfg.DatabaseDriver, cfg.DatabaseURL)
	if err != nil {
		slog.Error("failed to open database connection", "error", err)
		os.Exit(1)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := st.Migrate(ctx); err != nil {
		slog.Error("failed to run schema migration", "error", err)
		os.Exit(1)
	}
	return st, func() { _ = st.Close() }
}

func newPublisher(cfg config.Config) events.Publisher {
	if len(cfg.KafkaBrokers) == 0 {
		return events.Nop{}
	}
	p, err := events.NewKafkaPublisher(strings.Join(cfg.KafkaBrokers, ","), cfg.KafkaTopic)
	if err != nil {
		slog.Error("failed to configure event publisher", "error", err)
		os.Exit(1)
	}
	slog.Info("publishing engagement events", "topic", cfg.KafkaTopic)
	return p
}

// newLimiter picks the mutation rate limiter. Redis shares the limit across
// instances; otherwise each process counts on its own.
func newLimiter(cfg config.Config, monitor *health.Monitor) (middleware.Limiter, func()) {
	if cfg.MutationRateLimit == 0 {
		return nil, func() {}
	}
	if cfg.RedisURL != "" {
		opts, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			slog.Error("invalid REDIS_URL", "error", err)
			os.Exit(1)
		}
		rdb := redis.NewClient(opts)
		monitor.Register("redis", func(ctx context.Context) error { return rdb.Ping(ctx).Err() })
		return middleware.NewRedisLimiter(rdb, cfg.MutationRateLimit, cfg.MutationRateWindow), func() { _ = rdb.Close() }
	}
	l := middleware.NewMemoryLimiter(cfg.MutationRateLimit, cfg.MutationRateWindow)
	return l, l.Stop
}
