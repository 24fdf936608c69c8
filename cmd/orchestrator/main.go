package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"

	"github.com/jcmexdev/vendor-orchestration/internal/api/httpx"
	"github.com/jcmexdev/vendor-orchestration/internal/callback"
	"github.com/jcmexdev/vendor-orchestration/internal/config"
	"github.com/jcmexdev/vendor-orchestration/internal/ingress"
	"github.com/jcmexdev/vendor-orchestration/internal/lock"
	"github.com/jcmexdev/vendor-orchestration/internal/orchestrator"
	"github.com/jcmexdev/vendor-orchestration/internal/order"
	"github.com/jcmexdev/vendor-orchestration/internal/order/memory"
	"github.com/jcmexdev/vendor-orchestration/internal/pkg/cache"
	"github.com/jcmexdev/vendor-orchestration/internal/pkg/telemetry"
	"github.com/jcmexdev/vendor-orchestration/internal/resilience"
	"github.com/jcmexdev/vendor-orchestration/internal/storage/sqlite"
	"github.com/jcmexdev/vendor-orchestration/internal/transitionlog"
	"github.com/jcmexdev/vendor-orchestration/internal/vendor"
)

// queue is what the API publishes to and the dispatcher consumes from.
type queue interface {
	ingress.Publisher
	ingress.Source
}

// coordination bundles the components that move to Redis when it is configured.
type coordination struct {
	locker      lock.Locker
	registry    callback.Registry
	queue       queue
	idempotency cache.Cache
	close       func()
}

func main() {
	cfg := config.Load()
	telemetry.InitLogger(cfg.LogLevel)
	for _, w := range cfg.Warnings {
		slog.Warn("configuration value ignored", "detail", w)
	}
	decimal.MarshalJSONWithoutQuotes = true

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if cfg.OTelEnabled {
		shutdown, err := telemetry.SetupTracer(ctx, cfg.OTelServiceName,
			telemetry.WithEndpoint(cfg.OTelEndpoint),
			telemetry.WithEnvironment(cfg.OTelEnvironment),
			telemetry.WithSampleRatio(cfg.OTelSampleRatio),
		)
		if err != nil {
			slog.Error("failed to initialise tracer", "error", err)
			os.Exit(1)
		}
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := shutdown(shutdownCtx); err != nil {
				slog.Error("tracer shutdown error", "error", err)
			}
		}()
	}

	store, transitions, closeStore, err := openStorage(cfg)
	if err != nil {
		slog.Error("failed to open storage", "path", cfg.DatabasePath, "error", err)
		os.Exit(1)
	}
	defer closeStore()

	coord, err := setupCoordination(ctx, cfg)
	if err != nil {
		slog.Error("failed to set up coordination", "redis_addr", cfg.RedisAddr, "error", err)
		os.Exit(1)
	}
	defer coord.close()

	hc := vendor.NewHTTPClient()
	breakers := resilience.NewRegistry(slog.Default())
	adapters := vendor.NewAdapters(vendor.APIs{
		Fraud:    vendor.NewFraudClient(cfg.Vendors.Fraud, hc),
		Tax:      vendor.NewTaxClient(cfg.Vendors.Tax, hc),
		Shipping: vendor.NewShippingClient(cfg.Vendors.Shipping, hc),
		Payment:  vendor.NewPaymentClient(cfg.Vendors.Payment, hc),
	}, breakers, vendor.DefaultPolicies())

	orchCfg := orchestrator.DefaultConfig()
	orchCfg.CallbackBaseURL = cfg.CallbackBaseURL
	orch := orchestrator.New(store, orchestrator.VendorsFrom(adapters), coord.registry, coord.locker,
		orchestrator.WithConfig(orchCfg),
		orchestrator.WithTransitionLog(transitions),
	)
	correlator := callback.NewCorrelator(store, coord.registry, coord.locker,
		callback.WithTransitionLog(transitions),
	)
	dispatcher := ingress.NewDispatcher(coord.queue, orch.Process, cfg.Workers,
		ingress.WithRequeue(requeueable),
	)

	handler := httpx.NewHandler(store, coord.queue, correlator, breakers, transitions, coord.idempotency)
	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           httpx.NewRouter(handler),
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return dispatcher.Run(gctx)
	})
	g.Go(func() error {
		slog.Info("orchestrator HTTP API running", "addr", cfg.HTTPAddr, "workers", cfg.Workers)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		slog.Error("orchestrator stopped with error", "error", err)
		os.Exit(1)
	}
	slog.Info("orchestrator stopped")
}

// requeueable keeps an order on the queue unless its run reached a decision:
// an aborted run already cancelled the order and an unknown id never resolves.
func requeueable(err error) bool {
	return !errors.Is(err, orchestrator.ErrRunAborted) && !errors.Is(err, order.ErrNotFound)
}

func openStorage(cfg config.Config) (order.Store, transitionlog.Repository, func(), error) {
	if cfg.DatabasePath == "" {
		slog.Warn("DATABASE_PATH not set, orders are kept in memory")
		return memory.NewStore(), transitionlog.NewMemory(), func() {}, nil
	}

	db, err := sqlite.Open(cfg.DatabasePath)
	if err != nil {
		return nil, nil, nil, err
	}
	closeDB := func() {
		if err := db.Close(); err != nil {
			slog.Error("failed to close database", "error", err)
		}
	}
	return db.Orders(), db.Transitions(), closeDB, nil
}

func setupCoordination(ctx context.Context, cfg config.Config) (coordination, error) {
	if cfg.RedisAddr == "" {
		slog.Warn("REDIS_ADDR not set, lock, callback registry and queue are in process")
		q := ingress.NewChannelQueue(cfg.QueueCapacity)
		return coordination{
			locker:   lock.NewKeyedMutex(),
			registry: callback.NewMemoryRegistry(),
			queue:    q,
			close:    q.Close,
		}, nil
	}

	client := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return coordination{}, err
	}

	q := ingress.NewRedisQueue(client, "")
	n, err := q.Recover(ctx)
	if err != nil {
		_ = client.Close()
		return coordination{}, err
	}
	if n > 0 {
		slog.Info("requeued orders left in flight by a previous run", "count", n)
	}

	lockOpts := lock.DefaultOptions()
	lockOpts.Expiry = cfg.LockExpiry
	return coordination{
		locker:      lock.NewRedisLocker(client, lockOpts, slog.Default()),
		registry:    callback.NewRedisRegistry(client, "", callback.DefaultRetention),
		queue:       q,
		idempotency: cache.NewRedisCache(client, cfg.OTelServiceName),
		close: func() {
			if err := client.Close(); err != nil {
				slog.Error("failed to close redis client", "error", err)
			}
		},
	}, nil
}
