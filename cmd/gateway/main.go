package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/shubham-shewale/market-pulse/cmd/gateway/internal/gateway"
	"github.com/shubham-shewale/market-pulse/cmd/gateway/internal/hub"
	"github.com/shubham-shewale/market-pulse/cmd/gateway/internal/poller"
	"github.com/shubham-shewale/market-pulse/cmd/gateway/internal/registry"
	"github.com/shubham-shewale/market-pulse/cmd/gateway/internal/repository"
	"github.com/shubham-shewale/market-pulse/pkg/bus"
	"github.com/shubham-shewale/market-pulse/pkg/config"
	"github.com/shubham-shewale/market-pulse/pkg/ingest"
	"github.com/shubham-shewale/market-pulse/pkg/kite"
	"github.com/shubham-shewale/market-pulse/pkg/sim"
	"github.com/shubham-shewale/market-pulse/pkg/symbols"
)

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		panic(fmt.Sprintf("Failed to load config: %v", err))
	}

	logger, err := config.NewLogger(cfg.Logger)
	if err != nil {
		panic(fmt.Sprintf("Failed to initialize logger: %v", err))
	}
	defer logger.Sync()

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	watchlist, err := config.ParseWatchlist(cfg.Poller.Watchlist)
	if err != nil {
		logger.Fatal("Invalid watchlist", zap.Error(err))
	}
	pinned := make([]string, 0, len(watchlist))
	for _, w := range watchlist {
		pinned = append(pinned, w.Canonical)
	}
	reg := registry.New(symbols.NewResolver(cfg.Poller.DefaultExchange), pinned...)

	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	defer rdb.Close()

	// Snapshots are optional unless Redis is also the bus.
	var snapshots repository.SnapshotStore
	if err := rdb.Ping(ctx).Err(); err != nil {
		if cfg.Bus.Driver == config.BusRedis {
			logger.Fatal("Failed to connect to Redis", zap.Error(err))
		}
		logger.Warn("Redis unavailable, snapshots disabled", zap.Error(err))
	} else {
		snapshots = repository.NewRedisStore(rdb, cfg.Poller.SnapshotTTL)
	}

	var source poller.QuoteSource
	if cfg.HasKiteCredentials() {
		source = kite.NewClient(cfg.Kite.APIKey, cfg.Kite.AccessToken, cfg.Kite.BaseURL, cfg.Kite.Timeout)
	} else {
		logger.Warn("No Kite credentials, using simulated quotes")
		source = sim.NewQuoteSource(sim.NewRealRand(), sim.RealClock{}, nil)
	}

	wsHub := hub.NewHub(reg, snapshots, logger).WithMaxSubscriptions(cfg.Gateway.MaxSubscriptions)

	// Poll results and embedded ticks share one in-process bus.
	local := bus.NewLocal(1024)
	go local.Run(ctx, wsHub.Dispatch)

	p := poller.NewPoller(logger, source, reg, local, watchlist, cfg.Poller.Interval, poller.RealClock{}).
		WithSnapshotStore(snapshots).
		WithMaxBatch(cfg.Poller.MaxBatch)
	go p.Run(ctx)

	if sub := remoteSubscriber(cfg, rdb, logger); sub != nil {
		go func() {
			if err := sub.Run(ctx, wsHub.Dispatch); err != nil {
				logger.Error("Tick bus consumer stopped", zap.String("driver", cfg.Bus.Driver), zap.Error(err))
			}
		}()
	}

	if cfg.Bus.Driver == config.BusLocal || cfg.Ingest.Embedded {
		mode, err := kite.ParseMode(cfg.Ingest.Mode)
		if err != nil {
			logger.Fatal("Invalid ingest mode", zap.Error(err))
		}
		worker := ingest.NewWorker(logger, ingest.OpenStream(cfg, logger), local, cfg.Ingest.Tokens, mode)
		go func() {
			if err := worker.Run(ctx); err != nil {
				logger.Error("Ingest worker stopped", zap.Error(err))
			}
		}()
	}

	limiter := gateway.NewCommandLimiter(cfg.Gateway.CommandRate, cfg.Gateway.CommandBurst)

	mux := http.NewServeMux()
	mux.Handle("/ws", gateway.NewHandler(wsHub, limiter, logger, cfg.App.AllowedOrigins, cfg.Gateway.SendBuffer))
	mux.Handle("/healthz", gateway.HealthHandler(wsHub, reg, logger))

	srv := &http.Server{Addr: cfg.App.Port, Handler: mux}

	go func() {
		logger.Info("Server Started", zap.String("port", cfg.App.Port), zap.String("bus", cfg.Bus.Driver))
		if err := srv.ListenAndServe(); err != http.ErrServerClosed {
			logger.Fatal("HTTP Error", zap.Error(err))
		}
	}()

	<-ctx.Done()
	logger.Info("Shutdown signal received")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("HTTP shutdown error", zap.Error(err))
	}
	local.Close()

	logger.Info("Shutdown Complete")
}

// remoteSubscriber returns the consumer for ticks published by a separate
// ingest process, or nil when the bus is in-process.
func remoteSubscriber(cfg *config.Config, rdb *redis.Client, logger *zap.Logger) bus.Subscriber {
	switch cfg.Bus.Driver {
	case config.BusRedis:
		return bus.NewRedisBus(rdb, cfg.Bus.Channel, logger)
	case config.BusKafka:
		// Every gateway needs every tick, so each instance gets its own group.
		host, _ := os.Hostname()
		groupID := fmt.Sprintf("%s-%s", cfg.Kafka.GroupID, host)
		reader := bus.NewKafkaReader(cfg.Kafka.Brokers, cfg.Kafka.Topic, groupID)
		return bus.NewKafkaBus(nil, reader, logger)
	default:
		return nil
	}
}
