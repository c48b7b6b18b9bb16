package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/redis/go-redis/v9"
	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"

	"github.com/shubham-shewale/market-pulse/pkg/bus"
	"github.com/shubham-shewale/market-pulse/pkg/config"
	"github.com/shubham-shewale/market-pulse/pkg/ingest"
	"github.com/shubham-shewale/market-pulse/pkg/kite"
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

	mode, err := kite.ParseMode(cfg.Ingest.Mode)
	if err != nil {
		logger.Fatal("Invalid ingest mode", zap.Error(err))
	}

	var publisher bus.Publisher
	switch cfg.Bus.Driver {
	case config.BusRedis:
		rdb := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		defer rdb.Close()
		if err := rdb.Ping(ctx).Err(); err != nil {
			logger.Fatal("Failed to connect to Redis", zap.Error(err))
		}
		publisher = bus.NewRedisBus(rdb, cfg.Bus.Channel, logger)

	case config.BusKafka:
		// Ensure the topic exists before producing
		tc := bus.NewTopicCreator(logger, &bus.RealKafkaDialer{Dialer: kafka.DefaultDialer}, bus.RealClock{})
		tc.Create(ctx, cfg.Kafka.Brokers, cfg.Kafka.Topic)
		publisher = bus.NewKafkaBus(bus.NewKafkaWriter(cfg.Kafka.Brokers, cfg.Kafka.Topic), nil, logger)

	default:
		logger.Fatal("Standalone ingest needs a redis or kafka bus; use ingest.embedded with the local bus", zap.String("driver", cfg.Bus.Driver))
	}

	worker := ingest.NewWorker(logger, ingest.OpenStream(cfg, logger), publisher, cfg.Ingest.Tokens, mode)

	logger.Info("Ingest Started", zap.String("bus", cfg.Bus.Driver), zap.Int("tokens", len(cfg.Ingest.Tokens)))
	if err := worker.Run(ctx); err != nil {
		logger.Error("Ingest worker stopped", zap.Error(err))
	}

	// Flush Kafka Buffer
	if err := publisher.Close(); err != nil {
		logger.Error("Error closing publisher", zap.Error(err))
	}
	logger.Info("Ingest exited", zap.Int64("published", worker.Published()), zap.Int64("dropped", worker.Dropped()))
}
