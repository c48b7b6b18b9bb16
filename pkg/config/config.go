package config

import (
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"github.com/shubham-shewale/market-pulse/pkg/models"
)

// Bus drivers understood by pkg/bus.
const (
	BusLocal = "local"
	BusRedis = "redis"
	BusKafka = "kafka"
)

// Config holds all configuration for the application
type Config struct {
	App     AppConfig     `mapstructure:"app"`
	Logger  LoggerConfig  `mapstructure:"logger"`
	Redis   RedisConfig   `mapstructure:"redis"`
	Kafka   KafkaConfig   `mapstructure:"kafka"`
	Bus     BusConfig     `mapstructure:"bus"`
	Kite    KiteConfig    `mapstructure:"kite"`
	Poller  PollerConfig  `mapstructure:"poller"`
	Ingest  IngestConfig  `mapstructure:"ingest"`
	Gateway GatewayConfig `mapstructure:"gateway"`
}

type AppConfig struct {
	Port           string   `mapstructure:"port"`
	Env            string   `mapstructure:"env"` // e.g., "local", "prod"
	AllowedOrigins []string `mapstructure:"allowed_origins"`
}

type LoggerConfig struct {
	Level    string `mapstructure:"level"`
	Encoding string `mapstructure:"encoding"` // "json" or "console"
}

type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

type KafkaConfig struct {
	Brokers []string `mapstructure:"brokers"`
	Topic   string   `mapstructure:"topic"`
	GroupID string   `mapstructure:"group_id"`
}

type BusConfig struct {
	Driver  string `mapstructure:"driver"`
	Channel string `mapstructure:"channel"`
}

type KiteConfig struct {
	APIKey      string        `mapstructure:"api_key"`
	AccessToken string        `mapstructure:"access_token"`
	BaseURL     string        `mapstructure:"base_url"`
	TickerURL   string        `mapstructure:"ticker_url"`
	Timeout     time.Duration `mapstructure:"timeout"`
}

type PollerConfig struct {
	Interval        time.Duration `mapstructure:"interval"`
	Watchlist       []string      `mapstructure:"watchlist"` // CANONICAL=LABEL
	DefaultExchange string        `mapstructure:"default_exchange"`
	SnapshotTTL     time.Duration `mapstructure:"snapshot_ttl"`
	MaxBatch        int           `mapstructure:"max_batch"`
}

type IngestConfig struct {
	Source   string   `mapstructure:"source"` // "kite" or "sim"
	Tokens   []uint32 `mapstructure:"tokens"`
	Mode     string   `mapstructure:"mode"`
	Embedded bool     `mapstructure:"embedded"`
}

type GatewayConfig struct {
	CommandRate      float64 `mapstructure:"command_rate"`
	CommandBurst     int     `mapstructure:"command_burst"`
	SendBuffer       int     `mapstructure:"send_buffer"`
	MaxSubscriptions int     `mapstructure:"max_subscriptions"`
}

// DefaultWatchlist is the headline index set shown to every viewer.
var DefaultWatchlist = []string{
	"NSE:NIFTY 50=NIFTY 50",
	"NSE:NIFTY BANK=NIFTY BANK",
	"NSE:NIFTY FIN SERVICE=NIFTY FIN SERVICE",
	"NSE:NIFTY MIDCAP 100=NIFTY MIDCAP 100",
	"NSE:NIFTY SMLCAP 100=NIFTY SMLCAP 100",
	"BSE:SENSEX=SENSEX",
}

// LoadConfig reads configuration from .env file, environment variables, and defaults.
func LoadConfig() (*Config, error) {
	v := viper.New()

	if err := godotenv.Load(); err != nil {
		log.Println("Note: No .env file found, relying on System Env Vars")
	}

	v.SetDefault("app.port", ":3001")
	v.SetDefault("app.env", "local")
	v.SetDefault("app.allowed_origins", []string{"http://localhost:3000"})

	v.SetDefault("logger.level", "info")
	v.SetDefault("logger.encoding", "json")

	v.SetDefault("redis.addr", "localhost:6379")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)

	v.SetDefault("kafka.brokers", []string{"localhost:9092"})
	v.SetDefault("kafka.topic", "market_ticks")
	v.SetDefault("kafka.group_id", "quote-gateway")

	v.SetDefault("bus.driver", BusLocal)
	v.SetDefault("bus.channel", "stock-updates")

	v.SetDefault("kite.api_key", "")
	v.SetDefault("kite.access_token", "")
	v.SetDefault("kite.base_url", "https://api.kite.trade")
	v.SetDefault("kite.ticker_url", "wss://ws.kite.trade")
	v.SetDefault("kite.timeout", 7*time.Second)

	v.SetDefault("poller.interval", 2*time.Second)
	v.SetDefault("poller.watchlist", DefaultWatchlist)
	v.SetDefault("poller.default_exchange", "NSE")
	v.SetDefault("poller.snapshot_ttl", 10*time.Minute)
	v.SetDefault("poller.max_batch", 500)

	// Reliance, TCS, Infosys
	v.SetDefault("ingest.source", "kite")
	v.SetDefault("ingest.tokens", []uint32{738561, 2953217, 408065})
	v.SetDefault("ingest.mode", "full")
	v.SetDefault("ingest.embedded", false)

	v.SetDefault("gateway.command_rate", 5.0)
	v.SetDefault("gateway.command_burst", 20)
	v.SetDefault("gateway.send_buffer", 256)
	v.SetDefault("gateway.max_subscriptions", 50)

	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	bindEnv(v, "app.port", "app.env", "app.allowed_origins")
	bindEnv(v, "logger.level", "logger.encoding")
	bindEnv(v, "redis.addr", "redis.password", "redis.db")
	bindEnv(v, "kafka.brokers", "kafka.topic", "kafka.group_id")
	bindEnv(v, "bus.driver", "bus.channel")
	bindEnv(v, "kite.api_key", "kite.access_token", "kite.base_url", "kite.ticker_url", "kite.timeout")
	bindEnv(v, "poller.interval", "poller.watchlist", "poller.default_exchange", "poller.snapshot_ttl", "poller.max_batch")
	bindEnv(v, "ingest.source", "ingest.tokens", "ingest.mode", "ingest.embedded")
	bindEnv(v, "gateway.command_rate", "gateway.command_burst", "gateway.send_buffer", "gateway.max_subscriptions")

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unable to decode config into struct: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// Validate rejects combinations the services cannot start with.
func (c *Config) Validate() error {
	switch c.Bus.Driver {
	case BusLocal:
	case BusRedis:
		if c.Redis.Addr == "" {
			return fmt.Errorf("redis bus requires redis.addr")
		}
	case BusKafka:
		if len(c.Kafka.Brokers) == 0 {
			return fmt.Errorf("kafka brokers cannot be empty")
		}
	default:
		return fmt.Errorf("unknown bus driver %q", c.Bus.Driver)
	}

	if c.Poller.Interval <= 0 {
		return fmt.Errorf("poller interval must be positive, got %s", c.Poller.Interval)
	}

	watch, err := ParseWatchlist(c.Poller.Watchlist)
	if err != nil {
		return err
	}
	if c.Poller.MaxBatch < len(watch) {
		return fmt.Errorf("poller max_batch %d cannot hold the %d watchlist entries", c.Poller.MaxBatch, len(watch))
	}

	if c.Gateway.MaxSubscriptions < 0 {
		return fmt.Errorf("gateway max_subscriptions must not be negative, got %d", c.Gateway.MaxSubscriptions)
	}

	return nil
}

// HasKiteCredentials reports whether the upstream brokerage can be reached.
func (c *Config) HasKiteCredentials() bool {
	return c.Kite.APIKey != "" && c.Kite.AccessToken != ""
}

// ParseWatchlist turns CANONICAL=LABEL entries into watch entries. An entry
// without a label is labelled by its trading symbol.
func ParseWatchlist(entries []string) ([]models.WatchEntry, error) {
	out := make([]models.WatchEntry, 0, len(entries))
	for _, raw := range entries {
		raw = strings.TrimSpace(raw)
		if raw == "" {
			continue
		}

		canonical, label, _ := strings.Cut(raw, "=")
		canonical = strings.ToUpper(strings.TrimSpace(canonical))
		label = strings.ToUpper(strings.TrimSpace(label))

		if !strings.Contains(canonical, ":") {
			return nil, fmt.Errorf("watchlist entry %q is not exchange-qualified", raw)
		}
		if label == "" {
			_, label, _ = strings.Cut(canonical, ":")
		}
		out = append(out, models.WatchEntry{Canonical: canonical, Label: label})
	}
	return out, nil
}

// bindEnv is a helper to bind multiple keys at once
func bindEnv(v *viper.Viper, keys ...string) {
	for _, key := range keys {
		if err := v.BindEnv(key); err != nil {
			log.Printf("Could not bind env var for key %s: %v", key, err)
		}
	}
}
