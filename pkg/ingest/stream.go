package ingest

import (
	"time"

	"go.uber.org/zap"

	"github.com/shubham-shewale/market-pulse/pkg/config"
	"github.com/shubham-shewale/market-pulse/pkg/kite"
	"github.com/shubham-shewale/market-pulse/pkg/sim"
)

const (
	SourceKite = "kite"
	SourceSim  = "sim"
)

// simTickInterval is how often the simulated feed emits a batch.
const simTickInterval = time.Second

// OpenStream picks the tick stream for the configured source. The kite
// source falls back to the simulator when credentials are missing.
func OpenStream(cfg *config.Config, logger *zap.Logger) TickStream {
	if cfg.Ingest.Source == SourceSim || !cfg.HasKiteCredentials() {
		if cfg.Ingest.Source != SourceSim {
			logger.Warn("No Kite credentials, using simulated tick feed")
		}
		return sim.NewTickFeed(sim.NewRealRand(), sim.RealClock{}, simTickInterval, nil)
	}

	t := kite.NewTicker(cfg.Kite.TickerURL, cfg.Kite.APIKey, cfg.Kite.AccessToken)
	t.OnReconnect(func(attempt int, delay time.Duration) {
		logger.Info("Tick stream reconnecting", zap.Int("attempt", attempt), zap.Duration("delay", delay))
	})
	t.OnNoReconnect(func(attempt int) {
		logger.Error("Tick stream gave up reconnecting", zap.Int("attempt", attempt))
	})
	return t
}
