package poller

import (
	"context"
	"time"

	"github.com/shubham-shewale/market-pulse/cmd/gateway/internal/registry"
	"github.com/shubham-shewale/market-pulse/pkg/models"
)

// QuoteSource is the batched upstream quote call.
type QuoteSource interface {
	Quote(ctx context.Context, instruments []string) (map[string]models.QuoteSnapshot, error)
}

// SymbolSource yields the registry view a cycle works from.
type SymbolSource interface {
	Snapshot() registry.Snapshot
}

// SnapshotWriter persists the last emitted update per canonical symbol.
type SnapshotWriter interface {
	SaveUpdates(ctx context.Context, updates map[string]models.UpdateMessage) error
}

type Clock interface {
	Now() time.Time
}

type RealClock struct{}

func (RealClock) Now() time.Time { return time.Now() }
