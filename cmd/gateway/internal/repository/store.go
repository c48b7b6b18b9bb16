package repository

import (
	"context"

	"github.com/shubham-shewale/market-pulse/pkg/models"
)

// SnapshotStore keeps the last emitted update per canonical symbol so a new
// subscriber can be served before the next poll cycle.
type SnapshotStore interface {
	SaveUpdates(ctx context.Context, updates map[string]models.UpdateMessage) error
	GetSnapshots(ctx context.Context, canonicals []string) (map[string]models.UpdateMessage, error)
	Close() error
}
