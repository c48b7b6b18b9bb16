package repository_test

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"github.com/shubham-shewale/market-pulse/cmd/gateway/internal/repository"
	"github.com/shubham-shewale/market-pulse/pkg/models"
)

func setup(t *testing.T) (*repository.RedisStore, *miniredis.Miniredis) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	return repository.NewRedisStore(rdb, time.Minute), mr
}

func TestRedisStore_SaveAndGet(t *testing.T) {
	store, mr := setup(t)
	defer store.Close()
	ctx := context.Background()

	vol := int64(1200)
	err := store.SaveUpdates(ctx, map[string]models.UpdateMessage{
		"NSE:INFY": {Symbol: "NSE:INFY", Price: 1500.5, Change: 10, Percent: 0.67, Volume: &vol},
	})
	if err != nil {
		t.Fatalf("SaveUpdates: %v", err)
	}

	if !mr.Exists("quote:NSE:INFY") {
		t.Fatal("expected key quote:NSE:INFY")
	}
	if ttl := mr.TTL("quote:NSE:INFY"); ttl != time.Minute {
		t.Errorf("expected 1m ttl, got %v", ttl)
	}

	snaps, err := store.GetSnapshots(ctx, []string{"NSE:INFY", "NSE:TCS"})
	if err != nil {
		t.Fatalf("GetSnapshots: %v", err)
	}
	if len(snaps) != 1 {
		t.Fatalf("expected only stored symbol, got %v", snaps)
	}
	got := snaps["NSE:INFY"]
	if got.Price != 1500.5 || got.Volume == nil || *got.Volume != 1200 {
		t.Errorf("unexpected snapshot %+v", got)
	}
}

func TestRedisStore_SkipsCorruptEntries(t *testing.T) {
	store, mr := setup(t)
	defer store.Close()

	mr.Set("quote:NSE:BAD", "{not json")

	snaps, err := store.GetSnapshots(context.Background(), []string{"NSE:BAD"})
	if err != nil {
		t.Fatalf("GetSnapshots: %v", err)
	}
	if len(snaps) != 0 {
		t.Errorf("expected corrupt entry to be skipped, got %v", snaps)
	}
}

func TestRedisStore_EmptyInputs(t *testing.T) {
	store, _ := setup(t)
	defer store.Close()

	if err := store.SaveUpdates(context.Background(), nil); err != nil {
		t.Errorf("SaveUpdates(nil): %v", err)
	}
	if snaps, err := store.GetSnapshots(context.Background(), nil); err != nil || snaps != nil {
		t.Errorf("GetSnapshots(nil) = %v, %v", snaps, err)
	}
}
