// Package poller runs the periodic batched quote fetch and turns each result
// into index-update and stock-update events.
package poller

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"go.uber.org/zap"

	"github.com/shubham-shewale/market-pulse/pkg/bus"
	"github.com/shubham-shewale/market-pulse/pkg/models"
)

const timestampLayout = "2006-01-02T15:04:05.000Z"

type Poller struct {
	logger    *zap.Logger
	source    QuoteSource
	symbols   SymbolSource
	publisher bus.Publisher
	store     SnapshotWriter
	clock     Clock

	watchlist []models.WatchEntry
	interval  time.Duration
	maxBatch  int
}

func NewPoller(
	logger *zap.Logger,
	source QuoteSource,
	symbols SymbolSource,
	publisher bus.Publisher,
	watchlist []models.WatchEntry,
	interval time.Duration,
	clock Clock,
) *Poller {
	return &Poller{
		logger:    logger,
		source:    source,
		symbols:   symbols,
		publisher: publisher,
		clock:     clock,
		watchlist: watchlist,
		interval:  interval,
	}
}

// WithSnapshotStore enables last-value persistence of emitted stock updates.
func (p *Poller) WithSnapshotStore(store SnapshotWriter) *Poller {
	p.store = store
	return p
}

// WithMaxBatch caps the instruments sent in one quote call. The watch-list
// always fits; subscribed symbols past the cap are left out of the cycle.
func (p *Poller) WithMaxBatch(n int) *Poller {
	p.maxBatch = n
	return p
}

// Run executes a cycle immediately and then once per interval until ctx is
// cancelled. A failed cycle is logged and the next one proceeds as scheduled.
func (p *Poller) Run(ctx context.Context) {
	p.logger.Info("Poller Started", zap.Duration("interval", p.interval), zap.Int("watchlist", len(p.watchlist)))

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		if err := p.RunOnce(ctx); err != nil {
			p.logger.Error("Poll cycle failed", zap.Error(err))
		}

		select {
		case <-ctx.Done():
			p.logger.Info("Poller Stopped")
			return
		case <-ticker.C:
		}
	}
}

// RunOnce performs a single poll cycle. All emissions come from one registry
// snapshot taken before the upstream call.
func (p *Poller) RunOnce(ctx context.Context) error {
	snap := p.symbols.Snapshot()

	fetch := p.fetchSet(snap.Symbols)
	if len(fetch) == 0 {
		return nil
	}

	quotes, err := p.source.Quote(ctx, fetch)
	if err != nil {
		return fmt.Errorf("fetch %d quotes: %w", len(fetch), err)
	}

	ts := p.clock.Now().UTC().Format(timestampLayout)

	for _, w := range p.watchlist {
		q, ok := quotes[w.Canonical]
		if !ok {
			continue
		}
		p.emit(ctx, models.EventIndexUpdate, "", buildUpdate(w.Label, q, ts, false))
	}

	var saved map[string]models.UpdateMessage
	if p.store != nil {
		saved = make(map[string]models.UpdateMessage)
	}

	for _, canonical := range snap.Symbols {
		q, ok := quotes[canonical]
		if !ok || !(q.LastPrice > 0) {
			continue
		}
		for _, alias := range snap.Aliases[canonical] {
			p.emit(ctx, models.EventStockUpdate, alias, buildUpdate(alias, q, ts, true))
		}
		if saved != nil {
			saved[canonical] = buildUpdate(canonical, q, ts, true)
		}
	}

	if len(saved) > 0 {
		if err := p.store.SaveUpdates(ctx, saved); err != nil {
			p.logger.Warn("Failed to save snapshots", zap.Error(err))
		}
	}
	return nil
}

func (p *Poller) fetchSet(subscribed []string) []string {
	seen := make(map[string]bool, len(p.watchlist)+len(subscribed))
	out := make([]string, 0, len(p.watchlist)+len(subscribed))

	for _, w := range p.watchlist {
		if !seen[w.Canonical] {
			seen[w.Canonical] = true
			out = append(out, w.Canonical)
		}
	}
	skipped := 0
	for _, s := range subscribed {
		if seen[s] {
			continue
		}
		if p.maxBatch > 0 && len(out) >= p.maxBatch {
			skipped++
			continue
		}
		seen[s] = true
		out = append(out, s)
	}
	if skipped > 0 {
		p.logger.Warn("Quote batch full", zap.Int("max", p.maxBatch), zap.Int("skipped", skipped))
	}
	sort.Strings(out)
	return out
}

func (p *Poller) emit(ctx context.Context, name, group string, msg models.UpdateMessage) {
	payload, err := json.Marshal(msg)
	if err != nil {
		p.logger.Error("JSON Marshal Error", zap.Error(err))
		return
	}
	if err := p.publisher.Publish(ctx, models.Event{Name: name, Group: group, Payload: payload}); err != nil {
		p.logger.Warn("Dropped update", zap.String("event", name), zap.String("group", group), zap.Error(err))
	}
}

func buildUpdate(label string, q models.QuoteSnapshot, ts string, withVolume bool) models.UpdateMessage {
	change, percent := Derive(q)
	msg := models.UpdateMessage{
		Symbol:    label,
		Price:     q.LastPrice,
		Change:    change,
		Percent:   percent,
		Timestamp: ts,
	}
	if withVolume {
		v := q.Volume
		msg.Volume = &v
	}
	return msg
}
