// Package ingest republishes the upstream tick stream onto the internal bus.
package ingest

import (
	"context"
	"encoding/json"
	"errors"
	"sync/atomic"

	"go.uber.org/zap"

	"github.com/shubham-shewale/market-pulse/pkg/bus"
	"github.com/shubham-shewale/market-pulse/pkg/kite"
	"github.com/shubham-shewale/market-pulse/pkg/models"
)

// TickStream is a push subscription keyed by instrument token. The stream
// owns reconnection and replays subscriptions on every connect.
type TickStream interface {
	Subscribe(tokens []uint32) error
	SetMode(mode kite.Mode, tokens []uint32) error
	OnTicks(f func([]kite.Tick))
	OnConnect(f func())
	OnError(f func(error))
	OnClose(f func(code int, reason string))
	Serve(ctx context.Context) error
}

type Worker struct {
	logger    *zap.Logger
	stream    TickStream
	publisher bus.Publisher
	tokens    []uint32
	mode      kite.Mode

	published atomic.Int64
	dropped   atomic.Int64
}

func NewWorker(logger *zap.Logger, stream TickStream, publisher bus.Publisher, tokens []uint32, mode kite.Mode) *Worker {
	if mode == "" {
		mode = kite.ModeFull
	}
	return &Worker{
		logger:    logger,
		stream:    stream,
		publisher: publisher,
		tokens:    tokens,
		mode:      mode,
	}
}

// Run subscribes the configured tokens and blocks until ctx is cancelled or
// the stream gives up. Stream errors and disconnects are only logged.
func (w *Worker) Run(ctx context.Context) error {
	w.stream.OnConnect(func() {
		w.logger.Info("Tick stream connected", zap.Int("tokens", len(w.tokens)), zap.String("mode", string(w.mode)))
	})
	w.stream.OnError(func(err error) {
		w.logger.Warn("Tick stream error", zap.Error(err))
	})
	w.stream.OnClose(func(code int, reason string) {
		w.logger.Warn("Tick stream closed", zap.Int("code", code), zap.String("reason", reason))
	})
	w.stream.OnTicks(func(ticks []kite.Tick) {
		w.publish(ctx, ticks)
	})

	if err := w.stream.Subscribe(w.tokens); err != nil {
		return err
	}
	if err := w.stream.SetMode(w.mode, w.tokens); err != nil {
		return err
	}

	err := w.stream.Serve(ctx)
	if errors.Is(err, context.Canceled) || ctx.Err() != nil {
		return nil
	}
	return err
}

// Published is the number of tick batches handed to the bus.
func (w *Worker) Published() int64 { return w.published.Load() }

// Dropped is the number of tick batches the bus refused.
func (w *Worker) Dropped() int64 { return w.dropped.Load() }

func (w *Worker) publish(ctx context.Context, ticks []kite.Tick) {
	payload, err := json.Marshal(ticks)
	if err != nil {
		w.logger.Error("JSON Marshal Error", zap.Error(err))
		return
	}

	if err := w.publisher.Publish(ctx, models.Event{Name: models.EventTickUpdate, Payload: payload}); err != nil {
		w.dropped.Add(1)
		w.logger.Warn("Failed to publish ticks", zap.Int("ticks", len(ticks)), zap.Error(err))
		return
	}
	w.published.Add(1)
	w.logger.Debug("Published ticks", zap.Int("ticks", len(ticks)))
}
