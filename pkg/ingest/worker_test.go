package ingest_test

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"

	"go.uber.org/zap"

	"github.com/shubham-shewale/market-pulse/pkg/bus"
	"github.com/shubham-shewale/market-pulse/pkg/ingest"
	"github.com/shubham-shewale/market-pulse/pkg/kite"
	"github.com/shubham-shewale/market-pulse/pkg/models"
)

// fakeStream records commands and, when served, connects and replays its
// scripted batches before returning ServeErr.
type fakeStream struct {
	mu         sync.Mutex
	subscribed []uint32
	modes      map[kite.Mode][]uint32
	batches    [][]kite.Tick
	serveErr   error

	onTicks   func([]kite.Tick)
	onConnect func()
	onError   func(error)
	onClose   func(int, string)
}

func (f *fakeStream) Subscribe(tokens []uint32) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.subscribed = append(f.subscribed, tokens...)
	return nil
}

func (f *fakeStream) SetMode(mode kite.Mode, tokens []uint32) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.modes == nil {
		f.modes = make(map[kite.Mode][]uint32)
	}
	f.modes[mode] = append(f.modes[mode], tokens...)
	return nil
}

func (f *fakeStream) OnTicks(fn func([]kite.Tick)) { f.onTicks = fn }
func (f *fakeStream) OnConnect(fn func())          { f.onConnect = fn }
func (f *fakeStream) OnError(fn func(error))       { f.onError = fn }
func (f *fakeStream) OnClose(fn func(int, string)) { f.onClose = fn }

func (f *fakeStream) Serve(ctx context.Context) error {
	f.onConnect()
	f.onError(errors.New("transient"))
	for _, b := range f.batches {
		f.onTicks(b)
	}
	f.onClose(1006, "abnormal closure")
	return f.serveErr
}

func TestWorker_SubscribesAndRepublishesVerbatim(t *testing.T) {
	stream := &fakeStream{
		batches: [][]kite.Tick{
			{{InstrumentToken: 738561, LastPrice: 2901.5, Mode: kite.ModeFull}},
			{{InstrumentToken: 738561, LastPrice: 2902}, {InstrumentToken: 408065, LastPrice: 1500}},
		},
	}
	b := bus.NewLocal(8)
	tokens := []uint32{738561, 408065}

	w := ingest.NewWorker(zap.NewNop(), stream, b, tokens, kite.ModeFull)
	if err := w.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}

	if len(stream.subscribed) != 2 || len(stream.modes[kite.ModeFull]) != 2 {
		t.Errorf("expected subscribe and full mode for both tokens, got %v %v", stream.subscribed, stream.modes)
	}
	if w.Published() != 2 {
		t.Fatalf("expected one event per batch, got %d", w.Published())
	}

	_ = b.Close()
	var events []models.Event
	_ = b.Run(context.Background(), func(ev models.Event) { events = append(events, ev) })

	if len(events) != 2 {
		t.Fatalf("expected 2 bus events, got %d", len(events))
	}
	if events[0].Name != models.EventTickUpdate || events[0].Group != "" {
		t.Errorf("unexpected event header %+v", events[0])
	}

	var ticks []kite.Tick
	if err := json.Unmarshal(events[1].Payload, &ticks); err != nil {
		t.Fatalf("payload is not a tick array: %v", err)
	}
	if len(ticks) != 2 || ticks[1].InstrumentToken != 408065 {
		t.Errorf("ticks were altered: %+v", ticks)
	}
}

func TestWorker_ReturnsStreamFailure(t *testing.T) {
	stream := &fakeStream{serveErr: kite.ErrMaxRetries}
	w := ingest.NewWorker(zap.NewNop(), stream, bus.NewLocal(1), []uint32{1}, "")

	if err := w.Run(context.Background()); !errors.Is(err, kite.ErrMaxRetries) {
		t.Errorf("expected ErrMaxRetries, got %v", err)
	}
	if len(stream.modes[kite.ModeFull]) != 1 {
		t.Errorf("empty mode should default to full")
	}
}

func TestWorker_CancelIsClean(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	stream := &fakeStream{serveErr: context.Canceled}
	w := ingest.NewWorker(zap.NewNop(), stream, bus.NewLocal(1), []uint32{1}, kite.ModeLTP)

	if err := w.Run(ctx); err != nil {
		t.Errorf("expected nil on cancel, got %v", err)
	}
}

func TestWorker_CountsDrops(t *testing.T) {
	stream := &fakeStream{batches: [][]kite.Tick{{{InstrumentToken: 1}}, {{InstrumentToken: 1}}}}
	w := ingest.NewWorker(zap.NewNop(), stream, bus.NewLocal(1), []uint32{1}, kite.ModeLTP)

	if err := w.Run(context.Background()); err != nil {
		t.Fatal(err)
	}
	if w.Published() != 1 || w.Dropped() != 1 {
		t.Errorf("expected 1 published and 1 dropped, got %d/%d", w.Published(), w.Dropped())
	}
}
