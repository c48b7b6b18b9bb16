package sim

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/shubham-shewale/market-pulse/pkg/kite"
)

// indexSegment is the exchange segment of index tokens, which never trade.
const indexSegment = 9

// TickFeed emits simulated tick batches for subscribed tokens on a fixed
// interval. It satisfies the same contract as the brokerage ticker.
type TickFeed struct {
	rand     Rand
	clock    Clock
	interval time.Duration
	base     map[uint32]float64

	mu    sync.Mutex
	subs  map[uint32]kite.Mode
	walks map[uint32]*walk

	onTicks   func([]kite.Tick)
	onConnect func()
	onError   func(error)
	onClose   func(code int, reason string)
}

func NewTickFeed(rnd Rand, clock Clock, interval time.Duration, base map[uint32]float64) *TickFeed {
	if base == nil {
		base = DefaultTokenPrices
	}
	if interval <= 0 {
		interval = time.Second
	}
	return &TickFeed{
		rand:     rnd,
		clock:    clock,
		interval: interval,
		base:     base,
		subs:     make(map[uint32]kite.Mode),
		walks:    make(map[uint32]*walk),
	}
}

func (f *TickFeed) OnTicks(fn func([]kite.Tick))             { f.onTicks = fn }
func (f *TickFeed) OnConnect(fn func())                      { f.onConnect = fn }
func (f *TickFeed) OnError(fn func(error))                   { f.onError = fn }
func (f *TickFeed) OnClose(fn func(code int, reason string)) { f.onClose = fn }

func (f *TickFeed) Subscribe(tokens []uint32) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, tok := range tokens {
		if _, ok := f.subs[tok]; !ok {
			f.subs[tok] = kite.ModeQuote
		}
	}
	return nil
}

func (f *TickFeed) SetMode(mode kite.Mode, tokens []uint32) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, tok := range tokens {
		if _, ok := f.subs[tok]; ok {
			f.subs[tok] = mode
		}
	}
	return nil
}

// Serve emits one batch per interval until ctx is cancelled.
func (f *TickFeed) Serve(ctx context.Context) error {
	if f.onConnect != nil {
		f.onConnect()
	}

	for {
		select {
		case <-ctx.Done():
			if f.onClose != nil {
				f.onClose(1000, "context done")
			}
			return ctx.Err()
		default:
		}

		f.clock.Sleep(f.interval)

		if ticks := f.Next(); len(ticks) > 0 && f.onTicks != nil {
			f.onTicks(ticks)
		}
	}
}

// Next advances every subscribed token one step and returns the batch,
// ordered by token.
func (f *TickFeed) Next() []kite.Tick {
	f.mu.Lock()
	defer f.mu.Unlock()

	tokens := make([]uint32, 0, len(f.subs))
	for tok := range f.subs {
		tokens = append(tokens, tok)
	}
	sort.Slice(tokens, func(i, j int) bool { return tokens[i] < tokens[j] })

	now := f.clock.Now()
	ticks := make([]kite.Tick, 0, len(tokens))
	for _, tok := range tokens {
		w, ok := f.walks[tok]
		if !ok {
			base, known := f.base[tok]
			if !known {
				base = seedPrice(f.rand)
			}
			w = newWalk(base)
			f.walks[tok] = w
		}
		w.step(f.rand)
		ticks = append(ticks, f.tick(tok, f.subs[tok], w, now))
	}
	return ticks
}

func (f *TickFeed) tick(tok uint32, mode kite.Mode, w *walk, now time.Time) kite.Tick {
	t := kite.Tick{
		Mode:            mode,
		InstrumentToken: tok,
		Tradable:        tok&0xff != indexSegment,
		LastPrice:       w.last,
	}
	if mode == kite.ModeLTP {
		return t
	}

	t.OHLC = &kite.OHLC{Open: w.open, High: w.high, Low: w.low, Close: w.close}
	if w.close != 0 {
		t.Change = round2((w.last - w.close) * 100 / w.close)
	}
	if t.Tradable {
		t.VolumeTraded = uint32(w.volume)
		t.LastTradedQuantity = uint32(f.rand.Intn(100) + 1)
		t.AverageTradePrice = round2((w.high + w.low + w.last) / 3)
	}
	if mode == kite.ModeFull {
		ts := now
		t.ExchangeTimestamp = &ts
		if t.Tradable {
			t.LastTradeTime = &ts
		}
	}
	return t
}
