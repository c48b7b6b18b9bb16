package sim

import (
	"context"
	"sync"

	"github.com/shubham-shewale/market-pulse/pkg/models"
)

// idleCalls is how many quote calls a walk survives without being requested.
// At the default poll interval that is about a minute.
const idleCalls = 30

// QuoteSource answers batched quote calls from random walks, one per
// canonical symbol. Every call advances each requested walk by one step;
// walks nobody asks for are dropped after idleCalls calls.
type QuoteSource struct {
	rand  Rand
	clock Clock
	base  map[string]float64

	mu    sync.Mutex
	walks map[string]*walk
	calls uint64
}

func NewQuoteSource(rnd Rand, clock Clock, base map[string]float64) *QuoteSource {
	if base == nil {
		base = DefaultBasePrices
	}
	return &QuoteSource{
		rand:  rnd,
		clock: clock,
		base:  base,
		walks: make(map[string]*walk),
	}
}

func (s *QuoteSource) Quote(ctx context.Context, instruments []string) (map[string]models.QuoteSnapshot, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.calls++
	now := s.clock.Now()
	out := make(map[string]models.QuoteSnapshot, len(instruments))
	for _, in := range instruments {
		w, ok := s.walks[in]
		if !ok {
			base, known := s.base[in]
			if !known {
				base = seedPrice(s.rand)
			}
			w = newWalk(base)
			s.walks[in] = w
		}
		w.step(s.rand)
		w.lastCall = s.calls

		out[in] = models.QuoteSnapshot{
			LastPrice: w.last,
			NetChange: w.change(),
			Volume:    w.volume,
			OHLC:      models.OHLC{Open: w.open, High: w.high, Low: w.low, Close: w.close},
			Timestamp: now,
		}
	}

	for in, w := range s.walks {
		if s.calls-w.lastCall > idleCalls {
			delete(s.walks, in)
		}
	}
	return out, nil
}

// Len reports how many instruments currently have a walk.
func (s *QuoteSource) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.walks)
}
