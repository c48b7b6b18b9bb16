package sim

import (
	"github.com/shopspring/decimal"
)

// maxStep is the largest relative move per step.
const maxStep = 0.002

// walk holds one instrument's session state.
type walk struct {
	open, high, low, close, last float64
	volume                       int64

	// lastCall is the quote call that last requested this instrument.
	lastCall uint64
}

func newWalk(base float64) *walk {
	return &walk{open: base, high: base, low: base, close: base, last: base}
}

func (w *walk) step(r Rand) {
	move := (r.Float64()*2 - 1) * maxStep
	w.last = round2(w.last * (1 + move))
	if w.last > w.high {
		w.high = w.last
	}
	if w.last < w.low {
		w.low = w.last
	}
	w.volume += int64(r.Intn(1000))
}

func (w *walk) change() float64 {
	return round2(w.last - w.close)
}

func round2(v float64) float64 {
	return decimal.NewFromFloat(v).Round(2).InexactFloat64()
}

// seedPrice picks a base in [100, 5000) for unknown instruments.
func seedPrice(r Rand) float64 {
	return round2(100 + r.Float64()*4900)
}
