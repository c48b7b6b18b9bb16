// Package sim provides a random-walk stand-in for the brokerage quote API and
// tick stream, used when no access token is configured.
package sim

import (
	"math/rand"
	"time"
)

// for deterministic testing
type Clock interface {
	Now() time.Time
	Sleep(d time.Duration)
}

// for deterministic values
type Rand interface {
	Intn(n int) int
	Float64() float64
}

type RealClock struct{}

func (RealClock) Now() time.Time        { return time.Now() }
func (RealClock) Sleep(d time.Duration) { time.Sleep(d) }

type RealRand struct{ *rand.Rand }

func NewRealRand() RealRand {
	return RealRand{rand.New(rand.NewSource(time.Now().UnixNano()))}
}

func (r RealRand) Intn(n int) int   { return r.Rand.Intn(n) }
func (r RealRand) Float64() float64 { return r.Rand.Float64() }

// DefaultBasePrices seeds the headline indices and a few large caps.
var DefaultBasePrices = map[string]float64{
	"NSE:NIFTY 50":          22000,
	"NSE:NIFTY BANK":        47000,
	"NSE:NIFTY FIN SERVICE": 21000,
	"NSE:NIFTY MIDCAP 100":  48000,
	"NSE:NIFTY SMLCAP 100":  15500,
	"BSE:SENSEX":            73000,
	"NSE:RELIANCE":          2900,
	"NSE:TCS":               3900,
	"NSE:INFY":              1500,
	"NSE:HDFCBANK":          1450,
}

// DefaultTokenPrices seeds the tick feed by instrument token.
var DefaultTokenPrices = map[uint32]float64{
	738561:  2900, // RELIANCE
	2953217: 3900, // TCS
	408065:  1500, // INFY
	256265:  22000,
}
