package poller

import (
	"github.com/shopspring/decimal"

	"github.com/shubham-shewale/market-pulse/pkg/models"
)

var hundred = decimal.NewFromInt(100)

// Derive computes the absolute and percent change of a quote, both rounded to
// two decimals. The reference price is taken from net change, then the
// previous close, then the session open. Without a reference both are zero.
func Derive(q models.QuoteSnapshot) (change, percent float64) {
	price := decimal.NewFromFloat(q.LastPrice)

	var ch, prev decimal.Decimal
	switch {
	case q.NetChange != 0:
		ch = decimal.NewFromFloat(q.NetChange)
		prev = price.Sub(ch)
	case q.OHLC.Close > 0:
		prev = decimal.NewFromFloat(q.OHLC.Close)
		ch = price.Sub(prev)
	case q.OHLC.Open > 0:
		prev = decimal.NewFromFloat(q.OHLC.Open)
		ch = price.Sub(prev)
	default:
		return 0, 0
	}

	change = ch.Round(2).InexactFloat64()
	if !prev.IsPositive() {
		return change, 0
	}
	percent = ch.Div(prev).Mul(hundred).Round(2).InexactFloat64()
	return change, percent
}
