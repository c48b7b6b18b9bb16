// Package kite adapts the brokerage market-data API: batched REST quotes and
// the binary websocket tick stream.
package kite

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

var (
	ErrNoCredentials = errors.New("kite: api key and access token are required")
	ErrMaxRetries    = errors.New("kite: ticker gave up reconnecting")
)

// Mode is the tick stream verbosity for a set of instruments.
type Mode string

const (
	ModeLTP   Mode = "ltp"
	ModeQuote Mode = "quote"
	ModeFull  Mode = "full"
)

// ParseMode accepts ltp, quote or full; anything else is an error.
func ParseMode(s string) (Mode, error) {
	switch m := Mode(strings.ToLower(strings.TrimSpace(s))); m {
	case ModeLTP, ModeQuote, ModeFull:
		return m, nil
	default:
		return "", fmt.Errorf("kite: unknown tick mode %q", s)
	}
}

// APIError is the error envelope returned by the REST API.
type APIError struct {
	HTTPStatus int    `json:"-"`
	Status     string `json:"status"`
	ErrorType  string `json:"error_type"`
	Message    string `json:"message"`
}

func (e *APIError) Error() string {
	return fmt.Sprintf("kite: %s (%d): %s", e.ErrorType, e.HTTPStatus, e.Message)
}

// OHLC prices carried by quote/full ticks. Close is the previous close.
type OHLC struct {
	Open  float64 `json:"open"`
	High  float64 `json:"high"`
	Low   float64 `json:"low"`
	Close float64 `json:"close"`
}

type DepthItem struct {
	Quantity uint32  `json:"quantity"`
	Price    float64 `json:"price"`
	Orders   uint16  `json:"orders"`
}

type Depth struct {
	Buy  [5]DepthItem `json:"buy"`
	Sell [5]DepthItem `json:"sell"`
}

// Tick is one decoded packet from the stream, keyed by instrument token.
type Tick struct {
	Mode               Mode       `json:"mode"`
	InstrumentToken    uint32     `json:"instrument_token"`
	Tradable           bool       `json:"tradable"`
	LastPrice          float64    `json:"last_price"`
	LastTradedQuantity uint32     `json:"last_traded_quantity,omitempty"`
	AverageTradePrice  float64    `json:"average_traded_price,omitempty"`
	VolumeTraded       uint32     `json:"volume_traded,omitempty"`
	TotalBuyQuantity   uint32     `json:"total_buy_quantity,omitempty"`
	TotalSellQuantity  uint32     `json:"total_sell_quantity,omitempty"`
	OHLC               *OHLC      `json:"ohlc,omitempty"`
	Change             float64    `json:"change"`
	LastTradeTime      *time.Time `json:"last_trade_time,omitempty"`
	ExchangeTimestamp  *time.Time `json:"exchange_timestamp,omitempty"`
	OI                 uint32     `json:"oi,omitempty"`
	OIDayHigh          uint32     `json:"oi_day_high,omitempty"`
	OIDayLow           uint32     `json:"oi_day_low,omitempty"`
	Depth              *Depth     `json:"depth,omitempty"`
}
