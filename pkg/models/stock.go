package models

import (
	"encoding/json"
	"time"
)

// Wire event names shared by the poller, the ingest worker and the hub.
const (
	EventIndexUpdate = "index-update"
	EventStockUpdate = "stock-update"
	EventTickUpdate  = "tick-update"
)

// OHLC is the session open/high/low/close block of a quote. Close is the
// previous session close as reported by the broker.
type OHLC struct {
	Open  float64 `json:"open"`
	High  float64 `json:"high"`
	Low   float64 `json:"low"`
	Close float64 `json:"close"`
}

// QuoteSnapshot is the upstream view of one instrument for a single poll cycle.
type QuoteSnapshot struct {
	InstrumentToken uint32    `json:"instrument_token"`
	LastPrice       float64   `json:"last_price"`
	NetChange       float64   `json:"net_change"`
	Volume          int64     `json:"volume"`
	OHLC            OHLC      `json:"ohlc"`
	Timestamp       time.Time `json:"timestamp"`
}

// UpdateMessage is the payload of index-update and stock-update events.
// Symbol carries the label the receiving group was addressed by.
type UpdateMessage struct {
	Symbol    string  `json:"symbol"`
	Price     float64 `json:"price"`
	Change    float64 `json:"change"`
	Percent   float64 `json:"percent"`
	Volume    *int64  `json:"volume,omitempty"`
	Timestamp string  `json:"timestamp"`
}

// WatchEntry is one always-on watch-list symbol and its public label.
type WatchEntry struct {
	Canonical string
	Label     string
}

// Event is the single contract between ingestion paths and the multicast
// layer. An empty Group addresses every connection.
type Event struct {
	Name    string          `json:"event"`
	Group   string          `json:"group,omitempty"`
	Payload json.RawMessage `json:"data"`
}
