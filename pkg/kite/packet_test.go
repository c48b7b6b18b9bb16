package kite_test

import (
	"encoding/binary"
	"testing"

	"github.com/shubham-shewale/market-pulse/pkg/kite"
)

func put32(b []byte, off int, v int32) {
	binary.BigEndian.PutUint32(b[off:off+4], uint32(v))
}

// frame wraps packets with the count header and per-packet length prefix.
func frame(packets ...[]byte) []byte {
	out := make([]byte, 2)
	binary.BigEndian.PutUint16(out, uint16(len(packets)))
	for _, p := range packets {
		l := make([]byte, 2)
		binary.BigEndian.PutUint16(l, uint16(len(p)))
		out = append(out, l...)
		out = append(out, p...)
	}
	return out
}

func ltpPacket(token uint32, paise int32) []byte {
	b := make([]byte, 8)
	binary.BigEndian.PutUint32(b[0:4], token)
	put32(b, 4, paise)
	return b
}

func quotePacket(token uint32, full bool) []byte {
	size := 44
	if full {
		size = 184
	}
	b := make([]byte, size)
	binary.BigEndian.PutUint32(b[0:4], token)
	put32(b, 4, 141295)  // ltp
	put32(b, 8, 5)       // last qty
	put32(b, 12, 141247) // avg price
	put32(b, 16, 7360198)
	put32(b, 20, 100)
	put32(b, 24, 200)
	put32(b, 28, 139600) // open
	put32(b, 32, 142175) // high
	put32(b, 36, 139555) // low
	put32(b, 40, 138965) // close
	if full {
		put32(b, 44, 1717754399)
		put32(b, 60, 1717754400)
		put32(b, 64, 25)     // bid qty
		put32(b, 68, 141290) // bid price
		binary.BigEndian.PutUint16(b[72:74], 3)
		put32(b, 64+5*12, 40)       // first offer qty
		put32(b, 64+5*12+4, 141300) // first offer price
	}
	return b
}

func TestParseBinary_Heartbeat(t *testing.T) {
	ticks, err := kite.ParseBinary([]byte{0})
	if err != nil || len(ticks) != 0 {
		t.Errorf("Heartbeat should decode to nothing, got %v %v", ticks, err)
	}
}

func TestParseBinary_LTP(t *testing.T) {
	ticks, err := kite.ParseBinary(frame(ltpPacket(738561, 294550)))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(ticks) != 1 {
		t.Fatalf("Expected 1 tick, got %d", len(ticks))
	}
	tk := ticks[0]
	if tk.Mode != kite.ModeLTP || tk.InstrumentToken != 738561 || tk.LastPrice != 2945.5 {
		t.Errorf("Unexpected ltp tick: %+v", tk)
	}
	if !tk.Tradable {
		t.Error("Equity token should be tradable")
	}
}

func TestParseBinary_QuoteAndFull(t *testing.T) {
	ticks, err := kite.ParseBinary(frame(quotePacket(408065, false), quotePacket(2953217, true)))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(ticks) != 2 {
		t.Fatalf("Expected 2 ticks, got %d", len(ticks))
	}

	q := ticks[0]
	if q.Mode != kite.ModeQuote || q.VolumeTraded != 7360198 || q.OHLC == nil || q.OHLC.Close != 1389.65 {
		t.Errorf("Unexpected quote tick: %+v", q)
	}
	if q.Change <= 0 {
		t.Errorf("Expected positive percent change, got %f", q.Change)
	}

	f := ticks[1]
	if f.Mode != kite.ModeFull || f.Depth == nil || f.ExchangeTimestamp == nil {
		t.Fatalf("Unexpected full tick: %+v", f)
	}
	if f.Depth.Buy[0].Quantity != 25 || f.Depth.Buy[0].Price != 1412.9 || f.Depth.Buy[0].Orders != 3 {
		t.Errorf("Unexpected best bid: %+v", f.Depth.Buy[0])
	}
	if f.Depth.Sell[0].Price != 1413.0 {
		t.Errorf("Unexpected best offer: %+v", f.Depth.Sell[0])
	}
}

func TestParseBinary_Index(t *testing.T) {
	b := make([]byte, 28)
	binary.BigEndian.PutUint32(b[0:4], 260105) // 260105 & 0xff == 9
	put32(b, 4, 4980320)
	put32(b, 20, 4929080)

	ticks, err := kite.ParseBinary(frame(b))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ticks[0].Tradable {
		t.Error("Index token should not be tradable")
	}
	if ticks[0].LastPrice != 49803.2 || ticks[0].OHLC.Close != 49290.8 {
		t.Errorf("Unexpected index tick: %+v", ticks[0])
	}
}

func TestParseBinary_Truncated(t *testing.T) {
	f := frame(ltpPacket(738561, 100))
	if _, err := kite.ParseBinary(f[:len(f)-3]); err == nil {
		t.Error("Expected error for truncated frame")
	}
}

func TestParseBinary_UnknownLength(t *testing.T) {
	if _, err := kite.ParseBinary(frame(make([]byte, 12))); err == nil {
		t.Error("Expected error for unknown packet size")
	}
}
