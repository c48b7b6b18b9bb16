package kite

import (
	"encoding/binary"
	"fmt"
	"time"
)

// Packet sizes of the binary tick protocol.
const (
	ltpPacketLen        = 8
	indexQuotePacketLen = 28
	indexFullPacketLen  = 32
	quotePacketLen      = 44
	fullPacketLen       = 184
)

// Exchange segments encoded in the low byte of an instrument token.
const (
	segmentCDS     = 3
	segmentBCD     = 6
	segmentIndices = 9
)

// ParseBinary decodes one binary frame into ticks. A single-byte frame is a
// heartbeat and yields no ticks.
func ParseBinary(frame []byte) ([]Tick, error) {
	if len(frame) < 2 {
		return nil, nil
	}

	count := int(binary.BigEndian.Uint16(frame[0:2]))
	ticks := make([]Tick, 0, count)

	offset := 2
	for i := 0; i < count; i++ {
		if offset+2 > len(frame) {
			return ticks, fmt.Errorf("kite: truncated frame at packet %d", i)
		}
		size := int(binary.BigEndian.Uint16(frame[offset : offset+2]))
		offset += 2
		if offset+size > len(frame) {
			return ticks, fmt.Errorf("kite: packet %d overruns frame (%d bytes)", i, size)
		}

		tick, err := parsePacket(frame[offset : offset+size])
		if err != nil {
			return ticks, err
		}
		ticks = append(ticks, tick)
		offset += size
	}

	return ticks, nil
}

func parsePacket(b []byte) (Tick, error) {
	token := u32(b, 0)
	segment := token & 0xff
	divisor := priceDivisor(segment)

	tick := Tick{
		InstrumentToken: token,
		Tradable:        segment != segmentIndices,
	}

	switch len(b) {
	case ltpPacketLen:
		tick.Mode = ModeLTP
		tick.LastPrice = price(b, 4, divisor)

	case indexQuotePacketLen, indexFullPacketLen:
		tick.Mode = ModeQuote
		tick.LastPrice = price(b, 4, divisor)
		tick.OHLC = &OHLC{
			High:  price(b, 8, divisor),
			Low:   price(b, 12, divisor),
			Open:  price(b, 16, divisor),
			Close: price(b, 20, divisor),
		}
		tick.Change = percentChange(tick.LastPrice, tick.OHLC.Close)
		if len(b) == indexFullPacketLen {
			tick.Mode = ModeFull
			tick.ExchangeTimestamp = unixTime(u32(b, 28))
		}

	case quotePacketLen, fullPacketLen:
		tick.Mode = ModeQuote
		tick.LastPrice = price(b, 4, divisor)
		tick.LastTradedQuantity = u32(b, 8)
		tick.AverageTradePrice = price(b, 12, divisor)
		tick.VolumeTraded = u32(b, 16)
		tick.TotalBuyQuantity = u32(b, 20)
		tick.TotalSellQuantity = u32(b, 24)
		tick.OHLC = &OHLC{
			Open:  price(b, 28, divisor),
			High:  price(b, 32, divisor),
			Low:   price(b, 36, divisor),
			Close: price(b, 40, divisor),
		}
		tick.Change = percentChange(tick.LastPrice, tick.OHLC.Close)

		if len(b) == fullPacketLen {
			tick.Mode = ModeFull
			tick.LastTradeTime = unixTime(u32(b, 44))
			tick.OI = u32(b, 48)
			tick.OIDayHigh = u32(b, 52)
			tick.OIDayLow = u32(b, 56)
			tick.ExchangeTimestamp = unixTime(u32(b, 60))
			tick.Depth = parseDepth(b[64:], divisor)
		}

	default:
		return Tick{}, fmt.Errorf("kite: unknown packet length %d for token %d", len(b), token)
	}

	return tick, nil
}

// parseDepth reads five bids followed by five offers, 12 bytes each.
func parseDepth(b []byte, divisor float64) *Depth {
	d := &Depth{}
	for i := 0; i < 10; i++ {
		off := i * 12
		item := DepthItem{
			Quantity: u32(b, off),
			Price:    price(b, off+4, divisor),
			Orders:   binary.BigEndian.Uint16(b[off+8 : off+10]),
		}
		if i < 5 {
			d.Buy[i] = item
		} else {
			d.Sell[i-5] = item
		}
	}
	return d
}

func priceDivisor(segment uint32) float64 {
	switch segment {
	case segmentCDS:
		return 10000000.0
	case segmentBCD:
		return 10000.0
	default:
		return 100.0
	}
}

func percentChange(last, close float64) float64 {
	if close == 0 {
		return 0
	}
	return (last - close) * 100 / close
}

func u32(b []byte, off int) uint32 {
	return binary.BigEndian.Uint32(b[off : off+4])
}

func price(b []byte, off int, divisor float64) float64 {
	return float64(int32(u32(b, off))) / divisor
}

func unixTime(sec uint32) *time.Time {
	if sec == 0 {
		return nil
	}
	t := time.Unix(int64(sec), 0)
	return &t
}
