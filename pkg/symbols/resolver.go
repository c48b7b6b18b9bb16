// Package symbols maps client-facing aliases to exchange-qualified symbols.
package symbols

import "strings"

// DefaultExchange qualifies bare tickers when no other rule applies.
const DefaultExchange = "NSE"

var indexNicknames = map[string]string{
	"NIFTY":             "NSE:NIFTY 50",
	"NIFTY 50":          "NSE:NIFTY 50",
	"NIFTY50":           "NSE:NIFTY 50",
	"BANKNIFTY":         "NSE:NIFTY BANK",
	"NIFTY BANK":        "NSE:NIFTY BANK",
	"FINNIFTY":          "NSE:NIFTY FIN SERVICE",
	"NIFTY FIN SERVICE": "NSE:NIFTY FIN SERVICE",
	"MIDCPNIFTY":        "NSE:NIFTY MIDCAP 100",
	"NIFTY MIDCAP 100":  "NSE:NIFTY MIDCAP 100",
	"SMLCPNIFTY":        "NSE:NIFTY SMLCAP 100",
	"NIFTY SMLCAP 100":  "NSE:NIFTY SMLCAP 100",
	"SENSEX":            "BSE:SENSEX",
	"BSE-SENSEX":        "BSE:SENSEX",
}

// Resolver is a pure alias -> canonical symbol mapping.
type Resolver struct {
	exchange string
}

func NewResolver(defaultExchange string) Resolver {
	defaultExchange = strings.ToUpper(strings.TrimSpace(defaultExchange))
	if defaultExchange == "" {
		defaultExchange = DefaultExchange
	}
	return Resolver{exchange: defaultExchange}
}

// Normalize is the group name form of an alias.
func Normalize(alias string) string {
	return strings.ToUpper(strings.TrimSpace(alias))
}

// Resolve never fails: qualified aliases pass through, index nicknames map to
// their index symbol and anything else is qualified with the default exchange.
func (r Resolver) Resolve(alias string) string {
	a := Normalize(alias)
	if strings.Contains(a, ":") {
		return a
	}
	if canonical, ok := indexNicknames[a]; ok {
		return canonical
	}
	ex := r.exchange
	if ex == "" {
		ex = DefaultExchange
	}
	return ex + ":" + a
}

// Split separates a canonical symbol into exchange and trading symbol.
func Split(canonical string) (exchange, symbol string) {
	exchange, symbol, ok := strings.Cut(canonical, ":")
	if !ok {
		return "", canonical
	}
	return exchange, symbol
}
