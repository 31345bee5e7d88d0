// Package asset defines the canonical asset enum, the exchange registry,
// and asset-pair rendering rules shared by every feed adapter.
package asset

import (
	"strings"

	"github.com/epic1st/dtfeed/logging"
)

// Asset is a canonical, exchange-independent ticker.
type Asset int

const (
	BTC Asset = iota
	ETH
	LTC
	USDT
	USD
	JPY
	CNY
	KRW
	EUR
	GBP
	CAD
	AUD
)

var tickers = map[Asset]string{
	BTC:  "BTC",
	ETH:  "ETH",
	LTC:  "LTC",
	USDT: "USDT",
	USD:  "USD",
	JPY:  "JPY",
	CNY:  "CNY",
	KRW:  "KRW",
	EUR:  "EUR",
	GBP:  "GBP",
	CAD:  "CAD",
	AUD:  "AUD",
}

// Ticker returns the canonical uppercase ticker for the asset.
func (a Asset) Ticker() string {
	return tickers[a]
}

func (a Asset) String() string {
	return a.Ticker()
}

// Pair is an ordered base/quote asset pair, e.g. [BTC, USD].
type Pair [2]Asset

// Exchange is a registered venue with the attributes needed to render a
// pair string and to decide whether a given asset is tradeable there.
type Exchange struct {
	Name string

	// MarketFirst controls pair ordering: true renders the base leg (p[0])
	// before the quote leg (p[1]); false renders the quote leg first.
	MarketFirst bool

	// Separator is inserted between the two rendered tickers; may be empty.
	Separator string

	SupportsNormal  bool
	SupportsOptions bool
	SupportsFutures bool

	// normalize maps a canonical Asset to this exchange's local ticker.
	// An asset absent from the map is unsupported on this exchange.
	normalize map[Asset]string
}

var (
	Poloniex = Exchange{
		Name:            "poloniex",
		MarketFirst:     true,
		Separator:       "-",
		SupportsNormal:  true,
		SupportsOptions: false,
		SupportsFutures: false,
		normalize: map[Asset]string{
			BTC:  "BTC",
			ETH:  "ETH",
			LTC:  "LTC",
			USDT: "USDT",
		},
	}

	GDAX = Exchange{
		Name:            "gdax",
		MarketFirst:     true,
		Separator:       "-",
		SupportsNormal:  true,
		SupportsOptions: false,
		SupportsFutures: false,
		normalize: map[Asset]string{
			BTC: "BTC",
			ETH: "ETH",
			LTC: "LTC",
			USD: "USD",
		},
	}

	BitMEX = Exchange{
		Name:            "bitmex",
		MarketFirst:     false,
		Separator:       "",
		SupportsNormal:  false,
		SupportsOptions: true,
		SupportsFutures: true,
		normalize: map[Asset]string{
			BTC: "XBT",
			ETH: "ETH",
			LTC: "LTC",
			USD: "USD",
		},
	}
)

// NormalizeAsset maps a canonical asset to this exchange's local ticker.
// Returns ("", false) if the exchange does not support the asset — callers
// must skip the pair, not abort.
func (e Exchange) NormalizeAsset(a Asset) (string, bool) {
	t, ok := e.normalize[a]
	return t, ok
}

// RenderPair formats a pair as this exchange would expect to see it in a
// subscription frame or symbol field. Returns ("", false) if either leg of
// the pair is unsupported on the exchange.
func (e Exchange) RenderPair(p Pair) (string, bool) {
	base, ok := e.NormalizeAsset(p[0])
	if !ok {
		return "", false
	}
	quote, ok := e.NormalizeAsset(p[1])
	if !ok {
		return "", false
	}

	var b strings.Builder
	if e.MarketFirst {
		b.WriteString(base)
		b.WriteString(e.Separator)
		b.WriteString(quote)
	} else {
		// Market-first false renders the quote leg, then the base leg.
		b.WriteString(quote)
		b.WriteString(e.Separator)
		b.WriteString(base)
	}
	return b.String(), true
}

// RenderPairs renders a batch of pairs against the same exchange, skipping
// (not erroring on) any pair with an unsupported leg.
func (e Exchange) RenderPairs(pairs []Pair) []string {
	out := make([]string, 0, len(pairs))
	for _, p := range pairs {
		s, ok := e.RenderPair(p)
		if !ok {
			logging.Warn("asset: unsupported asset mapping, skipping pair",
				logging.Exchange(e.Name),
				logging.String("pair", p[0].Ticker()+"/"+p[1].Ticker()))
			continue
		}
		out = append(out, s)
	}
	return out
}
