package bitmex

import (
	"testing"

	"github.com/epic1st/dtfeed/delta"
	"github.com/epic1st/dtfeed/feed"
)

// TestRecoverPriceXBTUSD covers E5: the XBTUSD fast path inverts BitMEX's id
// encoding without needing the instrument table.
func TestRecoverPriceXBTUSD(t *testing.T) {
	a := New(DefaultSettings())

	price, ok := a.recoverPrice("XBTUSD", 8799990000)
	if !ok {
		t.Fatal("recoverPrice: ok = false, want true")
	}
	if diff := price - 100.0; diff > 0.001 || diff < -0.001 {
		t.Errorf("recoverPrice(XBTUSD, 8799990000) = %v, want ~100.0", price)
	}
}

// TestRecoverPriceGeneral covers the general (index, tickSize) formula used
// for every symbol other than XBTUSD, populated from the instrument table.
func TestRecoverPriceGeneral(t *testing.T) {
	a := New(DefaultSettings())
	a.assetIndex["ETHUSD"] = 5
	a.assetTickSize["ETHUSD"] = 0.05

	// price = (100_000_000 * index - id) * tickSize
	id := uint64(100_000_000*5) - 2000
	price, ok := a.recoverPrice("ETHUSD", id)
	if !ok {
		t.Fatal("recoverPrice: ok = false, want true")
	}
	want := float32(2000) * 0.05
	if diff := price - want; diff > 0.001 || diff < -0.001 {
		t.Errorf("recoverPrice(ETHUSD, %d) = %v, want %v", id, price, want)
	}
}

// TestRecoverPriceUnknownSymbol covers the case where the instrument table
// hasn't been populated yet: the adapter must skip the entry, not panic or
// silently emit a zero price.
func TestRecoverPriceUnknownSymbol(t *testing.T) {
	a := New(DefaultSettings())

	if _, ok := a.recoverPrice("ADAUSD", 12345); ok {
		t.Error("recoverPrice: ok = true for unregistered symbol, want false")
	}
}

// TestBitmexTradeEventBit covers the event-bit construction used when
// processing an orderBookL2/trade entry.
func TestBitmexTradeEventBit(t *testing.T) {
	got := delta.Event(delta.Bid, delta.Trade)
	if !((delta.Delta{Event: got}).IsTrade() && (delta.Delta{Event: got}).IsBid()) {
		t.Errorf("Event(Bid, Trade) = %d, want both IsTrade and IsBid set", got)
	}
}

var _ feed.Handler = (*Adapter)(nil)
