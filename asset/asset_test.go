package asset

import "testing"

func TestRenderPair(t *testing.T) {
	tests := []struct {
		name     string
		pair     Pair
		exch     Exchange
		expected string
	}{
		{"poloniex market-first", Pair{BTC, USDT}, Poloniex, "BTC-USDT"},
		{"gdax market-first", Pair{BTC, USD}, GDAX, "BTC-USD"},
		{"bitmex market-first false", Pair{BTC, USD}, BitMEX, "USDXBT"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := tt.exch.RenderPair(tt.pair)
			if !ok {
				t.Fatalf("RenderPair(%v, %s) reported unsupported", tt.pair, tt.exch.Name)
			}
			if got != tt.expected {
				t.Errorf("RenderPair(%v, %s) = %q, want %q", tt.pair, tt.exch.Name, got, tt.expected)
			}
		})
	}
}

func TestRenderPairUnsupportedAsset(t *testing.T) {
	_, ok := BitMEX.RenderPair(Pair{JPY, USD})
	if ok {
		t.Error("expected unsupported asset JPY on BitMEX to fail rendering")
	}
}

func TestRenderPairsSkipsUnsupported(t *testing.T) {
	pairs := []Pair{{BTC, USD}, {JPY, USD}, {ETH, USD}}
	rendered := BitMEX.RenderPairs(pairs)
	if len(rendered) != 2 {
		t.Fatalf("expected 2 supported pairs rendered, got %d: %v", len(rendered), rendered)
	}
}

func TestNormalizeAssetBitMEXBTCIsXBT(t *testing.T) {
	got, ok := BitMEX.NormalizeAsset(BTC)
	if !ok || got != "XBT" {
		t.Errorf("BitMEX.NormalizeAsset(BTC) = (%q, %v), want (XBT, true)", got, ok)
	}
}
