package delta

import (
	"encoding/json"
	"testing"
)

func TestEvent(t *testing.T) {
	if got := Event(Bid, Trade); got != 40 {
		t.Errorf("Event(Bid, Trade) = %d, want 40", got)
	}
	if got := Event(Ask, Update); got != (16 | 4) {
		t.Errorf("Event(Ask, Update) = %d, want %d", got, 16|4)
	}
}

func TestDeltaFlags(t *testing.T) {
	d := Delta{Event: Event(Bid, Trade)}
	if !d.IsTrade() || !d.IsBid() {
		t.Errorf("expected IsTrade and IsBid true for event %d", d.Event)
	}

	d2 := Delta{Event: Event(Ask, Remove)}
	if d2.IsTrade() || d2.IsBid() {
		t.Errorf("expected IsTrade and IsBid false for event %d", d2.Event)
	}
}

func TestRecord(t *testing.T) {
	d := Delta{Symbol: "XBTUSD", Price: 100.0, Size: 5, Seq: 0, Event: Event(Bid, Trade), TS: 1577934245.678}
	got := d.Record()
	want := "1577934245.678, 0, t, t, 100, 5;\n"
	if got != want {
		t.Errorf("Record() = %q, want %q", got, want)
	}
}

func TestJSONCodec(t *testing.T) {
	deltas := []Delta{
		{Symbol: "BTC-USD", Price: 9000, Size: 0, Seq: 1, Event: Event(Bid, Remove), TS: 100},
		{Symbol: "BTC-USD", Price: 9001, Size: 0.5, Seq: 2, Event: Event(Ask, Update), TS: 100},
	}

	encoded, err := json.Marshal(deltas)
	if err != nil {
		t.Fatalf("Marshal failed: %v", err)
	}

	var decoded []Delta
	if err := json.Unmarshal(encoded, &decoded); err != nil {
		t.Fatalf("Unmarshal failed: %v", err)
	}

	if len(decoded) != 2 || decoded[0] != deltas[0] || decoded[1] != deltas[1] {
		t.Errorf("round-trip mismatch: got %+v, want %+v", decoded, deltas)
	}
}

func TestIsRemove(t *testing.T) {
	d := Delta{Size: 0, Event: Event(Bid, Update)}
	if !d.IsRemove() {
		t.Error("expected zero-size delta to report IsRemove")
	}
}
