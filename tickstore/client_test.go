package tickstore

import (
	"testing"

	"github.com/epic1st/dtfeed/delta"
)

func TestDatabaseName(t *testing.T) {
	got := DatabaseName("gdax", "BTC-USD")
	want := "gdax_BTC-USD"
	if got != want {
		t.Errorf("DatabaseName() = %q, want %q", got, want)
	}
}

// TestParseExistsReply guards the fix for the documented bug where EXISTS
// was decided from the reply's first character only: a reply that prefixes
// status text ahead of the flag token must still parse correctly.
func TestParseExistsReply(t *testing.T) {
	cases := []struct {
		reply string
		want  bool
	}{
		{"1", true},
		{"0", false},
		{"EXISTS 1", true},
		{"EXISTS 0", false},
		{"true", true},
		{"false", false},
		{"", false},
		{"1 row(s) found", false},
	}
	for _, c := range cases {
		if got := parseExistsReply(c.reply); got != c.want {
			t.Errorf("parseExistsReply(%q) = %v, want %v", c.reply, got, c.want)
		}
	}
}

func TestRecordLineHasNoTrailingNewline(t *testing.T) {
	d := delta.Delta{Symbol: "XBTUSD", Price: 100, Size: 5, Seq: 1, Event: delta.Event(delta.Bid, delta.Trade), TS: 1.5}
	line := recordLine(d)
	if line == "" {
		t.Fatal("recordLine returned empty string")
	}
	if line[len(line)-1] == '\n' {
		t.Errorf("recordLine left a trailing newline: %q", line)
	}
}
