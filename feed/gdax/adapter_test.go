package gdax

import (
	"testing"
	"time"

	"github.com/epic1st/dtfeed/book"
)

func TestParseLevel(t *testing.T) {
	pp, ok := parseLevel([2]string{"9000.00", "0.5"})
	if !ok {
		t.Fatal("parseLevel: ok = false, want true")
	}
	if pp.Price != 9000.00 || pp.Size != 0.5 {
		t.Errorf("parseLevel = %+v, want {9000 0.5}", pp)
	}

	if _, ok := parseLevel([2]string{"not-a-number", "1"}); ok {
		t.Error("parseLevel: ok = true for malformed price, want false")
	}
}

// TestL2TimeLayout covers E6's timestamp format, which carries millisecond
// precision and a literal "Z" suffix.
func TestL2TimeLayout(t *testing.T) {
	ts, err := time.Parse(l2TimeLayout, "2020-01-02T03:04:05.678Z")
	if err != nil {
		t.Fatalf("parse l2update time: %v", err)
	}
	if ts.Nanosecond()/1e6 != 678 {
		t.Errorf("ts millis = %d, want 678", ts.Nanosecond()/1e6)
	}
}

func TestMatchTimeLayout(t *testing.T) {
	if _, err := time.Parse(matchTimeLayout, "2020-01-02T03:04:05.678901Z"); err != nil {
		t.Fatalf("parse match time: %v", err)
	}
}

// TestHandleSnapshotBootstrapsBook covers the snapshot branch of E6's
// surrounding flow: a bids/asks frame seeds a local book per product, which
// applyToBook can then mutate.
func TestHandleSnapshotBootstrapsBook(t *testing.T) {
	a := New(DefaultSettings())
	env := envelope{
		ProductID: "BTC-USD",
		Bids:      [][2]string{{"9000.00", "1.0"}},
		Asks:      [][2]string{{"9001.00", "0.5"}},
	}
	a.handleSnapshot(env)

	a.mu.Lock()
	b, ok := a.books["BTC-USD"]
	a.mu.Unlock()
	if !ok {
		t.Fatal("handleSnapshot did not register a book for BTC-USD")
	}
	var _ *book.Book = b

	snap := b.GetSnapshot()
	if len(snap.Bids) != 1 || len(snap.Asks) != 1 {
		t.Fatalf("snapshot = %+v, want one bid and one ask", snap)
	}
	if diff := snap.Bids[0].Price - 9000.00; diff > 0.01 || diff < -0.01 {
		t.Errorf("bid price = %v, want ~9000", snap.Bids[0].Price)
	}
	if snap.Bids[0].Size != 1.0 {
		t.Errorf("bid size = %v, want 1", snap.Bids[0].Size)
	}
}
