package book

import (
	"context"
	"testing"
)

func newTestBook() *Book {
	return New(0.5, "test", "XBTUSD")
}

// TestBootstrap covers E1: snapshot bootstrap into the dense tick array and
// correct best-bid/best-ask recovery.
func TestBootstrap(t *testing.T) {
	b := newTestBook()
	b.Initialize(Snapshot{
		Bids: []PricePoint{{302.0, 50}, {303.0, 100}, {304.0, 11111}},
		Asks: []PricePoint{{305.0, 20.5}, {306.0, 1}, {307.0, 154.25}},
	})

	cases := []struct {
		tick uint64
		want float32
	}{
		{604, 50}, {606, 100}, {608, 11111},
		{610, 20.5}, {612, 1}, {614, 154.25},
	}
	for _, c := range cases {
		if got := b.levelSize(c.tick); got != c.want {
			t.Errorf("state[%d] = %v, want %v", c.tick, got, c.want)
		}
	}

	if b.BestBid != 608 || b.BestBidSize != 11111 {
		t.Errorf("best bid = (%d, %v), want (608, 11111)", b.BestBid, b.BestBidSize)
	}
	if b.BestAsk != 610 || b.BestAskSize != 20.5 {
		t.Errorf("best ask = (%d, %v), want (610, 20.5)", b.BestAsk, b.BestAskSize)
	}
}

func bootstrapped(t *testing.T) *Book {
	t.Helper()
	b := newTestBook()
	b.Initialize(Snapshot{
		Bids: []PricePoint{{302.0, 50}, {303.0, 100}, {304.0, 11111}},
		Asks: []PricePoint{{305.0, 20.5}, {306.0, 1}, {307.0, 154.25}},
	})
	return b
}

// TestNewBestBid covers E2: a limit order inside the spread becomes the new
// best bid without disturbing the best ask.
func TestNewBestBid(t *testing.T) {
	b := bootstrapped(t)
	ctx := context.Background()

	if err := b.Apply(ctx, Update{Tick: 609, Size: 400.523, IsBid: true}); err != nil {
		t.Fatalf("apply: %v", err)
	}

	if b.BestBid != 609 || b.BestBidSize != 400.523 {
		t.Errorf("best bid = (%d, %v), want (609, 400.523)", b.BestBid, b.BestBidSize)
	}
	if b.BestAsk != 610 {
		t.Errorf("best ask = %d, want 610", b.BestAsk)
	}
}

// TestCancelBestAsk covers E3: zeroing the best ask level falls back to the
// next occupied ask tick.
func TestCancelBestAsk(t *testing.T) {
	b := bootstrapped(t)

	mustApply(t, b, Update{Tick: 609, Size: 400.523, IsBid: true})
	mustApply(t, b, Update{Tick: 610, Size: 0, IsBid: false})

	if b.BestAsk != 612 || b.BestAskSize != 1 {
		t.Errorf("best ask = (%d, %v), want (612, 1)", b.BestAsk, b.BestAskSize)
	}
}

// TestBidAskFlip covers E4: canceling the new best bid and placing a larger
// order at the same tick on the ask side flips that tick from bid to ask.
func TestBidAskFlip(t *testing.T) {
	b := bootstrapped(t)

	mustApply(t, b, Update{Tick: 609, Size: 400.523, IsBid: true})
	mustApply(t, b, Update{Tick: 610, Size: 0, IsBid: false})
	mustApply(t, b, Update{Tick: 609, Size: 0, IsBid: true})
	mustApply(t, b, Update{Tick: 609, Size: 2500, IsBid: false})

	if b.BestBid != 608 {
		t.Errorf("best bid = %d, want 608", b.BestBid)
	}
	if b.BestAsk != 609 || b.BestAskSize != 2500 {
		t.Errorf("best ask = (%d, %v), want (609, 2500)", b.BestAsk, b.BestAskSize)
	}
}

// TestCrossedBookRejected covers §9's crossed-book bug: an update that would
// leave best_bid >= best_ask must be rejected, not silently accepted.
func TestCrossedBookRejected(t *testing.T) {
	b := bootstrapped(t)
	ctx := context.Background()

	if err := b.Apply(ctx, Update{Tick: 610, Size: 5, IsBid: true}); err != nil {
		t.Fatalf("apply: %v", err)
	}

	if b.BestBid == 610 {
		t.Error("crossed bid was accepted, want rejected")
	}
	if b.BestAsk != 610 {
		t.Errorf("best ask moved after a rejected crossing update: %d", b.BestAsk)
	}
}

func mustApply(t *testing.T, b *Book, u Update) {
	t.Helper()
	if err := b.Apply(context.Background(), u); err != nil {
		t.Fatalf("apply %+v: %v", u, err)
	}
}
