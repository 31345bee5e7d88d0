// Package book reconstructs a live limit-order-book per instrument from a
// bootstrap snapshot plus an incremental delta stream. State is a dense
// array indexed by tick (floor(price/tick_size)), with auxiliary slices of
// occupied ticks per side for best-bid/best-ask recovery. New ticks are
// appended unsorted; a side's slice is sorted when its best level is removed.
package book

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/epic1st/dtfeed/asset"
	"github.com/epic1st/dtfeed/delta"
	"github.com/epic1st/dtfeed/logging"
	"github.com/epic1st/dtfeed/metrics"
)

// PricePoint is one level of a Snapshot: a real price and its resting size.
type PricePoint struct {
	Price float32
	Size  float32
}

// Snapshot is a full materialization of a book's state at a point in time.
type Snapshot struct {
	Market *asset.Asset
	Asset  *asset.Asset
	Bids   []PricePoint
	Asks   []PricePoint
}

// ErrCrossedBook is the state error Apply records through logging.TrackError
// when applying a delta would leave best_bid >= best_ask. Apply skips such a
// delta and returns nil; the error is not returned to the caller.
var ErrCrossedBook = fmt.Errorf("book: update would cross the book")

// Book is the dense-array order-book state for a single instrument.
type Book struct {
	mu sync.RWMutex

	Market *asset.Asset
	Asset  *asset.Asset

	TickSize float32
	LotSize  float32

	BestBid      uint64
	BestAsk      uint64
	BestBidSize  float32
	BestAskSize  float32
	bestBidValid bool
	bestAskValid bool

	bidPricePoints []uint64
	askPricePoints []uint64

	state []*float32

	exchange string // for error-tracker and metrics tagging
	symbol   string // for metrics tagging
}

// New constructs an empty book with the given tick size. Defaults match the
// original implementation's crypto-oriented tick/lot sizes. symbol labels
// metrics only; it may be left empty where no caller-local symbol exists.
func New(tickSize float32, exchange string, symbol string) *Book {
	if tickSize == 0 {
		tickSize = 0.0001
	}
	return &Book{
		TickSize: tickSize,
		LotSize:  0.00000001,
		exchange: exchange,
		symbol:   symbol,
	}
}

func tickIndex(price, tickSize float32) uint64 {
	return uint64(price / tickSize)
}

// Initialize bootstraps book state from a snapshot. Must be called before
// any ApplyDelta.
func (b *Book) Initialize(snap Snapshot) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.Market = snap.Market
	b.Asset = snap.Asset

	type level struct {
		tick uint64
		size float32
	}

	bids := make([]level, len(snap.Bids))
	for i, bid := range snap.Bids {
		bids[i] = level{tickIndex(bid.Price, b.TickSize), bid.Size}
	}
	asks := make([]level, len(snap.Asks))
	for i, ask := range snap.Asks {
		asks[i] = level{tickIndex(ask.Price, b.TickSize), ask.Size}
	}

	sort.Slice(bids, func(i, j int) bool { return bids[i].tick < bids[j].tick })
	sort.Slice(asks, func(i, j int) bool { return asks[i].tick < asks[j].tick })

	size := int(1.0/b.TickSize) * 100_000
	b.state = make([]*float32, size)
	b.bidPricePoints = b.bidPricePoints[:0]
	b.askPricePoints = b.askPricePoints[:0]
	b.bestBidValid, b.bestAskValid = false, false

	for idx, lv := range bids {
		sz := lv.size
		b.state[lv.tick] = &sz
		b.bidPricePoints = append(b.bidPricePoints, lv.tick)
		if idx == len(bids)-1 {
			b.BestBid = lv.tick
			b.BestBidSize = lv.size
			b.bestBidValid = true
		}
	}
	for idx, lv := range asks {
		sz := lv.size
		b.state[lv.tick] = &sz
		b.askPricePoints = append(b.askPricePoints, lv.tick)
		if idx == 0 {
			b.BestAsk = lv.tick
			b.BestAskSize = lv.size
			b.bestAskValid = true
		}
	}
}

// Update is a single order-book mutation expressed as a tick index (not a
// real price), matching the tick-indexed form ApplyDelta derives from a
// Delta's real price.
type Update struct {
	Tick  uint64
	Size  float32
	IsBid bool
}

// ApplyDelta converts a Delta's real price to a tick index and applies it.
// Crossed-book updates are rejected and logged as a state error; the book
// is left unchanged and the delta is skipped, per policy.
func (b *Book) ApplyDelta(ctx context.Context, d delta.Delta) error {
	u := Update{
		Tick:  tickIndex(d.Price, b.TickSize),
		Size:  d.Size,
		IsBid: d.IsBid(),
	}
	return b.Apply(ctx, u)
}

// Apply applies a single tick-indexed update.
func (b *Book) Apply(ctx context.Context, u Update) error {
	start := time.Now()
	defer func() {
		metrics.ObserveBookApplyLatency(b.exchange, b.symbol, float64(time.Since(start).Microseconds()))
	}()

	b.mu.Lock()
	defer b.mu.Unlock()

	if u.Size != 0 {
		if u.IsBid && b.bestAskValid && u.Tick >= b.BestAsk {
			err := fmt.Errorf("%w: bid at tick %d would cross best ask %d", ErrCrossedBook, u.Tick, b.BestAsk)
			logging.TrackError(ctx, logging.CategoryState, b.exchange, err)
			return nil
		}
		if !u.IsBid && b.bestBidValid && u.Tick <= b.BestBid {
			err := fmt.Errorf("%w: ask at tick %d would cross best bid %d", ErrCrossedBook, u.Tick, b.BestBid)
			logging.TrackError(ctx, logging.CategoryState, b.exchange, err)
			return nil
		}
	}

	if u.IsBid {
		b.applyBid(u.Tick, u.Size)
	} else {
		b.applyAsk(u.Tick, u.Size)
	}
	return nil
}

func removeTick(points []uint64, tick uint64) []uint64 {
	for i, p := range points {
		if p == tick {
			return append(points[:i], points[i+1:]...)
		}
	}
	return points
}

func (b *Book) applyBid(tick uint64, size float32) {
	if size == 0 {
		if b.bestBidValid && tick == b.BestBid {
			sort.Slice(b.bidPricePoints, func(i, j int) bool { return b.bidPricePoints[i] < b.bidPricePoints[j] })
			if len(b.bidPricePoints) < 2 {
				b.bidPricePoints = nil
				b.bestBidValid = false
				b.BestBid, b.BestBidSize = 0, 0
			} else {
				next := b.bidPricePoints[len(b.bidPricePoints)-2]
				b.BestBid = next
				b.BestBidSize = b.levelSize(next)
				b.bidPricePoints = b.bidPricePoints[:len(b.bidPricePoints)-1]
			}
			b.state[tick] = nil
		} else {
			b.state[tick] = nil
			b.bidPricePoints = removeTick(b.bidPricePoints, tick)
		}
		return
	}

	sz := size
	b.state[tick] = &sz
	if !b.containsTick(b.bidPricePoints, tick) {
		b.bidPricePoints = append(b.bidPricePoints, tick)
	}

	switch {
	case b.bestBidValid && tick == b.BestBid:
		b.BestBidSize = size
	case !b.bestBidValid || tick > b.BestBid:
		b.BestBid = tick
		b.BestBidSize = size
		b.bestBidValid = true
	}
}

func (b *Book) applyAsk(tick uint64, size float32) {
	if size == 0 {
		if b.bestAskValid && tick == b.BestAsk {
			sort.Slice(b.askPricePoints, func(i, j int) bool { return b.askPricePoints[i] < b.askPricePoints[j] })
			if len(b.askPricePoints) < 2 {
				b.askPricePoints = nil
				b.bestAskValid = false
				b.BestAsk, b.BestAskSize = 0, 0
			} else {
				next := b.askPricePoints[1]
				b.BestAsk = next
				b.BestAskSize = b.levelSize(next)
				b.askPricePoints = b.askPricePoints[1:]
			}
			b.state[tick] = nil
		} else {
			b.state[tick] = nil
			b.askPricePoints = removeTick(b.askPricePoints, tick)
		}
		return
	}

	sz := size
	b.state[tick] = &sz
	if !b.containsTick(b.askPricePoints, tick) {
		b.askPricePoints = append(b.askPricePoints, tick)
	}

	switch {
	case b.bestAskValid && tick == b.BestAsk:
		b.BestAskSize = size
	case !b.bestAskValid || tick < b.BestAsk:
		b.BestAsk = tick
		b.BestAskSize = size
		b.bestAskValid = true
	}
}

func (b *Book) containsTick(points []uint64, tick uint64) bool {
	for _, p := range points {
		if p == tick {
			return true
		}
	}
	return false
}

func (b *Book) levelSize(tick uint64) float32 {
	if lv := b.state[tick]; lv != nil {
		return *lv
	}
	return 0
}

// GetSnapshot materializes both sides of the book from the price-point
// index. Ticks are rendered back to real prices via RealPrice.
func (b *Book) GetSnapshot() Snapshot {
	b.mu.RLock()
	defer b.mu.RUnlock()

	bids := make([]PricePoint, len(b.bidPricePoints))
	for i, tick := range b.bidPricePoints {
		bids[i] = PricePoint{Price: b.realPriceLocked(tick), Size: b.levelSize(tick)}
	}
	asks := make([]PricePoint, len(b.askPricePoints))
	for i, tick := range b.askPricePoints {
		asks[i] = PricePoint{Price: b.realPriceLocked(tick), Size: b.levelSize(tick)}
	}

	return Snapshot{Market: b.Market, Asset: b.Asset, Bids: bids, Asks: asks}
}

func (b *Book) realPriceLocked(tick uint64) float32 {
	return float32(tick) * b.TickSize
}

// RealPrice converts a tick index back to its real price.
func (b *Book) RealPrice(tick uint64) float32 {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.realPriceLocked(tick)
}

// BidAskSpread returns best_ask - best_bid in real price terms.
func (b *Book) BidAskSpread() float32 {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.realPriceLocked(b.BestAsk) - b.realPriceLocked(b.BestBid)
}

// MidPrice returns (best_ask + best_bid) / 2 in real price terms.
func (b *Book) MidPrice() float32 {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return (b.realPriceLocked(b.BestAsk) + b.realPriceLocked(b.BestBid)) / 2
}

// BidRelativePrice returns how far a given real price is below the best bid.
func (b *Book) BidRelativePrice(price float32) float32 {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.realPriceLocked(b.BestBid) - price
}

// AskRelativePrice returns how far a given real price is above the best ask.
func (b *Book) AskRelativePrice(price float32) float32 {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return price - b.realPriceLocked(b.BestAsk)
}
