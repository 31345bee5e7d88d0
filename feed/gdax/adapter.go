// Package gdax implements the feed adapter for Coinbase's (formerly GDAX)
// level-2 WebSocket feed: the subscribe handshake, l2update/match decode,
// and snapshot bootstrap of a local order book for analytics consumers.
package gdax

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/epic1st/dtfeed/asset"
	"github.com/epic1st/dtfeed/book"
	"github.com/epic1st/dtfeed/delta"
	"github.com/epic1st/dtfeed/feed"
	"github.com/epic1st/dtfeed/logging"
	"github.com/epic1st/dtfeed/metrics"
	"github.com/epic1st/dtfeed/tickstore"
)

const (
	// Endpoint is Coinbase's level-2 WebSocket feed.
	Endpoint = "wss://ws-feed.pro.coinbase.com"

	// InactivityTimeout is GDAX's 5-second read deadline; Run reconnects
	// when it fires.
	InactivityTimeout = 5 * time.Second

	l2TimeLayout    = "2006-01-02T15:04:05.000Z"
	matchTimeLayout = "2006-01-02T15:04:05.000000Z"

	defaultTickSize = 0.01
)

// DefaultSettings returns GDAX's hard-coded endpoint, default pairs, and
// default channels.
func DefaultSettings() feed.Settings {
	return feed.Settings{
		Exchange: asset.GDAX,
		Endpoint: Endpoint,
		Pairs: []asset.Pair{
			{asset.BTC, asset.USD},
			{asset.ETH, asset.USD},
		},
		Channels:      []string{"level2", "matches"},
		TickStoreAddr: tickstore.DefaultAddr,
	}
}

type subscribeFrame struct {
	Type       string   `json:"type"`
	ProductIDs []string `json:"product_ids"`
	Channels   []string `json:"channels"`
}

// Adapter implements feed.Handler for GDAX/Coinbase level2. It also
// maintains a local book.Book per product from snapshot + l2update frames,
// demonstrating the order-book engine's role as an in-process library any
// analytics consumer can drive off the same delta stream.
type Adapter struct {
	settings feed.Settings

	mu    sync.Mutex
	books map[string]*book.Book
}

// New constructs a GDAX adapter bound to settings.
func New(settings feed.Settings) *Adapter {
	return &Adapter{settings: settings, books: make(map[string]*book.Book)}
}

// OnOpen sends the subscribe frame and ensures every {exchange}_{symbol}
// tick-store database exists.
func (a *Adapter) OnOpen(ctx context.Context, rt *feed.Runtime, conn *websocket.Conn) error {
	productIDs := make([]string, 0, len(a.settings.Pairs))
	for _, p := range a.settings.Pairs {
		sym, ok := a.settings.Exchange.RenderPair(p)
		if !ok {
			logging.Warn("gdax: unsupported asset mapping, skipping pair",
				logging.Exchange(a.settings.Exchange.Name),
				logging.String("pair", p[0].Ticker()+"/"+p[1].Ticker()))
			continue
		}
		productIDs = append(productIDs, sym)

		db := tickstore.DatabaseName(a.settings.Exchange.Name, sym)
		if err := rt.TickStore.EnsureDatabase(db); err != nil {
			logging.TrackError(ctx, logging.CategoryPersistence, a.settings.Exchange.Name, err)
		}
	}

	frame := subscribeFrame{Type: "subscribe", ProductIDs: productIDs, Channels: a.settings.Channels}
	if err := conn.WriteJSON(frame); err != nil {
		return fmt.Errorf("gdax: subscribe: %w", err)
	}
	return nil
}

// envelope carries every field any GDAX message type might populate; the
// adapter dispatches on Type (falling back to bids/asks presence for the
// untyped snapshot frame).
type envelope struct {
	Type      string      `json:"type"`
	ProductID string      `json:"product_id"`
	Time      string      `json:"time"`
	Sequence  uint64      `json:"sequence"`
	Side      string      `json:"side"`
	Price     string      `json:"price"`
	Size      string      `json:"size"`
	Changes   [][3]string `json:"changes"`
	Bids      [][2]string `json:"bids"`
	Asks      [][2]string `json:"asks"`
}

// OnMessage decodes inline on the reader goroutine — the recommended choice
// from §5 — preserving intra-batch order without a worker pool.
func (a *Adapter) OnMessage(ctx context.Context, rt *feed.Runtime, frame []byte) error {
	start := time.Now()
	var env envelope
	if err := json.Unmarshal(frame, &env); err != nil {
		return fmt.Errorf("gdax: decode envelope: %w", err)
	}
	metrics.ObserveDecodeLatency(a.settings.Exchange.Name, float64(time.Since(start).Microseconds())*0.001)

	switch {
	case env.Type == "l2update":
		return a.handleL2Update(ctx, rt, env)
	case env.Type == "match" || env.Type == "last_match":
		return a.handleMatch(ctx, rt, env)
	case len(env.Bids) > 0 || len(env.Asks) > 0:
		a.handleSnapshot(env)
		return nil
	default:
		return nil
	}
}

func (a *Adapter) handleL2Update(ctx context.Context, rt *feed.Runtime, env envelope) error {
	ts, err := time.Parse(l2TimeLayout, env.Time)
	if err != nil {
		return fmt.Errorf("gdax: l2update time: %w", err)
	}
	tsSeconds := float64(ts.UnixMilli()) * 0.001

	deltas := make([]delta.Delta, 0, len(env.Changes))
	for i, change := range env.Changes {
		side := delta.Ask
		if change[0] == "buy" {
			side = delta.Bid
		}

		price, perr := strconv.ParseFloat(change[1], 32)
		size, serr := strconv.ParseFloat(change[2], 32)
		if perr != nil || serr != nil {
			metrics.IncDeltasDropped(a.settings.Exchange.Name, "malformed_level")
			continue
		}

		kind := delta.Update
		if size == 0 {
			kind = delta.Remove
		}

		d := delta.Delta{
			Symbol: env.ProductID,
			Price:  float32(price),
			Size:   float32(size),
			Seq:    uint64(i + 1),
			Event:  delta.Event(side, kind),
			TS:     tsSeconds,
		}
		deltas = append(deltas, d)
		a.applyToBook(env.ProductID, d)
	}

	if len(deltas) == 0 {
		return nil
	}
	if err := rt.PubSub.PublishBatch(ctx, a.settings.Exchange.Name, deltas); err != nil {
		return err
	}
	metrics.IncDeltasEmitted(a.settings.Exchange.Name, len(deltas))
	return nil
}

func (a *Adapter) handleMatch(ctx context.Context, rt *feed.Runtime, env envelope) error {
	ts, err := time.Parse(matchTimeLayout, env.Time)
	if err != nil {
		return fmt.Errorf("gdax: match time: %w", err)
	}

	side := delta.Ask
	if env.Side == "buy" {
		side = delta.Bid
	}

	price, perr := strconv.ParseFloat(env.Price, 32)
	size, serr := strconv.ParseFloat(env.Size, 32)
	if perr != nil || serr != nil {
		return fmt.Errorf("gdax: match price/size parse")
	}

	d := delta.Delta{
		Symbol: env.ProductID,
		Price:  float32(price),
		Size:   float32(size),
		Seq:    env.Sequence,
		Event:  delta.Event(side, delta.Trade),
		TS:     float64(ts.UnixMilli()) * 0.001,
	}

	if err := rt.PubSub.PublishBatch(ctx, a.settings.Exchange.Name, []delta.Delta{d}); err != nil {
		return err
	}
	metrics.IncDeltasEmitted(a.settings.Exchange.Name, 1)
	return nil
}

// handleSnapshot treats a bids/asks-only frame as an order-book bootstrap
// for the local analytics book, per §4.D.
func (a *Adapter) handleSnapshot(env envelope) {
	var snap book.Snapshot
	for _, lvl := range env.Bids {
		if pp, ok := parseLevel(lvl); ok {
			snap.Bids = append(snap.Bids, pp)
		}
	}
	for _, lvl := range env.Asks {
		if pp, ok := parseLevel(lvl); ok {
			snap.Asks = append(snap.Asks, pp)
		}
	}

	b := book.New(defaultTickSize, a.settings.Exchange.Name, env.ProductID)
	b.Initialize(snap)

	a.mu.Lock()
	a.books[env.ProductID] = b
	a.mu.Unlock()
}

func parseLevel(lvl [2]string) (book.PricePoint, bool) {
	price, err1 := strconv.ParseFloat(lvl[0], 32)
	size, err2 := strconv.ParseFloat(lvl[1], 32)
	if err1 != nil || err2 != nil {
		return book.PricePoint{}, false
	}
	return book.PricePoint{Price: float32(price), Size: float32(size)}, true
}

func (a *Adapter) applyToBook(productID string, d delta.Delta) {
	a.mu.Lock()
	b, ok := a.books[productID]
	a.mu.Unlock()
	if !ok {
		return
	}
	if err := b.ApplyDelta(context.Background(), d); err != nil {
		logging.TrackError(context.Background(), logging.CategoryState, a.settings.Exchange.Name, err)
	}
}

// OnClose logs the disconnect; Run reconnects with the same settings.
func (a *Adapter) OnClose(ctx context.Context) {
	logging.Info("gdax: connection closed, reconnecting", logging.Exchange("gdax"))
}

// OnTimeout fires on the 5-second inactivity deadline; Run reconnects.
func (a *Adapter) OnTimeout(ctx context.Context) {
	logging.Info("gdax: inactivity timeout, reconnecting", logging.Exchange("gdax"))
}
