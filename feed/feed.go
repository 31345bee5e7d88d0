// Package feed holds the capability set every exchange adapter implements:
// cheaply cloneable Settings, the Runtime handles init_auxiliary acquires,
// the on_open/on_message/on_close/on_timeout Handler contract, and the
// reconnect-on-error run loop that drives a WebSocket connection against
// it. Per-exchange decode and normalization live in the feed/bitmex and
// feed/gdax subpackages.
package feed

import (
	"context"
	"fmt"
	"time"

	"github.com/gorilla/websocket"

	"github.com/epic1st/dtfeed/asset"
	"github.com/epic1st/dtfeed/logging"
	"github.com/epic1st/dtfeed/metrics"
	"github.com/epic1st/dtfeed/pubsub"
	"github.com/epic1st/dtfeed/tickstore"
)

// Settings is the cheaply cloneable, value-type configuration for one
// adapter — split from Runtime so ownership of live connections never has
// to cross the WebSocket handshake boundary as part of a settings struct.
type Settings struct {
	Exchange asset.Exchange
	Endpoint string
	Pairs    []asset.Pair
	Channels []string

	RedisAddr     string
	RedisAuth     string
	TickStoreAddr string
}

// Runtime holds the live handles an adapter needs after init_auxiliary: a
// pub/sub publisher and a tick-store session. A fresh Runtime is built on
// every connect/reconnect so a failed handshake never leaves stale handles
// behind.
type Runtime struct {
	PubSub    *pubsub.Conn
	TickStore *tickstore.Client
}

// InitAuxiliary acquires a pub/sub connection and a tick-store session for
// settings, authenticating the broker if a password is configured.
func InitAuxiliary(ctx context.Context, s Settings) (*Runtime, error) {
	ps, err := pubsub.Dial(ctx, s.RedisAddr, s.RedisAuth)
	if err != nil {
		return nil, fmt.Errorf("feed: init pubsub: %w", err)
	}

	addr := s.TickStoreAddr
	if addr == "" {
		addr = tickstore.DefaultAddr
	}
	ts, err := tickstore.Dial(addr)
	if err != nil {
		ps.Close()
		return nil, fmt.Errorf("feed: init tickstore: %w", err)
	}

	return &Runtime{PubSub: ps, TickStore: ts}, nil
}

// Close releases both handles.
func (r *Runtime) Close() {
	if r.PubSub != nil {
		r.PubSub.Close()
	}
	if r.TickStore != nil {
		r.TickStore.Close()
	}
}

// Handler is the contract every exchange adapter implements. OnMessage runs
// on the WebSocket reader goroutine by default (the recommended, simplest
// choice from §5 that preserves intra-channel batch ordering); an adapter
// that needs lower reader latency may spawn its own per-message workers
// internally, as BitMEX does.
type Handler interface {
	OnOpen(ctx context.Context, rt *Runtime, conn *websocket.Conn) error
	OnMessage(ctx context.Context, rt *Runtime, frame []byte) error
	OnClose(ctx context.Context)
	OnTimeout(ctx context.Context)
}

// reconnectDelay separates consecutive connection attempts so a persistent
// outage doesn't spin the CPU.
const reconnectDelay = 3 * time.Second

// Run dials Settings.Endpoint, drives the handler's handshake and frame
// loop, and reconnects by re-entering itself with the same settings on any
// close or timeout — the adapter-agnostic core of the on_open/on_message/
// on_close/on_timeout contract. It blocks until ctx is done.
func Run(ctx context.Context, s Settings, h Handler, readTimeout time.Duration) {
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		if err := runOnce(ctx, s, h, readTimeout); err != nil {
			logging.TrackError(ctx, logging.CategoryTransport, s.Exchange.Name, err)
		}

		select {
		case <-ctx.Done():
			return
		case <-time.After(reconnectDelay):
		}
	}
}

func runOnce(ctx context.Context, s Settings, h Handler, readTimeout time.Duration) error {
	rt, err := InitAuxiliary(ctx, s)
	if err != nil {
		return err
	}
	defer rt.Close()

	dialer := websocket.Dialer{HandshakeTimeout: 10 * time.Second}
	conn, _, err := dialer.Dial(s.Endpoint, nil)
	if err != nil {
		return fmt.Errorf("feed: dial %s: %w", s.Endpoint, err)
	}
	defer func() {
		conn.Close()
		metrics.SetWebSocketConnected(s.Exchange.Name, false)
	}()

	if err := h.OnOpen(ctx, rt, conn); err != nil {
		return fmt.Errorf("feed: on_open: %w", err)
	}
	metrics.SetWebSocketConnected(s.Exchange.Name, true)

	for {
		if readTimeout > 0 {
			_ = conn.SetReadDeadline(time.Now().Add(readTimeout))
		}

		_, frame, err := conn.ReadMessage()
		if err != nil {
			if readTimeout > 0 && isTimeout(err) {
				h.OnTimeout(ctx)
			} else {
				h.OnClose(ctx)
			}
			return fmt.Errorf("feed: read: %w", err)
		}

		if err := h.OnMessage(ctx, rt, frame); err != nil {
			logging.TrackError(ctx, logging.CategoryDecode, s.Exchange.Name, err)
		}
	}
}

func isTimeout(err error) bool {
	type timeoutError interface{ Timeout() bool }
	t, ok := err.(timeoutError)
	return ok && t.Timeout()
}
