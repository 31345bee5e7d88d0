// Package persistence implements the persistence worker: it drains delta
// batches from every subscribed exchange channel continuously, inserts each
// delta into the tick store, and on a fixed period flushes and hands off to
// the archive worker.
package persistence

import (
	"context"
	"time"

	"github.com/epic1st/dtfeed/archive"
	"github.com/epic1st/dtfeed/logging"
	"github.com/epic1st/dtfeed/pubsub"
	"github.com/epic1st/dtfeed/tickstore"
)

// Worker owns one tick-store connection and one pub/sub subscriber.
type Worker struct {
	ts     *tickstore.Client
	sub    *pubsub.Subscriber
	period time.Duration

	archiver   *archive.Worker
	archiveCfg archive.Config
}

// New constructs a persistence worker. sub should already be subscribed to
// every supported exchange channel. archiver may be nil, in which case the
// periodic cycle only flushes and skips the archive hand-off (useful for
// tests that don't exercise object storage).
func New(ts *tickstore.Client, sub *pubsub.Subscriber, period time.Duration, archiver *archive.Worker, archiveCfg archive.Config) *Worker {
	return &Worker{ts: ts, sub: sub, period: period, archiver: archiver, archiveCfg: archiveCfg}
}

// Run drains the subscription continuously — never sleep-then-read-once,
// which silently drops messages received between reads (§9) — and on every
// period tick issues FLUSH ALL followed by one archive cycle.
func (w *Worker) Run(ctx context.Context) {
	ticker := time.NewTicker(w.period)
	defer ticker.Stop()

	batches := w.sub.Channel(ctx)

	for {
		select {
		case <-ctx.Done():
			return

		case batch, ok := <-batches:
			if !ok {
				return
			}
			w.insertBatch(ctx, batch)

		case <-ticker.C:
			w.flushAndArchive(ctx)
		}
	}
}

func (w *Worker) insertBatch(ctx context.Context, batch pubsub.Batch) {
	for _, d := range batch.Deltas {
		db := tickstore.DatabaseName(batch.Channel, d.Symbol)
		if err := w.ts.Insert(d, db); err != nil {
			logging.TrackError(ctx, logging.CategoryPersistence, batch.Channel, err)
		}
	}
}

func (w *Worker) flushAndArchive(ctx context.Context) {
	if err := w.ts.FlushAll(); err != nil {
		logging.TrackError(ctx, logging.CategoryPersistence, "tickstore", err)
		return
	}

	if w.archiver == nil {
		return
	}

	name := archive.NewArchiveName(time.Now())
	if err := w.archiver.Run(ctx, name, w.archiveCfg); err != nil {
		logging.TrackError(ctx, logging.CategoryPersistence, "archive", err)
	}
}
