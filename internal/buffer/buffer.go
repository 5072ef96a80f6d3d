// Package buffer implements the in-memory holding area for pending records
// and the decision logic for size- and time-triggered flushes.
package buffer

import (
	"context"
	"sync"
	"time"

	errs "github.com/kartikbazzad/logdb/internal/errors"
	"github.com/kartikbazzad/logdb/internal/logger"
	"github.com/kartikbazzad/logdb/internal/metrics"
	"github.com/kartikbazzad/logdb/internal/record"
)

// Sink persists one non-empty batch. It owns the batch for the duration of
// the call; the buffer never touches a batch after handing it over.
type Sink func(ctx context.Context, batch []*record.Record) error

// Buffer is a capacity-bounded pending list guarded by one mutex. The lock
// covers only list mutation and the O(1) swap that starts a flush; sink I/O
// always runs outside it, so unrelated enqueues are never blocked by a flush
// in progress.
//
// The swap is the single serialization point shared by the capacity path,
// the timer path, manual flushes and close: whoever swaps owns those records
// exclusively, so a record can never appear in two batches.
type Buffer struct {
	mu       sync.Mutex
	pending  []*record.Record
	capacity int
	closed   bool

	sink Sink
	log  *logger.Logger
}

func New(capacity int, sink Sink, log *logger.Logger) *Buffer {
	return &Buffer{
		pending:  make([]*record.Record, 0, capacity),
		capacity: capacity,
		sink:     sink,
		log:      log,
	}
}

// Enqueue appends one record. When the pending list reaches capacity the
// full list is swapped out under the lock and flushed on the calling
// goroutine, which keeps per-caller FIFO order across batches.
func (b *Buffer) Enqueue(ctx context.Context, rec *record.Record) error {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return errs.ErrClosed
	}
	b.pending = append(b.pending, rec)
	var batch []*record.Record
	if len(b.pending) >= b.capacity {
		batch = b.pending
		b.pending = make([]*record.Record, 0, b.capacity)
	}
	n := len(b.pending)
	b.mu.Unlock()

	metrics.RecordsTotal.WithLabelValues(rec.LevelName).Inc()
	metrics.PendingRecords.Set(float64(n))

	if batch == nil {
		return nil
	}
	return b.flush(ctx, batch, "capacity")
}

// Drain swaps out whatever is currently pending, possibly nothing. The
// caller takes exclusive ownership of the returned batch.
func (b *Buffer) Drain() []*record.Record {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.drainLocked()
}

func (b *Buffer) drainLocked() []*record.Record {
	if len(b.pending) == 0 {
		return nil
	}
	batch := b.pending
	b.pending = make([]*record.Record, 0, b.capacity)
	return batch
}

// Closed reports whether the buffer is in its terminal state.
func (b *Buffer) Closed() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.closed
}

// Len returns the number of pending records.
func (b *Buffer) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.pending)
}

// Flush drains and persists whatever is pending. An empty drain is a no-op:
// the sink is not called and no connection is acquired. After Close, Flush
// fails with ErrClosed.
func (b *Buffer) Flush(ctx context.Context) error {
	return b.flushWith(ctx, "force")
}

func (b *Buffer) flushWith(ctx context.Context, trigger string) error {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return errs.ErrClosed
	}
	batch := b.drainLocked()
	b.mu.Unlock()

	if batch == nil {
		return nil
	}
	return b.flush(ctx, batch, trigger)
}

func (b *Buffer) flush(ctx context.Context, batch []*record.Record, trigger string) error {
	start := time.Now()
	err := b.sink(ctx, batch)
	metrics.FlushDuration.WithLabelValues(trigger).Observe(time.Since(start).Seconds())
	metrics.PendingRecords.Set(float64(b.Len()))

	if err != nil {
		// At-most-once: the batch is dropped, not requeued. Requeuing under
		// sustained store failure would grow the buffer without bound.
		metrics.FlushesTotal.WithLabelValues(trigger, "error").Inc()
		metrics.DroppedRecordsTotal.Add(float64(len(batch)))
		b.log.Error("flush (%s) failed, dropped %d records: %v", trigger, len(batch), err)
		return err
	}

	metrics.FlushesTotal.WithLabelValues(trigger, "ok").Inc()
	b.log.Debug("flushed %d records (%s)", len(batch), trigger)
	return nil
}

// Close transitions the buffer to its terminal state and flushes the
// remaining records exactly once. Later Enqueue and Close calls fail with
// ErrClosed.
func (b *Buffer) Close(ctx context.Context) error {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return errs.ErrClosed
	}
	b.closed = true
	batch := b.drainLocked()
	b.mu.Unlock()

	if batch == nil {
		return nil
	}
	return b.flush(ctx, batch, "close")
}
