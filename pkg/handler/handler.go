// Package handler exposes the buffered SQLite log sink to the owning
// logging framework: Emit, Flush, Close, plus a log/slog adapter.
package handler

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"

	"github.com/kartikbazzad/logdb/internal/buffer"
	"github.com/kartikbazzad/logdb/internal/config"
	"github.com/kartikbazzad/logdb/internal/logger"
	"github.com/kartikbazzad/logdb/internal/record"
	"github.com/kartikbazzad/logdb/internal/schema"
	"github.com/kartikbazzad/logdb/internal/store"
	"github.com/kartikbazzad/logdb/internal/writer"
)

// Handler accumulates records in memory and persists them in batches: a
// flush runs when the buffer reaches capacity, when the flush interval
// elapses, on Flush, and once more on Close. Construction materializes the
// schema before any record is accepted.
//
// Emit is safe for concurrent use from any number of goroutines.
type Handler struct {
	id  string
	cfg *config.Config
	log *logger.Logger

	provider *store.Provider
	schema   *schema.Schema
	writer   *writer.Writer
	buf      *buffer.Buffer
	flusher  *buffer.Flusher

	closeOnce sync.Once
	closeErr  error
}

// New validates cfg, ensures the table and indexes exist, and starts the
// background flusher. Schema problems (reserved-column collision, bad
// identifiers, DDL failure) fail here, before any enqueue is possible.
func New(cfg *config.Config, log *logger.Logger) (*Handler, error) {
	if log == nil {
		log = logger.Default()
	}
	if cfg == nil {
		cfg = config.DefaultConfig()
	}
	if cfg.TableName == "" {
		cfg.TableName = "logs"
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	log.SetLevel(logger.ParseLevel(cfg.LogLevel))

	sch, err := schema.New(cfg.TableName, cfg.AdditionalFields)
	if err != nil {
		return nil, err
	}

	provider, err := store.Open(cfg.Path, store.Options{BusyTimeout: cfg.BusyTimeout}, log)
	if err != nil {
		return nil, err
	}

	ctx := context.Background()
	conn, err := provider.Conn(ctx)
	if err != nil {
		provider.Close()
		return nil, err
	}
	if err := sch.Ensure(ctx, conn); err != nil {
		conn.Close()
		provider.Close()
		return nil, fmt.Errorf("ensure schema: %w", err)
	}
	conn.Close()

	h := &Handler{
		id:       uuid.NewString(),
		cfg:      cfg,
		log:      log,
		provider: provider,
		schema:   sch,
	}
	h.writer = writer.New(provider, sch, log)
	h.buf = buffer.New(cfg.Capacity, h.writer.Flush, log)
	h.flusher = buffer.NewFlusher(h.buf, cfg.FlushInterval)
	h.flusher.Start()

	log.Debug("handler %s active: table=%s capacity=%d interval=%s",
		h.id, cfg.TableName, cfg.Capacity, cfg.FlushInterval)

	return h, nil
}

// ID returns the handler instance id, used to tell handlers apart in
// diagnostics when several share one process.
func (h *Handler) ID() string {
	return h.id
}

// Emit buffers one record. When the enqueue fills the buffer, the resulting
// capacity flush runs synchronously on the calling goroutine and its error
// is returned here.
func (h *Handler) Emit(ctx context.Context, rec *record.Record) error {
	return h.buf.Enqueue(ctx, rec)
}

// Flush forces a drain and write of everything currently buffered. After
// Close it fails with ErrClosed.
func (h *Handler) Flush(ctx context.Context) error {
	return h.buf.Flush(ctx)
}

// Close performs the scoped shutdown: stop the timer first so no new
// time-triggered drain can start, flush the remainder exactly once, then
// release every connection. Emit after Close fails with ErrClosed. Calling
// Close again returns the first close's result.
func (h *Handler) Close() error {
	h.closeOnce.Do(func() {
		h.flusher.Stop()

		err := h.buf.Close(context.Background())
		if closeErr := h.provider.Close(); err == nil {
			err = closeErr
		}
		h.closeErr = err
		h.log.Debug("handler %s closed", h.id)
	})
	return h.closeErr
}

// Closed reports whether Close has completed.
func (h *Handler) Closed() bool {
	return h.buf.Closed()
}
