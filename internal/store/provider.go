// Package store supplies SQLite connections tuned for high-frequency batch
// inserts.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"sync"
	"time"

	_ "modernc.org/sqlite"

	errs "github.com/kartikbazzad/logdb/internal/errors"
	"github.com/kartikbazzad/logdb/internal/logger"
)

// Connection tuning applied once per physical connection, on open:
// WAL turns the batch insert into append-mostly sequential I/O, relaxed
// synchronous skips the full fsync per commit, and the enlarged page cache
// and mmap window keep hot pages out of the read path.
const (
	cacheSizeKB    = 10000     // ~10MB page cache (negative cache_size is KB)
	mmapSizeBytes  = 268435456 // 256MB
	defaultBusyMS  = 5000
	defaultMaxIdle = 4
)

// Options tunes the provider. Zero values take the defaults above.
type Options struct {
	BusyTimeout time.Duration
	MaxIdle     int
}

// Provider hands out dedicated connections from a lazily grown pool, one per
// in-flight flush. Per-connection setup rides on the DSN so every physical
// connection is configured exactly once, no matter which caller first opens it.
type Provider struct {
	db  *sql.DB
	log *logger.Logger

	mu     sync.Mutex
	closed bool
}

// Open opens the database file and verifies the connection setup by pinning
// and releasing one connection. Pragma failures surface here rather than on
// the first flush.
func Open(path string, opts Options, log *logger.Logger) (*Provider, error) {
	if path == "" {
		return nil, errs.ErrMissingPath
	}

	busy := defaultBusyMS
	if opts.BusyTimeout > 0 {
		busy = int(opts.BusyTimeout / time.Millisecond)
	}
	maxIdle := defaultMaxIdle
	if opts.MaxIdle > 0 {
		maxIdle = opts.MaxIdle
	}

	dsn := fmt.Sprintf("%s?_pragma=journal_mode(wal)&_pragma=synchronous(normal)"+
		"&_pragma=cache_size(-%d)&_pragma=mmap_size(%d)&_pragma=busy_timeout(%d)",
		path, cacheSizeKB, mmapSizeBytes, busy)

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	db.SetMaxIdleConns(maxIdle)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("setup connection for %s: %w", path, err)
	}

	log.Debug("store open: %s (wal, synchronous=normal, cache=%dKB, mmap=%dMB)",
		path, cacheSizeKB, mmapSizeBytes/(1024*1024))

	return &Provider{db: db, log: log}, nil
}

// Conn pins one connection to the caller for the duration of a flush. The
// caller must release it with conn.Close. After the provider is closed this
// fails with ErrClosed.
func (p *Provider) Conn(ctx context.Context) (*sql.Conn, error) {
	p.mu.Lock()
	closed := p.closed
	p.mu.Unlock()
	if closed {
		return nil, errs.ErrClosed
	}
	return p.db.Conn(ctx)
}

// Close releases every pooled connection. Safe to call twice.
func (p *Provider) Close() error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	p.closed = true
	p.mu.Unlock()

	return p.db.Close()
}
