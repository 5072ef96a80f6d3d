package handler

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/kartikbazzad/logdb/internal/config"
	errs "github.com/kartikbazzad/logdb/internal/errors"
	"github.com/kartikbazzad/logdb/internal/logger"
	"github.com/kartikbazzad/logdb/internal/record"
	"github.com/kartikbazzad/logdb/internal/schema"
)

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg := config.DefaultConfig()
	cfg.Path = filepath.Join(t.TempDir(), "handler_test.db")
	cfg.Capacity = 100
	cfg.FlushInterval = time.Hour // out of the way unless a test wants it
	return cfg
}

func openHandler(t *testing.T, cfg *config.Config) *Handler {
	t.Helper()
	h, err := New(cfg, logger.Nop())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(func() { h.Close() })
	return h
}

func countRows(t *testing.T, path, table string) int {
	t.Helper()
	db, err := sql.Open("sqlite", path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer db.Close()

	var n int
	if err := db.QueryRow("SELECT COUNT(*) FROM " + table).Scan(&n); err != nil {
		t.Fatalf("count %s: %v", table, err)
	}
	return n
}

func queryColumn(t *testing.T, path, query string) []string {
	t.Helper()
	db, err := sql.Open("sqlite", path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer db.Close()

	rows, err := db.Query(query)
	if err != nil {
		t.Fatalf("Query %q: %v", query, err)
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var s sql.NullString
		if err := rows.Scan(&s); err != nil {
			t.Fatalf("Scan: %v", err)
		}
		out = append(out, s.String)
	}
	return out
}

func TestNoRowsBelowCapacity(t *testing.T) {
	cfg := testConfig(t)
	h := openHandler(t, cfg)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		if err := h.Emit(ctx, record.New(record.LevelInfo, "app", fmt.Sprintf("m%d", i))); err != nil {
			t.Fatalf("Emit %d: %v", i, err)
		}
	}
	if n := countRows(t, cfg.Path, "logs"); n != 0 {
		t.Fatalf("rows before any flush: got %d, want 0", n)
	}

	if err := h.Flush(ctx); err != nil {
		t.Fatalf("Flush: %v", err)
	}
	if n := countRows(t, cfg.Path, "logs"); n != 5 {
		t.Fatalf("rows after forced flush: got %d, want 5", n)
	}
}

func TestCapacityFlushExactBatch(t *testing.T) {
	cfg := testConfig(t)
	cfg.Capacity = 3
	h := openHandler(t, cfg)
	ctx := context.Background()

	for _, msg := range []string{"A", "B"} {
		if err := h.Emit(ctx, record.New(record.LevelInfo, "app", msg)); err != nil {
			t.Fatalf("Emit %s: %v", msg, err)
		}
	}
	if n := countRows(t, cfg.Path, "logs"); n != 0 {
		t.Fatalf("rows before capacity: got %d, want 0", n)
	}

	if err := h.Emit(ctx, record.New(record.LevelInfo, "app", "C")); err != nil {
		t.Fatalf("Emit C: %v", err)
	}

	msgs := queryColumn(t, cfg.Path, "SELECT message FROM logs ORDER BY id")
	if len(msgs) != 3 {
		t.Fatalf("rows after capacity flush: got %d, want 3", len(msgs))
	}
	for i, want := range []string{"A", "B", "C"} {
		if msgs[i] != want {
			t.Fatalf("row %d: got %q, want %q", i, msgs[i], want)
		}
	}
}

func TestFloorOfNOverCapacityFlushes(t *testing.T) {
	cfg := testConfig(t)
	cfg.Capacity = 10
	h := openHandler(t, cfg)
	ctx := context.Background()

	for i := 0; i < 35; i++ {
		if err := h.Emit(ctx, record.New(record.LevelInfo, "app", fmt.Sprintf("m%d", i))); err != nil {
			t.Fatalf("Emit %d: %v", i, err)
		}
	}
	if n := countRows(t, cfg.Path, "logs"); n != 30 {
		t.Fatalf("rows after 35 emits at capacity 10: got %d, want 30", n)
	}

	if err := h.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if n := countRows(t, cfg.Path, "logs"); n != 35 {
		t.Fatalf("rows after close: got %d, want 35", n)
	}
}

func TestConcurrentEmitPersistsAll(t *testing.T) {
	const goroutines = 8
	const perGoroutine = 50

	cfg := testConfig(t)
	cfg.Capacity = 7
	h := openHandler(t, cfg)
	ctx := context.Background()

	var wg sync.WaitGroup
	for g := 0; g < goroutines; g++ {
		g := g
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < perGoroutine; i++ {
				rec := record.New(record.LevelInfo, "app", fmt.Sprintf("g%d-%d", g, i))
				rec.Extra = map[string]any{"nonce": uuid.NewString()}
				rec.ThreadID = uint64(g)
				if err := h.Emit(ctx, rec); err != nil {
					t.Errorf("Emit g%d-%d: %v", g, i, err)
					return
				}
			}
		}()
	}
	wg.Wait()

	if err := h.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	if n := countRows(t, cfg.Path, "logs"); n != goroutines*perGoroutine {
		t.Fatalf("persisted rows: got %d, want %d", n, goroutines*perGoroutine)
	}

	nonces := queryColumn(t, cfg.Path, "SELECT DISTINCT extra FROM logs")
	if len(nonces) != goroutines*perGoroutine {
		t.Fatalf("distinct nonces: got %d, want %d (duplicate persists)", len(nonces), goroutines*perGoroutine)
	}
}

func TestTimerFlushPersistsAllExactlyOnce(t *testing.T) {
	cfg := testConfig(t)
	cfg.Capacity = 1000
	cfg.FlushInterval = 50 * time.Millisecond
	h := openHandler(t, cfg)
	ctx := context.Background()

	for i := 0; i < 4; i++ {
		if err := h.Emit(ctx, record.New(record.LevelInfo, "app", fmt.Sprintf("m%d", i))); err != nil {
			t.Fatalf("Emit %d: %v", i, err)
		}
	}

	deadline := time.Now().Add(2 * time.Second)
	for countRows(t, cfg.Path, "logs") != 4 && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}
	if n := countRows(t, cfg.Path, "logs"); n != 4 {
		t.Fatalf("rows after flush interval: got %d, want 4", n)
	}

	// More ticks must not duplicate anything.
	time.Sleep(150 * time.Millisecond)
	if n := countRows(t, cfg.Path, "logs"); n != 4 {
		t.Fatalf("rows after extra ticks: got %d, want 4", n)
	}
}

func TestTwoHandlersSameTable(t *testing.T) {
	cfg := testConfig(t)
	cfg.AdditionalFields = []schema.Field{{Name: "request_id", Type: "TEXT"}}
	ctx := context.Background()

	h1 := openHandler(t, cfg)
	if err := h1.Emit(ctx, record.New(record.LevelInfo, "one", "from h1")); err != nil {
		t.Fatalf("Emit h1: %v", err)
	}
	if err := h1.Close(); err != nil {
		t.Fatalf("Close h1: %v", err)
	}

	// Same file, same table: construction must be idempotent.
	h2 := openHandler(t, cfg)
	if err := h2.Emit(ctx, record.New(record.LevelInfo, "two", "from h2")); err != nil {
		t.Fatalf("Emit h2: %v", err)
	}
	if err := h2.Close(); err != nil {
		t.Fatalf("Close h2: %v", err)
	}

	if n := countRows(t, cfg.Path, "logs"); n != 2 {
		t.Fatalf("rows from both handlers: got %d, want 2", n)
	}
}

func TestTwoHandlersDistinctTablesOneFile(t *testing.T) {
	cfg1 := testConfig(t)
	cfg2 := *cfg1
	cfg2.TableName = "audit_logs"
	ctx := context.Background()

	h1 := openHandler(t, cfg1)
	h2 := openHandler(t, &cfg2)

	if err := h1.Emit(ctx, record.New(record.LevelInfo, "app", "to logs")); err != nil {
		t.Fatalf("Emit h1: %v", err)
	}
	if err := h2.Emit(ctx, record.New(record.LevelInfo, "app", "to audit")); err != nil {
		t.Fatalf("Emit h2: %v", err)
	}
	if err := h1.Close(); err != nil {
		t.Fatalf("Close h1: %v", err)
	}
	if err := h2.Close(); err != nil {
		t.Fatalf("Close h2: %v", err)
	}

	if n := countRows(t, cfg1.Path, "logs"); n != 1 {
		t.Fatalf("logs rows: got %d, want 1", n)
	}
	if n := countRows(t, cfg1.Path, "audit_logs"); n != 1 {
		t.Fatalf("audit_logs rows: got %d, want 1", n)
	}
}

func TestAdditionalFieldRoundTrip(t *testing.T) {
	cfg := testConfig(t)
	cfg.AdditionalFields = []schema.Field{{Name: "user_id", Type: "TEXT"}}
	h := openHandler(t, cfg)
	ctx := context.Background()

	rec := record.New(record.LevelInfo, "app", "login")
	rec.Fields = map[string]any{"user_id": "abc"}
	if err := h.Emit(ctx, rec); err != nil {
		t.Fatalf("Emit: %v", err)
	}
	if err := h.Flush(ctx); err != nil {
		t.Fatalf("Flush: %v", err)
	}

	vals := queryColumn(t, cfg.Path, "SELECT user_id FROM logs")
	if len(vals) != 1 || vals[0] != "abc" {
		t.Fatalf("user_id round trip: got %v, want [abc]", vals)
	}
}

func TestUnserializableExtraStillPersists(t *testing.T) {
	cfg := testConfig(t)
	h := openHandler(t, cfg)
	ctx := context.Background()

	rec := record.New(record.LevelInfo, "app", "odd payload")
	rec.Extra = map[string]any{"conn": make(chan int), "ok": "fine"}
	if err := h.Emit(ctx, rec); err != nil {
		t.Fatalf("Emit: %v", err)
	}
	if err := h.Flush(ctx); err != nil {
		t.Fatalf("Flush: %v", err)
	}

	extras := queryColumn(t, cfg.Path, "SELECT extra FROM logs")
	if len(extras) != 1 {
		t.Fatalf("row count: got %d, want 1", len(extras))
	}
	if !strings.Contains(extras[0], `"ok":"fine"`) || !strings.Contains(extras[0], "conn") {
		t.Fatalf("extra fallback: got %q", extras[0])
	}
}

func TestEmitAfterClose(t *testing.T) {
	cfg := testConfig(t)
	h := openHandler(t, cfg)

	if err := h.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if !h.Closed() {
		t.Fatal("Closed: got false after Close")
	}

	err := h.Emit(context.Background(), record.New(record.LevelInfo, "app", "late"))
	if !errors.Is(err, errs.ErrClosed) {
		t.Fatalf("Emit after Close: got %v, want ErrClosed", err)
	}
	if err := h.Flush(context.Background()); !errors.Is(err, errs.ErrClosed) {
		t.Fatalf("Flush after Close: got %v, want ErrClosed", err)
	}
}

func TestCloseIdempotent(t *testing.T) {
	cfg := testConfig(t)
	h := openHandler(t, cfg)

	if err := h.Close(); err != nil {
		t.Fatalf("first Close: %v", err)
	}
	if err := h.Close(); err != nil {
		t.Fatalf("second Close: %v", err)
	}
}

func TestConstructionFailsOnReservedCollision(t *testing.T) {
	cfg := testConfig(t)
	cfg.AdditionalFields = []schema.Field{{Name: "message", Type: "TEXT"}}

	_, err := New(cfg, logger.Nop())
	if !errors.Is(err, errs.ErrReservedColumn) {
		t.Fatalf("New with reserved field: got %v, want ErrReservedColumn", err)
	}
}

func TestConstructionValidatesCapacity(t *testing.T) {
	cfg := testConfig(t)
	cfg.Capacity = 0

	_, err := New(cfg, logger.Nop())
	if !errors.Is(err, errs.ErrInvalidCapacity) {
		t.Fatalf("New with zero capacity: got %v, want ErrInvalidCapacity", err)
	}
}
