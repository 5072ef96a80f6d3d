package main

import (
	"context"
	"database/sql"
	"flag"
	"fmt"
	"net/http"
	"os"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/panjf2000/ants/v2"
	_ "modernc.org/sqlite"

	"github.com/kartikbazzad/logdb/internal/config"
	"github.com/kartikbazzad/logdb/internal/logger"
	"github.com/kartikbazzad/logdb/internal/metrics"
	"github.com/kartikbazzad/logdb/internal/record"
	"github.com/kartikbazzad/logdb/pkg/handler"
)

// logdb ingests synthetic log records into a SQLite file through the
// buffered handler. Useful for sizing capacity and flush interval against a
// real disk.
func main() {
	dbPath := flag.String("db", "./logs.db", "Path to the SQLite database file")
	table := flag.String("table", "logs", "Target table for inserts")
	capacity := flag.Int("capacity", 1000, "Record count triggering an immediate flush")
	interval := flag.Duration("flush-interval", 5*time.Second, "Time between background flushes")
	workers := flag.Int("workers", 4, "Concurrent emitter goroutines")
	records := flag.Int("records", 10000, "Records to emit per worker")
	metricsAddr := flag.String("metrics", "", "Address for the /metrics endpoint (empty = disabled)")
	debugMode := flag.Bool("debug", false, "Enable debug logging")
	flag.Parse()

	cfg := config.DefaultConfig()
	cfg.Path = *dbPath
	cfg.TableName = *table
	cfg.Capacity = *capacity
	cfg.FlushInterval = *interval
	cfg.AdditionalFields = nil
	if *debugMode {
		cfg.LogLevel = "debug"
	}
	if err := config.LoadEnv("LOGDB_", cfg); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load environment config: %v\n", err)
		os.Exit(1)
	}

	logr := logger.Default()
	logr.Info("Starting logdb ingest run...")
	logr.Info("Database: %s, table: %s", cfg.Path, cfg.TableName)
	logr.Info("Capacity: %d, flush interval: %s", cfg.Capacity, cfg.FlushInterval)

	h, err := handler.New(cfg, logr)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to open handler: %v\n", err)
		os.Exit(1)
	}

	if *metricsAddr != "" {
		go func() {
			mux := http.NewServeMux()
			mux.Handle("/metrics", metrics.Handler())
			if err := http.ListenAndServe(*metricsAddr, mux); err != nil {
				logr.Warn("Metrics endpoint stopped: %v", err)
			}
		}()
		logr.Info("Metrics on http://%s/metrics", *metricsAddr)
	}

	runID := uuid.NewString()
	start := time.Now()

	pool, err := ants.NewPool(*workers, ants.WithPanicHandler(func(v any) {
		logr.Error("Emitter panic: %v", v)
	}))
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to create worker pool: %v\n", err)
		os.Exit(1)
	}

	var wg sync.WaitGroup
	for w := 0; w < *workers; w++ {
		w := w
		wg.Add(1)
		if err := pool.Submit(func() {
			defer wg.Done()
			emit(h, runID, w, *records, logr)
		}); err != nil {
			wg.Done()
			logr.Error("Submit worker %d: %v", w, err)
		}
	}
	wg.Wait()
	_ = pool.ReleaseTimeout(3 * time.Second)

	if err := h.Close(); err != nil {
		logr.Error("Close: %v", err)
	}

	elapsed := time.Since(start)
	total := *workers * *records
	logr.Info("Emitted %d records in %s (%.0f records/sec)",
		total, elapsed.Round(time.Millisecond), float64(total)/elapsed.Seconds())

	if n, err := countRows(cfg.Path, cfg.TableName); err == nil {
		logr.Info("Rows persisted: %d", n)
	}
}

func emit(h *handler.Handler, runID string, worker, n int, logr *logger.Logger) {
	ctx := context.Background()
	for i := 0; i < n; i++ {
		rec := record.New(record.LevelInfo, "logdb.bench", fmt.Sprintf("record %d from worker %d", i, worker))
		rec.ProcessID = os.Getpid()
		rec.ThreadID = uint64(worker)
		rec.ThreadName = fmt.Sprintf("worker-%d", worker)
		rec.Extra = map[string]any{
			"run_id": runID,
			"seq":    i,
			"nonce":  uuid.NewString(),
		}
		if err := h.Emit(ctx, rec); err != nil {
			logr.Error("Emit (worker %d): %v", worker, err)
			return
		}
	}
}

func countRows(path, table string) (int64, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return 0, err
	}
	defer db.Close()
	var n int64
	err = db.QueryRow("SELECT COUNT(*) FROM " + table).Scan(&n)
	return n, err
}
