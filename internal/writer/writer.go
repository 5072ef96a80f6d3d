// Package writer translates a batch of buffered records into one atomic
// multi-row insert.
package writer

import (
	"context"
	"fmt"

	"github.com/kartikbazzad/logdb/internal/logger"
	"github.com/kartikbazzad/logdb/internal/record"
	"github.com/kartikbazzad/logdb/internal/schema"
	"github.com/kartikbazzad/logdb/internal/store"
)

// Writer owns a batch for the duration of one flush call. A store-level
// failure rolls the whole transaction back: no partial row visibility, and
// the error is surfaced to whoever triggered the flush. The writer never
// retries internally.
type Writer struct {
	provider *store.Provider
	schema   *schema.Schema
	log      *logger.Logger
}

func New(provider *store.Provider, sch *schema.Schema, log *logger.Logger) *Writer {
	return &Writer{provider: provider, schema: sch, log: log}
}

// Flush inserts the batch in one transaction, in batch order. An empty batch
// is a no-op and acquires no connection.
func (w *Writer) Flush(ctx context.Context, batch []*record.Record) error {
	if len(batch) == 0 {
		return nil
	}

	conn, err := w.provider.Conn(ctx)
	if err != nil {
		return fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Close()

	tx, err := conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin batch insert: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx, w.schema.InsertSQL())
	if err != nil {
		tx.Rollback()
		return fmt.Errorf("prepare insert into %s: %w", w.schema.Table(), err)
	}

	for _, rec := range batch {
		if _, err := stmt.ExecContext(ctx, w.rowArgs(rec)...); err != nil {
			stmt.Close()
			tx.Rollback()
			return fmt.Errorf("insert into %s: %w", w.schema.Table(), err)
		}
	}
	stmt.Close()

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit batch of %d: %w", len(batch), err)
	}
	return nil
}

// rowArgs produces values in schema.InsertColumns order: the reserved
// columns, then one value per declared additional field, NULL where the
// record carries none.
func (w *Writer) rowArgs(rec *record.Record) []any {
	args := []any{
		rec.CreatedAtString(),
		rec.Level,
		rec.LevelName,
		rec.LoggerName,
		rec.Message,
		nullable(rec.Filename),
		nullable(rec.FunctionName),
		nullable(rec.Module),
		nullableInt(int64(rec.LineNumber)),
		nullableInt(int64(rec.ProcessID)),
		nullable(rec.ProcessName),
		nullableInt(int64(rec.ThreadID)),
		nullable(rec.ThreadName),
		rec.ExcJSON(),
		rec.ExtraJSON(),
	}
	for _, f := range w.schema.AdditionalFields() {
		args = append(args, rec.FieldValue(f.Name))
	}
	return args
}

func nullable(s string) any {
	if s == "" {
		return nil
	}
	return s
}

// nullableInt treats zero as "not captured": line 0, pid 0 and thread id 0
// never occur in practice, so zero means the source context was unavailable.
func nullableInt(n int64) any {
	if n == 0 {
		return nil
	}
	return n
}
