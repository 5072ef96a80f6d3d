// Package schema creates and verifies the target log table, including
// caller-declared additional columns.
package schema

import (
	"context"
	"database/sql"
	"fmt"
	"regexp"
	"strings"

	errs "github.com/kartikbazzad/logdb/internal/errors"
)

// Field declares one additional column beyond the reserved set.
type Field struct {
	Name string
	Type string // SQLite column type, defaults to TEXT when empty
}

// Reserved columns, in table order. id is storage-owned and excluded from
// inserts.
var reserved = []struct {
	name string
	typ  string
}{
	{"id", "INTEGER PRIMARY KEY AUTOINCREMENT"},
	{"created_at", "TEXT NOT NULL"},
	{"level", "INTEGER NOT NULL"},
	{"level_name", "TEXT NOT NULL"},
	{"logger_name", "TEXT NOT NULL"},
	{"message", "TEXT NOT NULL"},
	{"filename", "TEXT"},
	{"function_name", "TEXT"},
	{"module", "TEXT"},
	{"line_number", "INTEGER"},
	{"process_id", "INTEGER"},
	{"process_name", "TEXT"},
	{"thread_id", "INTEGER"},
	{"thread_name", "TEXT"},
	{"exception_info", "TEXT"},
	{"extra", "TEXT"},
}

var identRe = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// column types come from caller config too; allow bare type names with an
// optional size suffix like VARCHAR(64)
var typeRe = regexp.MustCompile(`^[A-Za-z]+(\([0-9]+\))?$`)

// Schema is the immutable table layout for one handler: the reserved columns
// plus the declared additional fields, in declaration order.
type Schema struct {
	table  string
	extra  []Field
	insert string
}

// New validates the table name and additional fields and builds the schema.
// A field name that collides with a reserved column, a duplicate name, or a
// name that is not a plain SQL identifier fails construction.
func New(table string, extra []Field) (*Schema, error) {
	if !identRe.MatchString(table) {
		return nil, fmt.Errorf("table %q: %w", table, errs.ErrInvalidIdentifier)
	}

	seen := make(map[string]bool, len(extra))
	fields := make([]Field, 0, len(extra))
	for _, f := range extra {
		if !identRe.MatchString(f.Name) {
			return nil, fmt.Errorf("field %q: %w", f.Name, errs.ErrInvalidIdentifier)
		}
		if IsReserved(f.Name) {
			return nil, fmt.Errorf("field %q: %w", f.Name, errs.ErrReservedColumn)
		}
		if seen[f.Name] {
			return nil, fmt.Errorf("field %q: %w", f.Name, errs.ErrDuplicateField)
		}
		seen[f.Name] = true

		typ := strings.TrimSpace(f.Type)
		if typ == "" {
			typ = "TEXT"
		}
		if !typeRe.MatchString(typ) {
			return nil, fmt.Errorf("field %q type %q: %w", f.Name, f.Type, errs.ErrInvalidIdentifier)
		}
		fields = append(fields, Field{Name: f.Name, Type: typ})
	}

	s := &Schema{table: table, extra: fields}
	s.insert = buildInsertSQL(s.table, s.InsertColumns())
	return s, nil
}

// IsReserved reports whether name is one of the reserved log columns.
func IsReserved(name string) bool {
	for _, c := range reserved {
		if c.name == name {
			return true
		}
	}
	return false
}

// Table returns the target table name.
func (s *Schema) Table() string {
	return s.table
}

// AdditionalFields returns the declared additional fields in order.
func (s *Schema) AdditionalFields() []Field {
	return s.extra
}

// InsertColumns returns the insert column order: every reserved column except
// the storage-owned id, then the additional fields in declaration order.
func (s *Schema) InsertColumns() []string {
	cols := make([]string, 0, len(reserved)-1+len(s.extra))
	for _, c := range reserved[1:] {
		cols = append(cols, c.name)
	}
	for _, f := range s.extra {
		cols = append(cols, f.Name)
	}
	return cols
}

// InsertSQL returns the prepared-statement text for one row.
func (s *Schema) InsertSQL() string {
	return s.insert
}

func buildInsertSQL(table string, cols []string) string {
	placeholders := strings.TrimSuffix(strings.Repeat("?, ", len(cols)), ", ")
	return fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)",
		table, strings.Join(cols, ", "), placeholders)
}

// Ensure creates the table and its indexes if absent. All DDL uses IF NOT
// EXISTS, so racing callers and repeat construction against the same table
// are both safe.
func (s *Schema) Ensure(ctx context.Context, conn *sql.Conn) error {
	defs := make([]string, 0, len(reserved)+len(s.extra))
	for _, c := range reserved {
		defs = append(defs, c.name+" "+c.typ)
	}
	for _, f := range s.extra {
		defs = append(defs, f.Name+" "+f.Type)
	}

	create := fmt.Sprintf("CREATE TABLE IF NOT EXISTS %s (\n\t%s\n)",
		s.table, strings.Join(defs, ",\n\t"))
	if _, err := conn.ExecContext(ctx, create); err != nil {
		return fmt.Errorf("create table %s: %w", s.table, err)
	}

	// Secondary indexes on the selectively queried columns.
	for _, col := range []string{"created_at", "level", "logger_name"} {
		idx := fmt.Sprintf("CREATE INDEX IF NOT EXISTS idx_%s_%s ON %s (%s)",
			s.table, col, s.table, col)
		if _, err := conn.ExecContext(ctx, idx); err != nil {
			return fmt.Errorf("create index on %s.%s: %w", s.table, col, err)
		}
	}

	return nil
}
