// Package store persists consolidated records to SQLite, as an
// alternative to the CSV sink when the result should be queryable
// instead of a flat file.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/hashicorp/go-hclog"
	"github.com/logweave/logweave/pkg/iterator"
	"github.com/logweave/logweave/pkg/records"
	_ "modernc.org/sqlite"
)

var (
	tablePattern = regexp.MustCompile(`^[\w\d]+$`)
	ErrBadTable  = errors.New("invalid table name")
)

// RecordStore writes ordered record streams into a SQLite table whose
// columns mirror a profile's output columns.
type RecordStore struct {
	db  *sql.DB
	log hclog.Logger
}

func New(log hclog.Logger, filename string) (*RecordStore, error) {
	db, err := sql.Open("sqlite", filename)
	if err != nil {
		return nil, err
	}
	return &RecordStore{
		db:  db,
		log: log.Named("record-store"),
	}, nil
}

func (s *RecordStore) Close() error {
	return s.db.Close()
}

// Sink drains iter into table, one row per record in stream order, with
// one TEXT column per name in columns. Absent record columns are stored
// as NULL so they stay distinguishable from empty values. The table is
// created if needed and appended to otherwise.
func (s *RecordStore) Sink(ctx context.Context, iter iterator.Iterator, table string, columns []string) error {
	if !tablePattern.MatchString(table) {
		iterator.Drain(iter)
		return fmt.Errorf("%w: %s", ErrBadTable, table)
	}
	log := s.log.With("table", table)

	conn, err := s.db.Conn(ctx)
	if err != nil {
		iterator.Drain(iter)
		return err
	}
	defer func() {
		_ = conn.Close()
		log.Debug("DB connection closed")
	}()

	log.Debug("Ensuring the record table is present")
	if err := ensureTable(ctx, conn, table, columns); err != nil {
		iterator.Drain(iter)
		return err
	}

	insert := insertQuery(table, columns)
	stmt, err := conn.PrepareContext(ctx, insert)
	if err != nil {
		iterator.Drain(iter)
		return err
	}
	defer func() {
		_ = stmt.Close()
	}()

	err = iter.Iterate(func(rec records.Record, _ int) error {
		if err := ctx.Err(); err != nil {
			return err
		}
		args := make([]any, len(columns))
		for i, col := range columns {
			if v, ok := rec.Field(col); ok {
				args[i] = v
			}
		}
		_, err := stmt.ExecContext(ctx, args...)
		return err
	})
	if err != nil {
		log.Error("Error sinking records, draining stream", "error", err)
		iterator.Drain(iter)
		return err
	}
	return nil
}

// Records streams a table's rows back in insertion order. NULL columns
// are absent from the resulting records, matching what Sink stored.
func (s *RecordStore) Records(ctx context.Context, table string, columns []string) (iterator.Iterator, error) {
	if !tablePattern.MatchString(table) {
		return nil, fmt.Errorf("%w: %s", ErrBadTable, table)
	}
	quoted := make([]string, len(columns))
	for i, c := range columns {
		quoted[i] = quoteIdent(c)
	}
	rows, err := s.db.QueryContext(ctx, fmt.Sprintf(
		"select %s from %s order by rowid", strings.Join(quoted, ","), table))
	if err != nil {
		return nil, err
	}
	var next int
	return iterator.Func(func() (records.Record, int, error) {
		if !rows.Next() {
			err := rows.Err()
			_ = rows.Close()
			if err != nil {
				return records.Record{}, -1, err
			}
			return iterator.End()
		}
		vals := make([]sql.NullString, len(columns))
		scan := make([]any, len(columns))
		for i := range vals {
			scan[i] = &vals[i]
		}
		if err := rows.Scan(scan...); err != nil {
			_ = rows.Close()
			return records.Record{}, -1, err
		}
		rec := records.New()
		for i, col := range columns {
			if vals[i].Valid {
				rec.SetField(col, vals[i].String)
			}
		}
		cur := next
		next += 1
		return rec, cur, nil
	}), nil
}

func ensureTable(ctx context.Context, conn *sql.Conn, table string, columns []string) error {
	cols := make([]string, len(columns))
	for i, c := range columns {
		cols[i] = quoteIdent(c) + " text null"
	}
	_, err := conn.ExecContext(ctx, fmt.Sprintf(
		"create table if not exists %s (%s)", table, strings.Join(cols, ", ")))
	return err
}

func insertQuery(table string, columns []string) string {
	var into strings.Builder
	var params strings.Builder
	for i, c := range columns {
		if i > 0 {
			into.WriteString(",")
			params.WriteString(",")
		}
		into.WriteString(quoteIdent(c))
		params.WriteString("?")
	}
	return fmt.Sprintf("insert into %s (%s) values (%s)", table, into.String(), params.String())
}

func quoteIdent(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}
