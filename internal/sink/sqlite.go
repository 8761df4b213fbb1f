package sink

import (
	"context"
	"database/sql"
	"encoding/json"
	"regexp"
	"time"

	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/sells-group/geoharvest/internal/harvest"
)

var tableNameRe = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*(\.[A-Za-z_][A-Za-z0-9_]*)?$`)

func checkTable(table string) error {
	if !tableNameRe.MatchString(table) {
		return eris.Errorf("sink: invalid table name %q", table)
	}
	return nil
}

// SQLite stores snapshots as JSON rows in a single database file. Snapshots
// are keyed by (prefix, tag), so runs with different prefixes share the
// tables without touching each other. Each flush replaces the rows of its
// tag and records the tag in a flush catalog table, both in one transaction.
type SQLite struct {
	db      *sql.DB
	table   string
	flushes string
	prefix  string
}

// NewSQLite opens the database at dsn, configures WAL mode and creates the
// tables. prefix scopes every read and write.
func NewSQLite(ctx context.Context, dsn, table, prefix string) (*SQLite, error) {
	if err := checkTable(table); err != nil {
		return nil, err
	}
	if prefix == "" {
		return nil, eris.New("sqlite: snapshot prefix is required")
	}
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=FULL",
	} {
		if _, err := db.ExecContext(ctx, pragma); err != nil {
			db.Close() //nolint:errcheck
			return nil, eris.Wrapf(err, "sqlite: exec %s", pragma)
		}
	}

	s := &SQLite{db: db, table: table, flushes: table + "_flushes", prefix: prefix}
	if err := s.migrate(ctx); err != nil {
		db.Close() //nolint:errcheck
		return nil, err
	}
	return s, nil
}

func (s *SQLite) migrate(ctx context.Context) error {
	ddl := `
CREATE TABLE IF NOT EXISTS ` + s.table + ` (
	prefix TEXT    NOT NULL,
	tag    TEXT    NOT NULL,
	pos    INTEGER NOT NULL,
	data   TEXT    NOT NULL,
	PRIMARY KEY (prefix, tag, pos)
);

CREATE TABLE IF NOT EXISTS ` + s.flushes + ` (
	prefix     TEXT    NOT NULL,
	tag        TEXT    NOT NULL,
	end_index  INTEGER NOT NULL,
	kind       TEXT    NOT NULL,
	row_count  INTEGER NOT NULL,
	flushed_at TEXT    NOT NULL,
	PRIMARY KEY (prefix, tag)
);`
	_, err := s.db.ExecContext(ctx, ddl)
	return eris.Wrap(err, "sqlite: migrate")
}

// Flush implements harvest.RowSink.
func (s *SQLite) Flush(ctx context.Context, rows []harvest.Row, tag harvest.Tag) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return eris.Wrap(err, "sqlite: begin flush")
	}
	defer tx.Rollback() //nolint:errcheck

	if _, err := tx.ExecContext(ctx, `DELETE FROM `+s.table+` WHERE prefix = ? AND tag = ?`, s.prefix, tag.String()); err != nil {
		return eris.Wrapf(err, "sqlite: clear %s", tag)
	}

	stmt, err := tx.PrepareContext(ctx, `INSERT INTO `+s.table+` (prefix, tag, pos, data) VALUES (?, ?, ?, ?)`)
	if err != nil {
		return eris.Wrap(err, "sqlite: prepare insert")
	}
	defer stmt.Close() //nolint:errcheck

	for i, row := range rows {
		data, err := json.Marshal(row)
		if err != nil {
			return eris.Wrapf(err, "sqlite: encode row %d of %s", i, tag)
		}
		if _, err := stmt.ExecContext(ctx, s.prefix, tag.String(), i, string(data)); err != nil {
			return eris.Wrapf(err, "sqlite: insert row %d of %s", i, tag)
		}
	}

	_, err = tx.ExecContext(ctx,
		`INSERT OR REPLACE INTO `+s.flushes+` (prefix, tag, end_index, kind, row_count, flushed_at) VALUES (?, ?, ?, ?, ?, ?)`,
		s.prefix, tag.String(), tag.End, tag.Kind.String(), len(rows), time.Now().UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: record flush %s", tag)
	}
	return eris.Wrapf(tx.Commit(), "sqlite: commit flush %s", tag)
}

// Snapshots implements Catalog.
func (s *SQLite) Snapshots(ctx context.Context) ([]Snapshot, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT tag, row_count, flushed_at FROM `+s.flushes+` WHERE prefix = ?`, s.prefix)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list flushes")
	}
	defer rows.Close() //nolint:errcheck

	var out []Snapshot
	for rows.Next() {
		var tagStr, flushedAt string
		var n int
		if err := rows.Scan(&tagStr, &n, &flushedAt); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan flush")
		}
		tag, err := harvest.ParseTag(tagStr)
		if err != nil {
			return nil, eris.Wrap(err, "sqlite: flush catalog")
		}
		ts, _ := time.Parse(time.RFC3339Nano, flushedAt)
		out = append(out, Snapshot{Tag: tag, Location: s.table, Rows: n, FlushedAt: ts})
	}
	if err := rows.Err(); err != nil {
		return nil, eris.Wrap(err, "sqlite: list flushes")
	}
	SortSnapshots(out)
	return out, nil
}

// Rows returns the rows stored under tag in input order.
func (s *SQLite) Rows(ctx context.Context, tag harvest.Tag) ([]harvest.Row, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT data FROM `+s.table+` WHERE prefix = ? AND tag = ? ORDER BY pos`, s.prefix, tag.String())
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: rows %s", tag)
	}
	defer rows.Close() //nolint:errcheck

	var out []harvest.Row
	for rows.Next() {
		var data string
		if err := rows.Scan(&data); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan row")
		}
		var r harvest.Row
		if err := json.Unmarshal([]byte(data), &r); err != nil {
			return nil, eris.Wrap(err, "sqlite: decode row")
		}
		out = append(out, r)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: rows")
}

// Close closes the database.
func (s *SQLite) Close() error {
	return eris.Wrap(s.db.Close(), "sqlite: close")
}
