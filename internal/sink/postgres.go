package sink

import (
	"context"
	"encoding/json"
	"time"

	"github.com/rotisserie/eris"

	"github.com/sells-group/geoharvest/internal/db"
	"github.com/sells-group/geoharvest/internal/harvest"
)

var rowColumns = []string{"prefix", "tag", "pos", "data"}

// Postgres stores snapshots as JSONB rows keyed by (prefix, tag). A flush
// deletes any earlier rows of its tag, COPYs the new ones and upserts the
// flush catalog entry in one transaction.
type Postgres struct {
	pool    db.Pool
	table   string
	flushes string
	prefix  string
	closeFn func()
}

// NewPostgres connects to connString and creates the tables. prefix scopes
// every read and write.
func NewPostgres(ctx context.Context, connString, table, prefix string, cfg db.PoolConfig) (*Postgres, error) {
	if err := checkTable(table); err != nil {
		return nil, err
	}
	if prefix == "" {
		return nil, eris.New("postgres: snapshot prefix is required")
	}
	pool, err := db.Open(ctx, connString, cfg)
	if err != nil {
		return nil, err
	}
	p := NewPostgresWithPool(pool, table, prefix)
	p.closeFn = pool.Close
	if err := p.Migrate(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return p, nil
}

// NewPostgresWithPool wraps an existing pool. The caller owns the pool and
// must have validated table.
func NewPostgresWithPool(pool db.Pool, table, prefix string) *Postgres {
	return &Postgres{pool: pool, table: table, flushes: table + "_flushes", prefix: prefix}
}

// Migrate creates the row and flush catalog tables.
func (p *Postgres) Migrate(ctx context.Context) error {
	ddl := `
CREATE TABLE IF NOT EXISTS ` + db.Sanitize(p.table) + ` (
	prefix TEXT    NOT NULL,
	tag    TEXT    NOT NULL,
	pos    INTEGER NOT NULL,
	data   JSONB   NOT NULL,
	PRIMARY KEY (prefix, tag, pos)
);

CREATE TABLE IF NOT EXISTS ` + db.Sanitize(p.flushes) + ` (
	prefix     TEXT        NOT NULL,
	tag        TEXT        NOT NULL,
	end_index  INTEGER     NOT NULL,
	kind       TEXT        NOT NULL,
	row_count  INTEGER     NOT NULL,
	flushed_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	PRIMARY KEY (prefix, tag)
);`
	_, err := p.pool.Exec(ctx, ddl)
	return eris.Wrap(err, "postgres: migrate")
}

// Flush implements harvest.RowSink.
func (p *Postgres) Flush(ctx context.Context, rows []harvest.Row, tag harvest.Tag) error {
	copyRows := make([][]any, len(rows))
	for i, row := range rows {
		data, err := json.Marshal(row)
		if err != nil {
			return eris.Wrapf(err, "postgres: encode row %d of %s", i, tag)
		}
		copyRows[i] = []any{p.prefix, tag.String(), i, string(data)}
	}

	tx, err := p.pool.Begin(ctx)
	if err != nil {
		return eris.Wrap(err, "postgres: begin flush")
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	if _, err := tx.Exec(ctx, `DELETE FROM `+db.Sanitize(p.table)+` WHERE prefix = $1 AND tag = $2`, p.prefix, tag.String()); err != nil {
		return eris.Wrapf(err, "postgres: clear %s", tag)
	}
	if _, err := db.CopyFrom(ctx, tx, p.table, rowColumns, copyRows); err != nil {
		return eris.Wrapf(err, "postgres: copy %s", tag)
	}
	_, err = tx.Exec(ctx,
		`INSERT INTO `+db.Sanitize(p.flushes)+` (prefix, tag, end_index, kind, row_count, flushed_at) VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (prefix, tag) DO UPDATE SET end_index = EXCLUDED.end_index, kind = EXCLUDED.kind,
		row_count = EXCLUDED.row_count, flushed_at = EXCLUDED.flushed_at`,
		p.prefix, tag.String(), tag.End, tag.Kind.String(), len(rows), time.Now().UTC(),
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: record flush %s", tag)
	}
	return eris.Wrapf(tx.Commit(ctx), "postgres: commit flush %s", tag)
}

// Snapshots implements Catalog.
func (p *Postgres) Snapshots(ctx context.Context) ([]Snapshot, error) {
	rows, err := p.pool.Query(ctx, `SELECT tag, row_count, flushed_at FROM `+db.Sanitize(p.flushes)+` WHERE prefix = $1`, p.prefix)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list flushes")
	}
	defer rows.Close()

	var out []Snapshot
	for rows.Next() {
		var tagStr string
		var n int
		var ts time.Time
		if err := rows.Scan(&tagStr, &n, &ts); err != nil {
			return nil, eris.Wrap(err, "postgres: scan flush")
		}
		tag, err := harvest.ParseTag(tagStr)
		if err != nil {
			return nil, eris.Wrap(err, "postgres: flush catalog")
		}
		out = append(out, Snapshot{Tag: tag, Location: p.table, Rows: n, FlushedAt: ts})
	}
	if err := rows.Err(); err != nil {
		return nil, eris.Wrap(err, "postgres: list flushes")
	}
	SortSnapshots(out)
	return out, nil
}

// Close releases the pool when this sink opened it.
func (p *Postgres) Close() error {
	if p.closeFn != nil {
		p.closeFn()
	}
	return nil
}
