package sink

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/geoharvest/internal/harvest"
)

func newTestSQLite(t *testing.T) *SQLite {
	t.Helper()
	s, err := NewSQLite(context.Background(), filepath.Join(t.TempDir(), "test.db"), "harvest_rows", "result")
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() }) //nolint:errcheck
	return s
}

func TestSQLite_FlushAndRead(t *testing.T) {
	s := newTestSQLite(t)
	ctx := context.Background()

	tag := harvest.Tag{End: 3}
	require.NoError(t, s.Flush(ctx, []harvest.Row{
		{"cn": "1:1:1:1", "area": 10.5},
		{"cn": "1:1:1:2", "status": "void"},
	}, tag))

	rows, err := s.Rows(ctx, tag)
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, "1:1:1:1", rows[0]["cn"])
	assert.Equal(t, 10.5, rows[0]["area"])
	assert.Equal(t, "void", rows[1]["status"])

	snaps, err := s.Snapshots(ctx)
	require.NoError(t, err)
	require.Len(t, snaps, 1)
	assert.Equal(t, tag, snaps[0].Tag)
	assert.Equal(t, 2, snaps[0].Rows)
	assert.Equal(t, "harvest_rows", snaps[0].Location)
	assert.False(t, snaps[0].FlushedAt.IsZero())
}

func TestSQLite_ReflushReplacesRows(t *testing.T) {
	s := newTestSQLite(t)
	ctx := context.Background()
	tag := harvest.Tag{End: 4, Kind: harvest.KindInterrupted}

	require.NoError(t, s.Flush(ctx, []harvest.Row{{"id": "a"}, {"id": "b"}}, tag))
	require.NoError(t, s.Flush(ctx, []harvest.Row{{"id": "c"}}, tag))

	rows, err := s.Rows(ctx, tag)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "c", rows[0]["id"])

	snaps, err := s.Snapshots(ctx)
	require.NoError(t, err)
	require.Len(t, snaps, 1)
	assert.Equal(t, 1, snaps[0].Rows)
}

func TestSQLite_SnapshotsAndResumePoint(t *testing.T) {
	s := newTestSQLite(t)
	ctx := context.Background()

	require.NoError(t, s.Flush(ctx, []harvest.Row{{"id": "1"}}, harvest.Tag{End: 3}))
	require.NoError(t, s.Flush(ctx, nil, harvest.Tag{End: 6}))
	require.NoError(t, s.Flush(ctx, []harvest.Row{{"id": "7"}}, harvest.Tag{End: 7, Kind: harvest.KindTail}))

	snaps, err := s.Snapshots(ctx)
	require.NoError(t, err)
	require.Len(t, snaps, 3)
	assert.Equal(t, 0, snaps[1].Rows)
	assert.Equal(t, 7, ResumePoint(snaps))
}

func TestSQLite_FlushCanceledLeavesNothing(t *testing.T) {
	s := newTestSQLite(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := s.Flush(ctx, []harvest.Row{{"id": "x"}}, harvest.Tag{End: 1})
	require.Error(t, err)

	snaps, err := s.Snapshots(context.Background())
	require.NoError(t, err)
	assert.Empty(t, snaps)
}

func TestNewSQLite_RejectsBadTable(t *testing.T) {
	_, err := NewSQLite(context.Background(), filepath.Join(t.TempDir(), "x.db"), "rows; DROP TABLE x", "result")
	assert.Error(t, err)
}

func TestSQLite_PrefixesDoNotShareTags(t *testing.T) {
	dsn := filepath.Join(t.TempDir(), "shared.db")
	ctx := context.Background()
	tag := harvest.Tag{End: 3}

	first, err := NewSQLite(ctx, dsn, "harvest_rows", "result")
	require.NoError(t, err)
	t.Cleanup(func() { first.Close() }) //nolint:errcheck
	require.NoError(t, first.Flush(ctx, []harvest.Row{{"id": "a"}, {"id": "c"}}, tag))

	retry, err := NewSQLite(ctx, dsn, "harvest_rows", "retry")
	require.NoError(t, err)
	t.Cleanup(func() { retry.Close() }) //nolint:errcheck
	require.NoError(t, retry.Flush(ctx, []harvest.Row{{"id": "x-retry"}}, tag))
	require.NoError(t, retry.Flush(ctx, nil, harvest.Tag{End: 9, Kind: harvest.KindTail}))

	rows, err := first.Rows(ctx, tag)
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, "a", rows[0]["id"])
	assert.Equal(t, "c", rows[1]["id"])

	rows, err = retry.Rows(ctx, tag)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "x-retry", rows[0]["id"])

	snaps, err := first.Snapshots(ctx)
	require.NoError(t, err)
	require.Len(t, snaps, 1)
	assert.Equal(t, 3, ResumePoint(snaps))

	snaps, err = retry.Snapshots(ctx)
	require.NoError(t, err)
	assert.Equal(t, 9, ResumePoint(snaps))
}

func TestNewSQLite_RequiresPrefix(t *testing.T) {
	_, err := NewSQLite(context.Background(), filepath.Join(t.TempDir(), "x.db"), "harvest_rows", "")
	assert.Error(t, err)
}
