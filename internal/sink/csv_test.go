package sink

import (
	"context"
	"encoding/csv"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/geoharvest/internal/harvest"
)

func readCSV(t *testing.T, path string) [][]string {
	t.Helper()
	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close() //nolint:errcheck
	recs, err := csv.NewReader(f).ReadAll()
	require.NoError(t, err)
	return recs
}

func TestCSV_Flush(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "out")
	s, err := NewCSV(dir, "parcels")
	require.NoError(t, err)

	rows := []harvest.Row{
		{"cn": "58:29:1007003:5108", "area": 1200.5},
		{"cn": "58:29:1007003:5109", "status": "void"},
	}
	tag := harvest.Tag{End: 3}
	require.NoError(t, s.Flush(context.Background(), rows, tag))

	path := filepath.Join(dir, "parcels-00000003.csv")
	assert.Equal(t, path, s.Path(tag))
	assert.Equal(t, [][]string{
		{"area", "cn", "status"},
		{"1200.5", "58:29:1007003:5108", ""},
		{"", "58:29:1007003:5109", "void"},
	}, readCSV(t, path))

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Len(t, entries, 1, "no temp files left behind")
}

func TestCSV_FlushOverwritesSameTag(t *testing.T) {
	dir := t.TempDir()
	s, err := NewCSV(dir, "r")
	require.NoError(t, err)
	tag := harvest.Tag{End: 5, Kind: harvest.KindInterrupted}

	require.NoError(t, s.Flush(context.Background(), []harvest.Row{{"id": "1"}, {"id": "2"}}, tag))
	require.NoError(t, s.Flush(context.Background(), []harvest.Row{{"id": "3"}}, tag))

	assert.Equal(t, [][]string{{"id"}, {"3"}}, readCSV(t, filepath.Join(dir, "r-00000005-interrupted.csv")))
}

func TestCSV_EmptyFlushWritesEmptyFile(t *testing.T) {
	dir := t.TempDir()
	s, err := NewCSV(dir, "r")
	require.NoError(t, err)

	require.NoError(t, s.Flush(context.Background(), nil, harvest.Tag{End: 500}))
	info, err := os.Stat(filepath.Join(dir, "r-00000500.csv"))
	require.NoError(t, err)
	assert.Zero(t, info.Size())
}

func TestCSV_FlushFailsWhenDirRemoved(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "gone")
	s, err := NewCSV(dir, "r")
	require.NoError(t, err)
	require.NoError(t, os.RemoveAll(dir))

	err = s.Flush(context.Background(), []harvest.Row{{"id": "1"}}, harvest.Tag{End: 1})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "csv snapshot 00000001")
}

func TestCSV_Snapshots(t *testing.T) {
	dir := t.TempDir()
	s, err := NewCSV(dir, "r")
	require.NoError(t, err)
	ctx := context.Background()

	require.NoError(t, s.Flush(ctx, []harvest.Row{{"id": "a"}, {"id": "b"}, {"id": "c"}}, harvest.Tag{End: 3}))
	require.NoError(t, s.Flush(ctx, []harvest.Row{{"id": "d"}}, harvest.Tag{End: 7, Kind: harvest.KindTail}))
	require.NoError(t, s.Flush(ctx, []harvest.Row{{"id": "e"}, {"id": "f"}}, harvest.Tag{End: 6}))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "r-errors.csv"), []byte("item_id,reason\n"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "other-00000009.csv"), []byte("id\nz\n"), 0o644))

	snaps, err := s.Snapshots(ctx)
	require.NoError(t, err)
	require.Len(t, snaps, 3)
	assert.Equal(t, "00000003", snaps[0].Tag.String())
	assert.Equal(t, 3, snaps[0].Rows)
	assert.Equal(t, "00000006", snaps[1].Tag.String())
	assert.Equal(t, "00000007-tail", snaps[2].Tag.String())
	assert.Equal(t, 1, snaps[2].Rows)
	assert.Equal(t, 7, ResumePoint(snaps))
}
