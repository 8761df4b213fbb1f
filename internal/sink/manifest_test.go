package sink

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/geoharvest/internal/harvest"
)

func TestManifest_WriteReadList(t *testing.T) {
	dir := t.TempDir()

	first := NewManifest("registry", "cns.txt")
	first.StartedAt = time.Now().Add(-time.Hour).UTC()
	first.Finish(&harvest.Summary{Processed: 7, Failed: 1, Flushes: 3, LastTag: &harvest.Tag{End: 8, Kind: harvest.KindTail}, ResumeIndex: 8}, nil)
	_, err := WriteManifest(dir, first)
	require.NoError(t, err)

	second := NewManifest("page", "ids.csv")
	_, err = WriteManifest(dir, second)
	require.NoError(t, err)

	got, err := FindManifest(dir, first.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusComplete, got.Status)
	assert.Equal(t, 7, got.Processed)
	require.NotNil(t, got.LastTag)
	assert.Equal(t, harvest.Tag{End: 8, Kind: harvest.KindTail}, *got.LastTag)
	assert.NotNil(t, got.FinishedAt)

	all, err := ListManifests(dir)
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, second.ID, all[0].ID, "newest first")
	assert.Equal(t, StatusRunning, all[0].Status)
}

func TestManifest_FinishStatuses(t *testing.T) {
	m := NewManifest("bbox", "tiles.shp")
	m.Finish(&harvest.Summary{LastTag: &harvest.Tag{End: 4, Kind: harvest.KindInterrupted}, ResumeIndex: 4}, context.Canceled)
	assert.Equal(t, StatusInterrupted, m.Status)
	assert.Equal(t, 4, m.ResumeIndex)
	assert.Equal(t, "context canceled", m.Error)

	m = NewManifest("bbox", "tiles.shp")
	m.Finish(&harvest.Summary{}, errors.New("flush failed"))
	assert.Equal(t, StatusFailed, m.Status)
}

func TestFindManifest_InvalidID(t *testing.T) {
	_, err := FindManifest(t.TempDir(), "../../etc/passwd")
	assert.Error(t, err)
}

func TestListManifests_Empty(t *testing.T) {
	all, err := ListManifests(t.TempDir())
	require.NoError(t, err)
	assert.Empty(t, all)
}
