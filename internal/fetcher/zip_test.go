package fetcher

import (
	"archive/zip"
	"os"
	"path/filepath"
	"sort"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func createTestZIP(t *testing.T, files map[string]string) string {
	t.Helper()
	zipPath := filepath.Join(t.TempDir(), "test.zip")
	f, err := os.Create(zipPath)
	require.NoError(t, err)
	defer f.Close() //nolint:errcheck

	w := zip.NewWriter(f)
	names := make([]string, 0, len(files))
	for name := range files {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		fw, err := w.Create(name)
		require.NoError(t, err)
		_, err = fw.Write([]byte(files[name]))
		require.NoError(t, err)
	}
	require.NoError(t, w.Close())
	return zipPath
}

func TestExtractZIP_All(t *testing.T) {
	zipPath := createTestZIP(t, map[string]string{
		"ids.txt":         "42:2:12:42",
		"nested/more.csv": "cn\n1:1:1:1",
	})

	destDir := t.TempDir()
	extracted, err := ExtractZIP(zipPath, destDir)
	require.NoError(t, err)
	assert.Len(t, extracted, 2)

	data, err := os.ReadFile(filepath.Join(destDir, "nested", "more.csv"))
	require.NoError(t, err)
	assert.Equal(t, "cn\n1:1:1:1", string(data))
}

func TestExtractZIPMatching_ShapefileBundle(t *testing.T) {
	zipPath := createTestZIP(t, map[string]string{
		"parcels.SHP": "shp",
		"parcels.shx": "shx",
		"parcels.dbf": "dbf",
		"README.txt":  "ignore me",
	})

	extracted, err := ExtractZIPMatching(zipPath, t.TempDir(), ".shp", ".shx", ".dbf")
	require.NoError(t, err)
	assert.Len(t, extracted, 3)

	shp, ok := FirstWithExt(extracted, ".shp")
	require.True(t, ok)
	assert.Equal(t, "parcels.SHP", filepath.Base(shp))

	_, ok = FirstWithExt(extracted, ".txt")
	assert.False(t, ok)
}

func TestExtractZIP_ZipSlip(t *testing.T) {
	zipPath := createTestZIP(t, map[string]string{"../../evil.txt": "pwned"})
	_, err := ExtractZIP(zipPath, t.TempDir())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "zip slip")
}

func TestExtractZIP_NotAnArchive(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.zip")
	require.NoError(t, os.WriteFile(path, []byte("not a zip"), 0o644))
	_, err := ExtractZIP(path, t.TempDir())
	assert.Error(t, err)
}
