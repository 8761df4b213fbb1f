package main

import (
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/geoharvest/internal/config"
	"github.com/sells-group/geoharvest/internal/harvest"
	"github.com/sells-group/geoharvest/internal/sink"
)

func pageServer(t *testing.T) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := strings.TrimPrefix(r.URL.Path, "/")
		if id == "missing" {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		fmt.Fprintf(w, "<html><head><title>Place %s</title></head><body><h1>%s</h1></body></html>", id, id)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func writeRunConfig(t *testing.T, dir, pageURL string) string {
	t.Helper()
	p := filepath.Join(dir, "config.yaml")
	body := fmt.Sprintf(`harvest:
  out_dir: %s
log:
  level: error
http:
  max_retries: 1
  rate_per_second: 1000
page:
  url_template: %s/{id}
  delay_ms: 0
`, filepath.Join(dir, "out"), pageURL)
	require.NoError(t, os.WriteFile(p, []byte(body), 0o644))
	return p
}

func TestApplyRunFlags_OnlyChanged(t *testing.T) {
	cmd := &cobra.Command{Use: "run"}
	cmd.Flags().Int("batch-size", 500, "")
	cmd.Flags().String("prefix", "", "")
	require.NoError(t, cmd.Flags().Parse([]string{"--batch-size", "7"}))

	c := &config.Config{Harvest: config.HarvestConfig{BatchSize: 100, Prefix: "keep"}}
	applyRunFlags(cmd, c)
	assert.Equal(t, 7, c.Harvest.BatchSize)
	assert.Equal(t, "keep", c.Harvest.Prefix)
}

func TestRunCommand_HarvestsAndResumes(t *testing.T) {
	dir := t.TempDir()
	srv := pageServer(t)
	cfgPath := writeRunConfig(t, dir, srv.URL)
	items := filepath.Join(dir, "ids.txt")
	require.NoError(t, os.WriteFile(items, []byte("a\nb\nmissing\nc\nd\n"), 0o644))

	rootCmd.SetArgs([]string{"--config", cfgPath, "run",
		"--extractor", "page", "--items", items, "--batch-size", "2", "--delay-ms", "0"})
	require.NoError(t, rootCmd.Execute())

	out := filepath.Join(dir, "out")
	snaps, err := sink.ListSnapshots(out, "result", "csv")
	require.NoError(t, err)
	require.Len(t, snaps, 3)
	assert.Equal(t, harvest.Tag{End: 2}, snaps[0].Tag)
	assert.Equal(t, harvest.Tag{End: 4}, snaps[1].Tag)
	assert.Equal(t, harvest.Tag{End: 5, Kind: harvest.KindTail}, snaps[2].Tag)
	assert.Equal(t, []int{2, 1, 1}, []int{snaps[0].Rows, snaps[1].Rows, snaps[2].Rows})

	errLog, err := os.ReadFile(filepath.Join(out, "result-errors.csv"))
	require.NoError(t, err)
	assert.Contains(t, string(errLog), "missing,")

	runs, err := sink.ListManifests(out)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, sink.StatusComplete, runs[0].Status)
	assert.Equal(t, 4, runs[0].Processed)
	assert.Equal(t, 1, runs[0].Failed)
	assert.Equal(t, 5, runs[0].ResumeIndex)

	rootCmd.SetArgs([]string{"--config", cfgPath, "run",
		"--extractor", "page", "--items", items, "--batch-size", "2", "--delay-ms", "0", "--resume"})
	require.NoError(t, rootCmd.Execute())
	t.Cleanup(func() { runResume = false })

	runs, err = sink.ListManifests(out)
	require.NoError(t, err)
	require.Len(t, runs, 2)
	var resumed *sink.Manifest
	for _, m := range runs {
		if m.StartIndex == 5 {
			resumed = m
		}
	}
	require.NotNil(t, resumed, "second run should start at the resume point")
	assert.Equal(t, 5, resumed.Skipped)
	assert.Equal(t, 0, resumed.Processed)

	snaps, err = sink.ListSnapshots(out, "result", "csv")
	require.NoError(t, err)
	assert.Len(t, snaps, 3, "a run with nothing to do writes no snapshot")

	n, err := sink.Consolidate(out, "result", filepath.Join(out, "result-all.csv"))
	require.NoError(t, err)
	assert.Equal(t, 4, n)
}
