package main

import (
	"bytes"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/sells-group/geoharvest/internal/extract"
	"github.com/sells-group/geoharvest/internal/harvest"
	"github.com/sells-group/geoharvest/internal/sink"
)

func TestFormatStatus(t *testing.T) {
	at := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)
	snaps := []sink.Snapshot{
		{Tag: harvest.Tag{End: 500}, Location: "out/result-00000500.csv", Rows: 498, FlushedAt: at},
		{Tag: harvest.Tag{End: 612, Kind: harvest.KindInterrupted}, Location: "harvest_rows", Rows: -1, FlushedAt: at},
	}
	runs := []*sink.Manifest{
		{ID: "run-newest", Extractor: "registry", Status: sink.StatusInterrupted, ResumeIndex: 612, TotalItems: 900, StartedAt: at},
		{ID: "run-oldest", Extractor: "registry", Status: sink.StatusComplete, StartedAt: at},
	}

	var buf bytes.Buffer
	formatStatus(&buf, snaps, runs, 1)
	out := buf.String()
	assert.Contains(t, out, "00000500")
	assert.Contains(t, out, "498")
	assert.Contains(t, out, "00000612-interrupted")
	assert.Contains(t, out, "Resume index: 612")
	assert.Contains(t, out, "612/900")
	assert.Contains(t, out, "run-newest")
	assert.NotContains(t, out, "run-oldest", "runs beyond the limit are not shown")
}

func TestFormatStatus_Empty(t *testing.T) {
	var buf bytes.Buffer
	formatStatus(&buf, nil, nil, 5)
	assert.Contains(t, buf.String(), "No snapshots found.")
	assert.Contains(t, buf.String(), "Resume index: 0")
}

func TestFormatExtractors(t *testing.T) {
	var buf bytes.Buffer
	formatExtractors(&buf, []extract.Info{{Name: "bbox", Description: "features", DefaultDelay: time.Second}})
	assert.Contains(t, buf.String(), "bbox")
	assert.Contains(t, buf.String(), "1s")
}
