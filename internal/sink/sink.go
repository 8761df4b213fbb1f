// Package sink persists harvest output: snapshot writers for files and
// databases, the append-only error log, the snapshot catalog used to find
// resume points, and run manifests.
package sink

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/hashicorp/go-multierror"
	"github.com/rotisserie/eris"

	"github.com/sells-group/geoharvest/internal/harvest"
)

// Snapshot describes one persisted flush.
type Snapshot struct {
	Tag       harvest.Tag `json:"tag" yaml:"tag"`
	Location  string      `json:"location" yaml:"location"` // file path or table name
	Rows      int         `json:"rows" yaml:"rows"`         // -1 when not known without reading the file
	FlushedAt time.Time   `json:"flushed_at" yaml:"flushed_at"`
}

// Catalog lists the snapshots a sink has written.
type Catalog interface {
	Snapshots(ctx context.Context) ([]Snapshot, error)
}

// SnapshotName is the file name for a snapshot: <prefix>-<tag>.<ext>.
func SnapshotName(prefix string, tag harvest.Tag, ext string) string {
	return prefix + "-" + tag.String() + "." + ext
}

// ParseSnapshotName is the inverse of SnapshotName. ok is false for files
// that are not snapshots of prefix, such as the error log.
func ParseSnapshotName(prefix, name, ext string) (tag harvest.Tag, ok bool) {
	rest, found := strings.CutPrefix(name, prefix+"-")
	if !found {
		return harvest.Tag{}, false
	}
	rest, found = strings.CutSuffix(rest, "."+ext)
	if !found {
		return harvest.Tag{}, false
	}
	tag, err := harvest.ParseTag(rest)
	if err != nil {
		return harvest.Tag{}, false
	}
	return tag, true
}

// Multi fans a flush out to several sinks. The first sink is the resume
// catalog: it is flushed last and only when every other sink succeeded, so a
// tag it records is present everywhere. The other sinks are all attempted
// and their errors combined. A sink that took a tag the catalog never got
// receives it again on resume and replaces it.
type Multi []harvest.RowSink

// Flush implements harvest.RowSink.
func (m Multi) Flush(ctx context.Context, rows []harvest.Row, tag harvest.Tag) error {
	if len(m) == 0 {
		return nil
	}
	var result *multierror.Error
	for _, s := range m[1:] {
		if err := s.Flush(ctx, rows, tag); err != nil {
			result = multierror.Append(result, err)
		}
	}
	if err := result.ErrorOrNil(); err != nil {
		return eris.Wrapf(err, "sink: %s not recorded in catalog", tag)
	}
	return m[0].Flush(ctx, rows, tag)
}

// CloseAll closes every closer and combines the errors.
func CloseAll(closers ...io.Closer) error {
	var result *multierror.Error
	for _, c := range closers {
		if c == nil {
			continue
		}
		if err := c.Close(); err != nil {
			result = multierror.Append(result, err)
		}
	}
	return result.ErrorOrNil()
}

// writeAtomic writes path through a temp file in the same directory that is
// fsynced and renamed into place, so readers see the old file or the complete
// new one.
func writeAtomic(path string, write func(w io.Writer) error) error {
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".*.tmp")
	if err != nil {
		return eris.Wrap(err, "sink: create temp file")
	}
	defer os.Remove(tmp.Name()) //nolint:errcheck

	if err := write(tmp); err != nil {
		_ = tmp.Close()
		return err
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		return eris.Wrapf(err, "sink: fsync %s", tmp.Name())
	}
	if err := tmp.Close(); err != nil {
		return eris.Wrapf(err, "sink: close %s", tmp.Name())
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return eris.Wrapf(err, "sink: rename to %s", path)
	}
	syncDir(dir)
	return nil
}

// syncDir makes a rename durable. Not every platform can fsync a directory,
// so failures are ignored.
func syncDir(dir string) {
	d, err := os.Open(dir)
	if err != nil {
		return
	}
	_ = d.Sync()
	_ = d.Close()
}
