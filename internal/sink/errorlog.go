package sink

import (
	"context"
	"encoding/csv"
	"os"
	"sync"

	"github.com/rotisserie/eris"

	"github.com/sells-group/geoharvest/internal/harvest"
)

// ErrorLogHeader is the header of the error log. The item_id column lets the
// log be fed back as a work-item table.
var ErrorLogHeader = []string{"item_id", "reason"}

// ErrorLog is an append-only CSV of failed items. Every Append is fsynced
// before it returns. Safe for concurrent use.
type ErrorLog struct {
	mu   sync.Mutex
	path string
	f    *os.File
	w    *csv.Writer
}

// OpenErrorLog opens path for appending, writing the header when the file is
// new or empty.
func OpenErrorLog(path string) (*ErrorLog, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, eris.Wrapf(err, "sink: open error log %s", path)
	}
	info, err := f.Stat()
	if err != nil {
		_ = f.Close()
		return nil, eris.Wrapf(err, "sink: stat error log %s", path)
	}

	l := &ErrorLog{path: path, f: f, w: csv.NewWriter(f)}
	if info.Size() == 0 {
		if err := l.write(ErrorLogHeader); err != nil {
			_ = f.Close()
			return nil, err
		}
	}
	return l, nil
}

// Path returns the log file location.
func (l *ErrorLog) Path() string { return l.path }

// Append implements harvest.ErrorSink.
func (l *ErrorLog) Append(_ context.Context, f harvest.Failure) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.write([]string{f.Item.ID, f.Reason})
}

func (l *ErrorLog) write(rec []string) error {
	if l.f == nil {
		return eris.Errorf("sink: error log %s is closed", l.path)
	}
	if err := l.w.Write(rec); err != nil {
		return eris.Wrap(err, "sink: write error log")
	}
	l.w.Flush()
	if err := l.w.Error(); err != nil {
		return eris.Wrap(err, "sink: flush error log")
	}
	return eris.Wrap(l.f.Sync(), "sink: fsync error log")
}

// Close closes the file. Further appends fail.
func (l *ErrorLog) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.f == nil {
		return nil
	}
	err := l.f.Close()
	l.f = nil
	return eris.Wrap(err, "sink: close error log")
}
