package sink

import (
	"errors"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"gopkg.in/yaml.v3"

	"github.com/sells-group/geoharvest/internal/harvest"
)

// Run statuses recorded in a manifest.
const (
	StatusRunning     = "running"
	StatusComplete    = "complete"
	StatusInterrupted = "interrupted"
	StatusFailed      = "failed"
)

const manifestDir = "runs"

// Manifest records the parameters and outcome of one run. It is written to
// <out_dir>/runs/<id>.yaml when the run starts and again when it ends.
type Manifest struct {
	ID          string       `yaml:"id" json:"id"`
	Extractor   string       `yaml:"extractor" json:"extractor"`
	Items       string       `yaml:"items" json:"items"`
	TotalItems  int          `yaml:"total_items" json:"total_items"`
	StartIndex  int          `yaml:"start_index" json:"start_index"`
	BatchSize   int          `yaml:"batch_size" json:"batch_size"`
	Workers     int          `yaml:"workers" json:"workers"`
	DelayMs     int64        `yaml:"delay_ms" json:"delay_ms"`
	Outputs     []string     `yaml:"outputs" json:"outputs"`
	ErrorLog    string       `yaml:"error_log" json:"error_log"`
	Status      string       `yaml:"status" json:"status"`
	Error       string       `yaml:"error,omitempty" json:"error,omitempty"`
	StartedAt   time.Time    `yaml:"started_at" json:"started_at"`
	FinishedAt  *time.Time   `yaml:"finished_at,omitempty" json:"finished_at,omitempty"`
	Processed   int          `yaml:"processed" json:"processed"`
	Failed      int          `yaml:"failed" json:"failed"`
	Skipped     int          `yaml:"skipped" json:"skipped"`
	Flushes     int          `yaml:"flushes" json:"flushes"`
	LastTag     *harvest.Tag `yaml:"last_tag,omitempty" json:"last_tag,omitempty"`
	ResumeIndex int          `yaml:"resume_index" json:"resume_index"`
}

// NewManifest starts a manifest with a fresh run id.
func NewManifest(extractor, items string) *Manifest {
	return &Manifest{
		ID:        uuid.New().String(),
		Extractor: extractor,
		Items:     items,
		Status:    StatusRunning,
		StartedAt: time.Now().UTC(),
	}
}

// Finish copies the run summary into the manifest and derives the status
// from runErr.
func (m *Manifest) Finish(sum *harvest.Summary, runErr error) {
	now := time.Now().UTC()
	m.FinishedAt = &now
	if sum != nil {
		m.Processed = sum.Processed
		m.Failed = sum.Failed
		m.Skipped = sum.Skipped
		m.Flushes = sum.Flushes
		m.LastTag = sum.LastTag
		m.ResumeIndex = sum.ResumeIndex
	}
	switch {
	case runErr == nil:
		m.Status = StatusComplete
	case m.LastTag != nil && m.LastTag.Kind == harvest.KindInterrupted:
		m.Status = StatusInterrupted
		m.Error = runErr.Error()
	default:
		m.Status = StatusFailed
		m.Error = runErr.Error()
	}
}

// WriteManifest stores m under dir/runs and returns the file path.
func WriteManifest(dir string, m *Manifest) (string, error) {
	runs := filepath.Join(dir, manifestDir)
	if err := os.MkdirAll(runs, 0o755); err != nil {
		return "", eris.Wrapf(err, "sink: create %s", runs)
	}
	data, err := yaml.Marshal(m)
	if err != nil {
		return "", eris.Wrap(err, "sink: encode manifest")
	}
	path := filepath.Join(runs, m.ID+".yaml")
	err = writeAtomic(path, func(w io.Writer) error {
		_, err := w.Write(data)
		return eris.Wrap(err, "sink: write manifest")
	})
	return path, err
}

// ReadManifest loads one manifest file.
func ReadManifest(path string) (*Manifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, eris.Wrapf(err, "sink: read manifest %s", path)
	}
	var m Manifest
	if err := yaml.Unmarshal(data, &m); err != nil {
		return nil, eris.Wrapf(err, "sink: decode manifest %s", path)
	}
	return &m, nil
}

// ListManifests returns the manifests under dir/runs, newest first.
func ListManifests(dir string) ([]*Manifest, error) {
	runs := filepath.Join(dir, manifestDir)
	entries, err := os.ReadDir(runs)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, eris.Wrapf(err, "sink: list %s", runs)
	}

	var out []*Manifest
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".yaml") {
			continue
		}
		m, err := ReadManifest(filepath.Join(runs, e.Name()))
		if err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StartedAt.After(out[j].StartedAt) })
	return out, nil
}

// FindManifest loads the manifest of run id from dir/runs.
func FindManifest(dir, id string) (*Manifest, error) {
	if _, err := uuid.Parse(id); err != nil {
		return nil, eris.Wrapf(err, "sink: invalid run id %q", id)
	}
	return ReadManifest(filepath.Join(dir, manifestDir, id+".yaml"))
}
