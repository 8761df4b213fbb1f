package source

import (
	"bufio"
	"io"
	"os"
	"strings"

	"github.com/rotisserie/eris"

	"github.com/sells-group/geoharvest/internal/harvest"
)

const bom = "\ufeff"

// ReadLines reads one id per line. Blank lines and lines starting with '#'
// are skipped.
func ReadLines(r io.Reader) ([]harvest.WorkItem, error) {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 64*1024), 1024*1024)

	var items []harvest.WorkItem
	first := true
	for sc.Scan() {
		line := sc.Text()
		if first {
			line = strings.TrimPrefix(line, bom)
			first = false
		}
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		items = append(items, harvest.WorkItem{ID: line})
	}
	if err := sc.Err(); err != nil {
		return nil, eris.Wrap(err, "source: read lines")
	}
	return items, nil
}

func readLinesFile(p string) ([]harvest.WorkItem, error) {
	f, err := os.Open(p)
	if err != nil {
		return nil, eris.Wrapf(err, "source: open %s", p)
	}
	defer f.Close() //nolint:errcheck
	return ReadLines(f)
}
