package harvest

import (
	"encoding/json"
	"fmt"
	"reflect"
	"sort"
	"strconv"
	"strings"
	"time"
)

// WorkItem is one unit of input driving a single Extract call.
type WorkItem struct {
	Index  int               // absolute position in the input sequence
	ID     string            // identifier written to the error log
	Fields map[string]string // remaining columns of the source table, if any
}

// Field returns the named source column. An empty name or a missing column
// falls back to the item ID.
func (w WorkItem) Field(name string) string {
	if name == "" {
		return w.ID
	}
	if v, ok := w.Fields[name]; ok {
		return v
	}
	return w.ID
}

// Items builds an indexed work item list from plain identifiers.
func Items(ids ...string) []WorkItem {
	out := make([]WorkItem, len(ids))
	for i, id := range ids {
		out[i] = WorkItem{Index: i, ID: id}
	}
	return out
}

// Reindex assigns Index = position to every item.
func Reindex(items []WorkItem) []WorkItem {
	for i := range items {
		items[i].Index = i
	}
	return items
}

// Row is one output record keyed by column name. Values are strings, numbers,
// booleans, time.Time, or nested maps and slices which Flatten collapses.
type Row map[string]any

// Columns returns the row keys in sorted order.
func (r Row) Columns() []string {
	cols := make([]string, 0, len(r))
	for k := range r {
		cols = append(cols, k)
	}
	sort.Strings(cols)
	return cols
}

// Flatten collapses nested maps into dotted keys ("parcel.area") and encodes
// slices as JSON text so every value fits a single table cell.
func Flatten(in map[string]any) Row {
	out := make(Row, len(in))
	flattenInto(out, "", in)
	return out
}

func flattenInto(out Row, prefix string, in map[string]any) {
	for k, v := range in {
		key := k
		if prefix != "" {
			key = prefix + "." + k
		}
		switch val := v.(type) {
		case map[string]any:
			flattenInto(out, key, val)
		case Row:
			flattenInto(out, key, val)
		case nil:
			out[key] = nil
		default:
			flattenValue(out, key, val)
		}
	}
}

// flattenValue handles the typed maps and slices that the fast paths above
// miss, such as map[string]string or []Row.
func flattenValue(out Row, key string, v any) {
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Map:
		if rv.Type().Key().Kind() == reflect.String {
			m := make(map[string]any, rv.Len())
			iter := rv.MapRange()
			for iter.Next() {
				m[iter.Key().String()] = iter.Value().Interface()
			}
			flattenInto(out, key, m)
			return
		}
		out[key] = jsonCell(v)
	case reflect.Slice, reflect.Array:
		if b, ok := v.([]byte); ok {
			out[key] = string(b)
			return
		}
		out[key] = jsonCell(v)
	default:
		out[key] = v
	}
}

func jsonCell(v any) string {
	b, err := json.Marshal(v)
	if err != nil {
		return fmt.Sprint(v)
	}
	return string(b)
}

// FormatValue renders a flattened row value as a table cell.
func FormatValue(v any) string {
	switch val := v.(type) {
	case nil:
		return ""
	case string:
		return val
	case time.Time:
		return val.UTC().Format(time.RFC3339)
	case float64:
		return strconv.FormatFloat(val, 'f', -1, 64)
	case float32:
		return strconv.FormatFloat(float64(val), 'f', -1, 32)
	case bool:
		return strconv.FormatBool(val)
	case fmt.Stringer:
		return val.String()
	default:
		return fmt.Sprint(val)
	}
}

// UnionColumns returns the sorted union of column names across rows.
func UnionColumns(rows []Row) []string {
	seen := make(map[string]struct{})
	var cols []string
	for _, r := range rows {
		for k := range r {
			if _, ok := seen[k]; ok {
				continue
			}
			seen[k] = struct{}{}
			cols = append(cols, k)
		}
	}
	sort.Strings(cols)
	return cols
}

// Kind distinguishes the flush that produced a snapshot.
type Kind int

const (
	// KindBatch is a regular flush after BatchSize items.
	KindBatch Kind = iota
	// KindTail is the final flush at natural exhaustion of the input.
	KindTail
	// KindInterrupted is written when a run stops early (cancellation or an
	// unexpected error) and holds the rows handled since the last flush.
	KindInterrupted
)

// String returns the tag suffix used for the kind.
func (k Kind) String() string {
	switch k {
	case KindBatch:
		return "batch"
	case KindTail:
		return "tail"
	case KindInterrupted:
		return "interrupted"
	default:
		return "unknown"
	}
}

// Tag identifies a flushed snapshot. End is the absolute index one past the
// last item covered by the snapshot, so a follow-up run resumes at End.
type Tag struct {
	End  int
	Kind Kind
}

const tagWidth = 8

// String renders the tag as a sortable file-name fragment, e.g. "00000500" or
// "00000731-tail".
func (t Tag) String() string {
	s := fmt.Sprintf("%0*d", tagWidth, t.End)
	if t.Kind != KindBatch {
		s += "-" + t.Kind.String()
	}
	return s
}

// ParseTag parses the output of Tag.String.
func ParseTag(s string) (Tag, error) {
	num, suffix, _ := strings.Cut(s, "-")
	end, err := strconv.Atoi(num)
	if err != nil || end < 0 {
		return Tag{}, fmt.Errorf("harvest: invalid tag %q", s)
	}
	t := Tag{End: end}
	switch suffix {
	case "":
		t.Kind = KindBatch
	case "tail":
		t.Kind = KindTail
	case "interrupted":
		t.Kind = KindInterrupted
	default:
		return Tag{}, fmt.Errorf("harvest: invalid tag kind %q", suffix)
	}
	return t, nil
}

// MarshalText encodes the tag in its String form.
func (t Tag) MarshalText() ([]byte, error) {
	return []byte(t.String()), nil
}

// UnmarshalText decodes a tag written by MarshalText.
func (t *Tag) UnmarshalText(b []byte) error {
	parsed, err := ParseTag(string(b))
	if err != nil {
		return err
	}
	*t = parsed
	return nil
}
