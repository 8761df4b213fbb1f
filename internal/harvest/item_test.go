package harvest

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFlatten(t *testing.T) {
	in := map[string]any{
		"cn": "42:2:12:42",
		"parcel": map[string]any{
			"area":  120.5,
			"owner": map[string]any{"type": "private"},
		},
		"old_numbers": []any{"a", "b"},
		"meta":        Row{"source": "fir"},
		"missing":     nil,
	}

	out := Flatten(in)
	assert.Equal(t, "42:2:12:42", out["cn"])
	assert.Equal(t, 120.5, out["parcel.area"])
	assert.Equal(t, "private", out["parcel.owner.type"])
	assert.Equal(t, `["a","b"]`, out["old_numbers"])
	assert.Equal(t, "fir", out["meta.source"])
	assert.Contains(t, out, "missing")
	assert.Nil(t, out["missing"])
	assert.Equal(t, []string{"cn", "meta.source", "missing", "old_numbers", "parcel.area", "parcel.owner.type"}, out.Columns())
}

func TestFlatten_TypedMapsAndSlices(t *testing.T) {
	out := Flatten(map[string]any{
		"address":  map[string]string{"city": "Penza", "street": "Moskovskaya"},
		"parts":    []Row{{"n": 1}},
		"counts":   map[int]int{1: 2},
		"bytes":    []byte("raw"),
		"children": [2]string{"a", "b"},
	})
	assert.Equal(t, "Penza", out["address.city"])
	assert.Equal(t, "Moskovskaya", out["address.street"])
	assert.NotContains(t, out, "address")
	assert.Equal(t, `[{"n":1}]`, out["parts"])
	assert.Equal(t, `{"1":2}`, out["counts"])
	assert.Equal(t, "raw", out["bytes"])
	assert.Equal(t, `["a","b"]`, out["children"])
}

func TestFormatValue(t *testing.T) {
	ts := time.Date(2024, 3, 1, 12, 0, 0, 0, time.FixedZone("MSK", 3*3600))
	tests := []struct {
		in   any
		want string
	}{
		{nil, ""},
		{"x", "x"},
		{12.5, "12.5"},
		{float64(3), "3"},
		{42, "42"},
		{true, "true"},
		{ts, "2024-03-01T09:00:00Z"},
		{Tag{End: 3}, "00000003"},
	}
	for _, tt := range tests {
		t.Run(fmt.Sprint(tt.in), func(t *testing.T) {
			assert.Equal(t, tt.want, FormatValue(tt.in))
		})
	}
}

func TestUnionColumns(t *testing.T) {
	rows := []Row{{"b": 1, "a": 2}, {"c": 3, "a": 4}}
	assert.Equal(t, []string{"a", "b", "c"}, UnionColumns(rows))
	assert.Empty(t, UnionColumns(nil))
}

func TestTag_RoundTrip(t *testing.T) {
	for _, tag := range []Tag{
		{End: 0},
		{End: 500},
		{End: 731, Kind: KindTail},
		{End: 12, Kind: KindInterrupted},
	} {
		parsed, err := ParseTag(tag.String())
		require.NoError(t, err)
		assert.Equal(t, tag, parsed)
	}
	assert.Equal(t, "00000731-tail", Tag{End: 731, Kind: KindTail}.String())
}

func TestParseTag_Invalid(t *testing.T) {
	for _, s := range []string{"", "abc", "-1", "00000003-final"} {
		_, err := ParseTag(s)
		assert.Error(t, err, s)
	}
}

func TestWorkItem_Field(t *testing.T) {
	item := WorkItem{ID: "42:2:12:42", Fields: map[string]string{"address": "Penza, Moskovskaya 1"}}
	assert.Equal(t, "Penza, Moskovskaya 1", item.Field("address"))
	assert.Equal(t, "42:2:12:42", item.Field(""))
	assert.Equal(t, "42:2:12:42", item.Field("nope"))
}

func TestReindex(t *testing.T) {
	items := []WorkItem{{ID: "a", Index: 9}, {ID: "b", Index: 9}}
	Reindex(items)
	assert.Equal(t, 0, items[0].Index)
	assert.Equal(t, 1, items[1].Index)
}

func TestAccumulator_Drain(t *testing.T) {
	acc := NewAccumulator(2)
	acc.Add(Row{"id": "1"})
	acc.Add(Row{"id": "2"})
	acc.Add(Row{"id": "3"})
	assert.Equal(t, 3, acc.Len())

	rows := acc.Drain()
	assert.Len(t, rows, 3)
	assert.Equal(t, 0, acc.Len())

	acc.Add(Row{"id": "4"})
	assert.Equal(t, "1", rows[0]["id"], "drained rows are not overwritten by later adds")
}

func TestIsItemFailure(t *testing.T) {
	assert.True(t, IsItemFailure(NewFetchError("u", 500, nil)))
	assert.True(t, IsItemFailure(NewParseError(errors.New("x"))))
	assert.True(t, IsItemFailure(NewExtractorError(errors.New("x"))))
	assert.True(t, IsItemFailure(fmt.Errorf("wrapped: %w", NewParseError(errors.New("x")))))
	assert.False(t, IsItemFailure(errors.New("plain")))
	assert.False(t, IsItemFailure(nil))
}

func TestFailureFor(t *testing.T) {
	item := WorkItem{ID: "x"}
	f := FailureFor(item, NewFetchError("http://h/x", 404, nil))
	assert.Equal(t, "fetch", f.Kind)
	assert.Equal(t, 404, f.StatusCode)
	assert.Equal(t, "fetch http://h/x: status 404", f.Reason)

	f = FailureFor(item, NewParseError(errors.New("eof")))
	assert.Equal(t, "parse", f.Kind)
	assert.Equal(t, "parse: eof", f.Reason)

	f = FailureFor(item, NewExtractorError(errors.New("no match")))
	assert.Equal(t, "extract", f.Kind)
	assert.Equal(t, "extract: no match", f.Reason)
}
