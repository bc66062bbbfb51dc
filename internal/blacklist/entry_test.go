package blacklist

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEntry_UnmarshalJSON_LegacyAndObject(t *testing.T) {
	var entries []Entry
	err := json.Unmarshal([]byte(`["u1", {"id":"u2","addedAt":42}, "u3"]`), &entries)
	require.NoError(t, err)

	assert.Equal(t, []Entry{
		{ID: "u1", AddedAt: 0},
		{ID: "u2", AddedAt: 42},
		{ID: "u3", AddedAt: 0},
	}, entries)
}

func TestEntry_UnmarshalJSON_Invalid(t *testing.T) {
	var e Entry
	require.Error(t, json.Unmarshal([]byte(`42`), &e))
	require.Error(t, json.Unmarshal([]byte(`"unterminated`), &e))
}

func TestNormalize_LegacyStrings(t *testing.T) {
	var entries []Entry
	require.NoError(t, json.Unmarshal([]byte(`["u1","u2"]`), &entries))

	got := Normalize(entries, 1234)

	assert.Equal(t, []Entry{{ID: "u1", AddedAt: 1234}, {ID: "u2", AddedAt: 1234}}, got)
}

func TestNormalize_KeepsTimestampsDropsBlanksAndDuplicates(t *testing.T) {
	in := []Entry{
		{ID: "a", AddedAt: 10},
		{ID: ""},
		{ID: "a", AddedAt: 20},
		{ID: "b"},
	}

	got := Normalize(in, 99)

	assert.Equal(t, []Entry{{ID: "a", AddedAt: 10}, {ID: "b", AddedAt: 99}}, got)
	assert.Equal(t, int64(0), in[3].AddedAt, "input must not be modified")
}

func TestParsePartition(t *testing.T) {
	tests := []struct {
		input   string
		want    Partition
		wantErr bool
	}{
		{"subjects", Subjects, false},
		{"Subject", Subjects, false},
		{" seller ", Subjects, false},
		{"items", Items, false},
		{"listing", Items, false},
		{"ITEM", Items, false},
		{"users", "", true},
		{"", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, err := ParsePartition(tt.input)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestLists_GetSet(t *testing.T) {
	var l Lists
	l.Set(Subjects, []Entry{{ID: "s"}})
	l.Set(Items, []Entry{{ID: "i"}})

	assert.Equal(t, []string{"s"}, IDs(l.Get(Subjects)))
	assert.Equal(t, []string{"i"}, IDs(l.Get(Items)))
}
