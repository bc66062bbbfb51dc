// Package blacklist defines the blocked entry model, the merge rule used by
// sync, and the in-memory lookup sets consulted when filtering listings.
package blacklist

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
)

// Partition names one of the two independent entry collections.
type Partition string

const (
	// Subjects holds blocked sellers.
	Subjects Partition = "subjects"
	// Items holds blocked listings.
	Items Partition = "items"
)

// Partitions lists every partition in a stable order.
var Partitions = []Partition{Subjects, Items}

// ParsePartition converts user input to a Partition.
// Accepts singular and plural forms, plus the "seller" and "listing" aliases.
func ParsePartition(s string) (Partition, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "subject", "subjects", "seller", "sellers":
		return Subjects, nil
	case "item", "items", "listing", "listings":
		return Items, nil
	default:
		return "", fmt.Errorf("unknown partition %q: valid partitions are subjects, items", s)
	}
}

// Entry is one blocked subject or item.
// AddedAt is milliseconds since the Unix epoch.
type Entry struct {
	ID      string `json:"id" yaml:"id" toml:"id"`
	AddedAt int64  `json:"addedAt" yaml:"addedAt" toml:"addedAt"`
}

// UnmarshalJSON accepts both the object form and the legacy bare id string.
// Legacy entries decode with AddedAt 0 and must be passed through Normalize.
func (e *Entry) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) > 0 && data[0] == '"' {
		var id string
		if err := json.Unmarshal(data, &id); err != nil {
			return err
		}
		*e = Entry{ID: id}
		return nil
	}

	type plain Entry
	var p plain
	if err := json.Unmarshal(data, &p); err != nil {
		return err
	}
	*e = Entry(p)
	return nil
}

// Normalize upgrades legacy entries (AddedAt 0) to AddedAt now, drops entries
// with an empty id and collapses duplicate ids keeping the first occurrence.
// The original creation time of a legacy entry is not recoverable.
func Normalize(entries []Entry, now int64) []Entry {
	out := make([]Entry, 0, len(entries))
	seen := make(map[string]struct{}, len(entries))
	for _, e := range entries {
		if e.ID == "" {
			continue
		}
		if _, ok := seen[e.ID]; ok {
			continue
		}
		seen[e.ID] = struct{}{}
		if e.AddedAt == 0 {
			e.AddedAt = now
		}
		out = append(out, e)
	}
	return out
}

// IDs returns the ids of entries in their current order.
func IDs(entries []Entry) []string {
	ids := make([]string, len(entries))
	for i, e := range entries {
		ids[i] = e.ID
	}
	return ids
}

// SortByID sorts entries in place by id.
func SortByID(entries []Entry) {
	sort.Slice(entries, func(i, j int) bool { return entries[i].ID < entries[j].ID })
}

// Lists is a snapshot of both partitions.
type Lists struct {
	Subjects []Entry `json:"subjects" yaml:"subjects" toml:"subjects"`
	Items    []Entry `json:"items" yaml:"items" toml:"items"`
}

// Get returns the entries of partition p.
func (l Lists) Get(p Partition) []Entry {
	if p == Items {
		return l.Items
	}
	return l.Subjects
}

// Set replaces the entries of partition p.
func (l *Lists) Set(p Partition, entries []Entry) {
	if p == Items {
		l.Items = entries
		return
	}
	l.Subjects = entries
}
