package blacklist

// Merge reconciles a local and a remote entry collection into one.
//
// The result is the union of both inputs by id. When an id is present on both
// sides the remote entry wins, so its addedAt is kept. This is the only
// collision rule in the sync engine: the remote copy is shared by every
// device, and letting it win keeps all devices converging to the same
// timestamps. Ids held by only one side are kept verbatim; there are no
// tombstones, so a deletion sticks only if the other side no longer holds
// the id either.
//
// The output is sorted by id and never contains duplicates. Merge does no I/O.
func Merge(local, remote []Entry) []Entry {
	byID := make(map[string]Entry, len(local)+len(remote))
	for _, e := range local {
		if e.ID == "" {
			continue
		}
		byID[e.ID] = e
	}
	for _, e := range remote {
		if e.ID == "" {
			continue
		}
		byID[e.ID] = e
	}

	merged := make([]Entry, 0, len(byID))
	for _, e := range byID {
		merged = append(merged, e)
	}
	SortByID(merged)
	return merged
}

// Union combines any number of collections by id, keeping the first
// occurrence of each id. It is used for read-only subscriptions, where no
// side is authoritative and nothing is ever removed.
func Union(collections ...[]Entry) []Entry {
	seen := make(map[string]struct{})
	var out []Entry
	for _, c := range collections {
		for _, e := range c {
			if e.ID == "" {
				continue
			}
			if _, ok := seen[e.ID]; ok {
				continue
			}
			seen[e.ID] = struct{}{}
			out = append(out, e)
		}
	}
	if out == nil {
		out = []Entry{}
	}
	SortByID(out)
	return out
}
