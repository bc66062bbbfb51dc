package blacklist

import "sync"

type idSet map[string]struct{}

func newIDSet(entries []Entry) idSet {
	s := make(idSet, len(entries))
	for _, e := range entries {
		s[e.ID] = struct{}{}
	}
	return s
}

// Lookup answers membership queries for the filtering layer.
// It is a derived cache: the personal layer mirrors the local store after
// each sync, the subscribed layer mirrors the last subscription sync.
type Lookup struct {
	mu         sync.RWMutex
	personal   map[Partition]idSet
	subscribed map[Partition]idSet
}

// NewLookup returns an empty Lookup.
func NewLookup() *Lookup {
	return &Lookup{
		personal:   map[Partition]idSet{Subjects: {}, Items: {}},
		subscribed: map[Partition]idSet{Subjects: {}, Items: {}},
	}
}

// SetPersonal replaces the personal layer.
func (l *Lookup) SetPersonal(subjects, items []Entry) {
	s, i := newIDSet(subjects), newIDSet(items)

	l.mu.Lock()
	defer l.mu.Unlock()
	l.personal[Subjects] = s
	l.personal[Items] = i
}

// SetSubscribed replaces the subscribed layer.
func (l *Lookup) SetSubscribed(subjects, items []Entry) {
	s, i := newIDSet(subjects), newIDSet(items)

	l.mu.Lock()
	defer l.mu.Unlock()
	l.subscribed[Subjects] = s
	l.subscribed[Items] = i
}

// Has reports whether id is blacklisted in partition p by either layer.
func (l *Lookup) Has(p Partition, id string) bool {
	l.mu.RLock()
	defer l.mu.RUnlock()

	if _, ok := l.personal[p][id]; ok {
		return true
	}
	_, ok := l.subscribed[p][id]
	return ok
}

// HasSubject reports whether a seller is blacklisted.
func (l *Lookup) HasSubject(id string) bool { return l.Has(Subjects, id) }

// HasItem reports whether a listing is blacklisted.
func (l *Lookup) HasItem(id string) bool { return l.Has(Items, id) }

// Len returns the number of distinct ids blacklisted in partition p.
func (l *Lookup) Len(p Partition) int {
	l.mu.RLock()
	defer l.mu.RUnlock()

	n := len(l.personal[p])
	for id := range l.subscribed[p] {
		if _, ok := l.personal[p][id]; !ok {
			n++
		}
	}
	return n
}
