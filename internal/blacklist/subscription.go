package blacklist

import (
	"fmt"
	"strings"
)

// Subscription references a third party's remote list.
// Subscribed lists are read-only and only ever added to the local view.
type Subscription struct {
	ID         string `json:"id"`
	Name       string `json:"name"`
	Enabled    bool   `json:"enabled"`
	LastSynced *int64 `json:"lastSynced,omitempty"` // ms since epoch, nil if never synced
}

// AddSubscription returns subs with s appended, or an error if the id is
// blank or already subscribed.
func AddSubscription(subs []Subscription, s Subscription) ([]Subscription, error) {
	s.ID = strings.TrimSpace(s.ID)
	if s.ID == "" {
		return nil, fmt.Errorf("subscription id cannot be empty")
	}
	for _, existing := range subs {
		if existing.ID == s.ID {
			return nil, fmt.Errorf("already subscribed to %s", s.ID)
		}
	}
	return append(append([]Subscription{}, subs...), s), nil
}

// RemoveSubscription returns subs without id and whether it was present.
func RemoveSubscription(subs []Subscription, id string) ([]Subscription, bool) {
	out := make([]Subscription, 0, len(subs))
	found := false
	for _, s := range subs {
		if s.ID == id {
			found = true
			continue
		}
		out = append(out, s)
	}
	return out, found
}

// SetSubscriptionEnabled toggles a subscription and reports whether it was found.
func SetSubscriptionEnabled(subs []Subscription, id string, enabled bool) bool {
	for i := range subs {
		if subs[i].ID == id {
			subs[i].Enabled = enabled
			return true
		}
	}
	return false
}
