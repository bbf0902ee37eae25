package cache

import (
	"sort"

	"threadsync/pkg/models"
)

// Mode selects how CacheThreadMessages treats the existing history.
type Mode int

const (
	// Replace stores only the incoming messages.
	Replace Mode = iota
	// Append unions the incoming messages with the existing history.
	Append
)

func (m Mode) String() string {
	if m == Append {
		return "append"
	}
	return "replace"
}

// Merge unions existing and incoming, sorts ascending by timestamp (stable,
// so ties keep input order with existing first), keeps the first occurrence
// of each guid and trims to the newest max entries. The inputs are not
// modified.
func Merge(existing, incoming []models.Message, max int) []models.Message {
	candidate := make([]models.Message, 0, len(existing)+len(incoming))
	candidate = append(candidate, existing...)
	candidate = append(candidate, incoming...)

	sort.SliceStable(candidate, func(i, j int) bool {
		return candidate[i].Timestamp.Before(candidate[j].Timestamp)
	})

	seen := make(map[string]struct{}, len(candidate))
	out := candidate[:0]
	for _, m := range candidate {
		if _, dup := seen[m.GUID]; dup {
			continue
		}
		seen[m.GUID] = struct{}{}
		out = append(out, m)
	}

	if max > 0 && len(out) > max {
		out = append([]models.Message(nil), out[len(out)-max:]...)
	}
	return out
}
