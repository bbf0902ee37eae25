package models

import "time"

type Thread struct {
	ThreadGUID string `json:"thread_guid"`
	ThreadName string `json:"thread_name"`
	// Participants is ordered as the remote reports it (handles or display names)
	Participants []string `json:"participants"`
	// LastMessage is a summary of the newest message, when the remote includes one
	LastMessage *Message  `json:"last_message,omitempty"`
	UnreadCount int       `json:"unread_count"`
	LastUpdated time.Time `json:"last_updated"`
}

// MergeThreads overlays incoming threads onto existing ones keyed by
// thread_guid. The incoming record always replaces the cached one; no
// timestamp comparison is made. Existing order is kept and unseen threads
// are appended in incoming order.
func MergeThreads(existing, incoming []Thread) []Thread {
	index := make(map[string]int, len(existing)+len(incoming))
	out := make([]Thread, 0, len(existing)+len(incoming))
	for _, t := range existing {
		if i, ok := index[t.ThreadGUID]; ok {
			out[i] = t
			continue
		}
		index[t.ThreadGUID] = len(out)
		out = append(out, t)
	}
	for _, t := range incoming {
		if i, ok := index[t.ThreadGUID]; ok {
			out[i] = t
			continue
		}
		index[t.ThreadGUID] = len(out)
		out = append(out, t)
	}
	return out
}
