package models

import "time"

type Direction string

const (
	DirectionIncoming Direction = "incoming"
	DirectionOutgoing Direction = "outgoing"
)

// Valid reports whether d is one of the known directions.
func (d Direction) Valid() bool {
	return d == DirectionIncoming || d == DirectionOutgoing
}

type Attachment struct {
	URL      string `json:"url"`
	MimeType string `json:"mime_type"`
}

type Reaction struct {
	Type     string   `json:"type"`
	Count    int      `json:"count"`
	Reactors []string `json:"reactors,omitempty"`
}

type Message struct {
	GUID       string    `json:"guid"`
	ThreadGUID string    `json:"thread_guid"`
	Timestamp  time.Time `json:"timestamp"`
	SenderName string    `json:"sender_name"`
	// Text is nil for attachment-only messages
	Text        *string      `json:"text,omitempty"`
	Attachments []Attachment `json:"attachments"`
	Reactions   []Reaction   `json:"reactions"`
	Direction   Direction    `json:"direction"`
}

// OutgoingMessage is the payload accepted by the remote send endpoint.
type OutgoingMessage struct {
	Text       string `json:"message,omitempty"`
	Attachment string `json:"attachment,omitempty"`
}

// Empty reports whether there is nothing to send.
func (o OutgoingMessage) Empty() bool {
	return o.Text == "" && o.Attachment == ""
}

// GroupByThread buckets messages by thread_guid, keeping feed order inside
// each bucket. The returned keys slice lists threads in first-seen order.
func GroupByThread(msgs []Message) (map[string][]Message, []string) {
	grouped := make(map[string][]Message)
	var order []string
	for _, m := range msgs {
		if _, ok := grouped[m.ThreadGUID]; !ok {
			order = append(order, m.ThreadGUID)
		}
		grouped[m.ThreadGUID] = append(grouped[m.ThreadGUID], m)
	}
	return grouped, order
}
