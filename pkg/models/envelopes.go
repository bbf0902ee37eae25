package models

// ThreadsResponse is the body of GET /threads.
type ThreadsResponse struct {
	Threads []Thread `json:"threads"`
}

// MessagesResponse is the body of the message list endpoints.
type MessagesResponse struct {
	Messages []Message `json:"messages"`
}

// SendResponse is the body returned by the send endpoint. Some servers return
// the persisted message at the top level, others wrap it.
type SendResponse struct {
	Message *Message `json:"message,omitempty"`
	Status  string   `json:"status,omitempty"`
}
