// Package remote talks to the messaging server that owns the canonical
// threads and messages.
package remote

import (
	"context"
	"time"

	"threadsync/pkg/models"
)

// Source is the remote contract the sync layer consumes.
type Source interface {
	// ListThreads returns threads updated at or after since, when given.
	ListThreads(ctx context.Context, limit int, since *time.Time) ([]models.Thread, error)
	// ListMessages returns a thread's messages strictly older than before,
	// when given.
	ListMessages(ctx context.Context, threadGUID string, limit int, before *time.Time) ([]models.Message, error)
	// ListRecentMessages returns messages from every thread since the
	// watermark.
	ListRecentMessages(ctx context.Context, limit int, since time.Time) ([]models.Message, error)
	SendMessage(ctx context.Context, threadGUID string, out models.OutgoingMessage) (*models.Message, error)
}
