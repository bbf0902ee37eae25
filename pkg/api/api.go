// Package api exposes the sync layer to the local UI over HTTP.
package api

import (
	"context"
	"time"

	"threadsync/pkg/cache"
	"threadsync/pkg/models"
	"threadsync/pkg/ratelimit"
)

// Syncer is the read/write surface handlers call into.
type Syncer interface {
	GetThreads(ctx context.Context, force bool) ([]models.Thread, error)
	GetThreadMessages(ctx context.Context, threadGUID string, force bool) ([]models.Message, error)
	LoadOlderMessages(ctx context.Context, threadGUID string, limit int) ([]models.Message, error)
	AddMessageToCache(ctx context.Context, threadGUID string, msg models.Message) []models.Message
	SendMessage(ctx context.Context, threadGUID string, out models.OutgoingMessage) (*models.Message, error)
	ClearThread(ctx context.Context, threadGUID string)
	ClearCache(ctx context.Context)
	GetCacheStats(ctx context.Context) cache.Stats
}

// Polling controls the periodic recent-messages pull.
type Polling interface {
	Start(ctx context.Context, interval time.Duration)
	Stop()
	Running() bool
	Interval() time.Duration
}

type Options struct {
	// RateLimitRPS is the per-client-IP request rate; zero disables.
	RateLimitRPS   float64
	RateLimitBurst int
	AllowedOrigins []string
	// PollContext bounds polling loops started over HTTP; they outlive the
	// request that started them.
	PollContext context.Context
	// Ready reports readiness for /readyz; nil means always ready.
	Ready func() error
	// DefaultPollInterval is used when /v1/polling/start has no interval.
	DefaultPollInterval time.Duration
}

// Server holds handler dependencies.
type Server struct {
	sync     Syncer
	poll     Polling
	opts     Options
	limiters *ratelimit.Pool
}

func New(s Syncer, p Polling, opts Options) *Server {
	if opts.PollContext == nil {
		opts.PollContext = context.Background()
	}
	if opts.DefaultPollInterval <= 0 {
		opts.DefaultPollInterval = 10 * time.Second
	}
	return &Server{
		sync:     s,
		poll:     p,
		opts:     opts,
		limiters: ratelimit.NewPool(opts.RateLimitRPS, opts.RateLimitBurst),
	}
}

// Limiters exposes the per-IP limiter pool so its eviction loop can be run.
func (s *Server) Limiters() *ratelimit.Pool { return s.limiters }
