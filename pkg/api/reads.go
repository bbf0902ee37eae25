package api

import (
	"errors"

	"github.com/valyala/fasthttp"

	"threadsync/pkg/logger"
	"threadsync/pkg/models"
	"threadsync/pkg/remote"
	"threadsync/pkg/router"
)

const maxOlderPage = 500

func (s *Server) ReadThreads(ctx *fasthttp.RequestCtx) {
	threads, err := s.sync.GetThreads(ctx, queryBool(ctx, "force"))
	if err != nil {
		writeRemoteError(ctx, "read_threads", err)
		return
	}
	if threads == nil {
		threads = []models.Thread{}
	}
	_ = router.WriteJSON(ctx, models.ThreadsResponse{Threads: threads})
}

func (s *Server) ReadThreadMessages(ctx *fasthttp.RequestCtx) {
	guid := router.Param(ctx, "threadGUID")
	msgs, err := s.sync.GetThreadMessages(ctx, guid, queryBool(ctx, "force"))
	if err != nil {
		writeRemoteError(ctx, "read_thread_messages", err)
		return
	}
	writeMessages(ctx, msgs)
}

func (s *Server) ReadOlderMessages(ctx *fasthttp.RequestCtx) {
	guid := router.Param(ctx, "threadGUID")
	limit, ok := queryInt(ctx, "limit", 0)
	if !ok || limit > maxOlderPage {
		router.WriteJSONError(ctx, fasthttp.StatusBadRequest, "invalid limit")
		return
	}
	msgs, err := s.sync.LoadOlderMessages(ctx, guid, limit)
	if err != nil {
		writeRemoteError(ctx, "read_older_messages", err)
		return
	}
	writeMessages(ctx, msgs)
}

func (s *Server) CacheStats(ctx *fasthttp.RequestCtx) {
	_ = router.WriteJSON(ctx, s.sync.GetCacheStats(ctx))
}

func writeMessages(ctx *fasthttp.RequestCtx, msgs []models.Message) {
	if msgs == nil {
		msgs = []models.Message{}
	}
	_ = router.WriteJSON(ctx, models.MessagesResponse{Messages: msgs})
}

// writeRemoteError answers a remote failure that had no cache to fall back
// on: 504 for timeouts, 502 otherwise, with a readable message.
func writeRemoteError(ctx *fasthttp.RequestCtx, op string, err error) {
	classified := remote.Classify(err)
	logger.Warn("remote_unavailable", "op", op, "error", classified)
	status := fasthttp.StatusBadGateway
	if errors.Is(classified, remote.ErrTimeout) {
		status = fasthttp.StatusGatewayTimeout
	}
	router.WriteJSONError(ctx, status, classified.Error())
}
