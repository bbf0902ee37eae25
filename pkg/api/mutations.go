package api

import (
	"encoding/json"
	"strings"

	"github.com/valyala/fasthttp"

	"threadsync/pkg/logger"
	"threadsync/pkg/models"
	"threadsync/pkg/router"
)

// AddMessage inserts a message the UI already has (usually one it just
// sent) into the cached history.
func (s *Server) AddMessage(ctx *fasthttp.RequestCtx) {
	guid := router.Param(ctx, "threadGUID")
	var m models.Message
	if err := json.Unmarshal(ctx.PostBody(), &m); err != nil {
		router.WriteJSONError(ctx, fasthttp.StatusBadRequest, "invalid json")
		return
	}
	if strings.TrimSpace(m.GUID) == "" {
		router.WriteJSONError(ctx, fasthttp.StatusBadRequest, "guid is required")
		return
	}
	if m.ThreadGUID != "" && m.ThreadGUID != guid {
		router.WriteJSONError(ctx, fasthttp.StatusBadRequest, "thread_guid does not match path")
		return
	}
	if m.Timestamp.IsZero() {
		router.WriteJSONError(ctx, fasthttp.StatusBadRequest, "timestamp is required")
		return
	}
	if m.Direction != "" && !m.Direction.Valid() {
		router.WriteJSONError(ctx, fasthttp.StatusBadRequest, "invalid direction")
		return
	}
	writeMessages(ctx, s.sync.AddMessageToCache(ctx, guid, m))
}

func (s *Server) SendMessage(ctx *fasthttp.RequestCtx) {
	guid := router.Param(ctx, "threadGUID")
	var out models.OutgoingMessage
	if err := json.Unmarshal(ctx.PostBody(), &out); err != nil {
		router.WriteJSONError(ctx, fasthttp.StatusBadRequest, "invalid json")
		return
	}
	if out.Empty() {
		router.WriteJSONError(ctx, fasthttp.StatusBadRequest, "message or attachment is required")
		return
	}
	sent, err := s.sync.SendMessage(ctx, guid, out)
	if err != nil {
		writeRemoteError(ctx, "send_message", err)
		return
	}
	router.WriteJSONStatus(ctx, fasthttp.StatusCreated, models.SendResponse{Message: sent, Status: "sent"})
}

func (s *Server) ClearThread(ctx *fasthttp.RequestCtx) {
	guid := router.Param(ctx, "threadGUID")
	s.sync.ClearThread(ctx, guid)
	logger.Info("thread_cache_cleared", "thread", guid)
	ctx.SetStatusCode(fasthttp.StatusNoContent)
}

func (s *Server) ClearCache(ctx *fasthttp.RequestCtx) {
	s.sync.ClearCache(ctx)
	logger.Info("cache_cleared")
	ctx.SetStatusCode(fasthttp.StatusNoContent)
}

type pollingStatus struct {
	Running  bool   `json:"running"`
	Interval string `json:"interval,omitempty"`
}

func (s *Server) writePolling(ctx *fasthttp.RequestCtx) {
	st := pollingStatus{Running: s.poll.Running()}
	if st.Running {
		st.Interval = s.poll.Interval().String()
	}
	_ = router.WriteJSON(ctx, st)
}

func (s *Server) PollingStatus(ctx *fasthttp.RequestCtx) {
	s.writePolling(ctx)
}

func (s *Server) StartPolling(ctx *fasthttp.RequestCtx) {
	interval, ok := queryDuration(ctx, "interval", s.opts.DefaultPollInterval)
	if !ok {
		router.WriteJSONError(ctx, fasthttp.StatusBadRequest, "invalid interval")
		return
	}
	s.poll.Start(s.opts.PollContext, interval)
	s.writePolling(ctx)
}

func (s *Server) StopPolling(ctx *fasthttp.RequestCtx) {
	s.poll.Stop()
	s.writePolling(ctx)
}
