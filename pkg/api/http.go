package api

import (
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/valyala/fasthttp"
	"github.com/valyala/fasthttp/fasthttpadaptor"

	"threadsync/pkg/logger"
	"threadsync/pkg/router"
)

// RegisterRoutes wires every local API route onto r.
func (s *Server) RegisterRoutes(r *router.Router) {
	r.GET("/healthz", s.Health)
	r.GET("/readyz", s.Ready)
	r.GET("/metrics", fasthttpadaptor.NewFastHTTPHandler(promhttp.Handler()))

	// threads
	r.GET("/v1/threads", s.ReadThreads)

	// thread messages
	r.GET("/v1/threads/{threadGUID}/messages", s.ReadThreadMessages)
	r.GET("/v1/threads/{threadGUID}/messages/older", s.ReadOlderMessages)
	r.POST("/v1/threads/{threadGUID}/messages", s.AddMessage)
	r.POST("/v1/threads/{threadGUID}/send", s.SendMessage)
	r.DELETE("/v1/threads/{threadGUID}/cache", s.ClearThread)

	// cache
	r.GET("/v1/cache/stats", s.CacheStats)
	r.DELETE("/v1/cache", s.ClearCache)

	// polling
	r.GET("/v1/polling", s.PollingStatus)
	r.POST("/v1/polling/start", s.StartPolling)
	r.POST("/v1/polling/stop", s.StopPolling)

	r.NotFound(func(ctx *fasthttp.RequestCtx) {
		router.WriteJSONError(ctx, fasthttp.StatusNotFound, "not found")
	})
}

// Handler returns the full request chain: logging, gateway checks, routes.
func (s *Server) Handler() fasthttp.RequestHandler {
	r := router.New()
	s.RegisterRoutes(r)
	return logger.RequestLogMiddleware(s.Gateway(r.Handler))
}

func (s *Server) Health(ctx *fasthttp.RequestCtx) {
	_ = router.WriteJSON(ctx, map[string]string{"status": "ok"})
}

func (s *Server) Ready(ctx *fasthttp.RequestCtx) {
	if s.opts.Ready != nil {
		if err := s.opts.Ready(); err != nil {
			router.WriteJSONError(ctx, fasthttp.StatusServiceUnavailable, err.Error())
			return
		}
	}
	_ = router.WriteJSON(ctx, map[string]string{"status": "ready"})
}
