package api

import (
	"net"
	"strings"

	"github.com/valyala/fasthttp"

	"threadsync/pkg/logger"
	"threadsync/pkg/router"
)

// Gateway applies CORS for allowed origins and the per-IP rate limit.
// Health and metrics endpoints bypass the limit.
func (s *Server) Gateway(next fasthttp.RequestHandler) fasthttp.RequestHandler {
	return func(ctx *fasthttp.RequestCtx) {
		origin := string(ctx.Request.Header.Peek("Origin"))
		if origin != "" && originAllowed(origin, s.opts.AllowedOrigins) {
			ctx.Response.Header.Set("Access-Control-Allow-Origin", origin)
			ctx.Response.Header.Set("Vary", "Origin")
			ctx.Response.Header.Set("Access-Control-Allow-Methods", "GET,POST,DELETE,OPTIONS")
			ctx.Response.Header.Set("Access-Control-Allow-Headers", "Content-Type,X-Request-Id")
			ctx.Response.Header.Set("Access-Control-Max-Age", "600")
		}
		if string(ctx.Method()) == fasthttp.MethodOptions {
			ctx.SetStatusCode(fasthttp.StatusNoContent)
			return
		}

		if publicPath(string(ctx.Path())) {
			next(ctx)
			return
		}

		ip := clientIP(ctx)
		if !s.limiters.Allow(ip) {
			logger.Warn("rate_limited", "ip", ip, "path", string(ctx.Path()))
			router.WriteJSONError(ctx, fasthttp.StatusTooManyRequests, "rate limit exceeded")
			return
		}
		next(ctx)
	}
}

func clientIP(ctx *fasthttp.RequestCtx) string {
	host := ctx.RemoteAddr().String()
	h, _, err := net.SplitHostPort(host)
	if err != nil {
		return host
	}
	return h
}

func originAllowed(origin string, allowed []string) bool {
	for _, a := range allowed {
		if a == "*" || strings.EqualFold(a, origin) {
			return true
		}
	}
	return false
}

func publicPath(path string) bool {
	return path == "/healthz" || path == "/readyz" || path == "/metrics"
}
