package logger

import (
	"strings"
	"time"

	"github.com/valyala/fasthttp"
)

var sensitiveHeaders = map[string]bool{
	"authorization": true,
	"cookie":        true,
	"x-api-key":     true,
}

func redactHeaderValue(key, val string) string {
	if sensitiveHeaders[strings.ToLower(key)] {
		return "[redacted]"
	}
	return val
}

// SafeHeadersFast builds a redacted header string for fasthttp requests.
func SafeHeadersFast(ctx *fasthttp.RequestCtx) string {
	parts := make([]string, 0)
	ctx.Request.Header.VisitAll(func(k, v []byte) {
		key := string(k)
		parts = append(parts, key+"="+redactHeaderValue(key, string(v)))
	})
	return strings.Join(parts, "; ")
}

// RequestLogMiddleware logs one line per request once the handler returns.
func RequestLogMiddleware(next fasthttp.RequestHandler) fasthttp.RequestHandler {
	return func(ctx *fasthttp.RequestCtx) {
		start := time.Now()
		next(ctx)
		if Log == nil {
			return
		}
		Debug("http_request",
			"method", string(ctx.Method()),
			"path", string(ctx.Path()),
			"status", ctx.Response.StatusCode(),
			"remote", ctx.RemoteAddr().String(),
			"duration", time.Since(start),
			"headers", SafeHeadersFast(ctx),
		)
	}
}
