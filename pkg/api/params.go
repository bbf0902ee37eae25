package api

import (
	"strconv"
	"strings"
	"time"

	"github.com/valyala/fasthttp"
)

// queryBool treats "1", "true" and "yes" as true and a bare ?key as true.
func queryBool(ctx *fasthttp.RequestCtx, key string) bool {
	args := ctx.QueryArgs()
	if !args.Has(key) {
		return false
	}
	switch strings.ToLower(strings.TrimSpace(string(args.Peek(key)))) {
	case "", "1", "true", "yes":
		return true
	}
	return false
}

// queryInt returns def for a missing value and ok=false for a malformed one.
func queryInt(ctx *fasthttp.RequestCtx, key string, def int) (int, bool) {
	v := strings.TrimSpace(string(ctx.QueryArgs().Peek(key)))
	if v == "" {
		return def, true
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 0 {
		return 0, false
	}
	return n, true
}

// queryDuration accepts "5s"-style durations or bare seconds.
func queryDuration(ctx *fasthttp.RequestCtx, key string, def time.Duration) (time.Duration, bool) {
	v := strings.TrimSpace(string(ctx.QueryArgs().Peek(key)))
	if v == "" {
		return def, true
	}
	if secs, err := strconv.ParseFloat(v, 64); err == nil {
		if secs <= 0 {
			return 0, false
		}
		return time.Duration(secs * float64(time.Second)), true
	}
	d, err := time.ParseDuration(v)
	if err != nil || d <= 0 {
		return 0, false
	}
	return d, true
}
