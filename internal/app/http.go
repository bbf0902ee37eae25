package app

import (
	"context"
	"net"
	"time"

	"github.com/valyala/fasthttp"
)

// startHTTP builds and starts the fasthttp server, returning a channel that
// delivers its terminal error.
func (a *App) startHTTP(_ context.Context) <-chan error {
	const (
		readBufferSize       = 64 * 1024        // 64 KiB read buffer per connection
		maxRequestBodySize   = 5 * 1024 * 1024  // 5 MiB max request body
		readTimeout          = 10 * time.Second // timeout for reading request
		writeTimeout         = 10 * time.Second // timeout for writing response
		idleTimeout          = 30 * time.Second // max keep-alive idle duration per connection
		maxKeepaliveDuration = 2 * time.Minute  // max duration for keep-alive connection
	)
	a.srvFast = &fasthttp.Server{
		Name:                 "threadsync",
		Handler:              a.api.Handler(),
		ReadBufferSize:       readBufferSize,
		MaxRequestBodySize:   maxRequestBodySize,
		ReduceMemoryUsage:    true,
		ReadTimeout:          readTimeout,
		WriteTimeout:         writeTimeout,
		IdleTimeout:          idleTimeout,
		MaxKeepaliveDuration: maxKeepaliveDuration,
	}

	errCh := make(chan error, 1)
	go func() {
		if a.listener != nil {
			errCh <- a.srvFast.Serve(a.listener)
			return
		}
		errCh <- a.srvFast.ListenAndServe(a.eff.Addr)
	}()
	return errCh
}

// UseListener makes Run serve on ln instead of listening on the configured
// address. It must be called before Run.
func (a *App) UseListener(ln net.Listener) { a.listener = ln }
