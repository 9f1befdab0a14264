// Copyright (c) 2023 Z5Labs and Contributors
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package http

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/z5labs/kiln/internal/fixedpool"
	"github.com/z5labs/kiln/pkg/noop"
	"github.com/z5labs/kiln/pkg/slogfield"
	"github.com/z5labs/kiln/transport"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

// DefaultChunkSize is the largest request body chunk handed to the application.
const DefaultChunkSize = 64 * 1024

// Option is a functional option for configuring a [Runtime].
type Option func(*Runtime)

// ReadTimeout sets the maximum duration for reading the entire request,
// including the body. The default is 5 seconds.
func ReadTimeout(d time.Duration) Option {
	return func(r *Runtime) {
		r.srv.ReadTimeout = d
	}
}

// ReadHeaderTimeout sets the maximum duration for reading request
// headers. The default is 2 seconds.
func ReadHeaderTimeout(d time.Duration) Option {
	return func(r *Runtime) {
		r.srv.ReadHeaderTimeout = d
	}
}

// WriteTimeout sets the maximum duration before timing out writes of
// the response. The default is 10 seconds.
func WriteTimeout(d time.Duration) Option {
	return func(r *Runtime) {
		r.srv.WriteTimeout = d
	}
}

// IdleTimeout sets the maximum duration to wait for the next request
// when keep-alives are enabled. The default is 120 seconds.
func IdleTimeout(d time.Duration) Option {
	return func(r *Runtime) {
		r.srv.IdleTimeout = d
	}
}

// MaxHeaderBytes sets the maximum number of bytes the server will read
// parsing the request header's keys and values, including the request
// line. The default is 1048576 bytes (1 MB).
func MaxHeaderBytes(n int) Option {
	return func(r *Runtime) {
		r.srv.MaxHeaderBytes = n
	}
}

// TLSConfig serves HTTPS by wrapping the listener with the given config.
func TLSConfig(cfg *tls.Config) Option {
	return func(r *Runtime) {
		r.tlsConfig = cfg
	}
}

// ChunkSize sets the largest request body chunk handed to the application.
func ChunkSize(n int) Option {
	return func(r *Runtime) {
		if n > 0 {
			r.chunkSize = n
		}
	}
}

// LogHandler sets the [slog.Handler] used by the [Runtime].
func LogHandler(h slog.Handler) Option {
	return func(r *Runtime) {
		r.log = slog.New(h)
	}
}

// StartupError is returned from [Runtime.Run] when the application fails
// the lifespan startup.
type StartupError struct {
	Cause error
}

// Error implements the [builtin.error] interface.
func (e StartupError) Error() string {
	return fmt.Sprintf("startup failed: %s", e.Cause)
}

// Unwrap implements the implicit interface used by [errors.Is] and [errors.As].
func (e StartupError) Unwrap() error {
	return e.Cause
}

// ShutdownError is returned from [Runtime.Run] when the application
// fails the lifespan shutdown.
type ShutdownError struct {
	Cause error
}

// Error implements the [builtin.error] interface.
func (e ShutdownError) Error() string {
	return fmt.Sprintf("shutdown failed: %s", e.Cause)
}

// Unwrap implements the implicit interface used by [errors.Is] and [errors.As].
func (e ShutdownError) Unwrap() error {
	return e.Cause
}

// Listen opens a TCP listener on host and port. A port of 0 picks a
// free port.
func Listen(ctx context.Context, host string, port uint) (net.Listener, error) {
	var lc net.ListenConfig
	return lc.Listen(ctx, "tcp", net.JoinHostPort(host, strconv.FormatUint(uint64(port), 10)))
}

// Runtime serves a [transport.Handler] over HTTP.
type Runtime struct {
	ls        net.Listener
	app       transport.Handler
	srv       *http.Server
	tlsConfig *tls.Config
	chunkSize int
	log       *slog.Logger
}

// New returns a [Runtime] which will serve app on ls.
func New(ls net.Listener, app transport.Handler, opts ...Option) *Runtime {
	r := &Runtime{
		ls:        ls,
		app:       app,
		chunkSize: DefaultChunkSize,
		log:       slog.New(noop.LogHandler{}),
		srv: &http.Server{
			ReadTimeout:       5 * time.Second,
			ReadHeaderTimeout: 2 * time.Second,
			WriteTimeout:      10 * time.Second,
			IdleTimeout:       120 * time.Second,
			MaxHeaderBytes:    1048576,
		},
	}
	for _, opt := range opts {
		opt(r)
	}

	r.srv.Handler = otelhttp.NewHandler(
		r,
		"server",
		otelhttp.WithMessageEvents(otelhttp.ReadEvents, otelhttp.WriteEvents),
	)
	r.srv.ErrorLog = slog.NewLogLogger(r.log.Handler(), slog.LevelWarn)
	if r.tlsConfig != nil {
		r.ls = tls.NewListener(ls, r.tlsConfig)
	}
	return r
}

// Addr returns the address the [Runtime] listens on.
func (r *Runtime) Addr() net.Addr {
	return r.ls.Addr()
}

// Run delivers the lifespan startup event, serves HTTP until the context
// is cancelled and then delivers the lifespan shutdown event once every
// in-flight request has completed.
func (r *Runtime) Run(ctx context.Context) error {
	ls := newLifespan()
	go ls.run(ctx, r.app)

	supported, err := ls.exchange(ctx, transport.LifespanStartup{}, transport.LifespanStartupComplete{})
	if err != nil {
		r.ls.Close()
		ls.close()
		return StartupError{Cause: err}
	}
	if !supported {
		r.log.DebugContext(ctx, "application does not handle lifespan events")
	}

	r.log.InfoContext(ctx, "serving http", slogfield.String("addr", r.ls.Addr().String()))
	err = fixedpool.Wait(
		ctx,
		func(ctx context.Context) error {
			return r.srv.Serve(r.ls)
		},
		func(ctx context.Context) error {
			<-ctx.Done()
			r.log.InfoContext(ctx, "shutting down http server")
			return r.srv.Shutdown(context.WithoutCancel(ctx))
		},
	)
	if err == nil || errors.Is(err, context.Canceled) || errors.Is(err, http.ErrServerClosed) {
		err = nil
	}
	if err != nil {
		r.log.ErrorContext(ctx, "http server encountered unexpected error", slogfield.Error(err))
	}

	if supported {
		_, serr := ls.exchange(context.WithoutCancel(ctx), transport.LifespanShutdown{}, transport.LifespanShutdownComplete{})
		if serr != nil {
			err = errors.Join(err, ShutdownError{Cause: serr})
		}
	}
	ls.close()
	return err
}
