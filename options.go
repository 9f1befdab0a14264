// Copyright (c) 2024 Z5Labs and Contributors
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package kiln

import (
	"log/slog"

	"github.com/z5labs/kiln/lifecycle"
	"github.com/z5labs/kiln/metrics"
	rthttp "github.com/z5labs/kiln/runtime/http"
)

// DefaultContentSecurityPolicy is sent with every response unless
// overridden with [ContentSecurityPolicy].
const DefaultContentSecurityPolicy = "default-src 'self'"

// Option configures a [Server].
type Option func(*Server)

// ContentSecurityPolicy sets the content-security-policy response header.
func ContentSecurityPolicy(csp string) Option {
	return func(s *Server) {
		s.csp = csp
	}
}

// ExposeTraces controls whether 500 responses carry the error trace in
// their body. Traces are exposed by default.
func ExposeTraces(expose bool) Option {
	return func(s *Server) {
		s.exposeTraces = expose
	}
}

// LogHandler sets the [slog.Handler] used by the server, its lifecycle
// tasks and its HTTP runtime.
func LogHandler(h slog.Handler) Option {
	return func(s *Server) {
		s.log = slog.New(h)
		s.launcher = lifecycle.NewLauncher(lifecycle.LogHandler(h))
		s.runtimeOpts = append(s.runtimeOpts, rthttp.LogHandler(h))
	}
}

// Metrics sets the recorder observing every dispatch.
func Metrics(r metrics.Recorder) Option {
	return func(s *Server) {
		s.recorder = r
	}
}

// HTTPOptions configures the HTTP runtime started by [Server.Run] and
// [Server.Start].
func HTTPOptions(opts ...rthttp.Option) Option {
	return func(s *Server) {
		s.runtimeOpts = append(s.runtimeOpts, opts...)
	}
}
