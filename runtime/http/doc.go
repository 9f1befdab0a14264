// Copyright (c) 2026 Z5Labs and Contributors
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

// Package http drives a [transport.Handler] with a net/http server.
//
// A [Runtime] translates every inbound HTTP request into a
// [transport.Scope] of kind [transport.KindHTTP] along with a receive
// func streaming the request body in chunks and a send func writing
// the response. Around serving it runs a single lifespan event: a
// [transport.LifespanStartup] is delivered before the listener accepts
// connections and a [transport.LifespanShutdown] once the server has
// drained.
//
// # Server Options
//
//   - ReadTimeout: maximum duration for reading the entire request (default 5s)
//   - ReadHeaderTimeout: maximum duration for reading headers (default 2s)
//   - WriteTimeout: maximum duration before timing out writes (default 10s)
//   - IdleTimeout: maximum keep-alive wait for the next request (default 120s)
//   - MaxHeaderBytes: maximum size of the request header (default 1 MiB)
//   - TLSConfig: serve HTTPS on the listener
//
// Handlers which do not take part in the lifespan protocol may simply
// return nil from the lifespan event.
package http
