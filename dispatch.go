// Copyright (c) 2024 Z5Labs and Contributors
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package kiln

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/z5labs/kiln/internal/try"
	"github.com/z5labs/kiln/metrics"
	"github.com/z5labs/kiln/pkg/slogfield"
	"github.com/z5labs/kiln/resource"
	"github.com/z5labs/kiln/route"
	"github.com/z5labs/kiln/transport"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

const textContentType = "text/plain;charset=UTF-8"

type response struct {
	status  int
	headers []transport.Header
	body    []byte
}

func textResponse(status int, body string) response {
	return response{
		status: status,
		headers: []transport.Header{
			transport.NewHeader("content-type", textContentType),
		},
		body: []byte(body),
	}
}

func (s *Server) match(path string) (Route, route.Params, bool) {
	for _, r := range s.routes {
		params, ok := r.Matcher.Match(path)
		if ok {
			return r, params, true
		}
	}
	return Route{}, nil, false
}

func (s *Server) dispatch(ctx context.Context, scope transport.Scope, receive transport.ReceiveFunc, send transport.SendFunc) error {
	start := time.Now()
	s.recorder.Begin(ctx)

	log := s.log.With(slogfield.Method(scope.Method), slogfield.Path(scope.Path))

	pattern := metrics.UnmatchedRoute
	var resp response
	r, params, ok := s.match(scope.Path)
	if !ok {
		log.DebugContext(ctx, "no route matched")
		resp = textResponse(http.StatusNotFound, "Not found")
	} else {
		pattern = r.Pattern
		span := trace.SpanFromContext(ctx)
		span.SetAttributes(attribute.String("http.route", pattern))
		span.SetName(scope.Method + " " + pattern)

		log = log.With(slogfield.Route(pattern))
		resp = s.respond(ctx, log, r.Resource, scope, params, receive)
	}

	err := s.send(ctx, resp, send)

	s.recorder.Observe(ctx, metrics.Observation{
		Route:    pattern,
		Method:   scope.Method,
		Status:   resp.status,
		Duration: time.Since(start),
	})
	return err
}

func (s *Server) respond(ctx context.Context, log *slog.Logger, res resource.Resource, scope transport.Scope, params route.Params, receive transport.ReceiveFunc) response {
	resp, err := s.process(ctx, res, scope, params, receive)
	if err == nil {
		return resp
	}

	var (
		perr  try.PanicError
		rerr  resource.RedirectError
		brerr resource.BadRequestError
		nferr resource.NotFoundError
	)
	switch {
	case errors.As(err, &perr):
	case errors.As(err, &rerr):
		log.InfoContext(ctx, "redirecting", slogfield.String("location", rerr.Location))
		return response{
			status: http.StatusSeeOther,
			headers: []transport.Header{
				transport.NewHeader("location", rerr.Location),
			},
		}
	case errors.As(err, &brerr):
		log.InfoContext(ctx, "bad request", slogfield.Error(err))
		return textResponse(http.StatusBadRequest, "Bad request: "+brerr.Error())
	case errors.As(err, &nferr):
		log.InfoContext(ctx, "resource not found", slogfield.Error(err))
		return textResponse(http.StatusNotFound, "Not found")
	}

	log.ErrorContext(ctx, "failed to process request", slogfield.Error(err))
	span := trace.SpanFromContext(ctx)
	span.RecordError(err)

	if !s.exposeTraces {
		return textResponse(http.StatusInternalServerError, "Internal server error")
	}
	return textResponse(http.StatusInternalServerError, formatTrace(err))
}

func (s *Server) process(ctx context.Context, res resource.Resource, scope transport.Scope, params route.Params, receive transport.ReceiveFunc) (resp response, err error) {
	defer try.Recover(&err)

	req, err := resource.NewRequest(scope, params, receive)
	if err != nil {
		return response{}, err
	}
	if !resource.Allows(res, req.Method()) {
		return response{}, resource.BadRequestError{Reason: "Illegal method"}
	}

	entity, err := res.Process(ctx, req)
	if err != nil {
		return response{}, err
	}

	etag, err := res.ETag(ctx, req, entity)
	if err != nil {
		return response{}, err
	}

	var headers []transport.Header
	if etag != "" {
		etag = `"` + etag + `"`
		headers = append(headers, transport.NewHeader("etag", etag))
		if req.Header("if-none-match") == etag {
			return response{status: http.StatusNotModified, headers: headers}, nil
		}
	}
	if req.Method() == http.MethodHead {
		return response{status: http.StatusOK, headers: headers}, nil
	}

	body, err := res.Render(ctx, req, entity)
	if err != nil {
		return response{}, err
	}
	contentType, err := res.ContentType(ctx, req, entity)
	if err != nil {
		return response{}, err
	}
	if contentType != "" {
		headers = append(headers, transport.NewHeader("content-type", contentType))
	}
	return response{status: http.StatusOK, headers: headers, body: body}, nil
}

func (s *Server) send(ctx context.Context, resp response, send transport.SendFunc) error {
	headers := append(resp.headers,
		transport.NewHeader("content-security-policy", s.csp),
		transport.NewHeader("referrer-policy", "no-referrer"),
		transport.NewHeader("x-content-type-options", "nosniff"),
	)

	err := send(ctx, transport.ResponseStart{
		Status:  resp.status,
		Headers: headers,
	})
	if err != nil {
		return err
	}
	return send(ctx, transport.ResponseBody{Body: resp.body})
}

// formatTrace renders the error chain followed by the stack of any
// recovered panic.
func formatTrace(err error) string {
	var sb strings.Builder
	cause := err
	for depth := 0; cause != nil; depth++ {
		fmt.Fprintf(&sb, "%s%T: %s\n", strings.Repeat("  ", depth), cause, cause)
		cause = errors.Unwrap(cause)
	}

	var perr try.PanicError
	if errors.As(err, &perr) {
		sb.WriteString("\n")
		sb.WriteString(perr.Trace())
	}
	return sb.String()
}
