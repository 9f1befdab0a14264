// Copyright (c) 2025 Z5Labs and Contributors
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package http

import (
	"context"
	"errors"
	"io"
	"net/http"
	"sort"

	"github.com/z5labs/kiln/internal/try"
	"github.com/z5labs/kiln/pkg/slogfield"
	"github.com/z5labs/kiln/transport"
)

// ServeHTTP implements the [http.Handler] interface by handing the
// request to the application as a [transport.KindHTTP] event.
func (r *Runtime) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	ctx := req.Context()

	scope := transport.Scope{
		Kind:        transport.KindHTTP,
		Method:      req.Method,
		Path:        req.URL.Path,
		Headers:     headers(req),
		QueryString: []byte(req.URL.RawQuery),
	}
	body := &bodyReceiver{
		body: req.Body,
		buf:  make([]byte, r.chunkSize),
	}
	resp := &responder{w: w}

	err := r.serve(ctx, scope, body.receive, resp.send)
	if err == nil {
		return
	}

	r.log.ErrorContext(
		ctx,
		"application failed to handle request",
		slogfield.Method(req.Method),
		slogfield.Path(req.URL.Path),
		slogfield.Error(err),
	)
	if !resp.started {
		http.Error(w, "Internal server error", http.StatusInternalServerError)
	}
}

func (r *Runtime) serve(ctx context.Context, scope transport.Scope, receive transport.ReceiveFunc, send transport.SendFunc) (err error) {
	defer try.Recover(&err)

	return r.app.Serve(ctx, scope, receive, send)
}

func headers(req *http.Request) []transport.Header {
	names := make([]string, 0, len(req.Header))
	for name := range req.Header {
		names = append(names, name)
	}
	sort.Strings(names)

	hs := make([]transport.Header, 0, len(names)+1)
	if req.Host != "" {
		hs = append(hs, transport.NewHeader("host", req.Host))
	}
	for _, name := range names {
		for _, value := range req.Header[name] {
			hs = append(hs, transport.NewHeader(name, value))
		}
	}
	return hs
}

type bodyReceiver struct {
	body io.Reader
	buf  []byte
	done bool
}

// receive returns the body in chunks. Once the body is exhausted it
// blocks until the request context ends and reports a disconnect.
func (b *bodyReceiver) receive(ctx context.Context) (transport.Message, error) {
	if b.done || b.body == nil {
		<-ctx.Done()
		return transport.Disconnect{}, nil
	}

	n, err := io.ReadFull(b.body, b.buf)
	switch {
	case err == nil:
		return transport.Request{Body: clone(b.buf[:n]), MoreBody: true}, nil
	case errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF):
		b.done = true
		return transport.Request{Body: clone(b.buf[:n]), MoreBody: false}, nil
	default:
		b.done = true
		return transport.Disconnect{}, nil
	}
}

func clone(b []byte) []byte {
	c := make([]byte, len(b))
	copy(c, b)
	return c
}

type responder struct {
	w        http.ResponseWriter
	started  bool
	finished bool
}

func (r *responder) send(ctx context.Context, msg transport.Message) error {
	switch m := msg.(type) {
	case transport.ResponseStart:
		if r.started {
			return transport.ProtocolError{Message: msg, Reason: "response already started"}
		}
		r.started = true

		h := r.w.Header()
		for _, header := range m.Headers {
			h.Add(header.Name, header.Value)
		}
		r.w.WriteHeader(m.Status)
		return nil
	case transport.ResponseBody:
		if !r.started {
			return transport.ProtocolError{Message: msg, Reason: "response not started"}
		}
		if r.finished {
			return transport.ProtocolError{Message: msg, Reason: "response already finished"}
		}
		r.finished = !m.MoreBody

		if len(m.Body) > 0 {
			_, err := r.w.Write(m.Body)
			if err != nil {
				return err
			}
		}
		if f, ok := r.w.(http.Flusher); ok && m.MoreBody {
			f.Flush()
		}
		return nil
	default:
		return transport.ProtocolError{Message: msg, Reason: "unexpected http message"}
	}
}
