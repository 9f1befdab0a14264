// Copyright (c) 2025 Z5Labs and Contributors
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package http

import (
	"context"
	"errors"
	"sync"

	"github.com/z5labs/kiln/internal/try"
	"github.com/z5labs/kiln/transport"
)

// ErrLifespanClosed is returned to the application when it receives or
// sends a lifespan message after the runtime stopped listening.
var ErrLifespanClosed = errors.New("lifespan: closed")

type lifespan struct {
	inbox  chan transport.Message
	outbox chan transport.Message

	// done is closed once the application returns; err is its result.
	done chan struct{}
	err  error

	closeOnce sync.Once
	closed    chan struct{}
}

func newLifespan() *lifespan {
	return &lifespan{
		inbox:  make(chan transport.Message, 1),
		outbox: make(chan transport.Message),
		done:   make(chan struct{}),
		closed: make(chan struct{}),
	}
}

func (l *lifespan) run(ctx context.Context, app transport.Handler) {
	defer close(l.done)

	l.err = l.serve(ctx, app)
}

func (l *lifespan) serve(ctx context.Context, app transport.Handler) (err error) {
	defer try.Recover(&err)

	return app.Serve(ctx, transport.Scope{Kind: transport.KindLifespan}, l.receive, l.send)
}

// receive ignores its context. The shutdown event is delivered after the
// serving context has been cancelled.
func (l *lifespan) receive(_ context.Context) (transport.Message, error) {
	select {
	case msg := <-l.inbox:
		return msg, nil
	case <-l.closed:
		return nil, ErrLifespanClosed
	}
}

func (l *lifespan) send(_ context.Context, msg transport.Message) error {
	select {
	case l.outbox <- msg:
		return nil
	case <-l.closed:
		return ErrLifespanClosed
	}
}

// exchange delivers msg and waits for want. It reports false with the
// application's result if the application returns without replying.
func (l *lifespan) exchange(ctx context.Context, msg, want transport.Message) (bool, error) {
	select {
	case l.inbox <- msg:
	case <-l.done:
		return false, l.err
	}

	select {
	case reply := <-l.outbox:
		if reply != want {
			return false, transport.ProtocolError{Message: reply, Reason: "unexpected lifespan reply"}
		}
		return true, nil
	case <-l.done:
		return false, l.err
	case <-ctx.Done():
		return false, ctx.Err()
	}
}

func (l *lifespan) close() {
	l.closeOnce.Do(func() {
		close(l.closed)
	})
}
