// Copyright (c) 2025 Z5Labs and Contributors
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

// Package transport defines the contract between a network adapter and
// an application. The adapter describes each event with a [Scope] and
// exchanges [Message]s with the application through a [ReceiveFunc] and
// a [SendFunc].
package transport

import (
	"context"
	"fmt"
	"strings"
)

// Kind identifies the type of event described by a [Scope].
type Kind string

const (
	KindHTTP     Kind = "http"
	KindLifespan Kind = "lifespan"
)

// Header is a single header field. Names are always lower case.
type Header struct {
	Name  string
	Value string
}

// NewHeader returns a [Header] with its name lower cased.
func NewHeader(name, value string) Header {
	return Header{Name: strings.ToLower(name), Value: value}
}

// Scope describes a single event.
type Scope struct {
	Kind        Kind
	Method      string
	Path        string
	Headers     []Header
	QueryString []byte
}

// Message is any value exchanged through a [ReceiveFunc] or [SendFunc].
type Message interface {
	message()
}

// Request carries a chunk of the request body. MoreBody reports
// whether further chunks follow.
type Request struct {
	Body     []byte
	MoreBody bool
}

// Disconnect is received once the client has gone away.
type Disconnect struct{}

// ResponseStart begins a response and must be sent before any [ResponseBody].
type ResponseStart struct {
	Status  int
	Headers []Header
}

// ResponseBody carries a chunk of the response body.
type ResponseBody struct {
	Body     []byte
	MoreBody bool
}

type (
	LifespanStartup          struct{}
	LifespanStartupComplete  struct{}
	LifespanShutdown         struct{}
	LifespanShutdownComplete struct{}
)

func (Request) message()                  {}
func (Disconnect) message()               {}
func (ResponseStart) message()            {}
func (ResponseBody) message()             {}
func (LifespanStartup) message()          {}
func (LifespanStartupComplete) message()  {}
func (LifespanShutdown) message()         {}
func (LifespanShutdownComplete) message() {}

// ReceiveFunc waits for the next inbound [Message].
type ReceiveFunc func(context.Context) (Message, error)

// SendFunc delivers an outbound [Message].
type SendFunc func(context.Context, Message) error

// Handler is implemented by applications driven by an adapter.
type Handler interface {
	Serve(ctx context.Context, scope Scope, receive ReceiveFunc, send SendFunc) error
}

// HandlerFunc is a func variant of the [Handler] interface.
type HandlerFunc func(context.Context, Scope, ReceiveFunc, SendFunc) error

// Serve implements the [Handler] interface.
func (f HandlerFunc) Serve(ctx context.Context, scope Scope, receive ReceiveFunc, send SendFunc) error {
	return f(ctx, scope, receive, send)
}

// ProtocolError is returned by an adapter when messages arrive out of order.
type ProtocolError struct {
	Message Message
	Reason  string
}

// Error implements the [builtin.error] interface.
func (e ProtocolError) Error() string {
	return fmt.Sprintf("transport: protocol violation for %T: %s", e.Message, e.Reason)
}
