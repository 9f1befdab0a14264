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
	"net"
	"os"
	"os/signal"
	"sync"

	"github.com/z5labs/kiln/lifecycle"
	"github.com/z5labs/kiln/metrics"
	"github.com/z5labs/kiln/pkg/health"
	"github.com/z5labs/kiln/pkg/noop"
	"github.com/z5labs/kiln/pkg/slogfield"
	"github.com/z5labs/kiln/resource"
	"github.com/z5labs/kiln/route"
	rthttp "github.com/z5labs/kiln/runtime/http"
	"github.com/z5labs/kiln/transport"

	"golang.org/x/sync/errgroup"
)

// Route binds a compiled pattern to the resource serving it.
type Route struct {
	Pattern  string
	Matcher  *route.Matcher
	Resource resource.Resource
}

// String implements the [fmt.Stringer] interface.
func (r Route) String() string {
	return fmt.Sprintf("%s -> %s", r.Pattern, resource.Describe(r.Resource))
}

// Server routes HTTP events to resources and drives the server lifecycle.
type Server struct {
	csp          string
	exposeTraces bool
	log          *slog.Logger
	recorder     metrics.Recorder
	runtimeOpts  []rthttp.Option

	// guards registration; everything below is read-only once Starting is entered
	mu            sync.Mutex
	routes        []Route
	startupTasks  []lifecycle.Task
	shutdownTasks []lifecycle.Task

	machine  *lifecycle.Machine
	launcher *lifecycle.Launcher
	started  health.Started

	runMu sync.Mutex
	addr  net.Addr
	stop  context.CancelFunc
	group *errgroup.Group
}

// NewServer returns a [Server] in the Created state.
func NewServer(opts ...Option) *Server {
	s := &Server{
		csp:          DefaultContentSecurityPolicy,
		exposeTraces: true,
		log:          slog.New(noop.LogHandler{}),
		recorder:     metrics.Noop{},
		launcher:     lifecycle.NewLauncher(),
	}
	s.machine = lifecycle.NewMachine(s.enter)
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Apply configures the server with further options. It is only valid
// before the server starts.
func (s *Server) Apply(opts ...Option) error {
	return s.register(func() {
		for _, opt := range opts {
			opt(s)
		}
	})
}

// AddRoute appends a route to the routing table. Routes are matched in
// the order they were added.
func (s *Server) AddRoute(pattern string, res resource.Resource) error {
	if res == nil {
		return RouteError{Pattern: pattern, Cause: errors.New("resource is nil")}
	}

	m, err := route.Compile(pattern)
	if err != nil {
		return RouteError{Pattern: pattern, Cause: err}
	}

	r := Route{
		Pattern:  pattern,
		Matcher:  m,
		Resource: res,
	}
	err = s.register(func() {
		s.routes = append(s.routes, r)
	})
	if err != nil {
		return err
	}

	s.log.Info("added route", slogfield.Route(pattern), slogfield.String("resource", resource.Describe(res)))
	return nil
}

// AddStartupTask registers a task launched when the server enters Started.
func (s *Server) AddStartupTask(task lifecycle.Task) error {
	return s.register(func() {
		s.startupTasks = append(s.startupTasks, task)
	})
}

// AddShutdownTask registers a task launched when the server enters Stopping.
// Its context is never cancelled.
func (s *Server) AddShutdownTask(task lifecycle.Task) error {
	return s.register(func() {
		s.shutdownTasks = append(s.shutdownTasks, task)
	})
}

func (s *Server) register(f func()) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	state := s.machine.Current()
	if state != lifecycle.Created {
		return RegistrationClosedError{State: state}
	}
	f()
	return nil
}

// Routes returns a copy of the routing table.
func (s *Server) Routes() []Route {
	s.mu.Lock()
	defer s.mu.Unlock()

	routes := make([]Route, len(s.routes))
	copy(routes, s.routes)
	return routes
}

// State returns the current lifecycle state.
func (s *Server) State() lifecycle.State {
	return s.machine.Current()
}

// Started returns a channel closed once the server enters Started.
func (s *Server) Started() <-chan struct{} {
	return s.started.Started()
}

// Readiness reports healthy once the server has entered Started.
func (s *Server) Readiness() health.Metric {
	return &s.started
}

// Addr returns the address the server listens on or nil before it does.
func (s *Server) Addr() net.Addr {
	s.runMu.Lock()
	defer s.runMu.Unlock()
	return s.addr
}

// String implements the [fmt.Stringer] interface.
func (s *Server) String() string {
	return fmt.Sprintf("Server(%s, %d routes)", s.State(), len(s.Routes()))
}

func (s *Server) enter(ctx context.Context, state lifecycle.State) {
	s.log.DebugContext(ctx, "entered lifecycle state", slogfield.State(state))

	switch state {
	case lifecycle.Started:
		s.launcher.Launch(ctx, state, s.startupTasks...)
		s.started.Done()
		s.log.InfoContext(ctx, "server started")
	case lifecycle.Stopping:
		s.launcher.Launch(context.WithoutCancel(ctx), state, s.shutdownTasks...)
	case lifecycle.Stopped:
		s.log.InfoContext(ctx, "server stopped")
	}
}

// Serve implements the [transport.Handler] interface.
//
// It panics with an [UnknownEventKindError] for events which are neither
// HTTP nor lifespan events.
func (s *Server) Serve(ctx context.Context, scope transport.Scope, receive transport.ReceiveFunc, send transport.SendFunc) error {
	switch scope.Kind {
	case transport.KindHTTP:
		return s.dispatch(ctx, scope, receive, send)
	case transport.KindLifespan:
		return s.lifespan(ctx, receive, send)
	default:
		panic(UnknownEventKindError{Kind: scope.Kind})
	}
}

func (s *Server) lifespan(ctx context.Context, receive transport.ReceiveFunc, send transport.SendFunc) error {
	for {
		msg, err := receive(ctx)
		if err != nil {
			return err
		}

		switch msg.(type) {
		case transport.LifespanStartup:
			err = s.machine.Advance(ctx, lifecycle.Started)
			if err != nil {
				return err
			}
			err = send(ctx, transport.LifespanStartupComplete{})
			if err != nil {
				return err
			}
			err = s.machine.Advance(ctx, lifecycle.Running)
			if err != nil {
				return err
			}
		case transport.LifespanShutdown:
			err = s.machine.Advance(ctx, lifecycle.Stopping)
			if err != nil {
				return err
			}
			return send(ctx, transport.LifespanShutdownComplete{})
		default:
			panic(UnknownMessageError{Message: msg})
		}
	}
}

// Run listens on host and port and serves until ctx is cancelled or the
// process receives an interrupt. An interrupt results in a nil error while
// a cancelled ctx results in its error, both only after the server has
// stopped and every launched task has returned.
func (s *Server) Run(ctx context.Context, host string, port uint) error {
	sigCtx, stop := signal.NotifyContext(ctx, os.Interrupt)
	defer stop()

	rt, err := s.prepare(sigCtx, host, port)
	if err != nil {
		return err
	}

	err = s.run(sigCtx, rt)
	if err != nil {
		return err
	}
	return ctx.Err()
}

// Start listens on host and port and serves in the background. It
// returns once the server has entered Started. Cancelling ctx after Start
// has returned does not stop the server, use [Server.Stop] for that.
func (s *Server) Start(ctx context.Context, host string, port uint) error {
	rt, err := s.prepare(ctx, host, port)
	if err != nil {
		return err
	}

	runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	g := new(errgroup.Group)
	done := make(chan struct{})
	g.Go(func() error {
		defer close(done)
		return s.run(runCtx, rt)
	})

	s.runMu.Lock()
	s.stop = cancel
	s.group = g
	s.runMu.Unlock()

	select {
	case <-s.started.Started():
		return nil
	case <-done:
		cancel()
		err := g.Wait()
		if err == nil {
			err = StageError{Stage: lifecycle.Starting, Cause: errors.New("server exited before starting")}
		}
		return err
	case <-ctx.Done():
		cancel()
		g.Wait()
		return ctx.Err()
	}
}

// Stop stops a server started with [Server.Start] and waits for it to
// return or for ctx to be done.
func (s *Server) Stop(ctx context.Context) error {
	s.runMu.Lock()
	stop, g := s.stop, s.group
	s.stop, s.group = nil, nil
	s.runMu.Unlock()

	if stop == nil {
		return ErrNotRunning
	}
	stop()

	errCh := make(chan error, 1)
	go func() {
		errCh <- g.Wait()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *Server) prepare(ctx context.Context, host string, port uint) (*rthttp.Runtime, error) {
	s.mu.Lock()
	err := s.machine.Advance(ctx, lifecycle.Starting)
	s.mu.Unlock()
	if err != nil {
		return nil, StageError{Stage: lifecycle.Starting, Cause: err}
	}

	ls, err := rthttp.Listen(ctx, host, port)
	if err != nil {
		s.machine.Halt(ctx)
		s.log.ErrorContext(ctx, "failed to listen for connections", slogfield.Error(err))
		return nil, StageError{Stage: lifecycle.Starting, Cause: err}
	}

	rt := rthttp.New(ls, s, s.runtimeOpts...)

	s.runMu.Lock()
	s.addr = rt.Addr()
	s.runMu.Unlock()

	s.log.InfoContext(ctx, "listening for connections", slogfield.String("addr", rt.Addr().String()))
	return rt, nil
}

func (s *Server) run(ctx context.Context, rt *rthttp.Runtime) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	err := rt.Run(ctx)

	stage := s.machine.Current()
	if stage < lifecycle.Started {
		s.machine.Halt(ctx)
	} else {
		// Entering Stopping here launches the shutdown tasks when the
		// runtime returned without delivering the lifespan shutdown.
		s.machine.Advance(ctx, lifecycle.Stopped)
	}
	cancel()
	s.launcher.Wait()

	if err == nil || (ctx.Err() != nil && errors.Is(err, context.Canceled)) {
		return nil
	}
	return StageError{Stage: stage, Cause: err}
}
