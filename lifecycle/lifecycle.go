// Copyright (c) 2025 Z5Labs and Contributors
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

// Package lifecycle provides the staged state machine a server moves
// through and helpers for running tasks at its boundaries.
package lifecycle

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/z5labs/kiln/internal/try"
	"github.com/z5labs/kiln/pkg/noop"
	"github.com/z5labs/kiln/pkg/slogfield"
)

// State is a stage of the server lifecycle.
type State int

const (
	Created State = iota
	Starting
	Started
	Running
	Stopping
	Stopped
)

var stateNames = [...]string{
	Created:  "Created",
	Starting: "Starting",
	Started:  "Started",
	Running:  "Running",
	Stopping: "Stopping",
	Stopped:  "Stopped",
}

// String implements the [fmt.Stringer] interface.
func (s State) String() string {
	if s < Created || s > Stopped {
		return fmt.Sprintf("State(%d)", int(s))
	}
	return stateNames[s]
}

// TransitionError is returned when a transition would move the
// lifecycle backwards.
type TransitionError struct {
	From State
	To   State
}

// Error implements the [builtin.error] interface.
func (e TransitionError) Error() string {
	return fmt.Sprintf("lifecycle: illegal transition from %s to %s", e.From, e.To)
}

// EnterFunc is called once for every state a [Machine] enters with the
// context given to the transition.
type EnterFunc func(context.Context, State)

// Machine tracks the current [State] and enforces that it only moves forward.
type Machine struct {
	mu      sync.Mutex
	state   State
	onEnter EnterFunc
}

// NewMachine returns a [Machine] in the [Created] state. The given
// [EnterFunc] is invoked while the machine is locked so it must not
// call back into the machine.
func NewMachine(onEnter EnterFunc) *Machine {
	if onEnter == nil {
		onEnter = func(context.Context, State) {}
	}
	return &Machine{onEnter: onEnter}
}

// Current returns the current [State].
func (m *Machine) Current() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Advance moves the machine to target, entering every intermediate state
// in order. Advancing to the current state is a no-op.
func (m *Machine) Advance(ctx context.Context, target State) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if target < m.state || target > Stopped {
		return TransitionError{From: m.state, To: target}
	}
	for m.state < target {
		m.state++
		m.onEnter(ctx, m.state)
	}
	return nil
}

// Halt moves the machine directly to [Stopped] without entering any
// intermediate state. It returns the state the machine was halted from.
func (m *Machine) Halt(ctx context.Context) State {
	m.mu.Lock()
	defer m.mu.Unlock()

	prev := m.state
	if prev != Stopped {
		m.state = Stopped
		m.onEnter(ctx, Stopped)
	}
	return prev
}

// Task represents work performed at a lifecycle boundary.
type Task interface {
	Run(context.Context) error
}

// TaskFunc is a func variant of the [Task] interface.
type TaskFunc func(context.Context) error

// Run implements the [Task] interface.
func (f TaskFunc) Run(ctx context.Context) error {
	return f(ctx)
}

// LauncherOption configures a [Launcher].
type LauncherOption func(*Launcher)

// LogHandler sets the [slog.Handler] task failures are reported to.
func LogHandler(h slog.Handler) LauncherOption {
	return func(l *Launcher) {
		l.log = slog.New(h)
	}
}

// Launcher starts tasks without waiting for them. Failures are logged
// rather than propagated.
type Launcher struct {
	wg  sync.WaitGroup
	log *slog.Logger
}

// NewLauncher returns a [Launcher] which logs failed tasks to a
// discarding handler unless [LogHandler] is given.
func NewLauncher(opts ...LauncherOption) *Launcher {
	l := &Launcher{
		log: slog.New(noop.LogHandler{}),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Launch runs every task on its own goroutine and returns immediately.
func (l *Launcher) Launch(ctx context.Context, stage State, tasks ...Task) {
	for _, task := range tasks {
		l.wg.Add(1)
		go func(task Task) {
			defer l.wg.Done()

			err := l.run(ctx, task)
			if err == nil {
				return
			}
			l.log.ErrorContext(ctx, "lifecycle task failed", slogfield.State(stage), slogfield.Error(err))
		}(task)
	}
}

func (l *Launcher) run(ctx context.Context, task Task) (err error) {
	defer try.Recover(&err)
	return task.Run(ctx)
}

// Wait blocks until every launched task has returned.
func (l *Launcher) Wait() {
	l.wg.Wait()
}
