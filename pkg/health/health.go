// Copyright (c) 2023 Z5Labs and Contributors
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

// Package health provides simple health signals for a server process.
package health

import (
	"context"
	"sync"
)

// Metric represents anything that can report its health status.
type Metric interface {
	Healthy(context.Context) bool
}

// MetricFunc is a func variant of the [Metric] interface.
type MetricFunc func(context.Context) bool

// Healthy implements the [Metric] interface.
func (f MetricFunc) Healthy(ctx context.Context) bool {
	return f(ctx)
}

// Started is a one-way readiness signal. It reports unhealthy until
// [Started.Done] is called and healthy forever after.
//
// The zero value is ready to use.
type Started struct {
	once sync.Once
	init sync.Once
	ch   chan struct{}
}

func (s *Started) channel() chan struct{} {
	s.init.Do(func() {
		s.ch = make(chan struct{})
	})
	return s.ch
}

// Done marks the signal as started. Only the first call has any effect.
func (s *Started) Done() {
	ch := s.channel()
	s.once.Do(func() {
		close(ch)
	})
}

// Started returns a channel which is closed once [Started.Done] is called.
func (s *Started) Started() <-chan struct{} {
	return s.channel()
}

// Healthy implements the [Metric] interface.
func (s *Started) Healthy(ctx context.Context) bool {
	select {
	case <-s.channel():
		return true
	default:
		return false
	}
}

// AndMetric is healthy only when every underlying [Metric] is.
type AndMetric []Metric

// And joins the given metrics with the logical and (&&) operator.
func And(metrics ...Metric) AndMetric {
	return AndMetric(metrics)
}

// Healthy implements the [Metric] interface.
func (m AndMetric) Healthy(ctx context.Context) bool {
	for _, metric := range m {
		if !metric.Healthy(ctx) {
			return false
		}
	}
	return true
}

// Not negates the given [Metric].
func Not(metric Metric) Metric {
	return MetricFunc(func(ctx context.Context) bool {
		return !metric.Healthy(ctx)
	})
}
