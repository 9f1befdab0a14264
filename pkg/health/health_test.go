// Copyright (c) 2023 Z5Labs and Contributors
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package health

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestStarted_Healthy(t *testing.T) {
	t.Run("will return false", func(t *testing.T) {
		t.Run("if done has not been called", func(t *testing.T) {
			var s Started
			assert.False(t, s.Healthy(context.Background()))
		})
	})

	t.Run("will return true", func(t *testing.T) {
		t.Run("if done has been called", func(t *testing.T) {
			var s Started
			s.Done()
			assert.True(t, s.Healthy(context.Background()))
		})

		t.Run("if done is called concurrently more than once", func(t *testing.T) {
			var s Started
			var wg sync.WaitGroup
			for i := 0; i < 10; i++ {
				wg.Add(1)
				go func() {
					defer wg.Done()
					s.Done()
				}()
			}
			wg.Wait()
			assert.True(t, s.Healthy(context.Background()))
		})
	})
}

func TestStarted_Started(t *testing.T) {
	t.Run("will be closed", func(t *testing.T) {
		t.Run("if done is called", func(t *testing.T) {
			var s Started
			ch := s.Started()
			s.Done()

			select {
			case <-ch:
			default:
				assert.Fail(t, "expected channel to be closed")
			}
		})
	})
}

func TestAndMetric_Healthy(t *testing.T) {
	healthy := MetricFunc(func(context.Context) bool { return true })
	unhealthy := Not(healthy)

	testCases := []struct {
		Name    string
		Metrics []Metric
		Healthy bool
	}{
		{
			Name:    "if there are no metrics",
			Healthy: true,
		},
		{
			Name:    "if all metrics are healthy",
			Metrics: []Metric{healthy, healthy},
			Healthy: true,
		},
		{
			Name:    "if one metric is unhealthy",
			Metrics: []Metric{healthy, unhealthy},
			Healthy: false,
		},
	}

	for _, testCase := range testCases {
		testCase := testCase
		t.Run(testCase.Name, func(t *testing.T) {
			m := And(testCase.Metrics...)
			assert.Equal(t, testCase.Healthy, m.Healthy(context.Background()))
		})
	}
}
