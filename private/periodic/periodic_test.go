// Copyright 2024 Anapaya Systems
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//   http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.


package periodic_test

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/lispms/lispms/pkg/metrics"
	"github.com/lispms/lispms/pkg/private/xtest"
	"github.com/lispms/lispms/private/expiry"
	"github.com/lispms/lispms/private/periodic"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type taskFunc func(context.Context)

func (tf taskFunc) Run(ctx context.Context) { tf(ctx) }

func (tf taskFunc) Name() string { return "test_task" }

func newMetrics() (*periodic.Metrics, *metrics.TestCounter) {
	events := metrics.NewTestCounter()
	return &periodic.Metrics{
		Events: func(s string) metrics.Counter {
			return events.With("event_type", s)
		},
		Period:    metrics.NewTestGauge(),
		Runtime:   metrics.NewTestGauge(),
		StartTime: metrics.NewTestGauge(),
	}, events
}

func TestWheelRotation(t *testing.T) {
	mock := clock.NewMock()
	mock.Set(time.Unix(100000, 0))
	wheel, err := expiry.New[string, int](expiry.Config{
		Buckets: 4,
		TTL:     3 * time.Second,
		Clock:   mock,
	})
	require.NoError(t, err)

	var evictions atomic.Int32
	evicted := make(chan string, 1)
	wheel.Add("[1]10.0.0.0/8", 1, mock.Now(), expiry.EvictorFunc[string, int](
		func(key string, _ int) error {
			evictions.Add(1)
			evicted <- key
			return nil
		},
	))

	m, _ := newMetrics()
	start := time.Now()
	// The period is long, only the initial and the triggered runs rotate.
	r := periodic.StartWithMetrics(wheel, m, time.Hour, time.Second)
	mock.Add(5 * time.Second)
	r.TriggerRun()

	select {
	case key := <-evicted:
		assert.Equal(t, "[1]10.0.0.0/8", key)
	case <-time.After(time.Second):
		t.Fatal("entry was not evicted")
	}
	r.Stop()

	assert.Equal(t, int32(1), evictions.Load())
	assert.Zero(t, wheel.Len())
	assert.Equal(t, float64(1), metrics.CounterValue(m.Events(periodic.EventTrigger)))
	assert.Equal(t, float64(1), metrics.CounterValue(m.Events(periodic.EventStop)))
	assert.Equal(t, time.Hour.Seconds(), metrics.GaugeValue(m.Period))
	// The start time is reported in whole seconds.
	assert.GreaterOrEqual(t, metrics.GaugeValue(m.StartTime), float64(start.Unix()))
	assert.LessOrEqual(t, metrics.GaugeValue(m.StartTime), float64(time.Now().Unix()))
	assert.GreaterOrEqual(t, metrics.GaugeValue(m.Runtime), float64(0))
}

func TestPeriodicExecution(t *testing.T) {
	runs := make(chan struct{}, 10)
	r := periodic.Start(taskFunc(func(context.Context) {
		select {
		case runs <- struct{}{}:
		default:
		}
	}), 10*time.Millisecond, time.Second)
	defer r.Stop()

	for i := 0; i < 3; i++ {
		xtest.AssertReadReturnsBefore(t, runs, time.Second)
	}
}

func TestKillCancelsRunningTask(t *testing.T) {
	m, _ := newMetrics()
	started := make(chan struct{})
	errs := make(chan error, 1)
	r := periodic.StartWithMetrics(taskFunc(func(ctx context.Context) {
		close(started)
		select {
		case <-ctx.Done():
		case <-time.After(time.Second):
		}
		errs <- ctx.Err()
	}), m, time.Hour, time.Hour)

	xtest.AssertReadReturnsBefore(t, started, time.Second)
	r.Kill()
	select {
	case err := <-errs:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(time.Second):
		t.Fatal("task was not canceled")
	}
	assert.Equal(t, float64(1), metrics.CounterValue(m.Events(periodic.EventKill)))
	assert.Equal(t, float64(0), metrics.CounterValue(m.Events(periodic.EventStop)))
}

func TestNoRunAfterKill(t *testing.T) {
	var runs atomic.Int32
	first := make(chan struct{}, 1)
	r := periodic.Start(taskFunc(func(context.Context) {
		runs.Add(1)
		select {
		case first <- struct{}{}:
		default:
		}
	}), 10*time.Millisecond, time.Second)

	xtest.AssertReadReturnsBefore(t, first, time.Second)
	r.Kill()
	n := runs.Load()
	time.Sleep(30 * time.Millisecond)
	assert.Equal(t, n, runs.Load())
	// Triggering a killed runner returns without running the task.
	r.TriggerRun()
	assert.Equal(t, n, runs.Load())
}
