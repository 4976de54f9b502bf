// Copyright 2020 Anapaya Systems
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

package metrics

import (
	"sort"
	"strings"
	"sync"
)

// The test metrics keep one value per distinct label set. All metrics derived
// from the same root via With share the underlying storage.
type store struct {
	mtx    sync.Mutex
	values map[string]float64
}

func newStore() *store {
	return &store{values: make(map[string]float64)}
}

func (s *store) add(key string, delta float64, canBeNegative bool) {
	if !canBeNegative && delta < 0 {
		panic("counter increment value is < 0")
	}
	s.mtx.Lock()
	defer s.mtx.Unlock()
	s.values[key] += delta
}

func (s *store) set(key string, v float64) {
	s.mtx.Lock()
	defer s.mtx.Unlock()
	s.values[key] = v
}

func (s *store) value(key string) float64 {
	s.mtx.Lock()
	defer s.mtx.Unlock()
	return s.values[key]
}

func labelKey(lvs labelValues) string {
	pairs := make([]string, 0, len(lvs)/2)
	for i := 0; i+1 < len(lvs); i += 2 {
		pairs = append(pairs, lvs[i]+"="+lvs[i+1])
	}
	sort.Strings(pairs)
	return strings.Join(pairs, ",")
}

// TestCounter implements a counter for use in tests.
type TestCounter struct {
	s   *store
	lvs labelValues
}

// NewTestCounter creates a new counter for use in tests.
func NewTestCounter() *TestCounter {
	return &TestCounter{s: newStore()}
}

// With returns a counter with the additional labels. The returned counter
// shares storage with c.
func (c *TestCounter) With(kv ...string) Counter {
	return &TestCounter{s: c.s, lvs: c.lvs.With(kv...)}
}

// Add increases the value of the counter by delta. delta must be positive.
func (c *TestCounter) Add(delta float64) {
	c.s.add(labelKey(c.lvs), delta, false)
}

// CounterValue extracts the value out of a TestCounter. If the argument is not
// a *TestCounter, CounterValue panics.
func CounterValue(c Counter) float64 {
	tc := c.(*TestCounter)
	return tc.s.value(labelKey(tc.lvs))
}

// TestGauge implements a gauge for use in tests.
type TestGauge struct {
	s   *store
	lvs labelValues
}

// NewTestGauge creates a new gauge for use in tests.
func NewTestGauge() *TestGauge {
	return &TestGauge{s: newStore()}
}

// With returns a gauge with the additional labels.
func (g *TestGauge) With(kv ...string) Gauge {
	return &TestGauge{s: g.s, lvs: g.lvs.With(kv...)}
}

// Set sets the value of the gauge.
func (g *TestGauge) Set(v float64) {
	g.s.set(labelKey(g.lvs), v)
}

// Add adds delta to the gauge. delta may be negative.
func (g *TestGauge) Add(delta float64) {
	g.s.add(labelKey(g.lvs), delta, true)
}

// GaugeValue extracts the value out of a TestGauge. If the argument is not a
// *TestGauge, GaugeValue panics.
func GaugeValue(g Gauge) float64 {
	tg := g.(*TestGauge)
	return tg.s.value(labelKey(tg.lvs))
}
