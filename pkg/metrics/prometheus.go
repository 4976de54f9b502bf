// Copyright 2019 Anapaya Systems
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
	"github.com/prometheus/client_golang/prometheus"
)

// Factory creates prometheus backed metrics and registers them with the
// configured registerer. The zero value registers with the default registry.
type Factory struct {
	Registerer prometheus.Registerer
}

func (f Factory) registerer() prometheus.Registerer {
	if f.Registerer != nil {
		return f.Registerer
	}
	return prometheus.DefaultRegisterer
}

// NewCounter creates and registers a counter vector and wraps it as Counter.
func (f Factory) NewCounter(opts prometheus.CounterOpts, labelNames ...string) Counter {
	cv := prometheus.NewCounterVec(opts, labelNames)
	f.registerer().MustRegister(cv)
	return NewPromCounter(cv)
}

// NewGauge creates and registers a gauge vector and wraps it as Gauge.
func (f Factory) NewGauge(opts prometheus.GaugeOpts, labelNames ...string) Gauge {
	gv := prometheus.NewGaugeVec(opts, labelNames)
	f.registerer().MustRegister(gv)
	return NewPromGauge(gv)
}

// NewPromCounter wraps a prometheus counter vector as a counter.
// Returns nil if cv is nil.
func NewPromCounter(cv *prometheus.CounterVec) Counter {
	if cv == nil {
		return nil
	}
	return &counter{cv: cv}
}

// NewPromGauge wraps a prometheus gauge vector as a gauge.
// Returns nil if gv is nil.
func NewPromGauge(gv *prometheus.GaugeVec) Gauge {
	if gv == nil {
		return nil
	}
	return &gauge{gv: gv}
}

// labelValues is a flat list of alternating label names and values.
type labelValues []string

func (lvs labelValues) With(kv ...string) labelValues {
	if len(kv)%2 != 0 {
		kv = append(kv, "unknown")
	}
	result := make(labelValues, len(lvs), len(lvs)+len(kv))
	copy(result, lvs)
	return append(result, kv...)
}

func (lvs labelValues) labels() prometheus.Labels {
	labels := prometheus.Labels{}
	for i := 0; i+1 < len(lvs); i += 2 {
		labels[lvs[i]] = lvs[i+1]
	}
	return labels
}

type counter struct {
	cv  *prometheus.CounterVec
	lvs labelValues
}

func (c *counter) With(kv ...string) Counter {
	return &counter{cv: c.cv, lvs: c.lvs.With(kv...)}
}

func (c *counter) Add(delta float64) {
	c.cv.With(c.lvs.labels()).Add(delta)
}

type gauge struct {
	gv  *prometheus.GaugeVec
	lvs labelValues
}

func (g *gauge) With(kv ...string) Gauge {
	return &gauge{gv: g.gv, lvs: g.lvs.With(kv...)}
}

func (g *gauge) Set(value float64) {
	g.gv.With(g.lvs.labels()).Set(value)
}

func (g *gauge) Add(delta float64) {
	g.gv.With(g.lvs.labels()).Add(delta)
}
