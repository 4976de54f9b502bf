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

package mapsystem

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/lispms/lispms/pkg/metrics"
	"github.com/lispms/lispms/pkg/private/prom"
	"github.com/lispms/lispms/private/expiry"
)

// Metrics are the metrics of the map system. All fields are optional.
type Metrics struct {
	// Lookups counts mapping lookups, labeled by result (hit, miss).
	Lookups metrics.Counter
	// Registrations counts added mappings, labeled by origin.
	Registrations metrics.Counter
	// Removals counts removed mappings, labeled by origin and reason
	// (request, expired).
	Removals metrics.Counter
	// NegativeLookups counts widest negative prefix lookups, labeled by
	// result (cached, computed).
	NegativeLookups metrics.Counter
	// CacheOperations is passed on to the caches, labeled by origin.
	CacheOperations metrics.Counter
	Expiry          expiry.Metrics
}

// NewMetrics creates prometheus backed map system metrics.
func NewMetrics(f metrics.Factory) Metrics {
	return Metrics{
		Lookups: f.NewCounter(prometheus.CounterOpts{
			Name: "lispms_mapping_lookups_total",
			Help: "Number of mapping lookups.",
		}, prom.LabelResult),
		Registrations: f.NewCounter(prometheus.CounterOpts{
			Name: "lispms_mapping_registrations_total",
			Help: "Number of added mappings.",
		}, prom.LabelOrigin),
		Removals: f.NewCounter(prometheus.CounterOpts{
			Name: "lispms_mapping_removals_total",
			Help: "Number of removed mappings.",
		}, prom.LabelOrigin, prom.LabelReason),
		NegativeLookups: f.NewCounter(prometheus.CounterOpts{
			Name: "lispms_negative_prefix_lookups_total",
			Help: "Number of widest negative prefix lookups.",
		}, prom.LabelResult),
		CacheOperations: f.NewCounter(prometheus.CounterOpts{
			Name: "lispms_mapcache_operations_total",
			Help: "Number of mapping cache operations.",
		}, prom.LabelOrigin, prom.LabelOperation),
		Expiry: expiry.Metrics{
			Evictions: f.NewCounter(prometheus.CounterOpts{
				Name: "lispms_expiry_evictions_total",
				Help: "Number of registrations evicted by the expiry wheel.",
			}, prom.LabelResult),
			Rotations: f.NewCounter(prometheus.CounterOpts{
				Name: "lispms_expiry_rotations_total",
				Help: "Number of expiry wheel rotations.",
			}),
			Entries: f.NewGauge(prometheus.GaugeOpts{
				Name: "lispms_expiry_entries",
				Help: "Number of registrations tracked by the expiry wheel.",
			}),
		},
	}
}
