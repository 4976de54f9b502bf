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

// Package mgmtapi implements the http management API of the map server.
package mgmtapi

import (
	"encoding/json"
	"net/http"
	"slices"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"
	"github.com/pelletier/go-toml/v2"

	"github.com/lispms/lispms/mapserver/mapsystem"
	"github.com/lispms/lispms/pkg/eid"
	"github.com/lispms/lispms/pkg/mapping"
	"github.com/lispms/lispms/private/env"
	"github.com/lispms/lispms/private/keyedstore"
	"github.com/lispms/lispms/private/mapcache"
	api "github.com/lispms/lispms/private/mgmtapi"
)

// MapSystem is the part of the map system exposed by the API.
type MapSystem interface {
	Status() mapsystem.Status
	ForEach(origin mapping.Origin, visit keyedstore.Visitor)
}

// Info describes the running service.
type Info struct {
	ID        string    `json:"id"`
	Version   string    `json:"version"`
	PID       int       `json:"pid"`
	StartTime time.Time `json:"start_time"`
}

// Server implements the http management API of the map server.
type Server struct {
	// Config is the service configuration, it is rendered as toml.
	Config    any
	Info      Info
	MapSystem MapSystem
	// Metrics serves the prometheus metrics. If nil, the default gatherer
	// is served.
	Metrics http.Handler
}

// Handler returns the router serving the API.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
	}))
	metrics := s.Metrics
	if metrics == nil {
		metrics = env.PrometheusHandler()
	}
	r.Handle("/metrics", metrics)
	r.Get("/config", s.GetConfig)
	r.Get("/info", s.GetInfo)
	r.Get("/status", s.GetStatus)
	r.Get("/mappings/{origin}", s.GetMappings)
	return r
}

// GetConfig writes the configuration as toml.
func (s *Server) GetConfig(w http.ResponseWriter, r *http.Request) {
	raw, err := toml.Marshal(s.Config)
	if err != nil {
		api.ErrorResponse(w, internalError("unable to marshal config", err))
		return
	}
	w.Header().Set("Content-Type", "text/plain")
	_, _ = w.Write(raw)
}

// GetInfo writes the service information.
func (s *Server) GetInfo(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, s.Info)
}

// GetStatus writes the map system status.
func (s *Server) GetStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, s.MapSystem.Status())
}

// Locator is a locator in a mapping response.
type Locator struct {
	RLOC     string `json:"rloc"`
	Priority uint8  `json:"priority"`
	Weight   uint8  `json:"weight"`
}

// Mapping is a mapping response.
type Mapping struct {
	EID       string    `json:"eid"`
	Locators  []Locator `json:"locators"`
	TTL       string    `json:"ttl"`
	XtrID     string    `json:"xtr_id,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// GetMappings writes the mappings of the origin given in the path, sorted by
// EID.
func (s *Server) GetMappings(w http.ResponseWriter, r *http.Request) {
	var origin mapping.Origin
	switch name := chi.URLParam(r, "origin"); name {
	case mapping.Northbound.String():
		origin = mapping.Northbound
	case mapping.Southbound.String():
		origin = mapping.Southbound
	default:
		api.ErrorResponse(w, api.Problem{
			Detail: api.StringRef("origin must be northbound or southbound"),
			Status: http.StatusBadRequest,
			Title:  "unknown origin " + name,
			Type:   api.StringRef(api.BadRequest),
		})
		return
	}
	rep := []Mapping{}
	s.MapSystem.ForEach(origin, func(path []any, sub keyedstore.SubKey, v keyedstore.Value) {
		if sub != mapcache.SubRecord || len(path) == 0 {
			return
		}
		// Records kept per xTR are part of the merged record.
		if _, ok := path[len(path)-1].(eid.EID); !ok {
			return
		}
		if rec := keyedstore.RecordOf(v); rec != nil {
			rep = append(rep, newMapping(rec))
		}
	})
	slices.SortFunc(rep, func(a, b Mapping) int { return strings.Compare(a.EID, b.EID) })
	writeJSON(w, rep)
}

func newMapping(rec *mapping.Record) Mapping {
	m := Mapping{
		EID:       rec.EID.String(),
		Locators:  make([]Locator, 0, len(rec.Locators)),
		TTL:       rec.TTL.String(),
		Timestamp: rec.Timestamp,
	}
	if !rec.XtrID.IsZero() {
		m.XtrID = rec.XtrID.String()
	}
	for _, l := range rec.Locators {
		m.Locators = append(m.Locators, Locator{
			RLOC:     l.RLOC.String(),
			Priority: l.Priority,
			Weight:   l.Weight,
		})
	}
	return m
}

func writeJSON(w http.ResponseWriter, v any) {
	raw, err := json.MarshalIndent(v, "", "    ")
	if err != nil {
		api.ErrorResponse(w, internalError("unable to marshal response", err))
		return
	}
	w.Header().Set("Content-Type", "application/json")
	_, _ = w.Write(append(raw, '\n'))
}

func internalError(title string, err error) api.Problem {
	return api.Problem{
		Detail: api.StringRef(err.Error()),
		Status: http.StatusInternalServerError,
		Title:  title,
		Type:   api.StringRef(api.InternalError),
	}
}
