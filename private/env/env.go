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

// Package env contains configuration blocks and initialization code that are
// shared by the map server commands. If something is specific to one
// command, it should go into that command's code and not here.
package env

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/lispms/lispms/pkg/log"
	"github.com/lispms/lispms/pkg/private/serrors"
	"github.com/lispms/lispms/private/config"
)

const (
	// ShutdownGraceInterval is the time applications wait after issuing a
	// clean shutdown signal, before forcefully tearing down the application.
	ShutdownGraceInterval = 5 * time.Second

	// HandlerTimeout is the time after which the http handler gives up on a
	// request and returns an error instead.
	HandlerTimeout = time.Minute
)

var _ config.Config = (*General)(nil)

// General contains the identity of the service.
type General struct {
	// ID is the name of the map server instance. It is attached to the log
	// output and the info page.
	ID string `toml:"id,omitempty"`
}

// InitDefaults does nothing, the ID has no default.
func (cfg *General) InitDefaults() {}

func (cfg *General) Validate() error {
	if cfg.ID == "" {
		return serrors.New("no service id specified")
	}
	return nil
}

func (cfg *General) Sample(dst io.Writer, _ config.Path, ctx config.CtxMap) {
	config.WriteString(dst, fmt.Sprintf(generalSample, ctx[config.ID]))
}

func (cfg *General) ConfigName() string {
	return "general"
}

var _ config.Config = (*Metrics)(nil)

// Metrics configures the standalone prometheus endpoint.
type Metrics struct {
	// Prometheus contains the address to export prometheus metrics on. If
	// not set, metrics are only exposed through the management API.
	Prometheus string `toml:"prometheus,omitempty"`
}

func (cfg *Metrics) InitDefaults() {}

func (cfg *Metrics) Validate() error { return nil }

func (cfg *Metrics) Sample(dst io.Writer, _ config.Path, _ config.CtxMap) {
	config.WriteString(dst, metricsSample)
}

func (cfg *Metrics) ConfigName() string {
	return "metrics"
}

// PrometheusHandler returns the handler serving the metrics of the default
// gatherer.
func PrometheusHandler() http.Handler {
	return promhttp.InstrumentMetricHandler(
		prometheus.DefaultRegisterer,
		promhttp.HandlerFor(
			prometheus.DefaultGatherer,
			promhttp.HandlerOpts{Timeout: HandlerTimeout},
		),
	)
}

// ServePrometheus serves the metrics until ctx is done. It returns
// immediately if no address is configured.
func (cfg *Metrics) ServePrometheus(ctx context.Context) error {
	if cfg.Prometheus == "" {
		return nil
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", PrometheusHandler())
	log.Info("Exporting prometheus metrics", "addr", cfg.Prometheus)
	return Serve(ctx, &http.Server{Addr: cfg.Prometheus, Handler: mux})
}

// Serve runs server until ctx is done. The server is closed on return.
func Serve(ctx context.Context, server *http.Server) error {
	done := make(chan struct{})
	defer close(done)
	go func() {
		defer log.HandlePanic()
		select {
		case <-ctx.Done():
		case <-done:
		}
		server.Close()
	}()
	err := server.ListenAndServe()
	if err != nil && !errors.Is(err, http.ErrServerClosed) {
		return serrors.Wrap("serving http", err, "addr", server.Addr)
	}
	return nil
}
