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

// Command mapserver runs the LISP map server mapping database.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"golang.org/x/sync/errgroup"

	"github.com/lispms/lispms/mapserver/config"
	"github.com/lispms/lispms/mapserver/mapsystem"
	"github.com/lispms/lispms/mapserver/mgmtapi"
	"github.com/lispms/lispms/pkg/eid"
	"github.com/lispms/lispms/pkg/log"
	"github.com/lispms/lispms/pkg/mapping"
	"github.com/lispms/lispms/pkg/metrics"
	"github.com/lispms/lispms/pkg/private/processmetrics"
	"github.com/lispms/lispms/pkg/private/serrors"
	"github.com/lispms/lispms/private/app/command"
	libconfig "github.com/lispms/lispms/private/config"
	"github.com/lispms/lispms/private/env"
	"github.com/lispms/lispms/private/periodic"
)

func main() {
	if err := newCommand().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:           "mapserver",
		Short:         "LISP map server mapping database",
		SilenceErrors: true,
		Args:          cobra.NoArgs,
	}
	pather := command.StringPather("mapserver")
	cmd.AddCommand(
		newRun(pather),
		newMappings(pather),
		command.NewSample(pather, &config.Config{}),
		command.NewVersion(pather),
		command.NewGendocs(pather),
	)
	return cmd
}

type runFlags struct {
	config string
}

func (f *runFlags) register(fs *pflag.FlagSet) {
	fs.StringVar(&f.config, "config", "", "TOML config file (required)")
}

func newRun(pather command.Pather) *cobra.Command {
	var flags runFlags
	cmd := &cobra.Command{
		Use:     "run",
		Short:   "Run the map server",
		Example: "  " + pather.CommandPath() + " run --config ms.toml",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			var cfg config.Config
			if err := libconfig.Load(flags.config, &cfg); err != nil {
				return serrors.Wrap("loading config", err)
			}
			cmd.SilenceUsage = true
			if err := log.Setup(cfg.Logging, log.WithEntriesCounter(logEntries())); err != nil {
				return serrors.Wrap("initializing logging", err)
			}
			defer log.Flush()
			defer log.HandlePanic()

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			if err := realMain(ctx, &cfg); err != nil {
				log.Error("Map server stopped with error", "err", err)
				return err
			}
			log.Info("Map server stopped")
			return nil
		},
	}
	flags.register(cmd.Flags())
	_ = cmd.MarkFlagRequired("config")
	return cmd
}

func realMain(ctx context.Context, cfg *config.Config) error {
	started := time.Now()
	logger := log.New("id", cfg.General.ID)
	if err := processmetrics.Register(nil); err != nil {
		log.Info("Process scheduling metrics unavailable", "err", err)
	}

	msCfg := cfg.Mapping.MapSystem()
	msCfg.Logger = logger
	msCfg.Sink = logSink{logger: logger}
	msCfg.Metrics = mapsystem.NewMetrics(metrics.Factory{})
	ms, err := mapsystem.New(msCfg)
	if err != nil {
		return serrors.Wrap("creating map system", err)
	}

	interval := cfg.Mapping.RotationInterval.Duration
	rotation := periodic.StartWithMetrics(ms.ExpiryTask(), periodicMetrics(),
		interval, interval)
	defer rotation.Stop()

	g, errCtx := errgroup.WithContext(ctx)
	if cfg.API.Addr != "" {
		server := mgmtapi.Server{
			Config: cfg,
			Info: mgmtapi.Info{
				ID:        cfg.General.ID,
				Version:   command.Version(),
				PID:       os.Getpid(),
				StartTime: started,
			},
			MapSystem: ms,
		}
		log.Info("Exposing API", "addr", cfg.API.Addr)
		g.Go(func() error {
			defer log.HandlePanic()
			err := env.Serve(errCtx, &http.Server{
				Addr:    cfg.API.Addr,
				Handler: server.Handler(),
			})
			if err != nil {
				return serrors.Wrap("serving management API", err)
			}
			return nil
		})
	}
	g.Go(func() error {
		defer log.HandlePanic()
		return cfg.Metrics.ServePrometheus(errCtx)
	})
	g.Go(func() error {
		defer log.HandlePanic()
		<-errCtx.Done()
		return nil
	})
	log.Info("Map server started", "id", cfg.General.ID,
		"lookup_policy", cfg.Mapping.LookupPolicy,
		"northbound_cache", cfg.Mapping.NorthboundCache)
	return g.Wait()
}

// logSink reports mapping changes to the log.
type logSink struct {
	logger log.Logger
}

func (s logSink) UpdateMapping(key eid.EID, origin mapping.Origin, record *mapping.Record) {
	s.logger.Debug("Mapping updated", "eid", key, "origin", origin,
		"locators", len(record.Locators))
}

func (s logSink) RemoveMapping(key eid.EID, origin mapping.Origin) {
	s.logger.Debug("Mapping removed", "eid", key, "origin", origin)
}

func logEntries() log.EntriesCounter {
	entries := metrics.Factory{}.NewCounter(prometheus.CounterOpts{
		Name: "lispms_log_entries_total",
		Help: "Number of emitted log entries.",
	}, "level")
	return log.EntriesCounter{
		Debug: entries.With("level", "debug"),
		Info:  entries.With("level", "info"),
		Error: entries.With("level", "error"),
	}
}

func periodicMetrics() *periodic.Metrics {
	f := metrics.Factory{}
	events := f.NewCounter(prometheus.CounterOpts{
		Name: "lispms_expiry_rotation_events_total",
		Help: "Number of expiry rotation task events.",
	}, "event")
	return &periodic.Metrics{
		Events: func(event string) metrics.Counter { return events.With("event", event) },
		Period: f.NewGauge(prometheus.GaugeOpts{
			Name: "lispms_expiry_rotation_period_seconds",
			Help: "Period of the expiry rotation task.",
		}),
		Runtime: f.NewGauge(prometheus.GaugeOpts{
			Name: "lispms_expiry_rotation_runtime_seconds",
			Help: "Runtime of the last expiry rotation.",
		}),
		StartTime: f.NewGauge(prometheus.GaugeOpts{
			Name: "lispms_expiry_rotation_start_time_seconds",
			Help: "Start time of the last expiry rotation.",
		}),
	}
}
