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

//go:build linux

// Package processmetrics exports the scheduling times of the process threads
// to prometheus. The running time is the CPU time the process consumed, the
// runnable time is the CPU time it was denied while ready to run. A growing
// runnable time means the map server is starved of CPU, e.g., by the expiry
// rotation competing with request handling.
//
// On other platforms Register does nothing.
package processmetrics

import (
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"sync"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/procfs"

	"github.com/lispms/lispms/pkg/private/serrors"
)

var (
	runningTime = prometheus.NewDesc(
		"process_running_seconds_total",
		"CPU time the process used since it started, summed over all threads.",
		nil, nil,
	)
	runnableTime = prometheus.NewDesc(
		"process_runnable_seconds_total",
		"CPU time the process was denied while runnable, summed over all threads.",
		nil, nil,
	)
	maxProcs = prometheus.NewDesc(
		"go_sched_maxprocs_threads",
		"The current runtime.GOMAXPROCS setting.",
		nil, nil,
	)
)

type schedCollector struct {
	pid int
	// tasks is the /proc/<pid>/task directory. Its link count changes with
	// the number of threads.
	tasks *os.File

	mu        sync.Mutex
	threads   procfs.Procs
	lastCount uint64
	running   uint64
	runnable  uint64
}

// update sums the schedstat of all threads. The thread list is only reread
// if the number of threads changed, Go never terminates its threads.
func (c *schedCollector) update() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	var st syscall.Stat_t
	if err := syscall.Fstat(int(c.tasks.Fd()), &st); err != nil {
		return err
	}
	//nolint:unconvert // Nlink is uint32 on arm64.
	count := uint64(st.Nlink - 2)
	if count != c.lastCount || c.threads == nil {
		threads, err := procfs.AllThreads(c.pid)
		if err != nil {
			return err
		}
		c.threads, c.lastCount = threads, count
	}
	var running, runnable uint64
	var errs serrors.List
	for _, t := range c.threads {
		s, err := t.Schedstat()
		if err != nil {
			// The thread is gone, the others are still valid.
			errs = append(errs, err)
			continue
		}
		running += s.RunningNanoseconds
		runnable += s.WaitingNanoseconds
	}
	c.running, c.runnable = running, runnable
	return errs.ToError()
}

func (c *schedCollector) Describe(ch chan<- *prometheus.Desc) {
	prometheus.DescribeByCollect(c, ch)
}

func (c *schedCollector) Collect(ch chan<- prometheus.Metric) {
	_ = c.update()
	c.mu.Lock()
	running, runnable := c.running, c.runnable
	c.mu.Unlock()
	ch <- prometheus.MustNewConstMetric(runningTime, prometheus.CounterValue,
		float64(running)/1e9)
	ch <- prometheus.MustNewConstMetric(runnableTime, prometheus.CounterValue,
		float64(runnable)/1e9)
	ch <- prometheus.MustNewConstMetric(maxProcs, prometheus.GaugeValue,
		float64(runtime.GOMAXPROCS(-1)))
}

// Register registers the collector with reg, or the default registerer if
// reg is nil. It must be called at most once per registerer. Prometheus lacks
// the scheduling metrics if it fails, the caller may ignore the error.
func Register(reg prometheus.Registerer) error {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	pid := os.Getpid()
	path := filepath.Join(procfs.DefaultMountPoint, strconv.Itoa(pid), "task")
	tasks, err := os.Open(path)
	if err != nil {
		return serrors.Wrap("opening task directory", err, "path", path)
	}
	c := &schedCollector{pid: pid, tasks: tasks}
	if err := c.update(); err != nil {
		tasks.Close()
		return serrors.Wrap("reading scheduling stats", err)
	}
	if err := reg.Register(c); err != nil {
		tasks.Close()
		return serrors.Wrap("registering collector", err)
	}
	return nil
}
