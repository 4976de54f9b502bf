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

// Package expiry implements a timing wheel that expires registrations in
// bulk.
//
// The wheel has N buckets, each covering a window of W = TTL/(N-1) + 1ms.
// The current bucket receives fresh entries, older entries go to the bucket
// matching their age. Every elapsed window the oldest bucket, the one
// following the current bucket, is evicted and becomes the new current
// bucket. An entry is therefore evicted about TTL after its timestamp, with
// the granularity of one window.
package expiry

import (
	"context"
	"math"
	"sync"
	"time"

	"github.com/benbjohnson/clock"

	"github.com/lispms/lispms/pkg/log"
	"github.com/lispms/lispms/pkg/metrics"
	"github.com/lispms/lispms/pkg/private/prom"
	"github.com/lispms/lispms/pkg/private/serrors"
)

// windowSlack is added to the window so that an entry exactly TTL old is
// still placed in the oldest bucket instead of wrapping around.
const windowSlack = time.Millisecond

// Evictor is notified when an entry is evicted from the wheel.
type Evictor[K comparable, V any] interface {
	Evict(key K, value V) error
}

// EvictorFunc is a function that implements Evictor.
type EvictorFunc[K comparable, V any] func(key K, value V) error

// Evict calls f.
func (f EvictorFunc[K, V]) Evict(key K, value V) error {
	return f(key, value)
}

// Metrics are the optional metrics of a wheel.
type Metrics struct {
	// Evictions counts evicted entries, labeled by result (ok, err).
	Evictions metrics.Counter
	Rotations metrics.Counter
	Entries   metrics.Gauge
}

// Config configures a wheel.
type Config struct {
	// Buckets is the number of buckets, it must be larger than one.
	Buckets int
	// TTL is the minimal lifetime of an entry.
	TTL time.Duration
	// Clock is the time source. The wall clock is used if nil.
	Clock clock.Clock
	// Logger is used to report eviction errors. The root logger is used if
	// nil.
	Logger  log.Logger
	Metrics Metrics
}

type entry[K comparable, V any] struct {
	value V
	owner Evictor[K, V]
}

type eviction[K comparable, V any] struct {
	key K
	entry[K, V]
}

// Wheel is a timing wheel. It is safe for concurrent use.
type Wheel[K comparable, V any] struct {
	ttl     time.Duration
	window  time.Duration
	clock   clock.Clock
	logger  log.Logger
	metrics Metrics

	mu           sync.Mutex
	buckets      []map[K]entry[K, V]
	current      int
	lastRotation time.Time
}

// New creates a wheel.
func New[K comparable, V any](cfg Config) (*Wheel[K, V], error) {
	if cfg.Buckets <= 1 {
		return nil, serrors.New("wheel needs at least two buckets", "buckets", cfg.Buckets)
	}
	if cfg.TTL <= 0 {
		return nil, serrors.New("wheel needs a positive TTL", "ttl", cfg.TTL)
	}
	if cfg.Clock == nil {
		cfg.Clock = clock.New()
	}
	if cfg.Logger == nil {
		cfg.Logger = log.Root()
	}
	w := &Wheel[K, V]{
		ttl:          cfg.TTL,
		window:       cfg.TTL/time.Duration(cfg.Buckets-1) + windowSlack,
		clock:        cfg.Clock,
		logger:       cfg.Logger,
		metrics:      cfg.Metrics,
		buckets:      make([]map[K]entry[K, V], cfg.Buckets),
		lastRotation: cfg.Clock.Now(),
	}
	for i := range w.buckets {
		w.buckets[i] = make(map[K]entry[K, V])
	}
	return w, nil
}

// Window returns the time span covered by one bucket.
func (w *Wheel[K, V]) Window() time.Duration { return w.window }

// Add adds the entry registered at ts and returns the index of the bucket it
// was placed in. Entries older than the TTL are placed in the oldest bucket,
// they are evicted with the next rotation. owner may be nil.
func (w *Wheel[K, V]) Add(key K, value V, ts time.Time, owner Evictor[K, V]) int {
	now := w.clock.Now()
	w.mu.Lock()
	evicted, _ := w.rotateLocked(now)
	idx := w.addLocked(key, value, ts, now, owner)
	n := w.lenLocked()
	w.mu.Unlock()

	metrics.GaugeSet(w.metrics.Entries, float64(n))
	w.evict(evicted)
	return idx
}

// Refresh moves the entry from oldBucket to the bucket matching ts. If the
// entry is not in oldBucket, all buckets are searched. It returns the new
// bucket index.
func (w *Wheel[K, V]) Refresh(key K, value V, ts time.Time, oldBucket int,
	owner Evictor[K, V]) int {

	now := w.clock.Now()
	w.mu.Lock()
	evicted, _ := w.rotateLocked(now)
	w.removeLocked(key, oldBucket)
	idx := w.addLocked(key, value, ts, now, owner)
	n := w.lenLocked()
	w.mu.Unlock()

	metrics.GaugeSet(w.metrics.Entries, float64(n))
	w.evict(evicted)
	return idx
}

// Remove removes the entry from bucket without evicting it. If the entry is
// not in bucket, all buckets are searched. It reports whether an entry was
// removed.
func (w *Wheel[K, V]) Remove(key K, bucket int) bool {
	w.mu.Lock()
	removed := w.removeLocked(key, bucket)
	n := w.lenLocked()
	w.mu.Unlock()

	metrics.GaugeSet(w.metrics.Entries, float64(n))
	return removed
}

// Rotate advances the wheel to now. For every elapsed window, at most one
// full turn, the oldest bucket is evicted and becomes the current bucket. It
// returns the number of rotations.
func (w *Wheel[K, V]) Rotate(now time.Time) int {
	w.mu.Lock()
	evicted, rotations := w.rotateLocked(now)
	n := w.lenLocked()
	w.mu.Unlock()

	metrics.GaugeSet(w.metrics.Entries, float64(n))
	w.evict(evicted)
	return rotations
}

// BucketContents returns a copy of the entries in bucket i.
func (w *Wheel[K, V]) BucketContents(i int) map[K]V {
	w.mu.Lock()
	defer w.mu.Unlock()
	if i < 0 || i >= len(w.buckets) {
		return nil
	}
	res := make(map[K]V, len(w.buckets[i]))
	for k, e := range w.buckets[i] {
		res[k] = e.value
	}
	return res
}

// Current returns the index of the current bucket.
func (w *Wheel[K, V]) Current() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.current
}

// Len returns the number of entries.
func (w *Wheel[K, V]) Len() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.lenLocked()
}

// Name returns the name of the rotation task.
func (w *Wheel[K, V]) Name() string {
	return "expiry_wheel_rotation"
}

// Run rotates the wheel to the current time. It allows the wheel to be
// driven by a periodic runner.
func (w *Wheel[K, V]) Run(ctx context.Context) {
	if n := w.Rotate(w.clock.Now()); n > 0 {
		log.FromCtx(ctx).Debug("Rotated expiry wheel", "rotations", n, "entries", w.Len())
	}
}

func (w *Wheel[K, V]) oldestLocked() int {
	return (w.current + 1) % len(w.buckets)
}

// indexLocked returns the bucket for an entry registered at ts.
func (w *Wheel[K, V]) indexLocked(ts, now time.Time) int {
	if ts.Before(now.Add(-w.ttl)) {
		return w.oldestLocked()
	}
	age := now.Sub(ts)
	if age < 0 {
		age = 0
	}
	n := len(w.buckets)
	// The offset is counted from now, not from the last rotation, so an
	// entry can be evicted up to half a window before its TTL.
	k := int(math.Round(float64(age) / float64(w.window)))
	k = min(max(k, 0), n-1)
	return (w.current - k + n) % n
}

func (w *Wheel[K, V]) addLocked(key K, value V, ts, now time.Time, owner Evictor[K, V]) int {
	idx := w.indexLocked(ts, now)
	w.buckets[idx][key] = entry[K, V]{value: value, owner: owner}
	return idx
}

func (w *Wheel[K, V]) removeLocked(key K, bucket int) bool {
	if bucket >= 0 && bucket < len(w.buckets) {
		if _, ok := w.buckets[bucket][key]; ok {
			delete(w.buckets[bucket], key)
			return true
		}
	}
	removed := false
	for _, b := range w.buckets {
		if _, ok := b[key]; ok {
			delete(b, key)
			removed = true
		}
	}
	return removed
}

func (w *Wheel[K, V]) rotateLocked(now time.Time) ([]eviction[K, V], int) {
	elapsed := now.Sub(w.lastRotation)
	k := int(elapsed / w.window)
	if k <= 0 {
		return nil, 0
	}
	var evicted []eviction[K, V]
	n := len(w.buckets)
	capped := k >= n
	if capped {
		k = n
	}
	for i := 0; i < k; i++ {
		oldest := w.oldestLocked()
		for key, e := range w.buckets[oldest] {
			evicted = append(evicted, eviction[K, V]{key: key, entry: e})
		}
		w.buckets[oldest] = make(map[K]entry[K, V])
		w.current = oldest
	}
	if capped {
		w.lastRotation = now
	} else {
		w.lastRotation = w.lastRotation.Add(time.Duration(k) * w.window)
	}
	metrics.CounterAdd(w.metrics.Rotations, float64(k))
	return evicted, k
}

func (w *Wheel[K, V]) lenLocked() int {
	n := 0
	for _, b := range w.buckets {
		n += len(b)
	}
	return n
}

// evict notifies the owners of the evicted entries. It must be called
// without holding the lock, owners may call back into the wheel.
func (w *Wheel[K, V]) evict(evicted []eviction[K, V]) {
	for _, e := range evicted {
		if e.owner == nil {
			continue
		}
		if err := e.owner.Evict(e.key, e.value); err != nil {
			w.logger.Error("Evicting expired entry", "key", e.key, "err", err)
			metrics.CounterInc(metrics.CounterWith(w.metrics.Evictions, prom.LabelResult, prom.Error))
			continue
		}
		metrics.CounterInc(metrics.CounterWith(w.metrics.Evictions, prom.LabelResult, prom.Success))
	}
}
