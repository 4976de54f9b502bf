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

// Package mapsystem combines the mapping caches of the map server. It keeps
// northbound mappings provisioned by operators apart from southbound
// registrations of xTRs, expires southbound registrations, caches negative
// answers and tracks the SMR subscribers of EIDs.
package mapsystem

import (
	"slices"
	"sync"
	"time"

	"github.com/benbjohnson/clock"

	"github.com/lispms/lispms/pkg/eid"
	"github.com/lispms/lispms/pkg/log"
	"github.com/lispms/lispms/pkg/mapping"
	"github.com/lispms/lispms/pkg/metrics"
	"github.com/lispms/lispms/pkg/private/prom"
	"github.com/lispms/lispms/pkg/private/serrors"
	"github.com/lispms/lispms/private/expiry"
	"github.com/lispms/lispms/private/keyedstore"
	"github.com/lispms/lispms/private/mapcache"
	"github.com/lispms/lispms/private/periodic"
)

const (
	// DefaultRegistrationTTL is the validity of a southbound registration.
	DefaultRegistrationTTL = 3 * time.Minute
	// DefaultBuckets is the number of expiry wheel buckets.
	DefaultBuckets = 4
)

// Sink is notified about mapping changes, e.g., to persist them. It must not
// block.
type Sink interface {
	UpdateMapping(key eid.EID, origin mapping.Origin, record *mapping.Record)
	RemoveMapping(key eid.EID, origin mapping.Origin)
}

// SMRNotifier is notified when the mapping of an EID with subscribers
// changed. It is expected to send Solicit-Map-Requests to the subscribers.
type SMRNotifier interface {
	NotifySubscribers(key eid.EID, subscribers []mapping.Subscriber)
}

// Config configures a map system.
type Config struct {
	// MappingMerge enables merging the southbound registrations of
	// different xTRs.
	MappingMerge bool
	// RegistrationTTL is the validity of southbound registrations.
	RegistrationTTL time.Duration
	// Buckets is the number of buckets of the expiry wheel.
	Buckets      int
	LookupPolicy LookupPolicy
	// NorthboundTier selects the northbound cache, either flat or
	// multitable.
	NorthboundTier mapcache.Tier
	// SMR enables tracking subscribers on lookups.
	SMR bool
	// NegativeCacheSize is the number of cached widest negative prefixes.
	// Zero disables the cache.
	NegativeCacheSize int
	// NegativeTTL bounds the age of cached negative prefixes. Zero means
	// they are only invalidated by writes.
	NegativeTTL time.Duration

	Clock       clock.Clock
	Logger      log.Logger
	Sink        Sink
	SMRNotifier SMRNotifier
	Metrics     Metrics
}

func (cfg *Config) initDefaults() {
	if cfg.RegistrationTTL == 0 {
		cfg.RegistrationTTL = DefaultRegistrationTTL
	}
	if cfg.Buckets == 0 {
		cfg.Buckets = DefaultBuckets
	}
	if cfg.Clock == nil {
		cfg.Clock = clock.New()
	}
	if cfg.Logger == nil {
		cfg.Logger = log.Root()
	}
}

// MapSystem is the mapping database of the map server. It is safe for
// concurrent use.
type MapSystem struct {
	policy      LookupPolicy
	smr         bool
	clock       clock.Clock
	logger      log.Logger
	sink        Sink
	smrNotifier SMRNotifier
	metrics     Metrics

	nb mapcache.Cache
	// nbNegative is false if the northbound cache can't compute negative
	// prefixes.
	nbNegative  bool
	sb          *mapcache.Simple
	authKeys    *mapcache.MultiTable
	// subscribers holds the subscriber sets by prefix. Its prefix queries
	// find the subscribers whose answer is changed by a new mapping.
	subscribers *mapcache.MultiTable
	wheel       *expiry.Wheel[eid.EID, *mapping.Record]
	negative    *negativeCache

	// mu serializes southbound writes with the eviction of expired
	// registrations. It must not be held while calling into the wheel.
	mu sync.Mutex
}

// New creates a map system.
func New(cfg Config) (*MapSystem, error) {
	cfg.initDefaults()
	if cfg.RegistrationTTL < 0 {
		return nil, serrors.New("negative registration TTL", "ttl", cfg.RegistrationTTL)
	}
	if cfg.NorthboundTier == mapcache.TierSimple {
		return nil, serrors.New("northbound cache must be flat or multitable",
			"tier", cfg.NorthboundTier)
	}
	nb, err := mapcache.New(mapcache.Config{
		Tier:   cfg.NorthboundTier,
		Clock:  cfg.Clock,
		Logger: cfg.Logger.New("origin", mapping.Northbound),
		Metrics: mapcache.Metrics{
			Operations: metrics.CounterWith(cfg.Metrics.CacheOperations,
				prom.LabelOrigin, mapping.Northbound.String()),
		},
	})
	if err != nil {
		return nil, serrors.Wrap("creating northbound cache", err)
	}
	wheel, err := expiry.New[eid.EID, *mapping.Record](expiry.Config{
		Buckets: cfg.Buckets,
		TTL:     cfg.RegistrationTTL,
		Clock:   cfg.Clock,
		Logger:  cfg.Logger,
		Metrics: cfg.Metrics.Expiry,
	})
	if err != nil {
		return nil, serrors.Wrap("creating expiry wheel", err)
	}
	negative, err := newNegativeCache(cfg.NegativeCacheSize, cfg.NegativeTTL)
	if err != nil {
		return nil, err
	}
	return &MapSystem{
		policy:      cfg.LookupPolicy,
		smr:         cfg.SMR,
		clock:       cfg.Clock,
		logger:      cfg.Logger,
		sink:        cfg.Sink,
		smrNotifier: cfg.SMRNotifier,
		metrics:     cfg.Metrics,
		nb:          nb,
		nbNegative:  cfg.NorthboundTier != mapcache.TierFlat,
		sb: mapcache.NewSimple(mapcache.Config{
			Merge:           cfg.MappingMerge,
			RegistrationTTL: cfg.RegistrationTTL,
			Clock:           cfg.Clock,
			Logger:          cfg.Logger.New("origin", mapping.Southbound),
			Metrics: mapcache.Metrics{
				Operations: metrics.CounterWith(cfg.Metrics.CacheOperations,
					prom.LabelOrigin, mapping.Southbound.String()),
			},
		}),
		authKeys:    mapcache.NewMultiTable(mapcache.Config{Logger: cfg.Logger}),
		subscribers: mapcache.NewMultiTable(mapcache.Config{Logger: cfg.Logger}),
		wheel:       wheel,
		negative:    negative,
	}, nil
}

// ExpiryTask returns the task that rotates the expiry wheel. It should be
// run periodically, e.g., once per second.
func (m *MapSystem) ExpiryTask() periodic.Task {
	return m.wheel
}

// AddMapping adds a mapping. Southbound mappings are registrations that
// expire after the registration TTL unless they are refreshed. Northbound
// mappings always replace the existing mapping.
func (m *MapSystem) AddMapping(origin mapping.Origin, key eid.EID, record *mapping.Record,
	overwrite bool) {

	if record == nil {
		m.logger.Debug("Ignoring nil mapping record", "eid", key, "origin", origin)
		return
	}
	key = key.Normalize()
	if origin == mapping.Northbound {
		prev := keyedstore.RecordOf(m.nb.GetData(key, mapcache.SubRecord))
		m.nb.AddMapping(key, record, true)
		m.negative.invalidate()
		m.updated(key, origin, prev, record)
		return
	}

	m.mu.Lock()
	prev := keyedstore.RecordOf(m.sb.GetData(key, mapcache.SubRecord))
	m.sb.AddMapping(key, record, overwrite)
	stored := keyedstore.RecordOf(m.sb.GetData(key, mapcache.SubRecord))
	m.mu.Unlock()

	if stored == nil || stored == prev {
		// Outdated registration.
		return
	}
	m.negative.invalidate()
	m.track(key, stored)
	m.updated(key, origin, prev, stored)
}

// track moves the wheel slot of key to the timestamp of stored and remembers
// the bucket. The wheel has at most one slot per key.
func (m *MapSystem) track(key eid.EID, stored *mapping.Record) {
	idx := m.wheel.Refresh(key, stored, stored.Timestamp, m.bucket(key), m)
	m.mu.Lock()
	defer m.mu.Unlock()
	// The registration might have been replaced or removed in the meantime.
	if keyedstore.RecordOf(m.sb.GetData(key, mapcache.SubRecord)) == stored {
		m.sb.AddData(key, mapcache.SubBucketID, keyedstore.Int(idx))
	}
}

// bucket returns the remembered wheel bucket of key or -1.
func (m *MapSystem) bucket(key eid.EID) int {
	if b, ok := keyedstore.IntOf(m.sb.GetData(key, mapcache.SubBucketID)); ok {
		return int(b)
	}
	return -1
}

func (m *MapSystem) updated(key eid.EID, origin mapping.Origin, prev, record *mapping.Record) {
	metrics.CounterInc(metrics.CounterWith(m.metrics.Registrations, prom.LabelOrigin, origin.String()))
	if m.sink != nil {
		m.sink.UpdateMapping(key, origin, record)
	}
	switch {
	case prev == nil:
		m.notifyOverlapping(key)
	case !slices.Equal(prev.Locators, record.Locators):
		m.notifySubscribers(key)
	}
}

// GetMapping returns the mapping for dst, and src for source-destination
// mappings, according to the lookup policy.
func (m *MapSystem) GetMapping(src, dst eid.EID) *mapping.Record {
	match, _ := m.lookup(src, dst)
	return match.Record
}

// lookup returns the mapping selected by the lookup policy together with the
// key it was matched under.
func (m *MapSystem) lookup(src, dst eid.EID) (mapcache.Match, bool) {
	var (
		match mapcache.Match
		ok    bool
	)
	switch m.policy {
	case NorthboundAndSouthbound:
		match, ok = m.nbAndSbMapping(src, dst)
	default:
		match, ok = m.nbFirstMapping(src, dst)
	}
	result := prom.Hit
	if !ok {
		result = prom.Miss
	}
	metrics.CounterInc(metrics.CounterWith(m.metrics.Lookups, prom.LabelResult, result))
	return match, ok
}

func (m *MapSystem) nbFirstMapping(src, dst eid.EID) (mapcache.Match, bool) {
	if match, ok := m.nb.LookupMapping(src, dst); ok && match.Record != nil {
		return match, true
	}
	return m.sbMapping(src, dst)
}

func (m *MapSystem) nbAndSbMapping(src, dst eid.EID) (mapcache.Match, bool) {
	nb, ok := m.nb.LookupMapping(src, dst)
	if !ok || nb.Record == nil {
		return mapcache.Match{}, false
	}
	sb, ok := m.sbMapping(src, dst)
	if !ok {
		return nb, true
	}
	nb.Record = nb.Record.Intersect(sb.Record)
	return nb, true
}

// sbMapping returns the southbound mapping. Registrations that are past
// their expiry but not yet evicted by the wheel are removed.
func (m *MapSystem) sbMapping(src, dst eid.EID) (mapcache.Match, bool) {
	match, ok := m.sb.LookupMapping(src, dst)
	if !ok || match.Record == nil {
		return mapcache.Match{}, false
	}
	expires, ok := keyedstore.TimeOf(m.sb.GetData(match.EID, mapcache.SubRegDate))
	if ok && expires.Before(m.clock.Now()) {
		m.logger.Debug("Removing expired registration", "eid", match.EID, "expired", expires)
		m.expire(match.EID, match.Record, true)
		return mapcache.Match{}, false
	}
	return match, true
}

// GetMappingWithSubscriber is like GetMapping and additionally records the
// requester as subscriber of the key the mapping was matched under, or of the
// widest negative prefix if there is no mapping. Subscribers are only
// recorded with SMR enabled.
func (m *MapSystem) GetMappingWithSubscriber(src, dst eid.EID,
	subscriber mapping.Subscriber) *mapping.Record {

	match, ok := m.lookup(src, dst)
	if !m.smr || !subscriber.RLOC.IsValid() {
		return match.Record
	}
	var key eid.EID
	if ok {
		key = match.EID
	} else if neg, ok := m.GetWidestNegativePrefix(dst); ok {
		key = neg
	}
	if key.IsValid() {
		m.AddSubscriber(key, subscriber)
	}
	return match.Record
}

// GetWidestNegativePrefix returns the widest prefix covering key for which
// neither a northbound nor a southbound mapping exists.
func (m *MapSystem) GetWidestNegativePrefix(key eid.EID) (eid.EID, bool) {
	if !key.IsPrefix() {
		return eid.EID{}, false
	}
	key = key.Normalize()
	now := m.clock.Now()
	if prefix, ok, hit := m.negative.get(key, now); hit {
		metrics.CounterInc(metrics.CounterWith(m.metrics.NegativeLookups, prom.LabelResult, prom.Cached))
		return prefix, ok
	}
	metrics.CounterInc(metrics.CounterWith(m.metrics.NegativeLookups, prom.LabelResult, prom.Computed))
	gen := m.negative.generation()
	prefix, ok := m.widestNegative(key)
	m.negative.add(key, prefix, ok, gen, now)
	return prefix, ok
}

func (m *MapSystem) widestNegative(key eid.EID) (eid.EID, bool) {
	sb, ok := m.sb.GetWidestNegativeMapping(key)
	if !ok || !m.nbNegative {
		return sb, ok
	}
	nb, ok := m.nb.GetWidestNegativeMapping(key)
	if !ok {
		return eid.EID{}, false
	}
	// Both prefixes cover key, the more specific one is the answer.
	if moreSpecific(sb, nb) {
		return sb, true
	}
	return nb, true
}

func moreSpecific(a, b eid.EID) bool {
	if a.MaskLen() != b.MaskLen() {
		return a.MaskLen() > b.MaskLen()
	}
	return a.SourcePrefix().Bits() > b.SourcePrefix().Bits()
}

// RemoveMapping removes the mapping of key.
func (m *MapSystem) RemoveMapping(origin mapping.Origin, key eid.EID) {
	key = key.Normalize()
	if origin == mapping.Northbound {
		if m.nb.GetData(key, mapcache.SubRecord) == nil {
			return
		}
		m.nb.RemoveMapping(key)
		m.removed(key, origin, prom.ReasonRequest)
		return
	}
	m.mu.Lock()
	rec := keyedstore.RecordOf(m.sb.GetData(key, mapcache.SubRecord))
	bucket := m.bucket(key)
	if rec != nil {
		m.sb.RemoveMapping(key)
		m.sb.RemoveData(key, mapcache.SubBucketID)
	}
	m.mu.Unlock()
	if rec == nil {
		return
	}
	m.wheel.Remove(key, bucket)
	m.removed(key, origin, prom.ReasonRequest)
}

func (m *MapSystem) removed(key eid.EID, origin mapping.Origin, reason string) {
	m.negative.invalidate()
	metrics.CounterInc(metrics.CounterWith(m.metrics.Removals,
		prom.LabelOrigin, origin.String(), prom.LabelReason, reason))
	if m.sink != nil {
		m.sink.RemoveMapping(key, origin)
	}
	m.notifySubscribers(key)
}

// Evict is called by the expiry wheel for registrations whose validity
// passed.
func (m *MapSystem) Evict(key eid.EID, record *mapping.Record) error {
	if record == nil {
		return serrors.New("evicting nil record", "eid", key)
	}
	m.expire(key, record, false)
	return nil
}

// expire removes the southbound mapping of key if it still is the expired
// record. With lazy set, the expiry was detected on lookup and the wheel slot
// is removed as well. Otherwise the wheel evicted the slot and a
// registration refreshed in the meantime gets a new slot.
func (m *MapSystem) expire(key eid.EID, record *mapping.Record, lazy bool) {
	m.mu.Lock()
	stored := keyedstore.RecordOf(m.sb.GetData(key, mapcache.SubRecord))
	bucket := m.bucket(key)
	current := stored != nil && stored.Timestamp.Equal(record.Timestamp)
	if current {
		m.sb.RemoveMapping(key)
		m.sb.RemoveData(key, mapcache.SubBucketID)
	}
	m.mu.Unlock()

	switch {
	case current:
		if lazy {
			m.wheel.Remove(key, bucket)
		}
		m.logger.Debug("Registration expired", "eid", key)
		m.removed(key, mapping.Southbound, prom.ReasonExpired)
	case stored != nil && !lazy:
		m.track(key, stored)
	}
}

// AddAuthenticationKey adds the authentication key for the prefix key.
func (m *MapSystem) AddAuthenticationKey(key eid.EID, authKey mapping.AuthKey) {
	m.authKeys.AddAuthenticationKey(key, authKey)
}

// GetAuthenticationKey returns the authentication key of the longest prefix
// covering key.
func (m *MapSystem) GetAuthenticationKey(key eid.EID) (mapping.AuthKey, bool) {
	return m.authKeys.GetAuthenticationKey(key)
}

func (m *MapSystem) RemoveAuthenticationKey(key eid.EID) {
	m.authKeys.RemoveAuthenticationKey(key)
}

// AddSubscriber adds or refreshes a subscriber of key. A missing request time
// is set to now.
func (m *MapSystem) AddSubscriber(key eid.EID, subscriber mapping.Subscriber) {
	if subscriber.LastRequest.IsZero() {
		subscriber.LastRequest = m.clock.Now()
	}
	v, _ := m.subscribers.LoadOrStoreData(key, mapcache.SubSubscribers,
		keyedstore.Subscribers{SubscriberSet: mapping.NewSubscriberSet()})
	v.(keyedstore.Subscribers).Add(subscriber)
}

// GetSubscribers returns the subscribers of key. Expired subscribers are
// removed.
func (m *MapSystem) GetSubscribers(key eid.EID) []mapping.Subscriber {
	v, ok := m.subscribers.GetData(key, mapcache.SubSubscribers).(keyedstore.Subscribers)
	if !ok {
		return nil
	}
	if n := v.PruneExpired(m.clock.Now()); n > 0 {
		m.logger.Debug("Pruned expired subscribers", "eid", key, "count", n)
	}
	return v.List()
}

func (m *MapSystem) RemoveSubscribers(key eid.EID) {
	m.subscribers.RemoveData(key, mapcache.SubSubscribers)
}

func (m *MapSystem) notifySubscribers(key eid.EID) {
	if !m.smr || m.smrNotifier == nil {
		return
	}
	if subs := m.GetSubscribers(key); len(subs) > 0 {
		m.smrNotifier.NotifySubscribers(key, subs)
	}
}

// notifyOverlapping notifies the subscribers whose answer is changed by the
// new mapping of key: subscribers of key itself, of the stored prefixes
// covering key (less specific mappings and negative prefixes) and of the
// negative prefixes inside key.
func (m *MapSystem) notifyOverlapping(key eid.EID) {
	if !m.smr || m.smrNotifier == nil {
		return
	}
	m.notifySubscribers(key)
	if !key.IsPrefix() || key.Type() == eid.TypeSourceDest {
		return
	}
	for p, ok := m.subscribers.GetCoveringLessSpecific(key); ok; p, ok = m.subscribers.GetParentPrefix(p) {
		m.notifySubscribers(p)
	}
	for _, p := range m.subscribers.GetSubtree(key) {
		if p != key {
			m.notifySubscribers(p)
		}
	}
}

// Status summarizes the state of the map system.
type Status struct {
	NorthboundMappings int `json:"northbound_mappings"`
	SouthboundMappings int `json:"southbound_mappings"`
	ExpiryEntries      int `json:"expiry_entries"`
	NegativeCached     int `json:"negative_cached"`
}

// Status returns the current status.
func (m *MapSystem) Status() Status {
	return Status{
		NorthboundMappings: m.nb.Count(),
		SouthboundMappings: m.sb.Count(),
		ExpiryEntries:      m.wheel.Len(),
		NegativeCached:     m.negative.len(),
	}
}

// ForEach visits all stored values of the given origin.
func (m *MapSystem) ForEach(origin mapping.Origin, visit keyedstore.Visitor) {
	if origin == mapping.Northbound {
		m.nb.ForEach(visit)
		return
	}
	m.sb.ForEach(visit)
}
