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

// Package mapcache contains the mapping caches of the map server.
//
// All caches implement Cache and differ in how they store mappings:
//
//   - Flat stores mappings by their normalized EID and only supports exact
//     lookups.
//   - MultiTable partitions mappings by VNI into prefix tables. For source
//     destination EIDs, the destination is looked up first and the source
//     is looked up in a nested table of the matched destination.
//   - Simple uses the MultiTable topology, keeps the registration expiry of
//     every mapping and optionally merges the registrations of several xTRs
//     for the same EID.
package mapcache

import (
	"strings"
	"time"

	"github.com/benbjohnson/clock"

	"github.com/lispms/lispms/pkg/eid"
	"github.com/lispms/lispms/pkg/log"
	"github.com/lispms/lispms/pkg/mapping"
	"github.com/lispms/lispms/pkg/metrics"
	"github.com/lispms/lispms/pkg/private/prom"
	"github.com/lispms/lispms/pkg/private/serrors"
	"github.com/lispms/lispms/private/keyedstore"
)

// Sub-keys used by the caches.
const (
	SubRecord       keyedstore.SubKey = "RECORD"
	SubRegDate      keyedstore.SubKey = "REGDATE"
	SubXtrIDRecords keyedstore.SubKey = "XTRID_RECORDS"
	SubSrcDst       keyedstore.SubKey = "LCAF_SRCDST"
	SubAuthKey      keyedstore.SubKey = "AUTH_KEY"
	SubSubscribers  keyedstore.SubKey = "SUBSCRIBERS"
	SubBucketID     keyedstore.SubKey = "BUCKET_ID"
	SubVNI          keyedstore.SubKey = "VNI"
)

// Match is the result of a mapping lookup.
type Match struct {
	// EID is the key of the matched entry. For a source-destination match it
	// combines the matched source and destination prefixes.
	EID    eid.EID
	Record *mapping.Record
}

// Cache is a mapping cache. All methods are safe for concurrent use.
type Cache interface {
	// AddMapping stores record under key. A nil record is ignored. Unless
	// overwrite is set, records that are not newer than the stored one are
	// ignored by caches that track registrations.
	AddMapping(key eid.EID, record *mapping.Record, overwrite bool)
	// GetMapping returns the record matching dst, and src for
	// source-destination entries, or nil.
	GetMapping(src, dst eid.EID) *mapping.Record
	// LookupMapping is like GetMapping but also returns the matched key.
	LookupMapping(src, dst eid.EID) (Match, bool)
	// GetXtrIDMapping returns the record registered by xtrID.
	GetXtrIDMapping(src, dst eid.EID, xtrID mapping.XtrID) *mapping.Record
	RemoveMapping(key eid.EID)
	RemoveXtrIDMapping(key eid.EID, xtrID mapping.XtrID)

	AddAuthenticationKey(key eid.EID, authKey mapping.AuthKey)
	// GetAuthenticationKey returns the key of the longest prefix covering
	// key that has an authentication key.
	GetAuthenticationKey(key eid.EID) (mapping.AuthKey, bool)
	RemoveAuthenticationKey(key eid.EID)

	// GetWidestNegativeMapping returns the widest prefix covering key that
	// doesn't overlap with any stored prefix.
	GetWidestNegativeMapping(key eid.EID) (eid.EID, bool)
	// GetCoveringLessSpecific returns the longest stored prefix strictly
	// covering key.
	GetCoveringLessSpecific(key eid.EID) (eid.EID, bool)
	// GetParentPrefix returns the closest stored prefix above the stored
	// prefix key.
	GetParentPrefix(key eid.EID) (eid.EID, bool)
	// GetSubtree returns the stored prefixes equal to or more specific than
	// key.
	GetSubtree(key eid.EID) []eid.EID

	AddData(key eid.EID, sub keyedstore.SubKey, v keyedstore.Value)
	GetData(key eid.EID, sub keyedstore.SubKey) keyedstore.Value
	RemoveData(key eid.EID, sub keyedstore.SubKey)
	LoadOrStoreData(key eid.EID, sub keyedstore.SubKey,
		v keyedstore.Value) (keyedstore.Value, bool)

	// ForEach visits every stored value, including the values of nested
	// stores.
	ForEach(visit keyedstore.Visitor)
	// Count returns the number of stored mappings.
	Count() int
}

// Tier selects the cache implementation. The zero value is the multi table
// cache.
type Tier int

const (
	TierMultiTable Tier = iota
	TierFlat
	TierSimple
)

func (t Tier) String() string {
	switch t {
	case TierFlat:
		return "flat"
	case TierMultiTable:
		return "multitable"
	case TierSimple:
		return "simple"
	default:
		return "unknown"
	}
}

// ParseTier parses the name of a tier.
func ParseTier(s string) (Tier, error) {
	switch strings.ToLower(s) {
	case "flat":
		return TierFlat, nil
	case "multitable", "multi_table":
		return TierMultiTable, nil
	case "simple":
		return TierSimple, nil
	}
	return 0, serrors.New("unknown cache tier", "tier", s)
}

func (t Tier) MarshalText() ([]byte, error) {
	return []byte(t.String()), nil
}

func (t *Tier) UnmarshalText(text []byte) error {
	parsed, err := ParseTier(string(text))
	if err != nil {
		return err
	}
	*t = parsed
	return nil
}

// Metrics are the optional metrics of a cache.
type Metrics struct {
	// Operations counts mapping operations, labeled by op (add, noop,
	// remove).
	Operations metrics.Counter
}

func (m Metrics) inc(op string) {
	metrics.CounterInc(metrics.CounterWith(m.Operations, prom.LabelOperation, op))
}

// Config configures a cache.
type Config struct {
	Tier Tier
	// Merge enables merging the registrations of different xTRs. Only used
	// by the simple cache.
	Merge bool
	// RegistrationTTL is the validity of a registration in the simple
	// cache. If zero, the TTL of the record is used.
	RegistrationTTL time.Duration
	// RootZero keeps a zero length root node in the prefix tables.
	RootZero bool
	// Clock is the time source. The wall clock is used if nil.
	Clock   clock.Clock
	Logger  log.Logger
	Metrics Metrics
}

func (cfg *Config) initDefaults() {
	if cfg.Clock == nil {
		cfg.Clock = clock.New()
	}
	if cfg.Logger == nil {
		cfg.Logger = log.Root()
	}
}

// New creates the cache selected by cfg.Tier.
func New(cfg Config) (Cache, error) {
	switch cfg.Tier {
	case TierFlat:
		return NewFlat(cfg), nil
	case TierMultiTable:
		return NewMultiTable(cfg), nil
	case TierSimple:
		return NewSimple(cfg), nil
	}
	return nil, serrors.New("unknown cache tier", "tier", int(cfg.Tier))
}

func recordOf(values map[keyedstore.SubKey]keyedstore.Value) *mapping.Record {
	return keyedstore.RecordOf(values[SubRecord])
}

func authKeyOf(v keyedstore.Value) (mapping.AuthKey, bool) {
	k, ok := v.(keyedstore.AuthKey)
	if !ok {
		return mapping.AuthKey{}, false
	}
	return k.AuthKey, true
}

// countRecords counts the mappings of a cache. Records in nested per xTR-ID
// stores are not counted.
func countRecords(forEach func(keyedstore.Visitor)) int {
	n := 0
	forEach(func(path []any, sub keyedstore.SubKey, _ keyedstore.Value) {
		if sub != SubRecord || len(path) == 0 {
			return
		}
		if _, ok := path[len(path)-1].(eid.EID); ok {
			n++
		}
	})
	return n
}
