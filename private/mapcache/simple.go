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

package mapcache

import (
	"slices"
	"time"

	"github.com/benbjohnson/clock"

	"github.com/lispms/lispms/pkg/eid"
	"github.com/lispms/lispms/pkg/mapping"
	"github.com/lispms/lispms/private/keyedstore"
)

var _ Cache = (*Simple)(nil)

// Simple is a prefix cache for registrations. Besides the record it stores
// the registration expiry under SubRegDate. With merging enabled, the record
// of every xTR is kept in a nested store under SubXtrIDRecords and the record
// under SubRecord is the merge of all of them.
type Simple struct {
	*tables
	merge  bool
	regTTL time.Duration
	clock  clock.Clock
}

// NewSimple creates a simple cache.
func NewSimple(cfg Config) *Simple {
	cfg.initDefaults()
	return &Simple{
		tables: newTables(cfg),
		merge:  cfg.Merge,
		regTTL: cfg.RegistrationTTL,
		clock:  cfg.Clock,
	}
}

// AddMapping adds a registration. Records without a timestamp are stamped
// with the current time. Unless overwrite is set, a record that is not newer
// than the stored one, or the stored one of the same xTR when merging, is
// ignored.
func (c *Simple) AddMapping(key eid.EID, record *mapping.Record, overwrite bool) {
	if record == nil {
		c.logger.Debug("Ignoring nil mapping record", "eid", key)
		return
	}
	now := c.clock.Now()
	if record.Timestamp.IsZero() {
		record = record.Clone()
		record.Timestamp = now
	}
	key = key.Normalize()

	c.mu.Lock()
	defer c.mu.Unlock()
	ts, k := c.locate(key, true)
	if !c.merge {
		if !overwrite && !isNewer(record, keyedstore.RecordOf(ts.GetSpecific(k, SubRecord))) {
			c.logger.Debug("Ignoring outdated registration", "eid", key,
				"timestamp", record.Timestamp)
			c.metrics.inc("noop")
			return
		}
		c.store(ts, k, record, now)
		c.metrics.inc("add")
		return
	}

	v, _ := ts.LoadOrStore(k, SubXtrIDRecords,
		keyedstore.Nested{Store: keyedstore.NewHashStore(nil)})
	xtrs := keyedstore.NestedOf(v)
	old := keyedstore.RecordOf(xtrs.GetSpecific(record.XtrID, SubRecord))
	if !overwrite && !isNewer(record, old) {
		c.logger.Debug("Ignoring outdated registration", "eid", key, "xtr_id", record.XtrID,
			"timestamp", record.Timestamp)
		c.metrics.inc("noop")
		return
	}
	xtrs.Put(record.XtrID, keyedstore.E(SubRecord, keyedstore.Record{Record: record}))
	c.store(ts, k, c.mergeRecords(xtrs, now, record), now)
	c.metrics.inc("add")
}

func isNewer(record, stored *mapping.Record) bool {
	return stored == nil || record.Timestamp.After(stored.Timestamp)
}

func (c *Simple) store(ts *keyedstore.TrieStore, k eid.EID, record *mapping.Record,
	now time.Time) {

	ttl := c.regTTL
	if ttl <= 0 {
		ttl = record.TTL
	}
	ts.Put(k,
		keyedstore.E(SubRecord, keyedstore.Record{Record: record}),
		keyedstore.E(SubRegDate, keyedstore.Time{Time: now.Add(ttl)}),
	)
}

// mergeRecords drops the expired records from xtrs and merges the remaining
// ones. latest is never dropped and its metadata wins. If latest is nil, the
// metadata of the most recent record wins. It returns nil if no record is
// left.
func (c *Simple) mergeRecords(xtrs keyedstore.Store, now time.Time,
	latest *mapping.Record) *mapping.Record {

	var records []*mapping.Record
	var expired []mapping.XtrID
	xtrs.GetAll(func(path []any, sub keyedstore.SubKey, v keyedstore.Value) {
		r := keyedstore.RecordOf(v)
		if sub != SubRecord || r == nil || r == latest {
			return
		}
		if r.Expired(now) {
			expired = append(expired, r.XtrID)
			return
		}
		records = append(records, r)
	})
	for _, id := range expired {
		c.logger.Debug("Dropping expired xTR registration", "xtr_id", id)
		xtrs.RemoveSpecific(id, SubRecord)
	}
	slices.SortStableFunc(records, func(a, b *mapping.Record) int {
		return a.Timestamp.Compare(b.Timestamp)
	})
	if latest != nil {
		records = append(records, latest)
	}
	return mapping.MergeAll(records...)
}

func (c *Simple) GetMapping(src, dst eid.EID) *mapping.Record {
	m, _ := c.lookupMapping(src, dst)
	return m.Record
}

func (c *Simple) LookupMapping(src, dst eid.EID) (Match, bool) {
	return c.lookupMapping(src, dst)
}

// GetXtrIDMapping returns the record registered by xtrID. Without merging,
// this is the stored record if it was registered by xtrID.
func (c *Simple) GetXtrIDMapping(src, dst eid.EID, xtrID mapping.XtrID) *mapping.Record {
	e, ok := c.lookup(src, dst, SubRecord)
	if !ok {
		return nil
	}
	if !c.merge {
		if rec := recordOf(e.values); rec.XtrID == xtrID {
			return rec
		}
		return nil
	}
	xtrs := keyedstore.NestedOf(e.values[SubXtrIDRecords])
	if xtrs == nil {
		return nil
	}
	return keyedstore.RecordOf(xtrs.GetSpecific(xtrID, SubRecord))
}

// RemoveMapping removes the mapping of key, including the records of all
// xTRs.
func (c *Simple) RemoveMapping(key eid.EID) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.remove(key.Normalize(), SubRecord, SubRegDate, SubXtrIDRecords) {
		c.metrics.inc("remove")
	}
}

// RemoveXtrIDMapping removes the record registered by xtrID. When merging,
// the remaining records are merged again.
func (c *Simple) RemoveXtrIDMapping(key eid.EID, xtrID mapping.XtrID) {
	key = key.Normalize()
	c.mu.Lock()
	defer c.mu.Unlock()
	ts, k := c.locate(key, false)
	if ts == nil {
		return
	}
	if !c.merge {
		rec := keyedstore.RecordOf(ts.GetSpecific(k, SubRecord))
		if rec == nil || rec.XtrID != xtrID {
			return
		}
		c.remove(key, SubRecord, SubRegDate)
		c.metrics.inc("remove")
		return
	}
	xtrs := keyedstore.NestedOf(ts.GetSpecific(k, SubXtrIDRecords))
	if xtrs == nil || !xtrs.RemoveSpecific(xtrID, SubRecord) {
		return
	}
	c.metrics.inc("remove")
	now := c.clock.Now()
	if merged := c.mergeRecords(xtrs, now, nil); merged != nil {
		c.store(ts, k, merged, now)
		return
	}
	c.remove(key, SubRecord, SubRegDate, SubXtrIDRecords)
}
