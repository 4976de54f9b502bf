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
	"sync"

	"github.com/lispms/lispms/pkg/eid"
	"github.com/lispms/lispms/pkg/log"
	"github.com/lispms/lispms/pkg/mapping"
	"github.com/lispms/lispms/private/keyedstore"
)

var _ Cache = (*Flat)(nil)

// Flat is a cache keyed by the normalized EID. It doesn't do longest prefix
// matching.
type Flat struct {
	logger  log.Logger
	metrics Metrics

	// mu serializes read-modify-write sequences.
	mu    sync.Mutex
	table *keyedstore.HashStore
}

// NewFlat creates a flat cache.
func NewFlat(cfg Config) *Flat {
	cfg.initDefaults()
	return &Flat{
		logger:  cfg.Logger,
		metrics: cfg.Metrics,
		table:   keyedstore.NewHashStore(nil),
	}
}

func (c *Flat) AddMapping(key eid.EID, record *mapping.Record, _ bool) {
	if record == nil {
		c.logger.Debug("Ignoring nil mapping record", "eid", key)
		return
	}
	c.table.Put(key.Normalize(), keyedstore.E(SubRecord, keyedstore.Record{Record: record}))
	c.metrics.inc("add")
}

func (c *Flat) GetMapping(_, dst eid.EID) *mapping.Record {
	m, _ := c.LookupMapping(eid.EID{}, dst)
	return m.Record
}

func (c *Flat) LookupMapping(_, dst eid.EID) (Match, bool) {
	if !dst.IsValid() {
		return Match{}, false
	}
	key := dst.Normalize()
	rec := keyedstore.RecordOf(c.table.GetSpecific(key, SubRecord))
	if rec == nil {
		return Match{}, false
	}
	return Match{EID: key, Record: rec}, true
}

func (c *Flat) GetXtrIDMapping(src, dst eid.EID, xtrID mapping.XtrID) *mapping.Record {
	if rec := c.GetMapping(src, dst); rec != nil && rec.XtrID == xtrID {
		return rec
	}
	return nil
}

func (c *Flat) RemoveMapping(key eid.EID) {
	if c.table.RemoveSpecific(key.Normalize(), SubRecord) {
		c.metrics.inc("remove")
	}
}

func (c *Flat) RemoveXtrIDMapping(key eid.EID, xtrID mapping.XtrID) {
	c.mu.Lock()
	defer c.mu.Unlock()
	key = key.Normalize()
	rec := keyedstore.RecordOf(c.table.GetSpecific(key, SubRecord))
	if rec == nil || rec.XtrID != xtrID {
		return
	}
	c.table.RemoveSpecific(key, SubRecord)
	c.metrics.inc("remove")
}

func (c *Flat) AddAuthenticationKey(key eid.EID, authKey mapping.AuthKey) {
	c.table.Put(key.Normalize(), keyedstore.E(SubAuthKey, keyedstore.AuthKey{AuthKey: authKey}))
}

func (c *Flat) GetAuthenticationKey(key eid.EID) (mapping.AuthKey, bool) {
	return authKeyOf(c.table.GetSpecific(key.Normalize(), SubAuthKey))
}

func (c *Flat) RemoveAuthenticationKey(key eid.EID) {
	c.table.RemoveSpecific(key.Normalize(), SubAuthKey)
}

// GetWidestNegativeMapping is not supported by the flat cache.
func (c *Flat) GetWidestNegativeMapping(eid.EID) (eid.EID, bool) {
	return eid.EID{}, false
}

// GetCoveringLessSpecific is not supported by the flat cache.
func (c *Flat) GetCoveringLessSpecific(eid.EID) (eid.EID, bool) {
	return eid.EID{}, false
}

// GetParentPrefix is not supported by the flat cache.
func (c *Flat) GetParentPrefix(eid.EID) (eid.EID, bool) {
	return eid.EID{}, false
}

// GetSubtree returns key if it is stored.
func (c *Flat) GetSubtree(key eid.EID) []eid.EID {
	key = key.Normalize()
	if c.table.Get(key) == nil {
		return nil
	}
	return []eid.EID{key}
}

func (c *Flat) AddData(key eid.EID, sub keyedstore.SubKey, v keyedstore.Value) {
	c.table.Put(key.Normalize(), keyedstore.E(sub, v))
}

func (c *Flat) GetData(key eid.EID, sub keyedstore.SubKey) keyedstore.Value {
	return c.table.GetSpecific(key.Normalize(), sub)
}

func (c *Flat) RemoveData(key eid.EID, sub keyedstore.SubKey) {
	c.table.RemoveSpecific(key.Normalize(), sub)
}

func (c *Flat) LoadOrStoreData(key eid.EID, sub keyedstore.SubKey,
	v keyedstore.Value) (keyedstore.Value, bool) {

	return c.table.LoadOrStore(key.Normalize(), sub, v)
}

func (c *Flat) ForEach(visit keyedstore.Visitor) {
	c.table.GetAll(visit)
}

func (c *Flat) Count() int {
	return countRecords(c.ForEach)
}
