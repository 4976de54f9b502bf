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
	"github.com/lispms/lispms/pkg/eid"
	"github.com/lispms/lispms/pkg/mapping"
	"github.com/lispms/lispms/private/keyedstore"
)

var _ Cache = (*MultiTable)(nil)

// MultiTable is a prefix cache partitioned by VNI. It stores the last
// record added for an EID.
type MultiTable struct {
	*tables
}

// NewMultiTable creates a multi table cache.
func NewMultiTable(cfg Config) *MultiTable {
	cfg.initDefaults()
	return &MultiTable{tables: newTables(cfg)}
}

func (c *MultiTable) AddMapping(key eid.EID, record *mapping.Record, _ bool) {
	if record == nil {
		c.logger.Debug("Ignoring nil mapping record", "eid", key)
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.put(key.Normalize(), keyedstore.E(SubRecord, keyedstore.Record{Record: record}))
	c.metrics.inc("add")
}

func (c *MultiTable) GetMapping(src, dst eid.EID) *mapping.Record {
	m, _ := c.lookupMapping(src, dst)
	return m.Record
}

func (c *MultiTable) LookupMapping(src, dst eid.EID) (Match, bool) {
	return c.lookupMapping(src, dst)
}

func (c *MultiTable) GetXtrIDMapping(src, dst eid.EID, xtrID mapping.XtrID) *mapping.Record {
	if rec := c.GetMapping(src, dst); rec != nil && rec.XtrID == xtrID {
		return rec
	}
	return nil
}

func (c *MultiTable) RemoveMapping(key eid.EID) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.remove(key.Normalize(), SubRecord) {
		c.metrics.inc("remove")
	}
}

func (c *MultiTable) RemoveXtrIDMapping(key eid.EID, xtrID mapping.XtrID) {
	c.mu.Lock()
	defer c.mu.Unlock()
	key = key.Normalize()
	rec := keyedstore.RecordOf(c.get(key, SubRecord))
	if rec == nil || rec.XtrID != xtrID {
		return
	}
	c.remove(key, SubRecord)
	c.metrics.inc("remove")
}
