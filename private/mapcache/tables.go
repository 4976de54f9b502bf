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
	"net/netip"
	"sync"

	"github.com/lispms/lispms/pkg/eid"
	"github.com/lispms/lispms/pkg/log"
	"github.com/lispms/lispms/pkg/mapping"
	"github.com/lispms/lispms/private/keyedstore"
)

// tables is the storage topology shared by the prefix caches. A hash table
// maps each VNI to a prefix table. Entries of source-destination EIDs are
// kept in a nested prefix table, keyed by source, of the destination entry.
type tables struct {
	rootZero bool
	logger   log.Logger
	metrics  Metrics

	// mu serializes writers. It prevents a writer from adding to a table
	// that a concurrent removal just found empty and dropped.
	mu   sync.Mutex
	vnis *keyedstore.HashStore
}

func newTables(cfg Config) *tables {
	return &tables{
		rootZero: cfg.RootZero,
		logger:   cfg.Logger,
		metrics:  cfg.Metrics,
		vnis:     keyedstore.NewHashStore(nil),
	}
}

func (t *tables) tenant(vni eid.VNI) *keyedstore.TrieStore {
	return trieStoreOf(t.vnis.GetSpecific(vni, SubVNI))
}

// tenantOrCreate must be called with the write lock held.
func (t *tables) tenantOrCreate(vni eid.VNI) *keyedstore.TrieStore {
	if ts := t.tenant(vni); ts != nil {
		return ts
	}
	ts := keyedstore.NewTrieStore(nil, t.rootZero)
	t.vnis.Put(vni, keyedstore.E(SubVNI, keyedstore.Nested{Store: ts}))
	return ts
}

func trieStoreOf(v keyedstore.Value) *keyedstore.TrieStore {
	ts, _ := keyedstore.NestedOf(v).(*keyedstore.TrieStore)
	return ts
}

// locate returns the table and the key under which the values of key are
// stored. key must be normalized. With create set, missing tables are
// created, which requires the write lock.
func (t *tables) locate(key eid.EID, create bool) (*keyedstore.TrieStore, eid.EID) {
	var ts *keyedstore.TrieStore
	if create {
		ts = t.tenantOrCreate(key.VNI())
	} else {
		ts = t.tenant(key.VNI())
	}
	if ts == nil || key.Type() != eid.TypeSourceDest {
		return ts, key
	}
	dst := key.Dest()
	src := trieStoreOf(ts.GetSpecific(dst, SubSrcDst))
	if src == nil && create {
		src = keyedstore.NewTrieStore(nil, t.rootZero)
		ts.Put(dst, keyedstore.E(SubSrcDst, keyedstore.Nested{Store: src}))
	}
	return src, key.Source()
}

// prune drops the tables of key that became empty. It must be called with
// the write lock held.
func (t *tables) prune(key eid.EID) {
	ts := t.tenant(key.VNI())
	if ts == nil {
		return
	}
	if key.Type() == eid.TypeSourceDest {
		dst := key.Dest()
		if src := trieStoreOf(ts.GetSpecific(dst, SubSrcDst)); src != nil && src.Len() == 0 {
			ts.RemoveSpecific(dst, SubSrcDst)
		}
	}
	if ts.Len() == 0 {
		t.vnis.Remove(key.VNI())
	}
}

// entry is a matched entry of a lookup.
type entry struct {
	table  *keyedstore.TrieStore
	key    eid.EID
	values map[keyedstore.SubKey]keyedstore.Value
	// full is the complete key of the entry, i.e., the source-destination
	// EID for entries in a nested table.
	full eid.EID
}

// lookup finds the longest prefix entry for dst that has any of subs. If
// src is set and the matched destination has a nested source table, the
// source is matched in that table. On a source miss the longest destination
// entry that has any of subs itself is returned.
func (t *tables) lookup(src, dst eid.EID, subs ...keyedstore.SubKey) (entry, bool) {
	if !dst.IsValid() {
		return entry{}, false
	}
	if dst.Type() == eid.TypeSourceDest {
		src, dst = dst.Source(), dst.Dest()
	}
	dst = dst.Normalize()
	ts := t.tenant(dst.VNI())
	if ts == nil {
		return entry{}, false
	}
	if src.IsPrefix() && src.Type() != eid.TypeSourceDest {
		k, values, ok := ts.GetBestWith(dst, append(subs[:len(subs):len(subs)], SubSrcDst)...)
		if st := trieStoreOf(values[SubSrcDst]); ok && st != nil {
			dk := k.(eid.EID)
			// Sources are stored in the VNI of the destination.
			srcKey := eid.FromPrefix(dst.VNI(), src.Prefix()).Normalize()
			if sk, svalues, ok := st.GetBestWith(srcKey, subs...); ok {
				s := sk.(eid.EID)
				return entry{
					table:  st,
					key:    s,
					values: svalues,
					full:   eid.SourceDest(dst.VNI(), s.Prefix(), dk.Prefix()),
				}, true
			}
		}
	}
	k, values, ok := ts.GetBestWith(dst, subs...)
	if !ok {
		return entry{}, false
	}
	dk := k.(eid.EID)
	return entry{table: ts, key: dk, values: values, full: dk}, true
}

func (t *tables) lookupMapping(src, dst eid.EID) (Match, bool) {
	e, ok := t.lookup(src, dst, SubRecord)
	if !ok {
		return Match{}, false
	}
	return Match{EID: e.full, Record: recordOf(e.values)}, true
}

func (t *tables) put(key eid.EID, entries ...keyedstore.Entry) {
	ts, k := t.locate(key, true)
	ts.Put(k, entries...)
}

func (t *tables) get(key eid.EID, sub keyedstore.SubKey) keyedstore.Value {
	ts, k := t.locate(key.Normalize(), false)
	if ts == nil {
		return nil
	}
	return ts.GetSpecific(k, sub)
}

// remove removes the given sub-keys of key and prunes empty tables. It must
// be called with the write lock held. It reports whether anything was
// removed.
func (t *tables) remove(key eid.EID, subs ...keyedstore.SubKey) bool {
	ts, k := t.locate(key, false)
	if ts == nil {
		return false
	}
	removed := false
	for _, sub := range subs {
		removed = ts.RemoveSpecific(k, sub) || removed
	}
	t.prune(key)
	return removed
}

func (t *tables) AddAuthenticationKey(key eid.EID, authKey mapping.AuthKey) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.put(key.Normalize(), keyedstore.E(SubAuthKey, keyedstore.AuthKey{AuthKey: authKey}))
}

func (t *tables) GetAuthenticationKey(key eid.EID) (mapping.AuthKey, bool) {
	e, ok := t.lookup(eid.EID{}, key, SubAuthKey)
	if !ok {
		return mapping.AuthKey{}, false
	}
	return authKeyOf(e.values[SubAuthKey])
}

func (t *tables) RemoveAuthenticationKey(key eid.EID) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.remove(key.Normalize(), SubAuthKey)
}

func (t *tables) GetWidestNegativeMapping(key eid.EID) (eid.EID, bool) {
	if !key.IsPrefix() {
		return eid.EID{}, false
	}
	key = key.Normalize()
	dst := key.Dest()
	ts := t.tenant(key.VNI())
	if ts == nil {
		return widestPrefix(dst), true
	}
	if neg, ok := ts.GetWidestNegative(dst); ok {
		return neg.(eid.EID), true
	}
	if key.Type() != eid.TypeSourceDest {
		return eid.EID{}, false
	}
	// The destination is known, the source may still be negative.
	k, values, ok := ts.GetBestWith(dst, SubSrcDst)
	if !ok {
		return eid.EID{}, false
	}
	srcNeg, ok := trieStoreOf(values[SubSrcDst]).GetWidestNegative(key.Source())
	if !ok {
		return eid.EID{}, false
	}
	return eid.SourceDest(key.VNI(), srcNeg.(eid.EID).Prefix(), k.(eid.EID).Prefix()), true
}

// widestPrefix returns the zero length prefix of the address family of key.
func widestPrefix(key eid.EID) eid.EID {
	addr := netip.IPv4Unspecified()
	if key.MaxBits() == 128 {
		addr = netip.IPv6Unspecified()
	}
	return eid.FromPrefix(key.VNI(), netip.PrefixFrom(addr, 0))
}

func (t *tables) GetCoveringLessSpecific(key eid.EID) (eid.EID, bool) {
	if !key.IsPrefix() {
		return eid.EID{}, false
	}
	key = key.Normalize()
	ts := t.tenant(key.VNI())
	if ts == nil {
		return eid.EID{}, false
	}
	k, ok := ts.GetCoveringLessSpecific(key.Dest())
	if !ok {
		return eid.EID{}, false
	}
	return k.(eid.EID), true
}

func (t *tables) GetParentPrefix(key eid.EID) (eid.EID, bool) {
	if !key.IsPrefix() {
		return eid.EID{}, false
	}
	key = key.Normalize()
	ts := t.tenant(key.VNI())
	if ts == nil {
		return eid.EID{}, false
	}
	k, ok := ts.GetParent(key.Dest())
	if !ok {
		return eid.EID{}, false
	}
	return k.(eid.EID), true
}

func (t *tables) GetSubtree(key eid.EID) []eid.EID {
	key = key.Normalize()
	ts := t.tenant(key.VNI())
	if ts == nil {
		return nil
	}
	keys := ts.GetSubtree(key.Dest())
	res := make([]eid.EID, 0, len(keys))
	for _, k := range keys {
		res = append(res, k.(eid.EID))
	}
	return res
}

func (t *tables) AddData(key eid.EID, sub keyedstore.SubKey, v keyedstore.Value) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.put(key.Normalize(), keyedstore.E(sub, v))
}

func (t *tables) GetData(key eid.EID, sub keyedstore.SubKey) keyedstore.Value {
	return t.get(key, sub)
}

func (t *tables) RemoveData(key eid.EID, sub keyedstore.SubKey) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.remove(key.Normalize(), sub)
}

func (t *tables) LoadOrStoreData(key eid.EID, sub keyedstore.SubKey,
	v keyedstore.Value) (keyedstore.Value, bool) {

	t.mu.Lock()
	defer t.mu.Unlock()
	ts, k := t.locate(key.Normalize(), true)
	return ts.LoadOrStore(k, sub, v)
}

func (t *tables) ForEach(visit keyedstore.Visitor) {
	t.vnis.GetAll(visit)
}

func (t *tables) Count() int {
	return countRecords(t.ForEach)
}
