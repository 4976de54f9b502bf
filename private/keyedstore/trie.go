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

package keyedstore

import (
	"sync"

	"github.com/lispms/lispms/private/trie"
)

var _ Store = (*TrieStore)(nil)

// TrieStore is a store that keeps prefix keys in one prefix trie per key
// family and all other keys in an exact match map. Besides the Store
// operations it answers prefix queries.
type TrieStore struct {
	reg      *Registry
	rootZero bool

	mu    sync.RWMutex
	tries map[string]*trie.Trie[*valueSet]
	exact map[string]*valueSet
	n     int
}

// NewTrieStore creates a prefix store. If reg is nil, the default registry is
// used. rootZero is passed on to the tries.
func NewTrieStore(reg *Registry, rootZero bool) *TrieStore {
	if reg == nil {
		reg = DefaultRegistry()
	}
	return &TrieStore{
		reg:      reg,
		rootZero: rootZero,
		tries:    make(map[string]*trie.Trie[*valueSet]),
		exact:    make(map[string]*valueSet),
	}
}

// lookup returns the value set stored exactly under k.
func (s *TrieStore) lookup(k Key) (*valueSet, trie.NodeID) {
	if !k.IsPrefix() {
		return s.exact[k.ID], trie.NodeID{}
	}
	t, ok := s.tries[k.Family]
	if !ok {
		return nil, trie.NodeID{}
	}
	id, ok := t.LookupExact(k.Bits, k.Len)
	if !ok {
		return nil, trie.NodeID{}
	}
	vs, _ := t.Data(id)
	return vs, id
}

// store stores vs under k, removing the key if vs is nil. Must be called with
// the write lock held.
func (s *TrieStore) store(k Key, vs *valueSet) {
	old, _ := s.lookup(k)
	switch {
	case old == nil && vs != nil:
		s.n++
	case old != nil && vs == nil:
		s.n--
	}
	if !k.IsPrefix() {
		if vs == nil {
			delete(s.exact, k.ID)
		} else {
			s.exact[k.ID] = vs
		}
		return
	}
	t, ok := s.tries[k.Family]
	if !ok {
		if vs == nil {
			return
		}
		t = trie.New[*valueSet](k.MaxBits, s.rootZero)
		s.tries[k.Family] = t
	}
	if vs == nil {
		t.Remove(k.Bits, k.Len)
		return
	}
	t.Insert(k.Bits, k.Len, vs)
}

func (s *TrieStore) Put(key any, entries ...Entry) {
	k := s.reg.Convert(key)
	s.mu.Lock()
	defer s.mu.Unlock()
	old, _ := s.lookup(k)
	s.store(k, old.with(key, entries...))
}

func (s *TrieStore) Get(key any) map[SubKey]Value {
	k := s.reg.Convert(key)
	s.mu.RLock()
	defer s.mu.RUnlock()
	vs, _ := s.lookup(k)
	if vs == nil {
		return nil
	}
	return vs.values
}

func (s *TrieStore) GetSpecific(key any, sub SubKey) Value {
	k := s.reg.Convert(key)
	s.mu.RLock()
	defer s.mu.RUnlock()
	vs, _ := s.lookup(k)
	return vs.get(sub)
}

func (s *TrieStore) RemoveSpecific(key any, sub SubKey) bool {
	k := s.reg.Convert(key)
	s.mu.Lock()
	defer s.mu.Unlock()
	vs, _ := s.lookup(k)
	if vs.get(sub) == nil {
		return false
	}
	s.store(k, vs.without(sub))
	return true
}

func (s *TrieStore) Remove(key any) bool {
	k := s.reg.Convert(key)
	s.mu.Lock()
	defer s.mu.Unlock()
	vs, _ := s.lookup(k)
	if vs == nil {
		return false
	}
	s.store(k, nil)
	return true
}

func (s *TrieStore) LoadOrStore(key any, sub SubKey, v Value) (Value, bool) {
	k := s.reg.Convert(key)
	s.mu.Lock()
	defer s.mu.Unlock()
	vs, _ := s.lookup(k)
	if actual := vs.get(sub); actual != nil {
		return actual, true
	}
	s.store(k, vs.with(key, E(sub, v)))
	return v, false
}

// GetAll visits a snapshot of the stored value sets. Prefix keys are visited
// in post-order per family, i.e., more specific prefixes first.
func (s *TrieStore) GetAll(visit Visitor) {
	s.mu.RLock()
	sets := make([]*valueSet, 0, s.n)
	for _, t := range s.tries {
		for _, vs := range t.All() {
			sets = append(sets, vs)
		}
	}
	for _, vs := range s.exact {
		sets = append(sets, vs)
	}
	s.mu.RUnlock()
	for _, vs := range sets {
		vs.visit(nil, visit)
	}
}

func (s *TrieStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.n
}

// GetBest returns the key and the values of the longest prefix covering
// key. Keys that are not prefix keys are matched exactly.
func (s *TrieStore) GetBest(key any) (any, map[SubKey]Value, bool) {
	k := s.reg.Convert(key)
	s.mu.RLock()
	defer s.mu.RUnlock()
	if !k.IsPrefix() {
		vs := s.exact[k.ID]
		if vs == nil {
			return nil, nil, false
		}
		return vs.key, vs.values, true
	}
	t, ok := s.tries[k.Family]
	if !ok {
		return nil, nil, false
	}
	id, ok := t.LookupBest(k.Bits, k.Len)
	if !ok {
		return nil, nil, false
	}
	vs, _ := t.Data(id)
	return vs.key, vs.values, true
}

// GetBestWith returns the key and the values of the longest prefix covering
// key that has a value for at least one of subs.
func (s *TrieStore) GetBestWith(key any, subs ...SubKey) (any, map[SubKey]Value, bool) {
	k := s.reg.Convert(key)
	s.mu.RLock()
	defer s.mu.RUnlock()
	if !k.IsPrefix() {
		vs := s.exact[k.ID]
		if vs == nil || !vs.hasAny(subs) {
			return nil, nil, false
		}
		return vs.key, vs.values, true
	}
	t, ok := s.tries[k.Family]
	if !ok {
		return nil, nil, false
	}
	for _, id := range t.LookupCovering(k.Bits, k.Len) {
		if vs, _ := t.Data(id); vs.hasAny(subs) {
			return vs.key, vs.values, true
		}
	}
	return nil, nil, false
}

// GetWidestNegative returns the widest prefix covering key that doesn't
// overlap with any stored prefix. It returns false if key is covered by a
// stored prefix, covers stored prefixes itself or is not a prefix key.
func (s *TrieStore) GetWidestNegative(key any) (any, bool) {
	kt := s.reg.Lookup(key)
	k := kt.Convert(key)
	if !k.IsPrefix() || kt.FromPrefix == nil {
		return nil, false
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	t, ok := s.tries[k.Family]
	if !ok {
		t = trie.New[*valueSet](k.MaxBits, false)
	}
	bits, plen, ok := t.LookupWidestNegative(k.Bits, k.Len)
	if !ok {
		return nil, false
	}
	return kt.FromPrefix(key, bits, plen), true
}

// GetSubtree returns the keys of all prefixes that are equal to or more
// specific than key.
func (s *TrieStore) GetSubtree(key any) []any {
	k := s.reg.Convert(key)
	s.mu.RLock()
	defer s.mu.RUnlock()
	if !k.IsPrefix() {
		if vs := s.exact[k.ID]; vs != nil {
			return []any{vs.key}
		}
		return nil
	}
	t, ok := s.tries[k.Family]
	if !ok {
		return nil
	}
	top, ok := t.LookupSubtree(k.Bits, k.Len)
	if !ok {
		return nil
	}
	var keys []any
	for _, vs := range t.SubtreeIterator(top).All() {
		keys = append(keys, vs.key)
	}
	return keys
}

// GetCoveringLessSpecific returns the key of the longest stored prefix that
// strictly covers key, i.e., is less specific than key.
func (s *TrieStore) GetCoveringLessSpecific(key any) (any, bool) {
	k := s.reg.Convert(key)
	if !k.IsPrefix() {
		return nil, false
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	t, ok := s.tries[k.Family]
	if !ok {
		return nil, false
	}
	for _, id := range t.LookupCovering(k.Bits, k.Len) {
		if _, plen, _ := t.Prefix(id); plen < k.Len {
			vs, _ := t.Data(id)
			return vs.key, true
		}
	}
	return nil, false
}

// GetParent returns the key of the closest stored prefix above the stored
// prefix key. It returns false if key is not stored.
func (s *TrieStore) GetParent(key any) (any, bool) {
	k := s.reg.Convert(key)
	if !k.IsPrefix() {
		return nil, false
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	vs, id := s.lookup(k)
	if vs == nil {
		return nil, false
	}
	parent, ok := s.tries[k.Family].Parent(id)
	if !ok {
		return nil, false
	}
	pvs, _ := s.tries[k.Family].Data(parent)
	return pvs.key, true
}
