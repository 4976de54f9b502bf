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

	cache "github.com/patrickmn/go-cache"
)

var _ Store = (*HashStore)(nil)

// HashStore is an exact match store.
type HashStore struct {
	reg *Registry
	// Do not embed or use type directly to reduce the cache's API surface.
	c *cache.Cache
	// mu serializes writers. Readers go to the cache directly.
	mu sync.Mutex
}

// NewHashStore creates an exact match store. If reg is nil, the default
// registry is used.
func NewHashStore(reg *Registry) *HashStore {
	if reg == nil {
		reg = DefaultRegistry()
	}
	return &HashStore{
		reg: reg,
		// Entries never expire, expiry is handled by the mapping system.
		c: cache.New(cache.NoExpiration, 0),
	}
}

func (s *HashStore) load(id string) *valueSet {
	obj, ok := s.c.Get(id)
	if !ok {
		return nil
	}
	return obj.(*valueSet)
}

func (s *HashStore) Put(key any, entries ...Entry) {
	id := s.reg.Convert(key).ID
	s.mu.Lock()
	defer s.mu.Unlock()
	s.c.Set(id, s.load(id).with(key, entries...), cache.NoExpiration)
}

func (s *HashStore) Get(key any) map[SubKey]Value {
	vs := s.load(s.reg.Convert(key).ID)
	if vs == nil {
		return nil
	}
	return vs.values
}

func (s *HashStore) GetSpecific(key any, sub SubKey) Value {
	return s.load(s.reg.Convert(key).ID).get(sub)
}

func (s *HashStore) RemoveSpecific(key any, sub SubKey) bool {
	id := s.reg.Convert(key).ID
	s.mu.Lock()
	defer s.mu.Unlock()
	vs := s.load(id)
	if vs.get(sub) == nil {
		return false
	}
	if n := vs.without(sub); n != nil {
		s.c.Set(id, n, cache.NoExpiration)
	} else {
		s.c.Delete(id)
	}
	return true
}

func (s *HashStore) Remove(key any) bool {
	id := s.reg.Convert(key).ID
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.load(id) == nil {
		return false
	}
	s.c.Delete(id)
	return true
}

func (s *HashStore) LoadOrStore(key any, sub SubKey, v Value) (Value, bool) {
	id := s.reg.Convert(key).ID
	s.mu.Lock()
	defer s.mu.Unlock()
	vs := s.load(id)
	if actual := vs.get(sub); actual != nil {
		return actual, true
	}
	s.c.Set(id, vs.with(key, E(sub, v)), cache.NoExpiration)
	return v, false
}

func (s *HashStore) GetAll(visit Visitor) {
	for _, item := range s.c.Items() {
		if vs, ok := item.Object.(*valueSet); ok {
			vs.visit(nil, visit)
		}
	}
}

func (s *HashStore) Len() int {
	return s.c.ItemCount()
}
