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

// Package keyedstore implements two level stores: a key maps to a set of
// sub-keys and each sub-key to a Value.
//
// HashStore matches keys exactly. TrieStore additionally keeps prefix keys in
// per family prefix tries and answers longest prefix match queries.
//
// The maps returned by Get are never modified after they are returned,
// writers replace them. Callers must treat them as read-only.
package keyedstore

// Visitor is called by GetAll for every stored value. The path contains the
// keys from the outermost store down to the store holding the value.
type Visitor func(path []any, sub SubKey, v Value)

// Store is a thread-safe two level store.
type Store interface {
	// Put stores the entries under key. Other sub-keys of key are kept.
	Put(key any, entries ...Entry)
	// Get returns all values stored under key, or nil.
	Get(key any) map[SubKey]Value
	// GetSpecific returns the value stored under (key, sub), or nil.
	GetSpecific(key any, sub SubKey) Value
	// RemoveSpecific removes the value stored under (key, sub). The key is
	// removed once it holds no more values.
	RemoveSpecific(key any, sub SubKey) bool
	// Remove removes the key with all its values.
	Remove(key any) bool
	// LoadOrStore returns the value stored under (key, sub). If there is
	// none, v is stored and returned. loaded reports whether the value was
	// already present.
	LoadOrStore(key any, sub SubKey, v Value) (actual Value, loaded bool)
	// GetAll calls visit for all values, recursing into nested stores. The
	// view is weakly consistent: concurrent writes may or may not be seen.
	GetAll(visit Visitor)
	// Len returns the number of keys.
	Len() int
}

// valueSet is the immutable set of values of a key.
type valueSet struct {
	key    any
	values map[SubKey]Value
}

// with returns a copy of vs with entries set.
func (vs *valueSet) with(key any, entries ...Entry) *valueSet {
	n := &valueSet{key: key, values: make(map[SubKey]Value, vs.len()+len(entries))}
	if vs != nil {
		for k, v := range vs.values {
			n.values[k] = v
		}
	}
	for _, e := range entries {
		n.values[e.SubKey] = e.Value
	}
	return n
}

// without returns a copy of vs without sub, or nil if it becomes empty.
func (vs *valueSet) without(sub SubKey) *valueSet {
	if vs.len() <= 1 {
		return nil
	}
	n := &valueSet{key: vs.key, values: make(map[SubKey]Value, vs.len()-1)}
	for k, v := range vs.values {
		if k != sub {
			n.values[k] = v
		}
	}
	return n
}

func (vs *valueSet) len() int {
	if vs == nil {
		return 0
	}
	return len(vs.values)
}

func (vs *valueSet) get(sub SubKey) Value {
	if vs == nil {
		return nil
	}
	return vs.values[sub]
}

func (vs *valueSet) hasAny(subs []SubKey) bool {
	for _, sub := range subs {
		if vs.get(sub) != nil {
			return true
		}
	}
	return false
}

func (vs *valueSet) visit(path []any, visit Visitor) {
	p := append(path[:len(path):len(path)], vs.key)
	for sub, v := range vs.values {
		visit(p, sub, v)
		if nested := NestedOf(v); nested != nil {
			visitNested(p, sub, nested, visit)
		}
	}
}

func visitNested(path []any, sub SubKey, s Store, visit Visitor) {
	p := append(path[:len(path):len(path)], sub)
	s.GetAll(func(inner []any, innerSub SubKey, v Value) {
		visit(append(p[:len(p):len(p)], inner...), innerSub, v)
	})
}
