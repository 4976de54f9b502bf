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
	"fmt"
	"reflect"
	"strconv"
	"sync"

	"github.com/lispms/lispms/pkg/eid"
	"github.com/lispms/lispms/pkg/mapping"
)

// Key is the store representation of a key.
type Key struct {
	// ID identifies the key for exact matching.
	ID string
	// Family selects the prefix trie of prefix keys. It is empty for keys
	// that only support exact matching.
	Family string
	// Bits and Len are the trie key of prefix keys.
	Bits    []byte
	Len     int
	MaxBits int
}

// IsPrefix reports whether k is stored in a prefix trie.
func (k Key) IsPrefix() bool { return k.Family != "" }

// KeyType describes how values of a Go type are used as store keys.
type KeyType struct {
	// Convert converts a key to its store representation.
	Convert func(k any) Key
	// FromPrefix creates a key of the same type as template from a trie
	// prefix. It is only required for prefix keys.
	FromPrefix func(template any, bits []byte, plen int) any
}

// UnknownKeyTypeError is the panic value when a store is used with a key
// type that was never registered.
type UnknownKeyTypeError struct {
	Type reflect.Type
}

func (e *UnknownKeyTypeError) Error() string {
	return fmt.Sprintf("unknown key type: %v", e.Type)
}

// Registry maps key types to their KeyType.
type Registry struct {
	mu    sync.RWMutex
	types map[reflect.Type]KeyType
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{types: make(map[reflect.Type]KeyType)}
}

// Register registers the type of sample.
func (r *Registry) Register(sample any, kt KeyType) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.types[reflect.TypeOf(sample)] = kt
}

// Lookup returns the KeyType of k. It panics with *UnknownKeyTypeError if
// the type of k was not registered.
func (r *Registry) Lookup(k any) KeyType {
	r.mu.RLock()
	kt, ok := r.types[reflect.TypeOf(k)]
	r.mu.RUnlock()
	if !ok {
		panic(&UnknownKeyTypeError{Type: reflect.TypeOf(k)})
	}
	return kt
}

// Convert converts k to its store representation.
func (r *Registry) Convert(k any) Key {
	return r.Lookup(k).Convert(k)
}

var (
	defaultRegistry     *Registry
	defaultRegistryOnce sync.Once
)

// DefaultRegistry returns the registry with the default key types. It is
// used by stores created without an explicit registry.
func DefaultRegistry() *Registry {
	defaultRegistryOnce.Do(func() {
		defaultRegistry = NewRegistry()
		RegisterDefaults(defaultRegistry)
	})
	return defaultRegistry
}

// RegisterDefaults registers eid.EID, eid.VNI and mapping.XtrID.
func RegisterDefaults(r *Registry) {
	r.Register(eid.EID{}, KeyType{
		Convert:    convertEID,
		FromPrefix: eidFromPrefix,
	})
	r.Register(eid.VNI(0), KeyType{
		Convert: func(k any) Key {
			return Key{ID: strconv.FormatUint(uint64(k.(eid.VNI)), 10)}
		},
	})
	r.Register(mapping.XtrID{}, KeyType{
		Convert: func(k any) Key {
			return Key{ID: k.(mapping.XtrID).String()}
		},
	})
}

func convertEID(k any) Key {
	e := k.(eid.EID).Normalize()
	key := Key{ID: e.Key()}
	bits, plen, maxBits, ok := e.PrefixBits()
	if !ok {
		return key
	}
	family := "ipv6"
	if maxBits == 32 {
		family = "ipv4"
	}
	if e.Type() == eid.TypeSourceDest {
		family = "srcdst/" + family
	}
	key.Family = fmt.Sprintf("%s/%d", family, e.VNI())
	key.Bits, key.Len, key.MaxBits = bits, plen, maxBits
	return key
}

func eidFromPrefix(template any, bits []byte, plen int) any {
	return template.(eid.EID).WithPrefixBits(bits, plen)
}
