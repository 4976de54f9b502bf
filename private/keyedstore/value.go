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
	"time"

	"github.com/lispms/lispms/pkg/mapping"
)

// SubKey names a value stored under a key.
type SubKey string

// Value is a value stored under a (key, sub-key) pair. The set of value
// types is closed: Record, Nested, AuthKey, Subscribers, Time and Int.
type Value interface {
	value()
}

// Record holds a mapping record.
type Record struct {
	*mapping.Record
}

// Nested holds a nested store, e.g., the per xTR-ID records of an EID or the
// source prefixes of a source-destination EID.
type Nested struct {
	Store
}

// AuthKey holds an authentication key.
type AuthKey struct {
	mapping.AuthKey
}

// Subscribers holds the SMR subscribers of an EID.
type Subscribers struct {
	*mapping.SubscriberSet
}

// Time holds a point in time, e.g., the registration expiry.
type Time struct {
	time.Time
}

// Int holds an integer, e.g., the expiry wheel bucket of an EID.
type Int int64

func (Record) value()      {}
func (Nested) value()      {}
func (AuthKey) value()     {}
func (Subscribers) value() {}
func (Time) value()        {}
func (Int) value()         {}

// Entry is a sub-key value pair.
type Entry struct {
	SubKey SubKey
	Value  Value
}

// E is a shorthand to create an Entry.
func E(sub SubKey, v Value) Entry {
	return Entry{SubKey: sub, Value: v}
}

// RecordOf returns the record held by v, or nil if v doesn't hold a record.
func RecordOf(v Value) *mapping.Record {
	r, ok := v.(Record)
	if !ok {
		return nil
	}
	return r.Record
}

// NestedOf returns the store held by v, or nil if v doesn't hold a store.
func NestedOf(v Value) Store {
	n, ok := v.(Nested)
	if !ok {
		return nil
	}
	return n.Store
}

// TimeOf returns the time held by v.
func TimeOf(v Value) (time.Time, bool) {
	t, ok := v.(Time)
	return t.Time, ok
}

// IntOf returns the integer held by v.
func IntOf(v Value) (int64, bool) {
	i, ok := v.(Int)
	return int64(i), ok
}
