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

// Package mapping contains the values stored in the mapping database: mapping
// records with their locators, authentication keys and SMR subscribers.
package mapping

import (
	"encoding/hex"
	"net/netip"
	"slices"
	"time"

	"github.com/lispms/lispms/pkg/eid"
	"github.com/lispms/lispms/pkg/private/serrors"
)

// Action is the action a requester takes for negative mapping replies.
type Action uint8

const (
	NoAction Action = iota
	NativelyForward
	SendMapRequest
	Drop
)

func (a Action) String() string {
	switch a {
	case NoAction:
		return "no-action"
	case NativelyForward:
		return "natively-forward"
	case SendMapRequest:
		return "send-map-request"
	case Drop:
		return "drop"
	default:
		return "unknown"
	}
}

// Origin tells where a mapping was registered from.
type Origin uint8

const (
	// Southbound mappings are registered by xTRs with Map-Register messages.
	Southbound Origin = iota
	// Northbound mappings are provisioned by an operator.
	Northbound
)

func (o Origin) String() string {
	if o == Northbound {
		return "northbound"
	}
	return "southbound"
}

// XtrID identifies the xTR that registered a mapping.
type XtrID [16]byte

// IsZero reports whether id is unset.
func (id XtrID) IsZero() bool { return id == XtrID{} }

func (id XtrID) String() string { return hex.EncodeToString(id[:]) }

// ParseXtrID parses a hex encoded xTR-ID.
func ParseXtrID(s string) (XtrID, error) {
	var id XtrID
	raw, err := hex.DecodeString(s)
	if err != nil {
		return id, serrors.Wrap("decoding xTR-ID", err, "input", s)
	}
	if len(raw) != len(id) {
		return id, serrors.New("invalid xTR-ID length", "input", s, "len", len(raw))
	}
	copy(id[:], raw)
	return id, nil
}

// SiteID identifies the site of the registering xTR.
type SiteID [8]byte

func (id SiteID) String() string { return hex.EncodeToString(id[:]) }

// Locator is a routing locator (RLOC) entry of a mapping record.
type Locator struct {
	RLOC              netip.Addr
	Priority          uint8
	Weight            uint8
	MulticastPriority uint8
	MulticastWeight   uint8
	Local             bool
	ReachabilityBit   bool
	Routed            bool
}

// Record is a mapping record binding an EID prefix to a set of locators.
type Record struct {
	EID           eid.EID
	TTL           time.Duration
	Authoritative bool
	Action        Action
	Locators      []Locator
	XtrID         XtrID
	SiteID        SiteID
	// Timestamp is the time the record was registered. Registrations with
	// an older timestamp don't replace newer ones.
	Timestamp  time.Time
	MapVersion uint16
}

// Clone returns a deep copy of r. Clone of nil returns nil.
func (r *Record) Clone() *Record {
	if r == nil {
		return nil
	}
	c := *r
	c.Locators = slices.Clone(r.Locators)
	return &c
}

// IsNegative reports whether the record has no locators.
func (r *Record) IsNegative() bool {
	return r == nil || len(r.Locators) == 0
}

// Expired reports whether the registration validity of r has passed at now.
// Records without a timestamp or TTL never expire.
func (r *Record) Expired(now time.Time) bool {
	if r == nil || r.Timestamp.IsZero() || r.TTL <= 0 {
		return false
	}
	return r.Timestamp.Add(r.TTL).Before(now)
}

// Locator returns the locator with the given RLOC.
func (r *Record) Locator(rloc netip.Addr) (Locator, bool) {
	if r == nil {
		return Locator{}, false
	}
	for _, l := range r.Locators {
		if l.RLOC == rloc {
			return l, true
		}
	}
	return Locator{}, false
}

// Intersect returns a copy of r restricted to the locators whose RLOC is
// also present in other. If the intersection is empty, a copy of r is
// returned unchanged.
func (r *Record) Intersect(other *Record) *Record {
	if r == nil {
		return nil
	}
	res := r.Clone()
	if other == nil {
		return res
	}
	locs := make([]Locator, 0, len(r.Locators))
	for _, l := range r.Locators {
		if _, ok := other.Locator(l.RLOC); ok {
			locs = append(locs, l)
		}
	}
	if len(locs) == 0 {
		return res
	}
	res.Locators = locs
	return res
}

// AuthKey is the shared secret used to authenticate registrations for an EID
// prefix.
type AuthKey struct {
	// KeyType identifies the HMAC algorithm.
	KeyType uint16
	Key     string
}
