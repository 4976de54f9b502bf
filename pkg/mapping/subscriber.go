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

package mapping

import (
	"net/netip"
	"slices"
	"sync"
	"time"

	"github.com/lispms/lispms/pkg/eid"
)

// DefaultSubscriberTTL is the lifetime of a subscription that doesn't carry
// its own TTL.
const DefaultSubscriberTTL = 24 * time.Hour

// Subscriber is an xTR that requested a mapping and wants to be notified with
// a Solicit-Map-Request when the mapping changes.
type Subscriber struct {
	RLOC   netip.Addr
	SrcEID eid.EID
	TTL    time.Duration
	// LastRequest is the time of the last Map-Request from this subscriber.
	LastRequest time.Time
}

// IsExpired reports whether the subscription timed out at now.
func (s Subscriber) IsExpired(now time.Time) bool {
	ttl := s.TTL
	if ttl <= 0 {
		ttl = DefaultSubscriberTTL
	}
	return s.LastRequest.Add(ttl).Before(now)
}

type subscriberKey struct {
	rloc   netip.Addr
	srcEID eid.EID
}

func (s Subscriber) key() subscriberKey {
	return subscriberKey{rloc: s.RLOC, srcEID: s.SrcEID.Normalize()}
}

// SubscriberSet is a set of subscribers, identified by RLOC and source EID.
// It is safe for concurrent use.
type SubscriberSet struct {
	mu   sync.Mutex
	subs map[subscriberKey]Subscriber
}

// NewSubscriberSet creates a set containing subs.
func NewSubscriberSet(subs ...Subscriber) *SubscriberSet {
	s := &SubscriberSet{subs: make(map[subscriberKey]Subscriber, len(subs))}
	for _, sub := range subs {
		s.subs[sub.key()] = sub
	}
	return s
}

// Add adds sub to the set. An existing subscription of the same subscriber is
// refreshed.
func (s *SubscriberSet) Add(sub Subscriber) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.subs == nil {
		s.subs = make(map[subscriberKey]Subscriber)
	}
	s.subs[sub.key()] = sub
}

// Remove removes sub from the set and reports whether it was present.
func (s *SubscriberSet) Remove(sub Subscriber) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	k := sub.key()
	_, ok := s.subs[k]
	delete(s.subs, k)
	return ok
}

// PruneExpired removes all subscriptions that expired at now and returns how
// many were removed.
func (s *SubscriberSet) PruneExpired(now time.Time) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for k, sub := range s.subs {
		if sub.IsExpired(now) {
			delete(s.subs, k)
			n++
		}
	}
	return n
}

// List returns the subscribers sorted by RLOC and source EID.
func (s *SubscriberSet) List() []Subscriber {
	s.mu.Lock()
	defer s.mu.Unlock()
	res := make([]Subscriber, 0, len(s.subs))
	for _, sub := range s.subs {
		res = append(res, sub)
	}
	slices.SortFunc(res, func(a, b Subscriber) int {
		if c := a.RLOC.Compare(b.RLOC); c != 0 {
			return c
		}
		return eid.Compare(a.SrcEID, b.SrcEID)
	})
	return res
}

// Len returns the number of subscribers.
func (s *SubscriberSet) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.subs)
}
