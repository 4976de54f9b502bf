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

package mapsystem

import (
	"sync/atomic"
	"time"

	"github.com/hashicorp/golang-lru/arc/v2"

	"github.com/lispms/lispms/pkg/eid"
	"github.com/lispms/lispms/pkg/private/serrors"
)

type negativeEntry struct {
	prefix  eid.EID
	ok      bool
	gen     uint64
	expires time.Time
}

// negativeCache caches widest negative prefixes in an adaptive replacement
// cache. Every write to the mapping caches bumps the generation, which
// invalidates all cached answers at once.
type negativeCache struct {
	ttl   time.Duration
	gen   atomic.Uint64
	cache *arc.ARCCache[eid.EID, negativeEntry]
}

// newNegativeCache returns nil if size is not positive. A nil cache caches
// nothing.
func newNegativeCache(size int, ttl time.Duration) (*negativeCache, error) {
	if size <= 0 {
		return nil, nil
	}
	cache, err := arc.NewARC[eid.EID, negativeEntry](size)
	if err != nil {
		return nil, serrors.Wrap("creating negative prefix cache", err, "size", size)
	}
	return &negativeCache{ttl: ttl, cache: cache}, nil
}

func (c *negativeCache) get(key eid.EID, now time.Time) (eid.EID, bool, bool) {
	if c == nil {
		return eid.EID{}, false, false
	}
	e, ok := c.cache.Get(key)
	if !ok || e.gen != c.gen.Load() || (c.ttl > 0 && now.After(e.expires)) {
		return eid.EID{}, false, false
	}
	return e.prefix, e.ok, true
}

// generation returns the generation to pass to add. It must be read before
// computing the cached answer.
func (c *negativeCache) generation() uint64 {
	if c == nil {
		return 0
	}
	return c.gen.Load()
}

func (c *negativeCache) add(key, prefix eid.EID, ok bool, gen uint64, now time.Time) {
	if c == nil {
		return
	}
	c.cache.Add(key, negativeEntry{
		prefix:  prefix,
		ok:      ok,
		gen:     gen,
		expires: now.Add(c.ttl),
	})
}

func (c *negativeCache) invalidate() {
	if c == nil {
		return
	}
	c.gen.Add(1)
}

func (c *negativeCache) len() int {
	if c == nil {
		return 0
	}
	return c.cache.Len()
}
