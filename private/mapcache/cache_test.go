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

package mapcache_test

import (
	"fmt"
	"net/netip"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lispms/lispms/pkg/eid"
	"github.com/lispms/lispms/pkg/mapping"
	"github.com/lispms/lispms/pkg/metrics"
	"github.com/lispms/lispms/private/keyedstore"
	"github.com/lispms/lispms/private/mapcache"
)

func record(e string, ts time.Time, rlocs ...string) *mapping.Record {
	r := &mapping.Record{
		EID:       eid.MustParse(e),
		TTL:       10 * time.Minute,
		Timestamp: ts,
	}
	for _, rloc := range rlocs {
		r.Locators = append(r.Locators, mapping.Locator{
			RLOC:     netip.MustParseAddr(rloc),
			Priority: 1,
			Weight:   100,
		})
	}
	return r
}

func rlocs(r *mapping.Record) []string {
	if r == nil {
		return nil
	}
	var res []string
	for _, l := range r.Locators {
		res = append(res, l.RLOC.String())
	}
	return res
}

func allTiers() map[string]mapcache.Cache {
	return map[string]mapcache.Cache{
		"flat":       mapcache.NewFlat(mapcache.Config{}),
		"multitable": mapcache.NewMultiTable(mapcache.Config{}),
		"simple":     mapcache.NewSimple(mapcache.Config{}),
		"merge":      mapcache.NewSimple(mapcache.Config{Merge: true}),
	}
}

func TestNew(t *testing.T) {
	testCases := map[string]struct {
		tier      mapcache.Tier
		want      any
		assertErr assert.ErrorAssertionFunc
	}{
		"flat":       {tier: mapcache.TierFlat, want: &mapcache.Flat{}, assertErr: assert.NoError},
		"multitable": {tier: mapcache.TierMultiTable, want: &mapcache.MultiTable{}, assertErr: assert.NoError},
		"simple":     {tier: mapcache.TierSimple, want: &mapcache.Simple{}, assertErr: assert.NoError},
		"unknown":    {tier: mapcache.Tier(42), assertErr: assert.Error},
	}
	for name, tc := range testCases {
		t.Run(name, func(t *testing.T) {
			c, err := mapcache.New(mapcache.Config{Tier: tc.tier})
			tc.assertErr(t, err)
			if tc.want != nil {
				assert.IsType(t, tc.want, c)
			}
		})
	}
}

func TestTierText(t *testing.T) {
	for _, tier := range []mapcache.Tier{
		mapcache.TierFlat, mapcache.TierMultiTable, mapcache.TierSimple,
	} {
		text, err := tier.MarshalText()
		require.NoError(t, err)
		var parsed mapcache.Tier
		require.NoError(t, parsed.UnmarshalText(text))
		assert.Equal(t, tier, parsed)
	}
	var tier mapcache.Tier
	assert.Error(t, tier.UnmarshalText([]byte("trie")))
	parsed, err := mapcache.ParseTier("MultiTable")
	require.NoError(t, err)
	assert.Equal(t, mapcache.TierMultiTable, parsed)
}

func TestExactRoundTrip(t *testing.T) {
	now := time.Unix(1000, 0)
	for name, c := range allTiers() {
		t.Run(name, func(t *testing.T) {
			keys := []string{
				"10.0.0.0/8", "[3]10.0.0.0/8", "2001:db8::/32", "dn:site-a",
				"00:11:22:33:44:55",
			}
			for i, k := range keys {
				c.AddMapping(eid.MustParse(k), record(k, now, fmt.Sprintf("192.0.2.%d", i+1)), false)
			}
			assert.Equal(t, len(keys), c.Count())
			for _, k := range keys {
				got := c.GetMapping(eid.EID{}, eid.MustParse(k))
				require.NotNil(t, got, k)
				assert.Equal(t, eid.MustParse(k), got.EID)
			}
			// Host bits are ignored.
			assert.NotNil(t, c.GetMapping(eid.EID{}, eid.MustParse("10.1.2.3/8")))
			assert.Nil(t, c.GetMapping(eid.EID{}, eid.MustParse("[4]10.0.0.0/8")))
			assert.Nil(t, c.GetMapping(eid.EID{}, eid.EID{}))

			for _, k := range keys {
				c.RemoveMapping(eid.MustParse(k))
			}
			assert.Zero(t, c.Count())
			for _, k := range keys {
				assert.Nil(t, c.GetMapping(eid.EID{}, eid.MustParse(k)), k)
			}
		})
	}
}

func TestNilRecordIgnored(t *testing.T) {
	for name, c := range allTiers() {
		t.Run(name, func(t *testing.T) {
			c.AddMapping(eid.MustParse("10.0.0.0/8"), nil, true)
			assert.Zero(t, c.Count())
			assert.Nil(t, c.GetMapping(eid.EID{}, eid.MustParse("10.0.0.0/8")))
		})
	}
}

func TestAuthenticationKeys(t *testing.T) {
	for name, c := range allTiers() {
		t.Run(name, func(t *testing.T) {
			key := eid.MustParse("[2]10.0.0.0/8")
			c.AddAuthenticationKey(key, mapping.AuthKey{KeyType: 1, Key: "password"})
			got, ok := c.GetAuthenticationKey(key)
			require.True(t, ok)
			assert.Equal(t, mapping.AuthKey{KeyType: 1, Key: "password"}, got)
			_, ok = c.GetAuthenticationKey(eid.MustParse("[3]10.0.0.0/8"))
			assert.False(t, ok)

			// Authentication keys are independent of mappings.
			c.AddMapping(key, record("[2]10.0.0.0/8", time.Unix(1, 0)), false)
			c.RemoveMapping(key)
			_, ok = c.GetAuthenticationKey(key)
			assert.True(t, ok)

			c.RemoveAuthenticationKey(key)
			_, ok = c.GetAuthenticationKey(key)
			assert.False(t, ok)
		})
	}
}

func TestData(t *testing.T) {
	for name, c := range allTiers() {
		t.Run(name, func(t *testing.T) {
			key := eid.MustParse("10.0.0.0/8")
			c.AddData(key, mapcache.SubBucketID, keyedstore.Int(3))
			assert.Equal(t, keyedstore.Int(3), c.GetData(key, mapcache.SubBucketID))

			subs := keyedstore.Subscribers{SubscriberSet: mapping.NewSubscriberSet()}
			actual, loaded := c.LoadOrStoreData(key, mapcache.SubSubscribers, subs)
			assert.False(t, loaded)
			assert.Equal(t, subs, actual)
			other := keyedstore.Subscribers{SubscriberSet: mapping.NewSubscriberSet()}
			actual, loaded = c.LoadOrStoreData(key, mapcache.SubSubscribers, other)
			assert.True(t, loaded)
			assert.Same(t, subs.SubscriberSet,
				actual.(keyedstore.Subscribers).SubscriberSet)

			c.RemoveData(key, mapcache.SubBucketID)
			assert.Nil(t, c.GetData(key, mapcache.SubBucketID))
			// Data doesn't count as mapping.
			assert.Zero(t, c.Count())
		})
	}
}

func TestXtrIDMapping(t *testing.T) {
	for name, c := range allTiers() {
		t.Run(name, func(t *testing.T) {
			key := eid.MustParse("10.0.0.0/8")
			r := record("10.0.0.0/8", time.Unix(1, 0), "192.0.2.1")
			r.XtrID = mapping.XtrID{1}
			c.AddMapping(key, r, false)

			got := c.GetXtrIDMapping(eid.EID{}, key, mapping.XtrID{1})
			require.NotNil(t, got)
			assert.Equal(t, []string{"192.0.2.1"}, rlocs(got))
			assert.Nil(t, c.GetXtrIDMapping(eid.EID{}, key, mapping.XtrID{2}))

			c.RemoveXtrIDMapping(key, mapping.XtrID{2})
			assert.NotNil(t, c.GetMapping(eid.EID{}, key))
			c.RemoveXtrIDMapping(key, mapping.XtrID{1})
			assert.Nil(t, c.GetMapping(eid.EID{}, key))
			assert.Zero(t, c.Count())
		})
	}
}

func TestOperationMetrics(t *testing.T) {
	ops := metrics.NewTestCounter()
	c := mapcache.NewSimple(mapcache.Config{Metrics: mapcache.Metrics{Operations: ops}})
	key := eid.MustParse("10.0.0.0/8")
	c.AddMapping(key, record("10.0.0.0/8", time.Unix(2, 0)), false)
	c.AddMapping(key, record("10.0.0.0/8", time.Unix(1, 0)), false)
	c.RemoveMapping(key)
	c.RemoveMapping(key)
	assert.Equal(t, float64(1), metrics.CounterValue(ops.With("op", "add")))
	assert.Equal(t, float64(1), metrics.CounterValue(ops.With("op", "noop")))
	assert.Equal(t, float64(1), metrics.CounterValue(ops.With("op", "remove")))
}

func TestConcurrentAccess(t *testing.T) {
	for name, c := range allTiers() {
		t.Run(name, func(t *testing.T) {
			var wg sync.WaitGroup
			for i := 0; i < 8; i++ {
				wg.Add(1)
				go func() {
					defer wg.Done()
					for j := 0; j < 50; j++ {
						k := fmt.Sprintf("[%d]10.%d.0.0/16", i%2, j)
						c.AddMapping(eid.MustParse(k), record(k, time.Unix(int64(j+1), 0)), true)
						c.GetMapping(eid.EID{}, eid.MustParse(k))
						if j%2 == 0 {
							c.RemoveMapping(eid.MustParse(k))
						}
					}
				}()
			}
			wg.Wait()
			// Odd prefixes of both VNIs survive.
			assert.Equal(t, 50, c.Count())
		})
	}
}
