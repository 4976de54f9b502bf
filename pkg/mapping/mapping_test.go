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

package mapping_test

import (
	"net/netip"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lispms/lispms/pkg/eid"
	"github.com/lispms/lispms/pkg/mapping"
)

var recordCmp = []cmp.Option{
	cmp.Comparer(func(a, b eid.EID) bool { return a == b }),
	cmp.Comparer(func(a, b netip.Addr) bool { return a == b }),
}

func loc(s string, prio uint8) mapping.Locator {
	return mapping.Locator{RLOC: netip.MustParseAddr(s), Priority: prio, Weight: 1}
}

func TestMerge(t *testing.T) {
	base := time.Unix(1000, 0)
	first := &mapping.Record{
		EID:       eid.MustParse("10.0.0.0/8"),
		TTL:       time.Minute,
		Locators:  []mapping.Locator{loc("192.0.2.1", 1), loc("192.0.2.2", 1)},
		XtrID:     mapping.XtrID{1},
		SiteID:    mapping.SiteID{1},
		Timestamp: base,
	}
	second := &mapping.Record{
		EID:       eid.MustParse("10.0.0.0/8"),
		TTL:       2 * time.Minute,
		Locators:  []mapping.Locator{loc("192.0.2.2", 5), loc("192.0.2.3", 1)},
		XtrID:     mapping.XtrID{2},
		SiteID:    mapping.SiteID{2},
		Timestamp: base.Add(time.Second),
	}

	t.Run("first registration", func(t *testing.T) {
		got := mapping.Merge(nil, first)
		assert.Empty(t, cmp.Diff(first, got, recordCmp...))
		assert.NotSame(t, first, got)
	})
	t.Run("newer wins duplicates", func(t *testing.T) {
		got := mapping.Merge(first, second)
		want := &mapping.Record{
			EID: eid.MustParse("10.0.0.0/8"),
			TTL: 2 * time.Minute,
			Locators: []mapping.Locator{
				loc("192.0.2.2", 5), loc("192.0.2.3", 1), loc("192.0.2.1", 1),
			},
			XtrID:     mapping.XtrID{2},
			SiteID:    mapping.SiteID{2},
			Timestamp: second.Timestamp,
		}
		assert.Empty(t, cmp.Diff(want, got, recordCmp...))
	})
	t.Run("older registration keeps newer timestamp", func(t *testing.T) {
		got := mapping.Merge(second, first)
		assert.Equal(t, second.Timestamp, got.Timestamp)
		l, ok := got.Locator(netip.MustParseAddr("192.0.2.2"))
		require.True(t, ok)
		assert.Equal(t, uint8(5), l.Priority)
		assert.Equal(t, time.Minute, got.TTL)
	})
	t.Run("idempotent", func(t *testing.T) {
		once := mapping.Merge(first, second)
		twice := mapping.Merge(once, second)
		assert.Empty(t, cmp.Diff(once, twice, recordCmp...))
		assert.Empty(t, cmp.Diff(once, mapping.MergeAll(first, second), recordCmp...))
	})
	t.Run("inputs unchanged", func(t *testing.T) {
		_ = mapping.Merge(first, second)
		assert.Len(t, first.Locators, 2)
		assert.Len(t, second.Locators, 2)
	})
	assert.Nil(t, mapping.MergeAll())
}

func TestIntersect(t *testing.T) {
	nb := &mapping.Record{
		Locators: []mapping.Locator{loc("192.0.2.1", 1), loc("192.0.2.2", 2)},
	}
	testCases := map[string]struct {
		sb   *mapping.Record
		want []mapping.Locator
	}{
		"no southbound": {
			sb:   nil,
			want: nb.Locators,
		},
		"partial overlap": {
			sb:   &mapping.Record{Locators: []mapping.Locator{loc("192.0.2.2", 9)}},
			want: []mapping.Locator{loc("192.0.2.2", 2)},
		},
		"empty overlap": {
			sb:   &mapping.Record{Locators: []mapping.Locator{loc("198.51.100.1", 1)}},
			want: nb.Locators,
		},
	}
	for name, tc := range testCases {
		t.Run(name, func(t *testing.T) {
			got := nb.Intersect(tc.sb)
			assert.Equal(t, tc.want, got.Locators)
		})
	}
	var nilRec *mapping.Record
	assert.Nil(t, nilRec.Intersect(nb))
}

func TestRecordExpired(t *testing.T) {
	now := time.Unix(5000, 0)
	r := &mapping.Record{TTL: time.Minute, Timestamp: now.Add(-2 * time.Minute)}
	assert.True(t, r.Expired(now))
	r.Timestamp = now.Add(-30 * time.Second)
	assert.False(t, r.Expired(now))
	assert.False(t, (&mapping.Record{}).Expired(now))
	assert.True(t, (&mapping.Record{}).IsNegative())
}

func TestParseXtrID(t *testing.T) {
	id, err := mapping.ParseXtrID("0102030405060708090a0b0c0d0e0f10")
	require.NoError(t, err)
	assert.Equal(t, byte(0x10), id[15])
	assert.Equal(t, "0102030405060708090a0b0c0d0e0f10", id.String())
	assert.False(t, id.IsZero())

	_, err = mapping.ParseXtrID("0102")
	assert.Error(t, err)
	_, err = mapping.ParseXtrID("zz")
	assert.Error(t, err)
}

func TestSubscriberSet(t *testing.T) {
	now := time.Unix(10000, 0)
	a := mapping.Subscriber{
		RLOC:        netip.MustParseAddr("192.0.2.1"),
		SrcEID:      eid.MustParse("10.1.1.1/24"),
		TTL:         time.Minute,
		LastRequest: now,
	}
	b := mapping.Subscriber{
		RLOC:        netip.MustParseAddr("192.0.2.2"),
		SrcEID:      eid.MustParse("10.2.0.0/16"),
		TTL:         time.Minute,
		LastRequest: now.Add(-2 * time.Minute),
	}
	set := mapping.NewSubscriberSet(b)
	set.Add(a)
	// Same subscriber, different host bits in the source EID: a refresh.
	refreshed := a
	refreshed.SrcEID = eid.MustParse("10.1.1.0/24")
	refreshed.LastRequest = now.Add(time.Second)
	set.Add(refreshed)
	assert.Equal(t, 2, set.Len())

	list := set.List()
	require.Len(t, list, 2)
	assert.Equal(t, refreshed.LastRequest, list[0].LastRequest)
	assert.Equal(t, b.RLOC, list[1].RLOC)

	assert.Equal(t, 1, set.PruneExpired(now))
	assert.Equal(t, 1, set.Len())
	assert.True(t, set.Remove(a))
	assert.False(t, set.Remove(a))
	assert.Zero(t, set.Len())

	var zero mapping.SubscriberSet
	zero.Add(a)
	assert.Equal(t, 1, zero.Len())
}
