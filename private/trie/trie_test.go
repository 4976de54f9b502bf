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

package trie_test

import (
	"fmt"
	"math/rand/v2"
	"net/netip"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lispms/lispms/private/trie"
)

func pfx(t testing.TB, s string) ([]byte, int) {
	t.Helper()
	p, err := netip.ParsePrefix(s)
	require.NoError(t, err)
	return p.Addr().AsSlice(), p.Bits()
}

func insert(t testing.TB, tr *trie.Trie[string], s string) trie.NodeID {
	t.Helper()
	b, l := pfx(t, s)
	id, ok := tr.Insert(b, l, s)
	require.True(t, ok, s)
	return id
}

func best(t testing.TB, tr *trie.Trie[string], s string) string {
	t.Helper()
	b, l := pfx(t, s)
	id, ok := tr.LookupBest(b, l)
	if !ok {
		return ""
	}
	d, ok := tr.Data(id)
	require.True(t, ok)
	return d
}

func prefixString(t testing.TB, key []byte, plen int) string {
	t.Helper()
	a, ok := netip.AddrFromSlice(key)
	require.True(t, ok)
	return netip.PrefixFrom(a, plen).String()
}

func TestLongestPrefixMatch(t *testing.T) {
	for _, rootZero := range []bool{false, true} {
		t.Run(fmt.Sprintf("rootZero=%t", rootZero), func(t *testing.T) {
			tr := trie.New[string](32, rootZero)
			insert(t, tr, "192.168.0.0/16")
			insert(t, tr, "192.168.1.0/24")
			insert(t, tr, "192.168.1.1/32")
			assert.Equal(t, 3, tr.Len())

			assert.Equal(t, "192.168.1.1/32", best(t, tr, "192.168.1.1/32"))
			assert.Equal(t, "192.168.1.0/24", best(t, tr, "192.168.1.2/32"))
			assert.Equal(t, "192.168.0.0/16", best(t, tr, "192.168.2.1/32"))
			assert.Equal(t, "", best(t, tr, "10.0.0.1/32"))
			// A query less specific than every stored prefix has no match.
			assert.Equal(t, "", best(t, tr, "192.0.0.0/8"))

			b, l := pfx(t, "192.168.1.1/32")
			require.True(t, tr.Remove(b, l))
			assert.Equal(t, "192.168.1.0/24", best(t, tr, "192.168.1.1/32"))
			b, l = pfx(t, "192.168.1.0/24")
			require.True(t, tr.Remove(b, l))
			assert.Equal(t, "192.168.0.0/16", best(t, tr, "192.168.1.1/32"))
			b, l = pfx(t, "192.168.0.0/16")
			require.True(t, tr.Remove(b, l))
			assert.Equal(t, "", best(t, tr, "192.168.1.1/32"))
			assert.Zero(t, tr.Len())
		})
	}
}

func TestExact(t *testing.T) {
	tr := trie.New[string](128, false)
	for _, s := range []string{"2001:db8::/32", "2001:db8:1::/48", "2001:db8:8000::/33"} {
		insert(t, tr, s)
	}
	for _, s := range []string{"2001:db8::/32", "2001:db8:1::/48", "2001:db8:8000::/33"} {
		b, l := pfx(t, s)
		id, ok := tr.LookupExact(b, l)
		require.True(t, ok, s)
		d, _ := tr.Data(id)
		assert.Equal(t, s, d)
		key, plen, ok := tr.Prefix(id)
		require.True(t, ok)
		assert.Equal(t, s, prefixString(t, key, plen))
	}
	// Branch nodes and less specific queries are not exact matches.
	b, l := pfx(t, "2001:db8::/31")
	_, ok := tr.LookupExact(b, l)
	assert.False(t, ok)
	b, l = pfx(t, "2001:db8::/48")
	_, ok = tr.LookupExact(b, l)
	assert.False(t, ok)

	// Host bits are ignored.
	b, l = pfx(t, "2001:db8:1:ffff::/48")
	_, ok = tr.LookupExact(b, l)
	assert.True(t, ok)
}

func TestInsertOverwrite(t *testing.T) {
	tr := trie.New[string](32, false)
	first := insert(t, tr, "10.0.0.0/8")
	b, l := pfx(t, "10.0.0.0/8")
	second, ok := tr.Insert(b, l, "again")
	require.True(t, ok)
	assert.Equal(t, first, second)
	assert.Equal(t, 1, tr.Len())
	assert.Equal(t, "again", best(t, tr, "10.1.1.1/32"))
	assert.True(t, tr.SetData(first, "set"))
	assert.Equal(t, "set", best(t, tr, "10.1.1.1/32"))
}

func TestMalformedInput(t *testing.T) {
	tr := trie.New[string](32, true)
	testCases := map[string]struct {
		key  []byte
		plen int
	}{
		"negative length": {key: []byte{10, 0, 0, 0}, plen: -1},
		"too long":        {key: []byte{10, 0, 0, 0, 0}, plen: 33},
		"short key":       {key: []byte{10}, plen: 16},
		"nil key":         {key: nil, plen: 8},
	}
	for name, tc := range testCases {
		t.Run(name, func(t *testing.T) {
			_, ok := tr.Insert(tc.key, tc.plen, "x")
			assert.False(t, ok)
			_, ok = tr.LookupBest(tc.key, tc.plen)
			assert.False(t, ok)
			_, ok = tr.LookupExact(tc.key, tc.plen)
			assert.False(t, ok)
			_, _, ok = tr.LookupWidestNegative(tc.key, tc.plen)
			assert.False(t, ok)
			assert.False(t, tr.Remove(tc.key, tc.plen))
		})
	}
	assert.Zero(t, tr.Len())
	assert.False(t, tr.Erase(trie.NodeID{}))
	_, ok := tr.Data(trie.NodeID{})
	assert.False(t, ok)
}

func TestWidestNegative(t *testing.T) {
	testCases := map[string]struct {
		stored []string
		query  string
		want   string
	}{
		"between siblings": {
			stored: []string{"1.1.128.0/17", "1.1.32.0/19"},
			query:  "1.1.127.10/32",
			want:   "1.1.64.0/18",
		},
		"empty trie": {
			query: "10.0.0.1/32",
			want:  "0.0.0.0/0",
		},
		"missing half": {
			stored: []string{"10.0.0.0/8", "11.0.0.0/8"},
			query:  "192.0.2.1/32",
			want:   "128.0.0.0/1",
		},
		"covered": {
			stored: []string{"10.0.0.0/8"},
			query:  "10.1.1.1/32",
		},
		"exact": {
			stored: []string{"10.0.0.0/8"},
			query:  "10.0.0.0/8",
		},
		"query covers stored": {
			stored: []string{"10.1.0.0/16"},
			query:  "10.0.0.0/8",
		},
	}
	for name, tc := range testCases {
		for _, rootZero := range []bool{false, true} {
			t.Run(fmt.Sprintf("%s rootZero=%t", name, rootZero), func(t *testing.T) {
				tr := trie.New[string](32, rootZero)
				for _, s := range tc.stored {
					insert(t, tr, s)
				}
				b, l := pfx(t, tc.query)
				key, plen, ok := tr.LookupWidestNegative(b, l)
				if tc.want == "" {
					assert.False(t, ok)
					return
				}
				require.True(t, ok)
				got := prefixString(t, key, plen)
				assert.Equal(t, tc.want, got)
				// The negative prefix must not overlap any stored prefix.
				neg := netip.MustParsePrefix(got)
				for _, s := range tc.stored {
					assert.False(t, neg.Overlaps(netip.MustParsePrefix(s)), s)
				}
			})
		}
	}
}

func TestEraseStaleHandle(t *testing.T) {
	tr := trie.New[string](32, false)
	id := insert(t, tr, "10.0.0.0/8")
	require.True(t, tr.Erase(id))
	assert.False(t, tr.Erase(id))
	_, ok := tr.Data(id)
	assert.False(t, ok)

	// The slot is reused, the old handle must stay stale.
	other := insert(t, tr, "11.0.0.0/8")
	assert.NotEqual(t, id, other)
	_, ok = tr.Data(id)
	assert.False(t, ok)
	assert.False(t, tr.SetData(id, "x"))
	d, ok := tr.Data(other)
	require.True(t, ok)
	assert.Equal(t, "11.0.0.0/8", d)
}

func TestRootZero(t *testing.T) {
	tr := trie.New[string](32, true)
	insert(t, tr, "0.0.0.0/0")
	insert(t, tr, "10.0.0.0/8")
	assert.Equal(t, "0.0.0.0/0", best(t, tr, "192.0.2.1/32"))

	b, l := pfx(t, "0.0.0.0/0")
	require.True(t, tr.Remove(b, l))
	assert.Equal(t, "", best(t, tr, "192.0.2.1/32"))
	assert.Equal(t, "10.0.0.0/8", best(t, tr, "10.0.0.1/32"))
	assert.Equal(t, 1, tr.Len())

	// The zero length root survives removing all entries.
	b, l = pfx(t, "10.0.0.0/8")
	require.True(t, tr.Remove(b, l))
	insert(t, tr, "0.0.0.0/0")
	assert.Equal(t, "0.0.0.0/0", best(t, tr, "10.0.0.1/32"))
}

func TestCoveringAndParent(t *testing.T) {
	tr := trie.New[string](32, false)
	insert(t, tr, "10.0.0.0/8")
	mid := insert(t, tr, "10.1.0.0/16")
	leaf := insert(t, tr, "10.1.2.0/24")
	insert(t, tr, "10.1.3.0/24")

	b, l := pfx(t, "10.1.2.7/32")
	var got []string
	for _, id := range tr.LookupCovering(b, l) {
		d, _ := tr.Data(id)
		got = append(got, d)
	}
	assert.Equal(t, []string{"10.1.2.0/24", "10.1.0.0/16", "10.0.0.0/8"}, got)

	parent, ok := tr.Parent(leaf)
	require.True(t, ok)
	assert.Equal(t, mid, parent)
	root, ok := tr.Parent(parent)
	require.True(t, ok)
	_, ok = tr.Parent(root)
	assert.False(t, ok)
}

func TestSubtree(t *testing.T) {
	tr := trie.New[string](32, true)
	for _, s := range []string{"10.0.0.0/8", "10.1.2.0/24", "10.1.3.0/24", "10.2.0.0/16", "11.0.0.0/8"} {
		insert(t, tr, s)
	}
	b, l := pfx(t, "10.1.0.0/16")
	top, ok := tr.LookupSubtree(b, l)
	require.True(t, ok)
	var got []string
	for _, d := range tr.SubtreeIterator(top).All() {
		got = append(got, d)
	}
	assert.ElementsMatch(t, []string{"10.1.2.0/24", "10.1.3.0/24"}, got)

	assert.Equal(t, 2, tr.RemoveSubtree(top))
	assert.Equal(t, 3, tr.Len())
	assert.Equal(t, "10.0.0.0/8", best(t, tr, "10.1.2.1/32"))

	b, l = pfx(t, "12.0.0.0/8")
	_, ok = tr.LookupSubtree(b, l)
	assert.False(t, ok)
}

func TestIteratorToleratesErase(t *testing.T) {
	tr := trie.New[string](32, false)
	all := []string{"10.0.0.0/8", "10.1.0.0/16", "10.1.1.0/24", "10.2.0.0/16", "192.168.0.0/16"}
	for _, s := range all {
		insert(t, tr, s)
	}
	it := tr.Iterator()
	var seen []string
	for id, ok := it.Next(); ok; id, ok = it.Next() {
		d, _ := tr.Data(id)
		seen = append(seen, d)
		// Erasing the current node and a not yet visited node.
		require.True(t, tr.Erase(id))
		if d == "10.1.1.0/24" {
			b, l := pfx(t, "10.2.0.0/16")
			tr.Remove(b, l)
		}
	}
	assert.NotContains(t, seen, "10.2.0.0/16")
	assert.Len(t, seen, 4)
	assert.Zero(t, tr.Len())

	// Post-order: more specific prefixes first.
	for _, s := range all {
		insert(t, tr, s)
	}
	seen = seen[:0]
	for _, d := range tr.All() {
		seen = append(seen, d)
	}
	idx := func(s string) int {
		for i, v := range seen {
			if v == s {
				return i
			}
		}
		return -1
	}
	assert.Less(t, idx("10.1.1.0/24"), idx("10.1.0.0/16"))
	assert.Less(t, idx("10.1.0.0/16"), idx("10.0.0.0/8"))
}

func TestClear(t *testing.T) {
	tr := trie.New[string](32, true)
	insert(t, tr, "10.0.0.0/8")
	tr.Clear()
	assert.Zero(t, tr.Len())
	assert.Equal(t, "", best(t, tr, "10.0.0.1/32"))
	insert(t, tr, "10.0.0.0/8")
	assert.Equal(t, "10.0.0.0/8", best(t, tr, "10.0.0.1/32"))
}

// TestRandomized compares the trie against a linear scan over a random set
// of prefixes while inserting and removing.
func TestRandomized(t *testing.T) {
	rng := rand.New(rand.NewPCG(1, 2))
	randPrefix := func() netip.Prefix {
		var b [4]byte
		// Keep the address space small to get many overlaps.
		b[0] = byte(10 + rng.IntN(2))
		b[1] = byte(rng.IntN(4))
		b[2] = byte(rng.IntN(256))
		return netip.PrefixFrom(netip.AddrFrom4(b), rng.IntN(25)).Masked()
	}
	for _, rootZero := range []bool{false, true} {
		tr := trie.New[string](32, rootZero)
		stored := map[netip.Prefix]bool{}
		for i := 0; i < 2000; i++ {
			p := randPrefix()
			if rng.IntN(3) == 0 {
				removed := tr.Remove(p.Addr().AsSlice(), p.Bits())
				assert.Equal(t, stored[p], removed, p)
				delete(stored, p)
			} else {
				_, ok := tr.Insert(p.Addr().AsSlice(), p.Bits(), p.String())
				require.True(t, ok)
				stored[p] = true
			}
			require.Equal(t, len(stored), tr.Len())

			q := netip.PrefixFrom(randPrefix().Addr(), 32)
			var want netip.Prefix
			for s := range stored {
				if s.Contains(q.Addr()) && (!want.IsValid() || s.Bits() > want.Bits()) {
					want = s
				}
			}
			got := best(t, tr, q.String())
			if !want.IsValid() {
				assert.Equal(t, "", got, q)
				neg, nlen, ok := tr.LookupWidestNegative(q.Addr().AsSlice(), 32)
				require.True(t, ok, q)
				negPrefix := netip.MustParsePrefix(prefixString(t, neg, nlen))
				for s := range stored {
					assert.False(t, negPrefix.Overlaps(s), "%s overlaps %s", negPrefix, s)
				}
			} else {
				assert.Equal(t, want.String(), got, q)
			}
		}
	}
}
