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

package keyedstore_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lispms/lispms/pkg/eid"
	"github.com/lispms/lispms/pkg/mapping"
	"github.com/lispms/lispms/private/keyedstore"
)

func newPopulatedTrieStore(t *testing.T, prefixes ...string) *keyedstore.TrieStore {
	t.Helper()
	s := keyedstore.NewTrieStore(nil, true)
	for _, p := range prefixes {
		s.Put(eid.MustParse(p), keyedstore.E(subRecord, keyedstore.Int(len(p))))
	}
	return s
}

func TestTrieStoreGetBest(t *testing.T) {
	s := newPopulatedTrieStore(t, "192.168.0.0/16", "192.168.1.0/24", "2001:db8::/32")
	testCases := map[string]struct {
		query string
		want  string
	}{
		"most specific":   {query: "192.168.1.7", want: "192.168.1.0/24"},
		"less specific":   {query: "192.168.2.7", want: "192.168.0.0/16"},
		"ipv6":            {query: "2001:db8::1", want: "2001:db8::/32"},
		"no match":        {query: "10.0.0.1"},
		"other vni":       {query: "[3]192.168.1.7"},
		"ipv4 vs ipv6":    {query: "::1"},
		"wider than all":  {query: "192.0.0.0/8"},
		"exact non-match": {query: "dn:x"},
	}
	for name, tc := range testCases {
		t.Run(name, func(t *testing.T) {
			key, values, ok := s.GetBest(eid.MustParse(tc.query))
			if tc.want == "" {
				assert.False(t, ok)
				return
			}
			require.True(t, ok)
			assert.Equal(t, eid.MustParse(tc.want), key)
			assert.NotNil(t, values[subRecord])
		})
	}
}

func TestTrieStoreWidestNegative(t *testing.T) {
	s := newPopulatedTrieStore(t, "[4]1.1.128.0/17", "[4]1.1.32.0/19")
	neg, ok := s.GetWidestNegative(eid.MustParse("[4]1.1.127.10"))
	require.True(t, ok)
	assert.Equal(t, eid.MustParse("[4]1.1.64.0/18"), neg)

	_, ok = s.GetWidestNegative(eid.MustParse("[4]1.1.128.1"))
	assert.False(t, ok)

	// Nothing stored for this VNI: everything is negative.
	neg, ok = s.GetWidestNegative(eid.MustParse("[5]1.1.128.1"))
	require.True(t, ok)
	assert.Equal(t, eid.MustParse("[5]0.0.0.0/0"), neg)

	_, ok = s.GetWidestNegative(eid.VNI(4))
	assert.False(t, ok)
}

func TestTrieStoreHierarchy(t *testing.T) {
	s := newPopulatedTrieStore(t,
		"10.0.0.0/8", "10.1.0.0/16", "10.1.1.0/24", "10.1.2.0/24", "10.2.0.0/16")

	subtree := s.GetSubtree(eid.MustParse("10.1.0.0/16"))
	assert.ElementsMatch(t, []any{
		eid.MustParse("10.1.0.0/16"),
		eid.MustParse("10.1.1.0/24"),
		eid.MustParse("10.1.2.0/24"),
	}, subtree)
	assert.Empty(t, s.GetSubtree(eid.MustParse("11.0.0.0/8")))

	less, ok := s.GetCoveringLessSpecific(eid.MustParse("10.1.1.0/24"))
	require.True(t, ok)
	assert.Equal(t, eid.MustParse("10.1.0.0/16"), less)
	less, ok = s.GetCoveringLessSpecific(eid.MustParse("10.3.0.0/24"))
	require.True(t, ok)
	assert.Equal(t, eid.MustParse("10.0.0.0/8"), less)
	_, ok = s.GetCoveringLessSpecific(eid.MustParse("10.0.0.0/8"))
	assert.False(t, ok)

	parent, ok := s.GetParent(eid.MustParse("10.1.2.0/24"))
	require.True(t, ok)
	assert.Equal(t, eid.MustParse("10.1.0.0/16"), parent)
	_, ok = s.GetParent(eid.MustParse("10.3.0.0/24"))
	assert.False(t, ok)
	_, ok = s.GetParent(eid.MustParse("10.0.0.0/8"))
	assert.False(t, ok)
}

func TestTrieStoreSourceDestKeysDoNotCollide(t *testing.T) {
	s := keyedstore.NewTrieStore(nil, false)
	plain := eid.MustParse("10.2.0.0/16")
	sd := eid.MustParse("10.1.0.0/16|10.2.0.0/16")
	s.Put(plain, keyedstore.E(subRecord, keyedstore.Int(1)))
	s.Put(sd, keyedstore.E(subRecord, keyedstore.Int(2)))
	assert.Equal(t, 2, s.Len())
	assert.Equal(t, keyedstore.Int(1), s.GetSpecific(plain, subRecord))
	assert.Equal(t, keyedstore.Int(2), s.GetSpecific(sd, subRecord))
}

func TestTrieStoreGetBestWith(t *testing.T) {
	s := newPopulatedTrieStore(t, "10.0.0.0/8")
	s.Put(eid.MustParse("10.1.0.0/16"),
		keyedstore.E("AUTH_KEY", keyedstore.AuthKey{AuthKey: mapping.AuthKey{Key: "k"}}))

	key, _, ok := s.GetBest(eid.MustParse("10.1.1.1"))
	require.True(t, ok)
	assert.Equal(t, eid.MustParse("10.1.0.0/16"), key)

	key, values, ok := s.GetBestWith(eid.MustParse("10.1.1.1"), subRecord)
	require.True(t, ok)
	assert.Equal(t, eid.MustParse("10.0.0.0/8"), key)
	assert.NotNil(t, values[subRecord])

	_, _, ok = s.GetBestWith(eid.MustParse("10.1.1.1"), "MISSING")
	assert.False(t, ok)
	_, _, ok = s.GetBestWith(eid.MustParse("dn:x"), subRecord)
	assert.False(t, ok)
}
