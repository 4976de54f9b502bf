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

// Package trie implements a path compressed binary prefix trie for
// variable-length bit string keys.
//
// Nodes live in an arena and are addressed by NodeID handles. A handle carries
// the generation of its slot, so a handle to an erased (and possibly reused)
// node is detected as stale instead of silently aliasing a different prefix.
//
// Bit 0 of a key is the most significant bit of its first byte. Every node
// stores its key masked to its own bit length. Nodes without a payload are
// branch nodes that only exist to join two subtrees.
//
// A Trie is not safe for concurrent use.
package trie

import (
	"iter"
	"slices"
)

const none int32 = -1

// NodeID is a handle to a trie node. The zero value is an invalid handle.
type NodeID struct {
	idx int32
	gen uint32
}

// IsZero reports whether id is the zero handle.
func (id NodeID) IsZero() bool { return id.gen == 0 }

type slot[T any] struct {
	bit        int
	key        []byte
	hasPayload bool
	data       T
	child      [2]int32
	up         int32
	gen        uint32
	used       bool
}

// Trie is a binary prefix trie mapping (key, length) pairs to values of type
// T.
type Trie[T any] struct {
	maxBits  int
	keyLen   int
	rootZero bool
	slots    []slot[T]
	free     []int32
	root     int32
	active   int
}

// New creates a trie for keys of at most maxBits bits. If rootZero is set,
// the trie keeps a permanent zero length root node, which is never removed.
func New[T any](maxBits int, rootZero bool) *Trie[T] {
	if maxBits < 0 {
		maxBits = 0
	}
	t := &Trie[T]{
		maxBits:  maxBits,
		keyLen:   (maxBits + 7) / 8,
		rootZero: rootZero,
		root:     none,
	}
	if rootZero {
		t.root = t.alloc(0, make([]byte, t.keyLen))
	}
	return t
}

// MaxBits returns the maximal key length.
func (t *Trie[T]) MaxBits() int { return t.maxBits }

// Len returns the number of nodes carrying a payload.
func (t *Trie[T]) Len() int { return t.active }

// Clear removes all entries.
func (t *Trie[T]) Clear() {
	t.slots = nil
	t.free = nil
	t.root = none
	t.active = 0
	if t.rootZero {
		t.root = t.alloc(0, make([]byte, t.keyLen))
	}
}

// Insert stores data under the prefix of length plen. An existing payload is
// overwritten. It returns the handle of the node and false for malformed
// input.
func (t *Trie[T]) Insert(prefix []byte, plen int, data T) (NodeID, bool) {
	key, ok := t.maskedKey(prefix, plen)
	if !ok {
		return NodeID{}, false
	}
	if t.root == none {
		n := t.alloc(plen, key)
		t.setPayload(n, data)
		t.root = n
		return t.id(n), true
	}
	parent, n := none, t.root
	for n != none {
		s := &t.slots[n]
		m := min(plen, s.bit)
		if d := firstDifferentBit(key, s.key, m); d < m {
			// The new prefix diverges inside the compressed path above n.
			branch := t.alloc(d, maskKey(key, d, t.keyLen))
			leaf := t.alloc(plen, key)
			t.replaceChild(parent, n, branch)
			t.link(branch, n)
			t.link(branch, leaf)
			t.setPayload(leaf, data)
			return t.id(leaf), true
		}
		switch {
		case s.bit == plen:
			t.setPayload(n, data)
			return t.id(n), true
		case s.bit > plen:
			// The new prefix is a strict ancestor of n.
			node := t.alloc(plen, key)
			t.replaceChild(parent, n, node)
			t.link(node, n)
			t.setPayload(node, data)
			return t.id(node), true
		}
		next := s.child[bitAt(key, s.bit)]
		if next == none {
			leaf := t.alloc(plen, key)
			t.link(n, leaf)
			t.setPayload(leaf, data)
			return t.id(leaf), true
		}
		parent, n = n, next
	}
	// Unreachable: the loop always returns.
	return NodeID{}, false
}

// LookupBest returns the longest prefix carrying a payload that covers the
// given prefix.
func (t *Trie[T]) LookupBest(prefix []byte, plen int) (NodeID, bool) {
	covering := t.covering(prefix, plen, true)
	if len(covering) == 0 {
		return NodeID{}, false
	}
	return t.id(covering[0]), true
}

// LookupCovering returns all payload nodes covering the given prefix,
// deepest first. The exact prefix is included if it is present.
func (t *Trie[T]) LookupCovering(prefix []byte, plen int) []NodeID {
	covering := t.covering(prefix, plen, false)
	res := make([]NodeID, 0, len(covering))
	for _, n := range covering {
		res = append(res, t.id(n))
	}
	return res
}

// covering collects the payload nodes on the path to prefix, deepest first.
func (t *Trie[T]) covering(prefix []byte, plen int, onlyBest bool) []int32 {
	key, ok := t.maskedKey(prefix, plen)
	if !ok {
		return nil
	}
	var path []int32
	for n := t.root; n != none; {
		s := &t.slots[n]
		if s.bit > plen || firstDifferentBit(key, s.key, s.bit) < s.bit {
			break
		}
		if s.hasPayload {
			path = append(path, n)
		}
		if s.bit == plen {
			break
		}
		n = s.child[bitAt(key, s.bit)]
	}
	slices.Reverse(path)
	if onlyBest && len(path) > 1 {
		path = path[:1]
	}
	return path
}

// LookupExact returns the node with exactly the given prefix, if it carries
// a payload.
func (t *Trie[T]) LookupExact(prefix []byte, plen int) (NodeID, bool) {
	n, ok := t.exact(prefix, plen)
	if !ok || !t.slots[n].hasPayload {
		return NodeID{}, false
	}
	return t.id(n), true
}

func (t *Trie[T]) exact(prefix []byte, plen int) (int32, bool) {
	key, ok := t.maskedKey(prefix, plen)
	if !ok {
		return none, false
	}
	for n := t.root; n != none; {
		s := &t.slots[n]
		if s.bit > plen || firstDifferentBit(key, s.key, s.bit) < s.bit {
			return none, false
		}
		if s.bit == plen {
			return n, true
		}
		n = s.child[bitAt(key, s.bit)]
	}
	return none, false
}

// LookupSubtree returns the topmost node covered by the given prefix. All
// payload nodes in its subtree are more specific than or equal to the
// prefix. The returned node may be a branch node without payload.
func (t *Trie[T]) LookupSubtree(prefix []byte, plen int) (NodeID, bool) {
	key, ok := t.maskedKey(prefix, plen)
	if !ok {
		return NodeID{}, false
	}
	for n := t.root; n != none; {
		s := &t.slots[n]
		if s.bit >= plen {
			if firstDifferentBit(key, s.key, plen) < plen {
				return NodeID{}, false
			}
			return t.id(n), true
		}
		if firstDifferentBit(key, s.key, s.bit) < s.bit {
			return NodeID{}, false
		}
		n = s.child[bitAt(key, s.bit)]
	}
	return NodeID{}, false
}

// LookupWidestNegative returns the widest prefix that covers the given
// prefix and doesn't overlap with any stored prefix. It returns false if the
// prefix is covered by a stored prefix or if it covers stored prefixes
// itself.
func (t *Trie[T]) LookupWidestNegative(prefix []byte, plen int) ([]byte, int, bool) {
	key, ok := t.maskedKey(prefix, plen)
	if !ok {
		return nil, 0, false
	}
	if t.active == 0 {
		return maskKey(key, 0, t.keyLen), 0, true
	}
	for n := t.root; n != none; {
		s := &t.slots[n]
		m := min(plen, s.bit)
		if d := firstDifferentBit(key, s.key, m); d < m {
			return maskKey(key, d+1, t.keyLen), d + 1, true
		}
		if s.bit >= plen || s.hasPayload {
			return nil, 0, false
		}
		b := bitAt(key, s.bit)
		if s.child[b] == none {
			return maskKey(key, s.bit+1, t.keyLen), s.bit + 1, true
		}
		n = s.child[b]
	}
	return nil, 0, false
}

// Remove removes the payload of the exact prefix. It reports whether a
// payload was removed.
func (t *Trie[T]) Remove(prefix []byte, plen int) bool {
	id, ok := t.LookupExact(prefix, plen)
	if !ok {
		return false
	}
	return t.Erase(id)
}

// Erase clears the payload of the node and unlinks nodes that became
// redundant. It reports whether a payload was removed.
func (t *Trie[T]) Erase(id NodeID) bool {
	if !t.valid(id) || !t.slots[id.idx].hasPayload {
		return false
	}
	t.clearPayload(id.idx)
	t.compact(id.idx)
	return true
}

// RemoveSubtree removes the node and all nodes below it. It returns the
// number of removed payloads.
func (t *Trie[T]) RemoveSubtree(id NodeID) int {
	if !t.valid(id) {
		return 0
	}
	top := id.idx
	removed := 0
	var walk func(n int32)
	walk = func(n int32) {
		s := &t.slots[n]
		for _, c := range s.child {
			if c != none {
				walk(c)
			}
		}
		if s.hasPayload {
			t.clearPayload(n)
			removed++
		}
		if n != top {
			t.release(n)
		}
	}
	walk(top)
	s := &t.slots[top]
	s.child = [2]int32{none, none}
	t.compact(top)
	return removed
}

// compact removes payload-less nodes with less than two children, starting
// at n and walking upwards.
func (t *Trie[T]) compact(n int32) {
	for n != none {
		s := &t.slots[n]
		if s.hasPayload || (t.rootZero && n == t.root) {
			return
		}
		parent := s.up
		switch {
		case s.child[0] == none && s.child[1] == none:
			t.replaceChild(parent, n, none)
			t.release(n)
			n = parent
		case s.child[0] == none || s.child[1] == none:
			c := s.child[0]
			if c == none {
				c = s.child[1]
			}
			t.replaceChild(parent, n, c)
			t.release(n)
			return
		default:
			return
		}
	}
}

// Data returns the payload of the node.
func (t *Trie[T]) Data(id NodeID) (T, bool) {
	if !t.valid(id) || !t.slots[id.idx].hasPayload {
		var zero T
		return zero, false
	}
	return t.slots[id.idx].data, true
}

// SetData replaces the payload of a node that already carries one.
func (t *Trie[T]) SetData(id NodeID, data T) bool {
	if !t.valid(id) || !t.slots[id.idx].hasPayload {
		return false
	}
	t.slots[id.idx].data = data
	return true
}

// Prefix returns a copy of the key and the prefix length of the node.
func (t *Trie[T]) Prefix(id NodeID) ([]byte, int, bool) {
	if !t.valid(id) {
		return nil, 0, false
	}
	s := &t.slots[id.idx]
	return slices.Clone(s.key), s.bit, true
}

// Parent returns the closest ancestor of the node that carries a payload.
func (t *Trie[T]) Parent(id NodeID) (NodeID, bool) {
	if !t.valid(id) {
		return NodeID{}, false
	}
	for n := t.slots[id.idx].up; n != none; n = t.slots[n].up {
		if t.slots[n].hasPayload {
			return t.id(n), true
		}
	}
	return NodeID{}, false
}

// Iterator returns an iterator over all payload nodes in post-order, i.e.,
// more specific prefixes come before the prefixes covering them.
func (t *Trie[T]) Iterator() *Iterator[T] {
	return t.subtreeIterator(t.root)
}

// SubtreeIterator returns an iterator over the payload nodes below and
// including id.
func (t *Trie[T]) SubtreeIterator(id NodeID) *Iterator[T] {
	if !t.valid(id) {
		return &Iterator[T]{t: t}
	}
	return t.subtreeIterator(id.idx)
}

func (t *Trie[T]) subtreeIterator(top int32) *Iterator[T] {
	it := &Iterator[T]{t: t}
	if top == none {
		return it
	}
	var walk func(n int32)
	walk = func(n int32) {
		s := &t.slots[n]
		for _, c := range s.child {
			if c != none {
				walk(c)
			}
		}
		if s.hasPayload {
			it.ids = append(it.ids, t.id(n))
		}
	}
	walk(top)
	return it
}

// All returns a sequence over all payload nodes and their data in
// post-order.
func (t *Trie[T]) All() iter.Seq2[NodeID, T] {
	return t.Iterator().All()
}

// Iterator iterates over a snapshot of the payload nodes of a trie. Nodes
// erased after the snapshot was taken are skipped, so it is safe to erase
// nodes between calls to Next.
type Iterator[T any] struct {
	t   *Trie[T]
	ids []NodeID
	pos int
}

// Next returns the next node that still carries a payload.
func (it *Iterator[T]) Next() (NodeID, bool) {
	for it.pos < len(it.ids) {
		id := it.ids[it.pos]
		it.pos++
		if it.t.valid(id) && it.t.slots[id.idx].hasPayload {
			return id, true
		}
	}
	return NodeID{}, false
}

// All returns the remaining nodes as a sequence.
func (it *Iterator[T]) All() iter.Seq2[NodeID, T] {
	return func(yield func(NodeID, T) bool) {
		for id, ok := it.Next(); ok; id, ok = it.Next() {
			if !yield(id, it.t.slots[id.idx].data) {
				return
			}
		}
	}
}

func (t *Trie[T]) maskedKey(prefix []byte, plen int) ([]byte, bool) {
	if plen < 0 || plen > t.maxBits || len(prefix)*8 < plen {
		return nil, false
	}
	return maskKey(prefix, plen, t.keyLen), true
}

func (t *Trie[T]) alloc(bit int, key []byte) int32 {
	var n int32
	if len(t.free) > 0 {
		n = t.free[len(t.free)-1]
		t.free = t.free[:len(t.free)-1]
	} else {
		t.slots = append(t.slots, slot[T]{})
		n = int32(len(t.slots) - 1)
	}
	s := &t.slots[n]
	gen := s.gen + 1
	*s = slot[T]{
		bit:   bit,
		key:   key,
		child: [2]int32{none, none},
		up:    none,
		gen:   gen,
		used:  true,
	}
	return n
}

func (t *Trie[T]) release(n int32) {
	s := &t.slots[n]
	gen := s.gen
	*s = slot[T]{gen: gen, child: [2]int32{none, none}, up: none}
	t.free = append(t.free, n)
}

func (t *Trie[T]) id(n int32) NodeID {
	return NodeID{idx: n, gen: t.slots[n].gen}
}

func (t *Trie[T]) valid(id NodeID) bool {
	if id.gen == 0 || id.idx < 0 || int(id.idx) >= len(t.slots) {
		return false
	}
	s := &t.slots[id.idx]
	return s.used && s.gen == id.gen
}

func (t *Trie[T]) setPayload(n int32, data T) {
	s := &t.slots[n]
	if !s.hasPayload {
		t.active++
	}
	s.hasPayload = true
	s.data = data
}

func (t *Trie[T]) clearPayload(n int32) {
	s := &t.slots[n]
	if s.hasPayload {
		t.active--
	}
	var zero T
	s.hasPayload = false
	s.data = zero
}

// link attaches child below parent on the side given by the child's key bit
// at the parent's bit position.
func (t *Trie[T]) link(parent, child int32) {
	p := &t.slots[parent]
	p.child[bitAt(t.slots[child].key, p.bit)] = child
	t.slots[child].up = parent
}

// replaceChild replaces old with repl in parent. A parent of none denotes the
// root.
func (t *Trie[T]) replaceChild(parent, old, repl int32) {
	if repl != none {
		t.slots[repl].up = parent
	}
	if parent == none {
		t.root = repl
		return
	}
	p := &t.slots[parent]
	for i, c := range p.child {
		if c == old {
			p.child[i] = repl
			return
		}
	}
}

func bitAt(key []byte, i int) int {
	if i/8 >= len(key) {
		return 0
	}
	return int(key[i/8]>>(7-uint(i%8))) & 1
}

// firstDifferentBit returns the index of the first bit that differs between
// a and b within the first n bits, or n if they are equal.
func firstDifferentBit(a, b []byte, n int) int {
	for i := 0; i < n; i += 8 {
		x := a[i/8] ^ b[i/8]
		if x == 0 {
			continue
		}
		for j := 0; j < 8; j++ {
			if x&(0x80>>uint(j)) != 0 {
				return min(i+j, n)
			}
		}
	}
	return n
}

// maskKey returns a copy of key of length keyLen with all bits from plen on
// cleared.
func maskKey(key []byte, plen, keyLen int) []byte {
	res := make([]byte, keyLen)
	copy(res, key)
	full := plen / 8
	if full < keyLen {
		if rem := plen % 8; rem != 0 {
			res[full] &= byte(0xff << uint(8-rem))
			full++
		}
		clear(res[full:])
	}
	return res
}
