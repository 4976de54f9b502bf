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

// Package eid contains the endpoint identifier (EID) type of the mapping
// database.
//
// An EID is a comparable value: once normalized, two EIDs that describe the
// same prefix are equal with == and can be used as map keys directly.
// Prefix EIDs (IPv4, IPv6 and the destination of a source-destination pair)
// are stored in prefix tries, all other types are matched exactly.
package eid

import (
	"bytes"
	"cmp"
	"fmt"
	"net"
	"net/netip"
	"strconv"
	"strings"

	"go4.org/netipx"

	"github.com/lispms/lispms/pkg/private/serrors"
)

// Type is the address type of an EID.
type Type uint8

const (
	TypeUnknown Type = iota
	TypeIPv4
	TypeIPv6
	TypeMAC
	TypeDistinguishedName
	TypeSourceDest
)

func (t Type) String() string {
	switch t {
	case TypeIPv4:
		return "ipv4"
	case TypeIPv6:
		return "ipv6"
	case TypeMAC:
		return "mac"
	case TypeDistinguishedName:
		return "dn"
	case TypeSourceDest:
		return "srcdst"
	default:
		return "unknown"
	}
}

// VNI is the virtual network (instance) identifier. It scopes EIDs to a
// tenant.
type VNI uint32

// EID is an endpoint identifier. The zero value is an invalid EID.
type EID struct {
	typ Type
	vni VNI
	// prefix holds IPv4/IPv6 prefixes and the destination of a
	// source-destination EID.
	prefix netip.Prefix
	src    netip.Prefix
	mac    [6]byte
	name   string
}

// FromPrefix creates an IPv4 or IPv6 EID. IPv4-mapped IPv6 prefixes are
// unmapped. The host bits of p are kept until the EID is normalized.
func FromPrefix(vni VNI, p netip.Prefix) EID {
	if !p.IsValid() {
		return EID{}
	}
	p = unmapPrefix(p)
	typ := TypeIPv6
	if p.Addr().Is4() {
		typ = TypeIPv4
	}
	return EID{typ: typ, vni: vni, prefix: p}
}

// FromAddr creates a host EID, i.e., a full length prefix.
func FromAddr(vni VNI, a netip.Addr) EID {
	if !a.IsValid() {
		return EID{}
	}
	a = a.Unmap()
	return FromPrefix(vni, netip.PrefixFrom(a, a.BitLen()))
}

// FromIPNet creates an EID from a standard library network.
func FromIPNet(vni VNI, n *net.IPNet) (EID, bool) {
	if n == nil {
		return EID{}, false
	}
	p, ok := netipx.FromStdIPNet(n)
	if !ok {
		return EID{}, false
	}
	return FromPrefix(vni, p), true
}

// MAC creates a MAC address EID. It returns the zero EID if hw is not a
// 48-bit address.
func MAC(vni VNI, hw net.HardwareAddr) EID {
	if len(hw) != 6 {
		return EID{}
	}
	e := EID{typ: TypeMAC, vni: vni}
	copy(e.mac[:], hw)
	return e
}

// DistinguishedName creates a distinguished name EID.
func DistinguishedName(vni VNI, name string) EID {
	if name == "" {
		return EID{}
	}
	return EID{typ: TypeDistinguishedName, vni: vni, name: name}
}

// SourceDest creates a source-destination EID. Both prefixes must be of the
// same family.
func SourceDest(vni VNI, src, dst netip.Prefix) EID {
	if !src.IsValid() || !dst.IsValid() {
		return EID{}
	}
	src, dst = unmapPrefix(src), unmapPrefix(dst)
	if src.Addr().Is4() != dst.Addr().Is4() {
		return EID{}
	}
	return EID{typ: TypeSourceDest, vni: vni, prefix: dst, src: src}
}

func unmapPrefix(p netip.Prefix) netip.Prefix {
	if !p.Addr().Is4In6() {
		return p
	}
	bits := p.Bits() - 96
	if bits < 0 {
		// The prefix covers more than the mapped IPv4 space, keep it IPv6.
		return p
	}
	return netip.PrefixFrom(p.Addr().Unmap(), bits)
}

// Type returns the address type.
func (e EID) Type() Type { return e.typ }

// VNI returns the virtual network identifier.
func (e EID) VNI() VNI { return e.vni }

// IsValid reports whether e was constructed from valid input.
func (e EID) IsValid() bool { return e.typ != TypeUnknown }

// IsPrefix reports whether e is stored in a prefix trie, i.e., whether it is
// an IPv4, IPv6 or source-destination EID.
func (e EID) IsPrefix() bool {
	switch e.typ {
	case TypeIPv4, TypeIPv6, TypeSourceDest:
		return true
	default:
		return false
	}
}

// Prefix returns the IP prefix of IPv4 and IPv6 EIDs and the destination
// prefix of source-destination EIDs.
func (e EID) Prefix() netip.Prefix { return e.prefix }

// SourcePrefix returns the source prefix of a source-destination EID.
func (e EID) SourcePrefix() netip.Prefix { return e.src }

// HardwareAddr returns the MAC address of a MAC EID.
func (e EID) HardwareAddr() net.HardwareAddr {
	if e.typ != TypeMAC {
		return nil
	}
	return net.HardwareAddr(bytes.Clone(e.mac[:]))
}

// Name returns the name of a distinguished name EID.
func (e EID) Name() string { return e.name }

// Source returns the source part of a source-destination EID as an EID in
// the same VNI. Other EIDs are returned unchanged.
func (e EID) Source() EID {
	if e.typ != TypeSourceDest {
		return e
	}
	return FromPrefix(e.vni, e.src)
}

// Dest returns the destination part of a source-destination EID as an EID in
// the same VNI. Other EIDs are returned unchanged.
func (e EID) Dest() EID {
	if e.typ != TypeSourceDest {
		return e
	}
	return FromPrefix(e.vni, e.prefix)
}

// MaskLen returns the prefix length of prefix EIDs (the destination length
// for source-destination EIDs) and the full bit length of other EIDs.
func (e EID) MaskLen() int {
	switch e.typ {
	case TypeIPv4, TypeIPv6, TypeSourceDest:
		return e.prefix.Bits()
	case TypeMAC:
		return 48
	default:
		return 0
	}
}

// MaxBits returns the address bit length of prefix EIDs.
func (e EID) MaxBits() int {
	switch e.typ {
	case TypeIPv4, TypeIPv6, TypeSourceDest:
		return e.prefix.Addr().BitLen()
	case TypeMAC:
		return 48
	default:
		return 0
	}
}

// Normalize returns e with all bits beyond the mask length zeroed. Non prefix
// EIDs are returned unchanged.
func (e EID) Normalize() EID {
	switch e.typ {
	case TypeIPv4, TypeIPv6:
		e.prefix = e.prefix.Masked()
	case TypeSourceDest:
		e.prefix = e.prefix.Masked()
		e.src = e.src.Masked()
	}
	return e
}

// IsNormalized reports whether e equals its normalized form.
func (e EID) IsNormalized() bool {
	return e == e.Normalize()
}

// PrefixBits returns the address bytes and the prefix length of the trie key
// of e. For source-destination EIDs this is the destination prefix. ok is
// false for EIDs that are not stored in a prefix trie.
func (e EID) PrefixBits() (bits []byte, plen, maxBits int, ok bool) {
	if !e.IsPrefix() || !e.prefix.IsValid() {
		return nil, 0, 0, false
	}
	p := e.prefix.Masked()
	return p.Addr().AsSlice(), p.Bits(), p.Addr().BitLen(), true
}

// WithPrefixBits creates an EID in the VNI of e from the given trie key. The
// result is an IPv4 or IPv6 EID depending on the length of bits.
func (e EID) WithPrefixBits(bits []byte, plen int) EID {
	a, ok := netip.AddrFromSlice(bits)
	if !ok || plen < 0 || plen > a.BitLen() {
		return EID{}
	}
	return FromPrefix(e.vni, netip.PrefixFrom(a, plen).Masked())
}

// Contains reports whether the normalized prefix of e covers o. Both EIDs
// must be prefix EIDs in the same VNI. Source-destination EIDs are compared
// on their destination.
func (e EID) Contains(o EID) bool {
	if !e.IsPrefix() || !o.IsPrefix() || e.vni != o.vni {
		return false
	}
	return e.prefix.Masked().Overlaps(o.prefix) && e.prefix.Bits() <= o.prefix.Bits()
}

// Key returns a string representation of the normalized EID. Two EIDs have
// the same key iff their normalized forms are equal.
func (e EID) Key() string {
	return e.Normalize().String()
}

// String formats the EID as "[vni]addr". The VNI is omitted when zero.
func (e EID) String() string {
	var b strings.Builder
	if e.vni != 0 {
		fmt.Fprintf(&b, "[%d]", e.vni)
	}
	switch e.typ {
	case TypeIPv4, TypeIPv6:
		b.WriteString(e.prefix.String())
	case TypeMAC:
		b.WriteString(net.HardwareAddr(e.mac[:]).String())
	case TypeDistinguishedName:
		b.WriteString("dn:")
		b.WriteString(e.name)
	case TypeSourceDest:
		b.WriteString(e.src.String())
		b.WriteByte('|')
		b.WriteString(e.prefix.String())
	default:
		b.WriteString("<invalid>")
	}
	return b.String()
}

// MarshalText implements encoding.TextMarshaler.
func (e EID) MarshalText() ([]byte, error) {
	if !e.IsValid() {
		return nil, serrors.New("marshaling invalid EID")
	}
	return []byte(e.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (e *EID) UnmarshalText(text []byte) error {
	parsed, err := Parse(string(text))
	if err != nil {
		return err
	}
	*e = parsed
	return nil
}

// Parse parses the textual EID representation produced by String:
//
//	10.0.0.0/8
//	[7]2001:db8::/32
//	[7]10.1.0.0/16|10.2.0.0/16
//	00:11:22:33:44:55
//	dn:site-a
//
// Addresses without a prefix length are host EIDs.
func Parse(s string) (EID, error) {
	var vni VNI
	rest := s
	if strings.HasPrefix(rest, "[") {
		end := strings.IndexByte(rest, ']')
		if end < 0 {
			return EID{}, serrors.New("unterminated VNI", "input", s)
		}
		v, err := strconv.ParseUint(rest[1:end], 10, 32)
		if err != nil {
			return EID{}, serrors.Wrap("parsing VNI", err, "input", s)
		}
		vni = VNI(v)
		rest = rest[end+1:]
	}
	switch {
	case strings.HasPrefix(rest, "dn:"):
		e := DistinguishedName(vni, strings.TrimPrefix(rest, "dn:"))
		if !e.IsValid() {
			return EID{}, serrors.New("empty distinguished name", "input", s)
		}
		return e, nil
	case strings.Contains(rest, "|"):
		parts := strings.SplitN(rest, "|", 2)
		src, err := parsePrefixOrAddr(parts[0])
		if err != nil {
			return EID{}, serrors.Wrap("parsing source", err, "input", s)
		}
		dst, err := parsePrefixOrAddr(parts[1])
		if err != nil {
			return EID{}, serrors.Wrap("parsing destination", err, "input", s)
		}
		e := SourceDest(vni, src, dst)
		if !e.IsValid() {
			return EID{}, serrors.New("mixed address families", "input", s)
		}
		return e, nil
	}
	if hw, err := net.ParseMAC(rest); err == nil && len(hw) == 6 {
		return MAC(vni, hw), nil
	}
	p, err := parsePrefixOrAddr(rest)
	if err != nil {
		return EID{}, serrors.Wrap("parsing EID", err, "input", s)
	}
	return FromPrefix(vni, p), nil
}

// MustParse is like Parse but panics on error. It is intended for tests and
// static initialization.
func MustParse(s string) EID {
	e, err := Parse(s)
	if err != nil {
		panic(err)
	}
	return e
}

func parsePrefixOrAddr(s string) (netip.Prefix, error) {
	if strings.Contains(s, "/") {
		return netip.ParsePrefix(s)
	}
	a, err := netip.ParseAddr(s)
	if err != nil {
		return netip.Prefix{}, err
	}
	return netip.PrefixFrom(a, a.BitLen()), nil
}

// Compare orders EIDs by VNI, type, prefix and finally the type specific
// value. It is consistent with == on normalized EIDs.
func Compare(a, b EID) int {
	if c := cmp.Compare(a.vni, b.vni); c != 0 {
		return c
	}
	if c := cmp.Compare(a.typ, b.typ); c != 0 {
		return c
	}
	switch a.typ {
	case TypeIPv4, TypeIPv6:
		return netipx.ComparePrefix(a.prefix, b.prefix)
	case TypeSourceDest:
		if c := netipx.ComparePrefix(a.prefix, b.prefix); c != 0 {
			return c
		}
		return netipx.ComparePrefix(a.src, b.src)
	case TypeMAC:
		return bytes.Compare(a.mac[:], b.mac[:])
	case TypeDistinguishedName:
		return strings.Compare(a.name, b.name)
	default:
		return 0
	}
}
