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
	"strings"

	"github.com/lispms/lispms/pkg/private/serrors"
)

// LookupPolicy selects how northbound and southbound mappings are combined
// on lookup.
type LookupPolicy int

const (
	// NorthboundFirst returns the northbound mapping if there is one and the
	// southbound mapping otherwise.
	NorthboundFirst LookupPolicy = iota
	// NorthboundAndSouthbound only answers with northbound mappings. If a
	// southbound mapping exists as well, the northbound locators are
	// restricted to the ones also registered southbound.
	NorthboundAndSouthbound
)

func (p LookupPolicy) String() string {
	switch p {
	case NorthboundFirst:
		return "northbound_first"
	case NorthboundAndSouthbound:
		return "northbound_and_southbound"
	default:
		return "unknown"
	}
}

// ParseLookupPolicy parses the name of a lookup policy.
func ParseLookupPolicy(s string) (LookupPolicy, error) {
	switch strings.ToLower(s) {
	case "northbound_first":
		return NorthboundFirst, nil
	case "northbound_and_southbound":
		return NorthboundAndSouthbound, nil
	}
	return 0, serrors.New("unknown lookup policy", "policy", s)
}

func (p LookupPolicy) MarshalText() ([]byte, error) {
	return []byte(p.String()), nil
}

func (p *LookupPolicy) UnmarshalText(text []byte) error {
	parsed, err := ParseLookupPolicy(string(text))
	if err != nil {
		return err
	}
	*p = parsed
	return nil
}
