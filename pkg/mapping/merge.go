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

// Merge merges the registration next into the current merged record and
// returns the result. The locator sets are unioned, deduplicated by RLOC.
// For an RLOC present in both, the locator of the more recent registration
// wins. The timestamp of the result is the most recent one, all other
// metadata (TTL, site-ID, xTR-ID, action, ...) is taken from next.
//
// Neither argument is modified. If current is nil, a copy of next is
// returned.
func Merge(current, next *Record) *Record {
	if next == nil {
		return current.Clone()
	}
	if current == nil {
		return next.Clone()
	}
	newer, older := next, current
	if current.Timestamp.After(next.Timestamp) {
		newer, older = current, next
	}
	res := next.Clone()
	res.Locators = make([]Locator, 0, len(current.Locators)+len(next.Locators))
	res.Locators = append(res.Locators, newer.Locators...)
	for _, l := range older.Locators {
		if _, ok := newer.Locator(l.RLOC); !ok {
			res.Locators = append(res.Locators, l)
		}
	}
	res.Timestamp = newer.Timestamp
	return res
}

// MergeAll merges all records in order. It returns nil for an empty input.
func MergeAll(records ...*Record) *Record {
	var res *Record
	for _, r := range records {
		res = Merge(res, r)
	}
	return res
}
