// Copyright 2018 ETH Zurich
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

package util

import (
	"regexp"
	"strconv"
	"time"

	"github.com/lispms/lispms/pkg/private/serrors"
)

var durationUnits = []struct {
	suffix string
	dur    time.Duration
}{
	{"w", 7 * 24 * time.Hour},
	{"d", 24 * time.Hour},
	{"h", time.Hour},
	{"m", time.Minute},
	{"s", time.Second},
	{"ms", time.Millisecond},
	{"us", time.Microsecond},
	{"ns", time.Nanosecond},
}

var durationRegexp = regexp.MustCompile(`^(-?\d+)(w|d|h|m|s|ms|us|µs|ns)$`)

// ParseDuration parses a duration consisting of a single integer and a unit,
// e.g. "15m" or "3d". Supported units are w, d, h, m, s, ms, us (µs) and ns.
func ParseDuration(s string) (time.Duration, error) {
	matches := durationRegexp.FindStringSubmatch(s)
	if matches == nil {
		return 0, serrors.New("invalid duration", "input", s)
	}
	n, err := strconv.ParseInt(matches[1], 10, 64)
	if err != nil {
		return 0, serrors.Wrap("parsing duration quantity", err, "input", s)
	}
	unit := matches[2]
	if unit == "µs" {
		unit = "us"
	}
	for _, u := range durationUnits {
		if u.suffix == unit {
			return time.Duration(n) * u.dur, nil
		}
	}
	return 0, serrors.New("unknown duration unit", "input", s)
}

// FmtDuration formats d with the largest unit that represents it exactly,
// such that ParseDuration(FmtDuration(d)) == d.
func FmtDuration(d time.Duration) string {
	if d == 0 {
		return "0s"
	}
	for _, u := range durationUnits {
		if d%u.dur == 0 {
			return strconv.FormatInt(int64(d/u.dur), 10) + u.suffix
		}
	}
	return strconv.FormatInt(int64(d), 10) + "ns"
}
