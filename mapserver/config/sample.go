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

package config

const mappingSample = `
# Merge the registrations of different xTRs for the same EID prefix.
# (default false)
merge = false

# Validity of a registration. Registrations that are not refreshed are
# removed after this time. (default 3m)
registration_ttl = "3m"

# Number of buckets of the expiry wheel. More buckets evict registrations
# closer to their expiry. (default 4)
buckets = 4

# Period of the expiry wheel rotation. (default 1s)
rotation_interval = "1s"

# How northbound and southbound mappings are combined on lookup
# (northbound_first|northbound_and_southbound). (default northbound_first)
lookup_policy = "northbound_first"

# Northbound mapping cache (multitable|flat). The flat cache only supports
# exact lookups. (default multitable)
northbound_cache = "multitable"

# Track requesters and send Solicit-Map-Requests when mappings change.
# (default false)
smr = false

# Number of cached widest negative prefixes. A negative value disables the
# cache. (default 1024)
negative_cache_size = 1024

# Maximum age of a cached negative prefix. If 0, cached prefixes are only
# invalidated by mapping changes. (default 0s)
negative_ttl = "0s"
`
