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

// Package config contains the configuration of the map server.
package config

import (
	"io"
	"time"

	"github.com/lispms/lispms/mapserver/mapsystem"
	"github.com/lispms/lispms/pkg/log"
	"github.com/lispms/lispms/pkg/private/serrors"
	"github.com/lispms/lispms/pkg/private/util"
	"github.com/lispms/lispms/private/config"
	"github.com/lispms/lispms/private/env"
	"github.com/lispms/lispms/private/mapcache"
	api "github.com/lispms/lispms/private/mgmtapi"
)

const (
	// DefaultRotationInterval is the period of the expiry wheel rotation.
	DefaultRotationInterval = time.Second
	// DefaultNegativeCacheSize is the number of cached negative prefixes.
	DefaultNegativeCacheSize = 1024
)

var _ config.Config = (*Config)(nil)

// Config is the map server configuration.
type Config struct {
	General env.General `toml:"general,omitempty"`
	Logging log.Config  `toml:"log,omitempty"`
	Metrics env.Metrics `toml:"metrics,omitempty"`
	API     api.Config  `toml:"api,omitempty"`
	Mapping Mapping     `toml:"mapping,omitempty"`
}

func (cfg *Config) InitDefaults() {
	config.InitAll(
		&cfg.General,
		&cfg.Logging,
		&cfg.Metrics,
		&cfg.API,
		&cfg.Mapping,
	)
}

func (cfg *Config) Validate() error {
	return config.ValidateAll(
		&cfg.General,
		&cfg.Logging,
		&cfg.Metrics,
		&cfg.API,
		&cfg.Mapping,
	)
}

func (cfg *Config) Sample(dst io.Writer, path config.Path, _ config.CtxMap) {
	config.WriteSample(dst, path, config.CtxMap{config.ID: "ms-1"},
		&cfg.General,
		&cfg.Logging,
		&cfg.Metrics,
		&cfg.API,
		&cfg.Mapping,
	)
}

var _ config.Config = (*Mapping)(nil)

// Mapping configures the mapping database.
type Mapping struct {
	// Merge enables merging the registrations of different xTRs for the
	// same EID prefix.
	Merge bool `toml:"merge,omitempty"`
	// RegistrationTTL is the validity of a registration.
	RegistrationTTL util.DurWrap `toml:"registration_ttl,omitempty"`
	// Buckets is the number of expiry wheel buckets.
	Buckets int `toml:"buckets,omitempty"`
	// RotationInterval is the period of the expiry wheel rotation.
	RotationInterval util.DurWrap `toml:"rotation_interval,omitempty"`
	// LookupPolicy selects how northbound and southbound mappings are
	// combined.
	LookupPolicy mapsystem.LookupPolicy `toml:"lookup_policy,omitempty"`
	// NorthboundCache selects the northbound cache (multitable|flat).
	NorthboundCache mapcache.Tier `toml:"northbound_cache,omitempty"`
	// SMR enables Solicit-Map-Request subscriber tracking.
	SMR bool `toml:"smr,omitempty"`
	// NegativeCacheSize is the number of cached negative prefixes. A
	// negative value disables the cache.
	NegativeCacheSize int `toml:"negative_cache_size,omitempty"`
	// NegativeTTL bounds the age of cached negative prefixes. Zero means
	// cached prefixes are only invalidated by writes.
	NegativeTTL util.DurWrap `toml:"negative_ttl,omitempty"`
}

func (cfg *Mapping) InitDefaults() {
	if cfg.RegistrationTTL.Duration == 0 {
		cfg.RegistrationTTL.Duration = mapsystem.DefaultRegistrationTTL
	}
	if cfg.Buckets == 0 {
		cfg.Buckets = mapsystem.DefaultBuckets
	}
	if cfg.RotationInterval.Duration == 0 {
		cfg.RotationInterval.Duration = DefaultRotationInterval
	}
	if cfg.NegativeCacheSize == 0 {
		cfg.NegativeCacheSize = DefaultNegativeCacheSize
	}
}

func (cfg *Mapping) Validate() error {
	switch {
	case cfg.RegistrationTTL.Duration <= 0:
		return serrors.New("registration_ttl must be positive", "value", cfg.RegistrationTTL)
	case cfg.Buckets < 2:
		return serrors.New("buckets must be at least 2", "value", cfg.Buckets)
	case cfg.RotationInterval.Duration <= 0:
		return serrors.New("rotation_interval must be positive", "value", cfg.RotationInterval)
	case cfg.NegativeTTL.Duration < 0:
		return serrors.New("negative_ttl must not be negative", "value", cfg.NegativeTTL)
	case cfg.NorthboundCache == mapcache.TierSimple:
		return serrors.New("northbound_cache must be multitable or flat",
			"value", cfg.NorthboundCache)
	}
	return nil
}

func (cfg *Mapping) Sample(dst io.Writer, _ config.Path, _ config.CtxMap) {
	config.WriteString(dst, mappingSample)
}

func (cfg *Mapping) ConfigName() string {
	return "mapping"
}

// MapSystem returns the map system configuration. Clock, logger,
// collaborators and metrics are left for the caller to fill in.
func (cfg *Mapping) MapSystem() mapsystem.Config {
	return mapsystem.Config{
		MappingMerge:      cfg.Merge,
		RegistrationTTL:   cfg.RegistrationTTL.Duration,
		Buckets:           cfg.Buckets,
		LookupPolicy:      cfg.LookupPolicy,
		NorthboundTier:    cfg.NorthboundCache,
		SMR:               cfg.SMR,
		NegativeCacheSize: max(cfg.NegativeCacheSize, 0),
		NegativeTTL:       cfg.NegativeTTL.Duration,
	}
}
