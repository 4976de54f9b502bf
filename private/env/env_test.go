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

package env_test

import (
	"bytes"
	"context"
	"net"
	"testing"

	"github.com/pelletier/go-toml/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lispms/lispms/private/config"
	"github.com/lispms/lispms/private/env"
)

func decode(t *testing.T, raw []byte, cfg any) {
	t.Helper()
	err := toml.NewDecoder(bytes.NewReader(raw)).DisallowUnknownFields().Decode(cfg)
	require.NoError(t, err)
}

func TestGeneralSample(t *testing.T) {
	var sample bytes.Buffer
	var cfg env.General
	cfg.Sample(&sample, nil, config.CtxMap{config.ID: "ms-1"})
	decode(t, sample.Bytes(), &cfg)
	cfg.InitDefaults()
	assert.Equal(t, "ms-1", cfg.ID)
	assert.NoError(t, cfg.Validate())
	assert.Error(t, (&env.General{}).Validate())
}

func TestMetricsSample(t *testing.T) {
	var sample bytes.Buffer
	var cfg env.Metrics
	cfg.Sample(&sample, nil, nil)
	decode(t, sample.Bytes(), &cfg)
	assert.Empty(t, cfg.Prometheus)
	assert.NoError(t, cfg.Validate())
}

func TestServePrometheusDisabled(t *testing.T) {
	var cfg env.Metrics
	assert.NoError(t, cfg.ServePrometheus(context.Background()))
}

func TestServePrometheusStops(t *testing.T) {
	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := l.Addr().String()
	require.NoError(t, l.Close())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	cfg := env.Metrics{Prometheus: addr}
	assert.NoError(t, cfg.ServePrometheus(ctx))
}
