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

package main

import (
	"bytes"
	"context"
	"encoding/json"
	"net"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lispms/lispms/mapserver/config"
	"github.com/lispms/lispms/mapserver/mapsystem"
	libconfig "github.com/lispms/lispms/private/config"
)

func TestSampleCommand(t *testing.T) {
	cmd := newCommand()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetArgs([]string{"sample"})
	require.NoError(t, cmd.Execute())

	var cfg config.Config
	require.NoError(t, libconfig.Decode(out.Bytes(), &cfg))
	cfg.InitDefaults()
	assert.NoError(t, cfg.Validate())
}

func TestRunRequiresConfig(t *testing.T) {
	cmd := newCommand()
	cmd.SetOut(&bytes.Buffer{})
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs([]string{"run"})
	assert.Error(t, cmd.Execute())
}

func freeAddr(t *testing.T) string {
	t.Helper()
	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer l.Close()
	return l.Addr().String()
}

func TestRealMain(t *testing.T) {
	var cfg config.Config
	cfg.InitDefaults()
	cfg.General.ID = "ms-test"
	cfg.API.Addr = freeAddr(t)
	require.NoError(t, cfg.Validate())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	errs := make(chan error, 1)
	go func() { errs <- realMain(ctx, &cfg) }()

	var status mapsystem.Status
	require.Eventually(t, func() bool {
		resp, err := http.Get("http://" + cfg.API.Addr + "/status")
		if err != nil {
			return false
		}
		defer resp.Body.Close()
		return json.NewDecoder(resp.Body).Decode(&status) == nil
	}, 5*time.Second, 50*time.Millisecond)
	assert.Equal(t, mapsystem.Status{}, status)

	cancel()
	select {
	case err := <-errs:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("map server did not stop")
	}
}
