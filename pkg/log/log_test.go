// Copyright 2020 Anapaya Systems
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

package log_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lispms/lispms/pkg/log"
	"github.com/lispms/lispms/pkg/log/testlog"
)

func TestParseLevel(t *testing.T) {
	testCases := map[string]struct {
		input     string
		want      log.Level
		assertErr assert.ErrorAssertionFunc
	}{
		"debug":   {input: "debug", want: log.DebugLevel, assertErr: assert.NoError},
		"upper":   {input: "INFO", want: log.InfoLevel, assertErr: assert.NoError},
		"empty":   {input: "", want: log.InfoLevel, assertErr: assert.NoError},
		"crit":    {input: "crit", want: log.ErrorLevel, assertErr: assert.NoError},
		"garbage": {input: "loud", want: log.InfoLevel, assertErr: assert.Error},
	}
	for name, tc := range testCases {
		t.Run(name, func(t *testing.T) {
			got, err := log.ParseLevel(tc.input)
			tc.assertErr(t, err)
			assert.Equal(t, tc.want, got)
		})
	}
}

func TestConfigValidate(t *testing.T) {
	var cfg log.Config
	cfg.InitDefaults()
	require.NoError(t, cfg.Validate())
	assert.Equal(t, log.DefaultConsoleLevel, cfg.Console.Level)

	cfg.Console.Format = "xml"
	assert.Error(t, cfg.Validate())
}

func TestFromCtx(t *testing.T) {
	logger, logs := testlog.NewObserved(log.DebugLevel)
	ctx := log.CtxWith(context.Background(), logger)

	ctx, labeled := log.WithLabels(ctx, "vni", 10)
	labeled.Info("hello", "eid", "10.0.0.0/8")
	log.FromCtx(ctx).Debug("again")

	entries := logs.All()
	require.Len(t, entries, 2)
	assert.Equal(t, "hello", entries[0].Message)
	assert.Equal(t, int64(10), entries[0].ContextMap()["vni"])
	assert.Equal(t, "10.0.0.0/8", entries[0].ContextMap()["eid"])
	assert.Equal(t, int64(10), entries[1].ContextMap()["vni"])

	assert.NotNil(t, log.FromCtx(context.Background()))
}
