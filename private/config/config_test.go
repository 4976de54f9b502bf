// Copyright 2019 Anapaya Systems
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

package config_test

import (
	"bytes"
	"errors"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lispms/lispms/private/config"
)

type testConfig struct {
	Name  string `toml:"name,omitempty"`
	Count int    `toml:"count,omitempty"`
}

func (c *testConfig) InitDefaults() {
	if c.Count == 0 {
		c.Count = 3
	}
}

func (c *testConfig) Validate() error {
	if c.Name == "" {
		return errors.New("name must be set")
	}
	return nil
}

func (c *testConfig) Sample(dst io.Writer, _ config.Path, _ config.CtxMap) {
	config.WriteString(dst, "name = \"sample\"\n")
}

func TestWriteSample(t *testing.T) {
	var buf bytes.Buffer
	config.WriteSample(&buf, nil, nil,
		config.StringSampler{Text: "a = 1\n\nb = 2\n", Name: "first"},
		config.OverrideName(config.StringSampler{Text: "c = 3\n", Name: "x"}, "second"),
	)
	assert.Equal(t, "\n[first]\n    a = 1\n\n    b = 2\n\n[second]\n    c = 3\n", buf.String())
}

func TestDecode(t *testing.T) {
	var cfg testConfig
	require.NoError(t, config.Decode([]byte(`name = "ms"`), &cfg))
	assert.Equal(t, "ms", cfg.Name)

	err := config.Decode([]byte(`unknown = 1`), &cfg)
	assert.Error(t, err)
}

func TestLoad(t *testing.T) {
	dir := t.TempDir()
	good := filepath.Join(dir, "good.toml")
	require.NoError(t, os.WriteFile(good, []byte(`name = "ms"`), 0o600))
	bad := filepath.Join(dir, "bad.toml")
	require.NoError(t, os.WriteFile(bad, []byte(`count = 1`), 0o600))

	var cfg testConfig
	require.NoError(t, config.Load(good, &cfg))
	assert.Equal(t, 3, cfg.Count)

	assert.Error(t, config.Load(bad, &testConfig{}))
	assert.Error(t, config.Load(filepath.Join(dir, "missing.toml"), &testConfig{}))
}

func TestValidateAll(t *testing.T) {
	assert.NoError(t, config.ValidateAll(&testConfig{Name: "a"}))
	assert.Error(t, config.ValidateAll(&testConfig{Name: "a"}, &testConfig{}))
}
