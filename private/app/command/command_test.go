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

package command_test

import (
	"bytes"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lispms/lispms/private/app/command"
	"github.com/lispms/lispms/private/config"
)

func newRoot(t *testing.T) (*cobra.Command, *bytes.Buffer) {
	t.Helper()
	root := &cobra.Command{Use: "ms", Short: "Test root"}
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(io.Discard)
	root.AddCommand(
		command.NewVersion(root),
		command.NewSample(root, config.StringSampler{Text: "id = \"x\"\n", Name: "general"}),
		command.NewGendocs(root),
	)
	return root, &out
}

func TestVersion(t *testing.T) {
	root, out := newRoot(t)
	root.SetArgs([]string{"version"})
	require.NoError(t, root.Execute())
	assert.Contains(t, out.String(), "ms ")

	root.SetArgs([]string{"version", "extra"})
	assert.Error(t, root.Execute())
}

func TestSample(t *testing.T) {
	root, out := newRoot(t)
	root.SetArgs([]string{"sample"})
	require.NoError(t, root.Execute())
	assert.Equal(t, "\n[general]\n    id = \"x\"\n", out.String())
}

func TestGendocs(t *testing.T) {
	root, _ := newRoot(t)
	dir := filepath.Join(t.TempDir(), "docs")
	root.SetArgs([]string{"gendocs", dir})
	require.NoError(t, root.Execute())

	for _, name := range []string{"ms.md", "ms_version.md", "ms_sample.md"} {
		raw, err := os.ReadFile(filepath.Join(dir, name))
		require.NoError(t, err, name)
		assert.Contains(t, string(raw), "# ", name)
	}
	// Hidden commands are not documented.
	_, err := os.Stat(filepath.Join(dir, "ms_gendocs.md"))
	assert.True(t, os.IsNotExist(err))
}

func TestStringPather(t *testing.T) {
	assert.Equal(t, "ms run", command.StringPather("ms run").CommandPath())
}
