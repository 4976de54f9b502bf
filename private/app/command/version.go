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

package command

import (
	"fmt"
	"runtime"
	"runtime/debug"

	"github.com/spf13/cobra"
)

// Version returns the version of the main module. It is "(devel)" for
// binaries built from a working tree.
func Version() string {
	info, ok := debug.ReadBuildInfo()
	if !ok || info.Main.Version == "" {
		return "(devel)"
	}
	return info.Main.Version
}

// NewVersion returns a command that prints the version.
func NewVersion(pather Pather) *cobra.Command {
	var cmd = &cobra.Command{
		Use:     "version",
		Short:   "Show the version information",
		Example: "  " + pather.CommandPath() + " version",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cmd.SilenceUsage = true
			_, err := fmt.Fprintf(cmd.OutOrStdout(), "%s %s (%s/%s, %s)\n",
				cmd.Root().Name(), Version(), runtime.GOOS, runtime.GOARCH, runtime.Version())
			return err
		},
	}
	return cmd
}
