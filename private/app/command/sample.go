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
	"github.com/spf13/cobra"

	"github.com/lispms/lispms/private/config"
)

// NewSample returns a command that prints a sample configuration. The
// sample is composed of the given samplers.
func NewSample(pather Pather, samplers ...config.Sampler) *cobra.Command {
	var cmd = &cobra.Command{
		Use:     "sample",
		Short:   "Display sample configuration",
		Example: "  " + pather.CommandPath() + " sample > ms.toml",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cmd.SilenceUsage = true
			config.WriteSample(cmd.OutOrStdout(), nil, nil, samplers...)
			return nil
		},
	}
	return cmd
}
