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

// Package command contains the cobra commands shared by the map server
// binaries.
package command

// Pather returns the command path of the parent command. It is used to
// render examples that refer to the full command.
type Pather interface {
	CommandPath() string
}

// StringPather is a static Pather.
type StringPather string

func (s StringPather) CommandPath() string {
	return string(s)
}

