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

// Package prom contains the label names and values shared by the map server
// metrics.
package prom

// Label names.
const (
	// LabelResult is the label for result classifications.
	LabelResult = "result"
	// LabelOperation is the label for the name of an executed operation.
	LabelOperation = "op"
	// LabelOrigin is the label for the origin of a mapping.
	LabelOrigin = "origin"
	// LabelReason is the label for the reason of a removal.
	LabelReason = "reason"
)

// Result values.
const (
	Success = "ok"
	Error   = "err"
	Hit     = "hit"
	Miss    = "miss"
	Cached  = "cached"
	// Computed is the result of a lookup that missed a cache.
	Computed = "computed"
)

// Removal reasons.
const (
	ReasonRequest = "request"
	ReasonExpired = "expired"
)
