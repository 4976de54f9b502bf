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

package mgmtapi

import (
	"encoding/json"
	"net/http"
)

// Problem types.
const (
	InternalError = "/problems/internal-error"
	BadRequest    = "/problems/bad-request"
	NotFound      = "/problems/not-found"
)

// Problem is an error response as described in RFC 7807.
type Problem struct {
	// Detail is a human readable explanation of this occurrence of the
	// problem.
	Detail *string `json:"detail,omitempty"`
	// Status is the HTTP status code.
	Status int `json:"status"`
	// Title is a short summary of the problem type.
	Title string `json:"title"`
	// Type identifies the problem type.
	Type *string `json:"type,omitempty"`
}

// StringRef returns a pointer to s.
func StringRef(s string) *string {
	return &s
}

// ErrorResponse writes the problem as response.
func ErrorResponse(w http.ResponseWriter, p Problem) {
	w.Header().Set("Content-Type", "application/problem+json")
	w.WriteHeader(p.Status)
	enc := json.NewEncoder(w)
	enc.SetIndent("", "    ")
	// no point in catching error here, there is nothing we can do about it anymore.
	_ = enc.Encode(p)
}
