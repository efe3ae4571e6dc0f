// Copyright 2025 Nhat-Nguyen Nguyen
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package serde

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"regexp"
	"strconv"

	"github.com/oapi-codegen/runtime"
)

var ErrInvalidID = errors.New("id must be a positive decimal integer")

var decimalID = regexp.MustCompile(`^\d+$`)

// ParseJsonBody decodes a single JSON document and rejects unknown fields.
func ParseJsonBody[T any](body io.ReadCloser, valuePtr *T) error {
	defer body.Close()
	dec := json.NewDecoder(body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(valuePtr); err != nil {
		return err
	}
	if dec.More() {
		return errors.New("request body must contain a single JSON document")
	}
	return nil
}

func WriteJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// PathID binds the named path wildcard as a simple-style parameter and parses
// it as a positive int64. Signs, spaces and leading "+" are rejected.
func PathID(r *http.Request, name string) (int64, error) {
	var raw string
	err := runtime.BindStyledParameterWithOptions("simple", name, r.PathValue(name), &raw, runtime.BindStyledParameterOptions{
		ParamLocation: runtime.ParamLocationPath,
		Explode:       false,
		Required:      true,
	})
	if err != nil {
		return 0, fmt.Errorf("%s: %w", name, ErrInvalidID)
	}
	if !decimalID.MatchString(raw) {
		return 0, fmt.Errorf("%s: %w", name, ErrInvalidID)
	}
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("%s: %w", name, ErrInvalidID)
	}
	return id, nil
}
