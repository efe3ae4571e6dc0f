// Copyright 2025 Nguyen Nhat Nguyen
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

package middleware

import (
	"errors"
	"strings"

	"github.com/getkin/kin-openapi/openapi3"
	"github.com/getkin/kin-openapi/openapi3filter"
)

// ValidationError is one offending field and a reason that never echoes input.
type ValidationError struct {
	Field  string
	Reason string
}

// ExtractValidationErrors flattens an OpenAPI validation error into field/reason pairs.
func ExtractValidationErrors(err error) []ValidationError {
	var multi openapi3.MultiError
	if errors.As(err, &multi) {
		var out []ValidationError
		for _, item := range multi {
			out = append(out, ExtractValidationErrors(item)...)
		}
		return out
	}
	return []ValidationError{extractSingleError(err)}
}

func extractSingleError(err error) ValidationError {
	var re *openapi3filter.RequestError
	if errors.As(err, &re) {
		var se *openapi3.SchemaError
		if errors.As(re.Err, &se) {
			if re.Parameter != nil {
				return ValidationError{Field: re.Parameter.Name, Reason: se.Reason}
			}
			return ValidationError{Field: fieldFromPointer(se.JSONPointer()), Reason: se.Reason}
		}
		if re.Parameter != nil {
			return ValidationError{Field: re.Parameter.Name, Reason: SafeReason(re.Reason)}
		}
		return ValidationError{Field: "body", Reason: SafeReason(re.Reason)}
	}

	var se *openapi3.SchemaError
	if errors.As(err, &se) {
		return ValidationError{Field: fieldFromPointer(se.JSONPointer()), Reason: se.Reason}
	}

	var sre *openapi3filter.SecurityRequirementsError
	if errors.As(err, &sre) {
		return ValidationError{Field: "authorization", Reason: "missing or invalid credentials"}
	}

	return ValidationError{Field: "request", Reason: "invalid value"}
}

// fieldFromPointer keeps the top-level property of a JSON pointer.
func fieldFromPointer(ptr []string) string {
	if len(ptr) == 0 || ptr[0] == "" || ptr[0] == "0" {
		return "body"
	}
	return ptr[0]
}

// SafeReason reduces verbose reasons to avoid reflecting input data back to the client.
func SafeReason(reason string) string {
	if reason == "" {
		return "invalid value"
	}
	lower := strings.ToLower(reason)
	switch {
	case strings.Contains(lower, "doesn't match schema"):
		return "doesn't match schema"
	case strings.Contains(lower, "must be one of"):
		return reason
	case strings.Contains(lower, "value is required"), strings.Contains(lower, "body is required"):
		return "value is required"
	}
	return "invalid value"
}
