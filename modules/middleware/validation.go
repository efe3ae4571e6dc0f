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
	"context"
	"io/fs"
	"log/slog"
	"net/http"
	"sync"

	"aboba/modules/middleware/problem"

	"github.com/getkin/kin-openapi/openapi3"
	"github.com/getkin/kin-openapi/openapi3filter"
	nethttpmiddleware "github.com/oapi-codegen/nethttp-middleware"
)

// ValidationErrorHandler handles OpenAPI validation errors and writes an appropriate response.
type ValidationErrorHandler func(ctx context.Context, err error, w http.ResponseWriter, r *http.Request, statusCode int)

// SpecLoadErrorHandler handles errors that occur when loading the OpenAPI document.
type SpecLoadErrorHandler func(w http.ResponseWriter, r *http.Request, err error)

var (
	specCacheMu sync.Mutex
	specCache   = make(map[string]*specCacheEntry)
)

type specCacheEntry struct {
	doc *openapi3.T
	err error
}

// LoadSpec parses and validates the document at specPath once per path.
func LoadSpec(fsys fs.FS, specPath string) (*openapi3.T, error) {
	specCacheMu.Lock()
	defer specCacheMu.Unlock()

	if entry, ok := specCache[specPath]; ok {
		return entry.doc, entry.err
	}

	doc, err := loadSpec(fsys, specPath)
	specCache[specPath] = &specCacheEntry{doc: doc, err: err}
	return doc, err
}

func loadSpec(fsys fs.FS, specPath string) (*openapi3.T, error) {
	data, err := fs.ReadFile(fsys, specPath)
	if err != nil {
		return nil, err
	}

	loader := openapi3.NewLoader()
	doc, err := loader.LoadFromData(data)
	if err != nil {
		return nil, err
	}
	if err := doc.Validate(loader.Context); err != nil {
		return nil, err
	}
	return doc, nil
}

// OpenAPIValidation creates a middleware that validates requests against an OpenAPI document.
// Security requirements are left to the session middleware.
func OpenAPIValidation(
	specFS fs.FS,
	specPath string,
	errorHandler ValidationErrorHandler,
	loadErrorHandler SpecLoadErrorHandler,
) func(http.Handler) http.Handler {
	spec, err := LoadSpec(specFS, specPath)
	if err != nil {
		return func(next http.Handler) http.Handler {
			return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				loadErrorHandler(w, r, err)
			})
		}
	}

	opts := &nethttpmiddleware.Options{
		Options: openapi3filter.Options{
			MultiError:         true,
			AuthenticationFunc: openapi3filter.NoopAuthenticationFunc,
		},
		DoNotValidateServers:  true,
		SilenceServersWarning: true,
		ErrorHandlerWithOpts: func(ctx context.Context, err error, w http.ResponseWriter, r *http.Request, eopts nethttpmiddleware.ErrorHandlerOpts) {
			status := eopts.StatusCode
			if status == 0 {
				status = http.StatusBadRequest
			}
			errorHandler(ctx, err, w, r, status)
		},
	}

	return nethttpmiddleware.OapiRequestValidatorWithOptions(spec, opts)
}

// ProblemValidationErrorHandler answers with a problem document whose code is
// prefix + ".invalid", listing each offending field.
func ProblemValidationErrorHandler(prefix string) ValidationErrorHandler {
	return func(ctx context.Context, err error, w http.ResponseWriter, r *http.Request, statusCode int) {
		slog.DebugContext(ctx, "request validation failed",
			slog.String("method", r.Method),
			slog.String("path", r.URL.Path),
			slog.Any("error", err),
		)

		opts := []problem.Option{
			problem.WithStatus(statusCode),
			problem.WithTitle(http.StatusText(statusCode)),
			problem.WithDetail("request does not match the API contract"),
			problem.WithCode(prefix + ".invalid"),
		}
		if statusCode == http.StatusNotFound {
			opts = append(opts, problem.WithCode(problem.CodeRouteNotFound))
		}
		for _, ve := range ExtractValidationErrors(err) {
			opts = append(opts, problem.WithInvalidParam(ve.Field, ve.Reason))
		}
		problem.Write(w, problem.New(opts...))
	}
}

// ProblemSpecLoadErrorHandler answers every request with a 500 problem.
func ProblemSpecLoadErrorHandler(w http.ResponseWriter, r *http.Request, err error) {
	slog.ErrorContext(r.Context(), "openapi document failed to load", slog.Any("error", err))
	problem.Write(w, problem.Internal("api contract unavailable", problem.WithCode(problem.CodeInternal), problem.WithTraceContext(r.Context())))
}
