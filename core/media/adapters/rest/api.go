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

// Package rest exposes the Ingestion Service over HTTP.
package rest

import (
	"net/http"

	"aboba/core/media/domain"
	"aboba/modules/api/serde"
	"aboba/modules/auth"
	"aboba/modules/middleware/problem"
)

// MediaAPI translates HTTP requests on /v1/me/profiles/{id}/photos into
// Ingestion Service calls. Every handler expects the session middleware to
// have put the caller id on the request context.
type MediaAPI struct {
	app *domain.Application
}

func NewMediaAPI(app *domain.Application) *MediaAPI {
	return &MediaAPI{app: app}
}

// caller resolves the session user and the profile path id, writing the
// problem response itself when either is missing.
func caller(w http.ResponseWriter, r *http.Request) (callerID, profileID int64, ok bool) {
	callerID, ok = auth.CallerID(r.Context())
	if !ok {
		problem.Write(w, problem.Unauthenticated("missing session"))
		return 0, 0, false
	}
	profileID, err := serde.PathID(r, "id")
	if err != nil {
		problem.Write(w, problem.BadRequest("invalid profile id",
			problem.WithCode("profiles.invalid_id"),
			problem.WithInvalidParam("id", "must be a positive integer"),
		))
		return 0, 0, false
	}
	return callerID, profileID, true
}
