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

package rest

import (
	"net/http"

	"aboba/core/media/domain"
	"aboba/modules/api/serde"
	"aboba/modules/middleware/problem"
)

// CreateUploadURL issues a presigned POST for a new original.
// Returns 200 with the grant, 400 on an unsupported mime or size, 404 if the
// profile is not the caller's.
func (api *MediaAPI) CreateUploadURL(w http.ResponseWriter, r *http.Request) {
	callerID, profileID, ok := caller(w, r)
	if !ok {
		return
	}

	var body UploadURLRequest
	if err := serde.ParseJsonBody(r.Body, &body); err != nil {
		problem.Write(w, problem.Invalid("media", "malformed request body"))
		return
	}

	grant, err := api.app.IssueUploadGrant(r.Context(), domain.UploadGrantRequest{
		ProfileID: profileID,
		CallerID:  callerID,
		Mime:      body.Mime,
		SizeBytes: body.SizeBytes,
	})
	if err != nil {
		problem.Write(w, ProblemFromDomainError(err))
		return
	}

	serde.WriteJSON(w, http.StatusOK, UploadURLResponse{
		Upload: UploadTarget{
			URL:       grant.URL,
			Fields:    grant.Fields,
			Key:       grant.TemporaryKey,
			ExpiresAt: grant.ExpiresAt.UTC(),
		},
		Constraints: UploadConstraints{
			MaxBytes:    grant.MaxBytes,
			AllowedMime: grant.AllowedMimes,
		},
	})
}
