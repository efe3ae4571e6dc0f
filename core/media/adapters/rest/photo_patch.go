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
	"errors"
	"net/http"

	"aboba/core/media/domain"
	"aboba/modules/api/serde"
	"aboba/modules/middleware/problem"
)

// PatchPhoto sets the cover flag and/or order index of one photo (PATCH semantics).
// Returns 200 with the settled values, 400 when neither field is given, 404
// when the profile or photo is not found.
func (api *MediaAPI) PatchPhoto(w http.ResponseWriter, r *http.Request) {
	callerID, profileID, ok := caller(w, r)
	if !ok {
		return
	}
	photoID, err := serde.PathID(r, "photoId")
	if err != nil {
		problem.Write(w, problem.BadRequest("invalid photo id",
			problem.WithCode("media.invalid_id"),
			problem.WithInvalidParam("photoId", "must be a positive integer"),
		))
		return
	}

	var body PatchRequest
	if err := serde.ParseJsonBody(r.Body, &body); err != nil {
		problem.Write(w, problem.Invalid("media", "malformed request body"))
		return
	}

	updated, err := api.app.PatchPhoto(r.Context(), domain.PatchPhotoRequest{
		ProfileID:  profileID,
		PhotoID:    photoID,
		CallerID:   callerID,
		IsCover:    optional(body.IsCover),
		OrderIndex: optional(body.OrderIndex),
	})
	if err != nil {
		prob := ProblemFromDomainError(err)
		if errors.Is(err, domain.ErrInvalidInput) {
			prob.With(problem.WithInvalidParam("orderIndex", "must be a finite number between -1000000 and 1000000"))
		}
		problem.Write(w, prob)
		return
	}

	serde.WriteJSON(w, http.StatusOK, PatchResponse{
		PhotoID:    updated.ID,
		IsCover:    updated.IsCover,
		OrderIndex: updated.Position,
	})
}
