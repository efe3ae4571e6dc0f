package rest

import (
	"net/http"

	"aboba/core/media/domain"
	"aboba/modules/api/serde"
	"aboba/modules/middleware/problem"
)

// ConfirmUpload records a finished upload. A replay of the same storage key
// or content hash answers 201 with the existing photo.
func (api *MediaAPI) ConfirmUpload(w http.ResponseWriter, r *http.Request) {
	callerID, profileID, ok := caller(w, r)
	if !ok {
		return
	}

	var body ConfirmRequest
	if err := serde.ParseJsonBody(r.Body, &body); err != nil {
		problem.Write(w, problem.Invalid("media", "malformed request body"))
		return
	}

	summary, err := api.app.ConfirmUpload(r.Context(), domain.ConfirmUploadRequest{
		ProfileID:   profileID,
		CallerID:    callerID,
		StorageKey:  body.StorageKey,
		ContentHash: body.Sha256,
		SizeBytes:   body.SizeBytes,
		Mime:        body.Mime,
	})
	if err != nil {
		problem.Write(w, ProblemFromDomainError(err))
		return
	}

	serde.WriteJSON(w, http.StatusCreated, ConfirmResponse{
		PhotoID:    summary.ID,
		IsCover:    summary.IsCover,
		OrderIndex: summary.Position,
		State:      string(summary.State),
		Variants:   []string{},
	})
}
