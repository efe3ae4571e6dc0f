package rest

import (
	"net/http"

	"aboba/modules/api/serde"
	"aboba/modules/middleware/problem"
)

// ListPhotos returns the profile's photos ordered by position. Variant links
// are freshly signed on every call and only present for processed photos.
func (api *MediaAPI) ListPhotos(w http.ResponseWriter, r *http.Request) {
	callerID, profileID, ok := caller(w, r)
	if !ok {
		return
	}

	summaries, err := api.app.ListPhotos(r.Context(), profileID, callerID)
	if err != nil {
		problem.Write(w, ProblemFromDomainError(err))
		return
	}

	// signed links must not outlive their TTL in a shared cache
	w.Header().Set("Cache-Control", "private, no-store")
	serde.WriteJSON(w, http.StatusOK, mapPhotoItems(summaries))
}
