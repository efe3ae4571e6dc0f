// Package rest exposes profile readiness, submission and service health
// over HTTP.
package rest

import (
	"errors"
	"net/http"

	"aboba/core/profile/domain"
	"aboba/modules/api/serde"
	"aboba/modules/auth"
	"aboba/modules/middleware/problem"
)

type (
	ProfileAPI struct {
		app *domain.Application
	}

	ReadinessResponse struct {
		OK      bool     `json:"ok"`
		Reasons []string `json:"reasons"`
	}

	SubmitResponse struct {
		Status string `json:"status"`
	}
)

func NewProfileAPI(app *domain.Application) *ProfileAPI {
	return &ProfileAPI{app: app}
}

// GetReadiness reports whether the caller's profile may be submitted.
func (api *ProfileAPI) GetReadiness(w http.ResponseWriter, r *http.Request) {
	callerID, profileID, ok := caller(w, r)
	if !ok {
		return
	}

	readiness, err := api.app.Readiness(r.Context(), profileID, callerID)
	if err != nil {
		problem.Write(w, ProblemFromDomainError(err))
		return
	}
	reasons := readiness.Reasons
	if reasons == nil {
		reasons = []string{}
	}
	serde.WriteJSON(w, http.StatusOK, ReadinessResponse{OK: readiness.OK, Reasons: reasons})
}

// SubmitProfile queues the profile for moderation.
func (api *ProfileAPI) SubmitProfile(w http.ResponseWriter, r *http.Request) {
	callerID, profileID, ok := caller(w, r)
	if !ok {
		return
	}

	p, err := api.app.SubmitProfile(r.Context(), profileID, callerID)
	if err != nil {
		problem.Write(w, ProblemFromDomainError(err))
		return
	}
	serde.WriteJSON(w, http.StatusAccepted, SubmitResponse{Status: string(p.Status)})
}

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

func ProblemFromDomainError(err error) *problem.Problem {
	var notReady *domain.NotReadyError
	switch {
	case errors.Is(err, domain.ErrProfileNotFound):
		return problem.NotFound("profile not found", problem.WithCode("profiles.not_found"))
	case errors.Is(err, domain.ErrInvalidState):
		return problem.BadRequest("profile status does not allow submission", problem.WithCode("profiles.invalid_state"))
	case errors.As(err, &notReady):
		return problem.BadRequest("profile is not ready to submit",
			problem.WithCode("profiles.not_ready_to_submit"),
			problem.WithExtension("reasons", notReady.Reasons),
		)
	default:
		return problem.ServerError()
	}
}
