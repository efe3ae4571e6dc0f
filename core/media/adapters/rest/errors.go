package rest

import (
	"errors"

	"aboba/core/media/domain"
	"aboba/modules/middleware/problem"
)

// ProblemFromDomainError maps an Ingestion Service error to a problem document.
// Unknown errors become a 500 without detail.
func ProblemFromDomainError(err error) *problem.Problem {
	switch {
	case errors.Is(err, domain.ErrProfileNotFound):
		return problem.NotFound("profile not found", problem.WithCode("profiles.not_found"))
	case errors.Is(err, domain.ErrPhotoNotFound):
		return problem.NotFound("photo not found", problem.WithCode("media.not_found"))
	case errors.Is(err, domain.ErrUnsupportedMime):
		return problem.BadRequest("unsupported media type",
			problem.WithCode("media.unsupported_mime"),
			problem.WithInvalidParam("mime", "must be one of image/jpeg, image/png, image/webp"),
		)
	case errors.Is(err, domain.ErrSizeOutOfRange):
		return problem.BadRequest("declared size out of range",
			problem.WithCode("media.size_too_large"),
			problem.WithInvalidParam("sizeBytes", "must be positive and within the upload limit"),
		)
	case errors.Is(err, domain.ErrInvalidInput):
		return problem.Invalid("media", "invalid media request")
	case errors.Is(err, domain.ErrNothingToUpdate):
		return problem.BadRequest("provide isCover or orderIndex", problem.WithCode("media.nothing_to_update"))
	case errors.Is(err, domain.ErrAllocationExhausted):
		return problem.Unavailable("photo allocation is contended, retry later", problem.WithCode("media.busy"))
	default:
		return problem.ServerError()
	}
}
