package domain

import "errors"

var (
	ErrProfileNotFound = errors.New("profile not found")
	ErrPhotoNotFound   = errors.New("photo not found")

	ErrUnsupportedMime = errors.New("unsupported media type")
	ErrSizeOutOfRange  = errors.New("declared size out of range")
	ErrInvalidInput    = errors.New("invalid input for media operation")
	ErrNothingToUpdate = errors.New("no updatable field provided")

	// store constraint violations, consumed by the allocation retry loop
	ErrDuplicatePhoto = errors.New("photo with the same storage key or content hash already exists")
	ErrPositionTaken  = errors.New("position already taken for profile")
	ErrCoverTaken     = errors.New("profile already has a cover photo")

	ErrAllocationExhausted = errors.New("could not allocate a free photo position")

	ErrBlobNotFound = errors.New("blob not found")

	// ErrPermanent marks worker failures that must not be retried.
	ErrPermanent = errors.New("permanent processing failure")

	// ErrRejectedContent is returned by a Transformer when the payload fails scanning.
	ErrRejectedContent = errors.New("content rejected by scanner")

	ErrUnhandled = errors.New("unexpected error")
)
