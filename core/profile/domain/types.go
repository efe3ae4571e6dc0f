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

package domain

import "time"

type Status string

const (
	StatusDraft             Status = "draft"
	StatusNeedsFix          Status = "needs_fix"
	StatusSubmitted         Status = "submitted"
	StatusPendingModeration Status = "pending_moderation"
	StatusPublished         Status = "published"
	StatusRejected          Status = "rejected"
)

// Submittable reports whether a profile in this status may enter moderation.
func (s Status) Submittable() bool {
	return s == StatusDraft || s == StatusNeedsFix
}

// Readiness reason codes, in the order they are reported.
const (
	ReasonNotFound        = "profiles.not_found"
	ReasonPhotosLT3       = "photos.lt3"
	ReasonPricesMissing   = "prices.missing"
	ReasonNicknameMissing = "nickname.missing"
)

const (
	MinProcessedPhotos = 3
	MinPrices          = 1

	EventProfileSubmitted = "profile.submitted"
)

type (
	// Profile is the domain model of a user's listing.
	Profile struct {
		ID          int64
		UserID      int64
		Status      Status
		Nickname    string
		CreatedAt   time.Time
		UpdatedAt   time.Time
		SubmittedAt *time.Time
	}

	// ReadinessFacts are the raw counts the evaluator aggregates.
	ReadinessFacts struct {
		Exists          bool
		Nickname        string
		ProcessedPhotos int
		Prices          int
	}

	Readiness struct {
		OK      bool
		Reasons []string
	}

	// SubmittedPayload is the payload of profile.submitted. Ids are strings on the wire.
	SubmittedPayload struct {
		ProfileID string `json:"profileId"`
		UserID    string `json:"userId"`
	}
)
