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

import (
	"slices"
	"time"
)

type ProcessingState string

const (
	StatePending    ProcessingState = "pending"
	StateProcessing ProcessingState = "processing"
	StateProcessed  ProcessingState = "processed"
	StateFailed     ProcessingState = "failed"
)

// Terminal reports whether no further worker transition is allowed.
func (s ProcessingState) Terminal() bool {
	return s == StateProcessed || s == StateFailed
}

const (
	MimeJPEG = "image/jpeg"
	MimePNG  = "image/png"
	MimeWEBP = "image/webp"

	// MaxUploadBytes is 25 MiB.
	MaxUploadBytes int64 = 25 * 1024 * 1024

	DefaultGrantTTL   = 600 * time.Second
	DefaultVariantTTL = 600 * time.Second

	DefaultMaxAttempts = 3

	// positionStep leaves room between photos for manual reordering.
	positionStep = 10
)

var AllowedMimes = []string{MimeJPEG, MimePNG, MimeWEBP}

func IsAllowedMime(mime string) bool {
	return slices.Contains(AllowedMimes, mime)
}

type VariantName string

const (
	VariantThumb       VariantName = "thumb"
	VariantCard        VariantName = "card"
	VariantWatermarked VariantName = "watermarked"
)

// Variants lists every derived rendition the worker produces, in output order.
var Variants = []VariantName{VariantThumb, VariantCard, VariantWatermarked}

type (
	// Photo is the domain model of a confirmed upload.
	Photo struct {
		ID          int64
		ProfileID   int64
		StorageKey  string
		ContentHash string
		SizeBytes   int64
		Mime        string
		IsCover     bool
		Position    int
		State       ProcessingState

		VirusScanned     bool
		ExifStripped     bool
		WatermarkApplied bool
		NSFWScore        *float64

		CreatedAt   time.Time
		ProcessedAt *time.Time
	}

	// NewPhoto carries the columns written when a confirm creates a row.
	NewPhoto struct {
		ProfileID   int64
		StorageKey  string
		ContentHash string
		SizeBytes   int64
		Mime        string
		IsCover     bool
		Position    int
		State       ProcessingState
		CreatedAt   time.Time
	}

	// ProcessedOutcome is written atomically with the processed transition.
	ProcessedOutcome struct {
		VirusScanned     bool
		ExifStripped     bool
		WatermarkApplied bool
		NSFWScore        float64
		ProcessedAt      time.Time
	}

	UploadGrantRequest struct {
		ProfileID int64
		CallerID  int64
		Mime      string
		SizeBytes int64
	}

	// PresignedUpload is what the blob store returns for a scoped POST upload.
	PresignedUpload struct {
		URL    string
		Fields map[string]string
	}

	UploadGrant struct {
		URL          string
		Fields       map[string]string
		TemporaryKey string
		ExpiresAt    time.Time
		MaxBytes     int64
		AllowedMimes []string
	}

	ConfirmUploadRequest struct {
		ProfileID   int64
		CallerID    int64
		StorageKey  string
		ContentHash string
		SizeBytes   int64
		Mime        string
	}

	// PatchPhotoRequest holds optional fields; nil means "not provided".
	PatchPhotoRequest struct {
		ProfileID  int64
		PhotoID    int64
		CallerID   int64
		IsCover    *bool
		OrderIndex *float64
	}

	// VariantURLs are signed, time-limited download links. Never persisted.
	VariantURLs struct {
		ThumbURL       string
		CardURL        string
		WatermarkedURL string
		ExpiresIn      time.Duration
	}

	// PhotoSummary is the projection returned to API callers.
	PhotoSummary struct {
		Photo
		Variants *VariantURLs
	}

	// ProcessPhotoJob is the payload carried by the job channel.
	ProcessPhotoJob struct {
		ProfileID  int64  `json:"profileId"`
		PhotoID    int64  `json:"photoId"`
		StorageKey string `json:"storageKey"`
	}
)
