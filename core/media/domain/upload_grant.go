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
	"context"
	"log/slog"
	"slices"
)

// IssueUploadGrant returns a scoped, time-limited POST upload for a new original.
// No row is written; the grant is stateless.
func (app *Application) IssueUploadGrant(ctx context.Context, req UploadGrantRequest) (*UploadGrant, error) {
	if !IsAllowedMime(req.Mime) {
		slog.DebugContext(ctx, "upload grant rejected", slog.String("mime", req.Mime))
		return nil, ErrUnsupportedMime
	}
	if req.SizeBytes <= 0 || req.SizeBytes > app.cfg.MaxUploadBytes {
		slog.DebugContext(ctx, "upload grant rejected", slog.Int64("size_bytes", req.SizeBytes))
		return nil, ErrSizeOutOfRange
	}

	if err := app.ensureOwned(ctx, req.ProfileID, req.CallerID); err != nil {
		return nil, err
	}

	key, err := TemporaryOriginalKey(req.ProfileID)
	if err != nil {
		slog.ErrorContext(ctx, "temporary key generation failed", slog.Any("error", err))
		return nil, ErrUnhandled
	}

	issuedAt := app.clock.Now()
	presigned, err := app.blobs.PresignOriginalUpload(ctx, key, req.Mime, app.cfg.MaxUploadBytes, app.cfg.GrantTTL)
	if err != nil {
		slog.ErrorContext(ctx, "presign upload failed", slog.String("key", key), slog.Any("error", err))
		return nil, ErrUnhandled
	}

	return &UploadGrant{
		URL:          presigned.URL,
		Fields:       presigned.Fields,
		TemporaryKey: key,
		ExpiresAt:    issuedAt.Add(app.cfg.GrantTTL),
		MaxBytes:     app.cfg.MaxUploadBytes,
		AllowedMimes: slices.Clone(AllowedMimes),
	}, nil
}

func (app *Application) ensureOwned(ctx context.Context, profileID, callerID int64) error {
	owned, err := app.profiles.IsProfileOwnedBy(ctx, profileID, callerID)
	if err != nil {
		slog.ErrorContext(ctx, "profile ownership lookup failed", slog.Int64("profile_id", profileID), slog.Any("error", err))
		return ErrUnhandled
	}
	if !owned {
		return ErrProfileNotFound
	}
	return nil
}
