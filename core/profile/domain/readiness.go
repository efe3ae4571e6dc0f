package domain

import (
	"context"
	"log/slog"
	"strings"
)

// EvaluateReadiness turns facts into reason codes. Every unmet prerequisite
// is reported; none of them hides another.
func EvaluateReadiness(f ReadinessFacts) Readiness {
	reasons := make([]string, 0, 4)
	if !f.Exists {
		reasons = append(reasons, ReasonNotFound)
	}
	if f.ProcessedPhotos < MinProcessedPhotos {
		reasons = append(reasons, ReasonPhotosLT3)
	}
	if f.Prices < MinPrices {
		reasons = append(reasons, ReasonPricesMissing)
	}
	if strings.TrimSpace(f.Nickname) == "" {
		reasons = append(reasons, ReasonNicknameMissing)
	}
	return Readiness{OK: len(reasons) == 0, Reasons: reasons}
}

// IsReadyToSubmit is the read-only aggregation behind submission. It does not
// check ownership.
func (app *Application) IsReadyToSubmit(ctx context.Context, profileID int64) (Readiness, error) {
	facts, err := app.reader.ReadinessFacts(ctx, profileID)
	if err != nil {
		slog.ErrorContext(ctx, "readiness facts query failed", slog.Int64("profile_id", profileID), slog.Any("error", err))
		return Readiness{}, ErrUnhandled
	}
	return EvaluateReadiness(facts), nil
}

// Readiness is IsReadyToSubmit for the profile's owner.
func (app *Application) Readiness(ctx context.Context, profileID, callerID int64) (Readiness, error) {
	owned, err := app.reader.IsProfileOwnedBy(ctx, profileID, callerID)
	if err != nil {
		slog.ErrorContext(ctx, "profile ownership lookup failed", slog.Int64("profile_id", profileID), slog.Any("error", err))
		return Readiness{}, ErrUnhandled
	}
	if !owned {
		return Readiness{}, ErrProfileNotFound
	}
	return app.IsReadyToSubmit(ctx, profileID)
}
