package domain

import (
	"context"
	"log/slog"
)

// ListPhotos returns the profile's photos by ascending position. Processed
// rows get freshly signed variant URLs; other rows carry no variants.
func (app *Application) ListPhotos(ctx context.Context, profileID, callerID int64) ([]PhotoSummary, error) {
	if err := app.ensureOwned(ctx, profileID, callerID); err != nil {
		return nil, err
	}

	photos, err := app.reader.ListPhotos(ctx, profileID)
	if err != nil {
		slog.ErrorContext(ctx, "list photos failed", slog.Int64("profile_id", profileID), slog.Any("error", err))
		return nil, ErrUnhandled
	}

	out := make([]PhotoSummary, 0, len(photos))
	for _, p := range photos {
		summary := PhotoSummary{Photo: p}
		if p.State == StateProcessed {
			urls, err := app.signVariants(ctx, p)
			if err != nil {
				slog.ErrorContext(ctx, "sign variants failed", slog.Int64("photo_id", p.ID), slog.Any("error", err))
				return nil, ErrUnhandled
			}
			summary.Variants = urls
		}
		out = append(out, summary)
	}
	return out, nil
}

func (app *Application) signVariants(ctx context.Context, p Photo) (*VariantURLs, error) {
	urls := make(map[VariantName]string, len(Variants))
	for _, v := range Variants {
		u, err := app.blobs.PresignDerivedDownload(ctx, DerivedKey(p.ProfileID, p.ID, v), app.cfg.VariantTTL)
		if err != nil {
			return nil, err
		}
		urls[v] = u
	}
	return &VariantURLs{
		ThumbURL:       urls[VariantThumb],
		CardURL:        urls[VariantCard],
		WatermarkedURL: urls[VariantWatermarked],
		ExpiresIn:      app.cfg.VariantTTL,
	}, nil
}
