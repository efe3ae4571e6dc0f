package rest

import (
	"time"

	"aboba/core/media/domain"
	"aboba/modules/api/serde"

	"github.com/oapi-codegen/nullable"
)

type (
	UploadURLRequest struct {
		Mime      string `json:"mime"`
		SizeBytes int64  `json:"sizeBytes"`
	}

	UploadURLResponse struct {
		Upload      UploadTarget      `json:"upload"`
		Constraints UploadConstraints `json:"constraints"`
	}

	UploadTarget struct {
		URL       string            `json:"url"`
		Fields    map[string]string `json:"fields"`
		Key       string            `json:"key"`
		ExpiresAt time.Time         `json:"expiresAt"`
	}

	UploadConstraints struct {
		MaxBytes    int64    `json:"maxBytes"`
		AllowedMime []string `json:"allowedMime"`
	}

	ConfirmRequest struct {
		StorageKey string `json:"storageKey"`
		Sha256     string `json:"sha256"`
		SizeBytes  int64  `json:"sizeBytes"`
		Mime       string `json:"mime"`
	}

	// ConfirmResponse never carries variants: they do not exist until the
	// worker has processed the photo.
	ConfirmResponse struct {
		PhotoID    int64    `json:"photoId"`
		IsCover    bool     `json:"isCover"`
		OrderIndex int      `json:"orderIndex"`
		State      string   `json:"state"`
		Variants   []string `json:"variants"`
	}

	PhotoItem struct {
		PhotoID    int64         `json:"photoId"`
		IsCover    bool          `json:"isCover"`
		OrderIndex int           `json:"orderIndex"`
		Mime       string        `json:"mime"`
		StorageKey string        `json:"storageKey"`
		CreatedAt  string        `json:"createdAt"`
		Variants   *VariantLinks `json:"variants,omitempty"`
	}

	VariantLinks struct {
		ThumbURL       string `json:"thumbUrl"`
		CardURL        string `json:"cardUrl"`
		WatermarkedURL string `json:"watermarkedUrl"`
		// ExpiresIn is in seconds.
		ExpiresIn int `json:"expiresIn"`
	}

	// PatchRequest fields are tri-state; absent and null both mean "leave unchanged".
	PatchRequest struct {
		IsCover    nullable.Nullable[bool]    `json:"isCover,omitempty"`
		OrderIndex nullable.Nullable[float64] `json:"orderIndex,omitempty"`
	}

	PatchResponse struct {
		PhotoID    int64 `json:"photoId"`
		IsCover    bool  `json:"isCover"`
		OrderIndex int   `json:"orderIndex"`
	}
)

func mapPhotoItems(summaries []domain.PhotoSummary) []PhotoItem {
	items := make([]PhotoItem, 0, len(summaries))
	for _, s := range summaries {
		item := PhotoItem{
			PhotoID:    s.ID,
			IsCover:    s.IsCover,
			OrderIndex: s.Position,
			Mime:       s.Mime,
			StorageKey: s.StorageKey,
			CreatedAt:  s.CreatedAt.UTC().Format(time.RFC3339Nano),
		}
		if s.Variants != nil {
			item.Variants = &VariantLinks{
				ThumbURL:       s.Variants.ThumbURL,
				CardURL:        s.Variants.CardURL,
				WatermarkedURL: s.Variants.WatermarkedURL,
				ExpiresIn:      int(s.Variants.ExpiresIn / time.Second),
			}
		}
		items = append(items, item)
	}
	return items
}

// optional turns a tri-state field into the domain's "nil means not provided".
func optional[T any](n nullable.Nullable[T]) *T {
	if !n.IsSpecified() || n.IsNull() {
		return nil
	}
	v, err := n.Get()
	if err != nil {
		return nil
	}
	return serde.Ptr(v)
}
