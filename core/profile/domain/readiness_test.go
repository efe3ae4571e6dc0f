package domain_test

import (
	"context"
	"testing"

	"aboba/core/profile/adapters/persistence/memory"
	"aboba/core/profile/domain"
	"aboba/modules/events"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEvaluateReadiness(t *testing.T) {
	tests := []struct {
		name  string
		facts domain.ReadinessFacts
		want  domain.Readiness
	}{
		{
			name:  "ready",
			facts: domain.ReadinessFacts{Exists: true, Nickname: "Mila", ProcessedPhotos: 3, Prices: 1},
			want:  domain.Readiness{OK: true, Reasons: []string{}},
		},
		{
			name:  "two photos and no prices",
			facts: domain.ReadinessFacts{Exists: true, Nickname: "Mila", ProcessedPhotos: 2},
			want:  domain.Readiness{Reasons: []string{domain.ReasonPhotosLT3, domain.ReasonPricesMissing}},
		},
		{
			name:  "blank nickname",
			facts: domain.ReadinessFacts{Exists: true, Nickname: "  \t", ProcessedPhotos: 5, Prices: 2},
			want:  domain.Readiness{Reasons: []string{domain.ReasonNicknameMissing}},
		},
		{
			name:  "missing profile reports everything",
			facts: domain.ReadinessFacts{},
			want: domain.Readiness{Reasons: []string{
				domain.ReasonNotFound,
				domain.ReasonPhotosLT3,
				domain.ReasonPricesMissing,
				domain.ReasonNicknameMissing,
			}},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := domain.EvaluateReadiness(tt.facts)
			assert.Equal(t, tt.want.OK, got.OK)
			assert.Equal(t, tt.want.Reasons, got.Reasons)
		})
	}
}

func TestReadiness_HidesForeignProfiles(t *testing.T) {
	store := memory.NewStore()
	store.AddProfile(domain.Profile{ID: 1, UserID: 100, Nickname: "Mila"})
	app := domain.NewApp(store, store, events.NewBus())

	_, err := app.Readiness(context.Background(), 1, 200)
	assert.ErrorIs(t, err, domain.ErrProfileNotFound)

	_, err = app.Readiness(context.Background(), 42, 100)
	assert.ErrorIs(t, err, domain.ErrProfileNotFound)

	r, err := app.Readiness(context.Background(), 1, 100)
	require.NoError(t, err)
	assert.False(t, r.OK)
	assert.Equal(t, []string{domain.ReasonPhotosLT3, domain.ReasonPricesMissing}, r.Reasons)
}

func TestIsReadyToSubmit_CountsOnlyProcessedPhotos(t *testing.T) {
	store := memory.NewStore()
	store.AddProfile(domain.Profile{ID: 1, UserID: 100, Nickname: "Mila"})
	store.AddPrices(1, 1)
	store.SetProcessedPhotos(1, 2)
	app := domain.NewApp(store, store, events.NewBus())

	r, err := app.IsReadyToSubmit(context.Background(), 1)
	require.NoError(t, err)
	assert.Equal(t, []string{domain.ReasonPhotosLT3}, r.Reasons)

	store.SetProcessedPhotos(1, 3)
	r, err = app.IsReadyToSubmit(context.Background(), 1)
	require.NoError(t, err)
	assert.True(t, r.OK)
	assert.Empty(t, r.Reasons)
}
