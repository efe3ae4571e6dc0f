package domain_test

import (
	"context"
	"testing"

	"aboba/core/media/domain"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestListPhotos_SignsOnlyProcessedPhotos(t *testing.T) {
	f := newFixture(t)
	done, err := f.confirm(t, 1)
	require.NoError(t, err)
	_, err = f.confirm(t, 2)
	require.NoError(t, err)

	changed, err := f.store.MarkProcessed(context.Background(), done.ID, domain.ProcessedOutcome{ProcessedAt: start})
	require.NoError(t, err)
	require.True(t, changed)

	list, err := f.app.ListPhotos(context.Background(), 1, owner)
	require.NoError(t, err)
	require.Len(t, list, 2)

	assert.Equal(t, done.ID, list[0].ID)
	require.NotNil(t, list[0].Variants)
	assert.Contains(t, list[0].Variants.ThumbURL, domain.DerivedKey(1, done.ID, domain.VariantThumb))
	assert.Contains(t, list[0].Variants.CardURL, domain.DerivedKey(1, done.ID, domain.VariantCard))
	assert.Contains(t, list[0].Variants.WatermarkedURL, domain.DerivedKey(1, done.ID, domain.VariantWatermarked))
	assert.Equal(t, domain.DefaultVariantTTL, list[0].Variants.ExpiresIn)

	assert.Nil(t, list[1].Variants)
}

func TestListPhotos_ForeignProfile(t *testing.T) {
	f := newFixture(t)
	_, err := f.app.ListPhotos(context.Background(), 1, stranger)
	assert.ErrorIs(t, err, domain.ErrProfileNotFound)
}

func TestListPhotos_EmptyIsNotNil(t *testing.T) {
	f := newFixture(t)
	list, err := f.app.ListPhotos(context.Background(), 1, owner)
	require.NoError(t, err)
	assert.NotNil(t, list)
	assert.Empty(t, list)
}
