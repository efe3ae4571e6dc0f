package queue

import (
	"context"
	"testing"
	"time"

	"aboba/core/media/domain"
	"aboba/modules/jobs"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestProcessPhotoQueue_RoundTrip(t *testing.T) {
	mq := jobs.NewMemoryQueue()
	q := NewProcessPhotoQueue(mq)
	job := domain.ProcessPhotoJob{ProfileID: 1, PhotoID: 7, StorageKey: "profiles/1/photos/tmp_a/orig"}

	require.NoError(t, q.EnqueueProcessPhoto(context.Background(), job, 3))
	require.NoError(t, q.EnqueueProcessPhoto(context.Background(), job, 3))
	assert.Equal(t, 1, mq.Len(), "same photo collapses into one job")

	d, err := mq.Dequeue(context.Background(), 10*time.Millisecond)
	require.NoError(t, err)
	require.NotNil(t, d)
	assert.Equal(t, "photo:7", d.ID)
	assert.Equal(t, 3, d.MaxAttempts)

	got, err := Decode(d)
	require.NoError(t, err)
	assert.Equal(t, job, got)
}

func TestDecode_RejectsIncompletePayload(t *testing.T) {
	for _, payload := range []string{`{`, `{}`, `{"profileId":1,"photoId":7}`} {
		_, err := Decode(&jobs.Delivery{ID: "photo:7", Payload: []byte(payload)})
		assert.Error(t, err, payload)
	}
}
