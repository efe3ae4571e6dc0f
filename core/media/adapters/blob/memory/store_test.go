package memory

import (
	"context"
	"io"
	"testing"
	"time"

	"aboba/core/media/domain"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStore_OriginalRoundTrip(t *testing.T) {
	s := NewStore()
	ctx := context.Background()

	_, err := s.OpenOriginal(ctx, "profiles/1/photos/tmp_a/orig")
	require.ErrorIs(t, err, domain.ErrBlobNotFound)

	data := []byte("raw")
	s.PutOriginal("profiles/1/photos/tmp_a/orig", data)
	data[0] = 'X'

	rc, err := s.OpenOriginal(ctx, "profiles/1/photos/tmp_a/orig")
	require.NoError(t, err)
	defer rc.Close()
	got, err := io.ReadAll(rc)
	require.NoError(t, err)
	assert.Equal(t, "raw", string(got))
}

func TestStore_PutDerivedWithInjectedFailures(t *testing.T) {
	s := NewStore()
	ctx := context.Background()

	s.FailNextPuts(2)
	require.Error(t, s.PutDerived(ctx, "k", domain.MimeJPEG, []byte("a")))
	require.Error(t, s.PutDerived(ctx, "k", domain.MimeJPEG, []byte("b")))
	require.NoError(t, s.PutDerived(ctx, "k", domain.MimeJPEG, []byte("c")))

	got, ok := s.Derived("k")
	require.True(t, ok)
	assert.Equal(t, "c", string(got))
}

func TestStore_Presign(t *testing.T) {
	s := NewStore()
	ctx := context.Background()

	up, err := s.PresignOriginalUpload(ctx, "key", domain.MimePNG, 1024, 10*time.Minute)
	require.NoError(t, err)
	assert.Equal(t, "key", up.Fields["key"])
	assert.Equal(t, domain.MimePNG, up.Fields["Content-Type"])
	assert.Equal(t, "1024", up.Fields["x-max-bytes"])
	assert.Equal(t, "600", up.Fields["x-expires-in"])

	url, err := s.PresignDerivedDownload(ctx, "profiles/1/photos/7/thumb.jpg", time.Minute)
	require.NoError(t, err)
	assert.Equal(t, "http://blobs.local/derived/profiles/1/photos/7/thumb.jpg?expires=60", url)
}
