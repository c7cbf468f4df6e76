package storage

import (
	"context"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func tokenOf(t *testing.T, signedURL string) string {
	t.Helper()
	u, err := url.Parse(signedURL)
	require.NoError(t, err)
	return u.Query().Get("token")
}

func TestLocalStoreSignedUpload(t *testing.T) {
	store := NewLocalStore(t.TempDir(), "http://localhost:3000/api/storage/", "s3cret")

	up, err := store.SignedUploadURL(context.Background(), "archives/room_1/1.png", "image/png", 2048, 5*time.Minute)
	require.NoError(t, err)
	assert.Equal(t, "PUT", up.Method)
	assert.True(t, strings.HasPrefix(up.URL, "http://localhost:3000/api/storage/upload/archives/room_1/1.png?token="))

	token := tokenOf(t, up.URL)
	claims, err := store.VerifyUpload(token, "archives/room_1/1.png", 2048)
	require.NoError(t, err)
	assert.Equal(t, "image/png", claims.ContentType)

	_, err = store.VerifyUpload(token, "archives/room_1/1.png", 4096)
	assert.ErrorIs(t, err, ErrInvalidUploadGrant)
	_, err = store.VerifyUpload(token, "archives/room_2/1.png", 2048)
	assert.ErrorIs(t, err, ErrInvalidUploadGrant)

	other := NewLocalStore(t.TempDir(), "http://localhost:3000/api/storage", "different")
	_, err = other.VerifyUpload(token, "archives/room_1/1.png", 2048)
	assert.ErrorIs(t, err, ErrInvalidUploadGrant)
}

func TestLocalStoreUploadTokenExpires(t *testing.T) {
	store := NewLocalStore(t.TempDir(), "http://x", "s3cret")
	issued := time.Date(2024, 1, 1, 10, 0, 0, 0, time.UTC)
	store.now = func() time.Time { return issued }

	up, err := store.SignedUploadURL(context.Background(), "thumbnails/room_1.jpg", "image/jpeg", 10, time.Minute)
	require.NoError(t, err)

	store.now = func() time.Time { return issued.Add(2 * time.Minute) }
	_, err = store.VerifyUpload(tokenOf(t, up.URL), "thumbnails/room_1.jpg", 10)
	assert.ErrorIs(t, err, ErrInvalidUploadGrant)
}

func TestLocalStorePutExistsDelete(t *testing.T) {
	ctx := context.Background()
	store := NewLocalStore(t.TempDir(), "http://localhost:3000/api/storage", "s3cret")

	ok, err := store.Exists(ctx, "thumbnails/room_1.jpg")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, store.Put(ctx, "thumbnails/room_1.jpg", "image/jpeg", []byte("v1")))
	require.NoError(t, store.Put(ctx, "thumbnails/room_1.jpg", "image/jpeg", []byte("v2")))

	ok, err = store.Exists(ctx, "thumbnails/room_1.jpg")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "http://localhost:3000/api/storage/files/thumbnails/room_1.jpg", store.PublicURL("thumbnails/room_1.jpg"))

	require.NoError(t, store.Delete(ctx, "thumbnails/room_1.jpg"))
	require.NoError(t, store.Delete(ctx, "thumbnails/room_1.jpg"))
}

func TestLocalStoreRejectsEscapingPaths(t *testing.T) {
	store := NewLocalStore(t.TempDir(), "http://x", "s3cret")

	// cleaned paths stay inside root
	p, err := cleanObjectPath("../../etc/passwd")
	require.NoError(t, err)
	assert.Equal(t, "etc/passwd", p)

	_, err = store.SignedUploadURL(context.Background(), "", "image/png", 1, time.Minute)
	assert.Error(t, err)
}
