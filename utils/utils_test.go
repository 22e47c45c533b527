package utils

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

func TestAccessTokenRoundTrip(t *testing.T) {
	tok, err := NewAccessToken("secret", "user-1", true, time.Hour, time.Now())
	require.NoError(t, err)

	id, err := ParseAccessToken("secret", tok.Token)
	require.NoError(t, err)
	assert.Equal(t, Identity{UserID: "user-1", IsAdmin: true}, id)

	_, err = ParseAccessToken("other", tok.Token)
	assert.Error(t, err)
}

func TestExpiredTokenRejected(t *testing.T) {
	tok, err := NewAccessToken("secret", "user-1", false, time.Minute, time.Now().Add(-time.Hour))
	require.NoError(t, err)
	_, err = ParseAccessToken("secret", tok.Token)
	assert.Error(t, err)
}

func TestPasswordHashing(t *testing.T) {
	hash, err := HashPassword("hunter22", bcrypt.MinCost)
	require.NoError(t, err)
	assert.True(t, VerifyPassword(hash, "hunter22"))
	assert.False(t, VerifyPassword(hash, "hunter23"))
}

func TestDiskStorePut(t *testing.T) {
	root := t.TempDir()
	store, err := NewDiskStore(root, "/uploads")
	require.NoError(t, err)

	url, err := store.Put(context.Background(), "challenges/c1/cover.png", strings.NewReader("png"), 3, "image/png")
	require.NoError(t, err)
	assert.Equal(t, "/uploads/challenges/c1/cover.png", url)

	data, err := os.ReadFile(filepath.Join(root, "challenges", "c1", "cover.png"))
	require.NoError(t, err)
	assert.Equal(t, "png", string(data))

	_, err = store.Put(context.Background(), "../escape.png", strings.NewReader("x"), 1, "image/png")
	assert.Error(t, err)
}
