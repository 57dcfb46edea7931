package metadata

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alsofelix/crabdrop/internal/crypto"
	"github.com/alsofelix/crabdrop/internal/s3"
)

var passphrase = []byte("test-passphrase")

func TestLoad_CreatesSidecarWhenMissing(t *testing.T) {
	store := s3.NewMemStore()

	idx, err := Load(context.Background(), store, passphrase)
	require.NoError(t, err)
	assert.Equal(t, 0, idx.Len())

	ciphertext, ok := store.Object(ObjectKey)
	require.True(t, ok, "sidecar must be created on first read")

	key := crypto.DeriveKey(passphrase, []byte(ObjectKey))
	plaintext, err := crypto.DecryptPayload(ciphertext, key)
	require.NoError(t, err)
	assert.JSONEq(t, "{}", string(plaintext))
}

func TestPutFilename_RoundTrip(t *testing.T) {
	store := s3.NewMemStore()
	ctx := context.Background()

	idx, err := Load(ctx, store, passphrase)
	require.NoError(t, err)

	require.NoError(t, idx.PutFilename(ctx, "uuid-1", "hello.txt"))
	assert.True(t, idx.IsInMeta("uuid-1"))
	assert.False(t, idx.IsInMeta("uuid-2"))

	name, err := idx.Filename("uuid-1")
	require.NoError(t, err)
	assert.Equal(t, "hello.txt", name)

	// A fresh load sees the persisted entry.
	reloaded, err := Load(ctx, store, passphrase)
	require.NoError(t, err)
	name, err = reloaded.Filename("uuid-1")
	require.NoError(t, err)
	assert.Equal(t, "hello.txt", name)
}

func TestPutFilename_FirstWriteWins(t *testing.T) {
	store := s3.NewMemStore()
	ctx := context.Background()

	idx, err := Load(ctx, store, passphrase)
	require.NoError(t, err)

	require.NoError(t, idx.PutFilename(ctx, "uuid-1", "original.txt"))
	require.NoError(t, idx.PutFilename(ctx, "uuid-1", "usurper.txt"))

	name, err := idx.Filename("uuid-1")
	require.NoError(t, err)
	assert.Equal(t, "original.txt", name)
}

func TestFilename_Missing(t *testing.T) {
	store := s3.NewMemStore()

	idx, err := Load(context.Background(), store, passphrase)
	require.NoError(t, err)

	_, err = idx.Filename("nope")
	assert.ErrorIs(t, err, ErrNotInMetadata)
}

func TestLoad_WrongPassphrase(t *testing.T) {
	store := s3.NewMemStore()
	ctx := context.Background()

	idx, err := Load(ctx, store, passphrase)
	require.NoError(t, err)
	require.NoError(t, idx.PutFilename(ctx, "uuid-1", "hello.txt"))

	_, err = Load(ctx, store, []byte("wrong"))
	assert.Error(t, err)
}

func TestSidecar_PlaintextShape(t *testing.T) {
	store := s3.NewMemStore()
	ctx := context.Background()

	idx, err := Load(ctx, store, passphrase)
	require.NoError(t, err)
	require.NoError(t, idx.PutFilename(ctx, "d4c0ffee-0000-4000-8000-000000000001", "hello.txt"))

	ciphertext, ok := store.Object(ObjectKey)
	require.True(t, ok)

	key := crypto.DeriveKey(passphrase, []byte(ObjectKey))
	plaintext, err := crypto.DecryptPayload(ciphertext, key)
	require.NoError(t, err)

	var m map[string]string
	require.NoError(t, json.Unmarshal(plaintext, &m))
	assert.Equal(t, map[string]string{
		"d4c0ffee-0000-4000-8000-000000000001": "hello.txt",
	}, m)
}
