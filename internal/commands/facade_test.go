package commands

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alsofelix/crabdrop/internal/config"
	"github.com/alsofelix/crabdrop/internal/events"
	"github.com/alsofelix/crabdrop/internal/metadata"
	"github.com/alsofelix/crabdrop/internal/metrics"
	"github.com/alsofelix/crabdrop/internal/s3"
)

func newTestFacade(t *testing.T) (*Facade, *s3.MemStore) {
	t.Helper()
	logger := logrus.New()
	logger.SetOutput(io.Discard)

	mem := s3.NewMemStore()
	f := New(config.NewStoreAt(t.TempDir(), logger), events.NewBus(), logger, metrics.NewWithRegistry(prometheus.NewRegistry()))
	f.factory = func(cfg *config.Config) (s3.ObjectStore, error) {
		return mem, nil
	}
	require.NoError(t, f.Reload())
	return f, mem
}

func configure(t *testing.T, f *Facade, passphrase string) {
	t.Helper()
	require.NoError(t, f.SaveConfig("", "drop", "us-east-1", "AKIA", "secret", passphrase))
}

func TestCommands_NotConfigured(t *testing.T) {
	f, _ := newTestFacade(t)
	ctx := context.Background()

	assert.False(t, f.CheckConfig())

	_, err := f.ListFiles(ctx, "")
	assert.ErrorIs(t, err, ErrNotConfigured)
	assert.EqualError(t, err, "Not configured")

	assert.ErrorIs(t, f.TestConnection(ctx), ErrNotConfigured)
	assert.ErrorIs(t, f.DeleteFile(ctx, "x", false), ErrNotConfigured)
	assert.ErrorIs(t, f.UploadPath(ctx, "x", "", "op", false), ErrNotConfigured)
	assert.ErrorIs(t, f.DownloadFile(ctx, "x", "x", false), ErrNotConfigured)

	_, err = f.GeneratePresignedURL(ctx, "x", 60)
	assert.ErrorIs(t, err, ErrNotConfigured)
}

func TestSaveConfig_BuildsAdapter(t *testing.T) {
	f, _ := newTestFacade(t)

	configure(t, f, "")
	assert.True(t, f.CheckConfig())
	assert.NoError(t, f.TestConnection(context.Background()))
}

func TestSaveConfig_PartialUpdatePreservesSecrets(t *testing.T) {
	f, _ := newTestFacade(t)

	configure(t, f, "pw")

	// Empty secret and passphrase keep the stored values; storage block and
	// access key are replaced.
	require.NoError(t, f.SaveConfig("http://localhost:9000", "drop2", "eu-west-1", "AKIA2", "", ""))

	pub, err := f.GetConfig()
	require.NoError(t, err)
	assert.Equal(t, "drop2", pub.Storage.Bucket)
	assert.Equal(t, "http://localhost:9000", pub.Storage.Endpoint)
	assert.Equal(t, "AKIA2", pub.AccessKeyID)
	assert.True(t, pub.HasSecret)
	assert.True(t, pub.HasEncryptionPassphrase)
}

func TestGetConfig_NeverReturnsSecrets(t *testing.T) {
	f, _ := newTestFacade(t)
	configure(t, f, "pw")

	pub, err := f.GetConfig()
	require.NoError(t, err)

	// The projection carries booleans only.
	assert.True(t, pub.HasSecret)
	assert.True(t, pub.HasEncryptionPassphrase)
}

func TestUploadPath_RequiresPassphraseWhenEncrypted(t *testing.T) {
	f, _ := newTestFacade(t)
	configure(t, f, "")

	err := f.UploadPath(context.Background(), "anywhere", "", "op", true)
	assert.ErrorIs(t, err, ErrNoPassphrase)
}

func TestUploadPath_ComposesTargetKey(t *testing.T) {
	f, mem := newTestFacade(t)
	configure(t, f, "")

	dir := t.TempDir()
	local := filepath.Join(dir, "hello.txt")
	require.NoError(t, os.WriteFile(local, []byte("hi\n"), 0o644))

	require.NoError(t, f.UploadPath(context.Background(), local, "docs/", "op", false))

	data, ok := mem.Object("docs/hello.txt")
	require.True(t, ok)
	assert.Equal(t, []byte("hi\n"), data)
}

func TestUploadPath_EncryptedEndToEnd(t *testing.T) {
	f, mem := newTestFacade(t)
	configure(t, f, "pw")
	ctx := context.Background()

	dir := t.TempDir()
	local := filepath.Join(dir, "hello.txt")
	require.NoError(t, os.WriteFile(local, []byte("hi\n"), 0o644))

	require.NoError(t, f.UploadPath(ctx, local, "docs", "op", true))

	idx, err := metadata.Load(ctx, mem, []byte("pw"))
	require.NoError(t, err)
	assert.Equal(t, 1, idx.Len())

	files, err := f.ListFiles(ctx, "docs/")
	require.NoError(t, err)
	require.Len(t, files, 1)
	assert.Equal(t, "hello.txt", files[0].Name)
	assert.True(t, files[0].Encrypted)
	require.NotNil(t, files[0].Size)
	assert.Equal(t, int64(43), *files[0].Size)
	assert.True(t, strings.HasPrefix(files[0].Key, "docs/"))
}

func TestUploadFolder_CreatesMarker(t *testing.T) {
	f, mem := newTestFacade(t)
	configure(t, f, "")

	require.NoError(t, f.UploadFolder(context.Background(), "docs"))
	_, ok := mem.Object("docs/")
	assert.True(t, ok)
}

func TestDeleteFile_Single(t *testing.T) {
	f, mem := newTestFacade(t)
	configure(t, f, "")
	mem.SetObject("docs/a.txt", []byte("a"))

	require.NoError(t, f.DeleteFile(context.Background(), "docs/a.txt", false))
	_, ok := mem.Object("docs/a.txt")
	assert.False(t, ok)
}

func TestDeleteFile_FolderRemovesWholePrefix(t *testing.T) {
	f, mem := newTestFacade(t)
	configure(t, f, "")

	for i := 0; i < 1500; i++ {
		mem.SetObject(fmt.Sprintf("docs/file-%04d", i), []byte("x"))
	}
	mem.SetObject("other/keep.txt", []byte("k"))

	require.NoError(t, f.DeleteFile(context.Background(), "docs/", true))

	assert.Equal(t, []string{"other/keep.txt"}, mem.Keys(), "only objects under the prefix are removed")
}

func TestGeneratePresignedURL(t *testing.T) {
	f, _ := newTestFacade(t)
	configure(t, f, "")

	url, err := f.GeneratePresignedURL(context.Background(), "docs/a.txt", 900)
	require.NoError(t, err)
	assert.Contains(t, url, "docs/a.txt")

	_, err = f.GeneratePresignedURL(context.Background(), "docs/a.txt", 0)
	assert.Error(t, err)
}
