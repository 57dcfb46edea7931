package s3

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alsofelix/crabdrop/internal/config"
)

func testConfig(endpoint string) *config.Config {
	return &config.Config{
		Storage: config.StorageConfig{
			Endpoint: endpoint,
			Bucket:   "drop",
			Region:   "us-east-1",
		},
		Credentials: config.CredentialsConfig{
			AccessKeyID:     "AKIA",
			SecretAccessKey: "secret",
		},
	}
}

func TestNew_BuildsStore(t *testing.T) {
	store, err := New(testConfig(""))
	require.NoError(t, err)
	assert.Equal(t, "drop", store.bucket)

	store, err = New(testConfig("http://localhost:9000"))
	require.NoError(t, err)
	assert.NotNil(t, store.presigner)
}

func TestClone_SharesClient(t *testing.T) {
	store, err := New(testConfig(""))
	require.NoError(t, err)

	clone := store.Clone()
	assert.NotSame(t, store, clone)
	assert.Same(t, store.client, clone.client)
	assert.Equal(t, store.bucket, clone.bucket)
}
