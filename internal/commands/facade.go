// Package commands is the synchronous entry surface the shell invokes. Each
// command checks that an adapter is configured, takes a short-lived clone of
// it, and runs without holding the facade lock across long I/O.
package commands

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/alsofelix/crabdrop/internal/config"
	"github.com/alsofelix/crabdrop/internal/events"
	"github.com/alsofelix/crabdrop/internal/listing"
	"github.com/alsofelix/crabdrop/internal/metrics"
	"github.com/alsofelix/crabdrop/internal/s3"
	"github.com/alsofelix/crabdrop/internal/transfer"
)

// ErrNotConfigured is returned by every command that needs an adapter when
// none has been built yet. The message is part of the shell contract.
var ErrNotConfigured = errors.New("Not configured")

// ErrNoPassphrase is returned when an encrypted operation is requested
// without a configured encryption passphrase.
var ErrNoPassphrase = errors.New("no encryption passphrase configured")

// storeFactory builds an adapter from a configuration record. Tests swap it
// for a fake.
type storeFactory func(cfg *config.Config) (s3.ObjectStore, error)

// Facade holds the configured adapter and dispatches commands.
type Facade struct {
	cfgStore *config.Store
	bus      *events.Bus
	logger   *logrus.Logger
	metrics  *metrics.Metrics
	factory  storeFactory

	mu    sync.Mutex
	store s3.ObjectStore
	cfg   *config.Config
}

// New creates a facade over the given config store and event bus. The
// adapter is built lazily by Reload.
func New(cfgStore *config.Store, bus *events.Bus, logger *logrus.Logger, m *metrics.Metrics) *Facade {
	f := &Facade{
		cfgStore: cfgStore,
		bus:      bus,
		logger:   logger,
		metrics:  m,
		factory: func(cfg *config.Config) (s3.ObjectStore, error) {
			return s3.New(cfg)
		},
	}
	return f
}

// Reload re-reads the persisted configuration and rebuilds the adapter if
// the record is complete. An incomplete record leaves the facade
// unconfigured rather than failing.
func (f *Facade) Reload() error {
	cfg, err := f.cfgStore.Load()
	if err != nil {
		return err
	}

	var store s3.ObjectStore
	if cfg.IsValid() {
		store, err = f.factory(cfg)
		if err != nil {
			return err
		}
	}

	f.mu.Lock()
	f.cfg = cfg
	f.store = store
	f.mu.Unlock()

	f.logger.WithFields(logrus.Fields{
		"bucket":     cfg.Storage.Bucket,
		"configured": store != nil,
	}).Info("Configuration loaded")
	return nil
}

// adapter returns a clone of the configured adapter plus a copy of the
// configuration, holding the lock only long enough to take them.
func (f *Facade) adapter() (s3.ObjectStore, config.Config, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.store == nil {
		return nil, config.Config{}, ErrNotConfigured
	}

	store := f.store
	if c, ok := store.(interface{ Clone() *s3.Store }); ok {
		store = c.Clone()
	}
	return store, *f.cfg, nil
}

// CheckConfig reports whether an adapter is configured.
func (f *Facade) CheckConfig() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.store != nil
}

// GetConfig returns the UI-safe projection of the stored configuration.
func (f *Facade) GetConfig() (config.Public, error) {
	cfg, err := f.cfgStore.Load()
	if err != nil {
		return config.Public{}, err
	}
	return cfg.Redact(), nil
}

// SaveConfig persists a new configuration. The storage block and access key
// are replaced; an empty secret key or passphrase preserves the previously
// stored value. The adapter is rebuilt afterwards.
func (f *Facade) SaveConfig(endpoint, bucket, region, accessKey, secretKey, encryptionPassphrase string) error {
	prev, err := f.cfgStore.Load()
	if err != nil {
		return err
	}

	next := &config.Config{
		Storage: config.StorageConfig{
			Endpoint: endpoint,
			Bucket:   bucket,
			Region:   region,
		},
		Credentials: config.CredentialsConfig{
			AccessKeyID:          accessKey,
			SecretAccessKey:      secretKey,
			EncryptionPassphrase: encryptionPassphrase,
		},
	}
	if next.Credentials.SecretAccessKey == "" {
		next.Credentials.SecretAccessKey = prev.Credentials.SecretAccessKey
	}
	if next.Credentials.EncryptionPassphrase == "" {
		next.Credentials.EncryptionPassphrase = prev.Credentials.EncryptionPassphrase
	}

	if err := f.cfgStore.Save(next); err != nil {
		return err
	}
	return f.Reload()
}

// TestConnection verifies the configured bucket is reachable.
func (f *Facade) TestConnection(ctx context.Context) error {
	store, _, err := f.adapter()
	if err != nil {
		return err
	}
	return store.HealthCheck(ctx)
}

// ListFiles lists entries under prefix with decrypted display names.
func (f *Facade) ListFiles(ctx context.Context, prefix string) ([]listing.File, error) {
	store, cfg, err := f.adapter()
	if err != nil {
		return nil, err
	}
	svc := listing.NewService(store, []byte(cfg.Credentials.EncryptionPassphrase))
	return svc.List(ctx, prefix)
}

// UploadFolder creates an explicit folder marker at key.
func (f *Facade) UploadFolder(ctx context.Context, key string) error {
	store, _, err := f.adapter()
	if err != nil {
		return err
	}
	engine := transfer.NewEngine(store, f.bus, f.logger, f.metrics)
	return engine.UploadFolderMarker(ctx, key)
}

// UploadPath uploads a local file or directory under targetPrefix. uploadID
// correlates the progress events of this operation.
func (f *Facade) UploadPath(ctx context.Context, localPath, targetPrefix, uploadID string, encrypted bool) error {
	store, cfg, err := f.adapter()
	if err != nil {
		return err
	}

	var passphrase []byte
	if encrypted {
		if cfg.Credentials.EncryptionPassphrase == "" {
			return ErrNoPassphrase
		}
		passphrase = []byte(cfg.Credentials.EncryptionPassphrase)
	}

	engine := transfer.NewEngine(store, f.bus, f.logger, f.metrics)
	return engine.Upload(ctx, transfer.UploadRequest{
		LocalPath:  localPath,
		TargetKey:  joinKey(targetPrefix, filepath.Base(localPath)),
		UploadID:   uploadID,
		Encrypted:  encrypted,
		Passphrase: passphrase,
	})
}

// DownloadFile fetches key into the download directory under filename.
func (f *Facade) DownloadFile(ctx context.Context, key, filename string, encrypted bool) error {
	store, cfg, err := f.adapter()
	if err != nil {
		return err
	}

	var passphrase []byte
	if encrypted {
		if cfg.Credentials.EncryptionPassphrase == "" {
			return ErrNoPassphrase
		}
		passphrase = []byte(cfg.Credentials.EncryptionPassphrase)
	}

	engine := transfer.NewEngine(store, f.bus, f.logger, f.metrics)
	return engine.Download(ctx, transfer.DownloadRequest{
		Key:        key,
		Filename:   filename,
		Encrypted:  encrypted,
		Passphrase: passphrase,
	})
}

// DeleteFile removes a single object, or everything under a prefix when
// isFolder is set, batching deletes at the API limit.
func (f *Facade) DeleteFile(ctx context.Context, key string, isFolder bool) error {
	store, _, err := f.adapter()
	if err != nil {
		return err
	}

	if !isFolder {
		return store.Delete(ctx, key)
	}

	// Each round deletes everything the page returned, so the listing is
	// restarted from scratch rather than continued past deleted keys.
	for {
		page, err := store.List(ctx, key, s3.ListOptions{MaxKeys: int32(s3.MaxBatchDelete)})
		if err != nil {
			return err
		}
		if len(page.Objects) == 0 {
			return nil
		}

		keys := make([]string, 0, len(page.Objects))
		for _, obj := range page.Objects {
			keys = append(keys, obj.Key)
		}
		if err := store.DeleteBatch(ctx, keys); err != nil {
			return err
		}

		if !page.IsTruncated {
			return nil
		}
	}
}

// GeneratePresignedURL returns a signed GET URL for key valid for
// expirySecs seconds.
func (f *Facade) GeneratePresignedURL(ctx context.Context, key string, expirySecs int64) (string, error) {
	store, _, err := f.adapter()
	if err != nil {
		return "", err
	}
	if expirySecs <= 0 {
		return "", fmt.Errorf("expiry must be positive, got %d", expirySecs)
	}
	return store.PresignGet(ctx, key, time.Duration(expirySecs)*time.Second)
}

// joinKey joins a prefix and a name with a single slash, treating an empty
// prefix as the bucket root.
func joinKey(prefix, name string) string {
	if prefix == "" {
		return name
	}
	for len(prefix) > 0 && prefix[len(prefix)-1] == '/' {
		prefix = prefix[:len(prefix)-1]
	}
	if prefix == "" {
		return name
	}
	return prefix + "/" + name
}
