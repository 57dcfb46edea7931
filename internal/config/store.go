package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/fsnotify/fsnotify"
	"github.com/sirupsen/logrus"
	"github.com/spf13/viper"
)

const (
	appDirName     = "crabdrop"
	configFileName = "config.yaml"
	credsFileName  = "credentials.json"
	credsFilePerm  = 0o600
	configDirPerm  = 0o700
)

// Store persists the configuration record. The storage block lives in a
// viper-managed YAML file; credentials live in a separate JSON file with
// owner-only permissions, standing in for the OS keychain.
type Store struct {
	dir    string
	logger *logrus.Logger
}

// NewStore creates a store rooted at the platform config directory.
func NewStore(logger *logrus.Logger) (*Store, error) {
	base, err := os.UserConfigDir()
	if err != nil {
		return nil, fmt.Errorf("failed to resolve config directory: %w", err)
	}
	return NewStoreAt(filepath.Join(base, appDirName), logger), nil
}

// NewStoreAt creates a store rooted at an explicit directory. Used by tests
// and by shells that manage their own config location.
func NewStoreAt(dir string, logger *logrus.Logger) *Store {
	return &Store{dir: dir, logger: logger}
}

// ConfigPath returns the path of the storage-block config file.
func (s *Store) ConfigPath() string {
	return filepath.Join(s.dir, configFileName)
}

func (s *Store) credsPath() string {
	return filepath.Join(s.dir, credsFileName)
}

// Load reads the persisted record, creating a default config file on first
// use. Missing credentials are returned as zero values, not an error.
func (s *Store) Load() (*Config, error) {
	if err := s.ensure(); err != nil {
		return nil, err
	}

	v := viper.New()
	v.SetConfigFile(s.ConfigPath())
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var storage StorageConfig
	if err := v.UnmarshalKey("storage", &storage); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	creds, err := s.loadCredentials()
	if err != nil {
		return nil, err
	}

	return &Config{Storage: storage, Credentials: creds}, nil
}

// Save writes the full record: the storage block to the config file and the
// credentials to the credentials file. Credentials with neither an access key
// id nor a secret access key are not written, so the stored ones are kept.
// Callers wanting partial updates merge against Load first.
func (s *Store) Save(cfg *Config) error {
	if err := s.ensure(); err != nil {
		return err
	}

	v := viper.New()
	v.SetConfigFile(s.ConfigPath())
	v.Set("storage.endpoint", cfg.Storage.Endpoint)
	v.Set("storage.bucket", cfg.Storage.Bucket)
	v.Set("storage.region", cfg.Storage.Region)
	if err := v.WriteConfig(); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	if !cfg.Credentials.IsEmpty() {
		if err := s.saveCredentials(cfg.Credentials); err != nil {
			return err
		}
	}

	return nil
}

// Watch invokes onChange whenever the config file is rewritten on disk. It
// blocks until the watcher fails or the process exits, so callers run it in
// its own goroutine.
func (s *Store) Watch(onChange func()) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create config watcher: %w", err)
	}
	defer watcher.Close()

	if err := watcher.Add(s.dir); err != nil {
		return fmt.Errorf("failed to watch config directory: %w", err)
	}

	for {
		select {
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if event.Name != s.ConfigPath() {
				continue
			}
			if event.Op.Has(fsnotify.Write) || event.Op.Has(fsnotify.Create) {
				s.logger.WithField("path", event.Name).Debug("Config file changed")
				onChange()
			}
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			s.logger.WithError(err).Warn("Config watcher error")
		}
	}
}

func (s *Store) ensure() error {
	if err := os.MkdirAll(s.dir, configDirPerm); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}
	path := s.ConfigPath()
	if _, err := os.Stat(path); os.IsNotExist(err) {
		v := viper.New()
		v.SetConfigFile(path)
		v.Set("storage", map[string]string{"endpoint": "", "bucket": "", "region": ""})
		if err := v.WriteConfig(); err != nil {
			return fmt.Errorf("failed to create default config: %w", err)
		}
	}
	return nil
}

func (s *Store) loadCredentials() (CredentialsConfig, error) {
	var creds CredentialsConfig

	data, err := os.ReadFile(s.credsPath())
	if os.IsNotExist(err) {
		return creds, nil
	}
	if err != nil {
		return creds, fmt.Errorf("failed to read credentials: %w", err)
	}

	if err := json.Unmarshal(data, &creds); err != nil {
		return creds, fmt.Errorf("failed to parse credentials: %w", err)
	}
	return creds, nil
}

func (s *Store) saveCredentials(creds CredentialsConfig) error {
	data, err := json.Marshal(creds)
	if err != nil {
		return fmt.Errorf("failed to encode credentials: %w", err)
	}
	if err := os.WriteFile(s.credsPath(), data, credsFilePerm); err != nil {
		return fmt.Errorf("failed to write credentials: %w", err)
	}
	return nil
}
