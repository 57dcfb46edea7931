// Package config holds the engine configuration record and its on-disk
// persistence. The config file in the platform config directory carries the
// storage block only; credential material is kept in a separate, tightly
// permissioned credentials file and is never written into the config file.
package config

import "strings"

// StorageConfig identifies the remote bucket.
type StorageConfig struct {
	// Endpoint is the S3-compatible endpoint URL. Empty means AWS defaults
	// with virtual-host addressing; non-empty forces path-style addressing.
	Endpoint string `mapstructure:"endpoint" json:"endpoint"`
	Bucket   string `mapstructure:"bucket" json:"bucket"`
	Region   string `mapstructure:"region" json:"region"`
}

// CredentialsConfig carries secret material. It never leaves the process
// except through the credentials store.
type CredentialsConfig struct {
	AccessKeyID          string `json:"access_key_id"`
	SecretAccessKey      string `json:"secret_access_key"`
	EncryptionPassphrase string `json:"encryption_passphrase,omitempty"`
}

// Config is the resolved configuration record the engine operates on.
type Config struct {
	Storage     StorageConfig
	Credentials CredentialsConfig
}

// IsEmpty reports whether neither an access key id nor a secret access key is
// present. The encryption passphrase is not considered.
func (c CredentialsConfig) IsEmpty() bool {
	return strings.TrimSpace(c.AccessKeyID) == "" && strings.TrimSpace(c.SecretAccessKey) == ""
}

// IsValid reports whether the record is complete enough to build an adapter.
func (c *Config) IsValid() bool {
	return c.Storage.Bucket != "" &&
		c.Storage.Region != "" &&
		c.Credentials.AccessKeyID != "" &&
		c.Credentials.SecretAccessKey != ""
}

// Public is the UI-safe projection of a Config. Secret material is reduced
// to presence booleans.
type Public struct {
	Storage                 StorageConfig `json:"storage"`
	AccessKeyID             string        `json:"access_key_id"`
	HasSecret               bool          `json:"has_secret"`
	HasEncryptionPassphrase bool          `json:"has_encryption_passphrase"`
}

// Redact converts the record into its UI-safe projection.
func (c *Config) Redact() Public {
	return Public{
		Storage:                 c.Storage,
		AccessKeyID:             c.Credentials.AccessKeyID,
		HasSecret:               c.Credentials.SecretAccessKey != "",
		HasEncryptionPassphrase: c.Credentials.EncryptionPassphrase != "",
	}
}
