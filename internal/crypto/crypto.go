// Package crypto implements the passphrase-based envelope encryption used for
// objects and the metadata sidecar.
//
// Keys are derived with Argon2id from the user passphrase and a caller-chosen
// salt (the original filename for object payloads). The parameters are pinned:
// time=1, memory=64 MiB, threads=4, 32-byte output. Changing them invalidates
// every existing ciphertext, so they must never drift silently.
//
// Payloads are framed as a sequence of independent AEAD records:
//
//	24-byte XChaCha20-Poly1305 nonce || ciphertext || 16-byte Poly1305 tag
//
// Each record holds at most 1 MiB of plaintext; only the final record of a
// payload may be shorter. There is no header, magic, or version field.
package crypto

import (
	"crypto/rand"
	"errors"
	"fmt"

	"golang.org/x/crypto/argon2"
	"golang.org/x/crypto/chacha20poly1305"
)

const (
	// ChunkSize is the plaintext size of every record except possibly the last.
	ChunkSize = 1024 * 1024

	// NonceSize is the XChaCha20-Poly1305 nonce length.
	NonceSize = chacha20poly1305.NonceSizeX

	// TagSize is the Poly1305 authentication tag length.
	TagSize = chacha20poly1305.Overhead

	// RecordOverhead is the per-record expansion over the plaintext.
	RecordOverhead = NonceSize + TagSize

	// MaxRecordSize is the on-wire size of a full record.
	MaxRecordSize = NonceSize + ChunkSize + TagSize

	// KeySize is the derived key length.
	KeySize = chacha20poly1305.KeySize
)

// Argon2id parameters. Pinned; see package comment.
const (
	argonTime    = 1
	argonMemory  = 64 * 1024
	argonThreads = 4
)

var (
	// ErrChunkTooLarge is returned when a plaintext chunk exceeds ChunkSize.
	ErrChunkTooLarge = errors.New("plaintext chunk exceeds 1 MiB")

	// ErrMalformedCiphertext is returned when a ciphertext length cannot be a
	// valid record sequence.
	ErrMalformedCiphertext = errors.New("ciphertext length is not a valid record sequence")

	// ErrDecryptFailed is returned on authentication failure: tampered data or
	// a wrong passphrase.
	ErrDecryptFailed = errors.New("decryption failed: data is corrupted or the passphrase is wrong")
)

// DeriveKey derives a 32-byte encryption key from a passphrase and salt.
func DeriveKey(passphrase, salt []byte) []byte {
	return argon2.IDKey(passphrase, salt, argonTime, argonMemory, argonThreads, KeySize)
}

// EncryptChunk seals a single plaintext chunk into a record. A fresh random
// nonce is generated per call, so all records of a file may share one key.
func EncryptChunk(plaintext, key []byte) ([]byte, error) {
	if len(plaintext) > ChunkSize {
		return nil, ErrChunkTooLarge
	}

	aead, err := chacha20poly1305.NewX(key)
	if err != nil {
		return nil, fmt.Errorf("failed to initialise cipher: %w", err)
	}

	record := make([]byte, NonceSize, NonceSize+len(plaintext)+TagSize)
	if _, err := rand.Read(record[:NonceSize]); err != nil {
		return nil, fmt.Errorf("failed to generate nonce: %w", err)
	}

	return aead.Seal(record, record[:NonceSize], plaintext, nil), nil
}

// DecryptChunk opens a single record and returns its plaintext.
func DecryptChunk(record, key []byte) ([]byte, error) {
	if len(record) < RecordOverhead {
		return nil, ErrMalformedCiphertext
	}

	aead, err := chacha20poly1305.NewX(key)
	if err != nil {
		return nil, fmt.Errorf("failed to initialise cipher: %w", err)
	}

	plaintext, err := aead.Open(nil, record[:NonceSize], record[NonceSize:], nil)
	if err != nil {
		return nil, ErrDecryptFailed
	}
	return plaintext, nil
}
