// Package metadata maintains the encrypted sidecar object that maps opaque
// stored identifiers (UUIDs) back to original filenames. The sidecar is a
// single object at the bucket root whose plaintext is a JSON string-to-string
// map; it is rewritten in full on every mutation.
package metadata

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/alsofelix/crabdrop/internal/crypto"
	"github.com/alsofelix/crabdrop/internal/s3"
)

// ObjectKey is the sidecar's key at the bucket root. The name is deliberately
// loud: a user deleting it loses every original filename.
const ObjectKey = "CRABDROP_METADATA_DO_NOT_DELETE"

// ErrNotInMetadata is returned when a stored identifier has no entry.
var ErrNotInMetadata = errors.New("missing in metadata")

// Index is the decrypted in-memory view of the sidecar, bound to the store
// and passphrase it was loaded with. It is not safe for concurrent mutation;
// the engine serialises metadata writes per operation.
type Index struct {
	store   s3.ObjectStore
	key     []byte
	entries map[string]string
}

// Load reads and decrypts the sidecar. If the sidecar does not exist yet, an
// empty one is created, encrypted, and uploaded before returning.
func Load(ctx context.Context, store s3.ObjectStore, passphrase []byte) (*Index, error) {
	idx := &Index{
		store:   store,
		key:     crypto.DeriveKey(passphrase, []byte(ObjectKey)),
		entries: make(map[string]string),
	}

	ciphertext, err := store.GetBuffered(ctx, ObjectKey)
	if err != nil {
		if !s3.IsNotFound(err) {
			return nil, fmt.Errorf("failed to fetch metadata object: %w", err)
		}
		if err := idx.save(ctx); err != nil {
			return nil, err
		}
		return idx, nil
	}

	plaintext, err := crypto.DecryptPayload(ciphertext, idx.key)
	if err != nil {
		return nil, fmt.Errorf("failed to decrypt metadata object: %w", err)
	}
	if err := json.Unmarshal(plaintext, &idx.entries); err != nil {
		return nil, fmt.Errorf("failed to parse metadata object: %w", err)
	}

	return idx, nil
}

// IsInMeta reports whether the stored identifier has an entry.
func (i *Index) IsInMeta(uuid string) bool {
	_, ok := i.entries[uuid]
	return ok
}

// Filename returns the original filename recorded for the stored identifier.
func (i *Index) Filename(uuid string) (string, error) {
	name, ok := i.entries[uuid]
	if !ok {
		return "", ErrNotInMetadata
	}
	return name, nil
}

// Len returns the number of entries.
func (i *Index) Len() int {
	return len(i.entries)
}

// PutFilename records the mapping and rewrites the sidecar. An identifier
// that is already present keeps its existing filename; the sidecar is not
// rewritten in that case.
func (i *Index) PutFilename(ctx context.Context, uuid, filename string) error {
	if _, ok := i.entries[uuid]; ok {
		return nil
	}
	i.entries[uuid] = filename

	if err := i.save(ctx); err != nil {
		delete(i.entries, uuid)
		return err
	}
	return nil
}

func (i *Index) save(ctx context.Context) error {
	plaintext, err := json.Marshal(i.entries)
	if err != nil {
		return fmt.Errorf("failed to encode metadata: %w", err)
	}

	ciphertext, err := crypto.EncryptPayload(plaintext, i.key)
	if err != nil {
		return fmt.Errorf("failed to encrypt metadata: %w", err)
	}

	if err := i.store.Put(ctx, ObjectKey, ciphertext); err != nil {
		return fmt.Errorf("failed to write metadata object: %w", err)
	}
	return nil
}
