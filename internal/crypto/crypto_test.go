package crypto

import (
	"bytes"
	"testing"
)

func testKey(t *testing.T) []byte {
	t.Helper()
	return DeriveKey([]byte("test-passphrase"), []byte("hello.txt"))
}

func TestDeriveKey_Deterministic(t *testing.T) {
	a := DeriveKey([]byte("pw"), []byte("salt"))
	b := DeriveKey([]byte("pw"), []byte("salt"))
	if !bytes.Equal(a, b) {
		t.Error("same passphrase and salt must derive the same key")
	}
	if len(a) != KeySize {
		t.Errorf("expected %d-byte key, got %d", KeySize, len(a))
	}

	c := DeriveKey([]byte("pw"), []byte("other.txt"))
	if bytes.Equal(a, c) {
		t.Error("different salts must derive different keys")
	}
}

func TestEncryptDecryptChunk_RoundTrip(t *testing.T) {
	key := testKey(t)

	for _, size := range []int{1, 13, 4096, ChunkSize} {
		plaintext := make([]byte, size)
		for i := range plaintext {
			plaintext[i] = byte(i % 251)
		}

		record, err := EncryptChunk(plaintext, key)
		if err != nil {
			t.Fatalf("size %d: failed to encrypt: %v", size, err)
		}
		if len(record) != size+RecordOverhead {
			t.Fatalf("size %d: record length %d, want %d", size, len(record), size+RecordOverhead)
		}

		decrypted, err := DecryptChunk(record, key)
		if err != nil {
			t.Fatalf("size %d: failed to decrypt: %v", size, err)
		}
		if !bytes.Equal(plaintext, decrypted) {
			t.Errorf("size %d: decrypted data does not match original", size)
		}
	}
}

func TestEncryptChunk_NoncesDiffer(t *testing.T) {
	key := testKey(t)
	a, err := EncryptChunk([]byte("same input"), key)
	if err != nil {
		t.Fatal(err)
	}
	b, err := EncryptChunk([]byte("same input"), key)
	if err != nil {
		t.Fatal(err)
	}
	if bytes.Equal(a[:NonceSize], b[:NonceSize]) {
		t.Error("two encryptions must use distinct nonces")
	}
	if bytes.Equal(a, b) {
		t.Error("ciphertexts must differ under distinct nonces")
	}
}

func TestEncryptChunk_TooLarge(t *testing.T) {
	key := testKey(t)
	if _, err := EncryptChunk(make([]byte, ChunkSize+1), key); err != ErrChunkTooLarge {
		t.Errorf("expected ErrChunkTooLarge, got %v", err)
	}
}

func TestDecryptChunk_WrongKey(t *testing.T) {
	record, err := EncryptChunk([]byte("secret"), testKey(t))
	if err != nil {
		t.Fatal(err)
	}

	wrong := DeriveKey([]byte("wrong-passphrase"), []byte("hello.txt"))
	if _, err := DecryptChunk(record, wrong); err != ErrDecryptFailed {
		t.Errorf("expected ErrDecryptFailed, got %v", err)
	}
}

func TestDecryptChunk_Tampered(t *testing.T) {
	key := testKey(t)
	record, err := EncryptChunk([]byte("secret"), key)
	if err != nil {
		t.Fatal(err)
	}

	record[len(record)-1] ^= 0x01
	if _, err := DecryptChunk(record, key); err != ErrDecryptFailed {
		t.Errorf("expected ErrDecryptFailed, got %v", err)
	}
}

func TestDecryptChunk_TooShort(t *testing.T) {
	if _, err := DecryptChunk(make([]byte, RecordOverhead-1), testKey(t)); err != ErrMalformedCiphertext {
		t.Errorf("expected ErrMalformedCiphertext, got %v", err)
	}
}
