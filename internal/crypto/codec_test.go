package crypto

import (
	"bytes"
	"io"
	"testing"
)

func patterned(n int) []byte {
	data := make([]byte, n)
	for i := range data {
		data[i] = byte(i % 256)
	}
	return data
}

func TestValidCiphertextLength(t *testing.T) {
	cases := []struct {
		n     int64
		valid bool
	}{
		{0, true},
		{1, false},
		{RecordOverhead, false},
		{RecordOverhead + 1, true},
		{MaxRecordSize, true},
		{MaxRecordSize + 1, false},
		{MaxRecordSize + RecordOverhead, false},
		{MaxRecordSize + RecordOverhead + 1, true},
		{3 * MaxRecordSize, true},
		{3*MaxRecordSize + 40, false},
		{3*MaxRecordSize + 43, true},
	}
	for _, tc := range cases {
		if got := ValidCiphertextLength(tc.n); got != tc.valid {
			t.Errorf("ValidCiphertextLength(%d) = %v, want %v", tc.n, got, tc.valid)
		}
	}
}

func TestEncryptDecryptPayload_RoundTrip(t *testing.T) {
	key := testKey(t)

	for _, size := range []int{0, 3, ChunkSize - 1, ChunkSize, ChunkSize + 1, 2*ChunkSize + 512*1024} {
		plaintext := patterned(size)

		ciphertext, err := EncryptPayload(plaintext, key)
		if err != nil {
			t.Fatalf("size %d: failed to encrypt: %v", size, err)
		}

		fullRecords := size / ChunkSize
		rem := size % ChunkSize
		want := fullRecords * MaxRecordSize
		if rem > 0 {
			want += rem + RecordOverhead
		}
		if len(ciphertext) != want {
			t.Fatalf("size %d: ciphertext length %d, want %d", size, len(ciphertext), want)
		}

		decrypted, err := DecryptPayload(ciphertext, key)
		if err != nil {
			t.Fatalf("size %d: failed to decrypt: %v", size, err)
		}
		if !bytes.Equal(plaintext, decrypted) {
			t.Errorf("size %d: round trip mismatch", size)
		}
	}
}

func TestEncryptPayload_ExactChunkIsOneRecord(t *testing.T) {
	key := testKey(t)
	ciphertext, err := EncryptPayload(patterned(ChunkSize), key)
	if err != nil {
		t.Fatal(err)
	}
	// Exactly 1 MiB must produce one full record, not a full plus an empty
	// trailer.
	if len(ciphertext) != MaxRecordSize {
		t.Errorf("ciphertext length %d, want %d", len(ciphertext), MaxRecordSize)
	}
}

func TestDecryptPayload_MalformedLength(t *testing.T) {
	key := testKey(t)
	if _, err := DecryptPayload(make([]byte, 10), key); err != ErrMalformedCiphertext {
		t.Errorf("expected ErrMalformedCiphertext, got %v", err)
	}
}

func TestRecordReader_Stream(t *testing.T) {
	key := testKey(t)
	plaintext := patterned(2*ChunkSize + 300)

	ciphertext, err := EncryptPayload(plaintext, key)
	if err != nil {
		t.Fatal(err)
	}

	rr := NewRecordReader(bytes.NewReader(ciphertext), key)
	defer rr.Close()

	var out []byte
	for {
		chunk, err := rr.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			t.Fatalf("failed to read record: %v", err)
		}
		out = append(out, chunk...)
	}

	if !bytes.Equal(plaintext, out) {
		t.Error("streamed decryption does not match original")
	}
}

func TestRecordReader_TruncatedTail(t *testing.T) {
	key := testKey(t)
	ciphertext, err := EncryptPayload(patterned(ChunkSize), key)
	if err != nil {
		t.Fatal(err)
	}

	// A trailing fragment shorter than the record overhead cannot be a valid
	// final record.
	ciphertext = append(ciphertext, patterned(10)...)

	rr := NewRecordReader(bytes.NewReader(ciphertext), key)
	defer rr.Close()

	if _, err := rr.Next(); err != nil {
		t.Fatalf("first record should decrypt: %v", err)
	}
	if _, err := rr.Next(); err != ErrMalformedCiphertext {
		t.Errorf("expected ErrMalformedCiphertext, got %v", err)
	}
}

func TestRecordReader_Empty(t *testing.T) {
	rr := NewRecordReader(bytes.NewReader(nil), testKey(t))
	defer rr.Close()

	if _, err := rr.Next(); err != io.EOF {
		t.Errorf("expected io.EOF on empty stream, got %v", err)
	}
}
