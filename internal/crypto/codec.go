package crypto

import (
	"fmt"
	"io"
)

// ValidCiphertextLength reports whether n bytes can be parsed as a record
// sequence: k full records plus an optional short final record, or empty.
func ValidCiphertextLength(n int64) bool {
	if n == 0 {
		return true
	}
	rem := n % MaxRecordSize
	return rem == 0 || rem > RecordOverhead
}

// EncryptPayload encrypts a whole plaintext into a record sequence using the
// given key. An empty plaintext yields an empty ciphertext.
func EncryptPayload(plaintext, key []byte) ([]byte, error) {
	out := make([]byte, 0, len(plaintext)+((len(plaintext)/ChunkSize)+1)*RecordOverhead)

	for off := 0; off < len(plaintext); off += ChunkSize {
		end := off + ChunkSize
		if end > len(plaintext) {
			end = len(plaintext)
		}
		record, err := EncryptChunk(plaintext[off:end], key)
		if err != nil {
			return nil, err
		}
		out = append(out, record...)
	}
	return out, nil
}

// DecryptPayload decrypts a whole record sequence produced by EncryptPayload.
func DecryptPayload(ciphertext, key []byte) ([]byte, error) {
	if !ValidCiphertextLength(int64(len(ciphertext))) {
		return nil, ErrMalformedCiphertext
	}

	out := make([]byte, 0, len(ciphertext))
	for off := 0; off < len(ciphertext); {
		end := off + MaxRecordSize
		if end > len(ciphertext) {
			end = len(ciphertext)
		}
		plaintext, err := DecryptChunk(ciphertext[off:end], key)
		if err != nil {
			return nil, err
		}
		out = append(out, plaintext...)
		off = end
	}
	return out, nil
}

// RecordReader drains a ciphertext byte stream one record at a time,
// returning plaintext per record. The final record may be short; anything
// else short of a full record is a framing error.
type RecordReader struct {
	source io.Reader
	key    []byte
	buf    []byte
	done   bool
}

// NewRecordReader wraps source with streaming record decryption under key.
func NewRecordReader(source io.Reader, key []byte) *RecordReader {
	return &RecordReader{
		source: source,
		key:    key,
		buf:    recordPool.Get(),
	}
}

// Next returns the plaintext of the next record, or io.EOF after the final
// record has been consumed. The returned slice is only valid until the next
// call.
func (r *RecordReader) Next() ([]byte, error) {
	if r.done {
		return nil, io.EOF
	}

	n, err := io.ReadFull(r.source, r.buf)
	switch err {
	case nil:
		// Full record; more may follow.
	case io.EOF:
		r.done = true
		return nil, io.EOF
	case io.ErrUnexpectedEOF:
		// Short final record.
		r.done = true
		if n <= RecordOverhead {
			return nil, ErrMalformedCiphertext
		}
	default:
		return nil, fmt.Errorf("failed to read record: %w", err)
	}

	plaintext, err := DecryptChunk(r.buf[:n], r.key)
	if err != nil {
		return nil, err
	}
	return plaintext, nil
}

// Close releases the internal record buffer.
func (r *RecordReader) Close() error {
	if r.buf != nil {
		recordPool.Put(r.buf)
		r.buf = nil
	}
	r.done = true
	return nil
}
