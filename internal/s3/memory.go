package s3

import (
	"context"
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/aws/smithy-go"
)

// MemStore is an in-memory ObjectStore with the same listing, pagination,
// and multipart semantics as the real backend. It backs the test suites and
// offline development.
type MemStore struct {
	mu       sync.Mutex
	objects  map[string][]byte
	modified map[string]int64
	uploads  map[string]map[int32][]byte
	nextID   int
}

// NewMemStore creates an empty in-memory store.
func NewMemStore() *MemStore {
	return &MemStore{
		objects:  make(map[string][]byte),
		modified: make(map[string]int64),
		uploads:  make(map[string]map[int32][]byte),
	}
}

// Object returns the stored bytes for key, for assertions.
func (m *MemStore) Object(key string) ([]byte, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	data, ok := m.objects[key]
	return data, ok
}

// Keys returns all stored keys in sorted order.
func (m *MemStore) Keys() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	keys := make([]string, 0, len(m.objects))
	for k := range m.objects {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// SetObject stores bytes under key directly, for test setup.
func (m *MemStore) SetObject(key string, data []byte) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.objects[key] = append([]byte(nil), data...)
	m.modified[key] = time.Now().Unix()
}

// OpenUploads returns the number of in-flight multipart uploads.
func (m *MemStore) OpenUploads() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.uploads)
}

type listEntry struct {
	key      string
	isPrefix bool
}

// List implements delimiter grouping and MaxKeys pagination over the sorted
// key space, mirroring ListObjectsV2.
func (m *MemStore) List(ctx context.Context, prefix string, opts ListOptions) (*ListPage, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	keys := make([]string, 0, len(m.objects))
	for k := range m.objects {
		if strings.HasPrefix(k, prefix) {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)

	var entries []listEntry
	seenPrefix := make(map[string]bool)
	for _, k := range keys {
		rest := k[len(prefix):]
		if opts.Delimiter != "" {
			if i := strings.Index(rest, opts.Delimiter); i >= 0 {
				cp := prefix + rest[:i+len(opts.Delimiter)]
				if !seenPrefix[cp] {
					seenPrefix[cp] = true
					entries = append(entries, listEntry{key: cp, isPrefix: true})
				}
				continue
			}
		}
		entries = append(entries, listEntry{key: k})
	}

	offset := 0
	if opts.ContinuationToken != "" {
		n, err := strconv.Atoi(opts.ContinuationToken)
		if err != nil {
			return nil, fmt.Errorf("bad continuation token %q", opts.ContinuationToken)
		}
		offset = n
	}
	maxKeys := int(opts.MaxKeys)
	if maxKeys <= 0 {
		maxKeys = 1000
	}

	page := &ListPage{}
	end := offset + maxKeys
	if end > len(entries) {
		end = len(entries)
	}
	for _, e := range entries[offset:end] {
		if e.isPrefix {
			page.CommonPrefixes = append(page.CommonPrefixes, e.key)
			continue
		}
		page.Objects = append(page.Objects, ObjectInfo{
			Key:          e.key,
			Size:         int64(len(m.objects[e.key])),
			LastModified: m.modified[e.key],
		})
	}
	if end < len(entries) {
		page.IsTruncated = true
		page.NextContinuationToken = strconv.Itoa(end)
	}
	return page, nil
}

type notFoundError struct{ key string }

func (e *notFoundError) Error() string { return "NoSuchKey: " + e.key }

// notFoundError satisfies smithy.APIError so IsNotFound treats it like the
// real backend's NoSuchKey.
func (e *notFoundError) ErrorCode() string             { return "NoSuchKey" }
func (e *notFoundError) ErrorMessage() string          { return e.Error() }
func (e *notFoundError) ErrorFault() smithy.ErrorFault { return smithy.FaultClient }

func (m *MemStore) GetBuffered(ctx context.Context, key string) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	data, ok := m.objects[key]
	if !ok {
		return nil, &notFoundError{key: key}
	}
	return append([]byte(nil), data...), nil
}

func (m *MemStore) GetStream(ctx context.Context, key string) (io.ReadCloser, int64, error) {
	data, err := m.GetBuffered(ctx, key)
	if err != nil {
		return nil, 0, err
	}
	return io.NopCloser(strings.NewReader(string(data))), int64(len(data)), nil
}

func (m *MemStore) Put(ctx context.Context, key string, body []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.objects[key] = append([]byte(nil), body...)
	m.modified[key] = time.Now().Unix()
	return nil
}

func (m *MemStore) MultipartCreate(ctx context.Context, key string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextID++
	id := fmt.Sprintf("upload-%d-%s", m.nextID, key)
	m.uploads[id] = make(map[int32][]byte)
	return id, nil
}

func (m *MemStore) MultipartUploadPart(ctx context.Context, key, uploadID string, partNumber int32, body []byte) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	parts, ok := m.uploads[uploadID]
	if !ok {
		return "", fmt.Errorf("no such upload %q", uploadID)
	}
	parts[partNumber] = append([]byte(nil), body...)
	return fmt.Sprintf("etag-%d", partNumber), nil
}

func (m *MemStore) MultipartComplete(ctx context.Context, key, uploadID string, parts []CompletedPart) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	staged, ok := m.uploads[uploadID]
	if !ok {
		return fmt.Errorf("no such upload %q", uploadID)
	}

	var body []byte
	last := int32(0)
	for _, p := range parts {
		if p.PartNumber <= last {
			return fmt.Errorf("parts out of order: %d after %d", p.PartNumber, last)
		}
		last = p.PartNumber
		data, ok := staged[p.PartNumber]
		if !ok {
			return fmt.Errorf("part %d was never uploaded", p.PartNumber)
		}
		body = append(body, data...)
	}

	m.objects[key] = body
	m.modified[key] = time.Now().Unix()
	delete(m.uploads, uploadID)
	return nil
}

func (m *MemStore) MultipartAbort(ctx context.Context, key, uploadID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.uploads, uploadID)
	return nil
}

func (m *MemStore) Delete(ctx context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.objects, key)
	delete(m.modified, key)
	return nil
}

func (m *MemStore) DeleteBatch(ctx context.Context, keys []string) error {
	if len(keys) > MaxBatchDelete {
		return fmt.Errorf("batch delete limited to %d keys, got %d", MaxBatchDelete, len(keys))
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, k := range keys {
		delete(m.objects, k)
		delete(m.modified, k)
	}
	return nil
}

func (m *MemStore) PresignGet(ctx context.Context, key string, expiry time.Duration) (string, error) {
	return fmt.Sprintf("https://memstore.invalid/%s?expires=%d", key, int64(expiry.Seconds())), nil
}

func (m *MemStore) HealthCheck(ctx context.Context) error {
	return nil
}
