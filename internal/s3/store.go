// Package s3 provides the object-store adapter for S3-compatible backends.
// The engine depends only on the ObjectStore interface; the AWS SDK v2
// implementation lives in aws.go.
package s3

import (
	"context"
	"io"
	"time"
)

// MaxBatchDelete is the largest number of keys a single batched delete may
// carry, per the DeleteObjects API limit.
const MaxBatchDelete = 1000

// ObjectInfo describes one remote object in a listing page.
type ObjectInfo struct {
	Key          string
	Size         int64
	LastModified int64 // seconds since epoch, 0 when the backend omits it
}

// ListOptions control one page of a listing.
type ListOptions struct {
	Delimiter         string
	ContinuationToken string
	MaxKeys           int32
}

// ListPage is one page of a delimited listing.
type ListPage struct {
	Objects               []ObjectInfo
	CommonPrefixes        []string
	NextContinuationToken string
	IsTruncated           bool
}

// CompletedPart pairs a part number with the ETag the backend returned for it.
type CompletedPart struct {
	PartNumber int32
	ETag       string
}

// ObjectStore is the contract the transfer engine, listing service, and
// metadata index operate against. Implementations must be safe for
// concurrent use and cheap to clone.
type ObjectStore interface {
	// List returns one page of objects and common prefixes under prefix.
	List(ctx context.Context, prefix string, opts ListOptions) (*ListPage, error)

	// GetBuffered fetches the whole object into memory.
	GetBuffered(ctx context.Context, key string) ([]byte, error)

	// GetStream opens the object for streaming reads. The returned size is
	// the content length hint, or -1 when unknown.
	GetStream(ctx context.Context, key string) (io.ReadCloser, int64, error)

	// Put creates or overwrites the object.
	Put(ctx context.Context, key string, body []byte) error

	// MultipartCreate starts a multipart upload and returns its upload id.
	MultipartCreate(ctx context.Context, key string) (string, error)

	// MultipartUploadPart uploads one part (1-based partNumber) and returns
	// the part's ETag.
	MultipartUploadPart(ctx context.Context, key, uploadID string, partNumber int32, body []byte) (string, error)

	// MultipartComplete finalises the upload. Parts must be sorted ascending
	// by part number.
	MultipartComplete(ctx context.Context, key, uploadID string, parts []CompletedPart) error

	// MultipartAbort abandons the upload. Best effort on failure paths.
	MultipartAbort(ctx context.Context, key, uploadID string) error

	// Delete removes a single object. Idempotent.
	Delete(ctx context.Context, key string) error

	// DeleteBatch removes up to MaxBatchDelete objects in one call. Idempotent.
	DeleteBatch(ctx context.Context, keys []string) error

	// PresignGet returns a signed GET URL valid for expiry.
	PresignGet(ctx context.Context, key string, expiry time.Duration) (string, error)

	// HealthCheck verifies the bucket is reachable with the configured
	// credentials.
	HealthCheck(ctx context.Context) error
}
