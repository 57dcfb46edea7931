// Package transfer implements upload and download orchestration: size-based
// mode selection between single-PUT and parallel multipart, streaming chunked
// encryption and decryption, metadata index updates, and progress events.
package transfer

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/alsofelix/crabdrop/internal/events"
	"github.com/alsofelix/crabdrop/internal/metrics"
	"github.com/alsofelix/crabdrop/internal/s3"
)

const (
	// MultipartThreshold is the file size at and above which uploads switch
	// to multipart. The comparison is strict less-than for single-PUT.
	MultipartThreshold = 100 * 1024 * 1024

	// PartSize is the byte span of each multipart part; the final part may be
	// smaller.
	PartSize int64 = 50 * 1024 * 1024

	// maxInflightParts bounds concurrent part uploads per operation.
	maxInflightParts = 6

	// TempSuffix marks in-progress download files.
	TempSuffix = ".crabdroptemp"

	downloadBufferSize = 1024 * 1024
)

// Engine orchestrates transfers against one configured object store. An
// Engine is bound to a store clone for the duration of its operations, so
// the facade's adapter mutex is never held across transfer I/O.
type Engine struct {
	store   s3.ObjectStore
	events  events.Emitter
	logger  *logrus.Logger
	metrics *metrics.Metrics

	// Size parameters, fixed to the package constants in production.
	threshold int64
	partSize  int64
}

// NewEngine creates an engine over the given store.
func NewEngine(store s3.ObjectStore, emitter events.Emitter, logger *logrus.Logger, m *metrics.Metrics) *Engine {
	if emitter == nil {
		emitter = events.Discard{}
	}
	return &Engine{
		store:     store,
		events:    emitter,
		logger:    logger,
		metrics:   m,
		threshold: MultipartThreshold,
		partSize:  PartSize,
	}
}

// UploadRequest describes one upload operation.
type UploadRequest struct {
	// LocalPath is the file or directory to upload.
	LocalPath string

	// TargetKey is the remote key for a file, or the remote prefix under
	// which a directory's files are placed.
	TargetKey string

	// UploadID is the caller-supplied correlation id tying all events of
	// this operation together.
	UploadID string

	// Encrypted enables client-side encryption with Passphrase.
	Encrypted  bool
	Passphrase []byte
}

// DownloadRequest describes one download operation.
type DownloadRequest struct {
	// Key is the remote key to fetch.
	Key string

	// Filename is the displayed name used for the on-disk destination.
	Filename string

	// DestDir overrides the OS download directory when non-empty.
	DestDir string

	Encrypted  bool
	Passphrase []byte
}

// lastSegment returns the part of key after the final slash, ignoring a
// trailing slash.
func lastSegment(key string) string {
	trimmed := strings.TrimSuffix(key, "/")
	if i := strings.LastIndex(trimmed, "/"); i >= 0 {
		return trimmed[i+1:]
	}
	return trimmed
}

// encryptedKeyFor replaces the final segment of targetKey with the stored
// identifier, keeping the parent prefix.
func encryptedKeyFor(targetKey, uid string) string {
	if i := strings.LastIndex(targetKey, "/"); i >= 0 {
		return targetKey[:i+1] + uid
	}
	return uid
}

// downloadDir resolves the OS download directory.
func downloadDir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to resolve home directory: %w", err)
	}
	return filepath.Join(home, "Downloads"), nil
}

// collisionFreePath returns dir/filename, or the first dir/"stem (n).ext"
// that does not exist yet.
func collisionFreePath(dir, filename string) string {
	candidate := filepath.Join(dir, filename)
	if _, err := os.Stat(candidate); os.IsNotExist(err) {
		return candidate
	}

	ext := filepath.Ext(filename)
	stem := strings.TrimSuffix(filename, ext)
	for n := 1; ; n++ {
		candidate = filepath.Join(dir, fmt.Sprintf("%s (%d)%s", stem, n, ext))
		if _, err := os.Stat(candidate); os.IsNotExist(err) {
			return candidate
		}
	}
}
