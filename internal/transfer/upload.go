package transfer

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/alsofelix/crabdrop/internal/crypto"
	"github.com/alsofelix/crabdrop/internal/events"
	"github.com/alsofelix/crabdrop/internal/s3"
)

// Upload transfers a local file or directory to the remote store. Directories
// are walked recursively; each regular file is uploaded on its own with
// per-file progress reported through folder_progress events.
func (e *Engine) Upload(ctx context.Context, req UploadRequest) error {
	info, err := os.Stat(req.LocalPath)
	if err != nil {
		return fmt.Errorf("failed to stat %s: %w", req.LocalPath, err)
	}

	switch {
	case info.Mode().IsRegular():
		return e.uploadFile(ctx, req.LocalPath, req.TargetKey, req, true)
	case info.IsDir():
		return e.uploadDirectory(ctx, req)
	default:
		return fmt.Errorf("%s is neither a regular file nor a directory", req.LocalPath)
	}
}

func (e *Engine) uploadDirectory(ctx context.Context, req UploadRequest) error {
	var files []string
	err := filepath.WalkDir(req.LocalPath, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.Type().IsRegular() {
			rel, err := filepath.Rel(req.LocalPath, path)
			if err != nil {
				return err
			}
			files = append(files, rel)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to walk %s: %w", req.LocalPath, err)
	}
	sort.Strings(files)

	e.events.Emit(events.TopicUploadStart, events.UploadStart{
		UploadID:   req.UploadID,
		Filename:   filepath.Base(req.LocalPath),
		Multipart:  false,
		IsFolder:   true,
		TotalFiles: len(files),
	})

	for n, rel := range files {
		relKey := filepath.ToSlash(rel)
		e.events.Emit(events.TopicFolderProgress, events.FolderProgress{
			UploadID:    req.UploadID,
			Filename:    relKey,
			CurrentFile: n + 1,
			TotalFiles:  len(files),
		})

		local := filepath.Join(req.LocalPath, rel)
		target := req.TargetKey + "/" + relKey
		if err := e.uploadFile(ctx, local, target, req, false); err != nil {
			return err
		}
	}

	e.events.Emit(events.TopicUploadComplete, events.UploadComplete{UploadID: req.UploadID})
	return nil
}

// uploadFile transfers one regular file, choosing single-PUT below
// MultipartThreshold and multipart at or above it.
func (e *Engine) uploadFile(ctx context.Context, localPath, targetKey string, req UploadRequest, emitEvents bool) error {
	start := time.Now()

	info, err := os.Stat(localPath)
	if err != nil {
		e.metrics.RecordTransferError("upload")
		return fmt.Errorf("failed to stat %s: %w", localPath, err)
	}
	size := info.Size()

	filename := lastSegment(targetKey)
	remoteKey := targetKey

	var uid string
	var fileKey []byte
	if req.Encrypted {
		if filename == "" {
			e.metrics.RecordTransferError("upload")
			return fmt.Errorf("encrypted upload requires a non-empty filename in key %q", targetKey)
		}
		uid = uuid.NewString()
		remoteKey = encryptedKeyFor(targetKey, uid)
		fileKey = crypto.DeriveKey(req.Passphrase, []byte(filename))
	}

	mode := "single"
	if size < e.threshold {
		err = e.uploadSingle(ctx, localPath, remoteKey, filename, fileKey, req, emitEvents)
	} else {
		mode = "multipart"
		err = e.uploadMultipart(ctx, localPath, remoteKey, filename, size, fileKey, req, emitEvents)
	}
	if err != nil {
		e.metrics.RecordTransferError("upload")
		return err
	}

	if req.Encrypted {
		if err := e.recordUpload(ctx, uid, filename, req.Passphrase); err != nil {
			e.metrics.RecordTransferError("upload")
			return err
		}
	}

	e.metrics.RecordTransfer("upload", mode, size, time.Since(start))
	e.logger.WithFields(logrus.Fields{
		"key":       remoteKey,
		"size":      size,
		"mode":      mode,
		"encrypted": req.Encrypted,
	}).Info("Upload finished")

	return nil
}

func (e *Engine) uploadSingle(ctx context.Context, localPath, remoteKey, filename string, fileKey []byte, req UploadRequest, emitEvents bool) error {
	data, err := os.ReadFile(localPath)
	if err != nil {
		return fmt.Errorf("failed to read %s: %w", localPath, err)
	}

	if req.Encrypted {
		data, err = crypto.EncryptPayload(data, fileKey)
		if err != nil {
			e.metrics.RecordCryptoError("encrypt")
			return fmt.Errorf("failed to encrypt %s: %w", filename, err)
		}
		e.metrics.RecordCrypto("encrypt", recordCount(int64(len(data))))
	}

	if emitEvents {
		e.events.Emit(events.TopicUploadStart, events.UploadStart{
			UploadID:  req.UploadID,
			Filename:  filename,
			Multipart: false,
			IsFolder:  false,
		})
	}

	if err := e.store.Put(ctx, remoteKey, data); err != nil {
		return err
	}

	if emitEvents {
		e.events.Emit(events.TopicUploadComplete, events.UploadComplete{UploadID: req.UploadID})
	}
	return nil
}

func (e *Engine) uploadMultipart(ctx context.Context, localPath, remoteKey, filename string, size int64, fileKey []byte, req UploadRequest, emitEvents bool) error {
	totalParts := (size + e.partSize - 1) / e.partSize

	uploadID, err := e.store.MultipartCreate(ctx, remoteKey)
	if err != nil {
		return err
	}

	if emitEvents {
		e.events.Emit(events.TopicUploadStart, events.UploadStart{
			UploadID:   req.UploadID,
			Filename:   filename,
			Multipart:  true,
			IsFolder:   false,
			TotalParts: totalParts,
		})
	}

	file, err := os.Open(localPath)
	if err != nil {
		e.metrics.RecordMultipartAbort()
		if abortErr := e.store.MultipartAbort(ctx, remoteKey, uploadID); abortErr != nil {
			e.logger.WithError(abortErr).WithField("key", remoteKey).Warn("Failed to abort multipart upload")
		}
		return fmt.Errorf("failed to open %s: %w", localPath, err)
	}
	defer file.Close()

	// The dispatch loop owns the file handle and the encryption work; tasks
	// only perform network I/O. At most maxInflightParts tasks run at once.
	sem := make(chan struct{}, maxInflightParts)
	var wg sync.WaitGroup
	var mu sync.Mutex
	var parts []s3.CompletedPart
	var firstErr error

	fail := func(err error) {
		mu.Lock()
		if firstErr == nil {
			firstErr = err
		}
		mu.Unlock()
	}
	failed := func() bool {
		mu.Lock()
		defer mu.Unlock()
		return firstErr != nil
	}

	offset := int64(0)
	for partNumber := int32(1); offset < size && !failed(); partNumber++ {
		select {
		case sem <- struct{}{}:
		case <-ctx.Done():
			fail(ctx.Err())
		}
		if failed() {
			break
		}

		chunkLen := e.partSize
		if remaining := size - offset; remaining < chunkLen {
			chunkLen = remaining
		}

		buf := make([]byte, chunkLen)
		if _, err := file.ReadAt(buf, offset); err != nil {
			<-sem
			fail(fmt.Errorf("failed to read %s at offset %d: %w", localPath, offset, err))
			break
		}
		offset += chunkLen

		body := buf
		if req.Encrypted {
			body, err = crypto.EncryptPayload(buf, fileKey)
			if err != nil {
				<-sem
				e.metrics.RecordCryptoError("encrypt")
				fail(fmt.Errorf("failed to encrypt part %d of %s: %w", partNumber, filename, err))
				break
			}
			e.metrics.RecordCrypto("encrypt", recordCount(int64(len(body))))
		}

		if emitEvents {
			e.events.Emit(events.TopicUploadProgress, events.UploadProgress{
				UploadID:   req.UploadID,
				Filename:   filename,
				Part:       int64(partNumber),
				TotalParts: totalParts,
			})
		}

		wg.Add(1)
		go func(partNumber int32, body []byte) {
			defer wg.Done()
			defer func() { <-sem }()

			etag, err := e.store.MultipartUploadPart(ctx, remoteKey, uploadID, partNumber, body)
			if err != nil {
				fail(err)
				return
			}
			mu.Lock()
			parts = append(parts, s3.CompletedPart{PartNumber: partNumber, ETag: etag})
			mu.Unlock()
		}(partNumber, body)
	}

	wg.Wait()

	if firstErr != nil {
		e.metrics.RecordMultipartAbort()
		if abortErr := e.store.MultipartAbort(ctx, remoteKey, uploadID); abortErr != nil {
			e.logger.WithError(abortErr).WithField("key", remoteKey).Warn("Failed to abort multipart upload")
		}
		return firstErr
	}

	sort.Slice(parts, func(i, j int) bool { return parts[i].PartNumber < parts[j].PartNumber })

	if err := e.store.MultipartComplete(ctx, remoteKey, uploadID, parts); err != nil {
		e.metrics.RecordMultipartAbort()
		if abortErr := e.store.MultipartAbort(ctx, remoteKey, uploadID); abortErr != nil {
			e.logger.WithError(abortErr).WithField("key", remoteKey).Warn("Failed to abort multipart upload")
		}
		return err
	}

	if emitEvents {
		e.events.Emit(events.TopicUploadComplete, events.UploadComplete{UploadID: req.UploadID})
	}
	return nil
}

// recordUpload inserts the (uid, filename) pair into the metadata sidecar.
func (e *Engine) recordUpload(ctx context.Context, uid, filename string, passphrase []byte) error {
	idx, err := e.loadIndex(ctx, passphrase)
	if err != nil {
		return err
	}
	if err := idx.PutFilename(ctx, uid, filename); err != nil {
		return err
	}
	e.metrics.RecordMetadataRewrite()
	return nil
}

// recordCount derives the number of AEAD records in a ciphertext length.
func recordCount(n int64) int {
	if n == 0 {
		return 0
	}
	count := n / crypto.MaxRecordSize
	if n%crypto.MaxRecordSize != 0 {
		count++
	}
	return int(count)
}

// UploadFolderMarker creates an explicit empty folder marker object.
func (e *Engine) UploadFolderMarker(ctx context.Context, key string) error {
	if !strings.HasSuffix(key, "/") {
		key += "/"
	}
	return e.store.Put(ctx, key, nil)
}
