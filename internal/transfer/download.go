package transfer

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/alsofelix/crabdrop/internal/crypto"
	"github.com/alsofelix/crabdrop/internal/events"
	"github.com/alsofelix/crabdrop/internal/metadata"
)

// Download fetches a remote object into the download directory, streaming
// through a temp file that is atomically renamed into place on success. On
// failure the temp file is left behind.
func (e *Engine) Download(ctx context.Context, req DownloadRequest) error {
	start := time.Now()

	destDir := req.DestDir
	if destDir == "" {
		var err error
		destDir, err = downloadDir()
		if err != nil {
			e.metrics.RecordTransferError("download")
			return err
		}
	}
	dest := collisionFreePath(destDir, req.Filename)

	// The decryption key is derived from the filename recorded at upload
	// time, resolved through the metadata index by the stored identifier.
	// The displayed filename only names the local destination.
	var fileKey []byte
	if req.Encrypted {
		uid := lastSegment(req.Key)
		idx, err := e.loadIndex(ctx, req.Passphrase)
		if err != nil {
			e.metrics.RecordTransferError("download")
			return err
		}
		original, err := idx.Filename(uid)
		if err != nil {
			e.metrics.RecordTransferError("download")
			return fmt.Errorf("failed to resolve %s: %w", uid, err)
		}
		fileKey = crypto.DeriveKey(req.Passphrase, []byte(original))
	}

	body, total, err := e.store.GetStream(ctx, req.Key)
	if err != nil {
		e.metrics.RecordTransferError("download")
		return err
	}
	defer body.Close()

	if req.Encrypted && total >= 0 && !crypto.ValidCiphertextLength(total) {
		e.metrics.RecordTransferError("download")
		return crypto.ErrMalformedCiphertext
	}

	e.events.Emit(events.TopicDownloadStart, events.DownloadStart{
		Filename:   req.Filename,
		TotalBytes: total,
	})

	tmpPath := dest + TempSuffix
	tmp, err := os.Create(tmpPath)
	if err != nil {
		e.metrics.RecordTransferError("download")
		return fmt.Errorf("failed to create temp file %s: %w", tmpPath, err)
	}
	defer tmp.Close()

	source := &progressReader{
		source:   body,
		emitter:  e.events,
		filename: req.Filename,
		total:    total,
	}

	if req.Encrypted {
		err = e.drainEncrypted(source, tmp, fileKey)
	} else {
		err = drainPlain(source, tmp)
	}
	if err != nil {
		// Failed downloads leave the temp file in place.
		e.metrics.RecordTransferError("download")
		return err
	}

	if err := tmp.Sync(); err != nil {
		e.metrics.RecordTransferError("download")
		return fmt.Errorf("failed to flush %s: %w", tmpPath, err)
	}
	if err := tmp.Close(); err != nil {
		e.metrics.RecordTransferError("download")
		return fmt.Errorf("failed to close %s: %w", tmpPath, err)
	}
	if err := os.Rename(tmpPath, dest); err != nil {
		e.metrics.RecordTransferError("download")
		return fmt.Errorf("failed to move %s into place: %w", tmpPath, err)
	}

	e.events.Emit(events.TopicDownloadComplete, events.DownloadComplete{
		Filename:   req.Filename,
		TotalBytes: source.downloaded,
	})

	mode := "single"
	e.metrics.RecordTransfer("download", mode, source.downloaded, time.Since(start))
	e.logger.WithFields(logrus.Fields{
		"key":       req.Key,
		"dest":      dest,
		"bytes":     source.downloaded,
		"encrypted": req.Encrypted,
	}).Info("Download finished")

	return nil
}

// drainEncrypted decrypts the stream record by record into w.
func (e *Engine) drainEncrypted(source io.Reader, w io.Writer, fileKey []byte) error {
	rr := crypto.NewRecordReader(source, fileKey)
	defer rr.Close()

	for {
		plaintext, err := rr.Next()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			e.metrics.RecordCryptoError("decrypt")
			return err
		}
		e.metrics.RecordCrypto("decrypt", 1)
		if _, err := w.Write(plaintext); err != nil {
			return fmt.Errorf("failed to write decrypted data: %w", err)
		}
	}
}

// drainPlain copies the stream into w with a fixed-size buffer.
func drainPlain(source io.Reader, w io.Writer) error {
	buf := make([]byte, downloadBufferSize)
	for {
		n, err := source.Read(buf)
		if n > 0 {
			if _, werr := w.Write(buf[:n]); werr != nil {
				return fmt.Errorf("failed to write downloaded data: %w", werr)
			}
		}
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return fmt.Errorf("failed to read download stream: %w", err)
		}
	}
}

// progressReader counts bytes off the network and emits download_progress
// after every read.
type progressReader struct {
	source     io.Reader
	emitter    events.Emitter
	filename   string
	total      int64
	downloaded int64
}

func (r *progressReader) Read(p []byte) (int, error) {
	n, err := r.source.Read(p)
	if n > 0 {
		r.downloaded += int64(n)
		r.emitter.Emit(events.TopicDownloadProgress, events.DownloadProgress{
			Filename:        r.filename,
			DownloadedBytes: r.downloaded,
			TotalBytes:      r.total,
		})
	}
	return n, err
}

func (e *Engine) loadIndex(ctx context.Context, passphrase []byte) (*metadata.Index, error) {
	return metadata.Load(ctx, e.store, passphrase)
}
