package s3

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	awss3 "github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"

	"github.com/alsofelix/crabdrop/internal/config"
)

// Store implements ObjectStore against an S3-compatible backend using the
// AWS SDK v2. The struct is a thin value over shared SDK clients, so Clone
// is cheap and clones may be used concurrently.
type Store struct {
	client    *awss3.Client
	presigner *awss3.PresignClient
	bucket    string
}

// New builds a Store from the resolved configuration. A non-empty endpoint
// selects path-style addressing, which MinIO, Garage, and most self-hosted
// backends require.
func New(cfg *config.Config) (*Store, error) {
	awsCfg, err := awsconfig.LoadDefaultConfig(context.Background(),
		awsconfig.WithRegion(cfg.Storage.Region),
		awsconfig.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(
			cfg.Credentials.AccessKeyID,
			cfg.Credentials.SecretAccessKey,
			"",
		)),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	var opts []func(*awss3.Options)
	if cfg.Storage.Endpoint != "" {
		opts = append(opts, func(o *awss3.Options) {
			o.BaseEndpoint = aws.String(cfg.Storage.Endpoint)
			o.UsePathStyle = true
		})
	}

	client := awss3.NewFromConfig(awsCfg, opts...)

	return &Store{
		client:    client,
		presigner: awss3.NewPresignClient(client),
		bucket:    cfg.Storage.Bucket,
	}, nil
}

// Clone returns a shallow copy sharing the underlying SDK clients.
func (s *Store) Clone() *Store {
	c := *s
	return &c
}

// List returns one page of the delimited listing under prefix.
func (s *Store) List(ctx context.Context, prefix string, opts ListOptions) (*ListPage, error) {
	input := &awss3.ListObjectsV2Input{
		Bucket: aws.String(s.bucket),
		Prefix: aws.String(prefix),
	}
	if opts.Delimiter != "" {
		input.Delimiter = aws.String(opts.Delimiter)
	}
	if opts.ContinuationToken != "" {
		input.ContinuationToken = aws.String(opts.ContinuationToken)
	}
	if opts.MaxKeys > 0 {
		input.MaxKeys = aws.Int32(opts.MaxKeys)
	}

	result, err := s.client.ListObjectsV2(ctx, input)
	if err != nil {
		return nil, fmt.Errorf("failed to list objects under %q: %w", prefix, err)
	}

	page := &ListPage{
		Objects:               make([]ObjectInfo, 0, len(result.Contents)),
		CommonPrefixes:        make([]string, 0, len(result.CommonPrefixes)),
		NextContinuationToken: aws.ToString(result.NextContinuationToken),
		IsTruncated:           aws.ToBool(result.IsTruncated),
	}

	for _, obj := range result.Contents {
		info := ObjectInfo{
			Key:  aws.ToString(obj.Key),
			Size: aws.ToInt64(obj.Size),
		}
		if obj.LastModified != nil {
			info.LastModified = obj.LastModified.Unix()
		}
		page.Objects = append(page.Objects, info)
	}
	for _, cp := range result.CommonPrefixes {
		page.CommonPrefixes = append(page.CommonPrefixes, aws.ToString(cp.Prefix))
	}

	return page, nil
}

// GetBuffered fetches the whole object into memory.
func (s *Store) GetBuffered(ctx context.Context, key string) ([]byte, error) {
	result, err := s.client.GetObject(ctx, &awss3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to get object %s/%s: %w", s.bucket, key, err)
	}
	defer result.Body.Close()

	data, err := io.ReadAll(result.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read object %s/%s: %w", s.bucket, key, err)
	}
	return data, nil
}

// GetStream opens the object for streaming reads.
func (s *Store) GetStream(ctx context.Context, key string) (io.ReadCloser, int64, error) {
	result, err := s.client.GetObject(ctx, &awss3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return nil, 0, fmt.Errorf("failed to get object %s/%s: %w", s.bucket, key, err)
	}

	size := int64(-1)
	if result.ContentLength != nil {
		size = *result.ContentLength
	}
	return result.Body, size, nil
}

// Put creates or overwrites the object.
func (s *Store) Put(ctx context.Context, key string, body []byte) error {
	_, err := s.client.PutObject(ctx, &awss3.PutObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
		Body:   bytes.NewReader(body),
	})
	if err != nil {
		return fmt.Errorf("failed to put object %s/%s: %w", s.bucket, key, err)
	}
	return nil
}

// MultipartCreate starts a multipart upload.
func (s *Store) MultipartCreate(ctx context.Context, key string) (string, error) {
	result, err := s.client.CreateMultipartUpload(ctx, &awss3.CreateMultipartUploadInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return "", fmt.Errorf("failed to create multipart upload for %s/%s: %w", s.bucket, key, err)
	}
	if result.UploadId == nil {
		return "", fmt.Errorf("no upload id returned for %s/%s", s.bucket, key)
	}
	return *result.UploadId, nil
}

// MultipartUploadPart uploads one part and returns its ETag.
func (s *Store) MultipartUploadPart(ctx context.Context, key, uploadID string, partNumber int32, body []byte) (string, error) {
	result, err := s.client.UploadPart(ctx, &awss3.UploadPartInput{
		Bucket:        aws.String(s.bucket),
		Key:           aws.String(key),
		UploadId:      aws.String(uploadID),
		PartNumber:    aws.Int32(partNumber),
		Body:          bytes.NewReader(body),
		ContentLength: aws.Int64(int64(len(body))),
	})
	if err != nil {
		return "", fmt.Errorf("failed to upload part %d of %s/%s: %w", partNumber, s.bucket, key, err)
	}
	if result.ETag == nil {
		return "", fmt.Errorf("no etag returned for part %d of %s/%s", partNumber, s.bucket, key)
	}
	return *result.ETag, nil
}

// MultipartComplete finalises the upload from parts sorted by part number.
func (s *Store) MultipartComplete(ctx context.Context, key, uploadID string, parts []CompletedPart) error {
	completed := make([]types.CompletedPart, len(parts))
	for i, p := range parts {
		completed[i] = types.CompletedPart{
			PartNumber: aws.Int32(p.PartNumber),
			ETag:       aws.String(p.ETag),
		}
	}

	_, err := s.client.CompleteMultipartUpload(ctx, &awss3.CompleteMultipartUploadInput{
		Bucket:          aws.String(s.bucket),
		Key:             aws.String(key),
		UploadId:        aws.String(uploadID),
		MultipartUpload: &types.CompletedMultipartUpload{Parts: completed},
	})
	if err != nil {
		return fmt.Errorf("failed to complete multipart upload for %s/%s: %w", s.bucket, key, err)
	}
	return nil
}

// MultipartAbort abandons the upload.
func (s *Store) MultipartAbort(ctx context.Context, key, uploadID string) error {
	_, err := s.client.AbortMultipartUpload(ctx, &awss3.AbortMultipartUploadInput{
		Bucket:   aws.String(s.bucket),
		Key:      aws.String(key),
		UploadId: aws.String(uploadID),
	})
	if err != nil {
		return fmt.Errorf("failed to abort multipart upload for %s/%s: %w", s.bucket, key, err)
	}
	return nil
}

// Delete removes a single object.
func (s *Store) Delete(ctx context.Context, key string) error {
	_, err := s.client.DeleteObject(ctx, &awss3.DeleteObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return fmt.Errorf("failed to delete object %s/%s: %w", s.bucket, key, err)
	}
	return nil
}

// DeleteBatch removes up to MaxBatchDelete objects in one request.
func (s *Store) DeleteBatch(ctx context.Context, keys []string) error {
	if len(keys) == 0 {
		return nil
	}
	if len(keys) > MaxBatchDelete {
		return fmt.Errorf("batch delete limited to %d keys, got %d", MaxBatchDelete, len(keys))
	}

	objects := make([]types.ObjectIdentifier, len(keys))
	for i, k := range keys {
		objects[i] = types.ObjectIdentifier{Key: aws.String(k)}
	}

	_, err := s.client.DeleteObjects(ctx, &awss3.DeleteObjectsInput{
		Bucket: aws.String(s.bucket),
		Delete: &types.Delete{
			Objects: objects,
			Quiet:   aws.Bool(true),
		},
	})
	if err != nil {
		return fmt.Errorf("failed to delete %d objects from %s: %w", len(keys), s.bucket, err)
	}
	return nil
}

// PresignGet returns a signed GET URL for the object.
func (s *Store) PresignGet(ctx context.Context, key string, expiry time.Duration) (string, error) {
	req, err := s.presigner.PresignGetObject(ctx, &awss3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	}, awss3.WithPresignExpires(expiry))
	if err != nil {
		return "", fmt.Errorf("failed to presign GET for %s/%s: %w", s.bucket, key, err)
	}
	return req.URL, nil
}

// HealthCheck verifies the bucket is reachable with the configured
// credentials.
func (s *Store) HealthCheck(ctx context.Context) error {
	_, err := s.client.HeadBucket(ctx, &awss3.HeadBucketInput{
		Bucket: aws.String(s.bucket),
	})
	if err != nil {
		var apiErr smithy.APIError
		if errors.As(err, &apiErr) {
			return fmt.Errorf("bucket %s not reachable (%s): %w", s.bucket, apiErr.ErrorCode(), err)
		}
		return fmt.Errorf("bucket %s not reachable: %w", s.bucket, err)
	}
	return nil
}

// IsNotFound reports whether err is the backend telling us the object does
// not exist.
func IsNotFound(err error) bool {
	var noSuchKey *types.NoSuchKey
	if errors.As(err, &noSuchKey) {
		return true
	}
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		code := apiErr.ErrorCode()
		return code == "NoSuchKey" || code == "NotFound"
	}
	return false
}
