package gcs

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"cloud.google.com/go/storage"
	"google.golang.org/api/option"

	"github.com/dvloznov/receipt-tracker/internal/domain"
)

// uploadTimeout bounds a single object upload.
const uploadTimeout = 2 * time.Minute

// Storage is the ObjectStore backed by Google Cloud Storage.
// It assumes Application Default Credentials unless an emulator endpoint is set.
type Storage struct {
	client   *storage.Client
	bucket   string
	maxBytes int64
}

// NewStorage creates a storage client for bucket. A non-empty endpoint
// points the client at an emulator (fake-gcs-server) without authentication.
// maxBytes caps downloads; zero means unlimited.
func NewStorage(ctx context.Context, bucket, endpoint string, maxBytes int64) (*Storage, error) {
	var opts []option.ClientOption
	if endpoint != "" {
		opts = append(opts, option.WithEndpoint(endpoint), option.WithoutAuthentication())
	}

	client, err := storage.NewClient(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("create storage client: %w", err)
	}
	return &Storage{client: client, bucket: bucket, maxBytes: maxBytes}, nil
}

// Bucket implements ObjectStore.
func (s *Storage) Bucket() string {
	return s.bucket
}

// UploadObject implements ObjectStore.
func (s *Storage) UploadObject(ctx context.Context, objectName, contentType string, data []byte) (string, error) {
	if s.bucket == "" {
		return "", domain.ExternalFailure(ServiceName, errors.New("no bucket configured"))
	}

	ctx, cancel := context.WithTimeout(ctx, uploadTimeout)
	defer cancel()

	w := s.client.Bucket(s.bucket).Object(objectName).NewWriter(ctx)
	w.ContentType = contentType

	if _, err := io.Copy(w, bytes.NewReader(data)); err != nil {
		_ = w.Close()
		return "", domain.ExternalFailure(ServiceName, fmt.Errorf("copy to GCS writer: %w", err))
	}

	// Close to finalize the upload
	if err := w.Close(); err != nil {
		return "", domain.ExternalFailure(ServiceName, fmt.Errorf("finalize upload: %w", err))
	}

	return BuildURI(s.bucket, objectName), nil
}

// FetchObject implements ObjectStore. A missing object is a caller error.
func (s *Storage) FetchObject(ctx context.Context, gcsURI string) ([]byte, error) {
	bucketName, objectPath, err := ParseURI(gcsURI)
	if err != nil {
		return nil, domain.Invalid("image_ref", "%v", err)
	}

	rc, err := s.client.Bucket(bucketName).Object(objectPath).NewReader(ctx)
	if err != nil {
		if errors.Is(err, storage.ErrObjectNotExist) || errors.Is(err, storage.ErrBucketNotExist) {
			return nil, domain.Invalid("image_ref", "object %s does not exist", gcsURI)
		}
		return nil, domain.ExternalFailure(ServiceName, fmt.Errorf("reading object %s/%s: %w", bucketName, objectPath, err))
	}
	defer rc.Close()

	var r io.Reader = rc
	if s.maxBytes > 0 {
		if rc.Attrs.Size > s.maxBytes {
			return nil, domain.Invalid("image_ref", "object is larger than %d bytes", s.maxBytes)
		}
		r = io.LimitReader(rc, s.maxBytes)
	}

	data, err := io.ReadAll(r)
	if err != nil {
		return nil, domain.ExternalFailure(ServiceName, fmt.Errorf("reading bytes: %w", err))
	}

	return data, nil
}

// DeleteObject implements ObjectStore.
func (s *Storage) DeleteObject(ctx context.Context, gcsURI string) error {
	bucketName, objectPath, err := ParseURI(gcsURI)
	if err != nil {
		return domain.Invalid("image_ref", "%v", err)
	}

	err = s.client.Bucket(bucketName).Object(objectPath).Delete(ctx)
	if err != nil && !errors.Is(err, storage.ErrObjectNotExist) {
		return domain.ExternalFailure(ServiceName, fmt.Errorf("deleting object %s/%s: %w", bucketName, objectPath, err))
	}
	return nil
}

// Close releases the underlying client.
func (s *Storage) Close() error {
	return s.client.Close()
}

var _ ObjectStore = (*Storage)(nil)
