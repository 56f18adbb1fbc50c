package gcs

import (
	"context"
)

// ServiceName identifies this collaborator in ExternalServiceError.
const ServiceName = "object-storage"

// ObjectStore provides an interface for cloud storage operations.
// This interface enables mocking and testing of storage functionality.
type ObjectStore interface {
	// UploadObject stores data under objectName in the configured bucket and
	// returns its gs:// URI.
	UploadObject(ctx context.Context, objectName, contentType string, data []byte) (string, error)

	// FetchObject downloads object bytes from the given gs:// URI.
	FetchObject(ctx context.Context, gcsURI string) ([]byte, error)

	// DeleteObject removes the object at the given gs:// URI. A missing
	// object is not an error.
	DeleteObject(ctx context.Context, gcsURI string) error

	// Bucket is the bucket new objects are written to.
	Bucket() string
}
