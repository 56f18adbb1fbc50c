package gcs

import (
	"fmt"
	"path"
	"strings"

	"cloud.google.com/go/civil"
	"github.com/google/uuid"
)

const uriScheme = "gs://"

// IsURI reports whether s looks like a gs:// object reference.
func IsURI(s string) bool {
	return strings.HasPrefix(s, uriScheme)
}

// BuildURI formats a gs:// URI.
func BuildURI(bucket, objectName string) string {
	return uriScheme + bucket + "/" + objectName
}

// ParseURI splits gs://bucket/path/to/object into bucket and object path.
func ParseURI(gcsURI string) (bucket, object string, err error) {
	if !IsURI(gcsURI) {
		return "", "", fmt.Errorf("invalid GCS URI: %s", gcsURI)
	}

	trimmed := strings.TrimPrefix(gcsURI, uriScheme)
	parts := strings.SplitN(trimmed, "/", 2)
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return "", "", fmt.Errorf("invalid GCS URI (no object path): %s", gcsURI)
	}

	return parts[0], parts[1], nil
}

// ExtractFilenameFromURI extracts the filename from a GCS URI.
// e.g., "gs://bucket/folder/file.jpg" → "file.jpg"
func ExtractFilenameFromURI(uri string) string {
	trimmed := strings.TrimPrefix(uri, uriScheme)

	parts := strings.SplitN(trimmed, "/", 2)
	if len(parts) < 2 {
		return trimmed
	}

	return path.Base(parts[1])
}

// OwnerPrefix is the object-name prefix under which an owner's images live.
func OwnerPrefix(ownerID int64) string {
	return fmt.Sprintf("receipts/%d/", ownerID)
}

// ReceiptObjectName returns a fresh object name for an uploaded image:
// receipts/{owner}/{yyyy-mm-dd}/{uuid}{ext}.
func ReceiptObjectName(ownerID int64, day civil.Date, ext string) string {
	if ext != "" && !strings.HasPrefix(ext, ".") {
		ext = "." + ext
	}
	return fmt.Sprintf("%s%s/%s%s", OwnerPrefix(ownerID), day, uuid.NewString(), strings.ToLower(ext))
}

// OwnedBy reports whether the URI points into bucket under the owner's prefix.
func OwnedBy(gcsURI, bucket string, ownerID int64) bool {
	b, object, err := ParseURI(gcsURI)
	if err != nil {
		return false
	}
	return b == bucket && strings.HasPrefix(object, OwnerPrefix(ownerID)) && !strings.Contains(object, "..")
}
