package domain

import (
	"strings"
	"sync/atomic"
)

// MaxUploadBytes is the largest payload accepted for submission (10 MiB).
const MaxUploadBytes int64 = 10 * 1024 * 1024

const (
	// DefaultImageName is used when a fetched image URL has no trailing path segment
	DefaultImageName = "sample-image.jpg"

	// DefaultImageMediaType is used when a fetched image has no declared content type
	DefaultImageMediaType = "image/jpeg"
)

// Provenance records where an uploadable resource came from
type Provenance string

const (
	ProvenanceLocalFile       Provenance = "local-file"
	ProvenanceRemoteURL       Provenance = "remote-url"
	ProvenanceEmbeddedHTML    Provenance = "embedded-html"
	ProvenanceSampleSelection Provenance = "sample-selection"
)

// UploadableResource is a validated image payload ready for submission.
// It is handed to exactly one submission; see Consume.
type UploadableResource struct {
	Data       []byte
	MediaType  string
	Name       string
	Size       int64
	Provenance Provenance

	consumed atomic.Bool
}

// Consume marks the resource as submitted. The second call fails.
func (r *UploadableResource) Consume() error {
	if !r.consumed.CompareAndSwap(false, true) {
		return ErrResourceConsumed
	}
	return nil
}

// Consumed reports whether the resource was already submitted
func (r *UploadableResource) Consumed() bool {
	return r.consumed.Load()
}

// ValidateResource checks media type and size against the upload limit.
// A non-positive limit falls back to MaxUploadBytes.
func ValidateResource(mediaType string, size, limit int64) error {
	if limit <= 0 {
		limit = MaxUploadBytes
	}
	if !IsImageMediaType(mediaType) {
		return &InvalidMediaTypeError{MediaType: mediaType}
	}
	if size > limit {
		return &PayloadTooLargeError{Size: size, Limit: limit}
	}
	return nil
}

// IsImageMediaType reports whether mediaType names an image type
func IsImageMediaType(mediaType string) bool {
	return strings.HasPrefix(strings.ToLower(strings.TrimSpace(mediaType)), "image/")
}

// PlaceholderImage is shown when an image cannot be resolved or loaded.
const PlaceholderImage = "data:image/svg+xml;base64,PHN2ZyB3aWR0aD0iMjAwIiBoZWlnaHQ9IjIwMCIgeG1sbnM9Imh0dHA6Ly93d3cudzMub3JnLzIwMDAvc3ZnIj48cmVjdCB3aWR0aD0iMTAwJSIgaGVpZ2h0PSIxMDAlIiBmaWxsPSIjZGRkIi8+PHRleHQgeD0iNTAlIiB5PSI1MCUiIGZvbnQtZmFtaWx5PSJBcmlhbCwgc2Fucy1zZXJpZiIgZm9udC1zaXplPSIxNCIgZmlsbD0iIzk5OSIgdGV4dC1hbmNob3I9Im1pZGRsZSIgZHk9Ii4zZW0iPkltYWdlIG5vdCBmb3VuZDwvdGV4dD48L3N2Zz4="
