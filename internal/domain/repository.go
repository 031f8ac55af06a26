package domain

import (
	"context"
	"encoding/json"
	"io"
)

// CallOptions describes a single request to the analysis backend
type CallOptions struct {
	Method      string
	Query       map[string]string
	Body        io.Reader
	ContentType string
}

// Gateway issues requests to the analysis backend and unifies the error shape
type Gateway interface {
	Call(ctx context.Context, endpoint string, opts CallOptions) (json.RawMessage, error)
}

// ImageFetcher downloads an image reference (http(s) URL or data URI)
type ImageFetcher interface {
	FetchImage(ctx context.Context, ref string) (*FetchedImage, error)
}

// FetchedImage is the raw outcome of a successful image fetch
type FetchedImage struct {
	Data      []byte
	MediaType string // declared content type, empty when absent
	Size      int64
}

// StorageDetector reports which storage backend serves images
type StorageDetector interface {
	StorageInfo(ctx context.Context) (*StorageInfo, error)
}

// HealthChecker issues one bounded health request and returns the HTTP status
type HealthChecker interface {
	CheckHealth(ctx context.Context) (int, error)
}

// ProbeObserver receives connectivity probe outcomes (metrics, status indicators)
type ProbeObserver interface {
	ObserveProbe(outcome ProbeOutcome)
}
