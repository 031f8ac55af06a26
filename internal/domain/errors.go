package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrNoPayloadDetected is returned when an ingestion event carries nothing usable
	ErrNoPayloadDetected = errors.New("no files detected. Please use the sample image selector or drag a local image file")

	// ErrInvalidMediaType is returned when a payload is not an image
	ErrInvalidMediaType = errors.New("invalid media type")

	// ErrPayloadTooLarge is returned when a payload exceeds the upload limit
	ErrPayloadTooLarge = errors.New("payload too large")

	// ErrRemoteFetchFailed is returned when a dropped image reference cannot be fetched
	ErrRemoteFetchFailed = errors.New("failed to load image")

	// ErrSampleFetchFailed is returned when a selected sample image cannot be fetched
	ErrSampleFetchFailed = errors.New("failed to load selected image")

	// ErrNetwork is returned when the backend cannot be reached or answers garbage
	ErrNetwork = errors.New("network error")

	// ErrService is returned when the backend reports an error in its response body
	ErrService = errors.New("service error")

	// ErrResourceConsumed is returned when a resource is submitted a second time
	ErrResourceConsumed = errors.New("resource already submitted")

	// ErrNoResource is returned when a submission is attempted without a resource
	ErrNoResource = errors.New("please select an image first")

	// ErrEmptyQuery is returned when a search query is blank
	ErrEmptyQuery = errors.New("please enter a search query")
)

// InvalidMediaTypeError reports the media type that failed validation.
type InvalidMediaTypeError struct {
	MediaType string
}

func (e *InvalidMediaTypeError) Error() string {
	received := e.MediaType
	if received == "" {
		received = "unknown type"
	}
	return fmt.Sprintf("Please select an image file. Received: %s", received)
}

func (e *InvalidMediaTypeError) Is(target error) bool {
	return target == ErrInvalidMediaType
}

// PayloadTooLargeError reports the actual payload size against the limit.
type PayloadTooLargeError struct {
	Size  int64
	Limit int64
}

func (e *PayloadTooLargeError) Error() string {
	return fmt.Sprintf("File too large. Maximum size is %s. Your file: %.1fMB (%d bytes)",
		formatLimit(e.Limit), float64(e.Size)/1024/1024, e.Size)
}

func (e *PayloadTooLargeError) Is(target error) bool {
	return target == ErrPayloadTooLarge
}

func formatLimit(limit int64) string {
	if limit%(1024*1024) == 0 {
		return fmt.Sprintf("%dMB", limit/(1024*1024))
	}
	return fmt.Sprintf("%d bytes", limit)
}

// FetchError wraps a failed image fetch. Kind is ErrRemoteFetchFailed or ErrSampleFetchFailed.
type FetchError struct {
	Kind   error
	URL    string
	Reason string
	Err    error
}

func (e *FetchError) Error() string {
	return fmt.Sprintf("%s: %s", capitalize(e.Kind.Error()), e.Reason)
}

func (e *FetchError) Is(target error) bool {
	return target == e.Kind
}

func (e *FetchError) Unwrap() error {
	return e.Err
}

// ServiceError carries the message the backend put in its error field.
type ServiceError struct {
	Message    string
	StatusCode int
}

func (e *ServiceError) Error() string {
	return e.Message
}

func (e *ServiceError) Is(target error) bool {
	return target == ErrService
}

// UserMessage renders an error as the single line shown to the user.
func UserMessage(err error) string {
	if err == nil {
		return ""
	}
	return capitalize(err.Error())
}

func capitalize(s string) string {
	if s == "" {
		return s
	}
	if s[0] >= 'a' && s[0] <= 'z' {
		return string(s[0]-'a'+'A') + s[1:]
	}
	return s
}
