package gateway

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"net/url"
	"regexp"
	"strings"

	"github.com/marketlens/client/internal/domain"
)

var dataURIPattern = regexp.MustCompile(`(?is)^data:([^;,]+)?(;[^,]*)?,(.*)$`)

// FetchImage downloads an http(s) image or decodes an inline data URI.
// A declared non-image content type fails with *domain.InvalidMediaTypeError
// before the body is read. Bodies above the configured limit fail with
// *domain.PayloadTooLargeError carrying the real size; the fetch itself has
// no timeout beyond ctx.
func (c *Client) FetchImage(ctx context.Context, ref string) (*domain.FetchedImage, error) {
	trimmed := strings.TrimSpace(ref)
	if trimmed == "" {
		return nil, errors.New("empty image reference")
	}
	if strings.HasPrefix(strings.ToLower(trimmed), "data:") {
		return decodeDataURI(trimmed)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, trimmed, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)

	resp, err := c.fetchClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		return nil, fmt.Errorf("failed to fetch image: %d", resp.StatusCode)
	}

	// type is checked before size so a non-image fails the same way whatever its length
	mediaType := parseMediaType(resp.Header.Get("Content-Type"))
	declared := mediaType
	if declared == "" {
		declared = domain.DefaultImageMediaType
	}
	if !domain.IsImageMediaType(declared) {
		return nil, &domain.InvalidMediaTypeError{MediaType: mediaType}
	}

	if resp.ContentLength > c.maxImageBytes {
		return nil, &domain.PayloadTooLargeError{Size: resp.ContentLength, Limit: c.maxImageBytes}
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, c.maxImageBytes+1))
	if err != nil {
		return nil, fmt.Errorf("failed to read image: %w", err)
	}
	if int64(len(data)) > c.maxImageBytes {
		rest, err := io.Copy(io.Discard, resp.Body)
		if err != nil {
			return nil, fmt.Errorf("failed to read image: %w", err)
		}
		return nil, &domain.PayloadTooLargeError{Size: int64(len(data)) + rest, Limit: c.maxImageBytes}
	}

	return &domain.FetchedImage{
		Data:      data,
		MediaType: mediaType,
		Size:      int64(len(data)),
	}, nil
}

func parseMediaType(value string) string {
	parsed, _, err := mime.ParseMediaType(strings.TrimSpace(value))
	if err != nil {
		return ""
	}
	return parsed
}

func decodeDataURI(uri string) (*domain.FetchedImage, error) {
	m := dataURIPattern.FindStringSubmatch(uri)
	if m == nil {
		return nil, errors.New("malformed data URI")
	}
	mediaType := strings.ToLower(strings.TrimSpace(m[1]))
	params := strings.ToLower(m[2])
	payload := m[3]

	var data []byte
	if strings.Contains(params, ";base64") {
		cleaned := strings.Map(func(r rune) rune {
			switch r {
			case ' ', '\n', '\r', '\t':
				return -1
			}
			return r
		}, payload)
		decoded, err := base64.StdEncoding.DecodeString(cleaned)
		if err != nil {
			decoded, err = base64.RawStdEncoding.DecodeString(strings.TrimRight(cleaned, "="))
			if err != nil {
				return nil, fmt.Errorf("invalid base64 data URI: %w", err)
			}
		}
		data = decoded
	} else {
		unescaped, err := url.PathUnescape(payload)
		if err != nil {
			return nil, fmt.Errorf("invalid data URI payload: %w", err)
		}
		data = []byte(unescaped)
	}

	return &domain.FetchedImage{
		Data:      data,
		MediaType: mediaType,
		Size:      int64(len(data)),
	}, nil
}
