package usecase

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"mime"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/gabriel-vasile/mimetype"
	"github.com/marketlens/client/internal/domain"
)

// imageSourceRegex pulls the first double-quoted src attribute out of an <img> tag.
// Best-effort only; the fragment is never parsed as markup.
var imageSourceRegex = regexp.MustCompile(`<img[^>]+src="([^"]+)"`)

// LocalFile is a file handed over directly by a file picker or a file drop
type LocalFile struct {
	Name      string
	MediaType string
	Size      int64
	Open      func() (io.ReadCloser, error)
}

// NewLocalFile wraps an in-memory payload as a local file
func NewLocalFile(name, mediaType string, data []byte) LocalFile {
	return LocalFile{
		Name:      name,
		MediaType: mediaType,
		Size:      int64(len(data)),
		Open: func() (io.ReadCloser, error) {
			return io.NopCloser(bytes.NewReader(data)), nil
		},
	}
}

// OpenLocalFile describes a file on disk. The media type comes from the
// extension, falling back to content sniffing.
func OpenLocalFile(filePath string) (LocalFile, error) {
	info, err := os.Stat(filePath)
	if err != nil {
		return LocalFile{}, fmt.Errorf("failed to stat %s: %w", filePath, err)
	}
	if info.IsDir() {
		return LocalFile{}, fmt.Errorf("%s is a directory", filePath)
	}

	mediaType := mime.TypeByExtension(strings.ToLower(filepath.Ext(filePath)))
	if parsed, _, err := mime.ParseMediaType(mediaType); err == nil {
		mediaType = parsed
	} else {
		mediaType = ""
	}
	if mediaType == "" {
		if detected, err := mimetype.DetectFile(filePath); err == nil {
			mediaType = detected.String()
			if parsed, _, err := mime.ParseMediaType(mediaType); err == nil {
				mediaType = parsed
			}
		}
	}

	return LocalFile{
		Name:      filepath.Base(filePath),
		MediaType: mediaType,
		Size:      info.Size(),
		Open: func() (io.ReadCloser, error) {
			return os.Open(filePath)
		},
	}, nil
}

// DropEvent is one ingestion event from a drop, a file picker or an in-app drag.
// Any combination of fields may be set.
type DropEvent struct {
	Files  []LocalFile
	Text   string // text/plain payload
	HTML   string // text/html payload
	Sample *domain.SampleImageDescriptor
}

// DropResolver turns an ingestion event into a single validated resource
type DropResolver struct {
	fetcher  domain.ImageFetcher
	maxBytes int64
}

// NewDropResolver creates a drop resolver. A non-positive maxBytes uses the 10 MiB default.
func NewDropResolver(fetcher domain.ImageFetcher, maxBytes int64) *DropResolver {
	if maxBytes <= 0 {
		maxBytes = domain.MaxUploadBytes
	}
	return &DropResolver{
		fetcher:  fetcher,
		maxBytes: maxBytes,
	}
}

// Resolve applies the resolution policies in order: local file, in-app
// sample drag, image URL in the text payload, <img> in the HTML payload.
// The first policy that applies decides the outcome; there is no fallthrough
// on failure.
func (d *DropResolver) Resolve(ctx context.Context, event DropEvent) (*domain.UploadableResource, error) {
	if len(event.Files) > 0 {
		return d.fromLocalFile(event.Files[0])
	}

	if event.Sample != nil {
		return d.ResolveSample(ctx, *event.Sample)
	}

	if ref, ok := textImageReference(event.Text); ok {
		log.Printf("[Drop] Fetching dropped image URL")
		return d.fromRemote(ctx, ref, "", domain.ProvenanceRemoteURL, domain.ErrRemoteFetchFailed)
	}

	if ref, ok := ExtractImageSource(event.HTML); ok {
		log.Printf("[Drop] Fetching image embedded in dropped HTML")
		return d.fromRemote(ctx, ref, "", domain.ProvenanceEmbeddedHTML, domain.ErrRemoteFetchFailed)
	}

	return nil, domain.ErrNoPayloadDetected
}

// ResolveSample fetches a server-offered sample image
func (d *DropResolver) ResolveSample(ctx context.Context, sample domain.SampleImageDescriptor) (*domain.UploadableResource, error) {
	ref := strings.TrimSpace(sample.URL)
	if ref == "" {
		return nil, &domain.FetchError{Kind: domain.ErrSampleFetchFailed, Reason: "sample has no resolved URL"}
	}
	return d.fromRemote(ctx, ref, sample.Name, domain.ProvenanceSampleSelection, domain.ErrSampleFetchFailed)
}

func (d *DropResolver) fromLocalFile(file LocalFile) (*domain.UploadableResource, error) {
	if err := domain.ValidateResource(file.MediaType, file.Size, d.maxBytes); err != nil {
		return nil, err
	}
	if file.Open == nil {
		return nil, domain.ErrNoPayloadDetected
	}

	rc, err := file.Open()
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", file.Name, err)
	}
	defer rc.Close()

	data, err := io.ReadAll(io.LimitReader(rc, d.maxBytes+1))
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", file.Name, err)
	}
	size := int64(len(data))
	if size > d.maxBytes {
		// the handle grew past its declared size
		rest, _ := io.Copy(io.Discard, rc)
		return nil, &domain.PayloadTooLargeError{Size: size + rest, Limit: d.maxBytes}
	}

	return &domain.UploadableResource{
		Data:       data,
		MediaType:  file.MediaType,
		Name:       file.Name,
		Size:       size,
		Provenance: domain.ProvenanceLocalFile,
	}, nil
}

func (d *DropResolver) fromRemote(ctx context.Context, ref, name string, provenance domain.Provenance, kind error) (*domain.UploadableResource, error) {
	img, err := d.fetcher.FetchImage(ctx, ref)
	if err != nil {
		if errors.Is(err, domain.ErrInvalidMediaType) || errors.Is(err, domain.ErrPayloadTooLarge) {
			return nil, err
		}
		log.Printf("[Drop] Failed to fetch image: %v", err)
		return nil, &domain.FetchError{Kind: kind, URL: ref, Reason: err.Error(), Err: err}
	}

	mediaType := img.MediaType
	if mediaType == "" {
		mediaType = domain.DefaultImageMediaType
	}
	if err := domain.ValidateResource(mediaType, img.Size, d.maxBytes); err != nil {
		return nil, err
	}

	if strings.TrimSpace(name) == "" {
		name = DisplayNameFromURL(ref)
	}

	return &domain.UploadableResource{
		Data:       img.Data,
		MediaType:  mediaType,
		Name:       name,
		Size:       img.Size,
		Provenance: provenance,
	}, nil
}

// textImageReference accepts text that starts with an http(s) scheme or an inline image data URI
func textImageReference(text string) (string, bool) {
	trimmed := strings.TrimSpace(text)
	lower := strings.ToLower(trimmed)
	if strings.HasPrefix(lower, "http://") ||
		strings.HasPrefix(lower, "https://") ||
		strings.HasPrefix(lower, "data:image") {
		return trimmed, true
	}
	return "", false
}

// ExtractImageSource returns the src of the first <img> tag in an HTML fragment
func ExtractImageSource(html string) (string, bool) {
	if html == "" {
		return "", false
	}
	m := imageSourceRegex.FindStringSubmatch(html)
	if m == nil || strings.TrimSpace(m[1]) == "" {
		return "", false
	}
	return strings.TrimSpace(m[1]), true
}

// DisplayNameFromURL returns the trailing path segment of ref, or the default image name
func DisplayNameFromURL(ref string) string {
	if strings.HasPrefix(strings.ToLower(ref), "data:") {
		return domain.DefaultImageName
	}
	u, err := url.Parse(ref)
	if err != nil {
		return domain.DefaultImageName
	}
	base := path.Base(u.Path)
	if base == "" || base == "." || base == "/" {
		return domain.DefaultImageName
	}
	return base
}
