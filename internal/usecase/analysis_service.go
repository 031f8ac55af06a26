package usecase

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"strconv"
	"strings"

	"github.com/marketlens/client/internal/domain"
)

// DefaultSampleCount is how many sample images the selector asks for
const DefaultSampleCount = 6

// fallbackSamples are offered when the backend cannot list samples
var fallbackSamples = []domain.SampleImageDescriptor{
	{ID: "1", Name: "Product 1", Path: "sample1.jpg"},
	{ID: "2", Name: "Product 2", Path: "sample2.jpg"},
	{ID: "3", Name: "Product 3", Path: "sample3.jpg"},
	{ID: "4", Name: "Product 4", Path: "sample4.jpg"},
	{ID: "5", Name: "Product 5", Path: "sample5.jpg"},
	{ID: "6", Name: "Product 6", Path: "sample6.jpg"},
}

// AnalysisService submits resources and queries to the analysis backend and
// resolves the image identifiers in what comes back.
type AnalysisService struct {
	gateway  domain.Gateway
	resolver *ResourceResolver
}

// NewAnalysisService creates a new analysis service with dependencies
func NewAnalysisService(gateway domain.Gateway, resolver *ResourceResolver) *AnalysisService {
	return &AnalysisService{
		gateway:  gateway,
		resolver: resolver,
	}
}

// FindDuplicates submits res to /dedup/image. topK <= 0 leaves the backend default.
func (s *AnalysisService) FindDuplicates(ctx context.Context, res *domain.UploadableResource, topK int) ([]domain.DuplicateMatch, error) {
	fields := map[string]string{}
	if topK > 0 {
		fields["top_k"] = strconv.Itoa(topK)
	}

	var resp domain.DuplicateResponse
	if err := s.submit(ctx, "/dedup/image", res, fields, &resp); err != nil {
		return nil, err
	}

	for i := range resp.Results {
		match := &resp.Results[i]
		if match.ImageURL != "" {
			continue
		}
		match.ImageURL = s.resolver.ResolveOrPlaceholder(ctx, match.ImageKey)
	}
	return resp.Results, nil
}

// AnalyzeFraud submits res to /analyze-fraud
func (s *AnalysisService) AnalyzeFraud(ctx context.Context, res *domain.UploadableResource) (*domain.FraudAnalysis, error) {
	var analysis domain.FraudAnalysis
	if err := s.submit(ctx, "/analyze-fraud", res, nil, &analysis); err != nil {
		return nil, err
	}
	if analysis.AnalysisDetails == nil {
		analysis.AnalysisDetails = map[string]any{}
	}
	return &analysis, nil
}

// Search runs a semantic search. The query is trimmed and must not be blank.
func (s *AnalysisService) Search(ctx context.Context, kind domain.SearchKind, query string) ([]domain.SearchHit, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, domain.ErrEmptyQuery
	}

	endpoint := "/search-text"
	if kind == domain.SearchImage {
		endpoint = "/search-image"
	}

	body, err := json.Marshal(domain.SearchRequest{Query: query})
	if err != nil {
		return nil, fmt.Errorf("failed to encode query: %w", err)
	}

	raw, err := s.gateway.Call(ctx, endpoint, domain.CallOptions{
		Method:      http.MethodPost,
		Body:        bytes.NewReader(body),
		ContentType: "application/json",
	})
	if err != nil {
		return nil, err
	}

	var resp domain.SearchResponse
	if err := json.Unmarshal(raw, &resp); err != nil {
		return nil, fmt.Errorf("%w: failed to decode response: %v", domain.ErrNetwork, err)
	}

	for i := range resp.Results {
		hit := &resp.Results[i]
		hit.ImageURL = s.resolver.ResolveOrPlaceholder(ctx, hit.ImagePath)
	}
	return resp.Results, nil
}

// RandomSamples lists sample images with resolved URLs. It never fails:
// when the backend cannot be asked, the fixed fallback set is returned.
func (s *AnalysisService) RandomSamples(ctx context.Context, count int) []domain.SampleImageDescriptor {
	if count <= 0 {
		count = DefaultSampleCount
	}

	raw, err := s.gateway.Call(ctx, "/random-images", domain.CallOptions{
		Query: map[string]string{"count": strconv.Itoa(count)},
	})
	if err != nil {
		log.Printf("[Samples] Failed to fetch random images: %v", err)
		return s.fallbackSamples(ctx, count)
	}

	var resp domain.RandomImagesResponse
	if err := json.Unmarshal(raw, &resp); err != nil {
		log.Printf("[Samples] Failed to decode random images: %v", err)
		return s.fallbackSamples(ctx, count)
	}

	for i := range resp.Images {
		resp.Images[i].URL, _ = s.resolver.Resolve(ctx, resp.Images[i].Path)
	}
	return resp.Images
}

func (s *AnalysisService) fallbackSamples(ctx context.Context, count int) []domain.SampleImageDescriptor {
	if count > len(fallbackSamples) {
		count = len(fallbackSamples)
	}
	samples := make([]domain.SampleImageDescriptor, count)
	copy(samples, fallbackSamples[:count])
	for i := range samples {
		samples[i].URL, _ = s.resolver.Resolve(ctx, samples[i].Path)
	}
	return samples
}

// submit posts res as the multipart field "file" and decodes the reply into out.
// The resource is consumed before anything is sent.
func (s *AnalysisService) submit(ctx context.Context, endpoint string, res *domain.UploadableResource, fields map[string]string, out any) error {
	if res == nil {
		return domain.ErrNoResource
	}
	if err := res.Consume(); err != nil {
		return err
	}

	body, contentType, err := multipartBody(res, fields)
	if err != nil {
		return err
	}

	raw, err := s.gateway.Call(ctx, endpoint, domain.CallOptions{
		Method:      http.MethodPost,
		Body:        body,
		ContentType: contentType,
	})
	if err != nil {
		return err
	}

	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("%w: failed to decode response: %v", domain.ErrNetwork, err)
	}
	return nil
}

func multipartBody(res *domain.UploadableResource, fields map[string]string) (*bytes.Buffer, string, error) {
	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)

	header := make(textproto.MIMEHeader)
	header.Set("Content-Disposition", fmt.Sprintf(`form-data; name="file"; filename=%q`, res.Name))
	header.Set("Content-Type", res.MediaType)
	part, err := writer.CreatePart(header)
	if err != nil {
		return nil, "", fmt.Errorf("failed to build upload: %w", err)
	}
	if _, err := part.Write(res.Data); err != nil {
		return nil, "", fmt.Errorf("failed to build upload: %w", err)
	}

	for k, v := range fields {
		if err := writer.WriteField(k, v); err != nil {
			return nil, "", fmt.Errorf("failed to build upload: %w", err)
		}
	}
	if err := writer.Close(); err != nil {
		return nil, "", fmt.Errorf("failed to build upload: %w", err)
	}
	return &buf, writer.FormDataContentType(), nil
}
