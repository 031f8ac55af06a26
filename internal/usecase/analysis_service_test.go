package usecase

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/marketlens/client/internal/domain"
	"github.com/marketlens/client/internal/infrastructure/gateway"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// newBackend starts a fake analysis backend in local storage mode
func newBackend(t *testing.T, routes map[string]http.HandlerFunc) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/storage-info", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"storage_type": "local"}`))
	})
	for pattern, handler := range routes {
		mux.HandleFunc(pattern, handler)
	}
	server := httptest.NewServer(mux)
	t.Cleanup(server.Close)
	return server
}

func newTestService(server *httptest.Server) *AnalysisService {
	client := gateway.NewClient(server.URL, gateway.ClientConfig{})
	resolver := NewResourceResolver(ResolverConfig{APIBase: server.URL}, client)
	return NewAnalysisService(client, resolver)
}

func testResource() *domain.UploadableResource {
	return &domain.UploadableResource{
		Data:       []byte("\xff\xd8\xffjpeg"),
		MediaType:  "image/jpeg",
		Name:       "mug.jpg",
		Size:       7,
		Provenance: domain.ProvenanceLocalFile,
	}
}

func TestAnalysisService_FindDuplicates(t *testing.T) {
	server := newBackend(t, map[string]http.HandlerFunc{
		"/dedup/image": func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, http.MethodPost, r.Method)
			require.NoError(t, r.ParseMultipartForm(1<<20))
			assert.Equal(t, "3", r.FormValue("top_k"))

			file, header, err := r.FormFile("file")
			require.NoError(t, err)
			defer file.Close()
			data, _ := io.ReadAll(file)
			assert.Equal(t, "mug.jpg", header.Filename)
			assert.Equal(t, "image/jpeg", header.Header.Get("Content-Type"))
			assert.Equal(t, []byte("\xff\xd8\xffjpeg"), data)

			json.NewEncoder(w).Encode(map[string]any{"results": []map[string]any{
				{"score": 0.98, "meta": map[string]string{"title": "Mug", "posting_id": "p1"}, "image_url": "https://cdn/p1.jpg"},
				{"score": 0.91, "meta": map[string]string{"title": "Cup", "posting_id": "p2"}, "image_key": "train_images/p2.jpg"},
				{"score": 0.50, "meta": map[string]string{"title": "Bowl", "posting_id": "p3"}},
			}})
		},
	})
	service := newTestService(server)
	res := testResource()

	matches, err := service.FindDuplicates(context.Background(), res, 3)

	require.NoError(t, err)
	require.Len(t, matches, 3)
	assert.Equal(t, "https://cdn/p1.jpg", matches[0].ImageURL)
	assert.Equal(t, server.URL+"/images/train_images/p2.jpg", matches[1].ImageURL)
	assert.Equal(t, domain.PlaceholderImage, matches[2].ImageURL)
	assert.Equal(t, "p2", matches[1].Meta.PostingID)
	assert.True(t, res.Consumed())
}

func TestAnalysisService_SubmitConsumesOnce(t *testing.T) {
	calls := 0
	server := newBackend(t, map[string]http.HandlerFunc{
		"/analyze-fraud": func(w http.ResponseWriter, r *http.Request) {
			calls++
			w.Write([]byte(`{"fraud_score": 0.2, "fraud_probability": 0.1, "risk_level": "low", "confidence": 0.9}`))
		},
	})
	service := newTestService(server)
	res := testResource()

	analysis, err := service.AnalyzeFraud(context.Background(), res)
	require.NoError(t, err)
	assert.Equal(t, "low", analysis.RiskLevel)
	assert.NotNil(t, analysis.AnalysisDetails)

	_, err = service.AnalyzeFraud(context.Background(), res)
	assert.ErrorIs(t, err, domain.ErrResourceConsumed)
	assert.Equal(t, 1, calls)
}

func TestAnalysisService_NoResource(t *testing.T) {
	service := newTestService(newBackend(t, nil))

	_, err := service.FindDuplicates(context.Background(), nil, 0)
	assert.ErrorIs(t, err, domain.ErrNoResource)

	_, err = service.AnalyzeFraud(context.Background(), nil)
	assert.ErrorIs(t, err, domain.ErrNoResource)
}

func TestAnalysisService_ServiceErrorSurfacesMessage(t *testing.T) {
	server := newBackend(t, map[string]http.HandlerFunc{
		"/analyze-fraud": func(w http.ResponseWriter, r *http.Request) {
			w.Write([]byte(`{"error": "Fraud model not available"}`))
		},
	})
	service := newTestService(server)

	_, err := service.AnalyzeFraud(context.Background(), testResource())

	assert.ErrorIs(t, err, domain.ErrService)
	assert.Equal(t, "Fraud model not available", domain.UserMessage(err))
}

func TestAnalysisService_Search(t *testing.T) {
	server := newBackend(t, map[string]http.HandlerFunc{
		"/search-text": func(w http.ResponseWriter, r *http.Request) {
			var req domain.SearchRequest
			require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
			assert.Equal(t, "red running shoes", req.Query)
			w.Write([]byte(`{"results": [{"title": "Shoe", "score": 0.8, "image_path": "test_images/s.jpg", "posting_id": "s1"}]}`))
		},
		"/search-image": func(w http.ResponseWriter, r *http.Request) {
			w.Write([]byte(`{"results": [{"title": "Pic", "score": 0.7, "image_path": "https://cdn/pic.jpg", "posting_id": "i1"}]}`))
		},
	})
	service := newTestService(server)

	hits, err := service.Search(context.Background(), domain.SearchText, "  red running shoes ")
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.Equal(t, server.URL+"/images/test_images/s.jpg", hits[0].ImageURL)

	hits, err = service.Search(context.Background(), domain.SearchImage, "pic")
	require.NoError(t, err)
	assert.Equal(t, "https://cdn/pic.jpg", hits[0].ImageURL)
}

func TestAnalysisService_SearchEmptyQuery(t *testing.T) {
	service := newTestService(newBackend(t, nil))

	_, err := service.Search(context.Background(), domain.SearchText, "   ")

	assert.ErrorIs(t, err, domain.ErrEmptyQuery)
	assert.Equal(t, "Please enter a search query", domain.UserMessage(err))
}

func TestAnalysisService_RandomSamples(t *testing.T) {
	server := newBackend(t, map[string]http.HandlerFunc{
		"/random-images": func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, "2", r.URL.Query().Get("count"))
			w.Write([]byte(`{"images": [{"id": "a", "name": "A", "path": "train_images/a.jpg"}, {"id": "b", "name": "B", "path": "https://cdn/b.jpg"}]}`))
		},
	})
	service := newTestService(server)

	samples := service.RandomSamples(context.Background(), 2)

	require.Len(t, samples, 2)
	assert.Equal(t, server.URL+"/images/train_images/a.jpg", samples[0].URL)
	assert.Equal(t, "https://cdn/b.jpg", samples[1].URL)
}

func TestAnalysisService_RandomSamplesFallback(t *testing.T) {
	server := newBackend(t, map[string]http.HandlerFunc{
		"/random-images": func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusInternalServerError)
		},
	})
	service := newTestService(server)

	samples := service.RandomSamples(context.Background(), 0)
	require.Len(t, samples, DefaultSampleCount)
	assert.Equal(t, "Product 1", samples[0].Name)
	assert.Equal(t, server.URL+"/images/sample1.jpg", samples[0].URL)

	assert.Len(t, service.RandomSamples(context.Background(), 3), 3)
	assert.Len(t, service.RandomSamples(context.Background(), 50), len(fallbackSamples))
	assert.Empty(t, fallbackSamples[0].URL, "fallback set must not be mutated")
}

// failingGateway is a test double for domain.Gateway that always fails
type failingGateway struct{}

func (failingGateway) Call(ctx context.Context, endpoint string, opts domain.CallOptions) (json.RawMessage, error) {
	return nil, errors.New("unreachable")
}

func TestAnalysisService_NetworkError(t *testing.T) {
	service := NewAnalysisService(failingGateway{}, NewResourceResolver(ResolverConfig{APIBase: "http://localhost:8000"}, nil))

	_, err := service.Search(context.Background(), domain.SearchText, "mug")

	assert.EqualError(t, err, "unreachable")
}
