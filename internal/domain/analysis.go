package domain

// DuplicateMeta is the catalog metadata attached to a duplicate match
type DuplicateMeta struct {
	Title     string `json:"title"`
	PostingID string `json:"posting_id"`
}

// DuplicateMatch is one /dedup/image result
type DuplicateMatch struct {
	Score    float64       `json:"score"`
	Meta     DuplicateMeta `json:"meta"`
	ImageURL string        `json:"image_url,omitempty"`
	ImageKey string        `json:"image_key,omitempty"`
}

// DuplicateResponse is the /dedup/image response body
type DuplicateResponse struct {
	Results []DuplicateMatch `json:"results"`
}

// SearchKind selects the semantic search endpoint
type SearchKind string

const (
	SearchText  SearchKind = "text"
	SearchImage SearchKind = "image"
)

// SearchRequest is the JSON body of /search-text and /search-image
type SearchRequest struct {
	Query string `json:"query"`
}

// SearchHit is one semantic search result
type SearchHit struct {
	Title     string  `json:"title"`
	Score     float64 `json:"score"`
	ImagePath string  `json:"image_path"`
	PostingID string  `json:"posting_id"`
	ImageURL  string  `json:"image_url,omitempty"` // filled in by the client
}

// SearchResponse is the semantic search response body
type SearchResponse struct {
	Results []SearchHit `json:"results"`
}

// FraudAnalysis is the /analyze-fraud response body
type FraudAnalysis struct {
	FraudScore       float64        `json:"fraud_score"`
	FraudProbability float64        `json:"fraud_probability"`
	RiskLevel        string         `json:"risk_level"`
	Confidence       float64        `json:"confidence"`
	AnalysisDetails  map[string]any `json:"analysis_details"`
}

// RandomImagesResponse is the /random-images response body
type RandomImagesResponse struct {
	Images []SampleImageDescriptor `json:"images"`
}
