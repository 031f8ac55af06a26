package usecase

import (
	"context"
	"log"
	"strings"
	"sync"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/marketlens/client/internal/domain"
)

const defaultResolverCacheSize = 1024

// ResolverConfig holds configuration for the resource resolver
type ResolverConfig struct {
	APIBase string
	// Override is an externally supplied blob base. When set, detection never runs.
	Override string
	// StrictBlob refuses the backend-served fallback: without a blob base nothing resolves.
	StrictBlob bool
	CacheSize  int
}

// ResourceResolver turns opaque image identifiers into fetchable URLs.
// The storage mode is detected at most once and cached for the session.
type ResourceResolver struct {
	apiBase  string
	strict   bool
	detector domain.StorageDetector

	detectMu sync.Mutex // serializes the one-time detection

	mu         sync.RWMutex
	mode       domain.StorageMode
	detected   bool
	overridden bool
	memo       *lru.Cache[string, string]
}

// NewResourceResolver creates a resolver. detector may be nil, in which case
// the local backend is assumed unless an override is configured.
func NewResourceResolver(config ResolverConfig, detector domain.StorageDetector) *ResourceResolver {
	size := config.CacheSize
	if size <= 0 {
		size = defaultResolverCacheSize
	}
	memo, err := lru.New[string, string](size)
	if err != nil {
		// lru.New only errors on non-positive size which we guard above.
		panic(err)
	}

	r := &ResourceResolver{
		apiBase:  strings.TrimRight(config.APIBase, "/"),
		strict:   config.StrictBlob,
		detector: detector,
		mode:     domain.StorageMode{Kind: domain.StorageLocalBackend},
		memo:     memo,
	}
	if base := strings.TrimRight(strings.TrimSpace(config.Override), "/"); base != "" {
		r.mode = domain.StorageMode{Kind: domain.StorageBlobBackend, Base: base}
		r.overridden = true
	}
	return r
}

// Mode returns a snapshot of the storage mode in effect
func (r *ResourceResolver) Mode() domain.StorageMode {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.mode
}

// SetOverride installs an externally supplied blob base. It wins over
// anything detection found and stops further detection.
func (r *ResourceResolver) SetOverride(base string) {
	base = strings.TrimRight(strings.TrimSpace(base), "/")
	if base == "" {
		return
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.mode = domain.StorageMode{Kind: domain.StorageBlobBackend, Base: base}
	r.overridden = true
	r.memo.Purge()
	log.Printf("[Storage] Override installed: blob base %s", base)
}

// Detect runs storage introspection once per session. Failures leave the
// local backend in place and are never returned.
func (r *ResourceResolver) Detect(ctx context.Context) domain.StorageMode {
	if r.settled() {
		return r.Mode()
	}

	r.detectMu.Lock()
	defer r.detectMu.Unlock()
	if r.settled() {
		return r.Mode()
	}

	mode := domain.StorageMode{Kind: domain.StorageLocalBackend}
	if r.detector != nil {
		info, err := r.detector.StorageInfo(ctx)
		if err != nil {
			log.Printf("[Storage] Detection failed, using backend-served images: %v", err)
		} else {
			mode = info.Mode()
			mode.Base = strings.TrimRight(mode.Base, "/")
		}
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.detected = true
	if r.overridden {
		// an override arrived while detection was running
		return r.mode
	}
	r.mode = mode
	r.memo.Purge()
	log.Printf("[Storage] Detected storage mode: %s %s", mode.Kind, mode.Base)
	return r.mode
}

func (r *ResourceResolver) settled() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.detected || r.overridden
}

// Resolve returns the fetchable URL for identifier, or false when there is
// no image. Absolute http(s) URLs and data URIs pass through unchanged.
func (r *ResourceResolver) Resolve(ctx context.Context, identifier string) (string, bool) {
	identifier = strings.TrimSpace(identifier)
	if identifier == "" {
		return "", false
	}
	if isPassThrough(identifier) {
		return identifier, true
	}

	r.Detect(ctx)

	// memo and mode change together under mu, so a purge never races a stale Add
	r.mu.Lock()
	defer r.mu.Unlock()
	if cached, ok := r.memo.Get(identifier); ok {
		return cached, cached != ""
	}

	var resolved string
	switch {
	case r.mode.BlobReady():
		resolved = r.mode.Base + "/" + identifier
	case r.strict:
		resolved = ""
	default:
		resolved = r.apiBase + "/images/" + identifier
	}

	r.memo.Add(identifier, resolved)
	return resolved, resolved != ""
}

// ResolveOrPlaceholder resolves identifier, substituting the placeholder image
func (r *ResourceResolver) ResolveOrPlaceholder(ctx context.Context, identifier string) string {
	if resolved, ok := r.Resolve(ctx, identifier); ok {
		return resolved
	}
	return domain.PlaceholderImage
}

func isPassThrough(identifier string) bool {
	lower := strings.ToLower(identifier)
	return strings.HasPrefix(lower, "http://") ||
		strings.HasPrefix(lower, "https://") ||
		strings.HasPrefix(lower, "data:")
}
