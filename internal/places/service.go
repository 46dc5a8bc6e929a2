package places

import (
	"context"
	"fmt"
	"strings"
	"time"

	apperrors "github.com/pawpoint/pawpoint/internal/errors"
	"github.com/pawpoint/pawpoint/internal/telemetry"
)

// Defaults applied when a caller passes a negative radius or top-N.
// An explicit TopN of zero is honored and yields an empty result set.
const (
	DefaultRadiusM = 1500
	DefaultTopN    = 20
)

// ResultCache caches finished search results keyed by request shape.
// Implemented by the Redis cache; nil disables caching.
type ResultCache interface {
	GetPlaces(ctx context.Context, key string, dest interface{}) error
	SetPlaces(ctx context.Context, key string, data interface{}) error
}

// SearchEvent describes one executed search for the history log.
type SearchEvent struct {
	Mode        string
	Origin      GeoPoint
	RadiusM     int
	TopN        int
	ResultCount int
	Duration    time.Duration
}

// HistoryRecorder persists search events. Implemented by the Postgres
// store; nil disables history.
type HistoryRecorder interface {
	RecordSearch(ctx context.Context, event SearchEvent) error
}

// Service runs nearby-place searches. Each call is one query, one HTTP
// exchange with retries and one normalization pass; there is no state
// shared between calls beyond the cache, so a single Service is safe
// for concurrent use.
type Service struct {
	client  *Client
	cache   ResultCache
	history HistoryRecorder
	metrics *telemetry.Metrics
}

// NewService creates a places service around an Overpass client.
func NewService(client *Client) *Service {
	return &Service{client: client}
}

// WithCache attaches a result cache.
func (s *Service) WithCache(cache ResultCache) *Service {
	s.cache = cache
	return s
}

// WithHistory attaches a search-history recorder.
func (s *Service) WithHistory(history HistoryRecorder) *Service {
	s.history = history
	return s
}

// WithMetrics attaches search metrics.
func (s *Service) WithMetrics(metrics *telemetry.Metrics) *Service {
	s.metrics = metrics
	return s
}

// SearchNearbyVeterinary finds veterinary clinics (amenity=veterinary)
// around the origin. Negative radiusM/topN select the defaults.
func (s *Service) SearchNearbyVeterinary(ctx context.Context, lat, lon float64, radiusM, topN int) ([]Result, error) {
	return s.search(ctx, SearchRequest{
		Origin:   GeoPoint{Lat: lat, Lon: lon},
		RadiusM:  radiusM,
		TopN:     topN,
		Category: CategoryVeterinary,
	})
}

// SearchNearbyPetFriendlyFood finds restaurants and cafes around the
// origin. Strict mode only returns places tagged dog- or pets-friendly;
// non-strict returns every restaurant/cafe in range, which overshoots
// on purpose since OSM pet tagging is inconsistent.
func (s *Service) SearchNearbyPetFriendlyFood(ctx context.Context, lat, lon float64, radiusM, topN int, strict bool) ([]Result, error) {
	return s.search(ctx, SearchRequest{
		Origin:   GeoPoint{Lat: lat, Lon: lon},
		RadiusM:  radiusM,
		TopN:     topN,
		Category: CategoryPetFriendlyFood,
		Strict:   strict,
	})
}

// SearchNearby dispatches on a mode string. Recognized modes are
// "veterinary" and "pet_friendly_food" (aliases "pet_food", "food");
// anything else fails immediately with a validation error. Food
// searches run in strict mode.
func (s *Service) SearchNearby(ctx context.Context, lat, lon float64, radiusM, topN int, mode string) ([]Result, error) {
	switch strings.ToLower(strings.TrimSpace(mode)) {
	case "veterinary":
		return s.SearchNearbyVeterinary(ctx, lat, lon, radiusM, topN)
	case "pet_friendly_food", "pet_food", "food":
		return s.SearchNearbyPetFriendlyFood(ctx, lat, lon, radiusM, topN, true)
	default:
		return nil, apperrors.NewInvalidModeError(mode)
	}
}

func (s *Service) search(ctx context.Context, req SearchRequest) ([]Result, error) {
	if req.RadiusM < 0 {
		req.RadiusM = DefaultRadiusM
	}
	if req.TopN < 0 {
		req.TopN = DefaultTopN
	}

	logger := telemetry.GetContextualLogger(ctx).WithFields(map[string]interface{}{
		"operation": "places_search",
		"category":  string(req.Category),
		"strict":    req.Strict,
		"radius_m":  req.RadiusM,
		"top_n":     req.TopN,
		"service":   "places",
	})

	start := time.Now()

	if s.cache != nil {
		var cached []Result
		if err := s.cache.GetPlaces(ctx, cacheKey(req), &cached); err == nil {
			logger.WithField("results", len(cached)).Debug("Places served from cache")
			if s.metrics != nil {
				s.metrics.RecordSearch(ctx, string(req.Category), len(cached), time.Since(start), true)
			}
			return cached, nil
		}
	}

	resp, err := s.client.Execute(ctx, buildQuery(req))
	if err != nil {
		logger.WithError(err).Error("Places search failed")
		return nil, err
	}

	records := normalize(resp, req.Origin, req.TopN, normalizeOptions{
		dedup: req.Category == CategoryPetFriendlyFood,
	})

	elapsed := time.Since(start)
	logger.WithFields(map[string]interface{}{
		"raw_elements": len(resp.Elements),
		"results":      len(records),
		"duration_ms":  elapsed.Milliseconds(),
	}).Info("Places search completed")

	if s.cache != nil {
		if err := s.cache.SetPlaces(ctx, cacheKey(req), records); err != nil {
			logger.WithError(err).Warn("Failed to cache places result")
		}
	}
	if s.history != nil {
		event := SearchEvent{
			Mode:        string(req.Category),
			Origin:      req.Origin,
			RadiusM:     req.RadiusM,
			TopN:        req.TopN,
			ResultCount: len(records),
			Duration:    elapsed,
		}
		if err := s.history.RecordSearch(ctx, event); err != nil {
			logger.WithError(err).Warn("Failed to record search history")
		}
	}
	if s.metrics != nil {
		s.metrics.RecordSearch(ctx, string(req.Category), len(records), elapsed, false)
	}

	return records, nil
}

// cacheKey is stable across calls with the same request shape. Five
// decimal places is roughly meter precision, tighter than any sane
// search radius.
func cacheKey(req SearchRequest) string {
	return fmt.Sprintf("%s:%.5f:%.5f:%d:%d:%t",
		req.Category, req.Origin.Lat, req.Origin.Lon, req.RadiusM, req.TopN, req.Strict)
}
