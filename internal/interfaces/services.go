// Package interfaces defines the service contracts the bot handler
// depends on, so tests can substitute fakes.
package interfaces

import (
	"context"

	"github.com/pawpoint/pawpoint/internal/places"
	"github.com/pawpoint/pawpoint/internal/vision"
	"github.com/pawpoint/pawpoint/internal/weather"
)

// PlacesServiceInterface defines the interface for nearby-place searches
type PlacesServiceInterface interface {
	SearchNearbyVeterinary(ctx context.Context, lat, lon float64, radiusM, topN int) ([]places.Result, error)
	SearchNearbyPetFriendlyFood(ctx context.Context, lat, lon float64, radiusM, topN int, strict bool) ([]places.Result, error)
	SearchNearby(ctx context.Context, lat, lon float64, radiusM, topN int, mode string) ([]places.Result, error)
}

// WeatherServiceInterface defines the interface for station observations
type WeatherServiceInterface interface {
	Enabled() bool
	LookupByName(ctx context.Context, query string) (*weather.Observation, error)
	Nearest(ctx context.Context, lat, lon float64) (*weather.Observation, error)
}

// VisionAnalyzerInterface defines the interface for pet photo analysis
type VisionAnalyzerInterface interface {
	Enabled() bool
	AnalyzePhoto(ctx context.Context, imageData []byte, mimeType string) (*vision.Analysis, error)
}
