package places

import "context"

// Legacy call signatures kept so code written against the previous
// paid-provider client keeps compiling. The api key, language and field
// mask parameters meant something to that provider; Overpass needs none
// of them, so they are accepted and ignored.

// SearchNearbyVeterinaryLegacy matches the old provider's signature.
func (s *Service) SearchNearbyVeterinaryLegacy(ctx context.Context, apiKey string, lat, lon float64, radius int, language string, topN int) ([]Result, error) {
	_, _ = apiKey, language
	return s.SearchNearbyVeterinary(ctx, lat, lon, radius, topN)
}

// SearchNearbyVeterinaryV1 matches the old provider's v1 signature,
// which took a float radius and a field mask.
func (s *Service) SearchNearbyVeterinaryV1(ctx context.Context, apiKey string, lat, lon float64, radius float64, maxResults int, fieldMask string) ([]Result, error) {
	_, _ = apiKey, fieldMask
	return s.SearchNearbyVeterinary(ctx, lat, lon, int(radius), maxResults)
}
