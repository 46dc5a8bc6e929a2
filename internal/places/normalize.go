package places

import (
	"math"
	"sort"
	"strings"
)

const earthRadiusM = 6371000.0

// haversineM returns the great-circle distance between two points in
// meters.
func haversineM(a, b GeoPoint) float64 {
	p1 := a.Lat * math.Pi / 180.0
	p2 := b.Lat * math.Pi / 180.0
	dp := (b.Lat - a.Lat) * math.Pi / 180.0
	dl := (b.Lon - a.Lon) * math.Pi / 180.0

	h := math.Sin(dp/2)*math.Sin(dp/2) +
		math.Cos(p1)*math.Cos(p2)*math.Sin(dl/2)*math.Sin(dl/2)
	return 2 * earthRadiusM * math.Asin(math.Sqrt(h))
}

// extractCoordinate returns the element's position: nodes carry lat/lon
// directly, ways and relations carry a computed center. Elements with
// neither have no usable position.
func extractCoordinate(el overpassElement) (GeoPoint, bool) {
	if el.Lat != nil && el.Lon != nil {
		return GeoPoint{Lat: *el.Lat, Lon: *el.Lon}, true
	}
	if el.Center != nil && el.Center.Lat != nil && el.Center.Lon != nil {
		return GeoPoint{Lat: *el.Center.Lat, Lon: *el.Center.Lon}, true
	}
	return GeoPoint{}, false
}

// addressTagOrder is the fixed field order used when assembling an
// address from individual addr:* fragments.
var addressTagOrder = []string{
	"addr:housenumber",
	"addr:street",
	"addr:district",
	"addr:city",
	"addr:postcode",
}

// buildAddress assembles a best-effort address from OSM tags. A filled
// addr:full wins outright; otherwise the addr:* fragments present are
// space-joined in a fixed order; contact:address is the last fallback.
func buildAddress(tags map[string]string) *string {
	if len(tags) == 0 {
		return nil
	}

	if full := strings.TrimSpace(tags["addr:full"]); full != "" {
		return &full
	}

	var parts []string
	for _, key := range addressTagOrder {
		if v := tags[key]; v != "" {
			parts = append(parts, v)
		}
	}
	if len(parts) == 0 && tags["contact:address"] != "" {
		parts = append(parts, tags["contact:address"])
	}

	addr := strings.TrimSpace(strings.Join(parts, " "))
	if addr == "" {
		return nil
	}
	return &addr
}

// normalizeOptions controls the element-to-record pass.
type normalizeOptions struct {
	// dedup collapses elements sharing (name, address); a way and its
	// member node often both match a food query. First occurrence wins.
	dedup bool
}

// normalize turns raw Overpass elements into the fixed 4-field output:
// elements without a coordinate are dropped silently, distance is
// measured from origin, records come back sorted ascending by distance
// and truncated to topN (clamped to zero).
func normalize(resp *overpassResponse, origin GeoPoint, topN int, opts normalizeOptions) []Result {
	records := make([]Result, 0, len(resp.Elements))
	seen := make(map[[2]string]bool)

	for _, el := range resp.Elements {
		point, ok := extractCoordinate(el)
		if !ok {
			continue
		}

		var name *string
		if n := el.Tags["name"]; n != "" {
			name = &n
		}
		address := buildAddress(el.Tags)

		if opts.dedup {
			key := [2]string{deref(name), deref(address)}
			if seen[key] {
				continue
			}
			seen[key] = true
		}

		records = append(records, Result{
			Name:      name,
			Address:   address,
			Rating:    nil,
			DistanceM: int(math.Round(haversineM(origin, point))),
		})
	}

	sort.SliceStable(records, func(i, j int) bool {
		return records[i].DistanceM < records[j].DistanceM
	})

	if topN < 0 {
		topN = 0
	}
	if len(records) > topN {
		records = records[:topN]
	}
	return records
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
