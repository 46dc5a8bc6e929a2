// Package places looks up pet-relevant points of interest near a
// coordinate using the OpenStreetMap Overpass API.
package places

import "fmt"

// Category selects which kind of place a search targets.
type Category string

const (
	CategoryVeterinary      Category = "veterinary"
	CategoryPetFriendlyFood Category = "pet_friendly_food"
)

// GeoPoint is a WGS84 coordinate pair supplied by the caller.
type GeoPoint struct {
	Lat float64
	Lon float64
}

func (p GeoPoint) String() string {
	return fmt.Sprintf("%f,%f", p.Lat, p.Lon)
}

// SearchRequest describes one nearby-places lookup.
type SearchRequest struct {
	Origin   GeoPoint
	RadiusM  int
	TopN     int
	Category Category
	// Strict only applies to CategoryPetFriendlyFood: when set, only
	// places explicitly tagged dog/pets-friendly are returned. When
	// unset the search covers every restaurant and cafe in range and
	// the caller is expected to post-filter.
	Strict bool
}

// Result is the fixed output shape for one place. Exactly these four
// fields, always. Rating is always nil because OSM carries no rating
// concept; the field exists so callers migrated from providers that do
// have ratings keep a stable record shape.
type Result struct {
	Name      *string  `json:"name"`
	Address   *string  `json:"address"`
	Rating    *float64 `json:"rating"`
	DistanceM int      `json:"distance_m"`
}

// overpassResponse is the JSON envelope returned by the Overpass API.
type overpassResponse struct {
	Elements []overpassElement `json:"elements"`
}

// overpassElement is one node/way/relation record. Nodes carry lat/lon
// directly; ways and relations carry a computed center when the query
// asks for `out center`.
// Lat/Lon are pointers so a way that genuinely has no coordinate can
// be told apart from a node sitting at 0,0.
type overpassElement struct {
	ID     int64    `json:"id"`
	Type   string   `json:"type"`
	Lat    *float64 `json:"lat,omitempty"`
	Lon    *float64 `json:"lon,omitempty"`
	Center *struct {
		Lat *float64 `json:"lat"`
		Lon *float64 `json:"lon"`
	} `json:"center,omitempty"`
	Tags map[string]string `json:"tags,omitempty"`
}
