package places

import (
	"fmt"
	"strings"
)

// Overpass QL fragments for the strict pet-friendly filter. dog=yes and
// dog=outside both count as friendly; pets=yes is a separate tag some
// mappers use instead.
const (
	dogFilter  = `["dog"~"^(yes|outside)$"]`
	petsFilter = `["pets"="yes"]`
)

// buildQuery renders the Overpass QL for a search request. The query
// always covers nodes, ways and relations and asks for center
// coordinates plus tags so way/relation aggregates come back usable.
// Coordinates are not validated here; a nonsense origin simply produces
// a query the server will reject.
func buildQuery(req SearchRequest) string {
	switch req.Category {
	case CategoryPetFriendlyFood:
		if req.Strict {
			return buildStrictFoodQuery(req)
		}
		return buildBroadFoodQuery(req)
	default:
		return buildVeterinaryQuery(req)
	}
}

func buildVeterinaryQuery(req SearchRequest) string {
	var b strings.Builder
	b.WriteString("[out:json][timeout:25];\n(\n")
	writeClause(&b, `["amenity"="veterinary"]`, req)
	b.WriteString(");\nout center tags;")
	return b.String()
}

// buildStrictFoodQuery unions restaurant and cafe, each filtered by the
// dog tag and again by the pets tag: six sub-clauses per element type.
func buildStrictFoodQuery(req SearchRequest) string {
	var b strings.Builder
	b.WriteString("[out:json][timeout:25];\n(\n")
	for _, amenity := range []string{"restaurant", "cafe"} {
		writeClause(&b, fmt.Sprintf(`["amenity"=%q]%s`, amenity, dogFilter), req)
	}
	for _, amenity := range []string{"restaurant", "cafe"} {
		writeClause(&b, fmt.Sprintf(`["amenity"=%q]%s`, amenity, petsFilter), req)
	}
	b.WriteString(");\nout center tags;")
	return b.String()
}

func buildBroadFoodQuery(req SearchRequest) string {
	var b strings.Builder
	b.WriteString("[out:json][timeout:25];\n(\n")
	writeClause(&b, `["amenity"~"^(restaurant|cafe)$"]`, req)
	b.WriteString(");\nout center tags;")
	return b.String()
}

// writeClause emits the node/way/relation triple for one tag filter.
func writeClause(b *strings.Builder, filter string, req SearchRequest) {
	for _, elem := range []string{"node", "way", "relation"} {
		fmt.Fprintf(b, "  %s%s(around:%d,%f,%f);\n",
			elem, filter, req.RadiusM, req.Origin.Lat, req.Origin.Lon)
	}
}
