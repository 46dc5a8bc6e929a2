// Package weather looks up current station observations from the
// Central Weather Administration open-data API.
package weather

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"net/http"
	"net/url"
	"strings"
	"time"

	apperrors "github.com/pawpoint/pawpoint/internal/errors"
	"github.com/pawpoint/pawpoint/internal/telemetry"
)

const defaultEndpoint = "https://opendata.cwa.gov.tw/api/v1/rest/datastore/O-A0001-001"

// Config holds the CWA client settings.
type Config struct {
	Endpoint  string
	APIKey    string
	UserAgent string
	Timeout   time.Duration
}

// Service queries the CWA observation datastore.
type Service struct {
	client *http.Client
	config Config
}

// NewService creates a weather service. An empty endpoint selects the
// public CWA datastore.
func NewService(config Config) *Service {
	if config.Endpoint == "" {
		config.Endpoint = defaultEndpoint
	}
	if config.Timeout <= 0 {
		config.Timeout = 10 * time.Second
	}
	if config.UserAgent == "" {
		config.UserAgent = "pawpoint/1.0"
	}
	return &Service{
		client: &http.Client{Timeout: config.Timeout},
		config: config,
	}
}

// Enabled reports whether an API key is configured.
func (s *Service) Enabled() bool {
	return s.config.APIKey != ""
}

// LookupByName returns the first station whose name, county or town
// contains the query string. A nil observation means no station
// matched.
func (s *Service) LookupByName(ctx context.Context, query string) (*Observation, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, nil
	}

	observations, err := s.fetch(ctx)
	if err != nil {
		return nil, err
	}
	for i := range observations {
		obs := observations[i]
		if strings.Contains(obs.StationName, query) ||
			strings.Contains(obs.County, query) ||
			strings.Contains(obs.Town, query) {
			return &obs, nil
		}
	}
	return nil, nil
}

// Nearest returns the station closest to the given coordinate.
func (s *Service) Nearest(ctx context.Context, lat, lon float64) (*Observation, error) {
	observations, err := s.fetch(ctx)
	if err != nil {
		return nil, err
	}
	if len(observations) == 0 {
		return nil, nil
	}

	best := 0
	bestDist := math.Inf(1)
	for i, obs := range observations {
		d := haversineKM(lat, lon, obs.Latitude, obs.Longitude)
		if d < bestDist {
			bestDist = d
			best = i
		}
	}
	return &observations[best], nil
}

func (s *Service) fetch(ctx context.Context) ([]Observation, error) {
	logger := telemetry.GetContextualLogger(ctx).WithFields(map[string]interface{}{
		"operation": "cwa_fetch_observations",
		"service":   "weather",
	})

	params := url.Values{}
	params.Set("Authorization", s.config.APIKey)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet,
		s.config.Endpoint+"?"+params.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build CWA request: %w", err)
	}
	req.Header.Set("User-Agent", s.config.UserAgent)
	req.Header.Set("Accept", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		logger.WithError(err).Error("CWA request failed")
		return nil, apperrors.NewExternalError("cwa", "fetch_observations", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		logger.WithField("status", resp.Status).Error("CWA returned unexpected status")
		return nil, apperrors.NewExternalError("cwa", "fetch_observations",
			fmt.Errorf("unexpected status %s", resp.Status))
	}

	var decoded cwaResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return nil, apperrors.NewExternalError("cwa", "fetch_observations", err)
	}

	observations := make([]Observation, 0, len(decoded.Records.Station))
	for _, st := range decoded.Records.Station {
		obs := Observation{
			StationName:  st.StationName,
			StationID:    st.StationID,
			County:       st.GeoInfo.CountyName,
			Town:         st.GeoInfo.TownName,
			Weather:      st.WeatherElement.Weather,
			TemperatureC: st.WeatherElement.AirTemperature,
			HumidityPct:  st.WeatherElement.RelativeHumidity,
			WindSpeedMS:  st.WeatherElement.WindSpeed,
			ObservedAt:   st.ObsTime.DateTime,
		}
		// Prefer the WGS84 coordinate set when the station reports
		// more than one datum.
		for _, coord := range st.GeoInfo.Coordinates {
			obs.Latitude = coord.StationLatitude
			obs.Longitude = coord.StationLongitude
			if coord.CoordinateName == "WGS84" {
				break
			}
		}
		observations = append(observations, obs)
	}

	logger.WithField("stations", len(observations)).Debug("Fetched CWA observations")
	return observations, nil
}

// FormatReport renders an observation as a multi-line chat reply.
func FormatReport(obs *Observation) string {
	if obs == nil {
		return ""
	}
	lines := []string{
		fmt.Sprintf("📍 %s (%s%s)", obs.StationName, obs.County, obs.Town),
		fmt.Sprintf("☁️ 天氣: %s", obs.Weather),
		fmt.Sprintf("🌡️ 氣溫: %.1f°C", obs.TemperatureC),
		fmt.Sprintf("💧 濕度: %.0f%%", obs.HumidityPct),
		fmt.Sprintf("💨 風速: %.1f m/s", obs.WindSpeedMS),
	}
	if obs.ObservedAt != "" {
		lines = append(lines, fmt.Sprintf("🕐 觀測時間: %s", obs.ObservedAt))
	}
	return strings.Join(lines, "\n")
}

// haversineKM returns the great-circle distance in kilometers.
func haversineKM(lat1, lon1, lat2, lon2 float64) float64 {
	const r = 6371.0
	dLat := (lat2 - lat1) * (math.Pi / 180.0)
	dLon := (lon2 - lon1) * (math.Pi / 180.0)
	a := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(lat1*(math.Pi/180.0))*math.Cos(lat2*(math.Pi/180.0))*
			math.Sin(dLon/2)*math.Sin(dLon/2)
	c := 2 * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))
	return r * c
}
