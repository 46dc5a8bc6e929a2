package weather

// Observation is one weather station's current readings.
type Observation struct {
	StationName  string
	StationID    string
	County       string
	Town         string
	Weather      string
	TemperatureC float64
	HumidityPct  float64
	WindSpeedMS  float64
	ObservedAt   string
	Latitude     float64
	Longitude    float64
}

// cwaResponse mirrors the CWA open-data O-A0001-001 datastore payload,
// reduced to the fields we read.
type cwaResponse struct {
	Success string `json:"success"`
	Records struct {
		Station []cwaStation `json:"Station"`
	} `json:"records"`
}

type cwaStation struct {
	StationName string `json:"StationName"`
	StationID   string `json:"StationId"`
	ObsTime     struct {
		DateTime string `json:"DateTime"`
	} `json:"ObsTime"`
	GeoInfo struct {
		CountyName  string `json:"CountyName"`
		TownName    string `json:"TownName"`
		Coordinates []struct {
			CoordinateName   string  `json:"CoordinateName"`
			StationLatitude  float64 `json:"StationLatitude"`
			StationLongitude float64 `json:"StationLongitude"`
		} `json:"Coordinates"`
	} `json:"GeoInfo"`
	WeatherElement struct {
		Weather          string  `json:"Weather"`
		AirTemperature   float64 `json:"AirTemperature"`
		RelativeHumidity float64 `json:"RelativeHumidity"`
		WindSpeed        float64 `json:"WindSpeed"`
	} `json:"WeatherElement"`
}
