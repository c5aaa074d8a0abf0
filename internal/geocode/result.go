package geocode

import (
	"strconv"

	"github.com/Dharmik505/GDG-Emergency-Calling-System/internal/pkg/json"
)

// Outcome tags how a LocationResult was produced.
type Outcome int

const (
	// Resolved results come from the service or the cache.
	Resolved Outcome = iota
	// Degraded results follow a request-level failure (transport, timeout, status).
	Degraded
	// OfflineFallback results follow any other failure, such as a malformed body.
	OfflineFallback
)

func (o Outcome) String() string {
	switch o {
	case Resolved:
		return "resolved"
	case Degraded:
		return "degraded"
	case OfflineFallback:
		return "offline"
	default:
		return "unknown"
	}
}

const (
	accuracyGPS         = "High (GPS)"
	accuracyCoordinates = "High"
	unknownLocation     = "Unknown Location"
	offlineDisplayName  = "Offline Mode"
)

// LocationResult describes a caller location. Cache entries share the shape.
// The serialized key set depends on Outcome.
type LocationResult struct {
	Outcome     Outcome        `json:"-"`
	Latitude    float64        `json:"latitude"`
	Longitude   float64        `json:"longitude"`
	Address     map[string]any `json:"address"`
	DisplayName string         `json:"display_name"`
	OsmID       *int64         `json:"osm_id"`
	OsmType     *string        `json:"osm_type"`
	Accuracy    string         `json:"accuracy"`
	Timestamp   string         `json:"timestamp"`
	Error       string         `json:"error"`
	Offline     bool           `json:"offline"`
}

func (r LocationResult) MarshalJSON() ([]byte, error) {
	switch r.Outcome {
	case Degraded:
		return json.Marshal(struct {
			Latitude    float64 `json:"latitude"`
			Longitude   float64 `json:"longitude"`
			Error       string  `json:"error"`
			DisplayName string  `json:"display_name"`
			Accuracy    string  `json:"accuracy"`
		}{r.Latitude, r.Longitude, r.Error, r.DisplayName, r.Accuracy})
	case OfflineFallback:
		return json.Marshal(struct {
			Latitude    float64 `json:"latitude"`
			Longitude   float64 `json:"longitude"`
			Error       string  `json:"error"`
			DisplayName string  `json:"display_name"`
			Offline     bool    `json:"offline"`
		}{r.Latitude, r.Longitude, r.Error, r.DisplayName, r.Offline})
	default:
		address := r.Address
		if address == nil {
			address = map[string]any{}
		}
		return json.Marshal(struct {
			Latitude    float64        `json:"latitude"`
			Longitude   float64        `json:"longitude"`
			Address     map[string]any `json:"address"`
			DisplayName string         `json:"display_name"`
			OsmID       *int64         `json:"osm_id"`
			OsmType     *string        `json:"osm_type"`
			Accuracy    string         `json:"accuracy"`
			Timestamp   string         `json:"timestamp"`
		}{r.Latitude, r.Longitude, address, r.DisplayName, r.OsmID, r.OsmType, r.Accuracy, r.Timestamp})
	}
}

func degradedResult(lat, lon float64, err error) LocationResult {
	return LocationResult{
		Outcome:     Degraded,
		Latitude:    lat,
		Longitude:   lon,
		Error:       err.Error(),
		DisplayName: "Location (" + formatCoord(lat) + ", " + formatCoord(lon) + ")",
		Accuracy:    accuracyCoordinates,
	}
}

func offlineResult(lat, lon float64, err error) LocationResult {
	return LocationResult{
		Outcome:     OfflineFallback,
		Latitude:    lat,
		Longitude:   lon,
		Error:       "Geolocation error: " + err.Error(),
		DisplayName: offlineDisplayName,
		Offline:     true,
	}
}

func formatCoord(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
