package geocode

import (
	"context"
	"errors"
	"log"
	"time"

	"github.com/Dharmik505/GDG-Emergency-Calling-System/internal/config"
	"github.com/Dharmik505/GDG-Emergency-Calling-System/internal/metrics"
)

// Reverser turns coordinates into a Place.
type Reverser interface {
	Reverse(ctx context.Context, lat, lon float64) (*Place, error)
}

// Resolver answers location lookups from the cache first and the reverse
// geocoder second, degrading instead of failing.
type Resolver struct {
	cache  *Cache
	client Reverser
	now    func() time.Time
}

func NewResolver(cache *Cache, client Reverser) *Resolver {
	return &Resolver{cache: cache, client: client, now: config.Now}
}

// Resolve never returns an error; failures are folded into the result.
func (r *Resolver) Resolve(ctx context.Context, lat, lon float64) LocationResult {
	if cached, ok := r.cache.Lookup(lat, lon); ok {
		metrics.IncLocationCacheHits()
		return cached
	}

	place, err := r.client.Reverse(ctx, lat, lon)
	if err != nil {
		var reqErr *RequestError
		if errors.As(err, &reqErr) {
			metrics.IncLocationsDegraded()
			log.Printf("geocode: request failed lat=%v lon=%v: %v", lat, lon, err)
			return degradedResult(lat, lon, err)
		}
		metrics.IncLocationsOffline()
		log.Printf("geocode: offline fallback lat=%v lon=%v: %v", lat, lon, err)
		return offlineResult(lat, lon, err)
	}

	result := LocationResult{
		Outcome:     Resolved,
		Latitude:    lat,
		Longitude:   lon,
		Address:     place.Address,
		DisplayName: unknownLocation,
		OsmID:       place.OsmID,
		OsmType:     place.OsmType,
		Accuracy:    accuracyGPS,
		Timestamp:   config.Timestamp(r.now()),
	}
	if result.Address == nil {
		result.Address = map[string]any{}
	}
	if place.DisplayName != nil {
		result.DisplayName = *place.DisplayName
	}
	metrics.IncLocationsResolved()

	// Cache write failures never reach the caller.
	_ = r.cache.Add(result)
	return result
}
