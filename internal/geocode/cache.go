package geocode

import (
	"errors"
	"os"
	"sync"

	"github.com/Dharmik505/GDG-Emergency-Calling-System/internal/geo"
	"github.com/Dharmik505/GDG-Emergency-Calling-System/internal/pkg/json"
)

// Cache is a capped, file-backed list of resolved locations. Every lookup
// reads the whole file and every insert rewrites it; entries are never
// updated in place and the oldest insert is evicted first.
type Cache struct {
	path     string
	capacity int
	radiusKm float64
	mu       sync.Mutex
}

func NewCache(path string, capacity int, radiusKm float64) *Cache {
	return &Cache{path: path, capacity: capacity, radiusKm: radiusKm}
}

// Lookup returns the first entry, in file order, closer than the cache radius.
// A missing or unreadable file is treated as an empty cache.
func (c *Cache) Lookup(lat, lon float64) (LocationResult, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	entries, err := c.load()
	if err != nil {
		return LocationResult{}, false
	}
	for _, e := range entries {
		if geo.Distance(lat, lon, e.Latitude, e.Longitude) < c.radiusKm {
			return e, true
		}
	}
	return LocationResult{}, false
}

// Add appends r and keeps only the most recent capacity entries. A file that
// exists but does not parse is left untouched.
func (c *Cache) Add(r LocationResult) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	entries, err := c.load()
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}
	entries = append(entries, r)
	if len(entries) > c.capacity {
		entries = entries[len(entries)-c.capacity:]
	}
	data, err := json.Marshal(entries)
	if err != nil {
		return err
	}
	return os.WriteFile(c.path, data, 0o644)
}

// Entries returns the cached entries in file order.
func (c *Cache) Entries() ([]LocationResult, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	entries, err := c.load()
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	return entries, err
}

func (c *Cache) load() ([]LocationResult, error) {
	data, err := os.ReadFile(c.path)
	if err != nil {
		return nil, err
	}
	var entries []LocationResult
	if err := json.Unmarshal(data, &entries); err != nil {
		return nil, err
	}
	return entries, nil
}
