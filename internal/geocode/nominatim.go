package geocode

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"golang.org/x/time/rate"

	"github.com/Dharmik505/GDG-Emergency-Calling-System/internal/config"
	"github.com/Dharmik505/GDG-Emergency-Calling-System/internal/pkg/json"
)

// Place is the subset of a Nominatim reverse response the resolver keeps.
type Place struct {
	Address     map[string]any `json:"address"`
	DisplayName *string        `json:"display_name"`
	OsmID       *int64         `json:"osm_id"`
	OsmType     *string        `json:"osm_type"`
}

// RequestError marks a failure of the HTTP exchange itself: transport errors,
// timeouts, throttling past the deadline and non-2xx statuses.
type RequestError struct {
	Err error
}

func (e *RequestError) Error() string { return e.Err.Error() }
func (e *RequestError) Unwrap() error { return e.Err }

// Client performs reverse lookups against a Nominatim-compatible endpoint.
type Client struct {
	baseURL   string
	userAgent string
	timeout   time.Duration
	http      *http.Client
	limiter   *rate.Limiter
}

func NewClient(cfg config.GeocoderConfig) *Client {
	limit := rate.Inf
	if cfg.RequestsPerSec > 0 {
		limit = rate.Limit(cfg.RequestsPerSec)
	}
	return &Client{
		baseURL:   cfg.BaseURL,
		userAgent: cfg.UserAgent,
		timeout:   cfg.Timeout(),
		http:      &http.Client{Timeout: cfg.Timeout()},
		limiter:   rate.NewLimiter(limit, 1),
	}
}

// Reverse resolves coordinates to a Place. Errors of type *RequestError come
// from the exchange; any other error means the body could not be understood.
func (c *Client) Reverse(ctx context.Context, lat, lon float64) (*Place, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	if err := c.limiter.Wait(ctx); err != nil {
		return nil, &RequestError{Err: fmt.Errorf("rate limit: %w", err)}
	}

	params := url.Values{}
	params.Set("format", "json")
	params.Set("lat", strconv.FormatFloat(lat, 'f', -1, 64))
	params.Set("lon", strconv.FormatFloat(lon, 'f', -1, 64))
	params.Set("zoom", "18")
	params.Set("addressdetails", "1")

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"?"+params.Encode(), nil)
	if err != nil {
		return nil, &RequestError{Err: err}
	}
	req.Header.Set("User-Agent", c.userAgent)

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, &RequestError{Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &RequestError{Err: fmt.Errorf("nominatim status %d", resp.StatusCode)}
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &RequestError{Err: err}
	}

	var place *Place
	if err := json.Unmarshal(body, &place); err != nil {
		return nil, fmt.Errorf("decode nominatim response: %w", err)
	}
	if place == nil {
		return nil, errors.New("nominatim response is not an object")
	}
	return place, nil
}
