package location

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"ramadan-companion/internal/geo"
)

// Provider returns the device's last known position.
type Provider interface {
	Locate(ctx context.Context) (geo.Coordinates, error)
}

// Yangon is the display fallback used when no fix has been cached.
var Yangon = geo.Coordinates{Latitude: 16.8661, Longitude: 96.1951, Known: true}

// StaticProvider always reports the configured pair.
type StaticProvider struct {
	Coordinates geo.Coordinates
}

// Locate implements Provider.
func (s StaticProvider) Locate(context.Context) (geo.Coordinates, error) {
	return geo.New(s.Coordinates.Latitude, s.Coordinates.Longitude)
}

// IPOptions parameterise the IP geolocation provider.
type IPOptions struct {
	BaseURL   string
	Timeout   time.Duration
	UserAgent string
}

// IPProvider resolves a coarse position from the public IP address.
type IPProvider struct {
	logger  zerolog.Logger
	client  *http.Client
	baseURL string
	ua      string
}

// NewIPProvider constructs an ip-api.com compatible provider.
func NewIPProvider(opts IPOptions, logger zerolog.Logger) *IPProvider {
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	baseURL := strings.TrimRight(opts.BaseURL, "/")
	if baseURL == "" {
		baseURL = "http://ip-api.com"
	}
	ua := strings.TrimSpace(opts.UserAgent)
	if ua == "" {
		ua = "ramadan-companion/1.0"
	}
	return &IPProvider{
		logger:  logger.With().Str("component", "ip_locator").Logger(),
		client:  &http.Client{Timeout: timeout},
		baseURL: baseURL,
		ua:      ua,
	}
}

type ipAPIResponse struct {
	Status  string  `json:"status"`
	Message string  `json:"message"`
	Lat     float64 `json:"lat"`
	Lon     float64 `json:"lon"`
	City    string  `json:"city"`
	Country string  `json:"country"`
}

// Locate implements Provider.
func (p *IPProvider) Locate(ctx context.Context) (geo.Coordinates, error) {
	endpoint := p.baseURL + "/json/?fields=status,message,lat,lon,city,country"
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return geo.Unknown, err
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", p.ua)

	resp, err := p.client.Do(req)
	if err != nil {
		return geo.Unknown, err
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(resp.Body)
	if err != nil {
		return geo.Unknown, err
	}
	if resp.StatusCode != http.StatusOK {
		return geo.Unknown, fmt.Errorf("geolocation error (%d): %s", resp.StatusCode, strings.TrimSpace(string(payload)))
	}

	var body ipAPIResponse
	if err := json.Unmarshal(payload, &body); err != nil {
		return geo.Unknown, fmt.Errorf("decode geolocation response: %w", err)
	}
	if body.Status != "success" {
		return geo.Unknown, fmt.Errorf("geolocation failed: %s", body.Message)
	}

	p.logger.Debug().Str("city", body.City).Str("country", body.Country).Msg("resolved position")
	return geo.New(body.Lat, body.Lon)
}

var (
	_ Provider = StaticProvider{}
	_ Provider = (*IPProvider)(nil)
)
