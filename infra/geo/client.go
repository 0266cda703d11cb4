// Package geo adapts an OpenRouteService-compatible geocoding/routing HTTP
// API to the distance.Provider port. Calls carry a client timeout and retry
// transient failures with exponential backoff; the quota gate lives upstream
// in the batch scheduler, not here.
package geo

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/trainops/instructor-dispatch/core/distance"
	"github.com/trainops/instructor-dispatch/core/model"
)

// Config holds the provider connection settings.
type Config struct {
	BaseURL string `json:"base_url"`
	APIKey  string `json:"api_key"`
	// TimeoutSeconds bounds each HTTP request.
	TimeoutSeconds int `json:"timeout_seconds"`
}

// SetDefaults applies sane defaults.
func (c *Config) SetDefaults() {
	if c.BaseURL == "" {
		c.BaseURL = "https://api.openrouteservice.org"
	}
	if c.TimeoutSeconds <= 0 {
		c.TimeoutSeconds = 10
	}
}

// Validate checks mandatory fields.
func (c Config) Validate() error {
	if strings.TrimSpace(c.APIKey) == "" {
		return fmt.Errorf("geo: api_key is required")
	}
	return nil
}

// Client implements distance.Provider over HTTP.
type Client struct {
	baseURL string
	apiKey  string
	session *http.Client
}

// New creates a Client from the configuration.
func New(cfg Config) (*Client, error) {
	cfg.SetDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Client{
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		apiKey:  cfg.APIKey,
		session: &http.Client{Timeout: time.Duration(cfg.TimeoutSeconds) * time.Second},
	}, nil
}

var _ distance.Provider = (*Client)(nil)

type statusError struct {
	Code int
	Body string
}

func (e *statusError) Error() string {
	return fmt.Sprintf("provider status %d: %s", e.Code, e.Body)
}

// Geocode resolves an address to coordinates. An address the provider cannot
// match returns an error the batch records as a per-pair skip.
func (c *Client) Geocode(ctx context.Context, address string) (model.Coordinates, error) {
	endpoint := fmt.Sprintf("%s/geocode/search?size=1&text=%s", c.baseURL, url.QueryEscape(address))
	resp, err := c.doWithRetry(ctx, func() (*http.Request, error) {
		return c.newRequest(ctx, http.MethodGet, endpoint, nil)
	})
	if err != nil {
		return model.Coordinates{}, err
	}
	defer resp.Body.Close()

	var out struct {
		Features []struct {
			Geometry struct {
				Coordinates []float64 `json:"coordinates"` // [lng, lat]
			} `json:"geometry"`
		} `json:"features"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return model.Coordinates{}, fmt.Errorf("geo: decode geocode response: %w", err)
	}
	if len(out.Features) == 0 || len(out.Features[0].Geometry.Coordinates) < 2 {
		return model.Coordinates{}, fmt.Errorf("geo: address not found: %q", address)
	}
	coords := out.Features[0].Geometry.Coordinates
	return model.Coordinates{Lat: coords[1], Lng: coords[0]}, nil
}

// Route computes the driving distance and duration between two points.
func (c *Client) Route(ctx context.Context, origin, dest model.Coordinates) (model.Leg, error) {
	body, err := json.Marshal(map[string]any{
		"coordinates": [][]float64{{origin.Lng, origin.Lat}, {dest.Lng, dest.Lat}},
	})
	if err != nil {
		return model.Leg{}, fmt.Errorf("geo: marshal route request: %w", err)
	}
	endpoint := c.baseURL + "/v2/directions/driving-car"
	resp, err := c.doWithRetry(ctx, func() (*http.Request, error) {
		return c.newRequest(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	})
	if err != nil {
		return model.Leg{}, err
	}
	defer resp.Body.Close()

	var out struct {
		Routes []struct {
			Summary struct {
				Distance float64 `json:"distance"` // meters
				Duration float64 `json:"duration"` // seconds
			} `json:"summary"`
		} `json:"routes"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return model.Leg{}, fmt.Errorf("geo: decode route response: %w", err)
	}
	if len(out.Routes) == 0 {
		return model.Leg{}, fmt.Errorf("geo: no route between (%f,%f) and (%f,%f)",
			origin.Lat, origin.Lng, dest.Lat, dest.Lng)
	}
	sum := out.Routes[0].Summary
	return model.Leg{Km: sum.Distance / 1000, Minutes: sum.Duration / 60}, nil
}

func (c *Client) newRequest(ctx context.Context, method, endpoint string, body io.Reader) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, method, endpoint, body)
	if err != nil {
		return nil, fmt.Errorf("geo: create request: %w", err)
	}
	req.Header.Set("Authorization", c.apiKey)
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	return req, nil
}

func (c *Client) do(req *http.Request) (*http.Response, error) {
	resp, err := c.session.Do(req)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode >= 400 {
		b, _ := io.ReadAll(resp.Body)
		resp.Body.Close()
		return nil, &statusError{Code: resp.StatusCode, Body: strings.TrimSpace(string(b))}
	}
	return resp, nil
}

// doWithRetry retries transient failures (network errors, 429, 5xx) with
// exponential backoff while respecting context cancellation.
func (c *Client) doWithRetry(ctx context.Context, makeReq func() (*http.Request, error)) (*http.Response, error) {
	const maxAttempts = 3
	backoff := 200 * time.Millisecond

	var lastErr error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		req, err := makeReq()
		if err != nil {
			return nil, err
		}
		resp, err := c.do(req)
		if err == nil {
			return resp, nil
		}
		lastErr = err

		retry := false
		var se *statusError
		if errors.As(err, &se) {
			switch se.Code {
			case http.StatusTooManyRequests, 500, 502, 503, 504:
				retry = true
			}
		}
		var netErr net.Error
		if !retry && errors.As(err, &netErr) {
			retry = true
		}
		if !retry || attempt == maxAttempts {
			return nil, lastErr
		}

		timer := time.NewTimer(backoff)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil, ctx.Err()
		case <-timer.C:
		}
		backoff *= 2
	}
	return nil, lastErr
}
