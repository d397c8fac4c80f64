package feed

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/theoremus-urban-solutions/surveyor-tracking/model"
)

const maxFeedSize int64 = 32 << 20

// Fetcher downloads published feeds, e.g. to mirror a backend's
// VehiclePositions into another system.
type Fetcher struct {
	httpClient *http.Client
}

// NewFetcher creates a Fetcher. A nil client gets a 30 second timeout.
func NewFetcher(hc *http.Client) *Fetcher {
	if hc == nil {
		hc = &http.Client{Timeout: 30 * time.Second}
	}
	return &Fetcher{httpClient: hc}
}

// Fetch returns the raw body of url. Any status other than 200 is an error.
func (f *Fetcher) Fetch(ctx context.Context, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	resp, err := f.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch %s: %w", url, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("HTTP %d from %s", resp.StatusCode, url)
	}
	return io.ReadAll(io.LimitReader(resp.Body, maxFeedSize))
}

// FetchVehiclePositions downloads and decodes a VehiclePositions feed.
func (f *Fetcher) FetchVehiclePositions(ctx context.Context, url string) ([]model.LocationFix, error) {
	data, err := f.Fetch(ctx, url)
	if err != nil {
		return nil, err
	}
	return ParseVehiclePositions(data)
}
