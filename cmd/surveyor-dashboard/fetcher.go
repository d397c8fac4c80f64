package main

import (
	"context"
	"net/http"
	"os"
	"strings"

	"github.com/theoremus-urban-solutions/surveyor-tracking/feed"
	"github.com/theoremus-urban-solutions/surveyor-tracking/model"
)

// fetcher loads a GTFS-RT VehiclePositions feed from a URL or a local file.
type fetcher struct {
	remote *feed.Fetcher
}

func newFetcher(hc *http.Client) *fetcher {
	return &fetcher{remote: feed.NewFetcher(hc)}
}

func (f *fetcher) vehiclePositions(ctx context.Context, urlOrPath string) ([]model.LocationFix, error) {
	if strings.HasPrefix(urlOrPath, "http://") || strings.HasPrefix(urlOrPath, "https://") {
		return f.remote.FetchVehiclePositions(ctx, urlOrPath)
	}
	data, err := os.ReadFile(urlOrPath)
	if err != nil {
		return nil, err
	}
	return feed.ParseVehiclePositions(data)
}
