package provider

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/ethpandaops/gpxenrich/pkg/geo"
	"github.com/gofiber/fiber/v3/client"
)

// OpenElevationName is the provider name of the elevation service.
const OpenElevationName = "open-elevation"

// ErrResultCount is returned when the service answers a batch with the wrong
// number of results.
var ErrResultCount = errors.New("elevation result count mismatch")

type elevationLocation struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}

type elevationRequest struct {
	Locations []elevationLocation `json:"locations"`
}

type elevationResponse struct {
	Results []struct {
		Latitude  float64  `json:"latitude"`
		Longitude float64  `json:"longitude"`
		Elevation *float64 `json:"elevation"`
	} `json:"results"`
}

// OpenElevation looks up terrain elevation for batches of points.
type OpenElevation struct {
	http *httpClient
	cfg  ElevationConfig
}

// NewOpenElevation returns an elevation provider for cfg.
func NewOpenElevation(cfg ElevationConfig, userAgent string) *OpenElevation {
	return &OpenElevation{
		http: newHTTPClient(OpenElevationName, userAgent),
		cfg:  cfg,
	}
}

// Name returns the provider name.
func (o *OpenElevation) Name() string {
	return OpenElevationName
}

// BatchSize is the configured number of points per request.
func (o *OpenElevation) BatchSize() int {
	return o.cfg.BatchSize
}

// Lookup returns one elevation per point, in order. Points the service has
// no data for come back as nil.
func (o *OpenElevation) Lookup(ctx context.Context, points []geo.Point) ([]*float64, error) {
	body := elevationRequest{Locations: make([]elevationLocation, 0, len(points))}
	for _, p := range points {
		body.Locations = append(body.Locations, elevationLocation{Latitude: p.Lat, Longitude: p.Lon})
	}

	var resp elevationResponse

	url := strings.TrimSuffix(o.cfg.URL, "/") + "/api/v1/lookup"
	if err := o.http.do(ctx, http.MethodPost, url, client.Config{Body: body}, &resp); err != nil {
		return nil, err
	}

	if len(resp.Results) != len(points) {
		return nil, fmt.Errorf("%w: sent %d, got %d", ErrResultCount, len(points), len(resp.Results))
	}

	out := make([]*float64, len(points))
	for i, r := range resp.Results {
		out[i] = r.Elevation
	}

	return out, nil
}
