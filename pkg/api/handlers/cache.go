package handlers

import (
	"fmt"

	"github.com/ethpandaops/gpxenrich/pkg/cache"
	"github.com/gofiber/fiber/v3"
)

// DefaultToleranceKm is used when a lookup names no tolerance
const DefaultToleranceKm = 0.05

// LookupParams are the query parameters of GET /api/v1/cache/lookup
type LookupParams struct {
	Kind      string  `query:"kind"`
	Lat       float64 `query:"lat"`
	Lon       float64 `query:"lon"`
	Radius    float64 `query:"radius"`
	Provider  string  `query:"provider"`
	Tolerance float64 `query:"tolerance"`
}

// LookupResponse is the body of a cache lookup
type LookupResponse struct {
	Hit   bool         `json:"hit"`
	Entry *cache.Entry `json:"entry,omitempty"`
}

// CacheStats handles GET /api/v1/cache/stats
func (s *Server) CacheStats(c fiber.Ctx) error {
	if s.cache == nil {
		return ErrCacheUnavailable
	}

	return c.JSON(s.cache.Statistics(c.Context()))
}

// CacheLookup handles GET /api/v1/cache/lookup. A miss is a 200 with hit
// false, only malformed requests are rejected.
func (s *Server) CacheLookup(c fiber.Ctx) error {
	if s.cache == nil {
		return ErrCacheUnavailable
	}

	if c.Query("lat") == "" || c.Query("lon") == "" {
		return fiber.NewError(fiber.StatusBadRequest, "lat and lon are required")
	}

	var params LookupParams
	if err := c.Bind().Query(&params); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, fmt.Sprintf("invalid query: %v", err))
	}

	if params.Tolerance == 0 {
		params.Tolerance = DefaultToleranceKm
	}

	req := cache.LookupRequest{
		Kind:        cache.Kind(params.Kind),
		Lat:         params.Lat,
		Lon:         params.Lon,
		RadiusM:     params.Radius,
		Provider:    params.Provider,
		ToleranceKm: params.Tolerance,
	}

	if err := req.Validate(); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, err.Error())
	}

	entry, ok := s.cache.Lookup(c.Context(), req)

	return c.JSON(LookupResponse{Hit: ok, Entry: entry})
}
