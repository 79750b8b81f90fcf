package provider

import (
	"context"
	"net/http"
	"strconv"
	"strings"

	"github.com/ethpandaops/gpxenrich/pkg/geo"
	"github.com/ethpandaops/gpxenrich/pkg/trajectory"
	"github.com/gofiber/fiber/v3/client"
)

// NominatimName is the provider name stored with geocoding entries.
const NominatimName = "nominatim"

//nolint:gochecknoglobals // address key precedence
var (
	streetKeys = []string{"road", "pedestrian", "footway", "path", "cycleway", "track"}
	cityKeys   = []string{"city", "town", "village", "hamlet", "municipality"}
)

type nominatimResponse struct {
	DisplayName string            `json:"display_name"`
	Address     map[string]string `json:"address"`
	Error       string            `json:"error"`
}

// Nominatim is a reverse geocoder.
type Nominatim struct {
	http *httpClient
	cfg  NominatimConfig
}

// NewNominatim returns a reverse geocoder for cfg.
func NewNominatim(cfg NominatimConfig, userAgent string) *Nominatim {
	return &Nominatim{
		http: newHTTPClient(NominatimName, userAgent),
		cfg:  cfg,
	}
}

// Name implements query.Provider.
func (n *Nominatim) Name() string {
	return NominatimName
}

// Query reverse geocodes p. A location without an address is a successful,
// empty answer.
func (n *Nominatim) Query(ctx context.Context, p geo.Point) (trajectory.Attributes, error) {
	params := map[string]string{
		"format":         "jsonv2",
		"lat":            strconv.FormatFloat(p.Lat, 'f', 7, 64),
		"lon":            strconv.FormatFloat(p.Lon, 'f', 7, 64),
		"zoom":           strconv.Itoa(n.cfg.Zoom),
		"addressdetails": "1",
	}

	if n.cfg.Language != "" {
		params["accept-language"] = n.cfg.Language
	}

	var resp nominatimResponse
	if err := n.http.do(ctx, http.MethodGet, strings.TrimSuffix(n.cfg.URL, "/")+"/reverse", client.Config{Param: params}, &resp); err != nil {
		return nil, err
	}

	attrs := trajectory.Attributes{}
	if resp.Error != "" {
		return attrs, nil
	}

	setFirst(attrs, trajectory.AttrStreet, resp.Address, streetKeys)
	setFirst(attrs, trajectory.AttrCity, resp.Address, cityKeys)
	setFirst(attrs, trajectory.AttrPostalCode, resp.Address, []string{"postcode"})
	setFirst(attrs, trajectory.AttrCountry, resp.Address, []string{"country"})

	if resp.DisplayName != "" {
		attrs[trajectory.AttrRawAddress] = resp.DisplayName
	}

	return attrs, nil
}

func setFirst(attrs trajectory.Attributes, key string, address map[string]string, candidates []string) {
	for _, c := range candidates {
		if v := strings.TrimSpace(address[c]); v != "" {
			attrs[key] = v
			return
		}
	}
}
