package provider

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/ethpandaops/gpxenrich/pkg/geo"
	"github.com/ethpandaops/gpxenrich/pkg/query"
	"github.com/ethpandaops/gpxenrich/pkg/trajectory"
	"github.com/gofiber/fiber/v3/client"
)

// OverpassName is the provider name stored with surface entries.
const OverpassName = "overpass"

type overpassElement struct {
	Type   string            `json:"type"`
	ID     int64             `json:"id"`
	Center *geo.Point        `json:"center"`
	Tags   map[string]string `json:"tags"`
}

type overpassResponse struct {
	Elements []overpassElement `json:"elements"`
	Remark   string            `json:"remark"`
}

// remarkError turns a server side failure reported with a 200 status into a
// retryable error.
func remarkError(remark string) error {
	if strings.Contains(strings.ToLower(remark), "timed out") {
		return fmt.Errorf("%s: %w: %s", OverpassName, query.ErrTimeout, remark)
	}

	return fmt.Errorf("%s: %w: %s", OverpassName, query.ErrTransient, remark)
}

// Overpass finds the nearest highway way around a point and reports its
// surface tags.
type Overpass struct {
	http *httpClient
	cfg  OverpassConfig
}

// NewOverpass returns a surface provider for cfg.
func NewOverpass(cfg OverpassConfig, userAgent string) *Overpass {
	return &Overpass{
		http: newHTTPClient(OverpassName, userAgent),
		cfg:  cfg,
	}
}

// Name implements query.Provider.
func (o *Overpass) Name() string {
	return OverpassName
}

// RadiusM is the search radius in metres.
func (o *Overpass) RadiusM() float64 {
	return o.cfg.RadiusM
}

// Query returns the tags of the way whose center is closest to p. No way in
// range is a successful, empty answer unless the server attached a remark.
func (o *Overpass) Query(ctx context.Context, p geo.Point) (trajectory.Attributes, error) {
	q := fmt.Sprintf("[out:json][timeout:25];way(around:%s,%s,%s)[highway];out tags center;",
		strconv.FormatFloat(o.cfg.RadiusM, 'f', -1, 64),
		strconv.FormatFloat(p.Lat, 'f', 7, 64),
		strconv.FormatFloat(p.Lon, 'f', 7, 64),
	)

	var resp overpassResponse
	if err := o.http.do(ctx, http.MethodPost, o.cfg.URL, client.Config{FormData: map[string]string{"data": q}}, &resp); err != nil {
		return nil, err
	}

	if resp.Remark != "" && len(resp.Elements) == 0 {
		return nil, remarkError(resp.Remark)
	}

	attrs := trajectory.Attributes{}

	best := nearestWay(p, resp.Elements)
	if best == nil {
		return attrs, nil
	}

	for _, key := range []string{trajectory.AttrSurface, trajectory.AttrHighway, trajectory.AttrTrackType, trajectory.AttrSmoothness} {
		if v := best.Tags[key]; v != "" {
			attrs[key] = v
		}
	}

	attrs[trajectory.AttrWayID] = strconv.FormatInt(best.ID, 10)

	return attrs, nil
}

// nearestWay picks the way with the closest center; equal distances resolve
// to the lowest way id.
func nearestWay(p geo.Point, elements []overpassElement) *overpassElement {
	var (
		best     *overpassElement
		bestDist float64
	)

	for i := range elements {
		el := &elements[i]
		if el.Type != "way" || el.Center == nil {
			continue
		}

		d := geo.HaversineKm(p, *el.Center)
		if best == nil || d < bestDist || (d == bestDist && el.ID < best.ID) {
			best, bestDist = el, d
		}
	}

	return best
}
