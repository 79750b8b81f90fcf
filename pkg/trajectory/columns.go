package trajectory

// Input columns.
const (
	ColLatitude   = "latitude"
	ColLongitude  = "longitude"
	ColSequence   = "sequence_index"
	ColElevation  = "elevation"
	ColDistanceKm = "along_route_distance_km"
)

// Attribute keys. They double as output column names.
const (
	AttrStreet     = "street"
	AttrCity       = "city"
	AttrPostalCode = "postal_code"
	AttrCountry    = "country"
	AttrRawAddress = "raw_address"

	AttrSurface    = "surface"
	AttrHighway    = "highway"
	AttrTrackType  = "tracktype"
	AttrSmoothness = "smoothness"
	AttrWayID      = "osm_way_id"
)

// Feature columns.
const (
	ColName                  = "name"
	ColType                  = "type"
	ColNearestIndex          = "nearest_trajectory_index"
	ColNearestElevation      = "nearest_trajectory_elevation"
	ColNearestDistanceKm     = "nearest_trajectory_distance_km"
	ColDistanceToTrajectoryM = "distance_to_trajectory_m"
)

//nolint:gochecknoglobals // fixed column layouts
var (
	// RequiredColumns must be present in every trajectory input.
	RequiredColumns = []string{ColLatitude, ColLongitude, ColSequence}

	// BaseColumns start every trajectory output row.
	BaseColumns = []string{ColLatitude, ColLongitude, ColSequence, ColElevation, ColDistanceKm}

	// GeocodingColumns are appended when the geocoding stage ran.
	GeocodingColumns = []string{AttrStreet, AttrCity, AttrPostalCode}

	// SurfaceColumns are appended when the surface stage ran.
	SurfaceColumns = []string{AttrSurface, AttrTrackType, AttrHighway, AttrSmoothness, AttrWayID}

	// FeatureRequiredColumns must be present in POI and place inputs.
	FeatureRequiredColumns = []string{ColLatitude, ColLongitude, ColName, ColType}

	// JoinedFeatureColumns is the POI/place output layout.
	JoinedFeatureColumns = []string{
		ColLatitude, ColLongitude, ColName, ColType, ColElevation,
		ColNearestIndex, ColNearestElevation, ColNearestDistanceKm, ColDistanceToTrajectoryM,
	}
)

// Layout selects which attribute column groups a trajectory output carries.
type Layout struct {
	Geocoding bool
	Surface   bool
}

// Header returns the output header for the layout.
func (l Layout) Header() []string {
	header := append([]string{}, BaseColumns...)
	if l.Geocoding {
		header = append(header, GeocodingColumns...)
	}

	if l.Surface {
		header = append(header, SurfaceColumns...)
	}

	return header
}
