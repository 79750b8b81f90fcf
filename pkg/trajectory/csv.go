package trajectory

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

var (
	// ErrMalformedInput is returned when an input cannot be read as a
	// trajectory or feature table. Callers write an empty output instead.
	ErrMalformedInput = errors.New("malformed input")
	// ErrMissingColumn is wrapped into ErrMalformedInput for absent required columns.
	ErrMissingColumn = errors.New("missing required column")
)

// header maps lower-cased column names to their position.
type header map[string]int

func parseHeader(row []string) header {
	h := make(header, len(row))
	for i, name := range row {
		name = strings.ToLower(strings.TrimSpace(strings.TrimPrefix(name, "\ufeff")))
		if _, exists := h[name]; !exists {
			h[name] = i
		}
	}

	return h
}

func (h header) require(columns []string) error {
	for _, col := range columns {
		if _, ok := h[col]; !ok {
			return fmt.Errorf("%w: %w %q", ErrMalformedInput, ErrMissingColumn, col)
		}
	}

	return nil
}

func (h header) get(row []string, col string) string {
	i, ok := h[col]
	if !ok || i >= len(row) {
		return ""
	}

	return strings.TrimSpace(row[i])
}

func newReader(r io.Reader) *csv.Reader {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = true

	return reader
}

// ReadCSV reads trajectory points from a table with at least the latitude,
// longitude and sequence_index columns. Unparseable coordinates are kept as
// NaN so the row survives into the output as an invalid point. A row with an
// unparseable sequence_index is kept the same way and numbered after the
// previous row.
func ReadCSV(r io.Reader) ([]Point, error) {
	reader := newReader(r)

	first, err := reader.Read()
	if err != nil {
		return nil, fmt.Errorf("%w: reading header: %w", ErrMalformedInput, err)
	}

	h := parseHeader(first)
	if err := h.require(RequiredColumns); err != nil {
		return nil, err
	}

	points := make([]Point, 0, 256)

	for line := 2; ; line++ {
		row, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}

		if err != nil {
			return nil, fmt.Errorf("%w: line %d: %w", ErrMalformedInput, line, err)
		}

		if isBlank(row) {
			continue
		}

		p := Point{
			Lat:        parseCoordinate(h.get(row, ColLatitude)),
			Lon:        parseCoordinate(h.get(row, ColLongitude)),
			Elevation:  parseOptional(h.get(row, ColElevation)),
			DistanceKm: parseOptional(h.get(row, ColDistanceKm)),
		}

		seq, err := strconv.Atoi(h.get(row, ColSequence))
		if err != nil {
			// unusable row: follows its predecessor as an invalid point
			seq = 0
			if n := len(points); n > 0 {
				seq = points[n-1].Index + 1
			}

			p.Lat, p.Lon = math.NaN(), math.NaN()
		}

		p.Index = seq
		points = append(points, p)
	}

	return points, nil
}

// ReadCSVFile opens path and reads it with ReadCSV.
func ReadCSVFile(path string) ([]Point, error) {
	f, err := os.Open(path) //nolint:gosec // user-provided input path
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrMalformedInput, err)
	}
	defer f.Close()

	return ReadCSV(f)
}

// Load reads a trajectory from a .gpx or tabular file based on its extension.
func Load(path string) ([]Point, error) {
	if strings.EqualFold(filepath.Ext(path), ".gpx") {
		return LoadGPX(path)
	}

	return ReadCSVFile(path)
}

// WriteRecords writes records with the header for layout. The header is
// written even when there are no records.
func WriteRecords(w io.Writer, records []Record, layout Layout) error {
	writer := csv.NewWriter(w)

	if err := writer.Write(layout.Header()); err != nil {
		return err
	}

	for i := range records {
		rec := &records[i]

		row := []string{
			formatFloat(rec.Lat),
			formatFloat(rec.Lon),
			strconv.Itoa(rec.Index),
			formatOptional(rec.Elevation),
			formatOptional(rec.DistanceKm),
		}

		if layout.Geocoding {
			addr := rec.Address
			if addr == nil {
				addr = &Address{}
			}

			row = append(row, addr.Street, addr.City, addr.PostalCode)
		}

		if layout.Surface {
			surf := rec.Surface
			if surf == nil {
				surf = &Surface{}
			}

			row = append(row, surf.Surface, surf.TrackType, surf.Highway, surf.Smoothness, surf.WayID)
		}

		if err := writer.Write(row); err != nil {
			return err
		}
	}

	writer.Flush()

	return writer.Error()
}

// WriteRecordsFile writes records to path, creating parent directories.
func WriteRecordsFile(path string, records []Record, layout Layout) error {
	return writeFile(path, func(w io.Writer) error {
		return WriteRecords(w, records, layout)
	})
}

// ReadFeatures reads POIs or places from a table with latitude, longitude,
// name and type columns and an optional elevation column.
func ReadFeatures(r io.Reader) ([]Feature, error) {
	reader := newReader(r)

	first, err := reader.Read()
	if err != nil {
		return nil, fmt.Errorf("%w: reading header: %w", ErrMalformedInput, err)
	}

	h := parseHeader(first)
	if err := h.require(FeatureRequiredColumns); err != nil {
		return nil, err
	}

	var features []Feature

	for line := 2; ; line++ {
		row, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}

		if err != nil {
			return nil, fmt.Errorf("%w: line %d: %w", ErrMalformedInput, line, err)
		}

		if isBlank(row) {
			continue
		}

		features = append(features, Feature{
			Lat:       parseCoordinate(h.get(row, ColLatitude)),
			Lon:       parseCoordinate(h.get(row, ColLongitude)),
			Name:      h.get(row, ColName),
			Type:      h.get(row, ColType),
			Elevation: parseOptional(h.get(row, ColElevation)),
		})
	}

	return features, nil
}

// ReadFeaturesFile opens path and reads it with ReadFeatures.
func ReadFeaturesFile(path string) ([]Feature, error) {
	f, err := os.Open(path) //nolint:gosec // user-provided input path
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrMalformedInput, err)
	}
	defer f.Close()

	return ReadFeatures(f)
}

// WriteJoinedFeatures writes joined POIs or places, header included.
func WriteJoinedFeatures(w io.Writer, features []JoinedFeature) error {
	writer := csv.NewWriter(w)

	if err := writer.Write(JoinedFeatureColumns); err != nil {
		return err
	}

	for i := range features {
		f := &features[i]
		if err := writer.Write([]string{
			formatFloat(f.Lat),
			formatFloat(f.Lon),
			f.Name,
			f.Type,
			formatOptional(f.Elevation),
			strconv.Itoa(f.NearestIndex),
			formatOptional(f.NearestElevation),
			formatOptional(f.NearestDistanceKm),
			strconv.FormatFloat(f.DistanceToTrajectoryM, 'f', 1, 64),
		}); err != nil {
			return err
		}
	}

	writer.Flush()

	return writer.Error()
}

// WriteJoinedFeaturesFile writes joined features to path.
func WriteJoinedFeaturesFile(path string, features []JoinedFeature) error {
	return writeFile(path, func(w io.Writer) error {
		return WriteJoinedFeatures(w, features)
	})
}

func writeFile(path string, write func(io.Writer) error) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("failed to create output directory: %w", err)
		}
	}

	f, err := os.Create(path) //nolint:gosec // configured output path
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", path, err)
	}

	if err := write(f); err != nil {
		_ = f.Close()
		return fmt.Errorf("failed to write %s: %w", path, err)
	}

	return f.Close()
}

func isBlank(row []string) bool {
	for _, v := range row {
		if strings.TrimSpace(v) != "" {
			return false
		}
	}

	return true
}

func parseCoordinate(s string) float64 {
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return math.NaN()
	}

	return v
}

func parseOptional(s string) *float64 {
	if s == "" {
		return nil
	}

	v, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsNaN(v) {
		return nil
	}

	return &v
}

func formatFloat(v float64) string {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return ""
	}

	return strconv.FormatFloat(v, 'f', -1, 64)
}

func formatOptional(v *float64) string {
	if v == nil {
		return ""
	}

	return formatFloat(*v)
}
