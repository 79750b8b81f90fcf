package trajectory

import (
	"bytes"
	"math"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReadCSV(t *testing.T) {
	tests := []struct {
		name        string
		input       string
		expectedLen int
		expectedErr error
		check       func(t *testing.T, points []Point)
	}{
		{
			name: "required and optional columns",
			input: "sequence_index,latitude,longitude,elevation,along_route_distance_km\n" +
				"0,47.0,8.0,410.5,0\n" +
				"5,47.001,8.001,,0.13\n",
			expectedLen: 2,
			check: func(t *testing.T, points []Point) {
				t.Helper()
				assert.Equal(t, 0, points[0].Index)
				assert.Equal(t, 5, points[1].Index)
				require.NotNil(t, points[0].Elevation)
				assert.InDelta(t, 410.5, *points[0].Elevation, 1e-9)
				assert.Nil(t, points[1].Elevation)
				require.NotNil(t, points[1].DistanceKm)
				assert.InDelta(t, 0.13, *points[1].DistanceKm, 1e-9)
			},
		},
		{
			name:        "header only",
			input:       "latitude,longitude,sequence_index\n",
			expectedLen: 0,
		},
		{
			name:        "column names are case and space insensitive",
			input:       " Latitude , LONGITUDE ,Sequence_Index\n1,2,3\n",
			expectedLen: 1,
		},
		{
			name:        "unparseable coordinate keeps the row",
			input:       "latitude,longitude,sequence_index\nabc,8,0\n47,8,1\n",
			expectedLen: 2,
			check: func(t *testing.T, points []Point) {
				t.Helper()
				assert.True(t, math.IsNaN(points[0].Lat))
				assert.False(t, points[0].Valid())
				assert.True(t, points[1].Valid())
			},
		},
		{
			name:        "missing required column",
			input:       "latitude,longitude\n47,8\n",
			expectedErr: ErrMalformedInput,
		},
		{
			name:        "empty file",
			input:       "",
			expectedErr: ErrMalformedInput,
		},
		{
			name:        "bad sequence index keeps the row as invalid",
			input:       "latitude,longitude,sequence_index\n47,8,first\n47,8,4\n47.1,8.1,x\n47.2,8.2,9\n",
			expectedLen: 4,
			check: func(t *testing.T, points []Point) {
				t.Helper()
				assert.Equal(t, []int{0, 4, 5, 9}, []int{points[0].Index, points[1].Index, points[2].Index, points[3].Index})
				assert.False(t, points[0].Valid())
				assert.True(t, points[1].Valid())
				assert.False(t, points[2].Valid())
				assert.True(t, points[3].Valid())
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			points, err := ReadCSV(strings.NewReader(tt.input))
			if tt.expectedErr != nil {
				require.ErrorIs(t, err, tt.expectedErr)
				return
			}

			require.NoError(t, err)
			assert.Len(t, points, tt.expectedLen)

			if tt.check != nil {
				tt.check(t, points)
			}
		})
	}
}

func TestReadCSVFile_Missing(t *testing.T) {
	_, err := ReadCSVFile(filepath.Join(t.TempDir(), "nope.csv"))
	assert.ErrorIs(t, err, ErrMalformedInput)
}

func TestWriteRecords_EmptyKeepsHeader(t *testing.T) {
	var buf bytes.Buffer

	require.NoError(t, WriteRecords(&buf, nil, Layout{Geocoding: true, Surface: true}))

	assert.Equal(t,
		"latitude,longitude,sequence_index,elevation,along_route_distance_km,"+
			"street,city,postal_code,surface,tracktype,highway,smoothness,osm_way_id\n",
		buf.String())
}

func TestWriteRecords_Rows(t *testing.T) {
	records := []Record{
		{
			Point:   Point{Index: 0, Lat: 47.5, Lon: 8.25, Elevation: Float(400)},
			Address: &Address{Street: "Main St", City: "Town A", PostalCode: "8000"},
		},
		{
			Point: Point{Index: 1, Lat: math.NaN(), Lon: 8.3},
		},
	}

	var buf bytes.Buffer
	require.NoError(t, WriteRecords(&buf, records, Layout{Geocoding: true}))

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 3)
	assert.Equal(t, "47.5,8.25,0,400,,Main St,Town A,8000", lines[1])
	assert.Equal(t, ",8.3,1,,,,,", lines[2])
}

func TestWriteRecordsFile_CreatesDirectories(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "out.csv")

	require.NoError(t, WriteRecordsFile(path, NewRecords([]Point{{Index: 3, Lat: 1, Lon: 2}}), Layout{Surface: true}))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "surface,tracktype,highway,smoothness,osm_way_id")
	assert.Contains(t, string(data), "1,2,3,,,,,,,")
}

func TestFeatures_ReadAndWrite(t *testing.T) {
	input := "name,type,latitude,longitude,elevation\n" +
		"Fountain,drinking_water,47.0,8.0,\n" +
		"Big Peak,peak,47.1,8.1,2100\n"

	features, err := ReadFeatures(strings.NewReader(input))
	require.NoError(t, err)
	require.Len(t, features, 2)
	assert.Nil(t, features[0].Elevation)
	require.NotNil(t, features[1].Elevation)
	assert.Equal(t, "peak", features[1].Type)

	joined := []JoinedFeature{{
		Feature:               features[1],
		NearestIndex:          12,
		NearestElevation:      Float(1500),
		NearestDistanceKm:     Float(3.25),
		DistanceToTrajectoryM: 812.345,
	}}

	var buf bytes.Buffer
	require.NoError(t, WriteJoinedFeatures(&buf, joined))

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 2)
	assert.Equal(t, strings.Join(JoinedFeatureColumns, ","), lines[0])
	assert.Equal(t, "47.1,8.1,Big Peak,peak,2100,12,1500,3.25,812.3", lines[1])

	_, err = ReadFeatures(strings.NewReader("latitude,longitude\n1,2\n"))
	assert.ErrorIs(t, err, ErrMalformedInput)
}
