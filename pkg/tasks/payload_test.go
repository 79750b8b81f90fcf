package tasks

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestTrackPayload_UniqueID(t *testing.T) {
	tests := []struct {
		name     string
		payload  TrackPayload
		expected string
	}{
		{
			name:     "absolute path",
			payload:  TrackPayload{Input: "/data/inbox/ride.gpx"},
			expected: "track:/data/inbox/ride.gpx",
		},
		{
			name:     "path is cleaned",
			payload:  TrackPayload{Input: "/data/inbox/../inbox//ride.gpx"},
			expected: "track:/data/inbox/ride.gpx",
		},
		{
			name:     "trigger does not change the id",
			payload:  TrackPayload{Input: "ride.csv", Trigger: TriggerScheduler},
			expected: "track:ride.csv",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, tt.payload.UniqueID())
		})
	}
}

func TestTrackPayload_Validate(t *testing.T) {
	assert.ErrorIs(t, TrackPayload{}.Validate(), ErrInputRequired)
	assert.NoError(t, TrackPayload{Input: "ride.gpx"}.Validate())
}
