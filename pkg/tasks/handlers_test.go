package tasks

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/ethpandaops/gpxenrich/internal/testutil"
	"github.com/hibiken/asynq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type mockProcessor struct {
	mock.Mock
}

func (m *mockProcessor) Process(ctx context.Context, input string) error {
	args := m.Called(ctx, input)
	return args.Error(0)
}

func newTask(t *testing.T, payload any) *asynq.Task {
	t.Helper()

	data, err := json.Marshal(payload)
	require.NoError(t, err)

	return asynq.NewTask(TypeEnrichTrack, data)
}

func TestTaskHandler_HandleEnrichTrack(t *testing.T) {
	errBoom := errors.New("disk full")

	tests := []struct {
		name       string
		task       func(t *testing.T) *asynq.Task
		processErr error
		expectCall bool
		wantErr    error
		skipRetry  bool
	}{
		{
			name: "processes the input",
			task: func(t *testing.T) *asynq.Task {
				return newTask(t, TrackPayload{Input: "/data/ride.gpx", Trigger: TriggerManual, EnqueuedAt: time.Now()})
			},
			expectCall: true,
		},
		{
			name: "processing error is retried",
			task: func(t *testing.T) *asynq.Task {
				return newTask(t, TrackPayload{Input: "/data/ride.gpx"})
			},
			processErr: errBoom,
			expectCall: true,
			wantErr:    errBoom,
		},
		{
			name: "malformed payload is not retried",
			task: func(*testing.T) *asynq.Task {
				return asynq.NewTask(TypeEnrichTrack, []byte("{not json"))
			},
			skipRetry: true,
		},
		{
			name: "missing input is not retried",
			task: func(t *testing.T) *asynq.Task {
				return newTask(t, TrackPayload{Trigger: TriggerManual})
			},
			wantErr:   ErrInputRequired,
			skipRetry: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			processor := &mockProcessor{}
			if tt.expectCall {
				processor.On("Process", mock.Anything, "/data/ride.gpx").Return(tt.processErr).Once()
			}

			handler := NewTaskHandler(processor, testutil.NewLogger(t))

			err := handler.HandleEnrichTrack(context.Background(), tt.task(t))

			switch {
			case tt.wantErr == nil && !tt.skipRetry:
				require.NoError(t, err)
			default:
				require.Error(t, err)

				if tt.wantErr != nil {
					require.ErrorIs(t, err, tt.wantErr)
				}

				assert.Equal(t, tt.skipRetry, errors.Is(err, asynq.SkipRetry))
			}

			processor.AssertExpectations(t)

			if !tt.expectCall {
				processor.AssertNotCalled(t, "Process", mock.Anything, mock.Anything)
			}
		})
	}
}

func TestTaskHandler_Routes(t *testing.T) {
	handler := NewTaskHandler(&mockProcessor{}, testutil.NewLogger(t))

	routes := handler.Routes()
	require.Len(t, routes, 1)
	assert.Contains(t, routes, TypeEnrichTrack)
}
