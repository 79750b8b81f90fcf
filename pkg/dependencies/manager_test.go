package dependencies

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func stageNodes() []Node {
	return []Node{
		{ID: "elevation"},
		{ID: "geocoding"},
		{ID: "surface", Dependencies: []string{"geocoding"}},
		{ID: "places", Dependencies: []string{"elevation"}},
		{ID: "pois", Dependencies: []string{"elevation"}},
	}
}

func TestDependencyGraph_BuildGraph(t *testing.T) {
	tests := []struct {
		name          string
		nodes         []Node
		expectedError error
	}{
		{
			name:  "stage graph",
			nodes: stageNodes(),
		},
		{
			name:  "empty graph",
			nodes: nil,
		},
		{
			name: "missing dependency",
			nodes: []Node{
				{ID: "surface", Dependencies: []string{"geocoding"}},
			},
			expectedError: ErrNonExistentDependency,
		},
		{
			name: "duplicate stage",
			nodes: []Node{
				{ID: "geocoding"},
				{ID: "geocoding"},
			},
			expectedError: ErrDuplicateStage,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			g := NewDependencyGraph()
			err := g.BuildGraph(tt.nodes)

			if tt.expectedError != nil {
				assert.ErrorIs(t, err, tt.expectedError)
				return
			}

			require.NoError(t, err)
		})
	}
}

func TestDependencyGraph_CycleFails(t *testing.T) {
	g := NewDependencyGraph()

	err := g.BuildGraph([]Node{
		{ID: "a", Dependencies: []string{"b"}},
		{ID: "b", Dependencies: []string{"a"}},
	})

	require.Error(t, err)
}

func TestDependencyGraph_Relations(t *testing.T) {
	g := NewDependencyGraph()
	require.NoError(t, g.BuildGraph(stageNodes()))

	assert.Equal(t, []string{"places", "pois"}, g.GetDependents("elevation"))
	assert.Equal(t, []string{"geocoding"}, g.GetDependencies("surface"))
	assert.Equal(t, []string{"geocoding"}, g.GetAllDependencies("surface"))
	assert.Empty(t, g.GetDependencies("geocoding"))
	assert.Nil(t, g.GetDependents("missing"))

	assert.True(t, g.IsPathBetween("geocoding", "surface"))
	assert.False(t, g.IsPathBetween("surface", "geocoding"))
	assert.False(t, g.IsPathBetween("elevation", "surface"))
}

func TestDependencyGraph_Order(t *testing.T) {
	tests := []struct {
		name     string
		nodes    []Node
		expected []string
	}{
		{
			name:     "stage graph",
			nodes:    stageNodes(),
			expected: []string{"elevation", "geocoding", "surface", "places", "pois"},
		},
		{
			name: "dependency listed after dependent",
			nodes: []Node{
				{ID: "surface", Dependencies: []string{"geocoding"}},
				{ID: "geocoding"},
			},
			expected: []string{"geocoding", "surface"},
		},
		{
			name: "chain",
			nodes: []Node{
				{ID: "c", Dependencies: []string{"b"}},
				{ID: "b", Dependencies: []string{"a"}},
				{ID: "a"},
			},
			expected: []string{"a", "b", "c"},
		},
		{
			name:     "empty",
			expected: []string{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			g := NewDependencyGraph()
			require.NoError(t, g.BuildGraph(tt.nodes))

			assert.Equal(t, tt.expected, g.Order())
		})
	}
}

func TestDependencyGraph_Visualization(t *testing.T) {
	g := NewDependencyGraph()
	require.NoError(t, g.BuildGraph(stageNodes()))

	levels := g.Levels()
	assert.Equal(t, []string{"elevation", "geocoding"}, levels[0])
	assert.Equal(t, []string{"places", "pois", "surface"}, levels[1])

	dot := g.GenerateDOTFormat()
	assert.Contains(t, dot, "digraph stages {")
	assert.Contains(t, dot, `"geocoding" -> "surface";`)
	assert.Contains(t, dot, `"elevation" -> "pois";`)
}
