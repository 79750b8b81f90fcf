package engine

import (
	"github.com/ethpandaops/gpxenrich/pkg/dependencies"
	"github.com/ethpandaops/gpxenrich/pkg/enrich"
	"github.com/ethpandaops/gpxenrich/pkg/nearest"
)

// StageGraph builds the dependency graph of the enabled stages. Surface
// blocks follow streets only after geocoding has attached them, and the
// feature joins read the elevations filled by the elevation stage.
func StageGraph(cfg *StagesConfig) (*dependencies.DependencyGraph, error) {
	var nodes []dependencies.Node

	if cfg.Elevation.Enabled {
		nodes = append(nodes, dependencies.Node{ID: enrich.StageElevation})
	}

	if cfg.Geocoding.Enabled {
		nodes = append(nodes, dependencies.Node{ID: enrich.StageGeocoding})
	}

	if cfg.Surface.Enabled {
		node := dependencies.Node{ID: enrich.StageSurface}
		if cfg.Geocoding.Enabled && enrich.LabelMode(cfg.Surface.Labels) == enrich.LabelsStreet {
			node.Dependencies = []string{enrich.StageGeocoding}
		}

		nodes = append(nodes, node)
	}

	var joinDeps []string
	if cfg.Elevation.Enabled {
		joinDeps = []string{enrich.StageElevation}
	}

	if cfg.Places.Enabled {
		nodes = append(nodes, dependencies.Node{ID: nearest.StagePlaces, Dependencies: joinDeps})
	}

	if cfg.POIs.Enabled {
		nodes = append(nodes, dependencies.Node{ID: nearest.StagePOIs, Dependencies: joinDeps})
	}

	graph := dependencies.NewDependencyGraph()
	if err := graph.BuildGraph(nodes); err != nil {
		return nil, err
	}

	return graph, nil
}
