// Package dependencies manages the dependency graph of enrichment stages
package dependencies

import (
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/heimdalr/dag"
)

var (
	// ErrNonExistentDependency is returned when a stage depends on a stage that is not in the graph
	ErrNonExistentDependency = errors.New("stage depends on non-existent stage")
	// ErrDuplicateStage is returned when a stage id is added twice
	ErrDuplicateStage = errors.New("duplicate stage")
)

// Node is a stage and the stages whose output it reads
type Node struct {
	ID           string
	Dependencies []string
}

// DependencyGraph manages the dependency graph for stages
type DependencyGraph struct {
	dag      *dag.DAG
	nodes    map[string]Node
	position map[string]int
	mutex    sync.RWMutex
}

// NewDependencyGraph creates a new dependency graph
func NewDependencyGraph() *DependencyGraph {
	return &DependencyGraph{
		dag:      dag.NewDAG(),
		nodes:    make(map[string]Node),
		position: make(map[string]int),
	}
}

// BuildGraph builds the dependency graph from nodes. The order of nodes is
// kept as the tie-break between stages of the same level.
func (d *DependencyGraph) BuildGraph(nodes []Node) error {
	d.mutex.Lock()
	defer d.mutex.Unlock()

	d.dag = dag.NewDAG()
	d.nodes = make(map[string]Node, len(nodes))
	d.position = make(map[string]int, len(nodes))

	for i, node := range nodes {
		if _, exists := d.nodes[node.ID]; exists {
			return fmt.Errorf("%w: %s", ErrDuplicateStage, node.ID)
		}

		d.nodes[node.ID] = node
		d.position[node.ID] = i

		if err := d.dag.AddVertexByID(node.ID, node.ID); err != nil {
			return fmt.Errorf("failed to add vertex %s: %w", node.ID, err)
		}
	}

	// Edges run dependency → dependent
	for _, node := range nodes {
		for _, depID := range node.Dependencies {
			if _, exists := d.nodes[depID]; !exists {
				return fmt.Errorf("%w: %s depends on %s", ErrNonExistentDependency, node.ID, depID)
			}

			// AddEdge returns error if it would create a cycle
			if err := d.dag.AddEdge(depID, node.ID); err != nil {
				return fmt.Errorf("invalid dependency %s → %s: %w", depID, node.ID, err)
			}
		}
	}

	return nil
}

func sortedKeys(m map[string]interface{}) []string {
	ids := make([]string, 0, len(m))
	for id := range m {
		ids = append(ids, id)
	}

	sort.Strings(ids)

	return ids
}

// GetDependents returns the direct dependents of a stage
func (d *DependencyGraph) GetDependents(id string) []string {
	d.mutex.RLock()
	defer d.mutex.RUnlock()

	children, err := d.dag.GetChildren(id)
	if err != nil {
		return nil
	}

	return sortedKeys(children)
}

// GetDependencies returns the direct dependencies of a stage
func (d *DependencyGraph) GetDependencies(id string) []string {
	d.mutex.RLock()
	defer d.mutex.RUnlock()

	parents, err := d.dag.GetParents(id)
	if err != nil {
		return nil
	}

	return sortedKeys(parents)
}

// GetAllDependencies returns all dependencies (recursive) of a stage
func (d *DependencyGraph) GetAllDependencies(id string) []string {
	d.mutex.RLock()
	defer d.mutex.RUnlock()

	ancestors, err := d.dag.GetAncestors(id)
	if err != nil {
		return nil
	}

	return sortedKeys(ancestors)
}

// IsPathBetween checks if there's a path from one stage to another
func (d *DependencyGraph) IsPathBetween(fromID, toID string) bool {
	d.mutex.RLock()
	defer d.mutex.RUnlock()

	descendants, err := d.dag.GetDescendants(fromID)
	if err != nil {
		return false
	}

	_, exists := descendants[toID]

	return exists
}

// Order returns every stage after all of its dependencies. Stages of the
// same level keep the order they were added in.
func (d *DependencyGraph) Order() []string {
	d.mutex.RLock()
	defer d.mutex.RUnlock()

	levels := d.calculateLevels()

	ids := make([]string, 0, len(d.nodes))
	for id := range d.nodes {
		ids = append(ids, id)
	}

	sort.Slice(ids, func(i, j int) bool {
		if levels[ids[i]] != levels[ids[j]] {
			return levels[ids[i]] < levels[ids[j]]
		}

		return d.position[ids[i]] < d.position[ids[j]]
	})

	return ids
}
