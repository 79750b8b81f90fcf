package dependencies

import (
	"fmt"
	"sort"
	"strings"
)

// calculateLevels calculates the dependency depth of every stage
func (d *DependencyGraph) calculateLevels() map[string]int {
	levels := make(map[string]int, len(d.nodes))

	for id := range d.nodes {
		levels[id] = 0
	}

	// Keep updating levels until stable
	changed := true
	for changed {
		changed = false

		for id, node := range d.nodes {
			maxDepLevel := -1

			for _, dep := range node.Dependencies {
				if depLevel, exists := levels[dep]; exists && depLevel > maxDepLevel {
					maxDepLevel = depLevel
				}
			}

			if maxDepLevel >= 0 && maxDepLevel+1 > levels[id] {
				levels[id] = maxDepLevel + 1
				changed = true
			}
		}
	}

	return levels
}

// Levels groups stage ids by dependency depth
func (d *DependencyGraph) Levels() map[int][]string {
	d.mutex.RLock()
	defer d.mutex.RUnlock()

	groups := make(map[int][]string)
	for id, level := range d.calculateLevels() {
		groups[level] = append(groups[level], id)
	}

	for level := range groups {
		sort.Strings(groups[level])
	}

	return groups
}

// GenerateDOTFormat generates a DOT format representation of the DAG
func (d *DependencyGraph) GenerateDOTFormat() string {
	d.mutex.RLock()
	defer d.mutex.RUnlock()

	ids := make([]string, 0, len(d.nodes))
	for id := range d.nodes {
		ids = append(ids, id)
	}

	sort.Strings(ids)

	var sb strings.Builder
	sb.WriteString("digraph stages {\n")
	sb.WriteString("  rankdir=LR;\n")

	for _, id := range ids {
		fmt.Fprintf(&sb, "  \"%s\";\n", id)

		for _, dep := range d.nodes[id].Dependencies {
			fmt.Fprintf(&sb, "  \"%s\" -> \"%s\";\n", dep, id)
		}
	}

	sb.WriteString("}")

	return sb.String()
}
