// Package validation checks strategy execution plans before they run.
package validation

import (
	"errors"
	"fmt"
	"strings"
)

// ErrCyclicDependency is returned when declared strategy dependencies form a loop
var ErrCyclicDependency = errors.New("circular strategy dependency")

// Node is one strategy in a plan with the strategies it must run after
type Node struct {
	ID    string
	After []string
}

// CycleDetectionResult is the outcome of ordering a plan
type CycleDetectionResult struct {
	HasCycle  bool
	CyclePath []string
	// Waves groups nodes whose dependencies are all satisfied by earlier waves.
	// Within a wave, nodes keep their declared order.
	Waves        [][]string
	ErrorMessage string
}

// PlanWaves orders nodes with Kahn's algorithm, one wave per BFS layer.
// Edges to nodes outside the plan and self edges are ignored.
func PlanWaves(nodes []Node) CycleDetectionResult {
	if len(nodes) == 0 {
		return CycleDetectionResult{Waves: [][]string{}}
	}

	position := make(map[string]int, len(nodes))
	for i, n := range nodes {
		if _, dup := position[n.ID]; !dup {
			position[n.ID] = i
		}
	}

	inDegree := make(map[string]int, len(position))
	dependents := make(map[string][]string, len(position))
	for id := range position {
		inDegree[id] = 0
	}
	for i, n := range nodes {
		if position[n.ID] != i {
			continue
		}
		seen := make(map[string]bool)
		for _, dep := range n.After {
			if dep == n.ID || seen[dep] {
				continue
			}
			if _, ok := position[dep]; !ok {
				continue
			}
			seen[dep] = true
			dependents[dep] = append(dependents[dep], n.ID)
			inDegree[n.ID]++
		}
	}

	var current []string
	for i, n := range nodes {
		if position[n.ID] == i && inDegree[n.ID] == 0 {
			current = append(current, n.ID)
		}
	}

	waves := [][]string{}
	processed := 0
	for len(current) > 0 {
		waves = append(waves, current)
		processed += len(current)
		var next []string
		for _, id := range current {
			for _, dep := range dependents[id] {
				inDegree[dep]--
				if inDegree[dep] == 0 {
					next = append(next, dep)
				}
			}
		}
		sortByPosition(next, position)
		current = next
	}

	if processed == len(position) {
		return CycleDetectionResult{Waves: waves}
	}

	var remaining []string
	for i, n := range nodes {
		if position[n.ID] == i && inDegree[n.ID] > 0 {
			remaining = append(remaining, n.ID)
		}
	}
	path := findCyclePath(dependents, remaining)
	return CycleDetectionResult{
		HasCycle:     true,
		CyclePath:    path,
		ErrorMessage: fmt.Sprintf("circular dependency detected involving strategies: %s", strings.Join(path, " -> ")),
	}
}

// ValidatePlan returns ErrCyclicDependency when nodes cannot be ordered
func ValidatePlan(nodes []Node) ([][]string, error) {
	res := PlanWaves(nodes)
	if res.HasCycle {
		return nil, fmt.Errorf("%w: %s", ErrCyclicDependency, strings.Join(res.CyclePath, " -> "))
	}
	return res.Waves, nil
}

func sortByPosition(ids []string, position map[string]int) {
	for i := 1; i < len(ids); i++ {
		for j := i; j > 0 && position[ids[j]] < position[ids[j-1]]; j-- {
			ids[j], ids[j-1] = ids[j-1], ids[j]
		}
	}
}

// findCyclePath walks the remaining graph until a node repeats
func findCyclePath(graph map[string][]string, remaining []string) []string {
	if len(remaining) == 0 {
		return []string{}
	}
	inCycle := make(map[string]bool, len(remaining))
	for _, n := range remaining {
		inCycle[n] = true
	}

	for _, start := range remaining {
		index := map[string]int{}
		path := []string{}
		node := start
		for node != "" {
			if i, ok := index[node]; ok {
				return append(path[i:], node)
			}
			index[node] = len(path)
			path = append(path, node)
			next := ""
			for _, cand := range graph[node] {
				if inCycle[cand] {
					next = cand
					break
				}
			}
			node = next
		}
	}
	return remaining
}
