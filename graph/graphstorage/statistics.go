/*
 * AnnisDB
 *
 * Copyright 2016 Matthias Ladkau. All rights reserved.
 *
 * This Source Code Form is subject to the terms of the Mozilla Public
 * License, v. 2.0. If a copy of the MPL was not distributed with this
 * file, You can obtain one at http://mozilla.org/MPL/2.0/.
 */

package graphstorage

import (
	"os"
	"path/filepath"
	"sort"

	"devt.de/krotik/annisdb/graph/data"
	"devt.de/krotik/annisdb/graph/util"
	toml "github.com/pelletier/go-toml/v2"
)

/*
StatisticsFileName is the name of the statistics file in a component
directory.
*/
const StatisticsFileName = "statistics.toml"

/*
GraphStatistic describes the shape of one component. The query planner
derives its cost estimates from these numbers.
*/
type GraphStatistic struct {
	Nodes                     int     `toml:"nodes"`                     // Number of nodes with at least one edge
	RootNodes                 int     `toml:"root_nodes"`                // Number of nodes without incoming edges
	EdgeCount                 int     `toml:"edge_count"`                // Total number of edges (sum of all fan-outs)
	MaxFanOut                 int     `toml:"max_fan_out"`               // Largest fan-out of a single node
	AvgFanOut                 float64 `toml:"avg_fan_out"`               // Average fan-out of source nodes
	FanOut99Percentile        int     `toml:"fan_out_99_percentile"`     // 99 percentile of the fan-out distribution
	InverseFanOut99Percentile int     `toml:"inv_fan_out_99_percentile"` // 99 percentile of the inverse fan-out distribution
	MaxDepth                  int     `toml:"max_depth"`                 // Longest path from a root (0 for cyclic components)
	Cyclic                    bool    `toml:"cyclic"`                    // Component contains a cycle
	RootedTree                bool    `toml:"rooted_tree"`               // Acyclic and every node has at most one parent
	DFSVisitRatio             float64 `toml:"dfs_visit_ratio"`           // Visited steps per node during the statistics DFS
}

/*
CalculateGraphStatistic computes the statistics of a component from its
edges. Every root is walked with a cycle safe DFS; a component which has
edges but no roots must contain a cycle.
*/
func CalculateGraphStatistic(container EdgeContainer) *GraphStatistic {
	stats := &GraphStatistic{RootedTree: true}

	var fanOuts, invFanOuts []int
	hasIncoming := make(map[data.NodeID]bool)
	nodes := make(map[data.NodeID]bool)

	sources := container.SourceNodes()

	for n, ok := sources.Next(); ok; n, ok = sources.Next() {
		fanOut := 0
		nodes[n] = true

		targets := container.OutgoingEdges(n)
		for t, tok := targets.Next(); tok; t, tok = targets.Next() {
			fanOut++
			nodes[t] = true
			hasIncoming[t] = true
		}

		fanOuts = append(fanOuts, fanOut)
		stats.EdgeCount += fanOut

		if fanOut > stats.MaxFanOut {
			stats.MaxFanOut = fanOut
		}
	}

	stats.Nodes = len(nodes)

	var roots []data.NodeID
	for n := range nodes {
		if !hasIncoming[n] {
			roots = append(roots, n)
		}
	}
	sort.Slice(roots, func(i, j int) bool { return roots[i] < roots[j] })

	stats.RootNodes = len(roots)

	for n := range nodes {
		invFanOut := 0
		in := container.IngoingEdges(n)
		for _, ok := in.Next(); ok; _, ok = in.Next() {
			invFanOut++
		}

		if invFanOut > 1 {
			stats.RootedTree = false
		}
		invFanOuts = append(invFanOuts, invFanOut)
	}

	if len(fanOuts) > 0 {
		stats.AvgFanOut = float64(stats.EdgeCount) / float64(len(fanOuts))
	}
	stats.FanOut99Percentile = percentile(fanOuts, 99)
	stats.InverseFanOut99Percentile = percentile(invFanOuts, 99)

	// Walk every root to find the depth and to detect cycles

	visited := 0

	for _, root := range roots {
		dfs := NewCycleSafeDFS(container, root, 0, Unbounded, false)

		for step, ok := dfs.Next(); ok; step, ok = dfs.Next() {
			visited++
			if step.Distance > stats.MaxDepth {
				stats.MaxDepth = step.Distance
			}
		}

		if dfs.CycleDetected() {
			stats.Cyclic = true
		}
	}

	if stats.EdgeCount > 0 && len(roots) == 0 {

		// Edges without any root can only happen in a cycle

		stats.Cyclic = true
	}

	if stats.Cyclic {
		stats.RootedTree = false
		stats.MaxDepth = 0
	}

	if stats.Nodes > 0 {
		stats.DFSVisitRatio = float64(visited) / float64(stats.Nodes)
	}

	return stats
}

/*
percentile returns the given percentile of a distribution.
*/
func percentile(values []int, p int) int {
	if len(values) == 0 {
		return 0
	}

	sorted := make([]int, len(values))
	copy(sorted, values)
	sort.Ints(sorted)

	pos := (len(sorted)*p + 99) / 100
	if pos > len(sorted) {
		pos = len(sorted)
	}
	if pos < 1 {
		pos = 1
	}

	return sorted[pos-1]
}

/*
LoadStatistics reads the statistics file of a component directory. A
missing file yields nil statistics and no error.
*/
func LoadStatistics(dir string) (*GraphStatistic, error) {
	raw, err := os.ReadFile(filepath.Join(dir, StatisticsFileName))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, &util.GraphError{Type: util.ErrStorageIO, Detail: err.Error()}
	}

	var stats GraphStatistic

	if err := toml.Unmarshal(raw, &stats); err != nil {
		return nil, &util.GraphError{Type: util.ErrCorrupted, Detail: err.Error()}
	}

	return &stats, nil
}

/*
SaveStatistics writes the statistics file of a component directory.
*/
func SaveStatistics(dir string, stats *GraphStatistic) error {
	if stats == nil {
		return nil
	}

	raw, err := toml.Marshal(stats)
	if err != nil {
		return &util.GraphError{Type: util.ErrStorageIO, Detail: err.Error()}
	}

	if err := os.WriteFile(filepath.Join(dir, StatisticsFileName), raw, 0660); err != nil {
		return &util.GraphError{Type: util.ErrStorageIO, Detail: err.Error()}
	}

	return nil
}
