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
	"bytes"
	"fmt"
	"testing"

	"devt.de/krotik/annisdb/graph/data"
	"devt.de/krotik/annisdb/graph/util"
)

/*
buildTree creates the storage for a small syntax tree:

	1
	├── 2
	│   ├── 4
	│   └── 5
	└── 3
	    └── 6
*/
func buildTree(t *testing.T) *AdjacencyListStorage {
	als := NewAdjacencyListStorage()

	for _, e := range [][2]data.NodeID{{1, 2}, {1, 3}, {2, 4}, {2, 5}, {3, 6}} {
		if err := als.AddEdge(data.Edge{Source: e[0], Target: e[1]}); err != nil {
			t.Error(err)
		}
	}

	if err := als.CalculateStatistics(); err != nil {
		t.Error(err)
	}

	return als
}

func TestAdjacencyListBasicOperations(t *testing.T) {
	als := buildTree(t)

	if res := CollectNodes(als.OutgoingEdges(1)); fmt.Sprint(res) != "[2 3]" {
		t.Error("Unexpected outgoing edges:", res)
		return
	}

	if res := CollectNodes(als.IngoingEdges(4)); fmt.Sprint(res) != "[2]" {
		t.Error("Unexpected ingoing edges:", res)
		return
	}

	if res := CollectNodes(als.SourceNodes()); fmt.Sprint(res) != "[1 2 3]" {
		t.Error("Unexpected source nodes:", res)
		return
	}

	if res := CollectNodes(als.FindConnected(1, 1, Unbounded)); fmt.Sprint(res) != "[2 4 5 3 6]" {
		t.Error("Unexpected reachable nodes:", res)
		return
	}

	if res := CollectNodes(als.FindConnected(1, 2, 2)); fmt.Sprint(res) != "[4 5 6]" {
		t.Error("Unexpected reachable nodes at depth 2:", res)
		return
	}

	if res := CollectNodes(als.FindConnectedInverse(4, 1, Unbounded)); fmt.Sprint(res) != "[2 1]" {
		t.Error("Unexpected inverse reachable nodes:", res)
		return
	}

	if !als.IsConnected(1, 6, 1, Unbounded) || als.IsConnected(1, 6, 1, 1) {
		t.Error("Unexpected connection test results")
		return
	}

	if dist, ok := als.Distance(1, 6); !ok || dist != 2 {
		t.Error("Unexpected distance:", dist, ok)
		return
	}

	if _, ok := als.Distance(4, 6); ok {
		t.Error("There should be no path between siblings")
		return
	}

	// Duplicate edges are no-ops

	als.AddEdge(data.Edge{Source: 1, Target: 2})
	if als.Statistics() == nil || als.Statistics().EdgeCount != 5 {
		t.Error("Unexpected statistics:", als.Statistics())
		return
	}

	if err := als.DeleteNode(2); err != nil {
		t.Error(err)
		return
	}

	if res := CollectNodes(als.FindConnected(1, 1, Unbounded)); fmt.Sprint(res) != "[3 6]" {
		t.Error("Unexpected reachable nodes after node removal:", res)
		return
	}
}

func TestAdjacencyListEdgeAnnotations(t *testing.T) {
	als := buildTree(t)
	edge := data.Edge{Source: 1, Target: 2}

	err := als.AddEdgeAnnotation(data.Edge{Source: 7, Target: 8},
		data.Annotation{Key: data.AnnoKey{Name: "func"}, Val: "SB"})
	if !util.IsGraphError(err, util.ErrInvalidUpdate) {
		t.Error("Annotating a missing edge should fail:", err)
		return
	}

	if err := als.AddEdgeAnnotation(edge,
		data.Annotation{Key: data.AnnoKey{Name: "func", NS: "tiger"}, Val: "SB"}); err != nil {
		t.Error(err)
		return
	}

	annos := als.AnnotationStorage().Annotations(edge)
	if len(annos) != 1 || annos[0].Val != "SB" {
		t.Error("Unexpected edge annotations:", annos)
		return
	}

	// Deleting the edge removes its annotations

	als.DeleteEdge(edge)
	if annos := als.AnnotationStorage().Annotations(edge); len(annos) != 0 {
		t.Error("Edge annotations should be gone:", annos)
		return
	}
}

func TestAdjacencyListSerialization(t *testing.T) {
	als := buildTree(t)
	als.AddEdgeAnnotation(data.Edge{Source: 1, Target: 2},
		data.Annotation{Key: data.AnnoKey{Name: "func", NS: "tiger"}, Val: "SB"})

	var buf bytes.Buffer

	if err := als.WriteTo(&buf); err != nil {
		t.Error(err)
		return
	}

	als2 := NewAdjacencyListStorage()
	if err := als2.ReadFrom(&buf); err != nil {
		t.Error(err)
		return
	}

	if res := CollectNodes(als2.FindConnected(1, 1, Unbounded)); fmt.Sprint(res) != "[2 4 5 3 6]" {
		t.Error("Unexpected reachable nodes:", res)
		return
	}

	if res := CollectNodes(als2.IngoingEdges(6)); fmt.Sprint(res) != "[3]" {
		t.Error("Unexpected rebuilt inverse index:", res)
		return
	}

	annos := als2.AnnotationStorage().Annotations(data.Edge{Source: 1, Target: 2})
	if len(annos) != 1 || annos[0].Val != "SB" {
		t.Error("Unexpected edge annotations:", annos)
		return
	}

	if als2.Statistics() == nil || als2.Statistics().EdgeCount != 5 {
		t.Error("Unexpected statistics:", als2.Statistics())
		return
	}
}

func TestCycleSafeDFS(t *testing.T) {
	als := NewAdjacencyListStorage()

	// A cycle 1 -> 2 -> 3 -> 1 must terminate and be reported

	als.AddEdge(data.Edge{Source: 1, Target: 2})
	als.AddEdge(data.Edge{Source: 2, Target: 3})
	als.AddEdge(data.Edge{Source: 3, Target: 1})

	dfs := NewCycleSafeDFS(als, 1, 0, Unbounded, false)

	var visited []data.NodeID
	for step, ok := dfs.Next(); ok; step, ok = dfs.Next() {
		visited = append(visited, step.Node)
	}

	if fmt.Sprint(visited) != "[1 2 3]" {
		t.Error("Unexpected visited nodes:", visited)
		return
	}

	if !dfs.CycleDetected() {
		t.Error("Cycle should have been detected")
		return
	}
}
