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
	"fmt"
	"testing"

	"devt.de/krotik/annisdb/graph/data"
)

func TestPrePostOrderStorage(t *testing.T) {
	ps := NewPrePostOrderStorage()

	if err := ps.CopyFrom(buildTree(t)); err != nil {
		t.Error(err)
		return
	}

	if !ps.IsConnected(1, 6, 1, Unbounded) {
		t.Error("Node 6 should be a descendant of 1")
		return
	}

	if ps.IsConnected(1, 6, 1, 1) {
		t.Error("Node 6 is not a direct child of 1")
		return
	}

	if ps.IsConnected(2, 6, 1, Unbounded) {
		t.Error("Node 6 is not a descendant of 2")
		return
	}

	if res := CollectNodes(ps.FindConnected(1, 1, Unbounded)); fmt.Sprint(res) != "[2 4 5 3 6]" {
		t.Error("Unexpected descendants:", res)
		return
	}

	if res := CollectNodes(ps.FindConnected(1, 2, 2)); fmt.Sprint(res) != "[4 5 6]" {
		t.Error("Unexpected descendants at depth 2:", res)
		return
	}

	if res := CollectNodes(ps.FindConnectedInverse(6, 1, Unbounded)); fmt.Sprint(res) != "[1 3]" {
		t.Error("Unexpected ancestors:", res)
		return
	}

	if dist, ok := ps.Distance(1, 4); !ok || dist != 2 {
		t.Error("Unexpected distance:", dist, ok)
		return
	}

	// Tree invariant: connection tests and reachability agree

	for _, source := range []data.NodeID{1, 2, 3} {
		reachable := make(map[data.NodeID]bool)

		it := ps.FindConnected(source, 1, Unbounded)
		for n, ok := it.Next(); ok; n, ok = it.Next() {
			reachable[n] = true
		}

		for _, target := range []data.NodeID{1, 2, 3, 4, 5, 6} {
			if ps.IsConnected(source, target, 1, Unbounded) != reachable[target] {
				t.Error("Connection test mismatch:", source, target)
				return
			}
		}
	}

	// A cyclic component cannot be encoded

	cyclic := NewAdjacencyListStorage()
	cyclic.AddEdge(data.Edge{Source: 1, Target: 2})
	cyclic.AddEdge(data.Edge{Source: 2, Target: 1})
	cyclic.CalculateStatistics()

	if err := NewPrePostOrderStorage().CopyFrom(cyclic); err == nil {
		t.Error("Copying a cyclic component should fail")
		return
	}
}

func TestDenseAdjacencyListStorage(t *testing.T) {

	// An ordering chain 0 -> 1 -> 2 -> 3 -> 4 with dense node numbering

	als := NewAdjacencyListStorage()
	for i := 0; i < 4; i++ {
		als.AddEdge(data.Edge{Source: data.NodeID(i), Target: data.NodeID(i + 1)})
	}
	als.CalculateStatistics()

	ds := NewDenseAdjacencyListStorage()
	if err := ds.CopyFrom(als); err != nil {
		t.Error(err)
		return
	}

	if res := CollectNodes(ds.OutgoingEdges(1)); fmt.Sprint(res) != "[2]" {
		t.Error("Unexpected outgoing edges:", res)
		return
	}

	if res := CollectNodes(ds.SourceNodes()); fmt.Sprint(res) != "[0 1 2 3]" {
		t.Error("Unexpected source nodes:", res)
		return
	}

	if res := CollectNodes(ds.FindConnected(0, 2, 3)); fmt.Sprint(res) != "[2 3]" {
		t.Error("Unexpected reachable nodes:", res)
		return
	}

	if !ds.IsConnected(0, 4, 1, Unbounded) || ds.IsConnected(4, 0, 1, Unbounded) {
		t.Error("Unexpected connection test results")
		return
	}

	if dist, ok := ds.Distance(1, 4); !ok || dist != 3 {
		t.Error("Unexpected distance:", dist, ok)
		return
	}

	if res := CollectNodes(ds.FindConnectedInverse(4, 1, Unbounded)); fmt.Sprint(res) != "[3 2 1 0]" {
		t.Error("Unexpected inverse reachable nodes:", res)
		return
	}
}

func TestDiskPathStorage(t *testing.T) {

	// A corpus structure: documents 3, 4, 5 below sub-corpus 2 below corpus 1

	als := NewAdjacencyListStorage()
	als.AddEdge(data.Edge{Source: 2, Target: 1})
	als.AddEdge(data.Edge{Source: 3, Target: 2})
	als.AddEdge(data.Edge{Source: 4, Target: 2})
	als.AddEdge(data.Edge{Source: 5, Target: 2})
	als.CalculateStatistics()

	dps := NewDiskPathStorage()
	if err := dps.CopyFrom(als); err != nil {
		t.Error(err)
		return
	}

	if res := CollectNodes(dps.FindConnected(3, 1, Unbounded)); fmt.Sprint(res) != "[2 1]" {
		t.Error("Unexpected ancestor path:", res)
		return
	}

	if res := CollectNodes(dps.FindConnected(3, 2, Unbounded)); fmt.Sprint(res) != "[1]" {
		t.Error("Unexpected ancestor path from depth 2:", res)
		return
	}

	if !dps.IsConnected(4, 1, 1, Unbounded) || dps.IsConnected(4, 1, 1, 1) {
		t.Error("Unexpected connection test results")
		return
	}

	if dist, ok := dps.Distance(5, 1); !ok || dist != 2 {
		t.Error("Unexpected distance:", dist, ok)
		return
	}

	if res := CollectNodes(dps.IngoingEdges(2)); fmt.Sprint(res) != "[3 4 5]" {
		t.Error("Unexpected children:", res)
		return
	}

	// Components with branching cannot use the path layout

	branching := NewAdjacencyListStorage()
	branching.AddEdge(data.Edge{Source: 1, Target: 2})
	branching.AddEdge(data.Edge{Source: 1, Target: 3})
	branching.CalculateStatistics()

	if err := NewDiskPathStorage().CopyFrom(branching); err == nil {
		t.Error("Copying a branching component should fail")
		return
	}
}

func TestGraphStatistics(t *testing.T) {
	als := buildTree(t)
	stats := als.Statistics()

	if stats.Nodes != 6 || stats.RootNodes != 1 || stats.EdgeCount != 5 {
		t.Error("Unexpected statistics:", stats)
		return
	}

	if stats.MaxFanOut != 2 || stats.MaxDepth != 2 {
		t.Error("Unexpected fan-out or depth:", stats)
		return
	}

	if !stats.RootedTree || stats.Cyclic {
		t.Error("Component should be a rooted tree:", stats)
		return
	}

	// Invariant: the sum of all fan-outs is the edge count

	sum := 0
	sources := als.SourceNodes()
	for s, ok := sources.Next(); ok; s, ok = sources.Next() {
		sum += len(CollectNodes(als.OutgoingEdges(s)))
	}

	if sum != stats.EdgeCount {
		t.Error("Fan-out sum does not match edge count:", sum, stats.EdgeCount)
		return
	}

	// A cyclic component reports no depth and is not a tree

	cyclic := NewAdjacencyListStorage()
	cyclic.AddEdge(data.Edge{Source: 1, Target: 2})
	cyclic.AddEdge(data.Edge{Source: 2, Target: 1})
	cyclic.CalculateStatistics()

	if cstats := cyclic.Statistics(); !cstats.Cyclic || cstats.MaxDepth != 0 || cstats.RootedTree {
		t.Error("Unexpected statistics for cyclic component:", cstats)
		return
	}
}

func TestRegistry(t *testing.T) {
	dir := t.TempDir()

	als := buildTree(t)

	// A rooted tree with branching is pre/post order encoded

	id := OptimalImplementation(als.Statistics(), 0.5)
	if id != PrePostOrderID {
		t.Error("Unexpected implementation:", id)
		return
	}

	opt, err := Optimize(als)
	if err != nil {
		t.Error(err)
		return
	}

	if opt.SerializationID() != PrePostOrderID {
		t.Error("Unexpected optimized implementation:", opt.SerializationID())
		return
	}

	if err := SaveComponent(dir, opt); err != nil {
		t.Error(err)
		return
	}

	loaded, err := LoadComponent(dir)
	if err != nil {
		t.Error(err)
		return
	}

	if loaded.SerializationID() != PrePostOrderID {
		t.Error("Unexpected loaded implementation:", loaded.SerializationID())
		return
	}

	if !loaded.IsConnected(1, 6, 1, Unbounded) {
		t.Error("Loaded component lost its edges")
		return
	}

	if loaded.Statistics() == nil || loaded.Statistics().EdgeCount != 5 {
		t.Error("Unexpected loaded statistics:", loaded.Statistics())
		return
	}

	// A flat chain storage with a fan-out of one

	chain := NewAdjacencyListStorage()
	chain.AddEdge(data.Edge{Source: 2, Target: 1})
	chain.AddEdge(data.Edge{Source: 3, Target: 2})
	chain.CalculateStatistics()

	if id := OptimalImplementation(chain.Statistics(), 1.0); id != DiskPathID {
		t.Error("Unexpected implementation for chain:", id)
		return
	}

	if _, err := CreateFromID("UnknownV1"); err == nil {
		t.Error("Unknown implementation should fail")
		return
	}
}

func TestDiskPathComponentRoundTrip(t *testing.T) {
	dir := t.TempDir()

	als := NewAdjacencyListStorage()
	als.AddEdge(data.Edge{Source: 2, Target: 1})
	als.AddEdge(data.Edge{Source: 3, Target: 2})
	als.CalculateStatistics()

	dps := NewDiskPathStorage()
	if err := dps.CopyFrom(als); err != nil {
		t.Error(err)
		return
	}

	if err := SaveComponent(dir, dps); err != nil {
		t.Error(err)
		return
	}

	loaded, err := LoadComponent(dir)
	if err != nil {
		t.Error(err)
		return
	}
	defer loaded.(*DiskPathStorage).Close()

	// Records are now read from the attached path file

	if res := CollectNodes(loaded.FindConnected(3, 1, Unbounded)); fmt.Sprint(res) != "[2 1]" {
		t.Error("Unexpected ancestor path:", res)
		return
	}

	if res := CollectNodes(loaded.IngoingEdges(1)); fmt.Sprint(res) != "[2]" {
		t.Error("Unexpected children:", res)
		return
	}
}
