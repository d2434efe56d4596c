/*
 * AnnisDB
 *
 * Copyright 2016 Matthias Ladkau. All rights reserved.
 *
 * This Source Code Form is subject to the terms of the Mozilla Public
 * License, v. 2.0. If a copy of the MPL was not distributed with this
 * file, You can obtain one at http://mozilla.org/MPL/2.0/.
 */

package graph

import (
	"fmt"
	"testing"

	"devt.de/krotik/annisdb/graph/data"
	"devt.de/krotik/annisdb/graph/graphstorage"
	"devt.de/krotik/annisdb/graph/util"
)

/*
exampleUpdate builds a small document with three tokens, a span covering
the first two and a corpus structure above.
*/
func exampleUpdate() *GraphUpdate {
	u := NewGraphUpdate()

	u.AddNode("root", "corpus")
	u.AddNode("root/doc1", "corpus")

	u.AddNode("root/doc1#t1", "")
	u.AddNodeLabel("root/doc1#t1", "annis", "tok", "This")
	u.AddNode("root/doc1#t2", "")
	u.AddNodeLabel("root/doc1#t2", "annis", "tok", "is")
	u.AddNode("root/doc1#t3", "")
	u.AddNodeLabel("root/doc1#t3", "annis", "tok", "interesting")

	u.AddEdge("root/doc1#t1", "root/doc1#t2", "annis", "Ordering", "")
	u.AddEdge("root/doc1#t2", "root/doc1#t3", "annis", "Ordering", "")

	u.AddNode("root/doc1#span1", "")
	u.AddNodeLabel("root/doc1#span1", "tiger", "cat", "NP")
	u.AddEdge("root/doc1#span1", "root/doc1#t1", "annis", "Coverage", "")
	u.AddEdge("root/doc1#span1", "root/doc1#t2", "annis", "Coverage", "")

	for _, n := range []string{"t1", "t2", "t3", "span1"} {
		u.AddEdge("root/doc1#"+n, "root/doc1", "annis", "PartOf", "")
	}
	u.AddEdge("root/doc1", "root", "annis", "PartOf", "")

	u.Finish()
	return u
}

func TestApplyUpdateReadBack(t *testing.T) {
	g := NewGraph()

	if err := g.ApplyUpdate(exampleUpdate()); err != nil {
		t.Error(err)
		return
	}

	// Node lookups stay consistent in both directions

	for _, name := range []string{"root", "root/doc1", "root/doc1#t1", "root/doc1#span1"} {
		id, ok := g.NodeIDFromName(name)
		if !ok {
			t.Error("Node should exist:", name)
			return
		}

		if back, ok := g.NodeNameFromID(id); !ok || back != name {
			t.Error("Unexpected name lookup:", back, ok)
			return
		}
	}

	if g.HasNodeName("root/doc2") {
		t.Error("Node should not exist")
		return
	}

	t2, _ := g.NodeIDFromName("root/doc1#t2")
	if val, ok := g.NodeAnnotations().Value(t2, *data.TokKey); !ok || val != "is" {
		t.Error("Unexpected token value:", val, ok)
		return
	}

	// Edges of the ordering chain

	ord, err := g.Storage(data.DefaultOrderingComponent)
	if err != nil {
		t.Error(err)
		return
	}

	t1, _ := g.NodeIDFromName("root/doc1#t1")
	t3, _ := g.NodeIDFromName("root/doc1#t3")

	if !ord.IsConnected(t1, t3, 1, graphstorage.Unbounded) || !ord.IsConnected(t1, t2, 1, 1) {
		t.Error("Unexpected ordering edges")
		return
	}

	if g.ChangeID() == 0 {
		t.Error("Change ID should have advanced")
		return
	}

	// Statistics were rebuilt during the apply

	if ord.Statistics() == nil || ord.Statistics().EdgeCount != 2 {
		t.Error("Unexpected ordering statistics:", ord.Statistics())
		return
	}

	stats := g.GlobalStatistics()
	if stats.NodeCount != 6 {
		t.Error("Unexpected node count:", stats.NodeCount)
		return
	}
	if stats.ComponentCount["PartOf"] != 1 || stats.ComponentCount["Ordering"] != 1 {
		t.Error("Unexpected component counts:", stats.ComponentCount)
		return
	}
}

func TestDerivedComponents(t *testing.T) {
	g := NewGraph()

	if err := g.ApplyUpdate(exampleUpdate()); err != nil {
		t.Error(err)
		return
	}

	span, _ := g.NodeIDFromName("root/doc1#span1")
	t1, _ := g.NodeIDFromName("root/doc1#t1")
	t2, _ := g.NodeIDFromName("root/doc1#t2")

	left, err := g.Storage(data.LeftTokenComponent)
	if err != nil {
		t.Error(err)
		return
	}

	if res := graphstorage.CollectNodes(left.OutgoingEdges(span)); fmt.Sprint(res) != fmt.Sprint([]data.NodeID{t1}) {
		t.Error("Unexpected left token:", res)
		return
	}

	right, err := g.Storage(data.RightTokenComponent)
	if err != nil {
		t.Error(err)
		return
	}

	if res := graphstorage.CollectNodes(right.OutgoingEdges(span)); fmt.Sprint(res) != fmt.Sprint([]data.NodeID{t2}) {
		t.Error("Unexpected right token:", res)
		return
	}

	inv, err := g.Storage(data.InvertedCoverageComponent)
	if err != nil {
		t.Error(err)
		return
	}

	if !inv.IsConnected(t1, span, 1, 1) || !inv.IsConnected(t2, span, 1, 1) {
		t.Error("Unexpected inverted coverage edges")
		return
	}

	// Deleting the span removes it from the derived components as well

	del := NewGraphUpdate()
	del.DeleteNode("root/doc1#span1")

	if err := g.ApplyUpdate(del); err != nil {
		t.Error(err)
		return
	}

	if g.HasNodeName("root/doc1#span1") {
		t.Error("Span should be gone")
		return
	}

	left, _ = g.Storage(data.LeftTokenComponent)
	if res := graphstorage.CollectNodes(left.SourceNodes()); len(res) != 0 {
		t.Error("Left token edges should be gone:", res)
		return
	}

	inv, _ = g.Storage(data.InvertedCoverageComponent)
	if res := graphstorage.CollectNodes(inv.SourceNodes()); len(res) != 0 {
		t.Error("Inverted coverage edges should be gone:", res)
		return
	}
}

func TestUnorderedTokenPositions(t *testing.T) {
	g := NewGraph()

	// Tokens of a single token text have no ordering edges; they get
	// their positions in node ID order

	u := NewGraphUpdate()
	u.AddNode("root/doc1#t1", "")
	u.AddNodeLabel("root/doc1#t1", "annis", "tok", "Hello")
	u.AddNode("root/doc1#t2", "")
	u.AddNodeLabel("root/doc1#t2", "annis", "tok", "World")
	u.AddNode("root/doc1#span1", "")
	u.AddEdge("root/doc1#span1", "root/doc1#t1", "annis", "Coverage", "")
	u.AddEdge("root/doc1#span1", "root/doc1#t2", "annis", "Coverage", "")
	u.Finish()

	if err := g.ApplyUpdate(u); err != nil {
		t.Error(err)
		return
	}

	span, _ := g.NodeIDFromName("root/doc1#span1")
	t1, _ := g.NodeIDFromName("root/doc1#t1")
	t2, _ := g.NodeIDFromName("root/doc1#t2")

	left, err := g.Storage(data.LeftTokenComponent)
	if err != nil {
		t.Error(err)
		return
	}
	right, err := g.Storage(data.RightTokenComponent)
	if err != nil {
		t.Error(err)
		return
	}

	if res := graphstorage.CollectNodes(left.OutgoingEdges(span)); fmt.Sprint(res) != fmt.Sprint([]data.NodeID{t1}) {
		t.Error("Unexpected left token:", res)
		return
	}
	if res := graphstorage.CollectNodes(right.OutgoingEdges(span)); fmt.Sprint(res) != fmt.Sprint([]data.NodeID{t2}) {
		t.Error("Unexpected right token:", res)
		return
	}
}

func TestIdempotentUpdates(t *testing.T) {
	g := NewGraph()

	if err := g.ApplyUpdate(exampleUpdate()); err != nil {
		t.Error(err)
		return
	}

	before := g.GlobalStatistics()

	// Applying the same batch again changes nothing

	if err := g.ApplyUpdate(exampleUpdate()); err != nil {
		t.Error(err)
		return
	}

	after := g.GlobalStatistics()
	if after.NodeCount != before.NodeCount {
		t.Error("Duplicate adds should be no-ops:", before.NodeCount, after.NodeCount)
		return
	}

	ord, _ := g.Storage(data.DefaultOrderingComponent)
	if ord.Statistics().EdgeCount != 2 {
		t.Error("Unexpected ordering statistics:", ord.Statistics())
		return
	}

	// Deletes of absent items are no-ops

	del := NewGraphUpdate()
	del.DeleteNode("root/doc1#t99")
	del.DeleteNodeLabel("root/doc1#t1", "annis", "missing")
	del.DeleteEdge("root/doc1#t1", "root/doc1#t3", "annis", "Ordering", "")

	if err := g.ApplyUpdate(del); err != nil {
		t.Error(err)
		return
	}

	if g.GlobalStatistics().NodeCount != before.NodeCount {
		t.Error("Deletes of absent items should not change the graph")
		return
	}
}

func TestLabelLifecycle(t *testing.T) {
	g := NewGraph()

	// Add, label, unlabel - the node survives without the label

	u := NewGraphUpdate()
	u.AddNode("x", "")
	u.AddNodeLabel("x", "ns", "k", "v")
	u.DeleteNodeLabel("x", "ns", "k")

	if err := g.ApplyUpdate(u); err != nil {
		t.Error(err)
		return
	}

	if !g.HasNodeName("x") {
		t.Error("Node should exist")
		return
	}

	id, _ := g.NodeIDFromName("x")
	if _, ok := g.NodeAnnotations().Value(id, data.AnnoKey{Name: "k", NS: "ns"}); ok {
		t.Error("Label should be gone")
		return
	}
}

func TestInvalidUpdates(t *testing.T) {
	g := NewGraph()

	u := NewGraphUpdate()
	u.AddEdge("a", "b", "", "Bogus", "")

	err := g.ApplyUpdate(u)
	if !util.IsGraphError(err, util.ErrInvalidUpdate) {
		t.Error("Unknown component type should fail:", err)
		return
	}

	// Labels on unknown nodes are dropped silently

	u2 := NewGraphUpdate()
	u2.AddNodeLabel("missing", "ns", "k", "v")

	if err := g.ApplyUpdate(u2); err != nil {
		t.Error(err)
		return
	}

	if g.HasNodeName("missing") {
		t.Error("Label events must not create nodes")
		return
	}
}

func TestImplicitNodeCreation(t *testing.T) {
	g := NewGraph()

	u := NewGraphUpdate()
	u.AddEdge("a", "b", "dep", "Pointing", "deprel")

	if err := g.ApplyUpdate(u); err != nil {
		t.Error(err)
		return
	}

	for _, name := range []string{"a", "b"} {
		id, ok := g.NodeIDFromName(name)
		if !ok {
			t.Error("Edge endpoint should have been created:", name)
			return
		}

		if val, _ := g.NodeAnnotations().Value(id, *data.NodeTypeKey); val != "node" {
			t.Error("Unexpected node type:", val)
			return
		}
	}

	comps := g.AllComponents(nil, nil)
	if len(comps) == 0 {
		t.Error("Pointing component should be registered")
		return
	}
}

func TestPersistence(t *testing.T) {
	dir := t.TempDir()

	g := NewGraph()
	if err := g.ApplyUpdate(exampleUpdate()); err != nil {
		t.Error(err)
		return
	}

	if err := g.PersistTo(dir); err != nil {
		t.Error(err)
		return
	}

	changeID := g.ChangeID()

	g2, err := LoadGraph(dir, true)
	if err != nil {
		t.Error(err)
		return
	}
	defer g2.Close()

	if g2.ChangeID() != changeID {
		t.Error("Unexpected change ID:", g2.ChangeID(), changeID)
		return
	}

	if !g2.HasNodeName("root/doc1#span1") {
		t.Error("Loaded graph lost its nodes")
		return
	}

	t1, _ := g2.NodeIDFromName("root/doc1#t1")
	t3, _ := g2.NodeIDFromName("root/doc1#t3")

	ord, err := g2.Storage(data.DefaultOrderingComponent)
	if err != nil {
		t.Error(err)
		return
	}

	if !ord.IsConnected(t1, t3, 1, graphstorage.Unbounded) {
		t.Error("Loaded graph lost its edges")
		return
	}

	// Updates on a persisted graph survive a reopen

	u := NewGraphUpdate()
	u.AddNode("root/doc1#t4", "")
	u.AddNodeLabel("root/doc1#t4", "annis", "tok", "indeed")
	u.AddEdge("root/doc1#t3", "root/doc1#t4", "annis", "Ordering", "")

	if err := g2.ApplyUpdate(u); err != nil {
		t.Error(err)
		return
	}
	g2.Close()

	g3, err := LoadGraph(dir, false)
	if err != nil {
		t.Error(err)
		return
	}
	defer g3.Close()

	if !g3.HasNodeName("root/doc1#t4") {
		t.Error("Update did not survive the reopen")
		return
	}
}

func TestWALReplay(t *testing.T) {
	dir := t.TempDir()

	g := NewGraph()
	if err := g.ApplyUpdate(exampleUpdate()); err != nil {
		t.Error(err)
		return
	}
	if err := g.PersistTo(dir); err != nil {
		t.Error(err)
		return
	}

	// Simulate a crash after the WAL write: the log holds events beyond the
	// persisted change ID

	events := []UpdateEvent{
		{ChangeID: g.ChangeID() + 1, Kind: EventAddNode, NodeName: "root/doc1#t4"},
		{ChangeID: g.ChangeID() + 2, Kind: EventAddNodeLabel,
			NodeName: "root/doc1#t4", NS: "annis", Name: "tok", Value: "indeed"},
	}

	if err := writeWAL(dir, events); err != nil {
		t.Error(err)
		return
	}

	g2, err := LoadGraph(dir, false)
	if err != nil {
		t.Error(err)
		return
	}
	defer g2.Close()

	if !g2.HasNodeName("root/doc1#t4") {
		t.Error("Pending events should have been replayed")
		return
	}

	if g2.ChangeID() != g.ChangeID()+2 {
		t.Error("Unexpected change ID after replay:", g2.ChangeID())
		return
	}

	// The replayed log is gone - a second open must not apply it again

	if events, _ := readWAL(dir); events != nil {
		t.Error("Write-ahead log should have been removed")
		return
	}
}

func TestOptimizeAll(t *testing.T) {
	g := NewGraph()

	if err := g.ApplyUpdate(exampleUpdate()); err != nil {
		t.Error(err)
		return
	}

	if err := g.OptimizeAll(); err != nil {
		t.Error(err)
		return
	}

	// The flat corpus structure ends up in the path layout

	po, err := g.Storage(data.PartOfComponent)
	if err != nil {
		t.Error(err)
		return
	}

	if po.SerializationID() != graphstorage.DiskPathID {
		t.Error("Unexpected layout for corpus structure:", po.SerializationID())
		return
	}

	t1, _ := g.NodeIDFromName("root/doc1#t1")
	root, _ := g.NodeIDFromName("root")

	if !po.IsConnected(t1, root, 1, graphstorage.Unbounded) {
		t.Error("Optimized component lost its edges")
		return
	}

	// Writes convert the optimized layout back

	u := NewGraphUpdate()
	u.AddNode("root/doc2", "corpus")
	u.AddEdge("root/doc2", "root", "annis", "PartOf", "")

	if err := g.ApplyUpdate(u); err != nil {
		t.Error(err)
		return
	}

	po, _ = g.Storage(data.PartOfComponent)
	doc2, _ := g.NodeIDFromName("root/doc2")

	if !po.IsConnected(doc2, root, 1, 1) {
		t.Error("Update on optimized component failed")
		return
	}
}
