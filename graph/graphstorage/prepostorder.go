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
	"io"
	"sort"

	"devt.de/krotik/annisdb/graph/annostorage"
	"devt.de/krotik/annisdb/graph/data"
	"devt.de/krotik/annisdb/graph/util"
)

/*
PrePostOrderID is the serialization ID of the pre/post order storage.
*/
const PrePostOrderID = "PrePostOrderO32V1"

/*
prePostEntry is one pre/post order interval of a node. Nodes reachable over
several paths carry several entries.
*/
type prePostEntry struct {
	Pre   uint32
	Post  uint32
	Level int32
}

/*
orderEntry is one entry of the global pre order array.
*/
type orderEntry struct {
	Pre   uint32
	Post  uint32
	Level int32
	Node  data.NodeID
}

/*
PrePostOrderStorage encodes tree shaped components as pre/post order
intervals. A node t is a descendant of s exactly if one of its intervals is
contained in an interval of s, which makes connection tests constant time
per interval pair.
*/
type PrePostOrderStorage struct {
	entries map[data.NodeID][]prePostEntry
	order   []orderEntry
	edges   *AdjacencyListStorage
	stats   *GraphStatistic
}

/*
NewPrePostOrderStorage creates a new empty pre/post order storage.
*/
func NewPrePostOrderStorage() *PrePostOrderStorage {
	return &PrePostOrderStorage{
		entries: make(map[data.NodeID][]prePostEntry),
		edges:   NewAdjacencyListStorage(),
	}
}

/*
OutgoingEdges returns the direct successors of a node.
*/
func (ps *PrePostOrderStorage) OutgoingEdges(node data.NodeID) NodeIterator {
	return ps.edges.OutgoingEdges(node)
}

/*
IngoingEdges returns the direct predecessors of a node.
*/
func (ps *PrePostOrderStorage) IngoingEdges(node data.NodeID) NodeIterator {
	return ps.edges.IngoingEdges(node)
}

/*
SourceNodes returns all nodes with at least one outgoing edge.
*/
func (ps *PrePostOrderStorage) SourceNodes() NodeIterator {
	return ps.edges.SourceNodes()
}

/*
FindConnected returns all nodes reachable from the given node within the
distance range. The pre order array is scanned between the interval bounds
of the node.
*/
func (ps *PrePostOrderStorage) FindConnected(node data.NodeID, minDist int,
	maxDist int) NodeIterator {

	minDist = maxInt(minDist, 1)

	var res []data.NodeID
	emitted := make(map[data.NodeID]bool)

	for _, se := range ps.entries[node] {

		// All descendants have a pre order within the interval of the node

		from := sort.Search(len(ps.order), func(i int) bool {
			return ps.order[i].Pre > se.Pre
		})

		for i := from; i < len(ps.order) && ps.order[i].Pre < se.Post; i++ {
			oe := ps.order[i]

			if oe.Post > se.Post {
				continue
			}

			dist := int(oe.Level - se.Level)
			if dist >= minDist && dist <= maxDist && !emitted[oe.Node] {
				emitted[oe.Node] = true
				res = append(res, oe.Node)
			}
		}
	}

	return NewSliceIterator(res)
}

/*
FindConnectedInverse traverses the edges against their direction.
*/
func (ps *PrePostOrderStorage) FindConnectedInverse(node data.NodeID, minDist int,
	maxDist int) NodeIterator {

	minDist = maxInt(minDist, 1)

	var res []data.NodeID
	emitted := make(map[data.NodeID]bool)

	for _, te := range ps.entries[node] {
		for _, oe := range ps.order {
			if oe.Pre >= te.Pre || oe.Post <= te.Post {
				continue
			}

			dist := int(te.Level - oe.Level)
			if dist >= minDist && dist <= maxDist && !emitted[oe.Node] {
				emitted[oe.Node] = true
				res = append(res, oe.Node)
			}
		}
	}

	return NewSliceIterator(res)
}

/*
IsConnected checks if target is reachable from source within the distance
range.
*/
func (ps *PrePostOrderStorage) IsConnected(source data.NodeID, target data.NodeID,
	minDist int, maxDist int) bool {

	if minDist == 0 && source == target {
		return true
	}

	for _, se := range ps.entries[source] {
		for _, te := range ps.entries[target] {
			if se.Pre < te.Pre && te.Post < se.Post {
				dist := int(te.Level - se.Level)
				if dist >= maxInt(minDist, 1) && dist <= maxDist {
					return true
				}
			}
		}
	}

	return false
}

/*
Distance returns the length of the shortest path from source to target.
*/
func (ps *PrePostOrderStorage) Distance(source data.NodeID, target data.NodeID) (int, bool) {
	if source == target {
		return 0, true
	}

	best := 0
	found := false

	for _, se := range ps.entries[source] {
		for _, te := range ps.entries[target] {
			if se.Pre < te.Pre && te.Post < se.Post {
				dist := int(te.Level - se.Level)
				if !found || dist < best {
					best = dist
					found = true
				}
			}
		}
	}

	return best, found
}

/*
AnnotationStorage returns the edge annotations of this component.
*/
func (ps *PrePostOrderStorage) AnnotationStorage() annostorage.Storage[data.Edge] {
	return ps.edges.AnnotationStorage()
}

/*
Statistics returns the statistics of this component.
*/
func (ps *PrePostOrderStorage) Statistics() *GraphStatistic {
	return ps.stats
}

/*
SerializationID returns the identifier of the physical layout.
*/
func (ps *PrePostOrderStorage) SerializationID() string {
	return PrePostOrderID
}

/*
CopyFrom replaces the content of the storage with the edges, edge
annotations and statistics of another storage. The pre/post order encoding
is rebuilt with a cycle safe DFS from every root. A cyclic component cannot
be encoded.
*/
func (ps *PrePostOrderStorage) CopyFrom(other Storage) error {
	if err := ps.edges.CopyFrom(other); err != nil {
		return err
	}

	ps.entries = make(map[data.NodeID][]prePostEntry)
	ps.order = nil
	ps.stats = other.Statistics()

	// Determine the roots of the component

	hasIncoming := make(map[data.NodeID]bool)
	var roots []data.NodeID

	sources := ps.edges.SourceNodes()
	for s, ok := sources.Next(); ok; s, ok = sources.Next() {
		targets := ps.edges.OutgoingEdges(s)
		for t, tok := targets.Next(); tok; t, tok = targets.Next() {
			hasIncoming[t] = true
		}
	}

	sources = ps.edges.SourceNodes()
	for s, ok := sources.Next(); ok; s, ok = sources.Next() {
		if !hasIncoming[s] {
			roots = append(roots, s)
		}
	}

	counter := uint32(0)

	for _, root := range roots {
		if err := ps.encode(root, &counter); err != nil {
			return err
		}
	}

	sort.Slice(ps.order, func(i, j int) bool {
		return ps.order[i].Pre < ps.order[j].Pre
	})

	return nil
}

/*
encode assigns pre/post order numbers to the subtree of a root with an
explicit stack.
*/
func (ps *PrePostOrderStorage) encode(root data.NodeID, counter *uint32) error {
	type frame struct {
		node  data.NodeID
		level int32
		pre   uint32
		exit  bool
	}

	onPath := make(map[data.NodeID]bool)
	stack := []frame{{node: root, level: 0}}

	for len(stack) > 0 {
		f := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		if f.exit {
			delete(onPath, f.node)

			post := *counter
			*counter++

			entry := prePostEntry{Pre: f.pre, Post: post, Level: f.level}
			ps.entries[f.node] = append(ps.entries[f.node], entry)
			ps.order = append(ps.order, orderEntry{
				Pre: f.pre, Post: post, Level: f.level, Node: f.node})
			continue
		}

		if onPath[f.node] {
			return &util.GraphError{Type: util.ErrInvalidUpdate,
				Detail: "Cyclic component cannot be pre/post order encoded"}
		}
		onPath[f.node] = true

		pre := *counter
		*counter++

		stack = append(stack, frame{node: f.node, level: f.level, pre: pre, exit: true})

		// Push children in reverse so the left-most child is visited first

		targets := CollectNodes(ps.edges.OutgoingEdges(f.node))
		for i := len(targets) - 1; i >= 0; i-- {
			stack = append(stack, frame{node: targets[i], level: f.level + 1})
		}
	}

	return nil
}

// Serialization
// =============

/*
prePostSnapshot is the serialized form of a pre/post order storage.
*/
type prePostSnapshot struct {
	Entries map[data.NodeID][]prePostEntry
	Order   []orderEntry
	Edges   map[data.NodeID][]data.NodeID
	Annos   []byte
	Stats   *GraphStatistic
}

/*
WriteTo serializes the storage.
*/
func (ps *PrePostOrderStorage) WriteTo(w io.Writer) error {
	annos, err := encodeAnnos(ps.edges.annos)
	if err != nil {
		return err
	}

	return writeSnapshot(w, &prePostSnapshot{
		Entries: ps.entries,
		Order:   ps.order,
		Edges:   ps.edges.edges,
		Annos:   annos,
		Stats:   ps.stats,
	})
}

/*
ReadFrom replaces the content of the storage with serialized data.
*/
func (ps *PrePostOrderStorage) ReadFrom(r io.Reader) error {
	var snap prePostSnapshot

	if err := readSnapshot(r, &snap); err != nil {
		return err
	}

	ps.entries = snap.Entries
	ps.order = snap.Order
	ps.stats = snap.Stats

	ps.edges.edges = snap.Edges
	ps.edges.inverse = make(map[data.NodeID][]data.NodeID)

	for source, targets := range snap.Edges {
		for _, t := range targets {
			sourceList, _ := insertSorted(ps.edges.inverse[t], source)
			ps.edges.inverse[t] = sourceList
		}
	}

	return decodeAnnos(ps.edges.annos, snap.Annos)
}
