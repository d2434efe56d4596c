/*
 * AnnisDB
 *
 * Copyright 2016 Matthias Ladkau. All rights reserved.
 *
 * This Source Code Form is subject to the terms of the Mozilla Public
 * License, v. 2.0. If a copy of the MPL was not distributed with this
 * file, You can obtain one at http://mozilla.org/MPL/2.0/.
 */

/*
Package graphstorage contains the edge containers of the graph.

Each component of a corpus graph is stored in one graph storage. All
implementations answer the same reachability questions - find all nodes
reachable within a distance range, connection and distance tests - but they
differ in their physical layout:

AdjacencyListStorage is the generic writeable container with per-node sorted
target lists. DenseAdjacencyListStorage packs components with contiguous
node numbers and a fan-out of at most one into flat arrays.
PrePostOrderStorage encodes tree shaped components as pre/post order
intervals which answer ancestor tests in constant time. DiskPathStorage
stores the full ancestor path of every node inline for flat hierarchies
like the corpus structure.

The registry selects the best implementation for a component from its
statistics and handles loading and saving of component directories.
*/
package graphstorage

import (
	"io"
	"sort"

	"devt.de/krotik/annisdb/graph/annostorage"
	"devt.de/krotik/annisdb/graph/data"
)

/*
Unbounded marks an unlimited maximum distance.
*/
const Unbounded = int(^uint(0) >> 1)

/*
NodeIterator is a lazy, non-repeating sequence of nodes.
*/
type NodeIterator interface {

	/*
		Next returns the next node. The boolean return value is false once
		the iterator is exhausted.
	*/
	Next() (data.NodeID, bool)
}

/*
EdgeContainer is the plain edge access contract of a graph storage.
*/
type EdgeContainer interface {

	/*
		OutgoingEdges returns the direct successors of a node.
	*/
	OutgoingEdges(node data.NodeID) NodeIterator

	/*
		IngoingEdges returns the direct predecessors of a node.
	*/
	IngoingEdges(node data.NodeID) NodeIterator

	/*
		SourceNodes returns all nodes with at least one outgoing edge.
	*/
	SourceNodes() NodeIterator
}

/*
Storage is the read contract of all graph storage implementations.
*/
type Storage interface {
	EdgeContainer

	/*
		FindConnected returns all nodes reachable from the given node over
		a path with a length in the inclusive range [minDist, maxDist].
	*/
	FindConnected(node data.NodeID, minDist int, maxDist int) NodeIterator

	/*
		FindConnectedInverse traverses the edges against their direction.
	*/
	FindConnectedInverse(node data.NodeID, minDist int, maxDist int) NodeIterator

	/*
		IsConnected checks if target is reachable from source over a path
		with a length in the inclusive range [minDist, maxDist].
	*/
	IsConnected(source data.NodeID, target data.NodeID, minDist int, maxDist int) bool

	/*
		Distance returns the length of the shortest path from source to
		target.
	*/
	Distance(source data.NodeID, target data.NodeID) (int, bool)

	/*
		AnnotationStorage returns the edge annotations of this component.
	*/
	AnnotationStorage() annostorage.Storage[data.Edge]

	/*
		Statistics returns the statistics of this component. The result is
		nil if statistics have never been calculated.
	*/
	Statistics() *GraphStatistic

	/*
		SerializationID returns the identifier of the physical layout which
		is stored in the component directory.
	*/
	SerializationID() string

	/*
		WriteTo serializes the storage.
	*/
	WriteTo(w io.Writer) error

	/*
		ReadFrom replaces the content of the storage with serialized data.
	*/
	ReadFrom(r io.Reader) error

	/*
		CopyFrom replaces the content of the storage with the edges, edge
		annotations and statistics of another storage.
	*/
	CopyFrom(other Storage) error
}

/*
WriteableStorage is the contract of graph storages which support updates.
*/
type WriteableStorage interface {
	Storage

	/*
		AddEdge inserts an edge. Duplicate edges are a no-op.
	*/
	AddEdge(edge data.Edge) error

	/*
		DeleteEdge removes an edge and its annotations. Deleting an absent
		edge is a no-op.
	*/
	DeleteEdge(edge data.Edge) error

	/*
		AddEdgeAnnotation adds an annotation to an existing edge.
	*/
	AddEdgeAnnotation(edge data.Edge, anno data.Annotation) error

	/*
		DeleteEdgeAnnotation removes an annotation of an edge.
	*/
	DeleteEdgeAnnotation(edge data.Edge, key data.AnnoKey) error

	/*
		DeleteNode removes all edges of a node.
	*/
	DeleteNode(node data.NodeID) error

	/*
		Clear removes all edges and annotations.
	*/
	Clear() error

	/*
		CalculateStatistics rebuilds the statistics of this component.
	*/
	CalculateStatistics() error
}

// Iterator helpers
// ================

/*
sliceIterator iterates a node slice.
*/
type sliceIterator struct {
	nodes []data.NodeID
	pos   int
}

func (it *sliceIterator) Next() (data.NodeID, bool) {
	if it.pos >= len(it.nodes) {
		return 0, false
	}

	n := it.nodes[it.pos]
	it.pos++
	return n, true
}

/*
NewSliceIterator returns an iterator over the given nodes.
*/
func NewSliceIterator(nodes []data.NodeID) NodeIterator {
	return &sliceIterator{nodes: nodes}
}

/*
CollectNodes drains an iterator into a slice.
*/
func CollectNodes(it NodeIterator) []data.NodeID {
	var res []data.NodeID
	for n, ok := it.Next(); ok; n, ok = it.Next() {
		res = append(res, n)
	}
	return res
}

/*
sortedNodeKeys returns the keys of a node map in ascending order.
*/
func sortedNodeKeys[V any](m map[data.NodeID]V) []data.NodeID {
	res := make([]data.NodeID, 0, len(m))
	for n := range m {
		res = append(res, n)
	}
	sort.Slice(res, func(i, j int) bool { return res[i] < res[j] })
	return res
}

/*
insertSorted inserts a node into a sorted slice. Duplicates are not added.
The boolean return value indicates if the slice was modified.
*/
func insertSorted(nodes []data.NodeID, n data.NodeID) ([]data.NodeID, bool) {
	pos := sort.Search(len(nodes), func(i int) bool { return nodes[i] >= n })

	if pos < len(nodes) && nodes[pos] == n {
		return nodes, false
	}

	nodes = append(nodes, 0)
	copy(nodes[pos+1:], nodes[pos:])
	nodes[pos] = n
	return nodes, true
}

/*
removeSorted removes a node from a sorted slice. The boolean return value
indicates if the slice was modified.
*/
func removeSorted(nodes []data.NodeID, n data.NodeID) ([]data.NodeID, bool) {
	pos := sort.Search(len(nodes), func(i int) bool { return nodes[i] >= n })

	if pos < len(nodes) && nodes[pos] == n {
		return append(nodes[:pos], nodes[pos+1:]...), true
	}

	return nodes, false
}

/*
containsSorted checks if a sorted slice contains a node.
*/
func containsSorted(nodes []data.NodeID, n data.NodeID) bool {
	pos := sort.Search(len(nodes), func(i int) bool { return nodes[i] >= n })
	return pos < len(nodes) && nodes[pos] == n
}
