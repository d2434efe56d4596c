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
	"encoding/gob"
	"io"

	"devt.de/krotik/annisdb/graph/annostorage"
	"devt.de/krotik/annisdb/graph/data"
	"devt.de/krotik/annisdb/graph/util"
	"github.com/klauspost/compress/zstd"
)

/*
AdjacencyListID is the serialization ID of the adjacency list storage.
*/
const AdjacencyListID = "AdjacencyListV1"

/*
AdjacencyListStorage is the generic writeable graph storage. Edges are held
as per-node sorted target lists together with an inverse index.
*/
type AdjacencyListStorage struct {
	edges   map[data.NodeID][]data.NodeID
	inverse map[data.NodeID][]data.NodeID
	annos   *annostorage.MemoryStorage[data.Edge]
	stats   *GraphStatistic
}

/*
NewAdjacencyListStorage creates a new empty adjacency list storage.
*/
func NewAdjacencyListStorage() *AdjacencyListStorage {
	return &AdjacencyListStorage{
		edges:   make(map[data.NodeID][]data.NodeID),
		inverse: make(map[data.NodeID][]data.NodeID),
		annos:   annostorage.NewEdgeStorage(),
	}
}

/*
OutgoingEdges returns the direct successors of a node.
*/
func (als *AdjacencyListStorage) OutgoingEdges(node data.NodeID) NodeIterator {
	return NewSliceIterator(als.edges[node])
}

/*
IngoingEdges returns the direct predecessors of a node.
*/
func (als *AdjacencyListStorage) IngoingEdges(node data.NodeID) NodeIterator {
	return NewSliceIterator(als.inverse[node])
}

/*
SourceNodes returns all nodes with at least one outgoing edge.
*/
func (als *AdjacencyListStorage) SourceNodes() NodeIterator {
	return NewSliceIterator(sortedNodeKeys(als.edges))
}

/*
FindConnected returns all nodes reachable from the given node within the
distance range.
*/
func (als *AdjacencyListStorage) FindConnected(node data.NodeID, minDist int,
	maxDist int) NodeIterator {
	return newFindConnectedIterator(als, node, maxInt(minDist, 1), maxDist, false)
}

/*
FindConnectedInverse traverses the edges against their direction.
*/
func (als *AdjacencyListStorage) FindConnectedInverse(node data.NodeID, minDist int,
	maxDist int) NodeIterator {
	return newFindConnectedIterator(als, node, maxInt(minDist, 1), maxDist, true)
}

/*
IsConnected checks if target is reachable from source within the distance
range.
*/
func (als *AdjacencyListStorage) IsConnected(source data.NodeID, target data.NodeID,
	minDist int, maxDist int) bool {

	if minDist == 0 && source == target {
		return true
	}

	dfs := NewCycleSafeDFS(als, source, maxInt(minDist, 1), maxDist, false)

	for step, ok := dfs.Next(); ok; step, ok = dfs.Next() {
		if step.Node == target {
			return true
		}
	}

	return false
}

/*
Distance returns the length of the shortest path from source to target.
*/
func (als *AdjacencyListStorage) Distance(source data.NodeID, target data.NodeID) (int, bool) {
	if source == target {
		return 0, true
	}

	// Breadth-first search finds the shortest path first

	visited := map[data.NodeID]bool{source: true}
	frontier := []data.NodeID{source}
	dist := 0

	for len(frontier) > 0 {
		dist++
		var next []data.NodeID

		for _, n := range frontier {
			for _, t := range als.edges[n] {
				if t == target {
					return dist, true
				}
				if !visited[t] {
					visited[t] = true
					next = append(next, t)
				}
			}
		}

		frontier = next
	}

	return 0, false
}

/*
AnnotationStorage returns the edge annotations of this component.
*/
func (als *AdjacencyListStorage) AnnotationStorage() annostorage.Storage[data.Edge] {
	return als.annos
}

/*
Statistics returns the statistics of this component.
*/
func (als *AdjacencyListStorage) Statistics() *GraphStatistic {
	return als.stats
}

/*
SerializationID returns the identifier of the physical layout.
*/
func (als *AdjacencyListStorage) SerializationID() string {
	return AdjacencyListID
}

/*
AddEdge inserts an edge. Duplicate edges and self loops of length zero are
no-ops.
*/
func (als *AdjacencyListStorage) AddEdge(edge data.Edge) error {
	if edge.Source == edge.Target {
		return nil
	}

	targets, added := insertSorted(als.edges[edge.Source], edge.Target)
	if !added {
		return nil
	}
	als.edges[edge.Source] = targets

	sources, _ := insertSorted(als.inverse[edge.Target], edge.Source)
	als.inverse[edge.Target] = sources

	return nil
}

/*
DeleteEdge removes an edge and its annotations.
*/
func (als *AdjacencyListStorage) DeleteEdge(edge data.Edge) error {
	targets, removed := removeSorted(als.edges[edge.Source], edge.Target)
	if !removed {
		return nil
	}

	if len(targets) == 0 {
		delete(als.edges, edge.Source)
	} else {
		als.edges[edge.Source] = targets
	}

	sources, _ := removeSorted(als.inverse[edge.Target], edge.Source)
	if len(sources) == 0 {
		delete(als.inverse, edge.Target)
	} else {
		als.inverse[edge.Target] = sources
	}

	return als.annos.RemoveItem(edge)
}

/*
AddEdgeAnnotation adds an annotation to an existing edge.
*/
func (als *AdjacencyListStorage) AddEdgeAnnotation(edge data.Edge, anno data.Annotation) error {
	if !containsSorted(als.edges[edge.Source], edge.Target) {
		return &util.GraphError{Type: util.ErrInvalidUpdate,
			Detail: "Edge for annotation does not exist"}
	}

	return als.annos.Insert(edge, anno)
}

/*
DeleteEdgeAnnotation removes an annotation of an edge.
*/
func (als *AdjacencyListStorage) DeleteEdgeAnnotation(edge data.Edge, key data.AnnoKey) error {
	als.annos.Remove(edge, key)
	return nil
}

/*
DeleteNode removes all edges of a node.
*/
func (als *AdjacencyListStorage) DeleteNode(node data.NodeID) error {
	for _, t := range append([]data.NodeID(nil), als.edges[node]...) {
		if err := als.DeleteEdge(data.Edge{Source: node, Target: t}); err != nil {
			return err
		}
	}

	for _, s := range append([]data.NodeID(nil), als.inverse[node]...) {
		if err := als.DeleteEdge(data.Edge{Source: s, Target: node}); err != nil {
			return err
		}
	}

	return nil
}

/*
Clear removes all edges and annotations.
*/
func (als *AdjacencyListStorage) Clear() error {
	als.edges = make(map[data.NodeID][]data.NodeID)
	als.inverse = make(map[data.NodeID][]data.NodeID)
	als.stats = nil
	return als.annos.Clear()
}

/*
CalculateStatistics rebuilds the statistics of this component.
*/
func (als *AdjacencyListStorage) CalculateStatistics() error {
	als.stats = CalculateGraphStatistic(als)
	return als.annos.CalculateStatistics()
}

/*
CopyFrom replaces the content of the storage with the edges, edge
annotations and statistics of another storage.
*/
func (als *AdjacencyListStorage) CopyFrom(other Storage) error {
	if err := als.Clear(); err != nil {
		return err
	}

	if err := copyEdges(als, other); err != nil {
		return err
	}

	als.stats = other.Statistics()
	return nil
}

// Serialization
// =============

/*
adjacencySnapshot is the serialized form of an adjacency list storage.
*/
type adjacencySnapshot struct {
	Edges map[data.NodeID][]data.NodeID
	Annos []byte
	Stats *GraphStatistic
}

/*
WriteTo serializes the storage.
*/
func (als *AdjacencyListStorage) WriteTo(w io.Writer) error {
	annos, err := encodeAnnos(als.annos)
	if err != nil {
		return err
	}

	return writeSnapshot(w, &adjacencySnapshot{
		Edges: als.edges,
		Annos: annos,
		Stats: als.stats,
	})
}

/*
ReadFrom replaces the content of the storage with serialized data.
*/
func (als *AdjacencyListStorage) ReadFrom(r io.Reader) error {
	var snap adjacencySnapshot

	if err := readSnapshot(r, &snap); err != nil {
		return err
	}

	als.edges = snap.Edges
	als.inverse = make(map[data.NodeID][]data.NodeID)
	als.stats = snap.Stats

	for source, targets := range snap.Edges {
		for _, t := range targets {
			sources, _ := insertSorted(als.inverse[t], source)
			als.inverse[t] = sources
		}
	}

	return decodeAnnos(als.annos, snap.Annos)
}

// Shared helpers of all variants
// ==============================

/*
copyEdges copies all edges and edge annotations of a storage into a
writeable storage.
*/
func copyEdges(dest WriteableStorage, src Storage) error {
	annoSrc := src.AnnotationStorage()

	sources := src.SourceNodes()
	for s, ok := sources.Next(); ok; s, ok = sources.Next() {
		targets := src.OutgoingEdges(s)

		for t, tok := targets.Next(); tok; t, tok = targets.Next() {
			edge := data.Edge{Source: s, Target: t}

			if err := dest.AddEdge(edge); err != nil {
				return err
			}

			for _, anno := range annoSrc.Annotations(edge) {
				if err := dest.AddEdgeAnnotation(edge, anno); err != nil {
					return err
				}
			}
		}
	}

	return nil
}

/*
writeSnapshot gob-encodes a snapshot through a zstd compressor.
*/
func writeSnapshot(w io.Writer, snap interface{}) error {
	zw, err := zstd.NewWriter(w)
	if err != nil {
		return &util.GraphError{Type: util.ErrStorageIO, Detail: err.Error()}
	}

	if err := gob.NewEncoder(zw).Encode(snap); err != nil {
		zw.Close()
		return &util.GraphError{Type: util.ErrStorageIO, Detail: err.Error()}
	}

	if err := zw.Close(); err != nil {
		return &util.GraphError{Type: util.ErrStorageIO, Detail: err.Error()}
	}

	return nil
}

/*
readSnapshot decodes a gob snapshot written by writeSnapshot.
*/
func readSnapshot(r io.Reader, snap interface{}) error {
	zr, err := zstd.NewReader(r)
	if err != nil {
		return &util.GraphError{Type: util.ErrCorrupted, Detail: err.Error()}
	}
	defer zr.Close()

	if err := gob.NewDecoder(zr).Decode(snap); err != nil {
		return &util.GraphError{Type: util.ErrCorrupted, Detail: err.Error()}
	}

	return nil
}

/*
encodeAnnos serializes an edge annotation storage to a byte blob.
*/
func encodeAnnos(annos *annostorage.MemoryStorage[data.Edge]) ([]byte, error) {
	var buf bytes.Buffer

	if err := annos.WriteTo(&buf); err != nil {
		return nil, err
	}

	return buf.Bytes(), nil
}

/*
decodeAnnos restores an edge annotation storage from a byte blob.
*/
func decodeAnnos(annos *annostorage.MemoryStorage[data.Edge], blob []byte) error {
	if len(blob) == 0 {
		return annos.Clear()
	}

	return annos.ReadFrom(bytes.NewReader(blob))
}

func maxInt(a int, b int) int {
	if a > b {
		return a
	}
	return b
}
