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

	"devt.de/krotik/annisdb/graph/annostorage"
	"devt.de/krotik/annisdb/graph/data"
	"github.com/RoaringBitmap/roaring/v2/roaring64"
)

/*
DenseAdjacencyListID is the serialization ID of the dense adjacency list
storage.
*/
const DenseAdjacencyListID = "DenseAdjacencyListV1"

/*
DenseAdjacencyListStorage packs components whose node IDs are densely
numbered and whose fan-out is at most one into a contiguous target table.
A bitmap marks the nodes which actually have an outgoing edge.
*/
type DenseAdjacencyListStorage struct {
	table   []data.NodeID
	present *roaring64.Bitmap
	inverse map[data.NodeID][]data.NodeID
	annos   *annostorage.MemoryStorage[data.Edge]
	stats   *GraphStatistic
}

/*
NewDenseAdjacencyListStorage creates a new empty dense adjacency list
storage.
*/
func NewDenseAdjacencyListStorage() *DenseAdjacencyListStorage {
	return &DenseAdjacencyListStorage{
		present: roaring64.New(),
		inverse: make(map[data.NodeID][]data.NodeID),
		annos:   annostorage.NewEdgeStorage(),
	}
}

/*
target returns the outgoing edge target of a node.
*/
func (ds *DenseAdjacencyListStorage) target(node data.NodeID) (data.NodeID, bool) {
	if !ds.present.Contains(uint64(node)) {
		return 0, false
	}
	return ds.table[node], true
}

/*
OutgoingEdges returns the direct successors of a node.
*/
func (ds *DenseAdjacencyListStorage) OutgoingEdges(node data.NodeID) NodeIterator {
	if t, ok := ds.target(node); ok {
		return NewSliceIterator([]data.NodeID{t})
	}
	return NewSliceIterator(nil)
}

/*
IngoingEdges returns the direct predecessors of a node.
*/
func (ds *DenseAdjacencyListStorage) IngoingEdges(node data.NodeID) NodeIterator {
	return NewSliceIterator(ds.inverse[node])
}

/*
SourceNodes returns all nodes with an outgoing edge.
*/
func (ds *DenseAdjacencyListStorage) SourceNodes() NodeIterator {
	return &bitmapIterator{it: ds.present.Iterator()}
}

/*
FindConnected follows the target chain of the node.
*/
func (ds *DenseAdjacencyListStorage) FindConnected(node data.NodeID, minDist int,
	maxDist int) NodeIterator {

	var res []data.NodeID

	minDist = maxInt(minDist, 1)
	seen := make(map[data.NodeID]bool)
	cur := node

	for dist := 1; dist <= maxDist; dist++ {
		t, ok := ds.target(cur)
		if !ok || seen[t] {
			break
		}
		seen[t] = true

		if dist >= minDist {
			res = append(res, t)
		}
		cur = t
	}

	return NewSliceIterator(res)
}

/*
FindConnectedInverse traverses the edges against their direction.
*/
func (ds *DenseAdjacencyListStorage) FindConnectedInverse(node data.NodeID, minDist int,
	maxDist int) NodeIterator {
	return newFindConnectedIterator(ds, node, maxInt(minDist, 1), maxDist, true)
}

/*
IsConnected checks if target is reachable from source within the distance
range.
*/
func (ds *DenseAdjacencyListStorage) IsConnected(source data.NodeID, target data.NodeID,
	minDist int, maxDist int) bool {

	if minDist == 0 && source == target {
		return true
	}

	it := ds.FindConnected(source, maxInt(minDist, 1), maxDist)

	for n, ok := it.Next(); ok; n, ok = it.Next() {
		if n == target {
			return true
		}
	}

	return false
}

/*
Distance returns the length of the shortest path from source to target.
*/
func (ds *DenseAdjacencyListStorage) Distance(source data.NodeID, target data.NodeID) (int, bool) {
	if source == target {
		return 0, true
	}

	seen := make(map[data.NodeID]bool)
	cur := source

	for dist := 1; ; dist++ {
		t, ok := ds.target(cur)
		if !ok || seen[t] {
			return 0, false
		}
		if t == target {
			return dist, true
		}
		seen[t] = true
		cur = t
	}
}

/*
AnnotationStorage returns the edge annotations of this component.
*/
func (ds *DenseAdjacencyListStorage) AnnotationStorage() annostorage.Storage[data.Edge] {
	return ds.annos
}

/*
Statistics returns the statistics of this component.
*/
func (ds *DenseAdjacencyListStorage) Statistics() *GraphStatistic {
	return ds.stats
}

/*
SerializationID returns the identifier of the physical layout.
*/
func (ds *DenseAdjacencyListStorage) SerializationID() string {
	return DenseAdjacencyListID
}

/*
CopyFrom replaces the content of the storage with the edges, edge
annotations and statistics of another storage.
*/
func (ds *DenseAdjacencyListStorage) CopyFrom(other Storage) error {
	ds.present = roaring64.New()
	ds.inverse = make(map[data.NodeID][]data.NodeID)

	if err := ds.annos.Clear(); err != nil {
		return err
	}

	var maxNode data.NodeID

	sources := other.SourceNodes()
	for s, ok := sources.Next(); ok; s, ok = sources.Next() {
		if s > maxNode {
			maxNode = s
		}
	}

	ds.table = make([]data.NodeID, maxNode+1)

	annoSrc := other.AnnotationStorage()

	sources = other.SourceNodes()
	for s, ok := sources.Next(); ok; s, ok = sources.Next() {
		targets := other.OutgoingEdges(s)

		for t, tok := targets.Next(); tok; t, tok = targets.Next() {
			ds.table[s] = t
			ds.present.Add(uint64(s))

			sourceList, _ := insertSorted(ds.inverse[t], s)
			ds.inverse[t] = sourceList

			edge := data.Edge{Source: s, Target: t}
			for _, anno := range annoSrc.Annotations(edge) {
				if err := ds.annos.Insert(edge, anno); err != nil {
					return err
				}
			}
		}
	}

	ds.stats = other.Statistics()
	return nil
}

// Serialization
// =============

/*
denseSnapshot is the serialized form of a dense adjacency list storage.
*/
type denseSnapshot struct {
	Table   []data.NodeID
	Present []byte
	Annos   []byte
	Stats   *GraphStatistic
}

/*
WriteTo serializes the storage.
*/
func (ds *DenseAdjacencyListStorage) WriteTo(w io.Writer) error {
	annos, err := encodeAnnos(ds.annos)
	if err != nil {
		return err
	}

	present, err := ds.present.ToBytes()
	if err != nil {
		return err
	}

	return writeSnapshot(w, &denseSnapshot{
		Table:   ds.table,
		Present: present,
		Annos:   annos,
		Stats:   ds.stats,
	})
}

/*
ReadFrom replaces the content of the storage with serialized data.
*/
func (ds *DenseAdjacencyListStorage) ReadFrom(r io.Reader) error {
	var snap denseSnapshot

	if err := readSnapshot(r, &snap); err != nil {
		return err
	}

	ds.table = snap.Table
	ds.stats = snap.Stats

	ds.present = roaring64.New()
	if err := ds.present.UnmarshalBinary(snap.Present); err != nil {
		return err
	}

	ds.inverse = make(map[data.NodeID][]data.NodeID)

	it := ds.present.Iterator()
	for it.HasNext() {
		s := data.NodeID(it.Next())
		t := ds.table[s]

		sourceList, _ := insertSorted(ds.inverse[t], s)
		ds.inverse[t] = sourceList
	}

	return decodeAnnos(ds.annos, snap.Annos)
}

/*
bitmapIterator adapts a roaring bitmap iterator to a node iterator.
*/
type bitmapIterator struct {
	it roaring64.IntIterable64
}

func (bi *bitmapIterator) Next() (data.NodeID, bool) {
	if !bi.it.HasNext() {
		return 0, false
	}
	return data.NodeID(bi.it.Next()), true
}
