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
	"encoding/binary"
	"io"
	"os"
	"path/filepath"

	"devt.de/krotik/annisdb/graph/annostorage"
	"devt.de/krotik/annisdb/graph/data"
	"devt.de/krotik/annisdb/graph/util"
	"github.com/RoaringBitmap/roaring/v2/roaring64"
)

/*
DiskPathID is the serialization ID of the disk path storage.
*/
const DiskPathID = "DiskPathV1_D15"

/*
MaxPathDepth is the maximum ancestor path length of a disk path storage.
*/
const MaxPathDepth = 15

/*
pathRecordSize is the fixed size of one node record: a length byte followed
by the node IDs of up to 15 ancestors.
*/
const pathRecordSize = 1 + MaxPathDepth*8

/*
PathFileName is the name of the record file of a disk path storage.
*/
const PathFileName = "paths.bin"

/*
DiskPathStorage stores for every node its full ancestor path in one fixed
size record. It serves components with a maximum branch-out of one and a
maximum depth of 15, notably the corpus structure, and answers reachability
from a single record read without per-hop seeks.

While a component is built the records live in memory; a loaded component
reads records directly from the record file.
*/
type DiskPathStorage struct {
	file    *os.File
	buf     []byte
	records int
	sources *roaring64.Bitmap
	inverse map[data.NodeID][]data.NodeID
	annos   *annostorage.MemoryStorage[data.Edge]
	stats   *GraphStatistic
}

/*
NewDiskPathStorage creates a new empty disk path storage.
*/
func NewDiskPathStorage() *DiskPathStorage {
	return &DiskPathStorage{
		sources: roaring64.New(),
		inverse: make(map[data.NodeID][]data.NodeID),
		annos:   annostorage.NewEdgeStorage(),
	}
}

/*
readRecord returns the record of a node or nil if the node has no path.
*/
func (dps *DiskPathStorage) readRecord(node data.NodeID) []byte {
	if int(node) >= dps.records {
		return nil
	}

	offset := int64(node) * pathRecordSize

	if dps.file != nil {
		rec := make([]byte, pathRecordSize)
		if _, err := dps.file.ReadAt(rec, offset); err != nil {
			return nil
		}
		return rec
	}

	return dps.buf[offset : offset+pathRecordSize]
}

/*
path returns the ancestor path of a node.
*/
func (dps *DiskPathStorage) path(node data.NodeID) []data.NodeID {
	rec := dps.readRecord(node)
	if rec == nil || rec[0] == 0 {
		return nil
	}

	length := int(rec[0])
	res := make([]data.NodeID, length)

	for i := 0; i < length; i++ {
		res[i] = data.NodeID(binary.LittleEndian.Uint64(rec[1+i*8:]))
	}

	return res
}

/*
OutgoingEdges returns the parent of a node.
*/
func (dps *DiskPathStorage) OutgoingEdges(node data.NodeID) NodeIterator {
	if path := dps.path(node); len(path) > 0 {
		return NewSliceIterator(path[:1])
	}
	return NewSliceIterator(nil)
}

/*
IngoingEdges returns the children of a node.
*/
func (dps *DiskPathStorage) IngoingEdges(node data.NodeID) NodeIterator {
	return NewSliceIterator(dps.inverse[node])
}

/*
SourceNodes returns all nodes with a parent.
*/
func (dps *DiskPathStorage) SourceNodes() NodeIterator {
	return &bitmapIterator{it: dps.sources.Iterator()}
}

/*
FindConnected slices the inline ancestor path of the node.
*/
func (dps *DiskPathStorage) FindConnected(node data.NodeID, minDist int,
	maxDist int) NodeIterator {

	path := dps.path(node)
	minDist = maxInt(minDist, 1)

	if minDist > len(path) {
		return NewSliceIterator(nil)
	}

	to := len(path)
	if maxDist < to {
		to = maxDist
	}

	return NewSliceIterator(path[minDist-1 : to])
}

/*
FindConnectedInverse traverses the edges against their direction.
*/
func (dps *DiskPathStorage) FindConnectedInverse(node data.NodeID, minDist int,
	maxDist int) NodeIterator {
	return newFindConnectedIterator(dps, node, maxInt(minDist, 1), maxDist, true)
}

/*
IsConnected checks if target is an ancestor of source within the distance
range.
*/
func (dps *DiskPathStorage) IsConnected(source data.NodeID, target data.NodeID,
	minDist int, maxDist int) bool {

	if minDist == 0 && source == target {
		return true
	}

	path := dps.path(source)

	for i, n := range path {
		if n == target {
			dist := i + 1
			return dist >= maxInt(minDist, 1) && dist <= maxDist
		}
	}

	return false
}

/*
Distance returns the length of the shortest path from source to target.
*/
func (dps *DiskPathStorage) Distance(source data.NodeID, target data.NodeID) (int, bool) {
	if source == target {
		return 0, true
	}

	for i, n := range dps.path(source) {
		if n == target {
			return i + 1, true
		}
	}

	return 0, false
}

/*
AnnotationStorage returns the edge annotations of this component.
*/
func (dps *DiskPathStorage) AnnotationStorage() annostorage.Storage[data.Edge] {
	return dps.annos
}

/*
Statistics returns the statistics of this component.
*/
func (dps *DiskPathStorage) Statistics() *GraphStatistic {
	return dps.stats
}

/*
SerializationID returns the identifier of the physical layout.
*/
func (dps *DiskPathStorage) SerializationID() string {
	return DiskPathID
}

/*
CopyFrom replaces the content of the storage with the edges, edge
annotations and statistics of another storage. Every node must have at most
one parent and a path length of at most 15.
*/
func (dps *DiskPathStorage) CopyFrom(other Storage) error {
	dps.file = nil
	dps.sources = roaring64.New()
	dps.inverse = make(map[data.NodeID][]data.NodeID)

	if err := dps.annos.Clear(); err != nil {
		return err
	}

	parents := make(map[data.NodeID]data.NodeID)
	var maxNode data.NodeID

	annoSrc := other.AnnotationStorage()

	sources := other.SourceNodes()
	for s, ok := sources.Next(); ok; s, ok = sources.Next() {
		targets := CollectNodes(other.OutgoingEdges(s))

		if len(targets) > 1 {
			return &util.GraphError{Type: util.ErrInvalidUpdate,
				Detail: "Disk path storage requires a maximum branch-out of 1"}
		}

		if len(targets) == 1 {
			parents[s] = targets[0]

			if s > maxNode {
				maxNode = s
			}
			if targets[0] > maxNode {
				maxNode = targets[0]
			}

			edge := data.Edge{Source: s, Target: targets[0]}
			for _, anno := range annoSrc.Annotations(edge) {
				if err := dps.annos.Insert(edge, anno); err != nil {
					return err
				}
			}
		}
	}

	dps.records = int(maxNode) + 1
	dps.buf = make([]byte, dps.records*pathRecordSize)

	for node, parent := range parents {
		rec := dps.buf[int(node)*pathRecordSize:]
		length := 0

		cur := parent
		for {
			binary.LittleEndian.PutUint64(rec[1+length*8:], uint64(cur))
			length++

			next, ok := parents[cur]
			if !ok {
				break
			}
			if length >= MaxPathDepth {
				return &util.GraphError{Type: util.ErrInvalidUpdate,
					Detail: "Disk path storage requires a maximum depth of 15"}
			}
			cur = next
		}

		rec[0] = byte(length)
		dps.sources.Add(uint64(node))

		sourceList, _ := insertSorted(dps.inverse[parent], node)
		dps.inverse[parent] = sourceList
	}

	dps.stats = other.Statistics()
	return nil
}

/*
AttachFile switches record access to the given record file. The in-memory
buffer is released.
*/
func (dps *DiskPathStorage) AttachFile(dir string) error {
	f, err := os.Open(filepath.Join(dir, PathFileName))
	if err != nil {
		return &util.GraphError{Type: util.ErrStorageIO, Detail: err.Error()}
	}

	info, err := f.Stat()
	if err != nil {
		f.Close()
		return &util.GraphError{Type: util.ErrStorageIO, Detail: err.Error()}
	}

	dps.file = f
	dps.buf = nil
	dps.records = int(info.Size() / pathRecordSize)

	return nil
}

/*
WritePathFile writes the record file of this storage into a component
directory.
*/
func (dps *DiskPathStorage) WritePathFile(dir string) error {
	if dps.file != nil {

		// Records already live in a file

		return nil
	}

	if err := os.WriteFile(filepath.Join(dir, PathFileName), dps.buf, 0660); err != nil {
		return &util.GraphError{Type: util.ErrStorageIO, Detail: err.Error()}
	}

	return nil
}

/*
Close releases the record file handle.
*/
func (dps *DiskPathStorage) Close() error {
	if dps.file != nil {
		err := dps.file.Close()
		dps.file = nil
		return err
	}
	return nil
}

// Serialization
// =============

/*
diskPathSnapshot is the serialized form of the auxiliary data of a disk
path storage. The records themselves live in the record file.
*/
type diskPathSnapshot struct {
	Records int
	Sources []byte
	Inverse map[data.NodeID][]data.NodeID
	Annos   []byte
	Stats   *GraphStatistic
}

/*
WriteTo serializes the auxiliary data of the storage.
*/
func (dps *DiskPathStorage) WriteTo(w io.Writer) error {
	annos, err := encodeAnnos(dps.annos)
	if err != nil {
		return err
	}

	sources, err := dps.sources.ToBytes()
	if err != nil {
		return err
	}

	return writeSnapshot(w, &diskPathSnapshot{
		Records: dps.records,
		Sources: sources,
		Inverse: dps.inverse,
		Annos:   annos,
		Stats:   dps.stats,
	})
}

/*
ReadFrom replaces the auxiliary data of the storage with serialized data.
The record file must be attached separately.
*/
func (dps *DiskPathStorage) ReadFrom(r io.Reader) error {
	var snap diskPathSnapshot

	if err := readSnapshot(r, &snap); err != nil {
		return err
	}

	dps.records = snap.Records
	dps.inverse = snap.Inverse
	dps.stats = snap.Stats

	dps.sources = roaring64.New()
	if err := dps.sources.UnmarshalBinary(snap.Sources); err != nil {
		return err
	}

	return decodeAnnos(dps.annos, snap.Annos)
}
