/*
 * AnnisDB
 *
 * Copyright 2016 Matthias Ladkau. All rights reserved.
 *
 * This Source Code Form is subject to the terms of the Mozilla Public
 * License, v. 2.0. If a copy of the MPL was not distributed with this
 * file, You can obtain one at http://mozilla.org/MPL/2.0/.
 */

package annostorage

import (
	"encoding/gob"
	"io"

	"devt.de/krotik/annisdb/graph/data"
	"devt.de/krotik/annisdb/graph/util"
	"github.com/klauspost/compress/zstd"
)

/*
storageSnapshot is the serialized form of a memory storage. The inverse
indexes are not part of the snapshot, they are rebuilt while loading.
*/
type storageSnapshot[T Item] struct {
	ByItem     map[T][]data.Annotation
	Histograms map[data.AnnoKey][]string
	UniqueKeys []data.AnnoKey
	Largest    T
	HasLargest bool
}

/*
WriteTo writes the annotations as a compressed snapshot to the given writer.
*/
func (ms *MemoryStorage[T]) WriteTo(w io.Writer) error {
	snap := storageSnapshot[T]{
		ByItem:     ms.byItem,
		Histograms: ms.histograms,
		Largest:    ms.largest,
		HasLargest: ms.hasLargest,
	}

	for key := range ms.uniqueKeys {
		snap.UniqueKeys = append(snap.UniqueKeys, key)
	}

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
ReadFrom replaces the annotations with a compressed snapshot read from the
given reader. The inverse indexes are rebuilt.
*/
func (ms *MemoryStorage[T]) ReadFrom(r io.Reader) error {
	var snap storageSnapshot[T]

	zr, err := zstd.NewReader(r)
	if err != nil {
		return &util.GraphError{Type: util.ErrCorrupted, Detail: err.Error()}
	}
	defer zr.Close()

	if err := gob.NewDecoder(zr).Decode(&snap); err != nil {
		return &util.GraphError{Type: util.ErrCorrupted, Detail: err.Error()}
	}

	ms.byItem = make(map[T][]data.Annotation)
	ms.byKey = make(map[data.AnnoKey]*valueIndex[T])
	ms.uniqueKeys = make(map[data.AnnoKey]bool)
	ms.total = 0

	for _, key := range snap.UniqueKeys {
		ms.uniqueKeys[key] = true
	}

	for item, annos := range snap.ByItem {
		ms.byItem[item] = annos
		for _, anno := range annos {
			ms.indexAdd(item, anno.Key, anno.Val)
		}
		ms.total += len(annos)
	}

	if snap.Histograms != nil {
		ms.histograms = snap.Histograms
	} else {
		ms.histograms = make(map[data.AnnoKey][]string)
	}

	ms.largest = snap.Largest
	ms.hasLargest = snap.HasLargest

	return nil
}
