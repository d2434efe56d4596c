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
	"strings"

	"devt.de/krotik/annisdb/graph/data"
	"devt.de/krotik/annisdb/graph/util"
)

/*
ImplementationFileName is the name of the file in a component directory
which holds the serialization ID of the stored implementation.
*/
const ImplementationFileName = "implementation.cfg"

/*
ComponentFileName is the name of the serialized component data.
*/
const ComponentFileName = "component.bin"

/*
CreateWriteable returns a new writeable graph storage.
*/
func CreateWriteable() WriteableStorage {
	return NewAdjacencyListStorage()
}

/*
CreateFromID returns an empty graph storage for a serialization ID.
*/
func CreateFromID(id string) (Storage, error) {
	switch id {
	case AdjacencyListID:
		return NewAdjacencyListStorage(), nil
	case DenseAdjacencyListID:
		return NewDenseAdjacencyListStorage(), nil
	case PrePostOrderID:
		return NewPrePostOrderStorage(), nil
	case DiskPathID:
		return NewDiskPathStorage(), nil
	}

	return nil, &util.GraphError{Type: util.ErrCorrupted,
		Detail: "Unknown graph storage implementation: " + id}
}

/*
OptimalImplementation returns the serialization ID of the physically best
implementation for a component with the given statistics and node numbering
density. The density is the ratio of the number of nodes to the largest
node ID of the component.
*/
func OptimalImplementation(stats *GraphStatistic, density float64) string {
	if stats == nil {
		return AdjacencyListID
	}

	if !stats.Cyclic {

		// A fan-out of one with limited depth is the shape of hierarchies
		// with child to parent edges such as the corpus structure

		if stats.MaxFanOut <= 1 && stats.MaxDepth <= MaxPathDepth {
			return DiskPathID
		}
		if stats.RootedTree && stats.MaxFanOut > 1 {
			return PrePostOrderID
		}
	}

	// Long chains such as orderings use the dense layout if the node
	// numbering is tight enough

	if !stats.Cyclic && stats.MaxFanOut <= 1 && density >= 0.9 {
		return DenseAdjacencyListID
	}

	return AdjacencyListID
}

/*
LargestNode returns the largest node ID which appears in a container.
*/
func LargestNode(container EdgeContainer) data.NodeID {
	var largest data.NodeID

	sources := container.SourceNodes()
	for s, ok := sources.Next(); ok; s, ok = sources.Next() {
		if s > largest {
			largest = s
		}

		targets := container.OutgoingEdges(s)
		for t, tok := targets.Next(); tok; t, tok = targets.Next() {
			if t > largest {
				largest = t
			}
		}
	}

	return largest
}

/*
Optimize returns a copy of the given storage in the physically best
implementation for its statistics. The given storage is returned unchanged
if it already has the best layout.
*/
func Optimize(st Storage) (Storage, error) {
	stats := st.Statistics()
	if stats == nil {
		return st, nil
	}

	density := 0.0
	if largest := LargestNode(st); largest > 0 {
		density = float64(stats.Nodes) / float64(largest+1)
	}

	id := OptimalImplementation(stats, density)
	if id == st.SerializationID() {
		return st, nil
	}

	opt, err := CreateFromID(id)
	if err != nil {
		return nil, err
	}

	if err := opt.CopyFrom(st); err != nil {

		// Fall back to the generic implementation if the optimized layout
		// rejects the component shape

		if util.IsGraphError(err, util.ErrInvalidUpdate) {
			return st, nil
		}
		return nil, err
	}

	return opt, nil
}

/*
SaveComponent writes a graph storage into a component directory.
*/
func SaveComponent(dir string, st Storage) error {
	if err := os.MkdirAll(dir, 0770); err != nil {
		return &util.GraphError{Type: util.ErrStorageIO, Detail: err.Error()}
	}

	id := st.SerializationID()

	if err := os.WriteFile(filepath.Join(dir, ImplementationFileName),
		[]byte(id+"\n"), 0660); err != nil {
		return &util.GraphError{Type: util.ErrStorageIO, Detail: err.Error()}
	}

	f, err := os.Create(filepath.Join(dir, ComponentFileName))
	if err != nil {
		return &util.GraphError{Type: util.ErrStorageIO, Detail: err.Error()}
	}

	if err := st.WriteTo(f); err != nil {
		f.Close()
		return err
	}

	if err := f.Sync(); err != nil {
		f.Close()
		return &util.GraphError{Type: util.ErrStorageIO, Detail: err.Error()}
	}

	if err := f.Close(); err != nil {
		return &util.GraphError{Type: util.ErrStorageIO, Detail: err.Error()}
	}

	if dps, ok := st.(*DiskPathStorage); ok {
		if err := dps.WritePathFile(dir); err != nil {
			return err
		}
	}

	return SaveStatistics(dir, st.Statistics())
}

/*
LoadComponent reads a graph storage from a component directory.
*/
func LoadComponent(dir string) (Storage, error) {
	raw, err := os.ReadFile(filepath.Join(dir, ImplementationFileName))
	if err != nil {
		return nil, &util.GraphError{Type: util.ErrStorageIO, Detail: err.Error()}
	}

	st, err := CreateFromID(strings.TrimSpace(string(raw)))
	if err != nil {
		return nil, err
	}

	f, err := os.Open(filepath.Join(dir, ComponentFileName))
	if err != nil {
		return nil, &util.GraphError{Type: util.ErrStorageIO, Detail: err.Error()}
	}
	defer f.Close()

	if err := st.ReadFrom(f); err != nil {
		return nil, err
	}

	if dps, ok := st.(*DiskPathStorage); ok {
		if err := dps.AttachFile(dir); err != nil {
			return nil, err
		}
	}

	// The statistics file wins over the serialized statistics if present

	if stats, err := LoadStatistics(dir); err != nil {
		return nil, err
	} else if stats != nil {
		switch t := st.(type) {
		case *AdjacencyListStorage:
			t.stats = stats
		case *DenseAdjacencyListStorage:
			t.stats = stats
		case *PrePostOrderStorage:
			t.stats = stats
		case *DiskPathStorage:
			t.stats = stats
		}
	}

	return st, nil
}
