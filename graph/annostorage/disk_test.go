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
	"fmt"
	"testing"

	"devt.de/krotik/annisdb/graph/data"
	"devt.de/krotik/annisdb/graph/util"
)

func TestDiskStorageBasicOperations(t *testing.T) {
	loc := t.TempDir()

	ds, err := NewDiskNodeStorage(loc)
	if err != nil {
		t.Error(err)
		return
	}
	defer ds.Close()

	if err := ds.Insert(1, anno("annis", "tok", "this")); err != nil {
		t.Error(err)
		return
	}
	if err := ds.Insert(2, anno("annis", "tok", "is")); err != nil {
		t.Error(err)
		return
	}
	if err := ds.Insert(1, anno("tiger", "pos", "DT")); err != nil {
		t.Error(err)
		return
	}

	// Idempotent insert

	if err := ds.Insert(1, anno("annis", "tok", "this")); err != nil {
		t.Error(err)
		return
	}

	if ds.TotalCount() != 3 {
		t.Error("Unexpected total count:", ds.TotalCount())
		return
	}

	if val, ok := ds.Value(1, data.AnnoKey{Name: "tok", NS: "annis"}); !ok || val != "this" {
		t.Error("Unexpected lookup result:", val, ok)
		return
	}

	if annos := ds.Annotations(1); len(annos) != 2 || annos[0].Key.Name != "pos" {
		t.Error("Unexpected annotations:", annos)
		return
	}

	ns := "annis"
	items := collectItems(ds.ExactSearch(&ns, "tok", EqualValue("this")))
	if fmt.Sprint(items) != "[1]" {
		t.Error("Unexpected search result:", items)
		return
	}

	items = collectItems(ds.ExactSearch(&ns, "tok", AnyValue()))
	if fmt.Sprint(items) != "[2 1]" {
		t.Error("Unexpected any-value result:", items)
		return
	}

	it, err := ds.RegexSearch(&ns, "tok", "th.*", false)
	if err != nil {
		t.Error(err)
		return
	}
	if items = collectItems(it); fmt.Sprint(items) != "[1]" {
		t.Error("Unexpected regex result:", items)
		return
	}

	if val, ok := ds.Remove(1, data.AnnoKey{Name: "pos", NS: "tiger"}); !ok || val != "DT" {
		t.Error("Unexpected remove result:", val, ok)
		return
	}

	if ds.TotalCount() != 2 {
		t.Error("Unexpected total count after removal:", ds.TotalCount())
		return
	}

	if err := ds.RemoveItem(1); err != nil {
		t.Error(err)
		return
	}

	if _, ok := ds.Value(1, data.AnnoKey{Name: "tok", NS: "annis"}); ok {
		t.Error("Annotation should be gone")
		return
	}
}

func TestDiskStorageUniqueAndPersistence(t *testing.T) {
	loc := t.TempDir()

	ds, err := NewDiskNodeStorage(loc)
	if err != nil {
		t.Error(err)
		return
	}

	ds.Insert(1, anno(data.AnnisNamespace, data.NodeNameAttr, "corpus/doc1#t1"))

	err = ds.Insert(2, anno(data.AnnisNamespace, data.NodeNameAttr, "corpus/doc1#t1"))
	if !util.IsGraphError(err, util.ErrInvalidUpdate) {
		t.Error("Unexpected result for duplicate node name:", err)
		return
	}

	ds.Insert(2, anno("tiger", "pos", "NN"))
	ds.CalculateStatistics()

	if err := ds.Save(loc); err != nil {
		t.Error(err)
		return
	}

	if err := ds.Close(); err != nil {
		t.Error(err)
		return
	}

	// Reopen and check that data and metadata survived

	ds2, err := NewDiskNodeStorage(loc)
	if err != nil {
		t.Error(err)
		return
	}
	defer ds2.Close()

	if ds2.TotalCount() != 2 {
		t.Error("Unexpected total count after reopening:", ds2.TotalCount())
		return
	}

	if val, ok := ds2.Value(2, data.AnnoKey{Name: "pos", NS: "tiger"}); !ok || val != "NN" {
		t.Error("Unexpected value after reopening:", val, ok)
		return
	}

	ns := "tiger"
	if guess := ds2.GuessMaxCount(&ns, "pos", "NN", "NN"); guess != 1 {
		t.Error("Unexpected estimate after reopening:", guess)
		return
	}

	if largest, ok := ds2.LargestItem(); !ok || largest != 2 {
		t.Error("Unexpected largest item:", largest, ok)
		return
	}
}
