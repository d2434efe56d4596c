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
	"bytes"
	"fmt"
	"testing"

	"devt.de/krotik/annisdb/graph/data"
	"devt.de/krotik/annisdb/graph/util"
)

func anno(ns string, name string, val string) data.Annotation {
	return data.Annotation{Key: data.AnnoKey{Name: name, NS: ns}, Val: val}
}

func collectItems[T Item](it MatchIterator[T]) []T {
	var res []T
	for m, ok := it.Next(); ok; m, ok = it.Next() {
		res = append(res, m.Item)
	}
	return res
}

func TestMemoryStorageBasicOperations(t *testing.T) {
	ms := NewNodeStorage()

	if err := ms.Insert(1, anno("annis", "tok", "this")); err != nil {
		t.Error(err)
		return
	}
	if err := ms.Insert(2, anno("annis", "tok", "is")); err != nil {
		t.Error(err)
		return
	}
	if err := ms.Insert(1, anno("tiger", "pos", "DT")); err != nil {
		t.Error(err)
		return
	}

	// Re-adding an identical annotation must be a no-op

	if err := ms.Insert(1, anno("annis", "tok", "this")); err != nil {
		t.Error(err)
		return
	}

	if ms.TotalCount() != 3 {
		t.Error("Unexpected total count:", ms.TotalCount())
		return
	}

	if val, ok := ms.Value(1, data.AnnoKey{Name: "tok", NS: "annis"}); !ok || val != "this" {
		t.Error("Unexpected lookup result:", val, ok)
		return
	}

	if annos := ms.Annotations(1); len(annos) != 2 || annos[0].Key.Name != "pos" {
		t.Error("Unexpected annotations:", annos)
		return
	}

	// Overwriting with a different value must not grow the count

	if err := ms.Insert(1, anno("tiger", "pos", "NN")); err != nil {
		t.Error(err)
		return
	}

	if ms.TotalCount() != 3 {
		t.Error("Unexpected total count after overwrite:", ms.TotalCount())
		return
	}

	if val, _ := ms.Value(1, data.AnnoKey{Name: "pos", NS: "tiger"}); val != "NN" {
		t.Error("Unexpected value after overwrite:", val)
		return
	}

	if val, ok := ms.Remove(1, data.AnnoKey{Name: "pos", NS: "tiger"}); !ok || val != "NN" {
		t.Error("Unexpected remove result:", val, ok)
		return
	}

	if _, ok := ms.Value(1, data.AnnoKey{Name: "pos", NS: "tiger"}); ok {
		t.Error("Annotation should be gone")
		return
	}

	if err := ms.RemoveItem(2); err != nil {
		t.Error(err)
		return
	}

	if ms.TotalCount() != 1 {
		t.Error("Unexpected total count after item removal:", ms.TotalCount())
		return
	}

	// The largest item does not shrink with removals

	if largest, ok := ms.LargestItem(); !ok || largest != 2 {
		t.Error("Unexpected largest item:", largest, ok)
		return
	}
}

func TestMemoryStorageNodeNameIndex(t *testing.T) {
	ms := NewNodeStorage()

	ms.Insert(1, anno(data.AnnisNamespace, data.NodeNameAttr, "corpus/doc1#t1"))
	ms.Insert(2, anno(data.AnnisNamespace, data.NodeNameAttr, "corpus/doc1#t2"))

	// A node name may only be carried by one node

	err := ms.Insert(3, anno(data.AnnisNamespace, data.NodeNameAttr, "corpus/doc1#t1"))
	if !util.IsGraphError(err, util.ErrInvalidUpdate) {
		t.Error("Unexpected result for duplicate node name:", err)
		return
	}

	// Re-adding the same name for the same node is fine

	if err := ms.Insert(1, anno(data.AnnisNamespace, data.NodeNameAttr, "corpus/doc1#t1")); err != nil {
		t.Error(err)
		return
	}

	ns := data.AnnisNamespace
	it := ms.ExactSearch(&ns, data.NodeNameAttr, EqualValue("corpus/doc1#t2"))

	if items := collectItems(it); fmt.Sprint(items) != "[2]" {
		t.Error("Unexpected search result:", items)
		return
	}
}

func TestMemoryStorageSearch(t *testing.T) {
	ms := NewMemoryStorage(NodeCodec)

	for i, pos := range []string{"NN", "ART", "NN", "VVFIN", "NN", "ART"} {
		ms.Insert(data.NodeID(i+1), anno("tiger", "pos", pos))
	}
	ms.Insert(100, anno("other", "pos", "NN"))

	ns := "tiger"

	items := collectItems(ms.ExactSearch(&ns, "pos", EqualValue("NN")))
	if fmt.Sprint(items) != "[1 3 5]" {
		t.Error("Unexpected exact search result:", items)
		return
	}

	// Without a namespace all qualified keys of the name are searched

	items = collectItems(ms.ExactSearch(nil, "pos", EqualValue("NN")))
	if fmt.Sprint(items) != "[100 1 3 5]" {
		t.Error("Unexpected unqualified search result:", items)
		return
	}

	items = collectItems(ms.ExactSearch(&ns, "pos", NotEqualValue("NN")))
	if fmt.Sprint(items) != "[2 6 4]" {
		t.Error("Unexpected negated search result:", items)
		return
	}

	it, err := ms.RegexSearch(&ns, "pos", "N.*", false)
	if err != nil {
		t.Error(err)
		return
	}
	if items = collectItems(it); fmt.Sprint(items) != "[1 3 5]" {
		t.Error("Unexpected regex search result:", items)
		return
	}

	// The regex is anchored - a partial match is not enough

	it, _ = ms.RegexSearch(&ns, "pos", "N", false)
	if items = collectItems(it); len(items) != 0 {
		t.Error("Unexpected anchored regex result:", items)
		return
	}

	if _, err := ms.RegexSearch(&ns, "pos", "[", false); err == nil {
		t.Error("Invalid regex should not compile")
		return
	}

	// Missing keys produce empty iterators and no errors

	if items = collectItems(ms.ExactSearch(&ns, "missing", AnyValue())); items != nil {
		t.Error("Unexpected result for missing key:", items)
		return
	}

	if count := ms.CountForName(&ns, "pos"); count != 6 {
		t.Error("Unexpected count:", count)
		return
	}

	if count := ms.CountForName(nil, "pos"); count != 7 {
		t.Error("Unexpected unqualified count:", count)
		return
	}

	if qnames := ms.QNames("pos"); fmt.Sprint(qnames) != "[other::pos tiger::pos]" {
		t.Error("Unexpected qnames:", qnames)
		return
	}

	if val, ok := ms.MostFrequentValue(&ns, "pos"); !ok || val != "NN" {
		t.Error("Unexpected most frequent value:", val, ok)
		return
	}

	vals := ms.AllValues(data.AnnoKey{Name: "pos", NS: "tiger"}, false)
	if fmt.Sprint(vals) != "[ART NN VVFIN]" {
		t.Error("Unexpected values:", vals)
		return
	}

	vals = ms.AllValues(data.AnnoKey{Name: "pos", NS: "tiger"}, true)
	if vals[0] != "NN" {
		t.Error("Unexpected frequency ordered values:", vals)
		return
	}
}

func TestMemoryStorageEstimates(t *testing.T) {
	ms := NewMemoryStorage(NodeCodec)

	for i := 0; i < 100; i++ {
		ms.Insert(data.NodeID(i), anno("tiger", "cat", fmt.Sprintf("C%02d", i%10)))
	}

	if err := ms.CalculateStatistics(); err != nil {
		t.Error(err)
		return
	}

	ns := "tiger"

	guess := ms.GuessMaxCount(&ns, "cat", "C00", "C04")
	if guess < 40 || guess > 60 {
		t.Error("Unexpected range estimate:", guess)
		return
	}

	if guess := ms.GuessMaxCount(&ns, "cat", "D0", "D9"); guess != 0 {
		t.Error("Unexpected estimate outside the value range:", guess)
		return
	}

	// A regex with a literal prefix uses the prefix range

	guess = ms.GuessMaxCountRegex(&ns, "cat", "C0[0-4]")
	if guess != 100 {
		t.Error("Unexpected regex estimate:", guess)
		return
	}

	// Without a prefix every value may match

	if guess := ms.GuessMaxCountRegex(&ns, "cat", ".*9"); guess != 100 {
		t.Error("Unexpected pessimistic estimate:", guess)
		return
	}
}

func TestMemoryStorageSerialization(t *testing.T) {
	ms := NewNodeStorage()

	ms.Insert(1, anno(data.AnnisNamespace, data.NodeNameAttr, "corpus/doc1#t1"))
	ms.Insert(1, anno("annis", "tok", "this"))
	ms.Insert(2, anno("tiger", "pos", "NN"))
	ms.CalculateStatistics()

	var buf bytes.Buffer

	if err := ms.WriteTo(&buf); err != nil {
		t.Error(err)
		return
	}

	ms2 := NewMemoryStorage(NodeCodec)
	if err := ms2.ReadFrom(&buf); err != nil {
		t.Error(err)
		return
	}

	if ms2.TotalCount() != 3 {
		t.Error("Unexpected total count:", ms2.TotalCount())
		return
	}

	if val, ok := ms2.Value(1, data.AnnoKey{Name: "tok", NS: "annis"}); !ok || val != "this" {
		t.Error("Unexpected value:", val, ok)
		return
	}

	// The unique key constraint survives the round trip

	err := ms2.Insert(5, anno(data.AnnisNamespace, data.NodeNameAttr, "corpus/doc1#t1"))
	if !util.IsGraphError(err, util.ErrInvalidUpdate) {
		t.Error("Unique constraint should have survived:", err)
		return
	}

	if largest, ok := ms2.LargestItem(); !ok || largest != 2 {
		t.Error("Unexpected largest item:", largest, ok)
		return
	}
}

func TestRegexHelpers(t *testing.T) {
	if lit, ok := RegexLiteral("Bilharziose"); !ok || lit != "Bilharziose" {
		t.Error("Unexpected literal:", lit, ok)
		return
	}

	// Escapes reduce to their literal characters

	if lit, ok := RegexLiteral(`\x41BC`); !ok || lit != "ABC" {
		t.Error("Unexpected escaped literal:", lit, ok)
		return
	}

	if _, ok := RegexLiteral("A.*"); ok {
		t.Error("Pattern should not be a literal")
		return
	}

	if prefix, ok := RegexPrefix("A.*"); !ok || prefix != "A" {
		t.Error("Unexpected prefix:", prefix, ok)
		return
	}

	if _, ok := RegexPrefix(".P"); ok {
		t.Error("Pattern should have no prefix")
		return
	}
}
