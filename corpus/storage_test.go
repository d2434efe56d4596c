/*
 * AnnisDB
 *
 * Copyright 2016 Matthias Ladkau. All rights reserved.
 *
 * This Source Code Form is subject to the terms of the Mozilla Public
 * License, v. 2.0. If a copy of the MPL was not distributed with this
 * file, You can obtain one at http://mozilla.org/MPL/2.0/.
 */

package corpus

import (
	"fmt"
	"strings"
	"testing"
	"time"

	"devt.de/krotik/annisdb/aql/interpreter"
	"devt.de/krotik/annisdb/graph"
	"devt.de/krotik/annisdb/graph/data"
)

/*
exampleTokens is the text of the example corpus.
*/
var exampleTokens = []string{"Is", "this", "example", "more", "complicated",
	"than", "it", "appears", "to", "be", "?"}

/*
newTestStorage creates a storage in a temporary directory.
*/
func newTestStorage(t *testing.T, opts Options) *Storage {
	s, err := NewStorage(t.TempDir(), opts)
	if err != nil {
		t.Fatal(err)
	}
	return s
}

/*
exampleUpdate builds the update batch of the example sentence "Is this
example more complicated than it appears to be ?" with a span, a
constituent fragment and the corpus structure.
*/
func exampleUpdate() *graph.GraphUpdate {
	u := graph.NewGraphUpdate()

	u.AddNode("root", "corpus")
	u.AddNode("root/doc1", "corpus")
	u.AddEdge("root/doc1", "root", "annis", "PartOf", "")

	for i, tok := range exampleTokens {
		name := fmt.Sprintf("root/doc1#tok%d", i+1)
		u.AddNode(name, "")
		u.AddNodeLabel(name, "annis", "tok", tok)
		u.AddEdge(name, "root/doc1", "annis", "PartOf", "")
	}

	for i := 1; i < len(exampleTokens); i++ {
		u.AddEdge(fmt.Sprintf("root/doc1#tok%d", i),
			fmt.Sprintf("root/doc1#tok%d", i+1), "annis", "Ordering", "")
	}

	u.AddNode("root/doc1#span1", "")
	u.AddNodeLabel("root/doc1#span1", "tiger", "cat", "NP")
	u.AddEdge("root/doc1#span1", "root/doc1#tok2", "annis", "Coverage", "")
	u.AddEdge("root/doc1#span1", "root/doc1#tok3", "annis", "Coverage", "")

	u.AddNode("root/doc1#n1", "")
	u.AddNodeLabel("root/doc1#n1", "tiger", "cat", "S")
	u.AddNode("root/doc1#n2", "")
	u.AddNodeLabel("root/doc1#n2", "tiger", "cat", "NP")

	u.AddEdge("root/doc1#n1", "root/doc1#n2", "syntax", "Dominance", "")
	u.AddEdge("root/doc1#n2", "root/doc1#tok2", "syntax", "Dominance", "")
	u.AddEdge("root/doc1#n2", "root/doc1#tok3", "syntax", "Dominance", "")

	u.Finish()
	return u
}

/*
newExampleStorage creates a storage holding the example corpus.
*/
func newExampleStorage(t *testing.T, opts Options) *Storage {
	s := newTestStorage(t, opts)

	if err := s.CreateCorpus("example"); err != nil {
		t.Fatal(err)
	}
	if err := s.ApplyUpdate("example", exampleUpdate()); err != nil {
		t.Fatal(err)
	}

	return s
}

func TestStorageLifecycle(t *testing.T) {
	dir := t.TempDir()

	s, err := NewStorage(dir, Options{})
	if err != nil {
		t.Fatal(err)
	}

	// The storage directory is locked against other processes

	if _, err := NewStorage(dir, Options{}); !IsStorageError(err, ErrAlreadyLocked) {
		t.Error("Unexpected result:", err)
		return
	}

	if err := s.CreateCorpus("example"); err != nil {
		t.Error(err)
		return
	}

	if err := s.CreateCorpus("example"); !IsStorageError(err, ErrCorpusExists) {
		t.Error("Unexpected result:", err)
		return
	}

	if !s.Exists("example") || s.Exists("other") {
		t.Error("Unexpected existence check")
		return
	}

	infos := s.List()
	if len(infos) != 1 || infos[0].Name != "example" ||
		infos[0].LoadStatus != "not loaded" {
		t.Error("Unexpected corpus list:", infos)
		return
	}

	// Running a query loads the corpus

	if _, err := s.Count("example", "tok"); err != nil {
		t.Error(err)
		return
	}

	infos = s.List()
	if infos[0].LoadStatus != "loaded" || infos[0].MemorySize == 0 {
		t.Error("Unexpected corpus list:", infos)
		return
	}

	if err := s.Delete("example"); err != nil {
		t.Error(err)
		return
	}
	if s.Exists("example") {
		t.Error("Corpus should be gone")
		return
	}
	if err := s.Delete("example"); !IsStorageError(err, ErrNoSuchCorpus) {
		t.Error("Unexpected result:", err)
		return
	}

	if err := s.Close(); err != nil {
		t.Error(err)
		return
	}

	// After a clean shutdown the directory can be locked again

	s2, err := NewStorage(dir, Options{})
	if err != nil {
		t.Error(err)
		return
	}
	s2.Close()
}

func TestStorageDiscovery(t *testing.T) {
	dir := t.TempDir()

	s, err := NewStorage(dir, Options{})
	if err != nil {
		t.Fatal(err)
	}

	if err := s.CreateCorpus("example"); err != nil {
		t.Fatal(err)
	}
	if err := s.ApplyUpdate("example", exampleUpdate()); err != nil {
		t.Fatal(err)
	}
	if err := s.Close(); err != nil {
		t.Fatal(err)
	}

	// A new storage discovers the corpus from the directory listing

	s2, err := NewStorage(dir, Options{})
	if err != nil {
		t.Fatal(err)
	}
	defer s2.Close()

	if !s2.Exists("example") {
		t.Error("Corpus was not discovered")
		return
	}

	count, err := s2.Count("example", "tok")
	if err != nil {
		t.Error(err)
		return
	}
	if count != len(exampleTokens) {
		t.Error("Unexpected count:", count)
		return
	}
}

func TestCountAndFind(t *testing.T) {
	s := newExampleStorage(t, Options{})
	defer s.Close()

	count, err := s.Count("example", "tok")
	if err != nil {
		t.Error(err)
		return
	}
	if count != len(exampleTokens) {
		t.Error("Unexpected count:", count)
		return
	}

	// Count always equals the length of an unpaginated find

	all, err := s.Find("example", "tok", 0, -1, OrderNormal)
	if err != nil {
		t.Error(err)
		return
	}
	if len(all) != count {
		t.Error("Count and find disagree:", count, len(all))
		return
	}

	// Normal order follows the text position

	if all[0] != "root/doc1#tok1" || all[10] != "root/doc1#tok11" {
		t.Error("Unexpected order:", all)
		return
	}

	// Concatenating pages yields the unpaginated sequence

	var paged []string
	for offset := 0; offset < count; offset += 4 {
		page, err := s.Find("example", "tok", offset, 4, OrderNormal)
		if err != nil {
			t.Error(err)
			return
		}
		paged = append(paged, page...)
	}

	if fmt.Sprint(paged) != fmt.Sprint(all) {
		t.Error("Pagination changed the sequence:", paged)
		return
	}

	// An offset beyond the result set yields an empty page

	page, err := s.Find("example", "tok", count+5, 4, OrderNormal)
	if err != nil || len(page) != 0 {
		t.Error("Unexpected page:", page, err)
		return
	}

	// Inverted order is the exact reverse

	inv, err := s.Find("example", "tok", 0, -1, OrderInverted)
	if err != nil {
		t.Error(err)
		return
	}
	for i := range all {
		if all[i] != inv[len(inv)-1-i] {
			t.Error("Inverted order mismatch:", inv)
			return
		}
	}

	// Randomized order is deterministic for a fixed seed

	rnd1, err := s.Find("example", "tok", 0, -1, OrderRandomized)
	if err != nil {
		t.Error(err)
		return
	}
	rnd2, err := s.Find("example", "tok", 0, -1, OrderRandomized)
	if err != nil {
		t.Error(err)
		return
	}
	if fmt.Sprint(rnd1) != fmt.Sprint(rnd2) {
		t.Error("Randomized order is not deterministic")
		return
	}

	// Annotation matches render with their qualified name

	annos, err := s.Find("example", `cat="S"`, 0, -1, OrderNormal)
	if err != nil {
		t.Error(err)
		return
	}
	if len(annos) != 1 || annos[0] != "tiger::cat::root/doc1#n1" {
		t.Error("Unexpected match IDs:", annos)
		return
	}

	// Operator query

	res, err := s.Find("example", `tok="this" . tok="example"`, 0, -1, OrderNormal)
	if err != nil {
		t.Error(err)
		return
	}
	if len(res) != 1 || res[0] != "root/doc1#tok2 root/doc1#tok3" {
		t.Error("Unexpected result:", res)
		return
	}
}

func TestCountExtra(t *testing.T) {
	s := newExampleStorage(t, Options{})
	defer s.Close()

	res, err := s.CountExtra("example", "tok")
	if err != nil {
		t.Error(err)
		return
	}

	if res.MatchCount != len(exampleTokens) || res.DocumentCount != 1 {
		t.Error("Unexpected result:", res)
		return
	}

	if _, err := s.CountExtra("missing", "tok"); !IsStorageError(err, ErrNoSuchCorpus) {
		t.Error("Unexpected result:", err)
		return
	}
}

func TestOptionalNodeRendering(t *testing.T) {
	s := newExampleStorage(t, Options{})
	defer s.Close()

	// All tokens not directly followed by "?" - the optional node
	// occupies no slot in the rendered match

	res, err := s.Find("example", `tok !. tok="?"`, 0, -1, OrderNormal)
	if err != nil {
		t.Error(err)
		return
	}

	if len(res) != len(exampleTokens)-1 {
		t.Error("Unexpected number of results:", res)
		return
	}

	for _, id := range res {
		if strings.Contains(id, " ") {
			t.Error("Optional slot was rendered:", id)
			return
		}
		if id == "root/doc1#tok10" {
			t.Error("tok10 is followed by ? and should be filtered")
			return
		}
	}
}

func TestQueryTimeout(t *testing.T) {
	s := newExampleStorage(t, Options{QueryTimeout: time.Nanosecond})
	defer s.Close()

	if _, err := s.Count("example", "tok"); !interpreter.IsError(err,
		interpreter.ErrTimeout) {
		t.Error("Unexpected result:", err)
		return
	}
}

func TestResultSetLimit(t *testing.T) {
	s := newExampleStorage(t, Options{MaxResultSetSize: 5})
	defer s.Close()

	if _, err := s.Find("example", "tok", 0, -1, OrderNormal); !interpreter.IsError(err,
		interpreter.ErrMemoryLimit) {
		t.Error("Unexpected result:", err)
		return
	}
}

func TestApplyUpdateErrors(t *testing.T) {
	s := newTestStorage(t, Options{})
	defer s.Close()

	u := graph.NewGraphUpdate()
	u.AddNode("root", "corpus")
	u.Finish()

	if err := s.ApplyUpdate("missing", u); !IsStorageError(err, ErrNoSuchCorpus) {
		t.Error("Unexpected result:", err)
		return
	}
}

func TestIntrospection(t *testing.T) {
	s := newExampleStorage(t, Options{})
	defer s.Close()

	keys, err := s.ListNodeAnnotations("example")
	if err != nil {
		t.Error(err)
		return
	}

	found := false
	for _, key := range keys {
		if key.NS == "tiger" && key.Name == "cat" {
			found = true
		}
	}
	if !found {
		t.Error("Missing annotation key:", keys)
		return
	}

	comps, err := s.AllComponentsByType("example", data.Dominance)
	if err != nil {
		t.Error(err)
		return
	}
	if len(comps) != 1 || comps[0].Layer != "syntax" {
		t.Error("Unexpected components:", comps)
		return
	}
}

func TestDocumentPath(t *testing.T) {

	// Only the last fragment separator splits off the node name - earlier
	// separators belong to the document path

	if res := documentPath("a#b/c#t1"); res != "a#b/c" {
		t.Error("Unexpected path:", res)
		return
	}

	if res := documentPath("root/doc1#tok1"); res != "root/doc1" {
		t.Error("Unexpected path:", res)
		return
	}

	if res := documentPath("root/doc1"); res != "root/doc1" {
		t.Error("Unexpected path:", res)
		return
	}
}

func TestDirNameEncoding(t *testing.T) {
	name := `my/corpus:with"odd%chars`

	encoded := encodeDirName(name)
	if strings.ContainsAny(encoded, `/:"`) {
		t.Error("Unexpected encoding:", encoded)
		return
	}

	if decoded := decodeDirName(encoded); decoded != name {
		t.Error("Unexpected decoding:", decoded)
		return
	}
}
