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
	"testing"

	"devt.de/krotik/annisdb/graph"
)

/*
annotatedGraph creates an in-memory graph holding a few annotated nodes so
it has a nonzero memory estimate.
*/
func annotatedGraph(t *testing.T) *graph.Graph {
	g := graph.NewGraph()

	u := graph.NewGraphUpdate()
	u.AddNode("doc#n1", "")
	u.AddNodeLabel("doc#n1", "test", "anno", "val")
	u.Finish()

	if err := g.ApplyUpdate(u); err != nil {
		t.Fatal(err)
	}

	return g
}

func TestGraphCacheLoading(t *testing.T) {
	cache := newGraphCache(1024 * 1024)

	if g, loading := cache.get("a"); g != nil || loading {
		t.Error("Unexpected state:", g, loading)
		return
	}

	if !cache.markLoading("a") {
		t.Error("Marking a fresh entry should succeed")
		return
	}
	if cache.markLoading("a") {
		t.Error("Marking twice should fail")
		return
	}

	// While loading, readers see the entry but no graph yet

	if g, loading := cache.get("a"); g != nil || !loading {
		t.Error("Unexpected state:", g, loading)
		return
	}

	ga := annotatedGraph(t)

	if evicted := cache.finishLoading("a", ga); len(evicted) != 0 {
		t.Error("Unexpected evictions:", evicted)
		return
	}

	if g, _ := cache.get("a"); g != ga {
		t.Error("Unexpected graph:", g)
		return
	}

	if size, loaded := cache.status("a"); !loaded || size == 0 {
		t.Error("Unexpected status:", size, loaded)
		return
	}

	// A failed load drops the entry

	cache.markLoading("b")
	cache.finishLoading("b", nil)

	if g, loading := cache.get("b"); g != nil || loading {
		t.Error("Unexpected state:", g, loading)
		return
	}

	if g := cache.remove("a"); g != ga {
		t.Error("Unexpected graph:", g)
		return
	}
	ga.Close()
}

func TestGraphCacheEviction(t *testing.T) {

	// A one byte budget forces an eviction on every insert

	cache := newGraphCache(1)

	ga := annotatedGraph(t)
	gb := annotatedGraph(t)

	cache.markLoading("a")
	if evicted := cache.finishLoading("a", ga); len(evicted) != 0 {

		// The most recently used entry is never evicted

		t.Error("Unexpected evictions:", evicted)
		return
	}

	cache.markLoading("b")
	evicted := cache.finishLoading("b", gb)

	if len(evicted) != 1 || evicted[0] != ga {
		t.Error("Unexpected evictions:", evicted)
		return
	}

	if g, _ := cache.get("a"); g != nil {
		t.Error("Entry should be evicted")
		return
	}
	if g, _ := cache.get("b"); g != gb {
		t.Error("Unexpected graph:", g)
		return
	}

	for _, g := range cache.clear() {
		g.Close()
	}
	ga.Close()
}
