/*
 * AnnisDB
 *
 * Copyright 2016 Matthias Ladkau. All rights reserved.
 *
 * This Source Code Form is subject to the terms of the Mozilla Public
 * License, v. 2.0. If a copy of the MPL was not distributed with this
 * file, You can obtain one at http://mozilla.org/MPL/2.0/.
 */

package interpreter

import (
	"fmt"
	"testing"
	"time"

	"devt.de/krotik/annisdb/graph"
	"devt.de/krotik/annisdb/graph/data"
)

/*
exampleGraph builds the example sentence "Is this example more complicated
than it appears to be ?" with a constituent fragment, a span and a
dependency edge.
*/
func exampleGraph(t *testing.T) *graph.Graph {
	tokens := []string{"Is", "this", "example", "more", "complicated",
		"than", "it", "appears", "to", "be", "?"}

	u := graph.NewGraphUpdate()

	u.AddNode("root", "corpus")
	u.AddNode("root/doc1", "corpus")

	for i, tok := range tokens {
		name := fmt.Sprintf("root/doc1#tok%d", i+1)
		u.AddNode(name, "")
		u.AddNodeLabel(name, "annis", "tok", tok)
	}

	for i := 1; i < len(tokens); i++ {
		u.AddEdge(fmt.Sprintf("root/doc1#tok%d", i),
			fmt.Sprintf("root/doc1#tok%d", i+1), "annis", "Ordering", "")
	}

	// A span covering "this example"

	u.AddNode("root/doc1#span1", "")
	u.AddNodeLabel("root/doc1#span1", "tiger", "cat", "NP")
	u.AddEdge("root/doc1#span1", "root/doc1#tok2", "annis", "Coverage", "")
	u.AddEdge("root/doc1#span1", "root/doc1#tok3", "annis", "Coverage", "")

	// A small constituent fragment: n1 dominates n2 dominates tok2/tok3

	u.AddNode("root/doc1#n1", "")
	u.AddNodeLabel("root/doc1#n1", "tiger", "cat", "S")
	u.AddNode("root/doc1#n2", "")
	u.AddNodeLabel("root/doc1#n2", "tiger", "cat", "NP")

	u.AddEdge("root/doc1#n1", "root/doc1#n2", "syntax", "Dominance", "")
	u.AddEdge("root/doc1#n2", "root/doc1#tok2", "syntax", "Dominance", "")
	u.AddEdge("root/doc1#n2", "root/doc1#tok3", "syntax", "Dominance", "")

	// A dependency edge "appears" -> "it"

	u.AddEdge("root/doc1#tok8", "root/doc1#tok7", "dep", "Pointing", "dep")
	u.AddEdgeLabel("root/doc1#tok8", "root/doc1#tok7", "dep", "Pointing",
		"dep", "dep", "func", "sbj")

	u.Finish()

	g := graph.NewGraph()
	if err := g.ApplyUpdate(u); err != nil {
		t.Fatal(err)
	}

	return g
}

/*
nodeID looks up a node by name and fails the test if it is missing.
*/
func nodeID(t *testing.T, g *graph.Graph, name string) data.NodeID {
	id, ok := g.NodeIDFromName(name)
	if !ok {
		t.Fatal("Missing node:", name)
	}
	return id
}

/*
drainPlan collects all result tuples of a plan.
*/
func drainPlan(t *testing.T, plan ExecNode) []data.MatchGroup {
	var res []data.MatchGroup

	for {
		tuple, err := plan.Next()
		if err != nil {
			t.Fatal(err)
		}
		if tuple == nil {
			return res
		}
		res = append(res, tuple)
	}
}

func TestNodeSearchSpecs(t *testing.T) {
	g := exampleGraph(t)

	spec := NewTokenSpec(ConstraintAny, "")
	if est := spec.Estimate(g); est != 11 {
		t.Error("Unexpected token estimate:", est)
		return
	}

	spec = NewTokenSpec(ConstraintEqual, "this")
	it, err := spec.Search(g)
	if err != nil {
		t.Error(err)
		return
	}

	m, ok := it.Next()
	if !ok || m.Item != nodeID(t, g, "root/doc1#tok2") {
		t.Error("Unexpected search result:", m, ok)
		return
	}
	if _, ok := it.Next(); ok {
		t.Error("Expected a single result")
		return
	}

	// A regex which is a plain literal becomes an exact search

	spec = NewTokenSpec(ConstraintRegex, "this")
	if spec.Constraint != ConstraintEqual || spec.Value != "this" {
		t.Error("Unexpected specialization:", spec)
		return
	}

	spec = NewAnnoSpec("tiger", true, "cat", ConstraintRegex, "N.*")
	if spec.Constraint != ConstraintRegex {
		t.Error("Unexpected specialization:", spec)
		return
	}

	it, err = spec.Search(g)
	if err != nil {
		t.Error(err)
		return
	}

	count := 0
	for _, ok := it.Next(); ok; _, ok = it.Next() {
		count++
	}
	if count != 2 {
		t.Error("Unexpected number of NP nodes:", count)
		return
	}

	// Matches verifies a single node against the spec

	if _, ok := spec.Matches(g, nodeID(t, g, "root/doc1#span1")); !ok {
		t.Error("Span should match the cat regex")
		return
	}
	if _, ok := spec.Matches(g, nodeID(t, g, "root/doc1#tok1")); ok {
		t.Error("Token should not match the cat regex")
		return
	}
}

func TestTokenHelper(t *testing.T) {
	g := exampleGraph(t)

	th, err := NewTokenHelper(g)
	if err != nil {
		t.Error(err)
		return
	}

	tok2 := nodeID(t, g, "root/doc1#tok2")
	tok3 := nodeID(t, g, "root/doc1#tok3")
	tok5 := nodeID(t, g, "root/doc1#tok5")
	span1 := nodeID(t, g, "root/doc1#span1")

	if !th.IsToken(tok2) || th.IsToken(span1) {
		t.Error("Unexpected token classification")
		return
	}

	if left, ok := th.LeftTokenFor(span1); !ok || left != tok2 {
		t.Error("Unexpected left token:", left, ok)
		return
	}
	if right, ok := th.RightTokenFor(span1); !ok || right != tok3 {
		t.Error("Unexpected right token:", right, ok)
		return
	}

	if c := th.CoveredTokenCount(span1); c != 2 {
		t.Error("Unexpected covered token count:", c)
		return
	}

	if !th.Precedes(tok2, tok5) || th.Precedes(tok5, tok2) {
		t.Error("Unexpected token order")
		return
	}
}

func TestPrecedenceOperator(t *testing.T) {
	g := exampleGraph(t)

	op, err := NewPrecedence(g, "", 1, 1)
	if err != nil {
		t.Error(err)
		return
	}

	tok1 := data.Match{Node: nodeID(t, g, "root/doc1#tok1"), Key: data.TokKey}
	tok2 := data.Match{Node: nodeID(t, g, "root/doc1#tok2"), Key: data.TokKey}
	tok3 := data.Match{Node: nodeID(t, g, "root/doc1#tok3"), Key: data.TokKey}
	span1 := data.Match{Node: nodeID(t, g, "root/doc1#span1"), Key: data.TokKey}

	if !op.Filter(tok1, tok2) || op.Filter(tok1, tok3) || op.Filter(tok2, tok1) {
		t.Error("Unexpected precedence filter results")
		return
	}

	// The span starts at tok2 so it directly follows tok1

	if !op.Filter(tok1, span1) {
		t.Error("Span should follow tok1")
		return
	}

	found := map[data.NodeID]bool{}
	it := op.Retrieve(tok1)
	for n, ok := it.Next(); ok; n, ok = it.Next() {
		found[n] = true
	}

	if !found[tok2.Node] || !found[span1.Node] || len(found) != 2 {
		t.Error("Unexpected retrieve results:", found)
		return
	}

	// The inverse operator runs right to left

	inv := op.InverseOperator()
	if !inv.Filter(tok2, tok1) || inv.Filter(tok1, tok2) {
		t.Error("Unexpected inverse filter results")
		return
	}
}

func TestEdgeOperators(t *testing.T) {
	g := exampleGraph(t)

	n1 := data.Match{Node: nodeID(t, g, "root/doc1#n1"), Key: data.DefaultKey}
	n2 := data.Match{Node: nodeID(t, g, "root/doc1#n2"), Key: data.DefaultKey}
	tok2 := data.Match{Node: nodeID(t, g, "root/doc1#tok2"), Key: data.TokKey}
	tok7 := data.Match{Node: nodeID(t, g, "root/doc1#tok7"), Key: data.TokKey}
	tok8 := data.Match{Node: nodeID(t, g, "root/doc1#tok8"), Key: data.TokKey}

	dom, err := NewDominance(g, "", 1, 1)
	if err != nil {
		t.Error(err)
		return
	}

	if !dom.Filter(n2, tok2) || dom.Filter(n1, tok2) {
		t.Error("Unexpected direct dominance results")
		return
	}

	domStar, err := NewDominance(g, "", 1, 10)
	if err != nil {
		t.Error(err)
		return
	}

	if !domStar.Filter(n1, tok2) || !domStar.Filter(n1, n2) {
		t.Error("Unexpected transitive dominance results")
		return
	}

	dep, err := NewPointing(g, "dep", 1, 1)
	if err != nil {
		t.Error(err)
		return
	}

	if !dep.Filter(tok8, tok7) || dep.Filter(tok7, tok8) {
		t.Error("Unexpected pointing results")
		return
	}
}

func TestCoverageOperators(t *testing.T) {
	g := exampleGraph(t)

	tok2 := data.Match{Node: nodeID(t, g, "root/doc1#tok2"), Key: data.TokKey}
	tok3 := data.Match{Node: nodeID(t, g, "root/doc1#tok3"), Key: data.TokKey}
	tok4 := data.Match{Node: nodeID(t, g, "root/doc1#tok4"), Key: data.TokKey}
	span1 := data.Match{Node: nodeID(t, g, "root/doc1#span1"), Key: data.DefaultKey}

	overlap, err := NewOverlap(g)
	if err != nil {
		t.Error(err)
		return
	}

	if !overlap.Filter(span1, tok2) || !overlap.Filter(tok3, span1) ||
		overlap.Filter(span1, tok4) {
		t.Error("Unexpected overlap results")
		return
	}

	incl, err := NewInclusion(g)
	if err != nil {
		t.Error(err)
		return
	}

	if !incl.Filter(span1, tok2) || incl.Filter(tok2, span1) {
		t.Error("Unexpected inclusion results")
		return
	}

	la, err := NewLeftAlignment(g)
	if err != nil {
		t.Error(err)
		return
	}

	if !la.Filter(span1, tok2) || la.Filter(span1, tok3) {
		t.Error("Unexpected left alignment results")
		return
	}

	ra, err := NewRightAlignment(g)
	if err != nil {
		t.Error(err)
		return
	}

	if !ra.Filter(span1, tok3) || ra.Filter(span1, tok2) {
		t.Error("Unexpected right alignment results")
		return
	}
}

func TestPlanExecution(t *testing.T) {
	g := exampleGraph(t)

	// tok="this" . tok="example"

	c := NewConjunction()
	left := c.AddNode(NewTokenSpec(ConstraintEqual, "this"))
	right := c.AddNode(NewTokenSpec(ConstraintEqual, "example"))
	c.AddOperator(&PrecedenceSpec{MinDist: 1, MaxDist: 1}, left, right, false)

	plan, err := NewDisjunction(c).MakeExecPlan(g, nil)
	if err != nil {
		t.Error(err)
		return
	}

	res := drainPlan(t, plan)
	if len(res) != 1 || len(res[0]) != 2 {
		t.Error("Unexpected result:", res)
		return
	}

	if res[0][0].Node != nodeID(t, g, "root/doc1#tok2") ||
		res[0][1].Node != nodeID(t, g, "root/doc1#tok3") {
		t.Error("Unexpected result nodes:", res[0])
		return
	}

	// An unconnected pair produces the cross product

	c = NewConjunction()
	c.AddNode(NewTokenSpec(ConstraintEqual, "this"))
	c.AddNode(NewAnnoSpec("tiger", true, "cat", ConstraintEqual, "S"))

	plan, err = NewDisjunction(c).MakeExecPlan(g, nil)
	if err != nil {
		t.Error(err)
		return
	}

	if res := drainPlan(t, plan); len(res) != 1 {
		t.Error("Unexpected cross product size:", len(res))
		return
	}
}

func TestDisjunctionDeduplication(t *testing.T) {
	g := exampleGraph(t)

	// Both alternatives match the same token

	c1 := NewConjunction()
	c1.AddNode(NewTokenSpec(ConstraintEqual, "this"))

	c2 := NewConjunction()
	c2.AddNode(NewTokenSpec(ConstraintRegex, "th.s"))

	plan, err := NewDisjunction(c1, c2).MakeExecPlan(g, nil)
	if err != nil {
		t.Error(err)
		return
	}

	if res := drainPlan(t, plan); len(res) != 1 {
		t.Error("Duplicate results were not removed:", res)
		return
	}
}

func TestNonExistingFilter(t *testing.T) {
	g := exampleGraph(t)

	// All tokens which are not directly followed by "?"

	c := NewConjunction()
	left := c.AddNode(NewTokenSpec(ConstraintAny, ""))

	optional := NewTokenSpec(ConstraintEqual, "?")
	optional.Optional = true
	right := c.AddNode(optional)

	c.Operators = append(c.Operators, OperatorEntry{
		Spec:        &PrecedenceSpec{MinDist: 1, MaxDist: 1},
		LeftIdx:     left,
		RightIdx:    right,
		NonExisting: true,
	})

	plan, err := NewDisjunction(c).MakeExecPlan(g, nil)
	if err != nil {
		t.Error(err)
		return
	}

	res := drainPlan(t, plan)
	if len(res) != 10 {
		t.Error("Unexpected number of results:", len(res))
		return
	}

	// The optional slot holds the empty placeholder match

	for _, tuple := range res {
		if len(tuple) != 2 || tuple[1].Key != data.DefaultKey {
			t.Error("Unexpected tuple:", tuple)
			return
		}
		if tuple[0].Node == nodeID(t, g, "root/doc1#tok10") {
			t.Error("tok10 is followed by ? and should be filtered")
			return
		}
	}
}

func TestImpossibleSearch(t *testing.T) {
	g := exampleGraph(t)

	c := NewConjunction()
	left := c.AddNode(NewTokenSpec(ConstraintEqual, "this"))
	right := c.AddNode(NewTokenSpec(ConstraintEqual, "example"))
	c.AddOperator(&IdenticalNodeSpec{}, left, right, false)

	_, err := NewDisjunction(c).MakeExecPlan(g, nil)
	if !IsError(err, ErrImpossibleSearch) {
		t.Error("Unexpected result:", err)
		return
	}
}

func TestQueryTimeout(t *testing.T) {
	g := exampleGraph(t)

	c := NewConjunction()
	c.AddNode(NewTokenSpec(ConstraintAny, ""))

	plan, err := NewDisjunction(c).MakeExecPlan(g,
		&Config{Timeout: time.Nanosecond})
	if err != nil {
		t.Error(err)
		return
	}

	time.Sleep(time.Millisecond)

	if _, err := plan.Next(); !IsError(err, ErrTimeout) {
		t.Error("Unexpected result:", err)
		return
	}
}
