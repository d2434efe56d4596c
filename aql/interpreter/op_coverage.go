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
	"devt.de/krotik/annisdb/graph"
	"devt.de/krotik/annisdb/graph/annostorage"
	"devt.de/krotik/annisdb/graph/data"
	"devt.de/krotik/annisdb/graph/graphstorage"
)

/*
coverageOperator is the shared base of all operators which compare the
token ranges of two nodes.
*/
type coverageOperator struct {
	th *TokenHelper
}

/*
Retrieve returns all nodes sharing at least one token with the left-hand
side match. This is an over-approximation for the range comparing
operators; the index join verifies every candidate with Filter.
*/
func (op *coverageOperator) Retrieve(lhs data.Match) graphstorage.NodeIterator {
	var res []data.NodeID
	seen := make(map[data.NodeID]bool)

	for _, t := range op.th.CoveredTokens(lhs.Node) {
		for _, n := range op.th.CoveringNodes(t) {
			if !seen[n] {
				seen[n] = true
				res = append(res, n)
			}
		}
	}

	return graphstorage.NewSliceIterator(res)
}

/*
EstimationType returns how the operator output is estimated.
*/
func (op *coverageOperator) EstimationType() EstimationType {
	return EstimationSelectivity
}

/*
Selectivity estimates the fraction of node pairs with overlapping token
ranges from the coverage fan-out.
*/
func (op *coverageOperator) Selectivity() float64 {
	sel := 0.0

	for _, cov := range op.th.coverage {
		stats := cov.Statistics()
		if stats == nil || stats.Nodes == 0 {
			sel += defaultSelectivity
			continue
		}

		// A node overlaps roughly as many nodes as tokens it covers

		sel += stats.AvgFanOut / float64(stats.Nodes)
	}

	if sel == 0 {
		sel = defaultSelectivity
	}
	if sel > 1 {
		sel = 1
	}

	return sel
}

/*
IsReflexive reports if the operator can hold between a node and itself.
*/
func (op *coverageOperator) IsReflexive() bool {
	return true
}

/*
Overlap is the "_o_" operator: the token ranges of both nodes share at
least one token.
*/
type Overlap struct {
	coverageOperator
}

/*
NewOverlap creates an overlap operator.
*/
func NewOverlap(g *graph.Graph) (*Overlap, error) {
	th, err := NewTokenHelper(g)
	if err != nil {
		return nil, err
	}
	return &Overlap{coverageOperator{th}}, nil
}

/*
Filter checks if the token ranges of two matches overlap.
*/
func (op *Overlap) Filter(lhs data.Match, rhs data.Match) bool {
	leftL, rightL, ok := op.th.LeftRightTokenFor(lhs.Node)
	if !ok {
		return false
	}

	leftR, rightR, ok := op.th.LeftRightTokenFor(rhs.Node)
	if !ok {
		return false
	}

	// Two ranges overlap unless one ends strictly before the other starts

	return !op.th.Precedes(rightL, leftR) && !op.th.Precedes(rightR, leftL)
}

/*
InverseOperator returns the operator itself - overlap is symmetric.
*/
func (op *Overlap) InverseOperator() Operator {
	return op
}

/*
String returns the query form of the operator.
*/
func (op *Overlap) String() string {
	return "_o_"
}

/*
Inclusion is the "_i_" operator: the token range of the right-hand side
lies within the range of the left-hand side.
*/
type Inclusion struct {
	coverageOperator
}

/*
NewInclusion creates an inclusion operator.
*/
func NewInclusion(g *graph.Graph) (*Inclusion, error) {
	th, err := NewTokenHelper(g)
	if err != nil {
		return nil, err
	}
	return &Inclusion{coverageOperator{th}}, nil
}

/*
Filter checks if the right-hand side range lies within the left-hand side
range.
*/
func (op *Inclusion) Filter(lhs data.Match, rhs data.Match) bool {
	leftL, rightL, ok := op.th.LeftRightTokenFor(lhs.Node)
	if !ok {
		return false
	}

	leftR, rightR, ok := op.th.LeftRightTokenFor(rhs.Node)
	if !ok {
		return false
	}

	return op.th.PrecedesOrEqual(leftL, leftR) && op.th.PrecedesOrEqual(rightR, rightL)
}

/*
InverseOperator returns nil - checking "is included by" would have to
enumerate all larger ranges.
*/
func (op *Inclusion) InverseOperator() Operator {
	return nil
}

/*
String returns the query form of the operator.
*/
func (op *Inclusion) String() string {
	return "_i_"
}

/*
LeftAlignment is the "_l_" operator: both nodes start at the same token.
*/
type LeftAlignment struct {
	coverageOperator
}

/*
NewLeftAlignment creates a left alignment operator.
*/
func NewLeftAlignment(g *graph.Graph) (*LeftAlignment, error) {
	th, err := NewTokenHelper(g)
	if err != nil {
		return nil, err
	}
	return &LeftAlignment{coverageOperator{th}}, nil
}

/*
Retrieve returns all nodes starting at the same token as the left-hand
side match.
*/
func (op *LeftAlignment) Retrieve(lhs data.Match) graphstorage.NodeIterator {
	left, ok := op.th.LeftTokenFor(lhs.Node)
	if !ok {
		return emptyNodeIterator{}
	}
	return graphstorage.NewSliceIterator(op.th.NodesWithLeftToken(left))
}

/*
Filter checks if both matches start at the same token.
*/
func (op *LeftAlignment) Filter(lhs data.Match, rhs data.Match) bool {
	leftL, okL := op.th.LeftTokenFor(lhs.Node)
	leftR, okR := op.th.LeftTokenFor(rhs.Node)
	return okL && okR && leftL == leftR
}

/*
InverseOperator returns the operator itself - alignment is symmetric.
*/
func (op *LeftAlignment) InverseOperator() Operator {
	return op
}

/*
String returns the query form of the operator.
*/
func (op *LeftAlignment) String() string {
	return "_l_"
}

/*
RightAlignment is the "_r_" operator: both nodes end at the same token.
*/
type RightAlignment struct {
	coverageOperator
}

/*
NewRightAlignment creates a right alignment operator.
*/
func NewRightAlignment(g *graph.Graph) (*RightAlignment, error) {
	th, err := NewTokenHelper(g)
	if err != nil {
		return nil, err
	}
	return &RightAlignment{coverageOperator{th}}, nil
}

/*
Retrieve returns all nodes ending at the same token as the left-hand side
match.
*/
func (op *RightAlignment) Retrieve(lhs data.Match) graphstorage.NodeIterator {
	right, ok := op.th.RightTokenFor(lhs.Node)
	if !ok {
		return emptyNodeIterator{}
	}
	return graphstorage.NewSliceIterator(op.th.NodesWithRightToken(right))
}

/*
Filter checks if both matches end at the same token.
*/
func (op *RightAlignment) Filter(lhs data.Match, rhs data.Match) bool {
	rightL, okL := op.th.RightTokenFor(lhs.Node)
	rightR, okR := op.th.RightTokenFor(rhs.Node)
	return okL && okR && rightL == rightR
}

/*
InverseOperator returns the operator itself - alignment is symmetric.
*/
func (op *RightAlignment) InverseOperator() Operator {
	return op
}

/*
String returns the query form of the operator.
*/
func (op *RightAlignment) String() string {
	return "_r_"
}

/*
IdenticalCoverage is the "_=_" operator: both nodes cover exactly the same
token range.
*/
type IdenticalCoverage struct {
	coverageOperator
}

/*
NewIdenticalCoverage creates an identical coverage operator.
*/
func NewIdenticalCoverage(g *graph.Graph) (*IdenticalCoverage, error) {
	th, err := NewTokenHelper(g)
	if err != nil {
		return nil, err
	}
	return &IdenticalCoverage{coverageOperator{th}}, nil
}

/*
Retrieve returns all nodes starting at the same token as the left-hand
side match. The index join narrows the candidates with Filter.
*/
func (op *IdenticalCoverage) Retrieve(lhs data.Match) graphstorage.NodeIterator {
	left, ok := op.th.LeftTokenFor(lhs.Node)
	if !ok {
		return emptyNodeIterator{}
	}
	return graphstorage.NewSliceIterator(op.th.NodesWithLeftToken(left))
}

/*
Filter checks if both matches cover the same token range.
*/
func (op *IdenticalCoverage) Filter(lhs data.Match, rhs data.Match) bool {
	leftL, rightL, ok := op.th.LeftRightTokenFor(lhs.Node)
	if !ok {
		return false
	}

	leftR, rightR, ok := op.th.LeftRightTokenFor(rhs.Node)
	if !ok {
		return false
	}

	return leftL == leftR && rightL == rightR
}

/*
InverseOperator returns the operator itself - identical coverage is
symmetric.
*/
func (op *IdenticalCoverage) InverseOperator() Operator {
	return op
}

/*
String returns the query form of the operator.
*/
func (op *IdenticalCoverage) String() string {
	return "_=_"
}

/*
IdenticalNode joins two node searches on node identity.
*/
type IdenticalNode struct{}

/*
NewIdenticalNode creates an identical node operator.
*/
func NewIdenticalNode() *IdenticalNode {
	return &IdenticalNode{}
}

/*
Retrieve returns the left-hand side node itself.
*/
func (op *IdenticalNode) Retrieve(lhs data.Match) graphstorage.NodeIterator {
	return graphstorage.NewSliceIterator([]data.NodeID{lhs.Node})
}

/*
Filter checks node identity.
*/
func (op *IdenticalNode) Filter(lhs data.Match, rhs data.Match) bool {
	return lhs.Node == rhs.Node
}

/*
EstimationType returns how the operator output is estimated.
*/
func (op *IdenticalNode) EstimationType() EstimationType {
	return EstimationMin
}

/*
Selectivity is unused for min estimated operators.
*/
func (op *IdenticalNode) Selectivity() float64 {
	return 1
}

/*
InverseOperator returns the operator itself - identity is symmetric.
*/
func (op *IdenticalNode) InverseOperator() Operator {
	return op
}

/*
IsReflexive reports if the operator can hold between a node and itself.
*/
func (op *IdenticalNode) IsReflexive() bool {
	return true
}

/*
String returns the query form of the operator.
*/
func (op *IdenticalNode) String() string {
	return "_ident_"
}

/*
EqualValue is the "==" operator: the values of the matched annotations of
both sides are equal (or unequal in the negated form).
*/
type EqualValue struct {
	g       *graph.Graph
	rhs     *NodeSearchSpec
	negated bool
}

/*
NewEqualValue creates a value comparison operator. The right-hand side
spec provides the annotation key used for the index side lookup.
*/
func NewEqualValue(g *graph.Graph, rhs *NodeSearchSpec, negated bool) *EqualValue {
	return &EqualValue{g: g, rhs: rhs, negated: negated}
}

/*
matchValue returns the value of the annotation which produced a match.
*/
func (op *EqualValue) matchValue(m data.Match) (string, bool) {
	if m.Key == nil {
		return "", false
	}

	if m.Key == data.NodeTypeKey {

		// An any-node match compares by its token or node name value

		if val, ok := op.g.NodeAnnotations().Value(m.Node, *data.TokKey); ok {
			return val, true
		}
		return op.g.NodeAnnotations().Value(m.Node, *data.NodeNameKey)
	}

	return op.g.NodeAnnotations().Value(m.Node, *m.Key)
}

/*
Retrieve returns all nodes whose right-hand side annotation carries the
value of the left-hand side match.
*/
func (op *EqualValue) Retrieve(lhs data.Match) graphstorage.NodeIterator {
	if op.negated {
		return emptyNodeIterator{}
	}

	val, ok := op.matchValue(lhs)
	if !ok {
		return emptyNodeIterator{}
	}

	ns, name := op.rhs.searchKey()
	it := op.g.NodeAnnotations().ExactSearch(ns, name, annostorage.EqualValue(val))

	var res []data.NodeID
	for m, ok := it.Next(); ok; m, ok = it.Next() {
		res = append(res, m.Item)
	}

	return graphstorage.NewSliceIterator(res)
}

/*
Filter compares the annotation values of two matches.
*/
func (op *EqualValue) Filter(lhs data.Match, rhs data.Match) bool {
	valL, okL := op.matchValue(lhs)
	valR, okR := op.matchValue(rhs)

	if !okL || !okR {
		return false
	}

	if op.negated {
		return valL != valR
	}
	return valL == valR
}

/*
EstimationType returns how the operator output is estimated.
*/
func (op *EqualValue) EstimationType() EstimationType {
	return EstimationSelectivity
}

/*
Selectivity estimates the fraction of node pairs with equal values.
*/
func (op *EqualValue) Selectivity() float64 {
	if op.negated {
		return 1 - defaultSelectivity
	}
	return defaultSelectivity
}

/*
InverseOperator returns nil in the negated form - there is no index side
for inequality.
*/
func (op *EqualValue) InverseOperator() Operator {
	if op.negated {
		return nil
	}
	return op
}

/*
IsReflexive reports if the operator can hold between a node and itself.
*/
func (op *EqualValue) IsReflexive() bool {
	return !op.negated
}

/*
String returns the query form of the operator.
*/
func (op *EqualValue) String() string {
	if op.negated {
		return "!=="
	}
	return "=="
}
