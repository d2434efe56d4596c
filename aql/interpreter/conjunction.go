/*
 * AnnisDB
 *
 * Copyright 2016 Matthias Ladkau. All rights reserved.
 *
 * This Source Code Form is subject to the terms of the Mozilla Public
 * License, v. 2.0. If a copy of the MPL was not distributed with this
 * file, You can obtain one at http://mozilla.org/MPL/2.0/.
 */

/*
Package interpreter contains the normalized query model, the query planner
and the execution iterators of AQL.

A parsed query is normalized into a Disjunction of Conjunctions. Each
Conjunction holds the node searches of one alternative in source order plus
the binary operator entries between them. MakeExecPlan turns a Disjunction
into a pull based iterator tree: node search scans combined by index joins
and nested loops, ordered by a cost model which is fed from the component
and annotation statistics of the graph.
*/
package interpreter

import (
	"fmt"

	"devt.de/krotik/annisdb/graph"
	"devt.de/krotik/annisdb/graph/data"
)

/*
BinaryOperatorSpec describes a binary operator of a query before it is
bound to a graph.
*/
type BinaryOperatorSpec interface {

	/*
		NecessaryComponents returns the components the operator needs.
	*/
	NecessaryComponents(g *graph.Graph) []data.Component

	/*
		CreateOperator binds the operator to a graph.
	*/
	CreateOperator(g *graph.Graph, rhs *NodeSearchSpec) (Operator, error)

	/*
		String returns the query form of the operator.
	*/
	String() string
}

/*
OperatorEntry is one binary operator of a conjunction with the node
indexes of its operands.
*/
type OperatorEntry struct {
	Spec        BinaryOperatorSpec
	LeftIdx     int  // Index of the left operand node search
	RightIdx    int  // Index of the right operand node search
	Negated     bool // Operator is negated but both sides are bound
	NonExisting bool // Operator is a non-existence filter on the left side
}

/*
Conjunction is one alternative of a query: node searches in source order
plus the operator entries between them.
*/
type Conjunction struct {
	Nodes     []*NodeSearchSpec
	Operators []OperatorEntry
}

/*
NewConjunction creates an empty conjunction.
*/
func NewConjunction() *Conjunction {
	return &Conjunction{}
}

/*
AddNode appends a node search and returns its index.
*/
func (c *Conjunction) AddNode(spec *NodeSearchSpec) int {
	c.Nodes = append(c.Nodes, spec)
	return len(c.Nodes) - 1
}

/*
AddOperator appends a binary operator entry.
*/
func (c *Conjunction) AddOperator(spec BinaryOperatorSpec, leftIdx int,
	rightIdx int, negated bool) {

	c.Operators = append(c.Operators, OperatorEntry{Spec: spec,
		LeftIdx: leftIdx, RightIdx: rightIdx, Negated: negated})
}

/*
String returns the query form of the conjunction.
*/
func (c *Conjunction) String() string {
	res := ""

	for i, n := range c.Nodes {
		if i > 0 {
			res += " & "
		}
		res += n.String()
	}

	for _, e := range c.Operators {
		res += fmt.Sprintf(" & #%d %s #%d", e.LeftIdx+1, e.Spec, e.RightIdx+1)
	}

	return res
}

/*
Disjunction is a normalized query: a list of alternatives whose results
are combined and deduplicated.
*/
type Disjunction struct {
	Alternatives []*Conjunction
}

/*
NewDisjunction creates a disjunction from a list of alternatives.
*/
func NewDisjunction(alternatives ...*Conjunction) *Disjunction {
	return &Disjunction{Alternatives: alternatives}
}

// Operator specs
// ==============

/*
PrecedenceSpec describes a "." operator.
*/
type PrecedenceSpec struct {
	Segmentation string
	MinDist      int
	MaxDist      int
}

/*
NecessaryComponents returns the components the operator needs.
*/
func (s *PrecedenceSpec) NecessaryComponents(g *graph.Graph) []data.Component {
	res := TokenHelperComponents(g)

	c := data.Component{CType: data.Ordering, Layer: data.AnnisNamespace,
		Name: s.Segmentation}
	if g.HasComponent(c) {
		res = append(res, c)
	}

	return res
}

/*
CreateOperator binds the operator to a graph.
*/
func (s *PrecedenceSpec) CreateOperator(g *graph.Graph, rhs *NodeSearchSpec) (Operator, error) {
	return NewPrecedence(g, s.Segmentation, s.MinDist, s.MaxDist)
}

/*
String returns the query form of the operator.
*/
func (s *PrecedenceSpec) String() string {
	return "." + rangeString(s.MinDist, s.MaxDist)
}

/*
NearSpec describes a "^" operator.
*/
type NearSpec struct {
	Segmentation string
	MinDist      int
	MaxDist      int
}

/*
NecessaryComponents returns the components the operator needs.
*/
func (s *NearSpec) NecessaryComponents(g *graph.Graph) []data.Component {
	p := PrecedenceSpec{Segmentation: s.Segmentation}
	return p.NecessaryComponents(g)
}

/*
CreateOperator binds the operator to a graph.
*/
func (s *NearSpec) CreateOperator(g *graph.Graph, rhs *NodeSearchSpec) (Operator, error) {
	return NewNear(g, s.Segmentation, s.MinDist, s.MaxDist)
}

/*
String returns the query form of the operator.
*/
func (s *NearSpec) String() string {
	return "^" + rangeString(s.MinDist, s.MaxDist)
}

/*
DominanceSpec describes a ">" operator.
*/
type DominanceSpec struct {
	Name    string
	MinDist int
	MaxDist int
}

/*
NecessaryComponents returns the components the operator needs.
*/
func (s *DominanceSpec) NecessaryComponents(g *graph.Graph) []data.Component {
	return EdgeComponents(g, data.Dominance, s.Name)
}

/*
CreateOperator binds the operator to a graph.
*/
func (s *DominanceSpec) CreateOperator(g *graph.Graph, rhs *NodeSearchSpec) (Operator, error) {
	return NewDominance(g, s.Name, s.MinDist, s.MaxDist)
}

/*
String returns the query form of the operator.
*/
func (s *DominanceSpec) String() string {
	return ">" + s.Name + rangeString(s.MinDist, s.MaxDist)
}

/*
PointingSpec describes a "->" operator.
*/
type PointingSpec struct {
	Name    string
	MinDist int
	MaxDist int
}

/*
NecessaryComponents returns the components the operator needs.
*/
func (s *PointingSpec) NecessaryComponents(g *graph.Graph) []data.Component {
	return EdgeComponents(g, data.Pointing, s.Name)
}

/*
CreateOperator binds the operator to a graph.
*/
func (s *PointingSpec) CreateOperator(g *graph.Graph, rhs *NodeSearchSpec) (Operator, error) {
	return NewPointing(g, s.Name, s.MinDist, s.MaxDist)
}

/*
String returns the query form of the operator.
*/
func (s *PointingSpec) String() string {
	return "->" + s.Name + rangeString(s.MinDist, s.MaxDist)
}

/*
PartOfSpec describes an "@" operator.
*/
type PartOfSpec struct {
	MinDist int
	MaxDist int
}

/*
NecessaryComponents returns the components the operator needs.
*/
func (s *PartOfSpec) NecessaryComponents(g *graph.Graph) []data.Component {
	return EdgeComponents(g, data.PartOf, "")
}

/*
CreateOperator binds the operator to a graph.
*/
func (s *PartOfSpec) CreateOperator(g *graph.Graph, rhs *NodeSearchSpec) (Operator, error) {
	return NewPartOfSubcorpus(g, s.MinDist, s.MaxDist)
}

/*
String returns the query form of the operator.
*/
func (s *PartOfSpec) String() string {
	return "@" + rangeString(s.MinDist, s.MaxDist)
}

/*
coverageSpec is the shared base of all operator specs which need the token
helper components.
*/
type coverageSpec struct{}

/*
NecessaryComponents returns the components the operator needs.
*/
func (s coverageSpec) NecessaryComponents(g *graph.Graph) []data.Component {
	return TokenHelperComponents(g)
}

/*
OverlapSpec describes an "_o_" operator.
*/
type OverlapSpec struct{ coverageSpec }

/*
CreateOperator binds the operator to a graph.
*/
func (s *OverlapSpec) CreateOperator(g *graph.Graph, rhs *NodeSearchSpec) (Operator, error) {
	return NewOverlap(g)
}

/*
String returns the query form of the operator.
*/
func (s *OverlapSpec) String() string {
	return "_o_"
}

/*
InclusionSpec describes an "_i_" operator.
*/
type InclusionSpec struct{ coverageSpec }

/*
CreateOperator binds the operator to a graph.
*/
func (s *InclusionSpec) CreateOperator(g *graph.Graph, rhs *NodeSearchSpec) (Operator, error) {
	return NewInclusion(g)
}

/*
String returns the query form of the operator.
*/
func (s *InclusionSpec) String() string {
	return "_i_"
}

/*
LeftAlignSpec describes an "_l_" operator.
*/
type LeftAlignSpec struct{ coverageSpec }

/*
CreateOperator binds the operator to a graph.
*/
func (s *LeftAlignSpec) CreateOperator(g *graph.Graph, rhs *NodeSearchSpec) (Operator, error) {
	return NewLeftAlignment(g)
}

/*
String returns the query form of the operator.
*/
func (s *LeftAlignSpec) String() string {
	return "_l_"
}

/*
RightAlignSpec describes an "_r_" operator.
*/
type RightAlignSpec struct{ coverageSpec }

/*
CreateOperator binds the operator to a graph.
*/
func (s *RightAlignSpec) CreateOperator(g *graph.Graph, rhs *NodeSearchSpec) (Operator, error) {
	return NewRightAlignment(g)
}

/*
String returns the query form of the operator.
*/
func (s *RightAlignSpec) String() string {
	return "_r_"
}

/*
IdenticalCoverageSpec describes an "_=_" operator.
*/
type IdenticalCoverageSpec struct{ coverageSpec }

/*
CreateOperator binds the operator to a graph.
*/
func (s *IdenticalCoverageSpec) CreateOperator(g *graph.Graph, rhs *NodeSearchSpec) (Operator, error) {
	return NewIdenticalCoverage(g)
}

/*
String returns the query form of the operator.
*/
func (s *IdenticalCoverageSpec) String() string {
	return "_=_"
}

/*
IdenticalNodeSpec joins two node searches on node identity.
*/
type IdenticalNodeSpec struct{}

/*
NecessaryComponents returns the components the operator needs.
*/
func (s *IdenticalNodeSpec) NecessaryComponents(g *graph.Graph) []data.Component {
	return nil
}

/*
CreateOperator binds the operator to a graph.
*/
func (s *IdenticalNodeSpec) CreateOperator(g *graph.Graph, rhs *NodeSearchSpec) (Operator, error) {
	return NewIdenticalNode(), nil
}

/*
String returns the query form of the operator.
*/
func (s *IdenticalNodeSpec) String() string {
	return "_ident_"
}

/*
EqualValueSpec describes an "==" operator.
*/
type EqualValueSpec struct {
	Negated bool
}

/*
NecessaryComponents returns the components the operator needs.
*/
func (s *EqualValueSpec) NecessaryComponents(g *graph.Graph) []data.Component {
	return nil
}

/*
CreateOperator binds the operator to a graph.
*/
func (s *EqualValueSpec) CreateOperator(g *graph.Graph, rhs *NodeSearchSpec) (Operator, error) {
	return NewEqualValue(g, rhs, s.Negated), nil
}

/*
String returns the query form of the operator.
*/
func (s *EqualValueSpec) String() string {
	if s.Negated {
		return "!=="
	}
	return "=="
}
