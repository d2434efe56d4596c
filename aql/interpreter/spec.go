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

	"devt.de/krotik/annisdb/graph"
	"devt.de/krotik/annisdb/graph/annostorage"
	"devt.de/krotik/annisdb/graph/data"
	"devt.de/krotik/annisdb/graph/graphstorage"
)

/*
ValueConstraint describes how a value constrains a node search.
*/
type ValueConstraint int

/*
All value constraints of a node search.
*/
const (
	ConstraintAny      ValueConstraint = iota // Any value matches
	ConstraintEqual                           // Only the given exact value matches
	ConstraintNotEqual                        // Everything but the given exact value matches
	ConstraintRegex                           // Values matching the pattern match
	ConstraintNotRegex                        // Values not matching the pattern match
)

/*
NodeSearchSpec describes a single node search of a query. A node search is
either an any-node search, a token search with an optional value constraint
or an annotation search with an optional namespace and value constraint.
*/
type NodeSearchSpec struct {
	AnyNode    bool            // Match any annotation node
	IsToken    bool            // Match token nodes
	NS         string          // Namespace of an annotation search
	HasNS      bool            // Namespace was given explicitly
	Name       string          // Name of an annotation search
	Constraint ValueConstraint // Value constraint
	Value      string          // Value or pattern of the constraint
	Optional   bool            // Node may be missing from a result tuple
	Hidden     bool            // Node is left out of the result tuple
}

/*
NewAnyNodeSpec creates a node search matching every annotation node.
*/
func NewAnyNodeSpec() *NodeSearchSpec {
	return &NodeSearchSpec{AnyNode: true}
}

/*
NewTokenSpec creates a token search with an optional value constraint.
*/
func NewTokenSpec(constraint ValueConstraint, value string) *NodeSearchSpec {
	s := &NodeSearchSpec{IsToken: true, Constraint: constraint, Value: value}
	s.specialize()
	return s
}

/*
NewAnnoSpec creates an annotation search. An empty namespace with hasNS
false matches the name in every namespace.
*/
func NewAnnoSpec(ns string, hasNS bool, name string,
	constraint ValueConstraint, value string) *NodeSearchSpec {

	s := &NodeSearchSpec{NS: ns, HasNS: hasNS, Name: name,
		Constraint: constraint, Value: value}
	s.specialize()
	return s
}

/*
specialize rewrites regex constraints whose pattern is a plain literal into
exact searches which can use the inverse value index directly.
*/
func (s *NodeSearchSpec) specialize() {
	if s.Constraint != ConstraintRegex && s.Constraint != ConstraintNotRegex {
		return
	}

	if literal, ok := annostorage.RegexLiteral(s.Value); ok {
		s.Value = literal
		if s.Constraint == ConstraintRegex {
			s.Constraint = ConstraintEqual
		} else {
			s.Constraint = ConstraintNotEqual
		}
	}
}

/*
String returns the query form of the node search.
*/
func (s *NodeSearchSpec) String() string {
	var base string

	if s.AnyNode {
		return "node"
	}

	if s.IsToken {
		base = "tok"
	} else if s.HasNS {
		base = fmt.Sprintf("%s:%s", s.NS, s.Name)
	} else {
		base = s.Name
	}

	switch s.Constraint {
	case ConstraintEqual:
		return fmt.Sprintf("%s=%q", base, s.Value)
	case ConstraintNotEqual:
		return fmt.Sprintf("%s!=%q", base, s.Value)
	case ConstraintRegex:
		return fmt.Sprintf("%s=/%s/", base, s.Value)
	case ConstraintNotRegex:
		return fmt.Sprintf("%s!=/%s/", base, s.Value)
	}

	return base
}

/*
searchKey returns the annotation namespace pointer and name of the search.
*/
func (s *NodeSearchSpec) searchKey() (*string, string) {
	if s.AnyNode {
		ns := data.AnnisNamespace
		return &ns, data.NodeTypeAttr
	}

	if s.IsToken {
		ns := data.AnnisNamespace
		return &ns, data.TokAttr
	}

	if s.HasNS {
		ns := s.NS
		return &ns, s.Name
	}

	return nil, s.Name
}

/*
Search returns all nodes matching this node search. A token search only
returns base tokens: segmentation nodes and spans carry spanned text as
well but cover other nodes.
*/
func (s *NodeSearchSpec) Search(g *graph.Graph) (annostorage.MatchIterator[data.NodeID], error) {
	annos := g.NodeAnnotations()
	ns, name := s.searchKey()

	if s.AnyNode {
		return annos.ExactSearch(ns, name,
			annostorage.EqualValue(data.NodeTypeNode)), nil
	}

	var it annostorage.MatchIterator[data.NodeID]
	var err error

	switch s.Constraint {

	case ConstraintEqual:
		it = annos.ExactSearch(ns, name, annostorage.EqualValue(s.Value))

	case ConstraintNotEqual:
		it = annos.ExactSearch(ns, name, annostorage.NotEqualValue(s.Value))

	case ConstraintRegex:
		it, err = annos.RegexSearch(ns, name, s.Value, false)

	case ConstraintNotRegex:
		it, err = annos.RegexSearch(ns, name, s.Value, true)

	default:
		it = annos.ExactSearch(ns, name, annostorage.AnyValue())
	}

	if err != nil {
		return nil, err
	}

	if s.IsToken {
		coverage, err := coverageStorages(g)
		if err != nil {
			return nil, err
		}
		if len(coverage) > 0 {
			it = &leafTokenIterator{it: it, coverage: coverage}
		}
	}

	return it, nil
}

/*
coverageStorages returns the storages of all coverage components.
*/
func coverageStorages(g *graph.Graph) ([]graphstorage.Storage, error) {
	ctype := data.Coverage
	var res []graphstorage.Storage

	for _, c := range g.AllComponents(&ctype, nil) {
		st, err := g.Storage(c)
		if err != nil {
			return nil, err
		}
		res = append(res, st)
	}

	return res, nil
}

/*
leafTokenIterator filters the carriers of a tok annotation down to base
tokens: nodes without an outgoing coverage edge.
*/
type leafTokenIterator struct {
	it       annostorage.MatchIterator[data.NodeID]
	coverage []graphstorage.Storage
}

/*
Next returns the next base token match.
*/
func (l *leafTokenIterator) Next() (annostorage.ItemMatch[data.NodeID], bool) {
	for {
		m, ok := l.it.Next()
		if !ok {
			return m, false
		}
		if isLeafNode(l.coverage, m.Item) {
			return m, true
		}
	}
}

/*
Err returns the first error which occurred during iteration.
*/
func (l *leafTokenIterator) Err() error {
	return l.it.Err()
}

/*
isLeafNode checks that a node covers no other node.
*/
func isLeafNode(coverage []graphstorage.Storage, node data.NodeID) bool {
	for _, cov := range coverage {
		if _, ok := cov.OutgoingEdges(node).Next(); ok {
			return false
		}
	}
	return true
}

/*
Estimate returns an upper bound for the number of nodes matching this node
search.
*/
func (s *NodeSearchSpec) Estimate(g *graph.Graph) int {
	annos := g.NodeAnnotations()
	ns, name := s.searchKey()

	if s.AnyNode {
		return annos.GuessMaxCount(ns, name, data.NodeTypeNode, data.NodeTypeNode)
	}

	total := annos.CountForName(ns, name)

	switch s.Constraint {

	case ConstraintEqual:
		return annos.GuessMaxCount(ns, name, s.Value, s.Value)

	case ConstraintNotEqual:
		matching := annos.GuessMaxCount(ns, name, s.Value, s.Value)
		if matching > total {
			return 0
		}
		return total - matching

	case ConstraintRegex:
		return annos.GuessMaxCountRegex(ns, name, s.Value)

	case ConstraintNotRegex:
		matching := annos.GuessMaxCountRegex(ns, name, s.Value)
		if matching > total {
			return 0
		}
		return total - matching
	}

	return total
}

/*
Matches checks if a single node satisfies this node search and returns the
match with the annotation key which matched.
*/
func (s *NodeSearchSpec) Matches(g *graph.Graph, node data.NodeID) (data.Match, bool) {
	annos := g.NodeAnnotations()

	if s.AnyNode {
		if val, ok := annos.Value(node, *data.NodeTypeKey); ok && val == data.NodeTypeNode {
			return data.Match{Node: node, Key: data.NodeTypeKey}, true
		}
		return data.Match{}, false
	}

	if s.IsToken {
		coverage, err := coverageStorages(g)
		if err != nil || !isLeafNode(coverage, node) {
			return data.Match{}, false
		}
	}

	ns, name := s.searchKey()

	for _, key := range annos.KeysForItem(node, ns, &name) {
		val, ok := annos.Value(node, *key)
		if !ok {
			continue
		}

		if s.valueMatches(val) {
			return data.Match{Node: node, Key: key}, true
		}
	}

	return data.Match{}, false
}

/*
valueMatches checks a single annotation value against the constraint.
*/
func (s *NodeSearchSpec) valueMatches(val string) bool {
	switch s.Constraint {

	case ConstraintEqual:
		return val == s.Value

	case ConstraintNotEqual:
		return val != s.Value

	case ConstraintRegex, ConstraintNotRegex:
		re, err := annostorage.CompileRegex(s.Value)
		if err != nil {
			return false
		}
		if s.Constraint == ConstraintRegex {
			return re.MatchString(val)
		}
		return !re.MatchString(val)
	}

	return true
}
