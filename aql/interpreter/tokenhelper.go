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
	"devt.de/krotik/annisdb/graph/data"
	"devt.de/krotik/annisdb/graph/graphstorage"
)

/*
TokenHelper bundles the component storages which are needed to map arbitrary
nodes to the tokens they cover. All coverage based operators share one
instance per executed plan.
*/
type TokenHelper struct {
	g        *graph.Graph
	coverage []graphstorage.Storage
	inverse  graphstorage.Storage
	left     graphstorage.Storage
	right    graphstorage.Storage
	ordering graphstorage.Storage
}

/*
NewTokenHelper creates a token helper for a graph. Derived components which
do not exist in the graph stay nil and the corresponding lookups report no
result.
*/
func NewTokenHelper(g *graph.Graph) (*TokenHelper, error) {
	th := &TokenHelper{g: g}

	ctype := data.Coverage
	for _, c := range g.AllComponents(&ctype, nil) {
		st, err := g.Storage(c)
		if err != nil {
			return nil, err
		}
		th.coverage = append(th.coverage, st)
	}

	var err error

	if th.inverse, err = optionalStorage(g, data.InvertedCoverageComponent); err != nil {
		return nil, err
	}
	if th.left, err = optionalStorage(g, data.LeftTokenComponent); err != nil {
		return nil, err
	}
	if th.right, err = optionalStorage(g, data.RightTokenComponent); err != nil {
		return nil, err
	}
	if th.ordering, err = optionalStorage(g, data.DefaultOrderingComponent); err != nil {
		return nil, err
	}

	return th, nil
}

/*
optionalStorage loads a component if it is registered.
*/
func optionalStorage(g *graph.Graph, c data.Component) (graphstorage.Storage, error) {
	if !g.HasComponent(c) {
		return nil, nil
	}
	return g.Storage(c)
}

/*
TokenHelperComponents returns the components a token helper of a graph would
load.
*/
func TokenHelperComponents(g *graph.Graph) []data.Component {
	var res []data.Component

	ctype := data.Coverage
	res = append(res, g.AllComponents(&ctype, nil)...)

	for _, c := range []data.Component{data.InvertedCoverageComponent,
		data.LeftTokenComponent, data.RightTokenComponent,
		data.DefaultOrderingComponent} {

		if g.HasComponent(c) {
			res = append(res, c)
		}
	}

	return res
}

/*
IsToken checks if a node is a base token: it carries a tok annotation and
covers no other node.
*/
func (th *TokenHelper) IsToken(node data.NodeID) bool {
	if _, ok := th.g.NodeAnnotations().Value(node, *data.TokKey); !ok {
		return false
	}

	for _, cov := range th.coverage {
		if _, ok := cov.OutgoingEdges(node).Next(); ok {
			return false
		}
	}

	return true
}

/*
LeftTokenFor returns the leftmost token covered by a node. A token maps to
itself.
*/
func (th *TokenHelper) LeftTokenFor(node data.NodeID) (data.NodeID, bool) {
	if th.IsToken(node) {
		return node, true
	}
	if th.left == nil {
		return 0, false
	}
	return th.left.OutgoingEdges(node).Next()
}

/*
RightTokenFor returns the rightmost token covered by a node. A token maps to
itself.
*/
func (th *TokenHelper) RightTokenFor(node data.NodeID) (data.NodeID, bool) {
	if th.IsToken(node) {
		return node, true
	}
	if th.right == nil {
		return 0, false
	}
	return th.right.OutgoingEdges(node).Next()
}

/*
LeftRightTokenFor returns the leftmost and rightmost token covered by a
node.
*/
func (th *TokenHelper) LeftRightTokenFor(node data.NodeID) (data.NodeID, data.NodeID, bool) {
	left, ok := th.LeftTokenFor(node)
	if !ok {
		return 0, 0, false
	}

	right, ok := th.RightTokenFor(node)
	if !ok {
		return 0, 0, false
	}

	return left, right, true
}

/*
CoveredTokens returns the tokens covered by a node. A token covers itself.
*/
func (th *TokenHelper) CoveredTokens(node data.NodeID) []data.NodeID {
	if th.IsToken(node) {
		return []data.NodeID{node}
	}

	var res []data.NodeID
	seen := make(map[data.NodeID]bool)

	for _, cov := range th.coverage {
		it := cov.OutgoingEdges(node)
		for t, ok := it.Next(); ok; t, ok = it.Next() {
			if !seen[t] {
				seen[t] = true
				res = append(res, t)
			}
		}
	}

	return res
}

/*
CoveredTokenCount returns the number of tokens covered by a node.
*/
func (th *TokenHelper) CoveredTokenCount(node data.NodeID) int {
	return len(th.CoveredTokens(node))
}

/*
CoveringNodes returns the nodes covering a token including the token
itself.
*/
func (th *TokenHelper) CoveringNodes(token data.NodeID) []data.NodeID {
	res := []data.NodeID{token}
	seen := map[data.NodeID]bool{token: true}

	if th.inverse != nil {
		it := th.inverse.OutgoingEdges(token)
		for n, ok := it.Next(); ok; n, ok = it.Next() {
			if !seen[n] {
				seen[n] = true
				res = append(res, n)
			}
		}
	}

	return res
}

/*
Precedes checks if token a is strictly before token b in the default token
order.
*/
func (th *TokenHelper) Precedes(a data.NodeID, b data.NodeID) bool {
	if th.ordering == nil {
		return false
	}
	return th.ordering.IsConnected(a, b, 1, graphstorage.Unbounded)
}

/*
PrecedesOrEqual checks if token a is at or before the position of token b.
*/
func (th *TokenHelper) PrecedesOrEqual(a data.NodeID, b data.NodeID) bool {
	return a == b || th.Precedes(a, b)
}

/*
NodesWithLeftToken returns all nodes whose leftmost token is the given
token, including the token itself.
*/
func (th *TokenHelper) NodesWithLeftToken(token data.NodeID) []data.NodeID {
	return th.alignedNodes(th.left, token)
}

/*
NodesWithRightToken returns all nodes whose rightmost token is the given
token, including the token itself.
*/
func (th *TokenHelper) NodesWithRightToken(token data.NodeID) []data.NodeID {
	return th.alignedNodes(th.right, token)
}

/*
alignedNodes collects the token and the ingoing edges of an alignment
component.
*/
func (th *TokenHelper) alignedNodes(alignment graphstorage.Storage,
	token data.NodeID) []data.NodeID {

	res := []data.NodeID{token}

	if alignment != nil {
		it := alignment.IngoingEdges(token)
		for n, ok := it.Next(); ok; n, ok = it.Next() {
			res = append(res, n)
		}
	}

	return res
}
