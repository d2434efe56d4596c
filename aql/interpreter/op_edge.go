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
	"devt.de/krotik/annisdb/graph/data"
	"devt.de/krotik/annisdb/graph/graphstorage"
)

/*
EdgeOperator serves the operators which follow the edges of components
directly: dominance (">"), pointing ("->") and part-of ("@").
*/
type EdgeOperator struct {
	symbol   string
	name     string
	storages []graphstorage.Storage
	minDist  int
	maxDist  int
	inverse  bool
}

/*
NewDominance creates a dominance operator over all dominance components
with the given name.
*/
func NewDominance(g *graph.Graph, name string,
	minDist int, maxDist int) (*EdgeOperator, error) {

	return newEdgeOperator(g, ">", data.Dominance, name, minDist, maxDist)
}

/*
NewPointing creates a pointing operator over all pointing components with
the given name.
*/
func NewPointing(g *graph.Graph, name string,
	minDist int, maxDist int) (*EdgeOperator, error) {

	return newEdgeOperator(g, "->", data.Pointing, name, minDist, maxDist)
}

/*
NewPartOfSubcorpus creates a part-of operator over all part-of components.
*/
func NewPartOfSubcorpus(g *graph.Graph,
	minDist int, maxDist int) (*EdgeOperator, error) {

	return newEdgeOperator(g, "@", data.PartOf, "", minDist, maxDist)
}

/*
newEdgeOperator loads all components of a type and name and creates the
operator over them.
*/
func newEdgeOperator(g *graph.Graph, symbol string, ctype data.ComponentType,
	name string, minDist int, maxDist int) (*EdgeOperator, error) {

	var storages []graphstorage.Storage

	for _, c := range g.AllComponents(&ctype, &name) {
		st, err := g.Storage(c)
		if err != nil {
			return nil, err
		}
		storages = append(storages, st)
	}

	return &EdgeOperator{symbol: symbol, name: name, storages: storages,
		minDist: minDist, maxDist: maxDist}, nil
}

/*
EdgeComponents returns the components an edge operator of a graph would
load.
*/
func EdgeComponents(g *graph.Graph, ctype data.ComponentType, name string) []data.Component {
	return g.AllComponents(&ctype, &name)
}

/*
Retrieve returns all nodes reachable from the left-hand side match.
*/
func (op *EdgeOperator) Retrieve(lhs data.Match) graphstorage.NodeIterator {
	var iterators []graphstorage.NodeIterator

	for _, st := range op.storages {
		if op.inverse {
			iterators = append(iterators,
				st.FindConnectedInverse(lhs.Node, op.minDist, op.maxDist))
		} else {
			iterators = append(iterators,
				st.FindConnected(lhs.Node, op.minDist, op.maxDist))
		}
	}

	return newDedupIterator(iterators...)
}

/*
Filter checks the reachability between two matches.
*/
func (op *EdgeOperator) Filter(lhs data.Match, rhs data.Match) bool {
	source, target := lhs.Node, rhs.Node
	if op.inverse {
		source, target = target, source
	}

	for _, st := range op.storages {
		if st.IsConnected(source, target, op.minDist, op.maxDist) {
			return true
		}
	}

	return false
}

/*
EstimationType returns how the operator output is estimated.
*/
func (op *EdgeOperator) EstimationType() EstimationType {
	return EstimationSelectivity
}

/*
Selectivity estimates the fraction of connected node pairs. Multiple
components combine like a union.
*/
func (op *EdgeOperator) Selectivity() float64 {
	if len(op.storages) == 0 {
		return 0
	}

	sel := 0.0
	for _, st := range op.storages {
		sel += pathSelectivity(st.Statistics(), op.minDist, op.maxDist)
	}

	if sel > 1 {
		sel = 1
	}
	return sel
}

/*
InverseOperator returns the operator with sides swapped. The result is nil
when the inverse fan-out of a component makes the inverse direction too
expensive.
*/
func (op *EdgeOperator) InverseOperator() Operator {
	for _, st := range op.storages {
		if inverseTooExpensive(st.Statistics()) {
			return nil
		}
	}

	inv := *op
	inv.inverse = !op.inverse
	return &inv
}

/*
IsReflexive reports if the operator can hold between a node and itself.
*/
func (op *EdgeOperator) IsReflexive() bool {
	return false
}

/*
String returns the query form of the operator.
*/
func (op *EdgeOperator) String() string {
	return fmt.Sprintf("%s%s%s", op.symbol, op.name,
		rangeString(op.minDist, op.maxDist))
}
