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
	"devt.de/krotik/annisdb/graph/util"
)

/*
Precedence is the "." operator: the right-hand side starts between minDist
and maxDist ordering steps after the left-hand side ends.
*/
type Precedence struct {
	th       *TokenHelper
	ordering graphstorage.Storage
	seg      string
	minDist  int
	maxDist  int
	inverse  bool
}

/*
NewPrecedence creates a precedence operator. An empty segmentation uses the
default token ordering.
*/
func NewPrecedence(g *graph.Graph, segmentation string,
	minDist int, maxDist int) (*Precedence, error) {

	th, err := NewTokenHelper(g)
	if err != nil {
		return nil, err
	}

	c := data.Component{CType: data.Ordering, Layer: data.AnnisNamespace,
		Name: segmentation}

	if !g.HasComponent(c) {
		return nil, &util.GraphError{Type: util.ErrMissingComponent, Detail: c.String()}
	}

	ordering, err := g.Storage(c)
	if err != nil {
		return nil, err
	}

	return &Precedence{th: th, ordering: ordering, seg: segmentation,
		minDist: minDist, maxDist: maxDist}, nil
}

/*
Retrieve returns all nodes which start in the precedence range after the
end of the left-hand side match.
*/
func (op *Precedence) Retrieve(lhs data.Match) graphstorage.NodeIterator {
	if op.inverse {
		start, ok := op.th.LeftTokenFor(lhs.Node)
		if !ok {
			return emptyNodeIterator{}
		}

		tokens := op.ordering.FindConnectedInverse(start, op.minDist, op.maxDist)
		return newAlignedExpandIterator(tokens, op.th.right)
	}

	end, ok := op.th.RightTokenFor(lhs.Node)
	if !ok {
		return emptyNodeIterator{}
	}

	tokens := op.ordering.FindConnected(end, op.minDist, op.maxDist)
	return newAlignedExpandIterator(tokens, op.th.left)
}

/*
Filter checks the precedence relation between two matches.
*/
func (op *Precedence) Filter(lhs data.Match, rhs data.Match) bool {
	left, right := lhs, rhs
	if op.inverse {
		left, right = rhs, lhs
	}

	end, ok := op.th.RightTokenFor(left.Node)
	if !ok {
		return false
	}

	start, ok := op.th.LeftTokenFor(right.Node)
	if !ok {
		return false
	}

	if op.minDist == 0 && end == start {
		return true
	}

	return op.ordering.IsConnected(end, start, op.minDist, op.maxDist)
}

/*
EstimationType returns how the operator output is estimated.
*/
func (op *Precedence) EstimationType() EstimationType {
	return EstimationSelectivity
}

/*
Selectivity estimates the fraction of node pairs in precedence relation.
*/
func (op *Precedence) Selectivity() float64 {
	return pathSelectivity(op.ordering.Statistics(), op.minDist, op.maxDist)
}

/*
InverseOperator returns the precedence operator with sides swapped.
*/
func (op *Precedence) InverseOperator() Operator {
	inv := *op
	inv.inverse = !op.inverse
	return &inv
}

/*
IsReflexive reports if the operator can hold between a node and itself.
*/
func (op *Precedence) IsReflexive() bool {
	return false
}

/*
String returns the query form of the operator.
*/
func (op *Precedence) String() string {
	return fmt.Sprintf(".%s", rangeString(op.minDist, op.maxDist))
}

/*
Near is the "^" operator: precedence in either direction.
*/
type Near struct {
	forward *Precedence
}

/*
NewNear creates a near operator.
*/
func NewNear(g *graph.Graph, segmentation string,
	minDist int, maxDist int) (*Near, error) {

	forward, err := NewPrecedence(g, segmentation, minDist, maxDist)
	if err != nil {
		return nil, err
	}

	return &Near{forward: forward}, nil
}

/*
Retrieve returns all nodes in the near range of the left-hand side match.
*/
func (op *Near) Retrieve(lhs data.Match) graphstorage.NodeIterator {
	return newDedupIterator(op.forward.Retrieve(lhs),
		op.forward.InverseOperator().Retrieve(lhs))
}

/*
Filter checks the near relation between two matches.
*/
func (op *Near) Filter(lhs data.Match, rhs data.Match) bool {
	return op.forward.Filter(lhs, rhs) || op.forward.Filter(rhs, lhs)
}

/*
EstimationType returns how the operator output is estimated.
*/
func (op *Near) EstimationType() EstimationType {
	return EstimationSelectivity
}

/*
Selectivity estimates the fraction of node pairs in near relation.
*/
func (op *Near) Selectivity() float64 {
	sel := 2 * op.forward.Selectivity()
	if sel > 1 {
		sel = 1
	}
	return sel
}

/*
InverseOperator returns the operator itself - near is symmetric.
*/
func (op *Near) InverseOperator() Operator {
	return op
}

/*
IsReflexive reports if the operator can hold between a node and itself.
*/
func (op *Near) IsReflexive() bool {
	return false
}

/*
String returns the query form of the operator.
*/
func (op *Near) String() string {
	return fmt.Sprintf("^%s", rangeString(op.forward.minDist, op.forward.maxDist))
}

/*
rangeString renders a distance range in query form.
*/
func rangeString(minDist int, maxDist int) string {
	if minDist == 1 && maxDist == 1 {
		return ""
	}
	if maxDist == graphstorage.Unbounded {
		return "*"
	}
	if minDist == maxDist {
		return fmt.Sprint(minDist)
	}
	return fmt.Sprintf("%d,%d", minDist, maxDist)
}
