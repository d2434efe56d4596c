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
	"devt.de/krotik/annisdb/graph/data"
	"devt.de/krotik/annisdb/graph/graphstorage"
)

/*
EstimationType describes how the output of a binary operator is estimated.
*/
type EstimationType int

/*
All estimation types.
*/
const (
	EstimationSelectivity EstimationType = iota // Output = selectivity * lhs * rhs
	EstimationMin                               // Output = min(lhs, rhs)
)

/*
Operator is the contract of all binary query operators. Retrieve serves the
index side of an index join: it returns candidate right-hand side nodes for
a left-hand side match. Filter decides if a concrete pair of matches is
connected by the operator.
*/
type Operator interface {

	/*
		Retrieve returns candidate right-hand side nodes for a left-hand
		side match.
	*/
	Retrieve(lhs data.Match) graphstorage.NodeIterator

	/*
		Filter checks if the operator holds between two matches.
	*/
	Filter(lhs data.Match, rhs data.Match) bool

	/*
		EstimationType returns how the operator output is estimated.
	*/
	EstimationType() EstimationType

	/*
		Selectivity returns the estimated fraction of all node pairs which
		are connected by the operator.
	*/
	Selectivity() float64

	/*
		InverseOperator returns the operator with sides swapped. The result
		is nil if the inverse direction is too expensive to serve.
	*/
	InverseOperator() Operator

	/*
		IsReflexive reports if the operator can hold between a node and
		itself.
	*/
	IsReflexive() bool

	/*
		String returns the query form of the operator.
	*/
	String() string
}

/*
maxInverseFanOut is the largest inverse fan-out 99 percentile for which an
inverse operator is still offered to the planner.
*/
const maxInverseFanOut = 10

/*
defaultSelectivity is used when no statistics exist for a component.
*/
const defaultSelectivity = 0.01

/*
pathSelectivity estimates the fraction of node pairs of a component which
are connected over a path with a length in [minDist, maxDist]. The estimate
assumes the average fan-out at every level.
*/
func pathSelectivity(stats *graphstorage.GraphStatistic, minDist int, maxDist int) float64 {
	if stats == nil || stats.Nodes == 0 {
		return defaultSelectivity
	}

	max := maxDist
	if max == graphstorage.Unbounded || (stats.MaxDepth > 0 && max > stats.MaxDepth) {
		max = stats.MaxDepth
	}
	if max < minDist {
		max = minDist
	}

	reachable := 0.0
	level := 1.0

	for d := 1; d <= max; d++ {
		level *= stats.AvgFanOut
		if d >= minDist {
			reachable += level
		}
	}

	if reachable < 1 {
		reachable = 1
	}

	sel := reachable / float64(stats.Nodes)
	if sel > 1 {
		sel = 1
	}

	return sel
}

/*
inverseTooExpensive checks if the inverse direction of a component is too
expensive to serve an index join.
*/
func inverseTooExpensive(stats *graphstorage.GraphStatistic) bool {
	return stats != nil && stats.InverseFanOut99Percentile > maxInverseFanOut
}

// Iterator helpers
// ================

/*
emptyNodeIterator is a NodeIterator without any entries.
*/
type emptyNodeIterator struct{}

func (it emptyNodeIterator) Next() (data.NodeID, bool) {
	return 0, false
}

/*
dedupIterator drains a list of iterators and returns every node once.
*/
type dedupIterator struct {
	iterators []graphstorage.NodeIterator
	pos       int
	seen      map[data.NodeID]bool
}

func (it *dedupIterator) Next() (data.NodeID, bool) {
	for it.pos < len(it.iterators) {
		n, ok := it.iterators[it.pos].Next()

		if !ok {
			it.pos++
			continue
		}

		if it.seen[n] {
			continue
		}

		it.seen[n] = true
		return n, true
	}

	return 0, false
}

/*
newDedupIterator chains iterators and removes duplicates.
*/
func newDedupIterator(iterators ...graphstorage.NodeIterator) graphstorage.NodeIterator {
	return &dedupIterator{iterators: iterators, seen: make(map[data.NodeID]bool)}
}

/*
alignedExpandIterator expands an iterator of tokens to all nodes aligned
with each token over an alignment component (the token itself plus the
ingoing edges of the alignment).
*/
type alignedExpandIterator struct {
	tokens    graphstorage.NodeIterator
	alignment graphstorage.Storage
	pending   graphstorage.NodeIterator
	token     data.NodeID
	tokenOK   bool
	seen      map[data.NodeID]bool
}

func (it *alignedExpandIterator) Next() (data.NodeID, bool) {
	for {
		if it.tokenOK {
			it.tokenOK = false
			if !it.seen[it.token] {
				it.seen[it.token] = true
				return it.token, true
			}
		}

		if it.pending != nil {
			if n, ok := it.pending.Next(); ok {
				if it.seen[n] {
					continue
				}
				it.seen[n] = true
				return n, true
			}
			it.pending = nil
		}

		t, ok := it.tokens.Next()
		if !ok {
			return 0, false
		}

		it.token = t
		it.tokenOK = true

		if it.alignment != nil {
			it.pending = it.alignment.IngoingEdges(t)
		}
	}
}

/*
newAlignedExpandIterator creates an iterator of all nodes aligned with the
given tokens.
*/
func newAlignedExpandIterator(tokens graphstorage.NodeIterator,
	alignment graphstorage.Storage) graphstorage.NodeIterator {

	return &alignedExpandIterator{tokens: tokens, alignment: alignment,
		seen: make(map[data.NodeID]bool)}
}
