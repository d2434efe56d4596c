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
	"math/rand"
	"sort"
	"time"

	"devt.de/krotik/annisdb/graph"
	"devt.de/krotik/annisdb/graph/data"
)

/*
DefaultOptimizationRounds is the default number of join order optimization
rounds.
*/
const DefaultOptimizationRounds = 20

/*
Config holds the execution options of a query.
*/
type Config struct {
	Timeout            time.Duration // Maximum execution time (0 = unlimited)
	OptimizationRounds int           // Join order optimization rounds (0 = default)
	RandomSeed         int64         // Seed of the join order search
}

/*
MakeExecPlan creates the execution plan of a query against a graph.
*/
func (d *Disjunction) MakeExecPlan(g *graph.Graph, cfg *Config) (ExecNode, error) {
	if cfg == nil {
		cfg = &Config{}
	}

	if len(d.Alternatives) == 0 {
		return nil, NewError(ErrImpossibleSearch, "Query without any alternative")
	}

	tc := NewTimeoutCheck(cfg.Timeout)

	var children []ExecNode

	for _, alt := range d.Alternatives {
		plan, err := alt.makePlan(g, cfg, tc)
		if err != nil {
			return nil, err
		}
		children = append(children, plan)
	}

	return newDisjunctionExec(children, tc), nil
}

/*
planGroup is a set of already joined node searches during plan building.
*/
type planGroup struct {
	exec  ExecNode
	nodes []int // Query node indexes in tuple order
	size  int   // Estimated output
}

/*
position returns the tuple position of a query node within the group.
*/
func (pg *planGroup) position(nodeIdx int) int {
	for pos, n := range pg.nodes {
		if n == nodeIdx {
			return pos
		}
	}
	return -1
}

/*
makePlan creates the execution plan of one conjunction.
*/
func (c *Conjunction) makePlan(g *graph.Graph, cfg *Config,
	tc *TimeoutCheck) (ExecNode, error) {

	if len(c.Nodes) == 0 {
		return nil, NewError(ErrImpossibleSearch, "Query without any node search")
	}

	if err := c.checkImpossible(); err != nil {
		return nil, err
	}

	// Load all components the operators need in one parallel pass

	if err := c.loadComponents(g); err != nil {
		return nil, err
	}

	// Bind the operators to the graph

	ops := make([]Operator, len(c.Operators))
	for i, entry := range c.Operators {
		op, err := entry.Spec.CreateOperator(g, c.Nodes[entry.RightIdx])
		if err != nil {
			return nil, err
		}
		ops[i] = op
	}

	estimates := make([]int, len(c.Nodes))
	for i, spec := range c.Nodes {
		estimates[i] = spec.Estimate(g)
	}

	// Determine the join order

	var joins, nonExisting []int

	for i, entry := range c.Operators {
		if entry.NonExisting {
			nonExisting = append(nonExisting, i)
		} else {
			joins = append(joins, i)
		}
	}

	order := c.optimizeJoinOrder(joins, ops, estimates, cfg)

	// Build the plan bottom-up

	var groups []*planGroup

	for i, spec := range c.Nodes {
		if spec.Optional {
			continue
		}
		groups = append(groups, &planGroup{
			exec:  newNodeSearchExec(g, spec, i, estimates[i], tc),
			nodes: []int{i},
			size:  estimates[i],
		})
	}

	if len(groups) == 0 {
		return nil, NewError(ErrImpossibleSearch,
			"Query with only optional node searches")
	}

	findGroup := func(nodeIdx int) *planGroup {
		for _, pg := range groups {
			if pg.position(nodeIdx) >= 0 {
				return pg
			}
		}
		return nil
	}

	removeGroup := func(pg *planGroup) {
		for i, other := range groups {
			if other == pg {
				groups = append(groups[:i], groups[i+1:]...)
				return
			}
		}
	}

	for _, entryIdx := range order {
		entry := c.Operators[entryIdx]
		op := ops[entryIdx]

		left := findGroup(entry.LeftIdx)
		right := findGroup(entry.RightIdx)

		if left == nil || right == nil {
			return nil, NewError(ErrImpossibleSearch,
				fmt.Sprintf("Operator %v references an optional node search", entry.Spec))
		}

		if left == right {
			out := filterOutput(left.size, op, entry.Negated)
			left.exec = newBinaryFilter(left.exec, op,
				left.position(entry.LeftIdx), left.position(entry.RightIdx),
				entry.Negated, Cost{Output: out, Processed: left.size}, tc)
			left.size = out
			continue
		}

		joined := c.joinGroups(g, left, right, entry, op, tc)
		removeGroup(right)
		*left = *joined
	}

	// Cross join any remaining unconnected groups

	plan := groups[0]

	for _, other := range groups[1:] {
		out := plan.size * other.size
		joined := newNestedLoop(plan.exec, other.exec, nil, false, true, 0, 0,
			plan.size > parallelNestedLoopThreshold,
			Cost{Output: out, Processed: out}, tc)

		plan = &planGroup{exec: joined,
			nodes: append(append([]int{}, plan.nodes...), other.nodes...),
			size:  out}
	}

	// Non-existence filters run on the fully joined plan

	for _, entryIdx := range nonExisting {
		entry := c.Operators[entryIdx]

		pos := plan.position(entry.LeftIdx)
		if pos < 0 {
			return nil, NewError(ErrImpossibleSearch,
				fmt.Sprintf("Negated operator %v has no bound side", entry.Spec))
		}

		plan.exec = newNonExistingFilter(g, plan.exec, ops[entryIdx], pos,
			c.Nodes[entry.RightIdx], Cost{Output: plan.size,
				Processed: plan.size}, tc)
	}

	// Project the tuple back to query node order, leaving out hidden
	// node searches

	mapping := make([]int, 0, len(c.Nodes))
	for i, spec := range c.Nodes {
		if spec.Hidden {
			continue
		}
		mapping = append(mapping, plan.position(i))
	}

	return newProjection(plan.exec, mapping, tc), nil
}

/*
loadComponents loads all components the operators of the conjunction need.
*/
func (c *Conjunction) loadComponents(g *graph.Graph) error {
	seen := make(map[data.Component]bool)
	var components []data.Component

	for _, entry := range c.Operators {
		for _, comp := range entry.Spec.NecessaryComponents(g) {
			if !seen[comp] {
				seen[comp] = true
				components = append(components, comp)
			}
		}
	}

	_, err := g.EnsureLoadedParallel(components)
	return err
}

/*
checkImpossible rejects queries which can never produce a result because
an identity join connects two incompatible node searches.
*/
func (c *Conjunction) checkImpossible() error {
	for _, entry := range c.Operators {
		if _, ok := entry.Spec.(*IdenticalNodeSpec); !ok || entry.Negated {
			continue
		}

		lhs, rhs := c.Nodes[entry.LeftIdx], c.Nodes[entry.RightIdx]

		if lhs.Constraint != ConstraintEqual || rhs.Constraint != ConstraintEqual {
			continue
		}

		sameKey := (lhs.IsToken && rhs.IsToken) ||
			(!lhs.IsToken && !rhs.IsToken && lhs.Name == rhs.Name &&
				lhs.HasNS == rhs.HasNS && lhs.NS == rhs.NS)

		if sameKey && lhs.Value != rhs.Value {
			return NewError(ErrImpossibleSearch,
				fmt.Sprintf("Identity join between %v and %v", lhs, rhs))
		}
	}

	return nil
}

/*
joinOutput estimates the output size of a join.
*/
func joinOutput(left int, right int, op Operator) int {
	if op.EstimationType() == EstimationMin {
		if left < right {
			return left
		}
		return right
	}

	out := int(op.Selectivity() * float64(left) * float64(right))
	if out < 1 {
		out = 1
	}
	return out
}

/*
filterOutput estimates the output size of a filter.
*/
func filterOutput(size int, op Operator, negated bool) int {
	sel := op.Selectivity()
	if op.EstimationType() == EstimationMin {
		sel = 1
	}
	if negated {
		sel = 1 - sel
	}

	out := int(sel * float64(size))
	if out < 1 {
		out = 1
	}
	return out
}

/*
joinGroups joins two plan groups with a binary operator. An index join is
used when one side is a single node search which the operator can retrieve;
otherwise the pair falls back to a nested loop.
*/
func (c *Conjunction) joinGroups(g *graph.Graph, left *planGroup,
	right *planGroup, entry OperatorEntry, op Operator,
	tc *TimeoutCheck) *planGroup {

	out := joinOutput(left.size, right.size, op)

	if !entry.Negated {

		// Prefer extending the left side over the operator index

		if len(right.nodes) == 1 {
			cost := Cost{Output: out,
				Processed: left.size + int(op.Selectivity()*
					float64(left.size)*float64(right.size))}

			exec := newIndexJoin(g, left.exec, op,
				left.position(entry.LeftIdx), c.Nodes[entry.RightIdx],
				entry.RightIdx, cost, tc)

			return &planGroup{exec: exec,
				nodes: append(append([]int{}, left.nodes...), entry.RightIdx),
				size:  out}
		}

		if len(left.nodes) == 1 {
			if inv := op.InverseOperator(); inv != nil {
				cost := Cost{Output: out,
					Processed: right.size + int(op.Selectivity()*
						float64(left.size)*float64(right.size))}

				exec := newIndexJoin(g, right.exec, inv,
					right.position(entry.RightIdx), c.Nodes[entry.LeftIdx],
					entry.LeftIdx, cost, tc)

				return &planGroup{exec: exec,
					nodes: append(append([]int{}, right.nodes...), entry.LeftIdx),
					size:  out}
			}
		}
	}

	// Nested loop with the smaller side materialized as inner

	outer, inner := left, right
	if inner.size > outer.size {
		outer, inner = inner, outer
	}

	lhsInOuter := outer.position(entry.LeftIdx) >= 0

	var lhsPos, rhsPos int
	if lhsInOuter {
		lhsPos = outer.position(entry.LeftIdx)
		rhsPos = inner.position(entry.RightIdx)
	} else {
		lhsPos = inner.position(entry.LeftIdx)
		rhsPos = outer.position(entry.RightIdx)
	}

	cost := Cost{Output: out, Processed: outer.size * inner.size}

	exec := newNestedLoop(outer.exec, inner.exec, op, entry.Negated,
		lhsInOuter, lhsPos, rhsPos,
		outer.size > parallelNestedLoopThreshold, cost, tc)

	return &planGroup{exec: exec,
		nodes: append(append([]int{}, outer.nodes...), inner.nodes...),
		size:  out}
}

/*
optimizeJoinOrder determines the order in which the binary operators are
joined. A greedy order by estimated output is refined by a seeded random
local search which swaps two operators and keeps the swap when the total
number of processed tuples shrinks.
*/
func (c *Conjunction) optimizeJoinOrder(joins []int, ops []Operator,
	estimates []int, cfg *Config) []int {

	order := append([]int{}, joins...)

	sort.SliceStable(order, func(i, j int) bool {
		return c.simulateEntry(order[i], ops, estimates) <
			c.simulateEntry(order[j], ops, estimates)
	})

	if len(order) <= 2 {
		return order
	}

	rounds := cfg.OptimizationRounds
	if rounds == 0 {
		rounds = DefaultOptimizationRounds
	}

	rng := rand.New(rand.NewSource(cfg.RandomSeed))
	best := c.simulateOrder(order, ops, estimates)

	for round := 0; round < rounds; round++ {
		i, j := rng.Intn(len(order)), rng.Intn(len(order))
		if i == j {
			continue
		}

		order[i], order[j] = order[j], order[i]

		if cost := c.simulateOrder(order, ops, estimates); cost < best {
			best = cost
		} else {
			order[i], order[j] = order[j], order[i]
		}
	}

	return order
}

/*
simulateEntry estimates the output of a single operator entry from the
base estimates.
*/
func (c *Conjunction) simulateEntry(entryIdx int, ops []Operator,
	estimates []int) int {

	entry := c.Operators[entryIdx]
	return joinOutput(estimates[entry.LeftIdx], estimates[entry.RightIdx],
		ops[entryIdx])
}

/*
simulateOrder estimates the total number of processed tuples of a join
order.
*/
func (c *Conjunction) simulateOrder(order []int, ops []Operator,
	estimates []int) float64 {

	group := make([]int, len(c.Nodes))
	size := make([]float64, len(c.Nodes))

	for i := range c.Nodes {
		group[i] = i
		size[i] = float64(estimates[i])
	}

	find := func(n int) int {
		for group[n] != n {
			n = group[n]
		}
		return n
	}

	processed := 0.0

	for _, entryIdx := range order {
		entry := c.Operators[entryIdx]
		op := ops[entryIdx]

		gl, gr := find(entry.LeftIdx), find(entry.RightIdx)

		if gl == gr {
			processed += size[gl]
			size[gl] *= op.Selectivity()
			continue
		}

		out := float64(joinOutput(int(size[gl]), int(size[gr]), op))

		processed += size[gl] + op.Selectivity()*size[gl]*size[gr]

		group[gr] = gl
		size[gl] = out
	}

	return processed
}
