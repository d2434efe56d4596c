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
	"bytes"
	"encoding/binary"
	"fmt"
	"runtime"
	"time"

	"devt.de/krotik/annisdb/graph"
	"devt.de/krotik/annisdb/graph/annostorage"
	"devt.de/krotik/annisdb/graph/data"
	"devt.de/krotik/annisdb/graph/graphstorage"
	"devt.de/krotik/common/bitutil"
	"golang.org/x/sync/errgroup"
)

/*
parallelNestedLoopThreshold is the outer side estimate above which a nested
loop join processes its outer tuples in parallel.
*/
const parallelNestedLoopThreshold = 1024

/*
nestedLoopBatchSize is the number of outer tuples a parallel nested loop
processes per batch.
*/
const nestedLoopBatchSize = 512

/*
Cost holds the estimated output and processed tuples of an execution node.
*/
type Cost struct {
	Output    int
	Processed int
}

/*
Desc describes one node of an execution plan.
*/
type Desc struct {
	Query    string  // Query form of this execution node
	NodeIdx  []int   // Query node positions in tuple order
	Cost     Cost    // Estimated cost
	Children []*Desc // Input plans
}

/*
String returns an indented tree representation of the plan.
*/
func (d *Desc) String() string {
	var buf bytes.Buffer
	d.levelString(0, &buf)
	return buf.String()
}

/*
levelString renders a plan node at a given level.
*/
func (d *Desc) levelString(indent int, buf *bytes.Buffer) {
	for i := 0; i < indent; i++ {
		buf.WriteString("  ")
	}

	buf.WriteString(fmt.Sprintf("%s [out: %d, proc: %d]\n",
		d.Query, d.Cost.Output, d.Cost.Processed))

	for _, child := range d.Children {
		child.levelString(indent+1, buf)
	}
}

/*
ExecNode is one node of an executed plan. Next returns the next result
tuple or nil once the node is exhausted.
*/
type ExecNode interface {

	/*
		Next returns the next result tuple.
	*/
	Next() (data.MatchGroup, error)

	/*
		Desc returns the plan description of this node.
	*/
	Desc() *Desc
}

/*
TimeoutCheck holds the absolute deadline of a query execution.
*/
type TimeoutCheck struct {
	deadline time.Time
}

/*
NewTimeoutCheck creates a timeout check. A non-positive timeout disables
the check.
*/
func NewTimeoutCheck(timeout time.Duration) *TimeoutCheck {
	if timeout <= 0 {
		return &TimeoutCheck{}
	}
	return &TimeoutCheck{deadline: time.Now().Add(timeout)}
}

/*
Check returns an ErrTimeout error once the deadline has passed.
*/
func (tc *TimeoutCheck) Check() error {
	if !tc.deadline.IsZero() && time.Now().After(tc.deadline) {
		return NewError(ErrTimeout, "")
	}
	return nil
}

// Node search scan
// ================

/*
nodeSearchExec scans all nodes matching a node search.
*/
type nodeSearchExec struct {
	g    *graph.Graph
	spec *NodeSearchSpec
	tc   *TimeoutCheck
	it   annostorage.MatchIterator[data.NodeID]
	desc *Desc
}

func newNodeSearchExec(g *graph.Graph, spec *NodeSearchSpec, nodeIdx int,
	estimate int, tc *TimeoutCheck) *nodeSearchExec {

	return &nodeSearchExec{g: g, spec: spec, tc: tc,
		desc: &Desc{Query: spec.String(), NodeIdx: []int{nodeIdx},
			Cost: Cost{Output: estimate, Processed: estimate}}}
}

func (e *nodeSearchExec) Next() (data.MatchGroup, error) {
	if err := e.tc.Check(); err != nil {
		return nil, err
	}

	if e.it == nil {
		it, err := e.spec.Search(e.g)
		if err != nil {
			return nil, err
		}
		e.it = it
	}

	m, ok := e.it.Next()
	if !ok {
		if err := e.it.Err(); err != nil {
			return nil, err
		}
		return nil, nil
	}

	return data.MatchGroup{{Node: m.Item, Key: m.Key}}, nil
}

func (e *nodeSearchExec) Desc() *Desc {
	return e.desc
}

// Index join
// ==========

/*
indexJoin extends every outer tuple with the nodes the operator retrieves
for it. Every candidate is verified against the right-hand side node search
and the operator filter.
*/
type indexJoin struct {
	g          *graph.Graph
	outer      ExecNode
	op         Operator
	lhsPos     int
	rhsSpec    *NodeSearchSpec
	tc         *TimeoutCheck
	current    data.MatchGroup
	candidates graphstorage.NodeIterator
	desc       *Desc
}

func newIndexJoin(g *graph.Graph, outer ExecNode, op Operator, lhsPos int,
	rhsSpec *NodeSearchSpec, rhsIdx int, cost Cost, tc *TimeoutCheck) *indexJoin {

	return &indexJoin{g: g, outer: outer, op: op, lhsPos: lhsPos,
		rhsSpec: rhsSpec, tc: tc,
		desc: &Desc{Query: fmt.Sprintf("indexjoin %s", op),
			NodeIdx:  append(append([]int{}, outer.Desc().NodeIdx...), rhsIdx),
			Cost:     cost,
			Children: []*Desc{outer.Desc()}}}
}

func (e *indexJoin) Next() (data.MatchGroup, error) {
	for {
		if err := e.tc.Check(); err != nil {
			return nil, err
		}

		if e.candidates != nil {
			c, ok := e.candidates.Next()

			if !ok {
				e.candidates = nil
				continue
			}

			rhs, ok := e.rhsSpec.Matches(e.g, c)
			if !ok {
				continue
			}

			lhs := e.current[e.lhsPos]

			if !e.op.IsReflexive() && lhs.Node == rhs.Node && lhs.Key == rhs.Key {
				continue
			}

			if !e.op.Filter(lhs, rhs) {
				continue
			}

			res := make(data.MatchGroup, 0, len(e.current)+1)
			res = append(res, e.current...)
			return append(res, rhs), nil
		}

		t, err := e.outer.Next()
		if err != nil {
			return nil, err
		}
		if t == nil {
			return nil, nil
		}

		e.current = t
		e.candidates = e.op.Retrieve(t[e.lhsPos])
	}
}

func (e *indexJoin) Desc() *Desc {
	return e.desc
}

// Nested loop join
// ================

/*
nestedLoop joins two plans by checking the operator filter on every tuple
pair. The inner side is materialized once; large outer sides are processed
in parallel batches.
*/
type nestedLoop struct {
	outer       ExecNode
	inner       ExecNode
	op          Operator // nil = cross join
	negated     bool
	lhsInOuter  bool
	lhsPos      int // Position within the operand's own tuple
	rhsPos      int
	parallel    bool
	tc          *TimeoutCheck
	innerTuples []data.MatchGroup
	innerDone   bool
	outerDone   bool
	buffer      []data.MatchGroup
	bufPos      int
	desc        *Desc
}

func newNestedLoop(outer ExecNode, inner ExecNode, op Operator, negated bool,
	lhsInOuter bool, lhsPos int, rhsPos int, parallel bool, cost Cost,
	tc *TimeoutCheck) *nestedLoop {

	query := "crossjoin"
	if op != nil {
		query = fmt.Sprintf("nestedloop %s", op)
		if negated {
			query = fmt.Sprintf("nestedloop !%s", op)
		}
	}

	return &nestedLoop{outer: outer, inner: inner, op: op, negated: negated,
		lhsInOuter: lhsInOuter, lhsPos: lhsPos, rhsPos: rhsPos,
		parallel: parallel, tc: tc,
		desc: &Desc{Query: query,
			NodeIdx: append(append([]int{}, outer.Desc().NodeIdx...),
				inner.Desc().NodeIdx...),
			Cost:     cost,
			Children: []*Desc{outer.Desc(), inner.Desc()}}}
}

/*
pairMatches checks the operator between an outer and an inner tuple.
*/
func (e *nestedLoop) pairMatches(outer data.MatchGroup, inner data.MatchGroup) bool {
	if e.op == nil {
		return true
	}

	var lhs, rhs data.Match

	if e.lhsInOuter {
		lhs, rhs = outer[e.lhsPos], inner[e.rhsPos]
	} else {
		lhs, rhs = inner[e.lhsPos], outer[e.rhsPos]
	}

	if !e.negated && !e.op.IsReflexive() &&
		lhs.Node == rhs.Node && lhs.Key == rhs.Key {
		return false
	}

	res := e.op.Filter(lhs, rhs)
	if e.negated {
		return !res
	}
	return res
}

/*
fill refills the result buffer from the next outer tuples.
*/
func (e *nestedLoop) fill() error {
	e.buffer = e.buffer[:0]
	e.bufPos = 0

	if !e.innerDone {
		for {
			t, err := e.inner.Next()
			if err != nil {
				return err
			}
			if t == nil {
				break
			}
			e.innerTuples = append(e.innerTuples, t)
		}
		e.innerDone = true
	}

	batchSize := 1
	if e.parallel {
		batchSize = nestedLoopBatchSize
	}

	for len(e.buffer) == 0 && !e.outerDone {
		var batch []data.MatchGroup

		for len(batch) < batchSize {
			t, err := e.outer.Next()
			if err != nil {
				return err
			}
			if t == nil {
				e.outerDone = true
				break
			}
			batch = append(batch, t)
		}

		if len(batch) == 0 {
			break
		}

		if !e.parallel || len(batch) == 1 {
			for _, outer := range batch {
				e.appendMatches(outer, &e.buffer)
			}
			continue
		}

		results := make([][]data.MatchGroup, len(batch))

		var eg errgroup.Group
		eg.SetLimit(runtime.NumCPU())

		for i, outer := range batch {
			i, outer := i, outer
			eg.Go(func() error {
				e.appendMatches(outer, &results[i])
				return nil
			})
		}

		if err := eg.Wait(); err != nil {
			return err
		}

		for _, res := range results {
			e.buffer = append(e.buffer, res...)
		}
	}

	return nil
}

/*
appendMatches scans the inner tuples for one outer tuple.
*/
func (e *nestedLoop) appendMatches(outer data.MatchGroup, res *[]data.MatchGroup) {
	for _, inner := range e.innerTuples {
		if !e.pairMatches(outer, inner) {
			continue
		}

		combined := make(data.MatchGroup, 0, len(outer)+len(inner))
		combined = append(combined, outer...)
		*res = append(*res, append(combined, inner...))
	}
}

func (e *nestedLoop) Next() (data.MatchGroup, error) {
	for {
		if err := e.tc.Check(); err != nil {
			return nil, err
		}

		if e.bufPos < len(e.buffer) {
			t := e.buffer[e.bufPos]
			e.bufPos++
			return t, nil
		}

		if e.outerDone {
			return nil, nil
		}

		if err := e.fill(); err != nil {
			return nil, err
		}

		if len(e.buffer) == 0 && e.outerDone {
			return nil, nil
		}
	}
}

func (e *nestedLoop) Desc() *Desc {
	return e.desc
}

// Filters
// =======

/*
binaryFilter checks an operator between two positions of a tuple.
*/
type binaryFilter struct {
	child   ExecNode
	op      Operator
	lhsPos  int
	rhsPos  int
	negated bool
	tc      *TimeoutCheck
	desc    *Desc
}

func newBinaryFilter(child ExecNode, op Operator, lhsPos int, rhsPos int,
	negated bool, cost Cost, tc *TimeoutCheck) *binaryFilter {

	query := fmt.Sprintf("filter %s", op)
	if negated {
		query = fmt.Sprintf("filter !%s", op)
	}

	return &binaryFilter{child: child, op: op, lhsPos: lhsPos, rhsPos: rhsPos,
		negated: negated, tc: tc,
		desc: &Desc{Query: query,
			NodeIdx:  append([]int{}, child.Desc().NodeIdx...),
			Cost:     cost,
			Children: []*Desc{child.Desc()}}}
}

func (e *binaryFilter) Next() (data.MatchGroup, error) {
	for {
		if err := e.tc.Check(); err != nil {
			return nil, err
		}

		t, err := e.child.Next()
		if err != nil {
			return nil, err
		}
		if t == nil {
			return nil, nil
		}

		lhs, rhs := t[e.lhsPos], t[e.rhsPos]

		if !e.negated && !e.op.IsReflexive() &&
			lhs.Node == rhs.Node && lhs.Key == rhs.Key {
			continue
		}

		res := e.op.Filter(lhs, rhs)
		if e.negated {
			res = !res
		}

		if res {
			return t, nil
		}
	}
}

func (e *binaryFilter) Desc() *Desc {
	return e.desc
}

/*
nonExistingFilter drops all tuples for which the operator reaches a node
matching the given node search.
*/
type nonExistingFilter struct {
	g       *graph.Graph
	child   ExecNode
	op      Operator
	lhsPos  int
	rhsSpec *NodeSearchSpec
	tc      *TimeoutCheck
	desc    *Desc
}

func newNonExistingFilter(g *graph.Graph, child ExecNode, op Operator,
	lhsPos int, rhsSpec *NodeSearchSpec, cost Cost,
	tc *TimeoutCheck) *nonExistingFilter {

	return &nonExistingFilter{g: g, child: child, op: op, lhsPos: lhsPos,
		rhsSpec: rhsSpec, tc: tc,
		desc: &Desc{Query: fmt.Sprintf("filter !%s %s", op, rhsSpec),
			NodeIdx:  append([]int{}, child.Desc().NodeIdx...),
			Cost:     cost,
			Children: []*Desc{child.Desc()}}}
}

func (e *nonExistingFilter) Next() (data.MatchGroup, error) {
	for {
		if err := e.tc.Check(); err != nil {
			return nil, err
		}

		t, err := e.child.Next()
		if err != nil {
			return nil, err
		}
		if t == nil {
			return nil, nil
		}

		lhs := t[e.lhsPos]
		exists := false

		candidates := e.op.Retrieve(lhs)
		for c, ok := candidates.Next(); ok; c, ok = candidates.Next() {
			if rhs, ok := e.rhsSpec.Matches(e.g, c); ok && e.op.Filter(lhs, rhs) {
				exists = true
				break
			}
		}

		if !exists {
			return t, nil
		}
	}
}

func (e *nonExistingFilter) Desc() *Desc {
	return e.desc
}

// Projection
// ==========

/*
projection reorders a tuple to the query node order. Optional nodes which
took no part in the execution get the stable empty placeholder match.
*/
type projection struct {
	child   ExecNode
	mapping []int // Query position to tuple position; -1 = placeholder
	tc      *TimeoutCheck
	desc    *Desc
}

func newProjection(child ExecNode, mapping []int, tc *TimeoutCheck) *projection {
	nodeIdx := make([]int, len(mapping))
	for i := range mapping {
		nodeIdx[i] = i
	}

	return &projection{child: child, mapping: mapping, tc: tc,
		desc: &Desc{Query: "projection", NodeIdx: nodeIdx,
			Cost:     child.Desc().Cost,
			Children: []*Desc{child.Desc()}}}
}

func (e *projection) Next() (data.MatchGroup, error) {
	if err := e.tc.Check(); err != nil {
		return nil, err
	}

	t, err := e.child.Next()
	if err != nil {
		return nil, err
	}
	if t == nil {
		return nil, nil
	}

	res := make(data.MatchGroup, len(e.mapping))

	for i, pos := range e.mapping {
		if pos < 0 {
			res[i] = data.Match{Node: 0, Key: data.DefaultKey}
		} else {
			res[i] = t[pos]
		}
	}

	return res, nil
}

func (e *projection) Desc() *Desc {
	return e.desc
}

// Disjunction
// ===========

/*
disjunctionExec drains the plans of all alternatives and deduplicates the
result tuples with a hashed set.
*/
type disjunctionExec struct {
	children []ExecNode
	pos      int
	seen     map[uint32][][]byte
	tc       *TimeoutCheck
	desc     *Desc
}

func newDisjunctionExec(children []ExecNode, tc *TimeoutCheck) *disjunctionExec {
	desc := &Desc{Query: "disjunction"}

	for _, c := range children {
		desc.Children = append(desc.Children, c.Desc())
		desc.Cost.Output += c.Desc().Cost.Output
		desc.Cost.Processed += c.Desc().Cost.Processed
	}

	if len(children) > 0 {
		desc.NodeIdx = children[0].Desc().NodeIdx
	}

	return &disjunctionExec{children: children,
		seen: make(map[uint32][][]byte), tc: tc, desc: desc}
}

/*
encodeTuple renders a tuple into a comparable byte string.
*/
func encodeTuple(t data.MatchGroup) []byte {
	var buf bytes.Buffer

	for _, m := range t {
		var id [8]byte
		binary.BigEndian.PutUint64(id[:], uint64(m.Node))
		buf.Write(id[:])

		if m.Key != nil {
			buf.WriteString(m.Key.NS)
			buf.WriteByte(0)
			buf.WriteString(m.Key.Name)
		}
		buf.WriteByte(0)
	}

	return buf.Bytes()
}

func (e *disjunctionExec) Next() (data.MatchGroup, error) {
	for {
		if err := e.tc.Check(); err != nil {
			return nil, err
		}

		if e.pos >= len(e.children) {
			return nil, nil
		}

		t, err := e.children[e.pos].Next()
		if err != nil {
			return nil, err
		}
		if t == nil {
			e.pos++
			continue
		}

		if len(e.children) == 1 {
			return t, nil
		}

		enc := encodeTuple(t)
		hash, _ := bitutil.MurMurHashData(enc, 0, len(enc)-1, 42)

		duplicate := false
		for _, known := range e.seen[hash] {
			if bytes.Equal(known, enc) {
				duplicate = true
				break
			}
		}

		if duplicate {
			continue
		}

		e.seen[hash] = append(e.seen[hash], enc)
		return t, nil
	}
}

func (e *disjunctionExec) Desc() *Desc {
	return e.desc
}
