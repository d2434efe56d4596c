/*
 * AnnisDB
 *
 * Copyright 2016 Matthias Ladkau. All rights reserved.
 *
 * This Source Code Form is subject to the terms of the Mozilla Public
 * License, v. 2.0. If a copy of the MPL was not distributed with this
 * file, You can obtain one at http://mozilla.org/MPL/2.0/.
 */

package corpus

import (
	"container/heap"
	"encoding/gob"
	"io"
	"math/rand"
	"os"
	"sort"
	"strings"

	"devt.de/krotik/annisdb/aql/interpreter"
	"devt.de/krotik/annisdb/graph"
	"devt.de/krotik/annisdb/graph/data"
	"golang.org/x/text/collate"
	"golang.org/x/text/language"
)

/*
defaultMaxBufferedMatches is the default in-memory sort buffer of Find.
Larger result sets are sorted with spilled runs and a k-way merge.
*/
const defaultMaxBufferedMatches = 131072

/*
matchComparer implements the result order of Find. Matches order by
document path, text position, node name and node ID; longer (more
specific) tuples sort before shorter ones.
*/
type matchComparer struct {
	g        *graph.Graph
	th       *interpreter.TokenHelper
	quirks   bool
	collator *collate.Collator

	positions map[data.NodeID]int // Token order positions, built lazily
}

/*
newMatchComparer creates a comparer for one corpus graph. Quirks mode
compares path segments in reverse order using locale collation.
*/
func newMatchComparer(g *graph.Graph, quirks bool,
	locale language.Tag) (*matchComparer, error) {

	th, err := interpreter.NewTokenHelper(g)
	if err != nil {
		return nil, err
	}

	mc := &matchComparer{g: g, th: th, quirks: quirks}
	if quirks {
		mc.collator = collate.New(locale)
	}

	return mc, nil
}

/*
compareGroups compares two result tuples.
*/
func (mc *matchComparer) compareGroups(a data.MatchGroup, b data.MatchGroup) int {
	common := len(a)
	if len(b) < common {
		common = len(b)
	}

	for i := 0; i < common; i++ {
		if c := mc.compareMatches(a[i], b[i]); c != 0 {
			return c
		}
	}

	// The more specific (longer) tuple comes first

	if len(a) != len(b) {
		if len(a) > len(b) {
			return -1
		}
		return 1
	}

	return 0
}

/*
compareMatches compares two single matches.
*/
func (mc *matchComparer) compareMatches(a data.Match, b data.Match) int {
	if a.Node == b.Node {
		return 0
	}

	nameA, _ := mc.g.NodeNameFromID(a.Node)
	nameB, _ := mc.g.NodeNameFromID(b.Node)

	pathA, localA := data.SplitNodeName(nameA)
	pathB, localB := data.SplitNodeName(nameB)

	if c := mc.compareDocPaths(pathA, pathB); c != 0 {
		return c
	}

	posA, okA := mc.textPosition(a.Node)
	posB, okB := mc.textPosition(b.Node)

	if okA && okB && posA != posB {
		if posA < posB {
			return -1
		}
		return 1
	}
	if okA != okB {

		// Nodes with a text position come first

		if okA {
			return -1
		}
		return 1
	}

	if localA != localB {
		if c := mc.compareStrings(localA, localB); c != 0 {
			return c
		}
	}

	if a.Node < b.Node {
		return -1
	}
	return 1
}

/*
compareDocPaths compares two document paths segment by segment. Empty
segments are dropped. Quirks mode compares the segments in reverse order.
*/
func (mc *matchComparer) compareDocPaths(a string, b string) int {
	segsA := pathSegments(a)
	segsB := pathSegments(b)

	if mc.quirks {
		reverseSegments(segsA)
		reverseSegments(segsB)
	}

	common := len(segsA)
	if len(segsB) < common {
		common = len(segsB)
	}

	for i := 0; i < common; i++ {
		if c := mc.compareStrings(segsA[i], segsB[i]); c != 0 {
			return c
		}
	}

	if len(segsA) != len(segsB) {
		if len(segsA) < len(segsB) {
			return -1
		}
		return 1
	}

	return 0
}

/*
compareStrings compares two strings with the configured collation.
*/
func (mc *matchComparer) compareStrings(a string, b string) int {
	if mc.collator != nil {
		return mc.collator.CompareString(a, b)
	}
	if a == b {
		return 0
	}
	if a < b {
		return -1
	}
	return 1
}

/*
textPosition returns the position of the leftmost covered token of a node
in the default token order.
*/
func (mc *matchComparer) textPosition(node data.NodeID) (int, bool) {
	token, ok := mc.th.LeftTokenFor(node)
	if !ok {
		return 0, false
	}

	if mc.positions == nil {
		mc.positions = tokenOrderPositions(mc.g, data.DefaultOrderingComponent)
	}

	pos, ok := mc.positions[token]
	return pos, ok
}

/*
tokenOrderPositions walks the chains of an ordering component and assigns
each node its position. The result is empty if the component is missing.
*/
func tokenOrderPositions(g *graph.Graph, c data.Component) map[data.NodeID]int {
	positions := make(map[data.NodeID]int)

	st, err := g.Storage(c)
	if err != nil {
		return positions
	}

	// Chain roots are source nodes without an incoming ordering edge

	var roots []data.NodeID

	sources := st.SourceNodes()
	for n, ok := sources.Next(); ok; n, ok = sources.Next() {
		if _, hasIn := st.IngoingEdges(n).Next(); !hasIn {
			roots = append(roots, n)
		}
	}

	sort.Slice(roots, func(i, j int) bool { return roots[i] < roots[j] })

	pos := 0
	for _, root := range roots {
		node := root
		for {
			if _, seen := positions[node]; seen {
				break
			}
			positions[node] = pos
			pos++

			next, ok := st.OutgoingEdges(node).Next()
			if !ok {
				break
			}
			node = next
		}
	}

	return positions
}

/*
pathSegments splits a document path into its non-empty segments.
*/
func pathSegments(path string) []string {
	var res []string

	for _, seg := range strings.Split(path, "/") {
		if seg != "" {
			res = append(res, seg)
		}
	}

	return res
}

/*
reverseSegments reverses a segment list in place.
*/
func reverseSegments(segs []string) {
	for i, j := 0, len(segs)-1; i < j; i, j = i+1, j-1 {
		segs[i], segs[j] = segs[j], segs[i]
	}
}

// Result materialization
// ======================

/*
orderedMatches drains an execution plan and returns its tuples in the
requested order. Results beyond the in-memory sort buffer are spilled to
temporary files and merged back.
*/
func (s *Storage) orderedMatches(g *graph.Graph, plan interpreter.ExecNode,
	order Order) ([]data.MatchGroup, error) {

	if order == OrderNotSorted || order == OrderRandomized {
		groups, err := s.drain(plan)
		if err != nil {
			return nil, err
		}

		if order == OrderRandomized {
			rnd := rand.New(rand.NewSource(s.opts.RandomSeed))
			rnd.Shuffle(len(groups), func(i, j int) {
				groups[i], groups[j] = groups[j], groups[i]
			})
		}

		return groups, nil
	}

	mc, err := newMatchComparer(g, s.opts.Quirks, s.opts.QuirksLocale)
	if err != nil {
		return nil, err
	}

	less := func(a, b data.MatchGroup) bool { return mc.compareGroups(a, b) < 0 }
	if order == OrderInverted {
		less = func(a, b data.MatchGroup) bool { return mc.compareGroups(a, b) > 0 }
	}

	sorter := newExternalSorter(s.opts.MaxBufferedMatches, less)
	defer sorter.cleanup()

	total := 0

	for {
		tuple, err := plan.Next()
		if err != nil {
			return nil, err
		}
		if tuple == nil {
			break
		}

		total++
		if s.opts.MaxResultSetSize > 0 && total > s.opts.MaxResultSetSize {
			return nil, interpreter.NewError(interpreter.ErrMemoryLimit,
				"Query produces too many results")
		}

		if err := sorter.add(tuple); err != nil {
			return nil, err
		}
	}

	return sorter.result()
}

/*
drain collects all tuples of a plan guarded by the result set cap.
*/
func (s *Storage) drain(plan interpreter.ExecNode) ([]data.MatchGroup, error) {
	var res []data.MatchGroup

	for {
		tuple, err := plan.Next()
		if err != nil {
			return nil, err
		}
		if tuple == nil {
			return res, nil
		}

		res = append(res, tuple)

		if s.opts.MaxResultSetSize > 0 && len(res) > s.opts.MaxResultSetSize {
			return nil, interpreter.NewError(interpreter.ErrMemoryLimit,
				"Query produces too many results")
		}
	}
}

// External merge sort
// ===================

/*
spillMatch is the serialized form of one match in a spilled run.
*/
type spillMatch struct {
	Node uint64
	NS   string
	Name string
}

/*
encodeSpill converts a tuple into its serialized form.
*/
func encodeSpill(group data.MatchGroup) []spillMatch {
	res := make([]spillMatch, len(group))
	for i, m := range group {
		res[i] = spillMatch{Node: uint64(m.Node), NS: m.Key.NS, Name: m.Key.Name}
	}
	return res
}

/*
decodeSpill converts a serialized tuple back. Annotation keys are interned
again on read.
*/
func decodeSpill(row []spillMatch) data.MatchGroup {
	res := make(data.MatchGroup, len(row))
	for i, m := range row {
		res[i] = data.Match{Node: data.NodeID(m.Node),
			Key: data.InternedKey(m.NS, m.Name)}
	}
	return res
}

/*
externalSorter sorts tuples with a bounded in-memory buffer. A full buffer
is sorted and spilled to a temporary file; the final result merges all
spilled runs with the remaining buffer.
*/
type externalSorter struct {
	maxBuffered int
	less        func(a, b data.MatchGroup) bool
	buffer      []data.MatchGroup
	runs        []*os.File
}

/*
newExternalSorter creates a sorter with a given buffer bound.
*/
func newExternalSorter(maxBuffered int,
	less func(a, b data.MatchGroup) bool) *externalSorter {

	return &externalSorter{maxBuffered: maxBuffered, less: less}
}

/*
add appends a tuple, spilling the buffer when it is full.
*/
func (es *externalSorter) add(group data.MatchGroup) error {
	es.buffer = append(es.buffer, group)

	if len(es.buffer) >= es.maxBuffered {
		return es.spill()
	}
	return nil
}

/*
spill sorts the buffer and writes it as one run to a temporary file.
*/
func (es *externalSorter) spill() error {
	sort.SliceStable(es.buffer, func(i, j int) bool {
		return es.less(es.buffer[i], es.buffer[j])
	})

	file, err := os.CreateTemp("", "annisdb-sort-*.run")
	if err != nil {
		return NewStorageError(ErrLoadingFailed, err.Error())
	}

	enc := gob.NewEncoder(file)
	for _, group := range es.buffer {
		if err := enc.Encode(encodeSpill(group)); err != nil {
			file.Close()
			os.Remove(file.Name())
			return NewStorageError(ErrLoadingFailed, err.Error())
		}
	}

	es.runs = append(es.runs, file)
	es.buffer = es.buffer[:0]
	return nil
}

/*
result returns all added tuples in sorted order.
*/
func (es *externalSorter) result() ([]data.MatchGroup, error) {
	sort.SliceStable(es.buffer, func(i, j int) bool {
		return es.less(es.buffer[i], es.buffer[j])
	})

	if len(es.runs) == 0 {
		res := es.buffer
		es.buffer = nil
		return res, nil
	}

	// Merge all spilled runs with the remaining buffer

	sources := make([]func() (data.MatchGroup, error), 0, len(es.runs)+1)

	for _, file := range es.runs {
		if _, err := file.Seek(0, io.SeekStart); err != nil {
			return nil, NewStorageError(ErrLoadingFailed, err.Error())
		}

		dec := gob.NewDecoder(file)
		sources = append(sources, func() (data.MatchGroup, error) {
			var row []spillMatch
			if err := dec.Decode(&row); err != nil {
				if err == io.EOF {
					return nil, nil
				}
				return nil, NewStorageError(ErrLoadingFailed, err.Error())
			}
			return decodeSpill(row), nil
		})
	}

	buffer := es.buffer
	pos := 0
	sources = append(sources, func() (data.MatchGroup, error) {
		if pos >= len(buffer) {
			return nil, nil
		}
		group := buffer[pos]
		pos++
		return group, nil
	})

	return mergeRuns(sources, es.less)
}

/*
cleanup removes all temporary run files.
*/
func (es *externalSorter) cleanup() {
	for _, file := range es.runs {
		file.Close()
		os.Remove(file.Name())
	}
	es.runs = nil
}

/*
mergeItem is one head element of the merge heap.
*/
type mergeItem struct {
	group  data.MatchGroup
	source int
}

/*
mergeHeap is a min-heap over the head elements of all runs.
*/
type mergeHeap struct {
	items []mergeItem
	less  func(a, b data.MatchGroup) bool
}

func (mh *mergeHeap) Len() int { return len(mh.items) }

func (mh *mergeHeap) Less(i, j int) bool {
	return mh.less(mh.items[i].group, mh.items[j].group)
}

func (mh *mergeHeap) Swap(i, j int) {
	mh.items[i], mh.items[j] = mh.items[j], mh.items[i]
}

func (mh *mergeHeap) Push(x interface{}) {
	mh.items = append(mh.items, x.(mergeItem))
}

func (mh *mergeHeap) Pop() interface{} {
	last := mh.items[len(mh.items)-1]
	mh.items = mh.items[:len(mh.items)-1]
	return last
}

/*
mergeRuns performs the k-way merge over sorted sources. A source returns
nil when it is exhausted.
*/
func mergeRuns(sources []func() (data.MatchGroup, error),
	less func(a, b data.MatchGroup) bool) ([]data.MatchGroup, error) {

	mh := &mergeHeap{less: less}

	for i, next := range sources {
		group, err := next()
		if err != nil {
			return nil, err
		}
		if group != nil {
			mh.items = append(mh.items, mergeItem{group: group, source: i})
		}
	}

	heap.Init(mh)

	var res []data.MatchGroup

	for mh.Len() > 0 {
		top := heap.Pop(mh).(mergeItem)
		res = append(res, top.group)

		group, err := sources[top.source]()
		if err != nil {
			return nil, err
		}
		if group != nil {
			heap.Push(mh, mergeItem{group: group, source: top.source})
		}
	}

	return res, nil
}
