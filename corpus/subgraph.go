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
	"sort"
	"strings"

	"devt.de/krotik/annisdb/aql/interpreter"
	"devt.de/krotik/annisdb/graph"
	"devt.de/krotik/annisdb/graph/annostorage"
	"devt.de/krotik/annisdb/graph/data"
	"devt.de/krotik/annisdb/graph/graphstorage"
)

/*
DatasourceGapName is the component name of the ordering edges which bridge
non-adjacent context regions of the same data source.
*/
const DatasourceGapName = "datasource-gap"

/*
Subgraph extracts the context of the given match nodes as a new in-memory
graph. The context is counted in base tokens or, when a segmentation name
is given, in the units of that segmentation layer. The output contains the
context tokens in order, all nodes covering them, edges between included
nodes and the part-of ancestors of every included node.
*/
func (s *Storage) Subgraph(name string, nodeNames []string, ctxLeft int,
	ctxRight int, segmentation string) (*graph.Graph, error) {

	entry := s.entry(name)
	if entry == nil {
		return nil, NewStorageError(ErrNoSuchCorpus, name)
	}

	entry.RLock()
	defer entry.RUnlock()

	g, err := s.loadGraph(name)
	if err != nil {
		return nil, err
	}

	th, err := interpreter.NewTokenHelper(g)
	if err != nil {
		return nil, err
	}

	positions := tokenOrderPositions(g, data.DefaultOrderingComponent)

	tokens := make(map[data.NodeID]bool)

	for _, nodeName := range nodeNames {
		id, ok := g.NodeIDFromName(nodeName)
		if !ok {
			continue
		}

		left, right, ok := th.LeftRightTokenFor(id)
		if !ok {
			continue
		}

		left, right = extendContext(g, th, left, right, ctxLeft, ctxRight,
			segmentation)

		for _, t := range tokenRange(g, left, right) {
			tokens[t] = true
		}
	}

	return buildSubgraph(g, th, tokens, positions)
}

/*
extendContext widens a token interval by the configured context. With a
segmentation name the context is counted in segmentation units.
*/
func extendContext(g *graph.Graph, th *interpreter.TokenHelper,
	left data.NodeID, right data.NodeID, ctxLeft int, ctxRight int,
	segmentation string) (data.NodeID, data.NodeID) {

	if segmentation == "" {
		ordering, err := g.Storage(data.DefaultOrderingComponent)
		if err != nil {
			return left, right
		}

		return walkChain(ordering, left, ctxLeft, true),
			walkChain(ordering, right, ctxRight, false)
	}

	seg, err := g.Storage(data.Component{CType: data.Ordering,
		Layer: data.AnnisNamespace, Name: segmentation})
	if err != nil {
		return left, right
	}

	leftUnit := segmentationUnit(th, seg, left)
	rightUnit := segmentationUnit(th, seg, right)

	if leftUnit != 0 {
		unit := walkChain(seg, leftUnit, ctxLeft, true)
		if t, ok := th.LeftTokenFor(unit); ok {
			left = t
		}
	}
	if rightUnit != 0 {
		unit := walkChain(seg, rightUnit, ctxRight, false)
		if t, ok := th.RightTokenFor(unit); ok {
			right = t
		}
	}

	return left, right
}

/*
segmentationUnit returns the unit of a segmentation chain which covers a
token (0 if there is none).
*/
func segmentationUnit(th *interpreter.TokenHelper, seg graphstorage.Storage,
	token data.NodeID) data.NodeID {

	for _, covering := range th.CoveringNodes(token) {
		if _, ok := seg.OutgoingEdges(covering).Next(); ok {
			return covering
		}
		if _, ok := seg.IngoingEdges(covering).Next(); ok {
			return covering
		}
	}

	return 0
}

/*
walkChain follows a chain component a number of steps from a node and
returns the last reached node.
*/
func walkChain(st graphstorage.Storage, node data.NodeID, steps int,
	inverse bool) data.NodeID {

	for i := 0; i < steps; i++ {
		var next data.NodeID
		var ok bool

		if inverse {
			next, ok = st.IngoingEdges(node).Next()
		} else {
			next, ok = st.OutgoingEdges(node).Next()
		}

		if !ok {
			break
		}
		node = next
	}

	return node
}

/*
tokenRange collects the tokens from left to right (inclusive) along the
default ordering.
*/
func tokenRange(g *graph.Graph, left data.NodeID, right data.NodeID) []data.NodeID {
	res := []data.NodeID{left}
	if left == right {
		return res
	}

	ordering, err := g.Storage(data.DefaultOrderingComponent)
	if err != nil {
		return res
	}

	node := left
	for {
		next, ok := ordering.OutgoingEdges(node).Next()
		if !ok {
			break
		}

		res = append(res, next)
		if next == right {
			break
		}
		node = next
	}

	return res
}

/*
buildSubgraph assembles the output graph from a set of context tokens.
*/
func buildSubgraph(g *graph.Graph, th *interpreter.TokenHelper,
	tokens map[data.NodeID]bool, positions map[data.NodeID]int) (*graph.Graph, error) {

	// Order the tokens by text position

	ordered := make([]data.NodeID, 0, len(tokens))
	for t := range tokens {
		ordered = append(ordered, t)
	}

	sort.Slice(ordered, func(i, j int) bool {
		pi, iok := positions[ordered[i]]
		pj, jok := positions[ordered[j]]
		if iok && jok {
			return pi < pj
		}
		return ordered[i] < ordered[j]
	})

	u := graph.NewGraphUpdate()
	included := make(map[data.NodeID]bool)

	addNode := func(id data.NodeID) {
		if included[id] {
			return
		}
		included[id] = true
		copyNode(u, g, id)
	}

	for _, t := range ordered {
		addNode(t)

		for _, covering := range th.CoveringNodes(t) {
			if covering == t {
				continue
			}

			addNode(covering)

			covName, _ := g.NodeNameFromID(covering)
			tokName, _ := g.NodeNameFromID(t)
			u.AddEdge(covName, tokName, data.AnnisNamespace, "Coverage", "")
		}
	}

	// Ordering edges within regions and gap edges between them

	for i := 0; i+1 < len(ordered); i++ {
		a, aok := positions[ordered[i]]
		b, bok := positions[ordered[i+1]]

		nameA, _ := g.NodeNameFromID(ordered[i])
		nameB, _ := g.NodeNameFromID(ordered[i+1])

		if sameDatasource(nameA, nameB) {
			if aok && bok && b > a+1 {
				u.AddEdge(nameA, nameB, data.AnnisNamespace, "Ordering",
					DatasourceGapName)
			} else {
				u.AddEdge(nameA, nameB, data.AnnisNamespace, "Ordering", "")
			}
		}
	}

	// Dominance and pointing edges between included nodes

	for _, c := range g.AllComponents(nil, nil) {
		if c.CType != data.Dominance && c.CType != data.Pointing {
			continue
		}
		if err := copyComponentEdges(u, g, c, included); err != nil {
			return nil, err
		}
	}

	// Part-of ancestors of every included node

	if err := copyPartOfAncestors(u, g, included); err != nil {
		return nil, err
	}

	u.Finish()

	out := graph.NewGraph()
	if err := out.ApplyUpdate(u); err != nil {
		return nil, err
	}

	return out, nil
}

/*
sameDatasource checks if two node names belong to the same data source.
*/
func sameDatasource(a string, b string) bool {
	return documentPath(a) == documentPath(b)
}

/*
copyNode adds a node with all its annotations to an update batch.
*/
func copyNode(u *graph.GraphUpdate, g *graph.Graph, id data.NodeID) {
	name, ok := g.NodeNameFromID(id)
	if !ok {
		return
	}

	nodeType, _ := g.NodeAnnotations().Value(id, *data.NodeTypeKey)
	u.AddNode(name, nodeType)

	for _, anno := range g.NodeAnnotations().Annotations(id) {
		if anno.Key.NS == data.AnnisNamespace &&
			(anno.Key.Name == data.NodeNameAttr || anno.Key.Name == data.NodeTypeAttr) {
			continue
		}
		u.AddNodeLabel(name, anno.Key.NS, anno.Key.Name, anno.Val)
	}
}

/*
copyComponentEdges adds the edges of one component which connect included
nodes, together with their annotations.
*/
func copyComponentEdges(u *graph.GraphUpdate, g *graph.Graph,
	c data.Component, included map[data.NodeID]bool) error {

	st, err := g.Storage(c)
	if err != nil {
		return err
	}

	ctype := c.CType.String()

	for source := range included {
		sourceName, _ := g.NodeNameFromID(source)

		it := st.OutgoingEdges(source)
		for target, ok := it.Next(); ok; target, ok = it.Next() {
			if !included[target] {
				continue
			}

			targetName, _ := g.NodeNameFromID(target)
			u.AddEdge(sourceName, targetName, c.Layer, ctype, c.Name)

			edge := data.Edge{Source: source, Target: target}
			for _, anno := range st.AnnotationStorage().Annotations(edge) {
				u.AddEdgeLabel(sourceName, targetName, c.Layer, ctype, c.Name,
					anno.Key.NS, anno.Key.Name, anno.Val)
			}
		}
	}

	return nil
}

/*
copyPartOfAncestors adds the part-of chains of all included nodes: the
documents, sub-corpora and corpora they belong to.
*/
func copyPartOfAncestors(u *graph.GraphUpdate, g *graph.Graph,
	included map[data.NodeID]bool) error {

	if !g.HasComponent(data.PartOfComponent) {
		return nil
	}

	st, err := g.Storage(data.PartOfComponent)
	if err != nil {
		return err
	}

	start := make([]data.NodeID, 0, len(included))
	for id := range included {
		start = append(start, id)
	}

	for _, id := range start {
		node := id
		for {
			parent, ok := st.OutgoingEdges(node).Next()
			if !ok {
				break
			}

			if !included[parent] {
				included[parent] = true
				copyNode(u, g, parent)
			}

			nodeName, _ := g.NodeNameFromID(node)
			parentName, _ := g.NodeNameFromID(parent)
			u.AddEdge(nodeName, parentName, data.AnnisNamespace, "PartOf", "")

			node = parent
		}
	}

	return nil
}

/*
SubcorpusGraph extracts the given documents with all their content as a new
in-memory graph.
*/
func (s *Storage) SubcorpusGraph(name string, docNames []string) (*graph.Graph, error) {
	entry := s.entry(name)
	if entry == nil {
		return nil, NewStorageError(ErrNoSuchCorpus, name)
	}

	entry.RLock()
	defer entry.RUnlock()

	g, err := s.loadGraph(name)
	if err != nil {
		return nil, err
	}

	st, err := g.Storage(data.PartOfComponent)
	if err != nil {
		return nil, err
	}

	included := make(map[data.NodeID]bool)

	for _, docName := range docNames {
		id, ok := g.NodeIDFromName(docName)
		if !ok {
			continue
		}

		included[id] = true

		// All content of the document plus its ancestors

		it := st.FindConnectedInverse(id, 1, graphstorage.Unbounded)
		for n, ok := it.Next(); ok; n, ok = it.Next() {
			included[n] = true
		}

		anc := st.FindConnected(id, 1, graphstorage.Unbounded)
		for n, ok := anc.Next(); ok; n, ok = anc.Next() {
			included[n] = true
		}
	}

	return copyIncludedGraph(g, included)
}

/*
CorpusGraph extracts the corpus and document structure (all corpus nodes
and the part-of edges between them) as a new in-memory graph.
*/
func (s *Storage) CorpusGraph(name string) (*graph.Graph, error) {
	entry := s.entry(name)
	if entry == nil {
		return nil, NewStorageError(ErrNoSuchCorpus, name)
	}

	entry.RLock()
	defer entry.RUnlock()

	g, err := s.loadGraph(name)
	if err != nil {
		return nil, err
	}

	ns := data.AnnisNamespace
	included := make(map[data.NodeID]bool)

	it := g.NodeAnnotations().ExactSearch(&ns, data.NodeTypeAttr,
		annostorage.EqualValue(data.NodeTypeCorpus))

	for m, ok := it.Next(); ok; m, ok = it.Next() {
		included[m.Item] = true
	}

	return copyIncludedGraph(g, included)
}

/*
copyIncludedGraph builds a new in-memory graph from a set of node IDs: the
nodes with their annotations plus all primary component edges between them.
*/
func copyIncludedGraph(g *graph.Graph, included map[data.NodeID]bool) (*graph.Graph, error) {
	u := graph.NewGraphUpdate()

	ids := make([]data.NodeID, 0, len(included))
	for id := range included {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	for _, id := range ids {
		copyNode(u, g, id)
	}

	for _, c := range g.AllComponents(nil, nil) {

		// Derived components are recomputed by the apply machinery

		if c.CType == data.InvertedCoverage || c.CType == data.LeftToken ||
			c.CType == data.RightToken {
			continue
		}

		if err := copyComponentEdges(u, g, c, included); err != nil {
			return nil, err
		}
	}

	u.Finish()

	out := graph.NewGraph()
	if err := out.ApplyUpdate(u); err != nil {
		return nil, err
	}

	return out, nil
}

// Frequency analysis
// ==================

/*
FrequencyDef selects one value of a result tuple: an annotation of the
node bound by a 1-based query reference. The name "tok" extracts the
spanned text.
*/
type FrequencyDef struct {
	NodeRef int    // 1-based node reference within the query
	NS      string // Annotation namespace; empty matches any namespace
	Name    string // Annotation name
}

/*
FrequencyRow is one row of a frequency table: a value tuple and how often
it occurred.
*/
type FrequencyRow struct {
	Values []string
	Count  int
}

/*
FrequencyAnalysis runs a query and counts the occurrences of each extracted
value tuple. Rows are ordered by descending count, ties by value.
*/
func (s *Storage) FrequencyAnalysis(name string, query string,
	defs []FrequencyDef) ([]FrequencyRow, error) {

	entry := s.entry(name)
	if entry == nil {
		return nil, NewStorageError(ErrNoSuchCorpus, name)
	}

	entry.RLock()
	defer entry.RUnlock()

	g, err := s.loadGraph(name)
	if err != nil {
		return nil, err
	}

	plan, err := s.prepareQuery(g, name, query)
	if err != nil {
		return nil, err
	}

	counts := make(map[string]int)

	for {
		tuple, err := plan.Next()
		if err != nil {
			return nil, err
		}
		if tuple == nil {
			break
		}

		values := make([]string, len(defs))
		for i, def := range defs {
			values[i] = extractValue(g, tuple, def)
		}

		counts[strings.Join(values, "\x00")]++
	}

	res := make([]FrequencyRow, 0, len(counts))
	for key, count := range counts {
		res = append(res, FrequencyRow{Values: strings.Split(key, "\x00"),
			Count: count})
	}

	sort.Slice(res, func(i, j int) bool {
		if res[i].Count != res[j].Count {
			return res[i].Count > res[j].Count
		}
		return strings.Join(res[i].Values, "\x00") < strings.Join(res[j].Values, "\x00")
	})

	return res, nil
}

/*
extractValue resolves one frequency definition against a result tuple.
*/
func extractValue(g *graph.Graph, tuple data.MatchGroup, def FrequencyDef) string {
	idx := def.NodeRef - 1
	if idx < 0 || idx >= len(tuple) {
		return ""
	}

	node := tuple[idx].Node
	annos := g.NodeAnnotations()

	if def.NS != "" {
		val, _ := annos.Value(node, data.AnnoKey{Name: def.Name, NS: def.NS})
		return val
	}

	if def.Name == data.TokAttr {
		val, _ := annos.Value(node, *data.TokKey)
		return val
	}

	for _, key := range annos.KeysForItem(node, nil, &def.Name) {
		if val, ok := annos.Value(node, *key); ok {
			return val
		}
	}

	return ""
}
