/*
 * AnnisDB
 *
 * Copyright 2016 Matthias Ladkau. All rights reserved.
 *
 * This Source Code Form is subject to the terms of the Mozilla Public
 * License, v. 2.0. If a copy of the MPL was not distributed with this
 * file, You can obtain one at http://mozilla.org/MPL/2.0/.
 */

package graph

import (
	"sort"

	"devt.de/krotik/annisdb/graph/annostorage"
	"devt.de/krotik/annisdb/graph/data"
	"devt.de/krotik/annisdb/graph/graphstorage"
	"devt.de/krotik/annisdb/graph/util"
	"golang.org/x/sync/errgroup"
)

/*
ApplyUpdate applies an update batch to the graph. The batch is journaled in
the write-ahead log before it is applied, derived components and statistics
are rebuilt afterwards and the graph is persisted if it has a storage
location.
*/
func (g *Graph) ApplyUpdate(u *GraphUpdate) error {
	return g.applyUpdate(u, true)
}

/*
ApplyUpdateKeepStatistics applies an update batch without rebuilding the
component and annotation statistics. Intended for bulk imports which
finish with one explicit statistics run.
*/
func (g *Graph) ApplyUpdateKeepStatistics(u *GraphUpdate) error {
	return g.applyUpdate(u, false)
}

func (g *Graph) applyUpdate(u *GraphUpdate, calcStats bool) error {
	if !u.IsConsistent() {
		u.Finish()
	}

	if len(u.Events()) == 0 {
		return nil
	}

	// Change IDs of the batch are offset to continue the graph history

	events := make([]UpdateEvent, len(u.Events()))
	copy(events, u.Events())

	for i := range events {
		events[i].ChangeID += g.changeID
	}

	if g.location != "" {
		if err := writeWAL(g.location, events); err != nil {
			return err
		}
	}

	if err := g.applyEvents(events, calcStats); err != nil {
		return err
	}

	if g.location != "" {
		if err := g.SaveTo(g.location); err != nil {
			return err
		}
		return removeWAL(g.location)
	}

	return nil
}

/*
applyEvents applies a list of events with absolute change IDs to the graph
state and rebuilds the derived components.
*/
func (g *Graph) applyEvents(events []UpdateEvent, calcStats bool) error {

	// Node deletion and the derived indexes need all components in memory

	if err := g.EnsureLoadedAll(); err != nil {
		return err
	}

	for _, ev := range events {
		if err := g.applyEvent(ev); err != nil {
			return err
		}
	}

	if err := g.recomputeDerived(); err != nil {
		return err
	}

	if calcStats {
		if err := g.recomputeStatistics(); err != nil {
			return err
		}
	}

	g.changeID = events[len(events)-1].ChangeID
	return nil
}

/*
applyEvent applies a single event. Duplicate adds and deletes of absent
items are no-ops so a replayed log converges to the same state.
*/
func (g *Graph) applyEvent(ev UpdateEvent) error {
	switch ev.Kind {

	case EventAddNode:
		_, err := g.ensureNode(ev.NodeName, ev.NodeType)
		return err

	case EventDeleteNode:
		id, ok := g.NodeIDFromName(ev.NodeName)
		if !ok {
			return nil
		}
		return g.deleteNode(id)

	case EventAddNodeLabel:
		id, ok := g.NodeIDFromName(ev.NodeName)
		if !ok {
			return nil
		}
		return g.nodeAnnos.Insert(id, data.Annotation{
			Key: data.AnnoKey{Name: ev.Name, NS: ev.NS}, Val: ev.Value})

	case EventDeleteNodeLabel:
		if id, ok := g.NodeIDFromName(ev.NodeName); ok {
			g.nodeAnnos.Remove(id, data.AnnoKey{Name: ev.Name, NS: ev.NS})
		}
		return nil

	case EventAddEdge:
		comp, err := g.eventComponent(ev)
		if err != nil {
			return err
		}

		source, err := g.ensureNode(ev.Source, "")
		if err != nil {
			return err
		}
		target, err := g.ensureNode(ev.Target, "")
		if err != nil {
			return err
		}

		ws, err := g.GetOrCreateWriteable(comp)
		if err != nil {
			return err
		}
		return ws.AddEdge(data.Edge{Source: source, Target: target})

	case EventDeleteEdge:
		comp, err := g.eventComponent(ev)
		if err != nil {
			return err
		}

		source, sok := g.NodeIDFromName(ev.Source)
		target, tok := g.NodeIDFromName(ev.Target)
		if !sok || !tok || !g.HasComponent(comp) {
			return nil
		}

		ws, err := g.GetOrCreateWriteable(comp)
		if err != nil {
			return err
		}
		return ws.DeleteEdge(data.Edge{Source: source, Target: target})

	case EventAddEdgeLabel:
		comp, err := g.eventComponent(ev)
		if err != nil {
			return err
		}

		source, sok := g.NodeIDFromName(ev.Source)
		target, tok := g.NodeIDFromName(ev.Target)
		if !sok || !tok || !g.HasComponent(comp) {
			return nil
		}

		ws, err := g.GetOrCreateWriteable(comp)
		if err != nil {
			return err
		}

		if !ws.IsConnected(source, target, 1, 1) {
			return nil
		}

		return ws.AddEdgeAnnotation(data.Edge{Source: source, Target: target},
			data.Annotation{Key: data.AnnoKey{Name: ev.Name, NS: ev.NS}, Val: ev.Value})

	case EventDeleteEdgeLabel:
		comp, err := g.eventComponent(ev)
		if err != nil {
			return err
		}

		source, sok := g.NodeIDFromName(ev.Source)
		target, tok := g.NodeIDFromName(ev.Target)
		if !sok || !tok || !g.HasComponent(comp) {
			return nil
		}

		ws, err := g.GetOrCreateWriteable(comp)
		if err != nil {
			return err
		}

		return ws.DeleteEdgeAnnotation(data.Edge{Source: source, Target: target},
			data.AnnoKey{Name: ev.Name, NS: ev.NS})
	}

	return &util.GraphError{Type: util.ErrInvalidUpdate,
		Detail: "Unknown event kind"}
}

/*
eventComponent resolves the component of an edge event.
*/
func (g *Graph) eventComponent(ev UpdateEvent) (data.Component, error) {
	ctype, ok := data.ParseComponentType(ev.CType)
	if !ok {
		return data.Component{}, &util.GraphError{Type: util.ErrInvalidUpdate,
			Detail: "Unknown component type: " + ev.CType}
	}

	return data.Component{CType: ctype, Layer: ev.Layer, Name: ev.CName}, nil
}

/*
ensureNode returns the ID of a named node and creates the node if it does
not exist yet. An empty node type defaults to an ordinary annotation node.
*/
func (g *Graph) ensureNode(name string, nodeType string) (data.NodeID, error) {
	if id, ok := g.NodeIDFromName(name); ok {
		return id, nil
	}

	var id data.NodeID
	if largest, ok := g.nodeAnnos.LargestItem(); ok {
		id = largest + 1
	}

	if err := g.nodeAnnos.Insert(id, data.Annotation{
		Key: *data.NodeNameKey, Val: name}); err != nil {
		return 0, err
	}

	if nodeType == "" {
		nodeType = data.NodeTypeNode
	}

	if err := g.nodeAnnos.Insert(id, data.Annotation{
		Key: *data.NodeTypeKey, Val: nodeType}); err != nil {
		return 0, err
	}

	return id, nil
}

/*
deleteNode removes a node with its annotations and all its edges.
*/
func (g *Graph) deleteNode(id data.NodeID) error {
	for _, c := range g.AllComponents(nil, nil) {
		st := g.components[c]

		out := graphstorage.CollectNodes(st.OutgoingEdges(id))
		in := graphstorage.CollectNodes(st.IngoingEdges(id))

		if len(out) == 0 && len(in) == 0 {
			continue
		}

		ws, err := g.GetOrCreateWriteable(c)
		if err != nil {
			return err
		}
		if err := ws.DeleteNode(id); err != nil {
			return err
		}
	}

	return g.nodeAnnos.RemoveItem(id)
}

// Derived components
// ==================

/*
recomputeDerived rebuilds the components which are maintained by the graph
itself: LeftToken and RightToken edges for every node covering tokens, the
InvertedCoverage mirror and the flattened Coverage edges between indirectly
covering nodes and their tokens.
*/
func (g *Graph) recomputeDerived() error {
	positions, err := g.tokenPositions()
	if err != nil {
		return err
	}

	ctype := data.Coverage
	covComps := g.AllComponents(&ctype, nil)

	// Collect all covering nodes and their flattened token sets before any
	// derived component is touched

	coverSources := make(map[data.NodeID]bool)

	for _, c := range covComps {
		st, err := g.Storage(c)
		if err != nil {
			return err
		}

		sources := st.SourceNodes()
		for s, ok := sources.Next(); ok; s, ok = sources.Next() {
			if _, isToken := positions[s]; !isToken {
				coverSources[s] = true
			}
		}
	}

	type nodeCoverage struct {
		node   data.NodeID
		tokens []data.NodeID
	}

	var coverage []nodeCoverage

	for n := range coverSources {
		tokens, err := g.coveredTokens(n, covComps, positions)
		if err != nil {
			return err
		}
		if len(tokens) > 0 {
			coverage = append(coverage, nodeCoverage{node: n, tokens: tokens})
		}
	}

	sort.Slice(coverage, func(i, j int) bool { return coverage[i].node < coverage[j].node })

	left, err := g.GetOrCreateWriteable(data.LeftTokenComponent)
	if err != nil {
		return err
	}
	right, err := g.GetOrCreateWriteable(data.RightTokenComponent)
	if err != nil {
		return err
	}
	inv, err := g.GetOrCreateWriteable(data.InvertedCoverageComponent)
	if err != nil {
		return err
	}
	cov, err := g.GetOrCreateWriteable(data.CoverageComponent)
	if err != nil {
		return err
	}

	if err := left.Clear(); err != nil {
		return err
	}
	if err := right.Clear(); err != nil {
		return err
	}
	if err := inv.Clear(); err != nil {
		return err
	}

	for _, nc := range coverage {
		leftTok, rightTok := nc.tokens[0], nc.tokens[0]

		for _, t := range nc.tokens[1:] {
			if positions[t] < positions[leftTok] {
				leftTok = t
			}
			if positions[t] > positions[rightTok] {
				rightTok = t
			}
		}

		if err := left.AddEdge(data.Edge{Source: nc.node, Target: leftTok}); err != nil {
			return err
		}
		if err := right.AddEdge(data.Edge{Source: nc.node, Target: rightTok}); err != nil {
			return err
		}

		for _, t := range nc.tokens {
			if err := inv.AddEdge(data.Edge{Source: t, Target: nc.node}); err != nil {
				return err
			}
			if err := cov.AddEdge(data.Edge{Source: nc.node, Target: t}); err != nil {
				return err
			}
		}
	}

	return nil
}

/*
tokenPositions returns the position of every token in the base token order.
Tokens which are not part of an ordering chain are appended in ID order.
*/
func (g *Graph) tokenPositions() (map[data.NodeID]int, error) {
	positions := make(map[data.NodeID]int)
	pos := 0

	if g.HasComponent(data.DefaultOrderingComponent) {
		ord, err := g.Storage(data.DefaultOrderingComponent)
		if err != nil {
			return nil, err
		}

		var roots []data.NodeID

		sources := ord.SourceNodes()
		for s, ok := sources.Next(); ok; s, ok = sources.Next() {
			if _, hasIn := ord.IngoingEdges(s).Next(); !hasIn {
				roots = append(roots, s)
			}
		}

		sort.Slice(roots, func(i, j int) bool { return roots[i] < roots[j] })

		for _, root := range roots {
			cur := root
			for {
				if _, seen := positions[cur]; seen {
					break
				}

				positions[cur] = pos
				pos++

				next, ok := ord.OutgoingEdges(cur).Next()
				if !ok {
					break
				}
				cur = next
			}
		}
	}

	// Tokens outside any ordering chain, e.g. single token texts

	ns := data.AnnisNamespace
	var unordered []data.NodeID

	it := g.nodeAnnos.ExactSearch(&ns, data.TokAttr, annostorage.AnyValue())
	for m, ok := it.Next(); ok; m, ok = it.Next() {
		if _, seen := positions[m.Item]; !seen && g.isToken(m.Item) {
			unordered = append(unordered, m.Item)
		}
	}
	if err := it.Err(); err != nil {
		return nil, err
	}

	sort.Slice(unordered, func(i, j int) bool { return unordered[i] < unordered[j] })

	for _, t := range unordered {
		positions[t] = pos
		pos++
	}

	return positions, nil
}

/*
isToken checks if a node is a proper token: it spans text and does not
cover any other node. Segmentation nodes carry spanned text as well but
cover the base tokens.
*/
func (g *Graph) isToken(id data.NodeID) bool {
	if _, ok := g.nodeAnnos.Value(id, *data.TokKey); !ok {
		return false
	}

	ctype := data.Coverage
	for _, c := range g.AllComponents(&ctype, nil) {
		if st := g.components[c]; st != nil {
			if _, ok := st.OutgoingEdges(id).Next(); ok {
				return false
			}
		}
	}

	return true
}

/*
coveredTokens returns all tokens covered by a node, following coverage
edges over intermediate nodes with an explicit worklist. The result is
ordered by token position.
*/
func (g *Graph) coveredTokens(node data.NodeID, covComps []data.Component,
	positions map[data.NodeID]int) ([]data.NodeID, error) {

	var tokens []data.NodeID

	seen := map[data.NodeID]bool{node: true}
	stack := []data.NodeID{node}

	for len(stack) > 0 {
		cur := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		for _, c := range covComps {
			st, err := g.Storage(c)
			if err != nil {
				return nil, err
			}

			targets := st.OutgoingEdges(cur)
			for t, ok := targets.Next(); ok; t, ok = targets.Next() {
				if seen[t] {
					continue
				}
				seen[t] = true

				if _, isToken := positions[t]; isToken {
					tokens = append(tokens, t)
				} else {
					stack = append(stack, t)
				}
			}
		}
	}

	sort.Slice(tokens, func(i, j int) bool {
		return positions[tokens[i]] < positions[tokens[j]]
	})

	return tokens, nil
}

/*
recomputeStatistics rebuilds the statistics of all loaded components and
annotation stores concurrently.
*/
func (g *Graph) recomputeStatistics() error {
	var eg errgroup.Group

	for _, c := range g.AllComponents(nil, nil) {
		st := g.components[c]
		if st == nil {
			continue
		}

		if ws, ok := st.(graphstorage.WriteableStorage); ok {
			eg.Go(ws.CalculateStatistics)
		}
		eg.Go(st.AnnotationStorage().CalculateStatistics)
	}

	eg.Go(g.nodeAnnos.CalculateStatistics)

	return eg.Wait()
}
