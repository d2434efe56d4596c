/*
 * AnnisDB
 *
 * Copyright 2016 Matthias Ladkau. All rights reserved.
 *
 * This Source Code Form is subject to the terms of the Mozilla Public
 * License, v. 2.0. If a copy of the MPL was not distributed with this
 * file, You can obtain one at http://mozilla.org/MPL/2.0/.
 */

package graphstorage

import "devt.de/krotik/annisdb/graph/data"

/*
DFSStep is one visited node of a depth-first traversal together with its
distance from the start node.
*/
type DFSStep struct {
	Node     data.NodeID
	Distance int
}

/*
dfsEntry is one stack entry of the traversal. Exit entries unmark a node
when its subtree has been fully visited.
*/
type dfsEntry struct {
	node data.NodeID
	dist int
	exit bool
}

/*
CycleSafeDFS is an iterative depth-first traversal over an edge container.
The explicit stack protects against stack overflows on deeply nested
structures and edges closing a cycle are detected and not followed.
*/
type CycleSafeDFS struct {
	container EdgeContainer
	inverse   bool
	minDist   int
	maxDist   int
	stack     []dfsEntry
	path      map[data.NodeID]bool
	cyclic    bool
}

/*
NewCycleSafeDFS starts a depth-first traversal at the given node. Nodes
are reported if their distance from the start is within the inclusive range
[minDist, maxDist]. With the inverse flag the traversal follows edges
against their direction.
*/
func NewCycleSafeDFS(container EdgeContainer, node data.NodeID, minDist int,
	maxDist int, inverse bool) *CycleSafeDFS {

	return &CycleSafeDFS{
		container: container,
		inverse:   inverse,
		minDist:   minDist,
		maxDist:   maxDist,
		stack:     []dfsEntry{{node: node, dist: 0}},
		path:      make(map[data.NodeID]bool),
	}
}

/*
Next returns the next traversal step. The boolean return value is false
once the traversal is finished.
*/
func (dfs *CycleSafeDFS) Next() (DFSStep, bool) {
	for len(dfs.stack) > 0 {
		entry := dfs.stack[len(dfs.stack)-1]
		dfs.stack = dfs.stack[:len(dfs.stack)-1]

		if entry.exit {
			delete(dfs.path, entry.node)
			continue
		}

		if dfs.path[entry.node] {
			dfs.cyclic = true
			continue
		}

		dfs.path[entry.node] = true
		dfs.stack = append(dfs.stack, dfsEntry{node: entry.node, dist: entry.dist, exit: true})

		if entry.dist < dfs.maxDist {
			var children NodeIterator

			if dfs.inverse {
				children = dfs.container.IngoingEdges(entry.node)
			} else {
				children = dfs.container.OutgoingEdges(entry.node)
			}

			// Push in reverse so the first child is visited first

			targets := CollectNodes(children)
			for i := len(targets) - 1; i >= 0; i-- {
				dfs.stack = append(dfs.stack, dfsEntry{node: targets[i], dist: entry.dist + 1})
			}
		}

		if entry.dist >= dfs.minDist {
			return DFSStep{Node: entry.node, Distance: entry.dist}, true
		}
	}

	return DFSStep{}, false
}

/*
CycleDetected reports if the traversal encountered an edge closing a cycle.
*/
func (dfs *CycleSafeDFS) CycleDetected() bool {
	return dfs.cyclic
}

/*
findConnectedIterator adapts a CycleSafeDFS to a non-repeating node
iterator.
*/
type findConnectedIterator struct {
	dfs     *CycleSafeDFS
	emitted map[data.NodeID]bool
}

func (it *findConnectedIterator) Next() (data.NodeID, bool) {
	for step, ok := it.dfs.Next(); ok; step, ok = it.dfs.Next() {
		if !it.emitted[step.Node] {
			it.emitted[step.Node] = true
			return step.Node, true
		}
	}

	return 0, false
}

/*
newFindConnectedIterator returns a non-repeating iterator over all nodes
reachable from the given node within the distance range.
*/
func newFindConnectedIterator(container EdgeContainer, node data.NodeID,
	minDist int, maxDist int, inverse bool) NodeIterator {

	return &findConnectedIterator{
		dfs:     NewCycleSafeDFS(container, node, minDist, maxDist, inverse),
		emitted: make(map[data.NodeID]bool),
	}
}
