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
	"encoding/gob"
	"os"
	"path/filepath"

	"devt.de/krotik/annisdb/graph/util"
	"devt.de/krotik/common/fileutil"
)

/*
WALFileName is the name of the write-ahead log of a corpus graph.
*/
const WALFileName = "wal.log"

/*
EventKind is the type of a single update event.
*/
type EventKind int

/*
All update event kinds.
*/
const (
	EventAddNode EventKind = iota
	EventDeleteNode
	EventAddNodeLabel
	EventDeleteNodeLabel
	EventAddEdge
	EventDeleteEdge
	EventAddEdgeLabel
	EventDeleteEdgeLabel
)

/*
UpdateEvent is one atomic change to a corpus graph. Nodes are referenced
by their name so events stay valid independent of internal ID assignment.
Edge events carry the component as type name, layer and component name.
*/
type UpdateEvent struct {
	ChangeID uint64    // Monotonically increasing ID of the change
	Kind     EventKind // Kind of the event

	NodeName string // Name of the affected node
	NodeType string // Type of an added node

	NS    string // Namespace of an affected label
	Name  string // Name of an affected label
	Value string // Value of an added label

	Source string // Node name of the edge source
	Target string // Node name of the edge target
	Layer  string // Layer of the affected component
	CType  string // Type name of the affected component
	CName  string // Name of the affected component
}

/*
GraphUpdate is an append-only list of update events which is applied to a
graph as one atomic batch.
*/
type GraphUpdate struct {
	events     []UpdateEvent
	lastID     uint64
	consistent bool
}

/*
NewGraphUpdate creates a new empty update batch.
*/
func NewGraphUpdate() *GraphUpdate {
	return &GraphUpdate{}
}

/*
add appends an event and assigns the next change ID.
*/
func (gu *GraphUpdate) add(ev UpdateEvent) {
	gu.lastID++
	ev.ChangeID = gu.lastID
	gu.events = append(gu.events, ev)
	gu.consistent = false
}

/*
AddNode adds a node with a given name and type. An empty type defaults to
an ordinary annotation node.
*/
func (gu *GraphUpdate) AddNode(name string, nodeType string) {
	gu.add(UpdateEvent{Kind: EventAddNode, NodeName: name, NodeType: nodeType})
}

/*
DeleteNode removes a node together with all its labels and edges.
*/
func (gu *GraphUpdate) DeleteNode(name string) {
	gu.add(UpdateEvent{Kind: EventDeleteNode, NodeName: name})
}

/*
AddNodeLabel adds a label to an existing node.
*/
func (gu *GraphUpdate) AddNodeLabel(node string, ns string, name string, value string) {
	gu.add(UpdateEvent{Kind: EventAddNodeLabel, NodeName: node, NS: ns,
		Name: name, Value: value})
}

/*
DeleteNodeLabel removes a label of a node.
*/
func (gu *GraphUpdate) DeleteNodeLabel(node string, ns string, name string) {
	gu.add(UpdateEvent{Kind: EventDeleteNodeLabel, NodeName: node, NS: ns,
		Name: name})
}

/*
AddEdge adds an edge between two nodes in a component. Nodes which do not
exist yet are created when the event is applied.
*/
func (gu *GraphUpdate) AddEdge(source string, target string, layer string,
	ctype string, cname string) {

	gu.add(UpdateEvent{Kind: EventAddEdge, Source: source, Target: target,
		Layer: layer, CType: ctype, CName: cname})
}

/*
DeleteEdge removes an edge from a component.
*/
func (gu *GraphUpdate) DeleteEdge(source string, target string, layer string,
	ctype string, cname string) {

	gu.add(UpdateEvent{Kind: EventDeleteEdge, Source: source, Target: target,
		Layer: layer, CType: ctype, CName: cname})
}

/*
AddEdgeLabel adds a label to an existing edge.
*/
func (gu *GraphUpdate) AddEdgeLabel(source string, target string, layer string,
	ctype string, cname string, ns string, name string, value string) {

	gu.add(UpdateEvent{Kind: EventAddEdgeLabel, Source: source, Target: target,
		Layer: layer, CType: ctype, CName: cname, NS: ns, Name: name,
		Value: value})
}

/*
DeleteEdgeLabel removes a label of an edge.
*/
func (gu *GraphUpdate) DeleteEdgeLabel(source string, target string, layer string,
	ctype string, cname string, ns string, name string) {

	gu.add(UpdateEvent{Kind: EventDeleteEdgeLabel, Source: source, Target: target,
		Layer: layer, CType: ctype, CName: cname, NS: ns, Name: name})
}

/*
Events returns all events of the batch in order.
*/
func (gu *GraphUpdate) Events() []UpdateEvent {
	return gu.events
}

/*
LastChangeID returns the highest change ID of the batch.
*/
func (gu *GraphUpdate) LastChangeID() uint64 {
	return gu.lastID
}

/*
Finish marks the batch as consistent. No further events may be added.
*/
func (gu *GraphUpdate) Finish() {
	gu.consistent = true
}

/*
IsConsistent reports if the batch has been finished.
*/
func (gu *GraphUpdate) IsConsistent() bool {
	return gu.consistent
}

// Write-ahead log
// ===============

/*
writeWAL writes a list of events into the write-ahead log of a graph
location. The log is synced to disk before any event is applied.
*/
func writeWAL(location string, events []UpdateEvent) error {
	if err := os.MkdirAll(location, 0770); err != nil {
		return &util.GraphError{Type: util.ErrStorageIO, Detail: err.Error()}
	}

	f, err := os.Create(filepath.Join(location, WALFileName))
	if err != nil {
		return &util.GraphError{Type: util.ErrStorageIO, Detail: err.Error()}
	}

	if err := gob.NewEncoder(f).Encode(events); err != nil {
		f.Close()
		return &util.GraphError{Type: util.ErrWriting, Detail: err.Error()}
	}

	if err := f.Sync(); err != nil {
		f.Close()
		return &util.GraphError{Type: util.ErrFlushing, Detail: err.Error()}
	}

	return f.Close()
}

/*
readWAL reads the events of the write-ahead log of a graph location. The
result is nil if no log exists.
*/
func readWAL(location string) ([]UpdateEvent, error) {
	walFile := filepath.Join(location, WALFileName)

	if ok, _ := fileutil.PathExists(walFile); !ok {
		return nil, nil
	}

	f, err := os.Open(walFile)
	if err != nil {
		return nil, &util.GraphError{Type: util.ErrStorageIO, Detail: err.Error()}
	}
	defer f.Close()

	var events []UpdateEvent

	if err := gob.NewDecoder(f).Decode(&events); err != nil {

		// A torn log from a crash during the WAL write itself is ignored -
		// nothing of the batch has been applied in that case

		return nil, nil
	}

	return events, nil
}

/*
removeWAL removes the write-ahead log of a graph location.
*/
func removeWAL(location string) error {
	err := os.Remove(filepath.Join(location, WALFileName))
	if err != nil && !os.IsNotExist(err) {
		return &util.GraphError{Type: util.ErrStorageIO, Detail: err.Error()}
	}
	return nil
}
