/*
 * AnnisDB
 *
 * Copyright 2016 Matthias Ladkau. All rights reserved.
 *
 * This Source Code Form is subject to the terms of the Mozilla Public
 * License, v. 2.0. If a copy of the MPL was not distributed with this
 * file, You can obtain one at http://mozilla.org/MPL/2.0/.
 */

/*
Package data contains the core value types of the graph model.

Nodes are identified by numeric IDs which are unique within one corpus graph.
All further node information is expressed as annotations: qualified
(namespace, name) keys mapping to string values. Edges are directed pairs of
node IDs which live in exactly one component of the graph.

Annotation keys are interned so equal keys share one pointer and key
comparisons during query execution are cheap. The interned well-known keys
of the annis namespace are available as package variables.
*/
package data

import (
	"fmt"
	"sync"
)

/*
NodeID is the unique internal identifier for a single node.
*/
type NodeID uint64

/*
AnnisNamespace is the namespace of the built-in annotations.
*/
const AnnisNamespace = "annis"

/*
Names of the built-in annotations.
*/
const (
	NodeNameAttr = "node_name" // Fully qualified name of a node (unique per corpus)
	NodeTypeAttr = "node_type" // General type of a node ("node", "corpus", "datasource")
	TokAttr      = "tok"       // Spanned text of a token node
)

/*
NodeTypeNode is the node_type value of ordinary annotation nodes.
*/
const NodeTypeNode = "node"

/*
NodeTypeCorpus is the node_type value of corpus and document nodes.
*/
const NodeTypeCorpus = "corpus"

/*
NodeTypeDatasource is the node_type value of primary text nodes.
*/
const NodeTypeDatasource = "datasource"

/*
AnnoKey is the fully qualified name of an annotation. Keys order by name
first and namespace second.
*/
type AnnoKey struct {
	Name string // Name of the annotation
	NS   string // Namespace of the annotation
}

/*
String returns the qualified form ns::name (or just the name for an
empty namespace).
*/
func (k AnnoKey) String() string {
	if k.NS == "" {
		return k.Name
	}
	return fmt.Sprintf("%s::%s", k.NS, k.Name)
}

/*
Compare returns -1, 0 or 1 if this key is less, equal or greater than the
given other key.
*/
func (k AnnoKey) Compare(other AnnoKey) int {
	if k.Name != other.Name {
		if k.Name < other.Name {
			return -1
		}
		return 1
	}
	if k.NS != other.NS {
		if k.NS < other.NS {
			return -1
		}
		return 1
	}
	return 0
}

/*
Annotation is a qualified key with a value.
*/
type Annotation struct {
	Key AnnoKey // Qualified name of the annotation
	Val string  // Value of the annotation
}

/*
Edge is a directed connection between a source and a target node.
*/
type Edge struct {
	Source NodeID
	Target NodeID
}

/*
Inverse returns the edge with source and target swapped.
*/
func (e Edge) Inverse() Edge {
	return Edge{Source: e.Target, Target: e.Source}
}

/*
Match is a single matched node together with the qualified name of the
annotation which matched. The key pointer is interned and shared.
*/
type Match struct {
	Node NodeID
	Key  *AnnoKey
}

/*
MatchGroup is one result tuple of a query. The index within the group
corresponds to the node position in the executed plan.
*/
type MatchGroup []Match

// Interned annotation keys
// ========================

var keyPool = struct {
	sync.Mutex
	keys map[AnnoKey]*AnnoKey
}{keys: make(map[AnnoKey]*AnnoKey)}

/*
InternedKey returns the shared instance for a given namespace and name.
The returned pointer must never be used to mutate the key.
*/
func InternedKey(ns string, name string) *AnnoKey {
	k := AnnoKey{Name: name, NS: ns}

	keyPool.Lock()
	defer keyPool.Unlock()

	if shared, ok := keyPool.keys[k]; ok {
		return shared
	}

	keyPool.keys[k] = &k
	return &k
}

/*
Well-known interned annotation keys.
*/
var (
	NodeNameKey = InternedKey(AnnisNamespace, NodeNameAttr)
	NodeTypeKey = InternedKey(AnnisNamespace, NodeTypeAttr)
	TokKey      = InternedKey(AnnisNamespace, TokAttr)
	DefaultKey  = InternedKey("", "") // Placeholder key for matches without an annotation
)
