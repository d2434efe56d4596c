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
	"bufio"
	"bytes"
	"encoding/xml"
	"fmt"
	"io"
	"sort"
	"strings"

	"devt.de/krotik/annisdb/graph/annostorage"
	"devt.de/krotik/annisdb/graph/data"
	"devt.de/krotik/annisdb/graph/graphstorage"
	"devt.de/krotik/annisdb/graph/util"
)

/*
graphMLHeader is the document head of a GraphML export.
*/
const graphMLHeader = `<?xml version="1.0" encoding="UTF-8" standalone="no"?>
<graphml xmlns="http://graphml.graphdrawing.org/xmlns" xmlns:xsi="http://www.w3.org/2001/XMLSchema-instance" xsi:schemaLocation="http://graphml.graphdrawing.org/xmlns http://graphml.graphdrawing.org/xmlns/1.0/graphml.xsd">
`

/*
ExportGraphML writes the graph as a GraphML document. Annotations become
data elements with one key declaration per qualified name, edges carry
their component as label attribute. With stable order the output is fully
deterministic: nodes are sorted by name and renumbered sequentially so two
exports of equal graphs are byte-identical.
*/
func (g *Graph) ExportGraphML(w io.Writer, stableOrder bool) error {
	if err := g.EnsureLoadedAll(); err != nil {
		return err
	}

	type nodeEntry struct {
		id   data.NodeID
		name string
	}

	ns := data.AnnisNamespace
	var nodes []nodeEntry

	it := g.nodeAnnos.ExactSearch(&ns, data.NodeNameAttr, annostorage.AnyValue())
	for m, ok := it.Next(); ok; m, ok = it.Next() {
		name, _ := g.nodeAnnos.Value(m.Item, *data.NodeNameKey)
		nodes = append(nodes, nodeEntry{id: m.Item, name: name})
	}
	if err := it.Err(); err != nil {
		return err
	}

	if stableOrder {
		sort.Slice(nodes, func(i, j int) bool { return nodes[i].name < nodes[j].name })
	} else {
		sort.Slice(nodes, func(i, j int) bool { return nodes[i].id < nodes[j].id })
	}

	// Nodes are renumbered sequentially so the document does not depend on
	// internal ID assignment

	exportID := make(map[data.NodeID]int, len(nodes))
	for i, n := range nodes {
		exportID[n.id] = i
	}

	// Key declarations

	nodeKeys := g.nodeAnnos.AnnotationKeys()

	edgeKeySet := make(map[data.AnnoKey]bool)
	for _, c := range g.AllComponents(nil, nil) {
		for _, k := range g.components[c].AnnotationStorage().AnnotationKeys() {
			edgeKeySet[k] = true
		}
	}

	var edgeKeys []data.AnnoKey
	for k := range edgeKeySet {
		edgeKeys = append(edgeKeys, k)
	}
	sort.Slice(edgeKeys, func(i, j int) bool { return edgeKeys[i].Compare(edgeKeys[j]) < 0 })

	bw := bufio.NewWriter(w)

	if _, err := bw.WriteString(graphMLHeader); err != nil {
		return &util.GraphError{Type: util.ErrWriting, Detail: err.Error()}
	}

	keyID := 0
	nodeKeyIDs := make(map[data.AnnoKey]string)
	edgeKeyIDs := make(map[data.AnnoKey]string)

	for _, k := range nodeKeys {
		nodeKeyIDs[k] = fmt.Sprintf("k%d", keyID)
		fmt.Fprintf(bw, "  <key id=\"%s\" for=\"node\" attr.name=\"%s\" attr.type=\"string\"/>\n",
			nodeKeyIDs[k], xmlEscape(k.String()))
		keyID++
	}
	for _, k := range edgeKeys {
		edgeKeyIDs[k] = fmt.Sprintf("k%d", keyID)
		fmt.Fprintf(bw, "  <key id=\"%s\" for=\"edge\" attr.name=\"%s\" attr.type=\"string\"/>\n",
			edgeKeyIDs[k], xmlEscape(k.String()))
		keyID++
	}

	bw.WriteString("  <graph id=\"G\" edgedefault=\"directed\">\n")

	for i, n := range nodes {
		fmt.Fprintf(bw, "    <node id=\"n%d\">\n", i)

		for _, anno := range g.nodeAnnos.Annotations(n.id) {
			fmt.Fprintf(bw, "      <data key=\"%s\">%s</data>\n",
				nodeKeyIDs[anno.Key], xmlEscape(anno.Val))
		}

		bw.WriteString("    </node>\n")
	}

	for _, c := range g.AllComponents(nil, nil) {
		st := g.components[c]
		annoStore := st.AnnotationStorage()

		var edges []data.Edge

		sources := st.SourceNodes()
		for s, ok := sources.Next(); ok; s, ok = sources.Next() {
			targets := st.OutgoingEdges(s)
			for t, tok := targets.Next(); tok; t, tok = targets.Next() {
				edges = append(edges, data.Edge{Source: s, Target: t})
			}
		}

		sort.Slice(edges, func(i, j int) bool {
			if exportID[edges[i].Source] != exportID[edges[j].Source] {
				return exportID[edges[i].Source] < exportID[edges[j].Source]
			}
			return exportID[edges[i].Target] < exportID[edges[j].Target]
		})

		label := xmlEscape(c.String())

		for _, e := range edges {
			annos := annoStore.Annotations(e)

			if len(annos) == 0 {
				fmt.Fprintf(bw, "    <edge source=\"n%d\" target=\"n%d\" label=\"%s\"/>\n",
					exportID[e.Source], exportID[e.Target], label)
				continue
			}

			fmt.Fprintf(bw, "    <edge source=\"n%d\" target=\"n%d\" label=\"%s\">\n",
				exportID[e.Source], exportID[e.Target], label)

			for _, anno := range annos {
				fmt.Fprintf(bw, "      <data key=\"%s\">%s</data>\n",
					edgeKeyIDs[anno.Key], xmlEscape(anno.Val))
			}

			bw.WriteString("    </edge>\n")
		}
	}

	bw.WriteString("  </graph>\n</graphml>\n")

	if err := bw.Flush(); err != nil {
		return &util.GraphError{Type: util.ErrWriting, Detail: err.Error()}
	}

	return nil
}

/*
xmlEscape escapes a string for use in XML text and attribute values.
*/
func xmlEscape(s string) string {
	var buf bytes.Buffer
	xml.EscapeText(&buf, []byte(s))
	return buf.String()
}

/*
ImportGraphML reads a GraphML document and rebuilds the graph by applying
one update batch. Derived components are recomputed during the apply, so
LeftToken, RightToken and InvertedCoverage edges of the document may be
omitted.
*/
func ImportGraphML(r io.Reader) (*Graph, error) {
	type xmlNode struct {
		name     string
		nodeType string
		labels   []data.Annotation
	}

	type xmlEdge struct {
		source string
		target string
		comp   data.Component
		labels []data.Annotation
	}

	keys := make(map[string]data.AnnoKey)
	nodeNames := make(map[string]string)

	var nodes []xmlNode
	var edges []xmlEdge

	dec := xml.NewDecoder(r)

	for {
		tok, err := dec.Token()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, &util.GraphError{Type: util.ErrReading, Detail: err.Error()}
		}

		se, ok := tok.(xml.StartElement)
		if !ok {
			continue
		}

		switch se.Name.Local {

		case "key":
			var id, attrName string
			for _, a := range se.Attr {
				switch a.Name.Local {
				case "id":
					id = a.Value
				case "attr.name":
					attrName = a.Value
				}
			}
			keys[id] = parseAnnoKey(attrName)

		case "node":
			xmlID := attrValue(se, "id")

			labels, err := readDataElements(dec, se, keys)
			if err != nil {
				return nil, err
			}

			node := xmlNode{name: xmlID}

			var rest []data.Annotation
			for _, anno := range labels {
				switch anno.Key {
				case *data.NodeNameKey:
					node.name = anno.Val
				case *data.NodeTypeKey:
					node.nodeType = anno.Val
				default:
					rest = append(rest, anno)
				}
			}

			node.labels = rest
			nodes = append(nodes, node)
			nodeNames[xmlID] = node.name

		case "edge":
			label := attrValue(se, "label")

			comp, err := parseComponentLabel(label)
			if err != nil {
				return nil, err
			}

			labels, err := readDataElements(dec, se, keys)
			if err != nil {
				return nil, err
			}

			edges = append(edges, xmlEdge{
				source: attrValue(se, "source"),
				target: attrValue(se, "target"),
				comp:   comp,
				labels: labels,
			})
		}
	}

	u := NewGraphUpdate()

	for _, n := range nodes {
		u.AddNode(n.name, n.nodeType)
		for _, anno := range n.labels {
			u.AddNodeLabel(n.name, anno.Key.NS, anno.Key.Name, anno.Val)
		}
	}

	for _, e := range edges {

		// Derived components are rebuilt by the apply

		if e.comp.CType == data.InvertedCoverage || e.comp.CType == data.LeftToken ||
			e.comp.CType == data.RightToken {
			continue
		}

		source, sok := nodeNames[e.source]
		target, tok := nodeNames[e.target]
		if !sok || !tok {
			return nil, &util.GraphError{Type: util.ErrCorrupted,
				Detail: "Edge references unknown node: " + e.source + " -> " + e.target}
		}

		ctype := e.comp.CType.String()

		u.AddEdge(source, target, e.comp.Layer, ctype, e.comp.Name)
		for _, anno := range e.labels {
			u.AddEdgeLabel(source, target, e.comp.Layer, ctype, e.comp.Name,
				anno.Key.NS, anno.Key.Name, anno.Val)
		}
	}

	g := NewGraph()

	if err := g.ApplyUpdate(u); err != nil {
		return nil, err
	}

	return g, nil
}

/*
readDataElements reads the data children of a node or edge element until
the element is closed.
*/
func readDataElements(dec *xml.Decoder, parent xml.StartElement,
	keys map[string]data.AnnoKey) ([]data.Annotation, error) {

	var res []data.Annotation

	depth := 1
	var curKey string
	var curVal strings.Builder
	inData := false

	for depth > 0 {
		tok, err := dec.Token()
		if err != nil {
			return nil, &util.GraphError{Type: util.ErrReading, Detail: err.Error()}
		}

		switch t := tok.(type) {

		case xml.StartElement:
			depth++
			if t.Name.Local == "data" {
				inData = true
				curKey = attrValue(t, "key")
				curVal.Reset()
			}

		case xml.CharData:
			if inData {
				curVal.Write(t)
			}

		case xml.EndElement:
			depth--
			if inData && t.Name.Local == "data" {
				inData = false
				if key, ok := keys[curKey]; ok {
					res = append(res, data.Annotation{Key: key, Val: curVal.String()})
				}
			}
		}
	}

	return res, nil
}

/*
attrValue returns the value of an attribute of an element.
*/
func attrValue(se xml.StartElement, name string) string {
	for _, a := range se.Attr {
		if a.Name.Local == name {
			return a.Value
		}
	}
	return ""
}

/*
parseAnnoKey parses the qualified form ns::name of an annotation key.
*/
func parseAnnoKey(s string) data.AnnoKey {
	if i := strings.Index(s, "::"); i >= 0 {
		return data.AnnoKey{NS: s[:i], Name: s[i+2:]}
	}
	return data.AnnoKey{Name: s}
}

/*
parseComponentLabel parses the path form Type/layer/name of an edge label.
*/
func parseComponentLabel(label string) (data.Component, error) {
	parts := strings.SplitN(label, "/", 3)

	if len(parts) != 3 {
		return data.Component{}, &util.GraphError{Type: util.ErrCorrupted,
			Detail: "Invalid edge label: " + label}
	}

	ctype, ok := data.ParseComponentType(parts[0])
	if !ok {
		return data.Component{}, &util.GraphError{Type: util.ErrCorrupted,
			Detail: "Unknown component type in edge label: " + label}
	}

	return data.Component{CType: ctype, Layer: parts[1], Name: parts[2]}, nil
}

/*
EdgeCount returns the number of edges of a loaded component storage. Used
by memory estimates and sanity checks after imports.
*/
func EdgeCount(st graphstorage.Storage) int {
	count := 0

	sources := st.SourceNodes()
	for s, ok := sources.Next(); ok; s, ok = sources.Next() {
		count += len(graphstorage.CollectNodes(st.OutgoingEdges(s)))
	}

	return count
}
