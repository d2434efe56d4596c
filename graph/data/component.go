/*
 * AnnisDB
 *
 * Copyright 2016 Matthias Ladkau. All rights reserved.
 *
 * This Source Code Form is subject to the terms of the Mozilla Public
 * License, v. 2.0. If a copy of the MPL was not distributed with this
 * file, You can obtain one at http://mozilla.org/MPL/2.0/.
 */

package data

import (
	"fmt"
	"path"
)

/*
ComponentType is the type of an edge component. The type determines the
linguistic interpretation of the edges and which derived indexes the graph
maintains for them.
*/
type ComponentType uint16

/*
All component types of a corpus graph.
*/
const (
	Coverage          ComponentType = iota // Connects spans with the tokens they cover
	InvertedCoverage                       // Derived mirror of Coverage (token to covering node)
	Dominance                              // Hierarchical syntax structure
	Pointing                               // Free-form relations (dependencies, coreference)
	Ordering                               // Total order of tokens or segmentation units
	LeftToken                              // Derived edge to the leftmost covered token
	RightToken                             // Derived edge to the rightmost covered token
	PartOf                                 // (Sub-) corpus hierarchy
)

/*
componentTypeNames maps component types to their canonical names.
*/
var componentTypeNames = map[ComponentType]string{
	Coverage:         "Coverage",
	InvertedCoverage: "InvertedCoverage",
	Dominance:        "Dominance",
	Pointing:         "Pointing",
	Ordering:         "Ordering",
	LeftToken:        "LeftToken",
	RightToken:       "RightToken",
	PartOf:           "PartOf",
}

/*
AllComponentTypes returns all component types in their canonical order.
*/
func AllComponentTypes() []ComponentType {
	return []ComponentType{Coverage, InvertedCoverage, Dominance, Pointing,
		Ordering, LeftToken, RightToken, PartOf}
}

/*
String returns the canonical name of the component type.
*/
func (ct ComponentType) String() string {
	if name, ok := componentTypeNames[ct]; ok {
		return name
	}
	return fmt.Sprintf("ComponentType(%d)", uint16(ct))
}

/*
ParseComponentType returns the component type for a canonical name.
*/
func ParseComponentType(name string) (ComponentType, bool) {
	for ct, n := range componentTypeNames {
		if n == name {
			return ct, true
		}
	}
	return Coverage, false
}

/*
DefaultLayerDir is the directory name used for components with an empty
layer name.
*/
const DefaultLayerDir = "default_layer"

/*
Component identifies one edge component of the graph.
*/
type Component struct {
	CType ComponentType // Type of the component
	Layer string        // Layer which groups components; may be empty
	Name  string        // Name of the component; may be empty
}

/*
String returns the path form Type/layer/name of the component.
*/
func (c Component) String() string {
	return fmt.Sprintf("%v/%s/%s", c.CType, c.Layer, c.Name)
}

/*
Compare returns -1, 0 or 1 if this component is less, equal or greater
than the given other component. Components order by type, name and layer.
*/
func (c Component) Compare(other Component) int {
	if c.CType != other.CType {
		if c.CType < other.CType {
			return -1
		}
		return 1
	}
	if c.Name != other.Name {
		if c.Name < other.Name {
			return -1
		}
		return 1
	}
	if c.Layer != other.Layer {
		if c.Layer < other.Layer {
			return -1
		}
		return 1
	}
	return 0
}

/*
RelativePath returns the storage location of the component relative to the
corpus directory. An empty layer maps to the default layer directory, an
empty name to the layer directory itself.
*/
func (c Component) RelativePath() string {
	layer := c.Layer
	if layer == "" {
		layer = DefaultLayerDir
	}
	return path.Join("gs", c.CType.String(), layer, c.Name)
}

/*
DefaultOrderingComponent is the component holding the total order of the
base tokens.
*/
var DefaultOrderingComponent = Component{CType: Ordering, Layer: AnnisNamespace, Name: ""}

/*
Components maintained by the graph itself.
*/
var (
	CoverageComponent         = Component{CType: Coverage, Layer: AnnisNamespace, Name: ""}
	InvertedCoverageComponent = Component{CType: InvertedCoverage, Layer: AnnisNamespace, Name: ""}
	LeftTokenComponent        = Component{CType: LeftToken, Layer: AnnisNamespace, Name: ""}
	RightTokenComponent       = Component{CType: RightToken, Layer: AnnisNamespace, Name: ""}
	PartOfComponent           = Component{CType: PartOf, Layer: AnnisNamespace, Name: ""}
)
