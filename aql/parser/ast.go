/*
 * AnnisDB
 *
 * Copyright 2016 Matthias Ladkau. All rights reserved.
 *
 * This Source Code Form is subject to the terms of the Mozilla Public
 * License, v. 2.0. If a copy of the MPL was not distributed with this
 * file, You can obtain one at http://mozilla.org/MPL/2.0/.
 */

package parser

import (
	"bytes"
	"fmt"
)

/*
ASTNode models a node in the parse tree.
*/
type ASTNode struct {
	Name     string     // Name of the node
	Token    *LexToken  // Lexer token of this node
	Children []*ASTNode // Child nodes
}

/*
newAstNode creates an AST node with a given name and token.
*/
func newAstNode(name string, token LexToken, children ...*ASTNode) *ASTNode {
	return &ASTNode{name, &token, children}
}

/*
Nodes which print their token value in the tree representation.
*/
var valueNodes = map[string]bool{
	NodeValue: true,
	NodeRegex: true,
	NodeAnno:  true,
	NodeRef:   true,
	NodeRange: true,
	NodeName:  true,
}

/*
String returns a string representation of this (sub-) tree.
*/
func (n *ASTNode) String() string {
	var buf bytes.Buffer
	n.levelString(0, &buf)
	return buf.String()
}

/*
levelString renders a node at a given level.
*/
func (n *ASTNode) levelString(indent int, buf *bytes.Buffer) {

	for i := 0; i < indent; i++ {
		buf.WriteString("  ")
	}

	if valueNodes[n.Name] && n.Token != nil {
		buf.WriteString(fmt.Sprintf("%s: %q\n", n.Name, n.Token.Val))
	} else {
		buf.WriteString(fmt.Sprintf("%s\n", n.Name))
	}

	for _, child := range n.Children {
		child.levelString(indent+1, buf)
	}
}
