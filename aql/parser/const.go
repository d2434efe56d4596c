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
Constants for parser and lexer.
*/

package parser

// Lexer tokens
// ============

/*
LexTokenID represents a unique lexer token ID.
*/
type LexTokenID int

/*
All lexer token IDs. Operator tokens may carry an attached component name
as value, e.g. ">secedge" or "->dep".
*/
const (
	TokenError LexTokenID = iota // Lexing error token with a message as val
	TokenEOF                     // End-of-file token

	TokenValue  // Quoted annotation value
	TokenRegex  // Regular expression value
	TokenIdent  // Identifier
	TokenNumber // Number literal
	TokenRef    // Node reference #1 or #name

	TokenSYMBOLS // Used to separate symbols from other tokens in this list

	TokenAnd    // &
	TokenOr     // |
	TokenLparen // (
	TokenRparen // )
	TokenEq     // =
	TokenNeq    // !=
	TokenColon  // :
	TokenComma  // ,
	TokenStar   // *
	TokenQuest  // ?
	TokenNegate // !

	TokenPrecedence // .
	TokenNear       // ^
	TokenDominance  // > with an optional attached component name
	TokenPointing   // -> with an attached component name
	TokenPartOf     // @
	TokenIdentNode  // ==
	TokenOverlap    // _o_
	TokenInclusion  // _i_
	TokenIdentCov   // _=_
	TokenLeftAlign  // _l_
	TokenRightAlign // _r_
)

// Parser AST nodes
// ================

/*
Names of AST nodes.
*/
const (
	NodeEOF = "EOF"

	// Node searches

	NodeTok      = "tok"      // Token search with an optional value
	NodeAnno     = "anno"     // Annotation search
	NodeNode     = "node"     // Unconstrained node search
	NodeOptional = "optional" // Optional node search
	NodeRef      = "ref"      // Back-reference to a node search

	// Value constraints

	NodeValue = "value" // Exact value
	NodeRegex = "regex" // Regular expression value
	NodeEq    = "="
	NodeNeq   = "!="

	// Binary operators

	NodePrecedence = "."
	NodeNear       = "^"
	NodeDominance  = ">"
	NodePointing   = "->"
	NodePartOf     = "@"
	NodeIdentNode  = "=="
	NodeOverlap    = "_o_"
	NodeInclusion  = "_i_"
	NodeIdentCov   = "_=_"
	NodeLeftAlign  = "_l_"
	NodeRightAlign = "_r_"

	// Operator details

	NodeRange = "range" // Distance range of an operator
	NodeName  = "name"  // Component name of an operator
	NodeNot   = "not"   // Operator negation

	// Boolean combination

	NodeOr  = "or"
	NodeAnd = "and"
)
