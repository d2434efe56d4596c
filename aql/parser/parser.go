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
Package parser contains the lexer and parser for AQL queries.

The parser produces a plain syntax tree of ASTNode objects:

	query        := conjunction { "|" conjunction }
	conjunction  := factor { "&" factor }
	factor       := "(" query ")"
	             | nodesearch [ "?" ]
	             | operand binaryop operand
	operand      := noderef | nodesearch
	nodesearch   := "tok" [ constraint ] | "node" | qname [ constraint ] | value
	qname        := ident [ ":" ident ]
	constraint   := ( "=" | "!=" ) value
	value        := quoted string | regular expression
	binaryop     := [ "!" ] operator [ name ] [ range ]

Semantic normalization - assigning node indexes, resolving references and
rewriting negated operators - is not done here but by the interpreter.
*/
package parser

import (
	"fmt"
	"strconv"
)

/*
parser data structure
*/
type parser struct {
	name   string     // Name to identify the input
	tokens []LexToken // Tokens to parse
	pos    int        // Current token position
}

/*
Parse parses a given input string and returns the resulting syntax tree.
*/
func Parse(name string, input string) (*ASTNode, error) {
	p := &parser{name, LexToList(name, input), 0}

	// A lexer error always takes precedence

	for _, t := range p.tokens {
		if t.ID == TokenError {
			return nil, p.newParserError(ErrLexicalError, t.Val, t)
		}
	}

	ast, err := p.parseQuery()
	if err != nil {
		return nil, err
	}

	if t := p.head(); t.ID != TokenEOF {
		return nil, p.newParserError(ErrUnexpectedToken, t.String(), t)
	}

	return ast, nil
}

/*
head returns the current token without advancing.
*/
func (p *parser) head() LexToken {
	if p.pos < len(p.tokens) {
		return p.tokens[p.pos]
	}
	return LexToken{ID: TokenEOF}
}

/*
next returns the current token and advances.
*/
func (p *parser) next() LexToken {
	t := p.head()
	if t.ID != TokenEOF {
		p.pos++
	}
	return t
}

/*
parseQuery parses a disjunction of conjunctions.
*/
func (p *parser) parseQuery() (*ASTNode, error) {
	left, err := p.parseConjunction()
	if err != nil {
		return nil, err
	}

	if p.head().ID != TokenOr {
		return left, nil
	}

	res := newAstNode(NodeOr, p.head(), left)

	for p.head().ID == TokenOr {
		p.next()

		alt, err := p.parseConjunction()
		if err != nil {
			return nil, err
		}

		res.Children = append(res.Children, alt)
	}

	return res, nil
}

/*
parseConjunction parses factors joined by "&".
*/
func (p *parser) parseConjunction() (*ASTNode, error) {
	left, err := p.parseFactor()
	if err != nil {
		return nil, err
	}

	if p.head().ID != TokenAnd {
		return left, nil
	}

	res := newAstNode(NodeAnd, p.head(), left)

	for p.head().ID == TokenAnd {
		p.next()

		factor, err := p.parseFactor()
		if err != nil {
			return nil, err
		}

		res.Children = append(res.Children, factor)
	}

	return res, nil
}

/*
parseFactor parses a single node search, an optional node search or a
binary operator expression.
*/
func (p *parser) parseFactor() (*ASTNode, error) {
	head := p.head()

	if head.ID == TokenEOF {
		return nil, p.newParserError(ErrUnexpectedEnd, "", head)
	}

	if head.ID == TokenLparen {
		p.next()

		group, err := p.parseQuery()
		if err != nil {
			return nil, err
		}

		if t := p.next(); t.ID != TokenRparen {
			return nil, p.newParserError(ErrUnexpectedToken,
				fmt.Sprintf("expected ) not %v", t), t)
		}

		return group, nil
	}

	var left *ASTNode
	var err error

	if head.ID == TokenRef {
		p.next()
		left = newAstNode(NodeRef, head)

		// A reference must be part of an operator expression

		if !p.atOperator() {
			return nil, p.newParserError(ErrUnexpectedToken,
				fmt.Sprintf("operator expected after %v", head), p.head())
		}

	} else {
		if left, err = p.parseNodeSearch(); err != nil {
			return nil, err
		}

		if p.head().ID == TokenQuest {
			quest := p.next()
			return newAstNode(NodeOptional, quest, left), nil
		}

		if !p.atOperator() {
			return left, nil
		}
	}

	op, negated, err := p.parseOperator()
	if err != nil {
		return nil, err
	}

	right, err := p.parseOperand()
	if err != nil {
		return nil, err
	}

	op.Children = append([]*ASTNode{left, right}, op.Children...)

	if negated {
		return &ASTNode{Name: NodeNot, Token: op.Token, Children: []*ASTNode{op}}, nil
	}

	return op, nil
}

/*
parseOperand parses a node reference or an inline node search.
*/
func (p *parser) parseOperand() (*ASTNode, error) {
	if head := p.head(); head.ID == TokenRef {
		p.next()
		return newAstNode(NodeRef, head), nil
	}

	return p.parseNodeSearch()
}

/*
atOperator checks if the current token starts a binary operator.
*/
func (p *parser) atOperator() bool {
	id := p.head().ID

	if id == TokenNegate {
		return true
	}

	return id == TokenPrecedence || id == TokenNear || id == TokenDominance ||
		id == TokenPointing || id == TokenPartOf || id == TokenIdentNode ||
		id == TokenOverlap || id == TokenInclusion || id == TokenIdentCov ||
		id == TokenLeftAlign || id == TokenRightAlign
}

/*
operator node names by token ID
*/
var operatorNodeNames = map[LexTokenID]string{
	TokenPrecedence: NodePrecedence,
	TokenNear:       NodeNear,
	TokenDominance:  NodeDominance,
	TokenPointing:   NodePointing,
	TokenPartOf:     NodePartOf,
	TokenIdentNode:  NodeIdentNode,
	TokenOverlap:    NodeOverlap,
	TokenInclusion:  NodeInclusion,
	TokenIdentCov:   NodeIdentCov,
	TokenLeftAlign:  NodeLeftAlign,
	TokenRightAlign: NodeRightAlign,
}

/*
parseOperator parses a binary operator with its optional negation,
component name and distance range. Operands are filled in by the caller.
*/
func (p *parser) parseOperator() (*ASTNode, bool, error) {
	negated := false

	if p.head().ID == TokenNegate {
		p.next()
		negated = true
	}

	t := p.next()

	name, ok := operatorNodeNames[t.ID]
	if !ok {
		return nil, false, p.newParserError(ErrUnexpectedToken,
			fmt.Sprintf("operator expected not %v", t), t)
	}

	op := newAstNode(name, t)

	if t.Val != "" {
		nameToken := t
		nameToken.Val = t.Val
		op.Children = append(op.Children, newAstNode(NodeName, nameToken))
	}

	switch t.ID {
	case TokenPrecedence, TokenNear, TokenDominance, TokenPointing, TokenPartOf:
		rangeNode, err := p.parseRange()
		if err != nil {
			return nil, false, err
		}
		if rangeNode != nil {
			op.Children = append(op.Children, rangeNode)
		}
	}

	return op, negated, nil
}

/*
parseRange parses an optional distance range: "*" for unbounded, a single
distance or an inclusive "n,m" range.
*/
func (p *parser) parseRange() (*ASTNode, error) {
	head := p.head()

	if head.ID == TokenStar {
		p.next()
		return newAstNode(NodeRange, head), nil
	}

	if head.ID != TokenNumber {
		return nil, nil
	}

	p.next()
	rangeToken := head

	if p.head().ID == TokenComma {
		p.next()

		m := p.next()
		if m.ID != TokenNumber {
			return nil, p.newParserError(ErrInvalidRange,
				fmt.Sprintf("expected number not %v", m), m)
		}

		lower, _ := strconv.Atoi(head.Val)
		upper, _ := strconv.Atoi(m.Val)

		if upper < lower {
			return nil, p.newParserError(ErrInvalidRange,
				fmt.Sprintf("%d,%d", lower, upper), head)
		}

		rangeToken.Val = head.Val + "," + m.Val
	}

	return newAstNode(NodeRange, rangeToken), nil
}

/*
parseNodeSearch parses a single node search.
*/
func (p *parser) parseNodeSearch() (*ASTNode, error) {
	t := p.next()

	switch t.ID {

	case TokenIdent:

		if t.Val == "tok" {
			constraint, err := p.parseConstraint()
			if err != nil {
				return nil, err
			}
			if constraint != nil {
				return newAstNode(NodeTok, t, constraint), nil
			}
			return newAstNode(NodeTok, t), nil
		}

		if t.Val == "node" {
			return newAstNode(NodeNode, t), nil
		}

		qname := t
		if p.head().ID == TokenColon {
			p.next()

			nameToken := p.next()
			if nameToken.ID != TokenIdent {
				return nil, p.newParserError(ErrUnexpectedToken,
					fmt.Sprintf("annotation name expected not %v", nameToken), nameToken)
			}

			qname.Val = t.Val + ":" + nameToken.Val
		}

		constraint, err := p.parseConstraint()
		if err != nil {
			return nil, err
		}
		if constraint != nil {
			return newAstNode(NodeAnno, qname, constraint), nil
		}
		return newAstNode(NodeAnno, qname), nil

	case TokenValue, TokenRegex:

		// A bare value searches the token text

		tokToken := t
		tokToken.Val = "tok"

		return newAstNode(NodeTok, tokToken,
			newAstNode(NodeEq, t, p.valueLeaf(t))), nil

	case TokenEOF:
		return nil, p.newParserError(ErrUnexpectedEnd, "", t)
	}

	return nil, p.newParserError(ErrUnexpectedToken,
		fmt.Sprintf("node search expected not %v", t), t)
}

/*
parseConstraint parses an optional value constraint.
*/
func (p *parser) parseConstraint() (*ASTNode, error) {
	head := p.head()

	if head.ID != TokenEq && head.ID != TokenNeq {
		return nil, nil
	}

	op := p.next()

	val := p.next()
	if val.ID != TokenValue && val.ID != TokenRegex {
		return nil, p.newParserError(ErrUnexpectedToken,
			fmt.Sprintf("value expected not %v", val), val)
	}

	name := NodeEq
	if op.ID == TokenNeq {
		name = NodeNeq
	}

	return newAstNode(name, op, p.valueLeaf(val)), nil
}

/*
valueLeaf creates the leaf node of a value or regex token.
*/
func (p *parser) valueLeaf(t LexToken) *ASTNode {
	if t.ID == TokenRegex {
		return newAstNode(NodeRegex, t)
	}
	return newAstNode(NodeValue, t)
}
