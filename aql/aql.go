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
Package aql is the public query interface.

ParseQuery parses an AQL query string and normalizes the syntax tree into
the disjunctive normal form the interpreter executes: alternatives of
conjunctions holding node searches in source order plus binary operator
entries between them. Back-references are resolved to node indexes and
negated operators without a bound right-hand side are rewritten into
non-existence filters.
*/
package aql

import (
	"fmt"
	"strconv"
	"strings"

	"devt.de/krotik/annisdb/aql/interpreter"
	"devt.de/krotik/annisdb/aql/parser"
	"devt.de/krotik/annisdb/graph"
	"devt.de/krotik/annisdb/graph/data"
	"devt.de/krotik/annisdb/graph/graphstorage"
)

/*
QuirksMaxNearDistance caps the unbounded near operator in quirks mode.
*/
const QuirksMaxNearDistance = 50

/*
ParseQuery parses a query string into its normalized form. Quirks mode
reproduces the behavior of legacy corpus tools.
*/
func ParseQuery(name string, query string, quirks bool) (*interpreter.Disjunction, error) {
	ast, err := parser.Parse(name, query)
	if err != nil {
		return nil, interpreter.NewError(interpreter.ErrParsing, err.Error())
	}

	var alternatives []*interpreter.Conjunction

	for _, factors := range expandAlternatives(ast) {
		alt, err := buildConjunction(factors, quirks)
		if err != nil {
			return nil, err
		}
		alternatives = append(alternatives, alt)
	}

	return interpreter.NewDisjunction(alternatives...), nil
}

/*
RunQuery parses and executes a query against a graph and returns all
result tuples.
*/
func RunQuery(name string, query string, g *graph.Graph,
	cfg *interpreter.Config) ([]data.MatchGroup, error) {

	d, err := ParseQuery(name, query, false)
	if err != nil {
		return nil, err
	}

	plan, err := d.MakeExecPlan(g, cfg)
	if err != nil {
		return nil, err
	}

	var res []data.MatchGroup

	for {
		tuple, err := plan.Next()
		if err != nil {
			return nil, err
		}
		if tuple == nil {
			return res, nil
		}
		res = append(res, tuple)
	}
}

/*
expandAlternatives rewrites the syntax tree into disjunctive normal form
and returns the factor lists of all alternatives.
*/
func expandAlternatives(n *parser.ASTNode) [][]*parser.ASTNode {
	switch n.Name {

	case parser.NodeOr:
		var res [][]*parser.ASTNode
		for _, c := range n.Children {
			res = append(res, expandAlternatives(c)...)
		}
		return res

	case parser.NodeAnd:
		res := [][]*parser.ASTNode{nil}

		for _, c := range n.Children {
			var next [][]*parser.ASTNode

			for _, left := range res {
				for _, right := range expandAlternatives(c) {
					combined := append(append([]*parser.ASTNode{}, left...), right...)
					next = append(next, combined)
				}
			}

			res = next
		}
		return res
	}

	return [][]*parser.ASTNode{{n}}
}

/*
pendingOperator is a binary operator expression before its operand
references are resolved.
*/
type pendingOperator struct {
	spec     interpreter.BinaryOperatorSpec
	negated  bool
	leftIdx  int // Resolved operand index or -1
	rightIdx int
	leftRef  string // Back-reference value of an unresolved operand
	rightRef string
}

/*
buildConjunction normalizes the factors of one alternative.
*/
func buildConjunction(factors []*parser.ASTNode, quirks bool) (*interpreter.Conjunction, error) {
	c := interpreter.NewConjunction()

	var standalone []bool
	var pending []pendingOperator

	addSpec := func(spec *interpreter.NodeSearchSpec, isStandalone bool) int {
		idx := c.AddNode(spec)
		standalone = append(standalone, isStandalone)
		return idx
	}

	// First pass: collect node searches in source order

	for _, factor := range factors {
		negated := false
		node := factor

		if node.Name == parser.NodeNot {
			negated = true
			node = node.Children[0]
		}

		switch node.Name {

		case parser.NodeTok, parser.NodeAnno, parser.NodeNode:
			spec, err := buildNodeSpec(node)
			if err != nil {
				return nil, err
			}
			addSpec(spec, true)

		case parser.NodeOptional:
			spec, err := buildNodeSpec(node.Children[0])
			if err != nil {
				return nil, err
			}
			spec.Optional = true
			addSpec(spec, true)

		default:
			op, err := buildOperatorSpec(node, quirks)
			if err != nil {
				return nil, err
			}

			p := pendingOperator{spec: op, negated: negated,
				leftIdx: -1, rightIdx: -1}

			for i, operand := range node.Children[:2] {
				if operand.Name == parser.NodeRef {
					if i == 0 {
						p.leftRef = operand.Token.Val
					} else {
						p.rightRef = operand.Token.Val
					}
					continue
				}

				spec, err := buildNodeSpec(operand)
				if err != nil {
					return nil, err
				}

				idx := addSpec(spec, false)
				if i == 0 {
					p.leftIdx = idx
				} else {
					p.rightIdx = idx
				}
			}

			// A negated "==" folds into the value comparison itself

			if ev, ok := p.spec.(*interpreter.EqualValueSpec); ok && p.negated {
				ev.Negated = true
				p.negated = false
			}

			pending = append(pending, p)
		}
	}

	// Second pass: resolve back-references against the collected searches

	for i := range pending {
		var err error

		if pending[i].leftIdx < 0 {
			if pending[i].leftIdx, err = resolveRef(c, pending[i].leftRef); err != nil {
				return nil, err
			}
		}
		if pending[i].rightIdx < 0 {
			if pending[i].rightIdx, err = resolveRef(c, pending[i].rightRef); err != nil {
				return nil, err
			}
		}
	}

	// Quirks mode reproduces the legacy component search: every reuse of
	// a node as an operator operand binds to a hidden copy of the node
	// search which is joined to the original on node identity

	if quirks {
		used := make(map[int]bool)

		duplicate := func(idx int) int {
			if !used[idx] {
				used[idx] = true
				return idx
			}

			copySpec := *c.Nodes[idx]
			copySpec.Hidden = true
			copyIdx := addSpec(&copySpec, false)

			pending = append(pending, pendingOperator{
				spec:    &interpreter.IdenticalNodeSpec{},
				leftIdx: idx, rightIdx: copyIdx,
			})

			return copyIdx
		}

		numOps := len(pending)
		for i := 0; i < numOps; i++ {
			if pending[i].negated {
				continue
			}
			pending[i].leftIdx = duplicate(pending[i].leftIdx)
			pending[i].rightIdx = duplicate(pending[i].rightIdx)
		}
	}

	// Third pass: rewrite negated operators without a bound right-hand
	// side into non-existence filters

	referenced := make([]int, len(c.Nodes))
	for i, isStandalone := range standalone {
		if isStandalone && !c.Nodes[i].Optional {
			referenced[i]++
		}
	}
	for _, p := range pending {
		referenced[p.leftIdx]++
		referenced[p.rightIdx]++
	}

	for _, p := range pending {
		entry := interpreter.OperatorEntry{Spec: p.spec,
			LeftIdx: p.leftIdx, RightIdx: p.rightIdx}

		if p.negated {
			rhsBound := referenced[p.rightIdx] > 1 && !c.Nodes[p.rightIdx].Optional

			if rhsBound {
				entry.Negated = true
			} else {
				if c.Nodes[p.leftIdx].Optional {
					return nil, interpreter.NewError(interpreter.ErrParsing,
						"Negated operator needs at least one bound side")
				}

				entry.NonExisting = true
				c.Nodes[p.rightIdx].Optional = true
			}

		} else if c.Nodes[p.leftIdx].Optional || c.Nodes[p.rightIdx].Optional {
			return nil, interpreter.NewError(interpreter.ErrParsing,
				"Optional node search used by a non-negated operator")
		}

		c.Operators = append(c.Operators, entry)
	}

	return c, nil
}

/*
resolveRef resolves a back-reference to a node index.
*/
func resolveRef(c *interpreter.Conjunction, ref string) (int, error) {
	n, err := strconv.Atoi(ref)
	if err != nil || n < 1 || n > len(c.Nodes) {
		return -1, interpreter.NewError(interpreter.ErrParsing,
			fmt.Sprintf("Unknown node reference #%s", ref))
	}
	return n - 1, nil
}

/*
buildNodeSpec converts a node search subtree.
*/
func buildNodeSpec(n *parser.ASTNode) (*interpreter.NodeSearchSpec, error) {
	constraint, value, err := buildConstraint(n)
	if err != nil {
		return nil, err
	}

	switch n.Name {

	case parser.NodeNode:
		return interpreter.NewAnyNodeSpec(), nil

	case parser.NodeTok:
		return interpreter.NewTokenSpec(constraint, value), nil

	case parser.NodeAnno:
		qname := n.Token.Val

		if pos := strings.Index(qname, ":"); pos >= 0 {
			return interpreter.NewAnnoSpec(qname[:pos], true, qname[pos+1:],
				constraint, value), nil
		}
		return interpreter.NewAnnoSpec("", false, qname, constraint, value), nil
	}

	return nil, interpreter.NewError(interpreter.ErrParsing,
		fmt.Sprintf("Invalid node search: %s", n.Name))
}

/*
buildConstraint extracts the value constraint of a node search.
*/
func buildConstraint(n *parser.ASTNode) (interpreter.ValueConstraint, string, error) {
	for _, child := range n.Children {
		if child.Name != parser.NodeEq && child.Name != parser.NodeNeq {
			continue
		}

		leaf := child.Children[0]
		isRegex := leaf.Name == parser.NodeRegex

		if child.Name == parser.NodeEq {
			if isRegex {
				return interpreter.ConstraintRegex, leaf.Token.Val, nil
			}
			return interpreter.ConstraintEqual, leaf.Token.Val, nil
		}

		if isRegex {
			return interpreter.ConstraintNotRegex, leaf.Token.Val, nil
		}
		return interpreter.ConstraintNotEqual, leaf.Token.Val, nil
	}

	return interpreter.ConstraintAny, "", nil
}

/*
buildOperatorSpec converts a binary operator subtree.
*/
func buildOperatorSpec(n *parser.ASTNode, quirks bool) (interpreter.BinaryOperatorSpec, error) {
	name := operatorName(n)
	minDist, maxDist, err := operatorRange(n)
	if err != nil {
		return nil, err
	}

	switch n.Name {

	case parser.NodePrecedence:
		return &interpreter.PrecedenceSpec{MinDist: minDist, MaxDist: maxDist}, nil

	case parser.NodeNear:
		if quirks && maxDist == graphstorage.Unbounded {
			maxDist = QuirksMaxNearDistance
		}
		return &interpreter.NearSpec{MinDist: minDist, MaxDist: maxDist}, nil

	case parser.NodeDominance:
		return &interpreter.DominanceSpec{Name: name,
			MinDist: minDist, MaxDist: maxDist}, nil

	case parser.NodePointing:
		return &interpreter.PointingSpec{Name: name,
			MinDist: minDist, MaxDist: maxDist}, nil

	case parser.NodePartOf:
		return &interpreter.PartOfSpec{MinDist: minDist, MaxDist: maxDist}, nil

	case parser.NodeIdentNode:
		return &interpreter.EqualValueSpec{}, nil

	case parser.NodeOverlap:
		return &interpreter.OverlapSpec{}, nil

	case parser.NodeInclusion:
		return &interpreter.InclusionSpec{}, nil

	case parser.NodeIdentCov:
		return &interpreter.IdenticalCoverageSpec{}, nil

	case parser.NodeLeftAlign:
		return &interpreter.LeftAlignSpec{}, nil

	case parser.NodeRightAlign:
		return &interpreter.RightAlignSpec{}, nil
	}

	return nil, interpreter.NewError(interpreter.ErrParsing,
		fmt.Sprintf("Invalid operator: %s", n.Name))
}

/*
operatorName returns the attached component name of an operator subtree.
*/
func operatorName(n *parser.ASTNode) string {
	for _, child := range n.Children {
		if child.Name == parser.NodeName {
			return child.Token.Val
		}
	}
	return ""
}

/*
operatorRange returns the distance range of an operator subtree.
*/
func operatorRange(n *parser.ASTNode) (int, int, error) {
	for _, child := range n.Children {
		if child.Name != parser.NodeRange {
			continue
		}

		val := child.Token.Val

		if val == "*" {
			return 1, graphstorage.Unbounded, nil
		}

		if pos := strings.Index(val, ","); pos >= 0 {
			minDist, err1 := strconv.Atoi(val[:pos])
			maxDist, err2 := strconv.Atoi(val[pos+1:])

			if err1 != nil || err2 != nil {
				return 0, 0, interpreter.NewError(interpreter.ErrParsing,
					fmt.Sprintf("Invalid distance range: %s", val))
			}
			return minDist, maxDist, nil
		}

		dist, err := strconv.Atoi(val)
		if err != nil {
			return 0, 0, interpreter.NewError(interpreter.ErrParsing,
				fmt.Sprintf("Invalid distance range: %s", val))
		}
		return dist, dist, nil
	}

	return 1, 1, nil
}
