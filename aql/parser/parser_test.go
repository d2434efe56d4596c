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
	"fmt"
	"testing"
)

func TestNodeSearchParsing(t *testing.T) {

	input := `tok="the" & pos=/N.*/ & #1 . #2`
	expectedOutput := `
and
  tok
    =
      value: "the"
  anno: "pos"
    =
      regex: "N.*"
  .
    ref: "1"
    ref: "2"
`[1:]

	if res, err := Parse("mytest", input); err != nil || fmt.Sprint(res) != expectedOutput {
		t.Error("Unexpected parser output:\n", res, "expected was:\n", expectedOutput, "Error:", err)
		return
	}

	input = `tiger:cat!="S"`
	expectedOutput = `
anno: "tiger:cat"
  !=
    value: "S"
`[1:]

	if res, err := Parse("mytest", input); err != nil || fmt.Sprint(res) != expectedOutput {
		t.Error("Unexpected parser output:\n", res, "expected was:\n", expectedOutput, "Error:", err)
		return
	}

	input = `node & tok`
	expectedOutput = `
and
  node
  tok
`[1:]

	if res, err := Parse("mytest", input); err != nil || fmt.Sprint(res) != expectedOutput {
		t.Error("Unexpected parser output:\n", res, "expected was:\n", expectedOutput, "Error:", err)
		return
	}

	// A bare value is a token text search

	input = `"the"`
	expectedOutput = `
tok
  =
    value: "the"
`[1:]

	if res, err := Parse("mytest", input); err != nil || fmt.Sprint(res) != expectedOutput {
		t.Error("Unexpected parser output:\n", res, "expected was:\n", expectedOutput, "Error:", err)
		return
	}
}

func TestOperatorParsing(t *testing.T) {

	input := `cat="S" >secedge * cat="NP"`
	expectedOutput := `
>
  anno: "cat"
    =
      value: "S"
  anno: "cat"
    =
      value: "NP"
  name: "secedge"
  range: "*"
`[1:]

	if res, err := Parse("mytest", input); err != nil || fmt.Sprint(res) != expectedOutput {
		t.Error("Unexpected parser output:\n", res, "expected was:\n", expectedOutput, "Error:", err)
		return
	}

	input = `#1 .2,4 #2`
	expectedOutput = `
.
  ref: "1"
  ref: "2"
  range: "2,4"
`[1:]

	if res, err := Parse("mytest", input); err != nil || fmt.Sprint(res) != expectedOutput {
		t.Error("Unexpected parser output:\n", res, "expected was:\n", expectedOutput, "Error:", err)
		return
	}

	input = `#1 !->dep #2`
	expectedOutput = `
not
  ->
    ref: "1"
    ref: "2"
    name: "dep"
`[1:]

	if res, err := Parse("mytest", input); err != nil || fmt.Sprint(res) != expectedOutput {
		t.Error("Unexpected parser output:\n", res, "expected was:\n", expectedOutput, "Error:", err)
		return
	}

	input = `#1 _o_ #2 & #1 @* #2 & #1 == #2`
	expectedOutput = `
and
  _o_
    ref: "1"
    ref: "2"
  @
    ref: "1"
    ref: "2"
    range: "*"
  ==
    ref: "1"
    ref: "2"
`[1:]

	if res, err := Parse("mytest", input); err != nil || fmt.Sprint(res) != expectedOutput {
		t.Error("Unexpected parser output:\n", res, "expected was:\n", expectedOutput, "Error:", err)
		return
	}
}

func TestDisjunctionParsing(t *testing.T) {

	input := `("a" | "b") & tok`
	expectedOutput := `
and
  or
    tok
      =
        value: "a"
    tok
      =
        value: "b"
  tok
`[1:]

	if res, err := Parse("mytest", input); err != nil || fmt.Sprint(res) != expectedOutput {
		t.Error("Unexpected parser output:\n", res, "expected was:\n", expectedOutput, "Error:", err)
		return
	}

	input = `tok? | node`
	expectedOutput = `
or
  optional
    tok
  node
`[1:]

	if res, err := Parse("mytest", input); err != nil || fmt.Sprint(res) != expectedOutput {
		t.Error("Unexpected parser output:\n", res, "expected was:\n", expectedOutput, "Error:", err)
		return
	}
}

func TestParseErrors(t *testing.T) {

	input := `tok="bl\*a"`
	if _, err := Parse("mytest", input); err.Error() !=
		"Parse error in mytest: Lexical error (invalid syntax while parsing escape sequences) (Line:1 Pos:5)" {
		t.Error(err)
		return
	}

	if _, err := Parse("mytest", `tok &`); err == nil ||
		err.(*Error).Type != ErrUnexpectedEnd {
		t.Error("Unexpected result:", err)
		return
	}

	if _, err := Parse("mytest", `#1 . #2 #3`); err == nil ||
		err.(*Error).Type != ErrUnexpectedToken {
		t.Error("Unexpected result:", err)
		return
	}

	if _, err := Parse("mytest", `#1`); err == nil ||
		err.(*Error).Type != ErrUnexpectedToken {
		t.Error("Unexpected result:", err)
		return
	}

	if _, err := Parse("mytest", `#1 .4,2 #2`); err == nil ||
		err.(*Error).Type != ErrInvalidRange {
		t.Error("Unexpected result:", err)
		return
	}

	if _, err := Parse("mytest", `(tok | node`); err == nil ||
		err.(*Error).Type != ErrUnexpectedToken {
		t.Error("Unexpected result:", err)
		return
	}
}
