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

func TestSimpleLexing(t *testing.T) {

	if res := LexToList("mytest", `tok="the" & pos=/N.*/`); fmt.Sprint(res) !=
		`["tok" = "the" & "pos" = /N.*/ EOF]` {
		t.Error("Unexpected lexer result:", res)
		return
	}

	if res := LexToList("mytest", `#1 . #2 | #1 .2,4 #2`); fmt.Sprint(res) !=
		`[#1 . #2 | #1 . "2" , "4" #2 EOF]` {
		t.Error("Unexpected lexer result:", res)
		return
	}

	if res := LexToList("mytest", `#1 >secedge * #2`); fmt.Sprint(res) !=
		`[#1 >secedge * #2 EOF]` {
		t.Error("Unexpected lexer result:", res)
		return
	}

	if res := LexToList("mytest", `#1 ->dep[x] #2`); fmt.Sprint(res[:2]) !=
		`[#1 ->dep]` {
		t.Error("Unexpected lexer result:", res)
		return
	}

	if res := LexToList("mytest", `#a _o_ #b & #a _=_ #b & #a == #b`); fmt.Sprint(res) !=
		`[#a _o_ #b & #a _=_ #b & #a == #b EOF]` {
		t.Error("Unexpected lexer result:", res)
		return
	}

	if res := LexToList("mytest", `tiger:cat="S" & node & #1 !>* #2`); fmt.Sprint(res) !=
		`["tiger" : "cat" = "S" & "node" & #1 ! > * #2 EOF]` {
		t.Error("Unexpected lexer result:", res)
		return
	}
}

func TestLexingErrors(t *testing.T) {

	if res := LexToList("mytest", `tok="the`); fmt.Sprint(res) !=
		`["tok" = Error: Unexpected end while reading value (Line 1, Pos 5)]` {
		t.Error("Unexpected lexer result:", res)
		return
	}

	if res := LexToList("mytest", `pos=/N[`); fmt.Sprint(res) !=
		`["pos" = Error: Unexpected end while reading regular expression (Line 1, Pos 5)]` {
		t.Error("Unexpected lexer result:", res)
		return
	}

	if res := LexToList("mytest", `#1 -> #2`); fmt.Sprint(res) !=
		`[#1 Error: Pointing relation requires a component name (Line 1, Pos 4)]` {
		t.Error("Unexpected lexer result:", res)
		return
	}

	if res := LexToList("mytest", `a ; b`); fmt.Sprint(res) !=
		`["a" Error: Unexpected character ';' (Line 1, Pos 3)]` {
		t.Error("Unexpected lexer result:", res)
		return
	}
}

func TestEscapeSequences(t *testing.T) {

	res := LexToList("mytest", `tok="a\"b"`)
	if len(res) != 4 || res[2].Val != `a"b` {
		t.Error("Unexpected lexer result:", res)
		return
	}

	// An escaped slash inside a regular expression

	res = LexToList("mytest", `tok=/a\/b/`)
	if len(res) != 4 || res[2].Val != "a/b" {
		t.Error("Unexpected lexer result:", res)
		return
	}
}
