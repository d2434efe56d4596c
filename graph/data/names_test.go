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

import "testing"

func TestNameSegmentEncoding(t *testing.T) {
	if res := EncodeNameSegment("doc1"); res != "doc1" {
		t.Error("Unexpected encoding:", res)
		return
	}

	if res := EncodeNameSegment("a/b"); res != "a%2Fb" {
		t.Error("Unexpected encoding:", res)
		return
	}

	if res := EncodeNameSegment(`x:y|z?*<>"\`); res != "x%3Ay%7Cz%3F%2A%3C%3E%22%5C" {
		t.Error("Unexpected encoding:", res)
		return
	}

	for _, s := range []string{"doc1", "a/b", "50%", "tab\there", "ä-umlaut"} {
		if res := DecodeNameSegment(EncodeNameSegment(s)); res != s {
			t.Error("Segment does not round-trip:", s, "->", res)
			return
		}
	}

	// Malformed escapes stay verbatim

	if res := DecodeNameSegment("a%zz"); res != "a%zz" {
		t.Error("Unexpected decoding:", res)
		return
	}
}

func TestNamePaths(t *testing.T) {
	if res := JoinNamePath("corpus", "sub/doc"); res != "corpus/sub%2Fdoc" {
		t.Error("Unexpected path:", res)
		return
	}

	path, local := SplitNodeName("corpus/doc#tok_1")

	if path != "corpus/doc" || local != "tok_1" {
		t.Error("Unexpected split:", path, local)
		return
	}

	path, local = SplitNodeName("corpus/doc")

	if path != "corpus/doc" || local != "" {
		t.Error("Unexpected split:", path, local)
		return
	}

	if res := FragmentName("corpus/doc", "tok 1"); res != "corpus/doc#tok 1" {
		t.Error("Unexpected fragment name:", res)
		return
	}
}
