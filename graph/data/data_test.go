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

func TestAnnoKey(t *testing.T) {
	k1 := AnnoKey{Name: "pos", NS: "tiger"}
	k2 := AnnoKey{Name: "pos", NS: "annis"}
	k3 := AnnoKey{Name: "cat", NS: "tiger"}

	if res := k1.String(); res != "tiger::pos" {
		t.Error("Unexpected string form:", res)
		return
	}

	if res := (AnnoKey{Name: "pos"}).String(); res != "pos" {
		t.Error("Unexpected string form:", res)
		return
	}

	// Keys order by name first, namespace second

	if res := k1.Compare(k2); res != 1 {
		t.Error("Unexpected comparison:", res)
		return
	}

	if res := k3.Compare(k1); res != -1 {
		t.Error("Unexpected comparison:", res)
		return
	}

	if res := k1.Compare(k1); res != 0 {
		t.Error("Unexpected comparison:", res)
		return
	}
}

func TestInternedKey(t *testing.T) {
	k1 := InternedKey("tiger", "pos")
	k2 := InternedKey("tiger", "pos")

	if k1 != k2 {
		t.Error("Interned keys should share one instance")
		return
	}

	if k1 == DefaultKey {
		t.Error("Different keys should not share an instance")
		return
	}

	if NodeNameKey.NS != AnnisNamespace || NodeNameKey.Name != NodeNameAttr {
		t.Error("Unexpected node name key:", NodeNameKey)
		return
	}
}

func TestEdgeInverse(t *testing.T) {
	e := Edge{Source: 1, Target: 2}

	if res := e.Inverse(); res.Source != 2 || res.Target != 1 {
		t.Error("Unexpected inverse edge:", res)
		return
	}

	if res := e.Inverse().Inverse(); res != e {
		t.Error("Unexpected double inverse:", res)
		return
	}
}

func TestComponent(t *testing.T) {
	c := Component{CType: Dominance, Layer: "tiger", Name: "edge"}

	if res := c.String(); res != "Dominance/tiger/edge" {
		t.Error("Unexpected string form:", res)
		return
	}

	if res := c.RelativePath(); res != "gs/Dominance/tiger/edge" {
		t.Error("Unexpected relative path:", res)
		return
	}

	// Empty layers are mapped to the default layer directory

	c2 := Component{CType: Ordering, Layer: "", Name: ""}

	if res := c2.RelativePath(); res != "gs/Ordering/default_layer" {
		t.Error("Unexpected relative path:", res)
		return
	}

	// Components order by type, name and layer

	if res := c.Compare(Component{CType: Pointing}); res != -1 {
		t.Error("Unexpected comparison:", res)
		return
	}

	if res := c.Compare(Component{CType: Dominance, Layer: "tiger", Name: "secedge"}); res != -1 {
		t.Error("Unexpected comparison:", res)
		return
	}

	if res := c.Compare(Component{CType: Dominance, Layer: "a", Name: "edge"}); res != 1 {
		t.Error("Unexpected comparison:", res)
		return
	}
}

func TestComponentType(t *testing.T) {
	for _, ct := range AllComponentTypes() {
		parsed, ok := ParseComponentType(ct.String())

		if !ok || parsed != ct {
			t.Error("Component type does not round-trip:", ct)
			return
		}
	}

	if _, ok := ParseComponentType("Unknown"); ok {
		t.Error("Unknown component type should not parse")
		return
	}
}
