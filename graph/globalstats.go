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
	"os"
	"path/filepath"

	"devt.de/krotik/annisdb/graph/data"
	"devt.de/krotik/annisdb/graph/util"
	"devt.de/krotik/common/fileutil"
	"github.com/pelletier/go-toml/v2"
)

/*
GlobalStatisticsFileName is the name of the global statistics file of a
graph location.
*/
const GlobalStatisticsFileName = "global_statistics.toml"

/*
GlobalStatistics are the corpus-wide figures of a graph. They carry the
change ID of the last persisted update which gates write-ahead log replay.
*/
type GlobalStatistics struct {
	ChangeID       uint64         `toml:"change_id"`
	NodeCount      int            `toml:"node_count"`
	ComponentCount map[string]int `toml:"component_count"`
	RootCount      map[string]int `toml:"root_count"`
}

/*
GlobalStatistics returns the current corpus-wide figures of the graph. Root
counts are only included for loaded components with statistics.
*/
func (g *Graph) GlobalStatistics() *GlobalStatistics {
	ns := data.AnnisNamespace

	res := &GlobalStatistics{
		ChangeID:       g.changeID,
		NodeCount:      g.nodeAnnos.CountForName(&ns, data.NodeNameAttr),
		ComponentCount: make(map[string]int),
		RootCount:      make(map[string]int),
	}

	for _, c := range g.AllComponents(nil, nil) {
		res.ComponentCount[c.CType.String()]++

		if st := g.components[c]; st != nil && st.Statistics() != nil {
			res.RootCount[c.String()] = st.Statistics().RootNodes
		}
	}

	return res
}

/*
saveGlobalStatistics writes the global statistics file of a graph location.
*/
func saveGlobalStatistics(location string, stats *GlobalStatistics) error {
	raw, err := toml.Marshal(stats)
	if err != nil {
		return &util.GraphError{Type: util.ErrWriting, Detail: err.Error()}
	}

	if err := os.WriteFile(filepath.Join(location, GlobalStatisticsFileName),
		raw, 0660); err != nil {
		return &util.GraphError{Type: util.ErrStorageIO, Detail: err.Error()}
	}

	return nil
}

/*
loadGlobalStatistics reads the global statistics file of a graph location.
The result is nil if no file exists.
*/
func loadGlobalStatistics(location string) (*GlobalStatistics, error) {
	statsFile := filepath.Join(location, GlobalStatisticsFileName)

	if ok, _ := fileutil.PathExists(statsFile); !ok {
		return nil, nil
	}

	raw, err := os.ReadFile(statsFile)
	if err != nil {
		return nil, &util.GraphError{Type: util.ErrStorageIO, Detail: err.Error()}
	}

	var stats GlobalStatistics

	if err := toml.Unmarshal(raw, &stats); err != nil {
		return nil, &util.GraphError{Type: util.ErrCorrupted, Detail: err.Error()}
	}

	return &stats, nil
}
