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
Package graph contains the corpus graph and its update machinery.

A Graph combines one node annotation store with the edge components of a
corpus. Components are registered from their on-disk directories and loaded
lazily - a registered but unloaded component holds no memory until a query
or update touches it.

All changes go through GraphUpdate batches which are journaled in a
write-ahead log before they are applied, so a crash between apply and
persist replays the batch at the next open. Applying a batch also maintains
the derived components (LeftToken, RightToken, InvertedCoverage and the
flattened Coverage edges) which queries rely on.
*/
package graph

import (
	"os"
	"path/filepath"
	"runtime"
	"sort"
	"sync"

	"devt.de/krotik/annisdb/graph/annostorage"
	"devt.de/krotik/annisdb/graph/data"
	"devt.de/krotik/annisdb/graph/graphstorage"
	"devt.de/krotik/annisdb/graph/util"
	"devt.de/krotik/common/fileutil"
	"golang.org/x/sync/errgroup"
)

/*
AnnotationsDirName is the name of the node annotation directory of a graph
location.
*/
const AnnotationsDirName = "annotations"

/*
ComponentsDirName is the name of the component directory of a graph
location.
*/
const ComponentsDirName = "gs"

/*
Graph is a corpus graph: one node annotation store plus any number of edge
components. A nil entry in the component map marks a component which is
registered on disk but not loaded.
*/
type Graph struct {
	location   string
	diskBased  bool
	nodeAnnos  annostorage.Storage[data.NodeID]
	components map[data.Component]graphstorage.Storage
	changeID   uint64
}

/*
NewGraph creates a new empty in-memory graph.
*/
func NewGraph() *Graph {
	return &Graph{
		nodeAnnos:  annostorage.NewNodeStorage(),
		components: make(map[data.Component]graphstorage.Storage),
	}
}

/*
NewDiskGraph creates a new empty graph whose node annotations are backed by
disk storage at the given location.
*/
func NewDiskGraph(location string) (*Graph, error) {
	annos, err := annostorage.NewDiskNodeStorage(filepath.Join(location, AnnotationsDirName))
	if err != nil {
		return nil, err
	}

	return &Graph{
		location:   location,
		diskBased:  true,
		nodeAnnos:  annos,
		components: make(map[data.Component]graphstorage.Storage),
	}, nil
}

/*
LoadGraph opens a graph from a location. Components are registered from the
directory listing but only loaded when preload is set. A pending write-ahead
log is replayed before the graph is returned.
*/
func LoadGraph(location string, preload bool) (*Graph, error) {
	g := &Graph{
		location:   location,
		components: make(map[data.Component]graphstorage.Storage),
	}

	annoDir := filepath.Join(location, AnnotationsDirName)

	if ok, _ := fileutil.PathExists(filepath.Join(annoDir, annostorage.BadgerDirName)); ok {
		annos, err := annostorage.NewDiskNodeStorage(annoDir)
		if err != nil {
			return nil, err
		}
		g.diskBased = true
		g.nodeAnnos = annos

	} else {
		annos := annostorage.NewNodeStorage()
		if err := annos.Load(annoDir); err != nil {
			return nil, err
		}
		g.nodeAnnos = annos
	}

	if err := g.registerComponents(); err != nil {
		g.nodeAnnos.Close()
		return nil, err
	}

	stats, err := loadGlobalStatistics(location)
	if err != nil {
		g.nodeAnnos.Close()
		return nil, err
	}
	if stats != nil {
		g.changeID = stats.ChangeID
	}

	if err := g.replayWAL(); err != nil {
		g.nodeAnnos.Close()
		return nil, err
	}

	if preload {
		if err := g.EnsureLoadedAll(); err != nil {
			g.nodeAnnos.Close()
			return nil, err
		}
	}

	return g, nil
}

/*
registerComponents scans the component directory of the graph location and
registers every component directory without loading it.
*/
func (g *Graph) registerComponents() error {
	gsDir := filepath.Join(g.location, ComponentsDirName)

	typeEntries, err := os.ReadDir(gsDir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return &util.GraphError{Type: util.ErrStorageIO, Detail: err.Error()}
	}

	for _, typeEntry := range typeEntries {
		if !typeEntry.IsDir() {
			continue
		}

		ctype, ok := data.ParseComponentType(typeEntry.Name())
		if !ok {
			return &util.GraphError{Type: util.ErrCorrupted,
				Detail: "Unknown component type directory: " + typeEntry.Name()}
		}

		layerEntries, err := os.ReadDir(filepath.Join(gsDir, typeEntry.Name()))
		if err != nil {
			return &util.GraphError{Type: util.ErrStorageIO, Detail: err.Error()}
		}

		for _, layerEntry := range layerEntries {
			if !layerEntry.IsDir() {
				continue
			}

			layer := layerEntry.Name()
			if layer == data.DefaultLayerDir {
				layer = ""
			}

			layerDir := filepath.Join(gsDir, typeEntry.Name(), layerEntry.Name())

			if ok, _ := fileutil.PathExists(filepath.Join(layerDir,
				graphstorage.ImplementationFileName)); ok {
				g.components[data.Component{CType: ctype, Layer: layer}] = nil
			}

			nameEntries, err := os.ReadDir(layerDir)
			if err != nil {
				return &util.GraphError{Type: util.ErrStorageIO, Detail: err.Error()}
			}

			for _, nameEntry := range nameEntries {
				if !nameEntry.IsDir() {
					continue
				}

				if ok, _ := fileutil.PathExists(filepath.Join(layerDir, nameEntry.Name(),
					graphstorage.ImplementationFileName)); ok {
					g.components[data.Component{CType: ctype, Layer: layer,
						Name: nameEntry.Name()}] = nil
				}
			}
		}
	}

	return nil
}

/*
replayWAL applies pending events of the write-ahead log which are beyond
the persisted change ID.
*/
func (g *Graph) replayWAL() error {
	events, err := readWAL(g.location)
	if err != nil {
		return err
	}

	var pending []UpdateEvent
	for _, ev := range events {
		if ev.ChangeID > g.changeID {
			pending = append(pending, ev)
		}
	}

	if len(pending) == 0 {
		if len(events) > 0 {
			return removeWAL(g.location)
		}
		return nil
	}

	if err := g.applyEvents(pending, true); err != nil {
		return err
	}

	if err := g.SaveTo(g.location); err != nil {
		return err
	}

	return removeWAL(g.location)
}

/*
NodeAnnotations returns the node annotation store of the graph.
*/
func (g *Graph) NodeAnnotations() annostorage.Storage[data.NodeID] {
	return g.nodeAnnos
}

/*
ChangeID returns the ID of the last applied change.
*/
func (g *Graph) ChangeID() uint64 {
	return g.changeID
}

/*
Location returns the storage location of the graph. The result is empty for
a pure in-memory graph.
*/
func (g *Graph) Location() string {
	return g.location
}

/*
AllComponents returns all registered components filtered by an optional
type and name. The result is ordered.
*/
func (g *Graph) AllComponents(ctype *data.ComponentType, name *string) []data.Component {
	var res []data.Component

	for c := range g.components {
		if ctype != nil && c.CType != *ctype {
			continue
		}
		if name != nil && c.Name != *name {
			continue
		}
		res = append(res, c)
	}

	sort.Slice(res, func(i, j int) bool { return res[i].Compare(res[j]) < 0 })
	return res
}

/*
LoadedComponents returns all components which are currently held in memory.
The result is ordered.
*/
func (g *Graph) LoadedComponents() []data.Component {
	var res []data.Component

	for c, st := range g.components {
		if st != nil {
			res = append(res, c)
		}
	}

	sort.Slice(res, func(i, j int) bool { return res[i].Compare(res[j]) < 0 })
	return res
}

/*
HasComponent checks if a component is registered.
*/
func (g *Graph) HasComponent(c data.Component) bool {
	_, ok := g.components[c]
	return ok
}

/*
EnsureLoaded loads a registered component if it is not in memory yet.
*/
func (g *Graph) EnsureLoaded(c data.Component) error {
	st, ok := g.components[c]
	if !ok {
		return &util.GraphError{Type: util.ErrMissingComponent, Detail: c.String()}
	}
	if st != nil {
		return nil
	}

	loaded, err := graphstorage.LoadComponent(filepath.Join(g.location, c.RelativePath()))
	if err != nil {
		return err
	}

	g.components[c] = loaded
	return nil
}

/*
EnsureLoadedParallel loads the given components concurrently and returns
the components which were actually loaded by this call.
*/
func (g *Graph) EnsureLoadedParallel(list []data.Component) ([]data.Component, error) {
	var toLoad []data.Component

	for _, c := range list {
		st, ok := g.components[c]
		if !ok {
			return nil, &util.GraphError{Type: util.ErrMissingComponent, Detail: c.String()}
		}
		if st == nil {
			toLoad = append(toLoad, c)
		}
	}

	var mu sync.Mutex
	var loaded []data.Component

	var eg errgroup.Group
	eg.SetLimit(runtime.NumCPU())

	for _, c := range toLoad {
		c := c
		eg.Go(func() error {
			st, err := graphstorage.LoadComponent(filepath.Join(g.location, c.RelativePath()))
			if err != nil {
				return err
			}

			mu.Lock()
			g.components[c] = st
			loaded = append(loaded, c)
			mu.Unlock()
			return nil
		})
	}

	if err := eg.Wait(); err != nil {
		return nil, err
	}

	sort.Slice(loaded, func(i, j int) bool { return loaded[i].Compare(loaded[j]) < 0 })
	return loaded, nil
}

/*
EnsureLoadedAll loads all registered components.
*/
func (g *Graph) EnsureLoadedAll() error {
	_, err := g.EnsureLoadedParallel(g.AllComponents(nil, nil))
	return err
}

/*
Storage returns the loaded storage of a component.
*/
func (g *Graph) Storage(c data.Component) (graphstorage.Storage, error) {
	if err := g.EnsureLoaded(c); err != nil {
		return nil, err
	}
	return g.components[c], nil
}

/*
GetOrCreateWriteable returns a writeable storage for a component. Missing
components are created, loaded components in an optimized layout are
converted back to the generic writeable layout.
*/
func (g *Graph) GetOrCreateWriteable(c data.Component) (graphstorage.WriteableStorage, error) {
	if _, ok := g.components[c]; !ok {
		ws := graphstorage.CreateWriteable()
		g.components[c] = ws
		return ws, nil
	}

	st, err := g.Storage(c)
	if err != nil {
		return nil, err
	}

	if ws, ok := st.(graphstorage.WriteableStorage); ok {
		return ws, nil
	}

	ws := graphstorage.CreateWriteable()
	if err := ws.CopyFrom(st); err != nil {
		return nil, err
	}

	g.components[c] = ws
	return ws, nil
}

/*
OptimizeImplementation replaces the storage of a component with the
physically best implementation for its statistics.
*/
func (g *Graph) OptimizeImplementation(c data.Component) error {
	st, err := g.Storage(c)
	if err != nil {
		return err
	}

	opt, err := graphstorage.Optimize(st)
	if err != nil {
		return err
	}

	g.components[c] = opt
	return nil
}

/*
OptimizeAll replaces all loaded component storages with their physically
best implementation.
*/
func (g *Graph) OptimizeAll() error {
	for _, c := range g.AllComponents(nil, nil) {
		if g.components[c] == nil {
			continue
		}
		if err := g.OptimizeImplementation(c); err != nil {
			return err
		}
	}
	return nil
}

/*
CalculateComponentStatistics rebuilds the statistics of one component.
*/
func (g *Graph) CalculateComponentStatistics(c data.Component) error {
	ws, err := g.GetOrCreateWriteable(c)
	if err != nil {
		return err
	}
	return ws.CalculateStatistics()
}

// Node name lookups
// =================

/*
NodeIDFromName returns the internal ID of a node name.
*/
func (g *Graph) NodeIDFromName(name string) (data.NodeID, bool) {
	ns := data.AnnisNamespace

	it := g.nodeAnnos.ExactSearch(&ns, data.NodeNameAttr,
		annostorage.EqualValue(name))

	if m, ok := it.Next(); ok {
		return m.Item, true
	}
	return 0, false
}

/*
NodeNameFromID returns the name of a node.
*/
func (g *Graph) NodeNameFromID(id data.NodeID) (string, bool) {
	return g.nodeAnnos.Value(id, *data.NodeNameKey)
}

/*
HasNodeName checks if a node with the given name exists.
*/
func (g *Graph) HasNodeName(name string) bool {
	_, ok := g.NodeIDFromName(name)
	return ok
}

// Persistence
// ===========

/*
SaveTo writes the node annotations, all loaded components and the global
statistics to a location.
*/
func (g *Graph) SaveTo(location string) error {
	if err := os.MkdirAll(location, 0770); err != nil {
		return &util.GraphError{Type: util.ErrStorageIO, Detail: err.Error()}
	}

	if err := g.nodeAnnos.Save(filepath.Join(location, AnnotationsDirName)); err != nil {
		return err
	}

	for _, c := range g.AllComponents(nil, nil) {
		st := g.components[c]
		if st == nil {

			// Unloaded components are unchanged on disk

			continue
		}

		if err := graphstorage.SaveComponent(
			filepath.Join(location, c.RelativePath()), st); err != nil {
			return err
		}
	}

	return saveGlobalStatistics(location, g.GlobalStatistics())
}

/*
Persist writes the graph back to its own location.
*/
func (g *Graph) Persist() error {
	if g.location == "" {
		return &util.GraphError{Type: util.ErrFlushing,
			Detail: "Graph has no storage location"}
	}
	return g.SaveTo(g.location)
}

/*
PersistTo loads all components and writes the graph to a new location which
becomes its storage location.
*/
func (g *Graph) PersistTo(location string) error {
	if g.location != "" {
		if err := g.EnsureLoadedAll(); err != nil {
			return err
		}
	}

	g.location = location
	return g.SaveTo(location)
}

/*
Close releases all resources held by the graph.
*/
func (g *Graph) Close() error {
	for _, st := range g.components {
		if dps, ok := st.(*graphstorage.DiskPathStorage); ok {
			if err := dps.Close(); err != nil {
				return &util.GraphError{Type: util.ErrClosing, Detail: err.Error()}
			}
		}
	}

	return g.nodeAnnos.Close()
}
